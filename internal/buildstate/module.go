// Copyright 2025 The Loom Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package buildstate holds the in-memory representation of the build: one
// Module per source file pair (or per namespace rollup), and the
// per-module freshness flags every later phase reads and mutates
// (spec.md §4.C).
package buildstate

import "time"

// ParseState is the per-file outcome of the parse driver (spec.md §4.H
// "state machines"): Pending → (Success | Warning | ParseError).
type ParseState int

const (
	ParsePending ParseState = iota
	ParseSuccess
	ParseWarning
	ParseError
)

// CompileState is the per-module outcome of the compile driver:
// Pending → (Success | Warning | Error | SkippedClean).
type CompileState int

const (
	CompilePending CompileState = iota
	CompileSuccess
	CompileWarning
	CompileError
	CompileSkippedClean
)

// ModuleKind discriminates the two Module variants from spec.md §3.
type ModuleKind int

const (
	SourceKind ModuleKind = iota
	MlMapKind
)

// FileState tracks one physical file backing a SourceKind module: its
// on-disk timestamp, whether it needs re-parsing, and the outcome of the
// last attempt to parse and compile it.
type FileState struct {
	Path         string // relative to the owning package's directory
	ModTime      time.Time
	Dirty        bool
	ParseState   ParseState
	CompileState CompileState
}

// Module is the primitive unit of compilation, keyed by its qualified
// module name (spec.md §3 "Module").
type Module struct {
	Name    string
	Package string
	Kind    ModuleKind

	// Populated when Kind == SourceKind.
	Impl FileState
	Intf *FileState // nil when there is no interface file

	// Populated when Kind == MlMapKind.
	MlMapDirty bool
	MlMapHash  [32]byte

	Deps         map[string]struct{}
	CompileDirty bool
	LastCmi      time.Time
	LastCmt      time.Time
}

// IsDirty reports whether any part of this module needs re-parsing or
// re-hashing, mirroring the original tool's is_dirty check used to size
// the parse-phase progress counter.
func (m *Module) IsDirty() bool {
	switch m.Kind {
	case MlMapKind:
		return m.CompileDirty || m.MlMapDirty
	default:
		return m.Impl.Dirty || (m.Intf != nil && m.Intf.Dirty)
	}
}

// HasInterface reports whether this source module has a paired interface
// file. Per spec.md §3's pairing invariant, both files must exist for the
// module to be buildable once paired; a module created with only one file
// simply never sets Intf.
func (m *Module) HasInterface() bool {
	return m.Kind == SourceKind && m.Intf != nil
}
