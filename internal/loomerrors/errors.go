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

// Package loomerrors defines the error kinds and aggregation policy shared
// by every build phase (SPEC_FULL.md §4.L, spec.md §7).
package loomerrors

import (
	"errors"
	"fmt"
	"sync"
)

// Kind classifies a build error the way spec.md §7 names them.
type Kind int

const (
	// ConfigInvalid: manifest missing, malformed, or package graph
	// cyclic/unresolved. Fatal before any I/O.
	ConfigInvalid Kind = iota
	// ParseErrorKind: per-file, aggregated; fails the build once the parse
	// phase completes.
	ParseErrorKind
	// ParseWarningKind: per-file, surfaced only for pinned dependencies.
	ParseWarningKind
	// CompileErrorKind: per-module, aggregated; fails the build once the
	// compile phase drains.
	CompileErrorKind
	// CompileWarningKind: per-module; not fatal, but invalidates .lot.
	CompileWarningKind
	// IOErrorKind is treated as CompileErrorKind for the affected module.
	IOErrorKind
)

func (k Kind) String() string {
	switch k {
	case ConfigInvalid:
		return "ConfigInvalid"
	case ParseErrorKind:
		return "ParseError"
	case ParseWarningKind:
		return "ParseWarning"
	case CompileErrorKind:
		return "CompileError"
	case CompileWarningKind:
		return "CompileWarning"
	case IOErrorKind:
		return "IOError"
	default:
		return "Unknown"
	}
}

// ErrConfigInvalid is returned when the root manifest itself is missing or
// malformed — fatal before any I/O per spec.md §7.
var ErrConfigInvalid = errors.New("invalid project configuration")

// ErrUnresolvedPackage is returned by package discovery when a manifest
// names a dependency that cannot be resolved to a package directory.
var ErrUnresolvedPackage = errors.New("unresolved package")

// ErrCycleInPackageGraph is returned by package discovery when the
// dependency graph between packages contains a cycle.
var ErrCycleInPackageGraph = errors.New("cycle in package graph")

// BuildError is a single diagnostic attributed to a package and,
// optionally, a module within it.
type BuildError struct {
	Kind    Kind
	Package string
	Module  string // empty for package-level errors
	Err     error
}

func (e *BuildError) Error() string {
	if e.Module != "" {
		return fmt.Sprintf("[%s] %s(%s): %v", e.Kind, e.Package, e.Module, e.Err)
	}
	return fmt.Sprintf("[%s] %s: %v", e.Kind, e.Package, e.Err)
}

func (e *BuildError) Unwrap() error { return e.Err }

// Aggregate collects diagnostic text across a parallel phase and renders it
// once the phase completes, matching the "collect into string aggregates
// per phase" propagation policy of spec.md §7. It is safe for concurrent
// use by the parallel parse and compile drivers.
type Aggregate struct {
	mu    sync.Mutex
	items []string
}

// Add appends s to the aggregate if it is non-empty.
func (a *Aggregate) Add(s string) {
	if s == "" {
		return
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	a.items = append(a.items, s)
}

// Empty reports whether nothing has been added.
func (a *Aggregate) Empty() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.items) == 0
}

// Len returns the number of entries added so far.
func (a *Aggregate) Len() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.items)
}

// String concatenates every collected entry, in the order added.
func (a *Aggregate) String() string {
	a.mu.Lock()
	defer a.mu.Unlock()
	out := ""
	for _, s := range a.items {
		out += s
	}
	return out
}
