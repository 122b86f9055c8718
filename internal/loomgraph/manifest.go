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

// Package loomgraph implements package discovery (spec.md §4.B): walking
// the manifest graph from a project root, resolving each dependency to a
// package directory, and assembling the Package DAG.
//
// The on-disk manifest format ("loom.json") is out of scope for this
// driver (spec.md §OUT OF SCOPE) — Manifest recognizes it only as a
// configuration record with named fields, the same way rewatch's bsconfig
// module is treated by the rest of this spec.
package loomgraph

import (
	"encoding/json"
	"fmt"

	"github.com/google/shlex"

	"github.com/loomlang/loomc/internal/layout"
)

const ManifestFileName = "loom.json"

// FlagSet is a list of command-line arguments. In the manifest it may be
// written either as a single string (split on whitespace the way a shell
// would, mirroring bsconfig's OneOrMore::Single) or as a JSON array of
// already-tokenized arguments (OneOrMore::Multiple).
type FlagSet []string

func (f *FlagSet) UnmarshalJSON(data []byte) error {
	var single string
	if err := json.Unmarshal(data, &single); err == nil {
		tokens, err := shlex.Split(single)
		if err != nil {
			return fmt.Errorf("loomgraph: invalid flag string %q: %w", single, err)
		}
		*f = tokens
		return nil
	}
	var multi []string
	if err := json.Unmarshal(data, &multi); err != nil {
		return fmt.Errorf("loomgraph: flag entry must be a string or array of strings: %w", err)
	}
	*f = multi
	return nil
}

// SourceDir names one directory to search for source files, optionally
// recursing into subdirectories.
type SourceDir struct {
	Dir     string
	Recurse bool
}

// sourcesField supports the manifest "sources" key being a bare string, an
// array of strings, a single {"dir":...,"subdirs":...} object, or an array
// of such objects — every shape rewatch's bsconfig::Sources accepts.
type sourcesField []SourceDir

func (s *sourcesField) UnmarshalJSON(data []byte) error {
	var str string
	if err := json.Unmarshal(data, &str); err == nil {
		*s = []SourceDir{{Dir: str}}
		return nil
	}
	var obj struct {
		Dir     string `json:"dir"`
		Subdirs bool   `json:"subdirs"`
	}
	if err := json.Unmarshal(data, &obj); err == nil && obj.Dir != "" {
		*s = []SourceDir{{Dir: obj.Dir, Recurse: obj.Subdirs}}
		return nil
	}
	var arr []json.RawMessage
	if err := json.Unmarshal(data, &arr); err != nil {
		return fmt.Errorf("loomgraph: invalid \"sources\" entry: %w", err)
	}
	var out []SourceDir
	for _, item := range arr {
		var one sourcesField
		if err := (&one).UnmarshalJSON(item); err != nil {
			return err
		}
		out = append(out, one...)
	}
	*s = out
	return nil
}

// namespaceField supports "namespace": false|true|"Name", plus an optional
// sibling "namespace-entry" string promoting one module to the namespace
// itself (NamedWithEntry).
type namespaceField struct {
	set   bool
	named string
}

func (n *namespaceField) UnmarshalJSON(data []byte) error {
	var b bool
	if err := json.Unmarshal(data, &b); err == nil {
		n.set = b
		return nil
	}
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		n.set = true
		n.named = s
		return nil
	}
	return fmt.Errorf("loomgraph: \"namespace\" must be a boolean or string")
}

// Manifest is the Go view of a package's loom.json: only the named fields
// the build driver consumes. Everything else in the file is ignored.
type Manifest struct {
	Name            string          `json:"name"`
	Namespace       *namespaceField `json:"namespace,omitempty"`
	NamespaceEntry  string          `json:"namespace-entry,omitempty"`
	Sources         sourcesField    `json:"sources,omitempty"`
	Dependencies    []string        `json:"bs-dependencies,omitempty"`
	PinnedDeps      []string        `json:"pinned-dependencies,omitempty"`
	PreprocessFlags []FlagSet       `json:"ppx-flags,omitempty"`
	CompilerFlags   []FlagSet       `json:"bsc-flags,omitempty"`
	Suffix          string          `json:"suffix,omitempty"`
}

// ParseManifest decodes a loom.json payload.
func ParseManifest(data []byte) (*Manifest, error) {
	var m Manifest
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("loomgraph: parsing manifest: %w", err)
	}
	if m.Name == "" {
		return nil, fmt.Errorf("loomgraph: manifest is missing required \"name\" field")
	}
	return &m, nil
}

// namespace resolves the manifest's namespace declaration into a
// layout.Namespace, deriving the default namespace name from the package
// name the way "namespace: true" does in the original tool (stripping
// non-identifier characters and capitalizing).
func (m *Manifest) namespace() layout.Namespace {
	if m.Namespace == nil || !m.Namespace.set {
		return layout.NoNamespace
	}
	name := m.Namespace.named
	if name == "" {
		name = deriveNamespaceName(m.Name)
	}
	if m.NamespaceEntry != "" {
		return layout.NamedWithEntry(name, m.NamespaceEntry)
	}
	return layout.Named(name)
}

func deriveNamespaceName(packageName string) string {
	out := make([]rune, 0, len(packageName))
	upperNext := true
	for _, r := range packageName {
		switch {
		case r == '-' || r == '_' || r == '/' || r == '@':
			upperNext = true
		case upperNext:
			out = append(out, toUpper(r))
			upperNext = false
		default:
			out = append(out, r)
		}
	}
	return string(out)
}

func toUpper(r rune) rune {
	if r >= 'a' && r <= 'z' {
		return r - ('a' - 'A')
	}
	return r
}

// flatten concatenates every FlagSet in order, matching bsconfig's
// flatten_flags/flatten_ppx_flags behavior of joining each OneOrMore entry
// in sequence rather than deduplicating.
func flatten(groups []FlagSet) []string {
	var out []string
	for _, g := range groups {
		out = append(out, g...)
	}
	return out
}
