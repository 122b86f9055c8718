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

package loomgraph

import "github.com/loomlang/loomc/internal/layout"

// Package is one node of the package DAG (spec.md §3 "Package").
type Package struct {
	Name      string
	IsRoot    bool
	PinnedDep bool
	Namespace layout.Namespace

	Sources      []SourceDir
	Dependencies []string

	PreprocessFlags []string
	CompilerFlags   []string
	Suffix          string // JS output extension, e.g. "mjs"; empty means the driver default
}

const defaultSuffix = "mjs"

// OutputSuffix returns the package's configured suffix, or the build-wide
// default when it did not override one.
func (p *Package) OutputSuffix() string {
	if p.Suffix != "" {
		return p.Suffix
	}
	return defaultSuffix
}

func newPackage(m *Manifest, isRoot, pinned bool) *Package {
	return &Package{
		Name:            m.Name,
		IsRoot:          isRoot,
		PinnedDep:       pinned,
		Namespace:       m.namespace(),
		Sources:         []SourceDir(m.Sources),
		Dependencies:    m.Dependencies,
		PreprocessFlags: flatten(m.PreprocessFlags),
		CompilerFlags:   flatten(m.CompilerFlags),
		Suffix:          m.Suffix,
	}
}
