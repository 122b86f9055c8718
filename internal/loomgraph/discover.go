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

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"

	"github.com/loomlang/loomc/internal/layout"
	"github.com/loomlang/loomc/internal/loomerrors"
)

// Graph is the resolved package DAG for one project, rooted at RootName.
type Graph struct {
	RootName string
	Packages map[string]*Package

	// Filter restricts which source files buildstate.ParsePackages
	// considers, per spec.md §4.B's "optional source-file filter". Nil
	// means no filtering.
	Filter *regexp.Regexp
}

// RootPackage returns the package owning the project root.
func (g *Graph) RootPackage() *Package { return g.Packages[g.RootName] }

// Names returns every package name in the graph, sorted for deterministic
// iteration (the discovery order itself does not matter downstream — only
// the resulting set does).
func (g *Graph) Names() []string {
	names := make([]string, 0, len(g.Packages))
	for name := range g.Packages {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Discover walks the manifest graph starting at root, resolving each
// declared dependency to a package directory under root's node_modules
// (spec.md §4.B). filter, if non-nil, is recorded on the graph for later
// use when enumerating source files (spec.md §4.B "optional source-file
// filter"); it does not affect which packages are discovered.
func Discover(root string, filter *regexp.Regexp) (*Graph, error) {
	rootManifest, err := readManifest(root)
	if err != nil {
		return nil, fmt.Errorf("%w: reading root manifest: %v", loomerrors.ErrConfigInvalid, err)
	}

	pinned := map[string]bool{rootManifest.Name: true}
	for _, name := range rootManifest.PinnedDeps {
		pinned[name] = true
	}

	g := &Graph{RootName: rootManifest.Name, Packages: map[string]*Package{}, Filter: filter}
	g.Packages[rootManifest.Name] = newPackage(rootManifest, true, true)

	var stack []string
	var visit func(dir string, m *Manifest) error
	visit = func(dir string, m *Manifest) error {
		stack = append(stack, m.Name)
		defer func() { stack = stack[:len(stack)-1] }()

		for _, depName := range m.Dependencies {
			if _, ok := g.Packages[depName]; ok {
				if onStack(stack, depName) {
					return fmt.Errorf("%w: %v", loomerrors.ErrCycleInPackageGraph, append(append([]string{}, stack...), depName))
				}
				continue
			}
			depDir := layout.PackagePath(root, depName, false)
			depManifest, err := readManifest(depDir)
			if err != nil {
				return fmt.Errorf("%w: %q required by %q: %v", loomerrors.ErrUnresolvedPackage, depName, m.Name, err)
			}
			if depManifest.Name != depName {
				return fmt.Errorf("%w: %q's manifest declares name %q", loomerrors.ErrUnresolvedPackage, depName, depManifest.Name)
			}
			g.Packages[depName] = newPackage(depManifest, false, pinned[depName])
			if err := visit(depDir, depManifest); err != nil {
				return err
			}
		}
		return nil
	}

	if err := visit(root, rootManifest); err != nil {
		return nil, err
	}
	return g, nil
}

func onStack(stack []string, name string) bool {
	for _, s := range stack {
		if s == name {
			return true
		}
	}
	return false
}

func readManifest(dir string) (*Manifest, error) {
	data, err := os.ReadFile(filepath.Join(dir, ManifestFileName))
	if err != nil {
		return nil, err
	}
	return ParseManifest(data)
}
