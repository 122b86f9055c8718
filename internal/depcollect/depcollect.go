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

// Package depcollect implements the dependency collector (spec.md §4.G):
// it recovers which other in-build modules each module references, then
// cascades dirtiness along the reverse of that graph so a module whose
// only change is "one of my dependencies recompiled" is rebuilt too.
//
// The real compiler resolves references from the parsed AST, which this
// driver treats as opaque (spec.md Non-goals: no language implementation
// here). Collect instead scans each source file's raw text for
// capitalized identifiers that happen to name another module in the
// build — the same approximation rewatch's own dependency step makes
// when it scans a module's .ast for referenced module names, just done
// on text instead of a binary tree.
package depcollect

import (
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"

	"github.com/mpvl/unique"

	"github.com/loomlang/loomc/internal/buildstate"
	"github.com/loomlang/loomc/internal/layout"
)

var identifierPattern = regexp.MustCompile(`[A-Za-z_][A-Za-z0-9_]*`)

// Collect populates every SourceKind module's Deps with the qualified
// names of other modules in the same package it appears to reference.
// Cross-package references are out of scope: spec.md §3 defines
// Dependencies at the package level, and a source file may only
// reference modules belonging to packages its own package depends on,
// which in this driver means its own package plus instance dependencies
// resolved at the package level, not at the individual-module level.
func Collect(st *buildstate.State) error {
	bases := moduleBasesByPackage(st)

	for _, m := range st.Modules {
		if m.Kind != buildstate.SourceKind {
			continue
		}
		pkg := st.Package(m.Package)
		pkgDir := layout.PackagePath(st.ProjectRoot, pkg.Name, pkg.IsRoot)

		idents := []string{}
		for _, relPath := range sourcePaths(m) {
			text, err := os.ReadFile(filepath.Join(pkgDir, filepath.FromSlash(relPath)))
			if err != nil {
				continue
			}
			idents = append(idents, identifierPattern.FindAllString(string(text), -1)...)
		}
		sort.Strings(idents)
		unique.Strings(&idents)

		deps := map[string]struct{}{}
		local := bases[pkg.Name]
		for _, id := range idents {
			if id == "" || !isUpperFirst(id) {
				continue
			}
			if qualified, ok := local[id]; ok && qualified != m.Name {
				deps[qualified] = struct{}{}
			}
		}
		m.Deps = deps
	}
	return nil
}

// PropagateDirty marks every module reachable, along the reverse
// dependency graph, from either an already-dirty module or a name in
// deletedModules (spec.md §4.G "dirty cascade"). It must run after
// Collect has populated Deps and after internal/stale.Reconcile has
// cleared the flags of anything that didn't need it.
func PropagateDirty(st *buildstate.State, deletedModules map[string]struct{}) {
	reverse := map[string][]string{}
	for name, m := range st.Modules {
		for dep := range m.Deps {
			reverse[dep] = append(reverse[dep], name)
		}
	}

	var queue []string
	seen := map[string]struct{}{}
	mark := func(name string) {
		if _, ok := seen[name]; ok {
			return
		}
		seen[name] = struct{}{}
		queue = append(queue, name)
	}

	for name, m := range st.Modules {
		if m.CompileDirty {
			mark(name)
		}
	}
	for name := range deletedModules {
		mark(name)
	}

	for len(queue) > 0 {
		name := queue[0]
		queue = queue[1:]
		for _, dependent := range reverse[name] {
			if m := st.Modules[dependent]; m != nil {
				m.CompileDirty = true
			}
			mark(dependent)
		}
	}
}

// moduleBasesByPackage maps each package to the identifiers its own
// source code could plausibly reference: every module's base name
// (without namespace suffix) and, for namespaced packages, the namespace
// itself, each pointing at the qualified module name.
func moduleBasesByPackage(st *buildstate.State) map[string]map[string]string {
	out := map[string]map[string]string{}
	for name, m := range st.Modules {
		pkgBases := out[m.Package]
		if pkgBases == nil {
			pkgBases = map[string]string{}
			out[m.Package] = pkgBases
		}
		if m.Kind == buildstate.MlMapKind {
			pkgBases[name] = name
			continue
		}
		base := name
		if i := strings.IndexByte(name, '-'); i >= 0 {
			base = name[:i]
		}
		pkgBases[base] = name
	}
	return out
}

func sourcePaths(m *buildstate.Module) []string {
	paths := []string{m.Impl.Path}
	if m.Intf != nil {
		paths = append(paths, m.Intf.Path)
	}
	return paths
}

func isUpperFirst(s string) bool {
	c := s[0]
	return c >= 'A' && c <= 'Z'
}
