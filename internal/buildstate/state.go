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

package buildstate

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"regexp"
	"sync"
	"time"

	"github.com/loomlang/loomc/internal/layout"
	"github.com/loomlang/loomc/internal/loomgraph"
)

// State is the shared mutable substrate every build phase reads and
// mutates in turn (spec.md §3 "Lifecycle", §9 "Global state"). It is
// created fresh per build invocation and never persisted beyond the
// artifact files phases write to disk.
type State struct {
	ProjectRoot string
	RootPackage string
	Graph       *loomgraph.Graph
	Modules     map[string]*Module

	mu sync.Mutex
}

// New creates an empty build state for a resolved package graph.
func New(projectRoot, rootPackage string, graph *loomgraph.Graph) *State {
	return &State{
		ProjectRoot: projectRoot,
		RootPackage: rootPackage,
		Graph:       graph,
		Modules:     make(map[string]*Module),
	}
}

// Package looks up a package by name.
func (s *State) Package(name string) *loomgraph.Package { return s.Graph.Packages[name] }

// Lock and Unlock expose State's internal mutex so callers performing a
// sequential collect-then-merge reduction (spec.md §5) can serialize
// insertions into Modules without each phase inventing its own lock.
func (s *State) Lock()   { s.mu.Lock() }
func (s *State) Unlock() { s.mu.Unlock() }

// ParsePackages walks each package's configured source directories,
// classifies files as implementation or interface by extension, pairs
// them by basename into SourceFile modules, and inserts one MlMap module
// per namespaced package (spec.md §4.C). Every module starts fully dirty.
func (s *State) ParsePackages() error {
	for _, name := range s.Graph.Names() {
		pkg := s.Graph.Packages[name]
		files, err := collectSourceFiles(s.ProjectRoot, pkg, s.Graph.Filter)
		if err != nil {
			return fmt.Errorf("buildstate: scanning sources for package %q: %w", name, err)
		}

		byBasename := map[string]*pairedFiles{}
		for i := range files {
			f := &files[i]
			base := layout.Basename(f.relPath)
			p := byBasename[base]
			if p == nil {
				p = &pairedFiles{}
				byBasename[base] = p
			}
			if layout.IsImplementationFile(f.ext) {
				p.impl = f
			} else {
				p.intf = f
			}
		}

		for base, p := range byBasename {
			if p.impl == nil {
				// An interface file with no matching implementation is not
				// a buildable module (spec.md §3 pairing invariant); skip
				// it rather than synthesizing a half module.
				continue
			}
			moduleName := layout.ModuleNameFromPath(base+"."+layout.ImplExt, pkg.Namespace)
			m := &Module{
				Name:    moduleName,
				Package: name,
				Kind:    SourceKind,
				Impl: FileState{
					Path:    p.impl.relPath,
					ModTime: p.impl.modTime,
					Dirty:   true,
				},
				CompileDirty: true,
				Deps:         map[string]struct{}{},
			}
			if p.intf != nil {
				m.Intf = &FileState{
					Path:    p.intf.relPath,
					ModTime: p.intf.modTime,
					Dirty:   true,
				}
			}
			s.Modules[moduleName] = m
		}

		if suffix, ok := pkg.Namespace.Suffix(); ok {
			mlMapName := layout.ModuleNameWithNamespace(suffix, layout.NoNamespace)
			s.Modules[mlMapName] = &Module{
				Name:         mlMapName,
				Package:      name,
				Kind:         MlMapKind,
				MlMapDirty:   true,
				CompileDirty: true,
				Deps:         map[string]struct{}{},
			}
		}
	}
	return nil
}

type pairedFiles struct {
	impl *fileEntry
	intf *fileEntry
}

type fileEntry struct {
	relPath string
	ext     string
	modTime time.Time
}

// collectSourceFiles enumerates every recognized source file across a
// package's configured source directories, applying filter (if non-nil)
// to the path relative to the package directory.
func collectSourceFiles(root string, pkg *loomgraph.Package, filter *regexp.Regexp) ([]fileEntry, error) {
	pkgDir := layout.PackagePath(root, pkg.Name, pkg.IsRoot)
	dirs := pkg.Sources
	if len(dirs) == 0 {
		dirs = []loomgraph.SourceDir{{Dir: "."}}
	}

	var out []fileEntry
	for _, sd := range dirs {
		base := filepath.Join(pkgDir, filepath.FromSlash(sd.Dir))
		err := filepath.WalkDir(base, func(path string, d fs.DirEntry, err error) error {
			if err != nil {
				if os.IsNotExist(err) {
					return nil
				}
				return err
			}
			if d.IsDir() {
				if path != base && !sd.Recurse {
					return filepath.SkipDir
				}
				return nil
			}
			ext := layout.Extension(path)
			if !layout.IsSourceFile(ext) {
				return nil
			}
			rel, err := filepath.Rel(pkgDir, path)
			if err != nil {
				return err
			}
			rel = filepath.ToSlash(rel)
			if filter != nil && !filter.MatchString(rel) {
				return nil
			}
			info, err := d.Info()
			if err != nil {
				return err
			}
			out = append(out, fileEntry{relPath: rel, ext: ext, modTime: info.ModTime()})
			return nil
		})
		if err != nil {
			return nil, err
		}
	}
	return out, nil
}
