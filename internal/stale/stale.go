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

// Package stale reconciles a freshly scanned build state (internal/scan)
// against the current source tree (internal/buildstate), the staleness
// half of the incremental build (spec.md §4.E). It is a close port of
// original_source/src/build/clean.rs: cleanup_previous_build runs before
// parsing/compiling and decides what can be skipped; cleanup_after_build
// runs after and discards the artifacts of anything that failed.
package stale

import (
	"os"
	"path/filepath"

	"github.com/loomlang/loomc/internal/buildstate"
	"github.com/loomlang/loomc/internal/layout"
	"github.com/loomlang/loomc/internal/scan"
)

// Result summarizes one reconciliation pass, the same three values the
// original tool surfaces to its "[3/7]" progress line.
type Result struct {
	OrphanCount       int
	TotalPriorSources int
	DeletedModules    map[string]struct{}
}

// Reconcile compares snap (the previous build's artifacts) against st
// (the current source tree, already populated by buildstate.ParsePackages)
// and:
//
//  1. deletes the compile assets and emitted JS of any source file that
//     existed in the previous build but no longer exists;
//  2. clears the Dirty/CompileDirty flags of files whose artifacts are
//     still newer than the source, so later phases skip them;
//  3. reports which module names (or, for namespaced modules, which
//     namespace) disappeared entirely, so callers can force their
//     namespace rollup to recompile.
func Reconcile(st *buildstate.State, snap *scan.Snapshot) (Result, error) {
	current := currentSourceLocations(st)

	deletedInterfaces := map[string]struct{}{}
	orphanCount := 0
	for loc := range snap.AstSourceLocations {
		if _, ok := current[loc]; ok {
			continue
		}
		orphanCount++
		art := snap.AstModules[loc]
		if art == nil {
			continue
		}
		removeOrphanArtifacts(st.ProjectRoot, art)
		if layout.IsInterfaceASTFile(art.Path) {
			deletedInterfaces[art.Header.ModuleName] = struct{}{}
		}
	}

	for loc := range snap.AstSourceLocations {
		if _, ok := current[loc]; !ok {
			continue
		}
		art := snap.AstModules[loc]
		if art == nil {
			continue
		}
		applyFreshness(st, art, deletedInterfaces, snap)
	}

	for name, t := range snap.LoiModified {
		if m := st.Modules[name]; m != nil {
			m.LastCmi = t
		}
	}
	for name, t := range snap.LotModified {
		if m := st.Modules[name]; m != nil {
			m.LastCmt = t
		}
	}

	deletedModules := map[string]struct{}{}
	for _, art := range snap.AstModules {
		if layout.IsInterfaceASTFile(art.Path) {
			continue // only implementation artifacts name a module here
		}
		if _, stillExists := st.Modules[art.Header.ModuleName]; stillExists {
			continue
		}
		if ns, ok := layout.NamespaceSuffixOf(art.Header.ModuleName); ok {
			deletedModules[ns] = struct{}{}
		} else {
			deletedModules[art.Header.ModuleName] = struct{}{}
		}
	}

	return Result{
		OrphanCount:       orphanCount,
		TotalPriorSources: len(snap.AstSourceLocations),
		DeletedModules:    deletedModules,
	}, nil
}

// CleanupAfterBuild discards artifacts for anything that failed to parse
// or compile this run, so the next build retries it instead of trusting a
// stale but "fresh-looking" artifact (clean.rs::cleanup_after_build).
func CleanupAfterBuild(st *buildstate.State) {
	for _, m := range st.Modules {
		if m.Kind != buildstate.SourceKind {
			continue
		}
		pkg := st.Package(m.Package)
		if failedToParse(m) {
			removeAST(st.ProjectRoot, pkg.Name, pkg.IsRoot, m.Impl.Path)
		}
		if failedToCompile(m) {
			// Only the typed tree is discarded: this forces a recompile
			// (so the warning keeps showing) without invalidating the
			// interface digest, which would otherwise mark every
			// dependent dirty for no real interface change.
			removeCompileAsset(st.ProjectRoot, pkg.Name, pkg.Namespace, pkg.IsRoot, m.Impl.Path, layout.ExtLot)
		}
	}
}

func failedToParse(m *buildstate.Module) bool {
	if m.Impl.ParseState == buildstate.ParseError || m.Impl.ParseState == buildstate.ParseWarning {
		return true
	}
	return m.Intf != nil && (m.Intf.ParseState == buildstate.ParseError || m.Intf.ParseState == buildstate.ParseWarning)
}

func failedToCompile(m *buildstate.Module) bool {
	if m.Impl.CompileState == buildstate.CompileError || m.Impl.CompileState == buildstate.CompileWarning {
		return true
	}
	return m.Intf != nil && (m.Intf.CompileState == buildstate.CompileError || m.Intf.CompileState == buildstate.CompileWarning)
}

// currentSourceLocations returns the absolute path of every implementation
// and interface file backing a SourceKind module in st.
func currentSourceLocations(st *buildstate.State) map[string]struct{} {
	out := map[string]struct{}{}
	for _, m := range st.Modules {
		if m.Kind != buildstate.SourceKind {
			continue
		}
		pkg := st.Package(m.Package)
		pkgDir := layout.PackagePath(st.ProjectRoot, pkg.Name, pkg.IsRoot)
		out[filepath.Join(pkgDir, filepath.FromSlash(m.Impl.Path))] = struct{}{}
		if m.Intf != nil {
			out[filepath.Join(pkgDir, filepath.FromSlash(m.Intf.Path))] = struct{}{}
		}
	}
	return out
}

// headerNamespace reconstructs an approximate layout.Namespace from a
// header's flat namespace name. A NamedWithEntry can't be told apart from
// a plain Named this way, which only changes path math for the one
// module promoted to be the namespace's entry point: its compile assets
// and JS output are looked up with the namespace suffix, so its unsuffixed
// files are not removed. Its .last/.ilast files never carry a suffix and
// are removed either way.
func headerNamespace(h scan.Header) layout.Namespace {
	if h.Namespace == "" {
		return layout.NoNamespace
	}
	return layout.Named(h.Namespace)
}

func removeOrphanArtifacts(root string, art *scan.AstArtifact) {
	h := art.Header
	ns := headerNamespace(h)
	for _, ext := range layout.CompileAssetExtensions {
		os.Remove(layout.PublicAsset(h.SourcePath, h.PackageName, ns, root, ext, h.IsRoot))
		os.Remove(layout.BsAsset(h.SourcePath, h.PackageName, ns, root, ext, h.IsRoot))
	}
	suffix := h.Suffix
	if suffix == "" {
		suffix = "mjs"
	}
	os.Remove(layout.PublicAsset(h.SourcePath, h.PackageName, ns, root, suffix, h.IsRoot))
	os.Remove(layout.BsAsset(h.SourcePath, h.PackageName, ns, root, layout.ExtIAST, h.IsRoot))
	os.Remove(layout.BsAsset(h.SourcePath, h.PackageName, ns, root, layout.ExtAST, h.IsRoot))
}

func removeAST(root, packageName string, isRoot bool, sourcePath string) {
	os.Remove(layout.BsAsset(sourcePath, packageName, layout.NoNamespace, root, layout.ExtIAST, isRoot))
	os.Remove(layout.BsAsset(sourcePath, packageName, layout.NoNamespace, root, layout.ExtAST, isRoot))
}

func removeCompileAsset(root, packageName string, ns layout.Namespace, isRoot bool, sourcePath, ext string) {
	os.Remove(layout.PublicAsset(sourcePath, packageName, ns, root, ext, isRoot))
	os.Remove(layout.BsAsset(sourcePath, packageName, ns, root, ext, isRoot))
}

// applyFreshness clears dirty flags for a file whose artifact survives
// and is newer than the source it was generated from, mirroring clean.rs's
// intersection loop.
func applyFreshness(st *buildstate.State, art *scan.AstArtifact, deletedInterfaces map[string]struct{}, snap *scan.Snapshot) {
	m := st.Modules[art.Header.ModuleName]
	if m == nil {
		return
	}

	if loi, ok := snap.LoiModified[art.Header.ModuleName]; ok {
		if loi.After(art.LastModified) && !isDeletedInterface(deletedInterfaces, art.Header.ModuleName) {
			m.CompileDirty = false
		}
	}

	if layout.IsInterfaceASTFile(art.Path) {
		if m.Intf != nil && art.LastModified.After(m.Intf.ModTime) {
			m.Intf.Dirty = false
		}
		return
	}
	if art.LastModified.After(m.Impl.ModTime) && !isDeletedInterface(deletedInterfaces, art.Header.ModuleName) {
		m.Impl.Dirty = false
	}
}

func isDeletedInterface(deleted map[string]struct{}, name string) bool {
	_, ok := deleted[name]
	return ok
}
