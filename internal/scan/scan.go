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

package scan

import (
	"errors"
	"io/fs"
	"path/filepath"
	"time"

	"github.com/loomlang/loomc/internal/layout"
	"github.com/loomlang/loomc/internal/loomgraph"
)

// AstArtifact is one parsed .last or .ilast file found on disk, with the
// bookkeeping recovered from its header.
type AstArtifact struct {
	Header       Header
	Path         string // absolute path to the .last/.ilast file
	LastModified time.Time
}

// Snapshot is the immutable view of the previous build's compiler assets
// (spec.md §4.D "CompileAssetsState" in the original tool's terms), taken
// once at the start of a build before anything is written or deleted.
type Snapshot struct {
	// AstSourceLocations is the set of source file locations (absolute
	// path to the .lm/.lmi file) that the previous build's AST artifacts
	// claim to have parsed.
	AstSourceLocations map[string]struct{}

	// AstModules maps a source file location to the artifact recovered
	// for it. A module with both an implementation and an interface has
	// two entries, one per artifact.
	AstModules map[string]*AstArtifact

	// LoiModified and LotModified map a module name to the modification
	// time of its interface digest (.loi) and typed tree (.lot), the
	// Loom equivalents of bsb's cmi/cmt bookkeeping.
	LoiModified map[string]time.Time
	LotModified map[string]time.Time
}

// Scan walks every package's intermediate and public build directories
// and assembles a Snapshot, grounded on the original tool's
// scan-before-reconcile step (original_source/src/build/clean.rs,
// cleanup_previous_build's use of CompileAssetsState). It tolerates a
// missing build directory (first build ever): the snapshot is simply
// empty for that package.
func Scan(root string, graph *loomgraph.Graph) (*Snapshot, error) {
	snap := &Snapshot{
		AstSourceLocations: map[string]struct{}{},
		AstModules:         map[string]*AstArtifact{},
		LoiModified:        map[string]time.Time{},
		LotModified:        map[string]time.Time{},
	}

	for _, name := range graph.Names() {
		pkg := graph.Packages[name]
		pkgDir := layout.PackagePath(root, name, pkg.IsRoot)

		if err := scanBsDir(layout.BsBuildPath(root, name, pkg.IsRoot), pkgDir, snap); err != nil {
			return nil, err
		}
		if err := scanPublicDir(layout.PublicBuildPath(root, name, pkg.IsRoot), snap); err != nil {
			return nil, err
		}
	}
	return snap, nil
}

func scanBsDir(bsDir, pkgDir string, snap *Snapshot) error {
	return walkIgnoringAbsence(bsDir, func(path string, d fs.DirEntry, info fs.FileInfo) error {
		ext := layout.Extension(path)
		if ext != layout.ExtAST && ext != layout.ExtIAST {
			return nil
		}
		hdr, err := ReadHeader(path)
		if err != nil {
			// A corrupt or foreign file in the build directory is not
			// fatal to the scan; it is simply invisible to staleness
			// tracking and will be treated as if this module were new.
			return nil
		}
		loc := filepath.Join(pkgDir, filepath.FromSlash(hdr.SourcePath))
		snap.AstSourceLocations[loc] = struct{}{}
		snap.AstModules[loc] = &AstArtifact{Header: *hdr, Path: path, LastModified: info.ModTime()}
		return nil
	})
}

func scanPublicDir(publicDir string, snap *Snapshot) error {
	return walkIgnoringAbsence(publicDir, func(path string, d fs.DirEntry, info fs.FileInfo) error {
		ext := layout.Extension(path)
		switch ext {
		case layout.ExtLoi:
			snap.LoiModified[moduleNameFromAssetPath(path)] = info.ModTime()
		case layout.ExtLot:
			snap.LotModified[moduleNameFromAssetPath(path)] = info.ModTime()
		}
		return nil
	})
}

// moduleNameFromAssetPath recovers a module name from a compiler asset's
// on-disk basename. The namespace suffix, if any, is already baked into
// the filename stem (layout.AssetBasename); only capitalization needs to
// be restored (layout.ModuleNameFromPath documents this asymmetry).
func moduleNameFromAssetPath(path string) string {
	return layout.Capitalize(layout.Basename(path))
}

func walkIgnoringAbsence(dir string, fn func(path string, d fs.DirEntry, info fs.FileInfo) error) error {
	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		info, err := d.Info()
		if err != nil {
			return err
		}
		return fn(path, d, info)
	})
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return err
	}
	return nil
}
