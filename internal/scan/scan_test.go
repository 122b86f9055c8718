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
	"bufio"
	"os"
	"path/filepath"
	"testing"

	"github.com/go-quicktest/qt"

	"github.com/loomlang/loomc/internal/loomgraph"
)

func writeManifest(t *testing.T, dir string, contents string) {
	t.Helper()
	if err := os.MkdirAll(dir, 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dir, loomgraph.ManifestFileName), []byte(contents), 0o644); err != nil {
		t.Fatal(err)
	}
}

func writeAst(t *testing.T, path string, h Header) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatal(err)
	}
	f, err := os.Create(path)
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()
	if err := WriteHeader(bufio.NewWriter(f), h, "()"); err != nil {
		t.Fatal(err)
	}
}

func TestScanRecoversAstSourceLocationsAndAssetTimes(t *testing.T) {
	root := t.TempDir()
	writeManifest(t, root, `{"name": "app", "namespace": "App"}`)

	g, err := loomgraph.Discover(root, nil)
	if err != nil {
		t.Fatal(err)
	}

	astPath := filepath.Join(root, "lib", "bs", "src", "Foo.last")
	writeAst(t, astPath, Header{
		ModuleName:  "Foo-App",
		PackageName: "app",
		Namespace:   "App",
		IsRoot:      true,
		Suffix:      "mjs",
		SourcePath:  "src/Foo.lm",
	})

	loiPath := filepath.Join(root, "lib", "js", "foo-App.loi")
	if err := os.MkdirAll(filepath.Dir(loiPath), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(loiPath, []byte("digest"), 0o644); err != nil {
		t.Fatal(err)
	}

	snap, err := Scan(root, g)
	if err != nil {
		t.Fatal(err)
	}

	loc := filepath.Join(root, "src", "Foo.lm")
	_, ok := snap.AstSourceLocations[loc]
	qt.Assert(t, qt.IsTrue(ok))
	art, ok := snap.AstModules[loc]
	qt.Assert(t, qt.IsTrue(ok))
	qt.Assert(t, qt.Equals(art.Header.ModuleName, "Foo-App"))
	_, ok = snap.LoiModified["Foo-App"]
	qt.Assert(t, qt.IsTrue(ok))
}

func TestScanToleratesMissingBuildDirectories(t *testing.T) {
	root := t.TempDir()
	writeManifest(t, root, `{"name": "app"}`)
	g, err := loomgraph.Discover(root, nil)
	if err != nil {
		t.Fatal(err)
	}
	snap, err := Scan(root, g)
	if err != nil {
		t.Fatal(err)
	}
	qt.Assert(t, qt.HasLen(snap.AstSourceLocations, 0))
}
