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
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/loomlang/loomc/internal/layout"
)

func TestParseManifestFlagsAndSources(t *testing.T) {
	m, err := ParseManifest([]byte(`{
		"name": "app",
		"sources": [{"dir": "src", "subdirs": true}, "vendor"],
		"ppx-flags": ["./ppx.exe --strict", ["./other.exe", "-x"]],
		"bsc-flags": ["-w -9"],
		"suffix": "js"
	}`))
	if err != nil {
		t.Fatalf("ParseManifest: %v", err)
	}

	wantSources := []SourceDir{{Dir: "src", Recurse: true}, {Dir: "vendor"}}
	if diff := cmp.Diff(wantSources, []SourceDir(m.Sources)); diff != "" {
		t.Errorf("Sources mismatch (-want +got):\n%s", diff)
	}

	wantPPX := []string{"./ppx.exe", "--strict", "./other.exe", "-x"}
	if diff := cmp.Diff(wantPPX, flatten(m.PreprocessFlags)); diff != "" {
		t.Errorf("PreprocessFlags mismatch (-want +got):\n%s", diff)
	}

	if diff := cmp.Diff([]string{"-w", "-9"}, flatten(m.CompilerFlags)); diff != "" {
		t.Errorf("CompilerFlags mismatch (-want +got):\n%s", diff)
	}

	if m.Suffix != "js" {
		t.Errorf("Suffix = %q, want js", m.Suffix)
	}
}

func TestManifestNamespaceDerivation(t *testing.T) {
	m, err := ParseManifest([]byte(`{"name": "my-cool_pkg", "namespace": true}`))
	if err != nil {
		t.Fatal(err)
	}
	ns := m.namespace()
	if name, ok := ns.Suffix(); !ok || name != "MyCoolPkg" {
		t.Errorf("derived namespace = %q, ok=%v, want MyCoolPkg", name, ok)
	}
}

func TestManifestNamespaceEntry(t *testing.T) {
	m, err := ParseManifest([]byte(`{"name": "pkg", "namespace": "NS", "namespace-entry": "Index"}`))
	if err != nil {
		t.Fatal(err)
	}
	ns := m.namespace()
	if ns.Kind != layout.NamedWithEntryKind {
		t.Errorf("expected NamedWithEntryKind, got %v", ns.Kind)
	}
	if ns.Entry != "Index" {
		t.Errorf("Entry = %q, want Index", ns.Entry)
	}
}

func TestManifestRequiresName(t *testing.T) {
	if _, err := ParseManifest([]byte(`{}`)); err == nil {
		t.Fatal("expected error for missing name")
	}
}
