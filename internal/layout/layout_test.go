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

package layout

import (
	"path/filepath"
	"testing"
)

func TestAssetBasenameNamespace(t *testing.T) {
	ns := Named("MyPkg")
	tests := []struct {
		source string
		ns     Namespace
		want   string
	}{
		{"Foo.lm", NoNamespace, "Foo"},
		{"foo.lm", ns, "foo-MyPkg"},
		{"foo.lm", NamedWithEntry("MyPkg", "foo"), "foo"},
		{"bar.lm", NamedWithEntry("MyPkg", "foo"), "bar-MyPkg"},
	}
	for _, tt := range tests {
		got := AssetBasename(tt.source, tt.ns)
		if got != tt.want {
			t.Errorf("AssetBasename(%q, %v) = %q, want %q", tt.source, tt.ns, got, tt.want)
		}
	}
}

func TestModuleNameFromPath(t *testing.T) {
	if got, want := ModuleNameFromPath("foo.lm", Named("NS")), "Foo-NS"; got != want {
		t.Errorf("ModuleNameFromPath = %q, want %q", got, want)
	}
	if got, want := ModuleNameFromPath("foo.lm", NoNamespace), "Foo"; got != want {
		t.Errorf("ModuleNameFromPath = %q, want %q", got, want)
	}
}

// AST/IAST artifacts must always use NoNamespace for their filename,
// regardless of the module's own namespace: the reconciler relies on this
// asymmetry to locate files (SPEC_FULL.md §4.A).
func TestBsAssetIgnoresNamespaceForAST(t *testing.T) {
	ns := Named("NS")
	root := "/proj"
	for _, ext := range []string{ExtAST, ExtIAST} {
		got := BsAsset("a/Foo.lm", "pkg", ns, root, ext, true)
		want := filepath.Join(root, BsDirName, "a", "Foo."+ext)
		if got != want {
			t.Errorf("BsAsset(..., %q) = %q, want %q", ext, got, want)
		}
	}
	got := BsAsset("a/Foo.lm", "pkg", ns, root, ExtLoj, true)
	want := filepath.Join(root, BsDirName, "a", "Foo-NS."+ExtLoj)
	if got != want {
		t.Errorf("BsAsset(..., loj) = %q, want %q", got, want)
	}
}

func TestPackagePath(t *testing.T) {
	if got, want := PackagePath("/root", "dep", false), filepath.Join("/root", "node_modules", "dep"); got != want {
		t.Errorf("PackagePath = %q, want %q", got, want)
	}
	if got, want := PackagePath("/root", "dep", true), "/root"; got != want {
		t.Errorf("PackagePath(root) = %q, want %q", got, want)
	}
}

func TestNamespaceSuffixOf(t *testing.T) {
	if s, ok := NamespaceSuffixOf("Foo-NS"); !ok || s != "NS" {
		t.Errorf("NamespaceSuffixOf(Foo-NS) = (%q, %v), want (NS, true)", s, ok)
	}
	if _, ok := NamespaceSuffixOf("Foo"); ok {
		t.Errorf("NamespaceSuffixOf(Foo) should report false")
	}
}

func TestFormatNamespacedModuleName(t *testing.T) {
	if got, want := FormatNamespacedModuleName("Foo-NS"), "NS.Foo"; got != want {
		t.Errorf("FormatNamespacedModuleName = %q, want %q", got, want)
	}
	if got, want := FormatNamespacedModuleName("Foo-@scope"), "scope.Foo"; got != want {
		t.Errorf("FormatNamespacedModuleName = %q, want %q", got, want)
	}
}
