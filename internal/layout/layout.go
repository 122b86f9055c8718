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

// Package layout maps packages, source files and artifact kinds onto the
// deterministic directory and filename scheme the rest of the build driver
// relies on. Every function here is pure: given the same arguments it always
// returns the same path, and no function touches the filesystem.
package layout

import (
	"path"
	"path/filepath"
	"runtime"
	"strings"
	"unicode"
)

// Public and intermediate build directory names, relative to a package root.
const (
	PublicDirName = "lib/js"
	BsDirName     = "lib/bs"
)

// AST/IAST/compiler-artifact extensions recognized by the scanner and
// reconciler. These are the Loom-native equivalents of ReScript's
// .ast/.iast/.cmi/.cmj/.cmt/.cmti.
const (
	ExtAST  = "last"  // parsed implementation
	ExtIAST = "ilast" // parsed interface
	ExtLoi  = "loi"   // interface digest, keyed like .cmi
	ExtLoj  = "loj"   // compiled implementation, like .cmj
	ExtLot  = "lot"   // typed tree, like .cmt
	ExtLoti = "loti"  // typed tree for interfaces, like .cmti
)

// CompileAssetExtensions is the set of extensions deleted together whenever a
// module's compile output is invalidated.
var CompileAssetExtensions = [...]string{ExtLoj, ExtLoi, ExtLot, ExtLoti}

// Source file extensions. Unlike ReScript (res/ml/re + resi/mli/rei) Loom
// has exactly one implementation and one interface extension.
const (
	ImplExt = "lm"
	IntfExt = "lmi"
)

func IsImplementationFile(ext string) bool { return ext == ImplExt }
func IsInterfaceFile(ext string) bool      { return ext == IntfExt }
func IsSourceFile(ext string) bool         { return IsImplementationFile(ext) || IsInterfaceFile(ext) }
func IsInterfaceASTFile(name string) bool  { return strings.HasSuffix(name, "."+ExtIAST) }

// NamespaceKind discriminates the three namespace shapes a package can have.
type NamespaceKind int

const (
	NoNamespaceKind NamespaceKind = iota
	NamedKind
	NamedWithEntryKind
)

// Namespace describes how a package's modules are re-exported under a
// synthesized rollup module. The zero value is NoNamespace.
type Namespace struct {
	Kind  NamespaceKind
	Name  string // namespace identifier, e.g. "MyPkg"
	Entry string // basename promoted to the namespace itself (NamedWithEntryKind only)
}

// NoNamespace is the zero-value namespace: modules are not suffixed or
// rolled up.
var NoNamespace = Namespace{Kind: NoNamespaceKind}

// Named returns a namespace that re-exports every module in the package
// under name, suffixing each module's artifact basename with "-name".
func Named(name string) Namespace { return Namespace{Kind: NamedKind, Name: name} }

// NamedWithEntry is like Named, except the module whose basename equals
// entry is promoted to be the namespace itself rather than nested under it.
func NamedWithEntry(name, entry string) Namespace {
	return Namespace{Kind: NamedWithEntryKind, Name: name, Entry: entry}
}

// Suffix returns the literal namespace suffix text, and whether this
// namespace produces one at all (false for NoNamespace).
func (n Namespace) Suffix() (string, bool) {
	if n.Kind == NoNamespaceKind {
		return "", false
	}
	return n.Name, true
}

// HasMlMap reports whether this namespace requires a synthesized rollup
// module ("MlMap" in the spec's terminology).
func (n Namespace) HasMlMap() bool { return n.Kind != NoNamespaceKind }

// Capitalize uppercases the first rune of s, leaving the rest untouched.
func Capitalize(s string) string {
	if s == "" {
		return s
	}
	r := []rune(s)
	r[0] = unicode.ToUpper(r[0])
	return string(r)
}

// addSuffix appends "-<namespace>" to base, unless the namespace is absent
// or base is the namespace's promoted entry point.
func addSuffix(base string, ns Namespace) string {
	switch ns.Kind {
	case NamedWithEntryKind:
		if ns.Entry == base {
			return base
		}
		return base + "-" + ns.Name
	case NamedKind:
		return base + "-" + ns.Name
	default:
		return base
	}
}

// AssetBasename returns the un-capitalized compiler-asset basename for a
// source file: the file's basename, with the namespace suffix applied.
// Compiler assets are named from this (e.g. "foo-MyPkg.loj"), but the
// corresponding module name is capitalized (see ModuleNameFromPath).
func AssetBasename(sourcePath string, ns Namespace) string {
	return addSuffix(Basename(sourcePath), ns)
}

// ModuleNameFromPath returns the qualified module name for a source file:
// its capitalized basename, with any namespace suffix applied.
func ModuleNameFromPath(sourcePath string, ns Namespace) string {
	return Capitalize(AssetBasename(sourcePath, ns))
}

// ModuleNameWithNamespace capitalizes and namespace-suffixes an already
// basename-derived module name (used when the caller already stripped the
// extension off, e.g. when re-deriving a name from an AST header).
func ModuleNameWithNamespace(moduleName string, ns Namespace) string {
	return Capitalize(addSuffix(moduleName, ns))
}

// Basename returns the file stem (no directory, no extension).
func Basename(p string) string {
	base := path.Base(filepath.ToSlash(p))
	if i := strings.LastIndex(base, "."); i > 0 {
		base = base[:i]
	}
	return base
}

// Extension returns the file extension without the leading dot.
func Extension(p string) string {
	ext := filepath.Ext(p)
	return strings.TrimPrefix(ext, ".")
}

// ChangeExtension replaces p's extension with newExt (no leading dot).
func ChangeExtension(p, newExt string) string {
	ext := filepath.Ext(p)
	return strings.TrimSuffix(p, ext) + "." + newExt
}

// PackagePath returns the directory a package's sources live in.
func PackagePath(root, packageName string, isRoot bool) string {
	if isRoot {
		return root
	}
	return filepath.Join(root, "node_modules", packageName)
}

// PublicBuildPath returns a package's public build directory, where the
// real .loi/.loj/.lot/.loti and emitted JS files are written.
func PublicBuildPath(root, packageName string, isRoot bool) string {
	return filepath.Join(PackagePath(root, packageName, isRoot), filepath.FromSlash(PublicDirName))
}

// BsBuildPath returns a package's intermediate build directory, where AST
// artifacts and mirrored bookkeeping copies of compile artifacts live.
func BsBuildPath(root, packageName string, isRoot bool) string {
	return filepath.Join(PackagePath(root, packageName, isRoot), filepath.FromSlash(BsDirName))
}

// NodeModulesPath returns the project's dependency directory.
func NodeModulesPath(root string) string {
	return filepath.Join(root, "node_modules")
}

// platformDir mirrors the original implementation's OS+arch switch for
// locating vendored native binaries.
func platformDir() string {
	switch runtime.GOOS {
	case "darwin":
		if runtime.GOARCH == "arm64" {
			return "darwinarm64"
		}
		return "darwin"
	case "linux":
		return "linux"
	case "windows":
		return "win32"
	default:
		panic("unsupported architecture: " + runtime.GOOS + "/" + runtime.GOARCH)
	}
}

// CompilerPath returns the absolute path to one of the two external
// toolchain binaries ("loomc-parse" or "loomc-compile") vendored under the
// project's node_modules directory.
func CompilerPath(root, name string) string {
	return filepath.Join(NodeModulesPath(root), ".bin", "loom", platformDir(), name)
}

// PublicAsset returns the path of a non-AST compiler asset (.loi, .loj,
// .lot, .loti, or the JS suffix) in the public build directory.
func PublicAsset(sourcePath, packageName string, ns Namespace, root, ext string, isRoot bool) string {
	name := AssetBasename(sourcePath, ns) + "." + ext
	return filepath.Join(PublicBuildPath(root, packageName, isRoot), name)
}

// BsAsset returns the path of an artifact mirrored into the intermediate
// build directory, under the source file's own relative subdirectory.
// AST and IAST artifacts always use NoNamespace for their filename
// regardless of the module's namespace — this asymmetry must be preserved
// bit-for-bit, since the scanner and reconciler rely on it to find files.
func BsAsset(sourcePath, packageName string, ns Namespace, root, ext string, isRoot bool) string {
	effectiveNs := ns
	if ext == ExtAST || ext == ExtIAST {
		effectiveNs = NoNamespace
	}
	dir := filepath.Dir(filepath.FromSlash(sourcePath))
	name := AssetBasename(sourcePath, effectiveNs) + "." + ext
	return filepath.Join(BsBuildPath(root, packageName, isRoot), dir, name)
}

// ASTPath returns the .last path for an implementation source file.
func ASTPath(sourcePath, packageName, root string, isRoot bool) string {
	return BsAsset(sourcePath, packageName, NoNamespace, root, ExtAST, isRoot)
}

// IASTPath returns the .ilast path for an interface source file.
func IASTPath(sourcePath, packageName, root string, isRoot bool) string {
	return BsAsset(sourcePath, packageName, NoNamespace, root, ExtIAST, isRoot)
}

// MlMapPath returns the path of a namespace's generated rollup source file.
func MlMapPath(root, packageName, namespaceSuffix string, isRoot bool) string {
	return filepath.Join(PublicBuildPath(root, packageName, isRoot), namespaceSuffix+".lmmap")
}

// MlMapCompilePath returns the path of the compiled digest of a namespace's
// rollup module, used to detect whether the rollup's membership changed.
func MlMapCompilePath(root, packageName, namespaceSuffix string, isRoot bool) string {
	return filepath.Join(PublicBuildPath(root, packageName, isRoot), namespaceSuffix+"."+ExtLoi)
}

// NamespaceSuffixOf extracts the namespace suffix from a qualified module
// name of the form "Base-Namespace", if any.
func NamespaceSuffixOf(moduleName string) (string, bool) {
	parts := strings.SplitN(moduleName, "-", 2)
	if len(parts) != 2 {
		return "", false
	}
	return parts[1], true
}

// FormatNamespacedModuleName renders "Base-Namespace" as "Namespace.Base"
// for human-readable diagnostics, matching the original tool's "@Namespace"
// stripping behavior for namespaces named via their package's "@scope".
func FormatNamespacedModuleName(moduleName string) string {
	suffix, ok := NamespaceSuffixOf(moduleName)
	if !ok {
		return moduleName
	}
	base := strings.SplitN(moduleName, "-", 2)[0]
	return strings.TrimPrefix(suffix, "@") + "." + base
}
