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

package parse

import (
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/loomlang/loomc/internal/buildstate"
	"github.com/loomlang/loomc/internal/loomgraph"
)

type fakeRunner struct {
	stderr string
	ok     bool
	calls  int32

	mu       sync.Mutex
	gotArgs  [][]string
	workDirs []string
}

func (f *fakeRunner) Run(root, workDir string, args []string) (string, bool, error) {
	atomic.AddInt32(&f.calls, 1)
	f.mu.Lock()
	f.gotArgs = append(f.gotArgs, args)
	f.workDirs = append(f.workDirs, workDir)
	f.mu.Unlock()
	return f.stderr, f.ok, nil
}

func writeManifest(t *testing.T, dir, contents string) {
	t.Helper()
	if err := os.MkdirAll(dir, 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dir, loomgraph.ManifestFileName), []byte(contents), 0o644); err != nil {
		t.Fatal(err)
	}
}

func writeSource(t *testing.T, path string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, []byte(""), 0o644); err != nil {
		t.Fatal(err)
	}
}

func setupState(t *testing.T) (string, *buildstate.State) {
	t.Helper()
	root := t.TempDir()
	writeManifest(t, root, `{"name": "app", "namespace": "App"}`)
	writeSource(t, filepath.Join(root, "src", "Foo.lm"))

	g, err := loomgraph.Discover(root, nil)
	if err != nil {
		t.Fatal(err)
	}
	g.Packages["app"].Sources = []loomgraph.SourceDir{{Dir: "src"}}

	st := buildstate.New(root, "app", g)
	if err := st.ParsePackages(); err != nil {
		t.Fatal(err)
	}
	return root, st
}

func TestGenerateSuccessWritesArtifactAndClearsNothingYet(t *testing.T) {
	root, st := setupState(t)
	runner := &fakeRunner{ok: true}

	err := Generate(st, Options{Version: "1.0.0", Runner: runner})
	if err != nil {
		t.Fatalf("Generate failed: %v", err)
	}
	if runner.calls == 0 {
		t.Fatalf("expected parser to be invoked")
	}
	if st.Modules["Foo-App"].Impl.ParseState != buildstate.ParseSuccess {
		t.Errorf("expected ParseSuccess, got %v", st.Modules["Foo-App"].Impl.ParseState)
	}
	if _, err := os.Stat(filepath.Join(root, "lib", "bs", "src", "Foo.last")); err != nil {
		t.Errorf("expected the AST artifact to be written: %v", err)
	}
	if !st.Modules["Foo-App"].Impl.Dirty {
		t.Errorf("Generate should leave the Dirty flag for the reconciler to clear")
	}
}

func TestGenerateHardFailureAggregates(t *testing.T) {
	_, st := setupState(t)
	runner := &fakeRunner{stderr: "boom", ok: false}

	err := Generate(st, Options{Version: "1.0.0", Runner: runner})
	if err == nil {
		t.Fatal("expected Generate to report a failure")
	}
	if st.Modules["Foo-App"].Impl.ParseState != buildstate.ParseError {
		t.Errorf("expected ParseError, got %v", st.Modules["Foo-App"].Impl.ParseState)
	}
}

// The parser's cwd is the package's intermediate build dir (lib/bs), two
// levels below the package directory the source path is recorded relative
// to, so the argument handed to the parser must be an up-traversal from
// workDir, not the pkg-relative path stored on the module.
func TestGenerateSourceArgIsRelativeToWorkDir(t *testing.T) {
	root, st := setupState(t)
	runner := &fakeRunner{ok: true}

	if err := Generate(st, Options{Version: "1.0.0", Runner: runner}); err != nil {
		t.Fatalf("Generate failed: %v", err)
	}
	if len(runner.gotArgs) == 0 {
		t.Fatal("expected at least one parser invocation")
	}

	workDir := runner.workDirs[0]
	args := runner.gotArgs[0]
	sourceArg := args[len(args)-1]

	resolved := filepath.Join(workDir, filepath.FromSlash(sourceArg))
	want := filepath.Join(root, "src", "Foo.lm")
	if resolved != want {
		t.Errorf("source arg %q from workDir %q resolves to %q, want %q", sourceArg, workDir, resolved, want)
	}
}

func TestGenerateWarningOnlySurfacedForPinnedDep(t *testing.T) {
	_, st := setupState(t)
	st.Graph.Packages["app"].PinnedDep = false
	runner := &fakeRunner{stderr: "warning: unused", ok: true}

	if err := Generate(st, Options{Version: "1.0.0", Runner: runner}); err != nil {
		t.Fatalf("Generate failed: %v", err)
	}
	if st.Modules["Foo-App"].Impl.ParseState != buildstate.ParseSuccess {
		t.Errorf("non-pinned dep warning should be suppressed, got %v", st.Modules["Foo-App"].Impl.ParseState)
	}

	st.Modules["Foo-App"].Impl.Dirty = true
	st.Graph.Packages["app"].PinnedDep = true
	if err := Generate(st, Options{Version: "1.0.0", Runner: runner}); err != nil {
		t.Fatalf("Generate failed: %v", err)
	}
	if st.Modules["Foo-App"].Impl.ParseState != buildstate.ParseWarning {
		t.Errorf("pinned dep warning should surface, got %v", st.Modules["Foo-App"].Impl.ParseState)
	}
}
