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

// End-to-end coverage of spec.md §8's scenarios, against a fake parse/
// compile Runner so the suite never shells out to a real toolchain.
package driver

import (
	"bytes"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"

	"github.com/loomlang/loomc/internal/layout"
)

type fakeRunner struct {
	calls     int32
	failOn    string // basename (no ext) whose implementation parse/compile fails
	stderrFor string // basename whose invocation returns a non-fatal warning
}

func (r *fakeRunner) Run(root, workDir string, args []string) (string, bool, error) {
	atomic.AddInt32(&r.calls, 1)
	last := args[len(args)-1]
	base := layout.Basename(last)
	if r.failOn != "" && base == r.failOn {
		return "syntax error near end of file", false, nil
	}
	if r.stderrFor != "" && base == r.stderrFor {
		return "warning: unused variable", true, nil
	}
	return "", true, nil
}

func (r *fakeRunner) count() int { return int(atomic.LoadInt32(&r.calls)) }

func newProject(t *testing.T) string {
	t.Helper()
	root := t.TempDir()
	writeFile(t, filepath.Join(root, "loom.json"), `{"name": "app"}`)
	writeFile(t, filepath.Join(root, "A.lm"), "let a = 1")
	writeFile(t, filepath.Join(root, "B.lm"), "let b = A.a")
	return root
}

func writeFile(t *testing.T, path, contents string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, []byte(contents), 0o644); err != nil {
		t.Fatal(err)
	}
}

func noopVersion(string) (string, error) { return "1.0.0-test", nil }

// Scenario 1: fresh build, two modules, B depends on A.
func TestBuildFreshTwoModules(t *testing.T) {
	root := newProject(t)
	parseRunner := &fakeRunner{}
	compileRunner := &fakeRunner{}

	result, err := Build(Options{
		Path: root, Out: &bytes.Buffer{}, NoTiming: true,
		VersionFunc: noopVersion, ParseRunner: parseRunner, CompileRunner: compileRunner,
	})
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}
	if parseRunner.count() != 2 {
		t.Errorf("expected 2 parser invocations, got %d", parseRunner.count())
	}
	if compileRunner.count() != 2 {
		t.Errorf("expected 2 compiler invocations, got %d", compileRunner.count())
	}
	if result.CompiledModules != 2 {
		t.Errorf("expected compiled_count 2, got %d", result.CompiledModules)
	}
	for _, base := range []string{"A", "B"} {
		path := layout.PublicAsset(base+".lm", "app", layout.NoNamespace, root, "mjs", true)
		if _, err := os.Stat(path); err != nil {
			t.Errorf("expected output %s to exist: %v", path, err)
		}
	}
}

// Scenario 2: an immediate rebuild with no source changes is a no-op.
func TestBuildIncrementalNoOp(t *testing.T) {
	root := newProject(t)
	first := &fakeRunner{}
	if _, err := Build(Options{
		Path: root, Out: &bytes.Buffer{}, NoTiming: true,
		VersionFunc: noopVersion, ParseRunner: first, CompileRunner: first,
	}); err != nil {
		t.Fatalf("first build failed: %v", err)
	}

	second := &fakeRunner{}
	result, err := Build(Options{
		Path: root, Out: &bytes.Buffer{}, NoTiming: true,
		VersionFunc: noopVersion, ParseRunner: second, CompileRunner: second,
	})
	if err != nil {
		t.Fatalf("second build failed: %v", err)
	}
	if second.count() != 0 {
		t.Errorf("expected 0 invocations on a no-op rebuild, got %d", second.count())
	}
	if result.CompiledModules != 0 {
		t.Errorf("expected compiled_count 0 on a no-op rebuild, got %d", result.CompiledModules)
	}
}

// Scenario 3: touching a leaf module re-parses and recompiles it and its
// dependent, but does not re-parse anything untouched.
func TestBuildTouchedLeafCascades(t *testing.T) {
	root := newProject(t)
	first := &fakeRunner{}
	if _, err := Build(Options{
		Path: root, Out: &bytes.Buffer{}, NoTiming: true,
		VersionFunc: noopVersion, ParseRunner: first, CompileRunner: first,
	}); err != nil {
		t.Fatalf("first build failed: %v", err)
	}

	aPath := filepath.Join(root, "A.lm")
	writeFile(t, aPath, "let a = 2")

	secondParse := &fakeRunner{}
	secondCompile := &fakeRunner{}
	result, err := Build(Options{
		Path: root, Out: &bytes.Buffer{}, NoTiming: true,
		VersionFunc: noopVersion, ParseRunner: secondParse, CompileRunner: secondCompile,
	})
	if err != nil {
		t.Fatalf("second build failed: %v", err)
	}
	if secondParse.count() != 1 {
		t.Errorf("expected exactly 1 parser invocation (A only), got %d", secondParse.count())
	}
	if result.CompiledModules != 2 {
		t.Errorf("expected both A and B recompiled via cascade, got %d", result.CompiledModules)
	}
}

// Scenario 5: a parse error in a module fails the build without reaching
// the compile phase.
func TestBuildParseErrorStopsBeforeCompile(t *testing.T) {
	root := newProject(t)
	parseRunner := &fakeRunner{failOn: "B"}
	compileRunner := &fakeRunner{}

	_, err := Build(Options{
		Path: root, Out: &bytes.Buffer{}, NoTiming: true,
		VersionFunc: noopVersion, ParseRunner: parseRunner, CompileRunner: compileRunner,
	})
	if err == nil {
		t.Fatal("expected Build to fail on a parse error")
	}
	if compileRunner.count() != 0 {
		t.Errorf("expected no compiler invocations after a parse failure, got %d", compileRunner.count())
	}
}

// Scenario 6: a namespaced package produces one MlMap rollup module
// alongside its member modules.
func TestBuildNamespaceRollup(t *testing.T) {
	root := t.TempDir()
	writeFile(t, filepath.Join(root, "loom.json"), `{"name": "app", "namespace": "NS"}`)
	writeFile(t, filepath.Join(root, "X.lm"), "let x = 1")
	writeFile(t, filepath.Join(root, "Y.lm"), "let y = 2")

	runner := &fakeRunner{}
	result, err := Build(Options{
		Path: root, Out: &bytes.Buffer{}, NoTiming: true,
		VersionFunc: noopVersion, ParseRunner: runner, CompileRunner: runner,
	})
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}
	if _, ok := result.State.Modules["NS"]; !ok {
		t.Errorf("expected a rollup module named NS, got %v", result.State.Modules)
	}
	for _, base := range []string{"X", "Y"} {
		path := layout.PublicAsset(base+".lm", "app", result.State.Package("app").Namespace, root, "loj", true)
		if _, err := os.Stat(path); err != nil {
			t.Errorf("expected namespaced output %s to exist: %v", path, err)
		}
	}
}

// Scenario 2 for a namespaced package: an immediate rebuild must not
// recompile the namespace's MlMap rollup just because it ran last time.
func TestBuildNamespaceRollupIncrementalNoOp(t *testing.T) {
	root := t.TempDir()
	writeFile(t, filepath.Join(root, "loom.json"), `{"name": "app", "namespace": "NS"}`)
	writeFile(t, filepath.Join(root, "X.lm"), "let x = 1")
	writeFile(t, filepath.Join(root, "Y.lm"), "let y = 2")

	first := &fakeRunner{}
	if _, err := Build(Options{
		Path: root, Out: &bytes.Buffer{}, NoTiming: true,
		VersionFunc: noopVersion, ParseRunner: first, CompileRunner: first,
	}); err != nil {
		t.Fatalf("first build failed: %v", err)
	}

	second := &fakeRunner{}
	result, err := Build(Options{
		Path: root, Out: &bytes.Buffer{}, NoTiming: true,
		VersionFunc: noopVersion, ParseRunner: second, CompileRunner: second,
	})
	if err != nil {
		t.Fatalf("second build failed: %v", err)
	}
	if second.count() != 0 {
		t.Errorf("expected 0 invocations on a no-op rebuild, got %d", second.count())
	}
	if result.CompiledModules != 0 {
		t.Errorf("expected compiled_count 0 on a no-op rebuild (including the MlMap rollup), got %d", result.CompiledModules)
	}
}
