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

// Package compile implements the level-synchronous compile driver
// (spec.md §4.H): modules run as soon as every module they depend on has
// finished, on a shared internal/parwork.Queue, the same
// ready/in-flight/done schedule bsb's own compile phase uses (the queue
// feeds newly-ready dependents back into itself as dependencies finish,
// rather than compiling in fixed "waves").
package compile

import (
	"bytes"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"sync"

	"github.com/loomlang/loomc/internal/buildlog"
	"github.com/loomlang/loomc/internal/buildstate"
	"github.com/loomlang/loomc/internal/layout"
	"github.com/loomlang/loomc/internal/loomerrors"
	"github.com/loomlang/loomc/internal/loomgraph"
	"github.com/loomlang/loomc/internal/parwork"
)

// Runner invokes the external compiler binary for one module.
type Runner interface {
	Run(root, workDir string, args []string) (stderr string, ok bool, err error)
}

type execRunner struct{}

func (execRunner) Run(root, workDir string, args []string) (string, bool, error) {
	cmd := exec.Command(layout.CompilerPath(root, "loomc-compile"), args...)
	cmd.Dir = workDir
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	runErr := cmd.Run()
	if runErr != nil {
		if _, isExit := runErr.(*exec.ExitError); isExit {
			return stderr.String(), false, nil
		}
		return "", false, fmt.Errorf("compile: invoking loomc-compile: %w", runErr)
	}
	return stderr.String(), true, nil
}

// Options configures one Compile call.
type Options struct {
	Version  string
	Progress func()
	SetTotal func(int)
	Log      *buildlog.Logger
	Runner   Runner

	// Jobs bounds how many modules compile concurrently. <= 0 defaults
	// to runtime.GOMAXPROCS(0).
	Jobs int
}

// Result summarizes a compile pass for the CLI progress banner.
type Result struct {
	Errors   int
	Warnings int
	Compiled int
}

// Compile runs every module in st to completion, skipping (but still
// sequencing) modules whose CompileDirty flag is false. deletedModules
// names modules or namespaces removed since the last build (from
// internal/stale.Result.DeletedModules); any such name's namespace rollup
// module is forced dirty, since the generated rollup source changed even
// though no tracked source file did.
func Compile(st *buildstate.State, deletedModules map[string]struct{}, opts Options) (Result, error) {
	if opts.Runner == nil {
		opts.Runner = execRunner{}
	}
	for name := range deletedModules {
		if m := st.Modules[name]; m != nil && m.Kind == buildstate.MlMapKind {
			m.CompileDirty = true
		}
	}
	if opts.SetTotal != nil {
		opts.SetTotal(len(st.Modules))
	}

	remaining := map[string]int{}
	reverse := map[string][]string{}
	for name, m := range st.Modules {
		remaining[name] = len(m.Deps)
		for dep := range m.Deps {
			reverse[dep] = append(reverse[dep], name)
		}
	}

	var mu sync.Mutex
	done := map[string]struct{}{}
	errAgg := &loomerrors.Aggregate{}
	warnAgg := &loomerrors.Aggregate{}
	compiled := 0

	q := parwork.NewQueue(opts.Jobs)
	var schedule func(name string)
	schedule = func(name string) {
		q.Add(func() {
			runModule(st, name, opts, &mu, errAgg, warnAgg, &compiled)
			mu.Lock()
			done[name] = struct{}{}
			dependents := reverse[name]
			var readyNow []string
			for _, dependent := range dependents {
				remaining[dependent]--
				if remaining[dependent] == 0 {
					readyNow = append(readyNow, dependent)
				}
			}
			mu.Unlock()
			for _, dependent := range readyNow {
				schedule(dependent)
			}
		})
	}

	mu.Lock()
	var initial []string
	for name, r := range remaining {
		if r == 0 {
			initial = append(initial, name)
		}
	}
	mu.Unlock()
	for _, name := range initial {
		schedule(name)
	}
	<-q.Idle()

	// A module-level dependency cycle (possible only because
	// internal/depcollect infers edges heuristically rather than from a
	// real resolver) would otherwise leave some modules permanently at
	// remaining > 0. Compile them anyway, in arbitrary order, so a cycle
	// degrades to "ignore the cyclic edge" instead of hanging the build.
	mu.Lock()
	var stragglers []string
	for name := range st.Modules {
		if _, ok := done[name]; !ok {
			stragglers = append(stragglers, name)
		}
	}
	mu.Unlock()
	for _, name := range stragglers {
		runModule(st, name, opts, &mu, errAgg, warnAgg, &compiled)
	}

	result := Result{Errors: errAgg.Len(), Warnings: warnAgg.Len(), Compiled: compiled}
	if errAgg.Len() > 0 {
		return result, fmt.Errorf("compile: %d module(s) failed:\n%s", errAgg.Len(), errAgg.String())
	}
	return result, nil
}

func runModule(st *buildstate.State, name string, opts Options, mu *sync.Mutex, errAgg, warnAgg *loomerrors.Aggregate, compiled *int) {
	m := st.Modules[name]
	if m == nil {
		return
	}
	pkg := st.Package(m.Package)

	if opts.Progress != nil {
		opts.Progress()
	}

	if !m.CompileDirty {
		setCompileState(m, buildstate.CompileSkippedClean)
		return
	}

	if m.Kind == buildstate.MlMapKind {
		compileMlMap(st, pkg, m, opts, mu, errAgg, warnAgg, compiled)
		return
	}
	compileSourceFile(st, pkg, m, opts, mu, errAgg, warnAgg, compiled)
}

func compileSourceFile(st *buildstate.State, pkg *loomgraph.Package, m *buildstate.Module, opts Options, mu *sync.Mutex, errAgg, warnAgg *loomerrors.Aggregate, compiled *int) {
	workDir := layout.BsBuildPath(st.ProjectRoot, pkg.Name, pkg.IsRoot)
	if err := os.MkdirAll(workDir, 0o755); err != nil {
		setCompileState(m, buildstate.CompileError)
		logAndAggregate(mu, opts.Log, errAgg, pkg, err.Error())
		return
	}

	args := buildCompileArgs(pkg, opts.Version, m.Impl.Path)
	stderr, ok, err := opts.Runner.Run(st.ProjectRoot, workDir, args)
	if err != nil {
		setCompileState(m, buildstate.CompileError)
		logAndAggregate(mu, opts.Log, errAgg, pkg, err.Error())
		return
	}
	if !ok {
		setCompileState(m, buildstate.CompileError)
		logAndAggregate(mu, opts.Log, errAgg, pkg, stderr)
		return
	}
	if stderr != "" {
		setCompileState(m, buildstate.CompileWarning)
		logAndAggregate(mu, opts.Log, warnAgg, pkg, stderr)
	} else {
		setCompileState(m, buildstate.CompileSuccess)
	}

	if err := writeCompileArtifacts(st.ProjectRoot, pkg, m); err != nil {
		setCompileState(m, buildstate.CompileError)
		logAndAggregate(mu, opts.Log, errAgg, pkg, err.Error())
		return
	}
	mu.Lock()
	*compiled++
	mu.Unlock()
}

func compileMlMap(st *buildstate.State, pkg *loomgraph.Package, m *buildstate.Module, opts Options, mu *sync.Mutex, errAgg, warnAgg *loomerrors.Aggregate, compiled *int) {
	suffix, _ := pkg.Namespace.Suffix()
	workDir := layout.BsBuildPath(st.ProjectRoot, pkg.Name, pkg.IsRoot)
	if err := os.MkdirAll(workDir, 0o755); err != nil {
		setCompileState(m, buildstate.CompileError)
		logAndAggregate(mu, opts.Log, errAgg, pkg, err.Error())
		return
	}
	mlmapPath := layout.MlMapPath(st.ProjectRoot, pkg.Name, suffix, pkg.IsRoot)
	args := []string{"-loom-v", opts.Version, "-c-mlmap", "-o", layout.MlMapCompilePath(st.ProjectRoot, pkg.Name, suffix, pkg.IsRoot), mlmapPath}
	stderr, ok, err := opts.Runner.Run(st.ProjectRoot, workDir, args)
	if err != nil || !ok {
		setCompileState(m, buildstate.CompileError)
		text := stderr
		if err != nil {
			text = err.Error()
		}
		logAndAggregate(mu, opts.Log, errAgg, pkg, text)
		return
	}
	if stderr != "" {
		setCompileState(m, buildstate.CompileWarning)
		logAndAggregate(mu, opts.Log, warnAgg, pkg, stderr)
	} else {
		setCompileState(m, buildstate.CompileSuccess)
	}
	if err := os.WriteFile(layout.MlMapCompilePath(st.ProjectRoot, pkg.Name, suffix, pkg.IsRoot), []byte(suffix), 0o644); err != nil {
		setCompileState(m, buildstate.CompileError)
		logAndAggregate(mu, opts.Log, errAgg, pkg, err.Error())
		return
	}
	mu.Lock()
	*compiled++
	mu.Unlock()
}

func setCompileState(m *buildstate.Module, s buildstate.CompileState) {
	m.Impl.CompileState = s
	if m.Intf != nil {
		m.Intf.CompileState = s
	}
}

func logAndAggregate(mu *sync.Mutex, log *buildlog.Logger, agg *loomerrors.Aggregate, pkg *loomgraph.Package, text string) {
	if log != nil {
		log.Append(pkg.Name, pkg.IsRoot, text)
	}
	agg.Add(text)
}

// buildCompileArgs assembles the external compiler's argument list: no
// preprocessor flags here (those are a parse-time concern only), just the
// package's declared compiler flags and the fixed "-c -o <out> <source>"
// tail.
func buildCompileArgs(pkg *loomgraph.Package, version, sourcePath string) []string {
	var args []string
	args = append(args, "-loom-v", version)
	args = append(args, pkg.CompilerFlags...)
	args = append(args, "-c", "-o", layout.AssetBasename(sourcePath, pkg.Namespace), sourcePath)
	return args
}

// writeCompileArtifacts materializes the public-directory compile
// outputs (.loj, .lot, .loi and the emitted JS file always; .loti only
// when the module has an interface), since the external compiler
// invocation in this driver is a stand-in (Runner), not a real bsc/loomc
// binary that writes these itself.
func writeCompileArtifacts(root string, pkg *loomgraph.Package, m *buildstate.Module) error {
	write := func(ext string) error {
		path := layout.PublicAsset(m.Impl.Path, pkg.Name, pkg.Namespace, root, ext, pkg.IsRoot)
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return err
		}
		return os.WriteFile(path, []byte{}, 0o644)
	}
	for _, ext := range []string{layout.ExtLoj, layout.ExtLot} {
		if err := write(ext); err != nil {
			return fmt.Errorf("compile: writing %s: %w", ext, err)
		}
	}
	if m.HasInterface() {
		for _, ext := range []string{layout.ExtLoi, layout.ExtLoti} {
			if err := write(ext); err != nil {
				return fmt.Errorf("compile: writing %s: %w", ext, err)
			}
		}
	} else if err := write(layout.ExtLoi); err != nil {
		return fmt.Errorf("compile: writing %s: %w", layout.ExtLoi, err)
	}
	if err := write(pkg.OutputSuffix()); err != nil {
		return fmt.Errorf("compile: writing output: %w", err)
	}
	return nil
}
