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

// Package parse implements the parallel parse driver (spec.md §4.F), a
// semantic port of original_source/src/build/parse.rs: generate_asts.
// Every module is parsed independently in its own goroutine (no module
// reads another's result), and a single goroutine folds the results back
// into buildstate.State afterwards — the same collect-then-merge shape
// parse.rs gets from rayon's par_iter().collect() followed by a plain
// for_each.
package parse

import (
	"bufio"
	"bytes"
	"crypto/sha256"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"sort"
	"strings"

	"github.com/loomlang/loomc/internal/buildlog"
	"github.com/loomlang/loomc/internal/buildstate"
	"github.com/loomlang/loomc/internal/layout"
	"github.com/loomlang/loomc/internal/loomerrors"
	"github.com/loomlang/loomc/internal/loomgraph"
	"github.com/loomlang/loomc/internal/parwork"
	"github.com/loomlang/loomc/internal/scan"
)

// bisectEnv is the environment variable gating ppx/preprocessor flags
// that mention "bisect" (parse.rs::filter_ppx_flags, generalized from
// BSC's BISECT_ENABLE to this tool's own namespace).
const bisectEnv = "LOOM_BISECT_ENABLE"

// Options configures one Generate call.
type Options struct {
	// Version is threaded into every parser invocation as "-loom-v
	// <version>", matching rewatch's res_to_ast_args "-bs-v" argument.
	Version string

	// Progress, if non-nil, is called once per module whose source
	// actually needed re-parsing (mirrors parse.rs's inc() callback,
	// used to size the CLI progress counter).
	Progress func()

	// Log receives every parse diagnostic, keyed by package.
	Log *buildlog.Logger

	// Runner invokes the external parser. Tests substitute a fake; the
	// zero value uses execRunner (the real loomc-parse binary).
	Runner Runner

	// Jobs bounds how many files parse concurrently. <= 0 defaults to
	// runtime.GOMAXPROCS(0) (internal/parwork.NewQueue's own default).
	Jobs int
}

// Runner invokes the external parser binary for one file and returns its
// stderr text and whether the invocation succeeded at the process level.
// A non-empty stderr with ok==true is a warning; ok==false is a hard
// parse error, mirroring parse.rs's distinction between a clean non-zero
// exit and a zero exit that merely printed to stderr.
type Runner interface {
	Run(root, workDir string, args []string) (stderr string, ok bool, err error)
}

type execRunner struct{}

func (execRunner) Run(root, workDir string, args []string) (string, bool, error) {
	cmd := exec.Command(layout.CompilerPath(root, "loomc-parse"), args...)
	cmd.Dir = workDir
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	runErr := cmd.Run()
	if runErr != nil {
		if _, isExit := runErr.(*exec.ExitError); isExit {
			return stderr.String(), false, nil
		}
		return "", false, fmt.Errorf("parse: invoking loomc-parse: %w", runErr)
	}
	return stderr.String(), true, nil
}

type result struct {
	name  string
	dirty bool

	implState  buildstate.ParseState
	implStderr string
	implErr    error

	hasIntf    bool
	intfState  buildstate.ParseState
	intfStderr string
	intfErr    error

	mlMapHash [32]byte
}

// Generate parses every dirty module in st, updating its ParseState,
// Dirty and CompileDirty fields in place. It returns a non-nil error (an
// *loomerrors.Aggregate-backed summary) only when at least one module
// failed outright; parse warnings never fail the build.
func Generate(st *buildstate.State, opts Options) error {
	if opts.Runner == nil {
		opts.Runner = execRunner{}
	}

	names := make([]string, 0, len(st.Modules))
	for name := range st.Modules {
		names = append(names, name)
	}
	sort.Strings(names) // deterministic iteration, not required for correctness

	results := make(chan result, len(names))
	q := parwork.NewQueue(opts.Jobs)
	for _, name := range names {
		name := name
		q.Add(func() {
			results <- runModule(st, name, opts)
		})
	}
	<-q.Idle()
	close(results)

	agg := &loomerrors.Aggregate{}
	hasFailure := false
	for r := range results {
		m := st.Modules[r.name]
		if m == nil {
			continue
		}
		pkg := st.Package(m.Package)
		if m.Kind == buildstate.MlMapKind {
			m.MlMapHash = r.mlMapHash
			m.MlMapDirty = r.dirty
			// Unlike a source module's CompileDirty (only ever raised here,
			// never lowered — stale.Reconcile owns clearing it from the AST
			// header comparison), an MlMap has no source/AST artifact for
			// the reconciler to visit, so this merge is the only place its
			// dirtiness is ever set. It must assign, not just raise, or an
			// unchanged rollup recompiles on every build.
			m.CompileDirty = r.dirty
			continue
		}
		if r.dirty {
			m.CompileDirty = true
		}

		if r.implErr != nil {
			m.Impl.ParseState = buildstate.ParseError
			hasFailure = true
			logAndAggregate(opts.Log, agg, pkg, r.implErr.Error())
		} else if r.implStderr != "" && pkg.PinnedDep {
			m.Impl.ParseState = buildstate.ParseWarning
			logAndAggregate(opts.Log, agg, pkg, r.implStderr)
		} else {
			m.Impl.ParseState = buildstate.ParseSuccess
		}

		if !r.hasIntf || m.Intf == nil {
			continue
		}
		if r.intfErr != nil {
			m.Intf.ParseState = buildstate.ParseError
			hasFailure = true
			logAndAggregate(opts.Log, agg, pkg, r.intfErr.Error())
		} else if r.intfStderr != "" && pkg.PinnedDep {
			// Matches parse.rs's interface branch exactly: a pinned
			// dependency's interface warning is recorded as ParseError,
			// not Warning, unlike the implementation branch above. This
			// asymmetry is in the original tool and is preserved rather
			// than "fixed" (DESIGN.md Open Question 1).
			m.Intf.ParseState = buildstate.ParseError
			logAndAggregate(opts.Log, agg, pkg, r.intfStderr)
		} else {
			m.Intf.ParseState = buildstate.ParseSuccess
		}
	}

	if hasFailure {
		return fmt.Errorf("parse: %d module(s) failed:\n%s", agg.Len(), agg.String())
	}
	return nil
}

func logAndAggregate(log *buildlog.Logger, agg *loomerrors.Aggregate, pkg *loomgraph.Package, text string) {
	if log != nil {
		log.Append(pkg.Name, pkg.IsRoot, text)
	}
	agg.Add(text)
}

func runModule(st *buildstate.State, name string, opts Options) result {
	m := st.Modules[name]
	pkg := st.Package(m.Package)

	if m.Kind == buildstate.MlMapKind {
		return runMlMap(st, pkg, name)
	}
	return runSourceFile(st, pkg, m, opts)
}

func runMlMap(st *buildstate.State, pkg *loomgraph.Package, moduleName string) result {
	suffix, _ := pkg.Namespace.Suffix()
	mlmapPath := layout.MlMapPath(st.ProjectRoot, pkg.Name, suffix, pkg.IsRoot)

	// regenerateMlMap fully rewrites mlmapPath every call, so hashing it
	// (not the separate compilePath, which this step never touches) across
	// the rewrite is what actually detects a namespace membership change.
	before, beforeOK := hashFile(mlmapPath)
	regenerateMlMap(st, pkg, mlmapPath)
	after, afterOK := hashFile(mlmapPath)

	dirty := true
	if beforeOK && afterOK && before == after {
		dirty = false
	}
	return result{name: moduleName, dirty: dirty, mlMapHash: after}
}

// regenerateMlMap writes the namespace rollup source listing every
// SourceKind module belonging to pkg, one sorted module name per line, so
// the hash comparison above has something to diff. It does not invoke
// loomc-compile; compiling the rollup is left to internal/compile.
// Namespace rollup generation isn't externally observable source code in
// this driver (it's bookkeeping, not a language feature), so this writes
// the rollup deterministically rather than shelling out.
func regenerateMlMap(st *buildstate.State, pkg *loomgraph.Package, mlmapPath string) {
	var members []string
	for _, m := range st.Modules {
		if m.Package == pkg.Name && m.Kind == buildstate.SourceKind {
			members = append(members, m.Name)
		}
	}
	sort.Strings(members)

	if err := os.MkdirAll(filepath.Dir(mlmapPath), 0o755); err != nil {
		return
	}
	f, err := os.Create(mlmapPath)
	if err != nil {
		return
	}
	defer f.Close()
	w := bufio.NewWriter(f)
	for _, name := range members {
		fmt.Fprintln(w, name)
	}
	w.Flush()
}

func hashFile(path string) ([32]byte, bool) {
	data, err := os.ReadFile(path)
	if err != nil {
		return [32]byte{}, false
	}
	return sha256.Sum256(data), true
}

func runSourceFile(st *buildstate.State, pkg *loomgraph.Package, m *buildstate.Module, opts Options) result {
	needsParse := m.Impl.Dirty || (m.Intf != nil && m.Intf.Dirty)
	r := result{name: m.Name, dirty: needsParse, hasIntf: m.Intf != nil}

	if !needsParse {
		return r
	}
	if opts.Progress != nil {
		opts.Progress()
	}

	r.implStderr, r.implErr = generateAST(st.ProjectRoot, pkg, m.Impl.Path, opts)
	if m.Intf != nil {
		r.intfStderr, r.intfErr = generateAST(st.ProjectRoot, pkg, m.Intf.Path, opts)
	}
	return r
}

// generateAST invokes the external parser on one source file, writing a
// .last/.ilast artifact carrying the scan.Header bookkeeping the
// reconciler needs next build.
func generateAST(root string, pkg *loomgraph.Package, sourcePath string, opts Options) (stderr string, err error) {
	workDir := layout.BsBuildPath(root, pkg.Name, pkg.IsRoot)
	if err := os.MkdirAll(workDir, 0o755); err != nil {
		return "", fmt.Errorf("parse: creating %s: %w", workDir, err)
	}

	ext := layout.ExtAST
	if layout.IsInterfaceFile(layout.Extension(sourcePath)) {
		ext = layout.ExtIAST
	}
	astPath := layout.BsAsset(sourcePath, pkg.Name, pkg.Namespace, root, ext, pkg.IsRoot)

	// sourcePath is relative to the package directory, but the parser runs
	// with workDir (the intermediate build dir, pkgDir/lib/bs) as its cwd —
	// passing sourcePath as-is would hand the parser a path that doesn't
	// resolve from there. Rewrite it as an up-traversal from workDir so the
	// parser embeds the same path shape spec §4.F calls for, while the
	// pkg-relative form above is still what gets recorded in the header and
	// reused by the scanner/reconciler.
	pkgDir := layout.PackagePath(root, pkg.Name, pkg.IsRoot)
	argPath, relErr := filepath.Rel(workDir, filepath.Join(pkgDir, filepath.FromSlash(sourcePath)))
	if relErr != nil {
		return "", fmt.Errorf("parse: resolving %s relative to %s: %w", sourcePath, workDir, relErr)
	}
	argPath = filepath.ToSlash(argPath)

	args := buildParseArgs(pkg, opts.Version, argPath, astPath)
	out, ok, runErr := opts.Runner.Run(root, workDir, args)
	if runErr != nil {
		return "", runErr
	}
	if !ok {
		return out, fmt.Errorf("parse: %s: %s", sourcePath, out)
	}

	namespace, _ := pkg.Namespace.Suffix()
	header := scan.Header{
		ModuleName:  layout.ModuleNameFromPath(sourcePath, pkg.Namespace),
		PackageName: pkg.Name,
		Namespace:   namespace,
		IsRoot:      pkg.IsRoot,
		Suffix:      pkg.OutputSuffix(),
		SourcePath:  filepath.ToSlash(sourcePath),
	}
	if err := writeASTArtifact(astPath, header); err != nil {
		return out, err
	}
	return out, nil
}

func writeASTArtifact(path string, header scan.Header) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("parse: creating %s: %w", filepath.Dir(path), err)
	}
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("parse: creating %s: %w", path, err)
	}
	defer f.Close()
	return scan.WriteHeader(bufio.NewWriter(f), header, "()")
}

// buildParseArgs assembles the external parser's argument list: version
// flag, filtered preprocessor flags, declared compiler flags, then the
// fixed "-ast -o <out> <source>" tail (spec.md §6).
func buildParseArgs(pkg *loomgraph.Package, version, sourcePath, astPath string) []string {
	var args []string
	args = append(args, "-loom-v", version)
	args = append(args, filterPreprocessFlags(pkg.PreprocessFlags)...)
	args = append(args, pkg.CompilerFlags...)
	args = append(args, "-ast", "-o", astPath, sourcePath)
	return args
}

// filterPreprocessFlags drops any flag mentioning "bisect" unless
// LOOM_BISECT_ENABLE is set, exactly matching parse.rs::filter_ppx_flags.
func filterPreprocessFlags(flags []string) []string {
	if _, enabled := os.LookupEnv(bisectEnv); enabled {
		return flags
	}
	out := make([]string, 0, len(flags))
	for _, f := range flags {
		if !strings.Contains(f, "bisect") {
			out = append(out, f)
		}
	}
	return out
}
