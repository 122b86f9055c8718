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

// Package driver wires every build phase together into the two
// operations the CLI exposes, build and clean, and owns the seven-step
// progress banner (SPEC_FULL.md §9), a close port of rewatch's
// build.rs::build and build/clean.rs::clean.
package driver

import (
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/fatih/color"

	"github.com/loomlang/loomc/internal/buildlog"
	"github.com/loomlang/loomc/internal/buildstate"
	"github.com/loomlang/loomc/internal/compile"
	"github.com/loomlang/loomc/internal/depcollect"
	"github.com/loomlang/loomc/internal/layout"
	"github.com/loomlang/loomc/internal/loomgraph"
	"github.com/loomlang/loomc/internal/parse"
	"github.com/loomlang/loomc/internal/scan"
	"github.com/loomlang/loomc/internal/stale"
)

// Options configures a Build or Clean invocation.
type Options struct {
	Path     string
	Filter   *regexp.Regexp
	NoTiming bool
	Jobs     int
	Out      io.Writer

	ParseRunner   parse.Runner
	CompileRunner compile.Runner
	// VersionFunc returns the compiler version string threaded into
	// every parse/compile invocation (rewatch's get_version). Defaults
	// to invoking "loomc-compile -v".
	VersionFunc func(root string) (string, error)
}

func (o *Options) out() io.Writer {
	if o.Out != nil {
		return o.Out
	}
	return os.Stdout
}

func (o *Options) versionFunc() func(string) (string, error) {
	if o.VersionFunc != nil {
		return o.VersionFunc
	}
	return defaultVersion
}

func defaultVersion(root string) (string, error) {
	out, err := exec.Command(layout.CompilerPath(root, "loomc-compile"), "-v").Output()
	if err != nil {
		return "", fmt.Errorf("driver: querying compiler version: %w", err)
	}
	return strings.TrimSpace(string(out)), nil
}

// Result is what Build returns on success: the final state (for tests and
// callers that want module-level detail) and the summary counts the CLI
// prints.
type Result struct {
	State           *buildstate.State
	OrphanCount     int
	CompiledModules int
	Warnings        int
}

type step struct {
	label string
	start time.Time
}

func (o *Options) beginStep(n int, total int, verb, emoji string) *step {
	fmt.Fprintf(o.out(), "%s %s %s...", color.New(color.Bold, color.FgHiBlack).Sprintf("[%d/%d]", n, total), emoji, verb)
	return &step{label: verb, start: time.Now()}
}

func (o *Options) endStep(n int, total int, s *step, detail string, failed bool) {
	elapsed := time.Since(s.start)
	if o.NoTiming {
		elapsed = 0
	}
	mark := color.GreenString("✓")
	if failed {
		mark = color.RedString("✗")
	}
	fmt.Fprintf(o.out(), "\r%s %s %s %s in %.2fs\n",
		color.New(color.Bold, color.FgHiBlack).Sprintf("[%d/%d]", n, total), mark, s.label, detail, elapsed.Seconds())
}

// Build runs the full incremental build: discovery, source scan, prior-
// build reconciliation, parse, dependency collection, and compile, in
// that order (spec.md §2 lifecycle; build.rs's seven numbered steps).
func Build(opts Options) (*Result, error) {
	const totalSteps = 7
	root, err := filepath.Abs(opts.Path)
	if err != nil {
		return nil, fmt.Errorf("driver: resolving project path: %w", err)
	}

	s := opts.beginStep(1, totalSteps, "Building package tree", "🌳")
	graph, err := loomgraph.Discover(root, opts.Filter)
	if err != nil {
		opts.endStep(1, totalSteps, s, "", true)
		return nil, err
	}
	opts.endStep(1, totalSteps, s, "", false)

	version, err := opts.versionFunc()(root)
	if err != nil {
		return nil, err
	}

	s = opts.beginStep(2, totalSteps, "Finding source files", "🔍")
	st := buildstate.New(root, graph.RootName, graph)
	if err := st.ParsePackages(); err != nil {
		opts.endStep(2, totalSteps, s, "", true)
		return nil, err
	}
	opts.endStep(2, totalSteps, s, "", false)

	log := buildlog.New(root)

	s = opts.beginStep(3, totalSteps, "Cleaning up previous build", "🧹")
	snap, err := scan.Scan(root, graph)
	if err != nil {
		opts.endStep(3, totalSteps, s, "", true)
		return nil, err
	}
	reconciled, err := stale.Reconcile(st, snap)
	if err != nil {
		opts.endStep(3, totalSteps, s, "", true)
		return nil, err
	}
	opts.endStep(3, totalSteps, s, fmt.Sprintf("%d/%d", reconciled.OrphanCount, reconciled.TotalPriorSources), false)

	s = opts.beginStep(4, totalSteps, "Parsing", "📄")
	if err := parse.Generate(st, parse.Options{Version: version, Log: log, Runner: opts.ParseRunner, Jobs: opts.Jobs}); err != nil {
		opts.endStep(4, totalSteps, s, "", true)
		stale.CleanupAfterBuild(st)
		log.Close()
		return nil, err
	}
	opts.endStep(4, totalSteps, s, "", false)

	s = opts.beginStep(5, totalSteps, "Collecting deps", "🔗")
	if err := depcollect.Collect(st); err != nil {
		opts.endStep(5, totalSteps, s, "", true)
		stale.CleanupAfterBuild(st)
		log.Close()
		return nil, err
	}
	depcollect.PropagateDirty(st, reconciled.DeletedModules)
	opts.endStep(5, totalSteps, s, "", false)

	s = opts.beginStep(6, totalSteps, "Compiling", "⚔️")
	compileResult, compileErr := compile.Compile(st, reconciled.DeletedModules, compile.Options{
		Version: version, Log: log, Runner: opts.CompileRunner, Jobs: opts.Jobs,
	})
	opts.endStep(6, totalSteps, s, fmt.Sprintf("%d modules", compileResult.Compiled), compileErr != nil)

	stale.CleanupAfterBuild(st)
	log.Close()
	if compileErr != nil {
		return nil, compileErr
	}

	s = opts.beginStep(7, totalSteps, "Finished Compilation", "")
	opts.endStep(7, totalSteps, s, "", false)

	return &Result{
		State:           st,
		OrphanCount:     reconciled.OrphanCount,
		CompiledModules: compileResult.Compiled,
		Warnings:        compileResult.Warnings,
	}, nil
}

// Clean removes both build directories for every discovered package, then
// regenerates and removes every known source file's emitted JS output
// (rewatch build/clean.rs::clean).
func Clean(opts Options) error {
	root, err := filepath.Abs(opts.Path)
	if err != nil {
		return fmt.Errorf("driver: resolving project path: %w", err)
	}

	s := opts.beginStep(1, 2, "Cleaning compiler assets", "🧹")
	graph, err := loomgraph.Discover(root, opts.Filter)
	if err != nil {
		opts.endStep(1, 2, s, "", true)
		return err
	}
	for _, name := range graph.Names() {
		pkg := graph.Packages[name]
		os.RemoveAll(layout.PublicBuildPath(root, name, pkg.IsRoot))
		os.RemoveAll(layout.BsBuildPath(root, name, pkg.IsRoot))
	}
	opts.endStep(1, 2, s, "", false)

	s = opts.beginStep(2, 2, "Cleaning mjs files", "🧹")
	st := buildstate.New(root, graph.RootName, graph)
	if err := st.ParsePackages(); err != nil {
		opts.endStep(2, 2, s, "", true)
		return err
	}
	for _, m := range st.Modules {
		if m.Kind != buildstate.SourceKind {
			continue
		}
		pkg := st.Package(m.Package)
		os.Remove(layout.PublicAsset(m.Impl.Path, pkg.Name, pkg.Namespace, root, pkg.OutputSuffix(), pkg.IsRoot))
	}
	opts.endStep(2, 2, s, "", false)
	return nil
}
