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

// Package buildlog writes the per-package build log every parse and
// compile failure is appended to (spec.md §4.M), the Go equivalent of
// rewatch's logs module: each package gets one log file under its
// intermediate build directory, truncated when the package's first
// diagnostic of a build is appended, and every later parse or compile
// diagnostic for that package is appended to it as it happens. A package
// with no diagnostics in a build keeps whatever log file it already had.
//
// Only the call sites of rewatch's logs::initialize/append/finalize
// survive in the retrieval pack, not its source, so the on-disk format
// here (a single UTF-8 text file, one diagnostic per Append call) is this
// driver's own, not a port.
package buildlog

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/google/uuid"

	"github.com/loomlang/loomc/internal/layout"
)

const fileName = "build.log"

// Logger owns one append-only file handle per package for the duration of
// a build.
type Logger struct {
	root    string
	buildID uuid.UUID

	mu    sync.Mutex
	files map[string]*os.File
}

// New creates a Logger. Append calls Initialize itself on a package's
// first diagnostic; call Close when the build finishes.
func New(root string) *Logger {
	return &Logger{root: root, buildID: uuid.New(), files: map[string]*os.File{}}
}

// Initialize truncates (or creates) the log file for packageName, so a
// rebuild doesn't append to stale diagnostics from a previous invocation.
// The file's first line records this Logger's build ID, so a log file
// left open by a killed prior process (observable on platforms where a
// truncate can't fully clear it) is unambiguously distinguishable from
// the current build's output.
func (l *Logger) Initialize(packageName string, isRoot bool) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	dir := layout.BsBuildPath(l.root, packageName, isRoot)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("buildlog: creating %s: %w", dir, err)
	}
	f, err := os.Create(filepath.Join(dir, fileName))
	if err != nil {
		return fmt.Errorf("buildlog: creating log for %q: %w", packageName, err)
	}
	fmt.Fprintf(f, "# build %s\n", l.buildID)
	l.files[packageName] = f
	return nil
}

// Append writes text to packageName's log, initializing it first if this
// is the first diagnostic seen for that package this build.
func (l *Logger) Append(packageName string, isRoot bool, text string) {
	l.mu.Lock()
	f := l.files[packageName]
	l.mu.Unlock()

	if f == nil {
		if err := l.Initialize(packageName, isRoot); err != nil {
			return
		}
		l.mu.Lock()
		f = l.files[packageName]
		l.mu.Unlock()
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	fmt.Fprint(f, text)
	if len(text) == 0 || text[len(text)-1] != '\n' {
		fmt.Fprintln(f)
	}
}

// Close flushes and closes every open log file.
func (l *Logger) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	var first error
	for name, f := range l.files {
		if err := f.Close(); err != nil && first == nil {
			first = fmt.Errorf("buildlog: closing log for %q: %w", name, err)
		}
	}
	return first
}
