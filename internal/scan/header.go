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

// Package scan implements the prior-build scanner (spec.md §4.D): before a
// build starts, it walks the previous build's .last/.ilast and .loi/.lot
// artifacts to recover enough bookkeeping to decide what is still fresh.
//
// The external loomc-parse binary's AST wire format is out of scope for
// this driver (spec.md Non-goals): we don't parse it, only invoke the
// binary and react to its exit code. That leaves no way to recover a
// parsed file's originating source path, module name and package from the
// artifact alone, which the reconciler needs. This package and
// internal/parse agree on a small textual header, written as the first
// line of every .last/.ilast file, that carries exactly that bookkeeping.
// It is our own convention, not the real compiler's format.
package scan

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"strings"
)

// headerPrefix marks the bookkeeping line within an otherwise-opaque AST
// artifact file.
const headerPrefix = "//loom-ast-header "

// Header is the bookkeeping record every .last/.ilast file carries on its
// first line.
type Header struct {
	ModuleName  string `json:"module"`
	PackageName string `json:"package"`
	Namespace   string `json:"namespace,omitempty"`
	IsRoot      bool   `json:"is_root"`
	Suffix      string `json:"suffix"`
	SourcePath  string `json:"source"`
}

// WriteHeader serializes h as the first line of an AST artifact, followed
// by body (the opaque placeholder standing in for the real parser's
// binary tree).
func WriteHeader(w *bufio.Writer, h Header, body string) error {
	data, err := json.Marshal(h)
	if err != nil {
		return fmt.Errorf("scan: encoding ast header: %w", err)
	}
	if _, err := w.WriteString(headerPrefix); err != nil {
		return err
	}
	if _, err := w.Write(data); err != nil {
		return err
	}
	if err := w.WriteByte('\n'); err != nil {
		return err
	}
	if body != "" {
		if _, err := w.WriteString(body); err != nil {
			return err
		}
	}
	return w.Flush()
}

// ReadHeader reads back the bookkeeping line written by WriteHeader.
func ReadHeader(path string) (*Header, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	sc := bufio.NewScanner(f)
	if !sc.Scan() {
		if err := sc.Err(); err != nil {
			return nil, err
		}
		return nil, fmt.Errorf("scan: %s: empty ast artifact", path)
	}
	line := sc.Text()
	if !strings.HasPrefix(line, headerPrefix) {
		return nil, fmt.Errorf("scan: %s: missing ast header", path)
	}
	var h Header
	if err := json.Unmarshal([]byte(strings.TrimPrefix(line, headerPrefix)), &h); err != nil {
		return nil, fmt.Errorf("scan: %s: decoding ast header: %w", path, err)
	}
	return &h, nil
}
