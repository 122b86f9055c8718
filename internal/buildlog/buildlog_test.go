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

package buildlog

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/loomlang/loomc/internal/layout"
)

func TestAppendWritesAndClosePersists(t *testing.T) {
	root := t.TempDir()
	l := New(root)
	l.Append("app", true, "error: something broke")
	l.Append("app", true, "another line")
	if err := l.Close(); err != nil {
		t.Fatal(err)
	}

	data, err := os.ReadFile(filepath.Join(layout.BsBuildPath(root, "app", true), fileName))
	if err != nil {
		t.Fatal(err)
	}
	got := string(data)
	if !strings.Contains(got, "something broke") || !strings.Contains(got, "another line") {
		t.Errorf("log missing expected content: %q", got)
	}
	if !strings.HasPrefix(got, "# build "+l.buildID.String()) {
		t.Errorf("expected log to start with the build ID header, got %q", got)
	}
}
