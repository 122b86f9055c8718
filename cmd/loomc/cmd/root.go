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

// Package cmd implements the loomc command line tool: build and clean,
// the two operations internal/driver exposes.
package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

// ErrPrintedError is returned by RunE implementations that have already
// printed their own diagnostic, so Main doesn't print it again.
var ErrPrintedError = fmt.Errorf("loomc: error already printed")

// Command wraps a cobra.Command the same way cmd/cue/cmd's Command does,
// so subcommands can share the root's output streams without each one
// redeclaring them.
type Command struct {
	*cobra.Command
	root *cobra.Command
}

// New creates the top-level "loomc" command and registers its
// subcommands.
func New(args []string) *Command {
	root := &cobra.Command{
		Use:           "loomc",
		Short:         "loomc builds and cleans Loom projects incrementally",
		SilenceErrors: true,
		SilenceUsage:  true,
	}

	c := &Command{Command: root, root: root}

	root.AddCommand(newBuildCmd(c))
	root.AddCommand(newCleanCmd(c))

	root.SetArgs(args)
	return c
}

// Main runs loomc and returns the process exit code.
func Main() int {
	c := New(os.Args[1:])
	if err := c.Execute(); err != nil {
		if err != ErrPrintedError {
			fmt.Fprintln(os.Stderr, err)
		}
		return 1
	}
	return 0
}
