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

package cmd

import (
	"fmt"
	"regexp"

	"github.com/spf13/cobra"

	"github.com/loomlang/loomc/internal/driver"
)

func newBuildCmd(c *Command) *cobra.Command {
	var filter string
	var noTiming bool
	var jobs int

	cmd := &cobra.Command{
		Use:   "build [path]",
		Short: "incrementally build a Loom project",
		Long: `build resolves the project's package graph, reconciles the previous
build's artifacts against the current source tree, and re-parses and
re-compiles only what changed, in dependency order.

If path is omitted, the current directory is used.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path := "."
			if len(args) == 1 {
				path = args[0]
			}

			var re *regexp.Regexp
			if filter != "" {
				var err error
				re, err = regexp.Compile(filter)
				if err != nil {
					return fmt.Errorf("loomc build: invalid --filter: %w", err)
				}
			}

			_, err := driver.Build(driver.Options{
				Path:     path,
				Filter:   re,
				NoTiming: noTiming,
				Jobs:     jobs,
				Out:      cmd.OutOrStdout(),
			})
			if err != nil {
				fmt.Fprintln(cmd.OutOrStdout(), err)
				return ErrPrintedError
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&filter, "filter", "", "only build source files whose path matches this regexp")
	cmd.Flags().BoolVar(&noTiming, "no-timing", false, "report every step's elapsed time as zero in the progress banner")
	cmd.Flags().IntVar(&jobs, "jobs", 0, "maximum number of modules to parse or compile concurrently (default: number of CPUs)")

	return cmd
}
