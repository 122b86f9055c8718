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

	"github.com/spf13/cobra"

	"github.com/loomlang/loomc/internal/driver"
)

func newCleanCmd(c *Command) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "clean [path]",
		Short: "remove every build artifact for a Loom project",
		Long: `clean removes both build directories (lib/bs and lib/js) for every
package discovered from path, then removes the emitted JS output for
every known source file.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path := "."
			if len(args) == 1 {
				path = args[0]
			}
			if err := driver.Clean(driver.Options{Path: path, Out: cmd.OutOrStdout()}); err != nil {
				fmt.Fprintln(cmd.ErrOrStderr(), err)
				return ErrPrintedError
			}
			return nil
		},
	}
	return cmd
}
