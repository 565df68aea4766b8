/*
	stm32-devkit
	Copyright (c) 2024 stm32-devkit contributors.

	This program is free software: you can redistribute it and/or modify
	it under the terms of the GNU Affero General Public License as published
	by the Free Software Foundation, either version 3 of the License, or
	(at your option) any later version.

	This program is distributed in the hope that it will be useful,
	but WITHOUT ANY WARRANTY; without even the implied warranty of
	MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
	GNU Affero General Public License for more details.

	You should have received a copy of the GNU Affero General Public License
	along with this program.  If not, see <https://www.gnu.org/licenses/>.
*/

package toolchain

import (
	"context"
	"fmt"
	"os"
	"runtime"
	"strings"

	"github.com/spf13/cobra"

	"github.com/stm32-tools/stm32-devkit/cli/arguments"
	"github.com/stm32-tools/stm32-devkit/cli/common"
	"github.com/stm32-tools/stm32-devkit/cli/feedback"
	"github.com/stm32-tools/stm32-devkit/toolchain"
)

var commonFlags arguments.Flags

// NewCommand creates the `toolchain` command tree.
func NewCommand() *cobra.Command {
	toolchainCmd := &cobra.Command{
		Use:   "toolchain",
		Short: "Inspects the embedded toolchain installation.",
	}
	toolchainCmd.AddCommand(newCheckCommand())
	toolchainCmd.AddCommand(newInstructionsCommand())
	return toolchainCmd
}

func newCheckCommand() *cobra.Command {
	command := &cobra.Command{
		Use:     "check",
		Short:   "Detects the installed toolchain and validates it.",
		Long:    "Locates compiler, debugger, flashing daemon and build generators on this machine and reports their paths and versions.",
		Example: "  " + os.Args[0] + " toolchain check",
		Args:    cobra.NoArgs,
		Run:     runCheck,
	}
	commonFlags.AddToCommand(command)
	return command
}

func runCheck(cmd *cobra.Command, args []string) {
	engine := common.NewEngine(commonFlags.Project)
	snapshot := engine.Toolchain.Detect(context.Background())
	ok, missing := snapshot.Validate()
	feedback.PrintResult(&checkResult{snapshot: snapshot, satisfied: ok, missing: missing})
	if !ok {
		feedback.Fatal("The toolchain is incomplete.", feedback.ErrMissingTools)
	}
}

type checkResult struct {
	snapshot  *toolchain.Snapshot
	satisfied bool
	missing   []string
}

func (r *checkResult) Data() interface{} {
	return map[string]interface{}{
		"tools":     r.snapshot.Tools,
		"satisfied": r.satisfied,
		"missing":   r.missing,
	}
}

func (r *checkResult) String() string {
	var b strings.Builder
	b.WriteString("Toolchain:\n")
	b.WriteString(r.snapshot.Report())
	if !r.satisfied {
		b.WriteString("\n\nMissing tools:\n")
		for _, name := range r.missing {
			fmt.Fprintf(&b, "  %s: %s\n", name, toolchain.InstallInstructions(name, runtime.GOOS))
		}
	}
	return strings.TrimRight(b.String(), "\n")
}

func newInstructionsCommand() *cobra.Command {
	return &cobra.Command{
		Use:     "instructions TOOL",
		Short:   "Shows how to install a toolchain program.",
		Example: "  " + os.Args[0] + " toolchain instructions openocd",
		Args:    cobra.ExactArgs(1),
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Println(toolchain.InstallInstructions(args[0], runtime.GOOS))
		},
	}
}
