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

package build

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/stm32-tools/stm32-devkit/build"
	"github.com/stm32-tools/stm32-devkit/cli/arguments"
	"github.com/stm32-tools/stm32-devkit/cli/common"
	"github.com/stm32-tools/stm32-devkit/cli/feedback"
	flashcli "github.com/stm32-tools/stm32-devkit/cli/flash"
	"github.com/stm32-tools/stm32-devkit/errs"
)

var (
	commonFlags arguments.Flags
	doFlash     bool
)

// NewBuildCommand creates the `build` command.
func NewBuildCommand() *cobra.Command {
	command := &cobra.Command{
		Use:   "build",
		Short: "Builds the firmware.",
		Long:  "Validates the toolchain, drives the project's build system with the selected optimization profile and reports errors, warnings and memory usage.",
		Example: "" +
			"  " + os.Args[0] + " build\n" +
			"  " + os.Args[0] + " build --profile release --flash\n",
		Args: cobra.NoArgs,
		Run:  runBuild,
	}
	commonFlags.AddToCommand(command)
	command.Flags().BoolVar(&doFlash, "flash", false, "Flash the firmware after a successful build")
	return command
}

// NewCleanCommand creates the `clean` command.
func NewCleanCommand() *cobra.Command {
	command := &cobra.Command{
		Use:     "clean",
		Short:   "Removes the build artifacts.",
		Example: "  " + os.Args[0] + " clean",
		Args:    cobra.NoArgs,
		Run:     runClean,
	}
	commonFlags.AddToCommand(command)
	return command
}

func runBuild(cmd *cobra.Command, args []string) {
	engine := common.NewEngine(commonFlags.Project)
	system := engine.BuildSystem(commonFlags.BuildSystem)
	profile := engine.Profile(commonFlags.Profile)

	outcome, err := engine.Builder.Build(context.Background(), engine.Project, system, profile)
	if err != nil {
		switch errs.KindOf(err) {
		case errs.KindToolchainNotFound:
			feedback.Fatal(fmt.Sprintf("Cannot build: %s", err), feedback.ErrMissingTools)
		case errs.KindBuildConfig:
			feedback.Fatal(fmt.Sprintf("Cannot build: %s", err), feedback.ErrBadArgument)
		default:
			feedback.Fatal(fmt.Sprintf("Cannot build: %s", err), feedback.ErrGeneric)
		}
	}
	feedback.PrintResult(&buildResult{outcome: outcome})
	if !outcome.Success {
		feedback.Fatal("Build failed.", feedback.ErrGeneric)
	}
	if doFlash || engine.Config.AutoFlash {
		flashcli.Run(engine)
	}
}

func runClean(cmd *cobra.Command, args []string) {
	engine := common.NewEngine(commonFlags.Project)
	system := engine.BuildSystem(commonFlags.BuildSystem)
	if err := engine.Builder.Clean(context.Background(), engine.Project, system); err != nil {
		feedback.Fatal(fmt.Sprintf("Error during clean: %s", err), feedback.ErrGeneric)
	}
	fmt.Println("Build artifacts removed.")
}

type buildResult struct {
	outcome *build.Outcome
}

func (r *buildResult) Data() interface{} {
	return r.outcome
}

func (r *buildResult) String() string {
	var b strings.Builder
	if r.outcome.Success {
		fmt.Fprintf(&b, "Build succeeded in %s.", r.outcome.Duration.Round(10*time.Millisecond))
	} else {
		b.WriteString("Build failed.")
	}
	if m := r.outcome.Memory; m != nil {
		fmt.Fprintf(&b, "\nMemory usage: %s", m)
	}
	if n := len(r.outcome.Warnings); n > 0 {
		fmt.Fprintf(&b, "\n%d warning(s).", n)
	}
	for _, e := range r.outcome.Errors {
		fmt.Fprintf(&b, "\n%s", e)
	}
	return b.String()
}
