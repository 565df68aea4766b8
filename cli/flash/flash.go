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

package flash

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/stm32-tools/stm32-devkit/cli/arguments"
	"github.com/stm32-tools/stm32-devkit/cli/common"
	"github.com/stm32-tools/stm32-devkit/cli/feedback"
	"github.com/stm32-tools/stm32-devkit/errs"
	"github.com/stm32-tools/stm32-devkit/flash"
)

var commonFlags arguments.Flags

// NewCommand creates the `flash` command tree.
func NewCommand() *cobra.Command {
	command := &cobra.Command{
		Use:     "flash",
		Short:   "Flashes the built firmware to the connected programmer.",
		Long:    "Detects the attached debug probe and programs the firmware from the build directory, via OpenOCD or the SEGGER J-Link commander.",
		Example: "  " + os.Args[0] + " flash",
		Args:    cobra.NoArgs,
		Run:     runFlash,
	}
	commonFlags.AddToCommand(command)
	command.AddCommand(newProbeCommand())
	command.AddCommand(newDisconnectCommand())
	return command
}

func runFlash(cmd *cobra.Command, args []string) {
	engine := common.NewEngine(commonFlags.Project)
	Run(engine)
}

// Run flashes the project's firmware and reports the outcome. It is shared
// with the build command's auto-flash path.
func Run(engine *common.Engine) {
	dev := engine.Device()
	outcome, err := engine.Flasher.Flash(context.Background(), engine.Project, &dev)
	if err != nil {
		code := feedback.ErrGeneric
		if errs.KindOf(err) == errs.KindToolchainNotFound {
			code = feedback.ErrMissingTools
		}
		feedback.Fatal(fmt.Sprintf("Error during flashing: %s", err), code)
	}
	feedback.PrintResult(&flashResult{outcome: outcome})
	if !outcome.Success {
		feedback.Fatal("Flashing failed.", feedback.ErrGeneric)
	}
}

type flashResult struct {
	outcome *flash.Outcome
}

func (r *flashResult) Data() interface{} {
	return r.outcome
}

func (r *flashResult) String() string {
	if r.outcome.Success {
		return fmt.Sprintf("Flashing completed in %s.", r.outcome.Duration.Round(10*time.Millisecond))
	}
	s := "Flashing failed"
	if r.outcome.Message != "" {
		s += ": " + r.outcome.Message
	}
	if out := strings.TrimSpace(r.outcome.Output); out != "" {
		s += "\n" + out
	}
	return s
}

func newProbeCommand() *cobra.Command {
	command := &cobra.Command{
		Use:     "probe",
		Short:   "Tests the connection to the target without programming it.",
		Example: "  " + os.Args[0] + " flash probe",
		Args:    cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			engine := common.NewEngine(commonFlags.Project)
			dev := engine.Device()
			if !engine.Flasher.TestConnection(context.Background(), &dev) {
				feedback.Fatal("Target is not reachable.", feedback.ErrGeneric)
			}
			fmt.Println("Target is reachable.")
		},
	}
	return command
}

func newDisconnectCommand() *cobra.Command {
	return &cobra.Command{
		Use:     "disconnect",
		Short:   "Terminates any stray flashing daemon holding the probe.",
		Example: "  " + os.Args[0] + " flash disconnect",
		Args:    cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			engine := common.NewEngine(commonFlags.Project)
			engine.Flasher.Disconnect()
			fmt.Println("Done.")
		},
	}
}
