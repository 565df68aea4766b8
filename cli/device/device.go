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

package device

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/stm32-tools/stm32-devkit/cli/arguments"
	"github.com/stm32-tools/stm32-devkit/cli/common"
	"github.com/stm32-tools/stm32-devkit/cli/feedback"
	"github.com/stm32-tools/stm32-devkit/deviceinfo"
)

var (
	commonFlags arguments.Flags
	fetchSVD    bool
)

// NewCommand creates the `device` command.
func NewCommand() *cobra.Command {
	command := &cobra.Command{
		Use:     "device",
		Short:   "Identifies the target microcontroller.",
		Long:    "Infers the target device from the project's CubeMX file, build-system file or linker script, and derives family, memory sizes and the debug target configuration.",
		Example: "  " + os.Args[0] + " device --svd",
		Args:    cobra.NoArgs,
		Run:     runDevice,
	}
	commonFlags.AddToCommand(command)
	command.Flags().BoolVar(&fetchSVD, "svd", false, "Download and cache the peripheral register description for the device")
	return command
}

func runDevice(cmd *cobra.Command, args []string) {
	engine := common.NewEngine(commonFlags.Project)
	dev := engine.Devices.Identify(engine.Project)
	identified := dev != nil
	var d deviceinfo.Device
	if identified {
		d = *dev
	} else {
		d = deviceinfo.DefaultDevice()
	}
	if fetchSVD {
		if engine.SVD.Fetch(&d) == nil {
			feedback.Fatal("Could not download the peripheral register description.", feedback.ErrNetwork)
		}
	}
	feedback.PrintResult(&deviceResult{device: d, identified: identified})
}

type deviceResult struct {
	device     deviceinfo.Device
	identified bool
}

func (r *deviceResult) Data() interface{} {
	return map[string]interface{}{
		"device":     r.device,
		"identified": r.identified,
	}
}

func (r *deviceResult) String() string {
	prefix := "Target device"
	if !r.identified {
		prefix = "No device identified, assuming"
	}
	s := fmt.Sprintf("%s: %s", prefix, r.device.String())
	if r.device.SVDFile != nil {
		s += fmt.Sprintf("\nPeripheral description: %s", r.device.SVDFile)
	}
	return s
}
