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

import "fmt"

// Static per-platform install hints keyed by tool name. The linux entry
// doubles as the fallback for platforms with no entry of their own.
var installInstructions = map[string]map[string]string{
	Compiler: {
		"linux":   "Install the GNU Arm Embedded Toolchain: sudo apt install gcc-arm-none-eabi, or download it from https://developer.arm.com/downloads/-/gnu-rm",
		"darwin":  "Install the GNU Arm Embedded Toolchain: brew install --cask gcc-arm-embedded",
		"windows": "Download the GNU Arm Embedded Toolchain installer from https://developer.arm.com/downloads/-/gnu-rm and add its bin directory to PATH",
	},
	Debugger: {
		"linux":   "Install a GDB able to debug ARM targets: sudo apt install gdb-multiarch",
		"darwin":  "arm-none-eabi-gdb ships with the GNU Arm Embedded Toolchain: brew install --cask gcc-arm-embedded",
		"windows": "arm-none-eabi-gdb ships with the GNU Arm Embedded Toolchain installer",
	},
	Daemon: {
		"linux":   "Install OpenOCD: sudo apt install openocd",
		"darwin":  "Install OpenOCD: brew install openocd",
		"windows": "Download OpenOCD from https://openocd.org/pages/getting-openocd.html and add its bin directory to PATH",
	},
	Make: {
		"linux":   "Install GNU Make: sudo apt install build-essential",
		"darwin":  "Install the Xcode command line tools: xcode-select --install",
		"windows": "Install make via MSYS2 (pacman -S make) or use the one bundled with STM32CubeIDE",
	},
	CMake: {
		"linux":   "Install CMake: sudo apt install cmake",
		"darwin":  "Install CMake: brew install cmake",
		"windows": "Download the CMake installer from https://cmake.org/download/",
	},
	ObjCopy: {
		"linux": "arm-none-eabi-objcopy ships with the GNU Arm Embedded Toolchain",
	},
}

// InstallInstructions returns a human readable hint for installing a missing
// tool on the given platform. Unknown platforms fall back to the linux
// instructions, unknown tools to a generic message.
func InstallInstructions(tool, osName string) string {
	perOS, ok := installInstructions[tool]
	if !ok {
		return fmt.Sprintf("no installation instructions available for %s", tool)
	}
	if instr, ok := perOS[osName]; ok {
		return instr
	}
	return perOS["linux"]
}
