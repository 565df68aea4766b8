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

package globals

import (
	"os"

	"github.com/arduino/go-paths-helper"
)

var (
	// DevkitCachePath is where downloaded debug data (SVD files) lives.
	DevkitCachePath = cachePath()

	// LogLevel is the calculated log level
	LogLevel string

	// Verbose is the state of the verbose flag
	Verbose bool
)

func cachePath() *paths.Path {
	if dir, err := os.UserCacheDir(); err == nil {
		return paths.New(dir).Join("stm32-devkit")
	}
	return paths.TempDir().Join("stm32-devkit")
}
