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

package arguments

import (
	"github.com/spf13/cobra"
)

// Flags contains various common flags.
// This is useful so all flags used by commands that need
// this information are consistent with each other.
type Flags struct {
	Project     string
	Profile     string
	BuildSystem string
}

// AddToCommand adds the flags used to select project, profile and build
// system to the specified Command. Empty values fall back to the workspace
// configuration.
func (f *Flags) AddToCommand(cmd *cobra.Command) {
	cmd.Flags().StringVarP(&f.Project, "project", "p", "", "Project root directory, defaults to the working directory")
	cmd.Flags().StringVar(&f.Profile, "profile", "", "Build profile, e.g.: debug, release, size")
	cmd.Flags().StringVar(&f.BuildSystem, "build-system", "", "Build system to drive, one of {make|cmake}")
}
