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

// Profile is a named, fixed set of compiler optimization/debug flags. The
// profile set is static configuration data: the same identifier always
// yields the same ordered flag list.
type Profile struct {
	ID          string
	Flags       []string
	Description string
}

var profiles = []Profile{
	{
		ID:          "debug",
		Flags:       []string{"-Og", "-g3", "-ggdb"},
		Description: "no optimization that hurts debugging, full debug info",
	},
	{
		ID:          "release",
		Flags:       []string{"-O3"},
		Description: "maximum optimization for speed, no debug info",
	},
	{
		ID:          "release-debug",
		Flags:       []string{"-O2", "-g"},
		Description: "optimized with debug info, for profiling on target",
	},
	{
		ID:          "size",
		Flags:       []string{"-Os"},
		Description: "optimize for smallest code size",
	},
	{
		ID:          "speed",
		Flags:       []string{"-Ofast"},
		Description: "aggressive speed optimization, may break strict IEEE math",
	},
	{
		ID:          "none",
		Flags:       []string{"-O0", "-g3"},
		Description: "no optimization at all, most predictable stepping",
	},
}

// Profiles returns the six fixed build profiles in stable order.
func Profiles() []Profile {
	return profiles
}

// ProfileByID looks up a profile by identifier.
func ProfileByID(id string) (Profile, bool) {
	for _, p := range profiles {
		if p.ID == id {
			return p, true
		}
	}
	return Profile{}, false
}
