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

package deviceinfo

import (
	"regexp"

	"github.com/arduino/go-paths-helper"
	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/sirupsen/logrus"

	"github.com/stm32-tools/stm32-devkit/cache"
	"github.com/stm32-tools/stm32-devkit/locate"
)

// searchDepth bounds the project-tree walk for CubeMX files and linker
// scripts. Build-system files are only honoured at the workspace root.
const searchDepth = 3

var (
	iocFilePattern      = regexp.MustCompile(`\.ioc$`)
	iocDeviceIDPattern  = regexp.MustCompile(`^ProjectManager\.DeviceId=(\S+)`)
	buildDefinePattern  = regexp.MustCompile(`-D\s*(STM32[0-9A-Z]+?)xx\b`)
	cmakeDevicePattern  = regexp.MustCompile(`\b(STM32[0-9A-Z]+?)xx\b`)
	linkerScriptPattern = regexp.MustCompile(`^STM32[0-9A-Za-z]+_FLASH\.ld$`)
	linkerDevicePattern = regexp.MustCompile(`^(STM32[0-9A-Za-z]+)_FLASH\.ld$`)
)

// Identifier infers the target device from project artifacts. The last
// identified device is cached in the injected slot until explicitly
// cleared; name derivations are memoized in an LRU so repeated lookups of
// the same part number don't re-run the table matching.
type Identifier struct {
	last    *cache.Slot[Device]
	derived *lru.Cache[string, Device]
}

// NewIdentifier builds an Identifier caching into slot.
func NewIdentifier(slot *cache.Slot[Device]) *Identifier {
	derived, _ := lru.New[string, Device](64)
	return &Identifier{last: slot, derived: derived}
}

// Identify infers the device for the project rooted at root. Sources are
// tried in strict priority order, first success wins:
//
//  1. CubeMX project file (.ioc), searched a bounded number of levels deep;
//  2. Makefile or CMakeLists.txt device define, workspace root only;
//  3. linker script file name of the form <DEVICE>_FLASH.ld.
//
// It returns nil when no artifact names a device; the caller falls back to
// a default device configuration. The result is cached until ClearCache.
func (i *Identifier) Identify(root *paths.Path) *Device {
	if dev := i.last.Get(); dev != nil {
		return dev
	}
	name := i.deviceName(root)
	if name == "" {
		return nil
	}
	dev := i.FromName(name)
	i.last.Set(&dev)
	return &dev
}

// ClearCache forgets the last identified device.
func (i *Identifier) ClearCache() {
	i.last.Clear()
}

// FromName derives a Device from a part-number string, memoized.
func (i *Identifier) FromName(name string) Device {
	if dev, ok := i.derived.Get(name); ok {
		return dev
	}
	dev := FromName(name)
	i.derived.Add(name, dev)
	return dev
}

func (i *Identifier) deviceName(root *paths.Path) string {
	if name := deviceFromCubeMX(root); name != "" {
		logrus.Debugf("device %s identified from CubeMX project file", name)
		return name
	}
	if name := deviceFromBuildFile(root); name != "" {
		logrus.Debugf("device %s identified from build-system file", name)
		return name
	}
	if name := deviceFromLinkerScript(root); name != "" {
		logrus.Debugf("device %s identified from linker script", name)
		return name
	}
	return ""
}

func deviceFromCubeMX(root *paths.Path) string {
	ioc := locate.FindFirst(root, iocFilePattern, searchDepth)
	if ioc == nil {
		return ""
	}
	lines, err := ioc.ReadFileAsLines()
	if err != nil {
		return ""
	}
	for _, line := range lines {
		if m := iocDeviceIDPattern.FindStringSubmatch(line); m != nil {
			return m[1]
		}
	}
	return ""
}

func deviceFromBuildFile(root *paths.Path) string {
	// Makefiles name the device in a -D define; CMake projects may use a
	// bare compile definition or a target variable instead.
	sources := []struct {
		base    string
		pattern *regexp.Regexp
	}{
		{"Makefile", buildDefinePattern},
		{"CMakeLists.txt", cmakeDevicePattern},
	}
	for _, src := range sources {
		file := root.Join(src.base)
		if !file.Exist() {
			continue
		}
		lines, err := file.ReadFileAsLines()
		if err != nil {
			continue
		}
		for _, line := range lines {
			if m := src.pattern.FindStringSubmatch(line); m != nil {
				return m[1]
			}
		}
	}
	return ""
}

func deviceFromLinkerScript(root *paths.Path) string {
	script := locate.FindFirst(root, linkerScriptPattern, searchDepth)
	if script == nil {
		return ""
	}
	if m := linkerDevicePattern.FindStringSubmatch(script.Base()); m != nil {
		return m[1]
	}
	return ""
}
