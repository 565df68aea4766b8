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

// Package deviceinfo infers the target STM32 microcontroller from project
// artifacts and derives family, memory sizes and the OpenOCD target
// configuration from the device name. Size lookups are best-effort
// estimates keyed on the part-number coding, not datasheet values: the
// derivation never fails, it only degrades to a default.
package deviceinfo

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/arduino/go-paths-helper"
)

// Defaults used when the part number carries no recognizable coding.
const (
	DefaultFamily  = "STM32F1"
	DefaultFlashKB = 512
	DefaultRAMKB   = 128
)

// Device describes the target microcontroller.
type Device struct {
	Name         string
	Family       string // e.g. STM32F4
	Line         string // e.g. stm32f4x, selects the OpenOCD target config
	FlashKB      int
	RAMKB        int
	TargetConfig string      // e.g. target/stm32f4x.cfg
	SVDFile      *paths.Path // optional, set by the SVD fetcher
}

func (d *Device) String() string {
	return fmt.Sprintf("%s (family %s, ~%d KB flash, ~%d KB RAM, %s)",
		d.Name, d.Family, d.FlashKB, d.RAMKB, d.TargetConfig)
}

var familyPattern = regexp.MustCompile(`^(STM32[A-Z][0-9])`)

// Approximate flash size by the part-number size-code letter
// (STM32F407VG -> 'G' -> 1024 KB).
var flashSizeKB = map[byte]int{
	'4': 16,
	'6': 32,
	'8': 64,
	'B': 128,
	'C': 256,
	'D': 384,
	'E': 512,
	'F': 768,
	'G': 1024,
	'H': 1536,
	'I': 2048,
}

// Approximate RAM size by family code. Within a family the RAM varies per
// line; these are the common mid-range figures.
var ramSizeKB = map[string]int{
	"F0": 16,
	"F1": 20,
	"F2": 128,
	"F3": 40,
	"F4": 192,
	"F7": 320,
	"G0": 36,
	"G4": 128,
	"H7": 512,
	"L0": 20,
	"L1": 80,
	"L4": 128,
	"L5": 256,
	"U5": 768,
	"WB": 256,
	"WL": 64,
}

// DefaultDevice is the configuration used when no project artifact names a
// device: the ubiquitous "blue pill" part.
func DefaultDevice() Device {
	return FromName("STM32F103C8")
}

// FromName derives a Device from a device name string. It always returns a
// populated value: unknown codings fall back to the documented defaults.
func FromName(name string) Device {
	normalized := normalizeName(name)

	family := DefaultFamily
	if m := familyPattern.FindString(normalized); m != "" {
		family = m
	}
	line := strings.ToLower(family) + "x"

	dev := Device{
		Name:         normalized,
		Family:       family,
		Line:         line,
		FlashKB:      DefaultFlashKB,
		RAMKB:        DefaultRAMKB,
		TargetConfig: "target/" + line + ".cfg",
	}
	if len(normalized) >= 11 {
		if kb, ok := flashSizeKB[normalized[10]]; ok {
			dev.FlashKB = kb
		}
	}
	if len(family) >= 7 {
		if kb, ok := ramSizeKB[family[5:7]]; ok {
			dev.RAMKB = kb
		}
	}
	return dev
}

func normalizeName(name string) string {
	name = strings.TrimSpace(name)
	// CubeMX device ids end with a package/temperature pair like "Tx"; the
	// build-system define ends with the generic "xx"
	if strings.HasSuffix(name, "xx") {
		return strings.ToUpper(name[:len(name)-2])
	}
	if len(name) >= 2 && name[len(name)-1] == 'x' {
		return strings.ToUpper(name[:len(name)-2])
	}
	return strings.ToUpper(name)
}
