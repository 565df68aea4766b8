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
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

// Region is one row of the linker's memory-usage table.
type Region struct {
	UsedBytes  int64
	TotalBytes int64
	Percent    float64
}

// MemoryUsage is the linker's --print-memory-usage report. Both regions are
// required together: a build output missing either yields no MemoryUsage.
type MemoryUsage struct {
	Flash Region
	RAM   Region
}

func (m *MemoryUsage) String() string {
	return fmt.Sprintf("flash %d/%d B (%.1f%%), ram %d/%d B (%.1f%%)",
		m.Flash.UsedBytes, m.Flash.TotalBytes, m.Flash.Percent,
		m.RAM.UsedBytes, m.RAM.TotalBytes, m.RAM.Percent)
}

// Matches rows like:
//
//	FLASH:       12345 B     65536 B     18.8%
//	  RAM:        2048 B       128 KB     1.6%
var memoryRowPattern = `(?m)^\s*%s:\s+(\d+)\s*([KMG]?B)\s+(\d+)\s*([KMG]?B)\s+([0-9.]+)%%`

var (
	flashRowPattern = regexp.MustCompile(fmt.Sprintf(memoryRowPattern, "FLASH"))
	ramRowPattern   = regexp.MustCompile(fmt.Sprintf(memoryRowPattern, "RAM"))
)

var unitMultiplier = map[string]int64{
	"B":  1,
	"KB": 1024,
	"MB": 1024 * 1024,
	"GB": 1024 * 1024 * 1024,
}

// ParseMemoryUsage scans build output for the linker memory-usage table.
// Returns nil unless both the FLASH and RAM rows are present.
func ParseMemoryUsage(output string) *MemoryUsage {
	flash, ok := parseRegion(flashRowPattern, output)
	if !ok {
		return nil
	}
	ram, ok := parseRegion(ramRowPattern, output)
	if !ok {
		return nil
	}
	return &MemoryUsage{Flash: flash, RAM: ram}
}

func parseRegion(pattern *regexp.Regexp, output string) (Region, bool) {
	m := pattern.FindStringSubmatch(output)
	if m == nil {
		return Region{}, false
	}
	used, err1 := strconv.ParseInt(m[1], 10, 64)
	total, err2 := strconv.ParseInt(m[3], 10, 64)
	percent, err3 := strconv.ParseFloat(m[5], 64)
	if err1 != nil || err2 != nil || err3 != nil {
		return Region{}, false
	}
	return Region{
		UsedBytes:  used * unitMultiplier[m[2]],
		TotalBytes: total * unitMultiplier[m[4]],
		Percent:    percent,
	}, true
}

// Diagnostic classification markers. A line carrying both markers counts as
// an error only, never both.
const (
	errorMarker   = "error"
	warningMarker = "warning"
)

// ClassifyDiagnostics splits build output lines into errors and warnings.
func ClassifyDiagnostics(output string) (errors, warnings []string) {
	for _, line := range strings.Split(output, "\n") {
		trimmed := strings.TrimSpace(line)
		if trimmed == "" {
			continue
		}
		lower := strings.ToLower(trimmed)
		switch {
		case strings.Contains(lower, errorMarker):
			errors = append(errors, trimmed)
		case strings.Contains(lower, warningMarker):
			warnings = append(warnings, trimmed)
		}
	}
	return errors, warnings
}
