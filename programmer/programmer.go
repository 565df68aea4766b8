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

// Package programmer identifies which debug probe is attached to the machine
// by scanning the platform's USB enumeration output. Results are never
// cached: hardware can be plugged and unplugged between calls.
package programmer

import (
	"context"
	"regexp"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/stm32-tools/stm32-devkit/runner"
)

// Kind classifies the attached probe.
type Kind string

const (
	STLink   Kind = "st-link"
	JLink    Kind = "j-link"
	CMSISDAP Kind = "cmsis-dap"
	DFU      Kind = "dfu"
	Unknown  Kind = "unknown"
)

// OpenOCD interface configuration fragment per probe kind. Unknown and DFU
// fall back to the ST-Link fragment, the probe shipped on every Nucleo and
// Discovery board.
var interfaceConfigs = map[Kind]string{
	STLink:   "interface/stlink.cfg",
	JLink:    "interface/jlink.cfg",
	CMSISDAP: "interface/cmsis-dap.cfg",
	DFU:      "interface/stlink.cfg",
	Unknown:  "interface/stlink.cfg",
}

// Probe describes the detected programmer hardware.
type Probe struct {
	Kind            Kind
	InterfaceConfig string
	Version         string
	Serial          string
}

// Detector enumerates USB devices through the platform's own listing
// command. Enumeration failures are never fatal: they degrade to an Unknown
// probe with the safe default interface fragment.
type Detector struct {
	runner    runner.Runner
	os        string
	preferred Kind
}

// NewDetector builds a Detector for the given OS name (runtime.GOOS).
func NewDetector(r runner.Runner, osName string) *Detector {
	return &Detector{runner: r, os: osName}
}

// Prefer pins detection to a configured probe kind, skipping enumeration.
func (d *Detector) Prefer(kind Kind) {
	d.preferred = kind
}

// ParseKind validates a configured probe kind identifier.
func ParseKind(id string) (Kind, bool) {
	switch Kind(id) {
	case STLink, JLink, CMSISDAP, DFU:
		return Kind(id), true
	}
	return Unknown, false
}

// matched in priority order: the primary vendor's probe wins when several
// substrings appear in the listing.
var signatures = []struct {
	kind       Kind
	substrings []string
}{
	{STLink, []string{"st-link", "stlink", "stm32 stlink"}},
	{JLink, []string{"j-link", "jlink", "segger"}},
	{CMSISDAP, []string{"cmsis-dap", "daplink"}},
	{DFU, []string{"dfu mode", "device firmware upgrade", "stm32 bootloader"}},
}

var (
	probeVersionPattern = regexp.MustCompile(`[Vv](\d+)`)
	serialPattern       = regexp.MustCompile(`Serial Number: (\S+)`)
)

// Detect returns the attached probe. One detection per call; the result is
// intentionally not cached.
func (d *Detector) Detect(ctx context.Context) *Probe {
	if d.preferred != "" && d.preferred != Unknown {
		return &Probe{Kind: d.preferred, InterfaceConfig: interfaceConfigs[d.preferred]}
	}
	var listing string
	switch d.os {
	case "windows":
		listing = d.enumerateWindows(ctx)
	case "darwin":
		listing = d.enumerate(ctx, "system_profiler", "SPUSBDataType")
	default:
		listing = d.enumerate(ctx, "lsusb")
	}
	return classify(listing)
}

func (d *Detector) enumerate(ctx context.Context, args ...string) string {
	res := d.runner.Run(ctx, runner.Options{Args: args, Timeout: 15 * time.Second})
	if res.ExitCode != 0 {
		logrus.Debugf("USB enumeration with %s failed: %s", args[0], strings.TrimSpace(res.Stderr))
		return ""
	}
	return res.Combined()
}

// enumerateWindows queries the Plug-and-Play device list; when WMI is not
// usable it falls back to probing for the ST-LINK CLI utility, whose
// presence implies an ST-Link driver installation.
func (d *Detector) enumerateWindows(ctx context.Context) string {
	listing := d.enumerate(ctx, "wmic", "path", "Win32_PnPEntity", "get", "Name")
	if listing != "" {
		return listing
	}
	if d.runner.LookPath("ST-LINK_CLI") != nil {
		return "ST-LINK"
	}
	return ""
}

func classify(listing string) *Probe {
	lower := strings.ToLower(listing)
	kind := Unknown
	for _, sig := range signatures {
		for _, sub := range sig.substrings {
			if strings.Contains(lower, sub) {
				kind = sig.kind
				break
			}
		}
		if kind != Unknown {
			break
		}
	}

	probe := &Probe{
		Kind:            kind,
		InterfaceConfig: interfaceConfigs[kind],
	}
	if kind == Unknown {
		return probe
	}
	if m := probeVersionPattern.FindString(listing); m != "" {
		probe.Version = strings.ToUpper(m)
	}
	if m := serialPattern.FindStringSubmatch(listing); m != nil {
		probe.Serial = m[1]
	}
	logrus.Debugf("detected programmer: %s %s", probe.Kind, probe.Version)
	return probe
}
