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

// Package flash deploys a built firmware image to the attached programmer.
// ST-Link and CMSIS-DAP probes are driven through the OpenOCD daemon;
// SEGGER J-Link probes go through the vendor commander with a generated
// script and an Intel-hex conversion of the image.
package flash

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/arduino/go-paths-helper"
	"github.com/sirupsen/logrus"

	"github.com/stm32-tools/stm32-devkit/deviceinfo"
	"github.com/stm32-tools/stm32-devkit/errs"
	"github.com/stm32-tools/stm32-devkit/programmer"
	"github.com/stm32-tools/stm32-devkit/runner"
	"github.com/stm32-tools/stm32-devkit/toolchain"
)

const (
	flashTimeout = 90 * time.Second
	probeTimeout = 20 * time.Second

	// binary produced by the build step and picked up for flashing
	firmwareExt = ".elf"
)

// jlinkSuccessMarker is the commander's programming confirmation. The J-Link
// commander can exit 0 on a failed flash, so the exit code alone is not
// trusted; the marker is a known-brittle secondary signal against localized
// tool output.
const jlinkSuccessMarker = "O.K."

// Outcome is the result of one flash invocation.
type Outcome struct {
	Success  bool
	Output   string
	Duration time.Duration
	Message  string
}

// Orchestrator resolves the firmware image, detects the attached probe and
// dispatches to the matching flashing strategy.
type Orchestrator struct {
	runner   runner.Runner
	detector *toolchain.Detector
	probes   *programmer.Detector
}

// NewOrchestrator wires the orchestrator onto the shared runner and
// detectors.
func NewOrchestrator(r runner.Runner, detector *toolchain.Detector, probes *programmer.Detector) *Orchestrator {
	return &Orchestrator{runner: r, detector: detector, probes: probes}
}

// Flash programs the firmware built under root onto the target device. The
// image must already exist in the build directory; a missing image is a
// hard failure, there is no build-and-retry here.
func (o *Orchestrator) Flash(ctx context.Context, root *paths.Path, dev *deviceinfo.Device) (*Outcome, error) {
	firmware, err := o.resolveFirmware(root)
	if err != nil {
		return nil, err
	}

	probe := o.probes.Detect(ctx)
	logrus.Infof("flashing %s via %s probe", firmware.Base(), probe.Kind)

	switch probe.Kind {
	case programmer.JLink:
		return o.flashJLink(ctx, firmware, dev)
	case programmer.DFU:
		return nil, errs.New(errs.KindFlashFailed, "DFU bootloader flashing is not supported, connect a debug probe")
	default:
		// ST-Link, CMSIS-DAP and unidentified probes all go through the
		// daemon; an unknown probe uses the ST-Link interface fragment.
		return o.flashOpenOCD(ctx, firmware, probe, dev)
	}
}

// resolveFirmware finds the image to flash in the fixed build output
// directory.
func (o *Orchestrator) resolveFirmware(root *paths.Path) (*paths.Path, error) {
	buildDir := root.Join("build")
	entries, err := buildDir.ReadDir()
	if err != nil {
		return nil, errs.Newf(errs.KindFlashFailed, "no build output in %s, run a build first", buildDir)
	}
	entries.Sort()
	for _, entry := range entries {
		if !entry.IsDir() && entry.Ext() == firmwareExt {
			return entry, nil
		}
	}
	return nil, errs.Newf(errs.KindFlashFailed, "no %s firmware found in %s, run a build first", firmwareExt, buildDir)
}

// flashOpenOCD drives the daemon with the probe's interface fragment, the
// device's target configuration and a single program-verify-reset command.
// Success is decided by the daemon's exit code.
func (o *Orchestrator) flashOpenOCD(ctx context.Context, firmware *paths.Path, probe *programmer.Probe, dev *deviceinfo.Device) (*Outcome, error) {
	openocd := o.detector.Detect(ctx).PathOf(toolchain.Daemon)
	if openocd == nil {
		return nil, errs.New(errs.KindToolchainNotFound, "openocd is required for flashing").
			WithDetails(toolchain.Daemon)
	}

	args := []string{
		openocd.String(),
		"-f", probe.InterfaceConfig,
		"-f", dev.TargetConfig,
		"-c", fmt.Sprintf("program %s verify reset exit", firmware),
	}
	start := time.Now()
	res := o.runner.Run(ctx, runner.Options{Args: args, Timeout: flashTimeout})
	outcome := &Outcome{
		Success:  res.ExitCode == 0,
		Output:   res.Combined(),
		Duration: time.Since(start),
	}
	if !outcome.Success {
		outcome.Message = daemonFailureMessage(res)
	}
	return outcome, nil
}

// flashJLink converts the image to Intel hex when needed, writes the
// commander script to a temp file and runs the vendor commander. The script
// file is removed whatever the commander did.
func (o *Orchestrator) flashJLink(ctx context.Context, firmware *paths.Path, dev *deviceinfo.Device) (*Outcome, error) {
	hex, err := o.ensureHex(ctx, firmware)
	if err != nil {
		return nil, err
	}

	commander := o.jlinkCommander()
	if commander == nil {
		return nil, errs.New(errs.KindToolchainNotFound, "J-Link commander (JLinkExe) not found on PATH").
			WithDetails("JLinkExe")
	}

	script, err := writeCommanderScript(hex)
	if err != nil {
		return nil, errs.Newf(errs.KindFlashFailed, "cannot write commander script: %s", err)
	}
	defer script.Remove()

	args := []string{
		commander.String(),
		"-device", dev.Name,
		"-if", "SWD",
		"-speed", "4000",
		"-CommanderScript", script.String(),
	}
	start := time.Now()
	res := o.runner.Run(ctx, runner.Options{Args: args, Timeout: flashTimeout})
	output := res.Combined()
	outcome := &Outcome{
		Success:  res.ExitCode == 0 && strings.Contains(output, jlinkSuccessMarker),
		Output:   output,
		Duration: time.Since(start),
	}
	if !outcome.Success {
		outcome.Message = "J-Link commander did not confirm programming"
		if res.ExitCode != 0 {
			outcome.Message = fmt.Sprintf("J-Link commander exited %d", res.ExitCode)
		}
	}
	return outcome, nil
}

// ensureHex returns the Intel-hex counterpart of the image, converting with
// objcopy when it doesn't exist yet.
func (o *Orchestrator) ensureHex(ctx context.Context, firmware *paths.Path) (*paths.Path, error) {
	hex := firmware.Parent().Join(strings.TrimSuffix(firmware.Base(), firmwareExt) + ".hex")
	if hex.Exist() {
		return hex, nil
	}
	objcopy := o.detector.Detect(ctx).PathOf(toolchain.ObjCopy)
	if objcopy == nil {
		return nil, errs.New(errs.KindToolchainNotFound, "arm-none-eabi-objcopy is required for J-Link flashing").
			WithDetails(toolchain.ObjCopy)
	}
	res := o.runner.Run(ctx, runner.Options{
		Args:    []string{objcopy.String(), "-O", "ihex", firmware.String(), hex.String()},
		Timeout: probeTimeout,
	})
	if res.ExitCode != 0 {
		return nil, errs.Newf(errs.KindFlashFailed, "hex conversion failed: %s", strings.TrimSpace(res.Stderr))
	}
	return hex, nil
}

func (o *Orchestrator) jlinkCommander() *paths.Path {
	for _, name := range []string{"JLinkExe", "JLink"} {
		if p := o.runner.LookPath(name); p != nil {
			return p
		}
	}
	return nil
}

// writeCommanderScript emits the reset-halt-load-go sequence the commander
// replays.
func writeCommanderScript(hex *paths.Path) (*paths.Path, error) {
	script := paths.New(os.TempDir()).Join(fmt.Sprintf("stm32-devkit-flash-%d.jlink", os.Getpid()))
	content := strings.Join([]string{
		"r",
		"halt",
		"loadfile " + hex.String(),
		"r",
		"g",
		"qc",
		"",
	}, "\n")
	if err := script.WriteFile([]byte(content)); err != nil {
		return nil, err
	}
	return script, nil
}

// TestConnection runs a light daemon invocation against the target without
// programming anything. It never errors: an unresolvable daemon or a failed
// init simply reports false.
func (o *Orchestrator) TestConnection(ctx context.Context, dev *deviceinfo.Device) bool {
	openocd := o.detector.Detect(ctx).PathOf(toolchain.Daemon)
	if openocd == nil {
		return false
	}
	probe := o.probes.Detect(ctx)
	res := o.runner.Run(ctx, runner.Options{
		Args: []string{
			openocd.String(),
			"-f", probe.InterfaceConfig,
			"-f", dev.TargetConfig,
			"-c", "init; reset halt; exit",
		},
		Timeout: probeTimeout,
	})
	return res.ExitCode == 0
}

// Disconnect force-terminates any stray daemon still holding the probe.
// Idempotent: no running daemon is not an error.
func (o *Orchestrator) Disconnect() {
	if o.runner.TerminateByName(toolchain.Daemon) {
		logrus.Info("terminated running openocd daemon")
	}
}

func daemonFailureMessage(res runner.Result) string {
	combined := strings.ToLower(res.Combined())
	switch {
	case res.TimedOut:
		return "openocd timed out"
	case strings.Contains(combined, "no device found") || strings.Contains(combined, "open failed"):
		return "no device connected, check the programmer cabling"
	default:
		return fmt.Sprintf("openocd exited %d", res.ExitCode)
	}
}
