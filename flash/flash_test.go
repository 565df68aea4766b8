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

package flash

import (
	"context"
	"testing"

	"github.com/arduino/go-paths-helper"
	"github.com/stretchr/testify/require"

	"github.com/stm32-tools/stm32-devkit/cache"
	"github.com/stm32-tools/stm32-devkit/deviceinfo"
	"github.com/stm32-tools/stm32-devkit/errs"
	"github.com/stm32-tools/stm32-devkit/locate"
	"github.com/stm32-tools/stm32-devkit/programmer"
	"github.com/stm32-tools/stm32-devkit/runner"
	"github.com/stm32-tools/stm32-devkit/toolchain"
)

// fakeRunner replays per-executable results and records every invocation.
// onRun, when set, observes each call while it is "in flight".
type fakeRunner struct {
	onPath     map[string]string
	results    map[string]runner.Result
	onRun      func(opts runner.Options)
	calls      []runner.Options
	terminated []string
}

func (f *fakeRunner) Run(ctx context.Context, opts runner.Options) runner.Result {
	f.calls = append(f.calls, opts)
	if f.onRun != nil {
		f.onRun(opts)
	}
	if len(opts.Args) == 0 {
		return runner.Result{ExitCode: -1}
	}
	return f.results[paths.New(opts.Args[0]).Base()]
}

func (f *fakeRunner) LookPath(name string) *paths.Path {
	if p, ok := f.onPath[name]; ok {
		return paths.New(p)
	}
	return nil
}

func (f *fakeRunner) TerminateByName(name string) bool {
	f.terminated = append(f.terminated, name)
	return true
}

func (f *fakeRunner) Version(ctx context.Context, command, flag string) string { return "" }

func fullToolSet() map[string]string {
	return map[string]string{
		toolchain.Compiler:          "/usr/bin/arm-none-eabi-gcc",
		toolchain.MultiArchDebugger: "/usr/bin/gdb-multiarch",
		toolchain.Daemon:            "/usr/bin/openocd",
		toolchain.Make:              "/usr/bin/make",
		toolchain.ObjCopy:           "/usr/bin/arm-none-eabi-objcopy",
	}
}

func newTestOrchestrator(f *fakeRunner) *Orchestrator {
	platform := &locate.Platform{OS: "linux"} // no install roots, lookups come from the fake
	tools := toolchain.NewDetector(f, platform, &cache.Slot[toolchain.Snapshot]{}, nil)
	probes := programmer.NewDetector(f, "linux")
	return NewOrchestrator(f, tools, probes)
}

// projectWithFirmware lays out a build directory holding firmware.elf.
func projectWithFirmware(t *testing.T) (*paths.Path, *paths.Path) {
	t.Helper()
	root := paths.New(t.TempDir())
	buildDir := root.Join("build")
	require.NoError(t, buildDir.MkdirAll())
	elf := buildDir.Join("firmware.elf")
	require.NoError(t, elf.WriteFile([]byte("\x7fELF")))
	return root, elf
}

func testDevice() *deviceinfo.Device {
	dev := deviceinfo.FromName("STM32F407VG")
	return &dev
}

// lastCallOf returns the recorded invocation of the named executable.
func lastCallOf(t *testing.T, f *fakeRunner, base string) runner.Options {
	t.Helper()
	for i := len(f.calls) - 1; i >= 0; i-- {
		if len(f.calls[i].Args) > 0 && paths.New(f.calls[i].Args[0]).Base() == base {
			return f.calls[i]
		}
	}
	t.Fatalf("no recorded call of %s", base)
	return runner.Options{}
}

func TestFlashViaOpenOCD(t *testing.T) {
	f := &fakeRunner{
		onPath: fullToolSet(),
		results: map[string]runner.Result{
			"lsusb":   {Stdout: "ID 0483:374b STMicroelectronics ST-LINK/V2-1", ExitCode: 0},
			"openocd": {Stdout: "** Programming Finished **", ExitCode: 0},
		},
	}
	root, elf := projectWithFirmware(t)
	outcome, err := newTestOrchestrator(f).Flash(context.Background(), root, testDevice())
	require.NoError(t, err)
	require.True(t, outcome.Success)
	require.Empty(t, outcome.Message)

	call := lastCallOf(t, f, "openocd")
	require.Equal(t, []string{
		"/usr/bin/openocd",
		"-f", "interface/stlink.cfg",
		"-f", "target/stm32f4x.cfg",
		"-c", "program " + elf.String() + " verify reset exit",
	}, call.Args)
}

func TestFlashOpenOCDFailureMessages(t *testing.T) {
	run := func(res runner.Result) *Outcome {
		f := &fakeRunner{
			onPath: fullToolSet(),
			results: map[string]runner.Result{
				"lsusb":   {Stdout: "ST-LINK", ExitCode: 0},
				"openocd": res,
			},
		}
		root, _ := projectWithFirmware(t)
		outcome, err := newTestOrchestrator(f).Flash(context.Background(), root, testDevice())
		require.NoError(t, err)
		require.False(t, outcome.Success)
		return outcome
	}

	out := run(runner.Result{Stderr: "Error: open failed", ExitCode: 1})
	require.Contains(t, out.Message, "check the programmer cabling")

	out = run(runner.Result{ExitCode: 1, TimedOut: true})
	require.Contains(t, out.Message, "timed out")

	out = run(runner.Result{Stderr: "Error: target not halted", ExitCode: 1})
	require.Contains(t, out.Message, "exited 1")
}

func TestFlashMissingFirmware(t *testing.T) {
	f := &fakeRunner{onPath: fullToolSet()}
	root := paths.New(t.TempDir())
	_, err := newTestOrchestrator(f).Flash(context.Background(), root, testDevice())
	require.Error(t, err)
	require.Equal(t, errs.KindFlashFailed, errs.KindOf(err))
	require.Empty(t, f.calls, "a missing image must fail before any probe runs")

	// a build directory without an .elf is the same failure
	require.NoError(t, root.Join("build").MkdirAll())
	require.NoError(t, root.Join("build", "firmware.bin").WriteFile(nil))
	_, err = newTestOrchestrator(f).Flash(context.Background(), root, testDevice())
	require.Equal(t, errs.KindFlashFailed, errs.KindOf(err))
}

func TestFlashViaJLink(t *testing.T) {
	var scriptPath string
	var scriptContent string
	f := &fakeRunner{
		onPath: fullToolSet(),
		results: map[string]runner.Result{
			"lsusb":                 {Stdout: "ID 1366:0101 SEGGER J-Link", ExitCode: 0},
			"arm-none-eabi-objcopy": {ExitCode: 0},
			"JLinkExe":              {Stdout: "Downloading file...\nO.K.\n", ExitCode: 0},
		},
		onRun: func(opts runner.Options) {
			if paths.New(opts.Args[0]).Base() != "JLinkExe" {
				return
			}
			scriptPath = opts.Args[len(opts.Args)-1]
			data, err := paths.New(scriptPath).ReadFile()
			if err == nil {
				scriptContent = string(data)
			}
		},
	}
	f.onPath["JLinkExe"] = "/opt/SEGGER/JLink/JLinkExe"

	root, elf := projectWithFirmware(t)
	outcome, err := newTestOrchestrator(f).Flash(context.Background(), root, testDevice())
	require.NoError(t, err)
	require.True(t, outcome.Success)

	// the hex conversion runs before the commander
	objcopy := lastCallOf(t, f, "arm-none-eabi-objcopy")
	hex := elf.Parent().Join("firmware.hex").String()
	require.Equal(t, []string{"/usr/bin/arm-none-eabi-objcopy", "-O", "ihex", elf.String(), hex}, objcopy.Args)

	commander := lastCallOf(t, f, "JLinkExe")
	require.Equal(t, []string{
		"/opt/SEGGER/JLink/JLinkExe",
		"-device", "STM32F407VG",
		"-if", "SWD",
		"-speed", "4000",
		"-CommanderScript", scriptPath,
	}, commander.Args)

	// the generated script replays reset, halt, load, reset, go, quit
	require.Equal(t, "r\nhalt\nloadfile "+hex+"\nr\ng\nqc\n", scriptContent)

	// the script is a temp file and must be gone afterwards
	require.False(t, paths.New(scriptPath).Exist())
}

func TestFlashJLinkMarkerRequired(t *testing.T) {
	f := &fakeRunner{
		onPath: fullToolSet(),
		results: map[string]runner.Result{
			"lsusb":    {Stdout: "SEGGER J-Link", ExitCode: 0},
			"JLinkExe": {Stdout: "Downloading file...\n", ExitCode: 0},
		},
	}
	f.onPath["JLinkExe"] = "/usr/bin/JLinkExe"

	root, elf := projectWithFirmware(t)
	// pre-existing hex skips the objcopy step
	require.NoError(t, elf.Parent().Join("firmware.hex").WriteFile([]byte(":00000001FF\n")))

	outcome, err := newTestOrchestrator(f).Flash(context.Background(), root, testDevice())
	require.NoError(t, err)
	require.False(t, outcome.Success, "exit 0 without the confirmation marker is not a success")
	require.Contains(t, outcome.Message, "did not confirm")
	for _, call := range f.calls {
		require.NotEqual(t, "arm-none-eabi-objcopy", paths.New(call.Args[0]).Base())
	}
}

func TestFlashJLinkScriptRemovedOnFailure(t *testing.T) {
	var scriptPath string
	f := &fakeRunner{
		onPath: fullToolSet(),
		results: map[string]runner.Result{
			"lsusb":    {Stdout: "SEGGER J-Link", ExitCode: 0},
			"JLinkExe": {Stderr: "Cannot connect to target.", ExitCode: 1},
		},
		onRun: func(opts runner.Options) {
			if paths.New(opts.Args[0]).Base() == "JLinkExe" {
				scriptPath = opts.Args[len(opts.Args)-1]
			}
		},
	}
	f.onPath["JLinkExe"] = "/usr/bin/JLinkExe"

	root, elf := projectWithFirmware(t)
	require.NoError(t, elf.Parent().Join("firmware.hex").WriteFile(nil))

	outcome, err := newTestOrchestrator(f).Flash(context.Background(), root, testDevice())
	require.NoError(t, err)
	require.False(t, outcome.Success)
	require.Contains(t, outcome.Message, "exited 1")
	require.NotEmpty(t, scriptPath)
	require.False(t, paths.New(scriptPath).Exist())
}

func TestFlashJLinkWithoutObjcopy(t *testing.T) {
	tools := fullToolSet()
	delete(tools, toolchain.ObjCopy)
	f := &fakeRunner{
		onPath: tools,
		results: map[string]runner.Result{
			"lsusb": {Stdout: "SEGGER J-Link", ExitCode: 0},
		},
	}
	root, _ := projectWithFirmware(t)
	_, err := newTestOrchestrator(f).Flash(context.Background(), root, testDevice())
	require.Error(t, err)
	require.Equal(t, errs.KindToolchainNotFound, errs.KindOf(err))
}

func TestFlashDFUUnsupported(t *testing.T) {
	f := &fakeRunner{
		onPath: fullToolSet(),
		results: map[string]runner.Result{
			"lsusb": {Stdout: "ID 0483:df11 STM32 BOOTLOADER", ExitCode: 0},
		},
	}
	root, _ := projectWithFirmware(t)
	_, err := newTestOrchestrator(f).Flash(context.Background(), root, testDevice())
	require.Error(t, err)
	require.Equal(t, errs.KindFlashFailed, errs.KindOf(err))
	require.Contains(t, err.Error(), "DFU")
}

func TestConnectionProbe(t *testing.T) {
	f := &fakeRunner{
		onPath: fullToolSet(),
		results: map[string]runner.Result{
			"lsusb":   {Stdout: "ST-LINK", ExitCode: 0},
			"openocd": {ExitCode: 0},
		},
	}
	o := newTestOrchestrator(f)
	require.True(t, o.TestConnection(context.Background(), testDevice()))

	call := lastCallOf(t, f, "openocd")
	require.Contains(t, call.Args, "init; reset halt; exit")

	f.results["openocd"] = runner.Result{Stderr: "Error: open failed", ExitCode: 1}
	require.False(t, o.TestConnection(context.Background(), testDevice()))
}

func TestConnectionWithoutDaemon(t *testing.T) {
	tools := fullToolSet()
	delete(tools, toolchain.Daemon)
	f := &fakeRunner{onPath: tools}
	require.False(t, newTestOrchestrator(f).TestConnection(context.Background(), testDevice()))
	require.Empty(t, f.calls)
}

func TestDisconnect(t *testing.T) {
	f := &fakeRunner{onPath: fullToolSet()}
	newTestOrchestrator(f).Disconnect()
	require.Equal(t, []string{toolchain.Daemon}, f.terminated)
}
