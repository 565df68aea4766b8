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
	"context"
	"strings"
	"testing"

	"github.com/arduino/go-paths-helper"
	"github.com/stretchr/testify/require"

	"github.com/stm32-tools/stm32-devkit/cache"
	"github.com/stm32-tools/stm32-devkit/errs"
	"github.com/stm32-tools/stm32-devkit/locate"
	"github.com/stm32-tools/stm32-devkit/runner"
	"github.com/stm32-tools/stm32-devkit/toolchain"
)

const memoryTable = `Memory region         Used Size  Region Size  %age Used
           FLASH:       12345 B     65536 B     18.8%
             RAM:        2048 B    131072 B      1.6%
`

// fakeRunner records every invocation and replays a per-command result
// keyed on the executable name.
type fakeRunner struct {
	onPath  map[string]string
	results map[string]runner.Result
	calls   []runner.Options
}

func (f *fakeRunner) Run(ctx context.Context, opts runner.Options) runner.Result {
	f.calls = append(f.calls, opts)
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

func (f *fakeRunner) TerminateByName(name string) bool { return false }

func (f *fakeRunner) Version(ctx context.Context, command, flag string) string { return "" }

func fullToolSet() map[string]string {
	return map[string]string{
		toolchain.Compiler:          "/usr/bin/arm-none-eabi-gcc",
		toolchain.MultiArchDebugger: "/usr/bin/gdb-multiarch",
		toolchain.Daemon:            "/usr/bin/openocd",
		toolchain.Make:              "/usr/bin/make",
		toolchain.CMake:             "/usr/bin/cmake",
	}
}

func newTestOrchestrator(f *fakeRunner) *Orchestrator {
	platform := &locate.Platform{OS: "linux"} // no install roots, lookups come from the fake
	detector := toolchain.NewDetector(f, platform, &cache.Slot[toolchain.Snapshot]{}, nil)
	return NewOrchestrator(f, detector)
}

func TestProfiles(t *testing.T) {
	all := Profiles()
	require.Len(t, all, 6)
	for _, p := range all {
		require.NotEmpty(t, p.ID)
		require.NotEmpty(t, p.Flags)
		require.NotEmpty(t, p.Description)
	}

	debug, ok := ProfileByID("debug")
	require.True(t, ok)
	require.Contains(t, debug.Flags, "-Og")

	size, ok := ProfileByID("size")
	require.True(t, ok)
	require.Contains(t, size.Flags, "-Os")

	_, ok = ProfileByID("ludicrous")
	require.False(t, ok)
}

func TestParseMemoryUsage(t *testing.T) {
	usage := ParseMemoryUsage(memoryTable)
	require.NotNil(t, usage)
	require.Equal(t, int64(12345), usage.Flash.UsedBytes)
	require.Equal(t, int64(65536), usage.Flash.TotalBytes)
	require.Equal(t, 18.8, usage.Flash.Percent)
	require.Equal(t, int64(2048), usage.RAM.UsedBytes)
	require.Equal(t, int64(131072), usage.RAM.TotalBytes)
	require.Equal(t, 1.6, usage.RAM.Percent)
}

func TestParseMemoryUsageUnits(t *testing.T) {
	out := "FLASH:  12 KB  1 MB  1.2%\n RAM:  2 KB  128 KB  1.6%\n"
	usage := ParseMemoryUsage(out)
	require.NotNil(t, usage)
	require.Equal(t, int64(12*1024), usage.Flash.UsedBytes)
	require.Equal(t, int64(1024*1024), usage.Flash.TotalBytes)
	require.Equal(t, int64(128*1024), usage.RAM.TotalBytes)
}

func TestParseMemoryUsageRequiresBothRows(t *testing.T) {
	require.Nil(t, ParseMemoryUsage("FLASH:  12345 B  65536 B  18.8%\n"))
	require.Nil(t, ParseMemoryUsage("no table here"))
}

func TestClassifyDiagnostics(t *testing.T) {
	out := strings.Join([]string{
		"main.c:10:5: warning: unused variable 'x'",
		"main.c:20:1: error: expected ';' before '}' token",
		"collect2: error: ld returned 1 exit status",
		"note: each undeclared identifier is reported once",
		"",
	}, "\n")
	errors, warnings := ClassifyDiagnostics(out)
	require.Len(t, errors, 2)
	require.Len(t, warnings, 1)

	// a line carrying both markers counts as an error only
	errors, warnings = ClassifyDiagnostics("error: warning level exceeded")
	require.Len(t, errors, 1)
	require.Empty(t, warnings)
}

func TestBuildMakeInvocation(t *testing.T) {
	f := &fakeRunner{
		onPath: fullToolSet(),
		results: map[string]runner.Result{
			"make": {Stdout: memoryTable, ExitCode: 0},
		},
	}
	root := paths.New(t.TempDir())
	outcome, err := newTestOrchestrator(f).Build(context.Background(), root, SystemMake, "release")
	require.NoError(t, err)
	require.True(t, outcome.Success)
	require.NotNil(t, outcome.Memory)
	require.Empty(t, outcome.Errors)

	require.Len(t, f.calls, 1)
	call := f.calls[0]
	require.Equal(t, "/usr/bin/make", call.Args[0])
	require.Regexp(t, `^-j\d+$`, call.Args[1])
	require.Equal(t, "OPT=-O3", call.Args[2])
	require.Equal(t, "LDFLAGS+=-Wl,--gc-sections -Wl,--print-memory-usage", call.Args[3])
	require.Equal(t, root.String(), call.Dir.String())
}

func TestBuildFailureStillYieldsOutcome(t *testing.T) {
	f := &fakeRunner{
		onPath: fullToolSet(),
		results: map[string]runner.Result{
			"make": {Stderr: "main.c:20:1: error: expected ';'\n", ExitCode: 2},
		},
	}
	outcome, err := newTestOrchestrator(f).Build(context.Background(), paths.New(t.TempDir()), SystemMake, "debug")
	require.NoError(t, err)
	require.False(t, outcome.Success)
	require.Len(t, outcome.Errors, 1)
	require.Nil(t, outcome.Memory)
}

func TestBuildTimeoutReported(t *testing.T) {
	f := &fakeRunner{
		onPath: fullToolSet(),
		results: map[string]runner.Result{
			"make": {Stdout: "compiling...", ExitCode: -1, TimedOut: true},
		},
	}
	outcome, err := newTestOrchestrator(f).Build(context.Background(), paths.New(t.TempDir()), SystemMake, "debug")
	require.NoError(t, err)
	require.False(t, outcome.Success)
	require.NotEmpty(t, outcome.Errors)
	require.Contains(t, outcome.Errors[len(outcome.Errors)-1], "ceiling")
}

func TestBuildUnknownProfileFailsBeforeRunning(t *testing.T) {
	f := &fakeRunner{onPath: fullToolSet()}
	_, err := newTestOrchestrator(f).Build(context.Background(), paths.New(t.TempDir()), SystemMake, "ludicrous")
	require.Error(t, err)
	require.Equal(t, errs.KindBuildConfig, errs.KindOf(err))
	require.Empty(t, f.calls)
}

func TestBuildMissingToolchain(t *testing.T) {
	tools := fullToolSet()
	delete(tools, toolchain.Compiler)
	f := &fakeRunner{onPath: tools}
	_, err := newTestOrchestrator(f).Build(context.Background(), paths.New(t.TempDir()), SystemMake, "debug")
	require.Error(t, err)
	require.Equal(t, errs.KindToolchainNotFound, errs.KindOf(err))
	require.Contains(t, err.Error(), toolchain.Compiler)
}

func TestBuildCMakeRequiresCMake(t *testing.T) {
	tools := fullToolSet()
	delete(tools, toolchain.CMake)
	f := &fakeRunner{onPath: tools}

	// the make system tolerates the missing optional tool
	_, err := newTestOrchestrator(f).Build(context.Background(), paths.New(t.TempDir()), SystemMake, "debug")
	require.NoError(t, err)

	_, err = newTestOrchestrator(f).Build(context.Background(), paths.New(t.TempDir()), SystemCMake, "debug")
	require.Error(t, err)
	require.Equal(t, errs.KindToolchainNotFound, errs.KindOf(err))
}

func TestBuildCMakeConfiguresThenBuilds(t *testing.T) {
	f := &fakeRunner{
		onPath: fullToolSet(),
		results: map[string]runner.Result{
			"cmake": {ExitCode: 0},
			"make":  {Stdout: memoryTable, ExitCode: 0},
		},
	}
	root := paths.New(t.TempDir())
	outcome, err := newTestOrchestrator(f).Build(context.Background(), root, SystemCMake, "size")
	require.NoError(t, err)
	require.True(t, outcome.Success)

	require.Len(t, f.calls, 2)
	configure := f.calls[0]
	require.Equal(t, "/usr/bin/cmake", configure.Args[0])
	require.Contains(t, configure.Args, "-DCMAKE_BUILD_TYPE=MinSizeRel")
	require.Equal(t, root.String(), configure.Dir.String())

	// the compile step runs inside the generated build directory
	require.Equal(t, root.Join(BuildDirName).String(), f.calls[1].Dir.String())
}

func TestBuildCMakeConfigureFailure(t *testing.T) {
	f := &fakeRunner{
		onPath: fullToolSet(),
		results: map[string]runner.Result{
			"cmake": {Stderr: "CMake Error: CMakeLists.txt not found", ExitCode: 1},
		},
	}
	_, err := newTestOrchestrator(f).Build(context.Background(), paths.New(t.TempDir()), SystemCMake, "debug")
	require.Error(t, err)
	require.Equal(t, errs.KindBuildConfig, errs.KindOf(err))
	require.Len(t, f.calls, 1)
}

func TestCleanMake(t *testing.T) {
	f := &fakeRunner{
		onPath:  fullToolSet(),
		results: map[string]runner.Result{"make": {ExitCode: 0}},
	}
	root := paths.New(t.TempDir())
	require.NoError(t, newTestOrchestrator(f).Clean(context.Background(), root, SystemMake))
	require.Len(t, f.calls, 1)
	require.Equal(t, []string{"/usr/bin/make", "clean"}, f.calls[0].Args)
}

func TestCleanCMakeRemovesBuildDir(t *testing.T) {
	f := &fakeRunner{onPath: fullToolSet()}
	root := paths.New(t.TempDir())
	buildDir := root.Join(BuildDirName)
	require.NoError(t, buildDir.MkdirAll())
	require.NoError(t, buildDir.Join("firmware.elf").WriteFile(nil))

	require.NoError(t, newTestOrchestrator(f).Clean(context.Background(), root, SystemCMake))
	require.False(t, buildDir.Exist())
	require.Empty(t, f.calls)

	// nothing left to clean is not an error
	require.NoError(t, newTestOrchestrator(f).Clean(context.Background(), root, SystemCMake))
}

func TestCMakeBuildTypeMapping(t *testing.T) {
	require.Equal(t, "Release", cmakeBuildType("release"))
	require.Equal(t, "Release", cmakeBuildType("speed"))
	require.Equal(t, "RelWithDebInfo", cmakeBuildType("release-debug"))
	require.Equal(t, "MinSizeRel", cmakeBuildType("size"))
	require.Equal(t, "Debug", cmakeBuildType("debug"))
	require.Equal(t, "Debug", cmakeBuildType("none"))
}
