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

// Package build drives the project's build system (make or cmake+make) with
// a selected optimization profile and parses the tool output into a
// structured outcome.
package build

import (
	"context"
	"fmt"
	"runtime"
	"strings"
	"time"

	"github.com/arduino/go-paths-helper"
	"github.com/sirupsen/logrus"

	"github.com/stm32-tools/stm32-devkit/errs"
	"github.com/stm32-tools/stm32-devkit/runner"
	"github.com/stm32-tools/stm32-devkit/toolchain"
)

// System selects the project's build system.
type System string

const (
	SystemMake  System = "make"
	SystemCMake System = "cmake"
)

// ParseSystem validates a build system identifier.
func ParseSystem(id string) (System, bool) {
	switch System(id) {
	case SystemMake, SystemCMake:
		return System(id), true
	}
	return "", false
}

// BuildDirName is where both build systems leave their artifacts, relative
// to the project root.
const BuildDirName = "build"

// Subprocess ceilings. Embedded builds on slow machines can take a while;
// exceeding the ceiling is reported as an ordinary failure with whatever
// output the tool produced.
const (
	buildTimeout     = 2 * time.Minute
	configureTimeout = 1 * time.Minute
	cleanTimeout     = 30 * time.Second
)

// Fixed linker flags: drop unreferenced sections and make the linker print
// the memory-usage table the outcome parser consumes.
const ldFlags = "LDFLAGS+=-Wl,--gc-sections -Wl,--print-memory-usage"

// Outcome is the result of one build invocation.
type Outcome struct {
	Success  bool
	Output   string
	Memory   *MemoryUsage
	Duration time.Duration
	Errors   []string
	Warnings []string
}

// Orchestrator validates the toolchain, runs the build and parses its
// output. One build at a time; the orchestrator holds no state between
// invocations.
type Orchestrator struct {
	runner   runner.Runner
	detector *toolchain.Detector
}

// NewOrchestrator builds an Orchestrator on the shared runner and toolchain
// detector.
func NewOrchestrator(r runner.Runner, detector *toolchain.Detector) *Orchestrator {
	return &Orchestrator{runner: r, detector: detector}
}

// Build compiles the project at root with the given build system and
// profile. Precondition failures (unknown profile, missing tools, failed
// configure step) are returned as typed errors before or instead of an
// Outcome; once the build tool has run, the result is always an Outcome
// with error nil, even for a failed compile.
func (o *Orchestrator) Build(ctx context.Context, root *paths.Path, system System, profileID string) (*Outcome, error) {
	profile, ok := ProfileByID(profileID)
	if !ok {
		return nil, errs.Newf(errs.KindBuildConfig, "unknown build profile %q", profileID)
	}
	if _, ok := ParseSystem(string(system)); !ok {
		return nil, errs.Newf(errs.KindBuildConfig, "unknown build system %q", system)
	}

	snapshot := o.detector.Detect(ctx)
	if err := o.validate(snapshot, system); err != nil {
		return nil, err
	}

	buildDir := root.Join(BuildDirName)
	if system == SystemCMake {
		if err := o.configure(ctx, snapshot, root, profile); err != nil {
			return nil, err
		}
	}

	makePath := snapshot.PathOf(toolchain.Make)
	args := []string{
		makePath.String(),
		fmt.Sprintf("-j%d", parallelism()),
		"OPT=" + strings.Join(profile.Flags, " "),
		ldFlags,
	}
	workDir := root
	if system == SystemCMake {
		workDir = buildDir
	}

	logrus.Infof("building with profile %q (%s)", profile.ID, profile.Description)
	start := time.Now()
	res := o.runner.Run(ctx, runner.Options{Args: args, Dir: workDir, Timeout: buildTimeout})
	duration := time.Since(start)

	output := res.Combined()
	errors, warnings := ClassifyDiagnostics(output)
	outcome := &Outcome{
		Success:  res.ExitCode == 0,
		Output:   output,
		Memory:   ParseMemoryUsage(output),
		Duration: duration,
		Errors:   errors,
		Warnings: warnings,
	}
	if res.TimedOut {
		outcome.Errors = append(outcome.Errors, fmt.Sprintf("build exceeded the %s ceiling", buildTimeout))
	}
	return outcome, nil
}

// validate fails fast when the tools this build needs are missing. cmake is
// optional in the snapshot but required when the cmake system is selected.
func (o *Orchestrator) validate(snapshot *toolchain.Snapshot, system System) error {
	ok, missing := snapshot.Validate()
	if system == SystemCMake {
		if t := snapshot.Get(toolchain.CMake); t == nil || !t.Found {
			ok = false
			missing = append(missing, toolchain.CMake)
		}
	}
	if !ok {
		return errs.New(errs.KindToolchainNotFound, "required tools are missing").WithDetails(missing...)
	}
	return nil
}

// configure runs the cmake generation step into the build directory.
func (o *Orchestrator) configure(ctx context.Context, snapshot *toolchain.Snapshot, root *paths.Path, profile Profile) error {
	cmakePath := snapshot.PathOf(toolchain.CMake)
	args := []string{
		cmakePath.String(),
		"-B", BuildDirName,
		"-G", "Unix Makefiles",
		"-DCMAKE_BUILD_TYPE=" + cmakeBuildType(profile.ID),
	}
	res := o.runner.Run(ctx, runner.Options{Args: args, Dir: root, Timeout: configureTimeout})
	if res.ExitCode != 0 {
		return errs.New(errs.KindBuildConfig, "cmake configuration failed").
			WithDetails(strings.TrimSpace(res.Stderr))
	}
	return nil
}

// cmakeBuildType maps a devkit profile onto the closest standard CMake
// build type; the real optimization flags still travel through OPT.
func cmakeBuildType(profileID string) string {
	switch profileID {
	case "release", "speed":
		return "Release"
	case "release-debug":
		return "RelWithDebInfo"
	case "size":
		return "MinSizeRel"
	default:
		return "Debug"
	}
}

// Clean removes build artifacts: the whole build directory for cmake
// projects, the build system's own clean target for make projects. Nothing
// to clean is not an error.
func (o *Orchestrator) Clean(ctx context.Context, root *paths.Path, system System) error {
	switch system {
	case SystemCMake:
		buildDir := root.Join(BuildDirName)
		if !buildDir.Exist() {
			return nil
		}
		if err := buildDir.RemoveAll(); err != nil {
			return errs.Newf(errs.KindBuildConfig, "cannot remove %s: %s", buildDir, err)
		}
	default:
		snapshot := o.detector.Detect(ctx)
		makePath := snapshot.PathOf(toolchain.Make)
		if makePath == nil {
			return nil
		}
		res := o.runner.Run(ctx, runner.Options{
			Args:    []string{makePath.String(), "clean"},
			Dir:     root,
			Timeout: cleanTimeout,
		})
		if res.ExitCode != 0 {
			logrus.Debugf("make clean exited %d: %s", res.ExitCode, strings.TrimSpace(res.Stderr))
		}
	}
	return nil
}

// parallelism returns the build's -j degree: the number of available
// processing units, minimum 1.
func parallelism() int {
	if n := runtime.NumCPU(); n > 1 {
		return n
	}
	return 1
}
