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

// Package common assembles the engine for the CLI commands: one runner, one
// platform probe, the explicit caches and the detectors/orchestrators wired
// on top of them.
package common

import (
	"fmt"
	"runtime"

	"github.com/arduino/go-paths-helper"
	"github.com/sirupsen/logrus"

	"github.com/stm32-tools/stm32-devkit/build"
	"github.com/stm32-tools/stm32-devkit/cache"
	"github.com/stm32-tools/stm32-devkit/cli/feedback"
	"github.com/stm32-tools/stm32-devkit/cli/globals"
	"github.com/stm32-tools/stm32-devkit/config"
	"github.com/stm32-tools/stm32-devkit/deviceinfo"
	"github.com/stm32-tools/stm32-devkit/flash"
	"github.com/stm32-tools/stm32-devkit/locate"
	"github.com/stm32-tools/stm32-devkit/programmer"
	"github.com/stm32-tools/stm32-devkit/runner"
	"github.com/stm32-tools/stm32-devkit/toolchain"
)

// Engine bundles the wired-up devkit components a command needs.
type Engine struct {
	Project     *paths.Path
	Config      *config.Config
	Runner      runner.Runner
	Platform    *locate.Platform
	Toolchain   *toolchain.Detector
	Programmers *programmer.Detector
	Devices     *deviceinfo.Identifier
	SVD         *deviceinfo.SVDFetcher
	Builder     *build.Orchestrator
	Flasher     *flash.Orchestrator

	toolchainCache *cache.Slot[toolchain.Snapshot]
	deviceCache    *cache.Slot[deviceinfo.Device]
}

// NewEngine resolves the project root, loads the workspace configuration
// and wires the engine. Configuration problems are fatal: they are user
// errors, not detection misses.
func NewEngine(projectDir string) *Engine {
	project := resolveProject(projectDir)
	cfg, err := config.Load(project)
	if err != nil {
		feedback.Fatal(fmt.Sprintf("Invalid workspace configuration: %s", err), feedback.ErrNoConfigFile)
	}

	r := runner.NewLocal()
	platform := locate.Detect()
	toolchainCache := &cache.Slot[toolchain.Snapshot]{}
	deviceCache := &cache.Slot[deviceinfo.Device]{}

	detector := toolchain.NewDetector(r, platform, toolchainCache, cfg.ToolPaths)
	probes := programmer.NewDetector(r, runtime.GOOS)
	if cfg.Programmer != "" {
		if kind, ok := programmer.ParseKind(cfg.Programmer); ok {
			probes.Prefer(kind)
		} else {
			logrus.Warnf("ignoring unknown programmer override %q", cfg.Programmer)
		}
	}

	return &Engine{
		Project:        project,
		Config:         cfg,
		Runner:         r,
		Platform:       platform,
		Toolchain:      detector,
		Programmers:    probes,
		Devices:        deviceinfo.NewIdentifier(deviceCache),
		SVD:            deviceinfo.NewSVDFetcher(globals.DevkitCachePath.Join("svd")),
		Builder:        build.NewOrchestrator(r, detector),
		Flasher:        flash.NewOrchestrator(r, detector, probes),
		toolchainCache: toolchainCache,
		deviceCache:    deviceCache,
	}
}

// ClearCaches drops the toolchain snapshot and the last identified device.
func (e *Engine) ClearCaches() {
	e.toolchainCache.Clear()
	e.deviceCache.Clear()
}

// Device identifies the project's target, falling back to the default
// device configuration when no artifact names one.
func (e *Engine) Device() deviceinfo.Device {
	if dev := e.Devices.Identify(e.Project); dev != nil {
		return *dev
	}
	logrus.Warn("could not identify the target device, assuming the default")
	return deviceinfo.DefaultDevice()
}

// Profile returns the flag-selected profile or the configured one.
func (e *Engine) Profile(flagValue string) string {
	if flagValue != "" {
		return flagValue
	}
	return e.Config.Profile
}

// BuildSystem returns the flag-selected build system or the configured one.
func (e *Engine) BuildSystem(flagValue string) build.System {
	id := flagValue
	if id == "" {
		id = e.Config.BuildSystem
	}
	system, ok := build.ParseSystem(id)
	if !ok {
		feedback.Fatal(fmt.Sprintf("Unknown build system: %s", id), feedback.ErrBadArgument)
	}
	return system
}

func resolveProject(projectDir string) *paths.Path {
	if projectDir != "" {
		p := paths.New(projectDir)
		if !p.IsDir() {
			feedback.Fatal(fmt.Sprintf("Project directory does not exist: %s", projectDir), feedback.ErrBadArgument)
		}
		return p
	}
	wd, err := paths.Getwd()
	if err != nil {
		feedback.Fatal(fmt.Sprintf("Cannot resolve the working directory: %s", err), feedback.ErrGeneric)
	}
	return wd
}
