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

// Package toolchain locates the external programs needed to build and flash
// STM32 firmware: the arm-none-eabi compiler, a GDB debugger, the OpenOCD
// flashing daemon and the make/cmake build generators.
package toolchain

import (
	"context"
	"fmt"
	"strings"

	"github.com/arduino/go-paths-helper"
	"github.com/sirupsen/logrus"
	semver "go.bug.st/relaxed-semver"
	"golang.org/x/exp/slices"

	"github.com/stm32-tools/stm32-devkit/cache"
	"github.com/stm32-tools/stm32-devkit/locate"
	"github.com/stm32-tools/stm32-devkit/runner"
)

// Canonical tool names. The debugger has two candidate executables; the
// snapshot always reports it under Debugger.
const (
	Compiler          = "arm-none-eabi-gcc"
	Debugger          = "arm-none-eabi-gdb"
	MultiArchDebugger = "gdb-multiarch"
	Daemon            = "openocd"
	Make              = "make"
	CMake             = "cmake"
	ObjCopy           = "arm-none-eabi-objcopy"
)

// optionalTools are excluded from Validate's required set. cmake projects
// validate cmake explicitly before configuring.
var optionalTools = []string{CMake, ObjCopy}

// Tool is the detection result for a single external program.
type Tool struct {
	Name    string
	Found   bool
	Path    *paths.Path
	Version string
	Message string
}

// Snapshot holds one Tool per required program, in detection order. A
// snapshot is immutable once produced; it is re-derived only after the cache
// slot is cleared.
type Snapshot struct {
	Tools []*Tool
}

// Get returns the descriptor for a tool name, nil when the name is unknown.
func (s *Snapshot) Get(name string) *Tool {
	for _, t := range s.Tools {
		if t.Name == name {
			return t
		}
	}
	return nil
}

// PathOf returns the resolved path of a found tool, nil otherwise.
func (s *Snapshot) PathOf(name string) *paths.Path {
	if t := s.Get(name); t != nil && t.Found {
		return t.Path
	}
	return nil
}

// Validate reports whether every required tool was found, and the names of
// the missing ones in detection order.
func (s *Snapshot) Validate() (allSatisfied bool, missing []string) {
	for _, t := range s.Tools {
		if slices.Contains(optionalTools, t.Name) {
			continue
		}
		if !t.Found {
			missing = append(missing, t.Name)
		}
	}
	return len(missing) == 0, missing
}

// Detector probes the machine for the toolchain. Results are cached in the
// injected slot; detection is repeated only after Clear.
type Detector struct {
	runner    runner.Runner
	platform  *locate.Platform
	snapshot  *cache.Slot[Snapshot]
	overrides map[string]string // tool name -> configured path
}

// NewDetector builds a Detector. overrides may be nil; entries point a tool
// name at an explicit executable path, skipping detection for that tool.
func NewDetector(r runner.Runner, platform *locate.Platform, slot *cache.Slot[Snapshot], overrides map[string]string) *Detector {
	return &Detector{
		runner:    r,
		platform:  platform,
		snapshot:  slot,
		overrides: overrides,
	}
}

// Detect returns the toolchain snapshot, probing the machine on the first
// call and serving the cached snapshot afterwards. The cache is populated in
// a single assignment after every tool has been probed, so a concurrent
// reader never observes a partial snapshot.
func (d *Detector) Detect(ctx context.Context) *Snapshot {
	if snap := d.snapshot.Get(); snap != nil {
		return snap
	}
	snap := &Snapshot{
		Tools: []*Tool{
			d.detectTool(ctx, Compiler, d.candidates(Compiler)),
			d.detectDebugger(ctx),
			d.detectTool(ctx, Daemon, d.candidates(Daemon)),
			d.detectTool(ctx, Make, d.candidates(Make)),
			d.detectTool(ctx, CMake, d.candidates(CMake)),
			d.detectTool(ctx, ObjCopy, d.candidates(ObjCopy)),
		},
	}
	d.snapshot.Set(snap)
	return snap
}

// ClearCache drops the cached snapshot; the next Detect re-probes the path.
func (d *Detector) ClearCache() {
	d.snapshot.Clear()
}

func (d *Detector) candidates(name string) []string {
	return []string{name}
}

// detectDebugger prefers the multi-arch GDB on linux, where distributions
// ship it instead of the arm-none-eabi build; elsewhere the vendor name is
// tried first.
func (d *Detector) detectDebugger(ctx context.Context) *Tool {
	names := []string{Debugger, MultiArchDebugger}
	if d.platform.OS == "linux" {
		names = []string{MultiArchDebugger, Debugger}
	}
	t := d.detectTool(ctx, Debugger, names)
	return t
}

// detectTool resolves one tool: configured override first, then the search
// path (which always wins over common locations), then the platform's common
// install roots.
func (d *Detector) detectTool(ctx context.Context, name string, candidates []string) *Tool {
	if override := d.overrides[name]; override != "" {
		p := paths.New(override)
		if isRunnable(p) {
			return &Tool{Name: name, Found: true, Path: p, Version: d.version(ctx, p)}
		}
		logrus.Warnf("configured path for %s does not exist: %s", name, override)
	}

	for _, candidate := range candidates {
		if p := d.runner.LookPath(candidate); p != nil {
			return &Tool{Name: name, Found: true, Path: p, Version: d.version(ctx, p)}
		}
	}
	for _, candidate := range candidates {
		if p := d.platform.FindTool(d.platform.ExeName(candidate)); p != nil {
			logrus.Debugf("%s not on PATH, found in %s", name, p)
			return &Tool{Name: name, Found: true, Path: locate.ResolveSymlinks(p), Version: d.version(ctx, p)}
		}
	}
	return &Tool{
		Name:    name,
		Found:   false,
		Message: fmt.Sprintf("%s not found on PATH or in common install locations", name),
	}
}

// version fetches and normalizes the tool's version banner. Best effort: a
// missing or unparseable version is not an error.
func (d *Detector) version(ctx context.Context, tool *paths.Path) string {
	raw := d.runner.Version(ctx, tool.String(), "--version")
	if raw == "" {
		return ""
	}
	return semver.ParseRelaxed(raw).String()
}

func isRunnable(p *paths.Path) bool {
	info, err := p.Stat()
	return err == nil && !info.IsDir()
}

// Report renders the snapshot for humans: one line per tool with a
// found/not-found marker, path and version.
func (s *Snapshot) Report() string {
	var b strings.Builder
	for _, t := range s.Tools {
		if t.Found {
			fmt.Fprintf(&b, "  ✔ %-22s %s", t.Name, t.Path)
			if t.Version != "" {
				fmt.Fprintf(&b, " (%s)", t.Version)
			}
		} else {
			fmt.Fprintf(&b, "  ✘ %-22s %s", t.Name, t.Message)
		}
		b.WriteString("\n")
	}
	return strings.TrimRight(b.String(), "\n")
}
