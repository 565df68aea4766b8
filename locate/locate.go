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

// Package locate contains the platform-aware filesystem lookups: executable
// naming, common toolchain install roots, and bounded project-tree searches.
// The Platform object is built once at startup so the per-OS branching lives
// here instead of at every call site.
package locate

import (
	"os"
	"path/filepath"
	"regexp"
	"runtime"

	"github.com/arduino/go-paths-helper"
)

// Platform captures the host-OS specifics the detectors need. Roots lists
// the conventional install locations scanned when a tool is not on PATH;
// entries may contain glob patterns.
type Platform struct {
	OS        string
	Roots     []string
	exeSuffix string
}

// Detect builds the Platform for the current host.
func Detect() *Platform {
	home, _ := os.UserHomeDir()
	return ForOS(runtime.GOOS, home)
}

// ForOS builds a Platform for an explicit OS name. Split out from Detect so
// the per-OS tables are testable from any host.
func ForOS(osName, home string) *Platform {
	p := &Platform{OS: osName}
	switch osName {
	case "windows":
		p.exeSuffix = ".exe"
		p.Roots = []string{
			`C:\Program Files (x86)\GNU Arm Embedded Toolchain\*`,
			`C:\Program Files\GNU Arm Embedded Toolchain\*`,
			`C:\Program Files (x86)\GNU Tools ARM Embedded\*`,
			`C:\Program Files\OpenOCD*`,
			`C:\Program Files (x86)\SEGGER\*`,
			`C:\Program Files\SEGGER\*`,
			`C:\ST\*`,
			`C:\msys64\mingw64`,
		}
	case "darwin":
		p.Roots = []string{
			"/opt/homebrew",
			"/usr/local",
			"/Applications/ArmGNUToolchain/*/arm-none-eabi",
			"/Applications/ARM",
			filepath.Join(home, "gcc-arm-none-eabi*"),
		}
	default: // linux and friends
		p.Roots = []string{
			"/usr",
			"/usr/local",
			"/opt/gcc-arm-none-eabi*",
			"/opt/openocd",
			"/opt/SEGGER/JLink",
			filepath.Join(home, ".local"),
			filepath.Join(home, "gcc-arm-none-eabi*"),
		}
	}
	return p
}

// ExeName appends the platform executable suffix to a bare tool name.
func (p *Platform) ExeName(base string) string {
	return base + p.exeSuffix
}

// ToolRoots expands the common-installation-root table. Entries containing a
// glob pattern are expanded against the filesystem; entries that don't exist
// are kept out of the result.
func (p *Platform) ToolRoots() paths.PathList {
	roots := paths.PathList{}
	for _, root := range p.Roots {
		if !hasGlob(root) {
			if p := paths.New(root); p.Exist() {
				roots.Add(p)
			}
			continue
		}
		matches, err := filepath.Glob(root)
		if err != nil {
			continue
		}
		for _, m := range matches {
			roots.Add(paths.New(m))
		}
	}
	return roots
}

// FindTool scans <root>/bin/<exe> over the common install roots and returns
// the first hit with executable permission, or nil.
func (p *Platform) FindTool(exe string) *paths.Path {
	for _, root := range p.ToolRoots() {
		candidate := root.Join("bin", exe)
		if isExecutable(candidate, p.OS) {
			return candidate
		}
	}
	return nil
}

func hasGlob(s string) bool {
	for _, c := range s {
		if c == '*' || c == '?' || c == '[' {
			return true
		}
	}
	return false
}

func isExecutable(p *paths.Path, osName string) bool {
	info, err := p.Stat()
	if err != nil || info.IsDir() {
		return false
	}
	if osName == "windows" {
		return true
	}
	return info.Mode()&0111 != 0
}

// ResolveSymlinks follows symlinks to the real file, returning the input
// path unchanged when resolution fails.
func ResolveSymlinks(p *paths.Path) *paths.Path {
	resolved, err := filepath.EvalSymlinks(p.String())
	if err != nil {
		return p
	}
	return paths.New(resolved)
}

// skipped while walking a project tree: hidden dirs and build output carry
// no project descriptors.
var skippedDirs = map[string]bool{
	".git":         true,
	".svn":         true,
	"node_modules": true,
	"build":        true,
}

// FindFirst walks root up to maxDepth directory levels down and returns the
// first regular file whose name matches pattern, or nil. Directories are
// visited in lexical order so the result is deterministic.
func FindFirst(root *paths.Path, pattern *regexp.Regexp, maxDepth int) *paths.Path {
	if root == nil || !root.IsDir() {
		return nil
	}
	entries, err := root.ReadDir()
	if err != nil {
		return nil
	}
	entries.Sort()
	var dirs paths.PathList
	for _, entry := range entries {
		if entry.IsDir() {
			dirs.Add(entry)
			continue
		}
		if pattern.MatchString(entry.Base()) {
			return entry
		}
	}
	if maxDepth <= 0 {
		return nil
	}
	for _, dir := range dirs {
		if skippedDirs[dir.Base()] {
			continue
		}
		if found := FindFirst(dir, pattern, maxDepth-1); found != nil {
			return found
		}
	}
	return nil
}
