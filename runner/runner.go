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

// Package runner executes the external toolchain programs. Every subprocess
// the engine spawns goes through a Runner, so detectors and orchestrators can
// be tested against a fake without touching the machine.
package runner

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"regexp"
	"runtime"
	"strings"
	"time"

	"github.com/arduino/go-paths-helper"
	"github.com/sirupsen/logrus"
)

// DefaultTimeout bounds subprocess invocations that don't ask for their own.
const DefaultTimeout = 30 * time.Second

// Options describes a single subprocess invocation. Args[0] is the command.
type Options struct {
	Args    []string
	Dir     *paths.Path
	Timeout time.Duration
}

// Result is what a subprocess produced. Run never returns a Go error: a
// command that could not be started, failed, or timed out surfaces here as a
// non-zero ExitCode with whatever partial output was captured.
type Result struct {
	Stdout   string
	Stderr   string
	ExitCode int
	TimedOut bool
}

// Combined returns stdout and stderr concatenated, for parsers that scan
// tool output without caring which stream a line came from.
func (r Result) Combined() string {
	if r.Stderr == "" {
		return r.Stdout
	}
	return r.Stdout + "\n" + r.Stderr
}

// Runner abstracts subprocess execution and search-path probing.
type Runner interface {
	// Run executes the command and always returns a Result.
	Run(ctx context.Context, opts Options) Result
	// LookPath resolves a command on the search path, nil when absent.
	LookPath(name string) *paths.Path
	// TerminateByName force-kills every process matching name. It reports
	// whether any termination command succeeded.
	TerminateByName(name string) bool
	// Version runs the command with a version flag and extracts a dotted
	// numeric version from the first output line. Best effort: returns the
	// raw trimmed line when no numeric pattern matches, "" when the command
	// produced nothing.
	Version(ctx context.Context, command, flag string) string
}

// Local runs commands on the host machine.
type Local struct{}

// NewLocal returns a Runner backed by os/exec.
func NewLocal() *Local {
	return &Local{}
}

func (l *Local) Run(ctx context.Context, opts Options) Result {
	if len(opts.Args) == 0 {
		return Result{ExitCode: -1, Stderr: "no command given"}
	}
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, opts.Args[0], opts.Args[1:]...)
	if opts.Dir != nil {
		cmd.Dir = opts.Dir.String()
	}
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	logrus.WithField("dir", cmd.Dir).Debugf("running: %s", strings.Join(opts.Args, " "))
	err := cmd.Run()

	res := Result{
		Stdout: stdout.String(),
		Stderr: stderr.String(),
	}
	if ctx.Err() == context.DeadlineExceeded {
		res.TimedOut = true
		res.ExitCode = -1
		res.Stderr += fmt.Sprintf("\n%s: timed out after %s", opts.Args[0], timeout)
		return res
	}
	if err != nil {
		if exitErr, ok := err.(*exec.ExitError); ok {
			res.ExitCode = exitErr.ExitCode()
		} else {
			// start failure: command missing, permission denied, ...
			res.ExitCode = -1
			res.Stderr += err.Error()
		}
	}
	return res
}

func (l *Local) LookPath(name string) *paths.Path {
	lookup := "which"
	if runtime.GOOS == "windows" {
		lookup = "where"
	}
	res := l.Run(context.Background(), Options{
		Args:    []string{lookup, name},
		Timeout: 10 * time.Second,
	})
	if res.ExitCode != 0 {
		return nil
	}
	line := firstLine(res.Stdout)
	if line == "" {
		return nil
	}
	return paths.New(line)
}

func (l *Local) TerminateByName(name string) bool {
	var attempts [][]string
	switch runtime.GOOS {
	case "windows":
		exe := name
		if !strings.HasSuffix(strings.ToLower(exe), ".exe") {
			exe += ".exe"
		}
		attempts = [][]string{{"taskkill", "/F", "/IM", exe}}
	case "darwin":
		attempts = [][]string{{"killall", "-9", name}, {"pkill", "-9", "-f", name}}
	default:
		attempts = [][]string{{"pkill", "-9", "-f", name}}
	}
	killed := false
	for _, args := range attempts {
		res := l.Run(context.Background(), Options{Args: args, Timeout: 10 * time.Second})
		if res.ExitCode == 0 {
			killed = true
		}
	}
	return killed
}

func (l *Local) Version(ctx context.Context, command, flag string) string {
	res := l.Run(ctx, Options{
		Args:    []string{command, flag},
		Timeout: 15 * time.Second,
	})
	// Some tools print their banner on stderr.
	out := res.Stdout
	if strings.TrimSpace(out) == "" {
		out = res.Stderr
	}
	return ExtractVersion(out)
}

var versionPattern = regexp.MustCompile(`\d+(\.\d+)+`)

// ExtractVersion pulls a dotted numeric version out of the first line of a
// tool's version banner, falling back to the raw trimmed line.
func ExtractVersion(output string) string {
	line := firstLine(output)
	if line == "" {
		return ""
	}
	if m := versionPattern.FindString(line); m != "" {
		return m
	}
	return line
}

func firstLine(s string) string {
	s = strings.TrimSpace(s)
	if i := strings.IndexAny(s, "\r\n"); i >= 0 {
		s = s[:i]
	}
	return strings.TrimSpace(s)
}
