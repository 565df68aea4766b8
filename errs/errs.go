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

// Package errs defines the typed failures produced by the devkit engine.
// Detection misses (tool not on disk, no programmer attached, device not
// identified) are NOT errors: detectors return empty results for those so
// callers can degrade gracefully. An *Error is only returned for genuine
// operation failures.
package errs

import (
	"errors"
	"fmt"
	"strings"
)

// Kind is the machine-readable failure category.
type Kind string

const (
	KindToolchainNotFound  Kind = "toolchain-not-found"
	KindBuildFailed        Kind = "build-failed"
	KindFlashFailed        Kind = "flash-failed"
	KindDeviceNotConnected Kind = "device-not-connected"
	KindDaemonError        Kind = "daemon-error"
	KindDebuggerError      Kind = "debugger-error"
	KindInvalidProject     Kind = "invalid-project"
	KindDebugDataDownload  Kind = "debug-data-download-failed"
	KindBuildConfig        Kind = "build-system-configuration-error"
)

// Error carries a Kind, a human readable message and optional structured
// details (for example the list of missing tools).
type Error struct {
	Kind    Kind
	Message string
	Details []string
}

func (e *Error) Error() string {
	if len(e.Details) == 0 {
		return e.Message
	}
	return e.Message + ": " + strings.Join(e.Details, ", ")
}

// New returns a typed failure.
func New(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

// Newf returns a typed failure with a formatted message.
func Newf(kind Kind, format string, args ...interface{}) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// WithDetails attaches structured details to the failure.
func (e *Error) WithDetails(details ...string) *Error {
	e.Details = append(e.Details, details...)
	return e
}

// KindOf extracts the failure kind from err, or "" if err is not a typed
// devkit failure.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ""
}
