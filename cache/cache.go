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

// Package cache holds the only process-wide mutable state of the engine:
// the detected toolchain snapshot and the last identified device. Slots are
// created by the caller and injected into the detectors, so there is no
// ambient global state. A slot is either empty or holds a fully populated
// value; it is filled with a single assignment after detection completes.
package cache

// Slot caches a single detection result until explicitly cleared.
type Slot[T any] struct {
	value *T
}

// Get returns the cached value, or nil if the slot is empty.
func (s *Slot[T]) Get() *T {
	return s.value
}

// Set stores a fully populated value in the slot.
func (s *Slot[T]) Set(v *T) {
	s.value = v
}

// Clear empties the slot; the next detection will re-probe.
func (s *Slot[T]) Clear() {
	s.value = nil
}

// Filled reports whether the slot holds a value.
func (s *Slot[T]) Filled() bool {
	return s.value != nil
}
