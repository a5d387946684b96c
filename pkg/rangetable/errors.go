// Copyright 2026 The gVisor Authors.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package rangetable

import "errors"

var (
	// ErrTableFull is returned when an insertion would exceed the
	// descriptor or permission capacity fixed at table creation.
	ErrTableFull = errors.New("range table full")

	// ErrNotMapped is returned when no cell covers an address.
	ErrNotMapped = errors.New("address not mapped")

	// ErrOverlap is returned when a new range intersects an existing cell.
	ErrOverlap = errors.New("range overlaps an existing cell")

	// ErrAllocation is returned when the backing region cannot be
	// allocated.
	ErrAllocation = errors.New("range table allocation failed")

	// ErrUnaligned is returned for addresses or lengths that are not page
	// aligned.
	ErrUnaligned = errors.New("address or length not page aligned")

	// ErrInvalidLength is returned for empty or overflowing ranges.
	ErrInvalidLength = errors.New("invalid range length")

	// ErrOutOfRange is returned for page numbers that do not fit in their
	// descriptor fields.
	ErrOutOfRange = errors.New("page number exceeds descriptor field")

	// ErrRangeMismatch is returned when an operation names a range that is
	// not exactly one cell.
	ErrRangeMismatch = errors.New("range does not match cell bounds")

	// ErrBadDivision is returned for a security division outside [0, M).
	ErrBadDivision = errors.New("invalid security division")

	// ErrFlagBounds is returned when a permission byte would fall outside
	// its division band or the backing region.
	ErrFlagBounds = errors.New("permission byte out of bounds")

	// ErrGeometry is returned for an inconsistent N/M/S/T geometry.
	ErrGeometry = errors.New("invalid range table geometry")

	// ErrPermission is returned by Touch when a cell does not grant the
	// requested access.
	ErrPermission = errors.New("access not permitted")
)
