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

import (
	"fmt"
	"math"

	"gvisor.dev/seccells/pkg/hostarch"
)

// Geometry holds the table-wide sizing counters. S and T are fixed when the
// table is created and never recomputed as N changes.
type Geometry struct {
	// M is the number of security divisions.
	M uint32

	// S is the number of cache lines reserved for descriptors.
	S uint32

	// T is the number of cache lines of permission bytes per division.
	T uint32
}

// DescriptorBytes returns the size of the descriptor region.
func (g Geometry) DescriptorBytes() uint64 {
	return uint64(g.S) * hostarch.CacheLineSize
}

// BandBytes returns the size of one division's permission band.
func (g Geometry) BandBytes() uint64 {
	return uint64(g.T) * hostarch.CacheLineSize
}

// Size returns the number of bytes the table image occupies.
func (g Geometry) Size() uint64 {
	return g.DescriptorBytes() + uint64(g.M)*g.BandBytes()
}

// Capacity returns the largest N the geometry supports: the smaller of the
// descriptor slot count and the permission bytes per band.
func (g Geometry) Capacity() uint32 {
	c := min(g.DescriptorBytes()/CellDescSize, g.BandBytes()/CellPermSize)
	if c > math.MaxUint32 {
		return math.MaxUint32
	}
	return uint32(c)
}

// Validate checks that g describes a usable table that fits in size bytes.
func (g Geometry) Validate(size uint64) error {
	switch {
	case g.M == 0:
		return fmt.Errorf("%w: no security divisions", ErrGeometry)
	case g.S == 0 || g.T == 0:
		return fmt.Errorf("%w: S=%d T=%d", ErrGeometry, g.S, g.T)
	case g.Capacity() < 2:
		return fmt.Errorf("%w: capacity %d leaves no room for cells", ErrGeometry, g.Capacity())
	case g.Size() > size:
		return fmt.Errorf("%w: needs %#x bytes, region has %#x", ErrGeometry, g.Size(), size)
	}
	return nil
}

// FlagOffset returns the byte offset, from the table base, of the
// permission byte for cell in division sd:
//
//	S*CacheLineSize + sd*T*CacheLineSize + cell
//
// This is the only permission addressing formula used by the table.
func (g Geometry) FlagOffset(cell, sd uint32) (uint64, error) {
	if sd >= g.M {
		return 0, fmt.Errorf("%w: %d not in [0, %d)", ErrBadDivision, sd, g.M)
	}
	if uint64(cell) >= g.BandBytes() {
		return 0, fmt.Errorf("%w: cell %d exceeds band of %d bytes", ErrFlagBounds, cell, g.BandBytes())
	}
	return g.DescriptorBytes() + uint64(sd)*g.BandBytes() + uint64(cell), nil
}

// String implements fmt.Stringer.String.
func (g Geometry) String() string {
	return fmt.Sprintf("{M=%d S=%d T=%d capacity=%d size=%#x}", g.M, g.S, g.T, g.Capacity(), g.Size())
}

// SizeGeometry returns the geometry with the most capacity for m divisions
// in size bytes. Descriptor slots and permission bytes are balanced, so
// S = CacheLineSize/CellsPerLine * T = 16*T.
func SizeGeometry(size uint64, m uint32) (Geometry, error) {
	if m == 0 {
		return Geometry{}, fmt.Errorf("%w: no security divisions", ErrGeometry)
	}
	const ratio = hostarch.CacheLineSize / CellsPerLine
	t := size / (hostarch.CacheLineSize * (ratio + uint64(m)))
	if t > math.MaxUint32/ratio {
		t = math.MaxUint32 / ratio
	}
	g := Geometry{M: m, S: uint32(t * ratio), T: uint32(t)}
	if err := g.Validate(size); err != nil {
		return Geometry{}, err
	}
	return g, nil
}
