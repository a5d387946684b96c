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

	"gvisor.dev/seccells/pkg/bits"
)

// Meta is the metadata cell in slot 0. It shares the descriptor slot
// layout: four 32-bit counters packed across Upper and Lower.
type Meta struct {
	Upper uint64
	Lower uint64
}

// N returns the slot count, including the metadata cell.
func (m Meta) N() uint32 {
	return uint32(bits.Field64(m.Upper, metaNShift-halfShift, metaFieldBits))
}

// M returns the number of security divisions.
func (m Meta) M() uint32 {
	return uint32(bits.Field64(m.Upper, metaMShift-halfShift, metaFieldBits))
}

// T returns the permission cache lines per division.
func (m Meta) T() uint32 {
	return uint32(bits.Field64(m.Lower, metaTShift, metaFieldBits))
}

// S returns the cache lines reserved for descriptors.
func (m Meta) S() uint32 {
	return uint32(bits.Field64(m.Lower, metaSShift, metaFieldBits))
}

// SetN sets N.
func (m *Meta) SetN(n uint32) {
	m.Upper = bits.SetField64(m.Upper, metaNShift-halfShift, metaFieldBits, uint64(n))
}

// SetM sets M.
func (m *Meta) SetM(v uint32) {
	m.Upper = bits.SetField64(m.Upper, metaMShift-halfShift, metaFieldBits, uint64(v))
}

// SetT sets T.
func (m *Meta) SetT(t uint32) {
	m.Lower = bits.SetField64(m.Lower, metaTShift, metaFieldBits, uint64(t))
}

// SetS sets S.
func (m *Meta) SetS(s uint32) {
	m.Lower = bits.SetField64(m.Lower, metaSShift, metaFieldBits, uint64(s))
}

// Geometry returns the M, S and T counters.
func (m Meta) Geometry() Geometry {
	return Geometry{M: m.M(), S: m.S(), T: m.T()}
}

// String implements fmt.Stringer.String.
func (m Meta) String() string {
	return fmt.Sprintf("{N=%d M=%d S=%d T=%d}", m.N(), m.M(), m.S(), m.T())
}
