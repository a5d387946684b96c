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
	"gvisor.dev/seccells/pkg/hostarch"
)

// Descriptor is one 128-bit cell descriptor, held as the two 64-bit words
// the hardware reads. Upper is stored first in the table image.
//
// Setters mask their argument to the field width and leave every other bit
// of both words untouched. Callers that take page numbers from outside the
// table check them with FitsVirtualPage / FitsPhysicalPage first.
type Descriptor struct {
	Upper uint64
	Lower uint64
}

// PBase returns the physical page number.
func (d Descriptor) PBase() uint64 {
	return bits.Field64(d.Upper, pbaseShift-halfShift, pfnBits)
}

// VBase returns the first virtual page number (inclusive).
func (d Descriptor) VBase() uint64 {
	return bits.Field64(d.Lower, vbaseShift, vfnBits)
}

// VBound returns the end virtual page number (exclusive). The low 28 bits
// live at the top of Lower and the high 8 bits at the bottom of Upper.
func (d Descriptor) VBound() uint64 {
	lo := bits.Field64(d.Lower, vboundShift, vboundLowBits)
	hi := bits.Field64(d.Upper, 0, vboundHighBits)
	return hi<<vboundLowBits | lo
}

// Valid returns the valid bit.
func (d Descriptor) Valid() bool {
	return bits.Field64(d.Upper, validShift-halfShift, 1) != 0
}

// SetPBase sets the physical page number.
func (d *Descriptor) SetPBase(pbase uint64) {
	d.Upper = bits.SetField64(d.Upper, pbaseShift-halfShift, pfnBits, pbase)
}

// SetVBase sets the first virtual page number.
func (d *Descriptor) SetVBase(vbase uint64) {
	d.Lower = bits.SetField64(d.Lower, vbaseShift, vfnBits, vbase)
}

// SetVBound sets the end virtual page number.
func (d *Descriptor) SetVBound(vbound uint64) {
	d.Lower = bits.SetField64(d.Lower, vboundShift, vboundLowBits, vbound)
	d.Upper = bits.SetField64(d.Upper, 0, vboundHighBits, vbound>>vboundLowBits)
}

// SetValid sets the valid bit.
func (d *Descriptor) SetValid() {
	d.Upper = bits.SetField64(d.Upper, validShift-halfShift, 1, 1)
}

// ClearValid clears the valid bit.
func (d *Descriptor) ClearValid() {
	d.Upper = bits.SetField64(d.Upper, validShift-halfShift, 1, 0)
}

// Virtual returns the virtual address range described by d.
func (d Descriptor) Virtual() hostarch.AddrRange {
	return hostarch.AddrRange{
		Start: hostarch.AddrFromPageNumber(d.VBase()),
		End:   hostarch.AddrFromPageNumber(d.VBound()),
	}
}

// String implements fmt.Stringer.String.
func (d Descriptor) String() string {
	return fmt.Sprintf("{valid=%t pbase=%#x vbase=%#x vbound=%#x}", d.Valid(), d.PBase(), d.VBase(), d.VBound())
}

// NewDescriptor returns a valid descriptor mapping virtual pages
// [vbase, vbound) to physical page pbase.
func NewDescriptor(pbase, vbase, vbound uint64) Descriptor {
	var d Descriptor
	d.SetPBase(pbase)
	d.SetVBase(vbase)
	d.SetVBound(vbound)
	d.SetValid()
	return d
}

// FitsVirtualPage returns true if pn fits in the vbase/vbound fields.
func FitsVirtualPage(pn uint64) bool {
	return bits.Fits64(pn, vfnBits)
}

// FitsPhysicalPage returns true if pn fits in the pbase field.
func FitsPhysicalPage(pn uint64) bool {
	return bits.Fits64(pn, pfnBits)
}
