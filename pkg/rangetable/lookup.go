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

	"gvisor.dev/seccells/pkg/hostarch"
)

// Lookup returns the index of the cell containing vaddr, or MetaCell if no
// cell does.
//
// The result is only meaningful until the next mutation; callers that act
// on it must hold their own serialization or use the mutation methods,
// which look up under the table lock.
func (t *Table) Lookup(vaddr hostarch.Addr) uint32 {
	s := t.mu.LockIRQ()
	defer t.mu.UnlockIRQ(s)
	return t.lookupLocked(vaddr)
}

// lookupLocked binary searches slots [1, N). vbase is inclusive and vbound
// exclusive, so an address equal to a cell's vbound belongs to the next
// cell.
//
// Preconditions: t.mu is held.
func (t *Table) lookupLocked(vaddr hostarch.Addr) uint32 {
	pn := vaddr.PageNumber()
	if !FitsVirtualPage(pn) {
		return MetaCell
	}
	lo, hi := uint32(1), t.metaLocked().N()
	for lo < hi {
		mid := lo + (hi-lo)/2
		d := t.descLocked(mid)
		switch {
		case pn < d.VBase():
			hi = mid
		case pn >= d.VBound():
			lo = mid + 1
		default:
			return mid
		}
	}
	return MetaCell
}

// insertionIndexLocked returns the first index in [1, n) whose vbound is
// above vbase, or n if there is none.
//
// Preconditions: t.mu is held.
func (t *Table) insertionIndexLocked(vbase uint64, n uint32) uint32 {
	lo, hi := uint32(1), n
	for lo < hi {
		mid := lo + (hi-lo)/2
		if t.descLocked(mid).VBound() > vbase {
			hi = mid
		} else {
			lo = mid + 1
		}
	}
	return lo
}

// Translate returns the physical address vaddr maps to and the supervisor
// permissions of its cell.
func (t *Table) Translate(vaddr hostarch.Addr) (phys uint64, flags Flags, ok bool) {
	s := t.mu.LockIRQ()
	defer t.mu.UnlockIRQ(s)
	idx := t.lookupLocked(vaddr)
	if idx == MetaCell {
		return 0, 0, false
	}
	c := t.cellLocked(idx, SupervisorDivision)
	return c.Physical + uint64(vaddr-c.Virtual.Start), c.Flags, true
}

// CellAt returns the cell containing vaddr with its flags in division sd.
func (t *Table) CellAt(vaddr hostarch.Addr, sd uint32) (Cell, error) {
	if sd >= t.geo.M {
		return Cell{}, fmt.Errorf("%w: %d not in [0, %d)", ErrBadDivision, sd, t.geo.M)
	}
	s := t.mu.LockIRQ()
	defer t.mu.UnlockIRQ(s)
	idx := t.lookupLocked(vaddr)
	if idx == MetaCell {
		return Cell{}, fmt.Errorf("%w: %v", ErrNotMapped, vaddr)
	}
	return t.cellLocked(idx, sd), nil
}
