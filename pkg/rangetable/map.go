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

// pageRange converts [vaddr, vaddr+length) to page numbers, checking
// alignment and field widths.
func pageRange(vaddr hostarch.Addr, length uint64) (ar hostarch.AddrRange, vbase, vbound uint64, err error) {
	if length == 0 {
		return ar, 0, 0, fmt.Errorf("%w: zero length at %v", ErrInvalidLength, vaddr)
	}
	ar, ok := vaddr.ToRange(length)
	if !ok {
		return ar, 0, 0, fmt.Errorf("%w: %v + %#x overflows", ErrInvalidLength, vaddr, length)
	}
	if !ar.IsPageAligned() {
		return ar, 0, 0, fmt.Errorf("%w: %v", ErrUnaligned, ar)
	}
	vbase, vbound = ar.Start.PageNumber(), ar.End.PageNumber()
	if !FitsVirtualPage(vbound) {
		return ar, 0, 0, fmt.Errorf("%w: %v", ErrOutOfRange, ar)
	}
	return ar, vbase, vbound, nil
}

// Map inserts a cell mapping [vaddr, vaddr+length) to paddr with the given
// supervisor permissions and returns paddr. Other divisions get no access
// until UpdateDivisionFlags grants it.
//
// The whole range is checked against existing cells: any intersection is
// ErrOverlap and leaves the table unchanged. Remapping requires Unmap
// first.
func (t *Table) Map(vaddr hostarch.Addr, paddr, length uint64, flags Flags) (uint64, error) {
	return t.MapDivision(SupervisorDivision, vaddr, paddr, length, flags)
}

// MapDivision is Map that also grants flags to division sd in the same
// insertion, so no other caller sees the cell without sd's permissions.
// For sd == SupervisorDivision it is identical to Map.
func (t *Table) MapDivision(sd uint32, vaddr hostarch.Addr, paddr, length uint64, flags Flags) (uint64, error) {
	if sd >= t.geo.M {
		return 0, fmt.Errorf("%w: %d not in [0, %d)", ErrBadDivision, sd, t.geo.M)
	}
	ar, vbase, vbound, err := pageRange(vaddr, length)
	if err != nil {
		return 0, err
	}
	if !hostarch.Addr(paddr).IsPageAligned() {
		return 0, fmt.Errorf("%w: physical %#x", ErrUnaligned, paddr)
	}
	pbase := paddr >> hostarch.PageShift
	if pend, ok := hostarch.Addr(paddr).AddLength(length); !ok || !FitsPhysicalPage(pend.PageNumber()-1) {
		return 0, fmt.Errorf("%w: physical [%#x, %#x+%#x)", ErrOutOfRange, paddr, paddr, length)
	}

	s := t.mu.LockIRQ()
	defer t.mu.UnlockIRQ(s)

	n := t.metaLocked().N()
	if idx := t.lookupLocked(vaddr); idx != MetaCell {
		return 0, fmt.Errorf("%w: %v already mapped by %v", ErrOverlap, ar, t.descLocked(idx))
	}
	i := t.insertionIndexLocked(vbase, n)
	if i < n {
		if next := t.descLocked(i); next.VBase() < vbound {
			return 0, fmt.Errorf("%w: %v intersects %v", ErrOverlap, ar, next)
		}
	}
	if n >= t.capacity {
		t.fullLogger.Warningf("Range table full: N=%d, capacity %d, mapping %v", n, t.capacity, ar)
		return 0, fmt.Errorf("%w: N=%d, capacity %d", ErrTableFull, n, t.capacity)
	}

	for sd := range t.carry {
		t.carry[sd] = 0
	}
	t.carry[SupervisorDivision] = flags | FlagValid
	if sd != SupervisorDivision && flags != 0 {
		t.carry[sd] = flags | FlagValid
	}
	t.shiftUpLocked(i, n, NewDescriptor(pbase, vbase, vbound))
	t.setNLocked(n + 1)

	t.logger.Debugf("Mapped %v -> %#x %v at cell %d for division %d, N=%d", ar, paddr, flags|FlagValid, i, sd, n+1)
	return paddr, nil
}

// shiftUpLocked stores d, with the permission bytes in t.carry, at slot i
// and moves every cell in [i, n) up by one slot. Each step carries the
// displaced descriptor together with its permission bytes, so flags always
// stay with their cell.
//
// Preconditions: t.mu is held; n < t.capacity.
func (t *Table) shiftUpLocked(i, n uint32, d Descriptor) {
	for k := i; k <= n; k++ {
		displaced := t.descLocked(k)
		for sd := range t.next {
			t.next[sd] = t.flagLocked(k, uint32(sd))
		}

		t.setDescLocked(k, d)
		for sd, f := range t.carry {
			t.setFlagLocked(k, uint32(sd), f)
		}

		d = displaced
		t.carry, t.next = t.next, t.carry
	}
}

// Unmap removes the cell mapping exactly [vaddr, vaddr+length). Splitting
// a cell is not supported: a range that is not a whole cell is
// ErrRangeMismatch.
func (t *Table) Unmap(vaddr hostarch.Addr, length uint64) error {
	ar, vbase, vbound, err := pageRange(vaddr, length)
	if err != nil {
		return err
	}

	s := t.mu.LockIRQ()
	defer t.mu.UnlockIRQ(s)

	idx := t.lookupLocked(vaddr)
	if idx == MetaCell {
		return fmt.Errorf("%w: %v", ErrNotMapped, vaddr)
	}
	if d := t.descLocked(idx); d.VBase() != vbase || d.VBound() != vbound {
		return fmt.Errorf("%w: %v is not cell %v", ErrRangeMismatch, ar, d)
	}

	n := t.metaLocked().N()
	t.shiftDownLocked(idx, n)
	t.setNLocked(n - 1)
	t.flusher.Invalidate(ar, nil)

	t.logger.Debugf("Unmapped %v from cell %d, N=%d", ar, idx, n-1)
	return nil
}

// shiftDownLocked overwrites slot i with its successors and clears the
// vacated slot n-1.
//
// Preconditions: t.mu is held; 1 <= i < n.
func (t *Table) shiftDownLocked(i, n uint32) {
	for k := i; k < n-1; k++ {
		t.setDescLocked(k, t.descLocked(k+1))
		for sd := uint32(0); sd < t.geo.M; sd++ {
			t.setFlagLocked(k, sd, t.flagLocked(k+1, sd))
		}
	}
	t.setDescLocked(n-1, Descriptor{})
	for sd := uint32(0); sd < t.geo.M; sd++ {
		t.setFlagLocked(n-1, sd, 0)
	}
}

// UpdateFlags replaces the supervisor permissions of the cell mapping
// exactly [vaddr, vaddr+length), invalidates the range and reports
// completion through done once the invalidation finishes. done is not
// called when an error is returned.
func (t *Table) UpdateFlags(vaddr hostarch.Addr, length uint64, flags Flags, done Completion) error {
	return t.UpdateDivisionFlags(SupervisorDivision, vaddr, length, flags, done)
}

// UpdateDivisionFlags is UpdateFlags for division sd. For the supervisor
// division the valid bit is always set; other divisions may be given an
// empty byte to revoke access.
func (t *Table) UpdateDivisionFlags(sd uint32, vaddr hostarch.Addr, length uint64, flags Flags, done Completion) error {
	if sd >= t.geo.M {
		return fmt.Errorf("%w: %d not in [0, %d)", ErrBadDivision, sd, t.geo.M)
	}
	ar, vbase, vbound, err := pageRange(vaddr, length)
	if err != nil {
		return err
	}
	if sd == SupervisorDivision || flags != 0 {
		flags |= FlagValid
	}

	s := t.mu.LockIRQ()
	defer t.mu.UnlockIRQ(s)

	idx := t.lookupLocked(vaddr)
	if idx == MetaCell {
		return fmt.Errorf("%w: %v", ErrNotMapped, vaddr)
	}
	if d := t.descLocked(idx); d.VBase() != vbase || d.VBound() != vbound {
		return fmt.Errorf("%w: %v is not cell %v", ErrRangeMismatch, ar, d)
	}
	old := t.flagLocked(idx, sd)
	t.setFlagLocked(idx, sd, flags)
	t.flusher.Invalidate(ar, done)

	t.logger.Debugf("Cell %d %v division %d flags %v -> %v", idx, ar, sd, old, flags)
	return nil
}

// Touch records an access of type at to vaddr by division sd: it checks the
// cell's permissions and sets the accessed bit, and the dirty bit for
// writes. It returns the updated flags.
func (t *Table) Touch(sd uint32, vaddr hostarch.Addr, at hostarch.AccessType, user bool) (Flags, error) {
	if sd >= t.geo.M {
		return 0, fmt.Errorf("%w: %d not in [0, %d)", ErrBadDivision, sd, t.geo.M)
	}

	s := t.mu.LockIRQ()
	defer t.mu.UnlockIRQ(s)

	idx := t.lookupLocked(vaddr)
	if idx == MetaCell {
		return 0, fmt.Errorf("%w: %v", ErrNotMapped, vaddr)
	}
	f := t.flagLocked(idx, sd)
	if !f.Valid() || !f.AccessType().SupersetOf(at) || (user && !f.IsUser()) {
		return f, fmt.Errorf("%w: %v access to %v with %v", ErrPermission, at, vaddr, f)
	}
	f |= FlagAccessed
	if at.Write {
		f |= FlagDirty
	}
	t.setFlagLocked(idx, sd, f)
	return f, nil
}
