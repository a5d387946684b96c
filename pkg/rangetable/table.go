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
	"time"

	"gvisor.dev/seccells/pkg/hostarch"
	"gvisor.dev/seccells/pkg/log"
	"gvisor.dev/seccells/pkg/sync"
)

// Opts configures a Table.
type Opts struct {
	// Flusher is notified of ranges whose translations changed. Defaults
	// to NoopFlusher.
	Flusher Flusher

	// Logger receives debug and warning output. Defaults to log.Log().
	Logger log.Logger
}

// Table is a range table over a single backing region.
//
// The table image in the region is the authoritative state; Table holds
// only the geometry fixed at creation and scratch space for shifts.
type Table struct {
	// mu serializes every read-modify-write of the image.
	mu sync.SpinLock

	// buf is the table image. Its length is at least geo.Size().
	buf []byte

	// phys is the physical address of buf[0].
	phys uint64

	// geo is immutable after New.
	geo Geometry

	// capacity is geo.Capacity().
	capacity uint32

	flusher Flusher
	logger  log.Logger

	// fullLogger rate limits table-full warnings.
	fullLogger log.Logger

	// carry and next hold one permission byte per division while cells
	// are shifted. Protected by mu.
	carry []Flags
	next  []Flags
}

// New initializes a table in r with geometry g. The region is zeroed and the
// metadata cell written with N=1.
func New(r Region, g Geometry, opts Opts) (*Table, error) {
	if err := g.Validate(uint64(len(r.Data))); err != nil {
		return nil, err
	}
	if !hostarch.Addr(r.Phys).IsPageAligned() {
		return nil, fmt.Errorf("%w: table base %#x", ErrUnaligned, r.Phys)
	}
	if opts.Flusher == nil {
		opts.Flusher = NoopFlusher{}
	}
	if opts.Logger == nil {
		opts.Logger = log.Log()
	}
	t := &Table{
		buf:        r.Data,
		phys:       r.Phys,
		geo:        g,
		capacity:   g.Capacity(),
		flusher:    opts.Flusher,
		logger:     opts.Logger,
		fullLogger: log.RateLimitedLogger(opts.Logger, time.Second),
		carry:      make([]Flags, g.M),
		next:       make([]Flags, g.M),
	}
	clear(t.buf)

	var m Meta
	m.SetN(1)
	m.SetM(g.M)
	m.SetS(g.S)
	m.SetT(g.T)
	t.setMeta(m)

	t.logger.Debugf("Range table at phys %#x: %v", r.Phys, g)
	return t, nil
}

// Geometry returns the table's geometry.
func (t *Table) Geometry() Geometry {
	return t.geo
}

// Capacity returns the largest N the table can hold.
func (t *Table) Capacity() uint32 {
	return t.capacity
}

// PhysicalBase returns the physical address the MMU is programmed with.
func (t *Table) PhysicalBase() uint64 {
	return t.phys
}

// N returns the current slot count, including the metadata cell.
func (t *Table) N() uint32 {
	s := t.mu.LockIRQ()
	defer t.mu.UnlockIRQ(s)
	return t.metaLocked().N()
}

// Meta returns the metadata cell.
func (t *Table) Meta() Meta {
	s := t.mu.LockIRQ()
	defer t.mu.UnlockIRQ(s)
	return t.metaLocked()
}

// Bytes returns a copy of the table image.
func (t *Table) Bytes() []byte {
	s := t.mu.LockIRQ()
	defer t.mu.UnlockIRQ(s)
	out := make([]byte, t.geo.Size())
	copy(out, t.buf)
	return out
}

// FlagOffset returns the offset of the permission byte for cell in
// division sd, checked against the backing region.
func (t *Table) FlagOffset(cell, sd uint32) (uint64, error) {
	off, err := t.geo.FlagOffset(cell, sd)
	if err != nil {
		return 0, err
	}
	if off >= uint64(len(t.buf)) {
		return 0, fmt.Errorf("%w: offset %#x beyond region of %#x bytes", ErrFlagBounds, off, len(t.buf))
	}
	return off, nil
}

// metaLocked reads slot 0.
//
// Preconditions: t.mu is held.
func (t *Table) metaLocked() Meta {
	d := t.descLocked(MetaCell)
	return Meta{Upper: d.Upper, Lower: d.Lower}
}

// setMeta writes slot 0.
//
// Preconditions: t.mu is held, or t is not yet shared.
func (t *Table) setMeta(m Meta) {
	t.setDescLocked(MetaCell, Descriptor{Upper: m.Upper, Lower: m.Lower})
}

// setNLocked updates N in the metadata cell.
//
// Preconditions: t.mu is held.
func (t *Table) setNLocked(n uint32) {
	m := t.metaLocked()
	m.SetN(n)
	t.setMeta(m)
}

// descLocked reads slot i.
//
// Preconditions: t.mu is held; i < t.capacity.
func (t *Table) descLocked(i uint32) Descriptor {
	off := uint64(i) * CellDescSize
	return Descriptor{
		Upper: hostarch.ByteOrder.Uint64(t.buf[off:]),
		Lower: hostarch.ByteOrder.Uint64(t.buf[off+8:]),
	}
}

// setDescLocked writes slot i.
//
// Preconditions: t.mu is held; i < t.capacity.
func (t *Table) setDescLocked(i uint32, d Descriptor) {
	off := uint64(i) * CellDescSize
	hostarch.ByteOrder.PutUint64(t.buf[off:], d.Upper)
	hostarch.ByteOrder.PutUint64(t.buf[off+8:], d.Lower)
}

// flagOffsetLocked is FlagOffset for indices the table itself produced.
// Failure means the image no longer matches the geometry.
func (t *Table) flagOffsetLocked(cell, sd uint32) uint64 {
	off, err := t.FlagOffset(cell, sd)
	if err != nil {
		panic(fmt.Sprintf("range table corrupted: %v", err))
	}
	return off
}

// flagLocked reads the permission byte of cell in division sd.
//
// Preconditions: t.mu is held.
func (t *Table) flagLocked(cell, sd uint32) Flags {
	return Flags(t.buf[t.flagOffsetLocked(cell, sd)])
}

// setFlagLocked writes the permission byte of cell in division sd.
//
// Preconditions: t.mu is held.
func (t *Table) setFlagLocked(cell, sd uint32, f Flags) {
	t.buf[t.flagOffsetLocked(cell, sd)] = byte(f)
}

// Cell is a snapshot of one table entry.
type Cell struct {
	// Index is the slot holding the cell.
	Index uint32

	// Virtual is the mapped virtual range.
	Virtual hostarch.AddrRange

	// Physical is the physical address Virtual.Start maps to.
	Physical uint64

	// Flags is the cell's permission byte in the requested division.
	Flags Flags
}

// String implements fmt.Stringer.String.
func (c Cell) String() string {
	return fmt.Sprintf("cell %d: %v -> %#x %v", c.Index, c.Virtual, c.Physical, c.Flags)
}

// cellLocked returns the snapshot of slot i.
//
// Preconditions: t.mu is held; 1 <= i < N.
func (t *Table) cellLocked(i, sd uint32) Cell {
	d := t.descLocked(i)
	return Cell{
		Index:    i,
		Virtual:  d.Virtual(),
		Physical: d.PBase() << hostarch.PageShift,
		Flags:    t.flagLocked(i, sd),
	}
}

// Cells returns every cell in index order with its flags in division sd.
func (t *Table) Cells(sd uint32) ([]Cell, error) {
	if sd >= t.geo.M {
		return nil, fmt.Errorf("%w: %d not in [0, %d)", ErrBadDivision, sd, t.geo.M)
	}
	s := t.mu.LockIRQ()
	defer t.mu.UnlockIRQ(s)
	n := t.metaLocked().N()
	cells := make([]Cell, 0, n-1)
	for i := uint32(1); i < n; i++ {
		cells = append(cells, t.cellLocked(i, sd))
	}
	return cells, nil
}

// Dump writes the metadata cell and every descriptor to l.
func (t *Table) Dump(l log.Logger) {
	s := t.mu.LockIRQ()
	defer t.mu.UnlockIRQ(s)
	t.dumpLocked(l)
}

func (t *Table) dumpLocked(l log.Logger) {
	m := t.metaLocked()
	l.Warningf("Range table at %#x: metacell %v, capacity %d", t.phys, m, t.capacity)
	for i := uint32(1); i < m.N() && i < t.capacity; i++ {
		d := t.descLocked(i)
		perms := make([]Flags, t.geo.M)
		for sd := range perms {
			perms[sd] = t.flagLocked(i, uint32(sd))
		}
		l.Warningf("  cell %d: %v perms %v", i, d, perms)
	}
}

// Validate checks every table invariant and returns the first violation.
func (t *Table) Validate() error {
	s := t.mu.LockIRQ()
	defer t.mu.UnlockIRQ(s)
	return t.validateLocked()
}

func (t *Table) validateLocked() error {
	m := t.metaLocked()
	if g := m.Geometry(); g != t.geo {
		return fmt.Errorf("%w: metacell geometry %v, created with %v", ErrGeometry, g, t.geo)
	}
	n := m.N()
	if n < 1 || n > t.capacity {
		return fmt.Errorf("%w: N=%d outside [1, %d]", ErrGeometry, n, t.capacity)
	}
	var prevBound uint64
	for i := uint32(1); i < n; i++ {
		d := t.descLocked(i)
		switch {
		case !d.Valid():
			return fmt.Errorf("cell %d: %v not valid", i, d)
		case d.VBase() >= d.VBound():
			return fmt.Errorf("cell %d: %v is empty", i, d)
		case i > 1 && prevBound > d.VBase():
			return fmt.Errorf("cell %d: %v starts before previous bound %#x", i, d, prevBound)
		case !t.flagLocked(i, SupervisorDivision).Valid():
			return fmt.Errorf("cell %d: supervisor flags %v not valid", i, t.flagLocked(i, SupervisorDivision))
		}
		prevBound = d.VBound()
	}
	if n < t.capacity {
		if d := t.descLocked(n); d != (Descriptor{}) {
			return fmt.Errorf("free slot %d not clear: %v", n, d)
		}
	}
	return nil
}
