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

// Package model provides a reference implementation of the range table
// mapping semantics, used to check a rangetable.Table.
package model

import (
	"fmt"

	"github.com/google/btree"
	"github.com/google/go-cmp/cmp"
	"gvisor.dev/seccells/pkg/hostarch"
	"gvisor.dev/seccells/pkg/rangetable"
)

// Model is a range map ordered by start address. It tracks supervisor
// flags only.
type Model struct {
	tree     *btree.BTreeG[rangetable.Cell]
	capacity uint32
}

func byStart(a, b rangetable.Cell) bool {
	return a.Virtual.Start < b.Virtual.Start
}

// New returns an empty model of a table with the given capacity.
func New(capacity uint32) *Model {
	return &Model{
		tree:     btree.NewG(2, byStart),
		capacity: capacity,
	}
}

func key(addr hostarch.Addr) rangetable.Cell {
	return rangetable.Cell{Virtual: hostarch.AddrRange{Start: addr}}
}

// Len returns the number of cells.
func (m *Model) Len() int {
	return m.tree.Len()
}

// Lookup returns the cell containing addr, with its table index.
func (m *Model) Lookup(addr hostarch.Addr) (rangetable.Cell, bool) {
	var (
		c  rangetable.Cell
		ok bool
	)
	m.tree.DescendLessOrEqual(key(addr), func(item rangetable.Cell) bool {
		c, ok = item, item.Virtual.Contains(addr)
		return false
	})
	if !ok {
		return rangetable.Cell{}, false
	}
	c.Index = m.index(c.Virtual.Start)
	return c, true
}

// index returns the table slot the cell starting at start occupies.
func (m *Model) index(start hostarch.Addr) uint32 {
	i := uint32(rangetable.MetaCell + 1)
	m.tree.AscendLessThan(key(start), func(rangetable.Cell) bool {
		i++
		return true
	})
	return i
}

// Overlaps returns true if any cell intersects ar.
func (m *Model) Overlaps(ar hostarch.AddrRange) bool {
	if _, ok := m.Lookup(ar.Start); ok {
		return true
	}
	overlap := false
	m.tree.AscendGreaterOrEqual(key(ar.Start), func(c rangetable.Cell) bool {
		overlap = c.Virtual.Start < ar.End
		return false
	})
	return overlap
}

// Map adds a cell, failing the way rangetable.Table.Map does.
func (m *Model) Map(ar hostarch.AddrRange, phys uint64, f rangetable.Flags) error {
	if m.Overlaps(ar) {
		return fmt.Errorf("%w: %v", rangetable.ErrOverlap, ar)
	}
	if uint32(m.tree.Len())+1 >= m.capacity {
		return fmt.Errorf("%w: %d cells", rangetable.ErrTableFull, m.tree.Len())
	}
	m.tree.ReplaceOrInsert(rangetable.Cell{Virtual: ar, Physical: phys, Flags: f | rangetable.FlagValid})
	return nil
}

func (m *Model) exact(ar hostarch.AddrRange) (rangetable.Cell, error) {
	c, ok := m.Lookup(ar.Start)
	if !ok {
		return rangetable.Cell{}, fmt.Errorf("%w: %v", rangetable.ErrNotMapped, ar.Start)
	}
	if c.Virtual != ar {
		return rangetable.Cell{}, fmt.Errorf("%w: %v is not %v", rangetable.ErrRangeMismatch, ar, c.Virtual)
	}
	return c, nil
}

// Unmap removes the cell that is exactly ar.
func (m *Model) Unmap(ar hostarch.AddrRange) error {
	c, err := m.exact(ar)
	if err != nil {
		return err
	}
	m.tree.Delete(c)
	return nil
}

// UpdateFlags replaces the flags of the cell that is exactly ar.
func (m *Model) UpdateFlags(ar hostarch.AddrRange, f rangetable.Flags) error {
	c, err := m.exact(ar)
	if err != nil {
		return err
	}
	c.Index = 0
	c.Flags = f | rangetable.FlagValid
	m.tree.ReplaceOrInsert(c)
	return nil
}

// Cells returns every cell in table order, indexed as the table would.
func (m *Model) Cells() []rangetable.Cell {
	cells := make([]rangetable.Cell, 0, m.tree.Len())
	m.tree.Ascend(func(c rangetable.Cell) bool {
		c.Index = uint32(len(cells) + 1)
		cells = append(cells, c)
		return true
	})
	return cells
}

// Check validates t and compares its supervisor cells with m.
func (m *Model) Check(t *rangetable.Table) error {
	if err := t.Validate(); err != nil {
		return err
	}
	cells, err := t.Cells(rangetable.SupervisorDivision)
	if err != nil {
		return err
	}
	if diff := cmp.Diff(m.Cells(), cells); diff != "" {
		return fmt.Errorf("table differs from model (-model +table):\n%s", diff)
	}
	return nil
}
