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
	"gvisor.dev/seccells/pkg/memutil"
	"gvisor.dev/seccells/pkg/sync"
)

// Region is the backing memory of a table.
type Region struct {
	// Data is the table image.
	Data []byte

	// Phys is the physical address of Data[0]. It is page aligned.
	Phys uint64
}

// Allocator provides the table's backing memory. It is used once, during
// bring-up.
type Allocator interface {
	// AllocateBackingRegion returns at least size bytes of page-aligned
	// memory.
	AllocateBackingRegion(size uint64) (Region, error)
}

// MmapAllocator allocates backing regions from anonymous host memory.
// Physical addresses are identity mapped to the host virtual address.
type MmapAllocator struct{}

// AllocateBackingRegion implements Allocator.AllocateBackingRegion.
func (MmapAllocator) AllocateBackingRegion(size uint64) (Region, error) {
	if size == 0 {
		return Region{}, fmt.Errorf("%w: zero-sized region", ErrAllocation)
	}
	if !hostarch.HostPageSizeMatches() {
		return Region{}, fmt.Errorf("%w: host page size differs from %d", ErrAllocation, hostarch.PageSize)
	}
	rounded, ok := hostarch.PageRoundUp(size)
	if !ok {
		return Region{}, fmt.Errorf("%w: size %#x overflows", ErrAllocation, size)
	}
	data, err := memutil.MapAnonymousSlice(uintptr(rounded))
	if err != nil {
		return Region{}, fmt.Errorf("%w: %v", ErrAllocation, err)
	}
	return Region{Data: data, Phys: uint64(memutil.SliceAddr(data))}, nil
}

// Release unmaps a region returned by AllocateBackingRegion. Tables have no
// teardown path; this exists for tests and tools.
func (MmapAllocator) Release(r Region) error {
	return memutil.UnmapSlice(r.Data)
}

// BootstrapAllocator hands out whole pages from a fixed arena by bump
// allocation. It serves bring-up, before a general-purpose allocator
// exists. Freed pages are never reused.
type BootstrapAllocator struct {
	mu sync.Mutex

	// arena is the page-granular memory handed out.
	arena []byte

	// phys is the physical address of arena[0].
	phys uint64

	// next is the offset of the first unallocated byte.
	next uint64
}

// NewBootstrapAllocator returns an allocator over arena, whose first byte
// has physical address phys. Trailing bytes beyond the last whole page are
// ignored.
func NewBootstrapAllocator(arena []byte, phys uint64) (*BootstrapAllocator, error) {
	if !bits.IsAligned64(phys, hostarch.PageSize) {
		return nil, fmt.Errorf("%w: arena base %#x", ErrUnaligned, phys)
	}
	n := hostarch.PageRoundDown(uint64(len(arena)))
	return &BootstrapAllocator{arena: arena[:n], phys: phys}, nil
}

// AllocateBackingRegion implements Allocator.AllocateBackingRegion. The
// returned pages are zeroed.
func (b *BootstrapAllocator) AllocateBackingRegion(size uint64) (Region, error) {
	rounded, ok := hostarch.PageRoundUp(size)
	if size == 0 || !ok {
		return Region{}, fmt.Errorf("%w: invalid size %#x", ErrAllocation, size)
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	if rounded > uint64(len(b.arena))-b.next {
		return Region{}, fmt.Errorf("%w: %#x bytes requested, %#x remain", ErrAllocation, rounded, uint64(len(b.arena))-b.next)
	}
	data := b.arena[b.next : b.next+rounded : b.next+rounded]
	r := Region{Data: data, Phys: b.phys + b.next}
	b.next += rounded
	clear(data)
	return r, nil
}

// Remaining returns the number of unallocated bytes.
func (b *BootstrapAllocator) Remaining() uint64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	return uint64(len(b.arena)) - b.next
}
