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
	"bytes"
	"errors"
	"testing"

	"gvisor.dev/seccells/pkg/hostarch"
	"gvisor.dev/seccells/pkg/memutil"
)

func TestBootstrapAllocator(t *testing.T) {
	const base = 0x40000000
	arena := bytes.Repeat([]byte{0xaa}, 5*hostarch.PageSize+100)
	a, err := NewBootstrapAllocator(arena, base)
	if err != nil {
		t.Fatalf("NewBootstrapAllocator: %v", err)
	}
	if got := a.Remaining(); got != 5*hostarch.PageSize {
		t.Errorf("Remaining: got %#x, want %#x", got, 5*hostarch.PageSize)
	}

	r1, err := a.AllocateBackingRegion(1)
	if err != nil {
		t.Fatalf("AllocateBackingRegion(1): %v", err)
	}
	if len(r1.Data) != hostarch.PageSize || r1.Phys != base {
		t.Errorf("first region: got len %#x phys %#x", len(r1.Data), r1.Phys)
	}
	r2, err := a.AllocateBackingRegion(hostarch.PageSize + 1)
	if err != nil {
		t.Fatalf("AllocateBackingRegion: %v", err)
	}
	if len(r2.Data) != 2*hostarch.PageSize || r2.Phys != base+hostarch.PageSize {
		t.Errorf("second region: got len %#x phys %#x", len(r2.Data), r2.Phys)
	}
	for _, r := range []Region{r1, r2} {
		if !bytes.Equal(r.Data, make([]byte, len(r.Data))) {
			t.Errorf("region at %#x not zeroed", r.Phys)
		}
	}
	// Regions cannot grow into each other.
	if cap(r1.Data) != len(r1.Data) {
		t.Errorf("first region cap %#x exceeds len %#x", cap(r1.Data), len(r1.Data))
	}
	if got := a.Remaining(); got != 2*hostarch.PageSize {
		t.Errorf("Remaining: got %#x, want %#x", got, 2*hostarch.PageSize)
	}

	if _, err := a.AllocateBackingRegion(3 * hostarch.PageSize); !errors.Is(err, ErrAllocation) {
		t.Errorf("exhausted: got %v, want %v", err, ErrAllocation)
	}
	if _, err := a.AllocateBackingRegion(0); !errors.Is(err, ErrAllocation) {
		t.Errorf("zero size: got %v, want %v", err, ErrAllocation)
	}
	if _, err := a.AllocateBackingRegion(2 * hostarch.PageSize); err != nil {
		t.Errorf("last pages: %v", err)
	}
	if got := a.Remaining(); got != 0 {
		t.Errorf("Remaining: got %#x, want 0", got)
	}
}

func TestBootstrapAllocatorUnaligned(t *testing.T) {
	if _, err := NewBootstrapAllocator(make([]byte, hostarch.PageSize), 0x40000010); !errors.Is(err, ErrUnaligned) {
		t.Errorf("got %v, want %v", err, ErrUnaligned)
	}
}

func TestMmapAllocator(t *testing.T) {
	if !hostarch.HostPageSizeMatches() {
		t.Skip("host page size differs")
	}
	var a MmapAllocator
	r, err := a.AllocateBackingRegion(100)
	if err != nil {
		t.Fatalf("AllocateBackingRegion: %v", err)
	}
	defer func() {
		if err := a.Release(r); err != nil {
			t.Errorf("Release: %v", err)
		}
	}()
	if len(r.Data) != hostarch.PageSize {
		t.Errorf("len: got %#x, want %#x", len(r.Data), hostarch.PageSize)
	}
	if r.Phys != uint64(memutil.SliceAddr(r.Data)) || !hostarch.Addr(r.Phys).IsPageAligned() {
		t.Errorf("phys %#x is not the page-aligned mapping address", r.Phys)
	}
	tbl, err := New(r, Geometry{M: 1, S: 16, T: 1}, Opts{Logger: testLogger(t)})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	mustMap(t, tbl, 0x1000, 0x2000, FlagRead)
	checkValid(t, tbl)

	if _, err := a.AllocateBackingRegion(0); !errors.Is(err, ErrAllocation) {
		t.Errorf("zero size: got %v, want %v", err, ErrAllocation)
	}
}
