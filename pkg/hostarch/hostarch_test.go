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

package hostarch

import "testing"

func TestAddrRounding(t *testing.T) {
	for _, tc := range []struct {
		addr     Addr
		down, up Addr
		upOK     bool
	}{
		{0, 0, 0, true},
		{0x1000, 0x1000, 0x1000, true},
		{0x1234, 0x1000, 0x2000, true},
		{0x1fff, 0x1000, 0x2000, true},
		{^Addr(0), ^Addr(PageSize - 1), 0, false},
	} {
		if got := tc.addr.RoundDown(); got != tc.down {
			t.Errorf("%v.RoundDown(): got %v, want %v", tc.addr, got, tc.down)
		}
		got, ok := tc.addr.RoundUp()
		if ok != tc.upOK || (ok && got != tc.up) {
			t.Errorf("%v.RoundUp(): got (%v, %t), want (%v, %t)", tc.addr, got, ok, tc.up, tc.upOK)
		}
	}
}

func TestPageNumbers(t *testing.T) {
	if got := Addr(0x3fff).PageNumber(); got != 3 {
		t.Errorf("PageNumber(0x3fff): got %d, want 3", got)
	}
	if got := AddrFromPageNumber(4); got != 0x4000 {
		t.Errorf("AddrFromPageNumber(4): got %v, want 0x4000", got)
	}
	if got := Addr(0x4123).PageOffset(); got != 0x123 {
		t.Errorf("PageOffset(0x4123): got %#x, want 0x123", got)
	}
	if Addr(0x4123).IsPageAligned() || !Addr(0x4000).IsPageAligned() {
		t.Errorf("IsPageAligned mismatch")
	}
}

func TestAddLength(t *testing.T) {
	if end, ok := Addr(0x1000).AddLength(0x2000); !ok || end != 0x3000 {
		t.Errorf("AddLength(0x1000, 0x2000): got (%v, %t), want (0x3000, true)", end, ok)
	}
	if _, ok := (^Addr(0) - 1).AddLength(2); ok {
		t.Errorf("AddLength across the top of the address space: got ok")
	}
	ar, ok := Addr(0x1000).ToRange(PageSize)
	if !ok || ar != (AddrRange{0x1000, 0x2000}) {
		t.Errorf("ToRange: got (%v, %t)", ar, ok)
	}
}

func TestAddrRange(t *testing.T) {
	a := AddrRange{0x1000, 0x2000}
	b := AddrRange{0x2000, 0x3000}
	if a.Overlaps(b) || b.Overlaps(a) {
		t.Errorf("%v and %v overlap", a, b)
	}
	if !a.Overlaps(AddrRange{0x1fff, 0x2001}) {
		t.Errorf("%v does not overlap [0x1fff, 0x2001)", a)
	}
	if !a.Contains(0x1000) || a.Contains(0x2000) {
		t.Errorf("Contains boundaries wrong for %v", a)
	}
	if !(AddrRange{0, 0x4000}).IsSupersetOf(b) {
		t.Errorf("[0, 0x4000) is not a superset of %v", b)
	}
	if got := a.Length(); got != PageSize {
		t.Errorf("Length: got %v, want %#x", got, PageSize)
	}
	if (AddrRange{0x1000, 0x1800}).IsPageAligned() {
		t.Errorf("[0x1000, 0x1800) reported page aligned")
	}
	if got, want := a.String(), "[0x1000, 0x2000)"; got != want {
		t.Errorf("String: got %q, want %q", got, want)
	}
}

func TestAccessType(t *testing.T) {
	if got := ReadWrite.String(); got != "rw-" {
		t.Errorf("ReadWrite.String(): got %q, want rw-", got)
	}
	if !AnyAccess.SupersetOf(ReadExec) || Read.SupersetOf(Write) {
		t.Errorf("SupersetOf mismatch")
	}
	if got := ReadWrite.Intersect(ReadExec); got != Read {
		t.Errorf("Intersect: got %v, want %v", got, Read)
	}
	if got := Write.Union(Execute); got != (AccessType{Write: true, Execute: true}) {
		t.Errorf("Union: got %v", got)
	}
	if NoAccess.Any() {
		t.Errorf("NoAccess.Any(): got true")
	}
}

func TestParseMemoryType(t *testing.T) {
	for _, tc := range []struct {
		in   string
		want MemoryType
	}{
		{"", MemoryTypeWriteBack},
		{"memory", MemoryTypeWriteBack},
		{"writeback", MemoryTypeWriteBack},
		{"device", MemoryTypeUncached},
		{"uncached", MemoryTypeUncached},
	} {
		got, err := ParseMemoryType(tc.in)
		if err != nil || got != tc.want {
			t.Errorf("ParseMemoryType(%q): got (%v, %v), want (%v, nil)", tc.in, got, err, tc.want)
		}
	}
	if _, err := ParseMemoryType("framebuffer"); err == nil {
		t.Errorf("ParseMemoryType(framebuffer): got nil error")
	}
}
