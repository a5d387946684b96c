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

// Package rangetable implements a SecCells range table: a single sorted
// array of variable-length cell descriptors with per-division permission
// bytes, used in place of a hierarchical page table.
//
// The table image is laid out exactly as the MMU consumes it:
//
//	slot 0                 metadata cell (N, M, S, T)
//	slots 1..N-1           cell descriptors, sorted by vbase
//	[S*64, S*64+M*T*64)    permission bands, T cache lines per division
//
// All mutations are serialized by an interrupt-safe spin lock.
package rangetable

import "gvisor.dev/seccells/pkg/hostarch"

const (
	// CellDescSize is the size in bytes of one descriptor slot.
	CellDescSize = 16

	// CellPermSize is the size in bytes of one permission entry.
	CellPermSize = 1

	// CellsPerLine is the number of descriptor slots per cache line.
	CellsPerLine = hostarch.CacheLineSize / CellDescSize

	// SupervisorDivision is the security division that receives the
	// permissions passed to Map.
	SupervisorDivision = 0

	// MetaCell is the index of the metadata cell. Lookup returns it to
	// signal an unmapped address.
	MetaCell = 0
)

// Bit layout of a 128-bit descriptor:
//
//	V   | pbase     | vbound   | vbase
//	127 | (116:72]  | (72:36]  | (36:0]
const (
	halfShift = 64

	vfnBits = 36
	pfnBits = 44

	vbaseShift  = 0
	vboundShift = 36
	pbaseShift  = 72
	validShift  = 127

	// vbound straddles the two words.
	vboundLowBits  = halfShift - vboundShift
	vboundHighBits = vfnBits - vboundLowBits
)

// Bit layout of the 128-bit metadata cell.
//
//	N        | M       | T       | S
//	(128:96] | (96:64] | (64:32] | (32:0]
const (
	metaFieldBits = 32

	metaNShift = 96
	metaMShift = 64
	metaTShift = 32
	metaSShift = 0
)

// MaxVirtualPage is the largest page number a vbase or vbound can hold.
const MaxVirtualPage = 1<<vfnBits - 1

// MaxPhysicalPage is the largest page number pbase can hold.
const MaxPhysicalPage = 1<<pfnBits - 1
