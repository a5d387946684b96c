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

// Package hostarch describes the address and permission vocabulary shared
// by the range table and its callers.
package hostarch

import (
	"encoding/binary"

	"golang.org/x/sys/unix"
)

const (
	// PageShift is the binary log of the page size. Range table cells are
	// expressed in page numbers of this size.
	PageShift = 12

	// PageSize is the page size.
	PageSize = 1 << PageShift

	// HugePageShift is the binary log of the huge page size.
	HugePageShift = 21

	// HugePageSize is the huge page size.
	HugePageSize = 1 << HugePageShift

	// CacheLineShift is the binary log of the cache line size.
	CacheLineShift = 6

	// CacheLineSize is the size of the cache-line unit in which the range
	// table measures its descriptor and permission regions.
	CacheLineSize = 1 << CacheLineShift
)

// ByteOrder is the native byte order of the range table image.
var ByteOrder = binary.LittleEndian

// HostPageSizeMatches reports whether the host page size equals PageSize.
// Anonymous backing regions are only page aligned at host granularity.
func HostPageSizeMatches() bool {
	return unix.Getpagesize() == PageSize
}
