// Copyright 2025 The gVisor Authors.
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

import "fmt"

// MemoryType specifies CPU memory access behavior for a mapped range.
//
// Cacheability is fixed by the platform's physical memory attributes; the
// range table only uses the type to pick default permissions.
type MemoryType uint8

const (
	// MemoryTypeWriteBack is ordinary cacheable memory. This must be the
	// zero value for MemoryType.
	MemoryTypeWriteBack MemoryType = iota

	// MemoryTypeUncached is device memory. Device ranges are never
	// executable.
	MemoryTypeUncached

	// NumMemoryTypes is the number of memory types.
	NumMemoryTypes
)

// String implements fmt.Stringer.String.
func (mt MemoryType) String() string {
	switch mt {
	case MemoryTypeWriteBack:
		return "WriteBack"
	case MemoryTypeUncached:
		return "Uncached"
	default:
		return fmt.Sprintf("%d", mt)
	}
}

// ParseMemoryType parses the names used in mapping plans: "memory" (or
// "writeback") and "device" (or "uncached").
func ParseMemoryType(s string) (MemoryType, error) {
	switch s {
	case "", "memory", "writeback":
		return MemoryTypeWriteBack, nil
	case "device", "uncached":
		return MemoryTypeUncached, nil
	default:
		return 0, fmt.Errorf("invalid memory type %q", s)
	}
}
