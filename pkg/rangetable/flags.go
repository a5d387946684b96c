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

import "gvisor.dev/seccells/pkg/hostarch"

// Flags is the permission byte of one cell in one security division.
type Flags uint8

// Permission bits, matching the Sv48 PTE low byte.
const (
	FlagValid Flags = 1 << iota
	FlagRead
	FlagWrite
	FlagExec
	FlagUser
	FlagGlobal
	FlagAccessed
	FlagDirty
)

// FlagsPerms is the set of access permission bits.
const FlagsPerms = FlagRead | FlagWrite | FlagExec

// MemoryFlags returns the minimum permissions for ordinary memory:
// read-only, supervisor only, not executable.
func MemoryFlags() Flags {
	return FlagRead
}

// DeviceFlags returns the minimum permissions for device memory. Memory
// attributes are hardwired by the platform and the permission byte has no
// cacheability bits, so this is the same byte as MemoryFlags. Use
// FlagsForMemoryType to strip execute permission from device ranges.
func DeviceFlags() Flags {
	return FlagRead
}

// FlagsForMemoryType returns the flags for a range of the given type with
// the given access.
func FlagsForMemoryType(mt hostarch.MemoryType, at hostarch.AccessType) Flags {
	f := FlagsFromAccessType(at)
	if mt == hostarch.MemoryTypeUncached {
		f = f.NoExec()
	}
	return f
}

// FlagsFromAccessType converts an access type to permission bits.
func FlagsFromAccessType(at hostarch.AccessType) Flags {
	var f Flags
	if at.Read {
		f |= FlagRead
	}
	if at.Write {
		f |= FlagWrite
	}
	if at.Execute {
		f |= FlagExec
	}
	return f
}

// AccessType returns the access permitted by f.
func (f Flags) AccessType() hostarch.AccessType {
	return hostarch.AccessType{
		Read:    f&FlagRead != 0,
		Write:   f&FlagWrite != 0,
		Execute: f&FlagExec != 0,
	}
}

// Writable returns f with write permission.
func (f Flags) Writable() Flags { return f | FlagWrite }

// Readonly returns f without write permission.
func (f Flags) Readonly() Flags { return f &^ FlagWrite }

// User returns f with user access.
func (f Flags) User() Flags { return f | FlagUser }

// Exec returns f with execute permission.
func (f Flags) Exec() Flags { return f | FlagExec }

// NoExec returns f without execute permission.
func (f Flags) NoExec() Flags { return f &^ FlagExec }

// Global returns f with the global bit.
func (f Flags) Global() Flags { return f | FlagGlobal }

// Valid returns the valid bit.
func (f Flags) Valid() bool { return f&FlagValid != 0 }

// IsWritable returns true if f allows writes.
func (f Flags) IsWritable() bool { return f&FlagWrite != 0 }

// IsExec returns true if f allows execution.
func (f Flags) IsExec() bool { return f&FlagExec != 0 }

// IsUser returns true if f allows user access.
func (f Flags) IsUser() bool { return f&FlagUser != 0 }

// IsDirty returns true if the dirty bit is set.
func (f Flags) IsDirty() bool { return f&FlagDirty != 0 }

// String returns the flags in "vrwxugad" order, with '-' for clear bits.
func (f Flags) String() string {
	const names = "vrwxugad"
	var b [8]byte
	for i := range b {
		if f&(1<<i) != 0 {
			b[i] = names[i]
		} else {
			b[i] = '-'
		}
	}
	return string(b[:])
}
