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

// Package bits includes all bit related types and operations.
package bits

// Unsigned is the set of integer types the helpers in this package operate
// on.
type Unsigned interface {
	~uint8 | ~uint16 | ~uint32 | ~uint64 | ~uintptr
}

// IsOn returns true if *all* bits set in 'bits' are set in 'mask'.
func IsOn[T Unsigned](mask, bits T) bool {
	return mask&bits == bits
}

// IsAnyOn returns true if *any* bit set in 'bits' is set in 'mask'.
func IsAnyOn[T Unsigned](mask, bits T) bool {
	return mask&bits != 0
}

// Mask returns a T with all of the given bits set.
func Mask[T Unsigned](is ...int) T {
	ret := T(0)
	for _, i := range is {
		ret |= MaskOf[T](i)
	}
	return ret
}

// MaskOf is like Mask, but sets only a single bit (more efficiently).
func MaskOf[T Unsigned](i int) T {
	return T(1) << uint(i)
}

// LowMask64 returns a mask with the low width bits set. width may be 64.
func LowMask64(width uint) uint64 {
	if width >= 64 {
		return ^uint64(0)
	}
	return uint64(1)<<width - 1
}

// Field64 extracts the width-bit field starting at bit shift of w.
func Field64(w uint64, shift, width uint) uint64 {
	return (w >> shift) & LowMask64(width)
}

// SetField64 returns w with the width-bit field starting at bit shift
// replaced by v. Bits of v beyond width are discarded; all other bits of w
// are preserved.
func SetField64(w uint64, shift, width uint, v uint64) uint64 {
	m := LowMask64(width) << shift
	return (w &^ m) | ((v << shift) & m)
}

// Fits64 returns true if v can be represented in width bits.
func Fits64(v uint64, width uint) bool {
	return v&^LowMask64(width) == 0
}

// IsPowerOfTwo64 returns true if v is a power of 2.
func IsPowerOfTwo64(v uint64) bool {
	return v != 0 && v&(v-1) == 0
}

// AlignDown64 returns the largest multiple of align that is <= v. align
// must be a power of two.
func AlignDown64(v, align uint64) uint64 {
	return v &^ (align - 1)
}

// AlignUp64 returns the smallest multiple of align that is >= v. align must
// be a power of two. ok is false if the result overflows.
func AlignUp64(v, align uint64) (uint64, bool) {
	r := AlignDown64(v+align-1, align)
	return r, r >= v
}

// IsAligned64 returns true if v is a multiple of align. align must be a
// power of two.
func IsAligned64(v, align uint64) bool {
	return v&(align-1) == 0
}
