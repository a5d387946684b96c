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

// Package sync provides the locking primitives used by the range table:
// standard library aliases and an interrupt-safe spin lock.
package sync

import (
	"fmt"
	"runtime"
	"sync/atomic"
)

// spinIterations is the number of busy iterations between yields while
// waiting for a contended SpinLock.
const spinIterations = 64

// SpinLock is a busy-waiting mutual exclusion lock.
//
// SpinLock never parks the calling goroutine on a wait queue, so it may be
// used from contexts without a scheduler (bring-up, fault handling). The
// zero value is an unlocked lock.
type SpinLock struct {
	// w is 0 when unlocked. When locked it holds the program counter of
	// the Lock caller in debug builds and 1 otherwise.
	w atomic.Uintptr
}

// TryLock acquires l if it is free and reports whether it did.
func (l *SpinLock) TryLock() bool {
	return l.w.Load() == 0 && l.w.CompareAndSwap(0, holderToken())
}

// Lock acquires l, spinning until it is available.
//
// spindebug builds model a uniprocessor: acquisition is a single
// compare-and-swap, and a failed one can only be reentrancy, so it panics
// naming the holder. Contention from another CPU is reported the same way.
func (l *SpinLock) Lock() {
	if spinDebug {
		if !l.w.CompareAndSwap(0, holderToken()) {
			panic(fmt.Sprintf("spin_lock: lock %p already locked by %#x", l, l.w.Load()))
		}
		return
	}
	for i := 0; ; i++ {
		if l.TryLock() {
			return
		}
		if i%spinIterations == spinIterations-1 {
			runtime.Gosched()
		}
	}
}

// Unlock releases l. Unlocking an unlocked lock panics.
func (l *SpinLock) Unlock() {
	if l.w.Swap(0) == 0 {
		panic(fmt.Sprintf("spin_unlock: lock %p is not locked", l))
	}
}

// Held reports whether l is currently locked. It is intended for
// assertions only.
func (l *SpinLock) Held() bool {
	return l.w.Load() != 0
}

// LockIRQ disables interrupts and acquires l. The returned state must be
// passed to UnlockIRQ.
func (l *SpinLock) LockIRQ() IRQState {
	s := currentInterrupts().Disable()
	l.Lock()
	return s
}

// UnlockIRQ releases l and restores the interrupt state saved by LockIRQ.
func (l *SpinLock) UnlockIRQ(s IRQState) {
	l.Unlock()
	currentInterrupts().Restore(s)
}

// holderToken returns the value stored in a locked SpinLock.
func holderToken() uintptr {
	if !spinDebug {
		return 1
	}
	var pcs [1]uintptr
	// Skip runtime.Callers, holderToken and the SpinLock method.
	if runtime.Callers(3, pcs[:]) == 0 || pcs[0] == 0 {
		return 1
	}
	return pcs[0]
}
