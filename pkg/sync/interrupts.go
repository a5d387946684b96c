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

package sync

import "sync/atomic"

// IRQState is the opaque interrupt state returned by
// InterruptController.Disable.
type IRQState uint64

// InterruptController masks and restores interrupt delivery on the current
// CPU.
type InterruptController interface {
	// Disable masks interrupts and returns the previous state.
	Disable() IRQState

	// Restore restores a state returned by Disable.
	Restore(IRQState)
}

// NoInterrupts is an InterruptController for environments without
// interrupts. It is the default.
type NoInterrupts struct{}

// Disable implements InterruptController.Disable.
func (NoInterrupts) Disable() IRQState { return 0 }

// Restore implements InterruptController.Restore.
func (NoInterrupts) Restore(IRQState) {}

type controllerHolder struct {
	c InterruptController
}

var interrupts atomic.Pointer[controllerHolder]

// SetInterruptController installs c as the controller used by
// SpinLock.LockIRQ and returns the previous controller. It is expected to
// be called once during bring-up.
func SetInterruptController(c InterruptController) InterruptController {
	if c == nil {
		c = NoInterrupts{}
	}
	prev := interrupts.Swap(&controllerHolder{c})
	if prev == nil {
		return NoInterrupts{}
	}
	return prev.c
}

func currentInterrupts() InterruptController {
	if h := interrupts.Load(); h != nil {
		return h.c
	}
	return NoInterrupts{}
}
