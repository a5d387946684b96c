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

//go:build spindebug
// +build spindebug

package sync

import (
	"strings"
	"sync/atomic"
	"testing"
)

func TestSpinLockReentryPanics(t *testing.T) {
	var l SpinLock
	l.Lock()
	defer l.Unlock()
	defer func() {
		r := recover()
		if r == nil {
			t.Fatalf("reentrant Lock did not panic")
		}
		if msg, ok := r.(string); !ok || !strings.Contains(msg, "already locked") {
			t.Errorf("panic: got %v, wanted already locked message", r)
		}
	}()
	l.Lock()
}

func TestSpinLockReentryKeepsHolder(t *testing.T) {
	var l SpinLock
	l.Lock()
	holder := l.w.Load()
	func() {
		defer func() {
			if recover() == nil {
				t.Errorf("reentrant Lock did not panic")
			}
		}()
		l.Lock()
	}()
	if got := l.w.Load(); got != holder {
		t.Errorf("holder after failed Lock: got %#x, want %#x", got, holder)
	}
	l.Unlock()
	if l.Held() {
		t.Fatalf("lock held after Unlock")
	}
	// Released locks are acquired again without a panic.
	l.Lock()
	l.Unlock()
}

func TestSpinLockConcurrentAcquireSingleWinner(t *testing.T) {
	var l SpinLock
	const contenders = 8
	var (
		wg       WaitGroup
		acquired atomic.Int32
	)
	start := make(chan struct{})
	for i := 0; i < contenders; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			defer func() { recover() }()
			<-start
			l.Lock()
			acquired.Add(1)
		}()
	}
	close(start)
	wg.Wait()
	if got := acquired.Load(); got != 1 {
		t.Errorf("contenders that acquired the lock: got %d, want 1", got)
	}
}
