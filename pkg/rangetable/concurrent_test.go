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
	"context"
	"fmt"
	"math/rand"
	"testing"

	"golang.org/x/sync/errgroup"
	"gvisor.dev/seccells/pkg/hostarch"
	"gvisor.dev/seccells/pkg/log"
)

func TestConcurrentMapUnmap(t *testing.T) {
	const (
		workers = 8
		cells   = 16
		rounds  = 50
	)
	tbl := newTestTable(t, Geometry{M: 2, S: 64, T: 4}, &recordingFlusher{})
	tbl.logger = &silentLogger{}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var writers errgroup.Group
	for w := 0; w < workers; w++ {
		w := w
		base := hostarch.Addr(w+1) << 24
		r := rand.New(rand.NewSource(int64(w)))
		writers.Go(func() error {
			for round := 0; round < rounds; round++ {
				for i := 0; i < cells; i++ {
					start := base + hostarch.Addr(2*i)<<hostarch.PageShift
					if _, err := tbl.Map(start, uint64(start), hostarch.PageSize, FlagRead|FlagWrite); err != nil {
						return fmt.Errorf("worker %d: Map(%v): %w", w, start, err)
					}
				}
				for i := 0; i < cells; i++ {
					start := base + hostarch.Addr(2*i)<<hostarch.PageShift
					phys, _, ok := tbl.Translate(start + 0x10)
					if !ok || phys != uint64(start)+0x10 {
						return fmt.Errorf("worker %d: Translate(%v) = %#x, %t", w, start+0x10, phys, ok)
					}
				}
				for _, i := range r.Perm(cells) {
					start := base + hostarch.Addr(2*i)<<hostarch.PageShift
					if err := tbl.Unmap(start, hostarch.PageSize); err != nil {
						return fmt.Errorf("worker %d: Unmap(%v): %w", w, start, err)
					}
				}
			}
			return nil
		})
	}

	readers, rctx := errgroup.WithContext(ctx)
	for i := 0; i < 2; i++ {
		readers.Go(func() error {
			for rctx.Err() == nil {
				// Gaps between worker cells are never mapped.
				if idx := tbl.Lookup(1<<24 + hostarch.PageSize); idx != MetaCell {
					return fmt.Errorf("Lookup of unmapped gap returned cell %d", idx)
				}
				if err := tbl.Validate(); err != nil {
					return err
				}
			}
			return nil
		})
	}

	if err := writers.Wait(); err != nil {
		t.Fatal(err)
	}
	cancel()
	if err := readers.Wait(); err != nil {
		t.Fatal(err)
	}
	if got := tbl.N(); got != 1 {
		t.Errorf("N after all unmaps: got %d, want 1", got)
	}
	checkValid(t, tbl)
}

// silentLogger drops everything.
type silentLogger struct{}

func (*silentLogger) Debugf(string, ...any)    {}
func (*silentLogger) Infof(string, ...any)     {}
func (*silentLogger) Warningf(string, ...any)  {}
func (*silentLogger) IsLogging(log.Level) bool { return false }
