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

package cmd

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"math/rand"
	"time"

	"github.com/google/subcommands"
	"golang.org/x/sync/errgroup"
	"gvisor.dev/seccells/pkg/hostarch"
	"gvisor.dev/seccells/pkg/log"
	"gvisor.dev/seccells/pkg/rangetable"
	"gvisor.dev/seccells/pkg/vmspace"
	"gvisor.dev/seccells/rtctl/config"
)

// Stress implements subcommands.Command for the "stress" command.
type Stress struct {
	plan       string
	workers    int
	iterations int
	seed       int64
}

// Name implements subcommands.Command.Name.
func (*Stress) Name() string {
	return "stress"
}

// Synopsis implements subcommands.Command.Synopsis.
func (*Stress) Synopsis() string {
	return "map and unmap concurrently, then validate the table"
}

// Usage implements subcommands.Command.Usage.
func (*Stress) Usage() string {
	return `stress [flags] - run workers that each map, fault on and unmap ranges in their own window.
`
}

// SetFlags implements subcommands.Command.SetFlags.
func (s *Stress) SetFlags(f *flag.FlagSet) {
	f.StringVar(&s.plan, "plan", "", "path to a TOML bring-up plan.")
	f.IntVar(&s.workers, "workers", 4, "number of concurrent workers.")
	f.IntVar(&s.iterations, "iterations", 1000, "operations per worker.")
	f.Int64Var(&s.seed, "seed", 0, "random seed; 0 uses the current time.")
}

// Execute implements subcommands.Command.Execute.
func (s *Stress) Execute(ctx context.Context, f *flag.FlagSet, args ...any) subcommands.ExitStatus {
	if f.NArg() != 0 || s.workers <= 0 || s.iterations <= 0 {
		f.Usage()
		return subcommands.ExitUsageError
	}
	conf := args[0].(*config.Config)

	t, err := bootTable(conf, s.plan)
	if err != nil {
		Fatalf("bring-up failed: %v", err)
	}
	seed := s.seed
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	start := time.Now()
	stats, err := stress(ctx, t, s.workers, s.iterations, seed)
	if err != nil {
		FatalDumpf(t, "stress (seed %d): %v", seed, err)
	}
	Infof("%d workers, %d iterations each, seed %d: %d maps, %d unmaps, %d full, %d faults in %v",
		s.workers, s.iterations, seed, stats.maps, stats.unmaps, stats.full, stats.faults, time.Since(start))
	return subcommands.ExitSuccess
}

// stressWindow is the virtual window owned by each worker.
const stressWindow = 1 << 30

// stressBase is where worker windows start.
const stressBase = 1 << 40

type stressStats struct {
	maps, unmaps, full, faults int
}

// stress runs workers against t. Each worker owns a disjoint window, keeps
// track of what it mapped there and checks every result against that. The
// table is validated once all workers finish.
func stress(ctx context.Context, t *rangetable.Table, workers, iterations int, seed int64) (stressStats, error) {
	results := make([]stressStats, workers)
	g, ctx := errgroup.WithContext(ctx)
	for w := 0; w < workers; w++ {
		w := w
		g.Go(func() error {
			return stressWorker(ctx, t, w, iterations, rand.New(rand.NewSource(seed+int64(w))), &results[w])
		})
	}
	if err := g.Wait(); err != nil {
		return stressStats{}, err
	}
	if err := t.Validate(); err != nil {
		return stressStats{}, err
	}

	var total stressStats
	for _, r := range results {
		total.maps += r.maps
		total.unmaps += r.unmaps
		total.full += r.full
		total.faults += r.faults
	}
	return total, nil
}

func stressWorker(ctx context.Context, t *rangetable.Table, w, iterations int, r *rand.Rand, stats *stressStats) error {
	const slots = 64
	space, err := vmspace.New(t, vmspace.Opts{})
	if err != nil {
		return err
	}
	base := hostarch.Addr(stressBase + w*stressWindow)
	slotAddr := func(i int) hostarch.Addr {
		return base + hostarch.Addr(i)*2*hostarch.PageSize
	}
	var mapped [slots]bool

	for i := 0; i < iterations; i++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		slot := r.Intn(slots)
		addr := slotAddr(slot)
		switch {
		case !mapped[slot]:
			_, err := space.Map(ctx, vmspace.MapOpts{Addr: addr, Phys: uint64(addr), Length: hostarch.PageSize, Perms: hostarch.ReadWrite})
			switch {
			case err == nil:
				mapped[slot] = true
				stats.maps++
			case errors.Is(err, rangetable.ErrTableFull):
				stats.full++
			default:
				return fmt.Errorf("worker %d: map %v: %w", w, addr, err)
			}
		case r.Intn(2) == 0:
			if err := space.HandleFault(addr+hostarch.Addr(r.Intn(hostarch.PageSize)), hostarch.Write, false); err != nil {
				return fmt.Errorf("worker %d: fault at %v: %w", w, addr, err)
			}
			stats.faults++
		default:
			if err := space.Unmap(addr, hostarch.PageSize); err != nil {
				return fmt.Errorf("worker %d: unmap %v: %w", w, addr, err)
			}
			mapped[slot] = false
			stats.unmaps++
		}
		// Neighbouring gaps are never mapped.
		if idx := t.Lookup(addr + hostarch.PageSize); idx != rangetable.MetaCell {
			return fmt.Errorf("worker %d: gap after %v resolved to cell %d", w, addr, idx)
		}
	}

	for slot, ok := range mapped {
		if !ok {
			continue
		}
		if err := space.Unmap(slotAddr(slot), hostarch.PageSize); err != nil {
			return fmt.Errorf("worker %d: cleanup: %w", w, err)
		}
		stats.unmaps++
	}
	log.Debugf("Stress worker %d done: %+v", w, *stats)
	return nil
}
