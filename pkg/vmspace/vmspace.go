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

// Package vmspace manages a virtual address space backed by a range table.
//
// It turns mapping requests expressed in hostarch vocabulary into table
// cells, recovers from a full table by asking a Reclaimer to free cells,
// and resolves access faults against the table.
package vmspace

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cenkalti/backoff"
	"gvisor.dev/seccells/pkg/hostarch"
	"gvisor.dev/seccells/pkg/log"
	"gvisor.dev/seccells/pkg/rangetable"
)

const (
	// DefaultRetryInterval is the delay between reclaim attempts.
	DefaultRetryInterval = time.Millisecond

	// DefaultMaxRetries bounds reclaim attempts per Map.
	DefaultMaxRetries = 3
)

// Reclaimer frees table cells when the table is full.
type Reclaimer interface {
	// Reclaim unmaps one or more cells and returns how many it freed.
	// Returning zero means nothing more can be freed.
	Reclaim(ctx context.Context) (int, error)
}

// ReclaimFunc is an adapter to allow the use of ordinary functions as
// Reclaimers.
type ReclaimFunc func(ctx context.Context) (int, error)

// Reclaim implements Reclaimer.Reclaim.
func (f ReclaimFunc) Reclaim(ctx context.Context) (int, error) {
	return f(ctx)
}

// Opts configures a Space.
type Opts struct {
	// Division is the security division the space grants access to and
	// resolves faults for.
	Division uint32

	// Reclaimer, if set, is asked to free cells when the table is full.
	Reclaimer Reclaimer

	// RetryInterval defaults to DefaultRetryInterval.
	RetryInterval time.Duration

	// MaxRetries defaults to DefaultMaxRetries.
	MaxRetries uint64
}

// Space is an address space over a range table.
type Space struct {
	table *rangetable.Table
	opts  Opts
}

// New returns a Space over t.
func New(t *rangetable.Table, opts Opts) (*Space, error) {
	if g := t.Geometry(); opts.Division >= g.M {
		return nil, fmt.Errorf("%w: division %d, table has %d", rangetable.ErrBadDivision, opts.Division, g.M)
	}
	if opts.RetryInterval == 0 {
		opts.RetryInterval = DefaultRetryInterval
	}
	if opts.MaxRetries == 0 {
		opts.MaxRetries = DefaultMaxRetries
	}
	return &Space{table: t, opts: opts}, nil
}

// Table returns the underlying table.
func (s *Space) Table() *rangetable.Table {
	return s.table
}

// MapOpts describes a mapping request.
type MapOpts struct {
	// Addr is the page-aligned virtual start.
	Addr hostarch.Addr

	// Phys is the page-aligned physical start.
	Phys uint64

	// Length is the page-aligned length.
	Length uint64

	// Perms is the permitted access.
	Perms hostarch.AccessType

	// MemoryType selects memory or device attributes.
	MemoryType hostarch.MemoryType

	// User allows access from user mode.
	User bool

	// Global marks the mapping as present in every address space.
	Global bool
}

// Flags returns the permission byte for opts.
func (opts *MapOpts) Flags() rangetable.Flags {
	f := rangetable.FlagsForMemoryType(opts.MemoryType, opts.Perms)
	if opts.User {
		f = f.User()
	}
	if opts.Global {
		f = f.Global()
	}
	return f
}

// Map installs opts in the table. If the table is full and a Reclaimer is
// configured, Map reclaims and retries until the mapping fits, the
// Reclaimer gives up, the retry budget is spent or ctx is done.
func (s *Space) Map(ctx context.Context, opts MapOpts) (hostarch.AddrRange, error) {
	ar, ok := opts.Addr.ToRange(opts.Length)
	if !ok {
		return hostarch.AddrRange{}, fmt.Errorf("%w: %v + %#x", rangetable.ErrInvalidLength, opts.Addr, opts.Length)
	}
	f := opts.Flags()
	if err := s.mapWithReclaim(ctx, opts.Addr, opts.Phys, opts.Length, f); err != nil {
		return hostarch.AddrRange{}, err
	}
	return ar, nil
}

func (s *Space) mapWithReclaim(ctx context.Context, addr hostarch.Addr, phys, length uint64, f rangetable.Flags) error {
	if s.opts.Reclaimer == nil {
		_, err := s.table.MapDivision(s.opts.Division, addr, phys, length, f)
		return err
	}
	b := backoff.WithContext(backoff.WithMaxRetries(backoff.NewConstantBackOff(s.opts.RetryInterval), s.opts.MaxRetries), ctx)
	op := func() error {
		_, err := s.table.MapDivision(s.opts.Division, addr, phys, length, f)
		switch {
		case err == nil:
			return nil
		case !errors.Is(err, rangetable.ErrTableFull):
			return backoff.Permanent(err)
		}
		freed, rerr := s.opts.Reclaimer.Reclaim(ctx)
		if rerr != nil {
			return backoff.Permanent(fmt.Errorf("reclaiming for %v: %w", addr, rerr))
		}
		if freed == 0 {
			return backoff.Permanent(err)
		}
		log.Debugf("Reclaimed %d cells for mapping at %v", freed, addr)
		return err
	}
	return backoff.Retry(op, b)
}

// Unmap removes the mapping of exactly [addr, addr+length).
func (s *Space) Unmap(addr hostarch.Addr, length uint64) error {
	return s.table.Unmap(addr, length)
}

// Protect changes the access permitted to the mapping of exactly
// [addr, addr+length) in the space's division and waits for the change to
// be visible.
func (s *Space) Protect(ctx context.Context, addr hostarch.Addr, length uint64, at hostarch.AccessType, user bool) error {
	f := rangetable.FlagsFromAccessType(at)
	if user {
		f = f.User()
	}
	done := make(chan error, 1)
	if err := s.table.UpdateDivisionFlags(s.opts.Division, addr, length, f, func(err error) {
		done <- err
	}); err != nil {
		return err
	}
	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}
