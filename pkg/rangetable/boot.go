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
	"errors"
	"fmt"

	"gvisor.dev/seccells/pkg/hostarch"
)

// DefaultTableSize is the backing size used when BootOpts.Size is zero.
const DefaultTableSize = hostarch.HugePageSize

// InitialMapping is a range mapped during bring-up.
type InitialMapping struct {
	// Name identifies the mapping in logs and errors.
	Name string

	// Virtual is the page-aligned virtual start.
	Virtual hostarch.Addr

	// Physical is the page-aligned physical start.
	Physical uint64

	// Length is the page-aligned length.
	Length uint64

	// Flags are the supervisor permissions.
	Flags Flags
}

// BootOpts configures Boot.
type BootOpts struct {
	// Size is the number of backing bytes to allocate. Defaults to
	// DefaultTableSize.
	Size uint64

	// Divisions is M. Defaults to 1.
	Divisions uint32

	// Geometry, if set, is used instead of sizing S and T from Size.
	Geometry *Geometry

	// Mappings are installed in order once the table exists.
	Mappings []InitialMapping

	// Opts are passed to New.
	Opts Opts
}

// Boot performs table bring-up: it allocates the backing region once,
// initializes the metadata cell, installs the initial mappings and then
// invalidates every cached translation.
//
// Allocation failure is returned wrapping ErrAllocation; callers treat any
// error from Boot as fatal.
func Boot(a Allocator, opts BootOpts) (*Table, error) {
	if opts.Size == 0 {
		opts.Size = DefaultTableSize
	}
	if opts.Divisions == 0 {
		opts.Divisions = 1
	}

	var g Geometry
	if opts.Geometry != nil {
		g = *opts.Geometry
		if g.Size() > opts.Size {
			opts.Size = g.Size()
		}
	} else {
		var err error
		if g, err = SizeGeometry(opts.Size, opts.Divisions); err != nil {
			return nil, err
		}
	}

	r, err := a.AllocateBackingRegion(opts.Size)
	if err != nil {
		if !errors.Is(err, ErrAllocation) {
			err = fmt.Errorf("%w: %v", ErrAllocation, err)
		}
		return nil, err
	}
	t, err := New(r, g, opts.Opts)
	if err != nil {
		return nil, err
	}

	for _, m := range opts.Mappings {
		if _, err := t.Map(m.Virtual, m.Physical, m.Length, m.Flags); err != nil {
			return nil, fmt.Errorf("initial mapping %q: %w", m.Name, err)
		}
	}
	// Nothing may be cached from before the table was installed.
	t.flusher.InvalidateAll(nil)
	t.logger.Infof("Range table ready at phys %#x: %v, %d initial mappings", t.phys, g, len(opts.Mappings))
	return t, nil
}
