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
	"flag"
	"fmt"
	"io"
	"os"

	"github.com/google/subcommands"
	"gvisor.dev/seccells/pkg/hostarch"
	"gvisor.dev/seccells/pkg/rangetable"
	"gvisor.dev/seccells/rtctl/config"
)

// Layout implements subcommands.Command for the "layout" command.
type Layout struct {
	m, s, t uint
}

// Name implements subcommands.Command.Name.
func (*Layout) Name() string {
	return "layout"
}

// Synopsis implements subcommands.Command.Synopsis.
func (*Layout) Synopsis() string {
	return "print the byte layout of a range table"
}

// Usage implements subcommands.Command.Usage.
func (*Layout) Usage() string {
	return `layout [flags] - print the geometry sized from --table-size and --divisions, or given explicitly.
`
}

// SetFlags implements subcommands.Command.SetFlags.
func (l *Layout) SetFlags(f *flag.FlagSet) {
	f.UintVar(&l.m, "m", 0, "number of security divisions; overrides sizing when set with -s and -t.")
	f.UintVar(&l.s, "s", 0, "cache lines of descriptors.")
	f.UintVar(&l.t, "t", 0, "cache lines of permissions per division.")
}

// Execute implements subcommands.Command.Execute.
func (l *Layout) Execute(_ context.Context, f *flag.FlagSet, args ...any) subcommands.ExitStatus {
	if f.NArg() != 0 {
		f.Usage()
		return subcommands.ExitUsageError
	}
	conf := args[0].(*config.Config)

	var g rangetable.Geometry
	if l.m != 0 || l.s != 0 || l.t != 0 {
		g = rangetable.Geometry{M: uint32(l.m), S: uint32(l.s), T: uint32(l.t)}
		if err := g.Validate(g.Size()); err != nil {
			Fatalf("%v", err)
		}
	} else {
		var err error
		if g, err = rangetable.SizeGeometry(conf.TableSize, uint32(conf.Divisions)); err != nil {
			Fatalf("%v", err)
		}
	}
	if err := writeLayout(os.Stdout, g); err != nil {
		Fatalf("%v", err)
	}
	return subcommands.ExitSuccess
}

// writeLayout prints the regions of a table with geometry g.
func writeLayout(w io.Writer, g rangetable.Geometry) error {
	fmt.Fprintf(w, "geometry:    %v\n", g)
	fmt.Fprintf(w, "descriptors: [%#x, %#x) %d slots of %d bytes, %d per cache line\n",
		0, g.DescriptorBytes(), g.DescriptorBytes()/rangetable.CellDescSize, rangetable.CellDescSize, rangetable.CellsPerLine)
	for sd := uint32(0); sd < g.M; sd++ {
		start, err := g.FlagOffset(0, sd)
		if err != nil {
			return err
		}
		fmt.Fprintf(w, "division %d:  [%#x, %#x)\n", sd, start, start+g.BandBytes())
	}
	fmt.Fprintf(w, "capacity:    %d cells (N includes the metadata cell)\n", g.Capacity())
	fmt.Fprintf(w, "pages:       %d\n", mustRoundUp(g.Size())/hostarch.PageSize)
	return nil
}

func mustRoundUp(size uint64) uint64 {
	r, ok := hostarch.PageRoundUp(size)
	if !ok {
		panic(fmt.Sprintf("size %#x overflows", size))
	}
	return r
}
