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
	"os"

	"github.com/google/subcommands"
	"gvisor.dev/seccells/pkg/log"
	"gvisor.dev/seccells/rtctl/config"
)

// Boot implements subcommands.Command for the "boot" command.
type Boot struct {
	plan     string
	division uint
	dump     bool
}

// Name implements subcommands.Command.Name.
func (*Boot) Name() string {
	return "boot"
}

// Synopsis implements subcommands.Command.Synopsis.
func (*Boot) Synopsis() string {
	return "bring up a range table and print its cells"
}

// Usage implements subcommands.Command.Usage.
func (*Boot) Usage() string {
	return `boot [flags] - allocate the backing region, create the table and install the plan's initial mappings.
`
}

// SetFlags implements subcommands.Command.SetFlags.
func (b *Boot) SetFlags(f *flag.FlagSet) {
	f.StringVar(&b.plan, "plan", "", "path to a TOML bring-up plan.")
	f.UintVar(&b.division, "division", 0, "security division whose permissions are printed.")
	f.BoolVar(&b.dump, "dump", false, "also dump the raw table state to the log.")
}

// Execute implements subcommands.Command.Execute.
func (b *Boot) Execute(_ context.Context, f *flag.FlagSet, args ...any) subcommands.ExitStatus {
	if f.NArg() != 0 {
		f.Usage()
		return subcommands.ExitUsageError
	}
	conf := args[0].(*config.Config)

	t, err := bootTable(conf, b.plan)
	if err != nil {
		Fatalf("bring-up failed: %v", err)
	}
	if b.dump {
		t.Dump(log.Log())
	}
	if err := writeCells(os.Stdout, t, uint32(b.division)); err != nil {
		FatalDumpf(t, "%v", err)
	}
	return subcommands.ExitSuccess
}
