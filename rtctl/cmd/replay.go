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
	"io"
	"os"
	"sort"

	"github.com/BurntSushi/toml"
	"github.com/google/subcommands"
	"gvisor.dev/seccells/pkg/hostarch"
	"gvisor.dev/seccells/pkg/rangetable"
	"gvisor.dev/seccells/pkg/rangetable/model"
	"gvisor.dev/seccells/rtctl/config"
)

// errorNames maps the names used in scripts to table errors.
var errorNames = map[string]error{
	"full":           rangetable.ErrTableFull,
	"not-mapped":     rangetable.ErrNotMapped,
	"overlap":        rangetable.ErrOverlap,
	"unaligned":      rangetable.ErrUnaligned,
	"invalid-length": rangetable.ErrInvalidLength,
	"out-of-range":   rangetable.ErrOutOfRange,
	"range-mismatch": rangetable.ErrRangeMismatch,
	"bad-division":   rangetable.ErrBadDivision,
	"permission":     rangetable.ErrPermission,
}

// errorName returns the script name of err, "ok" for nil.
func errorName(err error) string {
	if err == nil {
		return "ok"
	}
	names := make([]string, 0, len(errorNames))
	for name := range errorNames {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		if errors.Is(err, errorNames[name]) {
			return name
		}
	}
	return err.Error()
}

// Script is a sequence of table operations read from a TOML file.
type Script struct {
	Ops []Op `toml:"op"`
}

// Op is one scripted operation.
type Op struct {
	// Kind is one of map, unmap, protect, lookup or touch.
	Kind string `toml:"kind"`

	Virtual  uint64 `toml:"virtual"`
	Physical uint64 `toml:"physical"`
	Length   uint64 `toml:"length"`
	Access   string `toml:"access"`
	Type     string `toml:"type"`
	User     bool   `toml:"user"`
	Division uint32 `toml:"division"`

	// Expect is the expected outcome: "ok" (or empty) or an error name.
	Expect string `toml:"expect"`

	// Cell is the expected result of a lookup.
	Cell *uint32 `toml:"cell"`
}

func (op *Op) String() string {
	return fmt.Sprintf("%s %#x+%#x", op.Kind, op.Virtual, op.Length)
}

// LoadScript reads a script file.
func LoadScript(path string) (*Script, error) {
	var s Script
	md, err := toml.DecodeFile(path, &s)
	if err != nil {
		return nil, fmt.Errorf("reading script %q: %w", path, err)
	}
	if keys := md.Undecoded(); len(keys) > 0 {
		return nil, fmt.Errorf("script %q: unknown key %s", path, keys[0])
	}
	return &s, nil
}

// Replay implements subcommands.Command for the "replay" command.
type Replay struct {
	plan  string
	check bool
}

// Name implements subcommands.Command.Name.
func (*Replay) Name() string {
	return "replay"
}

// Synopsis implements subcommands.Command.Synopsis.
func (*Replay) Synopsis() string {
	return "run a script of table operations and check their outcomes"
}

// Usage implements subcommands.Command.Usage.
func (*Replay) Usage() string {
	return `replay [flags] <script.toml> - boot a table and apply each scripted operation.
`
}

// SetFlags implements subcommands.Command.SetFlags.
func (r *Replay) SetFlags(f *flag.FlagSet) {
	f.StringVar(&r.plan, "plan", "", "path to a TOML bring-up plan.")
	f.BoolVar(&r.check, "check", false, "validate the table against a reference model after every operation.")
}

// Execute implements subcommands.Command.Execute.
func (r *Replay) Execute(_ context.Context, f *flag.FlagSet, args ...any) subcommands.ExitStatus {
	if f.NArg() != 1 {
		f.Usage()
		return subcommands.ExitUsageError
	}
	conf := args[0].(*config.Config)

	script, err := LoadScript(f.Arg(0))
	if err != nil {
		Fatalf("%v", err)
	}
	t, err := bootTable(conf, r.plan)
	if err != nil {
		Fatalf("bring-up failed: %v", err)
	}
	failures, err := replay(os.Stdout, t, script, r.check)
	if err != nil {
		FatalDumpf(t, "replay: %v", err)
	}
	if failures > 0 {
		Errorf("%d of %d operations did not match", failures, len(script.Ops))
		return subcommands.ExitFailure
	}
	return subcommands.ExitSuccess
}

// replay applies script to t, writing one line per operation to w. It
// returns the number of operations whose outcome differed from the
// expectation. With check set, the table is compared with a reference
// model after each operation and the first difference is returned as an
// error.
func replay(w io.Writer, t *rangetable.Table, script *Script, check bool) (int, error) {
	var m *model.Model
	if check {
		var err error
		if m, err = seedModel(t); err != nil {
			return 0, err
		}
	}

	failures := 0
	for i := range script.Ops {
		op := &script.Ops[i]
		result, err := apply(t, m, op)
		if err != nil {
			return failures, fmt.Errorf("op %d (%v): %w", i, op, err)
		}
		status := "ok"
		if want := expectation(op); want != "" && result != want {
			status = "MISMATCH, want " + want
			failures++
		}
		fmt.Fprintf(w, "op %d: %v -> %s [%s]\n", i, op, result, status)

		if m != nil {
			if err := m.Check(t); err != nil {
				return failures, fmt.Errorf("after op %d (%v): %w", i, op, err)
			}
		}
	}
	return failures, nil
}

// expectation returns the outcome op expects, or "" if any outcome will do.
func expectation(op *Op) string {
	switch {
	case op.Kind == "lookup" && op.Cell != nil:
		return fmt.Sprintf("cell %d", *op.Cell)
	case op.Kind == "lookup":
		return ""
	case op.Expect == "":
		return "ok"
	default:
		return op.Expect
	}
}

// seedModel returns a model holding t's current cells.
func seedModel(t *rangetable.Table) (*model.Model, error) {
	m := model.New(t.Capacity())
	cells, err := t.Cells(rangetable.SupervisorDivision)
	if err != nil {
		return nil, err
	}
	for _, c := range cells {
		if err := m.Map(c.Virtual, c.Physical, c.Flags); err != nil {
			return nil, err
		}
	}
	return m, nil
}

// apply runs op against t, and m if it is not nil. It returns the outcome
// as a script name. The error is only for malformed operations and model
// disagreement.
func apply(t *rangetable.Table, m *model.Model, op *Op) (string, error) {
	vaddr := hostarch.Addr(op.Virtual)
	ar := hostarch.AddrRange{Start: vaddr, End: vaddr + hostarch.Addr(op.Length)}

	switch op.Kind {
	case "map", "protect":
		mt, err := hostarch.ParseMemoryType(op.Type)
		if err != nil {
			return "", err
		}
		at, err := config.ParseAccess(op.Access)
		if err != nil {
			return "", err
		}
		f := rangetable.FlagsForMemoryType(mt, at)
		if op.User {
			f = f.User()
		}
		var got error
		if op.Kind == "map" {
			_, got = t.Map(vaddr, op.Physical, op.Length, f)
		} else {
			got = t.UpdateDivisionFlags(op.Division, vaddr, op.Length, f, nil)
		}
		if m != nil && got == nil && op.Division == rangetable.SupervisorDivision {
			var want error
			if op.Kind == "map" {
				want = m.Map(ar, op.Physical, f)
			} else {
				want = m.UpdateFlags(ar, f)
			}
			if want != nil {
				return "", fmt.Errorf("table accepted, model rejected: %w", want)
			}
		}
		return errorName(got), nil

	case "unmap":
		got := t.Unmap(vaddr, op.Length)
		if m != nil && got == nil {
			if want := m.Unmap(ar); want != nil {
				return "", fmt.Errorf("table accepted, model rejected: %w", want)
			}
		}
		return errorName(got), nil

	case "lookup":
		idx := t.Lookup(vaddr)
		if m != nil {
			c, ok := m.Lookup(vaddr)
			if ok && c.Index != idx || !ok && idx != rangetable.MetaCell {
				return "", fmt.Errorf("table found cell %d, model found %v (%t)", idx, c, ok)
			}
		}
		return fmt.Sprintf("cell %d", idx), nil

	case "touch":
		at, err := config.ParseAccess(op.Access)
		if err != nil {
			return "", err
		}
		f, got := t.Touch(op.Division, vaddr, at, op.User)
		if m != nil && got == nil && op.Division == rangetable.SupervisorDivision {
			c, _ := m.Lookup(vaddr)
			if err := m.UpdateFlags(c.Virtual, f); err != nil {
				return "", fmt.Errorf("table accepted, model rejected: %w", err)
			}
		}
		return errorName(got), nil

	default:
		return "", fmt.Errorf("unknown operation kind %q", op.Kind)
	}
}
