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
	"bytes"
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"gvisor.dev/seccells/pkg/hostarch"
	"gvisor.dev/seccells/pkg/rangetable"
	"gvisor.dev/seccells/rtctl/config"
)

func testConfig(t *testing.T, flags map[string]string) *config.Config {
	t.Helper()
	testFlags := flag.NewFlagSet("test", flag.ContinueOnError)
	config.RegisterFlags(testFlags)
	for name, val := range flags {
		if err := testFlags.Set(name, val); err != nil {
			t.Fatalf("Flag set %s=%q: %v", name, val, err)
		}
	}
	conf, err := config.NewFromFlags(testFlags)
	if err != nil {
		t.Fatal(err)
	}
	return conf
}

func writeFile(t *testing.T, name, data string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(data), 0644); err != nil {
		t.Fatal(err)
	}
	return path
}

const testPlan = `
[geometry]
m = 2
s = 4
t = 1

[[mapping]]
name = "kernel"
virtual = 0x80000000
length = 0x4000
access = "rx"
`

func TestBootTable(t *testing.T) {
	if !hostarch.HostPageSizeMatches() {
		t.Skip("host page size differs")
	}
	for _, allocator := range []string{"mmap", "bootstrap"} {
		t.Run(allocator, func(t *testing.T) {
			conf := testConfig(t, map[string]string{"allocator": allocator, "table-size": "4096", "arena-size": "8192"})
			tbl, err := bootTable(conf, writeFile(t, "plan.toml", testPlan))
			if err != nil {
				t.Fatalf("bootTable: %v", err)
			}
			if got, want := tbl.Geometry(), (rangetable.Geometry{M: 2, S: 4, T: 1}); got != want {
				t.Errorf("Geometry: got %v, want %v", got, want)
			}
			if got := tbl.Lookup(0x80001000); got != 1 {
				t.Errorf("Lookup(kernel): got %d, want 1", got)
			}
			var buf bytes.Buffer
			if err := writeCells(&buf, tbl, 0); err != nil {
				t.Fatalf("writeCells: %v", err)
			}
			if !strings.Contains(buf.String(), "cell 1: [0x80000000, 0x80004000)") {
				t.Errorf("writeCells output:\n%s", buf.String())
			}
		})
	}
}

func TestBootTableErrors(t *testing.T) {
	conf := testConfig(t, nil)
	if _, err := bootTable(conf, filepath.Join(t.TempDir(), "missing.toml")); err == nil {
		t.Errorf("bootTable with missing plan succeeded")
	}
	// A geometry larger than the arena fails allocation.
	conf = testConfig(t, map[string]string{"allocator": "bootstrap", "table-size": "4096", "arena-size": "4096"})
	plan := writeFile(t, "plan.toml", "[geometry]\nm = 1\ns = 128\nt = 1\n")
	if _, err := bootTable(conf, plan); !errors.Is(err, rangetable.ErrAllocation) {
		t.Errorf("bootTable: got %v, want %v", err, rangetable.ErrAllocation)
	}
}

func TestErrorName(t *testing.T) {
	for name, sentinel := range errorNames {
		if got := errorName(fmt.Errorf("context: %w", sentinel)); got != name {
			t.Errorf("errorName(%v): got %q, want %q", sentinel, got, name)
		}
	}
	if got := errorName(nil); got != "ok" {
		t.Errorf("errorName(nil): got %q, want ok", got)
	}
	if got := errorName(errors.New("other")); got != "other" {
		t.Errorf("errorName(other): got %q", got)
	}
}

func TestWriteLayout(t *testing.T) {
	var buf bytes.Buffer
	if err := writeLayout(&buf, rangetable.Geometry{M: 2, S: 4, T: 1}); err != nil {
		t.Fatalf("writeLayout: %v", err)
	}
	out := buf.String()
	for _, want := range []string{
		"descriptors: [0x0, 0x100) 16 slots",
		"division 0:  [0x100, 0x140)",
		"division 1:  [0x140, 0x180)",
		"capacity:    16 cells",
		"pages:       1",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("layout missing %q:\n%s", want, out)
		}
	}
}

func newCmdTable(t *testing.T, g rangetable.Geometry) *rangetable.Table {
	t.Helper()
	tbl, err := rangetable.New(rangetable.Region{Data: make([]byte, g.Size()), Phys: 0x80000000}, g, rangetable.Opts{})
	if err != nil {
		t.Fatalf("rangetable.New: %v", err)
	}
	return tbl
}

const testScript = `
[[op]]
kind = "map"
virtual = 0x2000
physical = 0x2000
length = 0x1000
access = "rw"

[[op]]
kind = "map"
virtual = 0x1000
physical = 0x9000
length = 0x2000
access = "r"
expect = "overlap"

[[op]]
kind = "map"
virtual = 0x1000
physical = 0x9000
length = 0x1000
access = "r"

[[op]]
kind = "lookup"
virtual = 0x2800
cell = 2

[[op]]
kind = "touch"
virtual = 0x2000
access = "w"

[[op]]
kind = "touch"
virtual = 0x1000
access = "w"
expect = "permission"

[[op]]
kind = "protect"
virtual = 0x1000
length = 0x1000
access = "rx"

[[op]]
kind = "protect"
division = 1
virtual = 0x1000
length = 0x1000
access = "r"
user = true

[[op]]
kind = "unmap"
virtual = 0x2000
length = 0x800
expect = "unaligned"

[[op]]
kind = "unmap"
virtual = 0x2000
length = 0x1000

[[op]]
kind = "lookup"
virtual = 0x2800
cell = 0
`

func TestReplay(t *testing.T) {
	script, err := LoadScript(writeFile(t, "script.toml", testScript))
	if err != nil {
		t.Fatalf("LoadScript: %v", err)
	}
	for _, check := range []bool{false, true} {
		t.Run(fmt.Sprintf("check=%t", check), func(t *testing.T) {
			tbl := newCmdTable(t, rangetable.Geometry{M: 2, S: 4, T: 1})
			var buf bytes.Buffer
			failures, err := replay(&buf, tbl, script, check)
			if err != nil {
				t.Fatalf("replay: %v\n%s", err, buf.String())
			}
			if failures != 0 {
				t.Errorf("replay: %d failures\n%s", failures, buf.String())
			}
			if got := strings.Count(buf.String(), "\n"); got != len(script.Ops) {
				t.Errorf("replay wrote %d lines, want %d", got, len(script.Ops))
			}
		})
	}
}

func TestReplayMismatch(t *testing.T) {
	script := &Script{Ops: []Op{
		{Kind: "map", Virtual: 0x1000, Physical: 0x1000, Length: 0x1000, Access: "r", Expect: "overlap"},
		{Kind: "unmap", Virtual: 0x5000, Length: 0x1000},
		{Kind: "lookup", Virtual: 0x1000, Cell: new(uint32)},
	}}
	tbl := newCmdTable(t, rangetable.Geometry{M: 1, S: 4, T: 1})
	var buf bytes.Buffer
	failures, err := replay(&buf, tbl, script, true)
	if err != nil {
		t.Fatalf("replay: %v", err)
	}
	if failures != 3 {
		t.Errorf("replay: got %d failures, want 3\n%s", failures, buf.String())
	}
	if !strings.Contains(buf.String(), "MISMATCH, want overlap") {
		t.Errorf("replay output:\n%s", buf.String())
	}
}

func TestReplayMalformed(t *testing.T) {
	tbl := newCmdTable(t, rangetable.Geometry{M: 1, S: 4, T: 1})
	for _, op := range []Op{
		{Kind: "remap"},
		{Kind: "map", Access: "q"},
		{Kind: "map", Type: "mmio"},
	} {
		if _, err := replay(&bytes.Buffer{}, tbl, &Script{Ops: []Op{op}}, false); err == nil {
			t.Errorf("replay(%+v) succeeded", op)
		}
	}
	if _, err := LoadScript(writeFile(t, "bad.toml", "[[op]]\nkind = \"map\"\nvirt = 1\n")); err == nil {
		t.Errorf("LoadScript with unknown key succeeded")
	}
}

func TestStress(t *testing.T) {
	// Capacity 16 is below what a single worker keeps mapped, so table-full
	// shows up however the workers are scheduled.
	tbl := newCmdTable(t, rangetable.Geometry{M: 1, S: 4, T: 1})
	stats, err := stress(context.Background(), tbl, 4, 500, 1)
	if err != nil {
		t.Fatalf("stress: %v", err)
	}
	if stats.maps == 0 || stats.maps != stats.unmaps {
		t.Errorf("stress: %+v, want equal non-zero maps and unmaps", stats)
	}
	if stats.full == 0 {
		t.Errorf("stress: %+v, want some full-table failures", stats)
	}
	if got := tbl.N(); got != 1 {
		t.Errorf("N after stress: got %d, want 1", got)
	}
}
