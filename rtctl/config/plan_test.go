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

package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"gvisor.dev/seccells/pkg/hostarch"
	"gvisor.dev/seccells/pkg/rangetable"
)

const testPlan = `
divisions = 2
table_size = 0x1000

[geometry]
m = 2
s = 48
t = 3

[[mapping]]
name = "kernel"
virtual = 0x80000000
length = 0x200000
access = "rx"
global = true

[[mapping]]
name = "uart"
virtual = 0xffff0000
physical = 0x10000000
length = 0x1000
type = "device"
access = "rwx"

[[mapping]]
name = "user"
virtual = 0x400000
length = 0x1000
access = "rw"
user = true
`

func TestParsePlan(t *testing.T) {
	p, err := ParsePlan(testPlan)
	if err != nil {
		t.Fatalf("ParsePlan: %v", err)
	}
	conf, err := NewFromFlags(newTestFlags())
	if err != nil {
		t.Fatal(err)
	}
	applied, err := p.Apply(conf)
	if err != nil {
		t.Fatalf("Apply: %v", err)
	}
	if conf.Divisions != 1 || conf.TableSize != rangetable.DefaultTableSize {
		t.Errorf("Apply modified its argument: %+v", conf)
	}
	if applied.Divisions != 2 || applied.TableSize != 0x1000 {
		t.Errorf("Apply: got divisions %d size %#x", applied.Divisions, applied.TableSize)
	}

	opts, err := p.BootOpts(applied)
	if err != nil {
		t.Fatalf("BootOpts: %v", err)
	}
	want := rangetable.BootOpts{
		Size:      0x1000,
		Divisions: 2,
		Geometry:  &rangetable.Geometry{M: 2, S: 48, T: 3},
		Mappings: []rangetable.InitialMapping{
			{
				Name:     "kernel",
				Virtual:  0x80000000,
				Physical: 0x80000000,
				Length:   0x200000,
				Flags:    rangetable.FlagRead | rangetable.FlagExec | rangetable.FlagGlobal,
			},
			{
				Name:     "uart",
				Virtual:  0xffff0000,
				Physical: 0x10000000,
				Length:   0x1000,
				Flags:    rangetable.FlagRead | rangetable.FlagWrite,
			},
			{
				Name:     "user",
				Virtual:  0x400000,
				Physical: 0x400000,
				Length:   0x1000,
				Flags:    rangetable.FlagRead | rangetable.FlagWrite | rangetable.FlagUser,
			},
		},
	}
	if diff := cmp.Diff(want, opts); diff != "" {
		t.Errorf("BootOpts mismatch (-want +got):\n%s", diff)
	}
}

func TestLoadPlan(t *testing.T) {
	path := filepath.Join(t.TempDir(), "plan.toml")
	if err := os.WriteFile(path, []byte(testPlan), 0644); err != nil {
		t.Fatal(err)
	}
	p, err := LoadPlan(path)
	if err != nil {
		t.Fatalf("LoadPlan: %v", err)
	}
	if len(p.Mappings) != 3 {
		t.Errorf("got %d mappings, want 3", len(p.Mappings))
	}
	if _, err := LoadPlan(filepath.Join(t.TempDir(), "missing.toml")); err == nil {
		t.Errorf("LoadPlan of missing file succeeded")
	}
}

func TestPlanErrors(t *testing.T) {
	for _, tc := range []struct {
		name string
		plan string
		err  string
	}{
		{"unknown key", "tablesize = 4096", "unknown keys: tablesize"},
		{"bad access", "[[mapping]]\nname = \"a\"\naccess = \"rq\"", "unknown permission"},
		{"bad type", "[[mapping]]\nname = \"a\"\ntype = \"mmio\"", "invalid memory type"},
		{"zero overrides ignored", "divisions = 0\ntable_size = 0", ""},
	} {
		t.Run(tc.name, func(t *testing.T) {
			p, err := ParsePlan(tc.plan)
			if err == nil {
				var conf *Config
				if conf, err = NewFromFlags(newTestFlags()); err != nil {
					t.Fatal(err)
				}
				if conf, err = p.Apply(conf); err == nil {
					_, err = p.BootOpts(conf)
				}
			}
			if tc.err == "" {
				if err != nil {
					t.Errorf("got %v, want nil", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tc.err) {
				t.Errorf("got %v, want error containing %q", err, tc.err)
			}
		})
	}
}

func TestParseAccess(t *testing.T) {
	for _, tc := range []struct {
		in   string
		want hostarch.AccessType
	}{
		{"", hostarch.NoAccess},
		{"r", hostarch.Read},
		{"rw", hostarch.ReadWrite},
		{"r-x", hostarch.ReadExec},
		{"rwx", hostarch.AnyAccess},
		{"xwr", hostarch.AnyAccess},
	} {
		got, err := ParseAccess(tc.in)
		if err != nil || got != tc.want {
			t.Errorf("ParseAccess(%q): got %v, %v; want %v", tc.in, got, err, tc.want)
		}
	}
}
