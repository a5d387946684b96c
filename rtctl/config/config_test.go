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
	"flag"
	"strings"
	"testing"
)

func newTestFlags() *flag.FlagSet {
	testFlags := flag.NewFlagSet("test", flag.ContinueOnError)
	RegisterFlags(testFlags)
	return testFlags
}

func TestDefault(t *testing.T) {
	c, err := NewFromFlags(newTestFlags())
	if err != nil {
		t.Fatal(err)
	}
	// All defaults doesn't require setting flags.
	if flags := c.ToFlags(); len(flags) > 0 {
		t.Errorf("default flags not set correctly for: %s", flags)
	}
	if c.Allocator != AllocatorMmap {
		t.Errorf("Allocator=%v, want: %v", c.Allocator, AllocatorMmap)
	}
}

func TestFromFlags(t *testing.T) {
	testFlags := newTestFlags()
	for name, val := range map[string]string{
		"debug":      "true",
		"divisions":  "4",
		"table-size": "8192",
		"allocator":  "bootstrap",
	} {
		if err := testFlags.Lookup(name).Value.Set(val); err != nil {
			t.Errorf("Flag set: %v", err)
		}
	}

	c, err := NewFromFlags(testFlags)
	if err != nil {
		t.Fatal(err)
	}
	if want := true; c.Debug != want {
		t.Errorf("Debug=%v, want: %v", c.Debug, want)
	}
	if want := uint(4); c.Divisions != want {
		t.Errorf("Divisions=%v, want: %v", c.Divisions, want)
	}
	if want := uint64(8192); c.TableSize != want {
		t.Errorf("TableSize=%v, want: %v", c.TableSize, want)
	}
	if want := AllocatorBootstrap; c.Allocator != want {
		t.Errorf("Allocator=%v, want: %v", c.Allocator, want)
	}
}

func TestToFlagsFromFlags(t *testing.T) {
	testFlags := newTestFlags()
	testFlags.Set("debug", "true")
	testFlags.Set("alsologtostderr", "false") // Matches default value.
	testFlags.Set("divisions", "2")
	testFlags.Set("allocator", "bootstrap")
	c, err := NewFromFlags(testFlags)
	if err != nil {
		t.Fatal(err)
	}

	flags := c.ToFlags()
	if len(flags) != 3 {
		t.Errorf("wrong number of flags set, want: 3, got: %d: %s", len(flags), flags)
	}
	fm := map[string]string{}
	for _, f := range flags {
		kv := strings.Split(f, "=")
		fm[kv[0]] = kv[1]
	}
	for name, want := range map[string]string{
		"--debug":     "true",
		"--divisions": "2",
		"--allocator": "bootstrap",
	} {
		if got, ok := fm[name]; ok {
			if got != want {
				t.Errorf("flag %q, want: %q, got: %q", name, want, got)
			}
		} else {
			t.Errorf("flag %q not set", name)
		}
	}
}

func TestInvalidFlags(t *testing.T) {
	for _, tc := range []struct {
		name  string
		value string
		err   string
	}{
		{name: "allocator", value: "invalid", err: "invalid allocator type"},
	} {
		t.Run(tc.name, func(t *testing.T) {
			testFlags := newTestFlags()
			if err := testFlags.Lookup(tc.name).Value.Set(tc.value); err == nil || !strings.Contains(err.Error(), tc.err) {
				t.Errorf("flag.Value.Set(invalid) wrong error reported: %v", err)
			}
		})
	}
}

func TestValidationFail(t *testing.T) {
	for _, tc := range []struct {
		name  string
		flags map[string]string
		error string
	}{
		{
			name:  "log-format",
			flags: map[string]string{"log-format": "xml"},
			error: "invalid log format",
		},
		{
			name:  "debug-log-format",
			flags: map[string]string{"debug-log-format": "xml"},
			error: "invalid debug log format",
		},
		{
			name:  "divisions",
			flags: map[string]string{"divisions": "0"},
			error: "--divisions",
		},
		{
			name:  "table-size",
			flags: map[string]string{"table-size": "0"},
			error: "--table-size",
		},
		{
			name:  "arena",
			flags: map[string]string{"allocator": "bootstrap", "arena-size": "4096"},
			error: "--arena-size",
		},
	} {
		t.Run(tc.name, func(t *testing.T) {
			testFlags := newTestFlags()
			for name, val := range tc.flags {
				if err := testFlags.Lookup(name).Value.Set(val); err != nil {
					t.Errorf("%s=%q: %v", name, val, err)
				}
			}
			if _, err := NewFromFlags(testFlags); err == nil || !strings.Contains(err.Error(), tc.error) {
				t.Errorf("NewFromFlags() wrong error reported: %v", err)
			}
		})
	}
}
