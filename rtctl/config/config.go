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

// Package config provides basic infrastructure to set configuration settings
// for rtctl. The configuration is set by flags to the command line, and can
// be refined by a plan file.
package config

import (
	"fmt"
	"reflect"

	"gvisor.dev/seccells/pkg/log"
)

// Config holds configuration that is not part of a plan file.
//
// Follow these steps to add a new flag:
//  1. Create a new field in Config.
//  2. Add a field tag with the flag name.
//  3. Register a new flag in flags.go, with the same name and add a
//     description.
//  4. Add any necessary validation into validate().
type Config struct {
	// LogFilename is the filename to log to, if not empty.
	LogFilename string `flag:"log"`

	// LogFormat is the log format.
	LogFormat string `flag:"log-format"`

	// Debug indicates that debug logging should be enabled.
	Debug bool `flag:"debug"`

	// DebugLog is the path to log debug information to, if not empty. If it
	// ends with '/', a file named after the command is created inside it.
	DebugLog string `flag:"debug-log"`

	// DebugLogFormat is the log format for debug.
	DebugLogFormat string `flag:"debug-log-format"`

	// AlsoLogToStderr allows to send log messages to stderr.
	AlsoLogToStderr bool `flag:"alsologtostderr"`

	// Divisions is the number of security divisions (M).
	Divisions uint `flag:"divisions"`

	// TableSize is the number of bytes backing the range table.
	TableSize uint64 `flag:"table-size"`

	// Allocator selects where the backing region comes from.
	Allocator AllocatorType `flag:"allocator"`

	// ArenaSize is the size of the bootstrap allocator's arena.
	ArenaSize uint64 `flag:"arena-size"`
}

func (c *Config) validate() error {
	switch c.LogFormat {
	case "text", "json":
	default:
		return fmt.Errorf("invalid log format %q, must be 'text' or 'json'", c.LogFormat)
	}
	switch c.DebugLogFormat {
	case "text", "json":
	default:
		return fmt.Errorf("invalid debug log format %q, must be 'text' or 'json'", c.DebugLogFormat)
	}
	if c.Divisions == 0 || c.Divisions > 1<<16 {
		return fmt.Errorf("--divisions must be in [1, 65536], got %d", c.Divisions)
	}
	if c.TableSize == 0 {
		return fmt.Errorf("--table-size must be positive")
	}
	if c.Allocator == AllocatorBootstrap && c.ArenaSize < c.TableSize {
		return fmt.Errorf("--arena-size (%d) must be at least --table-size (%d)", c.ArenaSize, c.TableSize)
	}
	return nil
}

// Log logs important aspects of the configuration to the given log function.
func (c *Config) Log() {
	log.Infof("Config:")
	obj := reflect.ValueOf(c).Elem()
	st := obj.Type()
	for i := 0; i < st.NumField(); i++ {
		f := st.Field(i)
		if name, ok := f.Tag.Lookup("flag"); ok {
			log.Infof("\t%s: %s", name, getVal(obj.Field(i)))
		}
	}
}

// AllocatorType tells which allocator provides the table's backing region.
type AllocatorType int

const (
	// AllocatorMmap maps anonymous host memory.
	AllocatorMmap AllocatorType = iota

	// AllocatorBootstrap carves pages out of a fixed arena, like early
	// kernel bring-up.
	AllocatorBootstrap
)

func allocatorTypePtr(v AllocatorType) *AllocatorType {
	return &v
}

// Set implements flag.Value.
func (a *AllocatorType) Set(v string) error {
	switch v {
	case "mmap":
		*a = AllocatorMmap
	case "bootstrap":
		*a = AllocatorBootstrap
	default:
		return fmt.Errorf("invalid allocator type %q", v)
	}
	return nil
}

// Get implements flag.Getter.
func (a *AllocatorType) Get() any {
	return *a
}

// String implements flag.Value.
func (a AllocatorType) String() string {
	switch a {
	case AllocatorMmap:
		return "mmap"
	case AllocatorBootstrap:
		return "bootstrap"
	}
	panic(fmt.Sprintf("Invalid allocator type %d", a))
}
