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

// Package cmd holds implementations of the rtctl commands.
package cmd

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"time"

	"gvisor.dev/seccells/pkg/log"
	"gvisor.dev/seccells/pkg/rangetable"
	"gvisor.dev/seccells/rtctl/config"
)

// ErrorLogger is where error messages should be written to. These messages
// are consumed by the caller of rtctl.
var ErrorLogger io.Writer

// Infof writes message to log and stdout.
func Infof(format string, args ...any) {
	log.Infof(format, args...)
	fmt.Printf(format+"\n", args...)
}

// Errorf logs error to the error log (--log), to stderr, and debug logs.
func Errorf(format string, args ...any) {
	// The debug log may be the only place the caller looks, so log a
	// serious-looking warning in addition to writing to stderr.
	log.Warningf("FATAL ERROR: "+format, args...)
	fmt.Fprintf(os.Stderr, format+"\n", args...)

	writeError(format, args...)
}

func writeError(format string, args ...any) {
	if ErrorLogger == nil {
		return
	}
	b, err := json.Marshal(struct {
		Msg   string    `json:"msg"`
		Level string    `json:"level"`
		Time  time.Time `json:"time"`
	}{
		Msg:   fmt.Sprintf(format, args...),
		Level: "error",
		Time:  time.Now(),
	})
	if err != nil {
		log.Warningf("failed to marshal error message: %v", err)
		return
	}
	if _, err := ErrorLogger.Write(append(b, '\n')); err != nil {
		log.Warningf("failed to write error message: %v", err)
	}
}

// Fatalf logs the same way as Errorf() does, plus *exits* the process.
func Fatalf(format string, args ...any) {
	Errorf(format, args...)
	// Return an error that is unlikely to be used by the application.
	os.Exit(128)
}

// FatalDumpf dumps t to the log before exiting like Fatalf.
func FatalDumpf(t *rangetable.Table, format string, args ...any) {
	if t != nil {
		t.Dump(log.Log())
	}
	Fatalf(format, args...)
}

// newAllocator returns the allocator selected by conf.
func newAllocator(conf *config.Config) (rangetable.Allocator, error) {
	switch conf.Allocator {
	case config.AllocatorMmap:
		return rangetable.MmapAllocator{}, nil
	case config.AllocatorBootstrap:
		arena, err := rangetable.MmapAllocator{}.AllocateBackingRegion(conf.ArenaSize)
		if err != nil {
			return nil, fmt.Errorf("allocating bootstrap arena: %w", err)
		}
		return rangetable.NewBootstrapAllocator(arena.Data, arena.Phys)
	default:
		return nil, fmt.Errorf("unknown allocator %v", conf.Allocator)
	}
}

// bootTable brings up a table as conf and the optional plan file describe.
func bootTable(conf *config.Config, planPath string) (*rangetable.Table, error) {
	plan := &config.Plan{}
	if planPath != "" {
		var err error
		if plan, err = config.LoadPlan(planPath); err != nil {
			return nil, err
		}
	}
	conf, err := plan.Apply(conf)
	if err != nil {
		return nil, err
	}
	opts, err := plan.BootOpts(conf)
	if err != nil {
		return nil, err
	}
	a, err := newAllocator(conf)
	if err != nil {
		return nil, err
	}
	return rangetable.Boot(a, opts)
}

// writeCells prints the cells of t in division sd.
func writeCells(w io.Writer, t *rangetable.Table, sd uint32) error {
	cells, err := t.Cells(sd)
	if err != nil {
		return err
	}
	fmt.Fprintf(w, "%v N=%d capacity=%d\n", t.Meta(), t.N(), t.Capacity())
	for _, c := range cells {
		fmt.Fprintf(w, "  %v\n", c)
	}
	return nil
}
