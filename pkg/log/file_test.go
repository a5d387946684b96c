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

package log

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestCommandFileOpts(t *testing.T) {
	opts := CommandFileOpts{Command: "boot", Start: time.Date(2026, 1, 2, 3, 4, 5, 6000, time.UTC)}
	for _, tc := range []struct {
		pattern string
		want    string
	}{
		{"/tmp/rtctl.log", "/tmp/rtctl.log"},
		{"/tmp/logs/", "/tmp/logs/rtctl.log.20260102-030405.000006.boot"},
		{"/tmp/%COMMAND%.log", "/tmp/boot.log"},
	} {
		if got := opts.Build(tc.pattern); got != tc.want {
			t.Errorf("Build(%q): got %q, want %q", tc.pattern, got, tc.want)
		}
	}
}

func TestOpenFile(t *testing.T) {
	dir := t.TempDir()
	f, err := OpenFile(filepath.Join(dir, "sub")+"/", os.O_CREATE|os.O_WRONLY, CommandFileOpts{Command: "layout", Start: time.Now()})
	if err != nil {
		t.Fatalf("OpenFile: %v", err)
	}
	defer f.Close()
	if filepath.Dir(f.Name()) != filepath.Join(dir, "sub") {
		t.Errorf("file %q not created in %q", f.Name(), filepath.Join(dir, "sub"))
	}

	f, err = OpenFile("", os.O_CREATE|os.O_WRONLY, CommandFileOpts{})
	if f != nil || err != nil {
		t.Errorf("OpenFile(\"\"): got %v, %v; want nil, nil", f, err)
	}
}
