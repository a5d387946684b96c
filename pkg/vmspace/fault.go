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

package vmspace

import (
	"errors"
	"fmt"

	"gvisor.dev/seccells/pkg/hostarch"
	"gvisor.dev/seccells/pkg/rangetable"
)

// FaultError is returned by HandleFault for an access the table does not
// permit.
type FaultError struct {
	// Addr is the faulting address.
	Addr hostarch.Addr

	// Access is the attempted access.
	Access hostarch.AccessType

	// User is true if the access came from user mode.
	User bool

	// Err wraps rangetable.ErrNotMapped or rangetable.ErrPermission.
	Err error
}

// Error implements error.Error.
func (e *FaultError) Error() string {
	mode := "supervisor"
	if e.User {
		mode = "user"
	}
	return fmt.Sprintf("%s %v fault at %v: %v", mode, e.Access, e.Addr, e.Err)
}

// Unwrap returns e.Err.
func (e *FaultError) Unwrap() error {
	return e.Err
}

// HandleFault resolves an access of type at to addr. A permitted access
// updates the cell's accessed and dirty bits; anything else is a
// *FaultError.
func (s *Space) HandleFault(addr hostarch.Addr, at hostarch.AccessType, user bool) error {
	_, err := s.table.Touch(s.opts.Division, addr, at, user)
	if err == nil {
		return nil
	}
	if errors.Is(err, rangetable.ErrNotMapped) || errors.Is(err, rangetable.ErrPermission) {
		return &FaultError{Addr: addr, Access: at, User: user, Err: err}
	}
	return err
}
