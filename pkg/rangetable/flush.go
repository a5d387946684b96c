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

package rangetable

import "gvisor.dev/seccells/pkg/hostarch"

// Completion is called when an invalidation finishes. A nil Completion is
// allowed wherever one is accepted.
type Completion func(error)

func (c Completion) complete(err error) {
	if c != nil {
		c(err)
	}
}

// Flusher invalidates cached translations after the table changes.
type Flusher interface {
	// Invalidate drops cached translations for ar.
	Invalidate(ar hostarch.AddrRange, done Completion)

	// InvalidateAll drops every cached translation.
	InvalidateAll(done Completion)
}

// NoopFlusher is a Flusher for tables that are not installed in an MMU.
type NoopFlusher struct{}

// Invalidate implements Flusher.Invalidate.
func (NoopFlusher) Invalidate(_ hostarch.AddrRange, done Completion) {
	done.complete(nil)
}

// InvalidateAll implements Flusher.InvalidateAll.
func (NoopFlusher) InvalidateAll(done Completion) {
	done.complete(nil)
}
