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
	"fmt"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/mohae/deepcopy"
	"gvisor.dev/seccells/pkg/hostarch"
	"gvisor.dev/seccells/pkg/rangetable"
)

// Plan is a bring-up plan: the table geometry and the mappings installed
// before anything else runs. It is read from a TOML file.
type Plan struct {
	// Divisions overrides --divisions if non-zero.
	Divisions uint `toml:"divisions"`

	// TableSize overrides --table-size if non-zero.
	TableSize uint64 `toml:"table_size"`

	// Geometry, if set, fixes M, S and T instead of sizing them.
	Geometry *PlanGeometry `toml:"geometry"`

	// Mappings are installed in order.
	Mappings []PlanMapping `toml:"mapping"`
}

// PlanGeometry is rangetable.Geometry as written in a plan.
type PlanGeometry struct {
	M uint32 `toml:"m"`
	S uint32 `toml:"s"`
	T uint32 `toml:"t"`
}

// PlanMapping is one initial mapping.
type PlanMapping struct {
	Name    string `toml:"name"`
	Virtual uint64 `toml:"virtual"`

	// Physical defaults to Virtual.
	Physical *uint64 `toml:"physical"`

	Length uint64 `toml:"length"`

	// Type is a hostarch memory type name; defaults to "memory".
	Type string `toml:"type"`

	// Access is a combination of 'r', 'w' and 'x'.
	Access string `toml:"access"`

	User   bool `toml:"user"`
	Global bool `toml:"global"`
}

// LoadPlan reads a plan file. Unknown keys are an error.
func LoadPlan(path string) (*Plan, error) {
	var p Plan
	md, err := toml.DecodeFile(path, &p)
	if err != nil {
		return nil, fmt.Errorf("reading plan %q: %w", path, err)
	}
	if err := checkUndecoded(md); err != nil {
		return nil, fmt.Errorf("plan %q: %w", path, err)
	}
	return &p, nil
}

// ParsePlan parses a plan from a string.
func ParsePlan(data string) (*Plan, error) {
	var p Plan
	md, err := toml.Decode(data, &p)
	if err != nil {
		return nil, err
	}
	if err := checkUndecoded(md); err != nil {
		return nil, err
	}
	return &p, nil
}

func checkUndecoded(md toml.MetaData) error {
	if keys := md.Undecoded(); len(keys) > 0 {
		names := make([]string, 0, len(keys))
		for _, k := range keys {
			names = append(names, k.String())
		}
		return fmt.Errorf("unknown keys: %s", strings.Join(names, ", "))
	}
	return nil
}

// Apply returns a copy of conf with the plan's overrides. conf is not
// modified.
func (p *Plan) Apply(conf *Config) (*Config, error) {
	c := deepcopy.Copy(conf).(*Config)
	if p.Divisions != 0 {
		c.Divisions = p.Divisions
	}
	if p.TableSize != 0 {
		c.TableSize = p.TableSize
	}
	if err := c.validate(); err != nil {
		return nil, fmt.Errorf("plan overrides: %w", err)
	}
	return c, nil
}

// BootOpts converts the plan, with conf already applied, to options for
// rangetable.Boot.
func (p *Plan) BootOpts(conf *Config) (rangetable.BootOpts, error) {
	opts := rangetable.BootOpts{
		Size:      conf.TableSize,
		Divisions: uint32(conf.Divisions),
	}
	if g := p.Geometry; g != nil {
		opts.Geometry = &rangetable.Geometry{M: g.M, S: g.S, T: g.T}
	}
	for i, m := range p.Mappings {
		im, err := m.initialMapping()
		if err != nil {
			return rangetable.BootOpts{}, fmt.Errorf("mapping %d (%q): %w", i, m.Name, err)
		}
		opts.Mappings = append(opts.Mappings, im)
	}
	return opts, nil
}

func (m *PlanMapping) initialMapping() (rangetable.InitialMapping, error) {
	mt, err := hostarch.ParseMemoryType(m.Type)
	if err != nil {
		return rangetable.InitialMapping{}, err
	}
	at, err := ParseAccess(m.Access)
	if err != nil {
		return rangetable.InitialMapping{}, err
	}
	f := rangetable.FlagsForMemoryType(mt, at)
	if m.User {
		f = f.User()
	}
	if m.Global {
		f = f.Global()
	}
	phys := m.Virtual
	if m.Physical != nil {
		phys = *m.Physical
	}
	return rangetable.InitialMapping{
		Name:     m.Name,
		Virtual:  hostarch.Addr(m.Virtual),
		Physical: phys,
		Length:   m.Length,
		Flags:    f,
	}, nil
}

// ParseAccess parses an access string such as "rw" or "r-x".
func ParseAccess(s string) (hostarch.AccessType, error) {
	var at hostarch.AccessType
	for _, c := range s {
		switch c {
		case 'r':
			at.Read = true
		case 'w':
			at.Write = true
		case 'x':
			at.Execute = true
		case '-':
		default:
			return hostarch.NoAccess, fmt.Errorf("invalid access %q: unknown permission %q", s, c)
		}
	}
	return at, nil
}
