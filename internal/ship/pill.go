package ship

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/roach88/vere/internal/drivers"
	"github.com/roach88/vere/internal/ir"
	"github.com/roach88/vere/internal/pier"
)

// Pill is a boot sequence as stored on disk.
//
//	lifecycle:
//	  - {formula: ivory}
//	modules:
//	  - {wire: [arvo], tag: put, data: {key: kelvin, value: 410}}
//	userspace:
//	  - {wire: [g], tag: put, data: {key: hello, value: 1}}
type Pill struct {
	Lifecycle []any               `yaml:"lifecycle"`
	Modules   []drivers.EventSpec `yaml:"modules"`
	Userspace []drivers.EventSpec `yaml:"userspace"`
}

// Sequence converts p to a pier boot sequence.
func (p Pill) Sequence() (pier.BootSequence, error) {
	var seq pier.BootSequence
	for i, raw := range p.Lifecycle {
		v, err := ir.FromAny(raw)
		if err != nil {
			return seq, fmt.Errorf("lifecycle %d: %w", i, err)
		}
		seq.Lifecycle = append(seq.Lifecycle, v)
	}
	for i, spec := range p.Modules {
		ev, err := spec.Event()
		if err != nil {
			return seq, fmt.Errorf("module %d: %w", i, err)
		}
		seq.Modules = append(seq.Modules, ev)
	}
	for i, spec := range p.Userspace {
		ev, err := spec.Event()
		if err != nil {
			return seq, fmt.Errorf("userspace %d: %w", i, err)
		}
		seq.Userspace = append(seq.Userspace, ev)
	}
	return seq, nil
}

// LoadPill reads a YAML pill.
func LoadPill(path string) (pier.BootSequence, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return pier.BootSequence{}, fmt.Errorf("read pill: %w", err)
	}
	var p Pill
	if err := yaml.Unmarshal(data, &p); err != nil {
		return pier.BootSequence{}, fmt.Errorf("parse pill %s: %w", path, err)
	}
	return p.Sequence()
}

// DefaultPill is the built-in boot sequence for fresh ships.
func DefaultPill() pier.BootSequence {
	return pier.BootSequence{
		Lifecycle: []ir.Value{
			ir.Map{"formula": ir.String("ivory")},
			ir.Map{"formula": ir.String("brass")},
		},
		Modules: []ir.Event{{
			Wire: ir.Wire{"arvo"},
			Card: ir.Card{Tag: "put", Data: ir.Map{"key": ir.String("kelvin"), "value": ir.Int(ir.Kelvins[0].Version)}},
		}},
	}
}
