package sim

import (
	"fmt"
	"sort"

	"github.com/sirupsen/logrus"

	"github.com/ehn4602/tag2tag-simulator/sim/physics"
)

// TagManager owns the tag population and the physics engine that couples
// it. Tags are always enumerated in sorted name order, so matrix rows,
// feedback sweeps, and snapshots line up run after run regardless of
// insertion order.
type TagManager struct {
	tags       map[string]*Tag
	order      []string
	reflectors []physics.Reflector
	engine     *physics.Engine
	log        logrus.FieldLogger
}

// NewTagManager creates an empty manager around the given engine.
func NewTagManager(engine *physics.Engine, log logrus.FieldLogger) *TagManager {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &TagManager{
		tags:   make(map[string]*Tag),
		engine: engine,
		log:    log,
	}
}

// Engine returns the physics engine coupling the population.
func (m *TagManager) Engine() *physics.Engine { return m.engine }

// Len returns the number of registered tags.
func (m *TagManager) Len() int { return len(m.tags) }

// Add registers tags. Names must be unique across the population and
// must not collide with the exciter.
func (m *TagManager) Add(tags ...*Tag) error {
	for _, tag := range tags {
		if _, ok := m.tags[tag.Name()]; ok {
			return fmt.Errorf("tag %q already registered", tag.Name())
		}
		if tag.Name() == m.engine.Exciter().Name() {
			return fmt.Errorf("tag %q collides with the exciter name", tag.Name())
		}
		m.tags[tag.Name()] = tag
	}
	m.rebuild()
	return nil
}

// Remove unregisters tags by name. Intended for setup-time population
// editing; removing a tag that is not registered is an error.
func (m *TagManager) Remove(names ...string) error {
	for _, name := range names {
		if _, ok := m.tags[name]; !ok {
			return fmt.Errorf("cannot remove unknown tag %q", name)
		}
		delete(m.tags, name)
	}
	m.rebuild()
	return nil
}

func (m *TagManager) rebuild() {
	m.order = m.order[:0]
	for name := range m.tags {
		m.order = append(m.order, name)
	}
	sort.Strings(m.order)
	m.reflectors = m.reflectors[:0]
	for _, name := range m.order {
		m.reflectors = append(m.reflectors, m.tags[name])
	}
}

// ByName looks up a tag by name.
func (m *TagManager) ByName(name string) (*Tag, bool) {
	tag, ok := m.tags[name]
	return tag, ok
}

// MustByName looks up a tag by name and panics if it is absent. Callers
// use it after references have been validated at prepare time.
func (m *TagManager) MustByName(name string) *Tag {
	tag, ok := m.tags[name]
	if !ok {
		panic(fmt.Sprintf("unknown tag %q", name))
	}
	return tag
}

// Names returns the tag names in stable sorted order.
func (m *TagManager) Names() []string {
	out := make([]string, len(m.order))
	copy(out, m.order)
	return out
}

// Tags returns the population in stable sorted order.
func (m *TagManager) Tags() []*Tag {
	out := make([]*Tag, 0, len(m.order))
	for _, name := range m.order {
		out = append(out, m.tags[name])
	}
	return out
}

// ReceivedVoltage computes the voltage at rx's detector given the whole
// population's current modes.
func (m *TagManager) ReceivedVoltage(rx *Tag) float64 {
	return m.engine.VoltageAt(m.reflectors, rx)
}

// ModulationDepth measures the voltage swing at rx when tx toggles
// between two chip indices, with every other tag held in its current
// mode. Chip index 0 means listening.
func (m *TagManager) ModulationDepth(txName, rxName string, modeA, modeB int) (float64, error) {
	tx, ok := m.tags[txName]
	if !ok {
		return 0, fmt.Errorf("unknown transmitter tag %q", txName)
	}
	rx, ok := m.tags[rxName]
	if !ok {
		return 0, fmt.Errorf("unknown receiver tag %q", rxName)
	}
	if tx == rx {
		return 0, fmt.Errorf("transmitter and receiver must differ, both are %q", txName)
	}
	for _, idx := range []int{modeA, modeB} {
		if idx < 0 || idx >= len(tx.chips) {
			return 0, fmt.Errorf("tag %q has no chip index %d", txName, idx)
		}
	}
	return m.engine.ModulationDepth(m.reflectors, tx, rx, modeA, modeB), nil
}
