package sim

import (
	"encoding/json"
	"fmt"
	"math"
	"sort"
	"strings"

	"github.com/ehn4602/tag2tag-simulator/sim/machine"
	"github.com/ehn4602/tag2tag-simulator/sim/physics"
)

// EventSpec is the parsed, untyped form of a scheduled event: a type
// name, an absolute time in seconds, and the remaining arguments.
// Loaders decode JSON objects into specs; NewDomainEvent turns specs
// into typed events. Specs survive on the typed event for export.
type EventSpec struct {
	Type string
	Time float64
	Args map[string]any
}

func (sp EventSpec) String() string {
	return fmt.Sprintf("event %s at t=%g", sp.Type, sp.Time)
}

func (sp EventSpec) missing(field string) error {
	return fmt.Errorf("%s: field %q is required, but no value was found", sp, field)
}

// numberArg fetches an optional numeric argument. JSON decoding yields
// float64, but int is accepted for specs built in code.
func (sp EventSpec) numberArg(field string) (float64, bool, error) {
	v, ok := sp.Args[field]
	if !ok || v == nil {
		return 0, false, nil
	}
	switch n := v.(type) {
	case float64:
		return n, true, nil
	case int:
		return float64(n), true, nil
	}
	return 0, false, fmt.Errorf("%s: field %q must be a number, found %v", sp, field, v)
}

func (sp EventSpec) requiredNumber(field string) (float64, error) {
	n, ok, err := sp.numberArg(field)
	if err != nil {
		return 0, err
	}
	if !ok {
		return 0, sp.missing(field)
	}
	return n, nil
}

func (sp EventSpec) stringArg(field string) (string, bool, error) {
	v, ok := sp.Args[field]
	if !ok || v == nil {
		return "", false, nil
	}
	s, ok := v.(string)
	if !ok {
		return "", false, fmt.Errorf("%s: field %q must be a string, found %v", sp, field, v)
	}
	return s, true, nil
}

func (sp EventSpec) requiredString(field string) (string, error) {
	s, ok, err := sp.stringArg(field)
	if err != nil {
		return "", err
	}
	if !ok {
		return "", sp.missing(field)
	}
	return s, nil
}

// DomainEvent is an externally scheduled event: it carries a type name
// and arguments, resolves its references during a prepare pass before
// any simulated time advances, and can be exported back to its spec.
type DomainEvent interface {
	Event
	Type() string
	Prepare(*Simulation) error
	Spec() EventSpec
	argsHash() int64
}

type eventFactory func(EventSpec) (DomainEvent, error)

var eventFactories = map[string]eventFactory{
	"tag_set_mode": newTagSetModeEvent,
	"tag_add":      newTagAddEvent,
}

// EventTypes returns the recognized event type names in sorted order.
func EventTypes() []string {
	out := make([]string, 0, len(eventFactories))
	for name := range eventFactories {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

// NewDomainEvent builds a typed event from its parsed form. Type names
// are case-insensitive; unknown types and malformed arguments are
// configuration errors.
func NewDomainEvent(spec EventSpec) (DomainEvent, error) {
	spec.Type = strings.ToLower(spec.Type)
	if math.IsNaN(spec.Time) || spec.Time < 0 {
		return nil, fmt.Errorf("%s: time must be non-negative", spec)
	}
	factory, ok := eventFactories[spec.Type]
	if !ok {
		return nil, fmt.Errorf("%s: unknown event type, valid types are %s",
			spec, strings.Join(EventTypes(), ", "))
	}
	return factory(spec)
}

// SortDomainEvents fixes dispatch order: time, then type name, then a
// canonical hash of the arguments. The tiebreak makes simultaneous
// same-type events with different arguments dispatch in the same
// relative order on every run, regardless of load order.
func SortDomainEvents(events []DomainEvent) {
	sort.SliceStable(events, func(i, j int) bool {
		a, b := events[i], events[j]
		if a.Timestamp() != b.Timestamp() {
			return a.Timestamp() < b.Timestamp()
		}
		at, bt := strings.ToLower(a.Type()), strings.ToLower(b.Type())
		if at != bt {
			return at < bt
		}
		return a.argsHash() < b.argsHash()
	})
}

// baseEvent carries the pieces every domain event shares: the original
// spec and the canonical argument hash used for same-time ordering.
type baseEvent struct {
	spec EventSpec
	hash int64
}

func newBaseEvent(spec EventSpec) (baseEvent, error) {
	h, err := canonicalArgsHash(spec.Args)
	if err != nil {
		return baseEvent{}, fmt.Errorf("%s: %w", spec, err)
	}
	return baseEvent{spec: spec, hash: h}, nil
}

func (e *baseEvent) Timestamp() float64 { return e.spec.Time }
func (e *baseEvent) Kind() EventKind    { return KindDomain }
func (e *baseEvent) Type() string       { return e.spec.Type }
func (e *baseEvent) Spec() EventSpec    { return e.spec }
func (e *baseEvent) argsHash() int64    { return e.hash }

// canonicalArgsHash hashes the canonical JSON encoding of args.
// encoding/json emits map keys in sorted order at every nesting level,
// so semantically equal argument sets hash identically no matter how
// they were assembled.
func canonicalArgsHash(args map[string]any) (int64, error) {
	if len(args) == 0 {
		return fnv1a64("{}"), nil
	}
	b, err := json.Marshal(args)
	if err != nil {
		return 0, fmt.Errorf("arguments are not hashable: %w", err)
	}
	return fnv1a64(string(b)), nil
}

// ParseTransmission validates a bit-pattern string of '0' and '1'
// characters and returns it as a bit slice.
func ParseTransmission(pattern string) ([]int, error) {
	bits := make([]int, 0, len(pattern))
	for _, c := range pattern {
		switch c {
		case '0':
			bits = append(bits, 0)
		case '1':
			bits = append(bits, 1)
		default:
			return nil, fmt.Errorf("transmission contains characters that are not 0 or 1, found %q", pattern)
		}
	}
	return bits, nil
}

// ParseImpedance decodes an impedance value from its JSON form: either
// a bare number (purely resistive) or a [real, imaginary] pair.
func ParseImpedance(v any) (complex128, error) {
	switch z := v.(type) {
	case float64:
		return complex(z, 0), nil
	case int:
		return complex(float64(z), 0), nil
	case []any:
		if len(z) != 2 {
			return 0, fmt.Errorf("impedance pair must have exactly 2 elements, found %d", len(z))
		}
		parts := [2]float64{}
		for i, p := range z {
			switch n := p.(type) {
			case float64:
				parts[i] = n
			case int:
				parts[i] = float64(n)
			default:
				return 0, fmt.Errorf("impedance pair element must be a number, found %v", p)
			}
		}
		return complex(parts[0], parts[1]), nil
	}
	return 0, fmt.Errorf("impedance must be a number or a [re, im] pair, found %v", v)
}

// modeFromSpec parses the optional mode / reflection_index argument
// pair. hasMode is false when no mode argument is present at all.
func modeFromSpec(sp EventSpec) (mode TagMode, hasMode bool, err error) {
	modeName, hasMode, err := sp.stringArg("mode")
	if err != nil || !hasMode {
		return ModeListen, hasMode, err
	}
	idx, hasIdx, err := sp.numberArg("reflection_index")
	if err != nil {
		return ModeListen, true, err
	}
	if hasIdx && idx != math.Trunc(idx) {
		return ModeListen, true, fmt.Errorf("%s: reflection_index must be an integer, found %g", sp, idx)
	}
	mode, err = ParseTagMode(modeName, int(idx), hasIdx)
	if err != nil {
		return ModeListen, true, fmt.Errorf("%s: %w", sp, err)
	}
	return mode, true, nil
}

// TagSetModeEvent switches a tag's reflection mode at its scheduled
// time, optionally loading a transmission bit pattern into the tag's
// processing machine.
type TagSetModeEvent struct {
	baseEvent
	tagName      string
	mode         TagMode
	transmission []int

	// tag is resolved at prepare time, except when the target is created
	// by an earlier tag_add, in which case resolution happens at
	// dispatch.
	tag *Tag
}

func newTagSetModeEvent(spec EventSpec) (DomainEvent, error) {
	base, err := newBaseEvent(spec)
	if err != nil {
		return nil, err
	}
	tagName, err := spec.requiredString("tag")
	if err != nil {
		return nil, err
	}
	mode, hasMode, err := modeFromSpec(spec)
	if err != nil {
		return nil, err
	}
	if !hasMode {
		return nil, spec.missing("mode")
	}

	var bits []int
	pattern, hasPattern, err := spec.stringArg("transmission")
	if err != nil {
		return nil, err
	}
	if hasPattern {
		bits, err = ParseTransmission(pattern)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", spec, err)
		}
		if len(bits) > machine.MemorySize {
			return nil, fmt.Errorf("%s: transmission of %d bits exceeds memory size %d",
				spec, len(bits), machine.MemorySize)
		}
	}

	return &TagSetModeEvent{
		baseEvent:    base,
		tagName:      tagName,
		mode:         mode,
		transmission: bits,
	}, nil
}

// TagName returns the name of the tag this event targets.
func (e *TagSetModeEvent) TagName() string { return e.tagName }

// Mode returns the mode the event applies.
func (e *TagSetModeEvent) Mode() TagMode { return e.mode }

// Prepare resolves the tag reference. A reference to a tag that a
// pending tag_add creates earlier in simulated time is accepted and
// resolved at dispatch instead.
func (e *TagSetModeEvent) Prepare(s *Simulation) error {
	if tag, ok := s.Manager.ByName(e.tagName); ok {
		e.tag = tag
		return e.checkChips(len(tag.chips))
	}
	if add, ok := s.pendingAdd(e.tagName); ok {
		if e.Timestamp() < add.Timestamp() {
			return fmt.Errorf("%s: references tag %q before it is added at t=%g",
				e.Spec(), e.tagName, add.Timestamp())
		}
		return e.checkChips(add.chipCount(s))
	}
	return fmt.Errorf("%s: references unknown tag, found %q", e.Spec(), e.tagName)
}

func (e *TagSetModeEvent) checkChips(n int) error {
	if idx := e.mode.ChipIndex(); idx >= n {
		return fmt.Errorf("%s: tag %q has no chip index %d, table has %d entries",
			e.Spec(), e.tagName, idx, n)
	}
	return nil
}

func (e *TagSetModeEvent) Execute(s *Simulation) {
	tag := e.tag
	if tag == nil {
		// Created by an earlier tag_add; prepare verified it will exist.
		tag = s.Manager.MustByName(e.tagName)
	}
	tag.SetMode(e.mode)
	if e.transmission != nil {
		tag.SetTransmission(e.transmission)
	}
}

// TagAddEvent creates a tag mid-run. RF parameters not given on the
// event come from the simulation defaults; machine initial states
// resolve by name through the shared state arena.
type TagAddEvent struct {
	baseEvent
	cfg                     TagConfig
	inputState              string
	processingState         string
	outputState             string
	explicitChips           bool
	resolvedAgainstDefaults bool
}

func newTagAddEvent(spec EventSpec) (DomainEvent, error) {
	base, err := newBaseEvent(spec)
	if err != nil {
		return nil, err
	}
	e := &TagAddEvent{baseEvent: base}

	e.cfg.Name, err = spec.requiredString("tag")
	if err != nil {
		return nil, err
	}
	for _, axis := range []struct {
		field string
		dst   *float64
	}{
		{"x", &e.cfg.Position.X},
		{"y", &e.cfg.Position.Y},
		{"z", &e.cfg.Position.Z},
	} {
		*axis.dst, err = spec.requiredNumber(axis.field)
		if err != nil {
			return nil, err
		}
	}

	raw, ok := spec.Args["machine"]
	if !ok {
		return nil, spec.missing("machine")
	}
	names, ok := raw.(map[string]any)
	if !ok {
		return nil, fmt.Errorf("%s: field \"machine\" must name input, processing, and output states", spec)
	}
	for _, m := range []struct {
		field string
		dst   *string
	}{
		{"input", &e.inputState},
		{"processing", &e.processingState},
		{"output", &e.outputState},
	} {
		v, ok := names[m.field].(string)
		if !ok || v == "" {
			return nil, fmt.Errorf("%s: field \"machine.%s\" is required, but no value was found", spec, m.field)
		}
		*m.dst = v
	}

	if gainDBi, ok, err := spec.numberArg("gain_dbi"); err != nil {
		return nil, err
	} else if ok {
		e.cfg.Gain = physics.DbiToLinear(gainDBi)
	}
	if f, ok, err := spec.numberArg("frequency"); err != nil {
		return nil, err
	} else if ok {
		e.cfg.Frequency = f
	}
	if raw, ok := spec.Args["impedance"]; ok {
		z, err := ParseImpedance(raw)
		if err != nil {
			return nil, fmt.Errorf("%s: field \"impedance\": %w", spec, err)
		}
		e.cfg.Impedance = z
	}
	if raw, ok := spec.Args["chip_impedances"]; ok {
		list, ok := raw.([]any)
		if !ok {
			return nil, fmt.Errorf("%s: field \"chip_impedances\" must be a list", spec)
		}
		chips := make([]complex128, len(list))
		for i, item := range list {
			z, err := ParseImpedance(item)
			if err != nil {
				return nil, fmt.Errorf("%s: chip_impedances[%d]: %w", spec, i, err)
			}
			chips[i] = z
		}
		e.cfg.ChipImpedances = chips
		e.explicitChips = true
	}
	if threshold, ok, err := spec.numberArg("power_threshold_dbm"); err != nil {
		return nil, err
	} else if ok {
		e.cfg.PowerThresholdDBm = &threshold
	}

	mode, hasMode, err := modeFromSpec(spec)
	if err != nil {
		return nil, err
	}
	if hasMode {
		e.cfg.InitialMode = mode
	}
	return e, nil
}

// TagName returns the name of the tag this event creates.
func (e *TagAddEvent) TagName() string { return e.cfg.Name }

// chipCount reports how many chip impedance slots the created tag will
// have, counting defaults when the event does not override the table.
func (e *TagAddEvent) chipCount(s *Simulation) int {
	if e.explicitChips {
		return len(e.cfg.ChipImpedances)
	}
	return len(s.Defaults.ChipImpedances)
}

// Prepare resolves machine state names and fills defaults, so that a
// broken tag_add aborts startup rather than a half-finished run.
func (e *TagAddEvent) Prepare(s *Simulation) error {
	if !e.resolvedAgainstDefaults {
		e.cfg.ApplyDefaults(s.Defaults)
		e.resolvedAgainstDefaults = true
	}
	for _, m := range []struct {
		field string
		name  string
		dst   **machine.State
	}{
		{"input", e.inputState, &e.cfg.Machines.Input},
		{"processing", e.processingState, &e.cfg.Machines.Processing},
		{"output", e.outputState, &e.cfg.Machines.Output},
	} {
		state, ok := s.States.Lookup(m.name)
		if !ok {
			return fmt.Errorf("%s: machine.%s references unknown state, found %q", e.Spec(), m.field, m.name)
		}
		*m.dst = state
	}
	if err := e.cfg.validate(); err != nil {
		return fmt.Errorf("%s: %w", e.Spec(), err)
	}
	return nil
}

func (e *TagAddEvent) Execute(s *Simulation) {
	if _, err := s.AddTag(e.cfg); err != nil {
		// Prepare validated the config and name; reaching this is a bug.
		panic(fmt.Sprintf("%s: %v", e.Spec(), err))
	}
}
