// Package scenario loads and saves the JSON scenario files that describe
// a simulation: the exciter, the tag population, the shared state
// machine tables, the scheduled events, and the defaults applied to tags
// that omit RF parameters. Loading is strict; anything malformed surfaces
// as an error naming the offending field before a simulation is built.
package scenario

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sort"

	"github.com/sirupsen/logrus"

	"github.com/ehn4602/tag2tag-simulator/sim"
	"github.com/ehn4602/tag2tag-simulator/sim/machine"
	"github.com/ehn4602/tag2tag-simulator/sim/physics"
)

// internal JSON shapes, unexported so the on-disk format can evolve
// without touching the package surface. Gains are in dBi on disk and
// linear everywhere inside the system; the conversion happens here and
// only here. Impedances encode as a bare number or a [re, im] pair.
type scenarioJSON struct {
	// RunID records which run produced a saved snapshot. Purely
	// informational on load.
	RunID    string               `json:"run_id,omitempty"`
	Exciter  *exciterJSON         `json:"exciter"`
	Defaults defaultsJSON         `json:"defaults"`
	States   map[string]stateJSON `json:"states"`
	Tags     map[string]tagJSON   `json:"tags"`
	Events   []map[string]any     `json:"events"`
}

type exciterJSON struct {
	ID        string  `json:"id"`
	X         float64 `json:"x"`
	Y         float64 `json:"y"`
	Z         float64 `json:"z"`
	PowerMW   float64 `json:"power_mw"`
	GainDBi   float64 `json:"gain_dbi"`
	Impedance any     `json:"impedance"`
	Frequency float64 `json:"frequency"`
}

type defaultsJSON struct {
	GainDBi           *float64 `json:"gain_dbi"`
	Impedance         any      `json:"impedance"`
	Frequency         *float64 `json:"frequency"`
	ChipImpedances    []any    `json:"chip_impedances"`
	PowerThresholdDBm *float64 `json:"power_threshold_dbm"`
	PassiveReflection *float64 `json:"passive_reflection"`
}

type stateJSON struct {
	// Transitions maps an input symbol to a two-element array: the
	// instruction in its configuration form, and the next state's name.
	Transitions map[string][]any `json:"transitions"`
}

type machineJSON struct {
	Input      string `json:"input"`
	Processing string `json:"processing"`
	Output     string `json:"output"`
}

type tagJSON struct {
	X                 float64     `json:"x"`
	Y                 float64     `json:"y"`
	Z                 float64     `json:"z"`
	Machine           machineJSON `json:"machine"`
	GainDBi           *float64    `json:"gain_dbi"`
	Impedance         any         `json:"impedance"`
	Frequency         *float64    `json:"frequency"`
	PowerThresholdDBm *float64    `json:"power_threshold_dbm"`
	ChipImpedances    []any       `json:"chip_impedances"`
	Mode              *string     `json:"mode"`
	ReflectionIndex   *int        `json:"reflection_index"`
}

// ExciterDef is the parsed exciter block. Gain is linear.
type ExciterDef struct {
	Name      string
	Position  physics.Vec3
	PowerMW   float64
	Gain      float64
	Impedance complex128
	Frequency float64
}

// TransitionDef is one parsed transition edge: the decoded instruction
// and the next state's name.
type TransitionDef struct {
	Instruction machine.Instruction
	Next        string
}

// StateDef is one parsed state entry.
type StateDef struct {
	Transitions map[string]TransitionDef
}

// TagDef is one parsed tag entry. RF fields left at their zero value (or
// nil) are filled from the scenario defaults when the simulation is
// built.
type TagDef struct {
	Position          physics.Vec3
	Input             string
	Processing        string
	Output            string
	Gain              float64
	Impedance         complex128
	Frequency         float64
	PowerThresholdDBm *float64
	ChipImpedances    []complex128
	Mode              sim.TagMode
}

// Scenario is a fully parsed scenario file, plain data with no live
// object graph. Build turns it into a runnable simulation; building
// twice yields two independent simulations.
type Scenario struct {
	RunID             string
	Exciter           ExciterDef
	Defaults          sim.TagDefaults
	PassiveReflection *float64
	States            map[string]StateDef
	Tags              map[string]TagDef
	Events            []sim.EventSpec
}

// LoadFile reads and parses a scenario file from path.
func LoadFile(path string) (*Scenario, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening scenario: %w", err)
	}
	defer f.Close()
	sc, err := Load(f)
	if err != nil {
		return nil, fmt.Errorf("scenario %s: %w", path, err)
	}
	return sc, nil
}

// Load parses a scenario from r. Every structural problem is reported
// here: unknown instruction names, malformed impedances, bad modes, and
// unknown event types all fail the load.
func Load(r io.Reader) (*Scenario, error) {
	var payload scenarioJSON
	dec := json.NewDecoder(r)
	if err := dec.Decode(&payload); err != nil {
		return nil, fmt.Errorf("decoding: %w", err)
	}

	sc := &Scenario{
		RunID:  payload.RunID,
		States: make(map[string]StateDef, len(payload.States)),
		Tags:   make(map[string]TagDef, len(payload.Tags)),
	}

	if err := parseExciter(payload.Exciter, &sc.Exciter); err != nil {
		return nil, err
	}
	if err := parseDefaults(payload.Defaults, sc); err != nil {
		return nil, err
	}
	for name, raw := range payload.States {
		def, err := parseState(name, raw)
		if err != nil {
			return nil, err
		}
		sc.States[name] = def
	}
	for name, raw := range payload.Tags {
		if name == "" {
			return nil, fmt.Errorf("tags: empty tag name")
		}
		def, err := parseTag(name, raw)
		if err != nil {
			return nil, err
		}
		sc.Tags[name] = def
	}
	for i, raw := range payload.Events {
		spec, err := parseEventSpec(raw)
		if err != nil {
			return nil, fmt.Errorf("events[%d]: %w", i, err)
		}
		// Construct and discard the typed event so argument problems
		// surface at load time with the event's own diagnostics.
		if _, err := sim.NewDomainEvent(spec); err != nil {
			return nil, err
		}
		sc.Events = append(sc.Events, spec)
	}
	return sc, nil
}

func parseExciter(raw *exciterJSON, dst *ExciterDef) error {
	if raw == nil {
		return fmt.Errorf("field \"exciter\" is required, but no value was found")
	}
	if raw.ID == "" {
		return fmt.Errorf("exciter: field \"id\" is required, but no value was found")
	}
	if raw.PowerMW <= 0 {
		return fmt.Errorf("exciter %q: power_mw must be positive, got %g", raw.ID, raw.PowerMW)
	}
	if raw.Frequency <= 0 {
		return fmt.Errorf("exciter %q: frequency must be positive, got %g", raw.ID, raw.Frequency)
	}
	z := complex(50, 0)
	if raw.Impedance != nil {
		var err error
		z, err = sim.ParseImpedance(raw.Impedance)
		if err != nil {
			return fmt.Errorf("exciter %q: field \"impedance\": %w", raw.ID, err)
		}
	}
	*dst = ExciterDef{
		Name:      raw.ID,
		Position:  physics.Vec3{X: raw.X, Y: raw.Y, Z: raw.Z},
		PowerMW:   raw.PowerMW,
		Gain:      physics.DbiToLinear(raw.GainDBi),
		Impedance: z,
		Frequency: raw.Frequency,
	}
	return nil
}

func parseDefaults(raw defaultsJSON, sc *Scenario) error {
	if raw.GainDBi != nil {
		sc.Defaults.Gain = physics.DbiToLinear(*raw.GainDBi)
	}
	if raw.Impedance != nil {
		z, err := sim.ParseImpedance(raw.Impedance)
		if err != nil {
			return fmt.Errorf("defaults: field \"impedance\": %w", err)
		}
		sc.Defaults.Impedance = z
	}
	if raw.Frequency != nil {
		sc.Defaults.Frequency = *raw.Frequency
	}
	if raw.ChipImpedances != nil {
		chips, err := parseImpedanceList(raw.ChipImpedances)
		if err != nil {
			return fmt.Errorf("defaults: field \"chip_impedances\": %w", err)
		}
		sc.Defaults.ChipImpedances = chips
	}
	sc.Defaults.PowerThresholdDBm = raw.PowerThresholdDBm
	sc.PassiveReflection = raw.PassiveReflection
	return nil
}

func parseState(name string, raw stateJSON) (StateDef, error) {
	def := StateDef{Transitions: make(map[string]TransitionDef, len(raw.Transitions))}
	if name == "" {
		return def, fmt.Errorf("states: empty state name")
	}
	for symbol, edge := range raw.Transitions {
		if len(edge) != 2 {
			return def, fmt.Errorf("state %q: transition %q must be [instruction, next-state], got %d elements",
				name, symbol, len(edge))
		}
		instrRaw, ok := edge[0].([]any)
		if !ok {
			return def, fmt.Errorf("state %q: transition %q: instruction must be an array, got %T",
				name, symbol, edge[0])
		}
		in, err := machine.ParseInstruction(instrRaw)
		if err != nil {
			return def, fmt.Errorf("state %q: transition %q: %w", name, symbol, err)
		}
		next, ok := edge[1].(string)
		if !ok || next == "" {
			return def, fmt.Errorf("state %q: transition %q: next state must be a non-empty name, got %v",
				name, symbol, edge[1])
		}
		def.Transitions[symbol] = TransitionDef{Instruction: in, Next: next}
	}
	return def, nil
}

func parseTag(name string, raw tagJSON) (TagDef, error) {
	def := TagDef{
		Position:          physics.Vec3{X: raw.X, Y: raw.Y, Z: raw.Z},
		Input:             raw.Machine.Input,
		Processing:        raw.Machine.Processing,
		Output:            raw.Machine.Output,
		PowerThresholdDBm: raw.PowerThresholdDBm,
	}
	for _, m := range []struct {
		field string
		value string
	}{
		{"input", raw.Machine.Input},
		{"processing", raw.Machine.Processing},
		{"output", raw.Machine.Output},
	} {
		if m.value == "" {
			return def, fmt.Errorf("tag %q: field \"machine.%s\" is required, but no value was found", name, m.field)
		}
	}
	if raw.GainDBi != nil {
		def.Gain = physics.DbiToLinear(*raw.GainDBi)
	}
	if raw.Impedance != nil {
		z, err := sim.ParseImpedance(raw.Impedance)
		if err != nil {
			return def, fmt.Errorf("tag %q: field \"impedance\": %w", name, err)
		}
		def.Impedance = z
	}
	if raw.Frequency != nil {
		def.Frequency = *raw.Frequency
	}
	if raw.ChipImpedances != nil {
		chips, err := parseImpedanceList(raw.ChipImpedances)
		if err != nil {
			return def, fmt.Errorf("tag %q: field \"chip_impedances\": %w", name, err)
		}
		def.ChipImpedances = chips
	}
	if raw.Mode != nil {
		idx := 0
		if raw.ReflectionIndex != nil {
			idx = *raw.ReflectionIndex
		}
		mode, err := sim.ParseTagMode(*raw.Mode, idx, raw.ReflectionIndex != nil)
		if err != nil {
			return def, fmt.Errorf("tag %q: %w", name, err)
		}
		def.Mode = mode
	}
	return def, nil
}

func parseImpedanceList(raw []any) ([]complex128, error) {
	out := make([]complex128, len(raw))
	for i, item := range raw {
		z, err := sim.ParseImpedance(item)
		if err != nil {
			return nil, fmt.Errorf("entry %d: %w", i, err)
		}
		out[i] = z
	}
	return out, nil
}

// parseEventSpec splits one raw event object into type, time, and args.
func parseEventSpec(raw map[string]any) (sim.EventSpec, error) {
	spec := sim.EventSpec{Args: make(map[string]any, len(raw))}
	typeRaw, ok := raw["event_type"]
	if !ok {
		return spec, fmt.Errorf("field \"event_type\" is required, but no value was found")
	}
	spec.Type, ok = typeRaw.(string)
	if !ok {
		return spec, fmt.Errorf("field \"event_type\" must be a string, found %v", typeRaw)
	}
	timeRaw, ok := raw["time"]
	if !ok {
		return spec, fmt.Errorf("field \"time\" is required, but no value was found")
	}
	spec.Time, ok = timeRaw.(float64)
	if !ok {
		return spec, fmt.Errorf("field \"time\" must be a number, found %v", timeRaw)
	}
	for k, v := range raw {
		if k == "event_type" || k == "time" {
			continue
		}
		spec.Args[k] = v
	}
	return spec, nil
}

// Build assembles a runnable simulation from the scenario under the
// given engine configuration. A passive reflection magnitude in the
// scenario defaults applies only when the engine config leaves it unset.
func (sc *Scenario) Build(cfg sim.Config, log logrus.FieldLogger) (*sim.Simulation, error) {
	if cfg.PassiveReflection == nil {
		cfg.PassiveReflection = sc.PassiveReflection
	}
	exciter := physics.NewExciter(
		sc.Exciter.Name, sc.Exciter.Position,
		sc.Exciter.PowerMW, sc.Exciter.Gain,
		sc.Exciter.Impedance, sc.Exciter.Frequency,
	)
	s, err := sim.NewSimulation(cfg, exciter, log)
	if err != nil {
		return nil, err
	}
	s.Defaults = sc.Defaults

	// Intern every named state first so transition tables can reference
	// states in any order, including cycles.
	for _, name := range sortedKeys(sc.States) {
		s.States.State(name)
	}
	for _, name := range sortedKeys(sc.States) {
		state := s.States.State(name)
		def := sc.States[name]
		for _, symbol := range sortedKeys(def.Transitions) {
			edge := def.Transitions[symbol]
			state.AddTransition(symbol, edge.Instruction, s.States.State(edge.Next))
		}
	}

	for _, name := range sortedKeys(sc.Tags) {
		def := sc.Tags[name]
		tc := sim.TagConfig{
			Name:              name,
			Position:          def.Position,
			Gain:              def.Gain,
			Impedance:         def.Impedance,
			Frequency:         def.Frequency,
			PowerThresholdDBm: def.PowerThresholdDBm,
			ChipImpedances:    def.ChipImpedances,
			InitialMode:       def.Mode,
		}
		tc.ApplyDefaults(s.Defaults)
		for _, m := range []struct {
			field string
			state string
			dst   **machine.State
		}{
			{"input", def.Input, &tc.Machines.Input},
			{"processing", def.Processing, &tc.Machines.Processing},
			{"output", def.Output, &tc.Machines.Output},
		} {
			state, ok := s.States.Lookup(m.state)
			if !ok {
				return nil, fmt.Errorf("tag %q: machine.%s references unknown state, found %q", name, m.field, m.state)
			}
			*m.dst = state
		}
		if _, err := s.AddTag(tc); err != nil {
			return nil, err
		}
	}

	for _, spec := range sc.Events {
		ev, err := sim.NewDomainEvent(spec)
		if err != nil {
			return nil, err
		}
		s.AddEvents(ev)
	}
	return s, nil
}

func sortedKeys[V any](m map[string]V) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
