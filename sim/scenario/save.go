package scenario

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/ehn4602/tag2tag-simulator/sim"
	"github.com/ehn4602/tag2tag-simulator/sim/physics"
)

// Save writes the simulation's current population, state tables, and
// queued events as a scenario that Load reconstructs into an equivalent
// graph. Tags are written with their RF parameters fully resolved, so a
// saved scenario no longer distinguishes defaulted from explicit fields.
func Save(w io.Writer, s *sim.Simulation) error {
	out := scenarioJSON{
		RunID:  s.ID,
		States: make(map[string]stateJSON),
		Tags:   make(map[string]tagJSON),
	}

	ex := s.Manager.Engine().Exciter()
	out.Exciter = &exciterJSON{
		ID:        ex.Name(),
		X:         ex.Position().X,
		Y:         ex.Position().Y,
		Z:         ex.Position().Z,
		PowerMW:   ex.PowerMW(),
		GainDBi:   physics.LinearToDbi(ex.Gain()),
		Impedance: encodeImpedance(ex.Impedance()),
		Frequency: ex.Frequency(),
	}

	out.Defaults = encodeDefaults(s)

	for _, name := range s.States.Names() {
		state, _ := s.States.Lookup(name)
		transitions := make(map[string][]any)
		for _, symbol := range state.Symbols() {
			in, next, _ := state.FollowSymbol(symbol)
			transitions[symbol] = []any{in.Encode(), next.Name()}
		}
		out.States[name] = stateJSON{Transitions: transitions}
	}

	for _, tag := range s.Manager.Tags() {
		out.Tags[tag.Name()] = encodeTag(tag)
	}

	for _, ev := range s.DomainEvents() {
		spec := ev.Spec()
		entry := make(map[string]any, len(spec.Args)+2)
		for k, v := range spec.Args {
			entry[k] = v
		}
		entry["event_type"] = spec.Type
		entry["time"] = spec.Time
		out.Events = append(out.Events, entry)
	}

	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(out); err != nil {
		return fmt.Errorf("encoding scenario: %w", err)
	}
	return nil
}

// SaveFile writes the scenario to path, replacing any existing file.
func SaveFile(path string, s *sim.Simulation) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("creating scenario file: %w", err)
	}
	if err := Save(f, s); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

func encodeDefaults(s *sim.Simulation) defaultsJSON {
	var out defaultsJSON
	d := s.Defaults
	if d.Gain != 0 {
		g := physics.LinearToDbi(d.Gain)
		out.GainDBi = &g
	}
	if d.Impedance != 0 {
		out.Impedance = encodeImpedance(d.Impedance)
	}
	if d.Frequency != 0 {
		f := d.Frequency
		out.Frequency = &f
	}
	if d.ChipImpedances != nil {
		out.ChipImpedances = encodeImpedanceList(d.ChipImpedances)
	}
	out.PowerThresholdDBm = d.PowerThresholdDBm
	out.PassiveReflection = s.Config().PassiveReflection
	return out
}

func encodeTag(tag *sim.Tag) tagJSON {
	gain := physics.LinearToDbi(tag.Gain())
	freq := tag.Frequency()
	entry := tagJSON{
		X:              tag.Position().X,
		Y:              tag.Position().Y,
		Z:              tag.Position().Z,
		GainDBi:        &gain,
		Impedance:      encodeImpedance(tag.Impedance()),
		Frequency:      &freq,
		ChipImpedances: encodeImpedanceList(tag.ChipImpedances()),
	}
	entry.Machine.Input, entry.Machine.Processing, entry.Machine.Output = tag.Machine().InitStateNames()
	if threshold, ok := tag.PowerThresholdDBm(); ok {
		entry.PowerThresholdDBm = &threshold
	}
	mode := "LISTEN"
	if !tag.Listening() {
		mode = "TRANSMIT"
		idx := tag.ModeIndex()
		entry.ReflectionIndex = &idx
	}
	entry.Mode = &mode
	return entry
}

// encodeImpedance emits a bare number for purely resistive values and a
// [re, im] pair otherwise, matching what the loader accepts.
func encodeImpedance(z complex128) any {
	if imag(z) == 0 {
		return real(z)
	}
	return []float64{real(z), imag(z)}
}

func encodeImpedanceList(zs []complex128) []any {
	out := make([]any, len(zs))
	for i, z := range zs {
		out[i] = encodeImpedance(z)
	}
	return out
}
