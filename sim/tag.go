package sim

import (
	"fmt"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/ehn4602/tag2tag-simulator/sim/machine"
	"github.com/ehn4602/tag2tag-simulator/sim/physics"
)

// TagMode selects which chip impedance a tag presents to the channel.
// Mode 0 is listening; transmit modes index the chip impedance table
// starting at 1.
type TagMode int

// ModeListen routes the antenna to the envelope detector.
const ModeListen TagMode = 0

// Listening reports whether the mode is the listening mode.
func (m TagMode) Listening() bool { return m == ModeListen }

// ChipIndex returns the chip impedance table index for this mode.
func (m TagMode) ChipIndex() int { return int(m) }

func (m TagMode) String() string {
	if m.Listening() {
		return "LISTEN"
	}
	return fmt.Sprintf("TRANSMIT[%d]", int(m))
}

// name returns the mode name without the chip index, for log fields and
// persistence.
func (m TagMode) name() string {
	if m.Listening() {
		return "LISTEN"
	}
	return "TRANSMIT"
}

// ParseTagMode resolves a mode name and chip index from scenario or
// event arguments. Names are case-insensitive. TRANSMIT requires an
// index of at least 1; LISTEN ignores the index.
func ParseTagMode(name string, chipIndex int, hasIndex bool) (TagMode, error) {
	switch strings.ToUpper(name) {
	case "LISTEN":
		return ModeListen, nil
	case "TRANSMIT":
		if !hasIndex {
			return 0, fmt.Errorf("mode TRANSMIT requires a reflection_index")
		}
		if chipIndex < 1 {
			return 0, fmt.Errorf("reflection_index must be at least 1, got %d", chipIndex)
		}
		return TagMode(chipIndex), nil
	}
	return 0, fmt.Errorf("unknown tag mode %q", name)
}

// TagDefaults carries the RF parameters applied to tags that do not
// override them, including tags created at runtime by tag_add events.
type TagDefaults struct {
	Gain              float64
	Impedance         complex128
	Frequency         float64
	ChipImpedances    []complex128
	PowerThresholdDBm *float64
}

// TagConfig describes one tag to construct. Gain is linear, positions in
// meters, frequency in Hz. ChipImpedances is indexed by mode, so entry 0
// belongs to the listening mode and is never presented to the channel.
type TagConfig struct {
	Name              string
	Position          physics.Vec3
	Gain              float64
	Impedance         complex128
	Frequency         float64
	PowerThresholdDBm *float64
	ChipImpedances    []complex128
	InitialMode       TagMode
	Machines          machine.InitStates
}

func (tc TagConfig) validate() error {
	if tc.Name == "" {
		return fmt.Errorf("tag requires a name")
	}
	if tc.Frequency <= 0 {
		return fmt.Errorf("tag %q: frequency must be positive, got %g", tc.Name, tc.Frequency)
	}
	if tc.Gain <= 0 {
		return fmt.Errorf("tag %q: linear gain must be positive, got %g", tc.Name, tc.Gain)
	}
	if len(tc.ChipImpedances) < 1 {
		return fmt.Errorf("tag %q: chip impedance table must include the listening slot", tc.Name)
	}
	if idx := tc.InitialMode.ChipIndex(); idx < 0 || idx >= len(tc.ChipImpedances) {
		return fmt.Errorf("tag %q: initial mode %s outside chip impedance table of size %d",
			tc.Name, tc.InitialMode, len(tc.ChipImpedances))
	}
	if tc.Machines.Input == nil || tc.Machines.Processing == nil || tc.Machines.Output == nil {
		return fmt.Errorf("tag %q: all three machine initial states are required", tc.Name)
	}
	return nil
}

// ApplyDefaults fills unset RF parameters from d. Zero means unset for
// gain and frequency; a nil chip table means unset.
func (tc *TagConfig) ApplyDefaults(d TagDefaults) {
	if tc.Gain == 0 {
		tc.Gain = d.Gain
	}
	if tc.Impedance == 0 {
		tc.Impedance = d.Impedance
	}
	if tc.Frequency == 0 {
		tc.Frequency = d.Frequency
	}
	if tc.ChipImpedances == nil {
		tc.ChipImpedances = d.ChipImpedances
	}
	if tc.PowerThresholdDBm == nil {
		tc.PowerThresholdDBm = d.PowerThresholdDBm
	}
}

// Tag is one backscatter node: an RF body the physics engine sees, plus
// the machine triplet that drives it. It implements machine.World for
// its machines and physics.ModeSwitcher for the engine.
type Tag struct {
	name           string
	pos            physics.Vec3
	gain           float64
	impedance      complex128
	frequency      float64
	powerThreshold *float64
	chips          []complex128
	mode           TagMode
	machine        *machine.TagMachine
	manager        *TagManager
	metrics        *Metrics
	log            logrus.FieldLogger
}

// Name returns the tag's unique name.
func (t *Tag) Name() string { return t.name }

// Position returns the tag's position in meters.
func (t *Tag) Position() physics.Vec3 { return t.pos }

// Gain returns the tag's linear antenna gain.
func (t *Tag) Gain() float64 { return t.gain }

// Frequency returns the tag's operating frequency in Hz.
func (t *Tag) Frequency() float64 { return t.frequency }

// Impedance returns the antenna feed impedance in ohms.
func (t *Tag) Impedance() complex128 { return t.impedance }

// ChipImpedance returns the impedance of the currently selected chip
// state. In listening mode the selection is the reserved slot 0.
func (t *Tag) ChipImpedance() complex128 { return t.chips[t.mode.ChipIndex()] }

// ChipImpedances returns the full chip impedance table, indexed by mode.
func (t *Tag) ChipImpedances() []complex128 { return t.chips }

// Listening reports whether the tag is in listening mode.
func (t *Tag) Listening() bool { return t.mode.Listening() }

// PowerThresholdDBm returns the tag's own power-on threshold, or
// ok=false to use the engine default.
func (t *Tag) PowerThresholdDBm() (float64, bool) {
	if t.powerThreshold == nil {
		return 0, false
	}
	return *t.powerThreshold, true
}

// Mode returns the tag's current mode.
func (t *Tag) Mode() TagMode { return t.mode }

// ModeIndex returns the current chip index, 0 when listening.
func (t *Tag) ModeIndex() int { return t.mode.ChipIndex() }

// Machine returns the tag's machine triplet.
func (t *Tag) Machine() *machine.TagMachine { return t.machine }

// Prepare starts the tag's machines.
func (t *Tag) Prepare() { t.machine.Prepare() }

// SetMode switches the tag's reflection state. The chip index must fall
// inside the tag's impedance table; events validate this at prepare
// time, so a violation here is a machine program error.
func (t *Tag) SetMode(mode TagMode) {
	if idx := mode.ChipIndex(); idx < 0 || idx >= len(t.chips) {
		panic(fmt.Sprintf("tag %s: chip index %d outside impedance table of size %d",
			t.name, idx, len(t.chips)))
	}
	t.mode = mode
	if t.metrics != nil {
		t.metrics.ModeChanges.Add(1)
	}
	t.log.WithFields(logrus.Fields{
		"mode":       mode.name(),
		"chip_index": mode.ChipIndex(),
	}).Info("mode change")
}

// SetAntenna switches to the transmit mode with the given chip index.
// Part of the machine.World surface backing the set_antenna instruction.
func (t *Tag) SetAntenna(index int) {
	if index < 1 {
		panic(fmt.Sprintf("tag %s: set_antenna index must be at least 1, got %d", t.name, index))
	}
	t.SetMode(TagMode(index))
}

// SetListen switches the tag to listening mode.
func (t *Tag) SetListen() {
	t.SetMode(ModeListen)
}

// SetTransmission loads a bit pattern into the processing machine's
// memory and triggers its transmission handler.
func (t *Tag) SetTransmission(bits []int) {
	t.machine.Processing().OnTransmission(bits)
}

// ReadVoltage computes the voltage currently induced at this tag's
// detector. Part of the machine.World surface backing save_voltage.
func (t *Tag) ReadVoltage() float64 {
	v := t.manager.ReceivedVoltage(t)
	t.log.WithField("voltage", v).Debug("voltage read")
	return v
}
