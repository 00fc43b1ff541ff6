package physics

// Radiator is anything that launches or re-radiates a field: position and
// antenna gain are enough to compute propagation to another radiator.
// Gains are linear everywhere inside the engine; dBi exists only at
// configuration boundaries.
type Radiator interface {
	Name() string
	Position() Vec3
	Gain() float64
	Frequency() float64
}

// Reflector is a backscatter element: a radiator with antenna and chip
// impedances whose mismatch determines how it reflects, and a mode that
// may instead be listening.
type Reflector interface {
	Radiator
	// Impedance is the antenna feed impedance in ohms.
	Impedance() complex128
	// ChipImpedance is the impedance of the currently selected chip
	// state. Only meaningful when not listening.
	ChipImpedance() complex128
	// Listening reports whether the antenna is switched to the envelope
	// detector instead of a reflection state.
	Listening() bool
	// PowerThresholdDBm returns the reflector's own power-on threshold,
	// or ok=false to use the engine default.
	PowerThresholdDBm() (threshold float64, ok bool)
}

// ModeSwitcher is a Reflector whose reflection state can be driven
// externally. Calibration utilities use it to toggle a transmitter
// between modes.
type ModeSwitcher interface {
	Reflector
	SetAntenna(index int)
	SetListen()
	ModeIndex() int
}

// Exciter is the continuous-wave source illuminating the reflector field.
type Exciter struct {
	name      string
	pos       Vec3
	powerMW   float64
	gain      float64
	impedance complex128
	frequency float64
}

// NewExciter creates an exciter. Gain is linear, power in mW, frequency
// in Hz.
func NewExciter(name string, pos Vec3, powerMW, gain float64, impedance complex128, frequency float64) *Exciter {
	return &Exciter{
		name:      name,
		pos:       pos,
		powerMW:   powerMW,
		gain:      gain,
		impedance: impedance,
		frequency: frequency,
	}
}

// Name returns the exciter's unique name.
func (e *Exciter) Name() string { return e.name }

// Position returns the exciter's position in meters.
func (e *Exciter) Position() Vec3 { return e.pos }

// Gain returns the exciter's linear antenna gain.
func (e *Exciter) Gain() float64 { return e.gain }

// Frequency returns the carrier frequency in Hz.
func (e *Exciter) Frequency() float64 { return e.frequency }

// PowerMW returns the transmit power in mW.
func (e *Exciter) PowerMW() float64 { return e.powerMW }

// Impedance returns the exciter's feed impedance in ohms.
func (e *Exciter) Impedance() complex128 { return e.impedance }
