package physics

import (
	"math"
	"math/cmplx"
)

// SpeedOfLight in meters per second.
const SpeedOfLight = 299792458.0

const (
	// DefaultPowerThresholdDBm is the power-on threshold applied when a
	// tag does not carry its own: the typical UHF RFID wake threshold.
	DefaultPowerThresholdDBm = -100.0

	// DefaultPassiveReflection is the reflection magnitude of a tag that
	// is listening or unpowered. A structural-scatter calibration
	// constant, not derived from impedances.
	DefaultPassiveReflection = 0.05

	// detectorNorm is the envelope detector's voltage normalization, a
	// calibration constant of the model rather than a physical impedance.
	detectorNorm = 500.0
)

// Wavelength returns the carrier wavelength for frequency in Hz.
func Wavelength(frequency float64) float64 {
	return SpeedOfLight / frequency
}

// NearFieldRadius returns the reactive near-field boundary for wavelength,
// wavelength/(2*pi). Inside it the far-field path model does not hold.
func NearFieldRadius(wavelength float64) float64 {
	return wavelength / (2 * math.Pi)
}

// Attenuation returns the power attenuation factor between two antennas.
// Beyond the reactive near-field boundary it is the Friis free-space
// relation; inside it, a cubic-falloff approximation scaled to meet the
// far-field value exactly at the boundary. Non-positive distance yields
// zero, guarding self-coupling and coincident positions.
func Attenuation(distance, wavelength, txGain, rxGain float64) float64 {
	if distance <= 0 {
		return 0
	}
	r0 := NearFieldRadius(wavelength)
	if distance >= r0 {
		ratio := wavelength / (4 * math.Pi * distance)
		return txGain * rxGain * ratio * ratio
	}
	ratio := r0 / distance
	return txGain * rxGain / 4 * ratio * ratio * ratio
}

// Signal returns the complex propagation phasor over distance: amplitude
// sqrt(attenuation), phase advancing one turn per wavelength travelled.
func Signal(distance, wavelength, txGain, rxGain float64) complex128 {
	att := Attenuation(distance, wavelength, txGain, rxGain)
	if att == 0 {
		return 0
	}
	return cmplx.Rect(math.Sqrt(att), 2*math.Pi*distance/wavelength)
}

// ReflectionCoefficient returns the complex reflection coefficient of a
// chip/antenna impedance pair. ok is false when the denominator is
// degenerate, in which case the coefficient is zero and the caller should
// log the degradation.
func ReflectionCoefficient(chip, antenna complex128) (gamma complex128, ok bool) {
	den := chip + antenna
	if den == 0 {
		return 0, false
	}
	return (chip - cmplx.Conj(antenna)) / den, true
}

// FriisPowerMW returns the far-field power in mW delivered from a
// transmitter with powerMW and txGain to a receiver with rxGain over
// distance. Non-positive distance means co-located antennas and yields
// unbounded power.
func FriisPowerMW(powerMW, txGain, rxGain, wavelength, distance float64) float64 {
	if distance <= 0 {
		return math.Inf(1)
	}
	ratio := wavelength / (4 * math.Pi * distance)
	return powerMW * txGain * rxGain * ratio * ratio
}

// DBm converts a power in mW to dBm.
func DBm(powerMW float64) float64 {
	return 10 * math.Log10(powerMW)
}

// VoltageRMS converts a received phasor into the RMS voltage at the
// envelope detector of a receiver with the given feed impedance.
func VoltageRMS(impedance, s complex128) float64 {
	vPeak := math.Sqrt(cmplx.Abs(impedance) * cmplx.Abs(s) / detectorNorm)
	return vPeak / math.Sqrt2
}

// DbiToLinear converts an antenna gain in dBi to linear scale.
func DbiToLinear(dbi float64) float64 {
	return math.Pow(10, dbi/10)
}

// LinearToDbi converts a linear antenna gain to dBi.
func LinearToDbi(gain float64) float64 {
	return 10 * math.Log10(gain)
}
