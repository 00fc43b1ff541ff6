// Package physics computes the electromagnetic coupling between an
// exciter and a field of backscatter reflectors: pairwise propagation
// phasors, effective reflection coefficients, and the self-consistent
// solve that turns them into envelope-detector voltages.
package physics

import (
	"errors"
	"fmt"
	"math"
	"math/rand"

	"github.com/sirupsen/logrus"
	"gonum.org/v1/gonum/mat"
)

// Config carries the engine's tuning constants.
type Config struct {
	// NoiseStd is the standard deviation in volts of the additive
	// Gaussian noise applied to every voltage read. Zero disables noise.
	NoiseStd float64
	// PassiveReflection is the reflection magnitude of listening or
	// unpowered reflectors. Usually DefaultPassiveReflection.
	PassiveReflection float64
	// PowerThresholdDBm is the power-on threshold for reflectors without
	// their own. Zero selects DefaultPowerThresholdDBm.
	PowerThresholdDBm float64
	// SingleBounce selects the cheaper non-self-consistent solver: each
	// transmitter contributes one exciter-tag-receiver bounce and
	// listening tags contribute nothing.
	SingleBounce bool
}

// Stats counts engine activity since construction.
type Stats struct {
	VoltageReads uint64
	Solves       uint64
	CacheHits    uint64
	Fallbacks    uint64
}

// Engine owns the exciter and the solver state. Not safe for concurrent
// use; the simulation queries it from a single goroutine.
type Engine struct {
	exciter *Exciter
	cfg     Config
	rng     *rand.Rand
	log     logrus.FieldLogger
	stats   Stats

	// Single-slot memo of the last solve. Voltage queries repeat with
	// unchanged geometry many times within one feedback tick; the key
	// hashes everything the solution depends on.
	memoKey uint64
	memoS   []complex128
}

// NewEngine creates an engine around the exciter. A nil rng falls back to
// a fixed-seed source, a nil log to the standard logger.
func NewEngine(exciter *Exciter, cfg Config, rng *rand.Rand, log logrus.FieldLogger) *Engine {
	if cfg.PowerThresholdDBm == 0 {
		cfg.PowerThresholdDBm = DefaultPowerThresholdDBm
	}
	if rng == nil {
		rng = rand.New(rand.NewSource(1))
	}
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Engine{
		exciter: exciter,
		cfg:     cfg,
		rng:     rng,
		log:     log,
	}
}

// Exciter returns the engine's driving source.
func (e *Engine) Exciter() *Exciter {
	return e.exciter
}

// Stats returns a snapshot of the engine's activity counters.
func (e *Engine) Stats() Stats {
	return e.stats
}

// sig returns the propagation phasor from tx to rx using the
// transmitter's carrier.
func (e *Engine) sig(tx, rx Radiator) complex128 {
	d := tx.Position().DistanceTo(rx.Position())
	return Signal(d, Wavelength(tx.Frequency()), tx.Gain(), rx.Gain())
}

// Powered reports whether r harvests enough exciter power to run its
// chip, comparing Friis-delivered power against the reflector's (or the
// engine's default) threshold.
func (e *Engine) Powered(r Reflector) bool {
	d := e.exciter.Position().DistanceTo(r.Position())
	p := FriisPowerMW(e.exciter.PowerMW(), e.exciter.Gain(), r.Gain(), Wavelength(e.exciter.Frequency()), d)
	threshold, ok := r.PowerThresholdDBm()
	if !ok {
		threshold = e.cfg.PowerThresholdDBm
	}
	return DBm(p) >= threshold
}

// EffectiveReflection returns the reflection coefficient r presents to
// the field right now: the impedance-mismatch coefficient when powered
// and actively reflecting, the fixed passive-scatter value when
// listening or unpowered.
func (e *Engine) EffectiveReflection(r Reflector) complex128 {
	if r.Listening() || !e.Powered(r) {
		return complex(e.cfg.PassiveReflection, 0)
	}
	gamma, ok := ReflectionCoefficient(r.ChipImpedance(), r.Impedance())
	if !ok {
		e.log.Warnf("physics: degenerate impedance pair on %q, reflection forced to zero", r.Name())
	}
	return gamma
}

// VoltageAt returns the RMS voltage at rx's envelope detector given the
// current modes of all reflectors. rx must be an element of reflectors,
// whose order fixes the solve indexing. Noise, if configured, is applied
// per read on top of the (possibly memoized) solve.
func (e *Engine) VoltageAt(reflectors []Reflector, rx Reflector) float64 {
	e.stats.VoltageReads++

	idx := -1
	for i, r := range reflectors {
		if r.Name() == rx.Name() {
			idx = i
			break
		}
	}
	if idx < 0 {
		panic(fmt.Sprintf("physics: receiver %q not in reflector set", rx.Name()))
	}

	s := e.fields(reflectors)
	v := VoltageRMS(rx.Impedance(), s[idx])
	if e.cfg.NoiseStd > 0 {
		v += e.rng.NormFloat64() * e.cfg.NoiseStd
		if v < 0 {
			v = 0
		}
	}
	return v
}

// fields returns the received phasor at every reflector, serving from the
// memo when geometry and reflection state are unchanged.
func (e *Engine) fields(reflectors []Reflector) []complex128 {
	gammas := make([]complex128, len(reflectors))
	for i, r := range reflectors {
		gammas[i] = e.EffectiveReflection(r)
	}

	key := e.solveKey(reflectors, gammas)
	if e.memoS != nil && key == e.memoKey {
		e.stats.CacheHits++
		return e.memoS
	}

	hEx := make([]complex128, len(reflectors))
	for i, r := range reflectors {
		hEx[i] = e.sig(e.exciter, r)
	}

	var s []complex128
	if e.cfg.SingleBounce {
		s = e.singleBounce(reflectors, gammas, hEx)
	} else {
		var err error
		s, err = e.solve(reflectors, gammas, hEx)
		if err != nil {
			e.stats.Fallbacks++
			e.log.WithError(err).Warn("physics: channel solve failed, falling back to single bounce")
			s = e.singleBounce(reflectors, gammas, hEx)
		}
	}
	e.stats.Solves++
	e.memoKey, e.memoS = key, s
	return s
}

// solve computes the self-consistent field S from (I - H*diag(gammas)) S
// = hEx, capturing all orders of mutual backscatter. The complex system
// is solved through its real 2Nx2N embedding.
func (e *Engine) solve(reflectors []Reflector, gammas, hEx []complex128) ([]complex128, error) {
	n := len(reflectors)
	if n == 0 {
		return nil, nil
	}

	m := mat.NewDense(2*n, 2*n, nil)
	b := mat.NewVecDense(2*n, nil)
	for i := 0; i < n; i++ {
		for j := 0; j < n; j++ {
			var a complex128
			if i != j {
				a = -e.sig(reflectors[j], reflectors[i]) * gammas[j]
			}
			if i == j {
				a += 1
			}
			m.Set(i, j, real(a))
			m.Set(i, n+j, -imag(a))
			m.Set(n+i, j, imag(a))
			m.Set(n+i, n+j, real(a))
		}
		b.SetVec(i, real(hEx[i]))
		b.SetVec(n+i, imag(hEx[i]))
	}

	var x mat.VecDense
	if err := x.SolveVec(m, b); err != nil {
		var cond mat.Condition
		if !errors.As(err, &cond) {
			return nil, err
		}
		// Ill-conditioned but solved; keep the solution, surface the
		// degradation.
		e.log.Warnf("physics: channel matrix ill-conditioned (cond=%.3g)", float64(cond))
	}

	s := make([]complex128, n)
	for i := 0; i < n; i++ {
		s[i] = complex(x.AtVec(i), x.AtVec(n+i))
	}
	return s, nil
}

// singleBounce computes the field without mutual coupling: the exciter's
// direct contribution plus one exciter-transmitter-receiver bounce per
// non-listening transmitter.
func (e *Engine) singleBounce(reflectors []Reflector, gammas, hEx []complex128) []complex128 {
	s := make([]complex128, len(reflectors))
	for i := range reflectors {
		total := hEx[i]
		for j := range reflectors {
			if j == i || reflectors[j].Listening() {
				continue
			}
			total += hEx[j] * gammas[j] * e.sig(reflectors[j], reflectors[i])
		}
		s[i] = total
	}
	return s
}

// ModulationDepth measures the voltage swing at rx caused by tx switching
// between modeA and modeB, restoring tx's original mode afterwards. A
// calibration utility, not the runtime hot path; run it with zero noise
// for exact results.
func (e *Engine) ModulationDepth(reflectors []Reflector, tx ModeSwitcher, rx Reflector, modeA, modeB int) float64 {
	orig := tx.ModeIndex()
	defer setMode(tx, orig)

	setMode(tx, modeA)
	va := e.VoltageAt(reflectors, rx)
	setMode(tx, modeB)
	vb := e.VoltageAt(reflectors, rx)
	return math.Abs(va - vb)
}

func setMode(r ModeSwitcher, index int) {
	if index == 0 {
		r.SetListen()
	} else {
		r.SetAntenna(index)
	}
}
