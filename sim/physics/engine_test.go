package physics

import (
	"math"
	"math/rand"
	"testing"

	logtest "github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/floats/scalar"
)

// stubReflector is a minimal ModeSwitcher for engine tests. Mode 0 is
// listening; other modes index chips.
type stubReflector struct {
	name      string
	pos       Vec3
	gain      float64
	freq      float64
	z         complex128
	chips     []complex128
	mode      int
	threshold *float64
}

func newStubReflector(name string, pos Vec3) *stubReflector {
	return &stubReflector{
		name:  name,
		pos:   pos,
		gain:  1,
		freq:  915e6,
		z:     complex(50, 0),
		chips: []complex128{0, complex(10, 5), complex(200, -30)},
	}
}

func (s *stubReflector) Name() string              { return s.name }
func (s *stubReflector) Position() Vec3            { return s.pos }
func (s *stubReflector) Gain() float64             { return s.gain }
func (s *stubReflector) Frequency() float64        { return s.freq }
func (s *stubReflector) Impedance() complex128     { return s.z }
func (s *stubReflector) ChipImpedance() complex128 { return s.chips[s.mode] }
func (s *stubReflector) Listening() bool           { return s.mode == 0 }
func (s *stubReflector) SetAntenna(index int)      { s.mode = index }
func (s *stubReflector) SetListen()                { s.mode = 0 }
func (s *stubReflector) ModeIndex() int            { return s.mode }

func (s *stubReflector) PowerThresholdDBm() (float64, bool) {
	if s.threshold == nil {
		return 0, false
	}
	return *s.threshold, true
}

func testExciter() *Exciter {
	return NewExciter("exciter", Vec3{}, 1000, 1, complex(50, 0), 915e6)
}

func testEngine(cfg Config) (*Engine, []*stubReflector) {
	tags := []*stubReflector{
		newStubReflector("tx1", Vec3{X: 1}),
		newStubReflector("tx2", Vec3{X: 2}),
		newStubReflector("rx1", Vec3{X: 3}),
	}
	log, _ := logtest.NewNullLogger()
	return NewEngine(testExciter(), cfg, rand.New(rand.NewSource(7)), log), tags
}

func asReflectors(tags []*stubReflector) []Reflector {
	out := make([]Reflector, len(tags))
	for i, tag := range tags {
		out[i] = tag
	}
	return out
}

func TestEngine_SolveReducesToExciterFieldWithZeroReflection(t *testing.T) {
	// GIVEN all reflectors listening with a zero passive coefficient
	eng, tags := testEngine(Config{PassiveReflection: 0})
	refl := asReflectors(tags)

	// WHEN the voltage at each tag is computed
	// THEN the self-consistent solve collapses to the exciter's direct
	// field: H*Gamma = 0 so S = h_exciter.
	for _, tag := range tags {
		want := VoltageRMS(tag.Impedance(), eng.sig(eng.Exciter(), tag))
		got := eng.VoltageAt(refl, tag)
		assert.True(t, scalar.EqualWithinAbsOrRel(got, want, 1e-15, 1e-12),
			"tag %s: got %v want %v", tag.Name(), got, want)
	}
}

func TestEngine_ListeningAndUnpoweredUsePassiveReflection(t *testing.T) {
	eng, tags := testEngine(Config{PassiveReflection: 0.05})
	passive := complex(0.05, 0)

	// Listening mode: passive regardless of chip configuration.
	tags[0].SetListen()
	assert.Equal(t, passive, eng.EffectiveReflection(tags[0]))

	// Powered and transmitting: the impedance-mismatch coefficient.
	tags[0].SetAntenna(1)
	gamma := eng.EffectiveReflection(tags[0])
	assert.NotEqual(t, passive, gamma)
	want, ok := ReflectionCoefficient(tags[0].ChipImpedance(), tags[0].Impedance())
	require.True(t, ok)
	assert.Equal(t, want, gamma)

	// Transmitting but below the power threshold: passive again.
	high := 40.0 // dBm, far above anything Friis can deliver here
	tags[0].threshold = &high
	assert.False(t, eng.Powered(tags[0]))
	assert.Equal(t, passive, eng.EffectiveReflection(tags[0]))
}

func TestEngine_PoweredThresholds(t *testing.T) {
	eng, tags := testEngine(Config{})

	// Default threshold (-100 dBm) is easily met at 1 m from a 1 W source.
	assert.True(t, eng.Powered(tags[0]))

	// A tag's own threshold overrides the engine default.
	impossible := 30.0
	tags[0].threshold = &impossible
	assert.False(t, eng.Powered(tags[0]))
}

func TestEngine_MemoizesSolveAcrossQueries(t *testing.T) {
	eng, tags := testEngine(Config{PassiveReflection: 0.05})
	refl := asReflectors(tags)

	eng.VoltageAt(refl, tags[0])
	eng.VoltageAt(refl, tags[1])
	eng.VoltageAt(refl, tags[2])

	stats := eng.Stats()
	assert.Equal(t, uint64(1), stats.Solves, "one solve serves all same-topology queries")
	assert.Equal(t, uint64(2), stats.CacheHits)
	assert.Equal(t, uint64(3), stats.VoltageReads)

	// A mode change alters an effective coefficient, so the next query
	// must re-solve.
	tags[0].SetAntenna(2)
	eng.VoltageAt(refl, tags[2])
	assert.Equal(t, uint64(2), eng.Stats().Solves)
}

func TestEngine_SelfConsistentMatchesSingleBounceForWeakCoupling(t *testing.T) {
	// GIVEN transmitters whose chips are nearly conjugate-matched, so the
	// reflection coefficients are ~1e-6
	full, tags := testEngine(Config{PassiveReflection: 0})
	for _, tag := range tags[:2] {
		tag.chips = []complex128{0, complex(50.0001, 0)}
		tag.SetAntenna(1)
	}
	log, _ := logtest.NewNullLogger()
	single := NewEngine(testExciter(), Config{PassiveReflection: 0, SingleBounce: true}, rand.New(rand.NewSource(7)), log)

	refl := asReflectors(tags)

	// WHEN both solvers compute the receiver voltage
	vFull := full.VoltageAt(refl, tags[2])
	vSingle := single.VoltageAt(refl, tags[2])

	// THEN they agree to first order: the difference is O(gamma^2)
	assert.True(t, scalar.EqualWithinRel(vFull, vSingle, 1e-9),
		"full=%v single=%v", vFull, vSingle)
}

func TestEngine_SingleBounceSkipsListeningTags(t *testing.T) {
	log, _ := logtest.NewNullLogger()
	eng := NewEngine(testExciter(), Config{PassiveReflection: 0.5, SingleBounce: true}, nil, log)
	tags := []*stubReflector{
		newStubReflector("tx1", Vec3{X: 1}),
		newStubReflector("rx1", Vec3{X: 2}),
	}
	refl := asReflectors(tags)

	// Listening transmitter contributes nothing despite the large passive
	// coefficient: only the exciter's direct field remains.
	direct := VoltageRMS(tags[1].Impedance(), eng.sig(eng.Exciter(), tags[1]))
	assert.True(t, scalar.EqualWithinRel(eng.VoltageAt(refl, tags[1]), direct, 1e-12))

	// The moment it transmits, the bounce appears.
	tags[0].SetAntenna(1)
	assert.False(t, scalar.EqualWithinRel(eng.VoltageAt(refl, tags[1]), direct, 1e-9))
}

func TestEngine_ModulationDepth(t *testing.T) {
	eng, tags := testEngine(Config{PassiveReflection: 0.05})
	refl := asReflectors(tags)
	tx, rx := tags[0], tags[2]
	tags[1].SetListen()

	depth := eng.ModulationDepth(refl, tx, rx, 1, 2)

	// Distinct, non-degenerate chip impedances must separate the voltages.
	assert.Greater(t, depth, 0.0)

	// The transmitter's mode is restored.
	assert.Equal(t, 0, tx.ModeIndex())

	// The reported depth is exactly the voltage swing the engine itself
	// computes for the two modes.
	tx.SetAntenna(1)
	va := eng.VoltageAt(refl, rx)
	tx.SetAntenna(2)
	vb := eng.VoltageAt(refl, rx)
	tx.SetListen()
	assert.True(t, scalar.EqualWithinAbsOrRel(depth, math.Abs(va-vb), 1e-15, 1e-12))
}

func TestEngine_NoiseIsDeterministicAndNonNegative(t *testing.T) {
	log, _ := logtest.NewNullLogger()
	cfg := Config{PassiveReflection: 0.05, NoiseStd: 0.1}
	mk := func() (*Engine, []Reflector, *stubReflector) {
		rx := newStubReflector("rx1", Vec3{X: 2})
		return NewEngine(testExciter(), cfg, rand.New(rand.NewSource(42)), log), []Reflector{rx}, rx
	}

	engA, reflA, rxA := mk()
	engB, reflB, rxB := mk()

	// Same seed, same sequence of reads.
	for i := 0; i < 50; i++ {
		va := engA.VoltageAt(reflA, rxA)
		vb := engB.VoltageAt(reflB, rxB)
		assert.Equal(t, va, vb, "read %d diverged", i)
		assert.GreaterOrEqual(t, va, 0.0, "voltage must clamp at zero")
	}
}

func TestEngine_VoltageAtUnknownReceiverPanics(t *testing.T) {
	eng, tags := testEngine(Config{})
	stranger := newStubReflector("stranger", Vec3{Y: 1})
	assert.Panics(t, func() { eng.VoltageAt(asReflectors(tags), stranger) })
}
