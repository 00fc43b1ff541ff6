package sim

import (
	"io"
	"testing"

	"github.com/sirupsen/logrus"

	"github.com/ehn4602/tag2tag-simulator/sim/machine"
	"github.com/ehn4602/tag2tag-simulator/sim/physics"
)

// quietLogger swallows output; tests that assert on log records use
// logrus's test hook instead.
func quietLogger() *logrus.Logger {
	log := logrus.New()
	log.SetOutput(io.Discard)
	return log
}

// testConfig is a minimal valid engine config: short horizon, feedback
// off, no noise, and zero passive reflection so listening tags drop out
// of the channel math exactly.
func testConfig() Config {
	zero := 0.0
	return Config{
		Horizon:           10,
		Seed:              7,
		PassiveReflection: &zero,
	}
}

func newTestSimulation(t *testing.T, cfg Config) *Simulation {
	t.Helper()
	exciter := physics.NewExciter("exciter", physics.Vec3{}, 1000, 1, complex(50, 0), 915e6)
	s, err := NewSimulation(cfg, exciter, quietLogger())
	if err != nil {
		t.Fatalf("NewSimulation: %v", err)
	}
	return s
}

// idleStates is a machine triplet that ignores every symbol.
func idleStates(s *Simulation) machine.InitStates {
	idle := s.States.State("idle")
	return machine.InitStates{Input: idle, Processing: idle, Output: idle}
}

func testTagConfig(s *Simulation, name string, x float64) TagConfig {
	return TagConfig{
		Name:           name,
		Position:       physics.Vec3{X: x},
		Gain:           1,
		Impedance:      complex(50, 0),
		Frequency:      915e6,
		ChipImpedances: []complex128{0, complex(10, 5), complex(200, -30)},
		Machines:       idleStates(s),
	}
}

func addTestTag(t *testing.T, s *Simulation, name string, x float64) *Tag {
	t.Helper()
	tag, err := s.AddTag(testTagConfig(s, name, x))
	if err != nil {
		t.Fatalf("AddTag(%s): %v", name, err)
	}
	return tag
}

// stubEvent is a schedulable queue entry driven by a closure.
type stubEvent struct {
	at   float64
	kind EventKind
	fn   func(*Simulation)
}

func (e *stubEvent) Timestamp() float64 { return e.at }
func (e *stubEvent) Kind() EventKind    { return e.kind }

func (e *stubEvent) Execute(s *Simulation) {
	if e.fn != nil {
		e.fn(s)
	}
}

// fireRecorder is a timer acceptor that records the clock at each fire
// and optionally re-arms itself until limit fires have happened.
type fireRecorder struct {
	sim   *Simulation
	times []float64
	rearm float64
	limit int
}

func (f *fireRecorder) OnTimer() {
	f.times = append(f.times, f.sim.Clock)
	if f.rearm > 0 && len(f.times) < f.limit {
		f.sim.Timers.SetTimer(f, f.rearm)
	}
}
