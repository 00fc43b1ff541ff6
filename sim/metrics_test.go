package sim

import (
	"bytes"
	"io"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ehn4602/tag2tag-simulator/sim/machine"
	"github.com/ehn4602/tag2tag-simulator/sim/physics"
)

func TestNewMetrics_StartsZeroed(t *testing.T) {
	m := NewMetrics()
	assert.Equal(t, int64(0), m.EventsDispatched.Load())
	assert.Equal(t, int64(0), m.TimersSet.Load())
	assert.Equal(t, int64(0), m.TimersFired.Load())
	assert.Equal(t, int64(0), m.TimersStale.Load())
	assert.Equal(t, int64(0), m.FeedbackTicks.Load())
	assert.Equal(t, int64(0), m.ModeChanges.Load())
}

func TestMetrics_PrintedToStdout(t *testing.T) {
	// GIVEN a metrics collector with some activity
	m := NewMetrics()
	m.EventsDispatched.Store(12)
	m.TimersSet.Store(5)
	m.TimersFired.Store(4)
	m.TimersStale.Store(1)
	m.FeedbackTicks.Store(8)
	m.ModeChanges.Store(3)

	// Capture stdout
	old := os.Stdout
	r, w, _ := os.Pipe()
	os.Stdout = w

	// WHEN Print is called
	m.Print(2.5, physics.Stats{VoltageReads: 20, Solves: 6, CacheHits: 14, Fallbacks: 1})

	// Restore stdout and read captured output
	_ = w.Close()
	os.Stdout = old
	var buf bytes.Buffer
	_, _ = io.Copy(&buf, r)
	output := buf.String()

	// THEN every counter appears on stdout
	assert.Contains(t, output, "=== Simulation Metrics ===")
	assert.Contains(t, output, "Simulated Time    : 2.5 s")
	assert.Contains(t, output, "Events Dispatched : 12")
	assert.Contains(t, output, "Timers Set/Fired  : 5/4 (1 superseded)")
	assert.Contains(t, output, "Feedback Ticks    : 8")
	assert.Contains(t, output, "Mode Changes      : 3")
	assert.Contains(t, output, "Voltage Reads     : 20")
	assert.Contains(t, output, "Channel Solves    : 6 (14 memoized, 1 fallbacks)")
}

func TestMetrics_CountersAccumulateOverARun(t *testing.T) {
	// One run exercising every counter: a machine timer chain, feedback
	// ticks, and an external mode-change event.
	cfg := testConfig()
	cfg.Horizon = 2
	cfg.FeedbackInterval = 1
	s := newTestSimulation(t, cfg)

	armed := s.States.State("armed")
	tick := s.States.State("tick")
	armed.AddTransition(machine.SymbolInit, machine.Instruction{Op: machine.OpSequence, Seq: []machine.Instruction{
		{Op: machine.OpLoadImm, Dst: 0, Imm: 0.5},
		{Op: machine.OpSetTimer, A: 0},
	}}, tick)
	tick.AddTransition(machine.SymbolTimer, machine.Instruction{Op: machine.OpSetTimer, A: 0}, tick)

	tagCfg := testTagConfig(s, "a", 1)
	tagCfg.Machines.Input = armed
	_, err := s.AddTag(tagCfg)
	require.NoError(t, err)

	ev, err := NewDomainEvent(EventSpec{Type: "tag_set_mode", Time: 1.25,
		Args: map[string]any{"tag": "a", "mode": "TRANSMIT", "reflection_index": 1.0}})
	require.NoError(t, err)
	s.AddEvents(ev)

	require.NoError(t, s.Run())

	// Timer chain: armed at 0.5, 1.0, 1.5, 2.0; the re-arm at 2.0 targets
	// 2.5 which is beyond the horizon and never fires.
	assert.Equal(t, int64(5), s.Metrics.TimersSet.Load())
	assert.Equal(t, int64(4), s.Metrics.TimersFired.Load())
	assert.Equal(t, int64(0), s.Metrics.TimersStale.Load())
	assert.Equal(t, int64(2), s.Metrics.FeedbackTicks.Load())
	assert.Equal(t, int64(1), s.Metrics.ModeChanges.Load())
	// 4 timer fires + 2 feedback ticks + 1 domain event.
	assert.Equal(t, int64(7), s.Metrics.EventsDispatched.Load())
}
