package machine

import (
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
)

func testLogger() logrus.FieldLogger {
	log := logrus.New()
	log.SetLevel(logrus.PanicLevel)
	return log
}

// loopState returns a single state accepting every listed symbol with the
// paired instruction, transitioning to itself.
func loopState(name string, edges map[string]Instruction) *State {
	s := NewState(name)
	for sym, in := range edges {
		s.AddTransition(sym, in, s)
	}
	return s
}

func TestExecuteMachine_RegisterOps(t *testing.T) {
	tests := []struct {
		name string
		prog Instruction
		want map[int]float64
	}{
		{
			"load and mov",
			Instruction{Op: OpSequence, Seq: []Instruction{
				{Op: OpLoadImm, Dst: 0, Imm: 7},
				{Op: OpMov, Dst: 1, A: 0},
			}},
			map[int]float64{0: 7, 1: 7},
		},
		{
			"add and sub",
			Instruction{Op: OpSequence, Seq: []Instruction{
				{Op: OpLoadImm, Dst: 0, Imm: 5},
				{Op: OpLoadImm, Dst: 1, Imm: 3},
				{Op: OpAdd, Dst: 2, A: 0, B: 1},
				{Op: OpSub, Dst: 3, A: 0, B: 1},
			}},
			map[int]float64{2: 8, 3: 2},
		},
		{
			"floor truncates toward zero",
			Instruction{Op: OpSequence, Seq: []Instruction{
				{Op: OpLoadImm, Dst: 0, Imm: -2.5},
				{Op: OpFloor, A: 0},
			}},
			map[int]float64{0: -2},
		},
		{
			"abs",
			Instruction{Op: OpSequence, Seq: []Instruction{
				{Op: OpLoadImm, Dst: 0, Imm: -4},
				{Op: OpAbs, A: 0},
			}},
			map[int]float64{0: 4},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := newExecuteMachine("test", loopState("s", map[string]Instruction{"go": tt.prog}), testLogger())
			m.AcceptSymbol("go")
			for reg, want := range tt.want {
				assert.Equal(t, want, m.Register(reg), "register %d", reg)
			}
		})
	}
}

func TestExecuteMachine_CompareEmitsSymbol(t *testing.T) {
	tests := []struct {
		name string
		a, b float64
		want float64
	}{
		{"less", 1, 2, -1},
		{"equal", 2, 2, 0},
		{"greater", 3, 2, 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			// GIVEN a state graph that routes lt/eq/gt into distinct r2 values
			reg := NewStateSerializer()
			start := reg.State("start")
			after := reg.State("after")
			start.AddTransition("go", Instruction{Op: OpCompare, A: 0, B: 1}, after)
			after.AddTransition(SymbolLess, Instruction{Op: OpLoadImm, Dst: 2, Imm: -1}, start)
			after.AddTransition(SymbolEqual, Instruction{Op: OpLoadImm, Dst: 2, Imm: 0}, start)
			after.AddTransition(SymbolGreater, Instruction{Op: OpLoadImm, Dst: 2, Imm: 1}, start)

			m := newExecuteMachine("test", start, testLogger())
			m.regs[0], m.regs[1] = tt.a, tt.b

			// WHEN the compare runs
			m.AcceptSymbol("go")

			// THEN the branch matching the comparison executed
			assert.Equal(t, tt.want, m.Register(2))
			assert.Equal(t, "start", m.State().Name())
		})
	}
}

func TestExecuteMachine_SelfTriggerQueuesBehindCurrentCascade(t *testing.T) {
	// GIVEN a transition that self-triggers "b" before its own sequence has
	// finished writing r1
	reg := NewStateSerializer()
	s0, s1, s2 := reg.State("s0"), reg.State("s1"), reg.State("s2")
	s0.AddTransition("a", Instruction{Op: OpSequence, Seq: []Instruction{
		{Op: OpSelfTrigger, Symbol: "b"},
		{Op: OpLoadImm, Dst: 1, Imm: 1},
	}}, s1)
	s1.AddTransition("b", Instruction{Op: OpMov, Dst: 2, A: 1}, s2)

	m := newExecuteMachine("test", s0, testLogger())

	// WHEN "a" is accepted
	m.AcceptSymbol("a")

	// THEN "b" dispatched only after the full cascade of "a", so it observed
	// r1 = 1. A recursive dispatch would have copied the stale zero.
	assert.Equal(t, 1.0, m.Register(2))
	assert.Equal(t, "s2", m.State().Name())
}

func TestExecuteMachine_UnknownSymbolIgnored(t *testing.T) {
	m := newExecuteMachine("test", loopState("s", map[string]Instruction{
		"go": {Op: OpLoadImm, Dst: 0, Imm: 1},
	}), testLogger())

	m.AcceptSymbol("unknown")

	assert.Equal(t, 0.0, m.Register(0))
	assert.Equal(t, "s", m.State().Name())
}

func TestExecuteMachine_UnsupportedOpPanics(t *testing.T) {
	// The bare core has no variant executor, so a variant op reaching it is
	// a transition-table wiring fault.
	m := newExecuteMachine("test", loopState("s", map[string]Instruction{
		"go": {Op: OpSetListen},
	}), testLogger())

	assert.Panics(t, func() { m.AcceptSymbol("go") })
}

func TestExecuteMachine_StateAdvancesBeforeInstructionRuns(t *testing.T) {
	// self_trigger resolves against the destination state, not the state the
	// triggering transition left.
	reg := NewStateSerializer()
	s0, s1 := reg.State("s0"), reg.State("s1")
	s0.AddTransition("go", Instruction{Op: OpSelfTrigger, Symbol: "again"}, s1)
	s0.AddTransition("again", Instruction{Op: OpLoadImm, Dst: 0, Imm: -1}, s0)
	s1.AddTransition("again", Instruction{Op: OpLoadImm, Dst: 0, Imm: 1}, s1)

	m := newExecuteMachine("test", s0, testLogger())
	m.AcceptSymbol("go")

	assert.Equal(t, 1.0, m.Register(0))
}
