package machine

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestStateSerializer_SharesStatesByName(t *testing.T) {
	reg := NewStateSerializer()

	a := reg.State("idle")
	b := reg.State("idle")
	if a != b {
		t.Fatalf("expected the same State instance for repeated name")
	}

	// A transition added through one reference is visible through the other.
	next := reg.State("armed")
	a.AddTransition("go", Instruction{Op: OpSetListen}, next)
	in, got, ok := b.FollowSymbol("go")
	assert.True(t, ok)
	assert.Equal(t, OpSetListen, in.Op)
	assert.Equal(t, "armed", got.Name())
}

func TestState_FollowSymbolMissing(t *testing.T) {
	s := NewState("idle")
	_, _, ok := s.FollowSymbol("nope")
	assert.False(t, ok)
	assert.False(t, s.Accepts("nope"))
}

func TestState_CyclicGraph(t *testing.T) {
	// GIVEN two states transitioning into each other
	reg := NewStateSerializer()
	ping := reg.State("ping")
	pong := reg.State("pong")
	ping.AddTransition("tick", Instruction{Op: OpAbs, A: 0}, pong)
	pong.AddTransition("tick", Instruction{Op: OpAbs, A: 0}, ping)

	// WHEN following the cycle
	_, s1, _ := ping.FollowSymbol("tick")
	_, s2, _ := s1.FollowSymbol("tick")

	// THEN the graph loops back to the original instance
	assert.Equal(t, pong, s1)
	assert.Equal(t, ping, s2)
}

func TestStateSerializer_NamesSorted(t *testing.T) {
	reg := NewStateSerializer()
	reg.State("zeta")
	reg.State("alpha")
	reg.State("mid")
	assert.Equal(t, []string{"alpha", "mid", "zeta"}, reg.Names())
	assert.Equal(t, 3, reg.Len())
}

func TestState_SymbolsSorted(t *testing.T) {
	s := NewState("s")
	s.AddTransition("on_timer", Instruction{Op: OpSetListen}, s)
	s.AddTransition("init", Instruction{Op: OpSetListen}, s)
	assert.Equal(t, []string{"init", "on_timer"}, s.Symbols())
}
