package sim

import (
	"fmt"

	"github.com/ehn4602/tag2tag-simulator/sim/machine"
)

// Timers delivers delayed callbacks to machine timer acceptors through
// the event queue. Each owner has at most one live timer: setting a new
// one invalidates the previous. Cancellation is lazy, the queue entry
// stays put and fires as a no-op once its token is stale.
type Timers struct {
	sim    *Simulation
	tokens map[machine.TimerAcceptor]uint64
}

func newTimers(s *Simulation) *Timers {
	return &Timers{
		sim:    s,
		tokens: make(map[machine.TimerAcceptor]uint64),
	}
}

// SetTimer schedules acceptor.OnTimer delay seconds from now. A zero
// delay fires at the current time, after whatever entry is executing.
// Negative delays are a programming error in the machine program.
func (t *Timers) SetTimer(acceptor machine.TimerAcceptor, delay float64) {
	if !(delay >= 0) {
		panic(fmt.Sprintf("timer delay must be non-negative, got %v", delay))
	}
	tok := t.tokens[acceptor] + 1
	t.tokens[acceptor] = tok
	t.sim.Schedule(&timerEvent{
		at:       t.sim.Clock + delay,
		acceptor: acceptor,
		token:    tok,
	})
	t.sim.Metrics.TimersSet.Add(1)
}

// Cancel invalidates the owner's pending timer, if any. The queue entry
// is left in place and discarded when it surfaces.
func (t *Timers) Cancel(acceptor machine.TimerAcceptor) {
	if _, ok := t.tokens[acceptor]; !ok {
		return
	}
	t.tokens[acceptor]++
}

// timerEvent is the queue entry backing a SetTimer call. It fires only
// if its token still matches the owner's latest.
type timerEvent struct {
	at       float64
	acceptor machine.TimerAcceptor
	token    uint64
}

func (e *timerEvent) Timestamp() float64 { return e.at }
func (e *timerEvent) Kind() EventKind    { return KindTimer }

func (e *timerEvent) Execute(s *Simulation) {
	if s.Timers.tokens[e.acceptor] != e.token {
		s.Metrics.TimersStale.Add(1)
		return
	}
	s.Metrics.TimersFired.Add(1)
	e.acceptor.OnTimer()
}
