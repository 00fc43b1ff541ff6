// Package machine implements the symbolic state machines that drive tag
// behavior: a small register interpreter fed by named symbols, specialized
// into input, processing, and output variants that together form one tag's
// virtual CPU.
package machine

import (
	"fmt"
	"math"

	"github.com/sirupsen/logrus"
)

const (
	// NumRegisters is the size of each machine's register file.
	NumRegisters = 8
	// MemorySize is the size of the processing machine's addressable memory.
	MemorySize = 64

	// recvRegister is the register cross-machine receivers write into
	// before triggering their symbol.
	recvRegister = 7
)

// Symbols delivered to machines by the surrounding simulation and by
// cross-machine signalling. Transition tables reference these by name;
// compare additionally emits SymbolLess/SymbolEqual/SymbolGreater.
const (
	SymbolInit         = "init"
	SymbolTimer        = "on_timer"
	SymbolRecvBit      = "on_recv_bit"
	SymbolRecvVoltage  = "on_recv_voltage"
	SymbolRecvInt      = "on_recv_int"
	SymbolQueueUp      = "on_queue_up"
	SymbolTransmission = "on_transmission"

	SymbolLess    = "lt"
	SymbolEqual   = "eq"
	SymbolGreater = "gt"
)

// TimerScheduler schedules delayed wakeups for machines. Setting a timer
// for an acceptor that already has one pending replaces the pending timer.
type TimerScheduler interface {
	SetTimer(acceptor TimerAcceptor, delay float64)
}

// TimerAcceptor receives timer expirations set through a TimerScheduler.
type TimerAcceptor interface {
	OnTimer()
}

// World is the surface a machine acts on: reading the envelope detector
// and switching the owning tag's antenna. Bound after construction, before
// the machine runs.
type World interface {
	ReadVoltage() float64
	SetAntenna(index int)
	SetListen()
}

// instrExecutor handles the ops specific to one machine variant. execute
// reports false for ops the variant does not implement.
type instrExecutor interface {
	execute(in Instruction) bool
}

// ExecuteMachine is the interpreter core shared by all machine variants:
// current state, register file, and the pending-symbol queue. Registers
// change only inside instruction handlers during symbol dispatch.
type ExecuteMachine struct {
	name  string
	state *State
	init  *State
	regs  [NumRegisters]float64

	// queue holds symbols waiting to be dispatched. Re-entrant
	// AcceptSymbol calls append here; only the outermost call drains,
	// so each symbol's cascade completes before the next symbol starts.
	queue    []string
	draining bool

	world World
	exec  instrExecutor
	log   logrus.FieldLogger
}

func newExecuteMachine(name string, init *State, log logrus.FieldLogger) *ExecuteMachine {
	return &ExecuteMachine{
		name:  name,
		state: init,
		init:  init,
		log:   log.WithField("machine", name),
	}
}

// Name returns the machine's name ("input", "processing", or "output").
func (m *ExecuteMachine) Name() string {
	return m.name
}

// State returns the machine's current state.
func (m *ExecuteMachine) State() *State {
	return m.state
}

// InitState returns the state the machine was constructed with.
func (m *ExecuteMachine) InitState() *State {
	return m.init
}

// Register returns the value of register r.
func (m *ExecuteMachine) Register(r int) float64 {
	return m.regs[r]
}

// Bind attaches the machine to its tag's world surface. Must happen before
// the machine accepts any symbol.
func (m *ExecuteMachine) Bind(world World) {
	m.world = world
}

// Prepare starts the machine by delivering the init symbol. Machines whose
// initial state has no init transition ignore it.
func (m *ExecuteMachine) Prepare() {
	m.AcceptSymbol(SymbolInit)
}

// AcceptSymbol delivers one input symbol. Symbols arriving while a dispatch
// is already in progress are queued and processed in FIFO order once the
// in-progress symbol's cascade has completed; a symbol with no transition
// in the current state is ignored.
func (m *ExecuteMachine) AcceptSymbol(symbol string) {
	m.queue = append(m.queue, symbol)
	if m.draining {
		return
	}
	m.draining = true
	defer func() { m.draining = false }()

	for len(m.queue) > 0 {
		sym := m.queue[0]
		m.queue = m.queue[1:]

		in, next, ok := m.state.FollowSymbol(sym)
		if !ok {
			m.log.Debugf("symbol %q ignored in state %q", sym, m.state.Name())
			continue
		}
		m.log.Debugf("symbol %q: %q -> %q", sym, m.state.Name(), next.Name())
		m.state = next
		m.run(in)
	}
}

// run executes one instruction against the register file, delegating
// variant-specific ops to the concrete machine. An op the variant does not
// implement is a wiring fault in the transition tables and fails fast.
func (m *ExecuteMachine) run(in Instruction) {
	m.log.Debugf("exec %s", in)
	switch in.Op {
	case OpMov:
		m.regs[in.Dst] = m.regs[in.A]
	case OpLoadImm:
		m.regs[in.Dst] = in.Imm
	case OpAdd:
		m.regs[in.Dst] = m.regs[in.A] + m.regs[in.B]
	case OpSub:
		m.regs[in.Dst] = m.regs[in.A] - m.regs[in.B]
	case OpFloor:
		// Integer cast semantics: truncation toward zero.
		m.regs[in.A] = math.Trunc(m.regs[in.A])
	case OpAbs:
		m.regs[in.A] = math.Abs(m.regs[in.A])
	case OpCompare:
		a, b := m.regs[in.A], m.regs[in.B]
		switch {
		case a < b:
			m.AcceptSymbol(SymbolLess)
		case a == b:
			m.AcceptSymbol(SymbolEqual)
		default:
			m.AcceptSymbol(SymbolGreater)
		}
	case OpSelfTrigger:
		m.AcceptSymbol(in.Symbol)
	case OpSequence:
		for _, sub := range in.Seq {
			m.run(sub)
		}
	default:
		if m.exec == nil || !m.exec.execute(in) {
			panic(fmt.Sprintf("machine %s: instruction %s not supported", m.name, in.Op))
		}
	}
}
