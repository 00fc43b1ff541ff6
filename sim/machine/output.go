package machine

import "github.com/sirupsen/logrus"

// OutputMachine is the stage controlling the tag's antenna. set_antenna and
// set_listen are the only paths by which machine logic changes a tag's RF
// behavior.
type OutputMachine struct {
	*ExecuteMachine
	timer TimerScheduler
	// processing is set during TagMachine wiring; the two stages
	// reference each other.
	processing *ProcessingMachine
}

// NewOutputMachine creates the output stage. Its processing back-reference
// is wired by NewTagMachine once the processing machine exists.
func NewOutputMachine(init *State, timer TimerScheduler, log logrus.FieldLogger) *OutputMachine {
	m := &OutputMachine{
		ExecuteMachine: newExecuteMachine("output", init, log),
		timer:          timer,
	}
	m.exec = m
	return m
}

// OnRecvInt stores the value from the processing machine in the receive
// register and triggers on_recv_int.
func (m *OutputMachine) OnRecvInt(v float64) {
	m.regs[recvRegister] = v
	m.AcceptSymbol(SymbolRecvInt)
}

// OnTimer delivers a timer expiration set by this machine.
func (m *OutputMachine) OnTimer() {
	m.AcceptSymbol(SymbolTimer)
}

func (m *OutputMachine) execute(in Instruction) bool {
	switch in.Op {
	case OpSetAntenna:
		m.world.SetAntenna(int(m.regs[in.A]))
	case OpSetListen:
		m.world.SetListen()
	case OpSetTimer:
		m.timer.SetTimer(m, m.regs[in.A])
	case OpQueueProcessing:
		m.processing.OnQueueUp()
	default:
		return false
	}
	return true
}
