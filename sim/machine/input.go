package machine

import "github.com/sirupsen/logrus"

// InputMachine is the stage facing the envelope detector. It samples
// voltage on timer wakeups and forwards readings, bits, or integers to the
// processing machine.
type InputMachine struct {
	*ExecuteMachine
	timer      TimerScheduler
	processing *ProcessingMachine
}

// NewInputMachine creates the input stage wired to its processing machine.
func NewInputMachine(init *State, timer TimerScheduler, processing *ProcessingMachine, log logrus.FieldLogger) *InputMachine {
	m := &InputMachine{
		ExecuteMachine: newExecuteMachine("input", init, log),
		timer:          timer,
		processing:     processing,
	}
	m.exec = m
	return m
}

// OnTimer delivers a timer expiration set by this machine.
func (m *InputMachine) OnTimer() {
	m.AcceptSymbol(SymbolTimer)
}

func (m *InputMachine) execute(in Instruction) bool {
	switch in.Op {
	case OpSetTimer:
		m.timer.SetTimer(m, m.regs[in.A])
	case OpSaveVoltage:
		m.regs[in.Dst] = m.world.ReadVoltage()
	case OpSendBit:
		m.processing.OnRecvBit(m.regs[in.A] != 0)
	case OpSendInt:
		m.processing.OnRecvInt(m.regs[in.A])
	case OpForwardVoltage:
		m.processing.OnRecvVoltage(m.world.ReadVoltage())
	default:
		return false
	}
	return true
}
