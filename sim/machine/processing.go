package machine

import (
	"fmt"
	"strconv"

	"github.com/sirupsen/logrus"
)

// ProcessingMachine is the middle stage: it receives values from the input
// and output machines through the on_recv callbacks, holds the only
// addressable memory in the triplet, and decides what the output machine
// should do next.
type ProcessingMachine struct {
	*ExecuteMachine
	output *OutputMachine
	sink   *LineWriter
	mem    [MemorySize]float64
}

// NewProcessingMachine creates the processing stage wired to its output
// machine and the tag's log sink.
func NewProcessingMachine(init *State, output *OutputMachine, sink *LineWriter, log logrus.FieldLogger) *ProcessingMachine {
	m := &ProcessingMachine{
		ExecuteMachine: newExecuteMachine("processing", init, log),
		output:         output,
		sink:           sink,
	}
	m.exec = m
	return m
}

// OnRecvBit stores the bit in the receive register and triggers
// on_recv_bit.
func (m *ProcessingMachine) OnRecvBit(b bool) {
	if b {
		m.regs[recvRegister] = 1
	} else {
		m.regs[recvRegister] = 0
	}
	m.AcceptSymbol(SymbolRecvBit)
}

// OnRecvVoltage stores the voltage reading in the receive register and
// triggers on_recv_voltage. This is also the feedback loop's injection
// point.
func (m *ProcessingMachine) OnRecvVoltage(v float64) {
	m.regs[recvRegister] = v
	m.AcceptSymbol(SymbolRecvVoltage)
}

// OnRecvInt stores the value in the receive register and triggers
// on_recv_int.
func (m *ProcessingMachine) OnRecvInt(v float64) {
	m.regs[recvRegister] = v
	m.AcceptSymbol(SymbolRecvInt)
}

// OnQueueUp triggers on_queue_up, the output machine's resume signal.
func (m *ProcessingMachine) OnQueueUp() {
	m.AcceptSymbol(SymbolQueueUp)
}

// OnTransmission loads a bit pattern into memory starting at address 0,
// stores the pattern length in the receive register, and triggers
// on_transmission. The machine can then play the pattern back with
// load_mem.
func (m *ProcessingMachine) OnTransmission(bits []int) {
	if len(bits) > MemorySize {
		panic(fmt.Sprintf("machine %s: transmission of %d bits exceeds memory size %d", m.name, len(bits), MemorySize))
	}
	for i, b := range bits {
		m.mem[i] = float64(b)
	}
	m.regs[recvRegister] = float64(len(bits))
	m.AcceptSymbol(SymbolTransmission)
}

// Memory returns the value at memory address addr.
func (m *ProcessingMachine) Memory(addr int) float64 {
	return m.mem[addr]
}

func (m *ProcessingMachine) execute(in Instruction) bool {
	switch in.Op {
	case OpSendIntOut:
		m.output.OnRecvInt(m.regs[in.A])
	case OpSendIntLog:
		m.sink.Log(strconv.FormatFloat(m.regs[in.A], 'g', -1, 64))
	case OpStoreMemImm:
		m.mem[in.A] = in.Imm
	case OpLoadMem:
		addr := int(m.regs[in.A])
		if addr < 0 || addr >= MemorySize {
			panic(fmt.Sprintf("machine %s: load_mem address %d out of range [0,%d)", m.name, addr, MemorySize))
		}
		m.regs[in.Dst] = m.mem[addr]
	default:
		return false
	}
	return true
}
