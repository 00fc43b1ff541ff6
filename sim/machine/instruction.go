package machine

import (
	"fmt"
	"math"
	"strings"
)

// OpCode identifies one instruction kind. The set is closed: configuration
// input selects ops by name and anything outside this set is rejected at
// parse time.
type OpCode int

const (
	OpInvalid OpCode = iota

	// Common ops, available on every machine.
	OpMov
	OpLoadImm
	OpAdd
	OpSub
	OpFloor
	OpAbs
	OpCompare
	OpSelfTrigger
	OpSequence

	// Input machine ops.
	OpSetTimer
	OpSaveVoltage
	OpSendBit
	OpSendInt
	OpForwardVoltage

	// Processing machine ops.
	OpSendIntOut
	OpSendIntLog
	OpStoreMemImm
	OpLoadMem

	// Output machine ops. OpSetTimer is shared with the input machine.
	OpSetAntenna
	OpSetListen
	OpQueueProcessing
)

// opNames maps each OpCode to its configuration-file name.
var opNames = map[OpCode]string{
	OpMov:             "mov",
	OpLoadImm:         "load_imm",
	OpAdd:             "add",
	OpSub:             "sub",
	OpFloor:           "floor",
	OpAbs:             "abs",
	OpCompare:         "compare",
	OpSelfTrigger:     "self_trigger",
	OpSequence:        "sequence",
	OpSetTimer:        "set_timer",
	OpSaveVoltage:     "save_voltage",
	OpSendBit:         "send_bit",
	OpSendInt:         "send_int",
	OpForwardVoltage:  "forward_voltage",
	OpSendIntOut:      "send_int_out",
	OpSendIntLog:      "send_int_log",
	OpStoreMemImm:     "store_mem_imm",
	OpLoadMem:         "load_mem",
	OpSetAntenna:      "set_antenna",
	OpSetListen:       "set_listen",
	OpQueueProcessing: "queue_processing",
}

// opsByName is the reverse of opNames, built once at init.
var opsByName = func() map[string]OpCode {
	m := make(map[string]OpCode, len(opNames))
	for op, name := range opNames {
		m[name] = op
	}
	return m
}()

func (op OpCode) String() string {
	if name, ok := opNames[op]; ok {
		return name
	}
	return "invalid"
}

// Instruction is one decoded machine instruction. Which fields are
// meaningful depends on Op: register operands live in Dst/A/B, immediates in
// Imm, a symbol name in Symbol, and a nested instruction list in Seq (only
// for OpSequence).
type Instruction struct {
	Op     OpCode
	Dst    int
	A      int
	B      int
	Imm    float64
	Symbol string
	Seq    []Instruction
}

// String renders the instruction roughly the way it appears in
// configuration input, for logs and error messages.
func (in Instruction) String() string {
	switch in.Op {
	case OpMov:
		return fmt.Sprintf("mov r%d, r%d", in.Dst, in.A)
	case OpLoadImm:
		return fmt.Sprintf("load_imm r%d, %v", in.Dst, in.Imm)
	case OpAdd, OpSub:
		return fmt.Sprintf("%s r%d, r%d, r%d", in.Op, in.Dst, in.A, in.B)
	case OpFloor, OpAbs:
		return fmt.Sprintf("%s r%d", in.Op, in.A)
	case OpCompare:
		return fmt.Sprintf("compare r%d, r%d", in.A, in.B)
	case OpSelfTrigger:
		return fmt.Sprintf("self_trigger %q", in.Symbol)
	case OpSequence:
		parts := make([]string, len(in.Seq))
		for i, sub := range in.Seq {
			parts[i] = sub.String()
		}
		return "sequence[" + strings.Join(parts, "; ") + "]"
	case OpSetTimer, OpSendBit, OpSendInt, OpSendIntOut, OpSendIntLog, OpSetAntenna:
		return fmt.Sprintf("%s r%d", in.Op, in.A)
	case OpSaveVoltage:
		return fmt.Sprintf("save_voltage r%d", in.Dst)
	case OpStoreMemImm:
		return fmt.Sprintf("store_mem_imm [%d], %v", in.A, in.Imm)
	case OpLoadMem:
		return fmt.Sprintf("load_mem r%d, [r%d]", in.Dst, in.A)
	case OpForwardVoltage, OpSetListen, OpQueueProcessing:
		return in.Op.String()
	}
	return "invalid"
}

// ParseInstruction decodes one instruction from its configuration form: an
// array whose first element is the op name and whose remaining elements are
// the op's arguments. Numbers arrive as float64 (JSON), register and memory
// operands must be integral and in range. Unknown op names and malformed
// arguments are configuration errors.
func ParseInstruction(raw []any) (Instruction, error) {
	if len(raw) == 0 {
		return Instruction{}, fmt.Errorf("instruction: empty array")
	}
	name, ok := raw[0].(string)
	if !ok {
		return Instruction{}, fmt.Errorf("instruction: op name must be a string, got %T", raw[0])
	}
	op, ok := opsByName[name]
	if !ok {
		return Instruction{}, fmt.Errorf("unknown instruction %q", name)
	}

	args := raw[1:]
	in := Instruction{Op: op}
	var err error
	switch op {
	case OpMov:
		if err = wantArgs(name, args, 2); err != nil {
			return in, err
		}
		if in.Dst, err = regArg(name, args, 0); err != nil {
			return in, err
		}
		in.A, err = regArg(name, args, 1)
	case OpLoadImm:
		if err = wantArgs(name, args, 2); err != nil {
			return in, err
		}
		if in.Dst, err = regArg(name, args, 0); err != nil {
			return in, err
		}
		in.Imm, err = numArg(name, args, 1)
	case OpAdd, OpSub:
		if err = wantArgs(name, args, 3); err != nil {
			return in, err
		}
		if in.Dst, err = regArg(name, args, 0); err != nil {
			return in, err
		}
		if in.A, err = regArg(name, args, 1); err != nil {
			return in, err
		}
		in.B, err = regArg(name, args, 2)
	case OpFloor, OpAbs:
		if err = wantArgs(name, args, 1); err != nil {
			return in, err
		}
		in.A, err = regArg(name, args, 0)
	case OpCompare:
		if err = wantArgs(name, args, 2); err != nil {
			return in, err
		}
		if in.A, err = regArg(name, args, 0); err != nil {
			return in, err
		}
		in.B, err = regArg(name, args, 1)
	case OpSelfTrigger:
		if err = wantArgs(name, args, 1); err != nil {
			return in, err
		}
		in.Symbol, err = strArg(name, args, 0)
	case OpSequence:
		in.Seq = make([]Instruction, 0, len(args))
		for i, sub := range args {
			arr, ok := sub.([]any)
			if !ok {
				return in, fmt.Errorf("sequence: element %d must be an instruction array, got %T", i, sub)
			}
			parsed, err := ParseInstruction(arr)
			if err != nil {
				return in, fmt.Errorf("sequence element %d: %w", i, err)
			}
			in.Seq = append(in.Seq, parsed)
		}
	case OpSetTimer, OpSendBit, OpSendInt, OpSendIntOut, OpSendIntLog, OpSetAntenna:
		if err = wantArgs(name, args, 1); err != nil {
			return in, err
		}
		in.A, err = regArg(name, args, 0)
	case OpSaveVoltage:
		if err = wantArgs(name, args, 1); err != nil {
			return in, err
		}
		in.Dst, err = regArg(name, args, 0)
	case OpStoreMemImm:
		if err = wantArgs(name, args, 2); err != nil {
			return in, err
		}
		if in.A, err = memArg(name, args, 0); err != nil {
			return in, err
		}
		in.Imm, err = numArg(name, args, 1)
	case OpLoadMem:
		if err = wantArgs(name, args, 2); err != nil {
			return in, err
		}
		if in.Dst, err = regArg(name, args, 0); err != nil {
			return in, err
		}
		in.A, err = regArg(name, args, 1)
	case OpForwardVoltage, OpSetListen, OpQueueProcessing:
		err = wantArgs(name, args, 0)
	}
	if err != nil {
		return Instruction{}, err
	}
	return in, nil
}

// Encode converts the instruction back into its configuration form, the
// exact inverse of ParseInstruction. Numeric arguments are emitted as
// float64 so a parse/encode round trip is stable under JSON decoding.
func (in Instruction) Encode() []any {
	name := in.Op.String()
	switch in.Op {
	case OpMov:
		return []any{name, float64(in.Dst), float64(in.A)}
	case OpLoadImm:
		return []any{name, float64(in.Dst), in.Imm}
	case OpAdd, OpSub:
		return []any{name, float64(in.Dst), float64(in.A), float64(in.B)}
	case OpFloor, OpAbs, OpCompare:
		if in.Op == OpCompare {
			return []any{name, float64(in.A), float64(in.B)}
		}
		return []any{name, float64(in.A)}
	case OpSelfTrigger:
		return []any{name, in.Symbol}
	case OpSequence:
		out := make([]any, 1, len(in.Seq)+1)
		out[0] = name
		for _, sub := range in.Seq {
			out = append(out, sub.Encode())
		}
		return out
	case OpSetTimer, OpSendBit, OpSendInt, OpSendIntOut, OpSendIntLog, OpSetAntenna:
		return []any{name, float64(in.A)}
	case OpSaveVoltage:
		return []any{name, float64(in.Dst)}
	case OpStoreMemImm:
		return []any{name, float64(in.A), in.Imm}
	case OpLoadMem:
		return []any{name, float64(in.Dst), float64(in.A)}
	}
	return []any{name}
}

func wantArgs(name string, args []any, n int) error {
	if len(args) != n {
		return fmt.Errorf("instruction %q: want %d argument(s), got %d", name, n, len(args))
	}
	return nil
}

func numArg(name string, args []any, idx int) (float64, error) {
	v, ok := args[idx].(float64)
	if !ok {
		return 0, fmt.Errorf("instruction %q: argument %d must be a number, got %v (%T)", name, idx, args[idx], args[idx])
	}
	return v, nil
}

func strArg(name string, args []any, idx int) (string, error) {
	s, ok := args[idx].(string)
	if !ok {
		return "", fmt.Errorf("instruction %q: argument %d must be a string, got %v (%T)", name, idx, args[idx], args[idx])
	}
	return s, nil
}

func intArg(name string, args []any, idx int) (int, error) {
	v, err := numArg(name, args, idx)
	if err != nil {
		return 0, err
	}
	if v != math.Trunc(v) {
		return 0, fmt.Errorf("instruction %q: argument %d must be an integer, got %v", name, idx, v)
	}
	return int(v), nil
}

func regArg(name string, args []any, idx int) (int, error) {
	r, err := intArg(name, args, idx)
	if err != nil {
		return 0, err
	}
	if r < 0 || r >= NumRegisters {
		return 0, fmt.Errorf("instruction %q: register argument %d out of range [0,%d)", name, r, NumRegisters)
	}
	return r, nil
}

func memArg(name string, args []any, idx int) (int, error) {
	a, err := intArg(name, args, idx)
	if err != nil {
		return 0, err
	}
	if a < 0 || a >= MemorySize {
		return 0, fmt.Errorf("instruction %q: memory address %d out of range [0,%d)", name, a, MemorySize)
	}
	return a, nil
}
