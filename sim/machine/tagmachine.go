package machine

import "github.com/sirupsen/logrus"

// InitStates holds the initial state of each machine in a triplet.
type InitStates struct {
	Input      *State
	Processing *State
	Output     *State
}

// TagMachine composes the three machines that make up one tag's logic,
// wired input -> processing -> output, sharing one timer scheduler and one
// log sink.
type TagMachine struct {
	input      *InputMachine
	processing *ProcessingMachine
	output     *OutputMachine
}

// NewTagMachine builds a machine triplet from initial states. The output
// machine is constructed first so the processing machine can reference it,
// then the back-reference for queue_processing is closed.
func NewTagMachine(init InitStates, timer TimerScheduler, log logrus.FieldLogger, sink *LineWriter) *TagMachine {
	output := NewOutputMachine(init.Output, timer, log)
	processing := NewProcessingMachine(init.Processing, output, sink, log)
	output.processing = processing
	input := NewInputMachine(init.Input, timer, processing, log)
	return &TagMachine{
		input:      input,
		processing: processing,
		output:     output,
	}
}

// Bind attaches all three machines to the tag's world surface. Must be
// called after construction, before Prepare.
func (tm *TagMachine) Bind(world World) {
	tm.input.Bind(world)
	tm.processing.Bind(world)
	tm.output.Bind(world)
}

// Prepare delivers the init symbol to every machine. The output machine
// initializes first: the antenna must be in a defined setting before any
// voltage read can mean anything.
func (tm *TagMachine) Prepare() {
	tm.output.Prepare()
	tm.processing.Prepare()
	tm.input.Prepare()
}

// Input returns the input machine.
func (tm *TagMachine) Input() *InputMachine {
	return tm.input
}

// Processing returns the processing machine.
func (tm *TagMachine) Processing() *ProcessingMachine {
	return tm.processing
}

// Output returns the output machine.
func (tm *TagMachine) Output() *OutputMachine {
	return tm.output
}

// InitStateNames returns the three machines' initial state names, the
// persistent form of a machine triplet. Reconstruction resolves the names
// through a shared StateSerializer.
func (tm *TagMachine) InitStateNames() (input, processing, output string) {
	return tm.input.InitState().Name(), tm.processing.InitState().Name(), tm.output.InitState().Name()
}
