package machine

import "sort"

// State is one node in a machine's transition graph, identified by name.
// Each transition maps an input symbol to the instruction to execute and
// the state to move to. States reference each other freely, so the graph
// may contain cycles; all State instances are owned by a StateSerializer
// and referenced by name everywhere else.
type State struct {
	name        string
	transitions map[string]transition
}

type transition struct {
	instr Instruction
	next  *State
}

// NewState creates an empty state. Most callers should go through
// StateSerializer.State instead so that equally named states are shared.
func NewState(name string) *State {
	return &State{
		name:        name,
		transitions: make(map[string]transition),
	}
}

// Name returns the state's identifying name.
func (s *State) Name() string {
	return s.name
}

// AddTransition registers the edge followed when symbol arrives in this
// state. A later call for the same symbol replaces the earlier edge.
func (s *State) AddTransition(symbol string, in Instruction, next *State) {
	s.transitions[symbol] = transition{instr: in, next: next}
}

// FollowSymbol looks up the edge for symbol. It is a pure lookup; the
// machine, not the state, tracks the current position.
func (s *State) FollowSymbol(symbol string) (Instruction, *State, bool) {
	t, ok := s.transitions[symbol]
	if !ok {
		return Instruction{}, nil, false
	}
	return t.instr, t.next, true
}

// Accepts reports whether the state has a transition for symbol.
func (s *State) Accepts(symbol string) bool {
	_, ok := s.transitions[symbol]
	return ok
}

// Symbols returns the state's transition symbols in sorted order, for
// deterministic export.
func (s *State) Symbols() []string {
	out := make([]string, 0, len(s.transitions))
	for sym := range s.transitions {
		out = append(out, sym)
	}
	sort.Strings(out)
	return out
}

// StateSerializer is the registry owning all State instances, keyed by
// name. Machines that reference the same state name share one State
// object, so a transition added to a named state is visible to every
// machine using it, and serialized size stays independent of the number
// of machines.
type StateSerializer struct {
	states map[string]*State
}

// NewStateSerializer creates an empty registry.
func NewStateSerializer() *StateSerializer {
	return &StateSerializer{states: make(map[string]*State)}
}

// State returns the state registered under name, creating it if absent.
func (r *StateSerializer) State(name string) *State {
	if s, ok := r.states[name]; ok {
		return s
	}
	s := NewState(name)
	r.states[name] = s
	return s
}

// Lookup returns the state registered under name, if any.
func (r *StateSerializer) Lookup(name string) (*State, bool) {
	s, ok := r.states[name]
	return s, ok
}

// Names returns all registered state names in sorted order.
func (r *StateSerializer) Names() []string {
	out := make([]string, 0, len(r.states))
	for name := range r.states {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

// Len returns the number of registered states.
func (r *StateSerializer) Len() int {
	return len(r.states)
}
