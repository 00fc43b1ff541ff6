// Package sim provides the discrete-event kernel of the tag2tag
// simulator: the event queue, the tag population, timers, the feedback
// loop, and the runtime events that drive a scenario.
//
// # Reading Guide
//
// Start with these three files to understand the kernel:
//   - simulator.go: the event queue, clock, and run loop
//   - tag.go: the Tag, the bridge between machines and physics
//   - events.go: externally scheduled domain events and their ordering
//
// # Architecture
//
// The sim package composes two leaf packages:
//   - sim/machine/: symbolic state machines and the instruction set
//   - sim/physics/: propagation, reflection, and the channel solver
//
// A Tag owns a machine triplet and implements machine.World for it,
// while also implementing physics.Reflector for the engine; the
// TagManager holds the population in a stable order and hands it to the
// engine whenever a voltage is needed. Timers and the feedback loop are
// queue entries like everything else, so a run is a single ordered
// stream of executions.
//
// Scenario parsing and persistence live in sim/scenario, which builds
// simulations through TagConfig, EventSpec, and the shared state arena.
package sim
