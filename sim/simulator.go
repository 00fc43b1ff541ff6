// sim/simulator.go
package sim

import (
	"container/heap"
	"fmt"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/ehn4602/tag2tag-simulator/sim/machine"
	"github.com/ehn4602/tag2tag-simulator/sim/physics"
)

// queueEntry pairs an event with its admission sequence number so that
// simultaneous entries of the same kind dispatch in scheduling order.
type queueEntry struct {
	ev  Event
	seq uint64
}

// EventQueue implements heap.Interface and orders events by timestamp,
// then kind, then admission order. Kind ordering guarantees that at any
// instant externally scheduled events run before machine timers, and
// timers before the feedback tick.
// See canonical Golang example here: https://pkg.go.dev/container/heap#example-package-IntHeap
type EventQueue []queueEntry

func (eq EventQueue) Len() int { return len(eq) }

func (eq EventQueue) Less(i, j int) bool {
	a, b := eq[i], eq[j]
	if a.ev.Timestamp() != b.ev.Timestamp() {
		return a.ev.Timestamp() < b.ev.Timestamp()
	}
	if a.ev.Kind() != b.ev.Kind() {
		return a.ev.Kind() < b.ev.Kind()
	}
	return a.seq < b.seq
}

func (eq EventQueue) Swap(i, j int) { eq[i], eq[j] = eq[j], eq[i] }

func (eq *EventQueue) Push(x any) {
	*eq = append(*eq, x.(queueEntry))
}

func (eq *EventQueue) Pop() any {
	old := *eq
	n := len(old)
	item := old[n-1]
	*eq = old[0 : n-1]
	return item
}

// Simulation is the core object that holds simulated time, the tag
// population, and the event loop. Time is a float64 in seconds starting
// at zero.
type Simulation struct {
	ID      string
	Clock   float64
	Horizon float64
	// EventQueue holds every pending entry: domain events, machine
	// timer expirations, and feedback ticks.
	EventQueue EventQueue
	Manager    *TagManager
	Timers     *Timers
	Feedback   *FeedbackLoop
	Metrics    *Metrics
	// States is the shared state-machine arena. Loaders intern states
	// here; runtime tag_add events resolve their initial states from it.
	States *machine.StateSerializer
	// Defaults supplies RF parameters for tags that do not override them.
	Defaults TagDefaults

	cfg         Config
	rng         *PartitionedRNG
	log         logrus.FieldLogger
	seq         uint64
	events      []DomainEvent
	pendingAdds map[string]*TagAddEvent
	sinks       []*machine.LineWriter
	running     bool
}

// NewSimulation validates cfg and assembles an empty simulation around
// the given exciter. Tags and events are added afterwards, then Run
// drives the loop until the horizon.
func NewSimulation(cfg Config, exciter *physics.Exciter, log logrus.FieldLogger) (*Simulation, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if exciter == nil {
		return nil, fmt.Errorf("simulation requires an exciter")
	}
	if log == nil {
		log = logrus.StandardLogger()
	}

	rng := NewPartitionedRNG(NewSimulationKey(cfg.Seed))
	engine := physics.NewEngine(exciter, cfg.physicsConfig(), rng.ForSubsystem(SubsystemPhysicsNoise), log)

	s := &Simulation{
		ID:         uuid.NewString(),
		Clock:      0,
		Horizon:    cfg.Horizon,
		EventQueue: make(EventQueue, 0),
		Metrics:    NewMetrics(),
		States:     machine.NewStateSerializer(),
		cfg:        cfg,
		rng:        rng,
		log:        log,
	}
	s.Manager = NewTagManager(engine, log)
	s.Timers = newTimers(s)
	s.Feedback = NewFeedbackLoop(s.Manager, cfg.FeedbackInterval, log)
	return s, nil
}

// Now returns the current simulated time. It is safe to capture as a
// clock source, e.g. for the logging hook.
func (s *Simulation) Now() float64 { return s.Clock }

// Config returns the validated configuration the simulation was built
// from.
func (s *Simulation) Config() Config { return s.cfg }

// Schedule pushes an event into the queue. Admission order is recorded
// so that ties in time and kind resolve deterministically.
func (s *Simulation) Schedule(ev Event) {
	s.seq++
	heap.Push(&s.EventQueue, queueEntry{ev: ev, seq: s.seq})
}

// AddTag constructs a tag with its three machines, binds them to the
// simulation, and registers it with the manager. Setup-time tags are
// prepared by Run; tags added while the simulation is running are
// prepared immediately.
func (s *Simulation) AddTag(tc TagConfig) (*Tag, error) {
	if err := tc.validate(); err != nil {
		return nil, err
	}
	tagLog := s.log.WithField("tag", tc.Name)
	sink := machine.NewLineWriter(tagLog)
	tm := machine.NewTagMachine(tc.Machines, s.Timers, tagLog, sink)

	tag := &Tag{
		name:           tc.Name,
		pos:            tc.Position,
		gain:           tc.Gain,
		impedance:      tc.Impedance,
		frequency:      tc.Frequency,
		powerThreshold: tc.PowerThresholdDBm,
		chips:          tc.ChipImpedances,
		mode:           tc.InitialMode,
		machine:        tm,
		metrics:        s.Metrics,
		log:            tagLog,
	}
	tm.Bind(tag)
	if err := s.Manager.Add(tag); err != nil {
		return nil, err
	}
	tag.manager = s.Manager
	s.sinks = append(s.sinks, sink)
	if s.running {
		tag.Prepare()
	}
	return tag, nil
}

// AddEvents queues domain events for dispatch. Ordering across the
// whole set is fixed during Run, so call order does not matter.
func (s *Simulation) AddEvents(events ...DomainEvent) {
	s.events = append(s.events, events...)
}

// pendingAdd reports the tag_add event that will create the named tag,
// if one is queued. Prepare passes use it to accept references to tags
// that only exist later in simulated time.
func (s *Simulation) pendingAdd(name string) (*TagAddEvent, bool) {
	add, ok := s.pendingAdds[name]
	return add, ok
}

// DomainEvents returns the queued domain events in their deterministic
// dispatch order. The slice is a copy; the events are shared.
func (s *Simulation) DomainEvents() []DomainEvent {
	out := make([]DomainEvent, len(s.events))
	copy(out, s.events)
	SortDomainEvents(out)
	return out
}

// ValidateEvents runs the load-time resolution pass over every queued
// event without starting machines or advancing time. Run performs the
// same pass; this surface lets a configuration be checked on its own.
func (s *Simulation) ValidateEvents() error {
	return s.resolveEvents()
}

// resolveEvents fixes event order and resolves every event's references
// against the loaded population. Event Prepare methods are idempotent,
// so the pass may run more than once.
func (s *Simulation) resolveEvents() error {
	SortDomainEvents(s.events)

	s.pendingAdds = make(map[string]*TagAddEvent)
	for _, ev := range s.events {
		add, ok := ev.(*TagAddEvent)
		if !ok {
			continue
		}
		if _, exists := s.Manager.ByName(add.TagName()); exists {
			return fmt.Errorf("%s: tag %q already exists", add.Spec(), add.TagName())
		}
		if _, dup := s.pendingAdds[add.TagName()]; dup {
			return fmt.Errorf("%s: duplicate tag_add for %q", add.Spec(), add.TagName())
		}
		s.pendingAdds[add.TagName()] = add
	}

	for _, ev := range s.events {
		if err := ev.Prepare(s); err != nil {
			return err
		}
	}
	return nil
}

// prepare resolves every queued event against the loaded population,
// starts every tag machine, and seeds the queue. Any failure surfaces
// here, before simulated time advances.
func (s *Simulation) prepare() error {
	if err := s.resolveEvents(); err != nil {
		return err
	}

	// Machines start in stable name order. Init transitions may read
	// voltages and set timers, so the population must be complete first.
	for _, tag := range s.Manager.Tags() {
		tag.Prepare()
	}

	for _, ev := range s.events {
		s.Schedule(ev)
	}
	if s.Feedback.Enabled() {
		s.Schedule(s.Feedback.firstTick())
	}
	s.running = true
	return nil
}

// Run prepares the simulation and dispatches events in order until the
// queue drains or an event beyond the horizon comes up. Entries exactly
// at the horizon still execute.
func (s *Simulation) Run() error {
	if err := s.prepare(); err != nil {
		return err
	}
	s.log.WithFields(logrus.Fields{
		"run":  s.ID,
		"tags": s.Manager.Len(),
	}).Infof("simulation starting, horizon %gs", s.Horizon)

	for s.EventQueue.Len() > 0 {
		// get the next event to be simulated
		entry := heap.Pop(&s.EventQueue).(queueEntry)
		if entry.ev.Timestamp() > s.Horizon {
			break
		}
		// advance the clock
		s.Clock = entry.ev.Timestamp()
		if ev, ok := entry.ev.(DomainEvent); ok {
			s.log.WithField("event_type", ev.Type()).Info("event dispatched")
		} else {
			s.log.Debugf("executing %T", entry.ev)
		}
		// process the event
		entry.ev.Execute(s)
		s.Metrics.EventsDispatched.Add(1)
	}

	for _, sink := range s.sinks {
		sink.Flush()
	}
	s.log.Infof("simulation ended at t=%g", s.Clock)
	return nil
}
