package sim

// EventKind orders same-time queue entries: externally scheduled domain
// events run first, then machine timers, then the feedback tick, so a
// tick always observes the modes set by same-instant events.
type EventKind int

const (
	KindDomain EventKind = iota
	KindTimer
	KindFeedback
)

func (k EventKind) String() string {
	switch k {
	case KindDomain:
		return "domain"
	case KindTimer:
		return "timer"
	case KindFeedback:
		return "feedback"
	}
	return "unknown"
}

// Event is anything the run loop can schedule and execute: domain events,
// timer expirations, and feedback ticks all share one queue. Timestamp is
// absolute simulated time in seconds.
type Event interface {
	Timestamp() float64
	Kind() EventKind
	Execute(*Simulation)
}
