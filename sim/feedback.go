package sim

import "github.com/sirupsen/logrus"

// FeedbackLoop periodically samples the channel at every tag and injects
// the readings into the processing machines. It is the mechanism by
// which tags overhear each other without polling on their own timers.
type FeedbackLoop struct {
	manager  *TagManager
	interval float64
	log      logrus.FieldLogger
}

// NewFeedbackLoop creates the loop. A non-positive interval disables it.
func NewFeedbackLoop(manager *TagManager, interval float64, log logrus.FieldLogger) *FeedbackLoop {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &FeedbackLoop{
		manager:  manager,
		interval: interval,
		log:      log,
	}
}

// Enabled reports whether ticks will be scheduled.
func (f *FeedbackLoop) Enabled() bool { return f.interval > 0 }

// Interval returns the tick period in seconds.
func (f *FeedbackLoop) Interval() float64 { return f.interval }

func (f *FeedbackLoop) firstTick() *feedbackTick {
	return &feedbackTick{at: f.interval, n: 1}
}

// Step runs one tick: compute every tag's voltage under the current
// channel state, then deliver the readings. All voltages are computed
// before any injection so that a machine reacting to its reading cannot
// perturb what its neighbors observe within the same tick.
func (f *FeedbackLoop) Step(s *Simulation) {
	tags := f.manager.Tags()
	volts := make([]float64, len(tags))
	for i, tag := range tags {
		volts[i] = f.manager.ReceivedVoltage(tag)
	}
	for i, tag := range tags {
		tag.Machine().Processing().OnRecvVoltage(volts[i])
	}
	s.Metrics.FeedbackTicks.Add(1)
	f.log.WithField("tags", len(tags)).Debug("feedback tick")
}

// feedbackTick is the self-rescheduling queue entry driving the loop.
// Tick n fires at n*interval, multiplied out each time so the grid never
// accumulates float drift.
type feedbackTick struct {
	at float64
	n  uint64
}

func (e *feedbackTick) Timestamp() float64 { return e.at }
func (e *feedbackTick) Kind() EventKind    { return KindFeedback }

func (e *feedbackTick) Execute(s *Simulation) {
	s.Feedback.Step(s)
	next := float64(e.n+1) * s.Feedback.interval
	if next <= s.Horizon {
		s.Schedule(&feedbackTick{at: next, n: e.n + 1})
	}
}
