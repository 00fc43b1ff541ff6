package sim

import "github.com/sirupsen/logrus"

// ClockHook stamps every log entry with the current simulated time
// under the "t" field, so machine, physics, and event records line up
// on one timeline regardless of which logger emitted them.
type ClockHook struct {
	clock func() float64
}

// NewClockHook creates a hook reading time from clock, typically
// Simulation.Now.
func NewClockHook(clock func() float64) *ClockHook {
	return &ClockHook{clock: clock}
}

// Levels implements logrus.Hook.
func (h *ClockHook) Levels() []logrus.Level {
	return logrus.AllLevels
}

// Fire implements logrus.Hook.
func (h *ClockHook) Fire(e *logrus.Entry) error {
	e.Data["t"] = h.clock()
	return nil
}
