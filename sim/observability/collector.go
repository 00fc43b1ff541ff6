// Package observability exposes the simulation's activity counters to
// Prometheus. The collector reads the sim.Metrics atomics at scrape
// time, which is the only cross-goroutine read the single-threaded
// kernel permits.
package observability

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"

	"github.com/ehn4602/tag2tag-simulator/sim"
)

// Collector bridges sim.Metrics into the Prometheus exposition format.
// It implements prometheus.Collector by snapshotting the counters on
// every scrape rather than mirroring them into registered metric
// objects, so the run loop never touches Prometheus types.
type Collector struct {
	metrics *sim.Metrics

	eventsDispatched *prometheus.Desc
	timersSet        *prometheus.Desc
	timersFired      *prometheus.Desc
	timersStale      *prometheus.Desc
	feedbackTicks    *prometheus.Desc
	modeChanges      *prometheus.Desc
}

// NewCollector creates a collector over the given metrics.
func NewCollector(m *sim.Metrics) *Collector {
	return &Collector{
		metrics: m,
		eventsDispatched: prometheus.NewDesc(
			"sim_events_dispatched_total",
			"Queue entries executed, across domain events, timers, and feedback ticks.",
			nil, nil),
		timersSet: prometheus.NewDesc(
			"sim_timers_set_total",
			"Timer scheduling calls.",
			nil, nil),
		timersFired: prometheus.NewDesc(
			"sim_timers_fired_total",
			"Timer callbacks delivered.",
			nil, nil),
		timersStale: prometheus.NewDesc(
			"sim_timers_superseded_total",
			"Timer entries discarded because a newer timer replaced them.",
			nil, nil),
		feedbackTicks: prometheus.NewDesc(
			"sim_feedback_ticks_total",
			"Feedback loop steps executed.",
			nil, nil),
		modeChanges: prometheus.NewDesc(
			"sim_mode_changes_total",
			"Tag reflection mode switches.",
			nil, nil),
	}
}

// Describe implements prometheus.Collector.
func (c *Collector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.eventsDispatched
	ch <- c.timersSet
	ch <- c.timersFired
	ch <- c.timersStale
	ch <- c.feedbackTicks
	ch <- c.modeChanges
}

// Collect implements prometheus.Collector.
func (c *Collector) Collect(ch chan<- prometheus.Metric) {
	counter := func(desc *prometheus.Desc, v int64) prometheus.Metric {
		return prometheus.MustNewConstMetric(desc, prometheus.CounterValue, float64(v))
	}
	ch <- counter(c.eventsDispatched, c.metrics.EventsDispatched.Load())
	ch <- counter(c.timersSet, c.metrics.TimersSet.Load())
	ch <- counter(c.timersFired, c.metrics.TimersFired.Load())
	ch <- counter(c.timersStale, c.metrics.TimersStale.Load())
	ch <- counter(c.feedbackTicks, c.metrics.FeedbackTicks.Load())
	ch <- counter(c.modeChanges, c.metrics.ModeChanges.Load())
}

// Handler returns an HTTP handler serving the collector's metrics on a
// private registry, so repeated runs in one process never collide.
func Handler(c *Collector) (http.Handler, error) {
	reg := prometheus.NewRegistry()
	if err := reg.Register(c); err != nil {
		return nil, err
	}
	return promhttp.HandlerFor(reg, promhttp.HandlerOpts{}), nil
}

// Serve exposes /metrics on addr in a background goroutine. The server
// lives for the rest of the process; the simulation does not wait for
// scrapes.
func Serve(addr string, c *Collector, log logrus.FieldLogger) error {
	handler, err := Handler(c)
	if err != nil {
		return err
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", handler)
	go func() {
		if err := http.ListenAndServe(addr, mux); err != nil {
			log.WithError(err).Error("metrics listener stopped")
		}
	}()
	log.Infof("serving metrics on %s/metrics", addr)
	return nil
}
