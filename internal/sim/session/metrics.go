package session

import (
	"errors"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics is a thread-safe read-only view of the session counters.
// It is updated from the loop goroutine and read from HTTP handlers/tests.
type Metrics struct {
	Tick uint64 `json:"tick"`

	Observers int `json:"observers"`
	Paused    int `json:"paused"`

	Pulses    uint64 `json:"pulses"`
	Renders   uint64 `json:"renders"`
	Skipped   uint64 `json:"skipped"`
	Clears    uint64 `json:"clears"`
	Applies   uint64 `json:"applies"`
	Rollbacks uint64 `json:"rollbacks"`
	Restores  uint64 `json:"restores"`
	Faults    uint64 `json:"faults"`
}

func (s *Session) Metrics() Metrics {
	if s == nil {
		return Metrics{}
	}
	v := s.metrics.Load()
	if v == nil {
		return Metrics{}
	}
	m, ok := v.(Metrics)
	if !ok {
		return Metrics{}
	}
	return m
}

type promSet struct {
	renders   prometheus.Counter
	skipped   prometheus.Counter
	clears    prometheus.Counter
	applies   prometheus.Counter
	rollbacks prometheus.Counter
	restores  prometheus.Counter
	faults    prometheus.Counter
	pulseSecs prometheus.Histogram
	observers prometheus.Gauge
	paused    prometheus.Gauge
}

func newPromSet(reg prometheus.Registerer) *promSet {
	counter := func(name, help string) prometheus.Counter {
		c := prometheus.NewCounter(prometheus.CounterOpts{Namespace: "voxelhud", Subsystem: "session", Name: name, Help: help})
		return register(reg, c).(prometheus.Counter)
	}
	gauge := func(name, help string) prometheus.Gauge {
		g := prometheus.NewGauge(prometheus.GaugeOpts{Namespace: "voxelhud", Subsystem: "session", Name: name, Help: help})
		return register(reg, g).(prometheus.Gauge)
	}
	h := prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: "voxelhud",
		Subsystem: "session",
		Name:      "pulse_seconds",
		Help:      "Time spent scanning all observers in one pulse.",
		Buckets:   prometheus.ExponentialBuckets(0.0001, 2, 12),
	})
	return &promSet{
		renders:   counter("renders_total", "Overlays presented after a signature change."),
		skipped:   counter("skipped_total", "Observations whose signature was unchanged."),
		clears:    counter("clears_total", "Overlays cleared because nothing was targeted."),
		applies:   counter("mirror_applies_total", "Successful inventory borrows."),
		rollbacks: counter("mirror_rollbacks_total", "Borrows rolled back."),
		restores:  counter("mirror_restores_total", "Borrow sessions restored."),
		faults:    counter("faults_total", "Per-observer pulse faults."),
		pulseSecs: register(reg, h).(prometheus.Histogram),
		observers: gauge("observers", "Joined observers."),
		paused:    gauge("paused_observers", "Observers with a paused HUD."),
	}
}

// register returns the collector already registered under the same name, so several sessions
// can share one registry.
func register(reg prometheus.Registerer, c prometheus.Collector) prometheus.Collector {
	if reg == nil {
		return c
	}
	if err := reg.Register(c); err != nil {
		var are prometheus.AlreadyRegisteredError
		if errors.As(err, &are) {
			return are.ExistingCollector
		}
		panic(err)
	}
	return c
}
