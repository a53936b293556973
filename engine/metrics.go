package engine

import (
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/samaelod/netimp/types"
)

// Metrics counts relay outcomes per direction. Each relay owns its own
// registry so several relays (and tests) can coexist in one process.
type Metrics struct {
	Registry *prometheus.Registry

	datagrams *prometheus.CounterVec
	bytes     *prometheus.CounterVec
	inFlight  prometheus.Gauge
	delays    *prometheus.HistogramVec

	counts   [2][types.NumOutcomes]atomic.Uint64
	unmarked atomic.Uint64
}

func NewMetrics() *Metrics {
	m := &Metrics{
		Registry: prometheus.NewRegistry(),

		datagrams: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "netimp_datagrams_total",
			Help: "Datagrams handled by the relay, by direction and outcome",
		}, []string{"direction", "outcome"}),

		bytes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "netimp_bytes_forwarded_total",
			Help: "Payload bytes sent on, immediately or after a delay",
		}, []string{"direction"}),

		inFlight: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "netimp_delayed_in_flight",
			Help: "Delayed sends waiting for their timer",
		}),

		delays: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "netimp_delay_seconds",
			Help:    "Injected delay per delayed datagram",
			Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5},
		}, []string{"direction"}),
	}

	m.Registry.MustRegister(m.datagrams, m.bytes, m.inFlight, m.delays)
	return m
}

func (m *Metrics) record(dir types.Direction, o types.Outcome) {
	if m == nil {
		return
	}
	m.datagrams.WithLabelValues(dir.String(), o.String()).Inc()
	m.counts[dir][o].Add(1)
}

func (m *Metrics) recordUnmarked() {
	if m == nil {
		return
	}
	m.datagrams.WithLabelValues("unknown", types.OutcomeUnmarked.String()).Inc()
	m.unmarked.Add(1)
}

func (m *Metrics) recordSent(dir types.Direction, n int) {
	if m == nil {
		return
	}
	m.bytes.WithLabelValues(dir.String()).Add(float64(n))
}

func (m *Metrics) recordDelay(dir types.Direction, d time.Duration) {
	if m == nil {
		return
	}
	m.delays.WithLabelValues(dir.String()).Observe(d.Seconds())
}

func (m *Metrics) setInFlight(n int64) {
	if m == nil {
		return
	}
	m.inFlight.Set(float64(n))
}

// Counts is a point-in-time copy of the outcome counters.
type Counts struct {
	ByDirection [2][types.NumOutcomes]uint64
	Unmarked    uint64 // discarded before classification
}

// Of returns the count for one direction and outcome.
func (c Counts) Of(dir types.Direction, o types.Outcome) uint64 {
	return c.ByDirection[dir][o]
}

func (m *Metrics) Counts() Counts {
	var c Counts
	if m == nil {
		return c
	}
	for d := range m.counts {
		for o := range m.counts[d] {
			c.ByDirection[d][o] = m.counts[d][o].Load()
		}
	}
	c.Unmarked = m.unmarked.Load()
	return c
}
