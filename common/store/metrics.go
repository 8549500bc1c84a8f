package store

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics counts store activity. A nil *Metrics is valid and counts
// nothing.
type Metrics struct {
	Loads           prometheus.Counter
	Flushes         prometheus.Counter
	FlushFailures   prometheus.Counter
	DecryptFailures prometheus.Counter
}

// NewMetrics creates the store counters and registers them with reg.
// A nil reg leaves them unregistered.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		Loads: f.NewCounter(prometheus.CounterOpts{
			Namespace: "equinox",
			Subsystem: "secure_storage",
			Name:      "loads_total",
			Help:      "Number of stores loaded from their location.",
		}),
		Flushes: f.NewCounter(prometheus.CounterOpts{
			Namespace: "equinox",
			Subsystem: "secure_storage",
			Name:      "flushes_total",
			Help:      "Number of successful store flushes.",
		}),
		FlushFailures: f.NewCounter(prometheus.CounterOpts{
			Namespace: "equinox",
			Subsystem: "secure_storage",
			Name:      "flush_failures_total",
			Help:      "Number of failed store flushes.",
		}),
		DecryptFailures: f.NewCounter(prometheus.CounterOpts{
			Namespace: "equinox",
			Subsystem: "secure_storage",
			Name:      "decrypt_failures_total",
			Help:      "Number of encrypted values that failed to authenticate.",
		}),
	}
}

func (m *Metrics) loaded() {
	if m != nil {
		m.Loads.Inc()
	}
}

func (m *Metrics) flushed(ok bool) {
	switch {
	case m == nil:
	case ok:
		m.Flushes.Inc()
	default:
		m.FlushFailures.Inc()
	}
}

func (m *Metrics) decryptFailed() {
	if m != nil {
		m.DecryptFailures.Inc()
	}
}
