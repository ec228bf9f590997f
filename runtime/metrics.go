package runtime

import (
	"errors"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/wippyai/wasm-host/host"
)

// Metrics records host function calls made by guests.
type Metrics struct {
	calls    *prometheus.CounterVec
	duration *prometheus.HistogramVec
}

// NewMetrics creates the collectors and registers them on reg. Collectors
// already registered by an earlier builder are reused.
func NewMetrics(reg prometheus.Registerer) (*Metrics, error) {
	calls := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "host_calls_total",
			Help: "Number of host function calls made by guests.",
		},
		[]string{"module", "function", "status"},
	)
	duration := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "host_call_duration_seconds",
			Help:    "Time spent in host functions.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"module", "function"},
	)

	var err error
	if calls, err = register(reg, calls); err != nil {
		return nil, err
	}
	if duration, err = register(reg, duration); err != nil {
		return nil, err
	}
	return &Metrics{calls: calls, duration: duration}, nil
}

func register[C prometheus.Collector](reg prometheus.Registerer, c C) (C, error) {
	if err := reg.Register(c); err != nil {
		var are prometheus.AlreadyRegisteredError
		if errors.As(err, &are) {
			if existing, ok := are.ExistingCollector.(C); ok {
				return existing, nil
			}
		}
		return c, err
	}
	return c, nil
}

// Observe is a host.CallObserver.
func (m *Metrics) Observe(module, function string, elapsed time.Duration, status host.CallStatus) {
	m.calls.WithLabelValues(module, function, string(status)).Inc()
	m.duration.WithLabelValues(module, function).Observe(elapsed.Seconds())
}
