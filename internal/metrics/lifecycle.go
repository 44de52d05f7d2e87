// Package metrics exposes scene lifecycle counters to Prometheus and mirrors
// the tick counter to an OpenTelemetry meter.
package metrics

import (
	"context"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
)

const namespace = "scened"

// Lifecycle collects activation and teardown statistics. A nil *Lifecycle
// is valid and records nothing.
type Lifecycle struct {
	activated   *prometheus.CounterVec
	failed      *prometheus.CounterVec
	destroyed   *prometheus.CounterVec
	active      prometheus.Gauge
	teardowns   prometheus.Gauge
	tickSeconds prometheus.Histogram
	ticks       metric.Int64Counter
}

// Option configures a Lifecycle.
type Option func(*options)

type options struct {
	meter metric.Meter
}

// WithMeter mirrors the tick counter to an OpenTelemetry meter.
func WithMeter(m metric.Meter) Option {
	return func(o *options) { o.meter = m }
}

// NewLifecycle creates the collectors and registers them on reg.
func NewLifecycle(reg prometheus.Registerer, opts ...Option) (*Lifecycle, error) {
	o := options{meter: noop.NewMeterProvider().Meter("scened")}
	for _, opt := range opts {
		opt(&o)
	}
	l := &Lifecycle{
		activated: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "components_activated_total",
			Help:      "Components that reached the active state.",
		}, []string{"type"}),
		failed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "component_activation_failures_total",
			Help:      "Components left activating after a failed activation.",
		}, []string{"type"}),
		destroyed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "components_destroyed_total",
			Help:      "Components released after teardown.",
		}, []string{"type"}),
		active: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "components_active",
			Help:      "Components currently active.",
		}),
		teardowns: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "teardowns_pending",
			Help:      "Deactivation batches waiting for async work.",
		}),
		tickSeconds: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "update_duration_seconds",
			Help:      "Duration of scene updates.",
			Buckets:   []float64{.0005, .001, .0025, .005, .01, .025, .05, .1},
		}),
	}
	for _, c := range []prometheus.Collector{l.activated, l.failed, l.destroyed, l.active, l.teardowns, l.tickSeconds} {
		if err := reg.Register(c); err != nil {
			return nil, err
		}
	}
	ticks, err := o.meter.Int64Counter("scened.ticks", metric.WithDescription("Scene updates run."))
	if err != nil {
		return nil, err
	}
	l.ticks = ticks
	return l, nil
}

func (l *Lifecycle) ComponentActivated(typ string) {
	if l == nil {
		return
	}
	l.activated.WithLabelValues(typ).Inc()
}

func (l *Lifecycle) ActivationFailed(typ string) {
	if l == nil {
		return
	}
	l.failed.WithLabelValues(typ).Inc()
}

func (l *Lifecycle) ComponentDestroyed(typ string) {
	if l == nil {
		return
	}
	l.destroyed.WithLabelValues(typ).Inc()
}

func (l *Lifecycle) SetActiveComponents(n int) {
	if l == nil {
		return
	}
	l.active.Set(float64(n))
}

func (l *Lifecycle) SetPendingTeardowns(n int) {
	if l == nil {
		return
	}
	l.teardowns.Set(float64(n))
}

// ObserveTick records one scene update.
func (l *Lifecycle) ObserveTick(d time.Duration) {
	if l == nil {
		return
	}
	l.tickSeconds.Observe(d.Seconds())
	l.ticks.Add(context.Background(), 1)
}
