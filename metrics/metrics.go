// Package metrics instruments the frame router with Prometheus collectors
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Router holds the collectors for a viewer.Router and implements viewer.Observer
type Router struct {
	grabbed   prometheus.Counter
	emitted   *prometheus.CounterVec
	failed    *prometheus.CounterVec
	g         prometheus.Gauge
	inference prometheus.Histogram
}

// NewRouter creates the collectors and registers them with reg
func NewRouter(reg prometheus.Registerer) (*Router, error) {
	r := &Router{
		grabbed: prometheus.NewCounter(prometheus.CounterOpts{
			Subsystem: "pinem",
			Name:      "frames_grabbed_total",
			Help:      "Number of times the router was invoked.",
		}),
		emitted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Subsystem: "pinem",
			Name:      "exports_total",
			Help:      "Exports sent to the display, by channel.",
		}, []string{"channel"}),
		failed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Subsystem: "pinem",
			Name:      "emission_failures_total",
			Help:      "Dropped emissions, by failure kind.",
		}, []string{"kind"}),
		g: prometheus.NewGauge(prometheus.GaugeOpts{
			Subsystem: "pinem",
			Name:      "g_value",
			Help:      "Most recent predicted coupling strength g.",
		}),
		inference: prometheus.NewHistogram(prometheus.HistogramOpts{
			Subsystem: "pinem",
			Name:      "inference_seconds",
			Help:      "Time spent in the predictor.",
			Buckets:   prometheus.ExponentialBuckets(0.0005, 2, 14),
		}),
	}
	for _, c := range []prometheus.Collector{r.grabbed, r.emitted, r.failed, r.g, r.inference} {
		if err := reg.Register(c); err != nil {
			return nil, err
		}
	}
	return r, nil
}

// Grabbed implements viewer.Observer
func (r *Router) Grabbed() {
	r.grabbed.Inc()
}

// Emitted implements viewer.Observer
func (r *Router) Emitted(channel string) {
	r.emitted.WithLabelValues(channel).Inc()
}

// Failed implements viewer.Observer
func (r *Router) Failed(kind string) {
	r.failed.WithLabelValues(kind).Inc()
}

// Predicted implements viewer.Observer
func (r *Router) Predicted(g float64, took time.Duration) {
	r.g.Set(g)
	r.inference.Observe(took.Seconds())
}
