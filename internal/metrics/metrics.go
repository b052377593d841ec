// Package metrics exposes Prometheus instrumentation for the scan pipeline.
// A nil *Metrics is valid and records nothing.
package metrics

import (
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "sos"

// OutcomeSucceeded labels successful runs; failures use their error category
const OutcomeSucceeded = "succeeded"

type Metrics struct {
	scans           *prometheus.CounterVec
	analysisLatency prometheus.Histogram
	cameraHandles   prometheus.Gauge
	lateResponses   prometheus.Counter
}

// New creates the collectors and registers them with reg
func New(reg prometheus.Registerer) (*Metrics, error) {
	m := &Metrics{
		scans: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "scans_total",
			Help:      "Completed pipeline runs by outcome.",
		}, []string{"outcome"}),
		analysisLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "analysis_duration_seconds",
			Help:      "Wall-clock latency of model calls.",
			Buckets:   []float64{0.5, 1, 2, 4, 8, 16, 32, 64},
		}),
		cameraHandles: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "camera_handles_open",
			Help:      "Camera handles currently held.",
		}),
		lateResponses: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "late_responses_discarded_total",
			Help:      "Model responses dropped because their run was restarted or closed.",
		}),
	}

	for _, c := range []prometheus.Collector{m.scans, m.analysisLatency, m.cameraHandles, m.lateResponses} {
		if err := reg.Register(c); err != nil {
			return nil, fmt.Errorf("failed to register collector: %w", err)
		}
	}
	return m, nil
}

func (m *Metrics) ObserveOutcome(outcome string) {
	if m == nil {
		return
	}
	m.scans.WithLabelValues(outcome).Inc()
}

func (m *Metrics) ObserveAnalysis(d time.Duration) {
	if m == nil {
		return
	}
	m.analysisLatency.Observe(d.Seconds())
}

func (m *Metrics) CameraOpened() {
	if m == nil {
		return
	}
	m.cameraHandles.Inc()
}

func (m *Metrics) CameraReleased() {
	if m == nil {
		return
	}
	m.cameraHandles.Dec()
}

func (m *Metrics) LateResponseDiscarded() {
	if m == nil {
		return
	}
	m.lateResponses.Inc()
}
