// Package metrics records per-run counters and writes them in the Prometheus
// textfile format for node_exporter collection.
package metrics

import (
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "lvdash"

// Recorder holds the collectors for a single CLI invocation.
type Recorder struct {
	registry *prometheus.Registry

	items       *prometheus.CounterVec
	runs        *prometheus.CounterVec
	duration    *prometheus.GaugeVec
	lastSuccess *prometheus.GaugeVec
}

// NewRecorder registers collectors on a fresh registry.
func NewRecorder() *Recorder {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)
	return &Recorder{
		registry: reg,
		items: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "items_total",
			Help:      "Dashboards or files processed, by command, environment and result.",
		}, []string{"command", "environment", "result"}),
		runs: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "runs_total",
			Help:      "Command runs by outcome.",
		}, []string{"command", "environment", "outcome"}),
		duration: factory.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "run_duration_seconds",
			Help:      "Wall time of the last run.",
		}, []string{"command", "environment"}),
		lastSuccess: factory.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "last_success_timestamp_seconds",
			Help:      "Unix time of the last successful run.",
		}, []string{"command", "environment"}),
	}
}

// AddItems counts n processed items with the given result label.
func (r *Recorder) AddItems(command, environment, result string, n int) {
	if n <= 0 {
		return
	}
	r.items.WithLabelValues(command, environment, result).Add(float64(n))
}

// ObserveRun records the outcome and duration of a run.
func (r *Recorder) ObserveRun(command, environment string, started, finished time.Time, err error) {
	outcome := "success"
	if err != nil {
		outcome = "failure"
	}
	r.runs.WithLabelValues(command, environment, outcome).Inc()
	r.duration.WithLabelValues(command, environment).Set(finished.Sub(started).Seconds())
	if err == nil {
		r.lastSuccess.WithLabelValues(command, environment).Set(float64(finished.Unix()))
	}
}

// WriteTextfile atomically writes all metrics to path.
func (r *Recorder) WriteTextfile(path string) error {
	if err := prometheus.WriteToTextfile(path, r.registry); err != nil {
		return fmt.Errorf("write metrics textfile %s: %w", path, err)
	}
	return nil
}
