// Package metrics records placement runs as Prometheus metrics.
//
// The Recorder registers on a caller-supplied registerer so that runs can be exported
// from a short-lived CLI process (see the text exposition dump in cmd/placer) or served
// from a long-running one.
//
//	edge_placement_runs_total{algorithm}
//	edge_placement_failures_total{algorithm,reason}
//	edge_placement_duration_seconds{algorithm}
//	edge_placement_workload_imbalance{algorithm,k}
//	edge_placement_avg_delay_km{algorithm,k}
package metrics

import (
	"context"
	"errors"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/llm-d/llm-d-edge-placement/pkg/core"
)

const namespace = "edge_placement"

// Failure reasons
const (
	ReasonInfeasibleInput = "infeasible_input"
	ReasonSolverFailure   = "solver_failure"
	ReasonTimeout         = "timeout"
	ReasonOther           = "other"
)

// Recorder holds the placement metric vectors.
type Recorder struct {
	runs      *prometheus.CounterVec
	failures  *prometheus.CounterVec
	duration  *prometheus.HistogramVec
	imbalance *prometheus.GaugeVec
	delay     *prometheus.GaugeVec
}

// NewRecorder creates the metric vectors and registers them on reg.
func NewRecorder(reg prometheus.Registerer) (*Recorder, error) {
	r := &Recorder{
		runs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "runs_total",
			Help:      "Number of completed placement runs.",
		}, []string{"algorithm"}),
		failures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "failures_total",
			Help:      "Number of placement runs that produced no placement.",
		}, []string{"algorithm", "reason"}),
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "duration_seconds",
			Help:      "Wall-clock duration of placement runs.",
			Buckets:   prometheus.ExponentialBuckets(0.001, 4, 10),
		}, []string{"algorithm"}),
		imbalance: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "workload_imbalance",
			Help:      "Max minus min server workload of the latest placement.",
		}, []string{"algorithm", "k"}),
		delay: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "avg_delay_km",
			Help:      "Workload-weighted average distance to the assigned server of the latest placement.",
		}, []string{"algorithm", "k"}),
	}
	for _, c := range []prometheus.Collector{r.runs, r.failures, r.duration, r.imbalance, r.delay} {
		if err := reg.Register(c); err != nil {
			return nil, err
		}
	}
	return r, nil
}

// ObserveSuccess records a completed run.
func (r *Recorder) ObserveSuccess(algorithm string, k int, elapsed time.Duration, obj core.Objectives) {
	r.runs.WithLabelValues(algorithm).Inc()
	r.duration.WithLabelValues(algorithm).Observe(elapsed.Seconds())
	kl := strconv.Itoa(k)
	r.imbalance.WithLabelValues(algorithm, kl).Set(obj.WorkloadImbalance)
	r.delay.WithLabelValues(algorithm, kl).Set(obj.AverageDelay)
}

// ObserveFailure records a run that returned err.
func (r *Recorder) ObserveFailure(algorithm string, elapsed time.Duration, err error) {
	r.duration.WithLabelValues(algorithm).Observe(elapsed.Seconds())
	r.failures.WithLabelValues(algorithm, Reason(err)).Inc()
}

// Reason classifies a placement error into a failure label.
func Reason(err error) string {
	switch {
	case errors.Is(err, core.ErrInfeasibleInput):
		return ReasonInfeasibleInput
	case errors.Is(err, core.ErrSolverFailure):
		return ReasonSolverFailure
	case errors.Is(err, context.DeadlineExceeded):
		return ReasonTimeout
	default:
		return ReasonOther
	}
}
