// Package metrics exports engine activity as Prometheus metrics.
package metrics

import (
	"context"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/petrijr/credflow/pkg/api"
)

const namespace = "credflow"

// PrometheusObserver implements api.Observer with Prometheus collectors
// registered on its own registry.
type PrometheusObserver struct {
	registry *prometheus.Registry

	runsStarted    *prometheus.CounterVec
	runsFinished   *prometheus.CounterVec
	runsInFlight   prometheus.Gauge
	actionsTotal   *prometheus.CounterVec
	actionDuration *prometheus.HistogramVec
}

var _ api.Observer = (*PrometheusObserver)(nil)

// NewPrometheusObserver creates the collectors and registers them, together
// with the Go runtime and process collectors, on a fresh registry.
func NewPrometheusObserver() *PrometheusObserver {
	o := &PrometheusObserver{
		registry: prometheus.NewRegistry(),
		runsStarted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "runs_started_total",
			Help:      "Workflow runs started, by tenant.",
		}, []string{"tenant"}),
		runsFinished: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "runs_finished_total",
			Help:      "Workflow runs finished, by tenant and final state.",
		}, []string{"tenant", "state"}),
		runsInFlight: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "runs_in_flight",
			Help:      "Workflow runs currently executing.",
		}),
		actionsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "actions_total",
			Help:      "Actions executed, by action type and result.",
		}, []string{"action_type", "result"}),
		actionDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "action_duration_seconds",
			Help:      "Action handler latency.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"action_type"}),
	}
	o.registry.MustRegister(
		o.runsStarted,
		o.runsFinished,
		o.runsInFlight,
		o.actionsTotal,
		o.actionDuration,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return o
}

// Registry exposes the underlying registry, e.g. for additional collectors.
func (o *PrometheusObserver) Registry() *prometheus.Registry {
	return o.registry
}

// Handler serves the registry in the Prometheus text format.
func (o *PrometheusObserver) Handler() http.Handler {
	return promhttp.HandlerFor(o.registry, promhttp.HandlerOpts{})
}

func (o *PrometheusObserver) OnRunStart(ctx context.Context, out *api.WorkflowOutcome) {
	o.runsStarted.WithLabelValues(out.TenantID).Inc()
	o.runsInFlight.Inc()
}

func (o *PrometheusObserver) OnRunSucceeded(ctx context.Context, out *api.WorkflowOutcome) {
	o.runsFinished.WithLabelValues(out.TenantID, string(api.WorkflowSuccess)).Inc()
	o.runsInFlight.Dec()
}

// OnRunFailed also fires for runs aborted by cancellation, which end without
// a terminal write; they are counted under their last known state.
func (o *PrometheusObserver) OnRunFailed(ctx context.Context, out *api.WorkflowOutcome, err error) {
	o.runsFinished.WithLabelValues(out.TenantID, string(out.State)).Inc()
	o.runsInFlight.Dec()
}

func (o *PrometheusObserver) OnActionStart(ctx context.Context, out *api.WorkflowOutcome, id string, t api.ActionType, idx int) {
}

func (o *PrometheusObserver) OnActionCompleted(ctx context.Context, out *api.WorkflowOutcome, id string, t api.ActionType, idx int, err error, d time.Duration) {
	result := "success"
	if err != nil {
		result = "failure"
	}
	o.actionsTotal.WithLabelValues(string(t), result).Inc()
	o.actionDuration.WithLabelValues(string(t)).Observe(d.Seconds())
}
