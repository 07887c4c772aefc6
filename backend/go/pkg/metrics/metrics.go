// Package metrics provides Prometheus metrics for the conversation service
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics for the conversation service
type Metrics struct {
	registry *prometheus.Registry

	// HTTP request metrics
	HTTPRequestsTotal   *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec

	// Planner metrics
	ActionsTotal     *prometheus.CounterVec
	TasksTotal       *prometheus.CounterVec
	WorkflowsTotal   *prometheus.CounterVec
	GenerateDuration *prometheus.HistogramVec
	RunsStarted      prometheus.Counter
}

// New creates and registers all metrics on a private registry.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	factory := promauto.With(reg)

	return &Metrics{
		registry: reg,
		HTTPRequestsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "geocms_http_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"method", "route", "status"},
		),
		HTTPRequestDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "geocms_http_request_duration_seconds",
				Help:    "Duration of HTTP requests in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method", "route"},
		),
		ActionsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "geocms_planner_actions_total",
				Help: "Total number of next actions decided, by action kind",
			},
			[]string{"action"},
		),
		TasksTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "geocms_planner_tasks_total",
				Help: "Total number of task transitions",
			},
			[]string{"type", "status"},
		),
		WorkflowsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "geocms_planner_workflows_total",
				Help: "Total number of workflow executions",
			},
			[]string{"workflow", "status"},
		),
		GenerateDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "geocms_generate_duration_seconds",
				Help:    "Duration of content generation calls in seconds",
				Buckets: []float64{.01, .05, .1, .25, .5, 1, 2.5, 5, 10, 30, 60},
			},
			[]string{"page_type", "status"},
		),
		RunsStarted: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "geocms_runs_started_total",
				Help: "Total number of conversation runs started",
			},
		),
	}
}

// Registry exposes the underlying registry for tests.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler returns the /metrics HTTP handler.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// RecordHTTPRequest records an HTTP request.
func (m *Metrics) RecordHTTPRequest(method, route, status string, duration time.Duration) {
	if m == nil {
		return
	}
	m.HTTPRequestsTotal.WithLabelValues(method, route, status).Inc()
	m.HTTPRequestDuration.WithLabelValues(method, route).Observe(duration.Seconds())
}

// RecordAction records a decided next action.
func (m *Metrics) RecordAction(action string) {
	if m == nil {
		return
	}
	m.ActionsTotal.WithLabelValues(action).Inc()
}

// RecordTask records a task transition.
func (m *Metrics) RecordTask(taskType, status string) {
	if m == nil {
		return
	}
	m.TasksTotal.WithLabelValues(taskType, status).Inc()
}

// RecordWorkflow records a workflow outcome.
func (m *Metrics) RecordWorkflow(workflow, status string) {
	if m == nil {
		return
	}
	m.WorkflowsTotal.WithLabelValues(workflow, status).Inc()
}

// RecordGenerate records one generator call.
func (m *Metrics) RecordGenerate(pageType, status string, duration time.Duration) {
	if m == nil {
		return
	}
	m.GenerateDuration.WithLabelValues(pageType, status).Observe(duration.Seconds())
}

// RunStarted counts a newly started run.
func (m *Metrics) RunStarted() {
	if m == nil {
		return
	}
	m.RunsStarted.Inc()
}
