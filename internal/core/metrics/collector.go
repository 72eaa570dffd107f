// Package metrics exposes engine and RPC activity as Prometheus metrics.
//
// Metrics:
//   - scorekeeper_evaluations_total{outcome}
//   - scorekeeper_evaluation_duration_seconds
//   - scorekeeper_formula_applications_total{kind,outcome}
//   - scorekeeper_diagnostics_total{severity}
//   - scorekeeper_rpc_requests_total{method,code}
package metrics

import (
	"context"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"google.golang.org/grpc"
	"google.golang.org/grpc/status"

	"github.com/solatis/scorekeeper/internal/rules"
)

const namespace = "scorekeeper"

// Collector implements rules.Observer on a private registry.
type Collector struct {
	registry *prometheus.Registry

	evaluations  *prometheus.CounterVec
	duration     prometheus.Histogram
	applications *prometheus.CounterVec
	diagnostics  *prometheus.CounterVec
	rpcs         *prometheus.CounterVec
}

var _ rules.Observer = (*Collector)(nil)

// NewCollector creates and registers all metrics. A nil registry gets a fresh one.
func NewCollector(registry *prometheus.Registry) *Collector {
	if registry == nil {
		registry = prometheus.NewRegistry()
	}

	c := &Collector{
		registry: registry,
		evaluations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "evaluations_total",
			Help:      "Pipeline evaluations by outcome.",
		}, []string{"outcome"}),
		duration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "evaluation_duration_seconds",
			Help:      "Duration of a full pipeline evaluation in seconds.",
			Buckets:   prometheus.ExponentialBuckets(0.00001, 2, 16), // 10µs to ~330ms
		}),
		applications: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "formula_applications_total",
			Help:      "Formula applications by kind and outcome.",
		}, []string{"kind", "outcome"}),
		diagnostics: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "diagnostics_total",
			Help:      "Validation diagnostics reported at engine creation, by severity.",
		}, []string{"severity"}),
		rpcs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "rpc_requests_total",
			Help:      "gRPC requests by method and status code.",
		}, []string{"method", "code"}),
	}

	registry.MustRegister(c.evaluations, c.duration, c.applications, c.diagnostics, c.rpcs)
	return c
}

func outcome(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}

// ObserveDiagnostics implements rules.Observer.
func (c *Collector) ObserveDiagnostics(diags []rules.Diagnostic) {
	for _, d := range diags {
		c.diagnostics.WithLabelValues(d.Severity.String()).Inc()
	}
}

// ObserveFormula implements rules.Observer.
func (c *Collector) ObserveFormula(kind rules.Kind, err error) {
	c.applications.WithLabelValues(string(kind), outcome(err)).Inc()
}

// ObserveEvaluation implements rules.Observer.
func (c *Collector) ObserveEvaluation(d time.Duration, err error) {
	c.evaluations.WithLabelValues(outcome(err)).Inc()
	c.duration.Observe(d.Seconds())
}

// UnaryInterceptor counts RPCs by full method name and status code.
func (c *Collector) UnaryInterceptor() grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
		resp, err := handler(ctx, req)
		c.rpcs.WithLabelValues(info.FullMethod, status.Code(err).String()).Inc()
		return resp, err
	}
}

// Handler returns the scrape endpoint for this collector's registry.
func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{
		EnableOpenMetrics: true,
		ErrorHandling:     promhttp.ContinueOnError,
	})
}
