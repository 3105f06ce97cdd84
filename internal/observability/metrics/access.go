// Package metrics exposes Prometheus instruments for sign-in, profile resolution,
// routing decisions and HTTP traffic. A nil *Access is valid and records nothing.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	obserrors "github.com/target/lms-access/internal/observability/errors"
)

// Result labels.
const (
	ResultSuccess = "success"
	ResultError   = "error"
	ResultFound   = "found"
	ResultCreated = "created"
)

const namespace = "lms_access"

// Access holds every instrument the service emits.
type Access struct {
	registry *prometheus.Registry

	resolutions        *prometheus.CounterVec
	resolutionDuration prometheus.Histogram
	staleResolutions   prometheus.Counter
	decisions          *prometheus.CounterVec
	signIns            *prometheus.CounterVec
	roleChanges        *prometheus.CounterVec
	controllers        prometheus.Gauge
	httpRequests       *prometheus.CounterVec
	httpDuration       *prometheus.HistogramVec
}

// New creates the instruments and registers them on registry. A nil registry gets a
// fresh one.
func New(registry *prometheus.Registry) *Access {
	if registry == nil {
		registry = prometheus.NewRegistry()
	}
	m := &Access{
		registry: registry,
		resolutions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "profile_resolutions_total",
			Help:      "Profile resolutions by result.",
		}, []string{"result", "error_class"}),
		resolutionDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "profile_resolution_duration_seconds",
			Help:      "Profile resolution latency.",
			Buckets:   prometheus.DefBuckets,
		}),
		staleResolutions: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "stale_resolutions_total",
			Help:      "Resolutions discarded because a newer identity event arrived.",
		}),
		decisions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "route_decisions_total",
			Help:      "Route policy decisions by kind and reason.",
		}, []string{"kind", "reason"}),
		signIns: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sign_ins_total",
			Help:      "Sign-in attempts by method and result.",
		}, []string{"method", "result", "error_class"}),
		roleChanges: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "role_changes_total",
			Help:      "Role mutations by result.",
		}, []string{"result", "error_class"}),
		controllers: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "session_controllers",
			Help:      "Session controllers currently held by this replica.",
		}),
		httpRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "HTTP requests by route pattern and status.",
		}, []string{"method", "route", "status"}),
		httpDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request latency by route pattern.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", "route"}),
	}
	registry.MustRegister(
		m.resolutions,
		m.resolutionDuration,
		m.staleResolutions,
		m.decisions,
		m.signIns,
		m.roleChanges,
		m.controllers,
		m.httpRequests,
		m.httpDuration,
	)
	return m
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Access) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Registry returns the underlying registry.
func (m *Access) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

// ObserveResolution records one profile resolution.
func (m *Access) ObserveResolution(result string, d time.Duration, err error) {
	if m == nil {
		return
	}
	m.resolutions.WithLabelValues(result, obserrors.Classify(err)).Inc()
	m.resolutionDuration.Observe(d.Seconds())
}

// IncStaleResolution counts a discarded resolution.
func (m *Access) IncStaleResolution() {
	if m == nil {
		return
	}
	m.staleResolutions.Inc()
}

// ObserveDecision counts one route policy or guard decision.
func (m *Access) ObserveDecision(kind, reason string) {
	if m == nil {
		return
	}
	m.decisions.WithLabelValues(kind, reason).Inc()
}

// ObserveSignIn counts one sign-in attempt.
func (m *Access) ObserveSignIn(method string, err error) {
	if m == nil {
		return
	}
	result := ResultSuccess
	if err != nil {
		result = ResultError
	}
	m.signIns.WithLabelValues(method, result, obserrors.Classify(err)).Inc()
}

// ObserveRoleChange counts one setRole call.
func (m *Access) ObserveRoleChange(err error) {
	if m == nil {
		return
	}
	result := ResultSuccess
	if err != nil {
		result = ResultError
	}
	m.roleChanges.WithLabelValues(result, obserrors.Classify(err)).Inc()
}

// SetControllers reports the number of live session controllers.
func (m *Access) SetControllers(n int) {
	if m == nil {
		return
	}
	m.controllers.Set(float64(n))
}

// ObserveHTTP records one served request.
func (m *Access) ObserveHTTP(method, route string, status int, d time.Duration) {
	if m == nil {
		return
	}
	if route == "" {
		route = "unmatched"
	}
	m.httpRequests.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
	m.httpDuration.WithLabelValues(method, route).Observe(d.Seconds())
}
