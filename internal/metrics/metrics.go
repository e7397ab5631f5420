// Package metrics provides Cardinal's shared Prometheus registry and the
// proxy-host-level counters that sit alongside the Plugin Runner's
// per-filter metrics (internal/runner). This is a thin direct wrapper
// around client_golang rather than the teacher's full pluggable
// driver/provider abstraction (internal/metrics/driver/prometheus/...),
// which is considerably more machinery than this repo's scope justifies;
// see DESIGN.md.
package metrics

import "github.com/prometheus/client_golang/prometheus"

// Registry bundles the process-wide Prometheus registerer and the
// request-level counters the proxy host updates directly.
type Registry struct {
	Registerer *prometheus.Registry

	RequestsTotal  *prometheus.CounterVec
	NoBackendTotal *prometheus.CounterVec
}

// New builds a fresh registry with Cardinal's proxy-level metrics
// registered, ready to be passed to internal/runner.New as well.
func New() *Registry {
	reg := prometheus.NewRegistry()

	r := &Registry{
		Registerer: reg,
		RequestsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "cardinal_requests_total",
			Help: "Total requests handled by the proxy host, by destination and status class.",
		}, []string{"destination", "status_class"}),
		NoBackendTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "cardinal_no_backend_total",
			Help: "Requests for which no backend could be resolved, by reason.",
		}, []string{"reason"}),
	}
	reg.MustRegister(r.RequestsTotal, r.NoBackendTotal)
	return r
}
