// Package runner implements the Plugin Runner: sequencing global and
// destination-scoped filters across the request and response phases,
// honouring short-circuit semantics (spec.md §4.4).
package runner

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/cardinal-rs/cardinal/internal/destination"
	"github.com/cardinal-rs/cardinal/internal/filter"
	"github.com/cardinal-rs/cardinal/internal/filterctx"
	"github.com/cardinal-rs/cardinal/internal/provider"
)

// Outcome is the result of running one phase's filter chain.
type Outcome int

const (
	Continue Outcome = iota
	Responded
	Fatal
)

// Runner sequences filter chains for both phases.
type Runner struct {
	container *provider.Container
	logger    *zap.Logger

	invocations *prometheus.CounterVec
	duration    *prometheus.HistogramVec
}

// New builds a Runner. container is passed through to every filter
// invocation per spec.md §4.4's "(session_view, backend, container)".
func New(container *provider.Container, logger *zap.Logger, reg prometheus.Registerer) *Runner {
	r := &Runner{
		container: container,
		logger:    logger,
		invocations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "cardinal_filter_invocations_total",
			Help: "Total filter invocations by name, phase, and outcome.",
		}, []string{"filter", "phase", "outcome"}),
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name: "cardinal_filter_duration_seconds",
			Help: "Filter invocation latency by name and phase.",
		}, []string{"filter", "phase"}),
	}
	if reg != nil {
		reg.MustRegister(r.invocations, r.duration)
	}
	return r
}

// RunRequestFilters runs global_request ⧺ destination.filters, in order,
// stopping at the first Responded. spec.md §4.4.
func (r *Runner) RunRequestFilters(ctx *filterctx.RequestContext, backend *destination.Destination, globalRequest []filter.Filter, destinationFilters []filter.Filter) Outcome {
	chain := append(append([]filter.Filter{}, globalRequest...), destinationFilters...)
	view := filterctx.NewSessionView(ctx, filterctx.Inbound)

	for _, f := range chain {
		outcome, err := r.invoke(f, view, backend, filterctx.Inbound)
		if err != nil {
			return Fatal
		}
		if outcome == filter.Responded {
			ctx.ShortCircuited = true
			return Responded
		}
	}
	return Continue
}

// RunResponseFilters runs destination.filters ⧺ global_response, in
// order, in full regardless of whether the request phase short-circuited
// (destination-scoped response filters may still need to finalise
// headers on a short-circuited response). spec.md §4.4.
func (r *Runner) RunResponseFilters(ctx *filterctx.RequestContext, backend *destination.Destination, destinationFilters []filter.Filter, globalResponse []filter.Filter) Outcome {
	chain := append(append([]filter.Filter{}, destinationFilters...), globalResponse...)
	view := filterctx.NewSessionView(ctx, filterctx.Outbound)

	for _, f := range chain {
		if _, err := r.invoke(f, view, backend, filterctx.Outbound); err != nil {
			return Fatal
		}
	}
	return Continue
}

func (r *Runner) invoke(f filter.Filter, view *filterctx.SessionView, backend *destination.Destination, phase filterctx.Phase) (filter.Outcome, error) {
	start := time.Now()
	outcome, err := f.Invoke(view, backend, r.container)
	elapsed := time.Since(start).Seconds()

	phaseLabel := "request"
	if phase == filterctx.Outbound {
		phaseLabel = "response"
	}
	outcomeLabel := "continue"
	if err != nil {
		outcomeLabel = "fatal"
	} else if outcome == filter.Responded {
		outcomeLabel = "responded"
	}

	r.invocations.WithLabelValues(f.Name(), phaseLabel, outcomeLabel).Inc()
	r.duration.WithLabelValues(f.Name(), phaseLabel).Observe(elapsed)

	if err != nil && r.logger != nil {
		r.logger.Warn("filter invocation failed",
			zap.String("filter", f.Name()),
			zap.String("phase", phaseLabel),
			zap.Error(err),
		)
	}
	return outcome, err
}
