package observability

import (
	"context"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/aretw0/espalier/pkg/domain"
)

// Metrics exposes driver lifecycle activity as Prometheus collectors. One
// Metrics value serves any number of drivers; series are partitioned by
// program name.
type Metrics struct {
	dispatches  *prometheus.CounterVec
	drops       *prometheus.CounterVec
	sends       *prometheus.CounterVec
	branches    *prometheus.CounterVec
	branchEnds  *prometheus.CounterVec
	navigations *prometheus.CounterVec
	cursor      *prometheus.GaugeVec
}

// NewMetrics creates the collectors and registers them with reg. Pass
// prometheus.DefaultRegisterer to publish through the global registry.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		dispatches: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "espalier_dispatches_total",
			Help: "Events dispatched into a driver, including dropped ones.",
		}, []string{"program"}),
		drops: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "espalier_dropped_events_total",
			Help: "Events refused because the branch admission limit was reached.",
		}, []string{"program"}),
		sends: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "espalier_sends_total",
			Help: "Payloads forwarded to the sink.",
		}, []string{"program"}),
		branches: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "espalier_branches_total",
			Help: "History entries created by accepted events.",
		}, []string{"program"}),
		branchEnds: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "espalier_branch_ends_total",
			Help: "Branches that terminated instead of suspending, by outcome.",
		}, []string{"program", "outcome"}),
		navigations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "espalier_navigations_total",
			Help: "Cursor movements through history, by direction.",
		}, []string{"program", "direction"}),
		cursor: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "espalier_timeline_cursor",
			Help: "Cursor position after the most recent branch or navigation.",
		}, []string{"program"}),
	}
	reg.MustRegister(m.dispatches, m.drops, m.sends, m.branches, m.branchEnds, m.navigations, m.cursor)
	return m
}

// Hooks returns lifecycle hooks that feed the collectors, labeled with the
// given program name. Attach them with espalier.WithLifecycleHooks.
func (m *Metrics) Hooks(program string) domain.LifecycleHooks {
	return domain.LifecycleHooks{
		OnDispatch: func(ctx context.Context, e *domain.DispatchEvent) {
			m.dispatches.WithLabelValues(program).Inc()
		},
		OnDrop: func(ctx context.Context, e *domain.DispatchEvent) {
			m.drops.WithLabelValues(program).Inc()
		},
		OnSend: func(ctx context.Context, e *domain.SendEvent) {
			m.sends.WithLabelValues(program).Inc()
		},
		OnBranch: func(ctx context.Context, e *domain.BranchEvent) {
			m.branches.WithLabelValues(program).Inc()
			m.cursor.WithLabelValues(program).Set(float64(e.Index))
		},
		OnBranchEnd: func(ctx context.Context, e *domain.BranchEndEvent) {
			outcome := "completed"
			if e.Errored {
				outcome = "failed"
			}
			m.branchEnds.WithLabelValues(program, outcome).Inc()
		},
		OnNavigate: func(ctx context.Context, e *domain.NavigationEvent) {
			m.navigations.WithLabelValues(program, e.Direction).Inc()
			m.cursor.WithLabelValues(program).Set(float64(e.ToIndex))
		},
	}
}
