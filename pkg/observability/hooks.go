package observability

import (
	"context"

	"log/slog"

	"github.com/aretw0/espalier/pkg/domain"
)

// MergeHooks combines several hook sets into one. Every registered callback
// fires, in argument order, so metrics, logging and streaming consumers can
// share a single driver.
func MergeHooks(sets ...domain.LifecycleHooks) domain.LifecycleHooks {
	var out domain.LifecycleHooks
	for _, set := range sets {
		out = domain.LifecycleHooks{
			OnDispatch:  chain(out.OnDispatch, set.OnDispatch),
			OnDrop:      chain(out.OnDrop, set.OnDrop),
			OnSend:      chain(out.OnSend, set.OnSend),
			OnBranch:    chain(out.OnBranch, set.OnBranch),
			OnBranchEnd: chain(out.OnBranchEnd, set.OnBranchEnd),
			OnNavigate:  chain(out.OnNavigate, set.OnNavigate),
		}
	}
	return out
}

func chain[E any](a, b func(context.Context, E)) func(context.Context, E) {
	if a == nil {
		return b
	}
	if b == nil {
		return a
	}
	return func(ctx context.Context, e E) {
		a(ctx, e)
		b(ctx, e)
	}
}

// LoggingHooks returns lifecycle hooks that mirror driver activity to the
// given logger. Accepted work logs at Info; drops and failures at Warn.
func LoggingHooks(logger *slog.Logger) domain.LifecycleHooks {
	return domain.LifecycleHooks{
		OnDispatch: func(ctx context.Context, e *domain.DispatchEvent) {
			logger.Info("dispatch", "label", e.Label, "index", e.Index)
		},
		OnDrop: func(ctx context.Context, e *domain.DispatchEvent) {
			logger.Warn("event dropped", "label", e.Label, "index", e.Index)
		},
		OnSend: func(ctx context.Context, e *domain.SendEvent) {
			logger.Info("send", "label", e.Label)
		},
		OnBranch: func(ctx context.Context, e *domain.BranchEvent) {
			logger.Info("branch", "label", e.Label, "index", e.Index, "limit", e.Limit)
		},
		OnBranchEnd: func(ctx context.Context, e *domain.BranchEndEvent) {
			if e.Errored {
				logger.Warn("branch failed", "label", e.Label, "reason", e.Reason)
				return
			}
			logger.Info("branch completed", "label", e.Label, "reason", e.Reason)
		},
		OnNavigate: func(ctx context.Context, e *domain.NavigationEvent) {
			logger.Info("navigate", "direction", e.Direction, "from", e.FromIndex, "to", e.ToIndex, "label", e.Label)
		},
	}
}
