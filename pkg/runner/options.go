package runner

import (
	"log/slog"

	"github.com/aretw0/espalier"
	"github.com/aretw0/espalier/pkg/ports"
)

// Option defines a functional option for configuring the Runner.
type Option func(*Runner)

// WithStore configures the timeline store for persistence. It needs a
// session ID to take effect.
func WithStore(store ports.TimelineStore) Option {
	return func(r *Runner) {
		r.Store = store
	}
}

// WithSessionID names the timeline to restore and save. Required when
// WithStore is used.
func WithSessionID(id string) Option {
	return func(r *Runner) {
		r.SessionID = id
	}
}

// WithLogger configures the structured logger for internal events.
func WithLogger(logger *slog.Logger) Option {
	return func(r *Runner) {
		r.Logger = logger
	}
}

// WithHandler configures a custom IOHandler.
func WithHandler(handler IOHandler) Option {
	return func(r *Runner) {
		r.Handler = handler
	}
}

// WithHeadless disables the banner and prompt and auto-approves every event.
// Use it when input is piped rather than typed.
func WithHeadless(headless bool) Option {
	return func(r *Runner) {
		r.Headless = headless
	}
}

// WithRenderer configures the content renderer used by the default text
// handler (e.g. markdown to ANSI).
func WithRenderer(renderer ContentRenderer) Option {
	return func(r *Runner) {
		r.Renderer = renderer
	}
}

// WithInterceptor configures the dispatch policy middleware.
func WithInterceptor(interceptor EventInterceptor) Option {
	return func(r *Runner) {
		r.Interceptor = interceptor
	}
}

// WithDriverOptions forwards options (hooks, logger) to the driver the
// runner builds.
func WithDriverOptions(opts ...espalier.Option) Option {
	return func(r *Runner) {
		r.driverOpts = append(r.driverOpts, opts...)
	}
}
