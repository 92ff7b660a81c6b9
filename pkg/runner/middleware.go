package runner

import (
	"context"
	"fmt"

	"github.com/aretw0/espalier/pkg/domain"
)

// EventInterceptor is a policy middleware over dispatches. It receives the
// event and whether dispatching it would truncate redoable entries ahead of
// the cursor, and returns true to proceed. A false return blocks the
// dispatch without ending the session.
type EventInterceptor func(ctx context.Context, event domain.Event, truncating bool) (bool, error)

// MultiInterceptor chains interceptors; the first refusal or error wins.
func MultiInterceptor(interceptors ...EventInterceptor) EventInterceptor {
	return func(ctx context.Context, event domain.Event, truncating bool) (bool, error) {
		for _, interceptor := range interceptors {
			allowed, err := interceptor(ctx, event, truncating)
			if err != nil {
				return false, err
			}
			if !allowed {
				return false, nil
			}
		}
		return true, nil
	}
}

// ConfirmationInterceptor asks the user before an event that would discard
// the redoable future. Events dispatched at the newest entry pass through
// without a prompt.
func ConfirmationInterceptor(handler IOHandler) EventInterceptor {
	return func(ctx context.Context, event domain.Event, truncating bool) (bool, error) {
		if !truncating {
			return true, nil
		}
		prompt := fmt.Sprintf("dispatching %q discards the entries ahead of the cursor. Continue?", event.Type)
		return handler.Confirm(ctx, prompt)
	}
}

// AutoApproveInterceptor allows everything.
func AutoApproveInterceptor() EventInterceptor {
	return func(ctx context.Context, event domain.Event, truncating bool) (bool, error) {
		return true, nil
	}
}
