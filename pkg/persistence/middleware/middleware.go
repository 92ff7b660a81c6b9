// Package middleware wraps timeline stores with cross-cutting persistence
// behavior, such as encryption at rest and masking of sensitive locals.
package middleware

import "github.com/aretw0/espalier/pkg/ports"

// Middleware allows wrapping a TimelineStore to add behavior.
type Middleware func(ports.TimelineStore) ports.TimelineStore

// Chain composes middlewares so the first one listed sees Save calls first.
// Chain(masking, encryption) masks locals, then encrypts the masked result.
func Chain(mws ...Middleware) Middleware {
	return func(store ports.TimelineStore) ports.TimelineStore {
		for i := len(mws) - 1; i >= 0; i-- {
			store = mws[i](store)
		}
		return store
	}
}
