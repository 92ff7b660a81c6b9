package middleware

import (
	"context"
	"regexp"

	"github.com/aretw0/espalier/pkg/domain"
	"github.com/aretw0/espalier/pkg/ports"
)

type maskingMiddleware struct {
	next     ports.TimelineStore
	patterns []*regexp.Regexp
}

// NewMaskingMiddleware creates a middleware that replaces the values of
// locals whose key matches any pattern with "***" before persisting. The
// masking is irrecoverable; use it for fields that must never be stored,
// like raw credentials echoed into locals. Panics on an invalid pattern.
func NewMaskingMiddleware(patternStrings []string) Middleware {
	patterns := make([]*regexp.Regexp, len(patternStrings))
	for i, p := range patternStrings {
		patterns[i] = regexp.MustCompile(p)
	}
	return func(next ports.TimelineStore) ports.TimelineStore {
		return &maskingMiddleware{next: next, patterns: patterns}
	}
}

func (m *maskingMiddleware) Save(ctx context.Context, id string, snap *domain.TimelineSnapshot) error {
	// Clone so the live history the driver keeps in memory is untouched.
	cloned := snap.Clone()
	for _, entry := range cloned.Entries {
		if entry.Frame == nil {
			continue
		}
		maskLocals(entry.Frame.Locals, m.patterns)
	}
	return m.next.Save(ctx, id, cloned)
}

func (m *maskingMiddleware) Load(ctx context.Context, id string) (*domain.TimelineSnapshot, error) {
	return m.next.Load(ctx, id)
}

func (m *maskingMiddleware) Delete(ctx context.Context, id string) error {
	return m.next.Delete(ctx, id)
}

func (m *maskingMiddleware) List(ctx context.Context) ([]string, error) {
	return m.next.List(ctx)
}

func maskLocals(locals map[string]any, patterns []*regexp.Regexp) {
	for k := range locals {
		for _, p := range patterns {
			if p.MatchString(k) {
				locals[k] = "***"
				break
			}
		}

		if subMap, ok := locals[k].(map[string]any); ok {
			maskLocals(subMap, patterns)
		}
	}
}
