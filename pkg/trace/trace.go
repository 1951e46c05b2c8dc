// Package trace propagates a short correlation id through a context.Context,
// so log lines emitted across a publish/subscribe hop (sync collection ->
// sgkd callback -> upper layer) can be tied back together.
package trace

import (
	"context"

	"github.com/google/uuid"
)

type ctxKey struct{}

// New returns a context carrying a fresh trace id.
func New(ctx context.Context) context.Context {
	return context.WithValue(ctx, ctxKey{}, uuid.NewString())
}

// FromContext returns the trace id carried by ctx, or "" if none was set.
func FromContext(ctx context.Context) (string, bool) {
	id, ok := ctx.Value(ctxKey{}).(string)
	return id, ok
}
