// Package observability carries per-invocation operation ids for ruleforge.
package observability

import (
	"context"

	"github.com/google/uuid"
)

type opIDKey struct{}

// WithOpID attaches a fresh operation id. The CLI calls it once per invocation
// so logs, receipts and spans of one run can be joined.
func WithOpID(ctx context.Context) context.Context {
	return context.WithValue(ctx, opIDKey{}, uuid.NewString())
}

// OpID returns "" when no id was attached.
func OpID(ctx context.Context) string {
	if id, ok := ctx.Value(opIDKey{}).(string); ok {
		return id
	}
	return ""
}
