// Package audit emits structured audit events for account and tenant
// lifecycle changes.
package audit

import (
	"context"

	"github.com/gofancyever/dify/internal/observability/logger"
)

// Log writes a structured audit event. In the future this can be wired to DB
// or an external sink.
func Log(ctx context.Context, event string, fields map[string]any) {
	l := logger.From(ctx).Named("audit")
	zf := make([]any, 0, len(fields)*2)
	for k, v := range fields {
		zf = append(zf, k, v)
	}
	l.Sugar().Infow(event, zf...)
}
