package notify

import (
	"context"

	"github.com/gofancyever/dify/internal/audit"
)

// AuditSink registra cada evento en el audit log.
type AuditSink struct{}

func (AuditSink) Notify(ctx context.Context, ev Event) error {
	audit.Log(ctx, ev.Type, map[string]any{
		"tenant_id":   ev.TenantID,
		"tenant_name": ev.TenantName,
		"account_id":  ev.AccountID,
		"occurred_at": ev.OccurredAt,
	})
	return nil
}
