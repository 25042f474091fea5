// Package notify delivers best-effort lifecycle events (tenant created,
// account registered) to configured sinks. Delivery is asynchronous and
// never blocks or fails the provisioning transaction that produced the
// event: publishers call Publish after commit.
package notify

import (
	"context"
	"time"

	"github.com/gofancyever/dify/internal/observability/logger"
)

// Event types.
const (
	EventTenantCreated     = "tenant.created"
	EventAccountRegistered = "account.registered"
)

// Event is a lifecycle notification.
type Event struct {
	Type       string
	TenantID   string
	TenantName string
	AccountID  string
	Email      string
	OccurredAt time.Time
}

// Sink receives events. Implementations must tolerate duplicate delivery.
type Sink interface {
	Notify(ctx context.Context, ev Event) error
}

// Notifier fans events out to sinks in a goroutine per publish.
type Notifier struct {
	sinks   []Sink
	timeout time.Duration
}

func New(sinks ...Sink) *Notifier {
	return &Notifier{sinks: sinks, timeout: 10 * time.Second}
}

// Publish entrega el evento a todos los sinks en background. Los errores se
// loguean y se descartan: un listener caído no afecta el flujo principal.
func (n *Notifier) Publish(ev Event) {
	if n == nil || len(n.sinks) == 0 {
		return
	}
	if ev.OccurredAt.IsZero() {
		ev.OccurredAt = time.Now().UTC()
	}
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), n.timeout)
		defer cancel()
		for _, s := range n.sinks {
			if err := s.Notify(ctx, ev); err != nil {
				logger.L().Warn("notification sink failed",
					logger.String("event", ev.Type),
					logger.TenantID(ev.TenantID),
					logger.Err(err),
				)
			}
		}
	}()
}
