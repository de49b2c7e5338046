// Package notification is the boundary for operator-facing alerts.
// Delivery (email, chat, pager) is out of scope here; the default
// implementation writes structured log records an operator pipeline
// can pick up.
package notification

import (
	"context"

	"go.uber.org/fx"
	"go.uber.org/zap"
)

// Notifier receives reconciliation events that need operator
// follow-up. Implementations must not block the signup path.
type Notifier interface {
	ReconciliationNeeded(ctx context.Context, event ReconciliationEvent)
}

// ReconciliationEvent identifies a signup saga the process could not
// settle on its own. EmailDomain carries only the domain part of the
// address.
type ReconciliationEvent struct {
	Mode          string
	ReservationID string
	UserID        string
	OrgID         string
	EmailDomain   string
	Detail        string
}

type logNotifier struct {
	log *zap.Logger
}

func NewLogNotifier(log *zap.Logger) Notifier {
	return &logNotifier{log: log.Named("reconciliation")}
}

func (n *logNotifier) ReconciliationNeeded(_ context.Context, event ReconciliationEvent) {
	n.log.Warn("needs_reconciliation",
		zap.String("mode", event.Mode),
		zap.String("reservation_id", event.ReservationID),
		zap.String("user_id", event.UserID),
		zap.String("organization_id", event.OrgID),
		zap.String("email_domain", event.EmailDomain),
		zap.String("detail", event.Detail),
	)
}

var Module = fx.Module("notification",
	fx.Provide(NewLogNotifier),
)
