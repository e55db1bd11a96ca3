package interfaces

import (
	"context"

	"github.com/customeros/mailmedic/internal/enum"
)

// NotificationService fans health events out to operators. Senders are
// fire-and-forget: failures are logged and traced but never block the
// state machine.
type NotificationService interface {
	NotifyStatusChange(ctx context.Context, tenant string, entityType enum.EntityType, entityID, fromState, toState, reason string)
	NotifyManualInterventionRequired(ctx context.Context, tenant string, entityType enum.EntityType, entityID, reason string)
	NotifyAccountWarning(ctx context.Context, tenant, reason string)
	NotifyReportReady(ctx context.Context, tenant, reportID string, overallScore int)
}
