package interfaces

import (
	"context"

	"github.com/customeros/mailmedic/internal/enum"
)

type HealingService interface {
	// BeginRecovery pauses the entity and opens the recovery ladder.
	// Origin rehab marks damage found at onboarding and carries stricter
	// graduation multipliers than in-service degradation.
	BeginRecovery(ctx context.Context, tenant string, entityType enum.EntityType, entityID, reason string, origin enum.HealingOrigin) error
	// CheckGraduation evaluates a single entity against its current
	// phase's graduation criteria and advances it when they are met.
	CheckGraduation(ctx context.Context, tenant string, entityType enum.EntityType, entityID string) error
	// RunGraduationChecks sweeps every recovering entity across tenants.
	RunGraduationChecks(ctx context.Context) error
	// RecordCleanSend credits a delivered send against the entity's
	// current phase.
	RecordCleanSend(ctx context.Context, tenant string, entityType enum.EntityType, entityID string) error
	// RecordBounce debits a hard bounce. May trigger a relapse.
	RecordBounce(ctx context.Context, tenant string, entityType enum.EntityType, entityID string, hard bool) error
	// RecordRelapse escalates a recovering entity that failed again.
	RecordRelapse(ctx context.Context, tenant string, entityType enum.EntityType, entityID, reason string) error
}
