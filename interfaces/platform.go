package interfaces

import (
	"context"
)

// PlatformService talks to the external sending platform. Calls are
// best-effort from the engine's point of view: failures are logged and
// traced but never rolled back into recovery state.
type PlatformService interface {
	PauseCampaign(ctx context.Context, tenant, platformCampaignID, reason string) error
	ResumeCampaign(ctx context.Context, tenant, platformCampaignID string) error
	AddMailboxToCampaign(ctx context.Context, tenant, platformCampaignID, platformMailboxID string) error
	RemoveMailboxFromCampaign(ctx context.Context, tenant, platformCampaignID, platformMailboxID string) error
}
