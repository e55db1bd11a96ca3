package interfaces

import (
	"context"
)

// SendLimits is the effective sending budget for an entity right now.
// Nil pointers mean unbounded on that axis.
type SendLimits struct {
	MailboxDailyLimit  *int   `json:"mailboxDailyLimit,omitempty"`
	CampaignDailyLimit *int   `json:"campaignDailyLimit,omitempty"`
	DomainDailyLimit   *int   `json:"domainDailyLimit"`
	TenantDailyLimit   *int   `json:"tenantDailyLimit"`
	SendingAllowed     bool   `json:"sendingAllowed"`
	Reason             string `json:"reason,omitempty"`
}

type ThrottleService interface {
	// LimitsForMailbox resolves the current phase- and resilience-aware
	// sending budget for one mailbox.
	LimitsForMailbox(ctx context.Context, tenant, mailboxID string) (*SendLimits, error)
	// LimitsForCampaign resolves the volume cap of a campaign working
	// its way back up the recovery ladder.
	LimitsForCampaign(ctx context.Context, tenant, campaignID string) (*SendLimits, error)
}
