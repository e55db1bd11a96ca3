package interfaces

import (
	"context"

	"github.com/customeros/mailmedic/internal/enum"
	"github.com/customeros/mailmedic/internal/models"
)

// MailboxCounters are the per-mailbox deliverability numbers pulled from
// the sending platform during a sync.
type MailboxCounters struct {
	EmailAddress string `json:"emailAddress"`
	Sent         int64  `json:"sent"`
	Bounced      int64  `json:"bounced"`
	HardBounced  int64  `json:"hardBounced"`
}

// CampaignCounters are the per-campaign numbers pulled from the sending
// platform during a sync.
type CampaignCounters struct {
	PlatformCampaignID string `json:"platformCampaignId"`
	Sent               int64  `json:"sent"`
	Bounced            int64  `json:"bounced"`
}

// SyncSnapshot is everything a platform sync delivers in one batch.
type SyncSnapshot struct {
	Mailboxes []MailboxCounters  `json:"mailboxes"`
	Campaigns []CampaignCounters `json:"campaigns"`
}

type AssessmentService interface {
	// Assess runs a full infrastructure assessment for the tenant and
	// persists a report. Marks the tenant's assessment gate complete.
	Assess(ctx context.Context, tenant string, reportType enum.ReportType) (*models.InfrastructureReport, error)
	// AssessAllTenants runs scheduled assessments for every tenant with
	// active domains. Used by the cron sweep.
	AssessAllTenants(ctx context.Context) error
	// HandleSyncCompleted ingests fresh platform counters and re-runs
	// the assessment decision tables against them.
	HandleSyncCompleted(ctx context.Context, tenant string, snapshot *SyncSnapshot) error
}
