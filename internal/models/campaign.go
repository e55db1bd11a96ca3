package models

import (
	"time"

	"gorm.io/gorm"

	"github.com/customeros/mailmedic/internal/enum"
	"github.com/customeros/mailmedic/internal/utils"
)

type Campaign struct {
	ID                 string            `gorm:"column:id;type:varchar(50);primaryKey" json:"id"`
	Tenant             string            `gorm:"column:tenant;type:varchar(255);NOT NULL;index" json:"tenant"`
	Name               string            `gorm:"column:name;type:varchar(255);NOT NULL" json:"name"`
	PlatformCampaignID string            `gorm:"column:platform_campaign_id;type:varchar(255)" json:"platformCampaignId"`
	Status             enum.HealthStatus `gorm:"column:status;type:varchar(20);index;DEFAULT:'active'" json:"status"`

	RecoveryFields

	TotalSent    int64   `gorm:"column:total_sent;type:bigint;NOT NULL;DEFAULT:0" json:"totalSent"`
	TotalBounced int64   `gorm:"column:total_bounced;type:bigint;NOT NULL;DEFAULT:0" json:"totalBounced"`
	BounceRate   float64 `gorm:"column:bounce_rate;type:decimal(6,5);NOT NULL;DEFAULT:0" json:"bounceRate"`
	WarningCount int     `gorm:"column:warning_count;type:integer;NOT NULL;DEFAULT:0" json:"warningCount"`
	PausedReason string  `gorm:"column:paused_reason;type:text" json:"pausedReason"`

	Mailboxes []Mailbox `gorm:"many2many:campaign_mailboxes;" json:"mailboxes"`

	CreatedAt time.Time `gorm:"column:created_at;type:timestamp;DEFAULT:current_timestamp" json:"createdAt"`
	UpdatedAt time.Time `gorm:"column:updated_at;type:timestamp;DEFAULT:current_timestamp" json:"updatedAt"`
}

func (Campaign) TableName() string {
	return "campaigns"
}

func (c *Campaign) BeforeCreate(tx *gorm.DB) error {
	if c.ID == "" {
		c.ID = utils.GenerateNanoIDWithPrefix("cmp", 16)
	}
	return nil
}

// RecalculateBounceRate refreshes the stored rate from the counters.
// Called on every counter ingestion.
func (c *Campaign) RecalculateBounceRate() {
	c.BounceRate = BounceRate(c.TotalBounced, c.TotalSent)
}
