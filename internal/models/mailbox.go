package models

import (
	"time"

	"gorm.io/gorm"

	"github.com/customeros/mailmedic/internal/enum"
	"github.com/customeros/mailmedic/internal/utils"
)

type Mailbox struct {
	ID           string            `gorm:"column:id;type:varchar(50);primaryKey" json:"id"`
	Tenant       string            `gorm:"column:tenant;type:varchar(255);NOT NULL;index" json:"tenant"`
	DomainID     string            `gorm:"column:domain_id;type:varchar(50);NOT NULL;index" json:"domainId"`
	EmailAddress string            `gorm:"column:email_address;type:varchar(255);NOT NULL;uniqueIndex" json:"emailAddress"`
	Provider     string            `gorm:"column:provider;type:varchar(50)" json:"provider"`
	Status       enum.HealthStatus `gorm:"column:status;type:varchar(20);index;DEFAULT:'healthy'" json:"status"`

	RecoveryFields `gorm:"embedded" json:"recovery"`

	// Platform connection
	ConnectedToPlatform bool   `gorm:"column:connected_to_platform;type:boolean;NOT NULL;DEFAULT:false" json:"connectedToPlatform"`
	PlatformMailboxID   string `gorm:"column:platform_mailbox_id;type:varchar(255)" json:"platformMailboxId"`

	// Lifetime counters
	TotalSent       int64 `gorm:"column:total_sent;type:bigint;NOT NULL;DEFAULT:0" json:"totalSent"`
	TotalBounced    int64 `gorm:"column:total_bounced;type:bigint;NOT NULL;DEFAULT:0" json:"totalBounced"`
	HardBounceCount int64 `gorm:"column:hard_bounce_count;type:bigint;NOT NULL;DEFAULT:0" json:"hardBounceCount"`

	CreatedAt time.Time      `gorm:"column:created_at;type:timestamp;DEFAULT:current_timestamp" json:"createdAt"`
	UpdatedAt time.Time      `gorm:"column:updated_at;type:timestamp;DEFAULT:current_timestamp" json:"updatedAt"`
	DeletedAt gorm.DeletedAt `gorm:"column:deleted_at;index" json:"-"`
}

func (Mailbox) TableName() string {
	return "mailboxes"
}

func (m *Mailbox) BeforeCreate(tx *gorm.DB) error {
	if m.ID == "" {
		m.ID = utils.GenerateNanoIDWithPrefix("mbox", 16)
	}
	return nil
}

// HistoricalBounceRate is hard bounces over lifetime sends.
func (m *Mailbox) HistoricalBounceRate() float64 {
	return BounceRate(m.HardBounceCount, m.TotalSent)
}
