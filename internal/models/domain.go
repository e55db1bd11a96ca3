package models

import (
	"time"

	"gorm.io/gorm"

	"github.com/customeros/mailmedic/internal/enum"
	"github.com/customeros/mailmedic/internal/utils"
)

type Domain struct {
	ID     string            `gorm:"column:id;type:varchar(50);primaryKey" json:"id"`
	Tenant string            `gorm:"column:tenant;type:varchar(255);NOT NULL;index" json:"tenant"`
	Domain string            `gorm:"column:domain;type:varchar(255);NOT NULL;uniqueIndex" json:"domain"`
	Active bool              `gorm:"column:active;type:boolean;NOT NULL;DEFAULT:true" json:"active"`
	Status enum.HealthStatus `gorm:"column:status;type:varchar(20);index;DEFAULT:'healthy'" json:"status"`

	RecoveryFields `gorm:"embedded" json:"recovery"`

	// DNS verdicts from the latest assessment. Nil means the check could
	// not determine an answer, which is never treated as a pass.
	SPFValid         *bool            `gorm:"column:spf_valid;type:boolean" json:"spfValid"`
	DKIMValid        *bool            `gorm:"column:dkim_valid;type:boolean" json:"dkimValid"`
	DMARCPolicy      *string          `gorm:"column:dmarc_policy;type:varchar(50)" json:"dmarcPolicy"`
	BlacklistResults BlacklistResults `gorm:"column:blacklist_results;type:jsonb" json:"blacklistResults"`
	DNSScore         int              `gorm:"column:dns_score;type:integer;NOT NULL;DEFAULT:0" json:"dnsScore"`
	LastDNSCheckAt   *time.Time       `gorm:"column:last_dns_check_at;type:timestamp" json:"lastDnsCheckAt"`

	// Lifetime counters
	TotalSent       int64 `gorm:"column:total_sent;type:bigint;NOT NULL;DEFAULT:0" json:"totalSent"`
	TotalOpened     int64 `gorm:"column:total_opened;type:bigint;NOT NULL;DEFAULT:0" json:"totalOpened"`
	TotalClicked    int64 `gorm:"column:total_clicked;type:bigint;NOT NULL;DEFAULT:0" json:"totalClicked"`
	TotalReplied    int64 `gorm:"column:total_replied;type:bigint;NOT NULL;DEFAULT:0" json:"totalReplied"`
	TotalBounced    int64 `gorm:"column:total_bounced;type:bigint;NOT NULL;DEFAULT:0" json:"totalBounced"`
	HardBounceCount int64 `gorm:"column:hard_bounce_count;type:bigint;NOT NULL;DEFAULT:0" json:"hardBounceCount"`

	CreatedAt time.Time `gorm:"column:created_at;type:timestamp;DEFAULT:current_timestamp" json:"createdAt"`
	UpdatedAt time.Time `gorm:"column:updated_at;type:timestamp;DEFAULT:current_timestamp" json:"updatedAt"`

	Mailboxes []Mailbox `gorm:"foreignKey:DomainID" json:"-"`
}

func (Domain) TableName() string {
	return "domains"
}

func (d *Domain) BeforeCreate(tx *gorm.DB) error {
	if d.ID == "" {
		d.ID = utils.GenerateNanoIDWithPrefix("dom", 16)
	}
	return nil
}

// DNSConclusivelyClean reports whether the latest DNS check is strong
// enough evidence to let a quarantined entity resume restricted sending:
// SPF and DKIM verified, and every blacklist conclusively clean.
func (d *Domain) DNSConclusivelyClean() bool {
	if d.LastDNSCheckAt == nil {
		return false
	}
	if d.SPFValid == nil || !*d.SPFValid {
		return false
	}
	if d.DKIMValid == nil || !*d.DKIMValid {
		return false
	}
	return d.BlacklistResults.AllNotListed()
}
