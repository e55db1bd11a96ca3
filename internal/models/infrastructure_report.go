package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"
	"gorm.io/gorm"

	"github.com/customeros/mailmedic/internal/enum"
)

// InfrastructureReport is a point-in-time snapshot of a tenant's email
// infrastructure health produced by an assessment run.
type InfrastructureReport struct {
	ID              string          `gorm:"column:id;type:uuid;primaryKey" json:"id"`
	Tenant          string          `gorm:"column:tenant;type:varchar(255);NOT NULL;index" json:"tenant"`
	ReportType      enum.ReportType `gorm:"column:report_type;type:varchar(20);NOT NULL" json:"reportType"`
	OverallScore    int             `gorm:"column:overall_score;type:integer;NOT NULL;DEFAULT:0" json:"overallScore"`
	DomainsChecked  int             `gorm:"column:domains_checked;type:integer;NOT NULL;DEFAULT:0" json:"domainsChecked"`
	MailboxesScored int             `gorm:"column:mailboxes_scored;type:integer;NOT NULL;DEFAULT:0" json:"mailboxesScored"`
	Summary         JSONMap         `gorm:"column:summary;type:jsonb" json:"summary"`
	Findings        Findings        `gorm:"column:findings;type:jsonb" json:"findings"`
	Recommendations pq.StringArray  `gorm:"column:recommendations;type:text[]" json:"recommendations"`
	ArchiveKey      string          `gorm:"column:archive_key;type:varchar(500)" json:"archiveKey"`
	CreatedAt       time.Time       `gorm:"column:created_at;type:timestamp;DEFAULT:current_timestamp;index" json:"createdAt"`
}

func (InfrastructureReport) TableName() string {
	return "infrastructure_reports"
}

func (r *InfrastructureReport) BeforeCreate(tx *gorm.DB) error {
	if r.ID == "" {
		r.ID = uuid.NewString()
	}
	return nil
}
