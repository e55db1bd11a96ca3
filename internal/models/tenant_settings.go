package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// TenantSettings carries per-tenant flags for the assessment gate.
// AssessmentCompleted is the fail-closed switch: recovery transitions
// out of paused phases are refused while it is false.
type TenantSettings struct {
	ID                  string     `gorm:"column:id;type:uuid;primaryKey" json:"id"`
	Tenant              string     `gorm:"column:tenant;type:varchar(255);NOT NULL;uniqueIndex" json:"tenant"`
	AssessmentCompleted bool       `gorm:"column:assessment_completed;type:boolean;NOT NULL;DEFAULT:false" json:"assessmentCompleted"`
	LastAssessmentAt    *time.Time `gorm:"column:last_assessment_at;type:timestamp" json:"lastAssessmentAt"`
	GateAcknowledged    bool       `gorm:"column:gate_acknowledged;type:boolean;NOT NULL;DEFAULT:false" json:"gateAcknowledged"`
	GateAcknowledgedAt  *time.Time `gorm:"column:gate_acknowledged_at;type:timestamp" json:"gateAcknowledgedAt"`
	GateAcknowledgedBy  string     `gorm:"column:gate_acknowledged_by;type:varchar(255)" json:"gateAcknowledgedBy"`
	AccountWarning      bool       `gorm:"column:account_warning;type:boolean;NOT NULL;DEFAULT:false" json:"accountWarning"`
	CreatedAt           time.Time  `gorm:"column:created_at;type:timestamp;DEFAULT:current_timestamp" json:"createdAt"`
	UpdatedAt           time.Time  `gorm:"column:updated_at;type:timestamp;DEFAULT:current_timestamp" json:"updatedAt"`
}

func (TenantSettings) TableName() string {
	return "tenant_settings"
}

func (t *TenantSettings) BeforeCreate(tx *gorm.DB) error {
	if t.ID == "" {
		t.ID = uuid.NewString()
	}
	return nil
}
