package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/customeros/mailmedic/internal/enum"
)

// AuditLog records operator-facing actions: overrides, gate
// acknowledgments, manual resumes. Append-only.
type AuditLog struct {
	ID         string          `gorm:"column:id;type:uuid;primaryKey" json:"id"`
	Tenant     string          `gorm:"column:tenant;type:varchar(255);NOT NULL;index" json:"tenant"`
	Action     string          `gorm:"column:action;type:varchar(50);NOT NULL;index" json:"action"`
	EntityType enum.EntityType `gorm:"column:entity_type;type:varchar(20)" json:"entityType"`
	EntityID   string          `gorm:"column:entity_id;type:varchar(50);index" json:"entityId"`
	UserID     string          `gorm:"column:user_id;type:varchar(255)" json:"userId"`
	UserEmail  string          `gorm:"column:user_email;type:varchar(255)" json:"userEmail"`
	Details    JSONMap         `gorm:"column:details;type:jsonb" json:"details"`
	CreatedAt  time.Time       `gorm:"column:created_at;type:timestamp;DEFAULT:current_timestamp;index" json:"createdAt"`
}

func (AuditLog) TableName() string {
	return "audit_logs"
}

func (a *AuditLog) BeforeCreate(tx *gorm.DB) error {
	if a.ID == "" {
		a.ID = uuid.NewString()
	}
	return nil
}
