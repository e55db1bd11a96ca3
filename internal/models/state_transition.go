package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/customeros/mailmedic/internal/enum"
)

// StateTransition is the append-only audit trail of every status or
// recovery-phase change. Operator overrides are reconstructed from rows
// with TriggeredBy set to operator_override.
type StateTransition struct {
	ID          string           `gorm:"column:id;type:uuid;primaryKey" json:"id"`
	Tenant      string           `gorm:"column:tenant;type:varchar(255);NOT NULL;index" json:"tenant"`
	EntityType  enum.EntityType  `gorm:"column:entity_type;type:varchar(20);NOT NULL;index:idx_state_transitions_entity" json:"entityType"`
	EntityID    string           `gorm:"column:entity_id;type:varchar(50);NOT NULL;index:idx_state_transitions_entity" json:"entityId"`
	FromState   string           `gorm:"column:from_state;type:varchar(30);NOT NULL" json:"fromState"`
	ToState     string           `gorm:"column:to_state;type:varchar(30);NOT NULL" json:"toState"`
	Reason      string           `gorm:"column:reason;type:text" json:"reason"`
	TriggeredBy enum.TriggeredBy `gorm:"column:triggered_by;type:varchar(30);NOT NULL;index" json:"triggeredBy"`
	UserID      string           `gorm:"column:user_id;type:varchar(255)" json:"userId"`
	CreatedAt   time.Time        `gorm:"column:created_at;type:timestamp;DEFAULT:current_timestamp;index" json:"createdAt"`
}

func (StateTransition) TableName() string {
	return "state_transitions"
}

func (s *StateTransition) BeforeCreate(tx *gorm.DB) error {
	if s.ID == "" {
		s.ID = uuid.NewString()
	}
	return nil
}
