package interfaces

import (
	"context"

	"github.com/customeros/mailmedic/internal/enum"
)

// OverrideRequest is an operator asking to resume a paused entity ahead
// of its cooldown.
type OverrideRequest struct {
	EntityType    enum.EntityType `json:"entityType"`
	EntityID      string          `json:"entityId"`
	Justification string          `json:"justification"`
	Force         bool            `json:"force"`
}

// OverrideAssessment is the risk verdict on an override request.
type OverrideAssessment struct {
	Permitted             bool     `json:"permitted"`
	JustificationRequired bool     `json:"justificationRequired"`
	CooldownMultiplier    float64  `json:"cooldownMultiplier"`
	AccountWarning        bool     `json:"accountWarning"`
	RiskNotes             []string `json:"riskNotes,omitempty"`
}

type OverrideService interface {
	// AssessOverride evaluates the risk of an override without applying
	// it. Never mutates entity state.
	AssessOverride(ctx context.Context, tenant string, request *OverrideRequest) (*OverrideAssessment, error)
	// RequestOverride assesses and, when permitted, applies an operator
	// override. Overridden entities always re-enter recovery through
	// quarantine rather than jumping straight to healthy.
	RequestOverride(ctx context.Context, tenant string, request *OverrideRequest) (*OverrideAssessment, error)
}
