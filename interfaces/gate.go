package interfaces

import (
	"context"
)

// TransitionGateResult tells a caller whether a recovery transition out
// of a paused state may proceed for this tenant.
type TransitionGateResult struct {
	Allowed              bool   `json:"allowed"`
	RequiresAcknowledged bool   `json:"requiresAcknowledgment"`
	OverallScore         int    `json:"overallScore"`
	Reason               string `json:"reason,omitempty"`
}

type GateService interface {
	// EvaluateTransition applies the fail-closed assessment gate: no
	// completed assessment means no transition, and a weak score needs
	// an operator acknowledgment first.
	EvaluateTransition(ctx context.Context, tenant string) (*TransitionGateResult, error)
	// Acknowledge records the operator's sign-off on a weak score.
	Acknowledge(ctx context.Context, tenant, userEmail string) error
}
