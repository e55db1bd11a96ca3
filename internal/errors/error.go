package errors

import "github.com/pkg/errors"

var (
	// common errors
	ErrTenantMissing = errors.New("tenant is missing")

	// entity errors
	ErrDomainNotFound   = errors.New("domain not found")
	ErrMailboxNotFound  = errors.New("mailbox not found")
	ErrCampaignNotFound = errors.New("campaign not found")

	// gate errors
	ErrNoAssessment  = errors.New("no assessment report available")
	ErrGateViolation = errors.New("transition gate violation")

	// override errors
	ErrOverrideDenied        = errors.New("override request denied")
	ErrJustificationRequired = errors.New("written justification required for low resilience entity")
	ErrNoEligibleMailbox     = errors.New("no mailbox in warm recovery or healthy state")

	// healing errors
	ErrNotRecovering = errors.New("entity is not in a recovery phase")
)
