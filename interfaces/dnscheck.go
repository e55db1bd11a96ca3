package interfaces

import (
	"context"

	"github.com/customeros/mailmedic/internal/models"
)

// DomainHealthCheck is the outcome of probing a single domain's DNS
// posture. Pointer fields stay nil when a probe could not produce a
// verdict; nil is never interpreted as a pass.
type DomainHealthCheck struct {
	Domain      string                  `json:"domain"`
	SPFValid    *bool                   `json:"spfValid"`
	DKIMValid   *bool                   `json:"dkimValid"`
	DMARCPolicy *string                 `json:"dmarcPolicy"`
	Blacklists  models.BlacklistResults `json:"blacklists"`
	Score       int                     `json:"score"`
}

type DNSCheckService interface {
	CheckDomain(ctx context.Context, domain string) (*DomainHealthCheck, error)
	InvalidateCache(domain string)
}
