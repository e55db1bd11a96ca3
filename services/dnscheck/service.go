package dnscheck

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/opentracing/opentracing-go"
	tracingLog "github.com/opentracing/opentracing-go/log"
	"github.com/pkg/errors"
	"golang.org/x/net/idna"
	"golang.org/x/sync/errgroup"

	"github.com/customeros/mailmedic/interfaces"
	"github.com/customeros/mailmedic/internal/enum"
	"github.com/customeros/mailmedic/internal/models"
	"github.com/customeros/mailmedic/internal/tracing"
	"github.com/customeros/mailmedic/internal/utils"
)

// Scoring penalties. A failed check costs more than an inconclusive
// one: unknown is suspicious, proven-bad is worse.
const (
	penaltySPFFailed     = 25
	penaltySPFUnknown    = 15
	penaltyDKIMFailed    = 20
	penaltyDKIMUnknown   = 10
	penaltyDMARCAbsent   = 15
	penaltyDMARCNone     = 10
	penaltyBlacklisted   = 30
	penaltyBLUnreachable = 10
)

// dkimSelectors are the selectors probed in order. The first one that
// answers with a key marks DKIM as valid.
var dkimSelectors = []string{"default", "google", "selector1", "selector2", "k1", "s1", "s2", "mail", "dkim"}

type dnsCheckService struct {
	resolver *cachingResolver
}

func NewDNSCheckService(resolver Resolver, cacheTTL time.Duration) interfaces.DNSCheckService {
	return &dnsCheckService{
		resolver: newCachingResolver(resolver, cacheTTL),
	}
}

func (s *dnsCheckService) CheckDomain(ctx context.Context, domain string) (*interfaces.DomainHealthCheck, error) {
	span, ctx := opentracing.StartSpanFromContext(ctx, "DNSCheckService.CheckDomain")
	defer span.Finish()
	tracing.SetDefaultServiceSpanTags(ctx, span)
	span.LogKV("request.domain", domain)

	domain = strings.ToLower(strings.TrimSpace(domain))
	if domain == "" {
		err := errors.New("domain is required")
		tracing.TraceErr(span, err)
		return nil, err
	}

	// Internationalized domains are probed in their punycode form.
	if ascii, err := idna.Lookup.ToASCII(domain); err == nil {
		domain = ascii
	}

	check := &interfaces.DomainHealthCheck{
		Domain:     domain,
		Blacklists: make(models.BlacklistResults),
	}

	group, groupCtx := errgroup.WithContext(ctx)

	group.Go(func() error {
		check.SPFValid = s.checkSPF(groupCtx, domain)
		return nil
	})
	group.Go(func() error {
		check.DKIMValid = s.checkDKIM(groupCtx, domain)
		return nil
	})
	group.Go(func() error {
		check.DMARCPolicy = s.checkDMARC(groupCtx, domain)
		return nil
	})
	group.Go(func() error {
		check.Blacklists = s.checkBlacklists(groupCtx, domain)
		return nil
	})

	// Probes record their own verdicts; the group never returns an error.
	_ = group.Wait()

	check.Score = scoreCheck(check)

	span.LogFields(tracingLog.Int("result.score", check.Score))
	return check, nil
}

func (s *dnsCheckService) InvalidateCache(domain string) {
	domain = strings.ToLower(strings.TrimSpace(domain))
	if ascii, err := idna.Lookup.ToASCII(domain); err == nil {
		domain = ascii
	}
	s.resolver.invalidateDomain(domain)
}

// checkSPF returns true when a v=spf1 record exists, false when TXT
// records resolve without one, nil when the lookup failed.
func (s *dnsCheckService) checkSPF(ctx context.Context, domain string) *bool {
	records, err := s.resolver.LookupTXT(ctx, domain)
	if err != nil {
		if errors.Is(err, ErrNoRecords) {
			return utils.BoolPtr(false)
		}
		return nil
	}
	for _, record := range records {
		if strings.HasPrefix(strings.ToLower(record), "v=spf1") {
			return utils.BoolPtr(true)
		}
	}
	return utils.BoolPtr(false)
}

// checkDKIM probes the common selectors. A single published key is
// enough. All selectors conclusively absent means false; any transport
// failure without a hit means unknown.
func (s *dnsCheckService) checkDKIM(ctx context.Context, domain string) *bool {
	sawTransportError := false
	for _, selector := range dkimSelectors {
		name := fmt.Sprintf("%s._domainkey.%s", selector, domain)
		records, err := s.resolver.LookupTXT(ctx, name)
		if err != nil {
			if !errors.Is(err, ErrNoRecords) {
				sawTransportError = true
			}
			continue
		}
		for _, record := range records {
			lower := strings.ToLower(record)
			if strings.Contains(lower, "v=dkim1") || strings.Contains(lower, "k=rsa") || strings.Contains(lower, "p=") {
				return utils.BoolPtr(true)
			}
		}
	}
	if sawTransportError {
		return nil
	}
	return utils.BoolPtr(false)
}

// checkDMARC returns the published policy, or nil when no record exists
// or the lookup failed.
func (s *dnsCheckService) checkDMARC(ctx context.Context, domain string) *string {
	records, err := s.resolver.LookupTXT(ctx, "_dmarc."+domain)
	if err != nil {
		return nil
	}
	for _, record := range records {
		lower := strings.ToLower(record)
		if !strings.HasPrefix(lower, "v=dmarc1") {
			continue
		}
		for _, tag := range strings.Split(lower, ";") {
			tag = strings.TrimSpace(tag)
			if strings.HasPrefix(tag, "p=") {
				return utils.StringPtr(strings.TrimPrefix(tag, "p="))
			}
		}
	}
	return nil
}

// checkBlacklists resolves the domain's address and probes each DNSBL.
// An unresolvable domain leaves every zone unreachable rather than
// clean: no answer is never evidence of a clean listing.
func (s *dnsCheckService) checkBlacklists(ctx context.Context, domain string) models.BlacklistResults {
	results := make(models.BlacklistResults)

	ips, err := s.resolver.LookupA(ctx, domain)
	if err != nil || len(ips) == 0 {
		for _, blacklist := range enum.Blacklists() {
			results[blacklist] = enum.BlacklistUnreachable
		}
		return results
	}

	ip := ips[0].To4()
	if ip == nil {
		for _, blacklist := range enum.Blacklists() {
			results[blacklist] = enum.BlacklistUnreachable
		}
		return results
	}
	reversed := fmt.Sprintf("%d.%d.%d.%d", ip[3], ip[2], ip[1], ip[0])

	var mu sync.Mutex
	group, groupCtx := errgroup.WithContext(ctx)
	for _, blacklist := range enum.Blacklists() {
		blacklist := blacklist
		group.Go(func() error {
			query := fmt.Sprintf("%s.%s", reversed, blacklist.Zone())
			_, err := s.resolver.LookupA(groupCtx, query)

			status := enum.BlacklistConfirmed
			if err != nil {
				if errors.Is(err, ErrNoRecords) {
					status = enum.BlacklistNotListed
				} else {
					status = enum.BlacklistUnreachable
				}
			}

			mu.Lock()
			results[blacklist] = status
			mu.Unlock()
			return nil
		})
	}
	_ = group.Wait()

	return results
}

func scoreCheck(check *interfaces.DomainHealthCheck) int {
	score := 100

	switch {
	case check.SPFValid == nil:
		score -= penaltySPFUnknown
	case !*check.SPFValid:
		score -= penaltySPFFailed
	}

	switch {
	case check.DKIMValid == nil:
		score -= penaltyDKIMUnknown
	case !*check.DKIMValid:
		score -= penaltyDKIMFailed
	}

	switch {
	case check.DMARCPolicy == nil:
		score -= penaltyDMARCAbsent
	case *check.DMARCPolicy == "none":
		score -= penaltyDMARCNone
	}

	for _, status := range check.Blacklists {
		switch status {
		case enum.BlacklistConfirmed:
			score -= penaltyBlacklisted
		case enum.BlacklistUnreachable:
			score -= penaltyBLUnreachable
		}
	}

	return models.ClampScore(score)
}
