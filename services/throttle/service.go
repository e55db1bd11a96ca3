package throttle

import (
	"context"

	"github.com/opentracing/opentracing-go"
	tracingLog "github.com/opentracing/opentracing-go/log"

	"github.com/customeros/mailmedic/interfaces"
	"github.com/customeros/mailmedic/internal/enum"
	er "github.com/customeros/mailmedic/internal/errors"
	"github.com/customeros/mailmedic/internal/logger"
	"github.com/customeros/mailmedic/internal/models"
	"github.com/customeros/mailmedic/internal/repository"
	"github.com/customeros/mailmedic/internal/tracing"
	"github.com/customeros/mailmedic/services/healing"
)

// Aggregate caps. A domain full of recovering mailboxes never exceeds
// the domain cap no matter how the per-mailbox budgets add up, and a
// tenant never exceeds the tenant cap across its recovering domains.
const (
	domainDailyCap = 30
	tenantDailyCap = 100
)

type throttleService struct {
	log      logger.Logger
	postgres *repository.Repositories
}

func NewThrottleService(log logger.Logger, postgres *repository.Repositories) interfaces.ThrottleService {
	return &throttleService{
		log:      log,
		postgres: postgres,
	}
}

func (s *throttleService) LimitsForMailbox(ctx context.Context, tenant, mailboxID string) (*interfaces.SendLimits, error) {
	span, ctx := opentracing.StartSpanFromContext(ctx, "ThrottleService.LimitsForMailbox")
	defer span.Finish()
	tracing.SetDefaultServiceSpanTags(ctx, span)
	tracing.TagTenant(span, tenant)
	span.LogKV("mailbox.id", mailboxID)

	mailbox, err := s.postgres.MailboxRepository.GetByID(ctx, tenant, mailboxID)
	if err != nil {
		tracing.TraceErr(span, err)
		return nil, err
	}
	if mailbox == nil {
		tracing.TraceErr(span, er.ErrMailboxNotFound)
		return nil, er.ErrMailboxNotFound
	}

	limits := &interfaces.SendLimits{
		MailboxDailyLimit: healing.PhaseVolumeLimit(&mailbox.RecoveryFields),
		SendingAllowed:    true,
	}

	domainLimit, err := s.domainDailyLimit(ctx, tenant, mailbox.DomainID)
	if err != nil {
		tracing.TraceErr(span, err)
		return nil, err
	}
	limits.DomainDailyLimit = domainLimit

	tenantLimit, err := s.tenantDailyLimit(ctx, tenant)
	if err != nil {
		tracing.TraceErr(span, err)
		return nil, err
	}
	limits.TenantDailyLimit = tenantLimit

	if limits.MailboxDailyLimit != nil && *limits.MailboxDailyLimit == 0 {
		limits.SendingAllowed = false
		limits.Reason = "mailbox is paused or quarantined"
	}
	if limits.DomainDailyLimit != nil && *limits.DomainDailyLimit == 0 {
		limits.SendingAllowed = false
		limits.Reason = "domain is paused or quarantined"
	}

	span.LogFields(tracingLog.Bool("result.sendingAllowed", limits.SendingAllowed))
	return limits, nil
}

func (s *throttleService) LimitsForCampaign(ctx context.Context, tenant, campaignID string) (*interfaces.SendLimits, error) {
	span, ctx := opentracing.StartSpanFromContext(ctx, "ThrottleService.LimitsForCampaign")
	defer span.Finish()
	tracing.SetDefaultServiceSpanTags(ctx, span)
	tracing.TagTenant(span, tenant)
	span.LogKV("campaign.id", campaignID)

	campaign, err := s.postgres.CampaignRepository.GetByID(ctx, tenant, campaignID)
	if err != nil {
		tracing.TraceErr(span, err)
		return nil, err
	}
	if campaign == nil {
		tracing.TraceErr(span, er.ErrCampaignNotFound)
		return nil, er.ErrCampaignNotFound
	}

	limits := &interfaces.SendLimits{
		CampaignDailyLimit: healing.PhaseVolumeLimit(&campaign.RecoveryFields),
		SendingAllowed:     true,
	}

	tenantLimit, err := s.tenantDailyLimit(ctx, tenant)
	if err != nil {
		tracing.TraceErr(span, err)
		return nil, err
	}
	limits.TenantDailyLimit = tenantLimit

	if campaign.Status == enum.HealthStatusPaused {
		limits.SendingAllowed = false
		limits.Reason = "campaign is paused"
	}
	if limits.CampaignDailyLimit != nil && *limits.CampaignDailyLimit == 0 {
		limits.SendingAllowed = false
		limits.Reason = "campaign is paused or quarantined"
	}

	span.LogFields(tracingLog.Bool("result.sendingAllowed", limits.SendingAllowed))
	return limits, nil
}

// domainDailyLimit sums the budgets of the domain's recovering
// mailboxes, capped at the domain ceiling. A domain that is itself in a
// no-send phase zeroes everything below it. Nil means unbounded.
func (s *throttleService) domainDailyLimit(ctx context.Context, tenant, domainID string) (*int, error) {
	domain, err := s.postgres.DomainRepository.GetByID(ctx, tenant, domainID)
	if err != nil {
		return nil, err
	}
	if domain == nil {
		return nil, er.ErrDomainNotFound
	}

	if domainOwnLimit := healing.PhaseVolumeLimit(&domain.RecoveryFields); domainOwnLimit != nil && *domainOwnLimit == 0 {
		zero := 0
		return &zero, nil
	}

	mailboxes, err := s.postgres.MailboxRepository.GetByDomain(ctx, tenant, domainID)
	if err != nil {
		return nil, err
	}

	return sumBudgets(mailboxBudgets(mailboxes), domainDailyCap), nil
}

// tenantDailyLimit sums the bounded domain budgets across the tenant,
// capped at the tenant ceiling. Nil when no domain is bounded.
func (s *throttleService) tenantDailyLimit(ctx context.Context, tenant string) (*int, error) {
	domains, err := s.postgres.DomainRepository.GetActiveDomains(ctx, tenant)
	if err != nil {
		return nil, err
	}

	var budgets []*int
	for i := range domains {
		limit, err := s.domainDailyLimit(ctx, tenant, domains[i].ID)
		if err != nil {
			return nil, err
		}
		budgets = append(budgets, limit)
	}

	return sumBudgets(budgets, tenantDailyCap), nil
}

func mailboxBudgets(mailboxes []models.Mailbox) []*int {
	budgets := make([]*int, 0, len(mailboxes))
	for i := range mailboxes {
		budgets = append(budgets, healing.PhaseVolumeLimit(&mailboxes[i].RecoveryFields))
	}
	return budgets
}

// sumBudgets adds the bounded budgets of a set, capped at the ceiling.
// When every budget is nil (nothing recovering) the set is unbounded.
func sumBudgets(budgets []*int, ceiling int) *int {
	total := 0
	bounded := false
	for _, budget := range budgets {
		if budget == nil {
			continue
		}
		bounded = true
		total += *budget
	}
	if !bounded {
		return nil
	}
	if total > ceiling {
		total = ceiling
	}
	return &total
}
