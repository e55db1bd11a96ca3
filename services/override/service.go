package override

import (
	"context"
	"fmt"
	"time"

	"github.com/opentracing/opentracing-go"
	tracingLog "github.com/opentracing/opentracing-go/log"
	"github.com/pkg/errors"

	"github.com/customeros/mailmedic/interfaces"
	"github.com/customeros/mailmedic/internal/enum"
	er "github.com/customeros/mailmedic/internal/errors"
	"github.com/customeros/mailmedic/internal/logger"
	"github.com/customeros/mailmedic/internal/models"
	"github.com/customeros/mailmedic/internal/repository"
	"github.com/customeros/mailmedic/internal/tracing"
	"github.com/customeros/mailmedic/internal/utils"
)

// Risk thresholds for operator overrides. Frequent overriders pay with
// longer cooldowns; chronic ones get their account flagged.
const (
	entityOverrideWindow    = 48 * time.Hour
	entityOverrideThreshold = 3

	tenantOverrideWindow    = 7 * 24 * time.Hour
	tenantOverrideThreshold = 5

	escalatedCooldownMultiplier = 2.0

	lowResilienceThreshold = 20
	minJustificationLength = 10

	overrideBaseCooldown = 24 * time.Hour
)

type overrideService struct {
	log           logger.Logger
	postgres      *repository.Repositories
	platform      interfaces.PlatformService
	notifications interfaces.NotificationService
}

func NewOverrideService(
	log logger.Logger,
	postgres *repository.Repositories,
	platform interfaces.PlatformService,
	notifications interfaces.NotificationService,
) interfaces.OverrideService {
	return &overrideService{
		log:           log,
		postgres:      postgres,
		platform:      platform,
		notifications: notifications,
	}
}

func (s *overrideService) AssessOverride(ctx context.Context, tenant string, request *interfaces.OverrideRequest) (*interfaces.OverrideAssessment, error) {
	span, ctx := opentracing.StartSpanFromContext(ctx, "OverrideService.AssessOverride")
	defer span.Finish()
	tracing.SetDefaultServiceSpanTags(ctx, span)
	tracing.TagTenant(span, tenant)
	tracing.TagEntity(span, request.EntityID)

	assessment := &interfaces.OverrideAssessment{
		Permitted:          true,
		CooldownMultiplier: 1.0,
	}
	now := utils.Now()

	entityCount, err := s.postgres.StateTransitionRepository.CountOverridesForEntitySince(ctx, tenant, request.EntityType, request.EntityID, now.Add(-entityOverrideWindow))
	if err != nil {
		tracing.TraceErr(span, err)
		return nil, err
	}
	if entityCount >= entityOverrideThreshold {
		assessment.CooldownMultiplier = escalatedCooldownMultiplier
		assessment.RiskNotes = append(assessment.RiskNotes,
			fmt.Sprintf("%d overrides on this entity in the last 48h: cooldown doubled", entityCount))
	}

	tenantCount, err := s.postgres.StateTransitionRepository.CountOverridesForTenantSince(ctx, tenant, now.Add(-tenantOverrideWindow))
	if err != nil {
		tracing.TraceErr(span, err)
		return nil, err
	}
	if tenantCount >= tenantOverrideThreshold {
		assessment.AccountWarning = true
		assessment.RiskNotes = append(assessment.RiskNotes,
			fmt.Sprintf("%d overrides across the account in the last 7 days", tenantCount))
	}

	resilience, err := s.entityResilience(ctx, tenant, request)
	if err != nil {
		tracing.TraceErr(span, err)
		return nil, err
	}
	if resilience != nil && *resilience < lowResilienceThreshold {
		assessment.JustificationRequired = true
		if len(request.Justification) < minJustificationLength {
			assessment.Permitted = false
			assessment.RiskNotes = append(assessment.RiskNotes,
				fmt.Sprintf("resilience %d is below %d: a written justification of at least %d characters is required",
					*resilience, lowResilienceThreshold, minJustificationLength))
		}
	}

	span.LogFields(tracingLog.Bool("result.permitted", assessment.Permitted))
	return assessment, nil
}

func (s *overrideService) RequestOverride(ctx context.Context, tenant string, request *interfaces.OverrideRequest) (*interfaces.OverrideAssessment, error) {
	span, ctx := opentracing.StartSpanFromContext(ctx, "OverrideService.RequestOverride")
	defer span.Finish()
	tracing.SetDefaultServiceSpanTags(ctx, span)
	tracing.TagTenant(span, tenant)
	tracing.TagEntity(span, request.EntityID)

	assessment, err := s.AssessOverride(ctx, tenant, request)
	if err != nil {
		return nil, err
	}
	if !assessment.Permitted {
		err := errors.Wrap(er.ErrJustificationRequired, "override denied")
		tracing.TraceErr(span, err)
		return assessment, err
	}

	switch request.EntityType {
	case enum.DOMAIN, enum.MAILBOX:
		err = s.applyEntityOverride(ctx, tenant, request, assessment)
	case enum.CAMPAIGN:
		err = s.applyCampaignResume(ctx, tenant, request)
	default:
		err = errors.Wrapf(er.ErrOverrideDenied, "unsupported entity type %s", request.EntityType)
	}
	if err != nil {
		tracing.TraceErr(span, err)
		return assessment, err
	}

	if assessment.AccountWarning {
		if warnErr := s.postgres.TenantSettingsRepository.SetAccountWarning(ctx, tenant, true); warnErr != nil {
			s.log.Errorf("failed to persist account warning for tenant %s: %v", tenant, warnErr)
		}
		s.notifications.NotifyAccountWarning(ctx, tenant, "excessive operator overrides in the last 7 days")
	}

	return assessment, nil
}

// applyEntityOverride forces a paused domain or mailbox back into the
// ladder. It re-enters through quarantine, never straight to healthy,
// with the cooldown scaled by the risk multiplier.
func (s *overrideService) applyEntityOverride(ctx context.Context, tenant string, request *interfaces.OverrideRequest, assessment *interfaces.OverrideAssessment) error {
	span, ctx := opentracing.StartSpanFromContext(ctx, "OverrideService.applyEntityOverride")
	defer span.Finish()
	tracing.SetDefaultServiceSpanTags(ctx, span)
	tracing.TagTenant(span, tenant)

	now := utils.Now()
	cooldown := time.Duration(float64(overrideBaseCooldown) * assessment.CooldownMultiplier)
	cooldownUntil := now.Add(cooldown)
	userID := utils.GetUserIdFromContext(ctx)

	var fromState string
	var save func(context.Context) (bool, error)

	switch request.EntityType {
	case enum.DOMAIN:
		domain, err := s.postgres.DomainRepository.GetByID(ctx, tenant, request.EntityID)
		if err != nil {
			return err
		}
		if domain == nil {
			return er.ErrDomainNotFound
		}
		expected := domain.PhaseEnteredAt
		fromState = overrideFromState(&domain.RecoveryFields, domain.Status)
		domain.EnterPhase(enum.RecoveryPhaseQuarantine, now)
		domain.CooldownUntil = &cooldownUntil
		domain.Status = enum.HealthStatusPaused
		if domain.HealingOrigin == enum.HealingOriginNone {
			domain.HealingOrigin = enum.HealingOriginRecovery
		}
		save = func(ctx context.Context) (bool, error) {
			return s.postgres.DomainRepository.SaveWithPhaseGuard(ctx, domain, expected)
		}
	case enum.MAILBOX:
		mailbox, err := s.postgres.MailboxRepository.GetByID(ctx, tenant, request.EntityID)
		if err != nil {
			return err
		}
		if mailbox == nil {
			return er.ErrMailboxNotFound
		}
		expected := mailbox.PhaseEnteredAt
		fromState = overrideFromState(&mailbox.RecoveryFields, mailbox.Status)
		mailbox.EnterPhase(enum.RecoveryPhaseQuarantine, now)
		mailbox.CooldownUntil = &cooldownUntil
		mailbox.Status = enum.HealthStatusPaused
		if mailbox.HealingOrigin == enum.HealingOriginNone {
			mailbox.HealingOrigin = enum.HealingOriginRecovery
		}
		save = func(ctx context.Context) (bool, error) {
			return s.postgres.MailboxRepository.SaveWithPhaseGuard(ctx, mailbox, expected)
		}
	}

	applied, err := save(ctx)
	if err != nil {
		return err
	}
	if !applied {
		span.LogFields(tracingLog.String("result", "lost phase race, no-op"))
		return nil
	}

	reason := "operator override: " + request.Justification
	transition := &models.StateTransition{
		Tenant:      tenant,
		EntityType:  request.EntityType,
		EntityID:    request.EntityID,
		FromState:   fromState,
		ToState:     enum.RecoveryPhaseQuarantine.String(),
		Reason:      reason,
		TriggeredBy: enum.TriggeredByOperatorOverride,
		UserID:      userID,
	}
	if err := s.postgres.StateTransitionRepository.Create(ctx, transition); err != nil {
		s.log.Errorf("failed to record override transition for %s %s: %v", request.EntityType, request.EntityID, err)
	}
	s.writeAudit(ctx, tenant, request, assessment)
	s.notifications.NotifyStatusChange(ctx, tenant, request.EntityType, request.EntityID, fromState, enum.RecoveryPhaseQuarantine.String(), reason)

	return nil
}

// applyCampaignResume resumes a paused campaign, which is only safe if
// the tenant still has at least one mailbox able to carry the volume.
// The campaign comes back volume-capped through restricted sending,
// never straight to full volume.
func (s *overrideService) applyCampaignResume(ctx context.Context, tenant string, request *interfaces.OverrideRequest) error {
	span, ctx := opentracing.StartSpanFromContext(ctx, "OverrideService.applyCampaignResume")
	defer span.Finish()
	tracing.SetDefaultServiceSpanTags(ctx, span)
	tracing.TagTenant(span, tenant)

	campaign, err := s.postgres.CampaignRepository.GetByID(ctx, tenant, request.EntityID)
	if err != nil {
		return err
	}
	if campaign == nil {
		return er.ErrCampaignNotFound
	}

	mailboxes, err := s.postgres.MailboxRepository.GetByTenant(ctx, tenant)
	if err != nil {
		return err
	}
	eligible := false
	for i := range mailboxes {
		phase := mailboxes[i].RecoveryPhase
		if phase == enum.RecoveryPhaseWarmRecovery || phase == enum.RecoveryPhaseHealthy || (phase == enum.RecoveryPhaseNone && mailboxes[i].Status.IsHealthy()) {
			eligible = true
			break
		}
	}
	if !eligible {
		return er.ErrNoEligibleMailbox
	}

	now := utils.Now()
	expected := campaign.PhaseEnteredAt
	fromState := overrideFromState(&campaign.RecoveryFields, campaign.Status)
	campaign.EnterPhase(enum.RecoveryPhaseRestrictedSend, now)
	campaign.Status = enum.HealthStatusWarning
	campaign.PausedReason = ""
	if campaign.HealingOrigin == enum.HealingOriginNone {
		campaign.HealingOrigin = enum.HealingOriginRecovery
	}

	applied, err := s.postgres.CampaignRepository.SaveWithPhaseGuard(ctx, campaign, expected)
	if err != nil {
		return err
	}
	if !applied {
		span.LogFields(tracingLog.String("result", "lost phase race, no-op"))
		return nil
	}

	if campaign.PlatformCampaignID != "" {
		if err := s.platform.ResumeCampaign(ctx, tenant, campaign.PlatformCampaignID); err != nil {
			s.log.Warnf("platform resume failed for campaign %s: %v", campaign.ID, err)
		}
	}

	reason := "operator override: " + request.Justification
	transition := &models.StateTransition{
		Tenant:      tenant,
		EntityType:  enum.CAMPAIGN,
		EntityID:    campaign.ID,
		FromState:   fromState,
		ToState:     enum.RecoveryPhaseRestrictedSend.String(),
		Reason:      reason,
		TriggeredBy: enum.TriggeredByOperatorOverride,
		UserID:      utils.GetUserIdFromContext(ctx),
	}
	if err := s.postgres.StateTransitionRepository.Create(ctx, transition); err != nil {
		s.log.Errorf("failed to record override transition for campaign %s: %v", campaign.ID, err)
	}
	s.writeAudit(ctx, tenant, request, nil)
	s.notifications.NotifyStatusChange(ctx, tenant, enum.CAMPAIGN, campaign.ID, fromState, enum.RecoveryPhaseRestrictedSend.String(), reason)

	return nil
}

func (s *overrideService) entityResilience(ctx context.Context, tenant string, request *interfaces.OverrideRequest) (*int, error) {
	switch request.EntityType {
	case enum.DOMAIN:
		domain, err := s.postgres.DomainRepository.GetByID(ctx, tenant, request.EntityID)
		if err != nil {
			return nil, err
		}
		if domain == nil {
			return nil, er.ErrDomainNotFound
		}
		return &domain.ResilienceScore, nil
	case enum.MAILBOX:
		mailbox, err := s.postgres.MailboxRepository.GetByID(ctx, tenant, request.EntityID)
		if err != nil {
			return nil, err
		}
		if mailbox == nil {
			return nil, er.ErrMailboxNotFound
		}
		return &mailbox.ResilienceScore, nil
	case enum.CAMPAIGN:
		campaign, err := s.postgres.CampaignRepository.GetByID(ctx, tenant, request.EntityID)
		if err != nil {
			return nil, err
		}
		if campaign == nil {
			return nil, er.ErrCampaignNotFound
		}
		return &campaign.ResilienceScore, nil
	default:
		return nil, nil
	}
}

func (s *overrideService) writeAudit(ctx context.Context, tenant string, request *interfaces.OverrideRequest, assessment *interfaces.OverrideAssessment) {
	details := models.JSONMap{
		"justification": request.Justification,
		"force":         request.Force,
	}
	if assessment != nil {
		details["cooldownMultiplier"] = assessment.CooldownMultiplier
		details["accountWarning"] = assessment.AccountWarning
	}
	entry := &models.AuditLog{
		Tenant:     tenant,
		Action:     "operator_override",
		EntityType: request.EntityType,
		EntityID:   request.EntityID,
		UserID:     utils.GetUserIdFromContext(ctx),
		UserEmail:  utils.GetUserEmailFromContext(ctx),
		Details:    details,
	}
	if err := s.postgres.AuditLogRepository.Create(ctx, entry); err != nil {
		s.log.Errorf("failed to write override audit for %s %s: %v", request.EntityType, request.EntityID, err)
	}
}

func overrideFromState(fields *models.RecoveryFields, status enum.HealthStatus) string {
	if fields.RecoveryPhase != enum.RecoveryPhaseNone {
		return fields.RecoveryPhase.String()
	}
	return status.String()
}
