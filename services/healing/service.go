package healing

import (
	"context"
	"fmt"
	"sync"
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

type healingService struct {
	log           logger.Logger
	postgres      *repository.Repositories
	platform      interfaces.PlatformService
	notifications interfaces.NotificationService

	entityLocksMu sync.Mutex
	entityLocks   map[string]*sync.Mutex
}

func NewHealingService(
	log logger.Logger,
	postgres *repository.Repositories,
	platform interfaces.PlatformService,
	notifications interfaces.NotificationService,
) interfaces.HealingService {
	return &healingService{
		log:           log,
		postgres:      postgres,
		platform:      platform,
		notifications: notifications,
		entityLocks:   make(map[string]*sync.Mutex),
	}
}

// entityHandle is a uniform view over the phase-tracked entities.
// Save applies a compare-and-swap on phase_entered_at; a lost race
// means another writer already moved the entity and this mutation is
// dropped.
type entityHandle struct {
	entityType enum.EntityType
	id         string
	tenant     string
	label      string
	fields     *models.RecoveryFields
	status     enum.HealthStatus
	setStatus  func(enum.HealthStatus)
	save       func(ctx context.Context, expectedPhaseEnteredAt *time.Time) (bool, error)
	dnsClean   func(ctx context.Context) (bool, error)
	mailboxID  string
	platformID string
}

func (s *healingService) lockEntity(entityType enum.EntityType, entityID string) *sync.Mutex {
	key := entityType.String() + ":" + entityID
	s.entityLocksMu.Lock()
	defer s.entityLocksMu.Unlock()
	lock, ok := s.entityLocks[key]
	if !ok {
		lock = &sync.Mutex{}
		s.entityLocks[key] = lock
	}
	return lock
}

func (s *healingService) loadHandle(ctx context.Context, tenant string, entityType enum.EntityType, entityID string) (*entityHandle, error) {
	switch entityType {
	case enum.DOMAIN:
		domain, err := s.postgres.DomainRepository.GetByID(ctx, tenant, entityID)
		if err != nil {
			return nil, err
		}
		if domain == nil {
			return nil, er.ErrDomainNotFound
		}
		return &entityHandle{
			entityType: enum.DOMAIN,
			id:         domain.ID,
			tenant:     tenant,
			label:      domain.Domain,
			fields:     &domain.RecoveryFields,
			status:     domain.Status,
			setStatus:  func(status enum.HealthStatus) { domain.Status = status },
			save: func(ctx context.Context, expected *time.Time) (bool, error) {
				return s.postgres.DomainRepository.SaveWithPhaseGuard(ctx, domain, expected)
			},
			dnsClean: func(ctx context.Context) (bool, error) {
				return domain.DNSConclusivelyClean(), nil
			},
		}, nil
	case enum.MAILBOX:
		mailbox, err := s.postgres.MailboxRepository.GetByID(ctx, tenant, entityID)
		if err != nil {
			return nil, err
		}
		if mailbox == nil {
			return nil, er.ErrMailboxNotFound
		}
		return &entityHandle{
			entityType: enum.MAILBOX,
			id:         mailbox.ID,
			tenant:     tenant,
			label:      mailbox.EmailAddress,
			fields:     &mailbox.RecoveryFields,
			status:     mailbox.Status,
			setStatus:  func(status enum.HealthStatus) { mailbox.Status = status },
			save: func(ctx context.Context, expected *time.Time) (bool, error) {
				return s.postgres.MailboxRepository.SaveWithPhaseGuard(ctx, mailbox, expected)
			},
			dnsClean: func(ctx context.Context) (bool, error) {
				domain, err := s.postgres.DomainRepository.GetByID(ctx, tenant, mailbox.DomainID)
				if err != nil {
					return false, err
				}
				if domain == nil {
					return false, nil
				}
				return domain.DNSConclusivelyClean(), nil
			},
			mailboxID: mailbox.ID,
		}, nil
	case enum.CAMPAIGN:
		campaign, err := s.postgres.CampaignRepository.GetByID(ctx, tenant, entityID)
		if err != nil {
			return nil, err
		}
		if campaign == nil {
			return nil, er.ErrCampaignNotFound
		}
		return &entityHandle{
			entityType: enum.CAMPAIGN,
			id:         campaign.ID,
			tenant:     tenant,
			label:      campaign.Name,
			fields:     &campaign.RecoveryFields,
			status:     campaign.Status,
			setStatus:  func(status enum.HealthStatus) { campaign.Status = status },
			save: func(ctx context.Context, expected *time.Time) (bool, error) {
				return s.postgres.CampaignRepository.SaveWithPhaseGuard(ctx, campaign, expected)
			},
			dnsClean: func(ctx context.Context) (bool, error) {
				// Campaigns have no DNS identity of their own; their
				// mailboxes are gated individually.
				return true, nil
			},
			platformID: campaign.PlatformCampaignID,
		}, nil
	default:
		return nil, er.ErrNotRecovering
	}
}

func (s *healingService) BeginRecovery(ctx context.Context, tenant string, entityType enum.EntityType, entityID, reason string, origin enum.HealingOrigin) error {
	span, ctx := opentracing.StartSpanFromContext(ctx, "HealingService.BeginRecovery")
	defer span.Finish()
	tracing.SetDefaultServiceSpanTags(ctx, span)
	tracing.TagTenant(span, tenant)
	tracing.TagEntity(span, entityID)

	lock := s.lockEntity(entityType, entityID)
	lock.Lock()
	defer lock.Unlock()

	handle, err := s.loadHandle(ctx, tenant, entityType, entityID)
	if err != nil {
		tracing.TraceErr(span, err)
		return err
	}

	if handle.fields.RecoveryPhase.IsRecovering() {
		span.LogFields(tracingLog.String("result", "already recovering"))
		return nil
	}

	expected := handle.fields.PhaseEnteredAt
	fromState := stateLabel(handle)
	now := utils.Now()

	handle.fields.ConsecutivePauses++
	if handle.fields.HealingOrigin == enum.HealingOriginNone {
		handle.fields.HealingOrigin = origin
	}
	cooldown := scaledCooldown(cooldownForOffense(handle.fields.ConsecutivePauses), handle.fields)
	cooldownUntil := now.Add(cooldown)
	handle.fields.CooldownUntil = &cooldownUntil
	handle.fields.EnterPhase(enum.RecoveryPhasePaused, now)
	handle.setStatus(enum.HealthStatusPaused)

	applied, err := handle.save(ctx, expected)
	if err != nil {
		tracing.TraceErr(span, err)
		return err
	}
	if !applied {
		span.LogFields(tracingLog.String("result", "lost phase race, no-op"))
		return nil
	}

	s.recordTransition(ctx, handle, fromState, enum.RecoveryPhasePaused.String(), reason, enum.TriggeredBySystem, "")
	s.audit(ctx, handle, "recovery_started", reason)
	s.notifications.NotifyStatusChange(ctx, tenant, entityType, entityID, fromState, enum.RecoveryPhasePaused.String(), reason)
	s.detachFromPlatform(ctx, handle, reason)

	return nil
}

func (s *healingService) CheckGraduation(ctx context.Context, tenant string, entityType enum.EntityType, entityID string) error {
	span, ctx := opentracing.StartSpanFromContext(ctx, "HealingService.CheckGraduation")
	defer span.Finish()
	tracing.SetDefaultServiceSpanTags(ctx, span)
	tracing.TagTenant(span, tenant)
	tracing.TagEntity(span, entityID)

	lock := s.lockEntity(entityType, entityID)
	lock.Lock()
	defer lock.Unlock()

	handle, err := s.loadHandle(ctx, tenant, entityType, entityID)
	if err != nil {
		tracing.TraceErr(span, err)
		return err
	}

	if !handle.fields.RecoveryPhase.IsRecovering() {
		return nil
	}

	ready, err := s.graduationReady(ctx, span, handle)
	if err != nil {
		tracing.TraceErr(span, err)
		return err
	}
	if !ready {
		return nil
	}

	return s.graduate(ctx, handle)
}

// graduationReady evaluates exactly one phase's criteria. A single
// invocation never advances more than one phase.
func (s *healingService) graduationReady(ctx context.Context, span opentracing.Span, handle *entityHandle) (bool, error) {
	now := utils.Now()
	fields := handle.fields

	switch fields.RecoveryPhase {
	case enum.RecoveryPhasePaused:
		// Cooldown expiry is the only exit condition for the full pause.
		if fields.CooldownUntil != nil && now.Before(*fields.CooldownUntil) {
			span.LogFields(tracingLog.String("result", "cooldown active"))
			return false, nil
		}
		return true, nil

	case enum.RecoveryPhaseQuarantine:
		if fields.CooldownUntil != nil && now.Before(*fields.CooldownUntil) {
			span.LogFields(tracingLog.String("result", "cooldown active"))
			return false, nil
		}
		clean, err := handle.dnsClean(ctx)
		if err != nil {
			return false, err
		}
		if !clean {
			span.LogFields(tracingLog.String("result", "dns not conclusively clean"))
			return false, nil
		}
		return true, nil

	case enum.RecoveryPhaseRestrictedSend:
		required := requiredCleanSends(fields)
		if fields.CleanSendsSincePhase < required {
			span.LogFields(tracingLog.Int("result.cleanSends", fields.CleanSendsSincePhase), tracingLog.Int("result.required", required))
			return false, nil
		}
		return true, nil

	case enum.RecoveryPhaseWarmRecovery:
		targetSends, dwell := warmRecoveryTargets(fields)
		if fields.PhaseSendCount < targetSends {
			return false, nil
		}
		if fields.PhaseEnteredAt == nil || now.Sub(*fields.PhaseEnteredAt) < dwell {
			return false, nil
		}
		if fields.PhaseBounceRate() > warmRecoveryBounceLimit {
			span.LogFields(tracingLog.Float64("result.bounceRate", fields.PhaseBounceRate()))
			return false, nil
		}
		return true, nil

	default:
		return false, nil
	}
}

func (s *healingService) graduate(ctx context.Context, handle *entityHandle) error {
	span, ctx := opentracing.StartSpanFromContext(ctx, "HealingService.graduate")
	defer span.Finish()
	tracing.SetDefaultServiceSpanTags(ctx, span)
	tracing.TagTenant(span, handle.tenant)

	expected := handle.fields.PhaseEnteredAt
	from := handle.fields.RecoveryPhase
	to := from.Next()
	now := utils.Now()

	handle.fields.EnterPhase(to, now)

	// The bonus rewards a completed recovery, not every rung climbed.
	if to == enum.RecoveryPhaseHealthy {
		handle.fields.AdjustResilience(graduationBonus)
		handle.fields.HealingOrigin = enum.HealingOriginNone
		handle.fields.RelapseCount = 0
		handle.fields.CooldownUntil = nil
		handle.setStatus(enum.StatusForRank(0, handle.entityType))
	}

	applied, err := handle.save(ctx, expected)
	if err != nil {
		tracing.TraceErr(span, err)
		return err
	}
	if !applied {
		span.LogFields(tracingLog.String("result", "lost phase race, no-op"))
		return nil
	}

	reason := fmt.Sprintf("graduated from %s", from.String())
	s.recordTransition(ctx, handle, from.String(), to.String(), reason, enum.TriggeredBySystem, "")
	s.audit(ctx, handle, "phase_graduated", reason)
	s.notifications.NotifyStatusChange(ctx, handle.tenant, handle.entityType, handle.id, from.String(), to.String(), reason)

	if to == enum.RecoveryPhaseHealthy {
		s.reattachToPlatform(ctx, handle)
	}

	return nil
}

func (s *healingService) RecordCleanSend(ctx context.Context, tenant string, entityType enum.EntityType, entityID string) error {
	span, ctx := opentracing.StartSpanFromContext(ctx, "HealingService.RecordCleanSend")
	defer span.Finish()
	tracing.SetDefaultServiceSpanTags(ctx, span)
	tracing.TagTenant(span, tenant)
	tracing.TagEntity(span, entityID)

	lock := s.lockEntity(entityType, entityID)
	lock.Lock()
	defer lock.Unlock()

	handle, err := s.loadHandle(ctx, tenant, entityType, entityID)
	if err != nil {
		tracing.TraceErr(span, err)
		return err
	}

	if !handle.fields.RecoveryPhase.IsRecovering() {
		return nil
	}

	expected := handle.fields.PhaseEnteredAt
	handle.fields.PhaseSendCount++
	handle.fields.CleanSendsSincePhase++

	applied, err := handle.save(ctx, expected)
	if err != nil {
		tracing.TraceErr(span, err)
		return err
	}
	if !applied {
		span.LogFields(tracingLog.String("result", "lost phase race, no-op"))
	}
	return nil
}

func (s *healingService) RecordBounce(ctx context.Context, tenant string, entityType enum.EntityType, entityID string, hard bool) error {
	span, ctx := opentracing.StartSpanFromContext(ctx, "HealingService.RecordBounce")
	defer span.Finish()
	tracing.SetDefaultServiceSpanTags(ctx, span)
	tracing.TagTenant(span, tenant)
	tracing.TagEntity(span, entityID)
	span.LogFields(tracingLog.Bool("request.hard", hard))

	lock := s.lockEntity(entityType, entityID)
	lock.Lock()
	defer lock.Unlock()

	handle, err := s.loadHandle(ctx, tenant, entityType, entityID)
	if err != nil {
		tracing.TraceErr(span, err)
		return err
	}

	if !handle.fields.RecoveryPhase.IsRecovering() {
		return nil
	}

	expected := handle.fields.PhaseEnteredAt
	handle.fields.PhaseSendCount++
	if hard {
		handle.fields.PhaseBounceCount++
	}

	applied, err := handle.save(ctx, expected)
	if err != nil {
		tracing.TraceErr(span, err)
		return err
	}
	if !applied {
		span.LogFields(tracingLog.String("result", "lost phase race, no-op"))
		return nil
	}

	// A hard bounce while the entity is actively proving itself is a
	// relapse, not a statistic.
	phase := handle.fields.RecoveryPhase
	if hard && (phase == enum.RecoveryPhaseRestrictedSend || phase == enum.RecoveryPhaseWarmRecovery) {
		return s.applyRelapse(ctx, handle, "hard bounce during recovery")
	}

	return nil
}

func (s *healingService) RecordRelapse(ctx context.Context, tenant string, entityType enum.EntityType, entityID, reason string) error {
	span, ctx := opentracing.StartSpanFromContext(ctx, "HealingService.RecordRelapse")
	defer span.Finish()
	tracing.SetDefaultServiceSpanTags(ctx, span)
	tracing.TagTenant(span, tenant)
	tracing.TagEntity(span, entityID)

	lock := s.lockEntity(entityType, entityID)
	lock.Lock()
	defer lock.Unlock()

	handle, err := s.loadHandle(ctx, tenant, entityType, entityID)
	if err != nil {
		tracing.TraceErr(span, err)
		return err
	}

	if !handle.fields.RecoveryPhase.IsRecovering() {
		return er.ErrNotRecovering
	}

	return s.applyRelapse(ctx, handle, reason)
}

// applyRelapse escalates a recovering entity that failed again. Caller
// holds the entity lock and passes a freshly loaded handle.
func (s *healingService) applyRelapse(ctx context.Context, handle *entityHandle, reason string) error {
	span, ctx := opentracing.StartSpanFromContext(ctx, "HealingService.applyRelapse")
	defer span.Finish()
	tracing.SetDefaultServiceSpanTags(ctx, span)
	tracing.TagTenant(span, handle.tenant)

	expected := handle.fields.PhaseEnteredAt
	from := handle.fields.RecoveryPhase
	now := utils.Now()

	handle.fields.RelapseCount++
	handle.fields.AdjustResilience(-relapsePenalty)

	// Relapse cooldowns are fixed rungs of the ladder; resilience
	// scaling applies to graduation evidence, not to these.
	var to enum.RecoveryPhase
	var cooldown time.Duration
	manualIntervention := false
	switch handle.fields.RelapseCount {
	case 1:
		to = enum.RecoveryPhaseQuarantine
		cooldown = 2 * firstOffenseCooldown
	case 2:
		to = enum.RecoveryPhasePaused
		cooldown = repeatOffenseCooldown
	default:
		to = enum.RecoveryPhasePaused
		cooldown = maxCooldown
		manualIntervention = true
	}

	if to == enum.RecoveryPhasePaused {
		handle.fields.ConsecutivePauses++
	}
	cooldownUntil := now.Add(cooldown)
	handle.fields.CooldownUntil = &cooldownUntil
	handle.fields.EnterPhase(to, now)
	handle.setStatus(enum.HealthStatusPaused)

	applied, err := handle.save(ctx, expected)
	if err != nil {
		tracing.TraceErr(span, err)
		return err
	}
	if !applied {
		span.LogFields(tracingLog.String("result", "lost phase race, no-op"))
		return nil
	}

	relapseReason := fmt.Sprintf("relapse #%d: %s", handle.fields.RelapseCount, reason)
	s.recordTransition(ctx, handle, from.String(), to.String(), relapseReason, enum.TriggeredBySystem, "")
	s.audit(ctx, handle, "relapse", relapseReason)
	s.notifications.NotifyStatusChange(ctx, handle.tenant, handle.entityType, handle.id, from.String(), to.String(), relapseReason)
	if manualIntervention {
		s.notifications.NotifyManualInterventionRequired(ctx, handle.tenant, handle.entityType, handle.id, relapseReason)
	}
	s.detachFromPlatform(ctx, handle, relapseReason)

	return nil
}

func (s *healingService) RunGraduationChecks(ctx context.Context) error {
	span, ctx := opentracing.StartSpanFromContext(ctx, "HealingService.RunGraduationChecks")
	defer span.Finish()
	tracing.SetDefaultServiceSpanTags(ctx, span)

	domains, err := s.postgres.DomainRepository.GetRecoveringCrossTenant(ctx)
	if err != nil {
		tracing.TraceErr(span, err)
		return err
	}
	for _, domain := range domains {
		if err := s.CheckGraduation(ctx, domain.Tenant, enum.DOMAIN, domain.ID); err != nil {
			tracing.TraceErr(span, errors.Wrap(err, "domain graduation check failed"))
			s.log.Errorf("graduation check failed for domain %s: %v", domain.ID, err)
		}
	}

	mailboxes, err := s.postgres.MailboxRepository.GetRecoveringCrossTenant(ctx)
	if err != nil {
		tracing.TraceErr(span, err)
		return err
	}
	for _, mailbox := range mailboxes {
		if err := s.CheckGraduation(ctx, mailbox.Tenant, enum.MAILBOX, mailbox.ID); err != nil {
			tracing.TraceErr(span, errors.Wrap(err, "mailbox graduation check failed"))
			s.log.Errorf("graduation check failed for mailbox %s: %v", mailbox.ID, err)
		}
	}

	campaigns, err := s.postgres.CampaignRepository.GetRecoveringCrossTenant(ctx)
	if err != nil {
		tracing.TraceErr(span, err)
		return err
	}
	for _, campaign := range campaigns {
		if err := s.CheckGraduation(ctx, campaign.Tenant, enum.CAMPAIGN, campaign.ID); err != nil {
			tracing.TraceErr(span, errors.Wrap(err, "campaign graduation check failed"))
			s.log.Errorf("graduation check failed for campaign %s: %v", campaign.ID, err)
		}
	}

	span.LogFields(tracingLog.Int("result.domains", len(domains)), tracingLog.Int("result.mailboxes", len(mailboxes)), tracingLog.Int("result.campaigns", len(campaigns)))
	return nil
}

// recordTransition appends to the state transition trail. Failures are
// logged; the state change itself is already committed.
func (s *healingService) recordTransition(ctx context.Context, handle *entityHandle, from, to, reason string, triggeredBy enum.TriggeredBy, userID string) {
	transition := &models.StateTransition{
		Tenant:      handle.tenant,
		EntityType:  handle.entityType,
		EntityID:    handle.id,
		FromState:   from,
		ToState:     to,
		Reason:      reason,
		TriggeredBy: triggeredBy,
		UserID:      userID,
	}
	if err := s.postgres.StateTransitionRepository.Create(ctx, transition); err != nil {
		s.log.Errorf("failed to record state transition for %s %s: %v", handle.entityType, handle.id, err)
	}
}

func (s *healingService) audit(ctx context.Context, handle *entityHandle, action, details string) {
	entry := &models.AuditLog{
		Tenant:     handle.tenant,
		Action:     action,
		EntityType: handle.entityType,
		EntityID:   handle.id,
		Details:    models.JSONMap{"details": details, "entity": handle.label},
	}
	if err := s.postgres.AuditLogRepository.Create(ctx, entry); err != nil {
		s.log.Errorf("failed to write audit log for %s %s: %v", handle.entityType, handle.id, err)
	}
}

// detachFromPlatform takes a paused entity out of rotation on the
// sending platform. Best effort.
func (s *healingService) detachFromPlatform(ctx context.Context, handle *entityHandle, reason string) {
	if handle.entityType == enum.CAMPAIGN {
		if handle.platformID == "" {
			return
		}
		if err := s.platform.PauseCampaign(ctx, handle.tenant, handle.platformID, reason); err != nil {
			s.log.Warnf("platform pause failed for campaign %s: %v", handle.id, err)
		}
		return
	}
	if handle.entityType != enum.MAILBOX {
		return
	}
	campaigns, err := s.postgres.CampaignRepository.GetByMailbox(ctx, handle.tenant, handle.mailboxID)
	if err != nil {
		s.log.Errorf("failed to list campaigns for mailbox %s: %v", handle.mailboxID, err)
		return
	}
	for _, campaign := range campaigns {
		if campaign.PlatformCampaignID == "" {
			continue
		}
		if err := s.platform.RemoveMailboxFromCampaign(ctx, handle.tenant, campaign.PlatformCampaignID, handle.id); err != nil {
			s.log.Warnf("platform detach failed for mailbox %s campaign %s: %v", handle.id, campaign.ID, err)
		}
	}
}

// reattachToPlatform puts a freshly healthy entity back into rotation.
// Best effort, never rolled back.
func (s *healingService) reattachToPlatform(ctx context.Context, handle *entityHandle) {
	if handle.entityType == enum.CAMPAIGN {
		if handle.platformID == "" {
			return
		}
		if err := s.platform.ResumeCampaign(ctx, handle.tenant, handle.platformID); err != nil {
			s.log.Warnf("platform resume failed for campaign %s: %v", handle.id, err)
		}
		return
	}
	if handle.entityType != enum.MAILBOX {
		return
	}
	campaigns, err := s.postgres.CampaignRepository.GetByMailbox(ctx, handle.tenant, handle.mailboxID)
	if err != nil {
		s.log.Errorf("failed to list campaigns for mailbox %s: %v", handle.mailboxID, err)
		return
	}
	for _, campaign := range campaigns {
		if campaign.PlatformCampaignID == "" {
			continue
		}
		if err := s.platform.AddMailboxToCampaign(ctx, handle.tenant, campaign.PlatformCampaignID, handle.id); err != nil {
			s.log.Warnf("platform reattach failed for mailbox %s campaign %s: %v", handle.id, campaign.ID, err)
		}
	}
}

func stateLabel(handle *entityHandle) string {
	if handle.fields.RecoveryPhase != enum.RecoveryPhaseNone {
		return handle.fields.RecoveryPhase.String()
	}
	return handle.status.String()
}
