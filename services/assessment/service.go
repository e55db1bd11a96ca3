package assessment

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"sync"

	"github.com/customeros/mailwatcher/domainage"
	"github.com/google/uuid"
	"github.com/opentracing/opentracing-go"
	tracingLog "github.com/opentracing/opentracing-go/log"
	"github.com/pkg/errors"

	"github.com/customeros/mailmedic/interfaces"
	"github.com/customeros/mailmedic/internal/enum"
	"github.com/customeros/mailmedic/internal/logger"
	"github.com/customeros/mailmedic/internal/models"
	"github.com/customeros/mailmedic/internal/repository"
	"github.com/customeros/mailmedic/internal/tracing"
	"github.com/customeros/mailmedic/internal/utils"
)

// Bounce-rate decision thresholds.
const (
	mailboxPauseBounceRate   = 0.10
	mailboxWarningBounceRate = 0.05

	campaignPauseBounceRate    = 0.10
	campaignWarningBounceRate  = 0.05
	campaignMinSendsForVerdict = 20

	youngDomainAgeDays = 30
)

type assessmentService struct {
	log           logger.Logger
	postgres      *repository.Repositories
	dnsCheck      interfaces.DNSCheckService
	healing       interfaces.HealingService
	platform      interfaces.PlatformService
	notifications interfaces.NotificationService
	storage       interfaces.StorageService

	tenantLocksMu sync.Mutex
	tenantLocks   map[string]*sync.Mutex

	// domainAge is swappable in tests to avoid live WHOIS lookups.
	domainAge func(domain string) (ageInDays int, known bool)
}

func NewAssessmentService(
	log logger.Logger,
	postgres *repository.Repositories,
	dnsCheck interfaces.DNSCheckService,
	healing interfaces.HealingService,
	platform interfaces.PlatformService,
	notifications interfaces.NotificationService,
	storage interfaces.StorageService,
) interfaces.AssessmentService {
	service := &assessmentService{
		log:           log,
		postgres:      postgres,
		dnsCheck:      dnsCheck,
		healing:       healing,
		platform:      platform,
		notifications: notifications,
		storage:       storage,
		tenantLocks:   make(map[string]*sync.Mutex),
	}
	service.domainAge = service.lookupDomainAge
	return service
}

func (s *assessmentService) lookupDomainAge(domain string) (int, bool) {
	domainDates, err := domainage.GetDomainDates(domain)
	if err != nil {
		s.log.Warnf("cannot determine domain age for %s: %v", domain, err)
		return 0, false
	}
	if !domainDates.Success {
		return 0, false
	}
	return domainDates.CreationAge, true
}

func (s *assessmentService) tenantLock(tenant string) *sync.Mutex {
	s.tenantLocksMu.Lock()
	defer s.tenantLocksMu.Unlock()
	lock, ok := s.tenantLocks[tenant]
	if !ok {
		lock = &sync.Mutex{}
		s.tenantLocks[tenant] = lock
	}
	return lock
}

func (s *assessmentService) Assess(ctx context.Context, tenant string, reportType enum.ReportType) (*models.InfrastructureReport, error) {
	span, ctx := opentracing.StartSpanFromContext(ctx, "AssessmentService.Assess")
	defer span.Finish()
	tracing.SetDefaultServiceSpanTags(ctx, span)
	tracing.TagTenant(span, tenant)
	span.LogKV("request.reportType", reportType.String())

	lock := s.tenantLock(tenant)
	lock.Lock()
	defer lock.Unlock()

	// Lock the gate first. If anything below fails the gate stays
	// locked: no transition runs against a half-finished assessment.
	if _, err := s.postgres.TenantSettingsRepository.GetOrCreate(ctx, tenant); err != nil {
		tracing.TraceErr(span, err)
		return nil, err
	}
	if err := s.postgres.TenantSettingsRepository.LockAssessmentGate(ctx, tenant); err != nil {
		tracing.TraceErr(span, err)
		return nil, err
	}

	run := &assessmentRun{
		tenant:     tenant,
		reportType: reportType,
	}

	if err := s.assessDomains(ctx, run); err != nil {
		tracing.TraceErr(span, err)
		return nil, err
	}
	if err := s.assessMailboxes(ctx, run); err != nil {
		tracing.TraceErr(span, err)
		return nil, err
	}
	if err := s.assessCampaigns(ctx, run); err != nil {
		tracing.TraceErr(span, err)
		return nil, err
	}

	report := run.buildReport()
	report.ID = uuid.NewString()
	s.archiveReport(ctx, report)
	if err := s.postgres.ReportRepository.Create(ctx, report); err != nil {
		tracing.TraceErr(span, err)
		return nil, err
	}
	s.auditReport(ctx, report)

	// Unlock last. Also resets any stale gate acknowledgment.
	if err := s.postgres.TenantSettingsRepository.SetAssessmentCompleted(ctx, tenant); err != nil {
		tracing.TraceErr(span, err)
		return nil, err
	}

	s.notifications.NotifyReportReady(ctx, tenant, report.ID, report.OverallScore)
	span.LogFields(tracingLog.Int("result.overallScore", report.OverallScore))
	return report, nil
}

func (s *assessmentService) AssessAllTenants(ctx context.Context) error {
	span, ctx := opentracing.StartSpanFromContext(ctx, "AssessmentService.AssessAllTenants")
	defer span.Finish()
	tracing.SetDefaultServiceSpanTags(ctx, span)

	tenants, err := s.postgres.DomainRepository.GetDistinctTenants(ctx)
	if err != nil {
		tracing.TraceErr(span, err)
		return err
	}

	for _, tenant := range tenants {
		if _, err := s.Assess(ctx, tenant, enum.ReportTypeScheduled); err != nil {
			tracing.TraceErr(span, errors.Wrapf(err, "scheduled assessment failed for tenant %s", tenant))
			s.log.Errorf("scheduled assessment failed for tenant %s: %v", tenant, err)
		}
	}

	span.LogFields(tracingLog.Int("result.tenants", len(tenants)))
	return nil
}

func (s *assessmentService) HandleSyncCompleted(ctx context.Context, tenant string, snapshot *interfaces.SyncSnapshot) error {
	span, ctx := opentracing.StartSpanFromContext(ctx, "AssessmentService.HandleSyncCompleted")
	defer span.Finish()
	tracing.SetDefaultServiceSpanTags(ctx, span)
	tracing.TagTenant(span, tenant)

	if err := s.ingestCounters(ctx, tenant, snapshot); err != nil {
		tracing.TraceErr(span, err)
		return err
	}

	// Fresh counters immediately re-run the decision tables. A failed
	// assessment propagates to the sync caller; the gate stays locked.
	_, err := s.Assess(ctx, tenant, enum.ReportTypePostSync)
	if err != nil {
		tracing.TraceErr(span, err)
	}
	return err
}

func (s *assessmentService) ingestCounters(ctx context.Context, tenant string, snapshot *interfaces.SyncSnapshot) error {
	span, ctx := opentracing.StartSpanFromContext(ctx, "AssessmentService.ingestCounters")
	defer span.Finish()
	tracing.SetDefaultServiceSpanTags(ctx, span)
	tracing.TagTenant(span, tenant)

	for _, counters := range snapshot.Mailboxes {
		mailbox, err := s.postgres.MailboxRepository.GetByEmailAddress(ctx, tenant, counters.EmailAddress)
		if err != nil {
			return err
		}
		if mailbox == nil {
			s.log.Warnf("sync delivered counters for unknown mailbox %s", counters.EmailAddress)
			continue
		}
		if err := s.postgres.MailboxRepository.IncrementSendCounters(ctx, tenant, mailbox.ID, counters.Sent, counters.Bounced, counters.HardBounced); err != nil {
			return err
		}
		if err := s.postgres.DomainRepository.IncrementSendCounters(ctx, tenant, mailbox.DomainID, counters.Sent, counters.Bounced, counters.HardBounced); err != nil {
			return err
		}
	}

	campaigns, err := s.postgres.CampaignRepository.GetByTenant(ctx, tenant)
	if err != nil {
		return err
	}
	byPlatformID := make(map[string]*models.Campaign, len(campaigns))
	for i := range campaigns {
		byPlatformID[campaigns[i].PlatformCampaignID] = &campaigns[i]
	}
	for _, counters := range snapshot.Campaigns {
		campaign, ok := byPlatformID[counters.PlatformCampaignID]
		if !ok {
			s.log.Warnf("sync delivered counters for unknown campaign %s", counters.PlatformCampaignID)
			continue
		}
		campaign.TotalSent += counters.Sent
		campaign.TotalBounced += counters.Bounced
		campaign.RecalculateBounceRate()
		if err := s.postgres.CampaignRepository.Save(ctx, campaign); err != nil {
			return err
		}
	}

	return nil
}

// assessmentRun accumulates verdicts for one tenant.
type assessmentRun struct {
	tenant     string
	reportType enum.ReportType

	domainsChecked  int
	mailboxesScored int
	totalEntities   int
	healthyEntities int

	findings        models.Findings
	recommendations []string
	domainStatuses  map[string]enum.HealthStatus
}

func (r *assessmentRun) record(status enum.HealthStatus) {
	r.totalEntities++
	if status.IsHealthy() {
		r.healthyEntities++
	}
}

func (r *assessmentRun) addFinding(severity enum.FindingSeverity, category string, entityType enum.EntityType, entity, description, remediation string) {
	r.findings = append(r.findings, models.Finding{
		Severity:    severity,
		Category:    category,
		EntityType:  entityType,
		Entity:      entity,
		Description: description,
		Remediation: remediation,
	})
	if remediation != "" && severity != enum.FindingSeverityInfo {
		r.recommendations = append(r.recommendations, remediation)
	}
}

func (r *assessmentRun) buildReport() *models.InfrastructureReport {
	score := 0
	if r.totalEntities > 0 {
		score = int(math.Round(100 * float64(r.healthyEntities) / float64(r.totalEntities)))
	}

	summary := models.JSONMap{
		"totalEntities":   r.totalEntities,
		"healthyEntities": r.healthyEntities,
	}
	bySeverity := map[string]int{}
	byCategory := map[string]int{}
	for _, finding := range r.findings {
		bySeverity[finding.Severity.String()]++
		byCategory[finding.Category]++
	}
	summary["findingsBySeverity"] = bySeverity
	summary["findingsByCategory"] = byCategory

	return &models.InfrastructureReport{
		Tenant:          r.tenant,
		ReportType:      r.reportType,
		OverallScore:    score,
		DomainsChecked:  r.domainsChecked,
		MailboxesScored: r.mailboxesScored,
		Summary:         summary,
		Findings:        r.findings,
		Recommendations: r.recommendations,
	}
}

func (s *assessmentService) assessDomains(ctx context.Context, run *assessmentRun) error {
	span, ctx := opentracing.StartSpanFromContext(ctx, "AssessmentService.assessDomains")
	defer span.Finish()
	tracing.SetDefaultServiceSpanTags(ctx, span)
	tracing.TagTenant(span, run.tenant)

	domains, err := s.postgres.DomainRepository.GetActiveDomains(ctx, run.tenant)
	if err != nil {
		return err
	}
	run.domainStatuses = make(map[string]enum.HealthStatus, len(domains))

	for i := range domains {
		domain := &domains[i]
		check, err := s.dnsCheck.CheckDomain(ctx, domain.Domain)
		if err != nil {
			return errors.Wrapf(err, "dns check failed for %s", domain.Domain)
		}
		run.domainsChecked++

		now := utils.Now()
		domain.SPFValid = check.SPFValid
		domain.DKIMValid = check.DKIMValid
		domain.DMARCPolicy = check.DMARCPolicy
		domain.BlacklistResults = check.Blacklists
		domain.DNSScore = check.Score
		domain.LastDNSCheckAt = &now
		if err := s.postgres.DomainRepository.UpdateDNSResults(ctx, domain); err != nil {
			return err
		}

		status := s.domainVerdict(run, domain, check)
		s.domainAgeFinding(run, domain.Domain)
		run.domainStatuses[domain.ID] = status
		// A recovering domain keeps its ladder status until it graduates;
		// the score must count what is actually persisted, not the raw
		// verdict, or a mid-recovery tenant looks healthier than it is.
		if domain.RecoveryPhase.IsRecovering() {
			run.record(domain.Status)
		} else {
			run.record(status)
		}

		switch status {
		case enum.HealthStatusPaused:
			if err := s.healing.BeginRecovery(ctx, run.tenant, enum.DOMAIN, domain.ID, "confirmed blacklist listing", originForReport(run.reportType)); err != nil {
				return err
			}
		case enum.HealthStatusWarning:
			if !domain.RecoveryPhase.IsRecovering() && domain.Status != enum.HealthStatusWarning {
				domain.Status = enum.HealthStatusWarning
				if err := s.postgres.DomainRepository.Save(ctx, domain); err != nil {
					return err
				}
			}
		default:
			if !domain.RecoveryPhase.IsRecovering() && domain.Status != enum.HealthStatusHealthy {
				domain.Status = enum.HealthStatusHealthy
				if err := s.postgres.DomainRepository.Save(ctx, domain); err != nil {
					return err
				}
			}
		}
	}

	return nil
}

// domainVerdict applies the domain decision table and collects the
// matching findings. A confirmed listing pauses; weak or unknown
// authentication warns; DMARC is informational only.
func (s *assessmentService) domainVerdict(run *assessmentRun, domain *models.Domain, check *interfaces.DomainHealthCheck) enum.HealthStatus {
	status := enum.HealthStatusHealthy

	if check.Blacklists.AnyConfirmed() {
		status = enum.HealthStatusPaused
		for blacklist, result := range check.Blacklists {
			if result == enum.BlacklistConfirmed {
				run.addFinding(enum.FindingSeverityCritical, "blacklist", enum.DOMAIN, domain.Domain,
					fmt.Sprintf("domain is listed on %s", blacklist.Zone()),
					fmt.Sprintf("request delisting from %s before resuming sends", blacklist.Zone()))
			}
		}
	} else {
		if check.Blacklists.AnyUnreachable() {
			status = enum.HealthStatusWarning
			run.addFinding(enum.FindingSeverityWarning, "blacklist", enum.DOMAIN, domain.Domain,
				"one or more blacklist probes were unreachable; listing state unknown",
				"re-run the assessment once the resolvers are reachable")
		}
		if check.SPFValid == nil || !*check.SPFValid {
			status = enum.HealthStatusWarning
			run.addFinding(enum.FindingSeverityWarning, "spf", enum.DOMAIN, domain.Domain,
				"SPF record is missing or could not be verified",
				"publish a v=spf1 TXT record authorizing your senders")
		}
		if check.DKIMValid != nil && !*check.DKIMValid {
			status = enum.HealthStatusWarning
			run.addFinding(enum.FindingSeverityWarning, "dkim", enum.DOMAIN, domain.Domain,
				"no DKIM key found on any common selector",
				"publish a DKIM key and sign outgoing mail")
		}
	}

	if check.DMARCPolicy == nil {
		run.addFinding(enum.FindingSeverityInfo, "dmarc", enum.DOMAIN, domain.Domain,
			"no DMARC policy published", "publish a DMARC policy, starting with p=none")
	} else if *check.DMARCPolicy == "none" {
		run.addFinding(enum.FindingSeverityInfo, "dmarc", enum.DOMAIN, domain.Domain,
			"DMARC policy is p=none", "tighten the DMARC policy to quarantine or reject")
	}

	return status
}

func (s *assessmentService) domainAgeFinding(run *assessmentRun, domain string) {
	ageInDays, known := s.domainAge(domain)
	if !known {
		return
	}
	if ageInDays <= youngDomainAgeDays {
		run.addFinding(enum.FindingSeverityInfo, "domain_age", enum.DOMAIN, domain,
			fmt.Sprintf("domain is only %d days old", ageInDays),
			"warm up young domains slowly before full campaign volume")
	}
}

func (s *assessmentService) assessMailboxes(ctx context.Context, run *assessmentRun) error {
	span, ctx := opentracing.StartSpanFromContext(ctx, "AssessmentService.assessMailboxes")
	defer span.Finish()
	tracing.SetDefaultServiceSpanTags(ctx, span)
	tracing.TagTenant(span, run.tenant)

	mailboxes, err := s.postgres.MailboxRepository.GetByTenant(ctx, run.tenant)
	if err != nil {
		return err
	}

	for i := range mailboxes {
		mailbox := &mailboxes[i]
		run.mailboxesScored++

		status := enum.HealthStatusHealthy
		reason := ""
		bounceRate := mailbox.HistoricalBounceRate()
		switch {
		case bounceRate >= mailboxPauseBounceRate:
			status = enum.HealthStatusPaused
			reason = fmt.Sprintf("hard bounce rate %.1f%% exceeds %.0f%%", bounceRate*100, mailboxPauseBounceRate*100)
			run.addFinding(enum.FindingSeverityCritical, "bounce_rate", enum.MAILBOX, mailbox.EmailAddress,
				reason, "clean the recipient list and verify addresses before sending")
		case bounceRate >= mailboxWarningBounceRate:
			status = enum.HealthStatusWarning
			run.addFinding(enum.FindingSeverityWarning, "bounce_rate", enum.MAILBOX, mailbox.EmailAddress,
				fmt.Sprintf("hard bounce rate %.1f%% exceeds %.0f%%", bounceRate*100, mailboxWarningBounceRate*100),
				"review recent recipient quality for this mailbox")
		}

		// A mailbox is never healthier than its domain.
		if domainStatus, ok := run.domainStatuses[mailbox.DomainID]; ok && domainStatus.Rank() > status.Rank() {
			status = domainStatus
			if reason == "" {
				reason = "domain health ceiling"
			}
		}
		// Mid-recovery mailboxes count with their persisted ladder
		// status, not the raw verdict.
		if mailbox.RecoveryPhase.IsRecovering() {
			run.record(mailbox.Status)
		} else {
			run.record(status)
		}

		switch status {
		case enum.HealthStatusPaused:
			if err := s.healing.BeginRecovery(ctx, run.tenant, enum.MAILBOX, mailbox.ID, reason, originForReport(run.reportType)); err != nil {
				return err
			}
		case enum.HealthStatusWarning:
			if !mailbox.RecoveryPhase.IsRecovering() && mailbox.Status != enum.HealthStatusWarning {
				mailbox.Status = enum.HealthStatusWarning
				if err := s.postgres.MailboxRepository.Save(ctx, mailbox); err != nil {
					return err
				}
			}
		default:
			if !mailbox.RecoveryPhase.IsRecovering() && mailbox.Status != enum.HealthStatusHealthy {
				mailbox.Status = enum.HealthStatusHealthy
				if err := s.postgres.MailboxRepository.Save(ctx, mailbox); err != nil {
					return err
				}
			}
		}
	}

	return nil
}

func (s *assessmentService) assessCampaigns(ctx context.Context, run *assessmentRun) error {
	span, ctx := opentracing.StartSpanFromContext(ctx, "AssessmentService.assessCampaigns")
	defer span.Finish()
	tracing.SetDefaultServiceSpanTags(ctx, span)
	tracing.TagTenant(span, run.tenant)

	campaigns, err := s.postgres.CampaignRepository.GetByTenant(ctx, run.tenant)
	if err != nil {
		return err
	}

	for i := range campaigns {
		campaign := &campaigns[i]

		// A campaign working its way back up the ladder is owned by the
		// healing engine; the assessment only counts its current status.
		if campaign.RecoveryPhase.IsRecovering() {
			run.record(campaign.Status)
			continue
		}

		status := campaign.Status
		reason := ""

		// Bounce thresholds only apply to campaigns that were actually
		// running and have enough volume for the rate to mean anything.
		if campaign.Status == enum.HealthStatusActive && campaign.TotalSent >= campaignMinSendsForVerdict {
			switch {
			case campaign.BounceRate >= campaignPauseBounceRate:
				status = enum.HealthStatusPaused
				reason = fmt.Sprintf("campaign bounce rate %.1f%% exceeds %.0f%%", campaign.BounceRate*100, campaignPauseBounceRate*100)
				run.addFinding(enum.FindingSeverityCritical, "bounce_rate", enum.CAMPAIGN, campaign.Name,
					reason, "pause the campaign and clean the recipient list")
			case campaign.BounceRate >= campaignWarningBounceRate:
				status = enum.HealthStatusWarning
				campaign.WarningCount++
				if err := s.postgres.CampaignRepository.Save(ctx, campaign); err != nil {
					return err
				}
				run.addFinding(enum.FindingSeverityWarning, "bounce_rate", enum.CAMPAIGN, campaign.Name,
					fmt.Sprintf("campaign bounce rate %.1f%% exceeds %.0f%%", campaign.BounceRate*100, campaignWarningBounceRate*100),
					"review recipient quality for this campaign")
			}
		}

		// A campaign is never healthier than its worst mailbox.
		worstRank := status.Rank()
		for _, mailbox := range campaign.Mailboxes {
			if mailbox.Status.Rank() > worstRank {
				worstRank = mailbox.Status.Rank()
				reason = fmt.Sprintf("mailbox %s is %s", mailbox.EmailAddress, mailbox.Status)
			}
		}
		status = enum.StatusForRank(worstRank, enum.CAMPAIGN)
		run.record(status)

		if status == campaign.Status {
			continue
		}

		fromState := campaign.Status.String()
		if err := s.postgres.CampaignRepository.UpdateStatus(ctx, run.tenant, campaign.ID, status, reason); err != nil {
			return err
		}
		if status == enum.HealthStatusPaused && campaign.PlatformCampaignID != "" {
			if err := s.platform.PauseCampaign(ctx, run.tenant, campaign.PlatformCampaignID, reason); err != nil {
				s.log.Warnf("platform pause failed for campaign %s: %v", campaign.ID, err)
			}
		}
		transition := &models.StateTransition{
			Tenant:      run.tenant,
			EntityType:  enum.CAMPAIGN,
			EntityID:    campaign.ID,
			FromState:   fromState,
			ToState:     status.String(),
			Reason:      reason,
			TriggeredBy: enum.TriggeredBySystem,
		}
		if err := s.postgres.StateTransitionRepository.Create(ctx, transition); err != nil {
			s.log.Errorf("failed to record campaign transition for %s: %v", campaign.ID, err)
		}
		s.notifications.NotifyStatusChange(ctx, run.tenant, enum.CAMPAIGN, campaign.ID, fromState, status.String(), reason)
	}

	return nil
}

// archiveReport pushes a JSON snapshot of the report to object storage.
// Best effort: archival never fails an assessment.
func (s *assessmentService) archiveReport(ctx context.Context, report *models.InfrastructureReport) {
	if s.storage == nil {
		return
	}
	payload, err := json.Marshal(report)
	if err != nil {
		s.log.Errorf("failed to marshal report %s for archival: %v", report.ID, err)
		return
	}
	key := fmt.Sprintf("reports/%s/%s.json", report.Tenant, report.ID)
	if err := s.storage.Upload(ctx, key, payload, "application/json"); err != nil {
		s.log.Warnf("failed to archive report %s: %v", report.ID, err)
		return
	}
	report.ArchiveKey = key
}

func (s *assessmentService) auditReport(ctx context.Context, report *models.InfrastructureReport) {
	entry := &models.AuditLog{
		Tenant: report.Tenant,
		Action: "assessment_completed",
		Details: models.JSONMap{
			"reportId":     report.ID,
			"reportType":   report.ReportType.String(),
			"overallScore": report.OverallScore,
			"findings":     len(report.Findings),
		},
	}
	if err := s.postgres.AuditLogRepository.Create(ctx, entry); err != nil {
		s.log.Errorf("failed to write assessment audit for tenant %s: %v", report.Tenant, err)
	}
}

// originForReport maps the report type to the healing origin: damage
// found at onboarding is rehab, everything later is in-service decay.
func originForReport(reportType enum.ReportType) enum.HealingOrigin {
	if reportType == enum.ReportTypeOnboarding {
		return enum.HealingOriginRehab
	}
	return enum.HealingOriginRecovery
}
