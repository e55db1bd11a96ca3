package assessment

import (
	"context"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/customeros/mailmedic/interfaces"
	"github.com/customeros/mailmedic/internal/enum"
	"github.com/customeros/mailmedic/internal/logger"
	"github.com/customeros/mailmedic/internal/models"
	"github.com/customeros/mailmedic/internal/repository"
	"github.com/customeros/mailmedic/internal/utils"
)

const testTenant = "tenant-a"

type fakeDomainRepo struct {
	repository.DomainRepository
	domains map[string]*models.Domain
}

func (f *fakeDomainRepo) GetActiveDomains(ctx context.Context, tenant string) ([]models.Domain, error) {
	var out []models.Domain
	for _, domain := range f.domains {
		if domain.Active {
			out = append(out, *domain)
		}
	}
	return out, nil
}

func (f *fakeDomainRepo) GetDistinctTenants(ctx context.Context) ([]string, error) {
	return []string{testTenant}, nil
}

func (f *fakeDomainRepo) Save(ctx context.Context, domain *models.Domain) error {
	copied := *domain
	f.domains[domain.ID] = &copied
	return nil
}

func (f *fakeDomainRepo) UpdateDNSResults(ctx context.Context, domain *models.Domain) error {
	stored, ok := f.domains[domain.ID]
	if !ok {
		return errors.New("domain not found")
	}
	stored.SPFValid = domain.SPFValid
	stored.DKIMValid = domain.DKIMValid
	stored.DMARCPolicy = domain.DMARCPolicy
	stored.BlacklistResults = domain.BlacklistResults
	stored.DNSScore = domain.DNSScore
	stored.LastDNSCheckAt = domain.LastDNSCheckAt
	return nil
}

func (f *fakeDomainRepo) IncrementSendCounters(ctx context.Context, tenant, id string, sent, bounced, hardBounced int64) error {
	stored, ok := f.domains[id]
	if !ok {
		return errors.New("domain not found")
	}
	stored.TotalSent += sent
	stored.TotalBounced += bounced
	stored.HardBounceCount += hardBounced
	return nil
}

type fakeMailboxRepo struct {
	repository.MailboxRepository
	mailboxes map[string]*models.Mailbox
}

func (f *fakeMailboxRepo) GetByTenant(ctx context.Context, tenant string) ([]models.Mailbox, error) {
	var out []models.Mailbox
	for _, mailbox := range f.mailboxes {
		out = append(out, *mailbox)
	}
	return out, nil
}

func (f *fakeMailboxRepo) GetByEmailAddress(ctx context.Context, tenant, emailAddress string) (*models.Mailbox, error) {
	for _, mailbox := range f.mailboxes {
		if mailbox.EmailAddress == emailAddress {
			copied := *mailbox
			return &copied, nil
		}
	}
	return nil, nil
}

func (f *fakeMailboxRepo) Save(ctx context.Context, mailbox *models.Mailbox) error {
	copied := *mailbox
	f.mailboxes[mailbox.ID] = &copied
	return nil
}

func (f *fakeMailboxRepo) IncrementSendCounters(ctx context.Context, tenant, id string, sent, bounced, hardBounced int64) error {
	stored, ok := f.mailboxes[id]
	if !ok {
		return errors.New("mailbox not found")
	}
	stored.TotalSent += sent
	stored.TotalBounced += bounced
	stored.HardBounceCount += hardBounced
	return nil
}

type fakeCampaignRepo struct {
	repository.CampaignRepository
	campaigns map[string]*models.Campaign
}

func (f *fakeCampaignRepo) GetByTenant(ctx context.Context, tenant string) ([]models.Campaign, error) {
	var out []models.Campaign
	for _, campaign := range f.campaigns {
		out = append(out, *campaign)
	}
	return out, nil
}

func (f *fakeCampaignRepo) Save(ctx context.Context, campaign *models.Campaign) error {
	copied := *campaign
	f.campaigns[campaign.ID] = &copied
	return nil
}

func (f *fakeCampaignRepo) UpdateStatus(ctx context.Context, tenant, id string, status enum.HealthStatus, reason string) error {
	stored, ok := f.campaigns[id]
	if !ok {
		return errors.New("campaign not found")
	}
	stored.Status = status
	stored.PausedReason = reason
	return nil
}

type fakeTransitionRepo struct {
	repository.StateTransitionRepository
	transitions []models.StateTransition
}

func (f *fakeTransitionRepo) Create(ctx context.Context, transition *models.StateTransition) error {
	f.transitions = append(f.transitions, *transition)
	return nil
}

type fakeReportRepo struct {
	repository.ReportRepository
	reports []models.InfrastructureReport
}

func (f *fakeReportRepo) Create(ctx context.Context, report *models.InfrastructureReport) error {
	f.reports = append(f.reports, *report)
	return nil
}

type fakeAuditRepo struct {
	repository.AuditLogRepository
	entries []models.AuditLog
}

func (f *fakeAuditRepo) Create(ctx context.Context, entry *models.AuditLog) error {
	f.entries = append(f.entries, *entry)
	return nil
}

type fakeSettingsRepo struct {
	repository.TenantSettingsRepository
	settings map[string]*models.TenantSettings
	locks    int
}

func (f *fakeSettingsRepo) GetOrCreate(ctx context.Context, tenant string) (*models.TenantSettings, error) {
	if settings, ok := f.settings[tenant]; ok {
		copied := *settings
		return &copied, nil
	}
	settings := &models.TenantSettings{Tenant: tenant}
	f.settings[tenant] = settings
	copied := *settings
	return &copied, nil
}

func (f *fakeSettingsRepo) LockAssessmentGate(ctx context.Context, tenant string) error {
	f.locks++
	settings := f.settings[tenant]
	settings.AssessmentCompleted = false
	return nil
}

func (f *fakeSettingsRepo) SetAssessmentCompleted(ctx context.Context, tenant string) error {
	settings := f.settings[tenant]
	settings.AssessmentCompleted = true
	settings.LastAssessmentAt = utils.NowPtr()
	settings.GateAcknowledged = false
	return nil
}

type fakeDNSCheck struct {
	checks map[string]*interfaces.DomainHealthCheck
	err    error
}

func (f *fakeDNSCheck) CheckDomain(ctx context.Context, domain string) (*interfaces.DomainHealthCheck, error) {
	if f.err != nil {
		return nil, f.err
	}
	check, ok := f.checks[domain]
	if !ok {
		return nil, errors.Errorf("no check configured for %s", domain)
	}
	return check, nil
}

func (f *fakeDNSCheck) InvalidateCache(domain string) {}

type recoveryCall struct {
	entityType enum.EntityType
	entityID   string
	reason     string
	origin     enum.HealingOrigin
}

type fakeHealing struct {
	interfaces.HealingService
	calls []recoveryCall
}

func (f *fakeHealing) BeginRecovery(ctx context.Context, tenant string, entityType enum.EntityType, entityID, reason string, origin enum.HealingOrigin) error {
	f.calls = append(f.calls, recoveryCall{entityType: entityType, entityID: entityID, reason: reason, origin: origin})
	return nil
}

type fakePlatform struct {
	interfaces.PlatformService
	pausedCampaigns []string
}

func (f *fakePlatform) PauseCampaign(ctx context.Context, tenant, platformCampaignID, reason string) error {
	f.pausedCampaigns = append(f.pausedCampaigns, platformCampaignID)
	return nil
}

type fakeNotifications struct {
	statusChanges int
	reportsReady  int
}

func (f *fakeNotifications) NotifyStatusChange(ctx context.Context, tenant string, entityType enum.EntityType, entityID, fromState, toState, reason string) {
	f.statusChanges++
}

func (f *fakeNotifications) NotifyManualInterventionRequired(ctx context.Context, tenant string, entityType enum.EntityType, entityID, reason string) {
}

func (f *fakeNotifications) NotifyAccountWarning(ctx context.Context, tenant, reason string) {}

func (f *fakeNotifications) NotifyReportReady(ctx context.Context, tenant, reportID string, overallScore int) {
	f.reportsReady++
}

type fakeStorage struct {
	interfaces.StorageService
	uploads map[string][]byte
}

func (f *fakeStorage) Upload(ctx context.Context, key string, data []byte, contentType string) error {
	f.uploads[key] = data
	return nil
}

type assessmentFixture struct {
	service       *assessmentService
	domains       *fakeDomainRepo
	mailboxes     *fakeMailboxRepo
	campaigns     *fakeCampaignRepo
	transitions   *fakeTransitionRepo
	reports       *fakeReportRepo
	audit         *fakeAuditRepo
	settings      *fakeSettingsRepo
	dns           *fakeDNSCheck
	healing       *fakeHealing
	platform      *fakePlatform
	notifications *fakeNotifications
	storage       *fakeStorage
}

func newAssessmentFixture() *assessmentFixture {
	appLogger := logger.NewAppLogger(&logger.Config{DevMode: true})
	appLogger.InitLogger()

	fixture := &assessmentFixture{
		domains:       &fakeDomainRepo{domains: make(map[string]*models.Domain)},
		mailboxes:     &fakeMailboxRepo{mailboxes: make(map[string]*models.Mailbox)},
		campaigns:     &fakeCampaignRepo{campaigns: make(map[string]*models.Campaign)},
		transitions:   &fakeTransitionRepo{},
		reports:       &fakeReportRepo{},
		audit:         &fakeAuditRepo{},
		settings:      &fakeSettingsRepo{settings: make(map[string]*models.TenantSettings)},
		dns:           &fakeDNSCheck{checks: make(map[string]*interfaces.DomainHealthCheck)},
		healing:       &fakeHealing{},
		platform:      &fakePlatform{},
		notifications: &fakeNotifications{},
		storage:       &fakeStorage{uploads: make(map[string][]byte)},
	}
	repos := &repository.Repositories{
		DomainRepository:          fixture.domains,
		MailboxRepository:         fixture.mailboxes,
		CampaignRepository:        fixture.campaigns,
		StateTransitionRepository: fixture.transitions,
		ReportRepository:          fixture.reports,
		AuditLogRepository:        fixture.audit,
		TenantSettingsRepository:  fixture.settings,
	}
	service := NewAssessmentService(appLogger, repos, fixture.dns, fixture.healing, fixture.platform, fixture.notifications, fixture.storage)
	fixture.service = service.(*assessmentService)
	fixture.service.domainAge = func(domain string) (int, bool) { return 3650, true }
	return fixture
}

func (f *assessmentFixture) addDomain(id, name string) *models.Domain {
	domain := &models.Domain{
		ID:     id,
		Tenant: testTenant,
		Domain: name,
		Active: true,
		Status: enum.HealthStatusHealthy,
	}
	f.domains.domains[id] = domain
	return domain
}

func cleanResults() models.BlacklistResults {
	results := models.BlacklistResults{}
	for _, blacklist := range enum.Blacklists() {
		results[blacklist] = enum.BlacklistNotListed
	}
	return results
}

func healthyCheck(domain string) *interfaces.DomainHealthCheck {
	return &interfaces.DomainHealthCheck{
		Domain:      domain,
		SPFValid:    utils.BoolPtr(true),
		DKIMValid:   utils.BoolPtr(true),
		DMARCPolicy: utils.StringPtr("reject"),
		Blacklists:  cleanResults(),
		Score:       100,
	}
}

func TestAssess_HealthyDomainScoresHundred(t *testing.T) {
	// Arrange
	fixture := newAssessmentFixture()
	fixture.addDomain("dom-1", "example.com")
	fixture.dns.checks["example.com"] = healthyCheck("example.com")

	// Act
	report, err := fixture.service.Assess(context.Background(), testTenant, enum.ReportTypeScheduled)

	// Assert
	require.NoError(t, err)
	assert.Equal(t, 100, report.OverallScore)
	assert.Equal(t, 1, report.DomainsChecked)
	assert.Empty(t, fixture.healing.calls)
	assert.True(t, fixture.settings.settings[testTenant].AssessmentCompleted)
	assert.Equal(t, 1, fixture.notifications.reportsReady)
	require.Len(t, fixture.reports.reports, 1)

	stored := fixture.domains.domains["dom-1"]
	require.NotNil(t, stored.LastDNSCheckAt)
	assert.Equal(t, 100, stored.DNSScore)
}

func TestAssess_ConfirmedBlacklistPausesDomain(t *testing.T) {
	fixture := newAssessmentFixture()
	fixture.addDomain("dom-1", "example.com")
	check := healthyCheck("example.com")
	check.Blacklists[enum.BlacklistSpamhaus] = enum.BlacklistConfirmed
	check.Score = 70
	fixture.dns.checks["example.com"] = check

	report, err := fixture.service.Assess(context.Background(), testTenant, enum.ReportTypeScheduled)

	require.NoError(t, err)
	assert.Equal(t, 0, report.OverallScore)
	require.Len(t, fixture.healing.calls, 1)
	assert.Equal(t, enum.DOMAIN, fixture.healing.calls[0].entityType)
	assert.Equal(t, "dom-1", fixture.healing.calls[0].entityID)
	assert.Equal(t, enum.HealingOriginRecovery, fixture.healing.calls[0].origin)

	var critical int
	for _, finding := range report.Findings {
		if finding.Severity == enum.FindingSeverityCritical && finding.Category == "blacklist" {
			critical++
		}
	}
	assert.Equal(t, 1, critical)
}

func TestAssess_RecoveringDomainScoresPersistedStatus(t *testing.T) {
	fixture := newAssessmentFixture()
	domain := fixture.addDomain("dom-1", "example.com")
	now := utils.Now()
	domain.Status = enum.HealthStatusPaused
	domain.RecoveryPhase = enum.RecoveryPhaseWarmRecovery
	domain.PhaseEnteredAt = &now
	// A clean verdict mid-recovery must not make the tenant look
	// healthy; the ladder still holds the domain paused.
	fixture.dns.checks["example.com"] = healthyCheck("example.com")

	report, err := fixture.service.Assess(context.Background(), testTenant, enum.ReportTypeScheduled)

	require.NoError(t, err)
	assert.Equal(t, 0, report.OverallScore)
	assert.Empty(t, fixture.healing.calls)
}

func TestAssess_OnboardingDamageGetsRehabOrigin(t *testing.T) {
	fixture := newAssessmentFixture()
	fixture.addDomain("dom-1", "example.com")
	check := healthyCheck("example.com")
	check.Blacklists[enum.BlacklistSpamcop] = enum.BlacklistConfirmed
	fixture.dns.checks["example.com"] = check

	_, err := fixture.service.Assess(context.Background(), testTenant, enum.ReportTypeOnboarding)

	require.NoError(t, err)
	require.Len(t, fixture.healing.calls, 1)
	assert.Equal(t, enum.HealingOriginRehab, fixture.healing.calls[0].origin)
}

func TestAssess_UnreachableProbeWarnsButDoesNotPause(t *testing.T) {
	fixture := newAssessmentFixture()
	fixture.addDomain("dom-1", "example.com")
	check := healthyCheck("example.com")
	check.Blacklists[enum.BlacklistSorbs] = enum.BlacklistUnreachable
	fixture.dns.checks["example.com"] = check

	report, err := fixture.service.Assess(context.Background(), testTenant, enum.ReportTypeScheduled)

	require.NoError(t, err)
	assert.Empty(t, fixture.healing.calls)
	assert.Equal(t, 0, report.OverallScore)
	assert.Equal(t, enum.HealthStatusWarning, fixture.domains.domains["dom-1"].Status)
}

func TestAssess_MissingSPFWarns(t *testing.T) {
	fixture := newAssessmentFixture()
	fixture.addDomain("dom-1", "example.com")
	check := healthyCheck("example.com")
	check.SPFValid = nil
	fixture.dns.checks["example.com"] = check

	report, err := fixture.service.Assess(context.Background(), testTenant, enum.ReportTypeScheduled)

	require.NoError(t, err)
	assert.Equal(t, enum.HealthStatusWarning, fixture.domains.domains["dom-1"].Status)

	var found bool
	for _, finding := range report.Findings {
		if finding.Category == "spf" {
			found = true
		}
	}
	assert.True(t, found)
}

func TestAssess_RelaxedDMARCIsInformationalOnly(t *testing.T) {
	fixture := newAssessmentFixture()
	fixture.addDomain("dom-1", "example.com")
	check := healthyCheck("example.com")
	check.DMARCPolicy = utils.StringPtr("none")
	fixture.dns.checks["example.com"] = check

	report, err := fixture.service.Assess(context.Background(), testTenant, enum.ReportTypeScheduled)

	require.NoError(t, err)
	assert.Equal(t, 100, report.OverallScore)
	assert.Equal(t, enum.HealthStatusHealthy, fixture.domains.domains["dom-1"].Status)

	var found bool
	for _, finding := range report.Findings {
		if finding.Category == "dmarc" && finding.Severity == enum.FindingSeverityInfo {
			found = true
		}
	}
	assert.True(t, found)
}

func TestAssess_YoungDomainGetsInfoFinding(t *testing.T) {
	fixture := newAssessmentFixture()
	fixture.addDomain("dom-1", "example.com")
	fixture.dns.checks["example.com"] = healthyCheck("example.com")
	fixture.service.domainAge = func(domain string) (int, bool) { return 12, true }

	report, err := fixture.service.Assess(context.Background(), testTenant, enum.ReportTypeScheduled)

	require.NoError(t, err)
	assert.Equal(t, 100, report.OverallScore)

	var found bool
	for _, finding := range report.Findings {
		if finding.Category == "domain_age" {
			found = true
			assert.Equal(t, enum.FindingSeverityInfo, finding.Severity)
		}
	}
	assert.True(t, found)
}

func TestAssess_HighBounceMailboxEntersRecovery(t *testing.T) {
	fixture := newAssessmentFixture()
	fixture.addDomain("dom-1", "example.com")
	fixture.dns.checks["example.com"] = healthyCheck("example.com")
	fixture.mailboxes.mailboxes["mbox-1"] = &models.Mailbox{
		ID:              "mbox-1",
		Tenant:          testTenant,
		DomainID:        "dom-1",
		EmailAddress:    "sales@example.com",
		Status:          enum.HealthStatusHealthy,
		TotalSent:       100,
		HardBounceCount: 12,
	}

	report, err := fixture.service.Assess(context.Background(), testTenant, enum.ReportTypeScheduled)

	require.NoError(t, err)
	require.Len(t, fixture.healing.calls, 1)
	assert.Equal(t, enum.MAILBOX, fixture.healing.calls[0].entityType)
	assert.Equal(t, "mbox-1", fixture.healing.calls[0].entityID)
	// One healthy domain, one paused mailbox.
	assert.Equal(t, 50, report.OverallScore)
}

func TestAssess_ElevatedBounceMailboxWarns(t *testing.T) {
	fixture := newAssessmentFixture()
	fixture.addDomain("dom-1", "example.com")
	fixture.dns.checks["example.com"] = healthyCheck("example.com")
	fixture.mailboxes.mailboxes["mbox-1"] = &models.Mailbox{
		ID:              "mbox-1",
		Tenant:          testTenant,
		DomainID:        "dom-1",
		EmailAddress:    "sales@example.com",
		Status:          enum.HealthStatusHealthy,
		TotalSent:       100,
		HardBounceCount: 6,
	}

	_, err := fixture.service.Assess(context.Background(), testTenant, enum.ReportTypeScheduled)

	require.NoError(t, err)
	assert.Empty(t, fixture.healing.calls)
	assert.Equal(t, enum.HealthStatusWarning, fixture.mailboxes.mailboxes["mbox-1"].Status)
}

func TestAssess_MailboxInheritsDomainCeiling(t *testing.T) {
	fixture := newAssessmentFixture()
	fixture.addDomain("dom-1", "example.com")
	check := healthyCheck("example.com")
	check.SPFValid = utils.BoolPtr(false)
	fixture.dns.checks["example.com"] = check
	fixture.mailboxes.mailboxes["mbox-1"] = &models.Mailbox{
		ID:           "mbox-1",
		Tenant:       testTenant,
		DomainID:     "dom-1",
		EmailAddress: "sales@example.com",
		Status:       enum.HealthStatusHealthy,
		TotalSent:    100,
	}

	_, err := fixture.service.Assess(context.Background(), testTenant, enum.ReportTypeScheduled)

	require.NoError(t, err)
	// Clean sender, but the domain warning caps the mailbox too.
	assert.Equal(t, enum.HealthStatusWarning, fixture.mailboxes.mailboxes["mbox-1"].Status)
}

func TestAssess_HighBounceCampaignPausesAndRecordsTransition(t *testing.T) {
	fixture := newAssessmentFixture()
	fixture.addDomain("dom-1", "example.com")
	fixture.dns.checks["example.com"] = healthyCheck("example.com")
	fixture.campaigns.campaigns["cmp-1"] = &models.Campaign{
		ID:                 "cmp-1",
		Tenant:             testTenant,
		Name:               "spring outreach",
		PlatformCampaignID: "platform-77",
		Status:             enum.HealthStatusActive,
		TotalSent:          50,
		TotalBounced:       6,
		BounceRate:         0.12,
	}

	_, err := fixture.service.Assess(context.Background(), testTenant, enum.ReportTypeScheduled)

	require.NoError(t, err)
	assert.Equal(t, enum.HealthStatusPaused, fixture.campaigns.campaigns["cmp-1"].Status)
	assert.Equal(t, []string{"platform-77"}, fixture.platform.pausedCampaigns)
	require.Len(t, fixture.transitions.transitions, 1)
	assert.Equal(t, enum.CAMPAIGN, fixture.transitions.transitions[0].EntityType)
	assert.Equal(t, enum.TriggeredBySystem, fixture.transitions.transitions[0].TriggeredBy)
	assert.Equal(t, 1, fixture.notifications.statusChanges)
}

func TestAssess_LowVolumeCampaignGetsNoVerdict(t *testing.T) {
	fixture := newAssessmentFixture()
	fixture.addDomain("dom-1", "example.com")
	fixture.dns.checks["example.com"] = healthyCheck("example.com")
	fixture.campaigns.campaigns["cmp-1"] = &models.Campaign{
		ID:           "cmp-1",
		Tenant:       testTenant,
		Name:         "tiny test",
		Status:       enum.HealthStatusActive,
		TotalSent:    10,
		TotalBounced: 5,
		BounceRate:   0.5,
	}

	_, err := fixture.service.Assess(context.Background(), testTenant, enum.ReportTypeScheduled)

	require.NoError(t, err)
	assert.Equal(t, enum.HealthStatusActive, fixture.campaigns.campaigns["cmp-1"].Status)
	assert.Empty(t, fixture.platform.pausedCampaigns)
}

func TestAssess_ElevatedBounceCampaignBumpsWarningCount(t *testing.T) {
	fixture := newAssessmentFixture()
	fixture.addDomain("dom-1", "example.com")
	fixture.dns.checks["example.com"] = healthyCheck("example.com")
	fixture.campaigns.campaigns["cmp-1"] = &models.Campaign{
		ID:         "cmp-1",
		Tenant:     testTenant,
		Name:       "spring outreach",
		Status:     enum.HealthStatusActive,
		TotalSent:  100,
		BounceRate: 0.07,
	}

	_, err := fixture.service.Assess(context.Background(), testTenant, enum.ReportTypeScheduled)

	require.NoError(t, err)
	assert.Equal(t, enum.HealthStatusWarning, fixture.campaigns.campaigns["cmp-1"].Status)
	assert.Equal(t, 1, fixture.campaigns.campaigns["cmp-1"].WarningCount)
}

func TestAssess_CampaignCappedByWorstMailbox(t *testing.T) {
	fixture := newAssessmentFixture()
	fixture.addDomain("dom-1", "example.com")
	fixture.dns.checks["example.com"] = healthyCheck("example.com")
	fixture.campaigns.campaigns["cmp-1"] = &models.Campaign{
		ID:     "cmp-1",
		Tenant: testTenant,
		Name:   "spring outreach",
		Status: enum.HealthStatusActive,
		Mailboxes: []models.Mailbox{
			{ID: "mbox-1", EmailAddress: "sales@example.com", Status: enum.HealthStatusPaused},
		},
	}

	_, err := fixture.service.Assess(context.Background(), testTenant, enum.ReportTypeScheduled)

	require.NoError(t, err)
	assert.Equal(t, enum.HealthStatusPaused, fixture.campaigns.campaigns["cmp-1"].Status)
}

func TestAssess_DNSFailureLeavesGateLocked(t *testing.T) {
	fixture := newAssessmentFixture()
	fixture.addDomain("dom-1", "example.com")
	fixture.dns.err = errors.New("resolver down")

	_, err := fixture.service.Assess(context.Background(), testTenant, enum.ReportTypeScheduled)

	require.Error(t, err)
	assert.Equal(t, 1, fixture.settings.locks)
	assert.False(t, fixture.settings.settings[testTenant].AssessmentCompleted)
	assert.Empty(t, fixture.reports.reports)
}

func TestAssess_ArchivesReportSnapshot(t *testing.T) {
	fixture := newAssessmentFixture()
	fixture.addDomain("dom-1", "example.com")
	fixture.dns.checks["example.com"] = healthyCheck("example.com")

	report, err := fixture.service.Assess(context.Background(), testTenant, enum.ReportTypeScheduled)

	require.NoError(t, err)
	require.NotEmpty(t, report.ArchiveKey)
	assert.Contains(t, report.ArchiveKey, testTenant)
	assert.NotEmpty(t, fixture.storage.uploads[report.ArchiveKey])
}

func TestAssessAllTenants_SweepsEveryTenant(t *testing.T) {
	fixture := newAssessmentFixture()
	fixture.addDomain("dom-1", "example.com")
	fixture.dns.checks["example.com"] = healthyCheck("example.com")

	err := fixture.service.AssessAllTenants(context.Background())

	require.NoError(t, err)
	require.Len(t, fixture.reports.reports, 1)
	assert.Equal(t, enum.ReportTypeScheduled, fixture.reports.reports[0].ReportType)
}

func TestHandleSyncCompleted_IngestsCountersAndReassesses(t *testing.T) {
	fixture := newAssessmentFixture()
	fixture.addDomain("dom-1", "example.com")
	fixture.dns.checks["example.com"] = healthyCheck("example.com")
	fixture.mailboxes.mailboxes["mbox-1"] = &models.Mailbox{
		ID:           "mbox-1",
		Tenant:       testTenant,
		DomainID:     "dom-1",
		EmailAddress: "sales@example.com",
		Status:       enum.HealthStatusHealthy,
		TotalSent:    100,
	}
	fixture.campaigns.campaigns["cmp-1"] = &models.Campaign{
		ID:                 "cmp-1",
		Tenant:             testTenant,
		Name:               "spring outreach",
		PlatformCampaignID: "platform-77",
		Status:             enum.HealthStatusActive,
		TotalSent:          10,
	}

	snapshot := &interfaces.SyncSnapshot{
		Mailboxes: []interfaces.MailboxCounters{
			{EmailAddress: "sales@example.com", Sent: 50, Bounced: 3, HardBounced: 2},
		},
		Campaigns: []interfaces.CampaignCounters{
			{PlatformCampaignID: "platform-77", Sent: 50, Bounced: 3},
		},
	}

	err := fixture.service.HandleSyncCompleted(context.Background(), testTenant, snapshot)

	require.NoError(t, err)

	mailbox := fixture.mailboxes.mailboxes["mbox-1"]
	assert.Equal(t, int64(150), mailbox.TotalSent)
	assert.Equal(t, int64(2), mailbox.HardBounceCount)
	assert.Equal(t, int64(50), fixture.domains.domains["dom-1"].TotalSent)

	campaign := fixture.campaigns.campaigns["cmp-1"]
	assert.Equal(t, int64(60), campaign.TotalSent)
	assert.Equal(t, int64(3), campaign.TotalBounced)
	assert.InDelta(t, 0.05, campaign.BounceRate, 0.0001)

	require.Len(t, fixture.reports.reports, 1)
	assert.Equal(t, enum.ReportTypePostSync, fixture.reports.reports[0].ReportType)
}

func TestHandleSyncCompleted_UnknownMailboxIsSkipped(t *testing.T) {
	fixture := newAssessmentFixture()
	fixture.addDomain("dom-1", "example.com")
	fixture.dns.checks["example.com"] = healthyCheck("example.com")

	snapshot := &interfaces.SyncSnapshot{
		Mailboxes: []interfaces.MailboxCounters{
			{EmailAddress: "ghost@example.com", Sent: 50},
		},
	}

	err := fixture.service.HandleSyncCompleted(context.Background(), testTenant, snapshot)

	require.NoError(t, err)
	require.Len(t, fixture.reports.reports, 1)
}
