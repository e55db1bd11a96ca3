package override

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/customeros/mailmedic/interfaces"
	"github.com/customeros/mailmedic/internal/enum"
	er "github.com/customeros/mailmedic/internal/errors"
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

func (f *fakeDomainRepo) GetByID(ctx context.Context, tenant, id string) (*models.Domain, error) {
	domain, ok := f.domains[id]
	if !ok {
		return nil, nil
	}
	copied := *domain
	return &copied, nil
}

func (f *fakeDomainRepo) SaveWithPhaseGuard(ctx context.Context, domain *models.Domain, expected *time.Time) (bool, error) {
	stored, ok := f.domains[domain.ID]
	if !ok {
		return false, nil
	}
	storedAt, expectedAt := stored.PhaseEnteredAt, expected
	if (storedAt == nil) != (expectedAt == nil) {
		return false, nil
	}
	if storedAt != nil && !storedAt.Equal(*expectedAt) {
		return false, nil
	}
	copied := *domain
	f.domains[domain.ID] = &copied
	return true, nil
}

type fakeMailboxRepo struct {
	repository.MailboxRepository
	mailboxes map[string]*models.Mailbox
}

func (f *fakeMailboxRepo) GetByID(ctx context.Context, tenant, id string) (*models.Mailbox, error) {
	mailbox, ok := f.mailboxes[id]
	if !ok {
		return nil, nil
	}
	copied := *mailbox
	return &copied, nil
}

func (f *fakeMailboxRepo) GetByTenant(ctx context.Context, tenant string) ([]models.Mailbox, error) {
	var out []models.Mailbox
	for _, mailbox := range f.mailboxes {
		out = append(out, *mailbox)
	}
	return out, nil
}

func (f *fakeMailboxRepo) SaveWithPhaseGuard(ctx context.Context, mailbox *models.Mailbox, expected *time.Time) (bool, error) {
	copied := *mailbox
	f.mailboxes[mailbox.ID] = &copied
	return true, nil
}

type fakeCampaignRepo struct {
	repository.CampaignRepository
	campaigns map[string]*models.Campaign
}

func (f *fakeCampaignRepo) GetByID(ctx context.Context, tenant, id string) (*models.Campaign, error) {
	campaign, ok := f.campaigns[id]
	if !ok {
		return nil, nil
	}
	copied := *campaign
	return &copied, nil
}

func (f *fakeCampaignRepo) UpdateStatus(ctx context.Context, tenant, id string, status enum.HealthStatus, reason string) error {
	if campaign, ok := f.campaigns[id]; ok {
		campaign.Status = status
		campaign.PausedReason = reason
	}
	return nil
}

func (f *fakeCampaignRepo) SaveWithPhaseGuard(ctx context.Context, campaign *models.Campaign, expected *time.Time) (bool, error) {
	stored, ok := f.campaigns[campaign.ID]
	if !ok {
		return false, nil
	}
	storedAt := stored.PhaseEnteredAt
	if (storedAt == nil) != (expected == nil) {
		return false, nil
	}
	if storedAt != nil && !storedAt.Equal(*expected) {
		return false, nil
	}
	copied := *campaign
	f.campaigns[campaign.ID] = &copied
	return true, nil
}

type fakeTransitionRepo struct {
	repository.StateTransitionRepository
	transitions []models.StateTransition
}

func (f *fakeTransitionRepo) Create(ctx context.Context, transition *models.StateTransition) error {
	transition.CreatedAt = utils.Now()
	f.transitions = append(f.transitions, *transition)
	return nil
}

func (f *fakeTransitionRepo) CountOverridesForEntitySince(ctx context.Context, tenant string, entityType enum.EntityType, entityID string, since time.Time) (int64, error) {
	var count int64
	for _, transition := range f.transitions {
		if transition.EntityType == entityType && transition.EntityID == entityID &&
			transition.TriggeredBy == enum.TriggeredByOperatorOverride && !transition.CreatedAt.Before(since) {
			count++
		}
	}
	return count, nil
}

func (f *fakeTransitionRepo) CountOverridesForTenantSince(ctx context.Context, tenant string, since time.Time) (int64, error) {
	var count int64
	for _, transition := range f.transitions {
		if transition.TriggeredBy == enum.TriggeredByOperatorOverride && !transition.CreatedAt.Before(since) {
			count++
		}
	}
	return count, nil
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
	accountWarnings []string
}

func (f *fakeSettingsRepo) SetAccountWarning(ctx context.Context, tenant string, warning bool) error {
	f.accountWarnings = append(f.accountWarnings, tenant)
	return nil
}

type fakePlatform struct {
	interfaces.PlatformService
	resumed []string
}

func (f *fakePlatform) ResumeCampaign(ctx context.Context, tenant, campaignID string) error {
	f.resumed = append(f.resumed, campaignID)
	return nil
}

type fakeNotifications struct {
	statusChanges   []string
	accountWarnings []string
}

func (f *fakeNotifications) NotifyStatusChange(ctx context.Context, tenant string, entityType enum.EntityType, entityID, fromState, toState, reason string) {
	f.statusChanges = append(f.statusChanges, fromState+"->"+toState)
}

func (f *fakeNotifications) NotifyManualInterventionRequired(ctx context.Context, tenant string, entityType enum.EntityType, entityID, reason string) {
}

func (f *fakeNotifications) NotifyAccountWarning(ctx context.Context, tenant, reason string) {
	f.accountWarnings = append(f.accountWarnings, tenant)
}

func (f *fakeNotifications) NotifyReportReady(ctx context.Context, tenant, reportID string, overallScore int) {
}

type overrideFixture struct {
	service       interfaces.OverrideService
	domains       *fakeDomainRepo
	mailboxes     *fakeMailboxRepo
	campaigns     *fakeCampaignRepo
	transitions   *fakeTransitionRepo
	settings      *fakeSettingsRepo
	platform      *fakePlatform
	notifications *fakeNotifications
}

func newOverrideFixture() *overrideFixture {
	appLogger := logger.NewAppLogger(&logger.Config{DevMode: true})
	appLogger.InitLogger()

	fixture := &overrideFixture{
		domains:       &fakeDomainRepo{domains: make(map[string]*models.Domain)},
		mailboxes:     &fakeMailboxRepo{mailboxes: make(map[string]*models.Mailbox)},
		campaigns:     &fakeCampaignRepo{campaigns: make(map[string]*models.Campaign)},
		transitions:   &fakeTransitionRepo{},
		settings:      &fakeSettingsRepo{},
		platform:      &fakePlatform{},
		notifications: &fakeNotifications{},
	}
	repos := &repository.Repositories{
		DomainRepository:          fixture.domains,
		MailboxRepository:         fixture.mailboxes,
		CampaignRepository:        fixture.campaigns,
		StateTransitionRepository: fixture.transitions,
		AuditLogRepository:        &fakeAuditRepo{},
		TenantSettingsRepository:  fixture.settings,
	}
	fixture.service = NewOverrideService(appLogger, repos, fixture.platform, fixture.notifications)
	return fixture
}

func pausedDomain(id string, resilience int) *models.Domain {
	now := utils.Now()
	cooldown := now.Add(24 * time.Hour)
	return &models.Domain{
		ID:     id,
		Tenant: testTenant,
		Domain: id + ".example.com",
		Active: true,
		Status: enum.HealthStatusPaused,
		RecoveryFields: models.RecoveryFields{
			RecoveryPhase:   enum.RecoveryPhasePaused,
			ResilienceScore: resilience,
			PhaseEnteredAt:  &now,
			CooldownUntil:   &cooldown,
		},
	}
}

func TestRequestOverride_ReentersThroughQuarantine(t *testing.T) {
	// Arrange
	fixture := newOverrideFixture()
	fixture.domains.domains["dom_1"] = pausedDomain("dom_1", 50)

	// Act
	assessment, err := fixture.service.RequestOverride(context.Background(), testTenant, &interfaces.OverrideRequest{
		EntityType:    enum.DOMAIN,
		EntityID:      "dom_1",
		Justification: "customer escalation, verified sender list",
		Force:         true,
	})

	// Assert
	require.NoError(t, err)
	assert.True(t, assessment.Permitted)
	assert.Equal(t, 1.0, assessment.CooldownMultiplier)

	saved := fixture.domains.domains["dom_1"]
	assert.Equal(t, enum.RecoveryPhaseQuarantine, saved.RecoveryPhase)
	assert.Equal(t, enum.HealthStatusPaused, saved.Status)
	require.Len(t, fixture.transitions.transitions, 1)
	assert.Equal(t, enum.TriggeredByOperatorOverride, fixture.transitions.transitions[0].TriggeredBy)
}

func TestAssessOverride_RepeatedEntityOverridesDoubleCooldown(t *testing.T) {
	fixture := newOverrideFixture()
	fixture.domains.domains["dom_1"] = pausedDomain("dom_1", 50)
	for i := 0; i < 3; i++ {
		fixture.transitions.transitions = append(fixture.transitions.transitions, models.StateTransition{
			Tenant:      testTenant,
			EntityType:  enum.DOMAIN,
			EntityID:    "dom_1",
			TriggeredBy: enum.TriggeredByOperatorOverride,
			CreatedAt:   utils.Now().Add(-time.Hour),
		})
	}

	assessment, err := fixture.service.AssessOverride(context.Background(), testTenant, &interfaces.OverrideRequest{
		EntityType: enum.DOMAIN,
		EntityID:   "dom_1",
	})

	require.NoError(t, err)
	assert.True(t, assessment.Permitted)
	assert.Equal(t, 2.0, assessment.CooldownMultiplier)
	assert.NotEmpty(t, assessment.RiskNotes)
}

func TestRequestOverride_TenantChurnTriggersAccountWarning(t *testing.T) {
	fixture := newOverrideFixture()
	fixture.domains.domains["dom_1"] = pausedDomain("dom_1", 50)
	for i := 0; i < 5; i++ {
		fixture.transitions.transitions = append(fixture.transitions.transitions, models.StateTransition{
			Tenant:      testTenant,
			EntityType:  enum.MAILBOX,
			EntityID:    "mbox_x",
			TriggeredBy: enum.TriggeredByOperatorOverride,
			CreatedAt:   utils.Now().Add(-24 * time.Hour),
		})
	}

	assessment, err := fixture.service.RequestOverride(context.Background(), testTenant, &interfaces.OverrideRequest{
		EntityType:    enum.DOMAIN,
		EntityID:      "dom_1",
		Justification: "verified remediation complete",
	})

	require.NoError(t, err)
	assert.True(t, assessment.AccountWarning)
	assert.Equal(t, []string{testTenant}, fixture.settings.accountWarnings)
	assert.Equal(t, []string{testTenant}, fixture.notifications.accountWarnings)
}

func TestAssessOverride_LowResilienceRequiresJustification(t *testing.T) {
	fixture := newOverrideFixture()
	fixture.domains.domains["dom_1"] = pausedDomain("dom_1", 10)

	assessment, err := fixture.service.AssessOverride(context.Background(), testTenant, &interfaces.OverrideRequest{
		EntityType:    enum.DOMAIN,
		EntityID:      "dom_1",
		Justification: "short",
	})

	require.NoError(t, err)
	assert.False(t, assessment.Permitted)
	assert.True(t, assessment.JustificationRequired)
}

func TestRequestOverride_DeniedWithoutJustification(t *testing.T) {
	fixture := newOverrideFixture()
	fixture.domains.domains["dom_1"] = pausedDomain("dom_1", 10)

	_, err := fixture.service.RequestOverride(context.Background(), testTenant, &interfaces.OverrideRequest{
		EntityType:    enum.DOMAIN,
		EntityID:      "dom_1",
		Justification: "short",
	})

	assert.ErrorIs(t, err, er.ErrJustificationRequired)
	// Entity untouched.
	assert.Equal(t, enum.RecoveryPhasePaused, fixture.domains.domains["dom_1"].RecoveryPhase)
}

func TestRequestOverride_LowResilienceWithJustificationSucceeds(t *testing.T) {
	fixture := newOverrideFixture()
	fixture.domains.domains["dom_1"] = pausedDomain("dom_1", 10)

	assessment, err := fixture.service.RequestOverride(context.Background(), testTenant, &interfaces.OverrideRequest{
		EntityType:    enum.DOMAIN,
		EntityID:      "dom_1",
		Justification: "remediated DNS, confirmed delisting with spamhaus",
	})

	require.NoError(t, err)
	assert.True(t, assessment.Permitted)
	assert.Equal(t, enum.RecoveryPhaseQuarantine, fixture.domains.domains["dom_1"].RecoveryPhase)
}

func TestRequestOverride_CampaignNeedsEligibleMailbox(t *testing.T) {
	fixture := newOverrideFixture()
	fixture.campaigns.campaigns["cmp_1"] = &models.Campaign{
		ID:     "cmp_1",
		Tenant: testTenant,
		Status: enum.HealthStatusPaused,
	}
	// Only a quarantined mailbox: not eligible to carry campaign volume.
	fixture.mailboxes.mailboxes["mbox_1"] = &models.Mailbox{
		ID:     "mbox_1",
		Tenant: testTenant,
		Status: enum.HealthStatusPaused,
		RecoveryFields: models.RecoveryFields{
			RecoveryPhase:   enum.RecoveryPhaseQuarantine,
			ResilienceScore: 50,
		},
	}

	_, err := fixture.service.RequestOverride(context.Background(), testTenant, &interfaces.OverrideRequest{
		EntityType:    enum.CAMPAIGN,
		EntityID:      "cmp_1",
		Justification: "resume outreach for renewal sequence",
	})

	assert.ErrorIs(t, err, er.ErrNoEligibleMailbox)
}

func TestRequestOverride_CampaignResumesWithWarmMailbox(t *testing.T) {
	fixture := newOverrideFixture()
	fixture.campaigns.campaigns["cmp_1"] = &models.Campaign{
		ID:                 "cmp_1",
		Tenant:             testTenant,
		Status:             enum.HealthStatusPaused,
		PlatformCampaignID: "platform-42",
		RecoveryFields: models.RecoveryFields{
			ResilienceScore: 50,
		},
	}
	fixture.mailboxes.mailboxes["mbox_1"] = &models.Mailbox{
		ID:     "mbox_1",
		Tenant: testTenant,
		Status: enum.HealthStatusPaused,
		RecoveryFields: models.RecoveryFields{
			RecoveryPhase:   enum.RecoveryPhaseWarmRecovery,
			ResilienceScore: 50,
		},
	}

	assessment, err := fixture.service.RequestOverride(context.Background(), testTenant, &interfaces.OverrideRequest{
		EntityType:    enum.CAMPAIGN,
		EntityID:      "cmp_1",
		Justification: "resume outreach for renewal sequence",
	})

	require.NoError(t, err)
	assert.True(t, assessment.Permitted)
	saved := fixture.campaigns.campaigns["cmp_1"]
	// A forced resume never jumps back to full volume; the campaign
	// re-enters through restricted sending.
	assert.Equal(t, enum.RecoveryPhaseRestrictedSend, saved.RecoveryPhase)
	assert.Equal(t, enum.HealthStatusWarning, saved.Status)
	assert.Equal(t, enum.HealingOriginRecovery, saved.HealingOrigin)
	assert.Equal(t, []string{"platform-42"}, fixture.platform.resumed)
}
