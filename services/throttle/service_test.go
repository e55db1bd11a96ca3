package throttle

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/customeros/mailmedic/interfaces"
	"github.com/customeros/mailmedic/internal/enum"
	er "github.com/customeros/mailmedic/internal/errors"
	"github.com/customeros/mailmedic/internal/logger"
	"github.com/customeros/mailmedic/internal/models"
	"github.com/customeros/mailmedic/internal/repository"
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

func (f *fakeDomainRepo) GetActiveDomains(ctx context.Context, tenant string) ([]models.Domain, error) {
	var out []models.Domain
	for _, domain := range f.domains {
		if domain.Active {
			out = append(out, *domain)
		}
	}
	return out, nil
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

func (f *fakeMailboxRepo) GetByDomain(ctx context.Context, tenant, domainID string) ([]models.Mailbox, error) {
	var out []models.Mailbox
	for _, mailbox := range f.mailboxes {
		if mailbox.DomainID == domainID {
			out = append(out, *mailbox)
		}
	}
	return out, nil
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

type throttleFixture struct {
	service   interfaces.ThrottleService
	domains   *fakeDomainRepo
	mailboxes *fakeMailboxRepo
	campaigns *fakeCampaignRepo
}

func newThrottleFixture() *throttleFixture {
	appLogger := logger.NewAppLogger(&logger.Config{DevMode: true})
	appLogger.InitLogger()

	fixture := &throttleFixture{
		domains:   &fakeDomainRepo{domains: make(map[string]*models.Domain)},
		mailboxes: &fakeMailboxRepo{mailboxes: make(map[string]*models.Mailbox)},
		campaigns: &fakeCampaignRepo{campaigns: make(map[string]*models.Campaign)},
	}
	repos := &repository.Repositories{
		DomainRepository:   fixture.domains,
		MailboxRepository:  fixture.mailboxes,
		CampaignRepository: fixture.campaigns,
	}
	fixture.service = NewThrottleService(appLogger, repos)
	return fixture
}

func (f *throttleFixture) addDomain(id string, phase enum.RecoveryPhase, resilience int) {
	f.domains.domains[id] = &models.Domain{
		ID:     id,
		Tenant: testTenant,
		Domain: id + ".example.com",
		Active: true,
		RecoveryFields: models.RecoveryFields{
			RecoveryPhase:   phase,
			ResilienceScore: resilience,
		},
	}
}

func (f *throttleFixture) addMailbox(id, domainID string, phase enum.RecoveryPhase, resilience int) {
	f.mailboxes.mailboxes[id] = &models.Mailbox{
		ID:       id,
		Tenant:   testTenant,
		DomainID: domainID,
		RecoveryFields: models.RecoveryFields{
			RecoveryPhase:   phase,
			ResilienceScore: resilience,
		},
	}
}

func TestLimitsForMailbox_HealthyIsUnbounded(t *testing.T) {
	// Arrange
	fixture := newThrottleFixture()
	fixture.addDomain("dom_1", enum.RecoveryPhaseNone, 50)
	fixture.addMailbox("mbox_1", "dom_1", enum.RecoveryPhaseNone, 50)

	// Act
	limits, err := fixture.service.LimitsForMailbox(context.Background(), testTenant, "mbox_1")

	// Assert
	require.NoError(t, err)
	assert.Nil(t, limits.MailboxDailyLimit)
	assert.Nil(t, limits.DomainDailyLimit)
	assert.Nil(t, limits.TenantDailyLimit)
	assert.True(t, limits.SendingAllowed)
}

func TestLimitsForMailbox_QuarantinedMailboxCannotSend(t *testing.T) {
	fixture := newThrottleFixture()
	fixture.addDomain("dom_1", enum.RecoveryPhaseNone, 50)
	fixture.addMailbox("mbox_1", "dom_1", enum.RecoveryPhaseQuarantine, 50)

	limits, err := fixture.service.LimitsForMailbox(context.Background(), testTenant, "mbox_1")

	require.NoError(t, err)
	require.NotNil(t, limits.MailboxDailyLimit)
	assert.Zero(t, *limits.MailboxDailyLimit)
	assert.False(t, limits.SendingAllowed)
}

func TestLimitsForMailbox_RestrictedSendScalesWithResilience(t *testing.T) {
	fixture := newThrottleFixture()
	fixture.addDomain("dom_1", enum.RecoveryPhaseNone, 50)
	fixture.addMailbox("mbox_mid", "dom_1", enum.RecoveryPhaseRestrictedSend, 50)

	limits, err := fixture.service.LimitsForMailbox(context.Background(), testTenant, "mbox_mid")
	require.NoError(t, err)
	require.NotNil(t, limits.MailboxDailyLimit)
	assert.Equal(t, 5, *limits.MailboxDailyLimit)

	// Fragile mailbox gets half the budget.
	fixture.addMailbox("mbox_low", "dom_1", enum.RecoveryPhaseRestrictedSend, 20)
	limits, err = fixture.service.LimitsForMailbox(context.Background(), testTenant, "mbox_low")
	require.NoError(t, err)
	assert.Equal(t, 2, *limits.MailboxDailyLimit)

	// Proven mailbox gets more headroom.
	fixture.addMailbox("mbox_high", "dom_1", enum.RecoveryPhaseWarmRecovery, 80)
	limits, err = fixture.service.LimitsForMailbox(context.Background(), testTenant, "mbox_high")
	require.NoError(t, err)
	assert.Equal(t, 33, *limits.MailboxDailyLimit)
}

func TestLimitsForMailbox_DomainCapAppliesAcrossMailboxes(t *testing.T) {
	fixture := newThrottleFixture()
	fixture.addDomain("dom_1", enum.RecoveryPhaseNone, 50)
	// Two warm-recovery mailboxes at 0.75x each carry 33; sum 66 > cap 30.
	fixture.addMailbox("mbox_1", "dom_1", enum.RecoveryPhaseWarmRecovery, 80)
	fixture.addMailbox("mbox_2", "dom_1", enum.RecoveryPhaseWarmRecovery, 80)

	limits, err := fixture.service.LimitsForMailbox(context.Background(), testTenant, "mbox_1")

	require.NoError(t, err)
	require.NotNil(t, limits.DomainDailyLimit)
	assert.Equal(t, 30, *limits.DomainDailyLimit)
}

func TestLimitsForMailbox_PausedDomainZeroesEverything(t *testing.T) {
	fixture := newThrottleFixture()
	fixture.addDomain("dom_1", enum.RecoveryPhasePaused, 50)
	fixture.addMailbox("mbox_1", "dom_1", enum.RecoveryPhaseWarmRecovery, 50)

	limits, err := fixture.service.LimitsForMailbox(context.Background(), testTenant, "mbox_1")

	require.NoError(t, err)
	require.NotNil(t, limits.DomainDailyLimit)
	assert.Zero(t, *limits.DomainDailyLimit)
	assert.False(t, limits.SendingAllowed)
	assert.Contains(t, limits.Reason, "domain")
}

func TestLimitsForMailbox_TenantCapAcrossDomains(t *testing.T) {
	fixture := newThrottleFixture()
	// Four domains each capped at 30 by their recovering mailboxes.
	for _, domainID := range []string{"dom_1", "dom_2", "dom_3", "dom_4"} {
		fixture.addDomain(domainID, enum.RecoveryPhaseNone, 50)
		fixture.addMailbox("mbox_a_"+domainID, domainID, enum.RecoveryPhaseWarmRecovery, 80)
		fixture.addMailbox("mbox_b_"+domainID, domainID, enum.RecoveryPhaseWarmRecovery, 80)
	}

	limits, err := fixture.service.LimitsForMailbox(context.Background(), testTenant, "mbox_a_dom_1")

	require.NoError(t, err)
	require.NotNil(t, limits.TenantDailyLimit)
	assert.Equal(t, 100, *limits.TenantDailyLimit)
}

func TestLimitsForMailbox_UnknownMailbox(t *testing.T) {
	fixture := newThrottleFixture()

	_, err := fixture.service.LimitsForMailbox(context.Background(), testTenant, "mbox_missing")

	assert.ErrorIs(t, err, er.ErrMailboxNotFound)
}

func (f *throttleFixture) addCampaign(id string, status enum.HealthStatus, phase enum.RecoveryPhase, resilience int) {
	f.campaigns.campaigns[id] = &models.Campaign{
		ID:     id,
		Tenant: testTenant,
		Name:   "Outreach " + id,
		Status: status,
		RecoveryFields: models.RecoveryFields{
			RecoveryPhase:   phase,
			ResilienceScore: resilience,
		},
	}
}

func TestLimitsForCampaign_RestrictedSendIsVolumeCapped(t *testing.T) {
	fixture := newThrottleFixture()
	fixture.addCampaign("cmp_1", enum.HealthStatusWarning, enum.RecoveryPhaseRestrictedSend, 50)

	limits, err := fixture.service.LimitsForCampaign(context.Background(), testTenant, "cmp_1")

	require.NoError(t, err)
	require.NotNil(t, limits.CampaignDailyLimit)
	assert.Equal(t, 5, *limits.CampaignDailyLimit)
	assert.True(t, limits.SendingAllowed)
}

func TestLimitsForCampaign_PausedCampaignCannotSend(t *testing.T) {
	fixture := newThrottleFixture()
	fixture.addCampaign("cmp_1", enum.HealthStatusPaused, enum.RecoveryPhasePaused, 50)

	limits, err := fixture.service.LimitsForCampaign(context.Background(), testTenant, "cmp_1")

	require.NoError(t, err)
	require.NotNil(t, limits.CampaignDailyLimit)
	assert.Zero(t, *limits.CampaignDailyLimit)
	assert.False(t, limits.SendingAllowed)
}

func TestLimitsForCampaign_UnknownCampaign(t *testing.T) {
	fixture := newThrottleFixture()

	_, err := fixture.service.LimitsForCampaign(context.Background(), testTenant, "cmp_missing")

	assert.ErrorIs(t, err, er.ErrCampaignNotFound)
}
