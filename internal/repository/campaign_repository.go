package repository

import (
	"context"
	"time"

	"github.com/opentracing/opentracing-go"
	tracingLog "github.com/opentracing/opentracing-go/log"
	"github.com/pkg/errors"
	"gorm.io/gorm"

	"github.com/customeros/mailmedic/internal/enum"
	"github.com/customeros/mailmedic/internal/models"
	"github.com/customeros/mailmedic/internal/tracing"
	"github.com/customeros/mailmedic/internal/utils"
)

type CampaignRepository interface {
	GetByID(ctx context.Context, tenant, id string) (*models.Campaign, error)
	GetByTenant(ctx context.Context, tenant string) ([]models.Campaign, error)
	GetByMailbox(ctx context.Context, tenant, mailboxID string) ([]models.Campaign, error)
	GetRecoveringCrossTenant(ctx context.Context) ([]models.Campaign, error)
	Save(ctx context.Context, campaign *models.Campaign) error
	SaveWithPhaseGuard(ctx context.Context, campaign *models.Campaign, expectedPhaseEnteredAt *time.Time) (bool, error)
	UpdateStatus(ctx context.Context, tenant, id string, status enum.HealthStatus, reason string) error
}

type campaignRepository struct {
	db *gorm.DB
}

func NewCampaignRepository(db *gorm.DB) CampaignRepository {
	return &campaignRepository{
		db: db,
	}
}

func (r *campaignRepository) GetByID(ctx context.Context, tenant, id string) (*models.Campaign, error) {
	span, _ := opentracing.StartSpanFromContext(ctx, "CampaignRepository.GetByID")
	defer span.Finish()
	tracing.TagComponentPostgresRepository(span)
	tracing.TagTenant(span, tenant)
	span.LogKV("campaign.id", id)

	var campaign models.Campaign
	err := r.db.WithContext(ctx).
		Preload("Mailboxes").
		Where("tenant = ? AND id = ?", tenant, id).
		First(&campaign).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		tracing.TraceErr(span, errors.Wrap(err, "db error"))
		return nil, err
	}

	return &campaign, nil
}

func (r *campaignRepository) GetByTenant(ctx context.Context, tenant string) ([]models.Campaign, error) {
	span, _ := opentracing.StartSpanFromContext(ctx, "CampaignRepository.GetByTenant")
	defer span.Finish()
	tracing.TagComponentPostgresRepository(span)
	tracing.TagTenant(span, tenant)

	var campaigns []models.Campaign
	err := r.db.WithContext(ctx).
		Preload("Mailboxes").
		Where("tenant = ?", tenant).
		Find(&campaigns).Error
	if err != nil {
		tracing.TraceErr(span, errors.Wrap(err, "db error"))
		return nil, err
	}

	return campaigns, nil
}

func (r *campaignRepository) GetByMailbox(ctx context.Context, tenant, mailboxID string) ([]models.Campaign, error) {
	span, _ := opentracing.StartSpanFromContext(ctx, "CampaignRepository.GetByMailbox")
	defer span.Finish()
	tracing.TagComponentPostgresRepository(span)
	tracing.TagTenant(span, tenant)
	span.LogKV("mailbox.id", mailboxID)

	var campaigns []models.Campaign
	err := r.db.WithContext(ctx).
		Preload("Mailboxes").
		Joins("JOIN campaign_mailboxes cm ON cm.campaign_id = campaigns.id").
		Where("campaigns.tenant = ? AND cm.mailbox_id = ?", tenant, mailboxID).
		Find(&campaigns).Error
	if err != nil {
		tracing.TraceErr(span, errors.Wrap(err, "db error"))
		return nil, err
	}

	return campaigns, nil
}

func (r *campaignRepository) GetRecoveringCrossTenant(ctx context.Context) ([]models.Campaign, error) {
	span, _ := opentracing.StartSpanFromContext(ctx, "CampaignRepository.GetRecoveringCrossTenant")
	defer span.Finish()
	tracing.TagComponentPostgresRepository(span)

	var campaigns []models.Campaign
	err := r.db.WithContext(ctx).
		Where("recovery_phase IN ?", enum.RecoveringPhases()).
		Find(&campaigns).Error
	if err != nil {
		tracing.TraceErr(span, errors.Wrap(err, "db error"))
		return nil, err
	}

	return campaigns, nil
}

func (r *campaignRepository) Save(ctx context.Context, campaign *models.Campaign) error {
	span, _ := opentracing.StartSpanFromContext(ctx, "CampaignRepository.Save")
	defer span.Finish()
	tracing.TagComponentPostgresRepository(span)
	tracing.TagTenant(span, campaign.Tenant)
	span.LogKV("campaign.id", campaign.ID)

	campaign.UpdatedAt = utils.Now()
	err := r.db.WithContext(ctx).Save(campaign).Error
	if err != nil {
		tracing.TraceErr(span, errors.Wrap(err, "db error"))
		return err
	}
	return nil
}

// SaveWithPhaseGuard persists the campaign only if phase_entered_at
// still matches the value read before the mutation. Returns false when
// another writer already moved the entity to a different phase.
func (r *campaignRepository) SaveWithPhaseGuard(ctx context.Context, campaign *models.Campaign, expectedPhaseEnteredAt *time.Time) (bool, error) {
	span, _ := opentracing.StartSpanFromContext(ctx, "CampaignRepository.SaveWithPhaseGuard")
	defer span.Finish()
	tracing.TagComponentPostgresRepository(span)
	tracing.TagTenant(span, campaign.Tenant)
	span.LogKV("campaign.id", campaign.ID)

	campaign.UpdatedAt = utils.Now()

	query := r.db.WithContext(ctx).
		Model(&models.Campaign{}).
		Where("tenant = ? AND id = ?", campaign.Tenant, campaign.ID)
	if expectedPhaseEnteredAt == nil {
		query = query.Where("phase_entered_at IS NULL")
	} else {
		query = query.Where("phase_entered_at = ?", *expectedPhaseEnteredAt)
	}

	result := query.Updates(campaign)
	if result.Error != nil {
		tracing.TraceErr(span, errors.Wrap(result.Error, "db error"))
		return false, result.Error
	}

	applied := result.RowsAffected > 0
	span.LogFields(tracingLog.Bool("response.applied", applied))
	return applied, nil
}

func (r *campaignRepository) UpdateStatus(ctx context.Context, tenant, id string, status enum.HealthStatus, reason string) error {
	span, _ := opentracing.StartSpanFromContext(ctx, "CampaignRepository.UpdateStatus")
	defer span.Finish()
	tracing.TagComponentPostgresRepository(span)
	tracing.TagTenant(span, tenant)
	span.LogKV("campaign.id", id, "status", status.String())

	err := r.db.WithContext(ctx).
		Model(&models.Campaign{}).
		Where("tenant = ? AND id = ?", tenant, id).
		UpdateColumn("status", status).
		UpdateColumn("paused_reason", reason).
		UpdateColumn("updated_at", utils.Now()).
		Error
	if err != nil {
		tracing.TraceErr(span, errors.Wrap(err, "db error"))
		return err
	}

	return nil
}
