package repository

import (
	"context"

	"github.com/opentracing/opentracing-go"
	"github.com/pkg/errors"
	"gorm.io/gorm"

	"github.com/customeros/mailmedic/internal/models"
	"github.com/customeros/mailmedic/internal/tracing"
	"github.com/customeros/mailmedic/internal/utils"
)

type TenantSettingsRepository interface {
	GetOrCreate(ctx context.Context, tenant string) (*models.TenantSettings, error)
	LockAssessmentGate(ctx context.Context, tenant string) error
	SetAssessmentCompleted(ctx context.Context, tenant string) error
	SetGateAcknowledged(ctx context.Context, tenant, userEmail string, acknowledged bool) error
	SetAccountWarning(ctx context.Context, tenant string, warning bool) error
}

type tenantSettingsRepository struct {
	db *gorm.DB
}

func NewTenantSettingsRepository(db *gorm.DB) TenantSettingsRepository {
	return &tenantSettingsRepository{
		db: db,
	}
}

func (r *tenantSettingsRepository) GetOrCreate(ctx context.Context, tenant string) (*models.TenantSettings, error) {
	span, _ := opentracing.StartSpanFromContext(ctx, "TenantSettingsRepository.GetOrCreate")
	defer span.Finish()
	tracing.TagComponentPostgresRepository(span)
	tracing.TagTenant(span, tenant)

	var settings models.TenantSettings
	err := r.db.WithContext(ctx).
		Where("tenant = ?", tenant).
		First(&settings).Error
	if err == nil {
		return &settings, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		tracing.TraceErr(span, errors.Wrap(err, "db error"))
		return nil, err
	}

	settings = models.TenantSettings{Tenant: tenant}
	err = r.db.WithContext(ctx).Create(&settings).Error
	if err != nil {
		tracing.TraceErr(span, errors.Wrap(err, "db error"))
		return nil, err
	}

	return &settings, nil
}

// LockAssessmentGate marks the tenant's assessment as in-flight. While
// locked, no recovery transition out of a paused phase is permitted.
func (r *tenantSettingsRepository) LockAssessmentGate(ctx context.Context, tenant string) error {
	span, _ := opentracing.StartSpanFromContext(ctx, "TenantSettingsRepository.LockAssessmentGate")
	defer span.Finish()
	tracing.TagComponentPostgresRepository(span)
	tracing.TagTenant(span, tenant)

	err := r.db.WithContext(ctx).
		Model(&models.TenantSettings{}).
		Where("tenant = ?", tenant).
		UpdateColumn("assessment_completed", false).
		UpdateColumn("updated_at", utils.Now()).
		Error
	if err != nil {
		tracing.TraceErr(span, errors.Wrap(err, "db error"))
		return err
	}

	return nil
}

func (r *tenantSettingsRepository) SetAssessmentCompleted(ctx context.Context, tenant string) error {
	span, _ := opentracing.StartSpanFromContext(ctx, "TenantSettingsRepository.SetAssessmentCompleted")
	defer span.Finish()
	tracing.TagComponentPostgresRepository(span)
	tracing.TagTenant(span, tenant)

	now := utils.Now()
	err := r.db.WithContext(ctx).
		Model(&models.TenantSettings{}).
		Where("tenant = ?", tenant).
		UpdateColumn("assessment_completed", true).
		UpdateColumn("last_assessment_at", now).
		UpdateColumn("gate_acknowledged", false).
		UpdateColumn("updated_at", now).
		Error
	if err != nil {
		tracing.TraceErr(span, errors.Wrap(err, "db error"))
		return err
	}

	return nil
}

func (r *tenantSettingsRepository) SetGateAcknowledged(ctx context.Context, tenant, userEmail string, acknowledged bool) error {
	span, _ := opentracing.StartSpanFromContext(ctx, "TenantSettingsRepository.SetGateAcknowledged")
	defer span.Finish()
	tracing.TagComponentPostgresRepository(span)
	tracing.TagTenant(span, tenant)

	now := utils.Now()
	query := r.db.WithContext(ctx).
		Model(&models.TenantSettings{}).
		Where("tenant = ?", tenant).
		UpdateColumn("gate_acknowledged", acknowledged).
		UpdateColumn("updated_at", now)
	if acknowledged {
		query = query.
			UpdateColumn("gate_acknowledged_at", now).
			UpdateColumn("gate_acknowledged_by", userEmail)
	}
	err := query.Error
	if err != nil {
		tracing.TraceErr(span, errors.Wrap(err, "db error"))
		return err
	}

	return nil
}

func (r *tenantSettingsRepository) SetAccountWarning(ctx context.Context, tenant string, warning bool) error {
	span, _ := opentracing.StartSpanFromContext(ctx, "TenantSettingsRepository.SetAccountWarning")
	defer span.Finish()
	tracing.TagComponentPostgresRepository(span)
	tracing.TagTenant(span, tenant)

	err := r.db.WithContext(ctx).
		Model(&models.TenantSettings{}).
		Where("tenant = ?", tenant).
		UpdateColumn("account_warning", warning).
		UpdateColumn("updated_at", utils.Now()).
		Error
	if err != nil {
		tracing.TraceErr(span, errors.Wrap(err, "db error"))
		return err
	}

	return nil
}
