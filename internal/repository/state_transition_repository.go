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
)

type StateTransitionRepository interface {
	Create(ctx context.Context, transition *models.StateTransition) error
	ListForEntity(ctx context.Context, tenant string, entityType enum.EntityType, entityID string, limit int) ([]models.StateTransition, error)
	CountOverridesForEntitySince(ctx context.Context, tenant string, entityType enum.EntityType, entityID string, since time.Time) (int64, error)
	CountOverridesForTenantSince(ctx context.Context, tenant string, since time.Time) (int64, error)
}

type stateTransitionRepository struct {
	db *gorm.DB
}

func NewStateTransitionRepository(db *gorm.DB) StateTransitionRepository {
	return &stateTransitionRepository{
		db: db,
	}
}

func (r *stateTransitionRepository) Create(ctx context.Context, transition *models.StateTransition) error {
	span, _ := opentracing.StartSpanFromContext(ctx, "StateTransitionRepository.Create")
	defer span.Finish()
	tracing.TagComponentPostgresRepository(span)
	tracing.TagTenant(span, transition.Tenant)
	span.LogKV("entity.id", transition.EntityID, "from", transition.FromState, "to", transition.ToState)

	err := r.db.WithContext(ctx).Create(transition).Error
	if err != nil {
		tracing.TraceErr(span, errors.Wrap(err, "db error"))
		return err
	}
	return nil
}

func (r *stateTransitionRepository) ListForEntity(ctx context.Context, tenant string, entityType enum.EntityType, entityID string, limit int) ([]models.StateTransition, error) {
	span, _ := opentracing.StartSpanFromContext(ctx, "StateTransitionRepository.ListForEntity")
	defer span.Finish()
	tracing.TagComponentPostgresRepository(span)
	tracing.TagTenant(span, tenant)
	span.LogKV("entity.id", entityID)

	var transitions []models.StateTransition
	query := r.db.WithContext(ctx).
		Where("tenant = ? AND entity_type = ? AND entity_id = ?", tenant, entityType, entityID).
		Order("created_at DESC")
	if limit > 0 {
		query = query.Limit(limit)
	}
	err := query.Find(&transitions).Error
	if err != nil {
		tracing.TraceErr(span, errors.Wrap(err, "db error"))
		return nil, err
	}

	return transitions, nil
}

func (r *stateTransitionRepository) CountOverridesForEntitySince(ctx context.Context, tenant string, entityType enum.EntityType, entityID string, since time.Time) (int64, error) {
	span, _ := opentracing.StartSpanFromContext(ctx, "StateTransitionRepository.CountOverridesForEntitySince")
	defer span.Finish()
	tracing.TagComponentPostgresRepository(span)
	tracing.TagTenant(span, tenant)
	span.LogKV("entity.id", entityID)

	var count int64
	err := r.db.WithContext(ctx).
		Model(&models.StateTransition{}).
		Where("tenant = ? AND entity_type = ? AND entity_id = ?", tenant, entityType, entityID).
		Where("triggered_by = ? AND created_at >= ?", enum.TriggeredByOperatorOverride, since).
		Count(&count).Error
	if err != nil {
		tracing.TraceErr(span, errors.Wrap(err, "db error"))
		return 0, err
	}

	span.LogFields(tracingLog.Int64("response.count", count))
	return count, nil
}

func (r *stateTransitionRepository) CountOverridesForTenantSince(ctx context.Context, tenant string, since time.Time) (int64, error) {
	span, _ := opentracing.StartSpanFromContext(ctx, "StateTransitionRepository.CountOverridesForTenantSince")
	defer span.Finish()
	tracing.TagComponentPostgresRepository(span)
	tracing.TagTenant(span, tenant)

	var count int64
	err := r.db.WithContext(ctx).
		Model(&models.StateTransition{}).
		Where("tenant = ? AND triggered_by = ? AND created_at >= ?", tenant, enum.TriggeredByOperatorOverride, since).
		Count(&count).Error
	if err != nil {
		tracing.TraceErr(span, errors.Wrap(err, "db error"))
		return 0, err
	}

	span.LogFields(tracingLog.Int64("response.count", count))
	return count, nil
}
