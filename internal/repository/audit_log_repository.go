package repository

import (
	"context"
	"time"

	"github.com/opentracing/opentracing-go"
	"github.com/pkg/errors"
	"gorm.io/gorm"

	"github.com/customeros/mailmedic/internal/models"
	"github.com/customeros/mailmedic/internal/tracing"
)

type AuditLogRepository interface {
	Create(ctx context.Context, entry *models.AuditLog) error
	CountForEntitySince(ctx context.Context, tenant, entityID, action string, since time.Time) (int64, error)
	CountForTenantSince(ctx context.Context, tenant, action string, since time.Time) (int64, error)
}

type auditLogRepository struct {
	db *gorm.DB
}

func NewAuditLogRepository(db *gorm.DB) AuditLogRepository {
	return &auditLogRepository{
		db: db,
	}
}

func (r *auditLogRepository) Create(ctx context.Context, entry *models.AuditLog) error {
	span, _ := opentracing.StartSpanFromContext(ctx, "AuditLogRepository.Create")
	defer span.Finish()
	tracing.TagComponentPostgresRepository(span)
	tracing.TagTenant(span, entry.Tenant)
	span.LogKV("action", entry.Action)

	err := r.db.WithContext(ctx).Create(entry).Error
	if err != nil {
		tracing.TraceErr(span, errors.Wrap(err, "db error"))
		return err
	}
	return nil
}

func (r *auditLogRepository) CountForEntitySince(ctx context.Context, tenant, entityID, action string, since time.Time) (int64, error) {
	span, _ := opentracing.StartSpanFromContext(ctx, "AuditLogRepository.CountForEntitySince")
	defer span.Finish()
	tracing.TagComponentPostgresRepository(span)
	tracing.TagTenant(span, tenant)

	var count int64
	err := r.db.WithContext(ctx).
		Model(&models.AuditLog{}).
		Where("tenant = ? AND entity_id = ? AND action = ? AND created_at >= ?", tenant, entityID, action, since).
		Count(&count).Error
	if err != nil {
		tracing.TraceErr(span, errors.Wrap(err, "db error"))
		return 0, err
	}

	return count, nil
}

func (r *auditLogRepository) CountForTenantSince(ctx context.Context, tenant, action string, since time.Time) (int64, error) {
	span, _ := opentracing.StartSpanFromContext(ctx, "AuditLogRepository.CountForTenantSince")
	defer span.Finish()
	tracing.TagComponentPostgresRepository(span)
	tracing.TagTenant(span, tenant)

	var count int64
	err := r.db.WithContext(ctx).
		Model(&models.AuditLog{}).
		Where("tenant = ? AND action = ? AND created_at >= ?", tenant, action, since).
		Count(&count).Error
	if err != nil {
		tracing.TraceErr(span, errors.Wrap(err, "db error"))
		return 0, err
	}

	return count, nil
}
