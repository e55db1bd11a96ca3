package repository

import (
	"context"

	"github.com/opentracing/opentracing-go"
	"github.com/pkg/errors"
	"gorm.io/gorm"

	"github.com/customeros/mailmedic/internal/models"
	"github.com/customeros/mailmedic/internal/tracing"
)

type ReportRepository interface {
	Create(ctx context.Context, report *models.InfrastructureReport) error
	GetByID(ctx context.Context, tenant, id string) (*models.InfrastructureReport, error)
	GetLatestByTenant(ctx context.Context, tenant string) (*models.InfrastructureReport, error)
	ListByTenant(ctx context.Context, tenant string, limit int) ([]models.InfrastructureReport, error)
}

type reportRepository struct {
	db *gorm.DB
}

func NewReportRepository(db *gorm.DB) ReportRepository {
	return &reportRepository{
		db: db,
	}
}

func (r *reportRepository) Create(ctx context.Context, report *models.InfrastructureReport) error {
	span, _ := opentracing.StartSpanFromContext(ctx, "ReportRepository.Create")
	defer span.Finish()
	tracing.TagComponentPostgresRepository(span)
	tracing.TagTenant(span, report.Tenant)

	err := r.db.WithContext(ctx).Create(report).Error
	if err != nil {
		tracing.TraceErr(span, errors.Wrap(err, "db error"))
		return err
	}
	return nil
}

func (r *reportRepository) GetByID(ctx context.Context, tenant, id string) (*models.InfrastructureReport, error) {
	span, _ := opentracing.StartSpanFromContext(ctx, "ReportRepository.GetByID")
	defer span.Finish()
	tracing.TagComponentPostgresRepository(span)
	tracing.TagTenant(span, tenant)
	span.LogKV("report.id", id)

	var report models.InfrastructureReport
	err := r.db.WithContext(ctx).
		Where("tenant = ? AND id = ?", tenant, id).
		First(&report).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		tracing.TraceErr(span, errors.Wrap(err, "db error"))
		return nil, err
	}

	return &report, nil
}

func (r *reportRepository) GetLatestByTenant(ctx context.Context, tenant string) (*models.InfrastructureReport, error) {
	span, _ := opentracing.StartSpanFromContext(ctx, "ReportRepository.GetLatestByTenant")
	defer span.Finish()
	tracing.TagComponentPostgresRepository(span)
	tracing.TagTenant(span, tenant)

	var report models.InfrastructureReport
	err := r.db.WithContext(ctx).
		Where("tenant = ?", tenant).
		Order("created_at DESC").
		First(&report).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		tracing.TraceErr(span, errors.Wrap(err, "db error"))
		return nil, err
	}

	return &report, nil
}

func (r *reportRepository) ListByTenant(ctx context.Context, tenant string, limit int) ([]models.InfrastructureReport, error) {
	span, _ := opentracing.StartSpanFromContext(ctx, "ReportRepository.ListByTenant")
	defer span.Finish()
	tracing.TagComponentPostgresRepository(span)
	tracing.TagTenant(span, tenant)

	var reports []models.InfrastructureReport
	query := r.db.WithContext(ctx).
		Where("tenant = ?", tenant).
		Order("created_at DESC")
	if limit > 0 {
		query = query.Limit(limit)
	}
	err := query.Find(&reports).Error
	if err != nil {
		tracing.TraceErr(span, errors.Wrap(err, "db error"))
		return nil, err
	}

	return reports, nil
}
