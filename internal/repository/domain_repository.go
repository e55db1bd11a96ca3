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

type DomainRepository interface {
	GetByID(ctx context.Context, tenant, id string) (*models.Domain, error)
	GetByName(ctx context.Context, tenant, domain string) (*models.Domain, error)
	GetActiveDomains(ctx context.Context, tenant string) ([]models.Domain, error)
	GetRecoveringCrossTenant(ctx context.Context) ([]models.Domain, error)
	GetDistinctTenants(ctx context.Context) ([]string, error)
	Save(ctx context.Context, domain *models.Domain) error
	SaveWithPhaseGuard(ctx context.Context, domain *models.Domain, expectedPhaseEnteredAt *time.Time) (bool, error)
	UpdateDNSResults(ctx context.Context, domain *models.Domain) error
	IncrementSendCounters(ctx context.Context, tenant, id string, sent, bounced, hardBounced int64) error
}

type domainRepository struct {
	db *gorm.DB
}

func NewDomainRepository(db *gorm.DB) DomainRepository {
	return &domainRepository{
		db: db,
	}
}

func (r *domainRepository) GetByID(ctx context.Context, tenant, id string) (*models.Domain, error) {
	span, _ := opentracing.StartSpanFromContext(ctx, "DomainRepository.GetByID")
	defer span.Finish()
	tracing.TagComponentPostgresRepository(span)
	tracing.TagTenant(span, tenant)
	span.LogKV("domain.id", id)

	var domain models.Domain
	err := r.db.WithContext(ctx).
		Where("tenant = ? AND id = ?", tenant, id).
		First(&domain).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		tracing.TraceErr(span, errors.Wrap(err, "db error"))
		return nil, err
	}

	return &domain, nil
}

func (r *domainRepository) GetByName(ctx context.Context, tenant, domain string) (*models.Domain, error) {
	span, _ := opentracing.StartSpanFromContext(ctx, "DomainRepository.GetByName")
	defer span.Finish()
	tracing.TagComponentPostgresRepository(span)
	tracing.TagTenant(span, tenant)
	span.LogKV("domain", domain)

	var record models.Domain
	err := r.db.WithContext(ctx).
		Where("tenant = ? AND domain = ?", tenant, domain).
		First(&record).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		tracing.TraceErr(span, errors.Wrap(err, "db error"))
		return nil, err
	}

	return &record, nil
}

func (r *domainRepository) GetActiveDomains(ctx context.Context, tenant string) ([]models.Domain, error) {
	span, _ := opentracing.StartSpanFromContext(ctx, "DomainRepository.GetActiveDomains")
	defer span.Finish()
	tracing.TagComponentPostgresRepository(span)
	tracing.TagTenant(span, tenant)

	var domains []models.Domain
	err := r.db.WithContext(ctx).
		Where("tenant = ? AND active = ?", tenant, true).
		Find(&domains).Error
	if err != nil {
		tracing.TraceErr(span, errors.Wrap(err, "db error"))
		return nil, err
	}

	return domains, nil
}

func (r *domainRepository) GetRecoveringCrossTenant(ctx context.Context) ([]models.Domain, error) {
	span, _ := opentracing.StartSpanFromContext(ctx, "DomainRepository.GetRecoveringCrossTenant")
	defer span.Finish()
	tracing.TagComponentPostgresRepository(span)

	var domains []models.Domain
	err := r.db.WithContext(ctx).
		Where("active = ?", true).
		Where("recovery_phase IN ?", enum.RecoveringPhases()).
		Find(&domains).Error
	if err != nil {
		tracing.TraceErr(span, errors.Wrap(err, "db error"))
		return nil, err
	}

	return domains, nil
}

func (r *domainRepository) GetDistinctTenants(ctx context.Context) ([]string, error) {
	span, _ := opentracing.StartSpanFromContext(ctx, "DomainRepository.GetDistinctTenants")
	defer span.Finish()
	tracing.TagComponentPostgresRepository(span)

	var tenants []string
	err := r.db.WithContext(ctx).
		Model(&models.Domain{}).
		Where("active = ?", true).
		Distinct("tenant").
		Pluck("tenant", &tenants).Error
	if err != nil {
		tracing.TraceErr(span, errors.Wrap(err, "db error"))
		return nil, err
	}

	return tenants, nil
}

func (r *domainRepository) Save(ctx context.Context, domain *models.Domain) error {
	span, _ := opentracing.StartSpanFromContext(ctx, "DomainRepository.Save")
	defer span.Finish()
	tracing.TagComponentPostgresRepository(span)
	tracing.TagTenant(span, domain.Tenant)
	span.LogKV("domain.id", domain.ID)

	domain.UpdatedAt = utils.Now()
	err := r.db.WithContext(ctx).Save(domain).Error
	if err != nil {
		tracing.TraceErr(span, errors.Wrap(err, "db error"))
		return err
	}
	return nil
}

// SaveWithPhaseGuard persists the domain only if phase_entered_at still
// matches the value read before the mutation. Returns false when another
// writer already moved the entity to a different phase.
func (r *domainRepository) SaveWithPhaseGuard(ctx context.Context, domain *models.Domain, expectedPhaseEnteredAt *time.Time) (bool, error) {
	span, _ := opentracing.StartSpanFromContext(ctx, "DomainRepository.SaveWithPhaseGuard")
	defer span.Finish()
	tracing.TagComponentPostgresRepository(span)
	tracing.TagTenant(span, domain.Tenant)
	span.LogKV("domain.id", domain.ID)

	domain.UpdatedAt = utils.Now()

	query := r.db.WithContext(ctx).
		Model(&models.Domain{}).
		Where("tenant = ? AND id = ?", domain.Tenant, domain.ID)
	if expectedPhaseEnteredAt == nil {
		query = query.Where("phase_entered_at IS NULL")
	} else {
		query = query.Where("phase_entered_at = ?", *expectedPhaseEnteredAt)
	}

	result := query.Updates(domain)
	if result.Error != nil {
		tracing.TraceErr(span, errors.Wrap(result.Error, "db error"))
		return false, result.Error
	}

	applied := result.RowsAffected > 0
	span.LogFields(tracingLog.Bool("response.applied", applied))
	return applied, nil
}

func (r *domainRepository) UpdateDNSResults(ctx context.Context, domain *models.Domain) error {
	span, _ := opentracing.StartSpanFromContext(ctx, "DomainRepository.UpdateDNSResults")
	defer span.Finish()
	tracing.TagComponentPostgresRepository(span)
	tracing.TagTenant(span, domain.Tenant)
	span.LogKV("domain.id", domain.ID)

	err := r.db.WithContext(ctx).
		Model(&models.Domain{}).
		Where("tenant = ? AND id = ?", domain.Tenant, domain.ID).
		UpdateColumn("spf_valid", domain.SPFValid).
		UpdateColumn("dkim_valid", domain.DKIMValid).
		UpdateColumn("dmarc_policy", domain.DMARCPolicy).
		UpdateColumn("blacklist_results", domain.BlacklistResults).
		UpdateColumn("dns_score", domain.DNSScore).
		UpdateColumn("last_dns_check_at", domain.LastDNSCheckAt).
		UpdateColumn("updated_at", utils.Now()).
		Error
	if err != nil {
		tracing.TraceErr(span, errors.Wrap(err, "db error"))
		return err
	}

	return nil
}

func (r *domainRepository) IncrementSendCounters(ctx context.Context, tenant, id string, sent, bounced, hardBounced int64) error {
	span, _ := opentracing.StartSpanFromContext(ctx, "DomainRepository.IncrementSendCounters")
	defer span.Finish()
	tracing.TagComponentPostgresRepository(span)
	tracing.TagTenant(span, tenant)
	span.LogKV("domain.id", id)

	err := r.db.WithContext(ctx).
		Model(&models.Domain{}).
		Where("tenant = ? AND id = ?", tenant, id).
		UpdateColumn("total_sent", gorm.Expr("total_sent + ?", sent)).
		UpdateColumn("total_bounced", gorm.Expr("total_bounced + ?", bounced)).
		UpdateColumn("hard_bounce_count", gorm.Expr("hard_bounce_count + ?", hardBounced)).
		UpdateColumn("updated_at", utils.Now()).
		Error
	if err != nil {
		tracing.TraceErr(span, errors.Wrap(err, "db error"))
		return err
	}

	return nil
}
