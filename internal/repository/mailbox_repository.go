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

type MailboxRepository interface {
	GetByID(ctx context.Context, tenant, id string) (*models.Mailbox, error)
	GetByEmailAddress(ctx context.Context, tenant, emailAddress string) (*models.Mailbox, error)
	GetByTenant(ctx context.Context, tenant string) ([]models.Mailbox, error)
	GetByDomain(ctx context.Context, tenant, domainID string) ([]models.Mailbox, error)
	GetRecoveringCrossTenant(ctx context.Context) ([]models.Mailbox, error)
	Save(ctx context.Context, mailbox *models.Mailbox) error
	SaveWithPhaseGuard(ctx context.Context, mailbox *models.Mailbox, expectedPhaseEnteredAt *time.Time) (bool, error)
	IncrementSendCounters(ctx context.Context, tenant, id string, sent, bounced, hardBounced int64) error
}

type mailboxRepository struct {
	db *gorm.DB
}

func NewMailboxRepository(db *gorm.DB) MailboxRepository {
	return &mailboxRepository{
		db: db,
	}
}

func (r *mailboxRepository) GetByID(ctx context.Context, tenant, id string) (*models.Mailbox, error) {
	span, _ := opentracing.StartSpanFromContext(ctx, "MailboxRepository.GetByID")
	defer span.Finish()
	tracing.TagComponentPostgresRepository(span)
	tracing.TagTenant(span, tenant)
	span.LogKV("mailbox.id", id)

	var mailbox models.Mailbox
	err := r.db.WithContext(ctx).
		Where("tenant = ? AND id = ?", tenant, id).
		First(&mailbox).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		tracing.TraceErr(span, errors.Wrap(err, "db error"))
		return nil, err
	}

	return &mailbox, nil
}

func (r *mailboxRepository) GetByEmailAddress(ctx context.Context, tenant, emailAddress string) (*models.Mailbox, error) {
	span, _ := opentracing.StartSpanFromContext(ctx, "MailboxRepository.GetByEmailAddress")
	defer span.Finish()
	tracing.TagComponentPostgresRepository(span)
	tracing.TagTenant(span, tenant)

	var mailbox models.Mailbox
	err := r.db.WithContext(ctx).
		Where("tenant = ? AND email_address = ?", tenant, emailAddress).
		First(&mailbox).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		tracing.TraceErr(span, errors.Wrap(err, "db error"))
		return nil, err
	}

	return &mailbox, nil
}

func (r *mailboxRepository) GetByTenant(ctx context.Context, tenant string) ([]models.Mailbox, error) {
	span, _ := opentracing.StartSpanFromContext(ctx, "MailboxRepository.GetByTenant")
	defer span.Finish()
	tracing.TagComponentPostgresRepository(span)
	tracing.TagTenant(span, tenant)

	var mailboxes []models.Mailbox
	err := r.db.WithContext(ctx).
		Where("tenant = ?", tenant).
		Find(&mailboxes).Error
	if err != nil {
		tracing.TraceErr(span, errors.Wrap(err, "db error"))
		return nil, err
	}

	return mailboxes, nil
}

func (r *mailboxRepository) GetByDomain(ctx context.Context, tenant, domainID string) ([]models.Mailbox, error) {
	span, _ := opentracing.StartSpanFromContext(ctx, "MailboxRepository.GetByDomain")
	defer span.Finish()
	tracing.TagComponentPostgresRepository(span)
	tracing.TagTenant(span, tenant)
	span.LogKV("domain.id", domainID)

	var mailboxes []models.Mailbox
	err := r.db.WithContext(ctx).
		Where("tenant = ? AND domain_id = ?", tenant, domainID).
		Find(&mailboxes).Error
	if err != nil {
		tracing.TraceErr(span, errors.Wrap(err, "db error"))
		return nil, err
	}

	return mailboxes, nil
}

func (r *mailboxRepository) GetRecoveringCrossTenant(ctx context.Context) ([]models.Mailbox, error) {
	span, _ := opentracing.StartSpanFromContext(ctx, "MailboxRepository.GetRecoveringCrossTenant")
	defer span.Finish()
	tracing.TagComponentPostgresRepository(span)

	var mailboxes []models.Mailbox
	err := r.db.WithContext(ctx).
		Where("recovery_phase IN ?", enum.RecoveringPhases()).
		Find(&mailboxes).Error
	if err != nil {
		tracing.TraceErr(span, errors.Wrap(err, "db error"))
		return nil, err
	}

	return mailboxes, nil
}

func (r *mailboxRepository) Save(ctx context.Context, mailbox *models.Mailbox) error {
	span, _ := opentracing.StartSpanFromContext(ctx, "MailboxRepository.Save")
	defer span.Finish()
	tracing.TagComponentPostgresRepository(span)
	tracing.TagTenant(span, mailbox.Tenant)
	span.LogKV("mailbox.id", mailbox.ID)

	mailbox.UpdatedAt = utils.Now()
	err := r.db.WithContext(ctx).Save(mailbox).Error
	if err != nil {
		tracing.TraceErr(span, errors.Wrap(err, "db error"))
		return err
	}
	return nil
}

// SaveWithPhaseGuard persists the mailbox only if phase_entered_at still
// matches the value read before the mutation. Returns false when another
// writer already moved the entity to a different phase.
func (r *mailboxRepository) SaveWithPhaseGuard(ctx context.Context, mailbox *models.Mailbox, expectedPhaseEnteredAt *time.Time) (bool, error) {
	span, _ := opentracing.StartSpanFromContext(ctx, "MailboxRepository.SaveWithPhaseGuard")
	defer span.Finish()
	tracing.TagComponentPostgresRepository(span)
	tracing.TagTenant(span, mailbox.Tenant)
	span.LogKV("mailbox.id", mailbox.ID)

	mailbox.UpdatedAt = utils.Now()

	query := r.db.WithContext(ctx).
		Model(&models.Mailbox{}).
		Where("tenant = ? AND id = ?", mailbox.Tenant, mailbox.ID)
	if expectedPhaseEnteredAt == nil {
		query = query.Where("phase_entered_at IS NULL")
	} else {
		query = query.Where("phase_entered_at = ?", *expectedPhaseEnteredAt)
	}

	result := query.Updates(mailbox)
	if result.Error != nil {
		tracing.TraceErr(span, errors.Wrap(result.Error, "db error"))
		return false, result.Error
	}

	applied := result.RowsAffected > 0
	span.LogFields(tracingLog.Bool("response.applied", applied))
	return applied, nil
}

func (r *mailboxRepository) IncrementSendCounters(ctx context.Context, tenant, id string, sent, bounced, hardBounced int64) error {
	span, _ := opentracing.StartSpanFromContext(ctx, "MailboxRepository.IncrementSendCounters")
	defer span.Finish()
	tracing.TagComponentPostgresRepository(span)
	tracing.TagTenant(span, tenant)
	span.LogKV("mailbox.id", id)

	err := r.db.WithContext(ctx).
		Model(&models.Mailbox{}).
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
