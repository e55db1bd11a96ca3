package notify

import (
	"context"

	"github.com/opentracing/opentracing-go"

	"github.com/customeros/mailmedic/dto"
	"github.com/customeros/mailmedic/interfaces"
	"github.com/customeros/mailmedic/internal/enum"
	"github.com/customeros/mailmedic/internal/logger"
	"github.com/customeros/mailmedic/internal/tracing"
	"github.com/customeros/mailmedic/internal/utils"
	"github.com/customeros/mailmedic/services/events"
)

// notificationService publishes health events to RabbitMQ. When no
// publisher is configured it degrades to log-only delivery.
type notificationService struct {
	log       logger.Logger
	publisher *events.RabbitMQPublisher
}

func NewNotificationService(log logger.Logger, publisher *events.RabbitMQPublisher) interfaces.NotificationService {
	return &notificationService{
		log:       log,
		publisher: publisher,
	}
}

func (s *notificationService) NotifyStatusChange(ctx context.Context, tenant string, entityType enum.EntityType, entityID, fromState, toState, reason string) {
	span, ctx := opentracing.StartSpanFromContext(ctx, "NotificationService.NotifyStatusChange")
	defer span.Finish()
	tracing.SetDefaultServiceSpanTags(ctx, span)
	tracing.TagTenant(span, tenant)
	tracing.TagEntity(span, entityID)

	s.log.Infof("tenant %s: %s %s moved %s -> %s (%s)", tenant, entityType, entityID, fromState, toState, reason)
	if s.publisher == nil {
		return
	}

	ctx = utils.SetTenantInContext(ctx, tenant)
	err := s.publisher.PublishNotification(ctx, entityID, entityType, dto.StatusChanged{
		EntityType: entityType,
		EntityID:   entityID,
		FromState:  fromState,
		ToState:    toState,
		Reason:     reason,
	})
	if err != nil {
		tracing.TraceErr(span, err)
		s.log.Errorf("failed to publish status change for %s %s: %v", entityType, entityID, err)
	}
}

func (s *notificationService) NotifyManualInterventionRequired(ctx context.Context, tenant string, entityType enum.EntityType, entityID, reason string) {
	span, ctx := opentracing.StartSpanFromContext(ctx, "NotificationService.NotifyManualInterventionRequired")
	defer span.Finish()
	tracing.SetDefaultServiceSpanTags(ctx, span)
	tracing.TagTenant(span, tenant)
	tracing.TagEntity(span, entityID)

	s.log.Warnf("tenant %s: %s %s requires manual intervention: %s", tenant, entityType, entityID, reason)
	if s.publisher == nil {
		return
	}

	ctx = utils.SetTenantInContext(ctx, tenant)
	err := s.publisher.PublishNotification(ctx, entityID, entityType, dto.ManualInterventionRequired{
		EntityType: entityType,
		EntityID:   entityID,
		Reason:     reason,
	})
	if err != nil {
		tracing.TraceErr(span, err)
		s.log.Errorf("failed to publish manual intervention notice for %s %s: %v", entityType, entityID, err)
	}
}

func (s *notificationService) NotifyAccountWarning(ctx context.Context, tenant, reason string) {
	span, ctx := opentracing.StartSpanFromContext(ctx, "NotificationService.NotifyAccountWarning")
	defer span.Finish()
	tracing.SetDefaultServiceSpanTags(ctx, span)
	tracing.TagTenant(span, tenant)

	s.log.Warnf("tenant %s: account warning: %s", tenant, reason)
	if s.publisher == nil {
		return
	}

	ctx = utils.SetTenantInContext(ctx, tenant)
	err := s.publisher.PublishNotification(ctx, tenant, enum.TENANT, dto.AccountWarning{Reason: reason})
	if err != nil {
		tracing.TraceErr(span, err)
		s.log.Errorf("failed to publish account warning for tenant %s: %v", tenant, err)
	}
}

func (s *notificationService) NotifyReportReady(ctx context.Context, tenant, reportID string, overallScore int) {
	span, ctx := opentracing.StartSpanFromContext(ctx, "NotificationService.NotifyReportReady")
	defer span.Finish()
	tracing.SetDefaultServiceSpanTags(ctx, span)
	tracing.TagTenant(span, tenant)

	s.log.Infof("tenant %s: report %s ready with score %d", tenant, reportID, overallScore)
	if s.publisher == nil {
		return
	}

	ctx = utils.SetTenantInContext(ctx, tenant)
	err := s.publisher.PublishHealthEvent(ctx, reportID, enum.TENANT, dto.ReportReady{
		ReportID:     reportID,
		OverallScore: overallScore,
	})
	if err != nil {
		tracing.TraceErr(span, err)
		s.log.Errorf("failed to publish report ready event for tenant %s: %v", tenant, err)
	}
}
