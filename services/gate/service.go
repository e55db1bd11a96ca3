package gate

import (
	"context"
	"fmt"
	"strings"

	"github.com/opentracing/opentracing-go"
	tracingLog "github.com/opentracing/opentracing-go/log"
	"github.com/pkg/errors"

	"github.com/customeros/mailmedic/interfaces"
	er "github.com/customeros/mailmedic/internal/errors"
	"github.com/customeros/mailmedic/internal/logger"
	"github.com/customeros/mailmedic/internal/models"
	"github.com/customeros/mailmedic/internal/repository"
	"github.com/customeros/mailmedic/internal/tracing"
)

// Score bands. Below the hard floor no override path exists; the weak
// band requires an explicit operator acknowledgment.
const (
	allowThreshold = 60
	hardFloor      = 25
)

type gateService struct {
	log      logger.Logger
	postgres *repository.Repositories
}

func NewGateService(log logger.Logger, postgres *repository.Repositories) interfaces.GateService {
	return &gateService{
		log:      log,
		postgres: postgres,
	}
}

func (s *gateService) EvaluateTransition(ctx context.Context, tenant string) (*interfaces.TransitionGateResult, error) {
	span, ctx := opentracing.StartSpanFromContext(ctx, "GateService.EvaluateTransition")
	defer span.Finish()
	tracing.SetDefaultServiceSpanTags(ctx, span)
	tracing.TagTenant(span, tenant)

	settings, err := s.postgres.TenantSettingsRepository.GetOrCreate(ctx, tenant)
	if err != nil {
		tracing.TraceErr(span, err)
		return nil, err
	}

	// Fail closed: an absent or in-flight assessment blocks everything.
	if !settings.AssessmentCompleted {
		span.LogFields(tracingLog.String("result", "gate locked"))
		return &interfaces.TransitionGateResult{
			Allowed: false,
			Reason:  "no completed infrastructure assessment; run an assessment first",
		}, nil
	}

	report, err := s.postgres.ReportRepository.GetLatestByTenant(ctx, tenant)
	if err != nil {
		tracing.TraceErr(span, err)
		return nil, err
	}
	if report == nil {
		span.LogFields(tracingLog.String("result", "no report"))
		return &interfaces.TransitionGateResult{
			Allowed: false,
			Reason:  "no infrastructure report on file",
		}, nil
	}

	score := report.OverallScore
	span.LogFields(tracingLog.Int("report.overallScore", score))

	switch {
	case score >= allowThreshold:
		return &interfaces.TransitionGateResult{Allowed: true, OverallScore: score}, nil

	case score == 0:
		return &interfaces.TransitionGateResult{
			Allowed:      false,
			OverallScore: score,
			Reason:       "infrastructure score is zero: manual healing required",
		}, nil

	case score < hardFloor:
		return &interfaces.TransitionGateResult{
			Allowed:      false,
			OverallScore: score,
			Reason:       remediationSummary(score, report.Findings),
		}, nil

	default:
		if settings.GateAcknowledged {
			return &interfaces.TransitionGateResult{Allowed: true, OverallScore: score}, nil
		}
		return &interfaces.TransitionGateResult{
			Allowed:              false,
			RequiresAcknowledged: true,
			OverallScore:         score,
			Reason:               fmt.Sprintf("infrastructure score %d is below %d: operator acknowledgment required", score, allowThreshold),
		}, nil
	}
}

func (s *gateService) Acknowledge(ctx context.Context, tenant, userEmail string) error {
	span, ctx := opentracing.StartSpanFromContext(ctx, "GateService.Acknowledge")
	defer span.Finish()
	tracing.SetDefaultServiceSpanTags(ctx, span)
	tracing.TagTenant(span, tenant)

	settings, err := s.postgres.TenantSettingsRepository.GetOrCreate(ctx, tenant)
	if err != nil {
		tracing.TraceErr(span, err)
		return err
	}
	if !settings.AssessmentCompleted {
		tracing.TraceErr(span, er.ErrNoAssessment)
		return er.ErrNoAssessment
	}

	// Re-read the score server side; the client's view may be stale.
	report, err := s.postgres.ReportRepository.GetLatestByTenant(ctx, tenant)
	if err != nil {
		tracing.TraceErr(span, err)
		return err
	}
	if report == nil {
		tracing.TraceErr(span, er.ErrNoAssessment)
		return er.ErrNoAssessment
	}
	if report.OverallScore < hardFloor {
		err := errors.Wrapf(er.ErrGateViolation, "score %d is below the acknowledgment floor %d", report.OverallScore, hardFloor)
		tracing.TraceErr(span, err)
		return err
	}

	if err := s.postgres.TenantSettingsRepository.SetGateAcknowledged(ctx, tenant, userEmail, true); err != nil {
		tracing.TraceErr(span, err)
		return err
	}

	audit := &models.AuditLog{
		Tenant:    tenant,
		Action:    "gate_acknowledged",
		UserEmail: userEmail,
		Details:   models.JSONMap{"overallScore": report.OverallScore, "reportId": report.ID},
	}
	if err := s.postgres.AuditLogRepository.Create(ctx, audit); err != nil {
		s.log.Errorf("failed to write gate acknowledgment audit for tenant %s: %v", tenant, err)
	}

	return nil
}

// remediationCategories are the infrastructure concerns the hard-deny
// message enumerates, in the order they are reported.
var remediationCategories = []string{"spf", "dkim", "dmarc", "blacklist"}

// remediationSummary enumerates what must be fixed before the gate will
// open for a critically weak infrastructure. Every SPF, DKIM, DMARC and
// blacklist finding counts here, whatever its severity: below the hard
// floor there is no override path, only remediation.
func remediationSummary(score int, findings models.Findings) string {
	affected := make(map[string][]string)
	for _, finding := range findings {
		switch finding.Category {
		case "spf", "dkim", "dmarc", "blacklist":
			affected[finding.Category] = append(affected[finding.Category], finding.Entity)
		}
	}

	var remediation []string
	for _, category := range remediationCategories {
		entities, ok := affected[category]
		if !ok {
			continue
		}
		remediation = append(remediation, fmt.Sprintf("%s (%s)", category, strings.Join(entities, ", ")))
	}

	message := fmt.Sprintf("infrastructure score %d is below the hard floor %d and cannot be overridden", score, hardFloor)
	if len(remediation) > 0 {
		message += "; remediate: " + strings.Join(remediation, "; ")
	}
	return message
}
