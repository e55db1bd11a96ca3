package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/opentracing/opentracing-go"
	"github.com/pkg/errors"

	"github.com/customeros/mailmedic/interfaces"
	"github.com/customeros/mailmedic/internal/enum"
	"github.com/customeros/mailmedic/internal/repository"
	"github.com/customeros/mailmedic/internal/tracing"
	"github.com/customeros/mailmedic/internal/utils"
	"github.com/customeros/mailmedic/services"
)

type AssessmentsHandler struct {
	assessmentService interfaces.AssessmentService
	reportRepository  repository.ReportRepository
}

func NewAssessmentsHandler(s *services.Services, repos *repository.Repositories) *AssessmentsHandler {
	return &AssessmentsHandler{
		assessmentService: s.AssessmentService,
		reportRepository:  repos.ReportRepository,
	}
}

type runAssessmentRequest struct {
	ReportType string `json:"reportType"`
}

func (h *AssessmentsHandler) Run() gin.HandlerFunc {
	return func(c *gin.Context) {
		span, ctx := opentracing.StartSpanFromContext(c.Request.Context(), "AssessmentsHandler.Run")
		defer span.Finish()
		tracing.SetDefaultRestSpanTags(ctx, span)

		tenant := utils.GetTenantFromContext(ctx)

		var request runAssessmentRequest
		if err := c.ShouldBindJSON(&request); err != nil && err.Error() != "EOF" {
			tracing.TraceErr(span, err)
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}

		reportType := enum.ReportType(request.ReportType)
		switch reportType {
		case enum.ReportTypeOnboarding, enum.ReportTypeScheduled, enum.ReportTypePostSync:
		case "":
			reportType = enum.ReportTypeScheduled
		default:
			message := "unknown report type"
			tracing.TraceErr(span, errors.New(message))
			c.JSON(http.StatusBadRequest, gin.H{"error": message})
			return
		}

		report, err := h.assessmentService.Assess(ctx, tenant, reportType)
		if err != nil {
			tracing.TraceErr(span, err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}

		c.JSON(http.StatusCreated, report)
	}
}

func (h *AssessmentsHandler) Latest() gin.HandlerFunc {
	return func(c *gin.Context) {
		span, ctx := opentracing.StartSpanFromContext(c.Request.Context(), "AssessmentsHandler.Latest")
		defer span.Finish()
		tracing.SetDefaultRestSpanTags(ctx, span)

		tenant := utils.GetTenantFromContext(ctx)

		report, err := h.reportRepository.GetLatestByTenant(ctx, tenant)
		if err != nil {
			tracing.TraceErr(span, err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		if report == nil {
			c.JSON(http.StatusNotFound, gin.H{"error": "no assessment report found"})
			return
		}

		c.JSON(http.StatusOK, report)
	}
}

func (h *AssessmentsHandler) Get() gin.HandlerFunc {
	return func(c *gin.Context) {
		span, ctx := opentracing.StartSpanFromContext(c.Request.Context(), "AssessmentsHandler.Get")
		defer span.Finish()
		tracing.SetDefaultRestSpanTags(ctx, span)

		tenant := utils.GetTenantFromContext(ctx)

		report, err := h.reportRepository.GetByID(ctx, tenant, c.Param("id"))
		if err != nil {
			tracing.TraceErr(span, err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		if report == nil {
			c.JSON(http.StatusNotFound, gin.H{"error": "assessment report not found"})
			return
		}

		c.JSON(http.StatusOK, report)
	}
}
