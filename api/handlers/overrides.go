package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/opentracing/opentracing-go"
	"github.com/pkg/errors"

	"github.com/customeros/mailmedic/interfaces"
	"github.com/customeros/mailmedic/internal/enum"
	er "github.com/customeros/mailmedic/internal/errors"
	"github.com/customeros/mailmedic/internal/tracing"
	"github.com/customeros/mailmedic/internal/utils"
	"github.com/customeros/mailmedic/services"
)

type OverridesHandler struct {
	overrideService interfaces.OverrideService
}

func NewOverridesHandler(s *services.Services) *OverridesHandler {
	return &OverridesHandler{
		overrideService: s.OverrideService,
	}
}

func (h *OverridesHandler) getOverridePayload(c *gin.Context) (*interfaces.OverrideRequest, error) {
	var request interfaces.OverrideRequest
	if err := c.ShouldBindJSON(&request); err != nil {
		return nil, err
	}
	if request.EntityID == "" {
		return nil, errors.New("entityId is required")
	}
	switch request.EntityType {
	case enum.DOMAIN, enum.MAILBOX, enum.CAMPAIGN:
	default:
		return nil, errors.New("unsupported entity type")
	}
	return &request, nil
}

func (h *OverridesHandler) Assess() gin.HandlerFunc {
	return func(c *gin.Context) {
		span, ctx := opentracing.StartSpanFromContext(c.Request.Context(), "OverridesHandler.Assess")
		defer span.Finish()
		tracing.SetDefaultRestSpanTags(ctx, span)

		tenant := utils.GetTenantFromContext(ctx)

		request, err := h.getOverridePayload(c)
		if err != nil {
			tracing.TraceErr(span, err)
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}

		assessment, err := h.overrideService.AssessOverride(ctx, tenant, request)
		if err != nil {
			tracing.TraceErr(span, err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}

		c.JSON(http.StatusOK, assessment)
	}
}

func (h *OverridesHandler) Request() gin.HandlerFunc {
	return func(c *gin.Context) {
		span, ctx := opentracing.StartSpanFromContext(c.Request.Context(), "OverridesHandler.Request")
		defer span.Finish()
		tracing.SetDefaultRestSpanTags(ctx, span)

		tenant := utils.GetTenantFromContext(ctx)

		request, err := h.getOverridePayload(c)
		if err != nil {
			tracing.TraceErr(span, err)
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}

		assessment, err := h.overrideService.RequestOverride(ctx, tenant, request)
		if err != nil {
			tracing.TraceErr(span, err)
			switch {
			case errors.Is(err, er.ErrJustificationRequired), errors.Is(err, er.ErrOverrideDenied):
				c.JSON(http.StatusForbidden, gin.H{"error": err.Error(), "assessment": assessment})
			case errors.Is(err, er.ErrNoEligibleMailbox):
				c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
			case errors.Is(err, er.ErrDomainNotFound), errors.Is(err, er.ErrMailboxNotFound), errors.Is(err, er.ErrCampaignNotFound):
				c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
			default:
				c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			}
			return
		}

		c.JSON(http.StatusOK, assessment)
	}
}
