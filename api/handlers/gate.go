package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/opentracing/opentracing-go"
	"github.com/pkg/errors"

	"github.com/customeros/mailmedic/interfaces"
	er "github.com/customeros/mailmedic/internal/errors"
	"github.com/customeros/mailmedic/internal/tracing"
	"github.com/customeros/mailmedic/internal/utils"
	"github.com/customeros/mailmedic/services"
)

type GateHandler struct {
	gateService interfaces.GateService
}

func NewGateHandler(s *services.Services) *GateHandler {
	return &GateHandler{
		gateService: s.GateService,
	}
}

func (h *GateHandler) Evaluate() gin.HandlerFunc {
	return func(c *gin.Context) {
		span, ctx := opentracing.StartSpanFromContext(c.Request.Context(), "GateHandler.Evaluate")
		defer span.Finish()
		tracing.SetDefaultRestSpanTags(ctx, span)

		tenant := utils.GetTenantFromContext(ctx)

		result, err := h.gateService.EvaluateTransition(ctx, tenant)
		if err != nil {
			tracing.TraceErr(span, err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}

		c.JSON(http.StatusOK, result)
	}
}

func (h *GateHandler) Acknowledge() gin.HandlerFunc {
	return func(c *gin.Context) {
		span, ctx := opentracing.StartSpanFromContext(c.Request.Context(), "GateHandler.Acknowledge")
		defer span.Finish()
		tracing.SetDefaultRestSpanTags(ctx, span)

		tenant := utils.GetTenantFromContext(ctx)
		userEmail := utils.GetUserEmailFromContext(ctx)

		err := h.gateService.Acknowledge(ctx, tenant, userEmail)
		if err != nil {
			tracing.TraceErr(span, err)
			switch {
			case errors.Is(err, er.ErrNoAssessment):
				c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
			case errors.Is(err, er.ErrGateViolation):
				c.JSON(http.StatusForbidden, gin.H{"error": err.Error()})
			default:
				c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			}
			return
		}

		c.JSON(http.StatusOK, gin.H{"acknowledged": true})
	}
}
