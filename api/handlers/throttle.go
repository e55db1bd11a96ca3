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

type ThrottleHandler struct {
	throttleService interfaces.ThrottleService
}

func NewThrottleHandler(s *services.Services) *ThrottleHandler {
	return &ThrottleHandler{
		throttleService: s.ThrottleService,
	}
}

func (h *ThrottleHandler) MailboxSendLimit() gin.HandlerFunc {
	return func(c *gin.Context) {
		span, ctx := opentracing.StartSpanFromContext(c.Request.Context(), "ThrottleHandler.MailboxSendLimit")
		defer span.Finish()
		tracing.SetDefaultRestSpanTags(ctx, span)

		tenant := utils.GetTenantFromContext(ctx)

		limits, err := h.throttleService.LimitsForMailbox(ctx, tenant, c.Param("id"))
		if err != nil {
			tracing.TraceErr(span, err)
			if errors.Is(err, er.ErrMailboxNotFound) {
				c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
				return
			}
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}

		c.JSON(http.StatusOK, limits)
	}
}

func (h *ThrottleHandler) CampaignSendLimit() gin.HandlerFunc {
	return func(c *gin.Context) {
		span, ctx := opentracing.StartSpanFromContext(c.Request.Context(), "ThrottleHandler.CampaignSendLimit")
		defer span.Finish()
		tracing.SetDefaultRestSpanTags(ctx, span)

		tenant := utils.GetTenantFromContext(ctx)

		limits, err := h.throttleService.LimitsForCampaign(ctx, tenant, c.Param("id"))
		if err != nil {
			tracing.TraceErr(span, err)
			if errors.Is(err, er.ErrCampaignNotFound) {
				c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
				return
			}
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}

		c.JSON(http.StatusOK, limits)
	}
}
