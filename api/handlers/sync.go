package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/opentracing/opentracing-go"

	"github.com/customeros/mailmedic/interfaces"
	"github.com/customeros/mailmedic/internal/tracing"
	"github.com/customeros/mailmedic/internal/utils"
	"github.com/customeros/mailmedic/services"
)

type SyncHandler struct {
	assessmentService interfaces.AssessmentService
}

func NewSyncHandler(s *services.Services) *SyncHandler {
	return &SyncHandler{
		assessmentService: s.AssessmentService,
	}
}

// Completed ingests the counters delivered by a finished platform sync
// and immediately re-runs the assessment against them.
func (h *SyncHandler) Completed() gin.HandlerFunc {
	return func(c *gin.Context) {
		span, ctx := opentracing.StartSpanFromContext(c.Request.Context(), "SyncHandler.Completed")
		defer span.Finish()
		tracing.SetDefaultRestSpanTags(ctx, span)

		tenant := utils.GetTenantFromContext(ctx)

		var snapshot interfaces.SyncSnapshot
		if err := c.ShouldBindJSON(&snapshot); err != nil {
			tracing.TraceErr(span, err)
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}

		if err := h.assessmentService.HandleSyncCompleted(ctx, tenant, &snapshot); err != nil {
			tracing.TraceErr(span, err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}

		c.JSON(http.StatusAccepted, gin.H{"status": "processed"})
	}
}
