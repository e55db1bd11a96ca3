package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/customeros/mailmedic/internal/repository"
	"github.com/customeros/mailmedic/services"
)

type APIHandlers struct {
	Assessments *AssessmentsHandler
	Gate        *GateHandler
	Overrides   *OverridesHandler
	Throttle    *ThrottleHandler
	Sync        *SyncHandler
}

func InitHandlers(s *services.Services, repos *repository.Repositories) *APIHandlers {
	return &APIHandlers{
		Assessments: NewAssessmentsHandler(s, repos),
		Gate:        NewGateHandler(s),
		Overrides:   NewOverridesHandler(s),
		Throttle:    NewThrottleHandler(s),
		Sync:        NewSyncHandler(s),
	}
}

// HealthCheck provides a simple health check endpoint
func HealthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status": "ok",
	})
}
