package api

import (
	"context"

	"github.com/gin-gonic/gin"
	"github.com/opentracing/opentracing-go"

	"github.com/customeros/mailmedic/api/handlers"
	"github.com/customeros/mailmedic/api/middleware"
	"github.com/customeros/mailmedic/internal/repository"
	"github.com/customeros/mailmedic/internal/tracing"
	"github.com/customeros/mailmedic/services"
)

// RegisterRoutes sets up all API endpoints
func RegisterRoutes(ctx context.Context, r *gin.Engine, s *services.Services, repos *repository.Repositories, apikey string) {
	if s == nil {
		panic("Services cannot be nil")
	}
	if repos == nil {
		panic("Repositories cannot be nil")
	}

	// Add recovery middlewares
	r.Use(gin.Recovery())                                         // Gin's built-in recovery
	r.Use(tracing.RecoveryWithJaeger(opentracing.GlobalTracer())) // Our custom Jaeger recovery

	// setup handlers
	apiHandlers := handlers.InitHandlers(s, repos)

	// Health check endpoint (no custom context needed)
	r.GET("/health", handlers.HealthCheck)

	apiKeyMiddleware := middleware.APIKeyMiddleware(middleware.APIKeyConfig{
		HeaderName:  "X-MAILMEDIC-API-KEY",
		ValidAPIKey: apikey,
	})

	// API group with version and custom context
	api := r.Group("/v1")
	api.Use(apiKeyMiddleware)
	api.Use(middleware.TenantValidationMiddleware())
	api.Use(middleware.UserIdMiddleware())
	api.Use(middleware.CustomContextMiddleware("mailmedic")) // Add custom context for all /v1/* endpoints
	api.Use(middleware.TracingMiddleware())                  // Add tracing for all /v1/* endpoints
	{
		// Assessment endpoints
		assessments := api.Group("/assessments")
		{
			assessments.POST("", apiHandlers.Assessments.Run())
			assessments.GET("/latest", apiHandlers.Assessments.Latest())
			assessments.GET("/:id", apiHandlers.Assessments.Get())
		}

		// Transition gate endpoints
		gate := api.Group("/transition-gate")
		{
			gate.GET("", apiHandlers.Gate.Evaluate())
			gate.POST("/acknowledge", apiHandlers.Gate.Acknowledge())
		}

		// Operator override endpoints
		overrides := api.Group("/overrides")
		{
			overrides.POST("/assess", apiHandlers.Overrides.Assess()) // dry-run risk assessment
			overrides.POST("", apiHandlers.Overrides.Request())
		}

		// Throttle endpoints
		mailboxes := api.Group("/mailboxes")
		{
			mailboxes.GET("/:id/send-limit", apiHandlers.Throttle.MailboxSendLimit())
		}
		campaigns := api.Group("/campaigns")
		{
			campaigns.GET("/:id/send-limit", apiHandlers.Throttle.CampaignSendLimit())
		}

		// Sync ingestion endpoints
		sync := api.Group("/sync")
		{
			sync.POST("/completed", apiHandlers.Sync.Completed())
		}
	}
}
