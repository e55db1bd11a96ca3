package services

import (
	"time"

	"github.com/customeros/mailmedic/config"
	"github.com/customeros/mailmedic/interfaces"
	"github.com/customeros/mailmedic/internal/logger"
	"github.com/customeros/mailmedic/internal/repository"
	"github.com/customeros/mailmedic/services/assessment"
	"github.com/customeros/mailmedic/services/dnscheck"
	"github.com/customeros/mailmedic/services/events"
	"github.com/customeros/mailmedic/services/gate"
	"github.com/customeros/mailmedic/services/healing"
	"github.com/customeros/mailmedic/services/notify"
	"github.com/customeros/mailmedic/services/override"
	"github.com/customeros/mailmedic/services/platform"
	"github.com/customeros/mailmedic/services/storage"
	"github.com/customeros/mailmedic/services/throttle"
)

type Services struct {
	Publisher           *events.RabbitMQPublisher
	DNSCheckService     interfaces.DNSCheckService
	GateService         interfaces.GateService
	HealingService      interfaces.HealingService
	ThrottleService     interfaces.ThrottleService
	OverrideService     interfaces.OverrideService
	AssessmentService   interfaces.AssessmentService
	PlatformService     interfaces.PlatformService
	NotificationService interfaces.NotificationService
	StorageService      interfaces.StorageService
}

func InitServices(cfg *config.Config, log logger.Logger, repos *repository.Repositories) (*Services, error) {
	var publisher *events.RabbitMQPublisher
	if cfg.AppConfig.RabbitMQURL != "" {
		publisherConfig := &events.PublisherConfig{
			MessageTTL:          events.DefaultMessageTTL,
			MaxRetries:          events.DefaultMaxRetries,
			PublishTimeout:      events.DefaultPublishTimeout,
			ReconnectBackoff:    events.DefaultReconnectBackoff,
			MaxReconnectBackoff: events.DefaultMaxReconnectBackoff,
		}

		var err error
		publisher, err = events.NewRabbitMQPublisher(cfg.AppConfig.RabbitMQURL, log, publisherConfig)
		if err != nil {
			return nil, err
		}
	}

	notificationService := notify.NewNotificationService(log, publisher)
	platformService := platform.NewPlatformService(cfg.PlatformConfig)
	storageService := storage.NewR2StorageService(
		cfg.R2StorageConfig.AccountID,
		cfg.R2StorageConfig.AccessKeyID,
		cfg.R2StorageConfig.AccessKeySecret,
		cfg.R2StorageConfig.ReportBucket,
	)

	resolver := dnscheck.NewResolver(cfg.DNSConfig.Resolver, time.Duration(cfg.DNSConfig.TimeoutSeconds)*time.Second)
	dnsCheckService := dnscheck.NewDNSCheckService(resolver, time.Duration(cfg.DNSConfig.CacheTTLSeconds)*time.Second)

	gateService := gate.NewGateService(log, repos)
	healingService := healing.NewHealingService(log, repos, platformService, notificationService)
	throttleService := throttle.NewThrottleService(log, repos)
	overrideService := override.NewOverrideService(log, repos, platformService, notificationService)
	assessmentService := assessment.NewAssessmentService(log, repos, dnsCheckService, healingService, platformService, notificationService, storageService)

	services := Services{
		Publisher:           publisher,
		DNSCheckService:     dnsCheckService,
		GateService:         gateService,
		HealingService:      healingService,
		ThrottleService:     throttleService,
		OverrideService:     overrideService,
		AssessmentService:   assessmentService,
		PlatformService:     platformService,
		NotificationService: notificationService,
		StorageService:      storageService,
	}

	return &services, nil
}
