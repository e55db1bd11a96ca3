package repository

import (
	"time"

	"gorm.io/gorm"

	"github.com/customeros/mailmedic/config"
	"github.com/customeros/mailmedic/internal/models"
)

type Repositories struct {
	DomainRepository          DomainRepository
	MailboxRepository         MailboxRepository
	CampaignRepository        CampaignRepository
	StateTransitionRepository StateTransitionRepository
	ReportRepository          ReportRepository
	AuditLogRepository        AuditLogRepository
	TenantSettingsRepository  TenantSettingsRepository
}

func InitRepositories(db *gorm.DB) *Repositories {
	return &Repositories{
		DomainRepository:          NewDomainRepository(db),
		MailboxRepository:         NewMailboxRepository(db),
		CampaignRepository:        NewCampaignRepository(db),
		StateTransitionRepository: NewStateTransitionRepository(db),
		ReportRepository:          NewReportRepository(db),
		AuditLogRepository:        NewAuditLogRepository(db),
		TenantSettingsRepository:  NewTenantSettingsRepository(db),
	}
}

func MigrateDB(dbConfig *config.DatabaseConfig, gormDB *gorm.DB) error {
	db, err := gormDB.DB()
	if err != nil {
		return err
	}

	db.SetMaxOpenConns(5)

	err = gormDB.AutoMigrate(
		&models.Domain{},
		&models.Mailbox{},
		&models.Campaign{},
		&models.StateTransition{},
		&models.InfrastructureReport{},
		&models.AuditLog{},
		&models.TenantSettings{},
	)

	db.Close()

	db, _ = gormDB.DB()
	db.SetMaxIdleConns(dbConfig.MaxIdleConn)
	db.SetMaxOpenConns(dbConfig.MaxConn)
	db.SetConnMaxLifetime(time.Duration(dbConfig.ConnMaxLifetime) * time.Minute)

	return err
}
