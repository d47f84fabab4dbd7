package database

import (
	"dealdesk/internal/config"
	"dealdesk/internal/logger"
	"dealdesk/internal/model"
	"fmt"

	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

// Models lists every table the service owns, in dependency order
func Models() []interface{} {
	return []interface{}{
		&model.User{},
		&model.RefreshToken{},
		&model.AuditLog{},
		&model.TaxRule{},
		&model.Partner{},
		&model.Deal{},
		&model.FactoryAssignment{},
		&model.DealQuote{},
		&model.Invoice{},
		&model.Payment{},
		&model.ShippingRecord{},
		&model.StatusHistory{},
		&model.PriceRecord{},
	}
}

// NewConnection initializes a new connection pool using GORM
func NewConnection(cfg config.DatabaseConfig, log *zap.Logger) (*gorm.DB, error) {
	db, err := gorm.Open(postgres.Open(cfg.DSN()), &gorm.Config{
		Logger: logger.NewGormLogger(log, gormlogger.Warn),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get sql.DB: %w", err)
	}
	sqlDB.SetMaxOpenConns(cfg.MaxOpenConns)
	sqlDB.SetMaxIdleConns(cfg.MaxIdleConns)

	if err := Migrate(db); err != nil {
		log.Warn("failed to auto-migrate models", zap.Error(err))
	}

	return db, nil
}

// Migrate creates or updates every table in Models
func Migrate(db *gorm.DB) error {
	return db.AutoMigrate(Models()...)
}
