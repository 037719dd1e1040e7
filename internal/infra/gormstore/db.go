package gormstore

import (
	"fmt"
	"log/slog"
	"time"

	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"flash-sale/internal/config"
)

// Open connects to the persistent store. TranslateError is enabled so unique
// violations surface as gorm.ErrDuplicatedKey for every driver.
func Open(cfg config.DatabaseConfig, logger *slog.Logger) (*gorm.DB, error) {
	var dialector gorm.Dialector
	switch cfg.Driver {
	case "postgres":
		dialector = postgres.Open(cfg.DSN)
	case "sqlite":
		dialector = sqlite.Open(cfg.DSN)
	default:
		return nil, fmt.Errorf("unsupported database driver %q", cfg.Driver)
	}

	// Statement logs go through the process logger; only slow or failed
	// statements are reported.
	queryLogger := gormlogger.NewSlogLogger(logger.With("component", "gormstore"), gormlogger.Config{
		SlowThreshold:             200 * time.Millisecond,
		LogLevel:                  gormlogger.Warn,
		IgnoreRecordNotFoundError: true,
	})
	db, err := gorm.Open(dialector, &gorm.Config{
		TranslateError: true,
		Logger:         queryLogger,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open %s database: %w", cfg.Driver, err)
	}

	if cfg.Driver == "sqlite" {
		// sqlite serializes writers anyway; one connection avoids SQLITE_BUSY.
		sqlDB, err := db.DB()
		if err != nil {
			return nil, fmt.Errorf("failed to get sql.DB: %w", err)
		}
		sqlDB.SetMaxOpenConns(1)
	}

	if cfg.AutoMigrate {
		if err := Migrate(db); err != nil {
			return nil, err
		}
	}
	logger.Info("database ready", "component", "gormstore", "driver", cfg.Driver)
	return db, nil
}

// Migrate creates or updates the voucher, order and shop tables.
func Migrate(db *gorm.DB) error {
	if err := db.AutoMigrate(&voucherModel{}, &orderModel{}, &shopModel{}); err != nil {
		return fmt.Errorf("failed to migrate schema: %w", err)
	}
	return nil
}
