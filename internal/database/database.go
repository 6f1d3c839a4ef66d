package database

import (
	"fmt"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/kedaiservis/repair-service/internal/config"
)

// Open connects gorm to Postgres. SQL logging stays off outside development.
func Open(cfg *config.Config) (*gorm.DB, error) {
	level := gormlogger.Silent
	if cfg.AppEnv == "development" {
		level = gormlogger.Warn
	}

	db, err := gorm.Open(postgres.Open(cfg.DSN()), &gorm.Config{
		Logger: gormlogger.Default.LogMode(level),
	})
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	return db, nil
}
