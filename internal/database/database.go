package database

import (
	"fmt"

	"github.com/rs/zerolog"
	"github.com/school-admin/backend/internal/config"
	"github.com/school-admin/backend/internal/docstore"
	"github.com/school-admin/backend/internal/models"
	"gorm.io/driver/mysql"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

func Connect(cfg *config.Config, log zerolog.Logger) (*gorm.DB, error) {
	var logLevel gormlogger.LogLevel
	if cfg.Server.Env == "development" {
		logLevel = gormlogger.Info
	} else {
		logLevel = gormlogger.Silent
	}

	var dialector gorm.Dialector
	switch cfg.Database.Driver {
	case "mysql":
		dialector = mysql.Open(cfg.Database.DSN)
	case "postgres":
		dialector = postgres.Open(cfg.Database.DSN)
	default:
		return nil, fmt.Errorf("unsupported database driver %q", cfg.Database.Driver)
	}

	db, err := gorm.Open(dialector, &gorm.Config{
		Logger: gormlogger.Default.LogMode(logLevel),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	log.Info().
		Str("driver", cfg.Database.Driver).
		Str("host", cfg.Database.Host).
		Str("db", cfg.Database.Name).
		Msg("database connected")

	return db, nil
}

func Migrate(db *gorm.DB, store *docstore.GormStore) error {
	if err := db.AutoMigrate(
		&models.User{},
		&models.RefreshToken{},
	); err != nil {
		return err
	}
	return store.Migrate()
}
