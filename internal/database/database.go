package database

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/ahmetk3436/duochat/internal/config"
	"github.com/ahmetk3436/duochat/internal/models"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// Connect opens the database selected by cfg.DBDriver. The caller owns the
// returned handle and closes it at shutdown.
func Connect(cfg *config.Config) (*gorm.DB, error) {
	gormCfg := &gorm.Config{Logger: logger.Default.LogMode(logger.Warn)}

	switch cfg.DBDriver {
	case "sqlite":
		if dir := filepath.Dir(cfg.SQLitePath); dir != "." {
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return nil, fmt.Errorf("failed to create sqlite directory: %w", err)
			}
		}
		db, err := OpenSQLite(cfg.SQLitePath, gormCfg)
		if err != nil {
			return nil, err
		}
		slog.Info("Database connected", "driver", "sqlite", "path", cfg.SQLitePath)
		return db, nil
	default:
		dsn := fmt.Sprintf("host=%s port=%s user=%s password=%s dbname=%s sslmode=%s",
			cfg.DBHost, cfg.DBPort, cfg.DBUser, cfg.DBPassword, cfg.DBName, cfg.DBSSLMode)
		db, err := gorm.Open(postgres.Open(dsn), gormCfg)
		if err != nil {
			return nil, fmt.Errorf("failed to connect to database: %w", err)
		}
		slog.Info("Database connected", "driver", "postgres", "host", cfg.DBHost, "db", cfg.DBName)
		return db, nil
	}
}

// OpenSQLite opens a sqlite database with foreign keys enforced. A single
// connection keeps every store call serialized and lets ":memory:" work.
func OpenSQLite(path string, gormCfg *gorm.Config) (*gorm.DB, error) {
	if gormCfg == nil {
		gormCfg = &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)}
	}
	dsn := path + "?_foreign_keys=on&_busy_timeout=5000"
	if path == ":memory:" {
		dsn = "file::memory:?_foreign_keys=on"
	}

	db, err := gorm.Open(sqlite.Open(dsn), gormCfg)
	if err != nil {
		return nil, fmt.Errorf("failed to open sqlite database: %w", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get sqlite handle: %w", err)
	}
	sqlDB.SetMaxOpenConns(1)
	return db, nil
}

func Migrate(db *gorm.DB) error {
	if err := db.AutoMigrate(
		&models.Conversation{},
		&models.Message{},
	); err != nil {
		return err
	}
	return backfillFolds(db)
}

// backfillFolds fills the search columns of rows written before they existed.
func backfillFolds(db *gorm.DB) error {
	var convs []models.Conversation
	err := db.Select("id", "title").Where("title_fold = '' AND title <> ''").
		FindInBatches(&convs, 200, func(tx *gorm.DB, _ int) error {
			for _, c := range convs {
				if err := tx.Model(&models.Conversation{}).Where("id = ?", c.ID).
					UpdateColumn("title_fold", models.Fold(c.Title)).Error; err != nil {
					return err
				}
			}
			return nil
		}).Error
	if err != nil {
		return fmt.Errorf("backfill conversation titles: %w", err)
	}

	var msgs []models.Message
	err = db.Select("id", "content").Where("content_fold = '' AND content <> ''").
		FindInBatches(&msgs, 200, func(tx *gorm.DB, _ int) error {
			for _, m := range msgs {
				if err := tx.Model(&models.Message{}).Where("id = ?", m.ID).
					UpdateColumn("content_fold", models.Fold(m.Content)).Error; err != nil {
					return err
				}
			}
			return nil
		}).Error
	if err != nil {
		return fmt.Errorf("backfill message content: %w", err)
	}
	return nil
}

func Close(db *gorm.DB) error {
	sqlDB, err := db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
