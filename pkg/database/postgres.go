package database

import (
	"fmt"
	"time"

	"adDecisioning/domain"
	"adDecisioning/pkg/config"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

func InitPostgres(cfg *config.Config) (*gorm.DB, error) {
	dsn := fmt.Sprintf(
		"host=%s port=%s user=%s password=%s dbname=%s sslmode=%s",
		cfg.Database.Host,
		cfg.Database.Port,
		cfg.Database.User,
		cfg.Database.Password,
		cfg.Database.Name,
		cfg.Database.SSLMode,
	)

	level := gormlogger.Warn
	if cfg.App.Environment == "development" {
		level = gormlogger.Info
	}

	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{
		Logger: gormlogger.Default.LogMode(level),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}
	sqlDB.SetMaxOpenConns(25)
	sqlDB.SetMaxIdleConns(10)
	sqlDB.SetConnMaxLifetime(30 * time.Minute)

	return db, nil
}

// Migrate creates or updates the tables owned by the decisioning core.
func Migrate(db *gorm.DB) error {
	return db.AutoMigrate(
		&domain.Campaign{},
		&domain.Creative{},
		&domain.SegmentLift{},
		&domain.AuctionEvent{},
		&domain.BanditUpdateEvent{},
		&domain.CausalEvent{},
		&domain.DeadLetter{},
		&domain.BanditCheckpoint{},
		&domain.ConfigRevision{},
	)
}
