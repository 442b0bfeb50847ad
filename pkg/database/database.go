package database

import (
	"fmt"

	"github.com/aoli-al/havoc-mutation-eval/config"

	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// NewDBConnection opens the result store and migrates its tables. It returns
// nil when DATABASE_URL is not set.
func NewDBConnection(appConfig *config.AppConfig, lg *zap.Logger) (*gorm.DB, error) {
	if !appConfig.DatabaseEnabled() {
		lg.Debug("database disabled, campaign results are only written to csv")
		return nil, nil
	}
	db, err := gorm.Open(postgres.Open(appConfig.DatabaseURL), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect database: %w", err)
	}
	if err := Migrate(db); err != nil {
		return nil, err
	}
	lg.Debug("connected to database")
	return db, nil
}

func Migrate(db *gorm.DB) error {
	if err := db.AutoMigrate(&Campaign{}, &Failure{}); err != nil {
		return fmt.Errorf("failed to migrate database: %w", err)
	}
	return nil
}
