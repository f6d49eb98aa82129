// Package database opens GORM connections to PostgreSQL/TimescaleDB.
package database

import (
	"time"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/chrissnell/laistats/internal/log"
	"go.uber.org/zap"
)

// GormLogger bridges GORM's logger onto the process zap logger.
func GormLogger() logger.Interface {
	return logger.New(
		zap.NewStdLog(log.GetZapLogger()),
		logger.Config{
			SlowThreshold:             time.Second, // Slow SQL threshold
			LogLevel:                  logger.Warn, // Log level
			IgnoreRecordNotFoundError: true,
			Colorful:                  false,
		},
	)
}

// CreateConnection is a helper function to create a database connection with standard GORM configuration
func CreateConnection(connectionString string) (*gorm.DB, error) {
	return Open(postgres.Open(connectionString))
}

// Open connects through an arbitrary GORM dialector with the standard
// configuration.
func Open(dialector gorm.Dialector) (*gorm.DB, error) {
	log.Info("connecting to TimescaleDB...")
	db, err := gorm.Open(dialector, &gorm.Config{
		Logger:                 GormLogger(),
		SkipDefaultTransaction: true,
	})
	if err != nil {
		log.Warnf("warning: unable to create a TimescaleDB connection: %v", err)
		return nil, err
	}
	log.Info("TimescaleDB connection successful")
	return db, nil
}
