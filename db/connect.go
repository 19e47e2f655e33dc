package db

import (
	"time"

	"github.com/solten/donations/internal/models"
	"github.com/solten/donations/utils"
	"gorm.io/driver/postgres"

	"gorm.io/gorm"
	gormLogger "gorm.io/gorm/logger"
)

func ConnectDb(url string, log *utils.Logger) (*gorm.DB, error) {
	db, err := gorm.Open(postgres.New(postgres.Config{
		DSN:                  url,
		PreferSimpleProtocol: true,
	}), &gorm.Config{
		Logger: gormLogger.Default.LogMode(gormLogger.Error),
	})

	if err != nil {
		return nil, err
	}

	log.Info("database connection established")

	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}

	sqlDB.SetMaxIdleConns(20)
	sqlDB.SetMaxOpenConns(200)
	sqlDB.SetConnMaxLifetime(time.Hour)

	return db, nil
}

func Migrate(db *gorm.DB, log *utils.Logger) error {
	log.Info("migrating database...")

	tables := []interface{}{
		&models.Donation{},
		&models.PendingPayment{},
		&models.DerivationCounter{},
	}

	if err := db.AutoMigrate(tables...); err != nil {
		log.Errorf("failed to migrate database: %v", err)
		return err
	}

	return nil
}
