package db

import (
	"time" // Timestamps

	"vps_billing/internal/domain" // Importing domain models

	"github.com/sirupsen/logrus" // Structured logging
	"gorm.io/driver/mysql"       // MySQL driver for GORM
	"gorm.io/gorm"               // GORM ORM library
)

// Models lists every table owned by the service, in dependency order
func Models() []any {
	return []any{
		&domain.User{},
		&domain.Wallet{},
		&domain.Transaction{},
		&domain.Plan{},
		&domain.Resource{},
	}
}

// Open connects to MySQL using the given DSN
func Open(dsn string) (*gorm.DB, error) {
	return gorm.Open(mysql.Open(dsn), &gorm.Config{
		NowFunc: func() time.Time { return time.Now().UTC() }, // Store timestamps in UTC
	})
}

// Migrate performs automatic migration for the database schema
func Migrate(db *gorm.DB) error {
	// AutoMigrate will create tables, missing foreign keys, constraints, columns and indexes
	if err := db.AutoMigrate(Models()...); err != nil {
		return err
	}
	logrus.Info("Migration completed.") // Log successful migration
	return nil
}
