package database

import (
	"github.com/pkg/errors"
	"gorm.io/gorm"

	"github.com/customeros/mailwarden/config"
	"github.com/customeros/mailwarden/internal/models"
)

func InitMailwardenDatabase(dbConfig *config.MailwardenDatabaseConfig) (*gorm.DB, error) {
	db, err := NewConnection(dbConfig)
	if err != nil {
		return nil, errors.Wrap(err, "failed to connect to the database")
	}
	return db, nil
}

// MigrateMailwardenDB creates or updates the relational schema.
func MigrateMailwardenDB(db *gorm.DB) error {
	return db.AutoMigrate(
		&models.Domain{},
		&models.Sender{},
		&models.BounceRecord{},
		&models.SuppressionEntry{},
		&models.TrainingConfig{},
	)
}
