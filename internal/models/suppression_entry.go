package models

import (
	"time"

	"gorm.io/gorm"

	"github.com/customeros/mailwarden/internal/enum"
	"github.com/customeros/mailwarden/internal/utils"
)

type SuppressionEntry struct {
	ID        string               `gorm:"column:id;type:varchar(50);primaryKey" json:"id"`
	Email     string               `gorm:"column:email;type:varchar(255);NOT NULL;uniqueIndex" json:"email"`
	Type      enum.SuppressionType `gorm:"column:type;type:varchar(20);NOT NULL" json:"type"`
	Source    string               `gorm:"column:source;type:varchar(255)" json:"source"`
	Reason    string               `gorm:"column:reason;type:text" json:"reason"`
	Metadata  JSONMap              `gorm:"column:metadata;type:jsonb" json:"metadata,omitempty"`
	CreatedAt time.Time            `gorm:"column:created_at;type:timestamp;DEFAULT:current_timestamp" json:"createdAt"`
	UpdatedAt time.Time            `gorm:"column:updated_at;type:timestamp;DEFAULT:current_timestamp" json:"updatedAt"`
}

func (SuppressionEntry) TableName() string {
	return "suppression_entries"
}

func (m *SuppressionEntry) BeforeCreate(tx *gorm.DB) error {
	if m.ID == "" {
		m.ID = utils.GenerateID("sup")
	}
	m.Email = utils.NormalizeEmail(m.Email)
	return nil
}
