package models

import (
	"time"

	"gorm.io/gorm"

	"github.com/customeros/mailwarden/internal/utils"
)

type Sender struct {
	ID               string     `gorm:"column:id;type:varchar(50);primaryKey" json:"id"`
	Tenant           string     `gorm:"column:tenant;type:varchar(255);index" json:"tenant"`
	DomainID         string     `gorm:"column:domain_id;type:varchar(50);index" json:"domainId"`
	Email            string     `gorm:"column:email;type:varchar(255);uniqueIndex" json:"email"`
	DailyLimit       int        `gorm:"column:daily_limit;type:integer;NOT NULL;DEFAULT:0" json:"dailyLimit"`
	CurrentDailySent int        `gorm:"column:current_daily_sent;type:integer;NOT NULL;DEFAULT:0" json:"currentDailySent"`
	ReputationScore  float64    `gorm:"column:reputation_score;type:numeric(5,2);NOT NULL;DEFAULT:0" json:"reputationScore"`
	LastTrainingAt   *time.Time `gorm:"column:last_training_at;type:timestamp" json:"lastTrainingAt,omitempty"`
	TrainingData     JSONMap    `gorm:"column:training_data;type:jsonb" json:"trainingData,omitempty"`
	IsActive         bool       `gorm:"column:is_active;type:boolean;NOT NULL;DEFAULT:true" json:"isActive"`
	CreatedAt        time.Time  `gorm:"column:created_at;type:timestamp;default:current_timestamp" json:"createdAt"`
	UpdatedAt        time.Time  `gorm:"column:updated_at;type:timestamp;default:current_timestamp" json:"updatedAt"`
}

func (Sender) TableName() string {
	return "senders"
}

func (m *Sender) BeforeCreate(tx *gorm.DB) error {
	if m.ID == "" {
		m.ID = utils.GenerateID("sndr")
	}
	m.Email = utils.NormalizeEmail(m.Email)
	return nil
}

// RemainingToday is the number of sends still admitted today.
func (m *Sender) RemainingToday() int {
	remaining := m.DailyLimit - m.CurrentDailySent
	if remaining < 0 {
		return 0
	}
	return remaining
}
