package models

import (
	"time"

	"gorm.io/gorm"

	"github.com/customeros/mailwarden/internal/enum"
	"github.com/customeros/mailwarden/internal/utils"
)

type BounceRecord struct {
	ID          string          `gorm:"column:id;type:varchar(50);primaryKey" json:"id"`
	DomainID    string          `gorm:"column:domain_id;type:varchar(50);NOT NULL;uniqueIndex:idx_bounce_domain_message" json:"domainId"`
	MessageID   string          `gorm:"column:message_id;type:varchar(998);NOT NULL;uniqueIndex:idx_bounce_domain_message" json:"messageId"`
	FromAddress string          `gorm:"column:from_address;type:varchar(255)" json:"fromAddress"`
	ToAddress   string          `gorm:"column:to_address;type:varchar(255);index" json:"toAddress"`
	BounceType  enum.BounceType `gorm:"column:bounce_type;type:varchar(20);NOT NULL" json:"bounceType"`
	Reason      string          `gorm:"column:reason;type:text" json:"reason"`
	RawMessage  string          `gorm:"column:raw_message;type:text" json:"-"`
	ProcessedAt time.Time       `gorm:"column:processed_at;type:timestamp;NOT NULL" json:"processedAt"`
}

func (BounceRecord) TableName() string {
	return "bounce_records"
}

func (m *BounceRecord) BeforeCreate(tx *gorm.DB) error {
	if m.ID == "" {
		m.ID = utils.GenerateID("bnc")
	}
	if m.ProcessedAt.IsZero() {
		m.ProcessedAt = utils.Now()
	}
	return nil
}
