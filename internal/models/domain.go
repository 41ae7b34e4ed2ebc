package models

import (
	"time"

	"github.com/lib/pq"
	"gorm.io/gorm"

	"github.com/customeros/mailwarden/internal/enum"
	"github.com/customeros/mailwarden/internal/utils"
)

type Domain struct {
	ID              string            `gorm:"column:id;type:varchar(50);primaryKey" json:"id"`
	Tenant          string            `gorm:"column:tenant;type:varchar(255);NOT NULL;index" json:"tenant"`
	Domain          string            `gorm:"column:domain;type:varchar(255);NOT NULL;uniqueIndex" json:"domain"`
	Active          bool              `gorm:"column:active;type:boolean;NOT NULL;DEFAULT:true" json:"active"`
	ReputationScore float64           `gorm:"column:reputation_score;type:numeric(5,2);NOT NULL;DEFAULT:0" json:"reputationScore"`
	HealthScore     float64           `gorm:"column:health_score;type:numeric(5,2);NOT NULL;DEFAULT:0" json:"healthScore"`
	HealthStatus    enum.HealthStatus `gorm:"column:health_status;type:varchar(20)" json:"healthStatus"`
	LastMonitored   *time.Time        `gorm:"column:last_monitored;type:timestamp" json:"lastMonitored,omitempty"`
	LogGlobs        pq.StringArray    `gorm:"column:log_globs;type:text[]" json:"logGlobs,omitempty"`
	CreatedAt       time.Time         `gorm:"column:created_at;type:timestamp;DEFAULT:current_timestamp" json:"createdAt"`
	UpdatedAt       time.Time         `gorm:"column:updated_at;type:timestamp;DEFAULT:current_timestamp" json:"updatedAt"`

	BounceHost            string               `gorm:"column:bounce_host;type:varchar(255)" json:"bounceHost,omitempty"`
	BouncePort            int                  `gorm:"column:bounce_port;type:integer" json:"bouncePort,omitempty"`
	BounceProtocol        enum.MailboxProtocol `gorm:"column:bounce_protocol;type:varchar(10)" json:"bounceProtocol,omitempty"`
	BounceUsername        string               `gorm:"column:bounce_username;type:varchar(255)" json:"bounceUsername,omitempty"`
	BouncePassword        string               `gorm:"column:bounce_password;type:text" json:"-"`
	BounceFolder          string               `gorm:"column:bounce_folder;type:varchar(255);DEFAULT:'INBOX'" json:"bounceFolder,omitempty"`
	BounceDeleteProcessed bool                 `gorm:"column:bounce_delete_processed;type:boolean;NOT NULL;DEFAULT:false" json:"bounceDeleteProcessed"`
	BounceRules           BounceRules          `gorm:"column:bounce_rules;type:jsonb" json:"bounceRules,omitempty"`
}

func (Domain) TableName() string {
	return "domains"
}

func (m *Domain) BeforeCreate(tx *gorm.DB) error {
	if m.ID == "" {
		m.ID = utils.GenerateID("dom")
	}
	return nil
}

// HasBounceMailbox reports whether any bounce mailbox settings are present.
func (m *Domain) HasBounceMailbox() bool {
	return m.BounceHost != ""
}
