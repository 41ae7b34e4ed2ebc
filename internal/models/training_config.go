package models

import (
	"time"

	"github.com/customeros/mailwarden/internal/enum"
)

// TrainingConfig holds the policy parameters for one tenant. An empty tenant is the system-wide row.
type TrainingConfig struct {
	Tenant             string            `gorm:"column:tenant;type:varchar(255);primaryKey" json:"tenant"`
	Mode               enum.TrainingMode `gorm:"column:mode;type:varchar(20);NOT NULL" json:"mode"`
	ExcellentScore     float64           `gorm:"column:excellent_score;type:numeric(5,2)" json:"excellentScore"`
	GoodScore          float64           `gorm:"column:good_score;type:numeric(5,2)" json:"goodScore"`
	FairScore          float64           `gorm:"column:fair_score;type:numeric(5,2)" json:"fairScore"`
	PoorScore          float64           `gorm:"column:poor_score;type:numeric(5,2)" json:"poorScore"`
	AutoMinLimit       int               `gorm:"column:auto_min_limit;type:integer" json:"autoMinLimit"`
	AutoMaxLimit       int               `gorm:"column:auto_max_limit;type:integer" json:"autoMaxLimit"`
	ManualStartLimit   int               `gorm:"column:manual_start_limit;type:integer" json:"manualStartLimit"`
	ManualIncreasePct  float64           `gorm:"column:manual_increase_pct;type:numeric(6,2)" json:"manualIncreasePct"`
	ManualIntervalDays int               `gorm:"column:manual_interval_days;type:integer" json:"manualIntervalDays"`
	ManualMaxLimit     int               `gorm:"column:manual_max_limit;type:integer" json:"manualMaxLimit"`
	UpdatedAt          time.Time         `gorm:"column:updated_at;type:timestamp;DEFAULT:current_timestamp" json:"updatedAt"`
}

func (TrainingConfig) TableName() string {
	return "training_configs"
}
