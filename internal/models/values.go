package models

import (
	"time"

	"github.com/customeros/mailwarden/internal/enum"
)

// TrainingScope narrows a run to one tenant or one domain. The zero value means all senders.
type TrainingScope struct {
	Tenant   string `json:"tenant,omitempty"`
	DomainID string `json:"domainId,omitempty"`
}

func (s TrainingScope) Kind() enum.TrainingScopeKind {
	switch {
	case s.DomainID != "":
		return enum.ScopeDomain
	case s.Tenant != "":
		return enum.ScopeTenant
	}
	return enum.ScopeAll
}

type SenderStats struct {
	ActiveCount   int64   `gorm:"column:active_count"`
	AvgReputation float64 `gorm:"column:avg_reputation"`
	TotalLimit    int64   `gorm:"column:total_limit"`
}

type DomainHealthUpdate struct {
	ReputationScore float64
	HealthScore     float64
	HealthStatus    enum.HealthStatus
	MonitoredAt     time.Time
}
