package training

import (
	"github.com/pkg/errors"

	"github.com/customeros/mailwarden/config"
	mwerrors "github.com/customeros/mailwarden/internal/errors"
	"github.com/customeros/mailwarden/internal/enum"
	"github.com/customeros/mailwarden/internal/models"
	"github.com/customeros/mailwarden/services/reputation"
)

// Settings is the policy for one run. It is resolved once when the run starts
// and every sender of the run is trained under it.
type Settings struct {
	Mode               enum.TrainingMode     `json:"mode"`
	Thresholds         reputation.Thresholds `json:"thresholds"`
	LookbackHours      int                   `json:"lookbackHours"`
	AutoMinLimit       int                   `json:"autoMinLimit"`
	AutoMaxLimit       int                   `json:"autoMaxLimit"`
	ManualStartLimit   int                   `json:"manualStartLimit"`
	ManualIncreasePct  float64               `json:"manualIncreasePct"`
	ManualIntervalDays int                   `json:"manualIntervalDays"`
	ManualMaxLimit     int                   `json:"manualMaxLimit"`
}

func DefaultSettings(cfg *config.TrainingConfig) Settings {
	return Settings{
		Mode: enum.TrainingMode(cfg.Mode),
		Thresholds: reputation.Thresholds{
			Excellent: cfg.ExcellentScore,
			Good:      cfg.GoodScore,
			Fair:      cfg.FairScore,
			Poor:      cfg.PoorScore,
		},
		LookbackHours:      cfg.LookbackHours,
		AutoMinLimit:       cfg.AutoMinLimit,
		AutoMaxLimit:       cfg.AutoMaxLimit,
		ManualStartLimit:   cfg.ManualStartLimit,
		ManualIncreasePct:  cfg.ManualIncreasePct,
		ManualIntervalDays: cfg.ManualIntervalDays,
		ManualMaxLimit:     cfg.ManualMaxLimit,
	}
}

// Overlay applies the non-zero fields of a stored config row on top of s.
func (s Settings) Overlay(row *models.TrainingConfig) Settings {
	if row == nil {
		return s
	}
	if row.Mode != "" {
		s.Mode = row.Mode
	}
	if row.ExcellentScore > 0 {
		s.Thresholds.Excellent = row.ExcellentScore
	}
	if row.GoodScore > 0 {
		s.Thresholds.Good = row.GoodScore
	}
	if row.FairScore > 0 {
		s.Thresholds.Fair = row.FairScore
	}
	if row.PoorScore > 0 {
		s.Thresholds.Poor = row.PoorScore
	}
	if row.AutoMinLimit > 0 {
		s.AutoMinLimit = row.AutoMinLimit
	}
	if row.AutoMaxLimit > 0 {
		s.AutoMaxLimit = row.AutoMaxLimit
	}
	if row.ManualStartLimit > 0 {
		s.ManualStartLimit = row.ManualStartLimit
	}
	if row.ManualIncreasePct > 0 {
		s.ManualIncreasePct = row.ManualIncreasePct
	}
	if row.ManualIntervalDays > 0 {
		s.ManualIntervalDays = row.ManualIntervalDays
	}
	if row.ManualMaxLimit > 0 {
		s.ManualMaxLimit = row.ManualMaxLimit
	}
	return s
}

func (s Settings) Validate() error {
	if !s.Mode.IsValid() {
		return errors.Wrapf(mwerrors.ErrInvalidConfiguration, "training mode %q", s.Mode)
	}
	t := s.Thresholds
	if !(t.Excellent >= t.Good && t.Good >= t.Fair && t.Fair >= t.Poor) {
		return errors.Wrap(mwerrors.ErrInvalidConfiguration, "score thresholds must be descending")
	}
	switch s.Mode {
	case enum.TrainingAutomatic:
		if s.AutoMinLimit < 0 || s.AutoMaxLimit < s.AutoMinLimit {
			return errors.Wrapf(mwerrors.ErrInvalidConfiguration, "automatic limits [%d, %d]", s.AutoMinLimit, s.AutoMaxLimit)
		}
	case enum.TrainingManual:
		if s.ManualIntervalDays <= 0 {
			return errors.Wrap(mwerrors.ErrInvalidConfiguration, "manual interval must be at least one day")
		}
		if s.ManualStartLimit < 0 || s.ManualMaxLimit < s.ManualStartLimit || s.ManualIncreasePct < 0 {
			return errors.Wrap(mwerrors.ErrInvalidConfiguration, "manual growth parameters")
		}
	}
	return nil
}
