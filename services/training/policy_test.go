package training

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/customeros/mailwarden/internal/enum"
)

func TestAutomaticLimit(t *testing.T) {
	tests := []struct {
		name    string
		current int
		band    enum.ReputationBand
		want    int
	}{
		{"excellent grows 20%", 100, enum.BandExcellent, 120},
		{"good grows 10%", 100, enum.BandGood, 110},
		{"fair holds", 100, enum.BandFair, 100},
		{"poor shrinks 25%", 100, enum.BandPoor, 75},
		{"critical halves", 100, enum.BandCritical, 60},
		{"capped at max", 900, enum.BandExcellent, 1000},
		{"zero limit starts from min", 0, enum.BandGood, 66},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, AutomaticLimit(tt.current, tt.band, 60, 1000))
		})
	}
}

func TestManualLimit(t *testing.T) {
	created := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	s := Settings{ManualStartLimit: 100, ManualIncreasePct: 50, ManualIntervalDays: 7, ManualMaxLimit: 400}

	assert.Equal(t, 100, ManualLimit(s, created, created))
	assert.Equal(t, 100, ManualLimit(s, created, created.AddDate(0, 0, 6)))
	assert.Equal(t, 150, ManualLimit(s, created, created.AddDate(0, 0, 7)))
	assert.Equal(t, 225, ManualLimit(s, created, created.AddDate(0, 0, 14)))
	assert.Equal(t, 337, ManualLimit(s, created, created.AddDate(0, 0, 21)))
	assert.Equal(t, 400, ManualLimit(s, created, created.AddDate(0, 0, 28)))
	assert.Equal(t, 400, ManualLimit(s, created, created.AddDate(10, 0, 0)))
	assert.Equal(t, 100, ManualLimit(s, created, created.AddDate(0, 0, -3)))
}

func TestKeyedMutexReleasesEntries(t *testing.T) {
	k := newKeyedMutex()
	unlock := k.Lock("a")
	assert.Len(t, k.locks, 1)
	unlock()
	assert.Empty(t, k.locks)
}
