package reputation

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/customeros/mailwarden/internal/enum"
)

func TestScore_DeliveryBands(t *testing.T) {
	tests := []struct {
		name         string
		deliveryRate float64
		expected     float64
	}{
		{"exactly 95", 95.0, 95},
		{"just below 95", 94.999, 85},
		{"exactly 90", 90.0, 85},
		{"just below 90", 89.999, 75},
		{"exactly 85", 85.0, 75},
		{"exactly 80", 80.0, 65},
		{"exactly 70", 70.0, 55},
		{"just below 70", 69.999, 30},
		{"zero", 0, 30},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := Metrics{TotalSent: 100, DeliveryRate: tt.deliveryRate}
			assert.Equal(t, tt.expected, Score(m))
		})
	}
}

func TestScore_Penalties(t *testing.T) {
	tests := []struct {
		name     string
		metrics  Metrics
		expected float64
	}{
		{"bounce above 2", Metrics{TotalSent: 100, DeliveryRate: 96, BounceRate: 2.5}, 85},
		{"bounce exactly 2", Metrics{TotalSent: 100, DeliveryRate: 96, BounceRate: 2}, 95},
		{"bounce above 5", Metrics{TotalSent: 100, DeliveryRate: 96, BounceRate: 6}, 75},
		{"bounce above 10", Metrics{TotalSent: 100, DeliveryRate: 96, BounceRate: 11}, 65},
		{"complaint above 0.1", Metrics{TotalSent: 100, DeliveryRate: 96, ComplaintRate: 0.2}, 85},
		{"complaint above 0.5", Metrics{TotalSent: 100, DeliveryRate: 96, ComplaintRate: 0.6}, 70},
		{"complaint above 1", Metrics{TotalSent: 100, DeliveryRate: 96, ComplaintRate: 1.5}, 55},
		{"both penalties", Metrics{TotalSent: 100, DeliveryRate: 85, BounceRate: 6, ComplaintRate: 0.6}, 30},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, Score(tt.metrics))
		})
	}
}

func TestScore_VolumeBonus(t *testing.T) {
	assert.Equal(t, 100.0, Score(Metrics{TotalSent: 1001, DeliveryRate: 96, BounceRate: 1}))
	assert.Equal(t, 95.0, Score(Metrics{TotalSent: 1000, DeliveryRate: 96, BounceRate: 1}))
	assert.Equal(t, 85.0, Score(Metrics{TotalSent: 5000, DeliveryRate: 90, BounceRate: 1}))
	assert.Equal(t, 90.0, Score(Metrics{TotalSent: 5000, DeliveryRate: 90.5, BounceRate: 1.9}))
}

func TestScore_Clamping(t *testing.T) {
	worst := Metrics{TotalSent: 100, DeliveryRate: 10, BounceRate: 50, ComplaintRate: 10}
	assert.Equal(t, MinScore, Score(worst))

	best := Metrics{TotalSent: 100000, DeliveryRate: 100, BounceRate: 0, ComplaintRate: 0}
	assert.Equal(t, MaxScore, Score(best))
	assert.LessOrEqual(t, Score(best), MaxScore)
}

func TestScore_Deterministic(t *testing.T) {
	m := NewMetrics(1234, 1180, 40, 2)
	first := Score(m)
	for i := 0; i < 100; i++ {
		assert.Equal(t, first, Score(m))
	}
}

func TestNewMetrics(t *testing.T) {
	m := NewMetrics(200, 190, 8, 1)
	assert.InDelta(t, 95.0, m.DeliveryRate, 1e-9)
	assert.InDelta(t, 4.0, m.BounceRate, 1e-9)
	assert.InDelta(t, 0.5, m.ComplaintRate, 1e-9)

	empty := NewMetrics(0, 0, 0, 3)
	assert.Zero(t, empty.DeliveryRate)
	assert.Zero(t, empty.BounceRate)
	assert.Zero(t, empty.ComplaintRate)
	assert.Equal(t, 3, empty.TotalComplaints)
}

func TestBand(t *testing.T) {
	th := Thresholds{Excellent: 90, Good: 75, Fair: 60, Poor: 40}

	assert.Equal(t, enum.BandExcellent, Band(90, th))
	assert.Equal(t, enum.BandGood, Band(89.9, th))
	assert.Equal(t, enum.BandGood, Band(75, th))
	assert.Equal(t, enum.BandFair, Band(60, th))
	assert.Equal(t, enum.BandPoor, Band(40, th))
	assert.Equal(t, enum.BandCritical, Band(39.9, th))
	assert.Equal(t, enum.BandCritical, Band(1, th))
}
