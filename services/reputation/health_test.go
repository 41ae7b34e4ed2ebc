package reputation

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/customeros/mailwarden/internal/enum"
)

func TestHealthScore(t *testing.T) {
	perfect := HealthInput{Metrics: Metrics{TotalSent: 100, DeliveryRate: 100}}
	assert.Equal(t, 100.0, HealthScore(perfect))

	mixed := HealthInput{
		Metrics:          Metrics{TotalSent: 100, DeliveryRate: 90, BounceRate: 4, ComplaintRate: 0.2},
		FeedbackLoops:    4,
		DiagnosticIssues: 8,
	}
	// 7.5 + 6 + 5 + 2 + 2
	assert.InDelta(t, 77.5, HealthScore(mixed), 1e-9)
}

func TestHealthScore_CappedPenaltiesAndClamp(t *testing.T) {
	in := HealthInput{
		Metrics:          Metrics{TotalSent: 100, DeliveryRate: 96},
		FeedbackLoops:    1000,
		DiagnosticIssues: 1000,
	}
	assert.InDelta(t, 65.0, HealthScore(in), 1e-9)

	terrible := HealthInput{Metrics: Metrics{TotalSent: 100, DeliveryRate: 10, BounceRate: 80, ComplaintRate: 5}}
	assert.Equal(t, 0.0, HealthScore(terrible))
}

func TestHealthStatus(t *testing.T) {
	assert.Equal(t, enum.HealthExcellent, HealthStatus(90))
	assert.Equal(t, enum.HealthGood, HealthStatus(89.99))
	assert.Equal(t, enum.HealthGood, HealthStatus(75))
	assert.Equal(t, enum.HealthFair, HealthStatus(60))
	assert.Equal(t, enum.HealthPoor, HealthStatus(59.99))
}

func TestNeedsAttention(t *testing.T) {
	th := DefaultAttentionThresholds()

	healthy := HealthInput{Metrics: Metrics{TotalSent: 100, DeliveryRate: 99, BounceRate: 1}}
	flag, reasons := NeedsAttention(HealthScore(healthy), healthy, th)
	assert.False(t, flag)
	assert.Empty(t, reasons)

	bouncy := HealthInput{Metrics: Metrics{TotalSent: 100, DeliveryRate: 99, BounceRate: 5.5}}
	flag, reasons = NeedsAttention(95, bouncy, th)
	assert.True(t, flag)
	assert.Len(t, reasons, 1)

	noisy := HealthInput{Metrics: Metrics{TotalSent: 100, DeliveryRate: 99}, FeedbackLoops: 11, DiagnosticIssues: 51}
	flag, reasons = NeedsAttention(95, noisy, th)
	assert.True(t, flag)
	assert.Len(t, reasons, 2)

	flag, _ = NeedsAttention(69.9, healthy, th)
	assert.True(t, flag)
}
