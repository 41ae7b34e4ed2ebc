package reputation

import (
	"fmt"
	"math"

	"github.com/customeros/mailwarden/internal/enum"
)

// HealthInput is the merged analytics of one domain over the monitoring window.
type HealthInput struct {
	Metrics          Metrics `json:"metrics"`
	FeedbackLoops    int     `json:"feedbackLoops"`
	DiagnosticIssues int     `json:"diagnosticIssues"`
	BlacklistMajor   int     `json:"blacklistMajor"`
}

// AttentionThresholds are the per-metric limits that flag a domain for review.
type AttentionThresholds struct {
	MinHealthScore    float64
	MinDeliveryRate   float64
	MaxBounceRate     float64
	MaxComplaintRate  float64
	MaxFeedbackLoops  int
	MaxDiagnosticHits int
}

func DefaultAttentionThresholds() AttentionThresholds {
	return AttentionThresholds{
		MinHealthScore:    70,
		MinDeliveryRate:   90,
		MaxBounceRate:     5,
		MaxComplaintRate:  0.5,
		MaxFeedbackLoops:  10,
		MaxDiagnosticHits: 50,
	}
}

// HealthScore is 100 minus weighted penalties, clamped to 0..100.
func HealthScore(in HealthInput) float64 {
	m := in.Metrics
	penalty := math.Max(0, 95-m.DeliveryRate)*1.5 +
		math.Max(0, m.BounceRate-2)*3 +
		math.Max(0, m.ComplaintRate-0.1)*50 +
		math.Min(20, float64(in.FeedbackLoops)*0.5) +
		math.Min(15, float64(in.DiagnosticIssues)*0.25)

	return clamp(100-penalty, 0, 100)
}

func HealthStatus(score float64) enum.HealthStatus {
	switch {
	case score >= 90:
		return enum.HealthExcellent
	case score >= 75:
		return enum.HealthGood
	case score >= 60:
		return enum.HealthFair
	}
	return enum.HealthPoor
}

// NeedsAttention reports whether the domain breaches any threshold, with one reason per breach.
func NeedsAttention(score float64, in HealthInput, t AttentionThresholds) (bool, []string) {
	var reasons []string
	m := in.Metrics

	if score < t.MinHealthScore {
		reasons = append(reasons, fmt.Sprintf("health score %.1f below %.1f", score, t.MinHealthScore))
	}
	if m.TotalSent > 0 && m.DeliveryRate < t.MinDeliveryRate {
		reasons = append(reasons, fmt.Sprintf("delivery rate %.2f%% below %.2f%%", m.DeliveryRate, t.MinDeliveryRate))
	}
	if m.BounceRate > t.MaxBounceRate {
		reasons = append(reasons, fmt.Sprintf("bounce rate %.2f%% above %.2f%%", m.BounceRate, t.MaxBounceRate))
	}
	if m.ComplaintRate > t.MaxComplaintRate {
		reasons = append(reasons, fmt.Sprintf("complaint rate %.2f%% above %.2f%%", m.ComplaintRate, t.MaxComplaintRate))
	}
	if in.FeedbackLoops > t.MaxFeedbackLoops {
		reasons = append(reasons, fmt.Sprintf("%d feedback loop reports above %d", in.FeedbackLoops, t.MaxFeedbackLoops))
	}
	if in.DiagnosticIssues > t.MaxDiagnosticHits {
		reasons = append(reasons, fmt.Sprintf("%d diagnostic issues above %d", in.DiagnosticIssues, t.MaxDiagnosticHits))
	}
	if in.BlacklistMajor > 0 {
		reasons = append(reasons, fmt.Sprintf("listed on %d major blacklists", in.BlacklistMajor))
	}

	return len(reasons) > 0, reasons
}
