// Package reputation turns aggregated delivery counters into sender reputation and domain health scores.
package reputation

import (
	"github.com/customeros/mailwarden/internal/enum"
)

const (
	MinScore = 1.0
	MaxScore = 100.0
)

// Metrics are the counters of one window plus rates in percent of TotalSent.
type Metrics struct {
	TotalSent       int     `json:"totalSent"`
	TotalDelivered  int     `json:"totalDelivered"`
	TotalBounced    int     `json:"totalBounced"`
	TotalComplaints int     `json:"totalComplaints"`
	DeliveryRate    float64 `json:"deliveryRate"`
	BounceRate      float64 `json:"bounceRate"`
	ComplaintRate   float64 `json:"complaintRate"`
}

// NewMetrics derives rates from counters. Rates are 0 when nothing was sent.
func NewMetrics(sent, delivered, bounced, complaints int) Metrics {
	m := Metrics{
		TotalSent:       sent,
		TotalDelivered:  delivered,
		TotalBounced:    bounced,
		TotalComplaints: complaints,
	}
	if sent > 0 {
		total := float64(sent)
		m.DeliveryRate = float64(delivered) / total * 100
		m.BounceRate = float64(bounced) / total * 100
		m.ComplaintRate = float64(complaints) / total * 100
	}
	return m
}

// Score computes the 1..100 reputation of a sending identity.
func Score(m Metrics) float64 {
	score := baseScore(m.DeliveryRate)

	switch {
	case m.BounceRate > 10:
		score -= 30
	case m.BounceRate > 5:
		score -= 20
	case m.BounceRate > 2:
		score -= 10
	}

	switch {
	case m.ComplaintRate > 1:
		score -= 40
	case m.ComplaintRate > 0.5:
		score -= 25
	case m.ComplaintRate > 0.1:
		score -= 10
	}

	if m.TotalSent > 1000 && m.DeliveryRate > 90 && m.BounceRate < 2 {
		score += 5
	}

	return clamp(score, MinScore, MaxScore)
}

func baseScore(deliveryRate float64) float64 {
	switch {
	case deliveryRate >= 95:
		return 95
	case deliveryRate >= 90:
		return 85
	case deliveryRate >= 85:
		return 75
	case deliveryRate >= 80:
		return 65
	case deliveryRate >= 70:
		return 55
	}
	return 30
}

// Thresholds are the lower score bounds of each band; anything below Poor is critical.
type Thresholds struct {
	Excellent float64 `json:"excellent"`
	Good      float64 `json:"good"`
	Fair      float64 `json:"fair"`
	Poor      float64 `json:"poor"`
}

func Band(score float64, t Thresholds) enum.ReputationBand {
	switch {
	case score >= t.Excellent:
		return enum.BandExcellent
	case score >= t.Good:
		return enum.BandGood
	case score >= t.Fair:
		return enum.BandFair
	case score >= t.Poor:
		return enum.BandPoor
	}
	return enum.BandCritical
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
