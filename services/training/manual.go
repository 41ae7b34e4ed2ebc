package training

import (
	"math"
	"time"
)

// ManualLimit grows geometrically with the sender's age:
// min(max, start * (1 + pct/100)^floor(days/interval)).
func ManualLimit(s Settings, createdAt, now time.Time) int {
	if s.ManualIntervalDays <= 0 {
		return s.ManualStartLimit
	}

	days := int(now.Sub(createdAt).Hours() / 24)
	if days < 0 {
		days = 0
	}
	steps := days / s.ManualIntervalDays

	limit := float64(s.ManualStartLimit) * math.Pow(1+s.ManualIncreasePct/100, float64(steps))
	if limit > float64(s.ManualMaxLimit) || math.IsInf(limit, 1) {
		return s.ManualMaxLimit
	}
	return int(math.Floor(limit))
}
