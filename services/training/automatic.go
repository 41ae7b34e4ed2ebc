package training

import (
	"math"

	"github.com/customeros/mailwarden/internal/enum"
)

var bandMultipliers = map[enum.ReputationBand]float64{
	enum.BandExcellent: 1.20,
	enum.BandGood:      1.10,
	enum.BandFair:      1.00,
	enum.BandPoor:      0.75,
	enum.BandCritical:  0.50,
}

// AutomaticLimit moves the daily limit according to the reputation band and keeps it
// within [minLimit, maxLimit]. A sender without a limit grows from minLimit.
func AutomaticLimit(current int, band enum.ReputationBand, minLimit, maxLimit int) int {
	base := current
	if base <= 0 {
		base = minLimit
	}

	multiplier, ok := bandMultipliers[band]
	if !ok {
		multiplier = 1
	}
	next := int(math.Round(float64(base) * multiplier))

	if next < minLimit {
		next = minLimit
	}
	if maxLimit > 0 && next > maxLimit {
		next = maxLimit
	}
	return next
}
