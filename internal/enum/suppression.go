package enum

type SuppressionType string

const (
	SuppressionBounce      SuppressionType = "bounce"
	SuppressionComplaint   SuppressionType = "complaint"
	SuppressionUnsubscribe SuppressionType = "unsubscribe"
	SuppressionManual      SuppressionType = "manual"
)

func (t SuppressionType) String() string {
	return string(t)
}

func (t SuppressionType) IsValid() bool {
	switch t {
	case SuppressionBounce, SuppressionComplaint, SuppressionUnsubscribe, SuppressionManual:
		return true
	}
	return false
}

// SuppressionTypeForBounce returns the suppression type written for a suppressing bounce.
func SuppressionTypeForBounce(t BounceType) SuppressionType {
	if t == BounceSpam {
		return SuppressionComplaint
	}
	return SuppressionBounce
}
