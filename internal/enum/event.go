package enum

type EventType string

const (
	EventDelivered  EventType = "delivered"
	EventBounced    EventType = "bounced"
	EventComplaint  EventType = "complaint"
	EventRelayed    EventType = "relayed"
	EventDiagnostic EventType = "diagnostic"
)

func (t EventType) String() string {
	return string(t)
}

// EventTypeFromCode maps an accounting record type code to an event type.
func EventTypeFromCode(code string) (EventType, bool) {
	switch code {
	case "d":
		return EventDelivered, true
	case "b":
		return EventBounced, true
	case "f":
		return EventComplaint, true
	case "r":
		return EventRelayed, true
	}
	return "", false
}

type LogLayout string

const (
	LayoutAccounting LogLayout = "accounting"
	LayoutFeedback   LogLayout = "feedback"
	LayoutDiagnostic LogLayout = "diagnostic"
)

func (l LogLayout) String() string {
	return string(l)
}
