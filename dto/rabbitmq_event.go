package dto

type Event struct {
	Event    EventDetails  `json:"event"`
	Metadata EventMetadata `json:"metadata"`
}

type EventDetails struct {
	Id         string      `json:"id"`
	Tenant     string      `json:"tenant"`
	EntityId   string      `json:"entityId"`
	EntityType string      `json:"entityType"`
	EventType  string      `json:"eventType"`
	Data       interface{} `json:"data"`
}

type EventMetadata struct {
	UberTraceId string `json:"uber-trace-id"`
	AppSource   string `json:"appSource"`
	Timestamp   string `json:"timestamp"`
}

type DomainNeedsAttention struct {
	DomainID    string   `json:"domainId"`
	Domain      string   `json:"domain"`
	HealthScore float64  `json:"healthScore"`
	Reasons     []string `json:"reasons"`
}

type EmailSuppressed struct {
	Email  string `json:"email"`
	Type   string `json:"type"`
	Source string `json:"source"`
	Reason string `json:"reason"`
}

// SuppressEmailRequest is consumed from the suppress-request queue, typically
// unsubscribe clicks reported by campaign dispatch.
type SuppressEmailRequest struct {
	Email    string         `json:"email"`
	Type     string         `json:"type"`
	Source   string         `json:"source"`
	Reason   string         `json:"reason"`
	Metadata map[string]any `json:"metadata,omitempty"`
}
