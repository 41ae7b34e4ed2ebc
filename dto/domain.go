package dto

type DomainStatus struct {
	DomainID      string  `json:"domainId"`
	Domain        string  `json:"domain"`
	Limit         int64   `json:"limit"`
	TotalSent     int     `json:"totalSent"`
	DeliveryRate  float64 `json:"deliveryRate"`
	BounceRate    float64 `json:"bounceRate"`
	ComplaintRate float64 `json:"complaintRate"`
	HealthStatus  string  `json:"healthStatus"`
}

type ConnectionTestResult struct {
	Success      bool   `json:"success"`
	MessageCount int    `json:"messageCount,omitempty"`
	Error        string `json:"error,omitempty"`
}
