package logreader

import (
	"iter"

	"github.com/customeros/mailwarden/internal/enum"
	"github.com/customeros/mailwarden/services/reputation"
)

// Counters aggregate events of one origin, one domain or a whole window.
// Sent counts delivered, bounced and relayed events.
type Counters struct {
	Sent             int `json:"sent"`
	Delivered        int `json:"delivered"`
	Bounced          int `json:"bounced"`
	Complaints       int `json:"complaints"`
	Relayed          int `json:"relayed"`
	FeedbackLoops    int `json:"feedbackLoops"`
	DiagnosticIssues int `json:"diagnosticIssues"`
}

func (c *Counters) Add(ev LogEvent) {
	switch ev.Type {
	case enum.EventDelivered:
		c.Delivered++
		c.Sent++
	case enum.EventBounced:
		c.Bounced++
		c.Sent++
	case enum.EventRelayed:
		c.Relayed++
		c.Sent++
	case enum.EventComplaint:
		c.Complaints++
		if ev.Source == enum.LayoutFeedback {
			c.FeedbackLoops++
		}
	case enum.EventDiagnostic:
		c.DiagnosticIssues++
	}
}

func (c *Counters) Merge(other Counters) {
	c.Sent += other.Sent
	c.Delivered += other.Delivered
	c.Bounced += other.Bounced
	c.Complaints += other.Complaints
	c.Relayed += other.Relayed
	c.FeedbackLoops += other.FeedbackLoops
	c.DiagnosticIssues += other.DiagnosticIssues
}

func (c Counters) Empty() bool {
	return c == Counters{}
}

func (c Counters) Metrics() reputation.Metrics {
	return reputation.NewMetrics(c.Sent, c.Delivered, c.Bounced, c.Complaints)
}

func (c Counters) HealthInput() reputation.HealthInput {
	return reputation.HealthInput{
		Metrics:          c.Metrics(),
		FeedbackLoops:    c.FeedbackLoops,
		DiagnosticIssues: c.DiagnosticIssues,
	}
}

type Analytics struct {
	Total    Counters             `json:"total"`
	ByOrigin map[string]*Counters `json:"byOrigin"`
	ByDomain map[string]*Counters `json:"byDomain"`
}

func NewAnalytics() *Analytics {
	return &Analytics{
		ByOrigin: make(map[string]*Counters),
		ByDomain: make(map[string]*Counters),
	}
}

// Aggregate consumes the sequence and tags every event to its origin address and domain.
func Aggregate(seq iter.Seq[LogEvent]) *Analytics {
	return NewAnalytics().AddAll(seq)
}

func (a *Analytics) AddAll(seq iter.Seq[LogEvent]) *Analytics {
	if seq == nil {
		return a
	}
	for ev := range seq {
		a.Add(ev)
	}
	return a
}

func (a *Analytics) Add(ev LogEvent) {
	a.Total.Add(ev)
	if ev.Origin != "" {
		counterFor(a.ByOrigin, ev.Origin).Add(ev)
	}
	if ev.OriginDomain != "" {
		counterFor(a.ByDomain, ev.OriginDomain).Add(ev)
	}
}

func (a *Analytics) Merge(other *Analytics) {
	if other == nil {
		return
	}
	a.Total.Merge(other.Total)
	for origin, c := range other.ByOrigin {
		counterFor(a.ByOrigin, origin).Merge(*c)
	}
	for domain, c := range other.ByDomain {
		counterFor(a.ByDomain, domain).Merge(*c)
	}
}

// Origin returns the counters of one sending address.
func (a *Analytics) Origin(email string) (Counters, bool) {
	c, ok := a.ByOrigin[email]
	if !ok {
		return Counters{}, false
	}
	return *c, true
}

func counterFor(m map[string]*Counters, key string) *Counters {
	c, ok := m[key]
	if !ok {
		c = &Counters{}
		m[key] = c
	}
	return c
}
