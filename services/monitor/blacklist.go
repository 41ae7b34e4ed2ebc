package monitor

import (
	"context"

	"github.com/customeros/mailwatcher/blscan"
	"github.com/customeros/mailwatcher/domainage"
)

// BlacklistReport counts the lists a domain is currently listed on.
type BlacklistReport struct {
	Major    int `json:"major"`
	Minor    int `json:"minor"`
	SpamTrap int `json:"spamTrap"`

	// registration age from whois, informational; nil when the lookup fails
	DomainAgeDays *int `json:"domainAgeDays,omitempty"`
}

func (r BlacklistReport) Listed() bool {
	return r.Major+r.Minor+r.SpamTrap > 0
}

type BlacklistProbe interface {
	Probe(ctx context.Context, domain string) (BlacklistReport, error)
}

type dnsblProbe struct{}

// NewDNSBLProbe scans the public DNS blacklists.
func NewDNSBLProbe() BlacklistProbe {
	return dnsblProbe{}
}

// Probe runs the scan in the background so a stalled resolver cannot outlive ctx.
func (dnsblProbe) Probe(ctx context.Context, domain string) (BlacklistReport, error) {
	done := make(chan BlacklistReport, 1)
	go func() {
		lists := blscan.ScanBlacklists(domain, "domain")
		report := BlacklistReport{
			Major:    lists.MajorLists,
			Minor:    lists.MinorLists,
			SpamTrap: lists.SpamTrapLists,
		}
		if dates, err := domainage.GetDomainDates(domain); err == nil && dates.Success {
			age := int(dates.CreationAge)
			report.DomainAgeDays = &age
		}
		done <- report
	}()

	select {
	case report := <-done:
		return report, nil
	case <-ctx.Done():
		return BlacklistReport{}, ctx.Err()
	}
}
