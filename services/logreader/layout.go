package logreader

import (
	"strings"
	"time"

	"github.com/pkg/errors"

	"github.com/customeros/mailwarden/internal/enum"
	"github.com/customeros/mailwarden/internal/utils"
)

var timestampLayouts = []string{
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02 15:04:05-0700",
}

// layout describes one CSV log format.
type layout struct {
	name      enum.LogLayout
	minFields int
	parse     func(fields []string) (LogEvent, string, error)
}

var errSkip = errors.New("skip")

var layouts = map[enum.LogLayout]layout{
	// type,timestamp,orig,rcpt[,vmta,jobId,dsnStatus,dsnDiag]
	enum.LayoutAccounting: {
		name:      enum.LayoutAccounting,
		minFields: 4,
		parse: func(fields []string) (LogEvent, string, error) {
			eventType, ok := enum.EventTypeFromCode(strings.ToLower(strings.TrimSpace(fields[0])))
			if !ok {
				return LogEvent{}, "unknown_type", errSkip
			}
			ts, err := parseTimestamp(fields[1])
			if err != nil {
				return LogEvent{}, "bad_timestamp", err
			}
			ev := newEvent(eventType, ts, fields[2], fields[3])
			ev.DSNStatus = field(fields, 6)
			ev.Diagnostic = field(fields, 7)
			return ev, "", nil
		},
	},
	// timestamp,orig,rcpt[,feedbackType,reportingMTA]
	enum.LayoutFeedback: {
		name:      enum.LayoutFeedback,
		minFields: 3,
		parse: func(fields []string) (LogEvent, string, error) {
			ts, err := parseTimestamp(fields[0])
			if err != nil {
				return LogEvent{}, "bad_timestamp", err
			}
			ev := newEvent(enum.EventComplaint, ts, fields[1], fields[2])
			ev.Diagnostic = field(fields, 3)
			return ev, "", nil
		},
	},
	// timestamp,severity,orig,message
	enum.LayoutDiagnostic: {
		name:      enum.LayoutDiagnostic,
		minFields: 4,
		parse: func(fields []string) (LogEvent, string, error) {
			severity := strings.ToLower(strings.TrimSpace(fields[1]))
			if severity != "warning" && severity != "error" {
				return LogEvent{}, "severity", errSkip
			}
			ts, err := parseTimestamp(fields[0])
			if err != nil {
				return LogEvent{}, "bad_timestamp", err
			}
			ev := newEvent(enum.EventDiagnostic, ts, fields[2], "")
			ev.Severity = severity
			ev.Diagnostic = strings.TrimSpace(strings.Join(fields[3:], ","))
			return ev, "", nil
		},
	},
}

func newEvent(eventType enum.EventType, ts time.Time, origin, recipient string) LogEvent {
	origin = strings.TrimSpace(origin)
	return LogEvent{
		Type:         eventType,
		Timestamp:    ts,
		Origin:       strings.ToLower(origin),
		Recipient:    strings.ToLower(strings.TrimSpace(recipient)),
		OriginDomain: originDomain(origin),
	}
}

// originDomain is everything after the last '@', lower-cased.
func originDomain(origin string) string {
	idx := strings.LastIndex(origin, "@")
	if idx < 0 {
		return ""
	}
	return strings.ToLower(strings.TrimSpace(origin[idx+1:]))
}

func parseTimestamp(value string) (time.Time, error) {
	value = strings.TrimSpace(value)
	for _, l := range timestampLayouts {
		if ts, err := time.ParseInLocation(l, value, time.UTC); err == nil {
			return ts.UTC(), nil
		}
	}
	return time.Time{}, errors.Errorf("unparseable timestamp %q", value)
}

func field(fields []string, idx int) string {
	if idx >= len(fields) {
		return ""
	}
	return strings.TrimSpace(fields[idx])
}

// normalizeDomain accepts either a bare domain or an address filter value.
func normalizeDomain(domain string) string {
	if strings.Contains(domain, "@") {
		return utils.ExtractDomainFromEmail(domain)
	}
	return strings.ToLower(strings.TrimSpace(domain))
}
