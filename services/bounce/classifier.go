package bounce

import (
	"regexp"
	"strings"

	"github.com/customeros/mailwarden/internal/enum"
	"github.com/customeros/mailwarden/internal/models"
)

const addressPattern = `([A-Za-z0-9._%+\-']+@[A-Za-z0-9.\-]+\.[A-Za-z]{2,})`

// Tried in order; the first match wins.
var recipientPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)failed recipient:\s*<?` + addressPattern),
	regexp.MustCompile(`(?i)original[- ]recipient:\s*(?:rfc822;\s*)?<?` + addressPattern),
	regexp.MustCompile(`(?i)final[- ]recipient:\s*(?:rfc822;\s*)?<?` + addressPattern),
	regexp.MustCompile(`(?i)\bto:\s*(?:[^<\r\n]*<)?` + addressPattern),
	regexp.MustCompile(`(?i)recipient:\s*<?` + addressPattern),
}

var (
	validAddress   = regexp.MustCompile(`^` + addressPattern + `$`)
	diagnosticLine = regexp.MustCompile(`(?im)^diagnostic-code:\s*(.+)$`)
)

var bounceSubjects = []string{
	"mail delivery failure",
	"mail delivery failed",
	"undelivered mail returned to sender",
	"delivery status notification",
	"undeliverable",
	"undelivered",
	"delivery failure",
	"returned mail",
	"failure notice",
}

var bounceSenders = []string{
	"mailer-daemon",
	"postmaster",
	"bounce",
}

// Classify returns the type of the first rule, in configuration order, with a pattern
// contained in subject + " " + body. Matching ignores case.
func Classify(subject, body string, rules models.BounceRules) (enum.BounceType, string, bool) {
	haystack := strings.ToLower(subject + " " + body)
	for _, rule := range rules {
		for _, pattern := range rule.Patterns {
			if pattern == "" {
				continue
			}
			if strings.Contains(haystack, strings.ToLower(pattern)) {
				return rule.Type, pattern, true
			}
		}
	}
	return "", "", false
}

// LooksLikeBounce reports whether an unmatched message still has the shape of a delivery report.
func LooksLikeBounce(subject, from string) bool {
	subject = strings.ToLower(subject)
	for _, s := range bounceSubjects {
		if strings.Contains(subject, s) {
			return true
		}
	}
	from = strings.ToLower(from)
	for _, s := range bounceSenders {
		if strings.Contains(from, s) {
			return true
		}
	}
	return false
}

// ExtractRecipient prefers the first valid address of the To header, then scans the body.
// It returns "" when no recipient can be identified.
func ExtractRecipient(to []string, body string) string {
	for _, addr := range to {
		addr = strings.ToLower(strings.Trim(strings.TrimSpace(addr), "<>"))
		if validAddress.MatchString(addr) {
			return addr
		}
	}
	for _, re := range recipientPatterns {
		if m := re.FindStringSubmatch(body); m != nil {
			return strings.ToLower(m[1])
		}
	}
	return ""
}

// Reason is the Diagnostic-Code line when present, otherwise the subject.
func Reason(subject, body string) string {
	if m := diagnosticLine.FindStringSubmatch(body); m != nil {
		return strings.TrimSpace(m[1])
	}
	return strings.TrimSpace(subject)
}
