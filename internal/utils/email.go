package utils

import (
	"strings"
)

// NormalizeEmail lowercases the address and strips whitespace and angle brackets.
func NormalizeEmail(email string) string {
	email = strings.TrimSpace(email)
	if strings.Contains(email, "<") && strings.Contains(email, ">") {
		startIdx := strings.LastIndex(email, "<") + 1
		endIdx := strings.LastIndex(email, ">")
		if startIdx > 0 && endIdx > startIdx {
			email = email[startIdx:endIdx]
		}
	}
	return strings.ToLower(strings.TrimSpace(email))
}

func ExtractDomainFromEmail(email string) string {
	if email == "" {
		return ""
	}

	parts := strings.Split(NormalizeEmail(email), "@")
	if len(parts) != 2 {
		return ""
	}

	return strings.TrimSpace(parts[1])
}

func NormalizeMessageID(messageID string) string {
	messageID = strings.TrimSpace(messageID)
	messageID = strings.TrimPrefix(messageID, "<")
	messageID = strings.TrimSuffix(messageID, ">")
	return messageID
}
