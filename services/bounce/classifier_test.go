package bounce

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/customeros/mailwarden/internal/enum"
	"github.com/customeros/mailwarden/internal/models"
)

func TestClassify_FirstRuleInConfigurationOrderWins(t *testing.T) {
	rules := models.BounceRules{
		{Type: enum.BounceSoft, Patterns: []string{"quota"}},
		{Type: enum.BounceHard, Patterns: []string{"unknown"}},
	}

	// "unknown" appears earlier in the text, but the soft rule is configured first
	bounceType, pattern, ok := Classify("User unknown", "mailbox over quota", rules)
	require.True(t, ok)
	assert.Equal(t, enum.BounceSoft, bounceType)
	assert.Equal(t, "quota", pattern)
}

func TestClassify_CaseInsensitive(t *testing.T) {
	bounceType, _, ok := Classify("Delivery failure", "550 USER UNKNOWN", DefaultRules)
	require.True(t, ok)
	assert.Equal(t, enum.BounceHard, bounceType)

	bounceType, _, ok = Classify("", "Message Rejected As SPAM", DefaultRules)
	require.True(t, ok)
	assert.Equal(t, enum.BounceSpam, bounceType)
}

func TestClassify_NoMatch(t *testing.T) {
	_, _, ok := Classify("Weekly newsletter", "hello there", DefaultRules)
	assert.False(t, ok)

	_, _, ok = Classify("anything", "anything", nil)
	assert.False(t, ok)
}

func TestExtractRecipient_OriginalRecipientWithoutToHeader(t *testing.T) {
	body := "The message could not be delivered.\nOriginal Recipient: fail@example.com\n"
	assert.Equal(t, "fail@example.com", ExtractRecipient(nil, body))
}

func TestExtractRecipient_PatternOrder(t *testing.T) {
	body := "Final-Recipient: rfc822; final@example.com\n" +
		"Original-Recipient: rfc822;original@example.com\n" +
		"Failed recipient: failed@example.com\n"
	assert.Equal(t, "failed@example.com", ExtractRecipient(nil, body))

	body = "Final-Recipient: rfc822; final@example.com\nOriginal-Recipient: rfc822;Original@Example.com\n"
	assert.Equal(t, "original@example.com", ExtractRecipient(nil, body))

	body = "To: John Doe <john@example.com>\n"
	assert.Equal(t, "john@example.com", ExtractRecipient(nil, body))

	body = "Recipient: <someone@example.org>\n"
	assert.Equal(t, "someone@example.org", ExtractRecipient(nil, body))
}

func TestExtractRecipient_ToHeaderFirst(t *testing.T) {
	body := "Original Recipient: body@example.com"
	assert.Equal(t, "header@example.com", ExtractRecipient([]string{"Header@Example.com"}, body))
	assert.Equal(t, "body@example.com", ExtractRecipient([]string{"not an address"}, body))
}

func TestExtractRecipient_None(t *testing.T) {
	assert.Equal(t, "", ExtractRecipient(nil, "550 user unknown"))
}

func TestLooksLikeBounce(t *testing.T) {
	assert.True(t, LooksLikeBounce("Undelivered Mail Returned to Sender", "someone@x.com"))
	assert.True(t, LooksLikeBounce("Re: hi", "MAILER-DAEMON@mx.example.net"))
	assert.False(t, LooksLikeBounce("Hello", "friend@example.com"))
}

func TestReason(t *testing.T) {
	body := "Reporting-MTA: dns; mx.example.net\nDiagnostic-Code: smtp; 550 5.1.1 User unknown\n"
	assert.Equal(t, "smtp; 550 5.1.1 User unknown", Reason("Undelivered", body))
	assert.Equal(t, "Undelivered", Reason(" Undelivered ", "no diagnostics"))
}

func TestLoadRules(t *testing.T) {
	path := filepath.Join(t.TempDir(), "rules.yaml")
	content := "rules:\n" +
		"  - type: spam\n" +
		"    patterns: [\"spamhaus\"]\n" +
		"  - type: hard\n" +
		"    patterns: [\"no such user\", \"unknown user\"]\n"
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

	rules, err := LoadRules(path)
	require.NoError(t, err)
	require.Len(t, rules, 2)
	assert.Equal(t, enum.BounceSpam, rules[0].Type)
	assert.Equal(t, []string{"no such user", "unknown user"}, rules[1].Patterns)
}

func TestLoadRules_Invalid(t *testing.T) {
	dir := t.TempDir()

	badType := filepath.Join(dir, "bad.yaml")
	require.NoError(t, os.WriteFile(badType, []byte("rules:\n  - type: bogus\n    patterns: [x]\n"), 0o600))
	_, err := LoadRules(badType)
	assert.Error(t, err)

	empty := filepath.Join(dir, "empty.yaml")
	require.NoError(t, os.WriteFile(empty, []byte("rules: []\n"), 0o600))
	_, err = LoadRules(empty)
	assert.Error(t, err)

	_, err = LoadRules(filepath.Join(dir, "missing.yaml"))
	assert.Error(t, err)
}
