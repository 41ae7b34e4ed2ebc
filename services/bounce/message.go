package bounce

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"strings"
	"time"

	"github.com/jhillyerd/enmime"
	"github.com/pkg/errors"

	"github.com/customeros/mailwarden/internal/utils"
)

// Message is one parsed mailbox message.
type Message struct {
	// ID addresses the message in its mailbox (IMAP UID or POP3 message number).
	ID        string
	MessageID string
	Subject   string
	From      string
	To        []string
	Date      time.Time
	Body      string
	Raw       []byte
}

// Report parts carry the machine readable recipient of a DSN.
var reportContentTypes = map[string]bool{
	"message/delivery-status": true,
	"message/feedback-report": true,
	"text/rfc822-headers":     true,
}

func ParseMessage(id string, raw []byte) (*Message, error) {
	env, err := enmime.ReadEnvelope(bytes.NewReader(raw))
	if err != nil {
		return nil, errors.Wrap(err, "parse message")
	}

	msg := &Message{
		ID:        id,
		MessageID: utils.NormalizeMessageID(env.GetHeader("Message-ID")),
		Subject:   env.GetHeader("Subject"),
		From:      env.GetHeader("From"),
		Raw:       raw,
	}
	if msg.MessageID == "" {
		sum := sha256.Sum256(raw)
		msg.MessageID = "sha256:" + hex.EncodeToString(sum[:])
	}

	if addresses, err := env.AddressList("To"); err == nil {
		for _, addr := range addresses {
			msg.To = append(msg.To, addr.Address)
		}
	}
	if date, err := env.Date(); err == nil {
		msg.Date = date.UTC()
	}

	// enmime down-converts HTML-only bodies into Text
	var body strings.Builder
	body.WriteString(env.Text)
	for _, parts := range [][]*enmime.Part{env.Attachments, env.Inlines, env.OtherParts} {
		for _, part := range parts {
			if reportContentTypes[strings.ToLower(part.ContentType)] {
				body.WriteString("\n")
				body.Write(part.Content)
			}
		}
	}
	msg.Body = body.String()

	return msg, nil
}
