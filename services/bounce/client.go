package bounce

import (
	"context"
	"time"

	"github.com/pkg/errors"

	mwerrors "github.com/customeros/mailwarden/internal/errors"
	"github.com/customeros/mailwarden/internal/enum"
)

type RawMessage struct {
	ID   string
	Data []byte
}

// MailboxClient is one open, authenticated mailbox connection with its folder selected.
type MailboxClient interface {
	Count(ctx context.Context) (int, error)
	FetchAll(ctx context.Context) ([]RawMessage, error)
	// Delete removes processed messages. IMAP flags them \Deleted and expunges
	// at once; POP3 marks them with DELE and the server drops them on Close (QUIT).
	Delete(ctx context.Context, ids []string) error
	Close() error
}

type MailboxSettings struct {
	Host     string
	Port     int
	Protocol enum.MailboxProtocol
	Username string
	Password string
	Folder   string
	Timeout  time.Duration
}

type DialFunc func(ctx context.Context, settings MailboxSettings) (MailboxClient, error)

// Dial picks the protocol implementation from the configured scheme.
func Dial(ctx context.Context, settings MailboxSettings) (MailboxClient, error) {
	if !settings.Protocol.IsValid() {
		return nil, errors.Wrapf(mwerrors.ErrMailboxNotConfigured, "unsupported protocol %q", settings.Protocol)
	}
	if settings.Protocol.IsPOP3() {
		return dialPOP3(ctx, settings)
	}
	return dialIMAP(ctx, settings)
}
