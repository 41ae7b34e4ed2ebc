package bounce

import (
	"context"
	"strconv"

	"github.com/knadh/go-pop3"
	"github.com/pkg/errors"
)

type pop3Client struct {
	conn *pop3.Conn
}

func dialPOP3(ctx context.Context, s MailboxSettings) (MailboxClient, error) {
	p := pop3.New(pop3.Opt{
		Host:        s.Host,
		Port:        s.Port,
		TLSEnabled:  s.Protocol.IsTLS(),
		DialTimeout: s.Timeout,
	})

	conn, err := p.NewConn()
	if err != nil {
		return nil, errors.Wrapf(err, "failed to connect to %s:%d", s.Host, s.Port)
	}

	if err := conn.Auth(s.Username, s.Password); err != nil {
		_ = conn.Quit()
		return nil, errors.Wrapf(err, "failed to login as %s", s.Username)
	}

	return &pop3Client{conn: conn}, nil
}

func (p *pop3Client) Count(ctx context.Context) (int, error) {
	count, _, err := p.conn.Stat()
	if err != nil {
		return 0, errors.Wrap(err, "stat mailbox")
	}
	return count, nil
}

func (p *pop3Client) FetchAll(ctx context.Context) ([]RawMessage, error) {
	list, err := p.conn.List(0)
	if err != nil {
		return nil, errors.Wrap(err, "list messages")
	}

	result := make([]RawMessage, 0, len(list))
	for _, m := range list {
		if err := ctx.Err(); err != nil {
			return result, err
		}
		buf, err := p.conn.RetrRaw(m.ID)
		if err != nil {
			return nil, errors.Wrapf(err, "retrieve message %d", m.ID)
		}
		result = append(result, RawMessage{
			ID:   strconv.Itoa(m.ID),
			Data: buf.Bytes(),
		})
	}
	return result, nil
}

func (p *pop3Client) Delete(ctx context.Context, ids []string) error {
	for _, id := range ids {
		n, err := strconv.Atoi(id)
		if err != nil {
			return errors.Wrapf(err, "invalid message number %s", id)
		}
		if err := p.conn.Dele(n); err != nil {
			return errors.Wrapf(err, "delete message %d", n)
		}
	}
	return nil
}

// Close sends QUIT, which also commits pending deletions.
func (p *pop3Client) Close() error {
	return p.conn.Quit()
}
