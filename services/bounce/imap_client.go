package bounce

import (
	"context"
	"crypto/tls"
	"fmt"
	"io"
	"net"
	"strconv"
	"time"

	"github.com/emersion/go-imap"
	"github.com/emersion/go-imap/client"
	"github.com/pkg/errors"
)

type imapClient struct {
	c       *client.Client
	mailbox *imap.MailboxStatus
}

func dialIMAP(ctx context.Context, s MailboxSettings) (MailboxClient, error) {
	serverAddr := fmt.Sprintf("%s:%d", s.Host, s.Port)

	dialer := &net.Dialer{
		Timeout:   s.Timeout,
		KeepAlive: 30 * time.Second,
	}

	var c *client.Client
	var err error
	if s.Protocol.IsTLS() {
		c, err = client.DialWithDialerTLS(dialer, serverAddr, &tls.Config{ServerName: s.Host})
	} else {
		c, err = client.DialWithDialer(dialer, serverAddr)
	}
	if err != nil {
		return nil, errors.Wrapf(err, "failed to connect to %s", serverAddr)
	}

	c.Timeout = s.Timeout

	if err := c.Login(s.Username, s.Password); err != nil {
		_ = c.Logout()
		return nil, errors.Wrapf(err, "failed to login as %s", s.Username)
	}

	mbox, err := c.Select(s.Folder, false)
	if err != nil {
		_ = c.Logout()
		return nil, errors.Wrapf(err, "failed to select folder %s", s.Folder)
	}

	return &imapClient{c: c, mailbox: mbox}, nil
}

func (i *imapClient) Count(ctx context.Context) (int, error) {
	return int(i.mailbox.Messages), nil
}

func (i *imapClient) FetchAll(ctx context.Context) ([]RawMessage, error) {
	if i.mailbox.Messages == 0 {
		return nil, nil
	}

	seqset := new(imap.SeqSet)
	seqset.AddRange(1, i.mailbox.Messages)

	section := &imap.BodySectionName{Peek: true}
	items := []imap.FetchItem{imap.FetchUid, section.FetchItem()}

	messages := make(chan *imap.Message, 10)
	done := make(chan error, 1)
	go func() {
		done <- i.c.Fetch(seqset, items, messages)
	}()

	var result []RawMessage
	for msg := range messages {
		body := msg.GetBody(section)
		if body == nil {
			continue
		}
		data, err := io.ReadAll(body)
		if err != nil {
			continue
		}
		result = append(result, RawMessage{
			ID:   strconv.FormatUint(uint64(msg.Uid), 10),
			Data: data,
		})
	}

	if err := <-done; err != nil {
		return nil, errors.Wrap(err, "fetch messages")
	}
	return result, ctx.Err()
}

func (i *imapClient) Delete(ctx context.Context, ids []string) error {
	if len(ids) == 0 {
		return nil
	}

	seqset := new(imap.SeqSet)
	for _, id := range ids {
		uid, err := strconv.ParseUint(id, 10, 32)
		if err != nil {
			return errors.Wrapf(err, "invalid uid %s", id)
		}
		seqset.AddNum(uint32(uid))
	}

	item := imap.FormatFlagsOp(imap.AddFlags, true)
	flags := []interface{}{imap.DeletedFlag}
	if err := i.c.UidStore(seqset, item, flags, nil); err != nil {
		return errors.Wrap(err, "flag messages deleted")
	}
	return i.c.Expunge(nil)
}

func (i *imapClient) Close() error {
	return i.c.Logout()
}
