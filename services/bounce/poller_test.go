package bounce

import (
	"context"
	"encoding/base64"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/customeros/mailwarden/config"
	mwerrors "github.com/customeros/mailwarden/internal/errors"
	"github.com/customeros/mailwarden/internal/enum"
	"github.com/customeros/mailwarden/internal/logger"
	"github.com/customeros/mailwarden/internal/models"
	"github.com/customeros/mailwarden/internal/secrets"
)

type fakeMailbox struct {
	messages []RawMessage
	deleted  []string
	closed   bool
	countErr error
}

func (f *fakeMailbox) Count(ctx context.Context) (int, error) {
	return len(f.messages), f.countErr
}

func (f *fakeMailbox) FetchAll(ctx context.Context) ([]RawMessage, error) {
	return f.messages, nil
}

func (f *fakeMailbox) Delete(ctx context.Context, ids []string) error {
	f.deleted = append(f.deleted, ids...)
	return nil
}

func (f *fakeMailbox) Close() error {
	f.closed = true
	return nil
}

type fakeDomainRepository struct {
	domains map[string]*models.Domain
}

func (f *fakeDomainRepository) Create(ctx context.Context, domain *models.Domain) error {
	f.domains[domain.ID] = domain
	return nil
}

func (f *fakeDomainRepository) GetByID(ctx context.Context, id string) (*models.Domain, error) {
	d, ok := f.domains[id]
	if !ok {
		return nil, mwerrors.ErrDomainNotFound
	}
	return d, nil
}

func (f *fakeDomainRepository) GetByIDs(ctx context.Context, ids []string) ([]models.Domain, error) {
	var out []models.Domain
	for _, id := range ids {
		if d, ok := f.domains[id]; ok {
			out = append(out, *d)
		}
	}
	return out, nil
}

func (f *fakeDomainRepository) GetActiveDomains(ctx context.Context, tenant string) ([]models.Domain, error) {
	var out []models.Domain
	for _, d := range f.domains {
		out = append(out, *d)
	}
	return out, nil
}

func (f *fakeDomainRepository) UpdateHealth(ctx context.Context, id string, update models.DomainHealthUpdate) error {
	return nil
}

type fakeBounceRecords struct {
	mu   sync.Mutex
	seen map[string]*models.BounceRecord
}

func newFakeBounceRecords() *fakeBounceRecords {
	return &fakeBounceRecords{seen: make(map[string]*models.BounceRecord)}
}

func (f *fakeBounceRecords) Create(ctx context.Context, record *models.BounceRecord) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	key := record.DomainID + "|" + record.MessageID
	if _, ok := f.seen[key]; ok {
		return false, nil
	}
	f.seen[key] = record
	return true, nil
}

func (f *fakeBounceRecords) CountByDomainSince(ctx context.Context, domainID string, since time.Time) (map[string]int64, error) {
	return nil, nil
}

type mockSuppressor struct {
	mock.Mock
}

func (m *mockSuppressor) AddEmail(ctx context.Context, email string, suppressionType enum.SuppressionType, source, reason string, metadata map[string]any) (*models.SuppressionEntry, error) {
	args := m.Called(ctx, email, suppressionType, source, reason, metadata)
	return &models.SuppressionEntry{Email: email, Type: suppressionType}, args.Error(0)
}

func testBox(t *testing.T) *secrets.Box {
	box, err := secrets.NewBox(base64.StdEncoding.EncodeToString([]byte(strings.Repeat("s", 32))))
	require.NoError(t, err)
	return box
}

func testDomain(t *testing.T, box *secrets.Box) *models.Domain {
	password, err := box.Seal("mailbox-secret")
	require.NoError(t, err)
	return &models.Domain{
		ID:                    "dom_1",
		Tenant:                "acme",
		Domain:                "mydomain.com",
		BounceHost:            "imap.mydomain.com",
		BounceProtocol:        enum.ProtocolIMAPS,
		BounceUsername:        "bounces@mydomain.com",
		BouncePassword:        password,
		BounceDeleteProcessed: true,
	}
}

func rawMessage(id, from, subject, body string) RawMessage {
	data := "From: " + from + "\r\n" +
		"To: bounces@mydomain.com\r\n" +
		"Subject: " + subject + "\r\n" +
		"Message-ID: <" + id + "@mx.example.net>\r\n" +
		"\r\n" + body + "\r\n"
	return RawMessage{ID: id, Data: []byte(data)}
}

func newTestPoller(t *testing.T, box *secrets.Box, domains *fakeDomainRepository, records *fakeBounceRecords, suppressor Suppressor) *Poller {
	p, err := NewPoller(logger.NewNopLogger(), &config.BounceConfig{ConnectTimeout: time.Second, DefaultFolder: "INBOX"}, domains, records, suppressor, box)
	require.NoError(t, err)
	return p
}

func TestPoller_ProcessDomain(t *testing.T) {
	box := testBox(t)
	domain := testDomain(t, box)
	records := newFakeBounceRecords()
	suppressor := &mockSuppressor{}
	suppressor.On("AddEmail", mock.Anything, "fail@example.com", enum.SuppressionBounce, "bounce:mydomain.com", mock.Anything, mock.Anything).Return(nil)
	suppressor.On("AddEmail", mock.Anything, "spam@target.org", enum.SuppressionComplaint, "bounce:mydomain.com", mock.Anything, mock.Anything).Return(nil)

	mailbox := &fakeMailbox{messages: []RawMessage{
		rawMessage("1", "MAILER-DAEMON@mx.example.net", "Undelivered Mail Returned to Sender",
			"<fail@example.com>: 550 5.1.1 User unknown\r\nOriginal Recipient: fail@example.com"),
		rawMessage("2", "postmaster@target.org", "Message rejected",
			"550 rejected as spam\r\nFinal-Recipient: rfc822; spam@target.org"),
		rawMessage("3", "postmaster@target.org", "Delivery delayed",
			"Mailbox full\r\nOriginal-Recipient: rfc822;soft@target.org"),
		rawMessage("4", "news@friends.com", "Hello", "hi"),
		rawMessage("5", "MAILER-DAEMON@mx.example.net", "Undelivered Mail Returned to Sender", "User unknown"),
	}}

	var dialed MailboxSettings
	p := newTestPoller(t, box, &fakeDomainRepository{domains: map[string]*models.Domain{domain.ID: domain}}, records, suppressor).
		WithDialer(func(ctx context.Context, settings MailboxSettings) (MailboxClient, error) {
			dialed = settings
			return mailbox, nil
		})

	result, err := p.ProcessDomain(context.Background(), domain)
	require.NoError(t, err)

	assert.Equal(t, "mailbox-secret", dialed.Password)
	assert.Equal(t, 993, dialed.Port)
	assert.Equal(t, "INBOX", dialed.Folder)

	assert.Equal(t, 5, result.Messages)
	assert.Equal(t, 3, result.Bounces)
	assert.Equal(t, 3, result.Recorded)
	assert.Equal(t, 2, result.Suppressed)
	assert.Equal(t, 1, result.Skipped)
	assert.Equal(t, 1, result.Ignored)
	assert.Empty(t, result.Errors)
	assert.Equal(t, []string{"1", "2", "3"}, mailbox.deleted)
	assert.True(t, mailbox.closed)
	suppressor.AssertExpectations(t)

	rec := records.seen["dom_1|3@mx.example.net"]
	require.NotNil(t, rec)
	assert.Equal(t, enum.BounceSoft, rec.BounceType)
	assert.Equal(t, "soft@target.org", rec.ToAddress)
}

func TestPoller_ProcessDomainTwiceIsIdempotent(t *testing.T) {
	box := testBox(t)
	domain := testDomain(t, box)
	domain.BounceDeleteProcessed = false
	records := newFakeBounceRecords()
	suppressor := &mockSuppressor{}
	suppressor.On("AddEmail", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything).Return(nil)

	messages := []RawMessage{rawMessage("1", "MAILER-DAEMON@mx.example.net", "Undelivered", "User unknown\r\nOriginal Recipient: fail@example.com")}
	p := newTestPoller(t, box, &fakeDomainRepository{domains: map[string]*models.Domain{}}, records, suppressor).
		WithDialer(func(ctx context.Context, settings MailboxSettings) (MailboxClient, error) {
			return &fakeMailbox{messages: messages}, nil
		})

	first, err := p.ProcessDomain(context.Background(), domain)
	require.NoError(t, err)
	second, err := p.ProcessDomain(context.Background(), domain)
	require.NoError(t, err)

	assert.Equal(t, 1, first.Recorded)
	assert.Equal(t, 0, second.Recorded)
	assert.Equal(t, 1, second.Duplicates)
	assert.Len(t, records.seen, 1)
}

func TestPoller_ConnectionFailureIsReturned(t *testing.T) {
	box := testBox(t)
	domain := testDomain(t, box)
	p := newTestPoller(t, box, &fakeDomainRepository{domains: map[string]*models.Domain{}}, newFakeBounceRecords(), &mockSuppressor{}).
		WithDialer(func(ctx context.Context, settings MailboxSettings) (MailboxClient, error) {
			return nil, errors.New("connection refused")
		})

	_, err := p.ProcessDomain(context.Background(), domain)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "connection refused")
}

func TestPoller_MissingCredentials(t *testing.T) {
	box := testBox(t)
	domain := testDomain(t, box)
	domain.BouncePassword = ""
	p := newTestPoller(t, box, &fakeDomainRepository{domains: map[string]*models.Domain{}}, newFakeBounceRecords(), &mockSuppressor{})

	_, err := p.ProcessDomain(context.Background(), domain)
	assert.ErrorIs(t, err, mwerrors.ErrMailboxNotConfigured)
}

func TestPoller_TestConnection(t *testing.T) {
	box := testBox(t)
	domain := testDomain(t, box)
	domains := &fakeDomainRepository{domains: map[string]*models.Domain{domain.ID: domain}}

	mailbox := &fakeMailbox{messages: make([]RawMessage, 4)}
	p := newTestPoller(t, box, domains, newFakeBounceRecords(), &mockSuppressor{}).
		WithDialer(func(ctx context.Context, settings MailboxSettings) (MailboxClient, error) {
			return mailbox, nil
		})

	result, err := p.TestConnection(context.Background(), domain.ID)
	require.NoError(t, err)
	assert.True(t, result.Success)
	assert.Equal(t, 4, result.MessageCount)
	assert.True(t, mailbox.closed)

	failing := &fakeMailbox{countErr: errors.New("timeout")}
	p.WithDialer(func(ctx context.Context, settings MailboxSettings) (MailboxClient, error) {
		return failing, nil
	})
	result, err = p.TestConnection(context.Background(), domain.ID)
	require.NoError(t, err)
	assert.False(t, result.Success)
	assert.Equal(t, "timeout", result.Error)
	assert.True(t, failing.closed)

	_, err = p.TestConnection(context.Background(), "missing")
	assert.ErrorIs(t, err, mwerrors.ErrDomainNotFound)
}

func TestPoller_DomainRulesOverrideDefaults(t *testing.T) {
	box := testBox(t)
	domain := testDomain(t, box)
	domain.BounceDeleteProcessed = false
	domain.BounceRules = models.BounceRules{{Type: enum.BounceSoft, Patterns: []string{"user unknown"}}}
	records := newFakeBounceRecords()

	p := newTestPoller(t, box, &fakeDomainRepository{domains: map[string]*models.Domain{}}, records, &mockSuppressor{}).
		WithDialer(func(ctx context.Context, settings MailboxSettings) (MailboxClient, error) {
			return &fakeMailbox{messages: []RawMessage{
				rawMessage("1", "MAILER-DAEMON@mx.example.net", "Undelivered", "User unknown\r\nOriginal Recipient: fail@example.com"),
			}}, nil
		})

	result, err := p.ProcessDomain(context.Background(), domain)
	require.NoError(t, err)
	assert.Equal(t, 0, result.Suppressed)
	assert.Equal(t, enum.BounceSoft, records.seen["dom_1|1@mx.example.net"].BounceType)
}
