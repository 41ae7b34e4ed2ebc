// Package bounce polls per-domain bounce mailboxes, classifies delivery reports and feeds the suppression list.
package bounce

import (
	"context"
	"strings"

	"github.com/opentracing/opentracing-go"
	tracingLog "github.com/opentracing/opentracing-go/log"
	"github.com/pkg/errors"

	"github.com/customeros/mailwarden/config"
	"github.com/customeros/mailwarden/dto"
	"github.com/customeros/mailwarden/interfaces"
	mwerrors "github.com/customeros/mailwarden/internal/errors"
	"github.com/customeros/mailwarden/internal/enum"
	"github.com/customeros/mailwarden/internal/logger"
	"github.com/customeros/mailwarden/internal/metrics"
	"github.com/customeros/mailwarden/internal/models"
	"github.com/customeros/mailwarden/internal/secrets"
	"github.com/customeros/mailwarden/internal/tracing"
	"github.com/customeros/mailwarden/internal/utils"
)

// Suppressor is the part of the suppression list the poller writes to.
type Suppressor interface {
	AddEmail(ctx context.Context, email string, suppressionType enum.SuppressionType, source, reason string, metadata map[string]any) (*models.SuppressionEntry, error)
}

type PollResult struct {
	Messages   int      `json:"messages"`
	Bounces    int      `json:"bounces"`
	Recorded   int      `json:"recorded"`
	Duplicates int      `json:"duplicates"`
	Suppressed int      `json:"suppressed"`
	Skipped    int      `json:"skipped"`
	Ignored    int      `json:"ignored"`
	Deleted    int      `json:"deleted"`
	Errors     []string `json:"errors,omitempty"`
}

type Poller struct {
	log          logger.Logger
	cfg          *config.BounceConfig
	domains      interfaces.DomainRepository
	records      interfaces.BounceRecordRepository
	suppression  Suppressor
	box          *secrets.Box
	defaultRules models.BounceRules
	dial         DialFunc
}

func NewPoller(log logger.Logger, cfg *config.BounceConfig, domains interfaces.DomainRepository, records interfaces.BounceRecordRepository, suppression Suppressor, box *secrets.Box) (*Poller, error) {
	rules := DefaultRules
	if cfg.RulesFile != "" {
		loaded, err := LoadRules(cfg.RulesFile)
		if err != nil {
			return nil, errors.Wrap(mwerrors.ErrInvalidConfiguration, err.Error())
		}
		rules = loaded
	}

	return &Poller{
		log:          log,
		cfg:          cfg,
		domains:      domains,
		records:      records,
		suppression:  suppression,
		box:          box,
		defaultRules: rules,
		dial:         Dial,
	}, nil
}

// WithDialer replaces the protocol dialer.
func (p *Poller) WithDialer(dial DialFunc) *Poller {
	p.dial = dial
	return p
}

// settings validates the mailbox configuration and decrypts the password.
func (p *Poller) settings(domain *models.Domain) (MailboxSettings, error) {
	if domain.BounceHost == "" || domain.BounceUsername == "" || domain.BouncePassword == "" {
		return MailboxSettings{}, errors.Wrapf(mwerrors.ErrMailboxNotConfigured, "domain %s", domain.Domain)
	}

	protocol := enum.MailboxProtocol(strings.ToLower(string(domain.BounceProtocol)))
	if protocol == "" {
		protocol = enum.ProtocolIMAPS
	}
	if !protocol.IsValid() {
		return MailboxSettings{}, errors.Wrapf(mwerrors.ErrMailboxNotConfigured, "domain %s: unsupported protocol %q", domain.Domain, domain.BounceProtocol)
	}

	if p.box == nil {
		return MailboxSettings{}, errors.Wrap(mwerrors.ErrInvalidConfiguration, "secret key not configured")
	}
	password, err := p.box.Open(domain.BouncePassword)
	if err != nil {
		return MailboxSettings{}, errors.Wrapf(mwerrors.ErrMailboxNotConfigured, "domain %s: %v", domain.Domain, err)
	}

	port := domain.BouncePort
	if port == 0 {
		port = protocol.DefaultPort()
	}
	folder := domain.BounceFolder
	if folder == "" {
		folder = p.cfg.DefaultFolder
	}

	return MailboxSettings{
		Host:     domain.BounceHost,
		Port:     port,
		Protocol: protocol,
		Username: domain.BounceUsername,
		Password: password,
		Folder:   folder,
		Timeout:  p.cfg.ConnectTimeout,
	}, nil
}

func (p *Poller) connect(ctx context.Context, domain *models.Domain) (MailboxClient, error) {
	settings, err := p.settings(domain)
	if err != nil {
		return nil, err
	}
	client, err := p.dial(ctx, settings)
	if err != nil {
		return nil, errors.Wrapf(err, "bounce mailbox %s", domain.Domain)
	}
	return client, nil
}

// ProcessDomain fetches every message of the domain's bounce mailbox, records bounces and
// suppresses hard and spam recipients. Connection failures are returned to the caller.
func (p *Poller) ProcessDomain(ctx context.Context, domain *models.Domain) (*PollResult, error) {
	span, ctx := opentracing.StartSpanFromContext(ctx, "BouncePoller.ProcessDomain")
	defer span.Finish()
	tracing.SetDefaultServiceSpanTags(ctx, span)
	tracing.TagTenant(span, domain.Tenant)
	tracing.TagEntity(span, domain.ID)

	client, err := p.connect(ctx, domain)
	if err != nil {
		tracing.TraceErr(span, err)
		return nil, err
	}
	defer func() {
		if err := client.Close(); err != nil {
			p.log.Warnf("Error closing bounce mailbox for %s: %v", domain.Domain, err)
		}
	}()

	raws, err := client.FetchAll(ctx)
	if err != nil {
		tracing.TraceErr(span, err)
		return nil, errors.Wrapf(err, "bounce mailbox %s", domain.Domain)
	}

	rules := p.defaultRules
	if len(domain.BounceRules) > 0 {
		rules = domain.BounceRules
	}

	result := &PollResult{Messages: len(raws)}
	var processed []string
	for _, raw := range raws {
		if ctx.Err() != nil {
			break
		}
		if p.processMessage(ctx, domain, raw, rules, result) {
			processed = append(processed, raw.ID)
		}
	}

	if domain.BounceDeleteProcessed && len(processed) > 0 {
		if err := client.Delete(ctx, processed); err != nil {
			p.log.Warnf("Unable to delete processed bounces for %s: %v", domain.Domain, err)
			result.Errors = append(result.Errors, err.Error())
		} else {
			result.Deleted = len(processed)
		}
	}

	span.LogFields(
		tracingLog.Int("result.messages", result.Messages),
		tracingLog.Int("result.bounces", result.Bounces),
		tracingLog.Int("result.suppressed", result.Suppressed),
	)
	p.log.Infof("Bounce mailbox %s: %d messages, %d bounces, %d suppressed, %d skipped",
		domain.Domain, result.Messages, result.Bounces, result.Suppressed, result.Skipped)

	return result, nil
}

// processMessage returns true once the message is durably recorded.
func (p *Poller) processMessage(ctx context.Context, domain *models.Domain, raw RawMessage, rules models.BounceRules, result *PollResult) bool {
	msg, err := ParseMessage(raw.ID, raw.Data)
	if err != nil {
		p.log.Debugf("Skipping unparseable message %s in %s: %v", raw.ID, domain.Domain, err)
		result.Skipped++
		return false
	}

	bounceType, _, matched := Classify(msg.Subject, msg.Body, rules)
	if !matched {
		if !LooksLikeBounce(msg.Subject, msg.From) {
			result.Ignored++
			return false
		}
		bounceType = enum.BounceUnknown
	}

	recipient := ExtractRecipient(p.candidateRecipients(domain, msg.To), msg.Body)
	if recipient == "" {
		p.log.Debugf("No recipient in bounce %s for %s", msg.MessageID, domain.Domain)
		result.Skipped++
		return false
	}
	result.Bounces++
	metrics.BouncesProcessed.WithLabelValues(bounceType.String()).Inc()

	reason := Reason(msg.Subject, msg.Body)
	record := &models.BounceRecord{
		DomainID:    domain.ID,
		MessageID:   msg.MessageID,
		FromAddress: utils.NormalizeEmail(msg.From),
		ToAddress:   recipient,
		BounceType:  bounceType,
		Reason:      reason,
		RawMessage:  string(raw.Data),
		ProcessedAt: utils.Now(),
	}
	inserted, err := p.records.Create(ctx, record)
	if err != nil {
		result.Errors = append(result.Errors, errors.Wrapf(err, "record bounce %s", msg.MessageID).Error())
		return false
	}
	if inserted {
		result.Recorded++
	} else {
		result.Duplicates++
	}

	if bounceType.Suppresses() {
		metadata := map[string]any{
			"domainId":   domain.ID,
			"messageId":  msg.MessageID,
			"bounceType": bounceType.String(),
		}
		_, err := p.suppression.AddEmail(ctx, recipient, enum.SuppressionTypeForBounce(bounceType), "bounce:"+domain.Domain, reason, metadata)
		if err != nil {
			result.Errors = append(result.Errors, errors.Wrapf(err, "suppress %s", recipient).Error())
		} else {
			result.Suppressed++
		}
	}
	return true
}

// candidateRecipients drops To addresses that belong to the sending side: the bounce
// mailbox itself and addresses on the monitored domain.
func (p *Poller) candidateRecipients(domain *models.Domain, to []string) []string {
	own := utils.NormalizeEmail(domain.BounceUsername)
	var out []string
	for _, addr := range to {
		addr = utils.NormalizeEmail(addr)
		if addr == own || utils.ExtractDomainFromEmail(addr) == strings.ToLower(domain.Domain) {
			continue
		}
		out = append(out, addr)
	}
	return out
}

// TestConnection connects, counts the messages and disconnects.
func (p *Poller) TestConnection(ctx context.Context, domainID string) (*dto.ConnectionTestResult, error) {
	span, ctx := opentracing.StartSpanFromContext(ctx, "BouncePoller.TestConnection")
	defer span.Finish()
	tracing.SetDefaultServiceSpanTags(ctx, span)
	tracing.TagEntity(span, domainID)

	domain, err := p.domains.GetByID(ctx, domainID)
	if err != nil {
		tracing.TraceErr(span, err)
		return nil, err
	}

	client, err := p.connect(ctx, domain)
	if err != nil {
		tracing.TraceErr(span, err)
		return &dto.ConnectionTestResult{Success: false, Error: err.Error()}, nil
	}
	defer func() {
		if err := client.Close(); err != nil {
			p.log.Warnf("Error closing bounce mailbox for %s: %v", domain.Domain, err)
		}
	}()

	count, err := client.Count(ctx)
	if err != nil {
		tracing.TraceErr(span, err)
		return &dto.ConnectionTestResult{Success: false, Error: err.Error()}, nil
	}
	return &dto.ConnectionTestResult{Success: true, MessageCount: count}, nil
}
