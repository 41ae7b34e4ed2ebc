// Package suppression maintains the list of recipient addresses excluded from all future sends.
package suppression

import (
	"bytes"
	"context"
	"encoding/csv"
	"io"

	"github.com/customeros/mailsherpa/mailvalidate"
	"github.com/opentracing/opentracing-go"
	"github.com/pkg/errors"

	"github.com/customeros/mailwarden/dto"
	"github.com/customeros/mailwarden/interfaces"
	mwerrors "github.com/customeros/mailwarden/internal/errors"
	"github.com/customeros/mailwarden/internal/enum"
	"github.com/customeros/mailwarden/internal/logger"
	"github.com/customeros/mailwarden/internal/metrics"
	"github.com/customeros/mailwarden/internal/models"
	"github.com/customeros/mailwarden/internal/tracing"
	"github.com/customeros/mailwarden/internal/utils"
)

type suppressionService struct {
	log       logger.Logger
	repo      interfaces.SuppressionRepository
	cache     Cache
	publisher interfaces.EventPublisher
	storage   interfaces.StorageService
}

// NewSuppressionService wires the list to its store and cache. publisher and storage may be nil.
func NewSuppressionService(log logger.Logger, repo interfaces.SuppressionRepository, cache Cache, publisher interfaces.EventPublisher, storage interfaces.StorageService) interfaces.SuppressionService {
	if cache == nil {
		cache = NewNoopCache()
	}
	return &suppressionService{
		log:       log,
		repo:      repo,
		cache:     cache,
		publisher: publisher,
		storage:   storage,
	}
}

// cleanEmail validates the syntax and returns the canonical lower-case address.
func cleanEmail(email string) (string, error) {
	email = utils.NormalizeEmail(email)
	if email == "" {
		return "", mwerrors.ErrInvalidEmail
	}
	validation := mailvalidate.ValidateEmailSyntax(email)
	if !validation.IsValid {
		return "", errors.Wrapf(mwerrors.ErrInvalidEmail, "%q", email)
	}
	if validation.CleanEmail != "" {
		email = utils.NormalizeEmail(validation.CleanEmail)
	}
	return email, nil
}

func (s *suppressionService) AddEmail(ctx context.Context, email string, suppressionType enum.SuppressionType, source, reason string, metadata map[string]any) (*models.SuppressionEntry, error) {
	span, ctx := opentracing.StartSpanFromContext(ctx, "SuppressionService.AddEmail")
	defer span.Finish()
	tracing.SetDefaultServiceSpanTags(ctx, span)
	span.LogKV("email", email, "type", suppressionType, "source", source)

	entry, err := s.upsert(ctx, email, suppressionType, source, reason, metadata)
	if err != nil {
		tracing.TraceErr(span, err)
		return nil, err
	}

	if s.publisher != nil {
		event := dto.EmailSuppressed{
			Email:  entry.Email,
			Type:   entry.Type.String(),
			Source: entry.Source,
			Reason: entry.Reason,
		}
		if err := s.publisher.PublishEmailSuppressed(ctx, entry.Email, event); err != nil {
			s.log.Warnf("Unable to publish suppression of %s: %v", entry.Email, err)
		}
	}
	return entry, nil
}

func (s *suppressionService) upsert(ctx context.Context, email string, suppressionType enum.SuppressionType, source, reason string, metadata map[string]any) (*models.SuppressionEntry, error) {
	if !suppressionType.IsValid() {
		return nil, errors.Wrapf(mwerrors.ErrInvalidArgument, "suppression type %q", suppressionType)
	}
	clean, err := cleanEmail(email)
	if err != nil {
		return nil, err
	}

	entry := &models.SuppressionEntry{
		Email:    clean,
		Type:     suppressionType,
		Source:   source,
		Reason:   reason,
		Metadata: models.JSONMap(metadata),
	}
	if err := s.repo.Upsert(ctx, entry); err != nil {
		return nil, errors.Wrap(err, "upsert suppression entry")
	}

	if err := s.cache.Set(ctx, clean, true); err != nil {
		s.log.Warnf("Unable to cache suppression of %s: %v", clean, err)
	}
	return entry, nil
}

// IsSuppressed answers from the cache and falls back to the database on a miss or cache failure.
func (s *suppressionService) IsSuppressed(ctx context.Context, email string) (bool, error) {
	email = utils.NormalizeEmail(email)
	if email == "" {
		return false, mwerrors.ErrInvalidEmail
	}

	suppressed, found, err := s.cache.Get(ctx, email)
	if err != nil {
		s.log.Warnf("Suppression cache unavailable: %v", err)
	} else if found {
		metrics.SuppressionChecks.WithLabelValues("cache").Inc()
		return suppressed, nil
	}

	suppressed, err = s.repo.Exists(ctx, email)
	if err != nil {
		return false, errors.Wrap(err, "check suppression")
	}
	metrics.SuppressionChecks.WithLabelValues("database").Inc()

	if err := s.cache.Remember(ctx, email, suppressed); err != nil {
		s.log.Debugf("Unable to cache suppression answer for %s: %v", email, err)
	}
	return suppressed, nil
}

func (s *suppressionService) RemoveEmail(ctx context.Context, email string) (bool, error) {
	span, ctx := opentracing.StartSpanFromContext(ctx, "SuppressionService.RemoveEmail")
	defer span.Finish()
	tracing.SetDefaultServiceSpanTags(ctx, span)
	span.LogKV("email", email)

	email = utils.NormalizeEmail(email)
	if email == "" {
		return false, mwerrors.ErrInvalidEmail
	}

	removed, err := s.repo.Delete(ctx, email)
	if err != nil {
		tracing.TraceErr(span, err)
		return false, err
	}
	if err := s.cache.Invalidate(ctx, email); err != nil {
		s.log.Warnf("Unable to invalidate suppression cache for %s: %v", email, err)
	}
	if removed {
		s.log.Infof("Removed %s from suppression list", email)
	}
	return removed, nil
}

func (s *suppressionService) GetEntry(ctx context.Context, email string) (*models.SuppressionEntry, error) {
	email = utils.NormalizeEmail(email)
	if email == "" {
		return nil, mwerrors.ErrInvalidEmail
	}
	return s.repo.GetByEmail(ctx, email)
}

func (s *suppressionService) Export(ctx context.Context, w io.Writer, withMetadata bool) (int, error) {
	span, ctx := opentracing.StartSpanFromContext(ctx, "SuppressionService.Export")
	defer span.Finish()
	tracing.SetDefaultServiceSpanTags(ctx, span)

	writer := csv.NewWriter(w)
	total := 0
	err := s.repo.ForEach(ctx, exportBatchSize, func(entries []models.SuppressionEntry) error {
		n, err := writeFlatFile(writer, entries, withMetadata)
		total += n
		return err
	})
	if err != nil {
		tracing.TraceErr(span, err)
		return total, errors.Wrap(err, "export suppression list")
	}
	span.LogKV("exported", total)
	return total, nil
}

// Import upserts every valid line. Invalid addresses and malformed lines are counted as skipped.
func (s *suppressionService) Import(ctx context.Context, r io.Reader, suppressionType enum.SuppressionType, source string) (*dto.ImportResult, error) {
	span, ctx := opentracing.StartSpanFromContext(ctx, "SuppressionService.Import")
	defer span.Finish()
	tracing.SetDefaultServiceSpanTags(ctx, span)

	if !suppressionType.IsValid() {
		return nil, errors.Wrapf(mwerrors.ErrInvalidArgument, "suppression type %q", suppressionType)
	}

	result := &dto.ImportResult{}
	skip := func(line int, reason string) {
		s.log.Debugf("Skipping suppression import line %d: %s", line, reason)
		result.Skipped++
		result.SkippedLines = append(result.SkippedLines, line)
	}
	err := ReadFlatFile(ctx, r, func(line FlatLine) error {
		_, err := s.upsert(ctx, line.Email, suppressionType, source, "imported", line.Metadata)
		if errors.Is(err, mwerrors.ErrInvalidEmail) {
			skip(line.Line, err.Error())
			return nil
		}
		if err != nil {
			return err
		}
		result.Imported++
		return nil
	}, skip)
	if err != nil {
		tracing.TraceErr(span, err)
		return result, err
	}

	span.LogKV("imported", result.Imported, "skipped", result.Skipped)
	s.log.Infof("Imported %d suppression entries, skipped %d", result.Imported, result.Skipped)
	return result, nil
}

// ExportToStorage writes the full list, with metadata, to object storage under key.
func (s *suppressionService) ExportToStorage(ctx context.Context, key string) (int, error) {
	span, ctx := opentracing.StartSpanFromContext(ctx, "SuppressionService.ExportToStorage")
	defer span.Finish()
	tracing.SetDefaultServiceSpanTags(ctx, span)

	if s.storage == nil {
		return 0, errors.Wrap(mwerrors.ErrInvalidConfiguration, "object storage not configured")
	}

	var buf bytes.Buffer
	count, err := s.Export(ctx, &buf, true)
	if err != nil {
		return 0, err
	}
	if err := s.storage.Upload(ctx, key, buf.Bytes(), "text/csv"); err != nil {
		tracing.TraceErr(span, err)
		return 0, errors.Wrap(err, "upload suppression export")
	}
	return count, nil
}
