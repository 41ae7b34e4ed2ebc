// Package logreader streams MTA accounting, feedback-loop and diagnostic CSV logs as typed events.
package logreader

import (
	"context"
	"encoding/csv"
	"io"
	"iter"
	"os"
	"path/filepath"
	"time"

	"github.com/opentracing/opentracing-go"
	tracingLog "github.com/opentracing/opentracing-go/log"
	"github.com/pkg/errors"

	mwerrors "github.com/customeros/mailwarden/internal/errors"
	"github.com/customeros/mailwarden/internal/enum"
	"github.com/customeros/mailwarden/internal/logger"
	"github.com/customeros/mailwarden/internal/metrics"
	"github.com/customeros/mailwarden/internal/tracing"
	"github.com/customeros/mailwarden/internal/utils"
)

type LogEvent struct {
	Type         enum.EventType `json:"type"`
	Source       enum.LogLayout `json:"source"`
	Timestamp    time.Time      `json:"timestamp"`
	Origin       string         `json:"origin"`
	Recipient    string         `json:"recipient"`
	OriginDomain string         `json:"originDomain"`
	DSNStatus    string         `json:"dsnStatus,omitempty"`
	Diagnostic   string         `json:"diagnostic,omitempty"`
	Severity     string         `json:"severity,omitempty"`
}

type Query struct {
	Pattern       string
	Layout        enum.LogLayout
	LookbackHours int
	// Domain drops events whose origin domain differs. Empty keeps everything.
	Domain string
}

type EventSource interface {
	Events(ctx context.Context, q Query) (iter.Seq[LogEvent], error)
}

type Reader struct {
	log logger.Logger
	now func() time.Time
}

func NewReader(log logger.Logger) *Reader {
	return &Reader{
		log: log,
		now: utils.Now,
	}
}

// WithClock replaces the clock used for the lookback cutoff.
func (r *Reader) WithClock(now func() time.Time) *Reader {
	r.now = now
	return r
}

// Events resolves the glob and returns a lazy sequence over all matching files.
// Files are opened one at a time as the sequence is consumed.
func (r *Reader) Events(ctx context.Context, q Query) (iter.Seq[LogEvent], error) {
	span, _ := opentracing.StartSpanFromContext(ctx, "LogReader.Events")
	defer span.Finish()
	tracing.SetDefaultServiceSpanTags(ctx, span)
	span.LogKV("pattern", q.Pattern, "layout", q.Layout, "lookbackHours", q.LookbackHours, "domain", q.Domain)

	l, ok := layouts[q.Layout]
	if !ok {
		err := errors.Wrapf(mwerrors.ErrInvalidConfiguration, "unknown log layout %q", q.Layout)
		tracing.TraceErr(span, err)
		return nil, err
	}
	if q.Pattern == "" {
		err := errors.Wrap(mwerrors.ErrInvalidLogPattern, "empty pattern")
		tracing.TraceErr(span, err)
		return nil, err
	}

	files, err := filepath.Glob(q.Pattern)
	if err != nil {
		err = errors.Wrapf(mwerrors.ErrInvalidLogPattern, "%s: %v", q.Pattern, err)
		tracing.TraceErr(span, err)
		return nil, err
	}
	span.LogFields(tracingLog.Int("response.files", len(files)))

	var cutoff time.Time
	if q.LookbackHours > 0 {
		cutoff = r.now().Add(-time.Duration(q.LookbackHours) * time.Hour)
	}
	domain := normalizeDomain(q.Domain)

	return func(yield func(LogEvent) bool) {
		for _, path := range files {
			if ctx.Err() != nil {
				return
			}
			if !r.readFile(ctx, path, l, cutoff, domain, yield) {
				return
			}
		}
	}, nil
}

// readFile returns false when the consumer stopped the iteration.
func (r *Reader) readFile(ctx context.Context, path string, l layout, cutoff time.Time, domain string, yield func(LogEvent) bool) bool {
	f, err := os.Open(path)
	if err != nil {
		r.log.Warnf("Unable to open log file %s: %v", path, err)
		return true
	}
	defer f.Close()

	cr := csv.NewReader(f)
	cr.FieldsPerRecord = -1
	cr.LazyQuotes = true
	cr.TrimLeadingSpace = true
	cr.ReuseRecord = true

	layoutName := l.name.String()
	for lineNo := 1; ; lineNo++ {
		if lineNo%1000 == 0 && ctx.Err() != nil {
			return false
		}

		fields, err := cr.Read()
		if err == io.EOF {
			return true
		}
		if err != nil {
			var parseErr *csv.ParseError
			if errors.As(err, &parseErr) {
				r.log.Debugf("Malformed line %d in %s: %v", lineNo, path, err)
				metrics.LogLinesSkipped.WithLabelValues(layoutName, "malformed").Inc()
				continue
			}
			r.log.Warnf("Unable to read log file %s: %v", path, err)
			return true
		}

		if len(fields) < l.minFields {
			r.log.Debugf("Skipping line %d in %s: %d fields, want at least %d", lineNo, path, len(fields), l.minFields)
			metrics.LogLinesSkipped.WithLabelValues(layoutName, "short").Inc()
			continue
		}

		ev, reason, err := l.parse(fields)
		if err != nil {
			if !errors.Is(err, errSkip) {
				r.log.Debugf("Skipping line %d in %s: %v", lineNo, path, err)
			}
			metrics.LogLinesSkipped.WithLabelValues(layoutName, reason).Inc()
			continue
		}
		if !cutoff.IsZero() && ev.Timestamp.Before(cutoff) {
			metrics.LogLinesSkipped.WithLabelValues(layoutName, "window").Inc()
			continue
		}
		if domain != "" && ev.OriginDomain != domain {
			metrics.LogLinesSkipped.WithLabelValues(layoutName, "domain").Inc()
			continue
		}

		ev.Source = l.name
		metrics.LogEventsRead.WithLabelValues(layoutName, ev.Type.String()).Inc()
		if !yield(ev) {
			return false
		}
	}
}
