package suppression

import (
	"bufio"
	"context"
	"encoding/csv"
	"encoding/json"
	"io"
	"strings"

	"github.com/pkg/errors"

	"github.com/customeros/mailwarden/internal/models"
)

const exportBatchSize = 1000

// FlatLine is one parsed line of a suppression flat file.
type FlatLine struct {
	// Line is the 1-based line number in the source file.
	Line     int
	Email    string
	Metadata map[string]any
}

// writeFlatFile writes one email per line. With metadata, a second CSV column
// carries the entry's metadata as JSON.
func writeFlatFile(w *csv.Writer, entries []models.SuppressionEntry, withMetadata bool) (int, error) {
	written := 0
	for _, entry := range entries {
		record := []string{entry.Email}
		if withMetadata && len(entry.Metadata) > 0 {
			data, err := json.Marshal(entry.Metadata)
			if err != nil {
				return written, errors.Wrapf(err, "marshal metadata for %s", entry.Email)
			}
			record = append(record, string(data))
		}
		if err := w.Write(record); err != nil {
			return written, err
		}
		written++
	}
	w.Flush()
	return written, w.Error()
}

// ReadFlatFile calls fn for every usable line. Blank lines and lines starting
// with # are ignored; lines that cannot be parsed are reported through skip.
func ReadFlatFile(ctx context.Context, r io.Reader, fn func(FlatLine) error, skip func(line int, reason string)) error {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)

	lineNo := 0
	for scanner.Scan() {
		if err := ctx.Err(); err != nil {
			return err
		}
		lineNo++
		text := strings.TrimSpace(scanner.Text())
		if text == "" || strings.HasPrefix(text, "#") {
			continue
		}

		parsed, err := parseFlatLine(text)
		if err != nil {
			skip(lineNo, err.Error())
			continue
		}
		parsed.Line = lineNo
		if err := fn(parsed); err != nil {
			return err
		}
	}
	return errors.Wrap(scanner.Err(), "read suppression file")
}

// parseFlatLine accepts "email" and "email,metadata". The metadata column may be
// CSV-quoted (as written by Export) or bare JSON.
func parseFlatLine(text string) (FlatLine, error) {
	email, rest, _ := strings.Cut(text, ",")
	line := FlatLine{Email: strings.TrimSpace(email)}

	rest = strings.TrimSpace(rest)
	if strings.HasPrefix(rest, `"`) {
		record, err := csv.NewReader(strings.NewReader(rest)).Read()
		if err != nil || len(record) == 0 {
			return FlatLine{}, errors.New("malformed metadata column")
		}
		rest = record[0]
	}
	if rest != "" {
		if err := json.Unmarshal([]byte(rest), &line.Metadata); err != nil {
			return FlatLine{}, errors.Wrap(err, "malformed metadata")
		}
	}
	return line, nil
}
