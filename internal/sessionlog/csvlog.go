// Package sessionlog persists evaluated frames to an append-only CSV file.
package sessionlog

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"slices"
	"strconv"
	"sync"

	"github.com/meltforce/posecoach/internal/models"
)

// Trailing columns after the angle names.
const (
	ColConfidence = "confidence"
	ColFeedback   = "feedback"
	ColLabel      = "label"
)

// ErrHeaderMismatch is returned when an existing log was written with a
// different column layout.
var ErrHeaderMismatch = errors.New("session log header mismatch")

// Header returns the column layout for the given angle names.
func Header(angleNames []string) []string {
	h := make([]string, 0, len(angleNames)+3)
	h = append(h, angleNames...)
	return append(h, ColConfidence, ColFeedback, ColLabel)
}

// CSVLog appends one row per evaluated frame. Each Append opens, writes,
// flushes, syncs and closes the file, so an interrupted process never leaves
// a partial row behind.
type CSVLog struct {
	path   string
	header []string
	mu     sync.Mutex
}

// Open prepares a log at path. A new or empty file gets the header written;
// an existing file must carry the same header.
func Open(path string, angleNames []string) (*CSVLog, error) {
	l := &CSVLog{path: path, header: Header(angleNames)}

	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("creating log dir %s: %w", dir, err)
		}
	}

	info, err := os.Stat(path)
	switch {
	case errors.Is(err, os.ErrNotExist) || (err == nil && info.Size() == 0):
		if err := l.writeRow(l.header); err != nil {
			return nil, fmt.Errorf("writing header: %w", err)
		}
	case err != nil:
		return nil, fmt.Errorf("stat %s: %w", path, err)
	default:
		existing, err := readHeader(path)
		if err != nil {
			return nil, err
		}
		if !slices.Equal(existing, l.header) {
			return nil, fmt.Errorf("%w: %s has %v, want %v", ErrHeaderMismatch, path, existing, l.header)
		}
	}
	return l, nil
}

// Path returns the file the log writes to.
func (l *CSVLog) Path() string { return l.path }

// Append writes one record.
func (l *CSVLog) Append(_ context.Context, rec models.LogRecord) error {
	if want := len(l.header) - 3; len(rec.Angles) != want {
		return fmt.Errorf("record has %d angles, log expects %d", len(rec.Angles), want)
	}
	row := make([]string, 0, len(l.header))
	for _, a := range rec.Angles {
		row = append(row, formatFloat(a))
	}
	row = append(row, formatFloat(rec.Confidence), rec.Feedback, rec.Label.String())

	l.mu.Lock()
	defer l.mu.Unlock()
	if err := l.writeRow(row); err != nil {
		return fmt.Errorf("appending to %s: %w", l.path, err)
	}
	return nil
}

func (l *CSVLog) writeRow(row []string) (err error) {
	f, err := os.OpenFile(l.path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := f.Close(); err == nil {
			err = cerr
		}
	}()

	w := csv.NewWriter(f)
	if err := w.Write(row); err != nil {
		return err
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return err
	}
	return f.Sync()
}

func readHeader(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening %s: %w", path, err)
	}
	defer f.Close()

	header, err := csv.NewReader(f).Read()
	if err != nil {
		return nil, fmt.Errorf("reading header of %s: %w", path, err)
	}
	return header, nil
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'g', -1, 64)
}

// ReadFile reads a session log from disk.
func ReadFile(path string) ([]string, []models.LogRecord, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, nil, fmt.Errorf("opening %s: %w", path, err)
	}
	defer f.Close()
	return Read(f)
}

// Read parses a session log. It returns the angle names from the header and
// the records in file order.
func Read(r io.Reader) ([]string, []models.LogRecord, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	header, err := cr.Read()
	if err != nil {
		return nil, nil, fmt.Errorf("reading header: %w", err)
	}
	n := len(header)
	if n < 3 || header[n-3] != ColConfidence || header[n-2] != ColFeedback || header[n-1] != ColLabel {
		return nil, nil, fmt.Errorf("%w: trailing columns must be %s,%s,%s", ErrHeaderMismatch, ColConfidence, ColFeedback, ColLabel)
	}
	angleNames := header[:n-3]

	var records []models.LogRecord
	for line := 2; ; line++ {
		row, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, nil, fmt.Errorf("row %d: %w", line, err)
		}
		rec, err := parseRow(row, len(angleNames))
		if err != nil {
			return nil, nil, fmt.Errorf("row %d: %w", line, err)
		}
		records = append(records, rec)
	}
	return angleNames, records, nil
}

func parseRow(row []string, numAngles int) (models.LogRecord, error) {
	var rec models.LogRecord
	if len(row) != numAngles+3 {
		return rec, fmt.Errorf("got %d columns, want %d", len(row), numAngles+3)
	}
	rec.Angles = make([]float64, numAngles)
	for i := 0; i < numAngles; i++ {
		v, err := strconv.ParseFloat(row[i], 64)
		if err != nil {
			return rec, fmt.Errorf("angle column %d: %w", i+1, err)
		}
		rec.Angles[i] = v
	}
	c, err := strconv.ParseFloat(row[numAngles], 64)
	if err != nil {
		return rec, fmt.Errorf("confidence: %w", err)
	}
	rec.Confidence = c
	rec.Feedback = row[numAngles+1]
	rec.Label, err = models.ParseLabel(row[numAngles+2])
	if err != nil {
		return rec, err
	}
	return rec, nil
}
