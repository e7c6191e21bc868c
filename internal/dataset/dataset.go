// Package dataset turns labelled landmark recordings into a training CSV for
// the 9-input classifier.
package dataset

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strconv"

	"github.com/meltforce/posecoach/internal/extract"
	"github.com/meltforce/posecoach/internal/models"
	"github.com/meltforce/posecoach/internal/source"
)

// Velocity columns appended after the training angles.
var VelocityColumns = []string{"velocityX", "velocityY", "velocityZ"}

// ColLabel is the final column of the training CSV.
const ColLabel = "label"

// Header returns the training CSV header.
func Header() []string {
	h := append([]string{}, models.TrainingFeatures.Names()...)
	h = append(h, VelocityColumns...)
	return append(h, ColLabel)
}

// Stats tracks build progress.
type Stats struct {
	FilesProcessed int
	FilesSkipped   int
	FilesErrored   int

	RowsWritten   int64
	FramesSkipped int64

	Labels []string
}

// Builder reads <root>/<label>/*.jsonl recordings and writes feature rows.
type Builder struct {
	ext   *extract.Extractor
	log   *slog.Logger
	stats Stats
}

// New creates a Builder over the training feature set.
func New(log *slog.Logger) *Builder {
	if log == nil {
		log = slog.Default()
	}
	return &Builder{ext: extract.New(models.TrainingFeatures), log: log}
}

// Build walks every label directory under root and writes one CSV row per
// frame with a complete angle vector. Unreadable recordings are logged and
// counted, not fatal, and contribute no rows.
func (b *Builder) Build(ctx context.Context, root string, w io.Writer) (*Stats, error) {
	entries, err := os.ReadDir(root)
	if err != nil {
		return &b.stats, fmt.Errorf("reading %s: %w", root, err)
	}

	cw := csv.NewWriter(w)
	if err := cw.Write(Header()); err != nil {
		return &b.stats, fmt.Errorf("writing header: %w", err)
	}

	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		label := entry.Name()
		files, err := filepath.Glob(filepath.Join(root, label, "*.jsonl"))
		if err != nil {
			return &b.stats, err
		}
		if len(files) == 0 {
			continue
		}
		sort.Strings(files)
		b.stats.Labels = append(b.stats.Labels, label)

		for _, f := range files {
			if err := ctx.Err(); err != nil {
				cw.Flush()
				return &b.stats, err
			}
			rows, skipped, err := b.buildFile(f, label)
			if err != nil {
				b.log.Warn("recording failed", "file", f, "error", err)
				b.stats.FilesErrored++
				continue
			}
			b.stats.FramesSkipped += skipped
			if len(rows) == 0 {
				b.stats.FilesSkipped++
				continue
			}
			if err := cw.WriteAll(rows); err != nil {
				return &b.stats, fmt.Errorf("writing %s: %w", f, err)
			}
			b.stats.RowsWritten += int64(len(rows))
			b.stats.FilesProcessed++
		}
	}

	cw.Flush()
	if err := cw.Error(); err != nil {
		return &b.stats, fmt.Errorf("writing dataset: %w", err)
	}
	return &b.stats, nil
}

// buildFile returns the rows for one recording and the number of frames
// without a complete angle vector. Velocity is the left-hip displacement since
// the previous emitted frame of the same file.
func (b *Builder) buildFile(path, label string) ([][]string, int64, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, 0, err
	}
	defer f.Close()

	var (
		rows    [][]string
		skipped int64
		prev    *models.Point2D
	)
	r := source.NewReader(f)
	for {
		frame, err := r.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, 0, err
		}

		values, err := b.ext.Extract(frame.Landmarks).Values()
		if err != nil {
			skipped++
			continue
		}
		hip, _ := frame.Landmarks.At(models.LeftHip)

		var vx, vy float64
		if prev != nil {
			vx = hip.X - prev.X
			vy = hip.Y - prev.Y
		}
		p := hip.Point2D
		prev = &p

		row := make([]string, 0, len(values)+4)
		for _, v := range values {
			row = append(row, formatFloat(v))
		}
		row = append(row, formatFloat(vx), formatFloat(vy), "0", label)
		rows = append(rows, row)
	}
	return rows, skipped, nil
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'g', -1, 64)
}
