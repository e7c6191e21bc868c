// Package sessioncsv ingests session CSV logs into central storage.
package sessioncsv

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"slices"

	"github.com/google/uuid"

	"github.com/meltforce/posecoach/internal/ingest"
	"github.com/meltforce/posecoach/internal/models"
	"github.com/meltforce/posecoach/internal/sessionlog"
)

// CustomFeatureSet names a session whose angle columns match no built-in set.
const CustomFeatureSet = "custom"

// Store is the slice of storage the provider writes to.
type Store interface {
	CreateSession(ctx context.Context, s models.SessionRow) (bool, error)
	InsertEvaluations(ctx context.Context, rows []models.EvaluationRow) (int64, error)
}

// Meta identifies the uploaded session. Owner is the uploader's login, if known.
type Meta struct {
	ID    uuid.UUID
	Name  string
	Owner string
}

// Provider processes session CSV logs.
type Provider struct {
	store Store
	log   *slog.Logger
}

// NewProvider creates a new session CSV ingest provider.
func NewProvider(store Store, log *slog.Logger) *Provider {
	return &Provider{store: store, log: log}
}

// Ingest parses a session log and stores its rows. Row N of the file (after
// the header) becomes frame N-1. Re-uploading the same session ID inserts
// only frames not stored yet.
func (p *Provider) Ingest(ctx context.Context, r io.Reader, meta Meta) (*ingest.Result, error) {
	angleNames, records, err := sessionlog.Read(r)
	if err != nil {
		return nil, fmt.Errorf("parsing session log: %w", err)
	}
	if meta.ID == uuid.Nil {
		meta.ID = uuid.New()
	}

	result := &ingest.Result{
		SessionID:    meta.ID,
		FeatureSet:   featureSetName(angleNames),
		RowsReceived: len(records),
	}

	created, err := p.store.CreateSession(ctx, models.SessionRow{
		ID:         meta.ID,
		Name:       meta.Name,
		FeatureSet: result.FeatureSet,
		AngleNames: angleNames,
		CreatedBy:  meta.Owner,
	})
	if err != nil {
		return nil, fmt.Errorf("creating session %s: %w", meta.ID, err)
	}
	result.SessionCreated = created

	if len(records) == 0 {
		result.Message = "session log has no rows"
		return result, nil
	}

	rows := make([]models.EvaluationRow, len(records))
	for i, rec := range records {
		rows[i] = models.EvaluationRow{
			SessionID:  meta.ID,
			FrameIndex: i,
			Angles:     rec.Angles,
			Confidence: rec.Confidence,
			Feedback:   rec.Feedback,
			Label:      rec.Label.String(),
		}
	}
	inserted, err := p.store.InsertEvaluations(ctx, rows)
	if err != nil {
		return nil, fmt.Errorf("inserting evaluations: %w", err)
	}
	result.RowsInserted = inserted
	result.RowsSkipped = int64(len(rows)) - inserted

	p.log.Info("session ingested",
		"session", meta.ID,
		"feature_set", result.FeatureSet,
		"rows", len(rows),
		"inserted", inserted,
	)
	return result, nil
}

// featureSetName maps column names back to the built-in feature set that
// produced them.
func featureSetName(angleNames []string) string {
	for _, fs := range models.FeatureSets {
		if slices.Equal(fs.Names(), angleNames) {
			return fs.Name
		}
	}
	return CustomFeatureSet
}
