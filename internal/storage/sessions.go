package storage

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/meltforce/posecoach/internal/models"
)

// CreateSession inserts a session. Returns true if inserted, false if a
// session with that ID already exists.
func (db *DB) CreateSession(ctx context.Context, s models.SessionRow) (bool, error) {
	tag, err := db.Pool.Exec(ctx,
		`INSERT INTO sessions (id, name, feature_set, angle_names, created_by)
		 VALUES ($1, $2, $3, $4, $5)
		 ON CONFLICT DO NOTHING`,
		s.ID, s.Name, s.FeatureSet, s.AngleNames, s.CreatedBy)
	if err != nil {
		return false, fmt.Errorf("inserting session: %w", err)
	}
	return tag.RowsAffected() > 0, nil
}

// GetSession retrieves a single session by ID.
func (db *DB) GetSession(ctx context.Context, id uuid.UUID) (*models.SessionRow, error) {
	var s models.SessionRow
	err := db.Pool.QueryRow(ctx,
		`SELECT id, name, feature_set, angle_names, created_by, created_at
		 FROM sessions WHERE id = $1`, id,
	).Scan(&s.ID, &s.Name, &s.FeatureSet, &s.AngleNames, &s.CreatedBy, &s.CreatedAt)
	if err != nil {
		return nil, notFound(err, "session "+id.String())
	}
	return &s, nil
}

// QuerySessions returns the most recent sessions.
func (db *DB) QuerySessions(ctx context.Context, limit int) ([]models.SessionRow, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := db.Pool.Query(ctx,
		`SELECT id, name, feature_set, angle_names, created_by, created_at
		 FROM sessions
		 ORDER BY created_at DESC
		 LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("querying sessions: %w", err)
	}
	defer rows.Close()

	var result []models.SessionRow
	for rows.Next() {
		var s models.SessionRow
		if err := rows.Scan(&s.ID, &s.Name, &s.FeatureSet, &s.AngleNames, &s.CreatedBy, &s.CreatedAt); err != nil {
			return nil, fmt.Errorf("scanning session: %w", err)
		}
		result = append(result, s)
	}
	return result, rows.Err()
}
