package storage

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/meltforce/posecoach/internal/models"
)

// InsertEvaluations batch-inserts evaluated frames. Frames already stored for
// the same session and index are skipped. Returns count inserted.
func (db *DB) InsertEvaluations(ctx context.Context, rows []models.EvaluationRow) (int64, error) {
	// 7 params per row, max 65535 params -> ~9362 rows per batch. Use 5000.
	const batchSize = 5000
	var total int64
	for i := 0; i < len(rows); i += batchSize {
		end := min(i+batchSize, len(rows))
		n, err := db.insertEvaluationBatch(ctx, rows[i:end])
		if err != nil {
			return total, err
		}
		total += n
	}
	return total, nil
}

func (db *DB) insertEvaluationBatch(ctx context.Context, rows []models.EvaluationRow) (int64, error) {
	if len(rows) == 0 {
		return 0, nil
	}

	query := `INSERT INTO evaluations (session_id, frame_index, time, angles, confidence, feedback, label) VALUES `
	args := make([]any, 0, len(rows)*7)
	valueStrings := make([]string, 0, len(rows))

	for i, r := range rows {
		base := i * 7
		valueStrings = append(valueStrings, fmt.Sprintf(
			"($%d,$%d,$%d,$%d,$%d,$%d,$%d)",
			base+1, base+2, base+3, base+4, base+5, base+6, base+7,
		))
		var t *time.Time
		if !r.Time.IsZero() {
			t = &r.Time
		}
		args = append(args, r.SessionID, r.FrameIndex, t, r.Angles, r.Confidence, r.Feedback, r.Label)
	}

	query += strings.Join(valueStrings, ",") + " ON CONFLICT DO NOTHING"

	tag, err := db.Pool.Exec(ctx, query, args...)
	if err != nil {
		return 0, fmt.Errorf("inserting evaluations: %w", err)
	}
	return tag.RowsAffected(), nil
}

// NextFrameIndex returns one past the highest frame index stored for the
// session, or 0 when it has none.
func (db *DB) NextFrameIndex(ctx context.Context, sessionID uuid.UUID) (int, error) {
	var next int
	err := db.Pool.QueryRow(ctx,
		`SELECT COALESCE(MAX(frame_index) + 1, 0) FROM evaluations WHERE session_id = $1`,
		sessionID).Scan(&next)
	if err != nil {
		return 0, fmt.Errorf("querying next frame index: %w", err)
	}
	return next, nil
}

// QueryEvaluations returns a session's frames in frame order.
func (db *DB) QueryEvaluations(ctx context.Context, sessionID uuid.UUID, limit int) ([]models.EvaluationRow, error) {
	if limit <= 0 {
		limit = 1000
	}
	rows, err := db.Pool.Query(ctx,
		`SELECT session_id, frame_index, time, angles, confidence, feedback, label
		 FROM evaluations
		 WHERE session_id = $1
		 ORDER BY frame_index ASC
		 LIMIT $2`,
		sessionID, limit)
	if err != nil {
		return nil, fmt.Errorf("querying evaluations: %w", err)
	}
	defer rows.Close()

	var result []models.EvaluationRow
	for rows.Next() {
		var (
			r models.EvaluationRow
			t *time.Time
		)
		if err := rows.Scan(&r.SessionID, &r.FrameIndex, &t, &r.Angles, &r.Confidence, &r.Feedback, &r.Label); err != nil {
			return nil, fmt.Errorf("scanning evaluation: %w", err)
		}
		if t != nil {
			r.Time = *t
		}
		result = append(result, r)
	}
	return result, rows.Err()
}

// SessionSummary aggregates a session's evaluated frames.
type SessionSummary struct {
	Session       models.SessionRow  `json:"session"`
	Frames        int64              `json:"frames"`
	Correct       int64              `json:"correct"`
	Incorrect     int64              `json:"incorrect"`
	Unknown       int64              `json:"unknown"`
	AvgConfidence *float64           `json:"avg_confidence"`
	MeanAngles    map[string]float64 `json:"mean_angles"`
	TopFeedback   []FeedbackCount    `json:"top_feedback"`
}

// FeedbackCount is how often a feedback message was given.
type FeedbackCount struct {
	Feedback string `json:"feedback"`
	Count    int64  `json:"count"`
}

// GetSessionSummary returns label counts, mean angles and the most frequent
// feedback for a session.
func (db *DB) GetSessionSummary(ctx context.Context, sessionID uuid.UUID) (*SessionSummary, error) {
	session, err := db.GetSession(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	sum := &SessionSummary{Session: *session, MeanAngles: map[string]float64{}}

	err = db.Pool.QueryRow(ctx,
		`SELECT COUNT(*),
		        COUNT(*) FILTER (WHERE label = $2),
		        COUNT(*) FILTER (WHERE label = $3),
		        COUNT(*) FILTER (WHERE label = $4),
		        AVG(confidence)
		 FROM evaluations WHERE session_id = $1`,
		sessionID, models.LabelCorrect.String(), models.LabelIncorrect.String(), models.LabelUnknown.String(),
	).Scan(&sum.Frames, &sum.Correct, &sum.Incorrect, &sum.Unknown, &sum.AvgConfidence)
	if err != nil {
		return nil, fmt.Errorf("counting evaluations: %w", err)
	}

	rows, err := db.Pool.Query(ctx,
		`SELECT u.ord, AVG(u.a)
		 FROM evaluations e, unnest(e.angles) WITH ORDINALITY AS u(a, ord)
		 WHERE e.session_id = $1
		 GROUP BY u.ord
		 ORDER BY u.ord`, sessionID)
	if err != nil {
		return nil, fmt.Errorf("averaging angles: %w", err)
	}
	for rows.Next() {
		var (
			ord  int64
			mean float64
		)
		if err := rows.Scan(&ord, &mean); err != nil {
			rows.Close()
			return nil, fmt.Errorf("scanning angle mean: %w", err)
		}
		if i := int(ord) - 1; i >= 0 && i < len(session.AngleNames) {
			sum.MeanAngles[session.AngleNames[i]] = mean
		}
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}

	fbRows, err := db.Pool.Query(ctx,
		`SELECT feedback, COUNT(*) AS n
		 FROM evaluations WHERE session_id = $1
		 GROUP BY feedback
		 ORDER BY n DESC, feedback
		 LIMIT 5`, sessionID)
	if err != nil {
		return nil, fmt.Errorf("counting feedback: %w", err)
	}
	defer fbRows.Close()
	for fbRows.Next() {
		var fc FeedbackCount
		if err := fbRows.Scan(&fc.Feedback, &fc.Count); err != nil {
			return nil, fmt.Errorf("scanning feedback: %w", err)
		}
		sum.TopFeedback = append(sum.TopFeedback, fc)
	}
	return sum, fbRows.Err()
}
