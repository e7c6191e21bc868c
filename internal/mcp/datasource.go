package mcp

import (
	"context"

	"github.com/google/uuid"

	"github.com/meltforce/posecoach/internal/models"
	"github.com/meltforce/posecoach/internal/storage"
)

// DataSource abstracts the session store for MCP tools. Both *storage.DB
// (local) and HTTPClient (remote via REST API) satisfy this interface.
type DataSource interface {
	QuerySessions(ctx context.Context, limit int) ([]models.SessionRow, error)
	GetSessionSummary(ctx context.Context, sessionID uuid.UUID) (*storage.SessionSummary, error)
	QueryEvaluations(ctx context.Context, sessionID uuid.UUID, limit int) ([]models.EvaluationRow, error)
}

// Compile-time check: *storage.DB satisfies DataSource.
var _ DataSource = (*storage.DB)(nil)

// Evaluator scores a single frame. *evaluate.Evaluator satisfies it.
type Evaluator interface {
	Evaluate(ctx context.Context, frame models.Frame) (*models.EvaluationResult, error)
}
