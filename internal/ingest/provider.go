// Package ingest holds the shared result type of the ingest providers.
package ingest

import "github.com/google/uuid"

// Result holds the outcome of an ingest operation.
type Result struct {
	SessionID      uuid.UUID `json:"session_id"`
	SessionCreated bool      `json:"session_created"`
	FeatureSet     string    `json:"feature_set"`

	RowsReceived int   `json:"rows_received"`
	RowsInserted int64 `json:"rows_inserted"`
	RowsSkipped  int64 `json:"rows_skipped"`

	Message string `json:"message,omitempty"`
}
