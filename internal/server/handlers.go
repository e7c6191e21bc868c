package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"slices"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/meltforce/posecoach/internal/classifier"
	"github.com/meltforce/posecoach/internal/evaluate"
	"github.com/meltforce/posecoach/internal/extract"
	"github.com/meltforce/posecoach/internal/geometry"
	"github.com/meltforce/posecoach/internal/ingest"
	"github.com/meltforce/posecoach/internal/ingest/sessioncsv"
	"github.com/meltforce/posecoach/internal/models"
	"github.com/meltforce/posecoach/internal/source"
	"github.com/meltforce/posecoach/internal/storage"
)

const (
	maxFrameBytes = 1 << 20
	maxLogBytes   = 64 << 20
)

// evaluateResponse is the evaluation result plus whether it was stored.
type evaluateResponse struct {
	*models.EvaluationResult
	Frame    int    `json:"frame"`
	Stored   bool   `json:"stored"`
	LogError string `json:"log_error,omitempty"`
}

func (s *Server) handleEvaluate(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxFrameBytes))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "reading body: " + err.Error()})
		return
	}
	frame, hasIndex, err := source.ParseFrameIndexed(body)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid frame: " + err.Error()})
		return
	}
	extract.FillConfidence(&frame)

	var sink evaluate.Sink
	if sid := r.URL.Query().Get("session"); sid != "" {
		id, err := uuid.Parse(sid)
		if err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid session ID"})
			return
		}
		session, err := s.store.GetSession(r.Context(), id)
		if err != nil {
			writeStoreError(w, err)
			return
		}
		fs := s.eval.Extractor.Features()
		if !slices.Equal(session.AngleNames, fs.Names()) {
			writeJSON(w, http.StatusConflict, map[string]string{
				"error": fmt.Sprintf("session feature set %q does not match evaluator %q", session.FeatureSet, fs.Name),
			})
			return
		}
		if !hasIndex {
			next, err := s.store.NextFrameIndex(r.Context(), id)
			if err != nil {
				writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
				return
			}
			frame.Index = next
		}
		sink = storage.NewSink(s.store, id)
	}

	ev, err := evaluate.New(s.eval.Extractor, s.eval.Classifier, sink, s.eval.Options, s.log)
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}
	res, err := ev.Evaluate(r.Context(), frame)
	if err != nil {
		s.log.Error("evaluate failed", "frame", frame.Index, "error", err)
		status := http.StatusBadGateway
		if errors.Is(err, classifier.ErrDimensionMismatch) {
			status = http.StatusInternalServerError
		}
		writeJSON(w, status, map[string]string{"error": err.Error()})
		return
	}

	resp := evaluateResponse{EvaluationResult: res, Frame: frame.Index}
	if sink != nil && res.Outcome == models.OutcomeEvaluated {
		resp.Stored = res.LogErr == nil
		if res.LogErr != nil {
			resp.LogError = res.LogErr.Error()
		}
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleAngle(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	var vals [6]float64
	for i, key := range []string{"ax", "ay", "bx", "by", "cx", "cy"} {
		v, err := strconv.ParseFloat(q.Get(key), 64)
		if err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": fmt.Sprintf("%s: number required", key)})
			return
		}
		vals[i] = v
	}
	deg, err := geometry.Angle(
		models.Point2D{X: vals[0], Y: vals[1]},
		models.Point2D{X: vals[2], Y: vals[3]},
		models.Point2D{X: vals[4], Y: vals[5]},
	)
	if err != nil {
		writeJSON(w, http.StatusUnprocessableEntity, map[string]string{"error": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, map[string]float64{"degrees": deg})
}

func (s *Server) handleSessionIngest(w http.ResponseWriter, r *http.Request) {
	meta := sessioncsv.Meta{
		Name:  r.Header.Get("X-Session-Name"),
		Owner: userInfoFromContext(r).Login,
	}
	if sid := r.Header.Get("X-Session-ID"); sid != "" {
		id, err := uuid.Parse(sid)
		if err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid X-Session-ID"})
			return
		}
		meta.ID = id
	}

	start := time.Now()
	result, err := s.sessions.Ingest(r.Context(), io.LimitReader(r.Body, maxLogBytes), meta)
	s.logImport("session_csv", result, err, int(time.Since(start).Milliseconds()))
	if err != nil {
		s.log.Error("session ingest error", "error", err)
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (s *Server) handleCreateSession(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Name string `json:"name"`
	}
	if r.ContentLength != 0 {
		if err := json.NewDecoder(io.LimitReader(r.Body, maxFrameBytes)).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid JSON: " + err.Error()})
			return
		}
	}
	fs := s.eval.Extractor.Features()
	row := models.SessionRow{
		ID:         uuid.New(),
		Name:       req.Name,
		FeatureSet: fs.Name,
		AngleNames: fs.Names(),
		CreatedBy:  userInfoFromContext(r).Login,
	}
	if _, err := s.store.CreateSession(r.Context(), row); err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}
	writeJSON(w, http.StatusCreated, row)
}

func (s *Server) handleListSessions(w http.ResponseWriter, r *http.Request) {
	sessions, err := s.store.QuerySessions(r.Context(), parseLimit(r, 50))
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}
	if sessions == nil {
		sessions = []models.SessionRow{}
	}
	writeJSON(w, http.StatusOK, sessions)
}

func (s *Server) handleSessionSummary(w http.ResponseWriter, r *http.Request) {
	id, ok := sessionIDParam(w, r)
	if !ok {
		return
	}
	summary, err := s.store.GetSessionSummary(r.Context(), id)
	if err != nil {
		writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, summary)
}

func (s *Server) handleSessionEvaluations(w http.ResponseWriter, r *http.Request) {
	id, ok := sessionIDParam(w, r)
	if !ok {
		return
	}
	if _, err := s.store.GetSession(r.Context(), id); err != nil {
		writeStoreError(w, err)
		return
	}
	rows, err := s.store.QueryEvaluations(r.Context(), id, parseLimit(r, 1000))
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}
	if rows == nil {
		rows = []models.EvaluationRow{}
	}
	writeJSON(w, http.StatusOK, rows)
}

func (s *Server) handleMe(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, userInfoFromContext(r))
}

func (s *Server) handleImportLogs(w http.ResponseWriter, r *http.Request) {
	logs, err := s.store.QueryImportLogs(r.Context(), parseLimit(r, 50))
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, logs)
}

// logImport records an ingest's outcome to the import_logs table.
func (s *Server) logImport(source string, result *ingest.Result, importErr error, durationMs int) {
	entry := storage.ImportLog{
		Source:     source,
		Status:     "success",
		DurationMs: &durationMs,
	}
	if importErr != nil {
		entry.Status = "error"
		msg := importErr.Error()
		entry.ErrorMessage = &msg
	}
	if result != nil {
		entry.SessionID = &result.SessionID
		entry.RowsReceived = result.RowsReceived
		entry.RowsInserted = result.RowsInserted
	}

	ctx, cancel := contextWithTimeout()
	defer cancel()

	if _, err := s.store.InsertImportLog(ctx, entry); err != nil {
		s.log.Error("failed to log import", "source", source, "error", err)
	}
}

// contextWithTimeout returns a background context with a 5-second timeout for import logging.
func contextWithTimeout() (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), 5*time.Second)
}

func sessionIDParam(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid session ID"})
		return uuid.Nil, false
	}
	return id, true
}

func parseLimit(r *http.Request, def int) int {
	if l := r.URL.Query().Get("limit"); l != "" {
		if parsed, err := strconv.Atoi(l); err == nil && parsed > 0 {
			return parsed
		}
	}
	return def
}

func writeStoreError(w http.ResponseWriter, err error) {
	if errors.Is(err, storage.ErrNotFound) {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "session not found"})
		return
	}
	writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
