package server

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"slices"
	"strings"
	"sync"
	"testing"

	"github.com/google/uuid"

	"github.com/meltforce/posecoach/internal/classifier"
	"github.com/meltforce/posecoach/internal/evaluate"
	"github.com/meltforce/posecoach/internal/extract"
	"github.com/meltforce/posecoach/internal/models"
	"github.com/meltforce/posecoach/internal/storage"
)

const testAPIKey = "test-key"

// memStore is an in-memory Store.
type memStore struct {
	mu       sync.Mutex
	sessions map[uuid.UUID]models.SessionRow
	evals    []models.EvaluationRow
	logs     []storage.ImportLog
}

func newMemStore() *memStore {
	return &memStore{sessions: map[uuid.UUID]models.SessionRow{}}
}

func (m *memStore) CreateSession(_ context.Context, s models.SessionRow) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.sessions[s.ID]; ok {
		return false, nil
	}
	m.sessions[s.ID] = s
	return true, nil
}

func (m *memStore) InsertEvaluations(_ context.Context, rows []models.EvaluationRow) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var n int64
	for _, r := range rows {
		if slices.ContainsFunc(m.evals, func(e models.EvaluationRow) bool {
			return e.SessionID == r.SessionID && e.FrameIndex == r.FrameIndex
		}) {
			continue
		}
		m.evals = append(m.evals, r)
		n++
	}
	return n, nil
}

func (m *memStore) NextFrameIndex(_ context.Context, id uuid.UUID) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	next := 0
	for _, r := range m.evals {
		if r.SessionID == id && r.FrameIndex >= next {
			next = r.FrameIndex + 1
		}
	}
	return next, nil
}

func (m *memStore) GetSession(_ context.Context, id uuid.UUID) (*models.SessionRow, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[id]
	if !ok {
		return nil, fmt.Errorf("session %s: %w", id, storage.ErrNotFound)
	}
	return &s, nil
}

func (m *memStore) QuerySessions(_ context.Context, limit int) ([]models.SessionRow, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []models.SessionRow
	for _, s := range m.sessions {
		out = append(out, s)
	}
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (m *memStore) QueryEvaluations(_ context.Context, id uuid.UUID, limit int) ([]models.EvaluationRow, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []models.EvaluationRow
	for _, r := range m.evals {
		if r.SessionID == id && len(out) < limit {
			out = append(out, r)
		}
	}
	return out, nil
}

func (m *memStore) GetSessionSummary(ctx context.Context, id uuid.UUID) (*storage.SessionSummary, error) {
	s, err := m.GetSession(ctx, id)
	if err != nil {
		return nil, err
	}
	rows, _ := m.QueryEvaluations(ctx, id, 1<<30)
	sum := &storage.SessionSummary{Session: *s, Frames: int64(len(rows))}
	for _, r := range rows {
		if r.Label == "Correct" {
			sum.Correct++
		}
	}
	return sum, nil
}

func (m *memStore) InsertImportLog(_ context.Context, l storage.ImportLog) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.logs = append(m.logs, l)
	return int64(len(m.logs)), nil
}

func (m *memStore) QueryImportLogs(_ context.Context, limit int) ([]storage.ImportLog, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.logs, nil
}

func newTestServer(store *memStore) *Server {
	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	eval := Evaluation{
		Extractor:  extract.New(models.EvaluationFeatures),
		Classifier: classifier.NewHipThreshold(6, 85, 95),
		Options:    evaluate.DefaultOptions(),
	}
	return New(store, eval, testAPIKey, log)
}

// frameJSON encodes a seated pose with both hips at 90 degrees.
func frameJSON(index int, confidence float64) string {
	pts := make([]string, models.NumLandmarks)
	for i := range pts {
		pts[i] = fmt.Sprintf("[0.5,%g,1]", 0.05+float64(i)*0.01)
	}
	set := func(i int, x, y float64) { pts[i] = fmt.Sprintf("[%g,%g,1]", x, y) }
	set(models.LeftShoulder, 0.40, 0.20)
	set(models.RightShoulder, 0.60, 0.20)
	set(models.LeftHip, 0.40, 0.50)
	set(models.RightHip, 0.60, 0.50)
	set(models.LeftKnee, 0.20, 0.50)
	set(models.RightKnee, 0.80, 0.50)
	return fmt.Sprintf(`{"frame":%d,"confidence":%g,"landmarks":[%s]}`, index, confidence, strings.Join(pts, ","))
}

func do(t *testing.T, h http.Handler, req *http.Request) *httptest.ResponseRecorder {
	t.Helper()
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	if err := json.NewDecoder(rec.Body).Decode(&v); err != nil {
		t.Fatalf("decode error: %v", err)
	}
	return v
}

type evalBody struct {
	Outcome  string `json:"outcome"`
	Label    string `json:"label"`
	Feedback string `json:"feedback"`
	Frame    int    `json:"frame"`
	Stored   bool   `json:"stored"`
	Angles   []struct {
		Name    string  `json:"name"`
		Degrees float64 `json:"degrees"`
	} `json:"angles"`
}

// TestEvaluateFrame verifies a well-formed frame is classified and given feedback.
func TestEvaluateFrame(t *testing.T) {
	s := newTestServer(newMemStore())
	req := httptest.NewRequest(http.MethodPost, "/api/v1/evaluate", strings.NewReader(frameJSON(3, 0.9)))
	rec := do(t, s, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200: %s", rec.Code, rec.Body)
	}
	got := decode[evalBody](t, rec)
	if got.Outcome != "evaluated" || got.Label != "Correct" {
		t.Errorf("outcome/label = %s/%s, want evaluated/Correct", got.Outcome, got.Label)
	}
	if got.Feedback != "Good posture on both sides!" {
		t.Errorf("feedback = %q", got.Feedback)
	}
	if got.Frame != 3 || got.Stored {
		t.Errorf("frame/stored = %d/%v, want 3/false", got.Frame, got.Stored)
	}
	if len(got.Angles) != 6 || got.Angles[0].Name != "left_hip_angle" {
		t.Errorf("angles = %+v", got.Angles)
	}
}

// TestEvaluateIntoSession verifies evaluated frames are stored when a session is given.
func TestEvaluateIntoSession(t *testing.T) {
	store := newMemStore()
	s := newTestServer(store)

	rec := do(t, s, httptest.NewRequest(http.MethodPost, "/api/v1/sessions", strings.NewReader(`{"name":"plank"}`)))
	if rec.Code != http.StatusCreated {
		t.Fatalf("create status = %d: %s", rec.Code, rec.Body)
	}
	session := decode[models.SessionRow](t, rec)
	if session.FeatureSet != "evaluation" || session.CreatedBy != "local" {
		t.Errorf("session = %+v", session)
	}

	req := httptest.NewRequest(http.MethodPost, "/api/v1/evaluate?session="+session.ID.String(), strings.NewReader(frameJSON(8, 0.9)))
	rec = do(t, s, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d: %s", rec.Code, rec.Body)
	}
	if got := decode[evalBody](t, rec); !got.Stored {
		t.Error("stored = false, want true")
	}
	if len(store.evals) != 1 || store.evals[0].FrameIndex != 8 || store.evals[0].SessionID != session.ID {
		t.Errorf("stored rows = %+v", store.evals)
	}
}

// TestEvaluateLowConfidence verifies a weak detection is reported, not classified or stored.
func TestEvaluateLowConfidence(t *testing.T) {
	store := newMemStore()
	id := uuid.New()
	store.sessions[id] = models.SessionRow{ID: id, FeatureSet: "evaluation", AngleNames: models.EvaluationFeatures.Names()}
	s := newTestServer(store)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/evaluate?session="+id.String(), strings.NewReader(frameJSON(0, 0.2)))
	rec := do(t, s, req)
	got := decode[evalBody](t, rec)
	if got.Outcome != "low_confidence" || got.Feedback != evaluate.MsgLowConfidence {
		t.Errorf("outcome/feedback = %s/%q", got.Outcome, got.Feedback)
	}
	if got.Stored || len(store.evals) != 0 {
		t.Error("low-confidence frame must not be stored")
	}
}

// TestEvaluateAssignsFrameIndex verifies frames posted into a session without
// their own index are numbered after the frames already stored, so none is lost.
func TestEvaluateAssignsFrameIndex(t *testing.T) {
	store := newMemStore()
	id := uuid.New()
	store.sessions[id] = models.SessionRow{ID: id, FeatureSet: "evaluation", AngleNames: models.EvaluationFeatures.Names()}
	s := newTestServer(store)

	unindexed := strings.Replace(frameJSON(0, 0.9), `"frame":0,`, "", 1)
	for want := 0; want < 2; want++ {
		req := httptest.NewRequest(http.MethodPost, "/api/v1/evaluate?session="+id.String(), strings.NewReader(unindexed))
		rec := do(t, s, req)
		if rec.Code != http.StatusOK {
			t.Fatalf("status = %d: %s", rec.Code, rec.Body)
		}
		got := decode[evalBody](t, rec)
		if got.Frame != want || !got.Stored {
			t.Errorf("post %d: frame/stored = %d/%v, want %d/true", want, got.Frame, got.Stored, want)
		}
	}
	if len(store.evals) != 2 {
		t.Errorf("stored rows = %d, want 2", len(store.evals))
	}
}

// TestEvaluateDuplicateFrame verifies an explicit frame index that is already
// stored is reported as not stored with the reason.
func TestEvaluateDuplicateFrame(t *testing.T) {
	store := newMemStore()
	id := uuid.New()
	store.sessions[id] = models.SessionRow{ID: id, FeatureSet: "evaluation", AngleNames: models.EvaluationFeatures.Names()}
	s := newTestServer(store)

	url := "/api/v1/evaluate?session=" + id.String()
	if got := decode[evalBody](t, do(t, s, httptest.NewRequest(http.MethodPost, url, strings.NewReader(frameJSON(4, 0.9))))); !got.Stored {
		t.Fatal("first post not stored")
	}

	rec := do(t, s, httptest.NewRequest(http.MethodPost, url, strings.NewReader(frameJSON(4, 0.9))))
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d: %s", rec.Code, rec.Body)
	}
	var got struct {
		Stored   bool   `json:"stored"`
		LogError string `json:"log_error"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&got); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if got.Stored {
		t.Error("stored = true for a duplicate frame")
	}
	if !strings.Contains(got.LogError, "frame already stored") {
		t.Errorf("log_error = %q", got.LogError)
	}
	if len(store.evals) != 1 {
		t.Errorf("stored rows = %d, want 1", len(store.evals))
	}
}

// TestEvaluateFeatureSetMismatch verifies frames are not stored into a session
// recorded with a different angle layout.
func TestEvaluateFeatureSetMismatch(t *testing.T) {
	store := newMemStore()
	id := uuid.New()
	store.sessions[id] = models.SessionRow{ID: id, FeatureSet: "training", AngleNames: models.TrainingFeatures.Names()}
	s := newTestServer(store)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/evaluate?session="+id.String(), strings.NewReader(frameJSON(0, 0.9)))
	rec := do(t, s, req)
	if rec.Code != http.StatusConflict {
		t.Fatalf("status = %d, want 409: %s", rec.Code, rec.Body)
	}
	if msg := decode[map[string]string](t, rec)["error"]; !strings.Contains(msg, `"training"`) {
		t.Errorf("error = %q", msg)
	}
	if len(store.evals) != 0 {
		t.Errorf("stored rows = %d, want 0", len(store.evals))
	}
}

// TestEvaluateErrors verifies request validation on the evaluate endpoint.
func TestEvaluateErrors(t *testing.T) {
	s := newTestServer(newMemStore())
	tests := []struct {
		name string
		url  string
		body string
		want int
	}{
		{"bad body", "/api/v1/evaluate", "{nope", http.StatusBadRequest},
		{"bad session id", "/api/v1/evaluate?session=xyz", frameJSON(0, 0.9), http.StatusBadRequest},
		{"unknown session", "/api/v1/evaluate?session=" + uuid.NewString(), frameJSON(0, 0.9), http.StatusNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := do(t, s, httptest.NewRequest(http.MethodPost, tt.url, strings.NewReader(tt.body)))
			if rec.Code != tt.want {
				t.Errorf("status = %d, want %d", rec.Code, tt.want)
			}
		})
	}
}

// TestAngleEndpoint verifies the standalone angle calculation.
func TestAngleEndpoint(t *testing.T) {
	s := newTestServer(newMemStore())

	rec := do(t, s, httptest.NewRequest(http.MethodGet, "/api/v1/angle?ax=1&ay=2&bx=1&by=1&cx=2&cy=1", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	if got := decode[map[string]float64](t, rec)["degrees"]; got < 89.999 || got > 90.001 {
		t.Errorf("degrees = %v, want 90", got)
	}

	rec = do(t, s, httptest.NewRequest(http.MethodGet, "/api/v1/angle?ax=1&ay=1&bx=1&by=1&cx=2&cy=1", nil))
	if rec.Code != http.StatusUnprocessableEntity {
		t.Errorf("degenerate status = %d, want 422", rec.Code)
	}

	rec = do(t, s, httptest.NewRequest(http.MethodGet, "/api/v1/angle?ax=1", nil))
	if rec.Code != http.StatusBadRequest {
		t.Errorf("missing params status = %d, want 400", rec.Code)
	}
}

const sessionCSV = `left_hip_angle,right_hip_angle,left_shoulder_angle,right_shoulder_angle,left_knee_angle,right_knee_angle,confidence,feedback,label
90,91,44.5,45.5,100,101,0.92,Good posture on both sides!,Correct
70,92,44.5,45.5,100,101,0.81,Straighten up your back on the left side!,Incorrect
`

// TestSessionIngestAuth verifies the ingest endpoint requires the API key and
// stores the uploaded session.
func TestSessionIngestAuth(t *testing.T) {
	store := newMemStore()
	s := newTestServer(store)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/ingest/sessions", strings.NewReader(sessionCSV))
	if rec := do(t, s, req); rec.Code != http.StatusUnauthorized {
		t.Errorf("no key status = %d, want 401", rec.Code)
	}

	req = httptest.NewRequest(http.MethodPost, "/api/v1/ingest/sessions", strings.NewReader(sessionCSV))
	req.Header.Set("X-API-Key", "wrong")
	if rec := do(t, s, req); rec.Code != http.StatusForbidden {
		t.Errorf("wrong key status = %d, want 403", rec.Code)
	}

	id := uuid.New()
	req = httptest.NewRequest(http.MethodPost, "/api/v1/ingest/sessions", strings.NewReader(sessionCSV))
	req.Header.Set("X-API-Key", testAPIKey)
	req.Header.Set("X-Session-ID", id.String())
	req.Header.Set("X-Session-Name", "evening")
	rec := do(t, s, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d: %s", rec.Code, rec.Body)
	}
	if got := store.sessions[id]; got.Name != "evening" || got.CreatedBy != "local" {
		t.Errorf("session = %+v", got)
	}
	if len(store.evals) != 2 {
		t.Errorf("evaluations = %d, want 2", len(store.evals))
	}
	if len(store.logs) != 1 || store.logs[0].Status != "success" {
		t.Errorf("import logs = %+v", store.logs)
	}
}

// TestSessionIngestBadLog verifies a malformed upload is rejected and logged as an error.
func TestSessionIngestBadLog(t *testing.T) {
	store := newMemStore()
	s := newTestServer(store)
	req := httptest.NewRequest(http.MethodPost, "/api/v1/ingest/sessions", strings.NewReader("a,b\n"))
	req.Header.Set("X-API-Key", testAPIKey)
	if rec := do(t, s, req); rec.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", rec.Code)
	}
	if len(store.logs) != 1 || store.logs[0].Status != "error" {
		t.Errorf("import logs = %+v", store.logs)
	}
}

// TestSessionQueries verifies list, summary and evaluation listing.
func TestSessionQueries(t *testing.T) {
	store := newMemStore()
	id := uuid.New()
	store.sessions[id] = models.SessionRow{ID: id, Name: "a"}
	store.evals = []models.EvaluationRow{
		{SessionID: id, FrameIndex: 0, Label: "Correct"},
		{SessionID: id, FrameIndex: 1, Label: "Incorrect"},
	}
	s := newTestServer(store)

	rec := do(t, s, httptest.NewRequest(http.MethodGet, "/api/v1/sessions", nil))
	if got := decode[[]models.SessionRow](t, rec); len(got) != 1 {
		t.Errorf("sessions = %d, want 1", len(got))
	}

	rec = do(t, s, httptest.NewRequest(http.MethodGet, "/api/v1/sessions/"+id.String(), nil))
	sum := decode[storage.SessionSummary](t, rec)
	if sum.Frames != 2 || sum.Correct != 1 {
		t.Errorf("summary = %+v", sum)
	}

	rec = do(t, s, httptest.NewRequest(http.MethodGet, "/api/v1/sessions/"+id.String()+"/evaluations?limit=1", nil))
	if got := decode[[]models.EvaluationRow](t, rec); len(got) != 1 {
		t.Errorf("evaluations = %d, want 1", len(got))
	}

	if rec := do(t, s, httptest.NewRequest(http.MethodGet, "/api/v1/sessions/"+uuid.NewString(), nil)); rec.Code != http.StatusNotFound {
		t.Errorf("unknown session status = %d, want 404", rec.Code)
	}
	if rec := do(t, s, httptest.NewRequest(http.MethodGet, "/api/v1/sessions/abc/evaluations", nil)); rec.Code != http.StatusBadRequest {
		t.Errorf("bad id status = %d, want 400", rec.Code)
	}
}

// TestHandleMeDefault verifies the /api/v1/me endpoint returns the dev user
// identity when no Tailscale client is configured.
func TestHandleMeDefault(t *testing.T) {
	s := newTestServer(newMemStore())
	rec := do(t, s, httptest.NewRequest(http.MethodGet, "/api/v1/me", nil))

	info := decode[UserInfo](t, rec)
	if info.Login != "local" || info.DisplayName != "Local Dev User" {
		t.Errorf("info = %+v", info)
	}
}

// TestMCPMount verifies /mcp is 404 until a transport is mounted.
func TestMCPMount(t *testing.T) {
	s := newTestServer(newMemStore())
	if rec := do(t, s, httptest.NewRequest(http.MethodPost, "/mcp", nil)); rec.Code != http.StatusNotFound {
		t.Errorf("status = %d, want 404", rec.Code)
	}

	s.SetMCP(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusAccepted)
	}))
	if rec := do(t, s, httptest.NewRequest(http.MethodPost, "/mcp", nil)); rec.Code != http.StatusAccepted {
		t.Errorf("status = %d, want 202", rec.Code)
	}
}
