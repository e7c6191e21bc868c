package server

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/meltforce/posecoach/internal/classifier"
	"github.com/meltforce/posecoach/internal/evaluate"
	"github.com/meltforce/posecoach/internal/extract"
	"github.com/meltforce/posecoach/internal/ingest/sessioncsv"
	"github.com/meltforce/posecoach/internal/models"
	"github.com/meltforce/posecoach/internal/storage"
)

// Store is the storage surface the HTTP handlers use. *storage.DB satisfies it.
type Store interface {
	sessioncsv.Store
	GetSession(ctx context.Context, id uuid.UUID) (*models.SessionRow, error)
	QuerySessions(ctx context.Context, limit int) ([]models.SessionRow, error)
	QueryEvaluations(ctx context.Context, sessionID uuid.UUID, limit int) ([]models.EvaluationRow, error)
	NextFrameIndex(ctx context.Context, sessionID uuid.UUID) (int, error)
	GetSessionSummary(ctx context.Context, sessionID uuid.UUID) (*storage.SessionSummary, error)
	InsertImportLog(ctx context.Context, log storage.ImportLog) (int64, error)
	QueryImportLogs(ctx context.Context, limit int) ([]storage.ImportLog, error)
}

var _ Store = (*storage.DB)(nil)

// Evaluation is what the server needs to build a per-request evaluator.
type Evaluation struct {
	Extractor  *extract.Extractor
	Classifier classifier.Classifier
	Options    evaluate.Options
}

// Server holds dependencies for HTTP handlers.
type Server struct {
	store    Store
	sessions *sessioncsv.Provider
	eval     Evaluation
	log      *slog.Logger
	apiKey   string
	whois    WhoIser
	router   chi.Router
	mcp      http.Handler
}

// New creates a new Server with all routes configured.
func New(store Store, eval Evaluation, apiKey string, log *slog.Logger) *Server {
	s := &Server{
		store:    store,
		sessions: sessioncsv.NewProvider(store, log),
		eval:     eval,
		log:      log,
		apiKey:   apiKey,
		router:   chi.NewRouter(),
	}
	s.routes()
	return s
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

// SetTailscale switches identity resolution from the local dev user to
// tailnet WhoIs lookups. Call before serving.
func (s *Server) SetTailscale(w WhoIser) {
	s.whois = w
}

// SetMCP mounts an MCP transport at /mcp.
func (s *Server) SetMCP(h http.Handler) {
	s.mcp = h
}

func (s *Server) routes() {
	s.router.Use(RequestLogging(s.log))
	s.router.Use(CORS)
	s.router.Use(s.identity)

	// Ingest endpoints (API key required)
	s.router.Route("/api/v1/ingest", func(r chi.Router) {
		r.Use(APIKeyAuth(s.apiKey))
		r.Post("/sessions", s.handleSessionIngest)
	})

	// Query and evaluation endpoints (no auth; tsnet handles access)
	s.router.Get("/api/v1/me", s.handleMe)
	s.router.Post("/api/v1/evaluate", s.handleEvaluate)
	s.router.Get("/api/v1/angle", s.handleAngle)
	s.router.Get("/api/v1/sessions", s.handleListSessions)
	s.router.Post("/api/v1/sessions", s.handleCreateSession)
	s.router.Get("/api/v1/sessions/{id}", s.handleSessionSummary)
	s.router.Get("/api/v1/sessions/{id}/evaluations", s.handleSessionEvaluations)
	s.router.Get("/api/v1/import-logs", s.handleImportLogs)

	s.router.Handle("/mcp", http.HandlerFunc(s.handleMCP))
}

func (s *Server) handleMCP(w http.ResponseWriter, r *http.Request) {
	if s.mcp == nil {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "mcp not enabled"})
		return
	}
	s.mcp.ServeHTTP(w, r)
}

// identity applies the tailnet identity when configured, the dev identity otherwise.
func (s *Server) identity(next http.Handler) http.Handler {
	dev := DevIdentity(next)
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.whois != nil {
			TailscaleIdentity(s.whois, s.log)(next).ServeHTTP(w, r)
			return
		}
		dev.ServeHTTP(w, r)
	})
}
