package mcp

import (
	"log/slog"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
)

// New creates an MCP server with all tools and resources registered. eval
// may be nil, in which case evaluate_pose reports that no classifier is
// configured.
func New(ds DataSource, eval Evaluator, version string, log *slog.Logger) *server.MCPServer {
	s := server.NewMCPServer("PoseCoach", version,
		server.WithToolCapabilities(false),
		server.WithResourceCapabilities(false, false),
		server.WithInstructions("PoseCoach posture server. Compute joint angles, evaluate single pose frames, and review recorded coaching sessions."),
	)

	h := &handlers{ds: ds, eval: eval, log: log}

	s.AddTools(
		server.ServerTool{Tool: toolCalculateAngle, Handler: h.calculateAngle},
		server.ServerTool{Tool: toolEvaluatePose, Handler: h.evaluatePose},
		server.ServerTool{Tool: toolListSessions, Handler: h.listSessions},
		server.ServerTool{Tool: toolGetSessionSummary, Handler: h.getSessionSummary},
		server.ServerTool{Tool: toolGetSessionEvaluations, Handler: h.getSessionEvaluations},
	)

	s.AddResources(
		server.ServerResource{Resource: resFeatureSets, Handler: h.featureSets},
		server.ServerResource{Resource: resRecentSessions, Handler: h.recentSessions},
	)

	return s
}

// NewHTTPHandler wraps an MCP server in the streamable HTTP transport.
func NewHTTPHandler(s *server.MCPServer) *server.StreamableHTTPServer {
	return server.NewStreamableHTTPServer(s, server.WithStateLess(true))
}

// handlers holds dependencies for MCP tool/resource handlers.
type handlers struct {
	ds   DataSource
	eval Evaluator
	log  *slog.Logger
}

// --- Resource definitions ---

var resFeatureSets = mcp.NewResource(
	"posecoach://feature_sets",
	"Feature Sets",
	mcp.WithResourceDescription("Built-in angle feature sets with the landmark triplet behind each angle"),
	mcp.WithMIMEType("application/json"),
)

var resRecentSessions = mcp.NewResource(
	"posecoach://recent_sessions",
	"Recent Sessions",
	mcp.WithResourceDescription("The 20 most recently created coaching sessions"),
	mcp.WithMIMEType("application/json"),
)
