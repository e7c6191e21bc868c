package mcp

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/mark3labs/mcp-go/mcp"

	"github.com/meltforce/posecoach/internal/extract"
	"github.com/meltforce/posecoach/internal/geometry"
	"github.com/meltforce/posecoach/internal/models"
	"github.com/meltforce/posecoach/internal/source"
	"github.com/meltforce/posecoach/internal/storage"
)

// --- Tool definitions ---

var toolCalculateAngle = mcp.NewTool("calculate_angle",
	mcp.WithDescription("Compute the interior angle in degrees at vertex B formed by points A and C. Coordinates are normalized image coordinates (y grows downward)."),
	mcp.WithNumber("ax", mcp.Required(), mcp.Description("Point A x")),
	mcp.WithNumber("ay", mcp.Required(), mcp.Description("Point A y")),
	mcp.WithNumber("bx", mcp.Required(), mcp.Description("Vertex B x")),
	mcp.WithNumber("by", mcp.Required(), mcp.Description("Vertex B y")),
	mcp.WithNumber("cx", mcp.Required(), mcp.Description("Point C x")),
	mcp.WithNumber("cy", mcp.Required(), mcp.Description("Point C y")),
)

var toolEvaluatePose = mcp.NewTool("evaluate_pose",
	mcp.WithDescription("Evaluate one pose frame: extract joint angles, classify the posture and return coaching feedback. Nothing is stored."),
	mcp.WithString("frame", mcp.Required(), mcp.Description(`Frame as JSON, e.g. {"confidence":0.9,"landmarks":[[x,y,visibility],...]} with 33 MediaPipe landmarks, or {"mediapipe":{"left_hip":{"x":..,"y":..},...}}`)),
)

var toolListSessions = mcp.NewTool("list_sessions",
	mcp.WithDescription("List recorded coaching sessions, newest first."),
	mcp.WithNumber("limit", mcp.Description("Maximum sessions to return. Defaults to 20.")),
)

var toolGetSessionSummary = mcp.NewTool("get_session_summary",
	mcp.WithDescription("Summarize a session: frame counts per label, average confidence, mean angle per feature and the most frequent feedback messages."),
	mcp.WithString("session_id", mcp.Required(), mcp.Description("Session UUID")),
)

var toolGetSessionEvaluations = mcp.NewTool("get_session_evaluations",
	mcp.WithDescription("Per-frame evaluations of a session in frame order: angles, confidence, feedback and label."),
	mcp.WithString("session_id", mcp.Required(), mcp.Description("Session UUID")),
	mcp.WithNumber("limit", mcp.Description("Maximum frames to return. Defaults to 200.")),
)

// --- Tool handlers ---

func (h *handlers) calculateAngle(_ context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	var vals [6]float64
	for i, key := range []string{"ax", "ay", "bx", "by", "cx", "cy"} {
		v, err := req.RequireFloat(key)
		if err != nil {
			return mcp.NewToolResultError(key + " parameter is required"), nil
		}
		vals[i] = v
	}

	deg, err := geometry.Angle(
		models.Point2D{X: vals[0], Y: vals[1]},
		models.Point2D{X: vals[2], Y: vals[3]},
		models.Point2D{X: vals[4], Y: vals[5]},
	)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return jsonResult(map[string]float64{"degrees": deg})
}

func (h *handlers) evaluatePose(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	if h.eval == nil {
		return mcp.NewToolResultError("no classifier configured"), nil
	}
	raw, err := req.RequireString("frame")
	if err != nil {
		return mcp.NewToolResultError("frame parameter is required"), nil
	}
	frame, err := source.ParseFrame([]byte(raw))
	if err != nil {
		return mcp.NewToolResultError("invalid frame: " + err.Error()), nil
	}
	extract.FillConfidence(&frame)

	res, err := h.eval.Evaluate(ctx, frame)
	if err != nil {
		h.log.Error("mcp evaluate_pose", "error", err)
		return mcp.NewToolResultError("evaluation failed: " + err.Error()), nil
	}
	return jsonResult(res)
}

func (h *handlers) listSessions(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	limit := req.GetInt("limit", 20)
	if limit <= 0 {
		limit = 20
	}
	sessions, err := h.ds.QuerySessions(ctx, limit)
	if err != nil {
		h.log.Error("mcp list_sessions", "error", err)
		return mcp.NewToolResultError("query failed: " + err.Error()), nil
	}
	if sessions == nil {
		sessions = []models.SessionRow{}
	}
	return jsonResult(sessions)
}

func (h *handlers) getSessionSummary(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id, errResult := sessionID(req)
	if errResult != nil {
		return errResult, nil
	}
	summary, err := h.ds.GetSessionSummary(ctx, id)
	if err != nil {
		return h.queryError("get_session_summary", err), nil
	}
	return jsonResult(summary)
}

func (h *handlers) getSessionEvaluations(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id, errResult := sessionID(req)
	if errResult != nil {
		return errResult, nil
	}
	limit := req.GetInt("limit", 200)
	if limit <= 0 {
		limit = 200
	}
	rows, err := h.ds.QueryEvaluations(ctx, id, limit)
	if err != nil {
		return h.queryError("get_session_evaluations", err), nil
	}
	if rows == nil {
		rows = []models.EvaluationRow{}
	}
	return jsonResult(rows)
}

func sessionID(req mcp.CallToolRequest) (uuid.UUID, *mcp.CallToolResult) {
	raw, err := req.RequireString("session_id")
	if err != nil {
		return uuid.Nil, mcp.NewToolResultError("session_id parameter is required")
	}
	id, err := uuid.Parse(raw)
	if err != nil {
		return uuid.Nil, mcp.NewToolResultError("session_id must be a UUID")
	}
	return id, nil
}

func (h *handlers) queryError(tool string, err error) *mcp.CallToolResult {
	if errors.Is(err, storage.ErrNotFound) {
		return mcp.NewToolResultError("session not found")
	}
	h.log.Error("mcp "+tool, "error", err)
	return mcp.NewToolResultError("query failed: " + err.Error())
}

func jsonResult(v any) (*mcp.CallToolResult, error) {
	result, err := mcp.NewToolResultJSON(v)
	if err != nil {
		return mcp.NewToolResultError("serialization failed"), nil
	}
	return result, nil
}
