package mcp

import (
	"context"
	"encoding/json"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/meltforce/posecoach/internal/models"
)

type featureSetView struct {
	Name   string      `json:"name"`
	Angles []angleView `json:"angles"`
}

type angleView struct {
	Name   string `json:"name"`
	A      string `json:"a"`
	Vertex string `json:"vertex"`
	C      string `json:"c"`
}

func (h *handlers) featureSets(_ context.Context, req mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
	views := make([]featureSetView, 0, len(models.FeatureSets))
	for _, fs := range models.FeatureSets {
		v := featureSetView{Name: fs.Name}
		for _, s := range fs.Specs {
			v.Angles = append(v.Angles, angleView{
				Name:   s.Name,
				A:      models.JointName(s.A),
				Vertex: models.JointName(s.Vertex),
				C:      models.JointName(s.C),
			})
		}
		views = append(views, v)
	}
	return jsonResource(req, views)
}

func (h *handlers) recentSessions(ctx context.Context, req mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
	sessions, err := h.ds.QuerySessions(ctx, 20)
	if err != nil {
		return nil, err
	}
	return jsonResource(req, sessions)
}

func jsonResource(req mcp.ReadResourceRequest, v any) ([]mcp.ResourceContents, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	return []mcp.ResourceContents{
		mcp.TextResourceContents{
			URI:      req.Params.URI,
			MIMEType: "application/json",
			Text:     string(data),
		},
	}, nil
}
