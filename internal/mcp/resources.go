package mcpserver

import (
	"context"

	"github.com/goccy/go-json"
	"github.com/mark3labs/mcp-go/mcp"
)

const (
	runsURI      = "sqlnosql://runs"
	decisionsURI = "sqlnosql://decisions"
)

func (s *Server) registerResources() {
	// ── sqlnosql://runs ────────────────────────────────
	s.mcp.AddResource(mcp.NewResource(
		runsURI,
		"Runs started in this session",
		mcp.WithMIMEType("application/json"),
	), s.handleRunsResource)

	// ── sqlnosql://decisions ───────────────────────────
	s.mcp.AddResource(mcp.NewResource(
		decisionsURI,
		"Pending collision decisions",
		mcp.WithMIMEType("application/json"),
	), s.handleDecisionsResource)
}

func (s *Server) handleRunsResource(ctx context.Context, req mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
	return jsonResource(runsURI, s.runStatuses())
}

func (s *Server) handleDecisionsResource(ctx context.Context, req mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
	return jsonResource(decisionsURI, s.svc.PendingDecisions())
}

func jsonResource(uri string, v any) ([]mcp.ResourceContents, error) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return nil, err
	}
	return []mcp.ResourceContents{
		mcp.TextResourceContents{
			URI:      uri,
			MIMEType: "application/json",
			Text:     string(data),
		},
	}, nil
}
