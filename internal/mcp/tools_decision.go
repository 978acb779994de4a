package mcpserver

import (
	"context"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"

	"sqlnosql/internal/etl"
)

// Collision decisions are the human-in-the-loop step of a run: the worker
// blocks until a decision is resolved here, by the CLI prompt, or by
// the confirm timeout.
func (s *Server) registerDecisionTools() {
	s.mcp.AddTool(mcp.NewTool("list_pending_decisions",
		mcp.WithDescription("List collision decisions that running conversions are waiting on"),
	), s.handleListPendingDecisions)

	s.mcp.AddTool(mcp.NewTool("resolve_decision",
		mcp.WithDescription(`🛑 DESTRUCTIVE: Answer a pending decision. Kind "overwrite" takes overwrite or abort; kind "strategy" takes overwrite_all or skip_existing. Only ask the user, never answer on their behalf.`),
		mcp.WithString("id", mcp.Description("Decision ID"), mcp.Required()),
		mcp.WithString("decision", mcp.Description("overwrite, abort, overwrite_all or skip_existing"), mcp.Required()),
		mcp.WithToolAnnotation(mcp.ToolAnnotation{DestructiveHint: boolPtr(true)}),
	), s.handleResolveDecision)
}

func (s *Server) handleListPendingDecisions(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return jsonResult(s.svc.PendingDecisions())
}

func (s *Server) handleResolveDecision(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args := req.GetArguments()
	id := argString(args, "id")
	decision := etl.Decision(argString(args, "decision"))
	if id == "" || decision == "" {
		return nil, fmt.Errorf("id and decision are required")
	}
	if err := s.svc.Resolve(id, decision); err != nil {
		return nil, fmt.Errorf("resolve %s: %w", id, err)
	}
	return textResult(fmt.Sprintf("decision %s resolved: %s", id, decision)), nil
}
