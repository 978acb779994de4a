package mcpserver

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/goccy/go-json"
	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"sqlnosql/internal/domain"
	"sqlnosql/internal/etl"
	"sqlnosql/internal/logx"
	"sqlnosql/internal/service"
)

// Migrator is the part of service.MigrationService the tools drive.
type Migrator interface {
	Start(ctx context.Context, req service.Request) (*service.Run, error)
	Resolve(id string, d etl.Decision) error
	PendingDecisions() []etl.PendingDecision
	List(ctx context.Context) (*service.Listing, error)
	Preview(ctx context.Context, dir domain.Direction, ref domain.EntityRef, limit int) (*service.PreviewResult, error)
	Export(ctx context.Context, dir domain.Direction, ref domain.EntityRef, format etl.ExportFormat) (string, int, error)
}

// Server is the MCP server for sqlnosql. It exposes tools to list and
// preview both stores, start conversions, answer collision decisions
// and export sources to files.
type Server struct {
	mcp *server.MCPServer
	// ctx outlives tool calls; runs started by a tool use it.
	ctx context.Context
	svc Migrator

	mu   sync.Mutex
	runs map[string]*service.Run
}

// New creates the server. build receives the server as the event
// emitter and returns the migrator the tools drive.
func New(ctx context.Context, build func(service.EventEmitter) Migrator) *Server {
	s := &Server{ctx: ctx, runs: make(map[string]*service.Run)}
	s.svc = build(s)

	s.mcp = server.NewMCPServer(
		"sqlnosql-mcp",
		"1.0.0",
		server.WithToolCapabilities(true),
		server.WithResourceCapabilities(true, false),
		server.WithPromptCapabilities(true),
	)

	s.registerCatalogTools()
	s.registerMigrationTools()
	s.registerDecisionTools()
	s.registerResources()
	s.registerPrompts()
	return s
}

// ServeStdio starts the MCP server on stdin/stdout.
func (s *Server) ServeStdio() error {
	logx.Info(s.ctx, "starting stdio server", logx.Component("mcp"))
	return server.ServeStdio(s.mcp)
}

// Emit implements service.EventEmitter. Decision requests and
// completions are pushed to connected clients as notifications.
func (s *Server) Emit(ctx context.Context, event string, data any) {
	switch event {
	case service.EventDecisionRequired, service.EventCompleted:
		params, err := toParams(data)
		if err != nil {
			logx.Warn(ctx, "notification dropped", logx.Component("mcp"), logx.Err(err))
			return
		}
		if s.mcp != nil {
			s.mcp.SendNotificationToAllClients("sqlnosql/"+event, params)
		}
	case service.EventProgress:
		if e, ok := data.(service.ProgressEvent); ok {
			logx.Debug(ctx, "progress", logx.Component("mcp"), logx.RunID(e.RunID))
		}
	}
}

// ── Runs ───────────────────────────────────────────────────

func (s *Server) track(run *service.Run) {
	s.mu.Lock()
	s.runs[run.ID] = run
	s.mu.Unlock()
}

func (s *Server) run(id string) (*service.Run, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.runs[id]
	return r, ok
}

// runStatus is the JSON view of a tracked run.
type runStatus struct {
	ID      string             `json:"id"`
	Request service.Request    `json:"request"`
	Done    bool               `json:"done"`
	Result  *service.RunResult `json:"result,omitempty"`
}

func statusOf(r *service.Run) runStatus {
	st := runStatus{ID: r.ID, Request: r.Request}
	select {
	case <-r.Done():
		res := r.Result()
		st.Done = true
		st.Result = &res
	default:
	}
	return st
}

func (s *Server) runStatuses() []runStatus {
	s.mu.Lock()
	out := make([]runStatus, 0, len(s.runs))
	for _, r := range s.runs {
		out = append(out, statusOf(r))
	}
	s.mu.Unlock()
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// ── Helpers ────────────────────────────────────────────────

// textResult creates a simple text tool result.
func textResult(text string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{
			mcp.TextContent{Type: "text", Text: text},
		},
	}
}

// jsonResult serializes v to JSON and wraps it in a text tool result.
func jsonResult(v any) (*mcp.CallToolResult, error) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("marshal result: %w", err)
	}
	return textResult(string(data)), nil
}

// toParams round-trips data through JSON into a notification payload.
func toParams(data any) (map[string]any, error) {
	raw, err := json.Marshal(data)
	if err != nil {
		return nil, err
	}
	params := map[string]any{}
	if err := json.Unmarshal(raw, &params); err != nil {
		return nil, err
	}
	return params, nil
}

func boolPtr(v bool) *bool { return &v }
