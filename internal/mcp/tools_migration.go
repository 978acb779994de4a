package mcpserver

import (
	"context"
	"fmt"
	"time"

	"github.com/mark3labs/mcp-go/mcp"

	"sqlnosql/internal/domain"
	"sqlnosql/internal/etl"
	"sqlnosql/internal/service"
)

// maxWait caps how long get_run blocks.
const maxWait = 60 * time.Second

func (s *Server) registerMigrationTools() {
	s.mcp.AddTool(mcp.NewTool("start_conversion",
		mcp.WithDescription("🛑 DESTRUCTIVE: Convert one table, query result or collection into the other store. Runs in the background and returns a run ID. With policy ask, an existing target produces a pending decision (see list_pending_decisions)."),
		mcp.WithString("direction", mcp.Description("sql-to-mongo or mongo-to-sql"), mcp.Required()),
		mcp.WithString("source", mcp.Description("Source table or collection name")),
		mcp.WithString("query", mcp.Description("SELECT statement (sql-to-mongo only); requires target")),
		mcp.WithString("target", mcp.Description("Target name (default derived from the source)")),
		mcp.WithString("policy", mcp.Description("Collision policy: ask, overwrite or skip (default ask)")),
		mcp.WithToolAnnotation(mcp.ToolAnnotation{DestructiveHint: boolPtr(true)}),
	), s.handleStartConversion)

	s.mcp.AddTool(mcp.NewTool("start_batch",
		mcp.WithDescription("🛑 DESTRUCTIVE: Convert every table (sql-to-mongo) or every collection (mongo-to-sql). Runs in the background and returns a run ID. With policy ask, one overwrite_all/skip_existing decision is requested when targets already exist."),
		mcp.WithString("direction", mcp.Description("sql-to-mongo or mongo-to-sql"), mcp.Required()),
		mcp.WithString("policy", mcp.Description("Collision policy: ask, overwrite or skip (default ask)")),
		mcp.WithBoolean("continueOnError", mcp.Description("Record a failing entity and carry on instead of stopping the batch")),
		mcp.WithToolAnnotation(mcp.ToolAnnotation{DestructiveHint: boolPtr(true)}),
	), s.handleStartBatch)

	s.mcp.AddTool(mcp.NewTool("get_run",
		mcp.WithDescription("Get the status and result of a run started by start_conversion or start_batch"),
		mcp.WithString("runId", mcp.Description("Run ID"), mcp.Required()),
		mcp.WithNumber("waitSeconds", mcp.Description("Block up to this many seconds (max 60) for the run to finish")),
	), s.handleGetRun)

	s.mcp.AddTool(mcp.NewTool("list_runs",
		mcp.WithDescription("List runs started in this session"),
	), s.handleListRuns)
}

func (s *Server) handleStartConversion(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args := req.GetArguments()
	dir, err := domain.ParseDirection(argString(args, "direction"))
	if err != nil {
		return nil, err
	}
	policy, err := domain.ParsePolicy(argString(args, "policy"))
	if err != nil {
		return nil, err
	}
	ref := domain.EntityRef{Name: argString(args, "source"), Query: argString(args, "query")}
	target := argString(args, "target")
	if target == "" && ref.Query != "" {
		return nil, fmt.Errorf("target is required with query")
	}
	target = etl.TargetName(dir, target, ref.Name)
	job := domain.ConversionJob{Direction: dir, Source: ref, Target: target, Policy: policy}
	return s.start(service.Request{Kind: service.KindConvert, Job: job})
}

func (s *Server) handleStartBatch(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args := req.GetArguments()
	dir, err := domain.ParseDirection(argString(args, "direction"))
	if err != nil {
		return nil, err
	}
	policy, err := domain.ParsePolicy(argString(args, "policy"))
	if err != nil {
		return nil, err
	}
	return s.start(service.Request{
		Kind:            service.KindBatch,
		Direction:       dir,
		Policy:          policy,
		IsolateFailures: argBool(args, "continueOnError"),
	})
}

// start launches req on the server context so it survives the tool call.
func (s *Server) start(req service.Request) (*mcp.CallToolResult, error) {
	run, err := s.svc.Start(s.ctx, req)
	if err != nil {
		return nil, fmt.Errorf("start: %w", err)
	}
	s.track(run)
	return jsonResult(statusOf(run))
}

func (s *Server) handleGetRun(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args := req.GetArguments()
	id := argString(args, "runId")
	run, ok := s.run(id)
	if !ok {
		return nil, fmt.Errorf("unknown run %q", id)
	}
	if wait := time.Duration(argInt(args, "waitSeconds", 0)) * time.Second; wait > 0 {
		if wait > maxWait {
			wait = maxWait
		}
		timer := time.NewTimer(wait)
		defer timer.Stop()
		select {
		case <-run.Done():
		case <-timer.C:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	return jsonResult(statusOf(run))
}

func (s *Server) handleListRuns(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return jsonResult(s.runStatuses())
}
