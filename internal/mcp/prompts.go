package mcpserver

import (
	"context"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"
)

func (s *Server) registerPrompts() {
	s.mcp.AddPrompt(mcp.NewPrompt("migrate_database",
		mcp.WithPromptDescription("Guide through converting a whole database between SQL and MongoDB"),
		mcp.WithArgument("direction",
			mcp.ArgumentDescription("sql-to-mongo or mongo-to-sql"),
			mcp.RequiredArgument(),
		),
	), s.handleMigrateDatabasePrompt)

	s.mcp.AddPrompt(mcp.NewPrompt("export_report",
		mcp.WithPromptDescription("Export a table or collection to a spreadsheet after previewing it"),
		mcp.WithArgument("name",
			mcp.ArgumentDescription("Table or collection to export"),
			mcp.RequiredArgument(),
		),
	), s.handleExportReportPrompt)
}

func (s *Server) handleMigrateDatabasePrompt(ctx context.Context, req mcp.GetPromptRequest) (*mcp.GetPromptResult, error) {
	direction := req.Params.Arguments["direction"]
	return &mcp.GetPromptResult{
		Description: fmt.Sprintf("Convert every entity %s", direction),
		Messages: []mcp.PromptMessage{
			{
				Role: mcp.RoleUser,
				Content: mcp.TextContent{
					Type: "text",
					Text: fmt.Sprintf(`Convert the whole database (%s). Follow these steps:

1. Use list_entities to show what exists on both sides
2. Start the batch with start_batch using direction "%s" and policy "ask"
3. Poll get_run with waitSeconds until it is done, checking list_pending_decisions in between
4. When a strategy decision appears, show the user which targets already exist and ask whether to overwrite_all or skip_existing; pass their answer to resolve_decision
5. Summarize converted, skipped and failed entities from the run result`, direction, direction),
				},
			},
		},
	}, nil
}

func (s *Server) handleExportReportPrompt(ctx context.Context, req mcp.GetPromptRequest) (*mcp.GetPromptResult, error) {
	name := req.Params.Arguments["name"]
	return &mcp.GetPromptResult{
		Description: fmt.Sprintf("Export %s", name),
		Messages: []mcp.PromptMessage{
			{
				Role: mcp.RoleUser,
				Content: mcp.TextContent{
					Type: "text",
					Text: fmt.Sprintf(`Export "%s" to a spreadsheet:

1. Use list_entities to find out whether it is a table or a collection
2. Preview it with preview_source so the user can confirm the columns
3. Call export_source with format "xlsx" and report the file path`, name),
				},
			},
		},
	}, nil
}
