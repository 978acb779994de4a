package mcpserver

import (
	"context"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"

	"sqlnosql/internal/domain"
	"sqlnosql/internal/etl"
)

func (s *Server) registerCatalogTools() {
	s.mcp.AddTool(mcp.NewTool("list_entities",
		mcp.WithDescription("List the tables of the SQL database and the collections of the MongoDB database"),
		mcp.WithToolAnnotation(mcp.ToolAnnotation{ReadOnlyHint: boolPtr(true)}),
	), s.handleListEntities)

	s.mcp.AddTool(mcp.NewTool("preview_source",
		mcp.WithDescription("Read the first rows of a table, a SELECT query or a collection without writing anything"),
		mcp.WithString("from", mcp.Description("Side to read: sql or mongo (default sql)")),
		mcp.WithString("name", mcp.Description("Table or collection name")),
		mcp.WithString("query", mcp.Description("SELECT statement (sql only); replaces name")),
		mcp.WithNumber("limit", mcp.Description("Maximum rows (default 10)")),
		mcp.WithToolAnnotation(mcp.ToolAnnotation{ReadOnlyHint: boolPtr(true)}),
	), s.handlePreviewSource)

	s.mcp.AddTool(mcp.NewTool("export_source",
		mcp.WithDescription("Write a table, query result or collection to a CSV or XLSX file in the output directory. Returns the file path."),
		mcp.WithString("from", mcp.Description("Side to read: sql or mongo (default sql)")),
		mcp.WithString("name", mcp.Description("Table or collection name")),
		mcp.WithString("query", mcp.Description("SELECT statement (sql only); replaces name")),
		mcp.WithString("format", mcp.Description("csv or xlsx (default csv)")),
	), s.handleExportSource)
}

func (s *Server) handleListEntities(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	l, err := s.svc.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("list entities: %w", err)
	}
	return jsonResult(l)
}

// sourceArgs reads the from/name/query arguments shared by the read tools.
func sourceArgs(args map[string]any) (domain.Direction, domain.EntityRef, error) {
	dir, err := sideDirection(argString(args, "from"))
	if err != nil {
		return "", domain.EntityRef{}, err
	}
	ref := domain.EntityRef{Name: argString(args, "name"), Query: argString(args, "query")}
	if ref.Name == "" && ref.Query == "" {
		return "", domain.EntityRef{}, fmt.Errorf("name or query is required")
	}
	return dir, ref, nil
}

func (s *Server) handlePreviewSource(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args := req.GetArguments()
	dir, ref, err := sourceArgs(args)
	if err != nil {
		return nil, err
	}
	p, err := s.svc.Preview(ctx, dir, ref, argInt(args, "limit", 10))
	if err != nil {
		return nil, fmt.Errorf("preview %s: %w", ref.Label(), err)
	}
	return jsonResult(p)
}

func (s *Server) handleExportSource(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args := req.GetArguments()
	dir, ref, err := sourceArgs(args)
	if err != nil {
		return nil, err
	}
	format, err := etl.ParseExportFormat(req.GetString("format", "csv"))
	if err != nil {
		return nil, err
	}
	path, n, err := s.svc.Export(ctx, dir, ref, format)
	if err != nil {
		return nil, fmt.Errorf("export %s: %w", ref.Label(), err)
	}
	if n == 0 {
		return textResult(fmt.Sprintf("%s is empty, no file written", ref.Label())), nil
	}
	return jsonResult(map[string]any{"path": path, "rows": n})
}
