package cli

import (
	"github.com/spf13/cobra"

	mcpserver "sqlnosql/internal/mcp"
	"sqlnosql/internal/service"
)

var mcpCmd = &cobra.Command{
	Use:   "mcp",
	Short: "Serve the migration tools over MCP on stdin/stdout",
	Long: `Serve the migration tools to an AI agent over the Model Context
Protocol on stdin/stdout. Logs go to stderr. Collision decisions are
listed by list_pending_decisions and answered by resolve_decision.`,
	Args: cobra.NoArgs,
	RunE: runMCP,
}

func init() {
	rootCmd.AddCommand(mcpCmd)
}

func runMCP(cmd *cobra.Command, _ []string) error {
	c, err := loadConfig()
	if err != nil {
		return err
	}
	conns, err := connections(c)
	if err != nil {
		return err
	}
	ctx, cancel := signalContext(cmd)
	defer cancel()

	var svc *service.MigrationService
	srv := mcpserver.New(ctx, func(emitter service.EventEmitter) mcpserver.Migrator {
		svc = service.NewMigrationService(conns, emitter, service.Options{
			OutputDir:      c.Migration.OutputDir,
			ConfirmTimeout: c.Migration.Timeout(),
		})
		return svc
	})
	defer closeService(svc)
	return srv.ServeStdio()
}
