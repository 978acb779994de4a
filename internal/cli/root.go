// Package cli provides the root and sub-commands of sqlnosql. Commands
// are organized using the cobra library.
//
//	sqlnosql list [--preview NAME --from sql|mongo]
//	sqlnosql sql-to-mongo TABLE [--target NAME] [--policy ask|overwrite|skip]
//	sqlnosql sql-to-mongo --query "SELECT ..." --target NAME
//	sqlnosql mongo-to-sql COLLECTION [--target NAME]
//	sqlnosql db-to-mongo [--continue-on-error]
//	sqlnosql mongo-to-db [--continue-on-error]
//	sqlnosql export NAME --from sql|mongo [--format csv|xlsx]
//	sqlnosql watch
//	sqlnosql mcp
//
// Every command accepts -c /path/of/sqlnosql.yaml.
package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"sqlnosql/internal/config"
	"sqlnosql/internal/logx"
	"sqlnosql/internal/secret"
	"sqlnosql/internal/service"
)

var cfgPath string

var rootCmd = &cobra.Command{
	Use:   "sqlnosql",
	Short: "Move data between a relational database and MongoDB",
	Long: `Move data between a relational database (MySQL, PostgreSQL,
SQL Server or a SQLite file) and a MongoDB database.
Tables become collections and collections become tables; nested
documents are flattened into columns and arrays are stored as JSON text.
When a target already exists the collision policy decides whether it is
overwritten, skipped, or whether the operator is asked.`,
	SilenceUsage: true,
}

// Execute runs the rootCmd which parses CLI arguments and flags and
// runs the most specific cobra command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	cobra.OnInitialize(fixConfigPath)
	rootCmd.PersistentFlags().StringVarP(
		&cfgPath, "config", "c", "", "config file path",
	)
}

// fixConfigPath ensures that cfgPath is set respectively by either the
// CLI args, the SQLNOSQL_CONFIG environment variable, or its default.
func fixConfigPath() {
	cfgPath = config.ResolvePath(cfgPath)
}

// loadConfig reads cfgPath and installs the configured logger.
func loadConfig() (*config.Config, error) {
	c, err := config.LoadFile(cfgPath)
	if err != nil {
		return nil, fmt.Errorf("config.LoadFile(%q): %w", cfgPath, err)
	}
	if err := logx.Setup(c.Log.Level, c.Log.Format); err != nil {
		return nil, fmt.Errorf("setting up logger: %w", err)
	}
	return c, nil
}

// connections resolves both passwords through the configured secret
// backend.
func connections(c *config.Config) (service.Connections, error) {
	store, err := secret.New(c.Secrets.Backend)
	if err != nil {
		return service.Connections{}, err
	}
	sqlPass, err := secret.Password(store, c.SQL.Password, c.SQL.PasswordKey)
	if err != nil {
		return service.Connections{}, fmt.Errorf("sql password: %w", err)
	}
	mongoPass, err := secret.Password(store, c.Mongo.Password, c.Mongo.PasswordKey)
	if err != nil {
		return service.Connections{}, fmt.Errorf("mongo password: %w", err)
	}
	return service.Connections{
		SQL:           c.SQL.Connection(),
		SQLPassword:   sqlPass,
		Mongo:         c.Mongo.Connection(),
		MongoPassword: mongoPass,
	}, nil
}

// newService loads the config and builds a MigrationService around
// emitter. Zero options fall back to the config file.
func newService(emitter service.EventEmitter, opts service.Options) (*config.Config, *service.MigrationService, error) {
	c, err := loadConfig()
	if err != nil {
		return nil, nil, err
	}
	conns, err := connections(c)
	if err != nil {
		return nil, nil, err
	}
	if opts.OutputDir == "" {
		opts.OutputDir = c.Migration.OutputDir
	}
	if opts.ConfirmTimeout == 0 {
		opts.ConfirmTimeout = c.Migration.Timeout()
	}
	return c, service.NewMigrationService(conns, emitter, opts), nil
}

// closeService gives in-flight runs a moment to finish, then
// disconnects the session adapters.
func closeService(svc *service.MigrationService) {
	drain, stop := context.WithTimeout(context.Background(), 30*time.Second)
	defer stop()
	svc.WaitRunning(drain)
	if err := svc.Close(); err != nil {
		logx.Warn(drain, "closing connections", logx.Component("cli"), logx.Err(err))
	}
}

// signalContext is cancelled on interrupt or termination.
func signalContext(cmd *cobra.Command) (context.Context, context.CancelFunc) {
	return signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
}
