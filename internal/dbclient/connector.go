package dbclient

import (
	"context"
	"fmt"
	"time"

	"sqlnosql/internal/domain"
	"sqlnosql/internal/etl"
)

// connectTimeout bounds the initial ping of a server store.
const connectTimeout = 10 * time.Second

// NewTabular opens the relational adapter for conn. The password must be
// provided separately (from a SecretStore). Server stores are pinged and
// share one pool for the adapter's lifetime; the embedded store opens a
// fresh handle per operation.
func NewTabular(ctx context.Context, conn domain.DatabaseConnection, password string) (etl.TabularAdapter, error) {
	switch conn.Driver {
	case domain.DatabaseDriverSQLite:
		return newSQLiteAdapter(conn.Host)
	case domain.DatabaseDriverMySQL:
		return newServerAdapter(ctx, mysqlDialect{}, buildMySQLDSN(conn, password), conn.Database)
	case domain.DatabaseDriverPostgres:
		return newServerAdapter(ctx, postgresDialect{}, buildPostgresDSN(conn, password), conn.Database)
	case domain.DatabaseDriverSQLServer:
		return newServerAdapter(ctx, mssqlDialect{}, buildSQLServerDSN(conn, password), conn.Database)
	default:
		return nil, domain.ConnectionError("", fmt.Errorf("unsupported driver: %s", conn.Driver))
	}
}

// NewDocument connects to the document store.
func NewDocument(ctx context.Context, conn domain.DocumentConnection, password string) (etl.DocumentAdapter, error) {
	return newMongoAdapter(ctx, conn, password)
}
