package dbclient

import (
	"fmt"
	"strconv"
	"strings"

	"sqlnosql/internal/domain"
	"sqlnosql/internal/etl"

	_ "github.com/lib/pq"
)

// buildPostgresDSN constructs a Postgres connection string from a DatabaseConnection.
func buildPostgresDSN(conn domain.DatabaseConnection, password string) string {
	port := conn.Port
	if port == 0 {
		port = 5432
	}
	sslMode := conn.SSLMode
	if sslMode == "" {
		sslMode = "disable"
	}
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		conn.Host, port, conn.Username, password, conn.Database, sslMode,
	)
}

type postgresDialect struct{}

func (postgresDialect) driverName() string { return "postgres" }

func (postgresDialect) quoteIdent(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}

func (postgresDialect) placeholder(n int) string { return "$" + strconv.Itoa(n) }

func (postgresDialect) listTablesQuery() string {
	return `SELECT table_name FROM information_schema.tables
		WHERE table_schema = 'public' ORDER BY table_name`
}

func (postgresDialect) columnType(k domain.Kind) string {
	switch k {
	case domain.KindBool:
		return "BOOLEAN"
	case domain.KindInt:
		return "BIGINT"
	case domain.KindFloat:
		return "DOUBLE PRECISION"
	case domain.KindTimestamp:
		return "TIMESTAMPTZ"
	case domain.KindBytes:
		return "BYTEA"
	}
	return "TEXT"
}

func (postgresDialect) capabilities() etl.Capabilities {
	return etl.Capabilities{NativeTimestamp: true, Bytes: true}
}

func (postgresDialect) maxParams() int { return 30000 }
