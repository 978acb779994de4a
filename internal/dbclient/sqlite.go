package dbclient

import (
	"fmt"
	"strings"

	"sqlnosql/internal/domain"
	"sqlnosql/internal/etl"

	_ "modernc.org/sqlite"
)

// newSQLiteAdapter creates an adapter for a local SQLite file. No handle
// is held between calls, so the file can be replaced or removed while
// the adapter is idle.
func newSQLiteAdapter(path string) (*sqlAdapter, error) {
	if path == "" {
		return nil, domain.ConnectionError("", fmt.Errorf("sqlite: file path is required"))
	}
	return &sqlAdapter{d: sqliteDialect{}, dsn: sqliteDSN(path)}, nil
}

func sqliteDSN(path string) string {
	return "file:" + path + "?_pragma=busy_timeout(5000)"
}

type sqliteDialect struct{}

func (sqliteDialect) driverName() string { return "sqlite" }

func (sqliteDialect) quoteIdent(name string) string {
	return "`" + strings.ReplaceAll(name, "`", "``") + "`"
}

func (sqliteDialect) placeholder(int) string { return "?" }

func (sqliteDialect) listTablesQuery() string {
	return `SELECT name FROM sqlite_master
		WHERE type = 'table' AND name NOT LIKE 'sqlite_%' ORDER BY name`
}

func (sqliteDialect) columnType(k domain.Kind) string {
	switch k {
	case domain.KindBool, domain.KindInt:
		return "INTEGER"
	case domain.KindFloat:
		return "REAL"
	case domain.KindBytes:
		return "BLOB"
	}
	return "TEXT"
}

// Timestamps are stored as RFC 3339 text.
func (sqliteDialect) capabilities() etl.Capabilities {
	return etl.Capabilities{NativeTimestamp: false, Bytes: true}
}

func (sqliteDialect) maxParams() int { return 999 }
