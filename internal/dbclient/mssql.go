package dbclient

import (
	"net/url"
	"strconv"
	"strings"

	mssql "github.com/denisenkom/go-mssqldb"

	"sqlnosql/internal/domain"
	"sqlnosql/internal/etl"
)

// buildSQLServerDSN constructs a sqlserver:// URL from a DatabaseConnection.
func buildSQLServerDSN(conn domain.DatabaseConnection, password string) string {
	port := conn.Port
	if port == 0 {
		port = 1433
	}
	q := url.Values{}
	q.Set("database", conn.Database)
	switch conn.SSLMode {
	case "require":
		q.Set("encrypt", "true")
	case "", "disable":
		q.Set("encrypt", "disable")
	default:
		q.Set("encrypt", conn.SSLMode)
	}
	u := &url.URL{
		Scheme:   "sqlserver",
		User:     url.UserPassword(conn.Username, password),
		Host:     conn.Host + ":" + strconv.Itoa(port),
		RawQuery: q.Encode(),
	}
	return u.String()
}

type mssqlDialect struct{}

func (mssqlDialect) driverName() string { return "sqlserver" }

func (mssqlDialect) quoteIdent(name string) string {
	return "[" + strings.ReplaceAll(name, "]", "]]") + "]"
}

func (mssqlDialect) placeholder(n int) string { return "@p" + strconv.Itoa(n) }

func (mssqlDialect) listTablesQuery() string {
	return `SELECT TABLE_NAME FROM INFORMATION_SCHEMA.TABLES
		WHERE TABLE_TYPE = 'BASE TABLE' ORDER BY TABLE_NAME`
}

func (mssqlDialect) columnType(k domain.Kind) string {
	switch k {
	case domain.KindBool:
		return "BIT"
	case domain.KindInt:
		return "BIGINT"
	case domain.KindFloat:
		return "FLOAT"
	case domain.KindTimestamp:
		return "DATETIME2"
	case domain.KindBytes:
		return "VARBINARY(MAX)"
	}
	return "NVARCHAR(MAX)"
}

func (mssqlDialect) capabilities() etl.Capabilities {
	return etl.Capabilities{NativeTimestamp: true, Bytes: true}
}

// SQL Server rejects statements with more than 2100 parameters.
func (mssqlDialect) maxParams() int { return 2000 }

// convert renders UNIQUEIDENTIFIER columns in their canonical string form;
// the driver returns them as mixed-endian bytes.
func (mssqlDialect) convert(v any, dbType string) (domain.Value, bool) {
	b, ok := v.([]byte)
	if !ok || dbType != "UNIQUEIDENTIFIER" {
		return domain.Value{}, false
	}
	var id mssql.UniqueIdentifier
	if err := id.Scan(b); err != nil {
		return domain.Value{}, false
	}
	return domain.String(id.String()), true
}
