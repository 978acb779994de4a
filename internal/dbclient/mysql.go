package dbclient

import (
	"fmt"
	"strings"

	"sqlnosql/internal/domain"
	"sqlnosql/internal/etl"

	_ "github.com/go-sql-driver/mysql"
)

// buildMySQLDSN constructs a MySQL DSN from a DatabaseConnection.
func buildMySQLDSN(conn domain.DatabaseConnection, password string) string {
	port := conn.Port
	if port == 0 {
		port = 3306
	}
	// Format: user:password@tcp(host:port)/dbname?parseTime=true
	dsn := fmt.Sprintf("%s:%s@tcp(%s:%d)/%s?parseTime=true&loc=UTC&charset=utf8mb4",
		conn.Username, password, conn.Host, port, conn.Database,
	)
	if conn.SSLMode == "require" {
		dsn += "&tls=true"
	}
	return dsn
}

type mysqlDialect struct{}

func (mysqlDialect) driverName() string { return "mysql" }

func (mysqlDialect) quoteIdent(name string) string {
	return "`" + strings.ReplaceAll(name, "`", "``") + "`"
}

func (mysqlDialect) placeholder(int) string { return "?" }

func (mysqlDialect) listTablesQuery() string { return "SHOW TABLES" }

func (mysqlDialect) columnType(k domain.Kind) string {
	switch k {
	case domain.KindBool:
		return "TINYINT(1)"
	case domain.KindInt:
		return "BIGINT"
	case domain.KindFloat:
		return "DOUBLE"
	case domain.KindTimestamp:
		return "DATETIME(6)"
	case domain.KindBytes:
		return "LONGBLOB"
	}
	return "LONGTEXT"
}

func (mysqlDialect) capabilities() etl.Capabilities {
	return etl.Capabilities{NativeTimestamp: true, Bytes: true}
}

func (mysqlDialect) maxParams() int { return 10000 }
