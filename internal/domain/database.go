package domain

// DatabaseDriver represents the type of relational engine.
type DatabaseDriver string

const (
	DatabaseDriverMySQL     DatabaseDriver = "mysql"
	DatabaseDriverPostgres  DatabaseDriver = "postgres"
	DatabaseDriverSQLServer DatabaseDriver = "sqlserver"
	DatabaseDriverSQLite    DatabaseDriver = "sqlite"
)

// Embedded reports whether the driver is a local file store that is
// opened per operation instead of held for the session.
func (d DatabaseDriver) Embedded() bool { return d == DatabaseDriverSQLite }

// Label is the human-readable engine name used in logs.
func (d DatabaseDriver) Label() string {
	switch d {
	case DatabaseDriverMySQL:
		return "MySQL"
	case DatabaseDriverPostgres:
		return "PostgreSQL"
	case DatabaseDriverSQLServer:
		return "SQL Server"
	case DatabaseDriverSQLite:
		return "SQLite"
	default:
		return string(d)
	}
}

// DatabaseConnection holds the metadata for connecting to a relational store.
// The password is resolved separately (see internal/secret).
type DatabaseConnection struct {
	Driver   DatabaseDriver `json:"driver" yaml:"driver"`
	Host     string         `json:"host" yaml:"host"`         // hostname, or file path for sqlite
	Port     int            `json:"port" yaml:"port"`         // 0 picks the driver default
	Database string         `json:"database" yaml:"database"` // db name, empty for sqlite
	Username string         `json:"username" yaml:"username"`
	SSLMode  string         `json:"sslMode" yaml:"ssl_mode"`
}

// DocumentConnection holds the metadata for connecting to the document store.
type DocumentConnection struct {
	URI      string `json:"uri" yaml:"uri"`
	Database string `json:"database" yaml:"database"`
}
