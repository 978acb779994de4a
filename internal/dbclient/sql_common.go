package dbclient

import (
	"context"
	"database/sql"
	"fmt"
	"strconv"
	"strings"
	"time"

	"sqlnosql/internal/domain"
	"sqlnosql/internal/etl"
	"sqlnosql/internal/logx"
)

// dialect holds everything that differs between relational engines.
type dialect interface {
	driverName() string
	quoteIdent(name string) string
	// placeholder returns the bind marker for the n-th (1-based) argument.
	placeholder(n int) string
	listTablesQuery() string
	columnType(k domain.Kind) string
	capabilities() etl.Capabilities
	// maxParams caps bind arguments per statement.
	maxParams() int
}

// valueConverter lets a dialect map driver-specific scan results.
type valueConverter interface {
	convert(v any, dbType string) (domain.Value, bool)
}

// sqlAdapter is the shared TabularAdapter for MySQL, Postgres, SQL Server
// and SQLite. Server engines keep one pool in db; the embedded engine
// leaves db nil and opens through dsn on every call.
type sqlAdapter struct {
	d   dialect
	dsn string
	db  *sql.DB
}

// newServerAdapter opens a shared pool and verifies connectivity.
func newServerAdapter(ctx context.Context, d dialect, dsn, database string) (*sqlAdapter, error) {
	db, err := sql.Open(d.driverName(), dsn)
	if err != nil {
		return nil, domain.ConnectionError(database, fmt.Errorf("open %s: %w", d.driverName(), err))
	}
	db.SetMaxOpenConns(5)
	db.SetMaxIdleConns(2)
	db.SetConnMaxLifetime(10 * time.Minute)

	pingCtx, cancel := context.WithTimeout(ctx, connectTimeout)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		db.Close()
		return nil, domain.ConnectionError(database, fmt.Errorf("ping %s: %w", d.driverName(), err))
	}
	logx.Info(ctx, "connected", logx.Component(d.driverName()), logx.Entity(database))
	return &sqlAdapter{d: d, dsn: dsn, db: db}, nil
}

// acquire returns a handle and its release func.
func (a *sqlAdapter) acquire() (*sql.DB, func(), error) {
	if a.db != nil {
		return a.db, func() {}, nil
	}
	db, err := sql.Open(a.d.driverName(), a.dsn)
	if err != nil {
		return nil, nil, domain.ConnectionError("", fmt.Errorf("open %s: %w", a.d.driverName(), err))
	}
	db.SetMaxOpenConns(1)
	return db, func() { db.Close() }, nil
}

func (a *sqlAdapter) Capabilities() etl.Capabilities { return a.d.capabilities() }

func (a *sqlAdapter) SelectAll(entity string) string {
	return "SELECT * FROM " + a.d.quoteIdent(entity)
}

func (a *sqlAdapter) ListEntities(ctx context.Context) ([]string, error) {
	db, release, err := a.acquire()
	if err != nil {
		return nil, err
	}
	defer release()
	return a.listTables(ctx, db)
}

func (a *sqlAdapter) listTables(ctx context.Context, db *sql.DB) ([]string, error) {
	rows, err := db.QueryContext(ctx, a.d.listTablesQuery())
	if err != nil {
		return nil, domain.QueryError("", fmt.Errorf("list tables: %w", err))
	}
	defer rows.Close()

	var names []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, domain.QueryError("", fmt.Errorf("scan table name: %w", err))
		}
		names = append(names, name)
	}
	if err := rows.Err(); err != nil {
		return nil, domain.QueryError("", fmt.Errorf("list tables: %w", err))
	}
	return names, nil
}

func (a *sqlAdapter) EntityExists(ctx context.Context, name string) (bool, error) {
	db, release, err := a.acquire()
	if err != nil {
		return false, err
	}
	defer release()
	return a.exists(ctx, db, name)
}

func (a *sqlAdapter) exists(ctx context.Context, db *sql.DB, name string) (bool, error) {
	names, err := a.listTables(ctx, db)
	if err != nil {
		return false, err
	}
	for _, n := range names {
		if n == name {
			return true, nil
		}
	}
	return false, nil
}

func (a *sqlAdapter) Drop(ctx context.Context, name string) error {
	db, release, err := a.acquire()
	if err != nil {
		return err
	}
	defer release()
	if _, err := db.ExecContext(ctx, "DROP TABLE IF EXISTS "+a.d.quoteIdent(name)); err != nil {
		return domain.WriteError(name, fmt.Errorf("drop: %w", err))
	}
	return nil
}

// Query runs a read and streams the result. The handle is released when
// the stream is closed.
func (a *sqlAdapter) Query(ctx context.Context, query string) (etl.RecordStream, error) {
	db, release, err := a.acquire()
	if err != nil {
		return nil, err
	}
	rows, err := db.QueryContext(ctx, query)
	if err != nil {
		release()
		return nil, domain.QueryError("", fmt.Errorf("query: %w", err))
	}
	cols, err := rows.Columns()
	if err != nil {
		rows.Close()
		release()
		return nil, domain.QueryError("", fmt.Errorf("columns: %w", err))
	}
	types, err := rows.ColumnTypes()
	if err != nil {
		rows.Close()
		release()
		return nil, domain.QueryError("", fmt.Errorf("column types: %w", err))
	}
	dbTypes := make([]string, len(types))
	for i, t := range types {
		dbTypes[i] = strings.ToUpper(t.DatabaseTypeName())
	}
	conv, _ := a.d.(valueConverter)
	return &sqlStream{rows: rows, cols: cols, dbTypes: dbTypes, conv: conv, release: release}, nil
}

// BulkWrite creates the table when needed and inserts rows in one
// transaction. Replace drops an existing table first. A schema without
// columns is inferred from rows.
func (a *sqlAdapter) BulkWrite(ctx context.Context, schema domain.EntitySchema, rows []domain.Record, mode etl.WriteMode) (int, error) {
	if len(schema.Columns) == 0 {
		schema = domain.InferSchema(schema.Name, rows)
	}
	if len(schema.Columns) == 0 {
		return 0, domain.SchemaError(schema.Name, fmt.Errorf("no columns to write"))
	}
	db, release, err := a.acquire()
	if err != nil {
		return 0, err
	}
	defer release()

	exists, err := a.exists(ctx, db, schema.Name)
	if err != nil {
		return 0, err
	}

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return 0, domain.WriteError(schema.Name, fmt.Errorf("begin tx: %w", err))
	}
	defer tx.Rollback()

	table := a.d.quoteIdent(schema.Name)
	if exists && mode == etl.WriteReplace {
		if _, err := tx.ExecContext(ctx, "DROP TABLE "+table); err != nil {
			return 0, domain.WriteError(schema.Name, fmt.Errorf("drop: %w", err))
		}
	}
	if !exists || mode == etl.WriteReplace {
		if _, err := tx.ExecContext(ctx, a.createTable(schema)); err != nil {
			return 0, domain.WriteError(schema.Name, fmt.Errorf("create table: %w", err))
		}
	}

	written, err := a.insertRows(ctx, tx, schema, rows)
	if err != nil {
		return 0, err
	}
	if err := tx.Commit(); err != nil {
		return 0, domain.WriteError(schema.Name, fmt.Errorf("commit: %w", err))
	}
	return written, nil
}

func (a *sqlAdapter) createTable(schema domain.EntitySchema) string {
	defs := make([]string, len(schema.Columns))
	for i, c := range schema.Columns {
		defs[i] = a.d.quoteIdent(c.Name) + " " + a.d.columnType(c.Kind)
	}
	return fmt.Sprintf("CREATE TABLE %s (%s)", a.d.quoteIdent(schema.Name), strings.Join(defs, ", "))
}

// insertRows sends multi-row INSERTs sized to the dialect's bind limit.
func (a *sqlAdapter) insertRows(ctx context.Context, tx *sql.Tx, schema domain.EntitySchema, rows []domain.Record) (int, error) {
	cols := schema.ColumnNames()
	quoted := make([]string, len(cols))
	for i, c := range cols {
		quoted[i] = a.d.quoteIdent(c)
	}
	prefix := fmt.Sprintf("INSERT INTO %s (%s) VALUES ", a.d.quoteIdent(schema.Name), strings.Join(quoted, ", "))

	chunk := a.d.maxParams() / len(cols)
	if chunk < 1 {
		chunk = 1
	}
	caps := a.d.capabilities()

	written := 0
	for start := 0; start < len(rows); start += chunk {
		if err := ctx.Err(); err != nil {
			return written, err
		}
		end := min(start+chunk, len(rows))

		var sb strings.Builder
		sb.WriteString(prefix)
		args := make([]any, 0, (end-start)*len(cols))
		for i, r := range rows[start:end] {
			if i > 0 {
				sb.WriteString(", ")
			}
			sb.WriteByte('(')
			for j, c := range cols {
				if j > 0 {
					sb.WriteString(", ")
				}
				args = append(args, nil)
				sb.WriteString(a.d.placeholder(len(args)))
				v, _ := r.Get(c)
				arg, err := driverArg(v, caps)
				if err != nil {
					return written, domain.SerializationError(schema.Name, c, v.Kind())
				}
				args[len(args)-1] = arg
			}
			sb.WriteByte(')')
		}
		if _, err := tx.ExecContext(ctx, sb.String(), args...); err != nil {
			return written, domain.WriteError(schema.Name, fmt.Errorf("insert: %w", err))
		}
		written += end - start
	}
	return written, nil
}

func (a *sqlAdapter) Close() error {
	if a.db == nil {
		return nil
	}
	return a.db.Close()
}

// driverArg converts a value into a database/sql argument.
func driverArg(v domain.Value, caps etl.Capabilities) (any, error) {
	switch v.Kind() {
	case domain.KindNull:
		return nil, nil
	case domain.KindBool:
		return v.AsBool(), nil
	case domain.KindInt:
		return v.AsInt(), nil
	case domain.KindFloat:
		return v.AsFloat(), nil
	case domain.KindString:
		return v.AsString(), nil
	case domain.KindTimestamp:
		if caps.NativeTimestamp {
			return v.AsTime().UTC(), nil
		}
		return v.AsTime().UTC().Format(time.RFC3339Nano), nil
	case domain.KindBytes:
		if !caps.Bytes {
			return nil, fmt.Errorf("bytes not supported")
		}
		return v.AsBytes(), nil
	}
	return etl.EncodeCanonical(v)
}

// ── Stream ─────────────────────────────────────────────────

type sqlStream struct {
	rows    *sql.Rows
	cols    []string
	dbTypes []string
	conv    valueConverter
	release func()

	cur    domain.Record
	err    error
	closed bool
}

func (s *sqlStream) Columns() []string { return s.cols }

func (s *sqlStream) Next() bool {
	if s.err != nil || s.closed || !s.rows.Next() {
		return false
	}
	values := make([]any, len(s.cols))
	ptrs := make([]any, len(s.cols))
	for i := range values {
		ptrs[i] = &values[i]
	}
	if err := s.rows.Scan(ptrs...); err != nil {
		s.err = domain.QueryError("", fmt.Errorf("scan row: %w", err))
		return false
	}
	rec := domain.Record{Fields: make([]domain.Field, len(s.cols))}
	for i, v := range values {
		rec.Fields[i] = domain.Field{Name: s.cols[i], Value: s.value(v, s.dbTypes[i])}
	}
	s.cur = rec
	return true
}

func (s *sqlStream) value(v any, dbType string) domain.Value {
	if s.conv != nil {
		if out, ok := s.conv.convert(v, dbType); ok {
			return out
		}
	}
	return fromSQL(v, dbType)
}

func (s *sqlStream) Record() domain.Record { return s.cur }

func (s *sqlStream) Err() error {
	if s.err != nil {
		return s.err
	}
	if err := s.rows.Err(); err != nil {
		return domain.QueryError("", fmt.Errorf("iterate: %w", err))
	}
	return nil
}

func (s *sqlStream) Close() error {
	if s.closed {
		return nil
	}
	s.closed = true
	err := s.rows.Close()
	s.release()
	return err
}

// fromSQL maps a scanned driver value into a Value. Drivers that hand back
// text as []byte are told apart from real binary columns by the declared
// column type.
func fromSQL(v any, dbType string) domain.Value {
	switch x := v.(type) {
	case nil:
		return domain.Null()
	case bool:
		return domain.Bool(x)
	case int64:
		return domain.Int(x)
	case int32:
		return domain.Int(int64(x))
	case int:
		return domain.Int(int64(x))
	case float64:
		return domain.Float(x)
	case float32:
		return domain.Float(float64(x))
	case string:
		return domain.String(x)
	case time.Time:
		return domain.Timestamp(x)
	case []byte:
		return bytesValue(x, dbType)
	}
	return domain.String(fmt.Sprint(v))
}

func bytesValue(b []byte, dbType string) domain.Value {
	switch {
	case isBinaryType(dbType):
		out := make([]byte, len(b))
		copy(out, b)
		return domain.Bytes(out)
	case isIntType(dbType):
		if i, err := strconv.ParseInt(string(b), 10, 64); err == nil {
			return domain.Int(i)
		}
	case isFloatType(dbType):
		if f, err := strconv.ParseFloat(string(b), 64); err == nil {
			return domain.Float(f)
		}
	}
	return domain.String(string(b))
}

func isBinaryType(t string) bool {
	return strings.Contains(t, "BLOB") || strings.Contains(t, "BINARY") ||
		t == "BYTEA" || t == "IMAGE"
}

func isIntType(t string) bool {
	switch t {
	case "TINYINT", "SMALLINT", "MEDIUMINT", "INT", "INTEGER", "BIGINT",
		"UNSIGNED TINYINT", "UNSIGNED SMALLINT", "UNSIGNED MEDIUMINT", "UNSIGNED INT", "YEAR":
		return true
	}
	return false
}

func isFloatType(t string) bool {
	switch t {
	case "FLOAT", "DOUBLE", "REAL", "FLOAT4", "FLOAT8":
		return true
	}
	return false
}
