package service_test

import (
	"context"
	"path/filepath"
	"slices"
	"sort"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"sqlnosql/internal/dbclient"
	"sqlnosql/internal/domain"
	"sqlnosql/internal/etl"
	"sqlnosql/internal/service"
)

// memDocuments is an in-memory document store shared across opens.
type memDocuments struct {
	mu     sync.Mutex
	name   string
	colls  map[string][]domain.Record
	opens  int
	closes int
}

func newMemDocuments() *memDocuments {
	return &memDocuments{name: "shop", colls: map[string][]domain.Record{}}
}

func (m *memDocuments) DatabaseName() string { return m.name }

func (m *memDocuments) ListCollections(context.Context) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	names := make([]string, 0, len(m.colls))
	for n := range m.colls {
		names = append(names, n)
	}
	sort.Strings(names)
	return names, nil
}

func (m *memDocuments) Find(_ context.Context, coll string, limit int) (etl.RecordStream, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	docs := m.colls[coll]
	if limit > 0 && limit < len(docs) {
		docs = docs[:limit]
	}
	return etl.NewSliceStream(nil, docs), nil
}

func (m *memDocuments) InsertMany(_ context.Context, coll string, docs []domain.Record) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.colls[coll] = append(m.colls[coll], docs...)
	return len(docs), nil
}

func (m *memDocuments) CollectionExists(_ context.Context, name string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.colls[name]
	return ok, nil
}

func (m *memDocuments) Drop(_ context.Context, name string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.colls, name)
	return nil
}

func (m *memDocuments) Close() error {
	m.mu.Lock()
	m.closes++
	m.mu.Unlock()
	return nil
}

// counts reports how often the store was opened and closed.
func (m *memDocuments) counts() (opens, closes int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.opens, m.closes
}

func (m *memDocuments) docs(name string) []domain.Record {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.colls[name]
}

// harness wires a MigrationService to a SQLite file and memDocuments.
type harness struct {
	svc     *service.MigrationService
	docs    *memDocuments
	sqlPath string
	dir     string
}

func newHarness(t *testing.T, emitter service.EventEmitter, opts service.Options) *harness {
	t.Helper()
	dir := t.TempDir()
	h := &harness{docs: newMemDocuments(), sqlPath: filepath.Join(dir, "source.db"), dir: dir}
	if opts.OutputDir == "" {
		opts.OutputDir = filepath.Join(dir, "out")
	}
	opts.Openers.Document = func(context.Context, domain.DocumentConnection, string) (etl.DocumentAdapter, error) {
		h.docs.mu.Lock()
		h.docs.opens++
		h.docs.mu.Unlock()
		return h.docs, nil
	}
	conns := service.Connections{
		SQL:   domain.DatabaseConnection{Driver: domain.DatabaseDriverSQLite, Host: h.sqlPath},
		Mongo: domain.DocumentConnection{URI: "mongodb://localhost", Database: "shop"},
	}
	h.svc = service.NewMigrationService(conns, emitter, opts)
	return h
}

// seed writes rows into the source SQLite file.
func (h *harness) seed(t *testing.T, table string, rows ...domain.Record) {
	t.Helper()
	seedFile(t, h.sqlPath, table, rows...)
}

func seedFile(t *testing.T, path, table string, rows ...domain.Record) {
	t.Helper()
	tab, err := dbclient.NewTabular(context.Background(),
		domain.DatabaseConnection{Driver: domain.DatabaseDriverSQLite, Host: path}, "")
	require.NoError(t, err)
	defer tab.Close()
	_, err = tab.BulkWrite(context.Background(), domain.InferSchema(table, rows), rows, etl.WriteAppend)
	require.NoError(t, err)
}

func readTable(t *testing.T, path, table string) []domain.Record {
	t.Helper()
	tab, err := dbclient.NewTabular(context.Background(),
		domain.DatabaseConnection{Driver: domain.DatabaseDriverSQLite, Host: path}, "")
	require.NoError(t, err)
	defer tab.Close()
	names, err := tab.ListEntities(context.Background())
	require.NoError(t, err)
	if !slices.Contains(names, table) {
		return nil
	}
	s, err := tab.Query(context.Background(), tab.SelectAll(table))
	require.NoError(t, err)
	rows, err := etl.Collect(s)
	require.NoError(t, err)
	return rows
}

func user(id int64, name string) domain.Record {
	return domain.NewRecord(domain.F("id", domain.Int(id)), domain.F("name", domain.String(name)))
}

// decisionSink captures decision requests published through the emitter.
type decisionSink struct {
	service.MockEmitter
	ch chan etl.PendingDecision
}

func newDecisionSink() *decisionSink {
	return &decisionSink{ch: make(chan etl.PendingDecision, 4)}
}

func (d *decisionSink) Emit(ctx context.Context, event string, data any) {
	d.MockEmitter.Emit(ctx, event, data)
	if p, ok := data.(etl.PendingDecision); ok && event == service.EventDecisionRequired {
		d.ch <- p
	}
}
