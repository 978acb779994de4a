package etl_test

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"

	"sqlnosql/internal/domain"
	"sqlnosql/internal/etl"
)

// ── In-memory adapters ─────────────────────────────────────

type memTable struct {
	schema domain.EntitySchema
	rows   []domain.Record
}

type fakeTabular struct {
	mu      sync.Mutex
	tables  map[string]*memTable
	queries map[string][]domain.Record
	caps    etl.Capabilities

	failWrite map[string]error
	failList  error
	modes     map[string]etl.WriteMode
}

func newFakeTabular() *fakeTabular {
	return &fakeTabular{
		tables:    map[string]*memTable{},
		queries:   map[string][]domain.Record{},
		failWrite: map[string]error{},
		modes:     map[string]etl.WriteMode{},
	}
}

func (f *fakeTabular) put(name string, rows ...domain.Record) {
	f.tables[name] = &memTable{schema: domain.InferSchema(name, rows), rows: rows}
}

func (f *fakeTabular) rows(name string) []domain.Record {
	f.mu.Lock()
	defer f.mu.Unlock()
	if t, ok := f.tables[name]; ok {
		return t.rows
	}
	return nil
}

func (f *fakeTabular) ListEntities(context.Context) ([]string, error) {
	if f.failList != nil {
		return nil, f.failList
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	names := make([]string, 0, len(f.tables))
	for n := range f.tables {
		names = append(names, n)
	}
	sort.Strings(names)
	return names, nil
}

const selectPrefix = "SELECT * FROM "

func (f *fakeTabular) SelectAll(entity string) string { return selectPrefix + entity }

func (f *fakeTabular) Query(_ context.Context, q string) (etl.RecordStream, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if rows, ok := f.queries[q]; ok {
		return etl.NewSliceStream(nil, rows), nil
	}
	name, ok := strings.CutPrefix(q, selectPrefix)
	if !ok {
		return nil, fmt.Errorf("syntax error near %q", q)
	}
	t, ok := f.tables[name]
	if !ok {
		return nil, fmt.Errorf("no such table: %s", name)
	}
	return etl.NewSliceStream(t.schema.ColumnNames(), t.rows), nil
}

func (f *fakeTabular) BulkWrite(_ context.Context, schema domain.EntitySchema, rows []domain.Record, mode etl.WriteMode) (int, error) {
	if err := f.failWrite[schema.Name]; err != nil {
		return 0, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.modes[schema.Name] = mode
	t, ok := f.tables[schema.Name]
	if !ok || mode == etl.WriteReplace {
		t = &memTable{schema: schema}
		f.tables[schema.Name] = t
	}
	t.rows = append(t.rows, rows...)
	return len(rows), nil
}

func (f *fakeTabular) EntityExists(_ context.Context, name string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	_, ok := f.tables[name]
	return ok, nil
}

func (f *fakeTabular) Drop(_ context.Context, name string) error {
	f.mu.Lock()
	delete(f.tables, name)
	f.mu.Unlock()
	return nil
}

func (f *fakeTabular) Capabilities() etl.Capabilities { return f.caps }
func (f *fakeTabular) Close() error                   { return nil }

type fakeDocuments struct {
	mu    sync.Mutex
	colls map[string][]domain.Record

	failInsert map[string]error
	dropped    []string
}

func newFakeDocuments() *fakeDocuments {
	return &fakeDocuments{colls: map[string][]domain.Record{}, failInsert: map[string]error{}}
}

func (f *fakeDocuments) docs(name string) []domain.Record {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.colls[name]
}

func (f *fakeDocuments) ListCollections(context.Context) ([]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	names := make([]string, 0, len(f.colls))
	for n := range f.colls {
		names = append(names, n)
	}
	sort.Strings(names)
	return names, nil
}

func (f *fakeDocuments) Find(_ context.Context, coll string, limit int) (etl.RecordStream, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	docs := f.colls[coll]
	if limit > 0 && len(docs) > limit {
		docs = docs[:limit]
	}
	return etl.NewSliceStream(nil, docs), nil
}

func (f *fakeDocuments) InsertMany(_ context.Context, coll string, docs []domain.Record) (int, error) {
	if err := f.failInsert[coll]; err != nil {
		return 0, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.colls[coll] = append(f.colls[coll], docs...)
	return len(docs), nil
}

func (f *fakeDocuments) CollectionExists(_ context.Context, name string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	_, ok := f.colls[name]
	return ok, nil
}

func (f *fakeDocuments) Drop(_ context.Context, name string) error {
	f.mu.Lock()
	delete(f.colls, name)
	f.dropped = append(f.dropped, name)
	f.mu.Unlock()
	return nil
}

func (f *fakeDocuments) Close() error { return nil }

// ── Confirmers ─────────────────────────────────────────────

// scriptedConfirmer answers from a fixed list and records every request.
type scriptedConfirmer struct {
	mu       sync.Mutex
	answers  []etl.Decision
	requests []etl.DecisionRequest
}

func (c *scriptedConfirmer) RequestDecision(_ context.Context, req etl.DecisionRequest) (etl.Decision, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.requests = append(c.requests, req)
	if len(c.answers) == 0 {
		return "", errors.New("unexpected decision request")
	}
	d := c.answers[0]
	c.answers = c.answers[1:]
	return d, nil
}

func (c *scriptedConfirmer) count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.requests)
}

// progressLog records every reported percentage.
type progressLog struct {
	mu     sync.Mutex
	values []float64
}

func (p *progressLog) Report(pct float64) {
	p.mu.Lock()
	p.values = append(p.values, pct)
	p.mu.Unlock()
}

func rec(fields ...domain.Field) domain.Record { return domain.NewRecord(fields...) }

var (
	str = domain.String
	num = domain.Int
)
