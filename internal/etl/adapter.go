package etl

import (
	"context"
	"sort"

	"sqlnosql/internal/domain"
)

// ── Adapters ───────────────────────────────────────────────
// The engine talks to every backend through one of two interfaces.
// Implementations live in internal/dbclient, one per store family.
// Adapters own the mapping from native driver types into domain.Value.

// WriteMode determines how BulkWrite treats an existing entity.
type WriteMode string

const (
	WriteReplace WriteMode = "replace" // drop and recreate, then insert
	WriteAppend  WriteMode = "append"  // create if missing, then insert
)

// Capabilities describes which Value variants a tabular target stores natively.
type Capabilities struct {
	NativeTimestamp bool
	Bytes           bool
}

// RecordStream iterates over records read from an adapter.
// Callers must Close it; Err reports the first iteration failure.
type RecordStream interface {
	Columns() []string
	Next() bool
	Record() domain.Record
	Err() error
	Close() error
}

// TabularAdapter is the contract every relational backend satisfies.
type TabularAdapter interface {
	ListEntities(ctx context.Context) ([]string, error)
	Query(ctx context.Context, query string) (RecordStream, error)
	BulkWrite(ctx context.Context, schema domain.EntitySchema, rows []domain.Record, mode WriteMode) (int, error)
	EntityExists(ctx context.Context, name string) (bool, error)
	Drop(ctx context.Context, name string) error
	Capabilities() Capabilities
	// SelectAll returns the dialect's "SELECT * FROM <quoted entity>".
	SelectAll(entity string) string
	Close() error
}

// DocumentAdapter is the contract the document store satisfies.
type DocumentAdapter interface {
	ListCollections(ctx context.Context) ([]string, error)
	// Find reads documents; limit <= 0 reads the whole collection.
	Find(ctx context.Context, collection string, limit int) (RecordStream, error)
	InsertMany(ctx context.Context, collection string, docs []domain.Record) (int, error)
	CollectionExists(ctx context.Context, name string) (bool, error)
	Drop(ctx context.Context, name string) error
	Close() error
}

// Collect drains a stream into memory and closes it.
func Collect(s RecordStream) ([]domain.Record, error) {
	defer s.Close()
	var out []domain.Record
	for s.Next() {
		out = append(out, s.Record())
	}
	return out, s.Err()
}

// SliceStream is a RecordStream over records already in memory.
type SliceStream struct {
	cols    []string
	records []domain.Record
	pos     int
}

// NewSliceStream wraps records; columns may be nil.
func NewSliceStream(cols []string, records []domain.Record) *SliceStream {
	return &SliceStream{cols: cols, records: records, pos: -1}
}

func (s *SliceStream) Columns() []string { return s.cols }

func (s *SliceStream) Next() bool {
	if s.pos+1 >= len(s.records) {
		return false
	}
	s.pos++
	return true
}

func (s *SliceStream) Record() domain.Record { return s.records[s.pos] }
func (s *SliceStream) Err() error            { return nil }
func (s *SliceStream) Close() error          { return nil }

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
