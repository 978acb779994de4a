package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"

	"sqlnosql/internal/dbclient"
	"sqlnosql/internal/domain"
	"sqlnosql/internal/etl"
	"sqlnosql/internal/logx"
)

// ─────────────────────────────────────────────────────────────
// Migration Service — runs conversions off the caller's goroutine
// ─────────────────────────────────────────────────────────────

// Connections holds both stores' settings and resolved passwords.
type Connections struct {
	SQL           domain.DatabaseConnection
	SQLPassword   string
	Mongo         domain.DocumentConnection
	MongoPassword string
}

// Openers create adapters. The defaults are dbclient.NewTabular and
// dbclient.NewDocument.
type Openers struct {
	Tabular  func(ctx context.Context, conn domain.DatabaseConnection, password string) (etl.TabularAdapter, error)
	Document func(ctx context.Context, conn domain.DocumentConnection, password string) (etl.DocumentAdapter, error)
}

// Options tune a MigrationService.
type Options struct {
	// OutputDir receives embedded-store targets and exports.
	OutputDir string
	// ConfirmTimeout bounds every interactive decision; 0 waits forever.
	ConfirmTimeout time.Duration
	// Confirmer overrides the interactive queue, e.g. for unattended runs.
	Confirmer etl.Confirmer
	Openers   Openers
}

// RequestKind selects what a Request runs.
type RequestKind string

const (
	KindConvert RequestKind = "convert"
	KindBatch   RequestKind = "batch"
)

// Request describes one migration invocation.
type Request struct {
	Kind RequestKind `json:"kind"`
	// Job is used by KindConvert.
	Job domain.ConversionJob `json:"job,omitempty"`
	// Direction, Policy and IsolateFailures are used by KindBatch.
	Direction       domain.Direction       `json:"direction,omitempty"`
	Policy          domain.CollisionPolicy `json:"policy,omitempty"`
	IsolateFailures bool                   `json:"isolateFailures,omitempty"`
}

// RunResult is delivered once the worker finishes.
type RunResult struct {
	Convert *domain.ConversionResult `json:"convert,omitempty"`
	Batch   *domain.BatchResult      `json:"batch,omitempty"`
	Err     error                    `json:"-"`
	Error   string                   `json:"error,omitempty"`
}

// Run is a handle on a migration executing in the background.
type Run struct {
	ID      string
	Request Request

	done   chan struct{}
	result RunResult
}

// Done is closed when the run reaches a terminal state.
func (r *Run) Done() <-chan struct{} { return r.done }

// Result is valid after Done is closed.
func (r *Run) Result() RunResult { return r.result }

// Wait blocks until the run finishes or ctx ends.
func (r *Run) Wait(ctx context.Context) (RunResult, error) {
	select {
	case <-r.done:
		return r.result, r.result.Err
	case <-ctx.Done():
		return RunResult{}, ctx.Err()
	}
}

// ProgressEvent is emitted as EventProgress.
type ProgressEvent struct {
	RunID   string  `json:"runId"`
	Percent float64 `json:"percent"`
}

// CompletedEvent is emitted as EventCompleted.
type CompletedEvent struct {
	RunID  string    `json:"runId"`
	Result RunResult `json:"result"`
}

// MigrationService owns the session's adapters and runs one migration
// per adapter pair at a time, each on its own goroutine. The adapters are
// connected on first use and shared until Close.
type MigrationService struct {
	conns     Connections
	emitter   EventEmitter
	queue     *etl.ConfirmationQueue
	confirmer etl.Confirmer
	open      Openers
	outputDir string
	guard     runGuard

	mu   sync.Mutex
	tab  etl.TabularAdapter
	docs etl.DocumentAdapter
}

func NewMigrationService(conns Connections, emitter EventEmitter, opts Options) *MigrationService {
	if emitter == nil {
		emitter = NopEmitter{}
	}
	s := &MigrationService{
		conns:     conns,
		emitter:   emitter,
		open:      opts.Openers,
		outputDir: opts.OutputDir,
	}
	if s.outputDir == "" {
		s.outputDir = "."
	}
	if s.open.Tabular == nil {
		s.open.Tabular = dbclient.NewTabular
	}
	if s.open.Document == nil {
		s.open.Document = dbclient.NewDocument
	}

	s.queue = etl.NewConfirmationQueue(func(p etl.PendingDecision) {
		s.emitter.Emit(context.Background(), EventDecisionRequired, p)
	})
	s.queue.SetTimeout(opts.ConfirmTimeout)
	s.confirmer = opts.Confirmer
	if s.confirmer == nil {
		s.confirmer = s.queue
	}
	return s
}

// Resolve answers a pending decision.
func (s *MigrationService) Resolve(id string, d etl.Decision) error {
	return s.queue.Resolve(id, d)
}

// PendingDecisions lists decisions waiting for an answer.
func (s *MigrationService) PendingDecisions() []etl.PendingDecision {
	return s.queue.Pending()
}

// OutputDir is where embedded targets and exports are written.
func (s *MigrationService) OutputDir() string { return s.outputDir }

// EmbeddedTargetPath is the file a document→embedded conversion writes:
// <name>_from_mongo.db inside dir.
func EmbeddedTargetPath(dir, name string) string {
	return filepath.Join(dir, name+"_from_mongo.db")
}

func (s *MigrationService) pairKey() string {
	c := s.conns
	return fmt.Sprintf("%s://%s:%d/%s|%s/%s",
		c.SQL.Driver, c.SQL.Host, c.SQL.Port, c.SQL.Database, c.Mongo.URI, c.Mongo.Database)
}

// Start launches req on a worker goroutine and returns immediately.
func (s *MigrationService) Start(ctx context.Context, req Request) (*Run, error) {
	if err := validateRequest(req); err != nil {
		return nil, err
	}
	key := s.pairKey()
	if !s.guard.TryLock(key) {
		return nil, ErrAlreadyRunning
	}

	run := &Run{ID: uuid.New().String(), Request: req, done: make(chan struct{})}
	go func() {
		defer close(run.done)
		defer s.guard.Unlock(key)

		res := s.execute(ctx, run)
		if res.Err != nil {
			res.Error = res.Err.Error()
			logx.Error(ctx, "migration failed", logx.Component("service"), logx.RunID(run.ID), logx.Err(res.Err))
		}
		run.result = res
		s.emitter.Emit(ctx, EventCompleted, CompletedEvent{RunID: run.ID, Result: res})
	}()
	return run, nil
}

// Run starts req and waits for it.
func (s *MigrationService) Run(ctx context.Context, req Request) (RunResult, error) {
	run, err := s.Start(ctx, req)
	if err != nil {
		return RunResult{}, err
	}
	<-run.Done()
	return run.Result(), run.Result().Err
}

// WaitRunning blocks until every run finishes or ctx is cancelled.
func (s *MigrationService) WaitRunning(ctx context.Context) { s.guard.WaitAll(ctx) }

func validateRequest(req Request) error {
	switch req.Kind {
	case KindConvert:
		return req.Job.Validate()
	case KindBatch:
		if req.Direction != domain.TabularToDocument && req.Direction != domain.DocumentToTabular {
			return fmt.Errorf("invalid direction %q", req.Direction)
		}
		return nil
	}
	return fmt.Errorf("unknown request kind %q", req.Kind)
}

func (s *MigrationService) execute(ctx context.Context, run *Run) RunResult {
	req := run.Request
	dir := req.Direction
	if req.Kind == KindConvert {
		dir = req.Job.Direction
	}
	logx.Info(ctx, "migration started", logx.Component("service"), logx.RunID(run.ID),
		slog.String("kind", string(req.Kind)), slog.String("direction", string(dir)))

	docs, err := s.documents(ctx)
	if err != nil {
		return RunResult{Err: err}
	}

	// Document→embedded runs write a file of their own instead of the
	// session's tabular store.
	var tab etl.TabularAdapter
	embeddedTarget := ""
	if dir == domain.DocumentToTabular && s.conns.SQL.Driver.Embedded() {
		name := req.Job.Source.Name
		if req.Kind == KindBatch {
			name = documentDatabase(docs, s.conns.Mongo)
		}
		embeddedTarget = EmbeddedTargetPath(s.outputDir, name)
		if err := os.MkdirAll(s.outputDir, 0o755); err != nil {
			return RunResult{Err: fmt.Errorf("create output dir: %w", err)}
		}
		conn := s.conns.SQL
		conn.Host = embeddedTarget
		tab, err = s.open.Tabular(ctx, conn, s.conns.SQLPassword)
		if err != nil {
			return RunResult{Err: err}
		}
		defer tab.Close()
	} else {
		tab, err = s.tabular(ctx)
		if err != nil {
			return RunResult{Err: err}
		}
	}

	engine := &etl.Engine{
		Tabular:    tab,
		Documents:  docs,
		Transcoder: etl.NewTranscoder(),
		Resolver:   &etl.Resolver{Confirmer: s.confirmer},
		Progress: etl.ProgressFunc(func(p float64) {
			s.emitter.Emit(ctx, EventProgress, ProgressEvent{RunID: run.ID, Percent: p})
		}),
	}
	if embeddedTarget != "" && req.Kind == KindBatch {
		// A whole-database overwrite replaces the file rather than
		// leaving unrelated tables behind.
		engine.BeforeOverwriteAll = func(ctx context.Context) error {
			if err := os.Remove(embeddedTarget); err != nil && !errors.Is(err, os.ErrNotExist) {
				return domain.WriteError(embeddedTarget, fmt.Errorf("remove existing file: %w", err))
			}
			logx.Info(ctx, "existing file removed", logx.Component("service"), logx.Target(embeddedTarget))
			return nil
		}
	}

	switch req.Kind {
	case KindConvert:
		res, err := engine.Convert(ctx, req.Job)
		return RunResult{Convert: &res, Err: err}
	default:
		job, err := engine.PlanBatch(ctx, req.Direction, req.Policy)
		if err != nil {
			return RunResult{Err: err}
		}
		job.IsolateFailures = req.IsolateFailures
		res, err := engine.RunBatch(ctx, job)
		logx.Info(ctx, "batch finished", logx.Component("service"), logx.RunID(run.ID),
			slog.Int("converted", res.Converted), slog.Int("skipped", res.Skipped), slog.Int("failed", res.Failed))
		return RunResult{Batch: &res, Err: err}
	}
}

// documentDatabase names the document database for file naming.
func documentDatabase(docs etl.DocumentAdapter, conn domain.DocumentConnection) string {
	if named, ok := docs.(interface{ DatabaseName() string }); ok && named.DatabaseName() != "" {
		return named.DatabaseName()
	}
	if conn.Database != "" {
		return conn.Database
	}
	return "mongo"
}

// ── Read-only operations ───────────────────────────────────

// Listing names the entities on both sides.
type Listing struct {
	Tables      []string `json:"tables"`
	Collections []string `json:"collections"`
}

// List enumerates tables and collections.
func (s *MigrationService) List(ctx context.Context) (*Listing, error) {
	tab, docs, err := s.adapters(ctx)
	if err != nil {
		return nil, err
	}

	tables, err := tab.ListEntities(ctx)
	if err != nil {
		return nil, err
	}
	colls, err := docs.ListCollections(ctx)
	if err != nil {
		return nil, err
	}
	return &Listing{Tables: tables, Collections: colls}, nil
}

// PreviewResult is the first rows of a source.
type PreviewResult struct {
	Columns []string        `json:"columns"`
	Records []domain.Record `json:"records"`
}

// Preview reads up to limit records from the source side of dir.
func (s *MigrationService) Preview(ctx context.Context, dir domain.Direction, ref domain.EntityRef, limit int) (*PreviewResult, error) {
	tab, docs, err := s.adapters(ctx)
	if err != nil {
		return nil, err
	}

	engine := &etl.Engine{Tabular: tab, Documents: docs}
	records, cols, err := engine.Preview(ctx, dir, ref, limit)
	if err != nil {
		return nil, err
	}
	return &PreviewResult{Columns: cols, Records: records}, nil
}

// Export writes the source side of dir to <output>/<label>.<format>. An
// empty source returns an empty path and writes nothing.
func (s *MigrationService) Export(ctx context.Context, dir domain.Direction, ref domain.EntityRef, format etl.ExportFormat) (string, int, error) {
	key := s.pairKey()
	if !s.guard.TryLock(key) {
		return "", 0, ErrAlreadyRunning
	}
	defer s.guard.Unlock(key)

	tab, docs, err := s.adapters(ctx)
	if err != nil {
		return "", 0, err
	}

	path := filepath.Join(s.outputDir, etl.Sanitize(ref.Label())+"."+string(format))
	engine := &etl.Engine{Tabular: tab, Documents: docs, Transcoder: etl.NewTranscoder()}
	n, err := engine.Export(ctx, dir, ref, path, format)
	if err != nil || n == 0 {
		return "", n, err
	}
	return path, n, nil
}

// ── Session adapters ───────────────────────────────────────

func (s *MigrationService) tabular(ctx context.Context) (etl.TabularAdapter, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.tab == nil {
		tab, err := s.open.Tabular(ctx, s.conns.SQL, s.conns.SQLPassword)
		if err != nil {
			return nil, err
		}
		s.tab = tab
	}
	return s.tab, nil
}

func (s *MigrationService) documents(ctx context.Context) (etl.DocumentAdapter, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.docs == nil {
		docs, err := s.open.Document(ctx, s.conns.Mongo, s.conns.MongoPassword)
		if err != nil {
			return nil, err
		}
		s.docs = docs
	}
	return s.docs, nil
}

func (s *MigrationService) adapters(ctx context.Context) (etl.TabularAdapter, etl.DocumentAdapter, error) {
	tab, err := s.tabular(ctx)
	if err != nil {
		return nil, nil, err
	}
	docs, err := s.documents(ctx)
	if err != nil {
		return nil, nil, err
	}
	return tab, docs, nil
}

// Close disconnects the session adapters. Runs still in flight keep
// using them, so call WaitRunning first. A later call reconnects.
func (s *MigrationService) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	var errs []error
	if s.tab != nil {
		errs = append(errs, s.tab.Close())
		s.tab = nil
	}
	if s.docs != nil {
		errs = append(errs, s.docs.Close())
		s.docs = nil
	}
	return errors.Join(errs...)
}
