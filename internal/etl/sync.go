package etl

import (
	"context"
	"errors"
	"fmt"

	"sqlnosql/internal/domain"
	"sqlnosql/internal/logx"
)

// ── Progress ───────────────────────────────────────────────

// ProgressSink receives completion percentages in [0, 100].
type ProgressSink interface {
	Report(percent float64)
}

// ProgressFunc adapts a function to ProgressSink.
type ProgressFunc func(percent float64)

func (f ProgressFunc) Report(percent float64) { f(percent) }

// progressTracker forwards only non-decreasing values.
type progressTracker struct {
	sink     ProgressSink
	last     float64
	reported bool
}

func (p *progressTracker) report(pct float64) {
	if p.sink == nil {
		return
	}
	if pct > 100 {
		pct = 100
	}
	if pct < p.last || (pct == p.last && p.reported) {
		return
	}
	p.last, p.reported = pct, true
	p.sink.Report(pct)
}

// ── Engine ─────────────────────────────────────────────────
// Orchestrates: adapter read → transcode → collision resolve → adapter write.
// Entities are converted strictly one after another.

// Engine runs conversions between one tabular and one document adapter.
type Engine struct {
	Tabular    TabularAdapter
	Documents  DocumentAdapter
	Transcoder *Transcoder
	Resolver   *Resolver
	Progress   ProgressSink

	// BeforeOverwriteAll runs once when a batch settles on overwrite_all,
	// before any entity is written.
	BeforeOverwriteAll func(ctx context.Context) error
}

func (e *Engine) transcoder() *Transcoder {
	if e.Transcoder == nil {
		return NewTranscoder()
	}
	return e.Transcoder
}

func (e *Engine) resolver() *Resolver {
	if e.Resolver == nil {
		return &Resolver{}
	}
	return e.Resolver
}

// Convert runs a single-entity conversion.
func (e *Engine) Convert(ctx context.Context, job domain.ConversionJob) (domain.ConversionResult, error) {
	if job.Direction == domain.DocumentToTabular {
		job.Target = Sanitize(job.Target)
	}
	res := domain.ConversionResult{Source: job.Source.Label(), Target: job.Target}
	if err := job.Validate(); err != nil {
		res.Fail(err)
		return res, err
	}
	p := &progressTracker{sink: e.Progress}
	p.report(0)

	records, err := e.read(ctx, job.Direction, job.Source)
	if err != nil {
		res.Fail(err)
		return res, err
	}
	p.report(25)

	if len(records) == 0 {
		res.Status = domain.StatusEmpty
		logx.Warn(ctx, "source is empty, nothing converted",
			logx.Component("engine"), logx.Entity(res.Source))
		p.report(100)
		return res, nil
	}

	tc, err := e.transcode(job.Direction, job.Target, records)
	if err != nil {
		res.Fail(err)
		return res, err
	}
	res.SkippedEmpty = tc.SkippedEmpty
	if len(tc.Records) == 0 {
		res.Status = domain.StatusEmpty
		p.report(100)
		return res, nil
	}
	p.report(50)

	exists, err := e.exists(ctx, job.Direction, job.Target)
	if err != nil {
		res.Fail(err)
		return res, err
	}
	action, err := e.resolver().ResolveSingle(ctx, job, exists)
	if err != nil {
		res.Fail(err)
		return res, err
	}
	switch action {
	case ActionSkip:
		res.Status = domain.StatusSkipped
		p.report(100)
		return res, nil
	case ActionAbort:
		res.Status = domain.StatusAborted
		logx.Info(ctx, "conversion declined", logx.Component("engine"), logx.Target(job.Target))
		p.report(100)
		return res, nil
	}
	p.report(75)

	if err := ctx.Err(); err != nil {
		res.Fail(err)
		return res, err
	}
	n, err := e.write(ctx, job.Direction, job.Target, tc, action)
	if err != nil {
		res.Fail(err)
		return res, err
	}
	res.Status = domain.StatusConverted
	res.Written = n
	logx.Info(ctx, "entity converted",
		logx.Component("engine"), logx.Entity(res.Source), logx.Target(res.Target), logx.Rows(n))
	p.report(100)
	return res, nil
}

// PlanBatch enumerates every source entity in adapter order. Targets of a
// document→tabular batch are sanitized table names.
func (e *Engine) PlanBatch(ctx context.Context, dir domain.Direction, policy domain.CollisionPolicy) (domain.BatchJob, error) {
	job := domain.BatchJob{Direction: dir, Policy: policy}

	switch dir {
	case domain.TabularToDocument:
		names, err := e.Tabular.ListEntities(ctx)
		if err != nil {
			return job, classify(err, domain.QueryError, "", dir)
		}
		for _, n := range names {
			job.Pairs = append(job.Pairs, domain.EntityPair{Source: n, Target: n})
		}
	case domain.DocumentToTabular:
		names, err := e.Documents.ListCollections(ctx)
		if err != nil {
			return job, classify(err, domain.QueryError, "", dir)
		}
		targets, err := SanitizeAll("", names)
		if err != nil {
			return job, domain.WithContext(err, "", dir)
		}
		for i, n := range names {
			job.Pairs = append(job.Pairs, domain.EntityPair{Source: n, Target: targets[i]})
		}
	default:
		return job, fmt.Errorf("invalid direction %q", dir)
	}
	return job, nil
}

// RunBatch converts every pair of job. The existing-target snapshot is
// taken once up front and the strategy is asked at most once. Under
// PolicyAsk the question is only put when some target already exists;
// with no collisions every pair is written without asking. The first
// failure halts the batch unless job.IsolateFailures is set; either way
// the partial result is returned.
func (e *Engine) RunBatch(ctx context.Context, job domain.BatchJob) (domain.BatchResult, error) {
	var out domain.BatchResult
	p := &progressTracker{sink: e.Progress}
	p.report(0)

	existing, err := e.snapshot(ctx, job.Direction)
	if err != nil {
		return out, err
	}
	var colliding []string
	for _, pair := range job.Pairs {
		if existing[pair.Target] {
			colliding = append(colliding, pair.Target)
		}
	}

	strategy := StrategyOverwriteAll
	settled := job.Policy == domain.PolicyOverwrite
	if len(colliding) > 0 || job.Policy != domain.PolicyAsk {
		strategy, err = e.resolver().ResolveStrategy(ctx, job, colliding)
		if err != nil {
			return out, err
		}
		settled = settled || (len(colliding) > 0 && strategy == StrategyOverwriteAll)
	}
	if settled && e.BeforeOverwriteAll != nil {
		if err := e.BeforeOverwriteAll(ctx); err != nil {
			return out, err
		}
	}

	total := len(job.Pairs)
	for i, pair := range job.Pairs {
		if err := ctx.Err(); err != nil {
			return out, err
		}

		res := e.convertPair(ctx, job.Direction, pair, ActionFor(strategy, existing[pair.Target]))
		out.Results = append(out.Results, res)
		switch res.Status {
		case domain.StatusConverted:
			out.Converted++
		case domain.StatusSkipped:
			out.Skipped++
		case domain.StatusFailed:
			out.Failed++
			if !job.IsolateFailures {
				return out, res.Err
			}
			logx.Error(ctx, "entity failed, continuing",
				logx.Component("engine"), logx.Entity(pair.Source), logx.Err(res.Err))
		}
		p.report(float64(i+1) / float64(total) * 100)
	}
	p.report(100)
	return out, nil
}

// convertPair runs one batch entity. Failures are recorded on the result.
func (e *Engine) convertPair(ctx context.Context, dir domain.Direction, pair domain.EntityPair, action Action) domain.ConversionResult {
	res := domain.ConversionResult{Source: pair.Source, Target: pair.Target}
	if action == ActionSkip {
		res.Status = domain.StatusSkipped
		logx.Info(ctx, "target exists, skipped", logx.Component("engine"), logx.Target(pair.Target))
		return res
	}

	records, err := e.read(ctx, dir, domain.EntityRef{Name: pair.Source})
	if err != nil {
		res.Fail(err)
		return res
	}
	if len(records) == 0 {
		res.Status = domain.StatusEmpty
		logx.Warn(ctx, "source is empty, nothing converted", logx.Component("engine"), logx.Entity(pair.Source))
		return res
	}

	tc, err := e.transcode(dir, pair.Target, records)
	if err != nil {
		res.Fail(err)
		return res
	}
	res.SkippedEmpty = tc.SkippedEmpty
	if len(tc.Records) == 0 {
		res.Status = domain.StatusEmpty
		return res
	}

	if err := ctx.Err(); err != nil {
		res.Fail(err)
		return res
	}
	n, err := e.write(ctx, dir, pair.Target, tc, action)
	if err != nil {
		res.Fail(err)
		return res
	}
	res.Status = domain.StatusConverted
	res.Written = n
	logx.Info(ctx, "entity converted",
		logx.Component("engine"), logx.Entity(pair.Source), logx.Target(pair.Target), logx.Rows(n))
	return res
}

// Preview reads at most limit records from the source side of dir.
func (e *Engine) Preview(ctx context.Context, dir domain.Direction, ref domain.EntityRef, limit int) ([]domain.Record, []string, error) {
	var (
		s   RecordStream
		err error
	)
	switch dir {
	case domain.TabularToDocument:
		s, err = e.Tabular.Query(ctx, e.sourceQuery(ref))
	case domain.DocumentToTabular:
		s, err = e.Documents.Find(ctx, ref.Name, limit)
	default:
		return nil, nil, fmt.Errorf("invalid direction %q", dir)
	}
	if err != nil {
		return nil, nil, classify(err, domain.QueryError, ref.Label(), dir)
	}
	defer s.Close()

	var out []domain.Record
	for (limit <= 0 || len(out) < limit) && s.Next() {
		out = append(out, s.Record())
	}
	if err := s.Err(); err != nil {
		return out, s.Columns(), classify(err, domain.QueryError, ref.Label(), dir)
	}
	return out, s.Columns(), nil
}

// ── steps ──────────────────────────────────────────────────

func (e *Engine) sourceQuery(ref domain.EntityRef) string {
	if ref.Query != "" {
		return ref.Query
	}
	return e.Tabular.SelectAll(ref.Name)
}

func (e *Engine) read(ctx context.Context, dir domain.Direction, ref domain.EntityRef) ([]domain.Record, error) {
	var (
		s   RecordStream
		err error
	)
	if dir == domain.TabularToDocument {
		s, err = e.Tabular.Query(ctx, e.sourceQuery(ref))
	} else {
		s, err = e.Documents.Find(ctx, ref.Name, 0)
	}
	if err != nil {
		return nil, classify(err, domain.QueryError, ref.Label(), dir)
	}
	records, err := Collect(s)
	if err != nil {
		return nil, classify(err, domain.QueryError, ref.Label(), dir)
	}
	return records, nil
}

func (e *Engine) transcode(dir domain.Direction, target string, records []domain.Record) (*Transcoded, error) {
	if dir == domain.TabularToDocument {
		return e.transcoder().RowsToDocuments(records), nil
	}
	tc, err := e.transcoder().DocumentsToRows(target, records, e.Tabular.Capabilities())
	if err != nil {
		return nil, domain.WithContext(err, target, dir)
	}
	return tc, nil
}

func (e *Engine) exists(ctx context.Context, dir domain.Direction, target string) (bool, error) {
	var (
		ok  bool
		err error
	)
	if dir == domain.TabularToDocument {
		ok, err = e.Documents.CollectionExists(ctx, target)
	} else {
		ok, err = e.Tabular.EntityExists(ctx, target)
	}
	if err != nil {
		return false, classify(err, domain.QueryError, target, dir)
	}
	return ok, nil
}

func (e *Engine) snapshot(ctx context.Context, dir domain.Direction) (map[string]bool, error) {
	var (
		names []string
		err   error
	)
	if dir == domain.TabularToDocument {
		names, err = e.Documents.ListCollections(ctx)
	} else {
		names, err = e.Tabular.ListEntities(ctx)
	}
	if err != nil {
		return nil, classify(err, domain.QueryError, "", dir)
	}
	set := make(map[string]bool, len(names))
	for _, n := range names {
		set[n] = true
	}
	return set, nil
}

func (e *Engine) write(ctx context.Context, dir domain.Direction, target string, tc *Transcoded, action Action) (int, error) {
	var (
		n   int
		err error
	)
	if dir == domain.TabularToDocument {
		if action == ActionOverwrite {
			if err := e.Documents.Drop(ctx, target); err != nil {
				return 0, classify(err, domain.WriteError, target, dir)
			}
		}
		n, err = e.Documents.InsertMany(ctx, target, tc.Records)
	} else {
		mode := WriteAppend
		if action == ActionOverwrite {
			mode = WriteReplace
		}
		n, err = e.Tabular.BulkWrite(ctx, tc.Schema, tc.Records, mode)
	}
	if err != nil {
		return n, classify(err, domain.WriteError, target, dir)
	}
	return n, nil
}

// classify attaches entity and direction to err, wrapping it with kind
// when the adapter returned an unclassified error.
func classify(err error, kind func(string, error) *domain.Error, entity string, dir domain.Direction) error {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	var de *domain.Error
	if errors.As(err, &de) {
		return domain.WithContext(err, entity, dir)
	}
	wrapped := kind(entity, err)
	wrapped.Direction = dir
	return wrapped
}
