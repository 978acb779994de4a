package cli

import (
	"bytes"
	"context"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"sqlnosql/internal/config"
	"sqlnosql/internal/dbclient"
	"sqlnosql/internal/domain"
	"sqlnosql/internal/etl"
	"sqlnosql/internal/service"
)

func TestParseAnswer(t *testing.T) {
	assert.Equal(t, etl.DecisionOverwrite, parseAnswer(etl.DecisionKindOverwrite, "Y\n"))
	assert.Equal(t, etl.DecisionOverwrite, parseAnswer(etl.DecisionKindOverwrite, " yes "))
	assert.Equal(t, etl.DecisionAbort, parseAnswer(etl.DecisionKindOverwrite, ""))
	assert.Equal(t, etl.DecisionAbort, parseAnswer(etl.DecisionKindOverwrite, "nope"))

	assert.Equal(t, etl.DecisionOverwriteAll, parseAnswer(etl.DecisionKindStrategy, "o"))
	assert.Equal(t, etl.DecisionOverwriteAll, parseAnswer(etl.DecisionKindStrategy, "overwrite_all"))
	assert.Equal(t, etl.DecisionSkipExisting, parseAnswer(etl.DecisionKindStrategy, "\n"))
}

func TestJobFor(t *testing.T) {
	job, err := jobFor(domain.DocumentToTabular, []string{"user-events"}, &migrateFlags{}, domain.PolicySkip)
	require.NoError(t, err)
	assert.Equal(t, "userevents", job.Target)
	assert.Equal(t, domain.PolicySkip, job.Policy)

	job, err = jobFor(domain.DocumentToTabular, []string{"events"}, &migrateFlags{target: "user-events!"}, domain.PolicySkip)
	require.NoError(t, err)
	assert.Equal(t, "userevents", job.Target)

	job, err = jobFor(domain.TabularToDocument, []string{"orders"}, &migrateFlags{}, domain.PolicyAsk)
	require.NoError(t, err)
	assert.Equal(t, "orders", job.Target)

	job, err = jobFor(domain.TabularToDocument, nil, &migrateFlags{query: "SELECT 1", target: "one"}, domain.PolicyAsk)
	require.NoError(t, err)
	assert.Equal(t, "custom_query", job.Source.Label())

	_, err = jobFor(domain.TabularToDocument, nil, &migrateFlags{}, domain.PolicyAsk)
	assert.Error(t, err)
	_, err = jobFor(domain.TabularToDocument, nil, &migrateFlags{query: "SELECT 1"}, domain.PolicyAsk)
	assert.Error(t, err)
}

func TestSourceDirection(t *testing.T) {
	d, err := sourceDirection("mongo")
	require.NoError(t, err)
	assert.Equal(t, domain.DocumentToTabular, d)
	_, err = sourceDirection("kafka")
	assert.Error(t, err)
}

func TestTriggersFromConfig(t *testing.T) {
	triggers, err := triggersFromConfig([]config.TriggerConfig{
		{Name: "all", Kind: "cron", Expr: "@daily", Job: config.JobConfig{Direction: "mongo-to-sql", Policy: "overwrite"}},
		{Name: "one", Kind: "file_watch", Path: "/x.db", Job: config.JobConfig{Direction: "mongo-to-sql", Source: "a-b", Policy: "skip"}},
	}, true)
	require.NoError(t, err)
	require.Len(t, triggers, 2)

	assert.Equal(t, service.TriggerCron, triggers[0].Kind)
	assert.Equal(t, service.KindBatch, triggers[0].Request.Kind)
	assert.True(t, triggers[0].Request.IsolateFailures)
	assert.Equal(t, domain.PolicyOverwrite, triggers[0].Request.Policy)

	assert.Equal(t, service.KindConvert, triggers[1].Request.Kind)
	assert.Equal(t, "ab", triggers[1].Request.Job.Target)
	assert.Equal(t, "/x.db", triggers[1].Path)

	_, err = triggersFromConfig([]config.TriggerConfig{{Name: "bad", Job: config.JobConfig{Direction: "up"}}}, false)
	assert.Error(t, err)
}

func TestPrintResult(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, printResult(&buf, service.RunResult{Batch: &domain.BatchResult{
		Converted: 1, Failed: 1,
		Results: []domain.ConversionResult{
			{Source: "a", Target: "a", Status: domain.StatusConverted, Written: 3, SkippedEmpty: 1},
			{Source: "b", Target: "b", Status: domain.StatusFailed, Error: "write error"},
		},
	}}, false))
	assert.Equal(t, "a -> a: converted (3 written, 1 empty skipped)\n"+
		"b -> b: failed: write error\n"+
		"converted 1, skipped 0, failed 1\n", buf.String())

	buf.Reset()
	require.NoError(t, printResult(&buf, service.RunResult{Convert: &domain.ConversionResult{Source: "x", Target: "y", Status: domain.StatusSkipped}}, true))
	assert.Contains(t, buf.String(), `"status": "skipped"`)
}

// ── Prompt loop ────────────────────────────────────────────

type oneCollection struct{ docs []domain.Record }

func (o *oneCollection) ListCollections(context.Context) ([]string, error) {
	return []string{"users"}, nil
}

func (o *oneCollection) Find(context.Context, string, int) (etl.RecordStream, error) {
	return etl.NewSliceStream(nil, o.docs), nil
}

func (o *oneCollection) InsertMany(_ context.Context, _ string, docs []domain.Record) (int, error) {
	o.docs = append(o.docs, docs...)
	return len(docs), nil
}

func (o *oneCollection) CollectionExists(context.Context, string) (bool, error) { return true, nil }
func (o *oneCollection) Close() error                                           { return nil }

func (o *oneCollection) Drop(context.Context, string) error {
	o.docs = nil
	return nil
}

func promptFixture(t *testing.T, answer string) (*prompter, *service.MigrationService, *oneCollection, *bytes.Buffer) {
	t.Helper()
	conn := domain.DatabaseConnection{Driver: domain.DatabaseDriverSQLite, Host: filepath.Join(t.TempDir(), "src.db")}
	tab, err := dbclient.NewTabular(context.Background(), conn, "")
	require.NoError(t, err)
	rows := []domain.Record{domain.NewRecord(domain.F("id", domain.Int(1)))}
	_, err = tab.BulkWrite(context.Background(), domain.InferSchema("users", rows), rows, etl.WriteAppend)
	require.NoError(t, err)
	tab.Close()

	docs := &oneCollection{docs: []domain.Record{domain.NewRecord(domain.F("id", domain.Int(9)))}}
	var out bytes.Buffer
	p := newPrompter(strings.NewReader(answer), &out)
	svc := service.NewMigrationService(service.Connections{SQL: conn}, p, service.Options{
		ConfirmTimeout: 5 * time.Second,
		Openers: service.Openers{Document: func(context.Context, domain.DocumentConnection, string) (etl.DocumentAdapter, error) {
			return docs, nil
		}},
	})
	return p, svc, docs, &out
}

func TestPrompter_AnswersOverwrite(t *testing.T) {
	p, svc, docs, out := promptFixture(t, "y\n")
	run, err := svc.Start(context.Background(), service.Request{Kind: service.KindConvert, Job: domain.ConversionJob{
		Direction: domain.TabularToDocument, Source: domain.EntityRef{Name: "users"}, Target: "users", Policy: domain.PolicyAsk,
	}})
	require.NoError(t, err)

	res, err := p.wait(context.Background(), svc, run)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusConverted, res.Convert.Status)
	require.Len(t, docs.docs, 1)
	id, _ := docs.docs[0].Get("id")
	assert.Equal(t, int64(1), id.AsInt())
	assert.Contains(t, out.String(), "Overwrite? [y/N]")
	assert.Contains(t, out.String(), "progress: 100%")
}

func TestPrompter_EndOfInputDeclines(t *testing.T) {
	p, svc, docs, _ := promptFixture(t, "")
	run, err := svc.Start(context.Background(), service.Request{Kind: service.KindConvert, Job: domain.ConversionJob{
		Direction: domain.TabularToDocument, Source: domain.EntityRef{Name: "users"}, Target: "users", Policy: domain.PolicyAsk,
	}})
	require.NoError(t, err)

	res, err := p.wait(context.Background(), svc, run)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusAborted, res.Convert.Status)
	id, _ := docs.docs[0].Get("id")
	assert.Equal(t, int64(9), id.AsInt())
}
