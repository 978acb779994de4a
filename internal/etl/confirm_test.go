package etl_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"sqlnosql/internal/domain"
	"sqlnosql/internal/etl"
)

// ─────────────────────────────────────────────────────────────
// ConfirmationQueue
// ─────────────────────────────────────────────────────────────

func TestConfirmationQueue_Resolve(t *testing.T) {
	published := make(chan etl.PendingDecision, 1)
	q := etl.NewConfirmationQueue(func(p etl.PendingDecision) { published <- p })

	got := make(chan etl.Decision, 1)
	go func() {
		d, err := q.RequestDecision(context.Background(), etl.DecisionRequest{
			Kind: etl.DecisionKindOverwrite, Entity: "orders", Message: "overwrite?",
		})
		assert.NoError(t, err)
		got <- d
	}()

	p := <-published
	assert.Equal(t, "orders", p.Entity)
	assert.Len(t, q.Pending(), 1)
	require.NoError(t, q.Resolve(p.ID, etl.DecisionOverwrite))

	select {
	case d := <-got:
		assert.Equal(t, etl.DecisionOverwrite, d)
	case <-time.After(time.Second):
		t.Fatal("decision not delivered")
	}
	assert.Empty(t, q.Pending())
}

func TestConfirmationQueue_ResolveExactlyOnce(t *testing.T) {
	published := make(chan etl.PendingDecision, 1)
	q := etl.NewConfirmationQueue(func(p etl.PendingDecision) { published <- p })
	go q.RequestDecision(context.Background(), etl.DecisionRequest{Kind: etl.DecisionKindStrategy})

	p := <-published
	require.NoError(t, q.Resolve(p.ID, etl.DecisionSkipExisting))
	err := q.Resolve(p.ID, etl.DecisionOverwriteAll)
	assert.True(t, errors.Is(err, etl.ErrDecisionNotPending))
}

func TestConfirmationQueue_RejectsWrongKind(t *testing.T) {
	published := make(chan etl.PendingDecision, 1)
	q := etl.NewConfirmationQueue(func(p etl.PendingDecision) { published <- p })
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go q.RequestDecision(ctx, etl.DecisionRequest{Kind: etl.DecisionKindOverwrite})

	p := <-published
	err := q.Resolve(p.ID, etl.DecisionOverwriteAll)
	assert.True(t, errors.Is(err, etl.ErrInvalidDecision))
	assert.Len(t, q.Pending(), 1, "a rejected answer leaves the request pending")
}

func TestConfirmationQueue_Timeout(t *testing.T) {
	q := etl.NewConfirmationQueue(nil)
	q.SetTimeout(20 * time.Millisecond)

	_, err := q.RequestDecision(context.Background(), etl.DecisionRequest{Kind: etl.DecisionKindOverwrite, Entity: "x"})
	assert.True(t, errors.Is(err, etl.ErrDecisionTimeout))
	assert.Empty(t, q.Pending())
}

func TestConfirmationQueue_ContextCancel(t *testing.T) {
	q := etl.NewConfirmationQueue(nil)
	q.SetTimeout(0)
	ctx, cancel := context.WithCancel(context.Background())

	var wg sync.WaitGroup
	wg.Add(1)
	var err error
	go func() {
		defer wg.Done()
		_, err = q.RequestDecision(ctx, etl.DecisionRequest{Kind: etl.DecisionKindOverwrite})
	}()
	time.Sleep(10 * time.Millisecond)
	cancel()
	wg.Wait()
	assert.ErrorIs(t, err, context.Canceled)
}

func TestStaticConfirmer(t *testing.T) {
	ctx := context.Background()
	yes := etl.StaticConfirmer{Overwrite: true}
	no := etl.StaticConfirmer{}

	d, err := yes.RequestDecision(ctx, etl.DecisionRequest{Kind: etl.DecisionKindOverwrite})
	require.NoError(t, err)
	assert.Equal(t, etl.DecisionOverwrite, d)
	d, _ = yes.RequestDecision(ctx, etl.DecisionRequest{Kind: etl.DecisionKindStrategy})
	assert.Equal(t, etl.DecisionOverwriteAll, d)
	d, _ = no.RequestDecision(ctx, etl.DecisionRequest{Kind: etl.DecisionKindOverwrite})
	assert.Equal(t, etl.DecisionAbort, d)
	d, _ = no.RequestDecision(ctx, etl.DecisionRequest{Kind: etl.DecisionKindStrategy})
	assert.Equal(t, etl.DecisionSkipExisting, d)
}

// ─────────────────────────────────────────────────────────────
// Resolver
// ─────────────────────────────────────────────────────────────

func TestResolveSingle(t *testing.T) {
	ctx := context.Background()
	job := func(p domain.CollisionPolicy) domain.ConversionJob {
		return domain.ConversionJob{Direction: domain.TabularToDocument, Source: domain.EntityRef{Name: "a"}, Target: "a", Policy: p}
	}

	c := &scriptedConfirmer{}
	r := &etl.Resolver{Confirmer: c}
	for _, p := range []domain.CollisionPolicy{domain.PolicyAsk, domain.PolicyOverwrite, domain.PolicySkip} {
		a, err := r.ResolveSingle(ctx, job(p), false)
		require.NoError(t, err)
		assert.Equal(t, etl.ActionWrite, a, "absent target with %s", p)
	}
	assert.Zero(t, c.count(), "no question when the target is absent")

	a, _ := r.ResolveSingle(ctx, job(domain.PolicyOverwrite), true)
	assert.Equal(t, etl.ActionOverwrite, a)
	a, _ = r.ResolveSingle(ctx, job(domain.PolicySkip), true)
	assert.Equal(t, etl.ActionSkip, a)
	assert.Zero(t, c.count())

	c.answers = []etl.Decision{etl.DecisionAbort, etl.DecisionOverwrite}
	a, _ = r.ResolveSingle(ctx, job(domain.PolicyAsk), true)
	assert.Equal(t, etl.ActionAbort, a)
	a, _ = r.ResolveSingle(ctx, job(domain.PolicyAsk), true)
	assert.Equal(t, etl.ActionOverwrite, a)
	assert.Equal(t, 2, c.count())
}

func TestResolveSingle_InvalidAnswer(t *testing.T) {
	c := &scriptedConfirmer{answers: []etl.Decision{etl.DecisionSkipExisting}}
	r := &etl.Resolver{Confirmer: c}
	job := domain.ConversionJob{Direction: domain.TabularToDocument, Source: domain.EntityRef{Name: "a"}, Target: "a"}
	_, err := r.ResolveSingle(context.Background(), job, true)
	assert.True(t, errors.Is(err, etl.ErrInvalidDecision))
}

func TestResolveStrategy(t *testing.T) {
	ctx := context.Background()
	c := &scriptedConfirmer{answers: []etl.Decision{etl.DecisionSkipExisting}}
	r := &etl.Resolver{Confirmer: c}

	s, err := r.ResolveStrategy(ctx, domain.BatchJob{Policy: domain.PolicyOverwrite}, []string{"a"})
	require.NoError(t, err)
	assert.Equal(t, etl.StrategyOverwriteAll, s)
	s, _ = r.ResolveStrategy(ctx, domain.BatchJob{Policy: domain.PolicySkip}, []string{"a"})
	assert.Equal(t, etl.StrategySkipExisting, s)
	assert.Zero(t, c.count())

	s, err = r.ResolveStrategy(ctx, domain.BatchJob{Policy: domain.PolicyAsk}, []string{"a", "b"})
	require.NoError(t, err)
	assert.Equal(t, etl.StrategySkipExisting, s)
	require.Equal(t, 1, c.count())
	assert.Equal(t, etl.DecisionKindStrategy, c.requests[0].Kind)
	assert.Contains(t, c.requests[0].Message, "2 target(s)")
}

func TestActionFor(t *testing.T) {
	assert.Equal(t, etl.ActionWrite, etl.ActionFor(etl.StrategySkipExisting, false))
	assert.Equal(t, etl.ActionWrite, etl.ActionFor(etl.StrategyOverwriteAll, false))
	assert.Equal(t, etl.ActionSkip, etl.ActionFor(etl.StrategySkipExisting, true))
	assert.Equal(t, etl.ActionOverwrite, etl.ActionFor(etl.StrategyOverwriteAll, true))
}
