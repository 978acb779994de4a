package etl

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

// ── Confirmation ───────────────────────────────────────────
// The worker blocks on a decision while some other goroutine (CLI prompt,
// MCP client, test) supplies the answer. The request is published through
// a handler on its own goroutine, never on the worker.

// DecisionKind tells the answering side which answers are valid.
type DecisionKind string

const (
	DecisionKindOverwrite DecisionKind = "overwrite" // single entity: overwrite | abort
	DecisionKindStrategy  DecisionKind = "strategy"  // batch: overwrite_all | skip_existing
)

// Decision is the caller's answer to a DecisionRequest.
type Decision string

const (
	DecisionOverwrite    Decision = "overwrite"
	DecisionAbort        Decision = "abort"
	DecisionOverwriteAll Decision = "overwrite_all"
	DecisionSkipExisting Decision = "skip_existing"
)

// Valid reports whether d answers a request of kind k.
func (d Decision) Valid(k DecisionKind) bool {
	switch k {
	case DecisionKindOverwrite:
		return d == DecisionOverwrite || d == DecisionAbort
	case DecisionKindStrategy:
		return d == DecisionOverwriteAll || d == DecisionSkipExisting
	}
	return false
}

var (
	ErrDecisionTimeout    = errors.New("decision timed out")
	ErrDecisionNotPending = errors.New("decision is not pending")
	ErrInvalidDecision    = errors.New("decision does not answer this request")
)

// DecisionRequest is what the worker asks.
type DecisionRequest struct {
	Kind    DecisionKind
	Entity  string
	Message string
}

// Confirmer answers decision requests. RequestDecision blocks.
type Confirmer interface {
	RequestDecision(ctx context.Context, req DecisionRequest) (Decision, error)
}

// ConfirmerFunc adapts a function to Confirmer.
type ConfirmerFunc func(ctx context.Context, req DecisionRequest) (Decision, error)

func (f ConfirmerFunc) RequestDecision(ctx context.Context, req DecisionRequest) (Decision, error) {
	return f(ctx, req)
}

// StaticConfirmer answers every request the same way without blocking.
// Overwrite=true answers overwrite / overwrite_all, false answers abort / skip_existing.
type StaticConfirmer struct {
	Overwrite bool
}

func (c StaticConfirmer) RequestDecision(_ context.Context, req DecisionRequest) (Decision, error) {
	switch req.Kind {
	case DecisionKindOverwrite:
		if c.Overwrite {
			return DecisionOverwrite, nil
		}
		return DecisionAbort, nil
	case DecisionKindStrategy:
		if c.Overwrite {
			return DecisionOverwriteAll, nil
		}
		return DecisionSkipExisting, nil
	}
	return "", fmt.Errorf("unknown decision kind %q", req.Kind)
}

// PendingDecision is a published request awaiting Resolve.
type PendingDecision struct {
	ID        string       `json:"id"`
	Kind      DecisionKind `json:"kind"`
	Entity    string       `json:"entity"`
	Message   string       `json:"message"`
	CreatedAt string       `json:"createdAt"`
}

// RequestHandler is notified of every new pending decision.
type RequestHandler func(PendingDecision)

// DefaultConfirmTimeout bounds how long a worker waits for an answer.
const DefaultConfirmTimeout = 5 * time.Minute

type pendingEntry struct {
	info PendingDecision
	ch   chan Decision
}

// ConfirmationQueue is the interactive Confirmer. Each request gets a
// one-shot buffered channel, so Resolve never blocks and a late answer
// is rejected instead of lost.
type ConfirmationQueue struct {
	mu      sync.Mutex
	pending map[string]*pendingEntry
	handler RequestHandler
	timeout time.Duration
}

func NewConfirmationQueue(handler RequestHandler) *ConfirmationQueue {
	return &ConfirmationQueue{
		pending: make(map[string]*pendingEntry),
		handler: handler,
		timeout: DefaultConfirmTimeout,
	}
}

// SetTimeout changes the wait bound; 0 waits until the context ends.
func (q *ConfirmationQueue) SetTimeout(d time.Duration) {
	q.mu.Lock()
	q.timeout = d
	q.mu.Unlock()
}

// RequestDecision publishes req and blocks until it is resolved, the
// timeout passes, or ctx is done.
func (q *ConfirmationQueue) RequestDecision(ctx context.Context, req DecisionRequest) (Decision, error) {
	e := &pendingEntry{
		info: PendingDecision{
			ID:        uuid.New().String(),
			Kind:      req.Kind,
			Entity:    req.Entity,
			Message:   req.Message,
			CreatedAt: time.Now().UTC().Format(time.RFC3339),
		},
		ch: make(chan Decision, 1),
	}

	q.mu.Lock()
	q.pending[e.info.ID] = e
	timeout := q.timeout
	handler := q.handler
	q.mu.Unlock()

	if handler != nil {
		go handler(e.info)
	}

	var expired <-chan time.Time
	if timeout > 0 {
		t := time.NewTimer(timeout)
		defer t.Stop()
		expired = t.C
	}

	select {
	case d := <-e.ch:
		return d, nil
	case <-expired:
		return q.withdraw(e, fmt.Errorf("%w after %s: %s", ErrDecisionTimeout, timeout, req.Entity))
	case <-ctx.Done():
		return q.withdraw(e, ctx.Err())
	}
}

// withdraw removes an unanswered request. If Resolve won the race the
// answer is already buffered and is returned instead of cause.
func (q *ConfirmationQueue) withdraw(e *pendingEntry, cause error) (Decision, error) {
	q.mu.Lock()
	_, still := q.pending[e.info.ID]
	delete(q.pending, e.info.ID)
	q.mu.Unlock()
	if !still {
		return <-e.ch, nil
	}
	return "", cause
}

// Resolve answers a pending request exactly once.
func (q *ConfirmationQueue) Resolve(id string, d Decision) error {
	q.mu.Lock()
	e, ok := q.pending[id]
	if !ok {
		q.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrDecisionNotPending, id)
	}
	if !d.Valid(e.info.Kind) {
		q.mu.Unlock()
		return fmt.Errorf("%w: %q for %s request", ErrInvalidDecision, d, e.info.Kind)
	}
	delete(q.pending, id)
	q.mu.Unlock()

	e.ch <- d
	return nil
}

// Pending lists unanswered requests, oldest first.
func (q *ConfirmationQueue) Pending() []PendingDecision {
	q.mu.Lock()
	out := make([]PendingDecision, 0, len(q.pending))
	for _, e := range q.pending {
		out = append(out, e.info)
	}
	q.mu.Unlock()
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt < out[j].CreatedAt })
	return out
}
