package service

import (
	"context"
	"sync"
)

// ─────────────────────────────────────────────────────────────
// EventEmitter — decouples services from their front end
// ─────────────────────────────────────────────────────────────

// Events emitted by MigrationService and TriggerService.
const (
	EventProgress         = "migration:progress"
	EventDecisionRequired = "migration:decision-required"
	EventCompleted        = "migration:completed"
	EventTriggerFired     = "trigger:fired"
)

// EventEmitter receives service events. The CLI prints them and routes
// decision requests to the prompt loop; the MCP server logs them.
// Emit may be called from worker goroutines.
type EventEmitter interface {
	Emit(ctx context.Context, event string, data any)
}

// EmitterFunc adapts a function to EventEmitter.
type EmitterFunc func(ctx context.Context, event string, data any)

func (f EmitterFunc) Emit(ctx context.Context, event string, data any) { f(ctx, event, data) }

// NopEmitter drops every event.
type NopEmitter struct{}

func (NopEmitter) Emit(context.Context, string, any) {}

// MockEmitter is a test-friendly EventEmitter that records all calls.
type MockEmitter struct {
	mu     sync.Mutex
	Events []EmittedEvent
}

// EmittedEvent holds a single recorded emission for test assertions.
type EmittedEvent struct {
	Event string
	Data  any
}

func (m *MockEmitter) Emit(_ context.Context, event string, data any) {
	m.mu.Lock()
	m.Events = append(m.Events, EmittedEvent{Event: event, Data: data})
	m.mu.Unlock()
}

// Named returns a copy of the recorded events called name.
func (m *MockEmitter) Named(name string) []EmittedEvent {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []EmittedEvent
	for _, e := range m.Events {
		if e.Event == name {
			out = append(out, e)
		}
	}
	return out
}
