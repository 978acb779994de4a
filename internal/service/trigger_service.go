package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/robfig/cron/v3"

	"sqlnosql/internal/logx"
)

// ─────────────────────────────────────────────────────────────
// Trigger Service — scheduled and file-triggered re-runs
// ─────────────────────────────────────────────────────────────

// TriggerKind selects what fires a trigger.
type TriggerKind string

const (
	TriggerCron      TriggerKind = "cron"
	TriggerFileWatch TriggerKind = "file_watch"
)

// Trigger re-runs Request when its schedule or watched file fires.
// Every run is a full conversion.
type Trigger struct {
	Name    string
	Kind    TriggerKind
	Expr    string // cron expression
	Path    string // watched file
	Request Request
}

// TriggerFiredEvent is emitted as EventTriggerFired after each run.
type TriggerFiredEvent struct {
	Trigger string    `json:"trigger"`
	Result  RunResult `json:"result"`
}

// Runner executes a request to completion. MigrationService satisfies it.
type Runner interface {
	Run(ctx context.Context, req Request) (RunResult, error)
}

// TriggerService owns the cron scheduler and the file watcher.
type TriggerService struct {
	runner   Runner
	emitter  EventEmitter
	debounce time.Duration

	mu          sync.Mutex
	watchCancel context.CancelFunc
	watcher     *fsnotify.Watcher
	cronSched   *cron.Cron
}

func NewTriggerService(runner Runner, emitter EventEmitter) *TriggerService {
	if emitter == nil {
		emitter = NopEmitter{}
	}
	return &TriggerService{runner: runner, emitter: emitter, debounce: 500 * time.Millisecond}
}

// SetDebounce changes how long file events are coalesced before a run.
func (s *TriggerService) SetDebounce(d time.Duration) { s.debounce = d }

// Start tears down any running schedule and installs triggers.
func (s *TriggerService) Start(ctx context.Context, triggers []Trigger) error {
	s.Stop()
	s.mu.Lock()
	defer s.mu.Unlock()

	// ── Cron ──
	var c *cron.Cron
	for _, t := range triggers {
		if t.Kind != TriggerCron {
			continue
		}
		if c == nil {
			c = cron.New()
		}
		t := t
		if _, err := c.AddFunc(t.Expr, func() { s.fire(ctx, t) }); err != nil {
			return fmt.Errorf("trigger %q: invalid cron expression %q: %w", t.Name, t.Expr, err)
		}
	}
	if c != nil {
		c.Start()
		s.cronSched = c
		logx.Info(ctx, "scheduler started", logx.Component("trigger"), slog.Int("jobs", len(c.Entries())))
	}

	// ── File watchers ──
	pathToTrigger := make(map[string]Trigger)
	for _, t := range triggers {
		if t.Kind != TriggerFileWatch {
			continue
		}
		abs, err := filepath.Abs(t.Path)
		if err != nil {
			return fmt.Errorf("trigger %q: bad path %q: %w", t.Name, t.Path, err)
		}
		pathToTrigger[abs] = t
	}
	if len(pathToTrigger) == 0 {
		return nil
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create watcher: %w", err)
	}
	watched := make(map[string]bool)
	for abs := range pathToTrigger {
		dir := filepath.Dir(abs)
		if watched[dir] {
			continue
		}
		if err := watcher.Add(dir); err != nil {
			watcher.Close()
			return fmt.Errorf("watch dir %q: %w", dir, err)
		}
		watched[dir] = true
	}
	s.watcher = watcher

	watchCtx, cancel := context.WithCancel(ctx)
	s.watchCancel = cancel
	go s.watchLoop(watchCtx, watcher, pathToTrigger)

	logx.Info(ctx, "watching files", logx.Component("trigger"), slog.Int("files", len(pathToTrigger)))
	return nil
}

func (s *TriggerService) watchLoop(ctx context.Context, watcher *fsnotify.Watcher, pathToTrigger map[string]Trigger) {
	timers := make(map[string]*time.Timer)
	defer func() {
		for _, t := range timers {
			t.Stop()
		}
	}()
	for {
		select {
		case <-ctx.Done():
			return
		case event, ok := <-watcher.Events:
			if !ok {
				return
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) {
				continue
			}
			abs, _ := filepath.Abs(event.Name)
			t, ok := pathToTrigger[abs]
			if !ok {
				continue
			}
			if timer, exists := timers[abs]; exists {
				timer.Stop()
			}
			timers[abs] = time.AfterFunc(s.debounce, func() {
				logx.Info(ctx, "file changed", logx.Component("trigger"), logx.Entity(t.Name), logx.Target(abs))
				s.fire(ctx, t)
			})
		case err, ok := <-watcher.Errors:
			if !ok {
				return
			}
			logx.Warn(ctx, "watcher error", logx.Component("trigger"), logx.Err(err))
		}
	}
}

// fire runs one trigger. A run already holding the connection pair is
// skipped, not queued.
func (s *TriggerService) fire(ctx context.Context, t Trigger) {
	if ctx.Err() != nil {
		return
	}
	logx.Info(ctx, "trigger fired", logx.Component("trigger"), logx.Entity(t.Name))
	res, err := s.runner.Run(ctx, t.Request)
	switch {
	case errors.Is(err, ErrAlreadyRunning):
		logx.Warn(ctx, "previous run still active, skipped", logx.Component("trigger"), logx.Entity(t.Name))
		return
	case err != nil:
		logx.Error(ctx, "trigger run failed", logx.Component("trigger"), logx.Entity(t.Name), logx.Err(err))
		if res.Err == nil {
			res.Err = err
			res.Error = err.Error()
		}
	}
	s.emitter.Emit(ctx, EventTriggerFired, TriggerFiredEvent{Trigger: t.Name, Result: res})
}

// Stop tears down the scheduler and watcher.
func (s *TriggerService) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.watchCancel != nil {
		s.watchCancel()
		s.watchCancel = nil
	}
	if s.watcher != nil {
		s.watcher.Close()
		s.watcher = nil
	}
	if s.cronSched != nil {
		<-s.cronSched.Stop().Done()
		s.cronSched = nil
	}
}
