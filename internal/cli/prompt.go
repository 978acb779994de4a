package cli

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strings"
	"sync"

	"sqlnosql/internal/etl"
	"sqlnosql/internal/logx"
	"sqlnosql/internal/service"
)

// prompter is the CLI's EventEmitter. Worker goroutines hand decision
// requests to it; the command goroutine, which owns stdin, answers them
// in wait.
type prompter struct {
	in        *bufio.Reader
	decisions chan etl.PendingDecision

	mu       sync.Mutex
	out      io.Writer
	progress bool // a progress line is open
}

func newPrompter(in io.Reader, out io.Writer) *prompter {
	return &prompter{
		in:        bufio.NewReader(in),
		out:       out,
		decisions: make(chan etl.PendingDecision, 4),
	}
}

func (p *prompter) Emit(_ context.Context, event string, data any) {
	switch event {
	case service.EventDecisionRequired:
		if d, ok := data.(etl.PendingDecision); ok {
			// the queue calls us on its own goroutine, blocking is fine
			p.decisions <- d
		}
	case service.EventProgress:
		if e, ok := data.(service.ProgressEvent); ok {
			p.mu.Lock()
			fmt.Fprintf(p.out, "\rprogress: %3.0f%%", e.Percent)
			p.progress = true
			p.mu.Unlock()
		}
	}
}

// endLine terminates an open progress line.
func (p *prompter) endLine() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.progress {
		fmt.Fprintln(p.out)
		p.progress = false
	}
}

// wait answers decisions for run until it finishes.
func (p *prompter) wait(ctx context.Context, svc *service.MigrationService, run *service.Run) (service.RunResult, error) {
	for {
		select {
		case <-run.Done():
			p.endLine()
			return run.Result(), run.Result().Err
		case d := <-p.decisions:
			p.endLine()
			answer := p.ask(d)
			if err := svc.Resolve(d.ID, answer); err != nil {
				logx.Warn(ctx, "answer not applied", logx.Component("cli"), logx.Entity(d.Entity), logx.Err(err))
			}
		case <-ctx.Done():
			// the worker observes the same context
			<-run.Done()
			p.endLine()
			res := run.Result()
			if res.Err == nil {
				return res, ctx.Err()
			}
			return res, res.Err
		}
	}
}

// ask prints the question and reads one answer. End of input picks the
// non-destructive choice.
func (p *prompter) ask(d etl.PendingDecision) etl.Decision {
	p.mu.Lock()
	switch d.Kind {
	case etl.DecisionKindStrategy:
		fmt.Fprintf(p.out, "%s\n[o]verwrite all, [s]kip existing (default s): ", d.Message)
	default:
		fmt.Fprintf(p.out, "%s\nOverwrite? [y/N]: ", d.Message)
	}
	p.mu.Unlock()

	line, _ := p.in.ReadString('\n')
	return parseAnswer(d.Kind, line)
}

func parseAnswer(kind etl.DecisionKind, line string) etl.Decision {
	answer := strings.ToLower(strings.TrimSpace(line))
	if kind == etl.DecisionKindStrategy {
		switch answer {
		case "o", "overwrite", "overwrite all", "overwrite_all":
			return etl.DecisionOverwriteAll
		}
		return etl.DecisionSkipExisting
	}
	switch answer {
	case "y", "yes":
		return etl.DecisionOverwrite
	}
	return etl.DecisionAbort
}
