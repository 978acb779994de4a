package cli

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"sqlnosql/internal/config"
	"sqlnosql/internal/domain"
	"sqlnosql/internal/etl"
	"sqlnosql/internal/logx"
	"sqlnosql/internal/service"
)

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Run the configured triggers until interrupted",
	Long: `Run every trigger of the config file: cron triggers re-run their
job on schedule and file_watch triggers re-run it when the watched file
is written. Triggers never ask questions, so each job names its policy.
A trigger that fires while the previous run is still active is skipped.`,
	Args: cobra.NoArgs,
	RunE: runWatch,
}

func init() {
	rootCmd.AddCommand(watchCmd)
}

// logEmitter reports service events through the logger.
var logEmitter = service.EmitterFunc(func(ctx context.Context, event string, data any) {
	switch event {
	case service.EventTriggerFired:
		if e, ok := data.(service.TriggerFiredEvent); ok {
			attrs := []slog.Attr{logx.Component("watch"), logx.Entity(e.Trigger)}
			if e.Result.Error != "" {
				attrs = append(attrs, slog.String("error", e.Result.Error))
			}
			if b := e.Result.Batch; b != nil {
				attrs = append(attrs, slog.Int("converted", b.Converted), slog.Int("skipped", b.Skipped), slog.Int("failed", b.Failed))
			}
			if c := e.Result.Convert; c != nil {
				attrs = append(attrs, slog.String("status", string(c.Status)), logx.Rows(c.Written))
			}
			logx.Info(ctx, "trigger completed", attrs...)
		}
	case service.EventProgress:
		if e, ok := data.(service.ProgressEvent); ok {
			logx.Debug(ctx, "progress", logx.RunID(e.RunID), slog.Float64("percent", e.Percent))
		}
	}
})

func runWatch(cmd *cobra.Command, _ []string) error {
	// Policies are mandatory on trigger jobs; the static answer only
	// covers a job that somehow still asks.
	c, svc, err := newService(logEmitter, service.Options{Confirmer: etl.StaticConfirmer{}})
	if err != nil {
		return err
	}
	defer closeService(svc)
	triggers, err := triggersFromConfig(c.Triggers, c.Migration.ContinueOnError)
	if err != nil {
		return err
	}
	if len(triggers) == 0 {
		return fmt.Errorf("no triggers configured in %s", cfgPath)
	}

	ctx, cancel := signalContext(cmd)
	defer cancel()
	ts := service.NewTriggerService(svc, logEmitter)
	if err := ts.Start(ctx, triggers); err != nil {
		return err
	}
	logx.Info(ctx, "watching", logx.Component("watch"), slog.Int("triggers", len(triggers)))
	<-ctx.Done()
	ts.Stop()
	return nil
}

// triggersFromConfig turns trigger sections into service triggers. A job
// without a source converts the whole database.
func triggersFromConfig(cfgs []config.TriggerConfig, isolate bool) ([]service.Trigger, error) {
	out := make([]service.Trigger, 0, len(cfgs))
	for _, tc := range cfgs {
		dir, err := domain.ParseDirection(tc.Job.Direction)
		if err != nil {
			return nil, fmt.Errorf("trigger %q: %w", tc.Name, err)
		}
		policy, err := domain.ParsePolicy(tc.Job.Policy)
		if err != nil {
			return nil, fmt.Errorf("trigger %q: %w", tc.Name, err)
		}
		t := service.Trigger{
			Name: tc.Name,
			Kind: service.TriggerKind(tc.Kind),
			Expr: tc.Expr,
			Path: tc.Path,
		}
		if tc.Job.Source == "" && tc.Job.Query == "" {
			t.Request = service.Request{Kind: service.KindBatch, Direction: dir, Policy: policy, IsolateFailures: isolate}
		} else {
			target := etl.TargetName(dir, tc.Job.Target, tc.Job.Source)
			t.Request = service.Request{Kind: service.KindConvert, Job: domain.ConversionJob{
				Direction: dir,
				Source:    domain.EntityRef{Name: tc.Job.Source, Query: tc.Job.Query},
				Target:    target,
				Policy:    policy,
			}}
		}
		out = append(out, t)
	}
	return out, nil
}
