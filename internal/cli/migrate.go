package cli

import (
	"fmt"
	"io"

	"github.com/goccy/go-json"
	"github.com/spf13/cobra"

	"sqlnosql/internal/domain"
	"sqlnosql/internal/etl"
	"sqlnosql/internal/service"
)

// migrateFlags are shared by the conversion commands.
type migrateFlags struct {
	policy          string
	outputDir       string
	query           string
	target          string
	continueOnError bool
	asJSON          bool
}

func (f *migrateFlags) bindCommon(cmd *cobra.Command) {
	cmd.Flags().StringVar(&f.policy, "policy", "", "collision policy: ask, overwrite or skip (default from config)")
	cmd.Flags().StringVar(&f.outputDir, "output-dir", "", "directory for SQLite targets (default from config)")
	cmd.Flags().BoolVar(&f.asJSON, "json", false, "print the result as JSON")
}

func newConvertCmd(use, short string, dir domain.Direction) *cobra.Command {
	f := &migrateFlags{}
	cmd := &cobra.Command{
		Use:   use,
		Short: short,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runConvert(cmd, dir, args, f)
		},
	}
	f.bindCommon(cmd)
	cmd.Flags().StringVar(&f.target, "target", "", "target name (default derived from the source)")
	if dir == domain.TabularToDocument {
		cmd.Args = cobra.MaximumNArgs(1)
		cmd.Flags().StringVar(&f.query, "query", "", "read from a SELECT statement instead of a table")
	} else {
		cmd.Args = cobra.ExactArgs(1)
	}
	return cmd
}

func newBatchCmd(use, short string, dir domain.Direction) *cobra.Command {
	f := &migrateFlags{}
	cmd := &cobra.Command{
		Use:   use,
		Short: short,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runBatch(cmd, dir, f)
		},
	}
	f.bindCommon(cmd)
	cmd.Flags().BoolVar(&f.continueOnError, "continue-on-error", false, "record a failing entity and carry on with the rest")
	return cmd
}

func init() {
	rootCmd.AddCommand(
		newConvertCmd("sql-to-mongo [TABLE]", "Convert one table or query result into a collection", domain.TabularToDocument),
		newConvertCmd("mongo-to-sql COLLECTION", "Convert one collection into a table", domain.DocumentToTabular),
		newBatchCmd("db-to-mongo", "Convert every table into a collection", domain.TabularToDocument),
		newBatchCmd("mongo-to-db", "Convert every collection into a table", domain.DocumentToTabular),
	)
}

// jobFor builds the single-entity job the arguments describe.
func jobFor(dir domain.Direction, args []string, f *migrateFlags, policy domain.CollisionPolicy) (domain.ConversionJob, error) {
	ref := domain.EntityRef{Query: f.query}
	if len(args) == 1 {
		ref.Name = args[0]
	}
	switch {
	case ref.Name == "" && ref.Query == "":
		return domain.ConversionJob{}, fmt.Errorf("a source name or --query is required")
	case ref.Query != "" && f.target == "":
		return domain.ConversionJob{}, fmt.Errorf("--target is required with --query")
	}
	target := etl.TargetName(dir, f.target, ref.Name)
	return domain.ConversionJob{Direction: dir, Source: ref, Target: target, Policy: policy}, nil
}

func pick(flag, fallback string) string {
	if flag != "" {
		return flag
	}
	return fallback
}

func runConvert(cmd *cobra.Command, dir domain.Direction, args []string, f *migrateFlags) error {
	p := newPrompter(cmd.InOrStdin(), cmd.ErrOrStderr())
	c, svc, err := newService(p, service.Options{OutputDir: f.outputDir})
	if err != nil {
		return err
	}
	defer closeService(svc)
	policy, err := domain.ParsePolicy(pick(f.policy, c.Migration.Policy))
	if err != nil {
		return err
	}
	job, err := jobFor(dir, args, f, policy)
	if err != nil {
		return err
	}

	ctx, cancel := signalContext(cmd)
	defer cancel()
	run, err := svc.Start(ctx, service.Request{Kind: service.KindConvert, Job: job})
	if err != nil {
		return err
	}
	res, err := p.wait(ctx, svc, run)
	if perr := printResult(cmd.OutOrStdout(), res, f.asJSON); perr != nil && err == nil {
		err = perr
	}
	return err
}

func runBatch(cmd *cobra.Command, dir domain.Direction, f *migrateFlags) error {
	p := newPrompter(cmd.InOrStdin(), cmd.ErrOrStderr())
	c, svc, err := newService(p, service.Options{OutputDir: f.outputDir})
	if err != nil {
		return err
	}
	defer closeService(svc)
	policy, err := domain.ParsePolicy(pick(f.policy, c.Migration.Policy))
	if err != nil {
		return err
	}

	ctx, cancel := signalContext(cmd)
	defer cancel()
	run, err := svc.Start(ctx, service.Request{
		Kind:            service.KindBatch,
		Direction:       dir,
		Policy:          policy,
		IsolateFailures: f.continueOnError || c.Migration.ContinueOnError,
	})
	if err != nil {
		return err
	}
	res, err := p.wait(ctx, svc, run)
	if perr := printResult(cmd.OutOrStdout(), res, f.asJSON); perr != nil && err == nil {
		err = perr
	}
	return err
}

// ── Output ─────────────────────────────────────────────────

func printResult(w io.Writer, res service.RunResult, asJSON bool) error {
	if asJSON {
		data, err := json.MarshalIndent(res, "", "  ")
		if err != nil {
			return fmt.Errorf("marshal result: %w", err)
		}
		_, err = fmt.Fprintln(w, string(data))
		return err
	}
	if res.Convert != nil {
		printConversion(w, *res.Convert)
	}
	if b := res.Batch; b != nil {
		for _, r := range b.Results {
			printConversion(w, r)
		}
		fmt.Fprintf(w, "converted %d, skipped %d, failed %d\n", b.Converted, b.Skipped, b.Failed)
	}
	return nil
}

func printConversion(w io.Writer, r domain.ConversionResult) {
	line := fmt.Sprintf("%s -> %s: %s", r.Source, r.Target, r.Status)
	switch {
	case r.Status == domain.StatusConverted && r.SkippedEmpty > 0:
		line += fmt.Sprintf(" (%d written, %d empty skipped)", r.Written, r.SkippedEmpty)
	case r.Status == domain.StatusConverted:
		line += fmt.Sprintf(" (%d written)", r.Written)
	case r.Error != "":
		line += ": " + r.Error
	}
	fmt.Fprintln(w, line)
}
