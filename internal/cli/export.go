package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"sqlnosql/internal/domain"
	"sqlnosql/internal/etl"
	"sqlnosql/internal/service"
)

var exportFlags struct {
	from      string
	format    string
	query     string
	outputDir string
}

var exportCmd = &cobra.Command{
	Use:   "export [NAME]",
	Short: "Write one table, query or collection to a CSV or XLSX file",
	Long: `Write one source to <output-dir>/<name>.<format>. Documents are
flattened the same way a conversion into a table flattens them. CSV
files start with a UTF-8 byte order mark so spreadsheet tools detect
the encoding. An empty source writes no file.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runExport,
}

func init() {
	rootCmd.AddCommand(exportCmd)
	fs := exportCmd.Flags()
	fs.StringVar(&exportFlags.from, "from", "sql", "side to read: sql or mongo")
	fs.StringVar(&exportFlags.format, "format", "csv", "file format: csv or xlsx")
	fs.StringVar(&exportFlags.query, "query", "", "SELECT statement to export (sql only)")
	fs.StringVar(&exportFlags.outputDir, "output-dir", "", "destination directory (default from config)")
}

func runExport(cmd *cobra.Command, args []string) error {
	dir, err := sourceDirection(exportFlags.from)
	if err != nil {
		return err
	}
	format, err := etl.ParseExportFormat(exportFlags.format)
	if err != nil {
		return err
	}
	ref := domain.EntityRef{Query: exportFlags.query}
	if len(args) == 1 {
		ref.Name = args[0]
	}
	if ref.Name == "" && ref.Query == "" {
		return fmt.Errorf("a source name or --query is required")
	}

	_, svc, err := newService(nil, service.Options{OutputDir: exportFlags.outputDir})
	if err != nil {
		return err
	}
	defer closeService(svc)
	ctx, cancel := signalContext(cmd)
	defer cancel()

	path, n, err := svc.Export(ctx, dir, ref, format)
	if err != nil {
		return err
	}
	if n == 0 {
		fmt.Fprintf(cmd.OutOrStdout(), "%s is empty, nothing written\n", ref.Label())
		return nil
	}
	fmt.Fprintf(cmd.OutOrStdout(), "wrote %d rows to %s\n", n, path)
	return nil
}
