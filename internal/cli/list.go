package cli

import (
	"fmt"
	"strings"
	"text/tabwriter"

	"github.com/goccy/go-json"
	"github.com/spf13/cobra"

	"sqlnosql/internal/domain"
	"sqlnosql/internal/service"
)

var listFlags struct {
	preview string
	query   string
	from    string
	limit   int
	asJSON  bool
}

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List tables and collections, or preview one source",
	Long: `List the tables of the relational database and the collections of
the MongoDB database. With --preview (or --query) the first rows of one
source are printed instead.`,
	Args: cobra.NoArgs,
	RunE: runList,
}

func init() {
	rootCmd.AddCommand(listCmd)
	fs := listCmd.Flags()
	fs.StringVar(&listFlags.preview, "preview", "", "table or collection to preview")
	fs.StringVar(&listFlags.query, "query", "", "SELECT statement to preview (sql only)")
	fs.StringVar(&listFlags.from, "from", "sql", "side to preview: sql or mongo")
	fs.IntVar(&listFlags.limit, "limit", 10, "preview row limit")
	fs.BoolVar(&listFlags.asJSON, "json", false, "print JSON")
}

// sourceDirection maps the --from side to the direction it is read in.
func sourceDirection(from string) (domain.Direction, error) {
	switch from {
	case "sql":
		return domain.TabularToDocument, nil
	case "mongo":
		return domain.DocumentToTabular, nil
	}
	return "", fmt.Errorf("--from must be sql or mongo, got %q", from)
}

func runList(cmd *cobra.Command, _ []string) error {
	_, svc, err := newService(nil, service.Options{})
	if err != nil {
		return err
	}
	defer closeService(svc)
	ctx, cancel := signalContext(cmd)
	defer cancel()
	out := cmd.OutOrStdout()

	if listFlags.preview == "" && listFlags.query == "" {
		l, err := svc.List(ctx)
		if err != nil {
			return err
		}
		if listFlags.asJSON {
			return writeJSON(out, l)
		}
		fmt.Fprintln(out, "Tables:")
		for _, t := range l.Tables {
			fmt.Fprintf(out, "  %s\n", t)
		}
		fmt.Fprintln(out, "Collections:")
		for _, c := range l.Collections {
			fmt.Fprintf(out, "  %s\n", c)
		}
		return nil
	}

	dir, err := sourceDirection(listFlags.from)
	if err != nil {
		return err
	}
	ref := domain.EntityRef{Name: listFlags.preview, Query: listFlags.query}
	p, err := svc.Preview(ctx, dir, ref, listFlags.limit)
	if err != nil {
		return err
	}
	if listFlags.asJSON {
		return writeJSON(out, p)
	}

	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, strings.Join(p.Columns, "\t"))
	for _, rec := range p.Records {
		cells := make([]string, len(p.Columns))
		for i, col := range p.Columns {
			if v, ok := rec.Get(col); ok {
				cells[i] = v.String()
			}
		}
		fmt.Fprintln(tw, strings.Join(cells, "\t"))
	}
	return tw.Flush()
}

func writeJSON(w interface{ Write([]byte) (int, error) }, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal: %w", err)
	}
	_, err = fmt.Fprintln(w, string(data))
	return err
}
