package etl

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/xuri/excelize/v2"

	"sqlnosql/internal/domain"
	"sqlnosql/internal/logx"
)

// ── Flat-file export ───────────────────────────────────────
// Either side can be dumped to a flat file. Records go through the
// tabular transcoding path first, so nested documents come out as
// path-joined columns with sanitized headers.

// ExportFormat selects the file writer.
type ExportFormat string

const (
	FormatCSV  ExportFormat = "csv"
	FormatXLSX ExportFormat = "xlsx"
)

// utf8BOM lets spreadsheet tools detect the encoding.
const utf8BOM = "\ufeff"

func ParseExportFormat(s string) (ExportFormat, error) {
	switch ExportFormat(strings.ToLower(s)) {
	case "", FormatCSV:
		return FormatCSV, nil
	case FormatXLSX:
		return FormatXLSX, nil
	}
	return "", fmt.Errorf("unknown export format %q", s)
}

// exportCaps keeps timestamps and bytes as values; the writers render them.
var exportCaps = Capabilities{NativeTimestamp: true, Bytes: true}

// Export reads the source side of dir and writes it to path. An empty
// source writes nothing and returns 0.
func (e *Engine) Export(ctx context.Context, dir domain.Direction, ref domain.EntityRef, path string, format ExportFormat) (int, error) {
	records, err := e.read(ctx, dir, ref)
	if err != nil {
		return 0, err
	}
	if len(records) == 0 {
		logx.Warn(ctx, "source is empty, no file written", logx.Component("export"), logx.Entity(ref.Label()))
		return 0, nil
	}

	tc, err := e.transcoder().DocumentsToRows(ref.Label(), records, exportCaps)
	if err != nil {
		return 0, domain.WithContext(err, ref.Label(), dir)
	}

	if dirName := filepath.Dir(path); dirName != "" {
		if err := os.MkdirAll(dirName, 0o755); err != nil {
			return 0, fmt.Errorf("create export dir: %w", err)
		}
	}
	f, err := os.Create(path)
	if err != nil {
		return 0, fmt.Errorf("create export file: %w", err)
	}

	switch format {
	case FormatXLSX:
		err = WriteXLSX(f, ref.Label(), tc.Schema, tc.Records)
	default:
		err = WriteCSV(f, tc.Schema, tc.Records)
	}
	if cerr := f.Close(); err == nil && cerr != nil {
		err = fmt.Errorf("close export file: %w", cerr)
	}
	if err != nil {
		// A partial file is worse than none.
		os.Remove(path)
		return 0, err
	}
	logx.Info(ctx, "export written",
		logx.Component("export"), logx.Entity(ref.Label()), logx.Rows(len(tc.Records)), logx.Target(path))
	return len(tc.Records), nil
}

// WriteCSV writes a BOM, a header line, and one line per row.
func WriteCSV(w io.Writer, schema domain.EntitySchema, rows []domain.Record) error {
	if _, err := io.WriteString(w, utf8BOM); err != nil {
		return fmt.Errorf("write csv: %w", err)
	}
	cw := csv.NewWriter(w)
	cols := schema.ColumnNames()
	if err := cw.Write(cols); err != nil {
		return fmt.Errorf("write csv header: %w", err)
	}
	line := make([]string, len(cols))
	for _, r := range rows {
		for i, c := range cols {
			v, _ := r.Get(c)
			line[i] = scalarText(v)
		}
		if err := cw.Write(line); err != nil {
			return fmt.Errorf("write csv row: %w", err)
		}
	}
	cw.Flush()
	return cw.Error()
}

// WriteXLSX writes rows to a single-sheet workbook named after the entity.
func WriteXLSX(w io.Writer, sheet string, schema domain.EntitySchema, rows []domain.Record) error {
	f := excelize.NewFile()
	defer f.Close()

	sheet = xlsxSheetName(sheet)
	if err := f.SetSheetName("Sheet1", sheet); err != nil {
		return fmt.Errorf("name sheet: %w", err)
	}
	sw, err := f.NewStreamWriter(sheet)
	if err != nil {
		return fmt.Errorf("open sheet: %w", err)
	}

	cols := schema.ColumnNames()
	header := make([]any, len(cols))
	for i, c := range cols {
		header[i] = c
	}
	if err := sw.SetRow("A1", header); err != nil {
		return fmt.Errorf("write header: %w", err)
	}
	for i, r := range rows {
		cells := make([]any, len(cols))
		for j, c := range cols {
			v, _ := r.Get(c)
			cells[j] = xlsxCell(v)
		}
		cell, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return err
		}
		if err := sw.SetRow(cell, cells); err != nil {
			return fmt.Errorf("write row %d: %w", i+1, err)
		}
	}
	if err := sw.Flush(); err != nil {
		return fmt.Errorf("flush sheet: %w", err)
	}
	if _, err := f.WriteTo(w); err != nil {
		return fmt.Errorf("write xlsx: %w", err)
	}
	return nil
}

func xlsxCell(v domain.Value) any {
	switch v.Kind() {
	case domain.KindNull:
		return nil
	case domain.KindBool:
		return v.AsBool()
	case domain.KindInt:
		return v.AsInt()
	case domain.KindFloat:
		return v.AsFloat()
	case domain.KindTimestamp:
		return v.AsTime().UTC()
	}
	return scalarText(v)
}

// xlsxSheetName trims a name to the 31 runes a sheet allows and drops
// the characters Excel rejects.
func xlsxSheetName(name string) string {
	name = strings.Map(func(r rune) rune {
		if strings.ContainsRune(`[]:*?/\`, r) {
			return -1
		}
		return r
	}, name)
	if r := []rune(name); len(r) > 31 {
		name = string(r[:31])
	}
	if name == "" {
		return "Sheet1"
	}
	return name
}
