package etl

import (
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"slices"
	"strconv"
	"strings"
	"time"

	"sqlnosql/internal/domain"
)

// ── Transcoder ─────────────────────────────────────────────
// Converts between nested documents and flat rows. All coercion rules
// live here; adapters only translate native driver types to Values.
//
//	Timestamp -> RFC 3339 string (tabular, unless native) / as-is (document)
//	List      -> canonical JSON text (tabular) / as-is (document)
//	Map       -> path-joined columns (tabular) / as-is (document)
//	Bytes     -> as-is when the target accepts bytes

// DefaultSeparator joins nested field paths into column names.
const DefaultSeparator = "_"

// DefaultIDField is the document store's native identifier field.
const DefaultIDField = "_id"

// Transcoder holds the flattening settings for one conversion.
type Transcoder struct {
	Separator string
	IDField   string
}

// NewTranscoder returns a transcoder with the default separator and ID field.
func NewTranscoder() *Transcoder {
	return &Transcoder{Separator: DefaultSeparator, IDField: DefaultIDField}
}

// Transcoded is the output of one conversion pass.
type Transcoded struct {
	Records      []domain.Record
	Schema       domain.EntitySchema // only set for tabular output
	SkippedEmpty int
}

// DocumentsToRows flattens documents into uniform rows for a tabular
// target named entity. Field names pass through Sanitize; two distinct
// source paths landing on the same column is a schema error.
func (t *Transcoder) DocumentsToRows(entity string, docs []domain.Record, caps Capabilities) (*Transcoded, error) {
	out := &Transcoded{}
	origin := make(map[string]string) // sanitized column -> source path key
	var columns []domain.Column
	colIdx := make(map[string]int)

	flat := make([]domain.Record, 0, len(docs))
	for _, doc := range docs {
		var leaves []leaf
		if err := t.flatten(entity, nil, doc, caps, &leaves); err != nil {
			return nil, err
		}
		if len(leaves) == 0 {
			out.SkippedEmpty++
			continue
		}

		row := domain.Record{Fields: make([]domain.Field, 0, len(leaves))}
		inRow := make(map[string]string, len(leaves))
		for _, l := range leaves {
			name := l.name(t.separator())
			col := Sanitize(name)
			if col == "" {
				return nil, domain.SchemaError(entity, fmt.Errorf("field %q sanitizes to an empty column name", l.dotted()))
			}
			key := l.key()
			if prev, ok := inRow[col]; ok {
				return nil, domain.SchemaError(entity, fmt.Errorf("fields %q and %q both map to column %q", prev, l.dotted(), col))
			}
			if prev, ok := origin[col]; ok && prev != key {
				return nil, domain.SchemaError(entity, fmt.Errorf("fields %q and %q both map to column %q", displayKey(prev), l.dotted(), col))
			}
			origin[col] = key
			inRow[col] = l.dotted()
			row.Fields = append(row.Fields, domain.Field{Name: col, Value: l.value})

			k := l.value.Kind()
			i, seen := colIdx[col]
			if !seen {
				colIdx[col] = len(columns)
				columns = append(columns, domain.Column{Name: col, Kind: k})
				continue
			}
			columns[i].Kind = widen(columns[i].Kind, k)
		}
		flat = append(flat, row)
	}

	// Tabular rows are uniform: every row carries every column, in order,
	// coerced to the column's settled kind.
	out.Schema = domain.EntitySchema{Name: entity, Columns: columns}
	out.Records = make([]domain.Record, len(flat))
	for i, r := range flat {
		row := domain.Record{Fields: make([]domain.Field, len(columns))}
		for j, c := range columns {
			v, _ := r.Get(c.Name)
			row.Fields[j] = domain.Field{Name: c.Name, Value: coerceTo(v, c.Kind)}
		}
		out.Records[i] = row
	}
	return out, nil
}

// leaf is one scalar reached while flattening, with the field names
// leading to it.
type leaf struct {
	path  []string
	value domain.Value
}

func (l leaf) name(sep string) string { return strings.Join(l.path, sep) }

func (l leaf) dotted() string { return strings.Join(l.path, ".") }

// key identifies the source path independently of the separator, so
// "a_b" and a.b never compare equal.
func (l leaf) key() string { return strings.Join(l.path, "\x00") }

func displayKey(k string) string { return strings.ReplaceAll(k, "\x00", ".") }

// RowsToDocuments maps each row to one document, field for field.
func (t *Transcoder) RowsToDocuments(rows []domain.Record) *Transcoded {
	out := &Transcoded{Records: make([]domain.Record, 0, len(rows))}
	for _, r := range rows {
		if r.Len() == 0 {
			out.SkippedEmpty++
			continue
		}
		doc := domain.Record{Fields: make([]domain.Field, len(r.Fields))}
		copy(doc.Fields, r.Fields)
		out.Records = append(out.Records, doc)
	}
	return out
}

// flatten appends the leaves of rec below prefix.
func (t *Transcoder) flatten(entity string, prefix []string, rec domain.Record, caps Capabilities, leaves *[]leaf) error {
	for _, f := range rec.Fields {
		path := append(slices.Clip(prefix), f.Name)
		name := strings.Join(path, t.separator())
		v := f.Value

		if len(prefix) == 0 && f.Name == t.IDField {
			*leaves = append(*leaves, leaf{path: path, value: canonicalID(v)})
			continue
		}

		switch v.Kind() {
		case domain.KindMap:
			if err := t.flatten(entity, path, v.AsMap(), caps, leaves); err != nil {
				return err
			}
			continue
		case domain.KindList:
			text, err := EncodeCanonical(v)
			if err != nil {
				return domain.WithContext(rebindField(err, entity, name), entity, domain.DocumentToTabular)
			}
			v = domain.String(text)
		case domain.KindTimestamp:
			if !caps.NativeTimestamp {
				v = domain.String(v.AsTime().Format(time.RFC3339Nano))
			}
		case domain.KindBytes:
			if !caps.Bytes {
				err := domain.SerializationError(entity, name, domain.KindBytes)
				err.Direction = domain.DocumentToTabular
				return err
			}
		}
		*leaves = append(*leaves, leaf{path: path, value: v})
	}
	return nil
}

func (t *Transcoder) separator() string {
	if t.Separator == "" {
		return DefaultSeparator
	}
	return t.Separator
}

// canonicalID renders a native identifier as its string form.
func canonicalID(v domain.Value) domain.Value {
	switch v.Kind() {
	case domain.KindNull, domain.KindString:
		return v
	case domain.KindBytes:
		return domain.String(hex.EncodeToString(v.AsBytes()))
	case domain.KindList, domain.KindMap:
		if text, err := EncodeCanonical(v); err == nil {
			return domain.String(text)
		}
	}
	return domain.String(v.String())
}

// widen settles the declared kind of a column seen with two kinds.
func widen(a, b domain.Kind) domain.Kind {
	switch {
	case a == b, b == domain.KindNull:
		return a
	case a == domain.KindNull:
		return b
	case (a == domain.KindInt && b == domain.KindFloat) || (a == domain.KindFloat && b == domain.KindInt):
		return domain.KindFloat
	}
	return domain.KindString
}

// coerceTo converts v so it fits a column of kind k. Nulls pass through.
func coerceTo(v domain.Value, k domain.Kind) domain.Value {
	if v.IsNull() || v.Kind() == k {
		return v
	}
	switch k {
	case domain.KindFloat:
		if v.Kind() == domain.KindInt {
			return domain.Float(float64(v.AsInt()))
		}
	case domain.KindString:
		return domain.String(scalarText(v))
	}
	return v
}

// scalarText is the plain-text rendering used for CSV cells and mixed columns.
func scalarText(v domain.Value) string {
	switch v.Kind() {
	case domain.KindNull:
		return ""
	case domain.KindFloat:
		return strconv.FormatFloat(v.AsFloat(), 'f', -1, 64)
	case domain.KindTimestamp:
		return v.AsTime().Format(time.RFC3339Nano)
	case domain.KindBytes:
		return base64.StdEncoding.EncodeToString(v.AsBytes())
	case domain.KindList, domain.KindMap:
		text, err := EncodeCanonical(v)
		if err != nil {
			return v.String()
		}
		return text
	}
	return v.String()
}

// rebindField prefixes the field path onto a serialization error raised
// while encoding a nested value.
func rebindField(err error, entity, path string) error {
	if e, ok := err.(*domain.Error); ok && e.Kind == domain.KindSerializationError {
		e.Entity = entity
		e.Err = fmt.Errorf("field %q: %w", path, e.Err)
	}
	return err
}
