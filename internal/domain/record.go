package domain

import "strings"

// Field is one named value inside a Record.
type Field struct {
	Name  string
	Value Value
}

// Record is an ordered mapping from field name to Value.
// Names are unique; Set on an existing name replaces in place.
type Record struct {
	Fields []Field
}

// F is shorthand for a Field literal.
func F(name string, v Value) Field { return Field{Name: name, Value: v} }

// NewRecord builds a record from fields; later duplicates overwrite earlier ones.
func NewRecord(fields ...Field) Record {
	var r Record
	for _, f := range fields {
		r.Set(f.Name, f.Value)
	}
	return r
}

// Len returns the number of fields.
func (r Record) Len() int { return len(r.Fields) }

// Get returns the value for name and whether it was present.
func (r Record) Get(name string) (Value, bool) {
	for _, f := range r.Fields {
		if f.Name == name {
			return f.Value, true
		}
	}
	return Value{}, false
}

// Set replaces the value of an existing field or appends a new one.
func (r *Record) Set(name string, v Value) {
	for i := range r.Fields {
		if r.Fields[i].Name == name {
			r.Fields[i].Value = v
			return
		}
	}
	r.Fields = append(r.Fields, Field{Name: name, Value: v})
}

// Names returns field names in order.
func (r Record) Names() []string {
	names := make([]string, len(r.Fields))
	for i, f := range r.Fields {
		names[i] = f.Name
	}
	return names
}

// Equal compares two records field by field, order-insensitive.
func (r Record) Equal(o Record) bool {
	if len(r.Fields) != len(o.Fields) {
		return false
	}
	for _, f := range r.Fields {
		ov, ok := o.Get(f.Name)
		if !ok || !f.Value.Equal(ov) {
			return false
		}
	}
	return true
}

func (r Record) String() string {
	var sb strings.Builder
	sb.WriteByte('{')
	for i, f := range r.Fields {
		if i > 0 {
			sb.WriteString(", ")
		}
		sb.WriteString(f.Name)
		sb.WriteByte(':')
		sb.WriteString(f.Value.String())
	}
	sb.WriteByte('}')
	return sb.String()
}

// Column describes a single tabular column.
type Column struct {
	Name string
	Kind Kind
}

// EntitySchema is the column layout of a tabular entity.
type EntitySchema struct {
	Name    string
	Columns []Column
}

// ColumnNames returns an ordered list of column names.
func (s *EntitySchema) ColumnNames() []string {
	names := make([]string, len(s.Columns))
	for i, c := range s.Columns {
		names[i] = c.Name
	}
	return names
}

// InferSchema derives an EntitySchema from a write batch: columns in
// first-seen order, kind taken from the first non-null value.
func InferSchema(name string, rows []Record) EntitySchema {
	s := EntitySchema{Name: name}
	idx := make(map[string]int)
	for _, row := range rows {
		for _, f := range row.Fields {
			i, ok := idx[f.Name]
			if !ok {
				idx[f.Name] = len(s.Columns)
				s.Columns = append(s.Columns, Column{Name: f.Name, Kind: f.Value.Kind()})
				continue
			}
			if s.Columns[i].Kind == KindNull {
				s.Columns[i].Kind = f.Value.Kind()
			}
		}
	}
	return s
}
