package domain

import (
	"bytes"
	"fmt"
	"math"
	"time"
)

// Kind tags the variant held by a Value.
type Kind uint8

const (
	KindNull Kind = iota
	KindBool
	KindInt
	KindFloat
	KindString
	KindTimestamp
	KindBytes
	KindList
	KindMap
)

var kindNames = [...]string{
	KindNull:      "null",
	KindBool:      "bool",
	KindInt:       "int64",
	KindFloat:     "float64",
	KindString:    "string",
	KindTimestamp: "timestamp",
	KindBytes:     "bytes",
	KindList:      "list",
	KindMap:       "map",
}

func (k Kind) String() string {
	if int(k) < len(kindNames) {
		return kindNames[k]
	}
	return fmt.Sprintf("kind(%d)", uint8(k))
}

// Value is a single datum that can live in either store.
// The zero Value is Null.
type Value struct {
	kind Kind
	b    bool
	i    int64
	f    float64
	s    string
	t    time.Time
	raw  []byte
	list []Value
	m    *Record
}

func Null() Value { return Value{} }
func Bool(b bool) Value { return Value{kind: KindBool, b: b} }
func Int(i int64) Value { return Value{kind: KindInt, i: i} }
func Float(f float64) Value { return Value{kind: KindFloat, f: f} }
func String(s string) Value { return Value{kind: KindString, s: s} }
func Timestamp(t time.Time) Value { return Value{kind: KindTimestamp, t: t} }
func Bytes(b []byte) Value { return Value{kind: KindBytes, raw: b} }

// List builds a list value. A nil slice is an empty list, not Null.
func List(items ...Value) Value {
	if items == nil {
		items = []Value{}
	}
	return Value{kind: KindList, list: items}
}

// Map wraps an ordered record as a nested map value.
func Map(r Record) Value {
	return Value{kind: KindMap, m: &r}
}

func (v Value) Kind() Kind { return v.kind }
func (v Value) IsNull() bool { return v.kind == KindNull }
func (v Value) AsBool() bool { return v.b }
func (v Value) AsInt() int64 { return v.i }
func (v Value) AsFloat() float64 { return v.f }
func (v Value) AsString() string { return v.s }
func (v Value) AsTime() time.Time { return v.t }
func (v Value) AsBytes() []byte { return v.raw }
func (v Value) AsList() []Value { return v.list }

// AsMap returns the nested record of a map value, or an empty record.
func (v Value) AsMap() Record {
	if v.m == nil {
		return Record{}
	}
	return *v.m
}

// Equal reports deep equality. Timestamps compare as instants.
func (v Value) Equal(o Value) bool {
	if v.kind != o.kind {
		return false
	}
	switch v.kind {
	case KindNull:
		return true
	case KindBool:
		return v.b == o.b
	case KindInt:
		return v.i == o.i
	case KindFloat:
		return v.f == o.f || (math.IsNaN(v.f) && math.IsNaN(o.f))
	case KindString:
		return v.s == o.s
	case KindTimestamp:
		return v.t.Equal(o.t)
	case KindBytes:
		return bytes.Equal(v.raw, o.raw)
	case KindList:
		if len(v.list) != len(o.list) {
			return false
		}
		for i := range v.list {
			if !v.list[i].Equal(o.list[i]) {
				return false
			}
		}
		return true
	case KindMap:
		return v.AsMap().Equal(o.AsMap())
	}
	return false
}

// String renders the value for logs and previews.
func (v Value) String() string {
	switch v.kind {
	case KindNull:
		return "null"
	case KindBool:
		return fmt.Sprint(v.b)
	case KindInt:
		return fmt.Sprint(v.i)
	case KindFloat:
		return fmt.Sprint(v.f)
	case KindString:
		return v.s
	case KindTimestamp:
		return v.t.Format(time.RFC3339Nano)
	case KindBytes:
		return fmt.Sprintf("bytes(%d)", len(v.raw))
	case KindList:
		return fmt.Sprint(v.list)
	case KindMap:
		return v.AsMap().String()
	}
	return "?"
}
