package domain

import (
	"bytes"
	"math"
	"strconv"
	"time"

	"github.com/goccy/go-json"
)

// MarshalJSON renders the value in its natural JSON form for display.
// Timestamps use RFC 3339 and bytes are base64. Non-finite floats are
// written as strings.
func (v Value) MarshalJSON() ([]byte, error) {
	switch v.kind {
	case KindBool:
		return json.Marshal(v.b)
	case KindInt:
		return []byte(strconv.FormatInt(v.i, 10)), nil
	case KindFloat:
		if math.IsNaN(v.f) || math.IsInf(v.f, 0) {
			return json.Marshal(strconv.FormatFloat(v.f, 'g', -1, 64))
		}
		return json.Marshal(v.f)
	case KindString:
		return json.Marshal(v.s)
	case KindTimestamp:
		return json.Marshal(v.t.UTC().Format(time.RFC3339Nano))
	case KindBytes:
		return json.Marshal(v.raw)
	case KindList:
		return json.Marshal(v.list)
	case KindMap:
		return v.AsMap().MarshalJSON()
	}
	return []byte("null"), nil
}

// MarshalJSON renders the record as an object in field order.
func (r Record) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, f := range r.Fields {
		if i > 0 {
			buf.WriteByte(',')
		}
		key, err := json.Marshal(f.Name)
		if err != nil {
			return nil, err
		}
		buf.Write(key)
		buf.WriteByte(':')
		val, err := f.Value.MarshalJSON()
		if err != nil {
			return nil, err
		}
		buf.Write(val)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}
