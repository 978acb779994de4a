package etl

import (
	"bytes"
	"encoding/base64"
	"fmt"
	"math"
	"time"

	"github.com/goccy/go-json"

	"sqlnosql/internal/domain"
)

// ── Canonical text serialization ───────────────────────────
// Lists and maps that a flat target cannot hold natively are stored as
// JSON text. Map keys are sorted, so equal values always encode to the
// same string. Timestamps become RFC 3339 strings and bytes become base64,
// which DecodeCanonical hands back as strings.

// EncodeCanonical renders v as canonical JSON text.
func EncodeCanonical(v domain.Value) (string, error) {
	native, err := toJSONNative(v, "")
	if err != nil {
		return "", err
	}
	data, err := json.Marshal(native)
	if err != nil {
		return "", fmt.Errorf("encode canonical: %w", err)
	}
	return string(data), nil
}

// DecodeCanonical parses canonical text back into a Value.
// Integral numbers decode as Int64, everything else numeric as Float64.
func DecodeCanonical(s string) (domain.Value, error) {
	dec := json.NewDecoder(bytes.NewReader([]byte(s)))
	dec.UseNumber()
	var raw any
	if err := dec.Decode(&raw); err != nil {
		return domain.Null(), fmt.Errorf("decode canonical: %w", err)
	}
	return fromJSONNative(raw), nil
}

func toJSONNative(v domain.Value, path string) (any, error) {
	switch v.Kind() {
	case domain.KindNull:
		return nil, nil
	case domain.KindBool:
		return v.AsBool(), nil
	case domain.KindInt:
		return v.AsInt(), nil
	case domain.KindFloat:
		f := v.AsFloat()
		if math.IsNaN(f) || math.IsInf(f, 0) {
			return nil, domain.SerializationError("", path, domain.KindFloat)
		}
		return f, nil
	case domain.KindString:
		return v.AsString(), nil
	case domain.KindTimestamp:
		return v.AsTime().UTC().Format(time.RFC3339Nano), nil
	case domain.KindBytes:
		return base64.StdEncoding.EncodeToString(v.AsBytes()), nil
	case domain.KindList:
		items := v.AsList()
		out := make([]any, len(items))
		for i, item := range items {
			n, err := toJSONNative(item, fmt.Sprintf("%s[%d]", path, i))
			if err != nil {
				return nil, err
			}
			out[i] = n
		}
		return out, nil
	case domain.KindMap:
		m := v.AsMap()
		out := make(map[string]any, m.Len())
		for _, f := range m.Fields {
			n, err := toJSONNative(f.Value, joinPath(path, f.Name, "."))
			if err != nil {
				return nil, err
			}
			out[f.Name] = n
		}
		return out, nil
	}
	return nil, domain.SerializationError("", path, v.Kind())
}

func fromJSONNative(raw any) domain.Value {
	switch x := raw.(type) {
	case nil:
		return domain.Null()
	case bool:
		return domain.Bool(x)
	case json.Number:
		if i, err := x.Int64(); err == nil {
			return domain.Int(i)
		}
		f, _ := x.Float64()
		return domain.Float(f)
	case float64:
		return domain.Float(x)
	case string:
		return domain.String(x)
	case []any:
		items := make([]domain.Value, len(x))
		for i, item := range x {
			items[i] = fromJSONNative(item)
		}
		return domain.List(items...)
	case map[string]any:
		var r domain.Record
		for _, k := range sortedKeys(x) {
			r.Set(k, fromJSONNative(x[k]))
		}
		return domain.Map(r)
	}
	return domain.String(fmt.Sprint(raw))
}

func joinPath(prefix, name, sep string) string {
	if prefix == "" {
		return name
	}
	return prefix + sep + name
}
