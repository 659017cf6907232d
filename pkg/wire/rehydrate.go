package wire

import (
	"encoding/json"
	"fmt"
	"time"
)

// Rehydrate converts a decoded JSON value into a Value tree. Tagged mappings
// become Date or File values; everything else keeps its shape. It never fails:
// unparseable dates become invalid Date values and unknown Go types are
// rendered as strings.
func Rehydrate(v any) Value {
	switch t := v.(type) {
	case nil:
		return Null()
	case Value:
		return t
	case bool:
		return Bool(t)
	case string:
		return String(t)
	case float64:
		return Number(t)
	case float32:
		return Number(float64(t))
	case int:
		return Number(float64(t))
	case int8:
		return Number(float64(t))
	case int16:
		return Number(float64(t))
	case int32:
		return Number(float64(t))
	case int64:
		return Number(float64(t))
	case uint:
		return Number(float64(t))
	case uint8:
		return Number(float64(t))
	case uint16:
		return Number(float64(t))
	case uint32:
		return Number(float64(t))
	case uint64:
		return Number(float64(t))
	case json.Number:
		if f, err := t.Float64(); err == nil {
			return Number(f)
		}
		return String(t.String())
	case []any:
		items := make([]Value, len(t))
		for i, item := range t {
			items[i] = Rehydrate(item)
		}
		return Array(items...)
	case []string:
		items := make([]Value, len(t))
		for i, item := range t {
			items[i] = String(item)
		}
		return Array(items...)
	case map[string]any:
		return rehydrateMap(t)
	case map[string]string:
		m := make(map[string]Value, len(t))
		for k, item := range t {
			m[k] = String(item)
		}
		return Object(m)
	default:
		return String(fmt.Sprint(t))
	}
}

// RehydrateParams rehydrates every entry of a payload mapping.
func RehydrateParams(params map[string]any) map[string]Value {
	out := make(map[string]Value, len(params))
	for k, v := range params {
		out[k] = Rehydrate(v)
	}
	return out
}

func rehydrateMap(m map[string]any) Value {
	tag, _ := m[TypeField].(string)
	switch tag {
	case TypeDate:
		return rehydrateDate(m)
	case TypeFile:
		return rehydrateFile(m)
	default:
		// Unknown or missing tags stay plain mappings.
		return Object(RehydrateParams(m))
	}
}

func rehydrateDate(m map[string]any) Value {
	iso, _ := m["iso"].(string)
	d := Date{ISO: iso}
	if t, ok := parseISO(iso); ok {
		d.Time = t
		d.Valid = true
	}
	for k, v := range m {
		if k == TypeField || k == "iso" {
			continue
		}
		if d.Extra == nil {
			d.Extra = make(map[string]Value)
		}
		d.Extra[k] = Rehydrate(v)
	}
	return DateValue(d)
}

// parseISO accepts full timestamps and date-only strings, which denote
// midnight UTC.
func parseISO(iso string) (time.Time, bool) {
	for _, layout := range []string{time.RFC3339Nano, time.DateOnly} {
		if t, err := time.Parse(layout, iso); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

func rehydrateFile(m map[string]any) Value {
	name, _ := m["name"].(string)
	url, _ := m["url"].(string)
	return FileValue(File{Name: name, URL: url})
}
