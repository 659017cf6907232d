package wire

import "time"

// Encode converts a function result into its wire form. Value trees, times,
// dates and files nested in maps or slices are re-tagged; other values are
// returned untouched and left to encoding/json.
func Encode(v any) any {
	switch t := v.(type) {
	case nil:
		return nil
	case Value:
		return t.Wire()
	case *Value:
		if t == nil {
			return nil
		}
		return t.Wire()
	case time.Time:
		return Time(t).Wire()
	case *time.Time:
		if t == nil {
			return nil
		}
		return Time(*t).Wire()
	case Date:
		return t.wire()
	case *Date:
		if t == nil {
			return nil
		}
		return t.wire()
	case File:
		return t.wire()
	case *File:
		if t == nil {
			return nil
		}
		return t.wire()
	case map[string]Value:
		return wireObject(t)
	case []Value:
		out := make([]any, len(t))
		for i, item := range t {
			out[i] = item.Wire()
		}
		return out
	case map[string]any:
		out := make(map[string]any, len(t))
		for k, item := range t {
			out[k] = Encode(item)
		}
		return out
	case []any:
		out := make([]any, len(t))
		for i, item := range t {
			out[i] = Encode(item)
		}
		return out
	default:
		return v
	}
}
