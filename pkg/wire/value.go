// Package wire converts between wire-safe JSON payloads and typed domain values.
//
// Cloud function parameters arrive as plain JSON. Dates and file references are
// encoded as mappings carrying a "__type" discriminator; Rehydrate turns them
// back into typed values and Encode does the reverse for function results.
package wire

import (
	"encoding/json"
	"time"
)

// Discriminator field and recognized tags.
const (
	TypeField = "__type"
	TypeDate  = "Date"
	TypeFile  = "File"
)

// isoLayout matches the millisecond UTC form used on the wire.
const isoLayout = "2006-01-02T15:04:05.000Z"

// Kind identifies the variant held by a Value.
type Kind uint8

const (
	KindNull Kind = iota
	KindBool
	KindNumber
	KindString
	KindArray
	KindObject
	KindDate
	KindFile
)

func (k Kind) String() string {
	switch k {
	case KindNull:
		return "null"
	case KindBool:
		return "bool"
	case KindNumber:
		return "number"
	case KindString:
		return "string"
	case KindArray:
		return "array"
	case KindObject:
		return "object"
	case KindDate:
		return "date"
	case KindFile:
		return "file"
	default:
		return "unknown"
	}
}

// Date is a rehydrated date tag. Valid is false when the ISO text could not be
// parsed; ISO keeps the original text either way. Extra holds every other
// field of the tag.
type Date struct {
	Time  time.Time
	Valid bool
	ISO   string
	Extra map[string]Value
}

// File is a rehydrated file reference.
type File struct {
	Name string
	URL  string
}

// Value is a typed JSON value tree. The zero Value is null.
type Value struct {
	kind Kind
	b    bool
	num  float64
	str  string
	arr  []Value
	obj  map[string]Value
	date *Date
	file *File
}

func Null() Value                { return Value{} }
func Bool(b bool) Value          { return Value{kind: KindBool, b: b} }
func Number(n float64) Value     { return Value{kind: KindNumber, num: n} }
func String(s string) Value      { return Value{kind: KindString, str: s} }
func Array(items ...Value) Value { return Value{kind: KindArray, arr: items} }

func Object(m map[string]Value) Value {
	if m == nil {
		m = map[string]Value{}
	}
	return Value{kind: KindObject, obj: m}
}

// DateValue wraps d as a Value.
func DateValue(d Date) Value { return Value{kind: KindDate, date: &d} }

// FileValue wraps f as a Value.
func FileValue(f File) Value { return Value{kind: KindFile, file: &f} }

// Time returns a valid Date value for t.
func Time(t time.Time) Value {
	return DateValue(Date{Time: t, Valid: true, ISO: t.UTC().Format(isoLayout)})
}

func (v Value) Kind() Kind { return v.kind }

func (v Value) IsNull() bool { return v.kind == KindNull }

func (v Value) AsBool() (bool, bool) { return v.b, v.kind == KindBool }

func (v Value) AsNumber() (float64, bool) { return v.num, v.kind == KindNumber }

func (v Value) AsString() (string, bool) { return v.str, v.kind == KindString }

func (v Value) AsArray() ([]Value, bool) { return v.arr, v.kind == KindArray }

func (v Value) AsObject() (map[string]Value, bool) { return v.obj, v.kind == KindObject }

func (v Value) AsDate() (*Date, bool) { return v.date, v.kind == KindDate }

func (v Value) AsFile() (*File, bool) { return v.file, v.kind == KindFile }

// Get returns the field key of an object value.
func (v Value) Get(key string) (Value, bool) {
	if v.kind != KindObject {
		return Value{}, false
	}
	f, ok := v.obj[key]
	return f, ok
}

// Wire returns the JSON-shaped form of v, re-tagging dates and files.
func (v Value) Wire() any {
	switch v.kind {
	case KindNull:
		return nil
	case KindBool:
		return v.b
	case KindNumber:
		return v.num
	case KindString:
		return v.str
	case KindArray:
		out := make([]any, len(v.arr))
		for i, item := range v.arr {
			out[i] = item.Wire()
		}
		return out
	case KindObject:
		return wireObject(v.obj)
	case KindDate:
		return v.date.wire()
	case KindFile:
		return v.file.wire()
	}
	return nil
}

// MarshalJSON encodes the wire form of v.
func (v Value) MarshalJSON() ([]byte, error) {
	return json.Marshal(v.Wire())
}

func wireObject(m map[string]Value) map[string]any {
	out := make(map[string]any, len(m))
	for k, item := range m {
		out[k] = item.Wire()
	}
	return out
}

func (d *Date) wire() map[string]any {
	out := make(map[string]any, len(d.Extra)+2)
	for k, item := range d.Extra {
		out[k] = item.Wire()
	}
	out[TypeField] = TypeDate
	if d.Valid {
		out["iso"] = d.Time.UTC().Format(isoLayout)
	} else {
		out["iso"] = d.ISO
	}
	return out
}

func (f *File) wire() map[string]any {
	return map[string]any{
		TypeField: TypeFile,
		"name":    f.Name,
		"url":     f.URL,
	}
}
