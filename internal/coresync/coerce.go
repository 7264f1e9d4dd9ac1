package coresync

import (
	"strconv"
	"time"
)

// FieldKind names a target Go representation a column value can be coerced
// to, via an explicit per-column coercion table rather than driver-default
// typing.
type FieldKind int

const (
	FieldUnknown FieldKind = iota
	FieldString
	FieldInt32
	FieldInt64
	FieldBool
	FieldDecimal
	FieldFloat32
	FieldFloat64
	FieldDateTime
	FieldByte
	FieldChar
)

// Decimal is a driver-agnostic decimal representation: the exact textual
// form returned by the store, preserved verbatim rather than rounded
// through float64.
type Decimal string

// RecordSchema maps column name to the Go representation the extractor
// should coerce that column's values into. It is looked up by a table's
// RecordType hint.
type RecordSchema map[string]FieldKind

// coerceRow applies schema to values, returning a new map. Columns absent
// from schema, or whose FieldKind is FieldUnknown/unsupported, pass through
// untouched as the driver's native value. A nil value is always preserved
// as nil regardless of schema, since SQL NULL has no coercion target.
func coerceRow(schema RecordSchema, values map[string]any) map[string]any {
	if schema == nil {
		return values
	}
	out := make(map[string]any, len(values))
	for col, v := range values {
		kind, ok := schema[col]
		if !ok || v == nil {
			out[col] = v
			continue
		}
		out[col] = coerceValue(kind, v)
	}
	return out
}

func coerceValue(kind FieldKind, v any) any {
	switch kind {
	case FieldString:
		if s, ok := asString(v); ok {
			return s
		}
	case FieldInt32:
		if n, ok := asInt64(v); ok {
			return int32(n)
		}
	case FieldInt64:
		if n, ok := asInt64(v); ok {
			return n
		}
	case FieldBool:
		if b, ok := asBool(v); ok {
			return b
		}
	case FieldDecimal:
		if s, ok := asString(v); ok {
			return Decimal(s)
		}
	case FieldFloat32:
		if f, ok := asFloat64(v); ok {
			return float32(f)
		}
	case FieldFloat64:
		if f, ok := asFloat64(v); ok {
			return f
		}
	case FieldDateTime:
		if t, ok := asTime(v); ok {
			return t
		}
	case FieldByte:
		if n, ok := asInt64(v); ok {
			return byte(n)
		}
	case FieldChar:
		if s, ok := asString(v); ok && len(s) > 0 {
			return rune(s[0])
		}
	}
	// Unknown target type or a value shape the coercion couldn't parse:
	// fall through to the driver's native value.
	return v
}

func asString(v any) (string, bool) {
	switch x := v.(type) {
	case string:
		return x, true
	case []byte:
		return string(x), true
	case int64:
		return strconv.FormatInt(x, 10), true
	case float64:
		return strconv.FormatFloat(x, 'f', -1, 64), true
	case bool:
		return strconv.FormatBool(x), true
	case time.Time:
		return x.Format(time.RFC3339), true
	}
	return "", false
}

func asInt64(v any) (int64, bool) {
	switch x := v.(type) {
	case int64:
		return x, true
	case int:
		return int64(x), true
	case int32:
		return int64(x), true
	case float64:
		return int64(x), true
	case bool:
		if x {
			return 1, true
		}
		return 0, true
	case string:
		n, err := strconv.ParseInt(x, 10, 64)
		return n, err == nil
	case []byte:
		n, err := strconv.ParseInt(string(x), 10, 64)
		return n, err == nil
	}
	return 0, false
}

func asFloat64(v any) (float64, bool) {
	switch x := v.(type) {
	case float64:
		return x, true
	case int64:
		return float64(x), true
	case string:
		f, err := strconv.ParseFloat(x, 64)
		return f, err == nil
	case []byte:
		f, err := strconv.ParseFloat(string(x), 64)
		return f, err == nil
	}
	return 0, false
}

func asBool(v any) (bool, bool) {
	switch x := v.(type) {
	case bool:
		return x, true
	case int64:
		return x != 0, true
	case string:
		b, err := strconv.ParseBool(x)
		return b, err == nil
	}
	return false, false
}

func asTime(v any) (time.Time, bool) {
	switch x := v.(type) {
	case time.Time:
		return x, true
	case string:
		if t, err := time.Parse(time.RFC3339, x); err == nil {
			return t, true
		}
		if t, err := time.Parse("2006-01-02 15:04:05", x); err == nil {
			return t, true
		}
	case []byte:
		return asTime(string(x))
	}
	return time.Time{}, false
}
