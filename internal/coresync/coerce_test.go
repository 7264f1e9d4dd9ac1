package coresync

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestCoerceRowPassesThroughNilSchema(t *testing.T) {
	values := map[string]any{"a": int64(1)}
	out := coerceRow(nil, values)
	assert.Equal(t, values["a"], out["a"])
}

func TestCoerceRowPreservesNullRegardlessOfSchema(t *testing.T) {
	schema := RecordSchema{"a": FieldInt64}
	out := coerceRow(schema, map[string]any{"a": nil})
	assert.Nil(t, out["a"])
}

func TestCoerceRowConvertsDeclaredKinds(t *testing.T) {
	schema := RecordSchema{
		"as_str":   FieldString,
		"as_int32": FieldInt32,
		"as_bool":  FieldBool,
		"as_dec":   FieldDecimal,
		"as_f32":   FieldFloat32,
		"as_dt":    FieldDateTime,
	}
	in := map[string]any{
		"as_str":   int64(7),
		"as_int32": float64(9),
		"as_bool":  int64(1),
		"as_dec":   "3.14159",
		"as_f32":   "2.5",
		"as_dt":    "2024-01-15T10:00:00Z",
		"untouched": "x",
	}
	out := coerceRow(schema, in)

	assert.Equal(t, "7", out["as_str"])
	assert.Equal(t, int32(9), out["as_int32"])
	assert.Equal(t, true, out["as_bool"])
	assert.Equal(t, Decimal("3.14159"), out["as_dec"])
	assert.Equal(t, float32(2.5), out["as_f32"])

	dt, ok := out["as_dt"].(time.Time)
	assert.True(t, ok)
	assert.Equal(t, 2024, dt.Year())

	assert.Equal(t, "x", out["untouched"])
}

func TestCoerceValueFallsBackToNativeOnUnparsableInput(t *testing.T) {
	// FieldInt64 requested but the value is a shape asInt64 can't parse.
	out := coerceValue(FieldInt64, struct{}{})
	assert.Equal(t, struct{}{}, out)
}

func TestAsTimeAcceptsSpaceSeparatedFormat(t *testing.T) {
	tm, ok := asTime("2024-01-15 10:00:00")
	assert.True(t, ok)
	assert.Equal(t, 15, tm.Day())
}
