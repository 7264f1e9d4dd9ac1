package coresync

import (
	"fmt"
	"strconv"
	"strings"
)

// formatToken classifies a declared SQL type into the token used to encode
// a primary-key value into the fingerprint: integer types format as decimal
// digits, text and anything else format verbatim via their default string
// representation. SQLite-style type affinity is used to classify ("INT"
// anywhere in the declared type means integer), which is the same heuristic
// SQLite itself applies when assigning column affinity.
type formatToken int

const (
	tokenInteger formatToken = iota
	tokenVerbatim
)

func classifyDeclaredType(declared string) formatToken {
	if strings.Contains(strings.ToUpper(declared), "INT") {
		return tokenInteger
	}
	return tokenVerbatim
}

// fingerprintSeparator joins per-column tokens. A bare concatenation of
// e.g. ("1","23") and ("12","3") would collide for composite keys; a
// separator keeps fingerprint equality coincident with logical
// primary-key equality while still letting a Delete change item's
// primary-key values be recovered from the change-log's PK column alone,
// since the row itself is gone by the time a delete is extracted.
// Character 0x1F (ASCII unit
// separator) is chosen because it cannot appear in an integer token; a text
// key value that itself contains 0x1F does not decompose back into its
// columns. Both SQLite (char(31)) and Postgres (chr(31))
// expose it as a builtin scalar function, so trigger bodies (installer.go)
// can reproduce the identical encoding in SQL.
const fingerprintSeparator = "\x1f"

// fingerprint deterministically encodes a row's primary-key columns into a
// string. A single-column key encodes as its formatted value alone; a
// composite key's values are joined with fingerprintSeparator, a control
// character, so its fingerprint is not a printable string. Fingerprint equality is only meaningful within one
// table's row set: the change-log scopes rows by TBL, so a collision between
// e.g. integer 12 and text "12" across two different tables is harmless.
func fingerprint(pk []ColumnDescriptor, values map[string]any) (string, error) {
	tokens := make([]string, len(pk))
	for i, col := range pk {
		v, ok := values[col.Name]
		if !ok {
			return "", &ConfigurationError{Table: col.Name, Reason: "primary key column missing from row values"}
		}
		if v == nil {
			return "", &ConfigurationError{Table: col.Name, Reason: "primary key column is NULL"}
		}
		switch classifyDeclaredType(col.DeclaredType) {
		case tokenInteger:
			tokens[i] = strconv.FormatInt(toInt64(v), 10)
		default:
			tokens[i] = fmt.Sprintf("%v", v)
		}
	}
	return strings.Join(tokens, fingerprintSeparator), nil
}

// decomposeFingerprint reverses fingerprint: given the change-log's PK
// string, it recovers a values map containing just the primary-key columns.
// This is how a Delete change item - whose target row no longer exists to
// read values from - still carries enough information for an applier to
// target it: the delete template binds its @pk columns from item.Values.
// Integer-typed columns are parsed back to int64; everything else is
// passed through as the verbatim string segment.
func decomposeFingerprint(pk []ColumnDescriptor, fp string) (map[string]any, error) {
	parts := strings.Split(fp, fingerprintSeparator)
	if len(parts) != len(pk) {
		return nil, &ConfigurationError{Reason: "change-log fingerprint does not match configured primary key column count"}
	}
	values := make(map[string]any, len(pk))
	for i, col := range pk {
		if classifyDeclaredType(col.DeclaredType) == tokenInteger {
			n, err := strconv.ParseInt(parts[i], 10, 64)
			if err != nil {
				return nil, &ConfigurationError{Table: col.Name, Reason: "fingerprint segment is not a valid integer"}
			}
			values[col.Name] = n
		} else {
			values[col.Name] = parts[i]
		}
	}
	return values, nil
}

// toInt64 coerces a driver-returned numeric value to int64 for fingerprint
// formatting. Values already shaped as int64 (the common case for database/sql
// drivers) pass through directly; other numeric kinds are converted.
func toInt64(v any) int64 {
	switch n := v.(type) {
	case int64:
		return n
	case int:
		return int64(n)
	case int32:
		return int64(n)
	case float64:
		return int64(n)
	case []byte:
		var out int64
		fmt.Sscanf(string(n), "%d", &out)
		return out
	case string:
		var out int64
		fmt.Sscanf(n, "%d", &out)
		return out
	default:
		return 0
	}
}
