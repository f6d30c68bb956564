package dbwrapper

import (
	"fmt"
	"math"
	"strconv"
	"sync"
	"time"

	"github.com/goccy/go-json"
)

// Kind tags the variant held by a Value.
type Kind uint8

const (
	KindNull Kind = iota
	KindInt
	KindFloat
	KindText
	KindBytes
	KindBool
	KindTime
	KindStructured
	KindOther
)

var kindNames = [...]string{"null", "int", "float", "text", "bytes", "bool", "time", "structured", "other"}

func (k Kind) String() string {
	if int(k) < len(kindNames) {
		return kindNames[k]
	}
	return "unknown"
}

// Value is one column value of a Row as returned by the driver.
type Value struct {
	v any
}

// Kind reports which variant the value holds.
func (v Value) Kind() Kind {
	switch v.v.(type) {
	case nil:
		return KindNull
	case int, int8, int16, int32, int64, uint, uint8, uint16, uint32, uint64:
		return KindInt
	case float32, float64:
		return KindFloat
	case string:
		return KindText
	case []byte:
		return KindBytes
	case bool:
		return KindBool
	case time.Time:
		return KindTime
	case map[string]any:
		return KindStructured
	default:
		return KindOther
	}
}

// IsNull reports whether the column was SQL NULL.
func (v Value) IsNull() bool { return v.v == nil }

// Any returns the raw driver value.
func (v Value) Any() any { return v.v }

// Int64 returns integer values. Text holding a base-10 integer is accepted
// since some drivers report NUMERIC columns as text.
func (v Value) Int64() (int64, error) {
	switch x := v.v.(type) {
	case int:
		return int64(x), nil
	case int8:
		return int64(x), nil
	case int16:
		return int64(x), nil
	case int32:
		return int64(x), nil
	case int64:
		return x, nil
	case uint8:
		return int64(x), nil
	case uint16:
		return int64(x), nil
	case uint32:
		return int64(x), nil
	case uint:
		if uint64(x) <= math.MaxInt64 {
			return int64(x), nil
		}
	case uint64:
		if x <= math.MaxInt64 {
			return int64(x), nil
		}
	case string:
		if n, err := strconv.ParseInt(x, 10, 64); err == nil {
			return n, nil
		}
	case []byte:
		if n, err := strconv.ParseInt(string(x), 10, 64); err == nil {
			return n, nil
		}
	}
	return 0, v.mismatch("int")
}

// Float64 returns floating point values; integers are widened.
func (v Value) Float64() (float64, error) {
	switch x := v.v.(type) {
	case float64:
		return x, nil
	case float32:
		return float64(x), nil
	case uint64:
		return float64(x), nil
	case string:
		if f, err := strconv.ParseFloat(x, 64); err == nil {
			return f, nil
		}
	case []byte:
		if f, err := strconv.ParseFloat(string(x), 64); err == nil {
			return f, nil
		}
	}
	if n, err := v.Int64(); err == nil {
		return float64(n), nil
	}
	return 0, v.mismatch("float")
}

// String returns text values; []byte is converted.
func (v Value) String() (string, error) {
	switch x := v.v.(type) {
	case string:
		return x, nil
	case []byte:
		return string(x), nil
	}
	return "", v.mismatch("text")
}

// Bytes returns []byte values; text is converted.
func (v Value) Bytes() ([]byte, error) {
	switch x := v.v.(type) {
	case []byte:
		return x, nil
	case string:
		return []byte(x), nil
	}
	return nil, v.mismatch("bytes")
}

// Bool returns boolean values.
func (v Value) Bool() (bool, error) {
	if b, ok := v.v.(bool); ok {
		return b, nil
	}
	return false, v.mismatch("bool")
}

// Time returns date/time values.
func (v Value) Time() (time.Time, error) {
	if t, ok := v.v.(time.Time); ok {
		return t, nil
	}
	return time.Time{}, v.mismatch("time")
}

func (v Value) mismatch(want string) error {
	return fmt.Errorf("%w: want %s, got %T", ErrTypeMismatch, want, v.v)
}

// Row is one fetched record: column names in result order and their values.
// A Row is read-only; copies share the same underlying data.
type Row struct {
	cols   []string
	vals   map[string]any
	nested *nestedCache
}

// nestedCache keeps rows wrapped from structured values, built on first access.
type nestedCache struct {
	mu   sync.Mutex
	rows map[string]Row
}

// newRow builds a Row from parallel column/value slices. When a column name
// repeats, the last value wins.
func newRow(cols []string, vals []any) Row {
	r := Row{
		cols:   make([]string, 0, len(cols)),
		vals:   make(map[string]any, len(cols)),
		nested: &nestedCache{},
	}
	for i, c := range cols {
		if _, dup := r.vals[c]; !dup {
			r.cols = append(r.cols, c)
		}
		r.vals[c] = vals[i]
	}
	return r
}

// NewRow builds a Row from a map. Columns are ordered as given in cols;
// keys of m missing from cols are ignored.
func NewRow(cols []string, m map[string]any) Row {
	vals := make([]any, len(cols))
	for i, c := range cols {
		vals[i] = m[c]
	}
	return newRow(cols, vals)
}

// Columns returns the column names in result order.
func (r Row) Columns() []string {
	return append([]string(nil), r.cols...)
}

// Len returns the number of columns.
func (r Row) Len() int { return len(r.cols) }

// Get returns the value of a column and whether the column is present.
func (r Row) Get(name string) (Value, bool) {
	v, ok := r.vals[name]
	return Value{v: v}, ok
}

// Field returns the value of a column, or ErrFieldNotFound when the column
// was not part of the result.
func (r Row) Field(name string) (Value, error) {
	v, ok := r.vals[name]
	if !ok {
		return Value{}, fmt.Errorf("%w: %q", ErrFieldNotFound, name)
	}
	return Value{v: v}, nil
}

// Nested wraps a structured column (a JSON object as text/bytes, or a map
// value from the driver) as a Row. The wrapped Row is cached.
func (r Row) Nested(name string) (Row, error) {
	v, err := r.Field(name)
	if err != nil {
		return Row{}, err
	}

	r.nested.mu.Lock()
	defer r.nested.mu.Unlock()
	if n, ok := r.nested.rows[name]; ok {
		return n, nil
	}

	var m map[string]any
	switch x := v.v.(type) {
	case map[string]any:
		m = x
	case []byte:
		if err := json.Unmarshal(x, &m); err != nil {
			return Row{}, fmt.Errorf("%w: %q is not a JSON object: %v", ErrTypeMismatch, name, err)
		}
	case string:
		if err := json.Unmarshal([]byte(x), &m); err != nil {
			return Row{}, fmt.Errorf("%w: %q is not a JSON object: %v", ErrTypeMismatch, name, err)
		}
	default:
		return Row{}, fmt.Errorf("%w: %q holds %T, not a structured value", ErrTypeMismatch, name, v.v)
	}
	if m == nil {
		return Row{}, fmt.Errorf("%w: %q is null", ErrTypeMismatch, name)
	}

	n := NewRow(sortedKeys(m), m)
	if r.nested.rows == nil {
		r.nested.rows = make(map[string]Row)
	}
	r.nested.rows[name] = n
	return n, nil
}

// Map returns a copy of the row as a plain map.
func (r Row) Map() map[string]any {
	out := make(map[string]any, len(r.vals))
	for k, v := range r.vals {
		out[k] = v
	}
	return out
}

// MarshalJSON encodes the row as a JSON object.
func (r Row) MarshalJSON() ([]byte, error) {
	return json.Marshal(r.vals)
}
