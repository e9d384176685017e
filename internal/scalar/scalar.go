// Package scalar provides a small typed, nullable value used wherever the
// engine needs a single cell outside of an arrow array: column statistics,
// predicate literals and group keys.
package scalar

import (
	"encoding/binary"
	"fmt"
	"math"
	"strconv"
	"time"

	"golang.org/x/exp/constraints"
)

// Kind identifies the physical representation of a Value.
type Kind uint8

const (
	KindNull Kind = iota
	KindBool
	KindInt
	KindFloat
	KindString
	KindTimestamp
)

func (k Kind) String() string {
	switch k {
	case KindNull:
		return "null"
	case KindBool:
		return "bool"
	case KindInt:
		return "int"
	case KindFloat:
		return "float"
	case KindString:
		return "string"
	case KindTimestamp:
		return "timestamp"
	default:
		return fmt.Sprintf("kind(%d)", uint8(k))
	}
}

// Value is an immutable scalar. The zero Value is null.
type Value struct {
	kind Kind
	i    int64 // bool (0/1), int, timestamp micros
	f    float64
	s    string
}

// Null returns the null value.
func Null() Value { return Value{} }

// Bool returns a boolean value.
func Bool(b bool) Value {
	v := Value{kind: KindBool}
	if b {
		v.i = 1
	}
	return v
}

// Int returns an integer value.
func Int(i int64) Value { return Value{kind: KindInt, i: i} }

// Float returns a floating point value.
func Float(f float64) Value { return Value{kind: KindFloat, f: f} }

// String returns a string value.
func String(s string) Value { return Value{kind: KindString, s: s} }

// Timestamp returns a timestamp value truncated to microseconds in UTC.
func Timestamp(t time.Time) Value { return Value{kind: KindTimestamp, i: t.UTC().UnixMicro()} }

// TimestampMicros returns a timestamp value from microseconds since the epoch.
func TimestampMicros(us int64) Value { return Value{kind: KindTimestamp, i: us} }

// Of converts a Go value into a Value. Supported inputs are nil, bool, the
// integer and float kinds, string and time.Time.
func Of(x any) (Value, error) {
	switch v := x.(type) {
	case nil:
		return Null(), nil
	case Value:
		return v, nil
	case bool:
		return Bool(v), nil
	case int:
		return Int(int64(v)), nil
	case int8:
		return Int(int64(v)), nil
	case int16:
		return Int(int64(v)), nil
	case int32:
		return Int(int64(v)), nil
	case int64:
		return Int(v), nil
	case uint8:
		return Int(int64(v)), nil
	case uint16:
		return Int(int64(v)), nil
	case uint32:
		return Int(int64(v)), nil
	case float32:
		return Float(float64(v)), nil
	case float64:
		return Float(v), nil
	case string:
		return String(v), nil
	case time.Time:
		return Timestamp(v), nil
	default:
		return Null(), fmt.Errorf("unsupported literal type %T", x)
	}
}

func (v Value) Kind() Kind      { return v.kind }
func (v Value) IsNull() bool    { return v.kind == KindNull }
func (v Value) IsNumeric() bool { return v.kind == KindInt || v.kind == KindFloat }

// IsNaN reports whether v is a floating point NaN.
func (v Value) IsNaN() bool { return v.kind == KindFloat && math.IsNaN(v.f) }

func (v Value) AsBool() bool { return v.i != 0 }

// AsInt returns the integer payload. Floats are truncated.
func (v Value) AsInt() int64 {
	if v.kind == KindFloat {
		return int64(v.f)
	}
	return v.i
}

// AsFloat returns the numeric payload as float64.
func (v Value) AsFloat() float64 {
	if v.kind == KindFloat {
		return v.f
	}
	return float64(v.i)
}

func (v Value) AsString() string { return v.s }

// AsTime returns the timestamp payload in UTC.
func (v Value) AsTime() time.Time { return time.UnixMicro(v.i).UTC() }

// Micros returns the raw timestamp payload.
func (v Value) Micros() int64 { return v.i }

// String renders the value for display.
func (v Value) String() string {
	switch v.kind {
	case KindNull:
		return "null"
	case KindBool:
		return strconv.FormatBool(v.AsBool())
	case KindInt:
		return strconv.FormatInt(v.i, 10)
	case KindFloat:
		return strconv.FormatFloat(v.f, 'g', -1, 64)
	case KindString:
		return strconv.Quote(v.s)
	case KindTimestamp:
		return v.AsTime().Format(time.RFC3339Nano)
	default:
		return "?"
	}
}

func compareOrdered[T constraints.Ordered](a, b T) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	default:
		return 0
	}
}

// Compare orders a against b. ok is false when the pair has no order:
// either side null or NaN, or kinds that cannot be compared. Int and Float
// compare numerically.
func Compare(a, b Value) (c int, ok bool) {
	if a.kind == KindNull || b.kind == KindNull || a.IsNaN() || b.IsNaN() {
		return 0, false
	}
	if a.IsNumeric() && b.IsNumeric() {
		if a.kind == KindInt && b.kind == KindInt {
			return compareOrdered(a.i, b.i), true
		}
		return compareOrdered(a.AsFloat(), b.AsFloat()), true
	}
	if a.kind != b.kind {
		return 0, false
	}
	switch a.kind {
	case KindBool, KindTimestamp:
		return compareOrdered(a.i, b.i), true
	case KindString:
		return compareOrdered(a.s, b.s), true
	}
	return 0, false
}

// Equal is structural equality: same kind and payload. Null equals null and
// NaN equals NaN, which is what grouping needs.
func Equal(a, b Value) bool {
	if a.kind != b.kind {
		return false
	}
	switch a.kind {
	case KindNull:
		return true
	case KindFloat:
		if math.IsNaN(a.f) || math.IsNaN(b.f) {
			return math.IsNaN(a.f) && math.IsNaN(b.f)
		}
		return a.f == b.f
	case KindString:
		return a.s == b.s
	default:
		return a.i == b.i
	}
}

// Less orders values with a total order for sorting: null first, then NaN,
// then by Compare. Kinds that do not compare fall back to kind order.
func Less(a, b Value) bool {
	if a.kind == KindNull || b.kind == KindNull {
		return a.kind == KindNull && b.kind != KindNull
	}
	if a.IsNaN() || b.IsNaN() {
		return a.IsNaN() && !b.IsNaN()
	}
	if c, ok := Compare(a, b); ok {
		return c < 0
	}
	return a.kind < b.kind
}

// AppendKey appends a canonical binary encoding of v to buf. Values that are
// Equal produce identical encodings.
func (v Value) AppendKey(buf []byte) []byte {
	buf = append(buf, byte(v.kind))
	switch v.kind {
	case KindNull:
	case KindFloat:
		bits := math.Float64bits(v.f)
		if math.IsNaN(v.f) {
			bits = 0x7ff8000000000001
		} else if v.f == 0 {
			bits = 0
		}
		buf = binary.LittleEndian.AppendUint64(buf, bits)
	case KindString:
		buf = binary.LittleEndian.AppendUint32(buf, uint32(len(v.s)))
		buf = append(buf, v.s...)
	default:
		buf = binary.LittleEndian.AppendUint64(buf, uint64(v.i))
	}
	return buf
}
