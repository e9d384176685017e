package scalar

import (
	"fmt"
	"time"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/arrow/array"
)

// FromArray reads row i of arr as a Value.
func FromArray(arr arrow.Array, i int) (Value, error) {
	if arr.IsNull(i) {
		return Null(), nil
	}
	switch a := arr.(type) {
	case *array.Boolean:
		return Bool(a.Value(i)), nil
	case *array.Int8:
		return Int(int64(a.Value(i))), nil
	case *array.Int16:
		return Int(int64(a.Value(i))), nil
	case *array.Int32:
		return Int(int64(a.Value(i))), nil
	case *array.Int64:
		return Int(a.Value(i)), nil
	case *array.Uint8:
		return Int(int64(a.Value(i))), nil
	case *array.Uint16:
		return Int(int64(a.Value(i))), nil
	case *array.Uint32:
		return Int(int64(a.Value(i))), nil
	case *array.Float32:
		return Float(float64(a.Value(i))), nil
	case *array.Float64:
		return Float(a.Value(i)), nil
	case *array.String:
		return String(a.Value(i)), nil
	case *array.LargeString:
		return String(a.Value(i)), nil
	case *array.Timestamp:
		unit := a.DataType().(*arrow.TimestampType).Unit
		return TimestampMicros(ToMicros(int64(a.Value(i)), unit)), nil
	default:
		return Null(), fmt.Errorf("unsupported arrow type %s", arr.DataType())
	}
}

// ToMicros converts a raw timestamp in unit to microseconds.
func ToMicros(v int64, unit arrow.TimeUnit) int64 {
	switch unit {
	case arrow.Second:
		return v * int64(time.Second/time.Microsecond)
	case arrow.Millisecond:
		return v * int64(time.Millisecond/time.Microsecond)
	case arrow.Nanosecond:
		return v / int64(time.Microsecond)
	default:
		return v
	}
}

// Append appends v to b, converting between numeric kinds as needed. A
// value that does not fit the builder's type is an error.
func Append(b array.Builder, v Value) error {
	if v.IsNull() {
		b.AppendNull()
		return nil
	}
	switch bb := b.(type) {
	case *array.BooleanBuilder:
		if v.kind != KindBool {
			return mismatch(b, v)
		}
		bb.Append(v.AsBool())
	case *array.Int32Builder:
		if v.kind != KindInt {
			return mismatch(b, v)
		}
		bb.Append(int32(v.i))
	case *array.Int64Builder:
		if v.kind != KindInt {
			return mismatch(b, v)
		}
		bb.Append(v.i)
	case *array.Float32Builder:
		if !v.IsNumeric() {
			return mismatch(b, v)
		}
		bb.Append(float32(v.AsFloat()))
	case *array.Float64Builder:
		if !v.IsNumeric() {
			return mismatch(b, v)
		}
		bb.Append(v.AsFloat())
	case *array.StringBuilder:
		if v.kind != KindString {
			return mismatch(b, v)
		}
		bb.Append(v.s)
	case *array.TimestampBuilder:
		if v.kind != KindTimestamp {
			return mismatch(b, v)
		}
		unit := bb.Type().(*arrow.TimestampType).Unit
		bb.Append(arrow.Timestamp(fromMicros(v.i, unit)))
	default:
		return fmt.Errorf("unsupported builder type %s", b.Type())
	}
	return nil
}

func fromMicros(us int64, unit arrow.TimeUnit) int64 {
	switch unit {
	case arrow.Second:
		return us / int64(time.Second/time.Microsecond)
	case arrow.Millisecond:
		return us / int64(time.Millisecond/time.Microsecond)
	case arrow.Nanosecond:
		return us * int64(time.Microsecond)
	default:
		return us
	}
}

func mismatch(b array.Builder, v Value) error {
	return fmt.Errorf("cannot append %s value %s to %s builder", v.kind, v, b.Type())
}
