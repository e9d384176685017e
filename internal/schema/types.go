package schema

import (
	"fmt"
	"strings"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/paveg/lakescan/internal/scalar"
)

// LogicalType is the engine's column type, independent of physical encoding.
type LogicalType uint8

const (
	Unknown LogicalType = iota
	Boolean
	Int32
	Int64
	Float32
	Float64
	String
	Timestamp // microseconds, UTC
)

var typeNames = map[LogicalType]string{
	Unknown:   "unknown",
	Boolean:   "bool",
	Int32:     "int32",
	Int64:     "int64",
	Float32:   "float32",
	Float64:   "float64",
	String:    "string",
	Timestamp: "timestamp",
}

func (t LogicalType) String() string {
	if n, ok := typeNames[t]; ok {
		return n
	}
	return fmt.Sprintf("type(%d)", uint8(t))
}

// ParseType parses the names produced by String.
func ParseType(s string) (LogicalType, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	for t, n := range typeNames {
		if t != Unknown && n == s {
			return t, nil
		}
	}
	switch s {
	case "boolean":
		return Boolean, nil
	case "int", "integer":
		return Int64, nil
	case "float", "double":
		return Float64, nil
	case "utf8":
		return String, nil
	}
	return Unknown, fmt.Errorf("unknown logical type %q", s)
}

func (t LogicalType) IsInteger() bool  { return t == Int32 || t == Int64 }
func (t LogicalType) IsFloating() bool { return t == Float32 || t == Float64 }
func (t LogicalType) IsNumeric() bool  { return t.IsInteger() || t.IsFloating() }

// MarshalText lets config and sidecar files spell types by name.
func (t LogicalType) MarshalText() ([]byte, error) { return []byte(t.String()), nil }

func (t *LogicalType) UnmarshalText(b []byte) error {
	parsed, err := ParseType(string(b))
	if err != nil {
		return err
	}
	*t = parsed
	return nil
}

// Join returns the least type both a and b widen to. ok is false when the
// two types have no common supertype.
func Join(a, b LogicalType) (LogicalType, bool) {
	if a == b {
		return a, a != Unknown
	}
	if !a.IsNumeric() || !b.IsNumeric() {
		return Unknown, false
	}
	if (a == Int32 && b == Int64) || (a == Int64 && b == Int32) {
		return Int64, true
	}
	return Float64, true
}

// CanWiden reports whether values of from can be read as to without loss
// of the value's identity.
func CanWiden(from, to LogicalType) bool {
	j, ok := Join(from, to)
	return ok && j == to
}

// ArrowType maps the logical type to the arrow type used in batches.
func (t LogicalType) ArrowType() arrow.DataType {
	switch t {
	case Boolean:
		return arrow.FixedWidthTypes.Boolean
	case Int32:
		return arrow.PrimitiveTypes.Int32
	case Int64:
		return arrow.PrimitiveTypes.Int64
	case Float32:
		return arrow.PrimitiveTypes.Float32
	case Float64:
		return arrow.PrimitiveTypes.Float64
	case String:
		return arrow.BinaryTypes.String
	case Timestamp:
		return arrow.FixedWidthTypes.Timestamp_us
	default:
		return arrow.Null
	}
}

// FromArrowType maps an arrow type to a logical type. Narrow integers map to
// Int32 (or Int64 for uint32); every timestamp unit maps to Timestamp.
func FromArrowType(dt arrow.DataType) (LogicalType, bool) {
	switch dt.ID() {
	case arrow.BOOL:
		return Boolean, true
	case arrow.INT8, arrow.INT16, arrow.INT32, arrow.UINT8, arrow.UINT16:
		return Int32, true
	case arrow.INT64, arrow.UINT32:
		return Int64, true
	case arrow.FLOAT32:
		return Float32, true
	case arrow.FLOAT64:
		return Float64, true
	case arrow.STRING, arrow.LARGE_STRING:
		return String, true
	case arrow.TIMESTAMP:
		return Timestamp, true
	default:
		return Unknown, false
	}
}

// Accepts reports whether a literal of kind k can be compared against
// values of type t.
func (t LogicalType) Accepts(k scalar.Kind) bool {
	switch t {
	case Boolean:
		return k == scalar.KindBool
	case String:
		return k == scalar.KindString
	case Timestamp:
		return k == scalar.KindTimestamp
	default:
		return t.IsNumeric() && (k == scalar.KindInt || k == scalar.KindFloat)
	}
}
