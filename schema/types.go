package schema

import (
	"fmt"
	"reflect"
	"strings"
	"time"

	"github.com/cockroachdb/apd/v3"
	"github.com/google/uuid"
)

// ValueType is the storage type of a primitive field.
type ValueType int

const (
	TypeUnknown ValueType = iota
	TypeBool
	TypeInt8
	TypeInt16
	TypeInt32
	TypeInt64
	TypeUint8
	TypeUint16
	TypeUint32
	TypeUint64
	TypeFloat32
	TypeFloat64
	TypeDecimal
	TypeString
	TypeGuid
	TypeDateTime
	TypeDateTimeOffset
	TypeTimeSpan
	TypeBytes
	TypePoint
)

var valueTypeNames = map[ValueType]string{
	TypeBool:           "bool",
	TypeInt8:           "int8",
	TypeInt16:          "int16",
	TypeInt32:          "int32",
	TypeInt64:          "int64",
	TypeUint8:          "uint8",
	TypeUint16:         "uint16",
	TypeUint32:         "uint32",
	TypeUint64:         "uint64",
	TypeFloat32:        "float32",
	TypeFloat64:        "float64",
	TypeDecimal:        "decimal",
	TypeString:         "string",
	TypeGuid:           "guid",
	TypeDateTime:       "datetime",
	TypeDateTimeOffset: "datetimeoffset",
	TypeTimeSpan:       "timespan",
	TypeBytes:          "bytes",
	TypePoint:          "point",
}

func (t ValueType) String() string {
	if name, ok := valueTypeNames[t]; ok {
		return name
	}
	return "unknown"
}

// ParseValueType resolves a type name as written in schema files.
func ParseValueType(name string) (ValueType, bool) {
	switch strings.ToLower(name) {
	case "int", "long":
		return TypeInt64, true
	case "short":
		return TypeInt16, true
	case "byte":
		return TypeUint8, true
	case "sbyte":
		return TypeInt8, true
	case "float", "single":
		return TypeFloat32, true
	case "double":
		return TypeFloat64, true
	case "uuid":
		return TypeGuid, true
	case "duration":
		return TypeTimeSpan, true
	case "boolean":
		return TypeBool, true
	}
	for vt, n := range valueTypeNames {
		if n == strings.ToLower(name) {
			return vt, true
		}
	}
	return TypeUnknown, false
}

// IsInteger reports whether t is a signed or unsigned integer type.
func (t ValueType) IsInteger() bool {
	return t >= TypeInt8 && t <= TypeUint64
}

// IsUnsigned reports whether t is an unsigned integer type.
func (t ValueType) IsUnsigned() bool {
	return t >= TypeUint8 && t <= TypeUint64
}

// IsNumeric reports whether t takes part in arithmetic.
func (t ValueType) IsNumeric() bool {
	return t.IsInteger() || t == TypeFloat32 || t == TypeFloat64 || t == TypeDecimal
}

// Width returns the size in bits of a numeric type, 0 for anything else.
// Decimal is treated as wider than every binary type.
func (t ValueType) Width() int {
	switch t {
	case TypeInt8, TypeUint8:
		return 8
	case TypeInt16, TypeUint16:
		return 16
	case TypeInt32, TypeUint32, TypeFloat32:
		return 32
	case TypeInt64, TypeUint64, TypeFloat64:
		return 64
	case TypeDecimal:
		return 128
	}
	return 0
}

// Widens reports whether every value of from is representable in t.
func (t ValueType) Widens(from ValueType) bool {
	if t == from {
		return true
	}
	if !t.IsNumeric() || !from.IsNumeric() {
		return false
	}
	switch {
	case t == TypeDecimal:
		return true
	case t == TypeFloat64:
		return from.Width() <= 32 || from == TypeFloat32
	case t == TypeFloat32:
		return from.IsInteger() && from.Width() <= 16
	case from == TypeFloat32 || from == TypeFloat64 || from == TypeDecimal:
		return false
	case t.IsUnsigned():
		return from.IsUnsigned() && from.Width() < t.Width()
	default:
		return from.Width() < t.Width()
	}
}

// Point is the provider-specific geometric point value type.
type Point struct {
	X float64
	Y float64
}

func (p Point) String() string {
	return fmt.Sprintf("POINT(%g %g)", p.X, p.Y)
}

// DateTimeOffset is a timestamp that keeps its UTC offset when stored.
type DateTimeOffset struct {
	Time time.Time
}

// NewDateTimeOffset wraps t.
func NewDateTimeOffset(t time.Time) DateTimeOffset {
	return DateTimeOffset{Time: t}
}

var (
	typeOfTime           = reflect.TypeOf(time.Time{})
	typeOfDuration       = reflect.TypeOf(time.Duration(0))
	typeOfUUID           = reflect.TypeOf(uuid.UUID{})
	typeOfDecimal        = reflect.TypeOf(apd.Decimal{})
	typeOfPoint          = reflect.TypeOf(Point{})
	typeOfDateTimeOffset = reflect.TypeOf(DateTimeOffset{})
	typeOfBytes          = reflect.TypeOf([]byte(nil))
)

// GoType returns the Go type used for values of t.
func (t ValueType) GoType() reflect.Type {
	switch t {
	case TypeBool:
		return reflect.TypeOf(false)
	case TypeInt8:
		return reflect.TypeOf(int8(0))
	case TypeInt16:
		return reflect.TypeOf(int16(0))
	case TypeInt32:
		return reflect.TypeOf(int32(0))
	case TypeInt64:
		return reflect.TypeOf(int64(0))
	case TypeUint8:
		return reflect.TypeOf(uint8(0))
	case TypeUint16:
		return reflect.TypeOf(uint16(0))
	case TypeUint32:
		return reflect.TypeOf(uint32(0))
	case TypeUint64:
		return reflect.TypeOf(uint64(0))
	case TypeFloat32:
		return reflect.TypeOf(float32(0))
	case TypeFloat64:
		return reflect.TypeOf(float64(0))
	case TypeDecimal:
		return typeOfDecimal
	case TypeString:
		return reflect.TypeOf("")
	case TypeGuid:
		return typeOfUUID
	case TypeDateTime:
		return typeOfTime
	case TypeDateTimeOffset:
		return typeOfDateTimeOffset
	case TypeTimeSpan:
		return typeOfDuration
	case TypeBytes:
		return typeOfBytes
	case TypePoint:
		return typeOfPoint
	}
	return nil
}

// ValueTypeOf maps a Go type to a ValueType. Pointers are unwrapped; named
// integer types (enums) map to their underlying kind.
func ValueTypeOf(t reflect.Type) (ValueType, bool) {
	if t == nil {
		return TypeUnknown, false
	}
	for t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	switch t {
	case typeOfTime:
		return TypeDateTime, true
	case typeOfDuration:
		return TypeTimeSpan, true
	case typeOfUUID:
		return TypeGuid, true
	case typeOfDecimal:
		return TypeDecimal, true
	case typeOfPoint:
		return TypePoint, true
	case typeOfDateTimeOffset:
		return TypeDateTimeOffset, true
	case typeOfBytes:
		return TypeBytes, true
	}
	switch t.Kind() {
	case reflect.Bool:
		return TypeBool, true
	case reflect.Int8:
		return TypeInt8, true
	case reflect.Int16:
		return TypeInt16, true
	case reflect.Int32:
		return TypeInt32, true
	case reflect.Int64, reflect.Int:
		return TypeInt64, true
	case reflect.Uint8:
		return TypeUint8, true
	case reflect.Uint16:
		return TypeUint16, true
	case reflect.Uint32:
		return TypeUint32, true
	case reflect.Uint64, reflect.Uint:
		return TypeUint64, true
	case reflect.Float32:
		return TypeFloat32, true
	case reflect.Float64:
		return TypeFloat64, true
	case reflect.String:
		return TypeString, true
	}
	return TypeUnknown, false
}

// Enum is a named set of integer constants stored as its underlying type.
type Enum struct {
	Name       string
	Underlying ValueType
	Members    []EnumMember
}

// EnumMember is a single enum constant.
type EnumMember struct {
	Name  string
	Value int64
}

// Value returns the numeric value of the named member.
func (e *Enum) Value(name string) (int64, bool) {
	for _, m := range e.Members {
		if m.Name == name {
			return m.Value, true
		}
	}
	return 0, false
}
