package normalize

import (
	"reflect"
	"time"

	"github.com/cockroachdb/apd/v3"
	"github.com/google/uuid"

	"github.com/satishbabariya/queryable/schema"
)

var opaqueValueTypes = map[reflect.Type]bool{
	reflect.TypeOf(time.Time{}):             true,
	reflect.TypeOf(time.Duration(0)):        true,
	reflect.TypeOf(uuid.UUID{}):             true,
	reflect.TypeOf(apd.Decimal{}):           true,
	reflect.TypeOf(schema.Point{}):          true,
	reflect.TypeOf(schema.DateTimeOffset{}): true,
	reflect.TypeOf([]byte(nil)):             true,
}

// IsParameterizable reports whether values of t may be captured by a query
// and bound as parameters: primitives, strings, byte slices, GUIDs, times,
// durations, decimals, points, named integer (enum) types, structs composed
// only of those, and pointers to any of them as nullable forms.
func IsParameterizable(t reflect.Type) bool {
	if t == nil {
		return false
	}
	if t.Kind() == reflect.Pointer {
		return isValue(t.Elem())
	}
	return isValue(t)
}

// isValue checks a non-pointer type. Struct members may be nullable
// primitives but never pointers to structs.
func isValue(t reflect.Type) bool {
	if opaqueValueTypes[t] {
		return true
	}
	switch t.Kind() {
	case reflect.Bool,
		reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64,
		reflect.Float32, reflect.Float64, reflect.String:
		return true
	case reflect.Struct:
		if t.NumField() == 0 {
			return false
		}
		for i := 0; i < t.NumField(); i++ {
			ft := t.Field(i).Type
			if ft.Kind() == reflect.Pointer {
				if ft.Elem().Kind() == reflect.Struct && !opaqueValueTypes[ft.Elem()] {
					return false
				}
				ft = ft.Elem()
			}
			if !isValue(ft) {
				return false
			}
		}
		return true
	}
	return false
}

// IsSequence reports whether t is a slice or array of parameterizable
// elements. A byte slice is a scalar, not a sequence.
func IsSequence(t reflect.Type) bool {
	if t == nil || opaqueValueTypes[t] {
		return false
	}
	switch t.Kind() {
	case reflect.Slice, reflect.Array:
		return IsParameterizable(t.Elem())
	}
	return false
}
