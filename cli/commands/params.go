package commands

import (
	"encoding/base64"
	"fmt"
	"reflect"
	"strconv"
	"strings"
	"time"

	"github.com/cockroachdb/apd/v3"
	"github.com/google/uuid"

	"github.com/satishbabariya/queryable/query/parser"
	"github.com/satishbabariya/queryable/schema"
)

// parseParams reads --param values of the form name=type:value into parser
// captures. A value of null binds a nil pointer of the type.
func parseParams(specs []string) (parser.Vars, error) {
	vars := parser.Vars{}
	for _, spec := range specs {
		name, rest, ok := strings.Cut(spec, "=")
		if !ok || name == "" {
			return nil, fmt.Errorf("invalid parameter %q: want name=type:value", spec)
		}
		typeName, raw, ok := strings.Cut(rest, ":")
		if !ok {
			return nil, fmt.Errorf("invalid parameter %q: want name=type:value", spec)
		}
		vt, ok := schema.ParseValueType(typeName)
		if !ok {
			return nil, fmt.Errorf("parameter %s: unknown type %q", name, typeName)
		}
		goType := vt.GoType()
		if raw == "null" {
			// **T holding nil: the capture is a nullable T
			vars[strings.TrimPrefix(name, "$")] = reflect.New(reflect.PointerTo(goType)).Interface()
			continue
		}
		v, err := parseValue(vt, raw)
		if err != nil {
			return nil, fmt.Errorf("parameter %s: %w", name, err)
		}
		ptr := reflect.New(goType)
		ptr.Elem().Set(reflect.ValueOf(v).Convert(goType))
		vars[strings.TrimPrefix(name, "$")] = ptr.Interface()
	}
	return vars, nil
}

func parseValue(vt schema.ValueType, raw string) (any, error) {
	switch {
	case vt == schema.TypeBool:
		return strconv.ParseBool(raw)
	case vt.IsUnsigned():
		return strconv.ParseUint(raw, 10, vt.Width())
	case vt.IsInteger():
		return strconv.ParseInt(raw, 10, vt.Width())
	case vt == schema.TypeFloat32:
		return strconv.ParseFloat(raw, 32)
	case vt == schema.TypeFloat64:
		return strconv.ParseFloat(raw, 64)
	}
	switch vt {
	case schema.TypeString:
		return raw, nil
	case schema.TypeDecimal:
		d, _, err := apd.NewFromString(raw)
		if err != nil {
			return nil, err
		}
		return *d, nil
	case schema.TypeGuid:
		return uuid.Parse(raw)
	case schema.TypeDateTime:
		return time.Parse(time.RFC3339Nano, raw)
	case schema.TypeDateTimeOffset:
		t, err := time.Parse(time.RFC3339Nano, raw)
		if err != nil {
			return nil, err
		}
		return schema.NewDateTimeOffset(t), nil
	case schema.TypeTimeSpan:
		return time.ParseDuration(raw)
	case schema.TypeBytes:
		return base64.StdEncoding.DecodeString(raw)
	case schema.TypePoint:
		var p schema.Point
		if _, err := fmt.Sscanf(raw, "%g,%g", &p.X, &p.Y); err != nil {
			return nil, fmt.Errorf("point %q: want x,y", raw)
		}
		return p, nil
	}
	return nil, fmt.Errorf("type %s cannot be passed on the command line", vt)
}
