package sqlgen

import (
	"database/sql/driver"
	"fmt"
	"math"
	"reflect"
	"strconv"
	"strings"
	"time"

	"github.com/cockroachdb/apd/v3"
	"github.com/google/uuid"

	"github.com/satishbabariya/queryable/schema"
)

// valueCodec converts between Go values and driver values. The flags select
// the provider-native forms.
type valueCodec struct {
	// nativeOffset binds DateTimeOffset as time.Time; otherwise RFC 3339 text.
	nativeOffset bool
	// nativeUUID binds uuid.UUID as-is; otherwise as its string form.
	nativeUUID bool
	// mixedEndianGUID decodes 16-byte GUIDs in SQL Server byte order.
	mixedEndianGUID bool
}

// bind converts v to a driver argument. Pointers are dereferenced, named
// integer types become their underlying value.
func (c valueCodec) bind(v any) (any, error) {
	if v == nil {
		return nil, nil
	}
	switch x := v.(type) {
	case time.Time, []byte, string, bool, int64, float64:
		return x, nil
	case uuid.UUID:
		if c.nativeUUID {
			return x, nil
		}
		return x.String(), nil
	case apd.Decimal:
		return x.String(), nil
	case *apd.Decimal:
		if x == nil {
			return nil, nil
		}
		return x.String(), nil
	case schema.Point:
		return x.String(), nil
	case schema.DateTimeOffset:
		if c.nativeOffset {
			return x.Time, nil
		}
		return x.Time.Format(time.RFC3339Nano), nil
	case time.Duration:
		return int64(x), nil
	case driver.Valuer:
		return x.Value()
	}
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Pointer:
		if rv.IsNil() {
			return nil, nil
		}
		return c.bind(rv.Elem().Interface())
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return rv.Int(), nil
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		u := rv.Uint()
		if u > math.MaxInt64 {
			return strconv.FormatUint(u, 10), nil
		}
		return int64(u), nil
	case reflect.Float32, reflect.Float64:
		return rv.Float(), nil
	case reflect.Bool:
		return rv.Bool(), nil
	case reflect.String:
		return rv.String(), nil
	}
	return nil, fmt.Errorf("sqlgen: cannot bind value of type %T", v)
}

// decode converts a scanned value into the Go type of t. NULL stays nil.
func (c valueCodec) decode(v any, t schema.ValueType) (any, error) {
	if v == nil {
		return nil, nil
	}
	switch t {
	case schema.TypeBool:
		switch x := v.(type) {
		case bool:
			return x, nil
		case int64:
			return x != 0, nil
		case []byte:
			return strconv.ParseBool(string(x))
		case string:
			return strconv.ParseBool(x)
		}
	case schema.TypeInt8, schema.TypeInt16, schema.TypeInt32, schema.TypeInt64,
		schema.TypeUint8, schema.TypeUint16, schema.TypeUint32, schema.TypeUint64:
		return decodeInteger(v, t)
	case schema.TypeFloat32, schema.TypeFloat64:
		var f float64
		switch x := v.(type) {
		case float64:
			f = x
		case float32:
			f = float64(x)
		case int64:
			f = float64(x)
		case []byte:
			p, err := strconv.ParseFloat(string(x), 64)
			if err != nil {
				return nil, err
			}
			f = p
		case string:
			p, err := strconv.ParseFloat(x, 64)
			if err != nil {
				return nil, err
			}
			f = p
		default:
			return nil, decodeErr(v, t)
		}
		if t == schema.TypeFloat32 {
			return float32(f), nil
		}
		return f, nil
	case schema.TypeDecimal:
		var s string
		switch x := v.(type) {
		case []byte:
			s = string(x)
		case string:
			s = x
		case float64:
			s = strconv.FormatFloat(x, 'f', -1, 64)
		case int64:
			s = strconv.FormatInt(x, 10)
		default:
			return nil, decodeErr(v, t)
		}
		d, _, err := apd.NewFromString(s)
		if err != nil {
			return nil, err
		}
		return *d, nil
	case schema.TypeString:
		switch x := v.(type) {
		case string:
			return x, nil
		case []byte:
			return string(x), nil
		}
		return fmt.Sprint(v), nil
	case schema.TypeGuid:
		switch x := v.(type) {
		case uuid.UUID:
			return x, nil
		case string:
			return uuid.Parse(x)
		case []byte:
			if len(x) == 16 {
				b := append([]byte(nil), x...)
				if c.mixedEndianGUID {
					b[0], b[1], b[2], b[3] = b[3], b[2], b[1], b[0]
					b[4], b[5] = b[5], b[4]
					b[6], b[7] = b[7], b[6]
				}
				return uuid.FromBytes(b)
			}
			return uuid.ParseBytes(x)
		}
	case schema.TypeDateTime:
		return decodeTime(v, t)
	case schema.TypeDateTimeOffset:
		tm, err := decodeTime(v, t)
		if err != nil {
			return nil, err
		}
		return schema.NewDateTimeOffset(tm.(time.Time)), nil
	case schema.TypeTimeSpan:
		n, err := decodeInteger(v, schema.TypeInt64)
		if err != nil {
			return nil, err
		}
		return time.Duration(n.(int64)), nil
	case schema.TypeBytes:
		switch x := v.(type) {
		case []byte:
			return append([]byte(nil), x...), nil
		case string:
			return []byte(x), nil
		}
	case schema.TypePoint:
		var s string
		switch x := v.(type) {
		case string:
			s = x
		case []byte:
			s = string(x)
		default:
			return nil, decodeErr(v, t)
		}
		return ParsePoint(s)
	}
	return nil, decodeErr(v, t)
}

func decodeErr(v any, t schema.ValueType) error {
	return fmt.Errorf("sqlgen: cannot decode %T into %s", v, t)
}

func decodeInteger(v any, t schema.ValueType) (any, error) {
	var n int64
	switch x := v.(type) {
	case int64:
		n = x
	case int32:
		n = int64(x)
	case int:
		n = int64(x)
	case uint64:
		if t == schema.TypeUint64 {
			return x, nil
		}
		n = int64(x)
	case float64:
		n = int64(x)
	case bool:
		if x {
			n = 1
		}
	case []byte:
		return decodeInteger(string(x), t)
	case string:
		if t == schema.TypeUint64 {
			u, err := strconv.ParseUint(x, 10, 64)
			if err != nil {
				return nil, err
			}
			return u, nil
		}
		p, err := strconv.ParseInt(x, 10, 64)
		if err != nil {
			return nil, err
		}
		n = p
	default:
		return nil, decodeErr(v, t)
	}
	switch t {
	case schema.TypeInt8:
		if n < math.MinInt8 || n > math.MaxInt8 {
			return nil, rangeErr(n, t)
		}
		return int8(n), nil
	case schema.TypeInt16:
		if n < math.MinInt16 || n > math.MaxInt16 {
			return nil, rangeErr(n, t)
		}
		return int16(n), nil
	case schema.TypeInt32:
		if n < math.MinInt32 || n > math.MaxInt32 {
			return nil, rangeErr(n, t)
		}
		return int32(n), nil
	case schema.TypeUint8:
		if n < 0 || n > math.MaxUint8 {
			return nil, rangeErr(n, t)
		}
		return uint8(n), nil
	case schema.TypeUint16:
		if n < 0 || n > math.MaxUint16 {
			return nil, rangeErr(n, t)
		}
		return uint16(n), nil
	case schema.TypeUint32:
		if n < 0 || n > math.MaxUint32 {
			return nil, rangeErr(n, t)
		}
		return uint32(n), nil
	case schema.TypeUint64:
		return uint64(n), nil
	}
	return n, nil
}

func rangeErr(n int64, t schema.ValueType) error {
	return fmt.Errorf("sqlgen: value %d overflows %s", n, t)
}

var timeLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02 15:04:05.999999999-07:00",
	"2006-01-02 15:04:05.999999999",
	"2006-01-02T15:04:05.999999999",
	"2006-01-02 15:04:05",
	"2006-01-02",
}

func decodeTime(v any, t schema.ValueType) (any, error) {
	switch x := v.(type) {
	case time.Time:
		return x, nil
	case []byte:
		return decodeTime(string(x), t)
	case string:
		for _, layout := range timeLayouts {
			if tm, err := time.Parse(layout, x); err == nil {
				return tm, nil
			}
		}
		return nil, fmt.Errorf("sqlgen: cannot parse %q as %s", x, t)
	}
	return nil, decodeErr(v, t)
}

// ParsePoint parses the POINT(x y) text form.
func ParsePoint(s string) (schema.Point, error) {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(strings.ToUpper(s), "POINT(") || !strings.HasSuffix(s, ")") {
		return schema.Point{}, fmt.Errorf("sqlgen: malformed point %q", s)
	}
	parts := strings.Fields(s[len("POINT(") : len(s)-1])
	if len(parts) != 2 {
		return schema.Point{}, fmt.Errorf("sqlgen: malformed point %q", s)
	}
	x, err := strconv.ParseFloat(parts[0], 64)
	if err != nil {
		return schema.Point{}, err
	}
	y, err := strconv.ParseFloat(parts[1], 64)
	if err != nil {
		return schema.Point{}, err
	}
	return schema.Point{X: x, Y: y}, nil
}
