package sqlgen

import (
	"strings"

	"github.com/hashicorp/go-version"

	"github.com/satishbabariya/queryable/schema"
)

// MySQLDialect renders MySQL SQL.
type MySQLDialect struct {
	base
	codec valueCodec
}

func newMySQL(v *version.Version) *MySQLDialect {
	f := FeatureScalarSubqueries | FeatureTemporaryTables | FeaturePagingInSetOperations | FeatureNativeSkip
	if atLeast(v, "8.0") {
		f |= FeatureRowNumber
	}
	if atLeast(v, "8.0.31") {
		f |= FeatureIntersectExcept
	}
	return &MySQLDialect{base: base{version: v, features: f}}
}

func (d *MySQLDialect) Provider() string   { return "mysql" }
func (d *MySQLDialect) DriverName() string { return "mysql" }

func (d *MySQLDialect) Quote(ident string) string {
	return "`" + strings.ReplaceAll(ident, "`", "``") + "`"
}

func (d *MySQLDialect) Concat(parts ...string) string {
	return "CONCAT(" + strings.Join(parts, ", ") + ")"
}

func (d *MySQLDialect) Function(name string, args ...string) string {
	if name == "LENGTH" {
		return d.base.Function("CHAR_LENGTH", args...)
	}
	return d.base.Function(name, args...)
}

func (d *MySQLDialect) NullSafeEqual(l, r string, negate bool) string {
	if negate {
		return "NOT (" + l + " <=> " + r + ")"
	}
	return l + " <=> " + r
}

func (d *MySQLDialect) LikeEscape() string { return ` ESCAPE '\\'` }

func (d *MySQLDialect) Paging(take, skip string, ordered bool) (string, string) {
	if skip != "" && take == "" {
		take = "18446744073709551615"
	}
	return d.base.Paging(take, skip, ordered)
}

func (d *MySQLDialect) FromDual() string { return " FROM DUAL" }

func (d *MySQLDialect) Cast(x string, t schema.ValueType) string {
	var target string
	switch {
	case t.IsInteger() && t.IsUnsigned():
		target = "UNSIGNED"
	case t.IsInteger():
		target = "SIGNED"
	case t == schema.TypeFloat32 || t == schema.TypeFloat64:
		target = "DOUBLE"
	case t == schema.TypeDecimal:
		target = "DECIMAL(38, 10)"
	case t == schema.TypeDateTime:
		target = "DATETIME(6)"
	default:
		target = "CHAR"
	}
	return "CAST(" + x + " AS " + target + ")"
}

func (d *MySQLDialect) CreateTempTable(name string, cols []TempColumn) string {
	return "CREATE TEMPORARY TABLE " + name + " (" + tempColumns(d, cols) + ")"
}

func (d *MySQLDialect) DropTempTable(name string) string {
	return "DROP TEMPORARY TABLE " + name
}

func (d *MySQLDialect) ColumnType(t schema.ValueType) string {
	switch t {
	case schema.TypeBool:
		return "BOOLEAN"
	case schema.TypeInt8:
		return "TINYINT"
	case schema.TypeInt16:
		return "SMALLINT"
	case schema.TypeInt32:
		return "INT"
	case schema.TypeInt64, schema.TypeTimeSpan:
		return "BIGINT"
	case schema.TypeUint8:
		return "TINYINT UNSIGNED"
	case schema.TypeUint16:
		return "SMALLINT UNSIGNED"
	case schema.TypeUint32:
		return "INT UNSIGNED"
	case schema.TypeUint64:
		return "BIGINT UNSIGNED"
	case schema.TypeFloat32:
		return "FLOAT"
	case schema.TypeFloat64:
		return "DOUBLE"
	case schema.TypeDecimal:
		return "DECIMAL(38, 10)"
	case schema.TypeGuid:
		return "CHAR(36)"
	case schema.TypeDateTime:
		return "DATETIME(6)"
	case schema.TypeDateTimeOffset:
		return "VARCHAR(40)"
	case schema.TypeBytes:
		return "LONGBLOB"
	case schema.TypePoint:
		return "VARCHAR(64)"
	}
	return "VARCHAR(255)"
}

func (d *MySQLDialect) CreateTable(t *schema.Table) string { return createTable(d, t) }

func (d *MySQLDialect) Insert(table string, columns []string) string {
	return insert(d, table, columns)
}

func (d *MySQLDialect) BindValue(v any) (any, error) { return d.codec.bind(v) }

func (d *MySQLDialect) Decode(v any, t schema.ValueType) (any, error) {
	return d.codec.decode(v, t)
}
