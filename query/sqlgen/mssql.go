package sqlgen

import (
	"fmt"
	"strings"

	"github.com/hashicorp/go-version"

	"github.com/satishbabariya/queryable/schema"
)

// SQLServerDialect renders SQL Server (T-SQL) SQL.
type SQLServerDialect struct {
	base
	codec valueCodec
}

func newSQLServer(v *version.Version) *SQLServerDialect {
	f := FeatureScalarSubqueries | FeatureTemporaryTables | FeaturePagingInSetOperations |
		FeatureIntersectExcept | FeatureFullText
	if atLeast(v, "9.0") {
		f |= FeatureRowNumber
	}
	if atLeast(v, "10.0") {
		f |= FeatureDateTimeOffset | FeatureSingleKeyRankTable
	}
	if atLeast(v, "11.0") {
		f |= FeatureNativeSkip | FeatureCustomProximity
	}
	return &SQLServerDialect{
		base:  base{version: v, features: f},
		codec: valueCodec{nativeOffset: true, mixedEndianGUID: true},
	}
}

func (d *SQLServerDialect) Provider() string   { return "sqlserver" }
func (d *SQLServerDialect) DriverName() string { return "sqlserver" }

func (d *SQLServerDialect) Quote(ident string) string {
	return "[" + strings.ReplaceAll(ident, "]", "]]") + "]"
}

func (d *SQLServerDialect) Placeholder(n int) string { return fmt.Sprintf("@p%d", n) }

func (d *SQLServerDialect) BoolLiteral(v bool) string {
	if v {
		return "1"
	}
	return "0"
}

func (d *SQLServerDialect) Concat(parts ...string) string {
	return "(" + strings.Join(parts, " + ") + ")"
}

func (d *SQLServerDialect) Function(name string, args ...string) string {
	switch name {
	case "LENGTH":
		return d.base.Function("LEN", args...)
	case "TRIM":
		if !atLeast(d.version, "14.0") {
			return "LTRIM(RTRIM(" + strings.Join(args, ", ") + "))"
		}
	}
	return d.base.Function(name, args...)
}

// NullSafeEqual expands to the explicit form; IS DISTINCT FROM only exists
// from SQL Server 2022.
func (d *SQLServerDialect) NullSafeEqual(l, r string, negate bool) string {
	if atLeast(d.version, "16.0") {
		return d.base.NullSafeEqual(l, r, negate)
	}
	eq := fmt.Sprintf("(%s = %s OR (%s IS NULL AND %s IS NULL))", l, r, l, r)
	if negate {
		return "NOT " + eq
	}
	return eq
}

func (d *SQLServerDialect) LikeEscape() string { return ` ESCAPE '\'` }

// Paging uses TOP for a plain take and OFFSET/FETCH otherwise. OFFSET needs
// an ORDER BY, so unordered queries get a constant one.
func (d *SQLServerDialect) Paging(take, skip string, ordered bool) (string, string) {
	if skip == "" {
		if take == "" {
			return "", ""
		}
		return "TOP (" + take + ") ", ""
	}
	tail := ""
	if !ordered {
		tail = "ORDER BY (SELECT NULL) "
	}
	tail += "OFFSET " + skip + " ROWS"
	if take != "" {
		tail += " FETCH NEXT " + take + " ROWS ONLY"
	}
	return "", tail
}

func (d *SQLServerDialect) Cast(x string, t schema.ValueType) string {
	return "CAST(" + x + " AS " + d.ColumnType(t) + ")"
}

func (d *SQLServerDialect) InlineListLimit() int { return 2000 }

func (d *SQLServerDialect) TempTableName(n int) string { return fmt.Sprintf("#tmp_in_%d", n) }

func (d *SQLServerDialect) CreateTempTable(name string, cols []TempColumn) string {
	return "CREATE TABLE " + name + " (" + tempColumns(d, cols) + ")"
}

func (d *SQLServerDialect) ColumnType(t schema.ValueType) string {
	switch t {
	case schema.TypeBool:
		return "BIT"
	case schema.TypeInt8, schema.TypeInt16, schema.TypeUint8:
		return "SMALLINT"
	case schema.TypeInt32, schema.TypeUint16:
		return "INT"
	case schema.TypeInt64, schema.TypeUint32, schema.TypeTimeSpan:
		return "BIGINT"
	case schema.TypeUint64:
		return "DECIMAL(20, 0)"
	case schema.TypeFloat32:
		return "REAL"
	case schema.TypeFloat64:
		return "FLOAT"
	case schema.TypeDecimal:
		return "DECIMAL(38, 10)"
	case schema.TypeGuid:
		return "UNIQUEIDENTIFIER"
	case schema.TypeDateTime:
		return "DATETIME2"
	case schema.TypeDateTimeOffset:
		return "DATETIMEOFFSET"
	case schema.TypeBytes:
		return "VARBINARY(MAX)"
	case schema.TypePoint:
		return "NVARCHAR(64)"
	}
	return "NVARCHAR(450)"
}

func (d *SQLServerDialect) CreateTable(t *schema.Table) string { return createTable(d, t) }

func (d *SQLServerDialect) Insert(table string, columns []string) string {
	return insert(d, table, columns)
}

func (d *SQLServerDialect) BindValue(v any) (any, error) { return d.codec.bind(v) }

func (d *SQLServerDialect) Decode(v any, t schema.ValueType) (any, error) {
	return d.codec.decode(v, t)
}
