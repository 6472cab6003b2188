package sqlgen

import (
	"github.com/hashicorp/go-version"

	"github.com/satishbabariya/queryable/schema"
)

// SQLiteDialect renders SQLite SQL.
type SQLiteDialect struct {
	base
	codec valueCodec
}

func newSQLite(v *version.Version) *SQLiteDialect {
	f := FeatureScalarSubqueries | FeatureTemporaryTables | FeaturePagingInSetOperations |
		FeatureIntersectExcept | FeatureNativeSkip
	if atLeast(v, "3.25") {
		f |= FeatureRowNumber
	}
	return &SQLiteDialect{base: base{version: v, features: f}}
}

func (d *SQLiteDialect) Provider() string   { return "sqlite" }
func (d *SQLiteDialect) DriverName() string { return "sqlite3" }

func (d *SQLiteDialect) BoolLiteral(v bool) string {
	if v {
		return "1"
	}
	return "0"
}

func (d *SQLiteDialect) NullSafeEqual(l, r string, negate bool) string {
	if negate {
		return l + " IS NOT " + r
	}
	return l + " IS " + r
}

func (d *SQLiteDialect) Paging(take, skip string, ordered bool) (string, string) {
	if skip != "" && take == "" {
		take = "-1"
	}
	return d.base.Paging(take, skip, ordered)
}

func (d *SQLiteDialect) Cast(x string, t schema.ValueType) string {
	return "CAST(" + x + " AS " + d.ColumnType(t) + ")"
}

// SQLite has no temporary-table prefix; the TEMP keyword scopes the table to
// the connection.
func (d *SQLiteDialect) CreateTempTable(name string, cols []TempColumn) string {
	return "CREATE TEMP TABLE " + name + " (" + tempColumns(d, cols) + ")"
}

func (d *SQLiteDialect) ColumnType(t schema.ValueType) string {
	switch t {
	case schema.TypeBool:
		return "BOOLEAN"
	case schema.TypeInt8, schema.TypeInt16, schema.TypeInt32, schema.TypeInt64,
		schema.TypeUint8, schema.TypeUint16, schema.TypeUint32, schema.TypeUint64, schema.TypeTimeSpan:
		return "INTEGER"
	case schema.TypeFloat32, schema.TypeFloat64:
		return "REAL"
	case schema.TypeDecimal:
		return "DECIMAL"
	case schema.TypeDateTime:
		return "DATETIME"
	case schema.TypeBytes:
		return "BLOB"
	}
	return "TEXT"
}

func (d *SQLiteDialect) CreateTable(t *schema.Table) string { return createTable(d, t) }

func (d *SQLiteDialect) Insert(table string, columns []string) string {
	return insert(d, table, columns)
}

func (d *SQLiteDialect) BindValue(v any) (any, error) { return d.codec.bind(v) }

func (d *SQLiteDialect) Decode(v any, t schema.ValueType) (any, error) {
	return d.codec.decode(v, t)
}
