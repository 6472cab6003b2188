package sqlgen

import (
	"fmt"

	"github.com/hashicorp/go-version"

	"github.com/satishbabariya/queryable/schema"
)

// PostgresDialect renders PostgreSQL SQL for lib/pq and pgx.
type PostgresDialect struct {
	base
	driver string
	codec  valueCodec
}

func newPostgres(v *version.Version, driver string) *PostgresDialect {
	f := FeatureScalarSubqueries | FeatureTemporaryTables | FeaturePagingInSetOperations |
		FeatureIntersectExcept | FeatureRowNumber | FeatureNativeSkip | FeatureDateTimeOffset
	return &PostgresDialect{
		base:   base{version: v, features: f},
		driver: driver,
		codec:  valueCodec{nativeOffset: true},
	}
}

func (d *PostgresDialect) Provider() string   { return "postgres" }
func (d *PostgresDialect) DriverName() string { return d.driver }

func (d *PostgresDialect) Placeholder(n int) string { return fmt.Sprintf("$%d", n) }

func (d *PostgresDialect) Cast(x string, t schema.ValueType) string {
	return "CAST(" + x + " AS " + d.ColumnType(t) + ")"
}

func (d *PostgresDialect) Function(name string, args ...string) string {
	if name == "LENGTH" {
		return d.base.Function("CHAR_LENGTH", args...)
	}
	return d.base.Function(name, args...)
}

func (d *PostgresDialect) CreateTempTable(name string, cols []TempColumn) string {
	return "CREATE TEMP TABLE " + name + " (" + tempColumns(d, cols) + ")"
}

func (d *PostgresDialect) ColumnType(t schema.ValueType) string {
	switch t {
	case schema.TypeBool:
		return "BOOLEAN"
	case schema.TypeInt8, schema.TypeInt16, schema.TypeUint8:
		return "SMALLINT"
	case schema.TypeInt32, schema.TypeUint16:
		return "INTEGER"
	case schema.TypeInt64, schema.TypeUint32, schema.TypeTimeSpan:
		return "BIGINT"
	case schema.TypeUint64:
		return "NUMERIC(20)"
	case schema.TypeFloat32:
		return "REAL"
	case schema.TypeFloat64:
		return "DOUBLE PRECISION"
	case schema.TypeDecimal:
		return "NUMERIC"
	case schema.TypeGuid:
		return "UUID"
	case schema.TypeDateTime:
		return "TIMESTAMP"
	case schema.TypeDateTimeOffset:
		return "TIMESTAMPTZ"
	case schema.TypeBytes:
		return "BYTEA"
	}
	return "TEXT"
}

func (d *PostgresDialect) CreateTable(t *schema.Table) string { return createTable(d, t) }

func (d *PostgresDialect) Insert(table string, columns []string) string {
	return insert(d, table, columns)
}

func (d *PostgresDialect) BindValue(v any) (any, error) { return d.codec.bind(v) }

func (d *PostgresDialect) Decode(v any, t schema.ValueType) (any, error) {
	return d.codec.decode(v, t)
}
