package sqlgen

import (
	"testing"
	"time"

	"github.com/cockroachdb/apd/v3"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/satishbabariya/queryable/schema"
)

func TestNewDialect(t *testing.T) {
	tests := []struct {
		provider, version string
		name, driver      string
		placeholder       string
	}{
		{"sqlite", "", "sqlite", "sqlite3", "?"},
		{"postgres", "", "postgres", "postgres", "$3"},
		{"pgx", "15", "postgres", "pgx", "$3"},
		{"mysql", "", "mysql", "mysql", "?"},
		{"sqlserver", "", "sqlserver", "sqlserver", "@p3"},
		{"mssql", "11.0", "sqlserver", "sqlserver", "@p3"},
	}
	for _, tt := range tests {
		t.Run(tt.provider, func(t *testing.T) {
			d, err := NewDialect(tt.provider, tt.version)
			require.NoError(t, err)
			assert.Equal(t, tt.name, d.Provider())
			assert.Equal(t, tt.driver, d.DriverName())
			assert.Equal(t, tt.placeholder, d.Placeholder(3))
		})
	}

	_, err := NewDialect("oracle", "")
	assert.Error(t, err)
	_, err = NewDialect("sqlite", "not-a-version")
	assert.Error(t, err)
}

func TestFeaturesFollowServerVersion(t *testing.T) {
	old := MustDialect("sqlserver", "10.50")
	assert.True(t, old.Features().Has(FeatureDateTimeOffset))
	assert.False(t, old.Features().Has(FeatureNativeSkip))
	assert.False(t, old.Features().Has(FeatureCustomProximity))

	cur := MustDialect("sqlserver", "")
	assert.True(t, cur.Features().Has(FeatureNativeSkip|FeatureCustomProximity|FeatureFullText))

	assert.False(t, MustDialect("mysql", "8.0.20").Features().Has(FeatureIntersectExcept))
	assert.True(t, MustDialect("mysql", "8.0.31").Features().Has(FeatureIntersectExcept))
	assert.False(t, MustDialect("sqlite", "").Features().Has(FeatureFullText))
	assert.False(t, MustDialect("sqlite", "3.20").Features().Has(FeatureRowNumber))
}

func TestRestrict(t *testing.T) {
	d := Restrict(MustDialect("sqlite", ""), FeatureScalarSubqueries|FeatureTemporaryTables)
	assert.False(t, d.Features().Has(FeatureScalarSubqueries))
	assert.False(t, d.Features().Has(FeatureTemporaryTables))
	assert.True(t, d.Features().Has(FeatureIntersectExcept))
	assert.Equal(t, "sqlite", d.Provider())
}

func TestParseFeatures(t *testing.T) {
	f, err := ParseFeatures("ScalarSubqueries, temporarytables")
	require.NoError(t, err)
	assert.Equal(t, FeatureScalarSubqueries|FeatureTemporaryTables, f)
	assert.Equal(t, "ScalarSubqueries|TemporaryTables", f.String())
	assert.Equal(t, "None", Features(0).String())

	_, err = ParseFeatures("Teleport")
	assert.Error(t, err)
}

func TestPaging(t *testing.T) {
	top, tail := MustDialect("sqlite", "").Paging("", "?", false)
	assert.Equal(t, "", top)
	assert.Equal(t, "LIMIT -1 OFFSET ?", tail)

	top, tail = MustDialect("sqlserver", "").Paging("@p1", "", false)
	assert.Equal(t, "TOP (@p1) ", top)
	assert.Equal(t, "", tail)

	_, tail = MustDialect("sqlserver", "").Paging("@p2", "@p1", false)
	assert.Equal(t, "ORDER BY (SELECT NULL) OFFSET @p1 ROWS FETCH NEXT @p2 ROWS ONLY", tail)

	_, tail = MustDialect("postgres", "").Paging("$1", "", true)
	assert.Equal(t, "LIMIT $1", tail)
}

func TestNullSafeEqual(t *testing.T) {
	assert.Equal(t, "a IS b", MustDialect("sqlite", "").NullSafeEqual("a", "b", false))
	assert.Equal(t, "a IS NOT DISTINCT FROM b", MustDialect("postgres", "").NullSafeEqual("a", "b", false))
	assert.Equal(t, "NOT (a <=> b)", MustDialect("mysql", "").NullSafeEqual("a", "b", true))
	assert.Equal(t, "(a = b OR (a IS NULL AND b IS NULL))", MustDialect("sqlserver", "15.0").NullSafeEqual("a", "b", false))
}

func TestLikePattern(t *testing.T) {
	assert.Equal(t, `%50\%\_off%`, LikePattern("50%_off", "contains"))
	assert.Equal(t, `ab%`, LikePattern("ab", "prefix"))
	assert.Equal(t, `%ab`, LikePattern("ab", "suffix"))
}

func TestDDL(t *testing.T) {
	tbl := &schema.Table{Name: "people", Columns: []schema.TableColumn{
		{Name: "Id", Type: schema.TypeInt64, Key: true},
		{Name: "Name", Type: schema.TypeString, Nullable: true},
	}}
	assert.Equal(t,
		`CREATE TABLE "people" ("Id" INTEGER NOT NULL, "Name" TEXT, PRIMARY KEY ("Id"))`,
		MustDialect("sqlite", "").CreateTable(tbl))
	assert.Equal(t,
		"INSERT INTO [people] ([Id], [Name]) VALUES (@p1, @p2)",
		MustDialect("sqlserver", "").Insert("people", []string{"Id", "Name"}))
	assert.Equal(t, "#tmp_in_1", MustDialect("sqlserver", "").TempTableName(1))
	assert.Equal(t, "DROP TEMPORARY TABLE t", MustDialect("mysql", "").DropTempTable("t"))
}

type level uint8

func mustDecimal(s string) *apd.Decimal {
	d, _, err := apd.NewFromString(s)
	if err != nil {
		panic(err)
	}
	return d
}

func TestBindValue(t *testing.T) {
	d := MustDialect("sqlite", "")
	id := uuid.New()
	n := int16(7)
	var nilPtr *int32

	tests := []struct {
		in   any
		want any
	}{
		{level(3), int64(3)},
		{&n, int64(7)},
		{nilPtr, nil},
		{id, id.String()},
		{*mustDecimal("1.50"), "1.50"},
		{schema.Point{X: 1, Y: 2}, "POINT(1 2)"},
		{90 * time.Second, int64(90 * time.Second)},
		{uint64(1 << 63), "9223372036854775808"},
	}
	for _, tt := range tests {
		got, err := d.BindValue(tt.in)
		require.NoError(t, err)
		assert.Equal(t, tt.want, got)
	}

	_, err := d.BindValue(map[string]int{})
	assert.Error(t, err)
}

func TestDecode(t *testing.T) {
	d := MustDialect("sqlite", "")
	v, err := d.Decode(int64(1), schema.TypeBool)
	require.NoError(t, err)
	assert.Equal(t, true, v)

	v, err = d.Decode(int64(200), schema.TypeUint8)
	require.NoError(t, err)
	assert.Equal(t, uint8(200), v)

	_, err = d.Decode(int64(300), schema.TypeUint8)
	assert.Error(t, err)

	v, err = d.Decode([]byte("POINT(1.5 -2)"), schema.TypePoint)
	require.NoError(t, err)
	assert.Equal(t, schema.Point{X: 1.5, Y: -2}, v)

	v, err = d.Decode(nil, schema.TypeString)
	require.NoError(t, err)
	assert.Nil(t, v)

	id := uuid.MustParse("01020304-0506-0708-090a-0b0c0d0e0f10")
	raw := []byte{4, 3, 2, 1, 6, 5, 8, 7, 9, 10, 11, 12, 13, 14, 15, 16}
	v, err = MustDialect("sqlserver", "").Decode(raw, schema.TypeGuid)
	require.NoError(t, err)
	assert.Equal(t, id, v)
}
