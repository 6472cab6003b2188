package compiler

import (
	"strconv"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/satishbabariya/queryable/query"
	"github.com/satishbabariya/queryable/query/builder"
	"github.com/satishbabariya/queryable/query/expr"
	"github.com/satishbabariya/queryable/query/materialize"
	"github.com/satishbabariya/queryable/query/model"
	"github.com/satishbabariya/queryable/query/normalize"
	"github.com/satishbabariya/queryable/query/sqlgen"
	"github.com/satishbabariya/queryable/schema"
)

const zoo = `
entity Person @table("people") {
  key Id int64
  Name string
  Age int32
  Pets Animal* inverse Owner
}

abstract entity Animal @scheme("single_table") {
  key Id int64
  Name string
  Owner -> Person?
}

entity Dog : Animal { Breed string }
entity Cat : Animal { Lives int32 }

entity Vehicle {
  key Id int64
  Wheels int32
}

entity Car : Vehicle { Doors int32 }

abstract entity Shape @scheme("concrete_table") {
  key Id int64
  Name string
}

entity Circle : Shape { Radius float64 }
entity Square : Shape { Side float64 }
`

var (
	sqlite = sqlgen.MustDialect("sqlite", "")
	p      = expr.Param("p")
	all    = expr.All
)

func zooModel(t *testing.T) *schema.Model {
	t.Helper()
	m, err := schema.Load("zoo.schema", zoo)
	require.NoError(t, err)
	return m
}

func compile(t *testing.T, n expr.Node, d sqlgen.Dialect) (*Command, []any, error) {
	t.Helper()
	r, err := normalize.Normalize(n)
	require.NoError(t, err)
	q, err := builder.Build(r, builder.Options{Model: zooModel(t), Features: d.Features()})
	require.NoError(t, err)
	values, err := r.Values()
	require.NoError(t, err)
	cmd, err := Compile(q, d)
	return cmd, values, err
}

func mustRender(t *testing.T, n expr.Node, d sqlgen.Dialect) (*Command, *Rendered) {
	t.Helper()
	cmd, values, err := compile(t, n, d)
	require.NoError(t, err)
	out, err := cmd.Template.Render(d, values, nil)
	require.NoError(t, err)
	return cmd, out
}

func where(src expr.Node, body expr.Node) expr.Node {
	return expr.Method(src, "Where", expr.Fn1("p", body))
}

func TestFilterAndProjection(t *testing.T) {
	n := expr.Method(
		where(all("Person"), expr.Gt(expr.Prop(p, "Age"), expr.Const(int32(30)))),
		"Select", expr.Fn1("p", expr.Prop(p, "Name")))
	cmd, out := mustRender(t, n, sqlite)

	assert.Contains(t, out.SQL, `FROM "people" AS t1 WHERE t1."Age" > 30`)
	assert.Contains(t, out.SQL, `SELECT t1."Name" AS "c`)
	assert.Empty(t, out.Args)
	require.Len(t, cmd.Columns, 1)
	plan, ok := cmd.Plan.(*materialize.Scalar)
	require.True(t, ok)
	assert.Equal(t, 0, plan.Pos)
	assert.Equal(t, builder.Many, cmd.Cardinality)
}

func TestCapturedValuesBecomePlaceholders(t *testing.T) {
	minAge := int32(18)
	n := where(all("Person"), expr.Ge(expr.Prop(p, "Age"), expr.Var("minAge", &minAge)))
	cmd, out := mustRender(t, n, sqlite)

	assert.Contains(t, out.SQL, `t1."Age" >= ?`)
	assert.Equal(t, []any{int64(18)}, out.Args)
	assert.Equal(t, []int{0}, cmd.Parameters)

	minAge = 21
	cmd2, values, err := compile(t, n, sqlite)
	require.NoError(t, err)
	out, err = cmd2.Template.Render(sqlite, values, nil)
	require.NoError(t, err)
	assert.Equal(t, []any{int64(21)}, out.Args)
}

func TestStringLiterals(t *testing.T) {
	_, out := mustRender(t, where(all("Person"), expr.Eq(expr.Prop(p, "Name"), expr.Const("O'Brien"))), sqlite)
	assert.Contains(t, out.SQL, `t1."Name" = 'O''Brien'`)

	mssql := sqlgen.MustDialect("sqlserver", "")
	_, out = mustRender(t, where(all("Person"), expr.Eq(expr.Prop(p, "Name"), expr.Const("Rex"))), mssql)
	assert.Contains(t, out.SQL, `[Name] = N'Rex'`)

	_, out = mustRender(t, where(all("Person"), expr.Method(expr.Prop(p, "Name"), "StartsWith", expr.Const("A_"))), sqlite)
	assert.Contains(t, out.SQL, `t1."Name" LIKE ? ESCAPE '\'`)
	assert.Equal(t, []any{`A\_%`}, out.Args)
}

func TestSingleTableScanFiltersTypeID(t *testing.T) {
	m := zooModel(t)
	dog := m.MustType("Dog")
	cmd, out := mustRender(t, all("Dog"), sqlite)

	assert.Contains(t, out.SQL, `FROM "Animal" AS t1 WHERE t1."TypeId" = `)
	assert.Contains(t, out.SQL, "= "+strconv.Itoa(dog.TypeID))
	e, ok := cmd.Plan.(*materialize.Entity)
	require.True(t, ok)
	assert.Equal(t, "Dog", e.Type.Name)

	_, out = mustRender(t, all("Animal"), sqlite)
	assert.NotContains(t, out.SQL, "WHERE")
}

func TestClassTableScanJoinsTables(t *testing.T) {
	_, out := mustRender(t, all("Vehicle"), sqlite)
	assert.Contains(t, out.SQL, `FROM "Vehicle" AS t1 LEFT JOIN "Car" AS t2 ON t2."Id" = t1."Id"`)
	assert.Contains(t, out.SQL, `t2."Doors"`)

	_, out = mustRender(t, all("Car"), sqlite)
	assert.Contains(t, out.SQL, `FROM "Vehicle" AS t1 INNER JOIN "Car" AS t2 ON t2."Id" = t1."Id"`)
}

func TestConcreteTableScanUnionsTables(t *testing.T) {
	_, out := mustRender(t, all("Shape"), sqlite)
	assert.Contains(t, out.SQL, `FROM "Circle" UNION ALL SELECT`)
	assert.Contains(t, out.SQL, `FROM "Square") AS t1`)
	assert.Contains(t, out.SQL, `CAST(NULL AS `)
}

func TestLocalListRendering(t *testing.T) {
	ages := []int32{30, 40}
	n := where(all("Person"), expr.Method(expr.Const(ages), "Contains", expr.Prop(p, "Age")))
	cmd, out := mustRender(t, n, sqlite)
	assert.Contains(t, out.SQL, `t1."Age" IN (?, ?)`)
	assert.Equal(t, []any{int64(30), int64(40)}, out.Args)
	assert.Empty(t, out.Setup)

	out, err := cmd.Template.Render(sqlite, nil, nil)
	require.NoError(t, err)
	assert.Len(t, out.Args, 2)

	_, out = mustRender(t, where(all("Person"), expr.Method(expr.Const([]int32{}), "Contains", expr.Prop(p, "Age"))), sqlite)
	assert.Contains(t, out.SQL, "WHERE 1 = 0")
	assert.Empty(t, out.Args)
}

func TestTemporaryTableList(t *testing.T) {
	ids := []int64{1, 2, 3}
	n := where(all("Person"), expr.InList(expr.Prop(p, "Id"), expr.Const(ids), expr.IncludeTemporaryTable))
	_, out := mustRender(t, n, sqlite)

	assert.Contains(t, out.SQL, `t1."Id" IN (SELECT "c0" FROM tmp_in_1)`)
	require.Len(t, out.Setup, 4)
	assert.Contains(t, out.Setup[0].SQL, "tmp_in_1")
	assert.Equal(t, []any{int64(2)}, out.Setup[2].Args)
	assert.Equal(t, []string{sqlite.DropTempTable("tmp_in_1")}, out.Teardown)
	assert.Empty(t, out.Args)

	inline := where(all("Person"), expr.InList(expr.Prop(p, "Id"), expr.Const(ids), expr.IncludeComplexCondition))
	_, out = mustRender(t, inline, sqlite)
	assert.Contains(t, out.SQL, `IN (?, ?, ?)`)
	assert.Empty(t, out.Setup)
}

func TestLongInlineListRendersLiterals(t *testing.T) {
	limit := sqlite.InlineListLimit()
	ids := make([]int64, 3*limit)
	for i := range ids {
		ids[i] = int64(i + 1)
	}
	n := where(all("Person"), expr.InList(expr.Prop(p, "Id"), expr.Const(ids), expr.IncludeComplexCondition))
	_, out := mustRender(t, n, sqlite)
	assert.Contains(t, out.SQL, `t1."Id" IN (1, 2, 3, `)
	assert.Contains(t, out.SQL, ", "+strconv.Itoa(3*limit)+")")
	assert.Empty(t, out.Args)
	assert.Empty(t, out.Setup)

	names := make([]string, limit+1)
	for i := range names {
		names[i] = "n" + strconv.Itoa(i)
	}
	names[0] = `back\slash`
	n = where(all("Person"), expr.InList(expr.Prop(p, "Name"), expr.Const(names), expr.IncludeComplexCondition))
	_, out = mustRender(t, n, sqlite)
	assert.Contains(t, out.SQL, `IN (?, 'n1', 'n2', `)
	assert.Equal(t, []any{`back\slash`}, out.Args)
}

func TestPagingWithOffset(t *testing.T) {
	ordered := expr.Method(all("Person"), "OrderBy", expr.Fn1("p", expr.Prop(p, "Name")))
	paged := expr.Method(expr.Method(ordered, "Skip", expr.Const(5)), "Take", expr.Const(10))
	_, out := mustRender(t, paged, sqlite)
	assert.Contains(t, out.SQL, `ORDER BY t1."Name" LIMIT 10 OFFSET 5`)
}

func TestRowNumberPaging(t *testing.T) {
	ordered := expr.Method(all("Person"), "OrderBy", expr.Fn1("p", expr.Prop(p, "Name")))
	paged := expr.Method(expr.Method(ordered, "Skip", expr.Const(5)), "Take", expr.Const(10))

	old := sqlgen.MustDialect("sqlserver", "10.0")
	_, out := mustRender(t, paged, old)
	assert.Contains(t, out.SQL, "ROW_NUMBER() OVER (ORDER BY t1.[Name])")
	assert.Contains(t, out.SQL, "> 5")
	assert.Contains(t, out.SQL, "<= 5 + 10")
	assert.NotContains(t, out.SQL, "OFFSET")

	none := sqlgen.Restrict(old, sqlgen.FeatureRowNumber)
	_, _, err := compile(t, paged, none)
	assert.ErrorIs(t, err, query.ErrFeatureNotSupported)
}

func TestFilterAfterPagingWraps(t *testing.T) {
	ordered := expr.Method(all("Person"), "OrderBy", expr.Fn1("p", expr.Prop(p, "Age")))
	top := expr.Method(ordered, "Take", expr.Const(3))
	_, out := mustRender(t, where(top, expr.Gt(expr.Prop(p, "Age"), expr.Const(int32(1)))), sqlite)

	assert.Contains(t, out.SQL, `LIMIT 3) AS t2 WHERE`)
	assert.Contains(t, out.SQL, `ORDER BY t2."o1"`)
}

func TestGroupingRunsPerGroupQuery(t *testing.T) {
	n := expr.Method(all("Person"), "GroupBy", expr.Fn1("p", expr.Prop(p, "Age")))
	cmd, out := mustRender(t, n, sqlite)

	assert.Contains(t, out.SQL, `GROUP BY t1."Age"`)
	g, ok := cmd.Plan.(*materialize.Grouping)
	require.True(t, ok)
	require.Len(t, cmd.Nested, 1)
	assert.Equal(t, 0, g.Elements.Index)
	require.Len(t, g.Elements.Outer, 1)

	sub := g.Elements.Outer[0].Sub
	nested, err := cmd.Nested[0].Template.Render(sqlite, nil, map[model.ColumnID]any{sub: int32(40)})
	require.NoError(t, err)
	assert.Contains(t, nested.SQL, `"Age" = ?`)
	assert.Equal(t, []any{int64(40)}, nested.Args)

	_, err = cmd.Nested[0].Template.Render(sqlite, nil, nil)
	assert.Error(t, err)
}

func TestAggregates(t *testing.T) {
	_, out := mustRender(t, expr.Method(all("Person"), "Count"), sqlite)
	assert.Contains(t, out.SQL, "COUNT(*)")

	n := expr.Method(all("Person"), "GroupBy", expr.Fn1("p", expr.Prop(p, "Age")))
	counted := expr.Method(n, "Select", expr.Fn1("g", expr.Rec(
		expr.As("Age", expr.Prop(expr.Param("g"), "Key")),
		expr.As("Count", expr.Method(expr.Param("g"), "Count")),
	)))
	cmd, out := mustRender(t, counted, sqlite)
	assert.Contains(t, out.SQL, "COUNT(*)")
	assert.Empty(t, cmd.Nested)
	_, ok := cmd.Plan.(*materialize.Record)
	assert.True(t, ok)
}

func TestNavigationAndExists(t *testing.T) {
	a := expr.Param("a")
	n := expr.Method(all("Animal"), "Where", expr.Fn1("a",
		expr.Eq(expr.Prop(expr.Prop(a, "Owner"), "Name"), expr.Const("Ann"))))
	_, out := mustRender(t, n, sqlite)
	assert.Contains(t, out.SQL, `LEFT JOIN "people"`)

	_, out = mustRender(t, where(all("Person"), expr.Method(expr.Prop(p, "Pets"), "Any")), sqlite)
	assert.Contains(t, out.SQL, "EXISTS (SELECT 1 FROM")
}

func TestEntitySetProjectionIsNested(t *testing.T) {
	n := expr.Method(all("Person"), "Select", expr.Fn1("p", expr.Rec(
		expr.As("Name", expr.Prop(p, "Name")),
		expr.As("Pets", expr.Prop(p, "Pets")),
	)))
	cmd, _ := mustRender(t, n, sqlite)
	r, ok := cmd.Plan.(*materialize.Record)
	require.True(t, ok)
	seq, ok := r.Members[1].(*materialize.Sequence)
	require.True(t, ok)
	require.Len(t, cmd.Nested, 1)
	assert.Equal(t, 0, seq.Index)

	var outer bool
	for _, s := range cmd.Nested[0].Template.Segments {
		outer = outer || s.Kind == SegOuter
	}
	assert.True(t, outer)
}

func TestSetOperationRendering(t *testing.T) {
	names := expr.Method(all("Person"), "Select", expr.Fn1("p", expr.Prop(p, "Name")))
	animals := expr.Method(all("Animal"), "Select", expr.Fn1("a", expr.Prop(expr.Param("a"), "Name")))
	_, out := mustRender(t, expr.Method(names, "Union", animals), sqlite)
	assert.Contains(t, out.SQL, " UNION SELECT ")
}

func TestTemplateText(t *testing.T) {
	minAge := int32(18)
	cmd, _, err := compile(t, where(all("Person"), expr.Ge(expr.Prop(p, "Age"), expr.Var("minAge", &minAge))), sqlgen.MustDialect("postgres", ""))
	require.NoError(t, err)
	assert.Contains(t, cmd.Template.Text(sqlgen.MustDialect("postgres", "")), `"Age" >= $1`)
}
