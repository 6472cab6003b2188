package executor

import (
	"context"
	"database/sql"
	"testing"

	_ "github.com/mattn/go-sqlite3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/satishbabariya/queryable/query/builder"
	"github.com/satishbabariya/queryable/query/compiler"
	"github.com/satishbabariya/queryable/query/expr"
	"github.com/satishbabariya/queryable/query/normalize"
	"github.com/satishbabariya/queryable/query/sqlgen"
	"github.com/satishbabariya/queryable/runtime/types"
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
`

var (
	p   = expr.Param("p")
	all = expr.All
)

type fixture struct {
	db    *sql.DB
	model *schema.Model
	d     sqlgen.Dialect
	exec  *Executor
}

func setup(t *testing.T) *fixture {
	t.Helper()
	m, err := schema.Load("zoo.schema", zoo)
	require.NoError(t, err)
	db, err := sql.Open("sqlite3", ":memory:")
	require.NoError(t, err)
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { db.Close() })

	d := sqlgen.MustDialect("sqlite", "")
	for _, tbl := range m.Tables() {
		_, err := db.Exec(d.CreateTable(tbl))
		require.NoError(t, err)
	}
	dog, cat := m.MustType("Dog").TypeID, m.MustType("Cat").TypeID
	person := m.MustType("Person").TypeID
	stmts := []struct {
		sql  string
		args []any
	}{
		{`INSERT INTO "people" ("Id", "TypeId", "Name", "Age") VALUES (?, ?, ?, ?)`, []any{1, person, "Ann", 34}},
		{`INSERT INTO "people" ("Id", "TypeId", "Name", "Age") VALUES (?, ?, ?, ?)`, []any{2, person, "Bob", 28}},
		{`INSERT INTO "people" ("Id", "TypeId", "Name", "Age") VALUES (?, ?, ?, ?)`, []any{3, person, "Cid", 34}},
		{`INSERT INTO "Animal" ("Id", "TypeId", "Name", "Owner_Id", "Breed") VALUES (?, ?, ?, ?, ?)`, []any{10, dog, "Rex", 1, "collie"}},
		{`INSERT INTO "Animal" ("Id", "TypeId", "Name", "Owner_Id", "Lives") VALUES (?, ?, ?, ?, ?)`, []any{11, cat, "Tom", 1, 9}},
		{`INSERT INTO "Animal" ("Id", "TypeId", "Name", "Owner_Id", "Lives") VALUES (?, ?, ?, ?, ?)`, []any{12, cat, "Kit", nil, 7}},
	}
	for _, s := range stmts {
		_, err := db.Exec(s.sql, s.args...)
		require.NoError(t, err)
	}
	return &fixture{db: db, model: m, d: d, exec: NewExecutor(db, d)}
}

func (f *fixture) run(t *testing.T, n expr.Node) (any, error) {
	t.Helper()
	r, err := normalize.Normalize(n)
	require.NoError(t, err)
	q, err := builder.Build(r, builder.Options{Model: f.model, Features: f.d.Features()})
	require.NoError(t, err)
	cmd, err := compiler.Compile(q, f.d)
	require.NoError(t, err)
	values, err := r.Values()
	require.NoError(t, err)
	return f.exec.Run(context.Background(), cmd, values)
}

func where(src, body expr.Node) expr.Node {
	return expr.Method(src, "Where", expr.Fn1("p", body))
}

func TestRunMaterializesEntities(t *testing.T) {
	f := setup(t)
	out, err := f.run(t, expr.Method(all("Animal"), "OrderBy", expr.Fn1("p", expr.Prop(p, "Id"))))
	require.NoError(t, err)
	items := out.([]any)
	require.Len(t, items, 3)

	rex := items[0].(*types.Entity)
	assert.Equal(t, "Dog", rex.Type.Name)
	assert.Equal(t, "collie", rex.Get("Breed"))
	owner, ok := rex.Get("Owner").(*types.Ref)
	require.True(t, ok)
	assert.Equal(t, []any{int64(1)}, owner.KeyVal)

	kit := items[2].(*types.Entity)
	assert.Equal(t, "Cat", kit.Type.Name)
	assert.Equal(t, int32(7), kit.Get("Lives"))
	assert.Nil(t, kit.Get("Owner"))
}

func TestRunProjectionsAndCapturedValues(t *testing.T) {
	f := setup(t)
	age := int32(30)
	n := expr.Method(
		where(all("Person"), expr.Gt(expr.Prop(p, "Age"), expr.Var("age", &age))),
		"Select", expr.Fn1("p", expr.Prop(p, "Name")))
	out, err := f.run(t, expr.Method(n, "OrderBy", expr.Fn1("n", expr.Param("n"))))
	require.NoError(t, err)
	assert.Equal(t, []any{"Ann", "Cid"}, out)

	age = 20
	out, err = f.run(t, n)
	require.NoError(t, err)
	assert.Len(t, out, 3)
}

func TestRunGroupingAndNestedSequences(t *testing.T) {
	f := setup(t)
	out, err := f.run(t, expr.Method(all("Person"), "GroupBy", expr.Fn1("p", expr.Prop(p, "Age"))))
	require.NoError(t, err)
	groups := map[any]int{}
	for _, it := range out.([]any) {
		g := it.(*types.Grouping)
		groups[g.Key] = len(g.Elements)
	}
	assert.Equal(t, map[any]int{int32(34): 2, int32(28): 1}, groups)

	out, err = f.run(t, expr.Method(
		where(all("Person"), expr.Eq(expr.Prop(p, "Name"), expr.Const("Ann"))),
		"Select", expr.Fn1("p", expr.Prop(p, "Pets"))))
	require.NoError(t, err)
	pets := out.([]any)
	require.Len(t, pets, 1)
	assert.Len(t, pets[0], 2)
}

func TestRunCardinality(t *testing.T) {
	f := setup(t)
	out, err := f.run(t, expr.Method(all("Person"), "Count"))
	require.NoError(t, err)
	assert.Equal(t, int32(3), out)

	_, err = f.run(t, expr.Method(all("Person"), "Single"))
	assert.ErrorIs(t, err, ErrMoreThanOneRow)

	none := where(all("Person"), expr.Gt(expr.Prop(p, "Age"), expr.Const(int32(100))))
	_, err = f.run(t, expr.Method(none, "First"))
	assert.ErrorIs(t, err, ErrNoRows)
	out, err = f.run(t, expr.Method(none, "FirstOrDefault"))
	require.NoError(t, err)
	assert.Nil(t, out)

	out, err = f.run(t, expr.Method(all("Person"), "Any"))
	require.NoError(t, err)
	assert.Equal(t, true, out)
}

func TestRunTemporaryTableList(t *testing.T) {
	f := setup(t)
	ids := []int64{1, 3, 99}
	n := where(all("Person"), expr.InList(expr.Prop(p, "Id"), expr.Const(ids), expr.IncludeTemporaryTable))
	out, err := f.run(t, n)
	require.NoError(t, err)
	assert.Len(t, out, 2)

	// the temporary table is gone once the query finished
	out, err = f.run(t, n)
	require.NoError(t, err)
	assert.Len(t, out, 2)
}

func TestApplyCardinality(t *testing.T) {
	cases := []struct {
		c     builder.Cardinality
		items []any
		want  any
		err   error
	}{
		{builder.Scalar, nil, nil, nil},
		{builder.First, []any{1, 2}, 1, nil},
		{builder.FirstOrDefault, nil, nil, nil},
		{builder.Single, []any{1}, 1, nil},
		{builder.Single, nil, nil, ErrNoRows},
		{builder.SingleOrDefault, nil, nil, nil},
		{builder.SingleOrDefault, []any{1, 2}, nil, ErrMoreThanOneRow},
	}
	for _, tc := range cases {
		t.Run(tc.c.String(), func(t *testing.T) {
			got, err := applyCardinality(tc.c, tc.items)
			if tc.err != nil {
				assert.ErrorIs(t, err, tc.err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tc.want, got)
		})
	}
}
