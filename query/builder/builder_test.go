package builder

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/satishbabariya/queryable/query"
	"github.com/satishbabariya/queryable/query/expr"
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
`

const everything = sqlgen.Features(^uint32(0))

func translate(t *testing.T, n expr.Node, f sqlgen.Features) (*Query, error) {
	t.Helper()
	m, err := schema.Load("zoo.schema", zoo)
	require.NoError(t, err)
	r, err := normalize.Normalize(n)
	require.NoError(t, err)
	return Build(r, Options{Model: m, Features: f})
}

func mustTranslate(t *testing.T, n expr.Node) *Query {
	t.Helper()
	q, err := translate(t, n, everything)
	require.NoError(t, err)
	return q
}

var (
	p   = expr.Param("p")
	a   = expr.Param("a")
	g   = expr.Param("g")
	all = expr.All
)

func where(src expr.Node, param string, body expr.Node) expr.Node {
	return expr.Method(src, "Where", expr.Fn1(param, body))
}

func TestWhereSelect(t *testing.T) {
	q := mustTranslate(t, expr.Method(
		where(all("Person"), "p", expr.Gt(expr.Prop(p, "Age"), expr.Const(int32(30)))),
		"Select", expr.Fn1("p", expr.Prop(p, "Name"))))

	proj, ok := q.Root.(*model.Project)
	require.True(t, ok)
	require.Len(t, proj.Cols, 1)
	filter, ok := proj.Child.(*model.Filter)
	require.True(t, ok)
	_, ok = filter.Child.(*model.Scan)
	assert.True(t, ok)

	shape, ok := q.Shape.(*model.ScalarShape)
	require.True(t, ok)
	assert.Equal(t, schema.TypeString, shape.Expr.Type())
	assert.Equal(t, Many, q.Cardinality)
}

func TestNavigationJoinsOnce(t *testing.T) {
	owner := expr.Prop(a, "Owner")
	q := mustTranslate(t, where(all("Animal"), "a", expr.And(
		expr.Eq(expr.Prop(owner, "Name"), expr.Const("Ann")),
		expr.Gt(expr.Prop(owner, "Age"), expr.Const(int32(20))),
	)))

	filter := q.Root.(*model.Filter)
	join, ok := filter.Child.(*model.Join)
	require.True(t, ok)
	assert.Equal(t, model.LeftJoin, join.Kind)
	_, ok = join.Left.(*model.Scan)
	assert.True(t, ok)

	// The entity shape is still the animal's.
	e := q.Shape.(*model.EntityShape)
	assert.Equal(t, "Animal", e.Type.Name)
}

func TestReferenceKeyNeedsNoJoin(t *testing.T) {
	q := mustTranslate(t, where(all("Animal"), "a",
		expr.Eq(expr.Prop(expr.Prop(a, "Owner"), "Id"), expr.Const(int64(7)))))
	filter := q.Root.(*model.Filter)
	_, ok := filter.Child.(*model.Scan)
	assert.True(t, ok)
}

func TestOfType(t *testing.T) {
	q := mustTranslate(t, &expr.Call{Method: "OfType", Target: all("Animal"), TypeArg: "Dog"})
	tf, ok := q.Root.(*model.TypeFilter)
	require.True(t, ok)
	assert.Len(t, tf.IDs, 1)
	assert.Equal(t, "Dog", q.Shape.(*model.EntityShape).Type.Name)

	q = mustTranslate(t, &expr.Call{Method: "OfType", Target: all("Dog"), TypeArg: "Cat"})
	_, ok = q.Root.(*model.Empty)
	assert.True(t, ok)

	q = mustTranslate(t, &expr.Call{Method: "OfType", Target: all("Dog"), TypeArg: "Animal"})
	_, ok = q.Root.(*model.Scan)
	assert.True(t, ok)

	_, err := translate(t, &expr.Call{Method: "Cast", Target: all("Dog"), TypeArg: "Cat"}, everything)
	assert.ErrorIs(t, err, query.ErrNotSupported)

	_, err = translate(t, &expr.Call{Method: "OfType", Target: all("Dog"), TypeArg: "Person"}, everything)
	assert.ErrorIs(t, err, query.ErrNotSupported)
}

func TestGroupByFoldsAggregates(t *testing.T) {
	grouped := expr.Method(all("Person"), "GroupBy", expr.Fn1("p", expr.Prop(p, "Age")))
	q := mustTranslate(t, expr.Method(
		where(grouped, "g", expr.Gt(expr.Method(g, "Count"), expr.Const(int32(1)))),
		"Select", expr.Fn1("g", expr.Rec(
			expr.As("Age", expr.Prop(g, "Key")),
			expr.As("Oldest", expr.Method(g, "Max", expr.Fn1("p", expr.Prop(p, "Name")))),
		))))

	proj := q.Root.(*model.Project)
	having, ok := proj.Child.(*model.Filter)
	require.True(t, ok)
	gb, ok := having.Child.(*model.GroupBy)
	require.True(t, ok)
	assert.Len(t, gb.Keys, 1)
	require.Len(t, gb.Aggs, 2)
	assert.Equal(t, model.AggCount, gb.Aggs[0].Func)
	assert.Equal(t, model.AggMax, gb.Aggs[1].Func)
}

func TestGroupingResultCarriesElements(t *testing.T) {
	q := mustTranslate(t, expr.Method(all("Person"), "GroupBy", expr.Fn1("p", expr.Prop(p, "Age"))))
	gs, ok := q.Shape.(*model.GroupingShape)
	require.True(t, ok)
	require.NotNil(t, gs.Elements)
	require.Len(t, gs.Elements.Outer, 1)
	key := q.Root.(*model.GroupBy).Keys[0].ID
	assert.Equal(t, key, gs.Elements.Outer[0].Col)
}

func TestScalarSubqueriesNeedFeature(t *testing.T) {
	pets := expr.Prop(p, "Pets")
	n := where(all("Person"), "p", expr.Gt(expr.Method(pets, "Count"), expr.Const(int32(1))))

	_, err := translate(t, n, everything&^sqlgen.FeatureScalarSubqueries)
	assert.ErrorIs(t, err, query.ErrFeatureNotSupported)

	q, err := translate(t, where(all("Person"), "p", expr.Method(pets, "Any")), everything&^sqlgen.FeatureScalarSubqueries)
	require.NoError(t, err)
	filter := q.Root.(*model.Filter)
	_, ok := filter.Pred.(*model.Exists)
	assert.True(t, ok)
}

func TestEntitySetInProjection(t *testing.T) {
	q := mustTranslate(t, expr.Method(all("Person"), "Select", expr.Fn1("p", expr.Rec(
		expr.As("Name", expr.Prop(p, "Name")),
		expr.As("Pets", expr.Prop(p, "Pets")),
	))))
	r := q.Shape.(*model.RecordShape)
	sq, ok := r.Members[1].(*model.SequenceShape)
	require.True(t, ok)
	require.Len(t, sq.Outer, 1)

	proj := q.Root.(*model.Project)
	_, found := model.ColumnByID(proj, sq.Outer[0].Col)
	assert.True(t, found)
}

func TestSetOperations(t *testing.T) {
	names := expr.Method(all("Person"), "Select", expr.Fn1("p", expr.Prop(p, "Name")))
	ids := expr.Method(all("Person"), "Select", expr.Fn1("p", expr.Prop(p, "Id")))
	animals := expr.Method(all("Animal"), "Select", expr.Fn1("a", expr.Prop(a, "Name")))

	q := mustTranslate(t, expr.Method(names, "Union", animals))
	so, ok := q.Root.(*model.SetOp)
	require.True(t, ok)
	assert.Equal(t, model.Union, so.Kind)

	_, err := translate(t, expr.Method(names, "Union", ids), everything)
	assert.ErrorIs(t, err, query.ErrTypeMismatch)

	_, err = translate(t, expr.Method(names, "Except", animals), everything&^sqlgen.FeatureIntersectExcept)
	assert.ErrorIs(t, err, query.ErrFeatureNotSupported)

	paged := expr.Method(names, "Take", expr.Const(3))
	_, err = translate(t, expr.Method(paged, "Concat", animals), everything&^sqlgen.FeaturePagingInSetOperations)
	assert.ErrorIs(t, err, query.ErrFeatureNotSupported)
}

func TestTerminals(t *testing.T) {
	q := mustTranslate(t, expr.Method(all("Person"), "Count"))
	_, ok := q.Root.(*model.Aggregate)
	assert.True(t, ok)
	assert.Equal(t, Scalar, q.Cardinality)
	assert.Equal(t, schema.TypeInt32, q.Shape.(*model.ScalarShape).Expr.Type())

	q = mustTranslate(t, expr.Method(all("Person"), "Sum", expr.Fn1("p", expr.Prop(p, "Age"))))
	_, ok = q.Root.(*model.Project)
	assert.True(t, ok)

	q = mustTranslate(t, expr.Method(all("Person"), "Any"))
	_, ok = q.Root.(*model.Singleton)
	assert.True(t, ok)

	q = mustTranslate(t, expr.Method(all("Person"), "Single"))
	page := q.Root.(*model.Page)
	assert.Equal(t, int64(2), page.Take.(*model.Literal).Value)
	assert.Equal(t, Single, q.Cardinality)

	q = mustTranslate(t, expr.Method(all("Person"), "FirstOrDefault"))
	assert.Equal(t, int64(1), q.Root.(*model.Page).Take.(*model.Literal).Value)
}

func TestLocalContains(t *testing.T) {
	ages := []int32{30, 40}
	q := mustTranslate(t, where(all("Person"), "p",
		expr.Method(expr.Const(ages), "Contains", expr.Prop(p, "Age"))))
	in, ok := q.Root.(*model.Filter).Pred.(*model.InList)
	require.True(t, ok)
	assert.Equal(t, -1, in.Binding)
	assert.Equal(t, []schema.ValueType{schema.TypeInt32}, in.Types)
}

func TestArgumentErrors(t *testing.T) {
	_, err := translate(t, expr.Method(all("Person"), "Take", expr.Const(-1)), everything)
	assert.ErrorIs(t, err, query.ErrOutOfRange)

	_, err = translate(t, where(all("Person"), "p", expr.Eq(expr.Prop(p, "Nickname"), expr.Const("x"))), everything)
	assert.ErrorIs(t, err, query.ErrFieldNotFound)

	_, err = translate(t, where(all("Person"), "p", expr.Eq(expr.Prop(p, "Name"), expr.Const(1))), everything)
	assert.ErrorIs(t, err, query.ErrTypeMismatch)

	_, err = translate(t, where(all("Person"), "p", expr.Prop(p, "Name")), everything)
	assert.ErrorIs(t, err, query.ErrTypeMismatch)
}

func TestFullTextNeedsFeature(t *testing.T) {
	n := where(all("Person"), "p", expr.Match(expr.Prop(p, "Name"), expr.Const("dog")))
	_, err := translate(t, n, everything&^sqlgen.FeatureFullText)
	assert.ErrorIs(t, err, query.ErrFeatureNotSupported)

	q, err := translate(t, n, everything)
	require.NoError(t, err)
	c, ok := q.Root.(*model.Filter).Pred.(*model.Contains)
	require.True(t, ok)
	assert.True(t, c.Condition.Search)
}

func TestSelectManyEntitySet(t *testing.T) {
	q := mustTranslate(t, expr.Method(all("Person"), "SelectMany", expr.Fn1("p", expr.Prop(p, "Pets"))))
	j, ok := q.Root.(*model.Join)
	require.True(t, ok)
	assert.Equal(t, model.InnerJoin, j.Kind)
	assert.Equal(t, "Animal", q.Shape.(*model.EntityShape).Type.Name)
}

func TestStringMethods(t *testing.T) {
	q := mustTranslate(t, where(all("Person"), "p",
		expr.Method(expr.Prop(p, "Name"), "StartsWith", expr.Const("A_"))))
	like := q.Root.(*model.Filter).Pred.(*model.Like)
	assert.Equal(t, model.LikePrefix, like.Mode)
	assert.Equal(t, `A\_%`, like.Pattern.(*model.Literal).Value)
}
