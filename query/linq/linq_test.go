package linq

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/satishbabariya/queryable/query/builder"
	"github.com/satishbabariya/queryable/query/expr"
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

func build(t *testing.T, e Expr) (*builder.Query, error) {
	t.Helper()
	m, err := schema.Load("zoo.schema", zoo)
	require.NoError(t, err)
	r, err := normalize.Normalize(e.Node())
	require.NoError(t, err)
	return builder.Build(r, builder.Options{Model: m, Features: sqlgen.MustDialect("sqlite", "").Features()})
}

func age(p expr.Node) expr.Node  { return expr.Prop(p, "Age") }
func name(p expr.Node) expr.Node { return expr.Prop(p, "Name") }

func TestOperatorsBuildCallChains(t *testing.T) {
	q := All("Person").
		Where(F("p", func(p expr.Node) expr.Node { return expr.Gt(age(p), expr.Const(int32(30))) })).
		OrderBy(F("p", name)).
		Skip(5).
		Take(10)

	take, ok := q.Node().(*expr.Call)
	require.True(t, ok)
	assert.Equal(t, "Take", take.Method)
	assert.Equal(t, []expr.Node{expr.Const(int64(10))}, take.Args)

	skip := take.Target.(*expr.Call)
	assert.Equal(t, "Skip", skip.Method)
	order := skip.Target.(*expr.Call)
	assert.Equal(t, "OrderBy", order.Method)
	where := order.Target.(*expr.Call)
	assert.Equal(t, "Where", where.Method)
	assert.Equal(t, expr.All("Person"), where.Target)

	lambda := where.Args[0].(*expr.Lambda)
	assert.Equal(t, []string{"p"}, lambda.Params)
}

func TestQueriesAreImmutable(t *testing.T) {
	base := All("Person")
	a := base.Where(F("p", func(p expr.Node) expr.Node { return expr.Gt(age(p), expr.Const(int32(1))) }))
	b := base.Take(1)

	assert.Equal(t, expr.All("Person"), base.Node())
	assert.Equal(t, "Where", a.Node().(*expr.Call).Method)
	assert.Equal(t, "Take", b.Node().(*expr.Call).Method)
}

func TestTypeOperatorsCarryTypeArgument(t *testing.T) {
	c := All("Animal").OfType("Dog").Node().(*expr.Call)
	assert.Equal(t, "OfType", c.Method)
	assert.Equal(t, "Dog", c.TypeArg)
	assert.Empty(t, c.Args)

	c = All("Dog").Cast("Animal").Node().(*expr.Call)
	assert.Equal(t, "Cast", c.Method)
	assert.Equal(t, "Animal", c.TypeArg)
}

func TestChainsTranslate(t *testing.T) {
	minAge := int32(20)
	ids := []int64{1, 2}
	older := F("p", func(p expr.Node) expr.Node { return expr.Gt(age(p), expr.Var("minAge", &minAge)) })

	cases := map[string]struct {
		q    Expr
		card builder.Cardinality
	}{
		"where select": {All("Person").Where(older).Select(F("p", name)), builder.Many},
		"paging":       {All("Person").OrderByDescending(F("p", age)).ThenBy(F("p", name)).Skip(1).Take(2), builder.Many},
		"group":        {All("Person").GroupBy(F("p", age)), builder.Many},
		"of type":      {All("Animal").OfType("Cat"), builder.Many},
		"join": {All("Animal").Join(All("Person"),
			F("a", func(a expr.Node) expr.Node { return expr.Prop(expr.Prop(a, "Owner"), "Id") }),
			F("p", func(p expr.Node) expr.Node { return expr.Prop(p, "Id") }),
			F2("a", "p", func(a, p expr.Node) expr.Node {
				return expr.Rec(expr.As("Pet", name(a)), expr.As("Owner", name(p)))
			})), builder.Many},
		"union": {All("Person").Select(F("p", name)).Union(All("Animal").Select(F("a", name))), builder.Many},
		"count": {All("Person").Count(older), builder.Scalar},
		"any":   {All("Person").Any(), builder.Scalar},
		"all":   {All("Person").All(older), builder.Scalar},
		"sum":   {All("Person").Sum(F("p", age)), builder.Scalar},
		"local contains": {All("Person").Where(F("p", func(p expr.Node) expr.Node {
			return expr.InList(expr.Prop(p, "Id"), expr.Var("ids", &ids), expr.IncludeAuto)
		})), builder.Many},
		"first":  {All("Person").First(older), builder.First},
		"single": {All("Person").SingleOrDefault(), builder.SingleOrDefault},
	}
	for label, tc := range cases {
		t.Run(label, func(t *testing.T) {
			q, err := build(t, tc.q)
			require.NoError(t, err)
			assert.Equal(t, tc.card, q.Cardinality)
		})
	}
}

func TestCapturedCountsTranslate(t *testing.T) {
	n := int64(3)
	q, err := build(t, All("Person").OrderBy(F("p", name)).TakeBy(expr.Var("n", &n)))
	require.NoError(t, err)
	assert.Equal(t, builder.Many, q.Cardinality)
}

func TestStringUsesCanonicalPrint(t *testing.T) {
	q := All("Person").Take(1)
	assert.Equal(t, expr.Print(q.Node()), q.String())
	assert.Equal(t, expr.Print(q.Count().Node()), q.Count().String())
}

func TestFromWrapsSequences(t *testing.T) {
	skip := int64(1)
	base := expr.Method(expr.All("Person"), "OrderBy", expr.Fn1("p", expr.Prop(expr.Param("p"), "Name")))
	q := From(base).SkipBy(expr.Var("skip", &skip)).Take(2)
	c := q.Node().(*expr.Call)
	assert.Equal(t, "Take", c.Method)
	assert.Equal(t, "Skip", c.Target.(*expr.Call).Method)

	built, err := build(t, q)
	require.NoError(t, err)
	assert.Equal(t, builder.Many, built.Cardinality)
}
