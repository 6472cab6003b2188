package materialize

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/satishbabariya/queryable/query/model"
	"github.com/satishbabariya/queryable/runtime/types"
	"github.com/satishbabariya/queryable/schema"
)

const zoo = `
entity Person { key Id int64  Name string }
abstract entity Animal @scheme("single_table") { key Id int64  Name string  Owner -> Person? }
entity Dog : Animal { Breed string }
entity Cat : Animal { Lives int32 }
`

type fakeEnv struct {
	calls []map[model.ColumnID]any
}

func (f *fakeEnv) Loader() types.Loader { return nil }

func (f *fakeEnv) Nested(_ context.Context, index int, outer map[model.ColumnID]any) ([]any, error) {
	f.calls = append(f.calls, outer)
	return []any{index, outer[7]}, nil
}

func load(t *testing.T) *schema.Model {
	t.Helper()
	m, err := schema.Load("zoo.schema", zoo)
	require.NoError(t, err)
	return m
}

func animalPlan(m *schema.Model) *Entity {
	animal := m.MustType("Animal")
	field := func(t, name string) *schema.Field {
		f, _ := m.MustType(t).Field(name)
		return f
	}
	return &Entity{Type: animal, TypeID: 0, Fields: []EntityField{
		{Field: field("Animal", "Id"), Plan: &Scalar{Pos: 1}},
		{Field: field("Animal", "Name"), Plan: &Scalar{Pos: 2}},
		{Field: field("Animal", "Owner"), Plan: &Ref{Type: m.MustType("Person"), Keys: []int{3}}},
		{Field: field("Dog", "Breed"), Plan: &Scalar{Pos: 4}},
		{Field: field("Cat", "Lives"), Plan: &Scalar{Pos: 5}},
	}}
}

func TestEntityPicksConcreteType(t *testing.T) {
	m := load(t)
	p := animalPlan(m)
	dog := m.MustType("Dog")

	v, err := p.Read(context.Background(), []any{int32(dog.TypeID), int64(1), "Rex", int64(9), "Collie", nil}, nil)
	require.NoError(t, err)
	e := v.(*types.Entity)
	assert.Equal(t, "Dog", e.Type.Name)
	assert.Equal(t, "Collie", e.Get("Breed"))
	assert.Nil(t, e.Get("Lives"))
	ref := e.Get("Owner").(*types.Ref)
	assert.Equal(t, []any{int64(9)}, ref.KeyVal)
}

func TestEntityMissingAndNullRef(t *testing.T) {
	m := load(t)
	p := animalPlan(m)

	v, err := p.Read(context.Background(), []any{nil, nil, nil, nil, nil, nil}, nil)
	require.NoError(t, err)
	assert.Nil(t, v)

	cat := m.MustType("Cat")
	v, err = p.Read(context.Background(), []any{int64(cat.TypeID), int64(2), "Tom", nil, nil, int32(7)}, nil)
	require.NoError(t, err)
	assert.Nil(t, v.(*types.Entity).Get("Owner"))

	_, err = p.Read(context.Background(), []any{int64(999), int64(2), "Tom", nil, nil, nil}, nil)
	assert.Error(t, err)
}

func TestGroupingRunsNestedQuery(t *testing.T) {
	env := &fakeEnv{}
	p := &Grouping{
		Key:      &Scalar{Pos: 0},
		Elements: &Sequence{Index: 2, Outer: []OuterColumn{{Sub: 7, Pos: 0}}},
	}
	v, err := p.Read(context.Background(), []any{"a"}, env)
	require.NoError(t, err)
	g := v.(*types.Grouping)
	assert.Equal(t, "a", g.Key)
	assert.Equal(t, []any{2, "a"}, g.Elements)
	require.Len(t, env.calls, 1)
}

func TestRecordAndDescribe(t *testing.T) {
	p := &Record{Names: []string{"A", "B"}, Members: []Plan{&Scalar{Pos: 1, Type: schema.TypeString}, &Scalar{Pos: 0, Type: schema.TypeInt32}}}
	v, err := p.Read(context.Background(), []any{int32(1), "x"}, nil)
	require.NoError(t, err)
	assert.Equal(t, "x", v.(*types.Record).Get("A"))
	assert.Contains(t, Describe(p), "scalar string @1")
}
