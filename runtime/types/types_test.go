package types

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/satishbabariya/queryable/schema"
)

const shop = `
entity Customer {
  key Id int64
  Name string
  Orders Order* inverse Customer
}

entity Order {
  key Id int64
  Total decimal
  Customer -> Customer?
}
`

type loaderFunc func(ctx context.Context, t *schema.TypeInfo, key []any) (*Entity, error)

func (f loaderFunc) LoadEntity(ctx context.Context, t *schema.TypeInfo, key []any) (*Entity, error) {
	return f(ctx, t, key)
}

func shopModel(t *testing.T) *schema.Model {
	t.Helper()
	m, err := schema.Load("shop.schema", shop)
	require.NoError(t, err)
	return m
}

func TestEntity(t *testing.T) {
	m := shopModel(t)
	customer := m.MustType("Customer")
	nick := "Ann"
	e := NewEntity(customer).Set("Id", int64(7)).Set("Name", &nick)

	assert.Equal(t, []any{int64(7)}, e.Key())
	assert.Equal(t, "Customer{Id: 7, Name: Ann}", e.String())

	order := NewEntity(m.MustType("Order")).Set("Id", int64(1)).Set("Total", NewDecimal("12.50"))
	assert.Contains(t, order.String(), "Total: 12.50")
}

func TestNewDecimal(t *testing.T) {
	assert.Equal(t, "0.125", NewDecimal("0.125").String())
	assert.Panics(t, func() { NewDecimal("twelve") })
}

func TestRecord(t *testing.T) {
	r := &Record{Names: []string{"Name", "Count"}, Values: []any{"Ann", int32(2)}}
	assert.Equal(t, int32(2), r.Get("Count"))
	assert.Nil(t, r.Get("Missing"))
	assert.Equal(t, "{ Name = Ann, Count = 2 }", r.String())

	g := &Grouping{Key: int32(34), Elements: []any{r, r}}
	assert.Equal(t, 2, g.Len())
}

func TestRef(t *testing.T) {
	m := shopModel(t)
	customer := m.MustType("Customer")
	assert.Nil(t, NewRef(customer, []any{nil}, nil))

	detached := NewRef(customer, []any{int64(7)}, nil)
	require.NotNil(t, detached)
	assert.Equal(t, "Customer[7]", detached.String())
	_, err := detached.Load(context.Background())
	assert.Error(t, err)

	var asked []any
	ref := NewRef(customer, []any{int64(7)}, loaderFunc(func(_ context.Context, t *schema.TypeInfo, key []any) (*Entity, error) {
		asked = key
		return NewEntity(t).Set("Id", key[0]), nil
	}))
	e, err := ref.Load(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []any{int64(7)}, asked)
	assert.Equal(t, int64(7), e.Get("Id"))
}
