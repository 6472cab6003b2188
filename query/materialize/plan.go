// Package materialize turns decoded result rows into runtime values.
//
// A plan mirrors the shape of a query result: every leaf reads a column
// position of the row, and sequences run a nested command for the row.
package materialize

import (
	"context"
	"fmt"
	"strings"

	"github.com/satishbabariya/queryable/query/model"
	"github.com/satishbabariya/queryable/runtime/types"
	"github.com/satishbabariya/queryable/schema"
)

// Env is what a plan needs beyond the row itself.
type Env interface {
	// Loader resolves lazy references; it may be nil.
	Loader() types.Loader
	// Nested runs nested command index with the outer column values of the
	// current row and returns its materialized results.
	Nested(ctx context.Context, index int, outer map[model.ColumnID]any) ([]any, error)
}

// Plan reads one value from a row.
type Plan interface {
	Read(ctx context.Context, row []any, env Env) (any, error)
	describe(b *strings.Builder, indent string)
}

// Scalar reads one column.
type Scalar struct {
	Pos  int
	Type schema.ValueType
}

func (p *Scalar) Read(_ context.Context, row []any, _ Env) (any, error) {
	return row[p.Pos], nil
}

// EntityField reads one field of an entity.
type EntityField struct {
	Field *schema.Field
	Plan  Plan
}

// Entity reads a polymorphic entity. The type id column selects the
// concrete type; a NULL type id is a missing entity from an outer join.
type Entity struct {
	Type   *schema.TypeInfo
	TypeID int
	Fields []EntityField
}

func (p *Entity) Read(ctx context.Context, row []any, env Env) (any, error) {
	raw := row[p.TypeID]
	if raw == nil {
		return nil, nil
	}
	id, ok := toInt(raw)
	if !ok {
		return nil, fmt.Errorf("materialize: type id of %s is %T", p.Type.Name, raw)
	}
	concrete, ok := p.Type.DescendantByID(id)
	if !ok {
		return nil, fmt.Errorf("materialize: type id %d is not %s or one of its descendants", id, p.Type.Name)
	}
	e := types.NewEntity(concrete)
	for _, f := range p.Fields {
		if !f.Field.DeclaringType().IsAncestorOf(concrete) {
			continue
		}
		v, err := f.Plan.Read(ctx, row, env)
		if err != nil {
			return nil, err
		}
		e.Set(f.Field.Name, v)
	}
	return e, nil
}

// Structure reads a structure value.
type Structure struct {
	Type   *schema.TypeInfo
	Names  []string
	Fields []Plan
}

func (p *Structure) Read(ctx context.Context, row []any, env Env) (any, error) {
	s := types.NewStructure(p.Type)
	for i, f := range p.Fields {
		v, err := f.Read(ctx, row, env)
		if err != nil {
			return nil, err
		}
		s.Set(p.Names[i], v)
	}
	return s, nil
}

// Record reads an anonymous record.
type Record struct {
	Names   []string
	Members []Plan
}

func (p *Record) Read(ctx context.Context, row []any, env Env) (any, error) {
	r := &types.Record{Names: p.Names, Values: make([]any, len(p.Members))}
	for i, m := range p.Members {
		v, err := m.Read(ctx, row, env)
		if err != nil {
			return nil, err
		}
		r.Values[i] = v
	}
	return r, nil
}

// Ref reads a lazy entity reference from its key columns.
type Ref struct {
	Type *schema.TypeInfo
	Keys []int
}

func (p *Ref) Read(_ context.Context, row []any, env Env) (any, error) {
	key := make([]any, len(p.Keys))
	for i, pos := range p.Keys {
		key[i] = row[pos]
	}
	var loader types.Loader
	if env != nil {
		loader = env.Loader()
	}
	if r := types.NewRef(p.Type, key, loader); r != nil {
		return r, nil
	}
	return nil, nil
}

// OuterColumn passes column Pos of the row to a nested command as the value
// of its free column Sub.
type OuterColumn struct {
	Sub model.ColumnID
	Pos int
}

// Sequence runs nested command Index for the row.
type Sequence struct {
	Index int
	Outer []OuterColumn
}

func (p *Sequence) Read(ctx context.Context, row []any, env Env) (any, error) {
	if env == nil {
		return nil, fmt.Errorf("materialize: nested query %d has no executor", p.Index)
	}
	outer := make(map[model.ColumnID]any, len(p.Outer))
	for _, o := range p.Outer {
		outer[o.Sub] = row[o.Pos]
	}
	items, err := env.Nested(ctx, p.Index, outer)
	if err != nil {
		return nil, err
	}
	if items == nil {
		items = []any{}
	}
	return items, nil
}

// Grouping reads a group key and runs the query of its elements.
type Grouping struct {
	Key      Plan
	Elements *Sequence
}

func (p *Grouping) Read(ctx context.Context, row []any, env Env) (any, error) {
	key, err := p.Key.Read(ctx, row, env)
	if err != nil {
		return nil, err
	}
	items, err := p.Elements.Read(ctx, row, env)
	if err != nil {
		return nil, err
	}
	return &types.Grouping{Key: key, Elements: items.([]any)}, nil
}

func toInt(v any) (int, bool) {
	switch x := v.(type) {
	case int:
		return x, true
	case int8:
		return int(x), true
	case int16:
		return int(x), true
	case int32:
		return int(x), true
	case int64:
		return int(x), true
	case uint8:
		return int(x), true
	case uint16:
		return int(x), true
	case uint32:
		return int(x), true
	}
	return 0, false
}
