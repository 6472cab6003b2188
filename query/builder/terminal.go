package builder

import (
	"github.com/satishbabariya/queryable/query"
	"github.com/satishbabariya/queryable/query/expr"
	"github.com/satishbabariya/queryable/query/model"
	"github.com/satishbabariya/queryable/schema"
)

var elementCardinality = map[string]Cardinality{
	"First":           First,
	"FirstOrDefault":  FirstOrDefault,
	"Single":          Single,
	"SingleOrDefault": SingleOrDefault,
}

// terminal translates a query ending in an aggregate, quantifier or element
// operator.
func (b *builder) terminal(c *expr.Call) (*Query, error) {
	op := c.Method
	s, err := b.sequence(c.Target)
	if err != nil {
		return nil, err
	}
	if card, ok := elementCardinality[op]; ok {
		if err := b.where(op, s, c.Args); err != nil {
			return nil, err
		}
		take := int64(1)
		if card == Single || card == SingleOrDefault {
			take = 2
		}
		shape, err := b.finish(s.shape)
		if err != nil {
			return nil, err
		}
		return &Query{
			Root:        &model.Page{Child: s.node, Take: &model.Literal{Value: take, T: schema.TypeInt64}},
			Shape:       shape,
			Cardinality: card,
		}, nil
	}
	if fn, ok := foldable[op]; ok {
		agg, col, err := b.aggregate(c, fn, s)
		if err != nil {
			return nil, err
		}
		var root model.Node = agg
		x := model.Ref(col)
		if op == "Sum" {
			out := b.column("Sum", col.Type, false)
			root = &model.Project{Child: agg, Cols: []model.ProjectColumn{{Column: out, Expr: coalesceZero(x)}}}
			x = model.Ref(out)
		}
		return &Query{Root: root, Shape: &model.ScalarShape{Expr: x}, Cardinality: Scalar}, nil
	}
	var cond model.Scalar
	switch op {
	case "Any":
		if err := args(c, 0, 1); err != nil {
			return nil, err
		}
		if err := b.where(op, s, c.Args); err != nil {
			return nil, err
		}
		cond = &model.Exists{Query: s.node}
	case "All", "Contains":
		if err := args(c, 1, 1); err != nil {
			return nil, err
		}
		if cond, err = b.nested(c, s); err != nil {
			return nil, err
		}
	default:
		return nil, query.Errorf(op, query.ErrNotSupported, "operator %s", op)
	}
	col := b.column(op, schema.TypeBool, false)
	root := &model.Singleton{Cols: []model.ProjectColumn{{Column: col, Expr: &model.Case{
		Whens: []model.When{{Cond: cond, Then: &model.Literal{Value: true, T: schema.TypeBool}}},
		Else:  &model.Literal{Value: false, T: schema.TypeBool},
		T:     schema.TypeBool,
	}}}}
	return &Query{Root: root, Shape: &model.ScalarShape{Expr: model.Ref(col)}, Cardinality: Scalar}, nil
}

// finish turns the entity sets a result exposes outside of entities into
// per-row subqueries.
func (b *builder) finish(s model.Shape) (model.Shape, error) {
	switch t := s.(type) {
	case *model.EntitySetShape:
		items, err := b.entitySet("EntitySet", t)
		if err != nil {
			return nil, err
		}
		return b.collection(items), nil
	case *model.RecordShape:
		out := &model.RecordShape{Names: t.Names, Members: make([]model.Shape, len(t.Members))}
		for i, m := range t.Members {
			f, err := b.finish(m)
			if err != nil {
				return nil, err
			}
			out.Members[i] = f
		}
		return out, nil
	case *model.StructureShape:
		out := &model.StructureShape{Type: t.Type, Names: t.Names, Fields: make([]model.Shape, len(t.Fields))}
		for i, m := range t.Fields {
			f, err := b.finish(m)
			if err != nil {
				return nil, err
			}
			out.Fields[i] = f
		}
		return out, nil
	case *model.SequenceShape:
		elem, err := b.finish(t.Elem)
		if err != nil {
			return nil, err
		}
		return &model.SequenceShape{Query: t.Query, Elem: elem, Outer: t.Outer}, nil
	case *model.GroupingShape:
		elem, err := b.finish(t.Elements.Elem)
		if err != nil {
			return nil, err
		}
		return &model.GroupingShape{Key: t.Key, Elements: &model.SequenceShape{Query: t.Elements.Query, Elem: elem, Outer: t.Elements.Outer}}, nil
	}
	return s, nil
}
