package builder

import (
	"github.com/satishbabariya/queryable/query"
	"github.com/satishbabariya/queryable/query/expr"
	"github.com/satishbabariya/queryable/query/model"
)

// grouping is the build-time state of one GroupBy.
type grouping struct {
	node *model.GroupBy
	// elem is the element shape over the columns of node.Child.
	elem  model.Shape
	joins map[string]*model.EntityShape
	// fresh translates the grouped source again with new column ids and
	// returns it with its element shape and key.
	fresh func() (*seq, model.Shape, error)
}

func (b *builder) groupBy(c *expr.Call, s *seq) (*seq, error) {
	op := c.Method
	if err := args(c, 1, 2); err != nil {
		return nil, err
	}
	translate := func(src *seq) (key, elem model.Shape, err error) {
		if key, err = b.apply(op, c.Args[0], src.arg()); err != nil {
			return nil, nil, err
		}
		if hasCollections(key) {
			return nil, nil, query.Errorf(op, query.ErrNotSupported, "grouping key holds a collection")
		}
		elem = src.shape
		if len(c.Args) == 2 {
			if elem, err = b.apply(op, c.Args[1], src.arg()); err != nil {
				return nil, nil, err
			}
		}
		return key, elem, nil
	}
	key, elem, err := translate(s)
	if err != nil {
		return nil, err
	}
	gb := &model.GroupBy{Child: s.node}
	keyShape := model.Rebind(key, func(x model.Scalar) model.Scalar {
		col := b.column("Key", x.Type(), x.Null())
		gb.Keys = append(gb.Keys, model.ProjectColumn{Column: col, Expr: x})
		return model.Ref(col)
	})
	scope := append([]scopeEntry(nil), b.scope...)
	g := &grouping{node: gb, elem: elem, joins: s.joins}
	g.fresh = func() (*seq, model.Shape, error) {
		saved := b.scope
		b.scope = append([]scopeEntry(nil), scope...)
		defer func() { b.scope = saved }()
		src, err := b.sequence(c.Target)
		if err != nil {
			return nil, nil, err
		}
		key, elem, err := translate(src)
		if err != nil {
			return nil, nil, err
		}
		src.shape = elem
		return src, key, nil
	}
	gs := &model.GroupingShape{Key: keyShape}
	elements, err := b.correlatedElements(op, g, keyShape)
	if err != nil {
		return nil, err
	}
	gs.Elements = b.collection(elements)
	b.groups[gs.Elements] = g
	return newSeq(gb, gs), nil
}

// correlatedElements is a fresh copy of the grouped source restricted to
// the group whose key is key.
func (b *builder) correlatedElements(op string, g *grouping, key model.Shape) (*seq, error) {
	src, k, err := g.fresh()
	if err != nil {
		return nil, err
	}
	eq, err := b.compare(op, model.Eq, k, key)
	if err != nil {
		return nil, err
	}
	src.node = &model.Filter{Child: src.node, Pred: eq}
	return src, nil
}

// elementsOf is the sequence of elements of a group used inside a query.
func (b *builder) elementsOf(op string, gs *model.GroupingShape) (*seq, error) {
	g := b.groups[gs.Elements]
	if g == nil {
		return nil, query.Errorf(op, query.ErrNotSupported, "group elements are not available here")
	}
	return b.correlatedElements(op, g, gs.Key)
}

// reachable reports whether the columns of gb are visible to the innermost
// frames, so aggregates over its groups can be computed by gb itself.
func (b *builder) reachable(gb *model.GroupBy) bool {
	for i := len(b.frames) - 1; i >= 0; i-- {
		if passesTo(*b.frames[i].node, gb) {
			return true
		}
	}
	return false
}

func passesTo(n model.Node, gb *model.GroupBy) bool {
	switch t := n.(type) {
	case *model.GroupBy:
		return t == gb
	case *model.Filter, *model.OrderBy, *model.Page, *model.TypeFilter, *model.Distinct:
		return passesTo(model.Children(n)[0], gb)
	case *model.Join:
		return passesTo(t.Left, gb) || passesTo(t.Right, gb)
	}
	return false
}

// fold adds an aggregate column to the GroupBy of g.
func (b *builder) fold(n *expr.Call, fn model.AggFunc, g *grouping) (model.Shape, error) {
	elem := lambdaArg{shape: g.elem, frame: &frame{node: &g.node.Child, joins: g.joins}}
	a, err := b.aggColumn(n, fn, elem)
	if err != nil {
		return nil, err
	}
	g.node.Aggs = append(g.node.Aggs, a)
	var x model.Scalar = model.Ref(a.Column)
	if n.Method == "Sum" {
		x = coalesceZero(x)
	}
	return &model.ScalarShape{Expr: x}, nil
}

// flattenGroups turns a sequence of groups back into the elements of the
// groups it still holds.
func (b *builder) flattenGroups(op string, s *seq, gs *model.GroupingShape) (*seq, model.Shape, error) {
	g := b.groups[gs.Elements]
	if g == nil {
		return nil, nil, query.Errorf(op, query.ErrNotSupported, "group elements are not available here")
	}
	src, key, err := g.fresh()
	if err != nil {
		return nil, nil, err
	}
	if s.node == model.Node(g.node) {
		return src, key, nil
	}
	outer, ok := s.shape.(*model.GroupingShape)
	if !ok {
		return nil, nil, query.Errorf(op, query.ErrNotSupported, "flattening groups nested in a projection")
	}
	eq, err := b.compare(op, model.Eq, outer.Key, key)
	if err != nil {
		return nil, nil, err
	}
	src.node = &model.Filter{Child: src.node, Pred: &model.Exists{Query: &model.Filter{Child: s.node, Pred: eq}}}
	return src, key, nil
}
