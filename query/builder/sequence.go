package builder

import (
	"reflect"

	"github.com/satishbabariya/queryable/query"
	"github.com/satishbabariya/queryable/query/expr"
	"github.com/satishbabariya/queryable/query/model"
	"github.com/satishbabariya/queryable/query/sqlgen"
	"github.com/satishbabariya/queryable/schema"
)

// sequence translates an expression denoting a sequence.
func (b *builder) sequence(n expr.Node) (*seq, error) {
	switch t := n.(type) {
	case *expr.Source:
		typ, ok := b.model.Type(t.Type)
		if !ok {
			return nil, query.Errorf("All", query.ErrNotSupported, "unknown type %s", t.Type)
		}
		return b.scan("All", typ)
	case *expr.Local, *expr.Placeholder, *expr.Constant:
		return b.local("Local", n)
	case *expr.Call:
		if sequenceMethods[t.Method] {
			return b.operator(t)
		}
		if terminalMethods[t.Method] {
			return nil, query.Errorf(t.Method, query.ErrNotSupported, "result of %s used as a sequence", t.Method)
		}
	}
	v, err := b.value(n)
	if err != nil {
		return nil, err
	}
	switch v := v.(type) {
	case *model.EntitySetShape:
		return b.entitySet("EntitySet", v)
	case *model.GroupingShape:
		return b.elementsOf("Grouping", v)
	case *model.SequenceShape:
		return nil, query.Errorf("Sequence", query.ErrNotSupported, "a projected collection cannot be queried further")
	}
	return nil, query.Errorf("Sequence", query.ErrInvalidArgument, "%s is not a sequence", n)
}

func args(c *expr.Call, min, max int) error {
	if len(c.Args) < min || len(c.Args) > max {
		if min == max {
			return query.Errorf(c.Method, query.ErrInvalidArgument, "%s takes %d arguments, got %d", c.Method, min, len(c.Args))
		}
		return query.Errorf(c.Method, query.ErrInvalidArgument, "%s takes %d to %d arguments, got %d", c.Method, min, max, len(c.Args))
	}
	return nil
}

func (b *builder) operator(c *expr.Call) (*seq, error) {
	op := c.Method
	s, err := b.sequence(c.Target)
	if err != nil {
		return nil, err
	}
	switch op {
	case "Where":
		if err := args(c, 1, 1); err != nil {
			return nil, err
		}
		if err := b.where(op, s, c.Args); err != nil {
			return nil, err
		}
		return s, nil
	case "Select":
		if err := args(c, 1, 1); err != nil {
			return nil, err
		}
		shape, err := b.apply(op, c.Args[0], s.arg())
		if err != nil {
			return nil, err
		}
		return b.project(s.node, shape), nil
	case "SelectMany":
		return b.selectMany(c, s)
	case "OrderBy", "OrderByDescending", "ThenBy", "ThenByDescending":
		return b.orderBy(c, s)
	case "Take", "Skip":
		return b.page(c, s)
	case "Distinct":
		if err := args(c, 0, 0); err != nil {
			return nil, err
		}
		if hasCollections(s.shape) {
			return nil, query.Errorf(op, query.ErrNotSupported, "Distinct over values holding collections")
		}
		s.node = &model.Distinct{Child: s.node}
		return s, nil
	case "GroupBy":
		return b.groupBy(c, s)
	case "Join", "LeftJoin":
		return b.join(c, s)
	case "Union", "Concat", "Intersect", "Except":
		return b.setOp(c, s)
	case "OfType", "Cast":
		return b.ofType(c, s)
	}
	return nil, query.Errorf(op, query.ErrNotSupported, "operator %s", op)
}

// hasCollections reports whether s holds sequences or entity sets outside of
// entity fields.
func hasCollections(s model.Shape) bool {
	switch s := s.(type) {
	case *model.SequenceShape, *model.EntitySetShape, *model.GroupingShape:
		return true
	case *model.StructureShape:
		for _, f := range s.Fields {
			if hasCollections(f) {
				return true
			}
		}
	case *model.RecordShape:
		for _, m := range s.Members {
			if hasCollections(m) {
				return true
			}
		}
	}
	return false
}

// project computes every scalar of shape as a column of a Project over
// child. Collections are carried through the columns their correlation
// reads.
func (b *builder) project(child model.Node, shape model.Shape) *seq {
	p := &model.Project{Child: child}
	add := func(x model.Scalar) model.Scalar {
		col := b.column("Expr", x.Type(), x.Null())
		p.Cols = append(p.Cols, model.ProjectColumn{Column: col, Expr: x})
		return model.Ref(col)
	}
	out := model.Rebind(shape, add)
	out = model.MapSequences(out, func(sq *model.SequenceShape) *model.SequenceShape {
		refs := map[model.ColumnID]*model.ColumnRef{}
		for _, r := range model.FreeRefs(sq.Query) {
			refs[r.ID] = r
		}
		ns := &model.SequenceShape{Query: sq.Query, Elem: sq.Elem}
		for _, o := range sq.Outer {
			r := refs[o.Sub]
			if r == nil {
				r = &model.ColumnRef{ID: o.Sub, Nullable: true}
			}
			ref := add(&model.ColumnRef{ID: o.Col, T: r.T, Nullable: r.Nullable}).(*model.ColumnRef)
			ns.Outer = append(ns.Outer, model.OuterBinding{Sub: o.Sub, Col: ref.ID})
		}
		if g := b.groups[sq]; g != nil {
			b.groups[ns] = g
		}
		return ns
	})
	return newSeq(p, out)
}

func (b *builder) orderBy(c *expr.Call, s *seq) (*seq, error) {
	op := c.Method
	if err := args(c, 1, 1); err != nil {
		return nil, err
	}
	desc := op == "OrderByDescending" || op == "ThenByDescending"
	if op == "OrderBy" || op == "OrderByDescending" {
		keys, err := b.sortKeys(op, c.Args[0], s.arg(), desc)
		if err != nil {
			return nil, err
		}
		s.node = &model.OrderBy{Child: s.node, Keys: keys}
		return s, nil
	}
	prev, ok := s.node.(*model.OrderBy)
	if !ok {
		return nil, query.Errorf(op, query.ErrInvalidArgument, "%s must follow OrderBy", op)
	}
	child := prev.Child
	keys, err := b.sortKeys(op, c.Args[0], lambdaArg{shape: s.shape, frame: &frame{node: &child, joins: s.joins}}, desc)
	if err != nil {
		return nil, err
	}
	s.node = &model.OrderBy{Child: child, Keys: append(append([]model.SortKey(nil), prev.Keys...), keys...)}
	return s, nil
}

func (b *builder) sortKeys(op string, l expr.Node, a lambdaArg, desc bool) ([]model.SortKey, error) {
	shape, err := b.apply(op, l, a)
	if err != nil {
		return nil, err
	}
	var scalars []model.Scalar
	switch t := shape.(type) {
	case *model.EntityShape:
		scalars = t.Keys()
	case *model.ScalarShape, *model.RecordShape, *model.StructureShape, *model.RefShape:
		if hasCollections(shape) {
			return nil, query.Errorf(op, query.ErrNotSupported, "ordering by a collection")
		}
		scalars = model.Flatten(shape)
	default:
		return nil, query.Errorf(op, query.ErrNotSupported, "ordering by %T", shape)
	}
	keys := make([]model.SortKey, len(scalars))
	for i, x := range scalars {
		keys[i] = model.SortKey{Expr: x, Desc: desc}
	}
	return keys, nil
}

func (b *builder) page(c *expr.Call, s *seq) (*seq, error) {
	op := c.Method
	if err := args(c, 1, 1); err != nil {
		return nil, err
	}
	var n model.Scalar
	switch a := c.Args[0].(type) {
	case *expr.Constant:
		v := reflect.ValueOf(a.Value)
		if !v.IsValid() || !v.CanInt() {
			return nil, query.Errorf(op, query.ErrInvalidArgument, "%s count must be an integer", op)
		}
		if v.Int() < 0 {
			return nil, query.Errorf(op, query.ErrOutOfRange, "%s count %d is negative", op, v.Int())
		}
		n = &model.Literal{Value: v.Int(), T: schema.TypeInt64}
	case *expr.Placeholder:
		if vt, ok := schema.ValueTypeOf(a.Type); !ok || !vt.IsInteger() {
			return nil, query.Errorf(op, query.ErrInvalidArgument, "%s count must be an integer", op)
		}
		n = &model.Param{Index: a.Index, T: schema.TypeInt64}
	default:
		return nil, query.Errorf(op, query.ErrNotSupported, "%s count must be a constant or captured value", op)
	}
	if op == "Take" {
		if p, ok := s.node.(*model.Page); ok && p.Take == nil {
			s.node = &model.Page{Child: p.Child, Skip: p.Skip, Take: n}
			return s, nil
		}
		s.node = &model.Page{Child: s.node, Take: n}
		return s, nil
	}
	s.node = &model.Page{Child: s.node, Skip: n}
	return s, nil
}

func (b *builder) join(c *expr.Call, s *seq) (*seq, error) {
	op := c.Method
	if err := args(c, 4, 4); err != nil {
		return nil, err
	}
	inner, err := b.sequence(c.Args[0])
	if err != nil {
		return nil, err
	}
	outerKey, err := b.apply(op, c.Args[1], s.arg())
	if err != nil {
		return nil, err
	}
	innerKey, err := b.apply(op, c.Args[2], inner.arg())
	if err != nil {
		return nil, err
	}
	on, err := b.compare(op, model.Eq, outerKey, innerKey)
	if err != nil {
		return nil, err
	}
	kind := model.InnerJoin
	innerShape := inner.shape
	if op == "LeftJoin" {
		kind = model.LeftJoin
		innerShape = nullable(innerShape)
	}
	joined := newSeq(&model.Join{Kind: kind, Left: s.node, Right: inner.node, On: on}, nil)
	f := joined.frame()
	res, err := b.apply(op, c.Args[3], lambdaArg{shape: s.shape, frame: f}, lambdaArg{shape: innerShape, frame: f})
	if err != nil {
		return nil, err
	}
	return b.project(joined.node, res), nil
}

func (b *builder) selectMany(c *expr.Call, s *seq) (*seq, error) {
	op := c.Method
	if err := args(c, 1, 2); err != nil {
		return nil, err
	}
	coll, err := b.apply(op, c.Args[0], s.arg())
	if err != nil {
		return nil, err
	}
	var out *seq
	var outer model.Shape = s.shape
	switch t := coll.(type) {
	case *model.GroupingShape:
		var key model.Shape
		out, key, err = b.flattenGroups(op, s, t)
		if err != nil {
			return nil, err
		}
		outer = &model.GroupingShape{Key: key, Elements: t.Elements}
	case *model.EntitySetShape:
		items, err := b.entitySet(op, t)
		if err != nil {
			return nil, err
		}
		if out, err = b.correlatedJoin(op, s, items.node, items.shape); err != nil {
			return nil, err
		}
	case *model.SequenceShape:
		if out, err = b.correlatedJoin(op, s, t.Query, t.Elem); err != nil {
			return nil, err
		}
	default:
		return nil, query.Errorf(op, query.ErrInvalidArgument, "collection selector returns %T, not a sequence", coll)
	}
	if len(c.Args) == 1 {
		return out, nil
	}
	f := out.frame()
	res, err := b.apply(op, c.Args[1], lambdaArg{shape: outer, frame: f}, lambdaArg{shape: out.shape, frame: f})
	if err != nil {
		return nil, err
	}
	return b.project(out.node, res), nil
}

// correlatedJoin flattens a subquery correlated with s into an inner join:
// the subquery must be a chain of filters, optionally projected, over an
// uncorrelated input.
func (b *builder) correlatedJoin(op string, s *seq, sub model.Node, elem model.Shape) (*seq, error) {
	if p, ok := sub.(*model.Project); ok {
		exprs := map[model.ColumnID]model.Scalar{}
		for _, c := range p.Cols {
			exprs[c.ID] = c.Expr
		}
		elem = model.Rebind(elem, func(old model.Scalar) model.Scalar {
			if r, ok := old.(*model.ColumnRef); ok && exprs[r.ID] != nil {
				return exprs[r.ID]
			}
			return old
		})
		if hasCollections(elem) {
			return nil, query.Errorf(op, query.ErrNotSupported, "flattening a projection holding collections")
		}
		sub = p.Child
	}
	var preds []model.Scalar
	for {
		f, ok := sub.(*model.Filter)
		if !ok || len(model.FreeRefs(sub)) == 0 {
			break
		}
		preds = append(preds, f.Pred)
		sub = f.Child
	}
	if len(model.FreeRefs(sub)) > 0 {
		return nil, query.Errorf(op, query.ErrNotSupported, "collection selector is too complex to flatten")
	}
	var on model.Scalar = &model.Literal{Value: true, T: schema.TypeBool}
	if len(preds) > 0 {
		on = and(preds...)
	}
	return newSeq(&model.Join{Kind: model.InnerJoin, Left: s.node, Right: sub, On: on}, elem), nil
}

func (b *builder) setOp(c *expr.Call, s *seq) (*seq, error) {
	op := c.Method
	if err := args(c, 1, 1); err != nil {
		return nil, err
	}
	kind := map[string]model.SetOpKind{"Union": model.Union, "Concat": model.UnionAll, "Intersect": model.Intersect, "Except": model.Except}[op]
	if kind == model.Intersect || kind == model.Except {
		if err := b.require(sqlgen.FeatureIntersectExcept, op, op); err != nil {
			return nil, err
		}
	}
	right, err := b.sequence(c.Args[0])
	if err != nil {
		return nil, err
	}
	if hasCollections(s.shape) || hasCollections(right.shape) {
		return nil, query.Errorf(op, query.ErrNotSupported, "%s of values holding collections", op)
	}
	if hasPage(s.node) || hasPage(right.node) {
		if err := b.require(sqlgen.FeaturePagingInSetOperations, op, "paged operands of "+op); err != nil {
			return nil, err
		}
	}
	ls, rs := model.Flatten(s.shape), model.Flatten(right.shape)
	if len(ls) != len(rs) {
		return nil, query.Errorf(op, query.ErrTypeMismatch, "operands have %d and %d columns", len(ls), len(rs))
	}
	node := &model.SetOp{Kind: kind}
	lp, rp := &model.Project{Child: s.node}, &model.Project{Child: right.node}
	for i := range ls {
		if !compatible(ls[i].Type(), rs[i].Type()) {
			return nil, query.Errorf(op, query.ErrTypeMismatch, "column %d has types %s and %s", i, ls[i].Type(), rs[i].Type())
		}
		t := ls[i].Type()
		if t.IsNumeric() || t == schema.TypeUnknown {
			t = wider(t, rs[i].Type())
		}
		lp.Cols = append(lp.Cols, model.ProjectColumn{Column: b.column("Expr", t, ls[i].Null()), Expr: ls[i]})
		rp.Cols = append(rp.Cols, model.ProjectColumn{Column: b.column("Expr", t, rs[i].Null()), Expr: rs[i]})
		node.Cols = append(node.Cols, b.column("Expr", t, ls[i].Null() || rs[i].Null()))
	}
	node.Left, node.Right = lp, rp
	i := 0
	shape := model.Rebind(s.shape, func(model.Scalar) model.Scalar {
		r := model.Ref(node.Cols[i])
		i++
		return r
	})
	return newSeq(node, shape), nil
}

func hasPage(n model.Node) bool {
	if _, ok := n.(*model.Page); ok {
		return true
	}
	for _, c := range model.Children(n) {
		if hasPage(c) {
			return true
		}
	}
	return false
}

func (b *builder) ofType(c *expr.Call, s *seq) (*seq, error) {
	op := c.Method
	if err := args(c, 0, 0); err != nil {
		return nil, err
	}
	target, ok := b.model.Type(c.TypeArg)
	if !ok {
		return nil, query.Errorf(op, query.ErrNotSupported, "unknown type %s", c.TypeArg)
	}
	e, ok := s.shape.(*model.EntityShape)
	if !ok || !target.IsEntity() {
		return nil, query.Errorf(op, query.ErrNotSupported, "%s to %s of a non-entity sequence", op, target.Name)
	}
	switch {
	case target.IsAncestorOf(e.Type):
		return s, nil
	case e.Type.IsAncestorOf(target):
		id, ok := e.TypeID.(*model.ColumnRef)
		if !ok {
			return nil, query.Errorf(op, query.ErrNotSupported, "type id of %s is computed", e.Type.Name)
		}
		s.node = &model.TypeFilter{Child: s.node, TypeID: id.ID, IDs: target.TypeIDs()}
		s.shape = retype(e, target)
		return s, nil
	case op == "OfType" && e.Type.SameHierarchy(target):
		s.node = &model.Empty{Child: s.node}
		s.shape = retype(e, target)
		return s, nil
	}
	return nil, query.Errorf(op, query.ErrNotSupported, "%s from %s to unrelated type %s", op, e.Type.Name, target.Name)
}
