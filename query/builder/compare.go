package builder

import (
	"github.com/satishbabariya/queryable/query"
	"github.com/satishbabariya/queryable/query/expr"
	"github.com/satishbabariya/queryable/query/model"
	"github.com/satishbabariya/queryable/query/sqlgen"
	"github.com/satishbabariya/queryable/schema"
)

// compatible reports whether values of a and b can be compared or combined.
// Unknown is the type of an untyped null.
func compatible(a, b schema.ValueType) bool {
	return a == b || a == schema.TypeUnknown || b == schema.TypeUnknown || (a.IsNumeric() && b.IsNumeric())
}

// wider returns the type able to hold both numeric operands.
func wider(a, b schema.ValueType) schema.ValueType {
	switch {
	case a == schema.TypeUnknown:
		return b
	case b == schema.TypeUnknown || a == b:
		return a
	case a.Widens(b):
		return a
	case b.Widens(a):
		return b
	case a == schema.TypeDecimal || b == schema.TypeDecimal:
		return schema.TypeDecimal
	case a == schema.TypeFloat64 || b == schema.TypeFloat64 || a == schema.TypeFloat32 || b == schema.TypeFloat32:
		return schema.TypeFloat64
	}
	return schema.TypeInt64
}

func isNullLiteral(s model.Scalar) bool {
	l, ok := s.(*model.Literal)
	return ok && l.Value == nil
}

func (b *builder) checkOffset(op string, ss ...model.Scalar) error {
	for _, s := range ss {
		if s.Type() == schema.TypeDateTimeOffset {
			return b.require(sqlgen.FeatureDateTimeOffset, op, "date/time with offset values")
		}
	}
	return nil
}

func (b *builder) binary(n *expr.Binary) (model.Shape, error) {
	op := n.Op.String()
	l, err := b.value(n.Left)
	if err != nil {
		return nil, err
	}
	r, err := b.value(n.Right)
	if err != nil {
		return nil, err
	}
	switch {
	case n.Op.IsComparison():
		mop, _ := model.FromExpr(n.Op)
		p, err := b.compare(op, mop, l, r)
		if err != nil {
			return nil, err
		}
		return &model.ScalarShape{Expr: p}, nil
	case n.Op.IsLogical():
		ls, err := scalarOf(op, l)
		if err != nil {
			return nil, err
		}
		rs, err := scalarOf(op, r)
		if err != nil {
			return nil, err
		}
		if ls, err = predicate(op, ls); err != nil {
			return nil, err
		}
		if rs, err = predicate(op, rs); err != nil {
			return nil, err
		}
		mop, _ := model.FromExpr(n.Op)
		return &model.ScalarShape{Expr: &model.Binary{Op: mop, L: ls, R: rs, T: schema.TypeBool}}, nil
	}
	ls, err := scalarOf(op, l)
	if err != nil {
		return nil, err
	}
	rs, err := scalarOf(op, r)
	if err != nil {
		return nil, err
	}
	if !compatible(ls.Type(), rs.Type()) {
		return nil, query.Errorf(op, query.ErrTypeMismatch, "operands have types %s and %s", ls.Type(), rs.Type())
	}
	if n.Op == expr.OpCoalesce {
		return &model.ScalarShape{Expr: &model.Func{
			Name:     model.FnCoalesce,
			Args:     []model.Scalar{ls, rs},
			T:        wider(ls.Type(), rs.Type()),
			Nullable: rs.Null(),
		}, Enum: enumOf(l)}, nil
	}
	if !n.Op.IsArithmetic() {
		return nil, query.Errorf(op, query.ErrNotSupported, "operator %s", n.Op)
	}
	if err := b.checkOffset(op, ls, rs); err != nil {
		return nil, err
	}
	mop, _ := model.FromExpr(n.Op)
	t := wider(ls.Type(), rs.Type())
	switch {
	case t == schema.TypeString && n.Op == expr.OpAdd:
		mop = model.Concat
	case t == schema.TypeTimeSpan && (n.Op == expr.OpAdd || n.Op == expr.OpSub):
	case !t.IsNumeric():
		return nil, query.Errorf(op, query.ErrNotSupported, "arithmetic on %s values", t)
	}
	return &model.ScalarShape{Expr: &model.Binary{Op: mop, L: ls, R: rs, T: t}}, nil
}

func enumOf(s model.Shape) *schema.Enum {
	if sc, ok := s.(*model.ScalarShape); ok {
		return sc.Enum
	}
	return nil
}

func (b *builder) unary(n *expr.Unary) (model.Shape, error) {
	x, err := b.scalar(n.Operand)
	if err != nil {
		return nil, err
	}
	if n.Op == expr.OpNot {
		p, err := predicate("Not", x)
		if err != nil {
			return nil, err
		}
		if inner, ok := p.(*model.Not); ok {
			return &model.ScalarShape{Expr: inner.X}, nil
		}
		return &model.ScalarShape{Expr: &model.Not{X: p}}, nil
	}
	if !x.Type().IsNumeric() && x.Type() != schema.TypeTimeSpan {
		return nil, query.Errorf("Negate", query.ErrTypeMismatch, "cannot negate %s", x.Type())
	}
	return &model.ScalarShape{Expr: &model.Negate{X: x}}, nil
}

// convert drops widening conversions and casts narrowing ones. Parameters
// and literals keep their value and only change their declared type.
func (b *builder) convert(n *expr.Convert) (model.Shape, error) {
	s, err := b.value(n.Operand)
	if err != nil {
		return nil, err
	}
	x, err := scalarOf("Convert", s)
	if err != nil {
		return nil, err
	}
	from := x.Type()
	switch {
	case from == n.To || from == schema.TypeUnknown:
		return &model.ScalarShape{Expr: x, Enum: enumOf(s)}, nil
	case !from.IsNumeric() || !n.To.IsNumeric():
		return nil, query.Errorf("Convert", query.ErrNotSupported, "conversion from %s to %s", from, n.To)
	}
	switch v := x.(type) {
	case *model.Param:
		cp := *v
		cp.T = n.To
		cp.Nullable = cp.Nullable || n.Nullable
		return &model.ScalarShape{Expr: &cp}, nil
	case *model.Literal:
		return &model.ScalarShape{Expr: &model.Literal{Value: v.Value, T: n.To}}, nil
	}
	return &model.ScalarShape{Expr: &model.Cast{X: x, To: n.To, Implicit: n.To.Widens(from)}}, nil
}

// compare builds op over two values of the same kind: scalars directly,
// entities and references by key, structures and records member-wise.
func (b *builder) compare(op string, mop model.Op, l, r model.Shape) (model.Scalar, error) {
	if lk, ok := keysOf(l); ok {
		if rs, ok := r.(*model.ScalarShape); ok && isNullLiteral(rs.Expr) {
			return &model.IsNull{X: lk[0], Negate: mop == model.Ne}, nil
		}
	}
	if rk, ok := keysOf(r); ok {
		if ls, ok := l.(*model.ScalarShape); ok && isNullLiteral(ls.Expr) {
			return &model.IsNull{X: rk[0], Negate: mop == model.Ne}, nil
		}
	}
	switch lt := l.(type) {
	case *model.ScalarShape:
		rt, ok := r.(*model.ScalarShape)
		if !ok {
			break
		}
		return b.compareScalars(op, mop, lt.Expr, rt.Expr)
	case *model.EntityShape, *model.RefShape:
		lk, _ := keysOf(l)
		rk, ok := keysOf(r)
		if !ok {
			break
		}
		if t, u := typeOf(l), typeOf(r); !t.SameHierarchy(u) {
			return nil, query.Errorf(op, query.ErrTypeMismatch, "cannot compare %s with %s", t.Name, u.Name)
		}
		return b.equalAll(op, mop, lk, rk)
	case *model.StructureShape, *model.RecordShape:
		ln, lm := members(l)
		rn, rm := members(r)
		if rn == nil {
			break
		}
		if len(ln) != len(rn) {
			return nil, query.Errorf(op, query.ErrTypeMismatch, "values have %d and %d members", len(ln), len(rn))
		}
		var ls, rs []model.Scalar
		for i, name := range ln {
			j := indexOf(rn, name)
			if j < 0 {
				return nil, query.Errorf(op, query.ErrTypeMismatch, "member %s missing on the right", name)
			}
			lf, rf := model.Flatten(lm[i]), model.Flatten(rm[j])
			if len(lf) != len(rf) {
				return nil, query.Errorf(op, query.ErrTypeMismatch, "member %s differs in shape", name)
			}
			ls = append(ls, lf...)
			rs = append(rs, rf...)
		}
		return b.equalAll(op, mop, ls, rs)
	}
	return nil, query.Errorf(op, query.ErrTypeMismatch, "cannot compare %T with %T", l, r)
}

// equalAll is the conjunction of pairwise equality, negated for Ne.
func (b *builder) equalAll(op string, mop model.Op, ls, rs []model.Scalar) (model.Scalar, error) {
	if mop != model.Eq && mop != model.Ne {
		return nil, query.Errorf(op, query.ErrNotSupported, "ordering comparison of composite values")
	}
	var preds []model.Scalar
	for i := range ls {
		p, err := b.compareScalars(op, model.Eq, ls[i], rs[i])
		if err != nil {
			return nil, err
		}
		preds = append(preds, p)
	}
	p := and(preds...)
	if mop == model.Ne {
		return &model.Not{X: p}, nil
	}
	return p, nil
}

func (b *builder) compareScalars(op string, mop model.Op, l, r model.Scalar) (model.Scalar, error) {
	if mop == model.Eq || mop == model.Ne {
		if isNullLiteral(r) {
			return &model.IsNull{X: l, Negate: mop == model.Ne}, nil
		}
		if isNullLiteral(l) {
			return &model.IsNull{X: r, Negate: mop == model.Ne}, nil
		}
	}
	if !compatible(l.Type(), r.Type()) {
		return nil, query.Errorf(op, query.ErrTypeMismatch, "cannot compare %s with %s", l.Type(), r.Type())
	}
	if err := b.checkOffset(op, l, r); err != nil {
		return nil, err
	}
	return &model.Binary{
		Op:       mop,
		L:        l,
		R:        r,
		T:        schema.TypeBool,
		NullSafe: (mop == model.Eq || mop == model.Ne) && l.Null() && r.Null(),
	}, nil
}

func keysOf(s model.Shape) ([]model.Scalar, bool) {
	switch s := s.(type) {
	case *model.EntityShape:
		return s.Keys(), true
	case *model.RefShape:
		return s.Keys, true
	}
	return nil, false
}

func typeOf(s model.Shape) *schema.TypeInfo {
	switch s := s.(type) {
	case *model.EntityShape:
		return s.Type
	case *model.RefShape:
		return s.Type
	}
	return nil
}

func members(s model.Shape) ([]string, []model.Shape) {
	switch s := s.(type) {
	case *model.StructureShape:
		return s.Names, s.Fields
	case *model.RecordShape:
		return s.Names, s.Members
	}
	return nil, nil
}

func indexOf(names []string, name string) int {
	for i, n := range names {
		if n == name {
			return i
		}
	}
	return -1
}
