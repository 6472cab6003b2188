package builder

import (
	"reflect"

	"github.com/satishbabariya/queryable/query"
	"github.com/satishbabariya/queryable/query/expr"
	"github.com/satishbabariya/queryable/query/model"
	"github.com/satishbabariya/queryable/query/sqlgen"
	"github.com/satishbabariya/queryable/schema"
)

// value translates an expression evaluated per row.
func (b *builder) value(n expr.Node) (model.Shape, error) {
	switch n := n.(type) {
	case *expr.Parameter:
		s, ok := b.lookup(n.Name)
		if !ok {
			return nil, query.Errorf("Parameter", query.ErrInvalidArgument, "parameter %s is not bound", n.Name)
		}
		return s, nil
	case *expr.Constant:
		return b.constant(n)
	case *expr.Placeholder:
		if _, _, _, ok := localSource(n); ok {
			return nil, query.Errorf("Placeholder", query.ErrNotSupported, "local sequence used as a value")
		}
		return b.placeholderShape("Placeholder", n)
	case *expr.Member:
		return b.member(n)
	case *expr.Binary:
		return b.binary(n)
	case *expr.Unary:
		return b.unary(n)
	case *expr.Convert:
		return b.convert(n)
	case *expr.Call:
		return b.call(n)
	case *expr.Conditional:
		return b.conditional(n)
	case *expr.New:
		r := &model.RecordShape{Names: n.Names}
		for _, v := range n.Values {
			s, err := b.value(v)
			if err != nil {
				return nil, err
			}
			r.Members = append(r.Members, s)
		}
		return r, nil
	case *expr.MemberInit:
		return b.memberInit(n)
	case *expr.In:
		return b.in(n)
	case *expr.Matches:
		return b.matches(n)
	case *expr.Source, *expr.Local:
		s, err := b.sequence(n)
		if err != nil {
			return nil, err
		}
		return b.collection(s), nil
	case *expr.Invocation:
		return nil, query.Errorf(n.Name, query.ErrNotSupported, "function %s cannot be translated", n.Name)
	case *expr.Lambda:
		return nil, query.Errorf("Lambda", query.ErrNotSupported, "lambda used as a value")
	}
	return nil, query.Errorf("translate", query.ErrNotSupported, "unsupported expression %s", n)
}

func (b *builder) scalar(n expr.Node) (model.Scalar, error) {
	s, err := b.value(n)
	if err != nil {
		return nil, err
	}
	return scalarOf(n.Kind().String(), s)
}

func (b *builder) constant(n *expr.Constant) (model.Shape, error) {
	t := n.GoType()
	if t == nil {
		return &model.ScalarShape{Expr: &model.Literal{}}, nil
	}
	vt, ok := schema.ValueTypeOf(t)
	if !ok {
		return nil, query.Errorf("Constant", query.ErrNotSupported, "constant of type %s used as a value", t)
	}
	v := n.Value
	if v != nil {
		rv := reflect.ValueOf(v)
		if rv.Kind() == reflect.Pointer {
			if rv.IsNil() {
				v = nil
			} else {
				v = rv.Elem().Interface()
			}
		}
	}
	return &model.ScalarShape{Expr: &model.Literal{Value: v, T: vt}}, nil
}

// collection turns a sequence used as a value into a per-row subquery.
func (b *builder) collection(s *seq) *model.SequenceShape {
	out := &model.SequenceShape{Query: s.node, Elem: s.shape}
	for _, r := range model.FreeRefs(s.node) {
		out.Outer = append(out.Outer, model.OuterBinding{Sub: r.ID, Col: r.ID})
	}
	return out
}

func (b *builder) member(n *expr.Member) (model.Shape, error) {
	target, err := b.value(n.Target)
	if err != nil {
		return nil, err
	}
	return b.memberOf(target, n.Name, n.Indexed)
}

func (b *builder) memberOf(target model.Shape, name string, indexed bool) (model.Shape, error) {
	const op = "Member"
	switch t := target.(type) {
	case *model.EntityShape:
		f, ok := t.Field(name)
		if !ok {
			return nil, query.Errorf(op, query.ErrFieldNotFound, "%s has no field %s", t.Type.Name, name)
		}
		return f.Shape, nil
	case *model.StructureShape:
		s, ok := t.Field(name)
		if !ok {
			return nil, query.Errorf(op, query.ErrFieldNotFound, "%s has no field %s", t.Type.Name, name)
		}
		return s, nil
	case *model.RefShape:
		for i, k := range t.Type.Keys() {
			if k.Name == name {
				return &model.ScalarShape{Expr: t.Keys[i]}, nil
			}
		}
		e, err := b.navigate(op, t)
		if err != nil {
			return nil, err
		}
		return b.memberOf(e, name, indexed)
	}
	if indexed {
		return nil, query.Errorf(op, query.ErrNotSupported, "indexer on %T", target)
	}
	switch t := target.(type) {
	case *model.RecordShape:
		s, ok := t.Member(name)
		if !ok {
			return nil, query.Errorf(op, query.ErrFieldNotFound, "record has no member %s", name)
		}
		return s, nil
	case *model.GroupingShape:
		if name == "Key" {
			return t.Key, nil
		}
	case *model.ScalarShape:
		if name == "Length" && t.Expr.Type() == schema.TypeString {
			return &model.ScalarShape{Expr: &model.Func{Name: model.FnLength, Args: []model.Scalar{t.Expr}, T: schema.TypeInt32, Nullable: t.Expr.Null()}}, nil
		}
	}
	return nil, query.Errorf(op, query.ErrNotSupported, "member %s of %T", name, target)
}

func (b *builder) memberInit(n *expr.MemberInit) (model.Shape, error) {
	t, ok := b.model.Type(n.Type)
	if !ok || t.Kind != schema.KindStructure {
		return nil, query.Errorf("MemberInit", query.ErrNotSupported, "%s is not a structure type", n.Type)
	}
	given := map[string]model.Shape{}
	for i, name := range n.Names {
		if _, ok := t.Field(name); !ok {
			return nil, query.Errorf("MemberInit", query.ErrFieldNotFound, "%s has no field %s", t.Name, name)
		}
		s, err := b.value(n.Values[i])
		if err != nil {
			return nil, err
		}
		given[name] = s
	}
	out := &model.StructureShape{Type: t}
	for _, f := range t.Fields() {
		s, ok := given[f.Name]
		if !ok {
			s = nullShape(f)
		}
		out.Names = append(out.Names, f.Name)
		out.Fields = append(out.Fields, s)
	}
	return out, nil
}

// nullShape is the shape of an unassigned structure member.
func nullShape(f *schema.Field) model.Shape {
	return fieldShape(f, func() model.Scalar { return &model.Literal{T: f.Type} })
}

func (b *builder) conditional(n *expr.Conditional) (model.Shape, error) {
	test, err := b.scalar(n.Test)
	if err != nil {
		return nil, err
	}
	if test, err = predicate("Conditional", test); err != nil {
		return nil, err
	}
	then, err := b.scalar(n.Then)
	if err != nil {
		return nil, err
	}
	els, err := b.scalar(n.Else)
	if err != nil {
		return nil, err
	}
	t := then.Type()
	if then.Type() == schema.TypeUnknown {
		t = els.Type()
	} else if els.Type() != schema.TypeUnknown && !compatible(then.Type(), els.Type()) {
		return nil, query.Errorf("Conditional", query.ErrTypeMismatch, "branches have types %s and %s", then.Type(), els.Type())
	} else if t.IsNumeric() && els.Type().Width() > t.Width() {
		t = els.Type()
	}
	return &model.ScalarShape{Expr: &model.Case{
		Whens:    []model.When{{Cond: test, Then: then}},
		Else:     els,
		T:        t,
		Nullable: then.Null() || els.Null(),
	}}, nil
}

func (b *builder) in(n *expr.In) (model.Shape, error) {
	const op = "In"
	if n.Algorithm == expr.IncludeTemporaryTable {
		if err := b.require(sqlgen.FeatureTemporaryTables, op, "temporary table lists"); err != nil {
			return nil, err
		}
	}
	v, err := b.value(n.Value)
	if err != nil {
		return nil, err
	}
	if idx, c, t, ok := localSource(n.Collection); ok {
		p, err := b.inList(op, v, idx, c, t, n.Algorithm)
		if err != nil {
			return nil, err
		}
		return &model.ScalarShape{Expr: p}, nil
	}
	s, err := b.sequence(n.Collection)
	if err != nil {
		return nil, err
	}
	p, err := b.memberOfQuery(op, s, v)
	if err != nil {
		return nil, err
	}
	return &model.ScalarShape{Expr: p}, nil
}

// inList tests v against the elements of a local list.
func (b *builder) inList(op string, v model.Shape, idx int, c any, t reflect.Type, alg expr.Algorithm) (model.Scalar, error) {
	paths, types := elementMembers(t.Elem())
	p := &model.InList{Binding: idx, Const: c, Paths: paths, Algorithm: alg}
	if paths[0] == nil {
		x, err := scalarOf(op, v)
		if err != nil {
			return nil, err
		}
		p.X = []model.Scalar{x}
	} else {
		for _, path := range paths {
			m, err := pathMember(v, path)
			if err != nil {
				return nil, query.Errorf(op, query.ErrTypeMismatch, "value has no member %v of the list elements", path)
			}
			x, err := scalarOf(op, m)
			if err != nil {
				return nil, err
			}
			p.X = append(p.X, x)
		}
	}
	for i, x := range p.X {
		vt, _ := schema.ValueTypeOf(types[i])
		if !compatible(x.Type(), vt) {
			return nil, query.Errorf(op, query.ErrTypeMismatch, "cannot compare %s with list elements of type %s", x.Type(), vt)
		}
		p.Types = append(p.Types, vt)
	}
	return p, nil
}

func pathMember(s model.Shape, path []string) (model.Shape, error) {
	for _, name := range path {
		switch t := s.(type) {
		case *model.RecordShape:
			m, ok := t.Member(name)
			if !ok {
				return nil, query.ErrFieldNotFound
			}
			s = m
		case *model.StructureShape:
			m, ok := t.Field(name)
			if !ok {
				return nil, query.ErrFieldNotFound
			}
			s = m
		default:
			return nil, query.ErrTypeMismatch
		}
	}
	return s, nil
}

// memberOfQuery tests v for membership in the elements of s.
func (b *builder) memberOfQuery(op string, s *seq, v model.Shape) (model.Scalar, error) {
	elems := model.Flatten(s.shape)
	vals := model.Flatten(v)
	if len(elems) == 1 && len(vals) == 1 {
		if _, ok := s.shape.(*model.ScalarShape); ok {
			if !compatible(elems[0].Type(), vals[0].Type()) {
				return nil, query.Errorf(op, query.ErrTypeMismatch, "cannot compare %s with %s", vals[0].Type(), elems[0].Type())
			}
			col := b.column("Value", elems[0].Type(), elems[0].Null())
			return &model.InQuery{X: vals[0], Query: &model.Project{Child: s.node, Cols: []model.ProjectColumn{{Column: col, Expr: elems[0]}}}}, nil
		}
	}
	eq, err := b.compare(op, model.Eq, s.shape, v)
	if err != nil {
		return nil, err
	}
	return &model.Exists{Query: &model.Filter{Child: s.node, Pred: eq}}, nil
}

func (b *builder) matches(n *expr.Matches) (model.Shape, error) {
	const op = "Matches"
	if err := b.require(sqlgen.FeatureFullText, op, "full-text search"); err != nil {
		return nil, err
	}
	f, err := b.scalar(n.Field)
	if err != nil {
		return nil, err
	}
	if _, ok := f.(*model.ColumnRef); !ok || f.Type() != schema.TypeString {
		return nil, query.Errorf(op, query.ErrNotSupported, "full-text search needs a string column, got %s", n.Field)
	}
	p, ok := n.Condition.(*expr.Placeholder)
	if !ok || !p.Search {
		return nil, query.Errorf(op, query.ErrInvalidArgument, "search condition must be a captured or constant value")
	}
	return &model.ScalarShape{Expr: &model.Contains{
		Column:    f,
		Condition: &model.Param{Index: p.Index, T: schema.TypeString, Search: true},
	}}, nil
}
