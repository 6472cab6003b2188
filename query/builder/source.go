package builder

import (
	"fmt"
	"reflect"
	"strings"

	"github.com/satishbabariya/queryable/query"
	"github.com/satishbabariya/queryable/query/expr"
	"github.com/satishbabariya/queryable/query/model"
	"github.com/satishbabariya/queryable/query/normalize"
	"github.com/satishbabariya/queryable/schema"
)

// hierarchyFields returns the fields of t followed by the fields declared by
// its descendants.
func hierarchyFields(t *schema.TypeInfo) []*schema.Field {
	out := append([]*schema.Field(nil), t.Fields()...)
	for _, d := range t.Descendants()[1:] {
		out = append(out, d.OwnFields()...)
	}
	return out
}

// scan reads every instance of t.
func (b *builder) scan(op string, t *schema.TypeInfo) (*seq, error) {
	if !t.IsEntity() {
		return nil, query.Errorf(op, query.ErrNotSupported, "%s is not an entity type", t.Name)
	}
	s := &model.Scan{
		Type: t,
		TypeID: model.ScanColumn{
			Column: b.column(schema.TypeIDColumn, schema.TypeInt32, false),
			Stored: schema.TypeIDColumn,
		},
	}
	var refs []model.Scalar
	for _, f := range hierarchyFields(t) {
		inherited := !f.DeclaringType().IsAncestorOf(t)
		for _, c := range f.Columns() {
			sc := model.ScanColumn{
				Column: b.column(c.Name, c.ValueType(), c.Nullable() || inherited),
				Owner:  f.DeclaringType(),
				Stored: c.Name,
			}
			s.Cols = append(s.Cols, sc)
			refs = append(refs, model.Ref(sc.Column))
		}
	}
	return newSeq(s, entityShape(t, model.Ref(s.TypeID.Column), hierarchyFields(t), refs)), nil
}

// entityShape assigns cols, in field column order, to the fields of t.
func entityShape(t *schema.TypeInfo, typeID model.Scalar, fields []*schema.Field, cols []model.Scalar) *model.EntityShape {
	i := 0
	next := func() model.Scalar {
		c := cols[i]
		i++
		return c
	}
	e := &model.EntityShape{Type: t, TypeID: typeID}
	for _, f := range fields {
		e.Fields = append(e.Fields, model.EntityField{Field: f, Shape: fieldShape(f, next)})
	}
	keys := e.Keys()
	for i, f := range e.Fields {
		if f.Field.Kind == schema.FieldEntitySet {
			e.Fields[i].Shape = &model.EntitySetShape{Field: f.Field, Owner: keys}
		}
	}
	return e
}

func fieldShape(f *schema.Field, next func() model.Scalar) model.Shape {
	switch f.Kind {
	case schema.FieldStructure:
		s := &model.StructureShape{Type: f.Target}
		for _, sub := range f.Target.Fields() {
			s.Names = append(s.Names, sub.Name)
			s.Fields = append(s.Fields, fieldShape(sub, next))
		}
		return s
	case schema.FieldReference:
		r := &model.RefShape{Type: f.Target}
		for range f.Target.Keys() {
			r.Keys = append(r.Keys, next())
		}
		return r
	case schema.FieldEntitySet:
		return &model.EntitySetShape{Field: f}
	}
	return &model.ScalarShape{Expr: next(), Enum: f.Enum}
}

// retype narrows an entity shape to t, keeping the fields t or its
// descendants can hold.
func retype(e *model.EntityShape, t *schema.TypeInfo) *model.EntityShape {
	out := &model.EntityShape{Type: t, TypeID: e.TypeID}
	for _, f := range e.Fields {
		d := f.Field.DeclaringType()
		if d.IsAncestorOf(t) || t.IsAncestorOf(d) {
			out.Fields = append(out.Fields, f)
		}
	}
	return out
}

// nullable marks every column reference of s as nullable, for the inner
// side of an outer join.
func nullable(s model.Shape) model.Shape {
	return model.Rebind(s, func(old model.Scalar) model.Scalar {
		if r, ok := old.(*model.ColumnRef); ok {
			return &model.ColumnRef{ID: r.ID, T: r.T, Nullable: true}
		}
		return old
	})
}

// entitySet is the sequence of items of an entity set owned by the given
// keys.
func (b *builder) entitySet(op string, es *model.EntitySetShape) (*seq, error) {
	if es.Owner == nil {
		return nil, query.Errorf(op, query.ErrNotSupported, "entity set %s has no owner", es.Field.Name)
	}
	items, err := b.scan(op, es.Field.Target)
	if err != nil {
		return nil, err
	}
	item := items.shape.(*model.EntityShape)
	inv, ok := item.Field(es.Field.Inverse)
	if !ok {
		return nil, query.Errorf(op, query.ErrFieldNotFound, "%s has no field %s", es.Field.Target.Name, es.Field.Inverse)
	}
	ref, ok := inv.Shape.(*model.RefShape)
	if !ok || len(ref.Keys) != len(es.Owner) {
		return nil, query.Errorf(op, query.ErrTypeMismatch, "%s.%s is not a reference to the owner", es.Field.Target.Name, es.Field.Inverse)
	}
	var preds []model.Scalar
	for i, k := range ref.Keys {
		preds = append(preds, &model.Binary{Op: model.Eq, L: k, R: es.Owner[i], T: schema.TypeBool})
	}
	items.node = &model.Filter{Child: items.node, Pred: and(preds...)}
	return items, nil
}

// navigate resolves a reference to the entity it points to by joining the
// target table onto the frame that produces the foreign key.
func (b *builder) navigate(op string, r *model.RefShape) (*model.EntityShape, error) {
	ids := make([]string, len(r.Keys))
	for i, k := range r.Keys {
		c, ok := k.(*model.ColumnRef)
		if !ok {
			return nil, query.Errorf(op, query.ErrNotSupported, "reference to %s is computed and cannot be navigated", r.Type.Name)
		}
		ids[i] = fmt.Sprint(c.ID)
	}
	key := r.Type.Name + ":" + strings.Join(ids, ",")
	for i := len(b.frames) - 1; i >= 0; i-- {
		f := b.frames[i]
		if !produces(*f.node, r.Keys) {
			continue
		}
		if e, ok := f.joins[key]; ok {
			return e, nil
		}
		target, err := b.scan(op, r.Type)
		if err != nil {
			return nil, err
		}
		e := target.shape.(*model.EntityShape)
		kind := model.InnerJoin
		var preds []model.Scalar
		for i, k := range e.Keys() {
			if r.Keys[i].Null() {
				kind = model.LeftJoin
			}
			preds = append(preds, &model.Binary{Op: model.Eq, L: r.Keys[i], R: k, T: schema.TypeBool})
		}
		*f.node = &model.Join{Kind: kind, Left: *f.node, Right: target.node, On: and(preds...)}
		if kind == model.LeftJoin {
			e = nullable(e).(*model.EntityShape)
		}
		f.joins[key] = e
		return e, nil
	}
	return nil, query.Errorf(op, query.ErrNotSupported, "reference to %s is not reachable from any enclosing sequence", r.Type.Name)
}

func produces(n model.Node, scalars []model.Scalar) bool {
	out := map[model.ColumnID]bool{}
	for _, c := range n.Columns() {
		out[c.ID] = true
	}
	for _, s := range scalars {
		if c, ok := s.(*model.ColumnRef); !ok || !out[c.ID] {
			return false
		}
	}
	return true
}

// localSource returns the binding index (or -1 with the constant) and Go
// type of an in-memory sequence operand.
func localSource(n expr.Node) (int, any, reflect.Type, bool) {
	switch n := n.(type) {
	case *expr.Local:
		return localSource(n.Seq)
	case *expr.Placeholder:
		if normalize.IsSequence(n.Type) {
			return n.Index, nil, n.Type, true
		}
	case *expr.Constant:
		if t := n.GoType(); normalize.IsSequence(t) {
			return -1, n.Value, t, true
		}
	}
	return 0, nil, nil, false
}

// elementMembers lists the members of a local element type: one nil path for
// a primitive, or one path per primitive struct member.
func elementMembers(t reflect.Type) (paths [][]string, types []reflect.Type) {
	for t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	if _, ok := schema.ValueTypeOf(t); ok || t.Kind() != reflect.Struct {
		return [][]string{nil}, []reflect.Type{t}
	}
	var walk func(t reflect.Type, prefix []string)
	walk = func(t reflect.Type, prefix []string) {
		for i := 0; i < t.NumField(); i++ {
			f := t.Field(i)
			if !f.IsExported() {
				continue
			}
			path := append(append([]string(nil), prefix...), f.Name)
			ft := f.Type
			inner := ft
			for inner.Kind() == reflect.Pointer {
				inner = inner.Elem()
			}
			if _, ok := schema.ValueTypeOf(inner); !ok && inner.Kind() == reflect.Struct {
				walk(inner, path)
				continue
			}
			paths = append(paths, path)
			types = append(types, ft)
		}
	}
	walk(t, nil)
	return paths, types
}

// local turns an in-memory sequence into a Values node. Struct elements
// become records with one column per primitive member.
func (b *builder) local(op string, n expr.Node) (*seq, error) {
	idx, c, t, ok := localSource(n)
	if !ok {
		return nil, query.Errorf(op, query.ErrNotSupported, "%s is not a local sequence", n)
	}
	paths, types := elementMembers(t.Elem())
	v := &model.Values{Binding: idx, Const: c, Paths: paths}
	var scalars []model.Scalar
	for i, p := range paths {
		vt, ok := schema.ValueTypeOf(types[i])
		if !ok {
			return nil, query.Errorf(op, query.ErrNotSupported, "local element member %v has unsupported type %s", p, types[i])
		}
		name := "Value"
		if p != nil {
			name = strings.Join(p, "_")
		}
		col := b.column(name, vt, types[i].Kind() == reflect.Pointer || t.Elem().Kind() == reflect.Pointer)
		v.Cols = append(v.Cols, col)
		scalars = append(scalars, model.Ref(col))
	}
	if paths[0] == nil {
		return newSeq(v, &model.ScalarShape{Expr: scalars[0]}), nil
	}
	return newSeq(v, recordOf(paths, scalars)), nil
}

// recordOf nests scalars addressed by paths into records.
func recordOf(paths [][]string, scalars []model.Scalar) *model.RecordShape {
	root := &model.RecordShape{}
	for i, p := range paths {
		r := root
		for _, name := range p[:len(p)-1] {
			m, ok := r.Member(name)
			if !ok {
				m = &model.RecordShape{}
				r.Names = append(r.Names, name)
				r.Members = append(r.Members, m)
			}
			r = m.(*model.RecordShape)
		}
		r.Names = append(r.Names, p[len(p)-1])
		r.Members = append(r.Members, &model.ScalarShape{Expr: scalars[i]})
	}
	return root
}

// placeholderShape binds a captured value: scalars become one parameter,
// structs a record of parameters addressed by member path.
func (b *builder) placeholderShape(op string, p *expr.Placeholder) (model.Shape, error) {
	if p.Search {
		return nil, query.Errorf(op, query.ErrNotSupported, "search condition used outside a full-text predicate")
	}
	if vt, ok := schema.ValueTypeOf(p.Type); ok {
		return &model.ScalarShape{Expr: &model.Param{Index: p.Index, T: vt, Nullable: p.Type.Kind() == reflect.Pointer}}, nil
	}
	paths, types := elementMembers(p.Type)
	if len(paths) == 0 || paths[0] == nil {
		return nil, query.Errorf(op, query.ErrNotSupported, "captured value of type %s", p.Type)
	}
	scalars := make([]model.Scalar, len(paths))
	for i, path := range paths {
		vt, ok := schema.ValueTypeOf(types[i])
		if !ok {
			return nil, query.Errorf(op, query.ErrNotSupported, "captured member %v has unsupported type %s", path, types[i])
		}
		scalars[i] = &model.Param{Index: p.Index, Path: path, T: vt, Nullable: true}
	}
	return recordOf(paths, scalars), nil
}
