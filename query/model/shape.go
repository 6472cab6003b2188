package model

import (
	"github.com/satishbabariya/queryable/schema"
)

// Shape describes how the columns of a query map to a result value.
type Shape interface {
	isShape()
}

// ScalarShape is a single value.
type ScalarShape struct {
	Expr Scalar
	Enum *schema.Enum
}

// EntityShape is a polymorphic entity: the type id column selects the
// concrete type and Fields holds the fields of Type and all its descendants.
type EntityShape struct {
	Type   *schema.TypeInfo
	TypeID Scalar
	Fields []EntityField
}

// EntityField is the shape of one persistent field.
type EntityField struct {
	Field *schema.Field
	Shape Shape
}

// Field returns the shape of the named field.
func (e *EntityShape) Field(name string) (*EntityField, bool) {
	for i := range e.Fields {
		if e.Fields[i].Field.Name == name {
			return &e.Fields[i], true
		}
	}
	return nil, false
}

// Keys returns the key scalars.
func (e *EntityShape) Keys() []Scalar {
	var out []Scalar
	for _, k := range e.Type.Keys() {
		if f, ok := e.Field(k.Name); ok {
			out = append(out, f.Shape.(*ScalarShape).Expr)
		}
	}
	return out
}

// StructureShape is a structure value. Fields follow declaration order.
type StructureShape struct {
	Type   *schema.TypeInfo
	Names  []string
	Fields []Shape
}

// Field returns the shape of the named member.
func (s *StructureShape) Field(name string) (Shape, bool) {
	for i, n := range s.Names {
		if n == name {
			return s.Fields[i], true
		}
	}
	return nil, false
}

// RecordShape is an anonymous record with ordered members.
type RecordShape struct {
	Names   []string
	Members []Shape
}

// Member returns the shape of the named member.
func (r *RecordShape) Member(name string) (Shape, bool) {
	for i, n := range r.Names {
		if n == name {
			return r.Members[i], true
		}
	}
	return nil, false
}

// RefShape is a lazily loaded entity reference identified by its foreign key
// columns.
type RefShape struct {
	Type *schema.TypeInfo
	Keys []Scalar
}

// EntitySetShape is the collection of Field on the entity keyed by Owner.
// It is not materialized; it only feeds subqueries.
type EntitySetShape struct {
	Field *schema.Field
	Owner []Scalar
}

// OuterBinding maps a column referenced by a per-row subquery to the column
// of the enclosing query currently carrying its value.
type OuterBinding struct {
	Sub ColumnID
	Col ColumnID
}

// SequenceShape is an enumerable value: a subquery executed for each row of
// the enclosing query, correlated through Outer.
type SequenceShape struct {
	Query Node
	Elem  Shape
	Outer []OuterBinding
}

// GroupingShape is one group: its key and its elements.
type GroupingShape struct {
	Key      Shape
	Elements *SequenceShape
}

func (*ScalarShape) isShape()    {}
func (*EntityShape) isShape()    {}
func (*StructureShape) isShape() {}
func (*RecordShape) isShape()    {}
func (*RefShape) isShape()       {}
func (*EntitySetShape) isShape() {}
func (*SequenceShape) isShape()  {}
func (*GroupingShape) isShape()  {}

// Flatten returns the scalars of s in a stable order: entity type id then
// fields, structure and record members in declaration order, reference keys,
// grouping keys. Sequences and entity sets contribute nothing.
func Flatten(s Shape) []Scalar {
	var out []Scalar
	var walk func(Shape)
	walk = func(s Shape) {
		switch s := s.(type) {
		case *ScalarShape:
			out = append(out, s.Expr)
		case *EntityShape:
			out = append(out, s.TypeID)
			for _, f := range s.Fields {
				walk(f.Shape)
			}
		case *StructureShape:
			for _, f := range s.Fields {
				walk(f)
			}
		case *RecordShape:
			for _, m := range s.Members {
				walk(m)
			}
		case *RefShape:
			out = append(out, s.Keys...)
		case *GroupingShape:
			walk(s.Key)
		}
	}
	walk(s)
	return out
}

// Rebind returns a copy of s whose flattened scalars are replaced, in
// Flatten order, by the results of next. The owner keys of an entity set
// that is not an entity field are passed to next after the scalars
// preceding it.
func Rebind(s Shape, next func(old Scalar) Scalar) Shape {
	switch s := s.(type) {
	case *ScalarShape:
		return &ScalarShape{Expr: next(s.Expr), Enum: s.Enum}
	case *EntityShape:
		out := &EntityShape{Type: s.Type, TypeID: next(s.TypeID), Fields: make([]EntityField, len(s.Fields))}
		for i, f := range s.Fields {
			if _, ok := f.Shape.(*EntitySetShape); ok {
				out.Fields[i] = f
				continue
			}
			out.Fields[i] = EntityField{Field: f.Field, Shape: Rebind(f.Shape, next)}
		}
		keys := out.Keys()
		for i, f := range s.Fields {
			if _, ok := f.Shape.(*EntitySetShape); ok {
				out.Fields[i] = EntityField{Field: f.Field, Shape: &EntitySetShape{Field: f.Field, Owner: keys}}
			}
		}
		return out
	case *StructureShape:
		out := &StructureShape{Type: s.Type, Names: s.Names, Fields: make([]Shape, len(s.Fields))}
		for i, f := range s.Fields {
			out.Fields[i] = Rebind(f, next)
		}
		return out
	case *RecordShape:
		out := &RecordShape{Names: s.Names, Members: make([]Shape, len(s.Members))}
		for i, m := range s.Members {
			out.Members[i] = Rebind(m, next)
		}
		return out
	case *RefShape:
		out := &RefShape{Type: s.Type, Keys: make([]Scalar, len(s.Keys))}
		for i, k := range s.Keys {
			out.Keys[i] = next(k)
		}
		return out
	case *GroupingShape:
		return &GroupingShape{Key: Rebind(s.Key, next), Elements: s.Elements}
	case *EntitySetShape:
		out := &EntitySetShape{Field: s.Field, Owner: make([]Scalar, len(s.Owner))}
		for i, k := range s.Owner {
			out.Owner[i] = next(k)
		}
		return out
	}
	return s
}

// Sequences returns every sequence shape reachable from s, including the
// elements of groupings.
func Sequences(s Shape) []*SequenceShape {
	var out []*SequenceShape
	var walk func(Shape)
	walk = func(s Shape) {
		switch s := s.(type) {
		case *SequenceShape:
			out = append(out, s)
		case *GroupingShape:
			walk(s.Key)
			out = append(out, s.Elements)
		case *EntityShape:
			for _, f := range s.Fields {
				walk(f.Shape)
			}
		case *StructureShape:
			for _, f := range s.Fields {
				walk(f)
			}
		case *RecordShape:
			for _, m := range s.Members {
				walk(m)
			}
		}
	}
	walk(s)
	return out
}

// MapSequences returns a copy of s with every sequence shape replaced by fn.
func MapSequences(s Shape, fn func(*SequenceShape) *SequenceShape) Shape {
	switch s := s.(type) {
	case *SequenceShape:
		return fn(s)
	case *GroupingShape:
		return &GroupingShape{Key: MapSequences(s.Key, fn), Elements: fn(s.Elements)}
	case *EntityShape:
		out := &EntityShape{Type: s.Type, TypeID: s.TypeID, Fields: make([]EntityField, len(s.Fields))}
		for i, f := range s.Fields {
			out.Fields[i] = EntityField{Field: f.Field, Shape: MapSequences(f.Shape, fn)}
		}
		return out
	case *StructureShape:
		out := &StructureShape{Type: s.Type, Names: s.Names, Fields: make([]Shape, len(s.Fields))}
		for i, f := range s.Fields {
			out.Fields[i] = MapSequences(f, fn)
		}
		return out
	case *RecordShape:
		out := &RecordShape{Names: s.Names, Members: make([]Shape, len(s.Members))}
		for i, m := range s.Members {
			out.Members[i] = MapSequences(m, fn)
		}
		return out
	}
	return s
}
