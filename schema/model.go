// Package schema describes the persistent domain model the query translator works against:
// entities, structures, enums, inheritance hierarchies and dynamically defined fields.
package schema

import (
	"fmt"
	"sort"
	"strings"
)

// TypeKind distinguishes entities from structures.
type TypeKind int

const (
	KindEntity TypeKind = iota
	KindStructure
)

func (k TypeKind) String() string {
	if k == KindStructure {
		return "structure"
	}
	return "entity"
}

// InheritanceScheme is the physical storage strategy of a hierarchy.
type InheritanceScheme int

const (
	// ClassTable stores each type's own fields in its own table joined by key.
	ClassTable InheritanceScheme = iota
	// SingleTable stores the whole hierarchy in the root table.
	SingleTable
	// ConcreteTable stores every non-abstract type in a table holding all its fields.
	ConcreteTable
)

func (s InheritanceScheme) String() string {
	switch s {
	case SingleTable:
		return "single_table"
	case ConcreteTable:
		return "concrete_table"
	default:
		return "class_table"
	}
}

// ParseInheritanceScheme parses the names used in schema files.
func ParseInheritanceScheme(name string) (InheritanceScheme, error) {
	switch strings.ToLower(strings.ReplaceAll(name, "-", "_")) {
	case "class_table", "classtable":
		return ClassTable, nil
	case "single_table", "singletable":
		return SingleTable, nil
	case "concrete_table", "concretetable":
		return ConcreteTable, nil
	}
	return ClassTable, fmt.Errorf("unknown inheritance scheme %q", name)
}

// FieldKind is the kind of value a field holds.
type FieldKind int

const (
	FieldPrimitive FieldKind = iota
	FieldStructure
	FieldReference
	FieldEntitySet
)

func (k FieldKind) String() string {
	switch k {
	case FieldStructure:
		return "structure"
	case FieldReference:
		return "reference"
	case FieldEntitySet:
		return "entityset"
	default:
		return "primitive"
	}
}

// TypeIDColumn is the discriminator column present on every entity root table.
const TypeIDColumn = "TypeId"

// Field describes one persistent field.
type Field struct {
	Name     string
	Kind     FieldKind
	Type     ValueType
	Enum     *Enum
	Nullable bool
	// Target is the structure or entity type of structure, reference and
	// entity set fields.
	Target *TypeInfo
	// Inverse names the reference field on Target that points back for entity sets.
	Inverse string
	Key     bool
	Dynamic bool
	// Column overrides the stored column name of primitive fields.
	Column string

	declaringType *TypeInfo
	order         int
}

// DeclaringType returns the type that declared the field.
func (f *Field) DeclaringType() *TypeInfo { return f.declaringType }

// ColumnName returns the stored column name of a primitive field.
func (f *Field) ColumnName() string {
	if f.Column != "" {
		return f.Column
	}
	return f.Name
}

// Columns returns the flattened column list of a field as (path, field) pairs:
// primitives yield one column; structures yield one per nested primitive,
// prefixed "Field_"; references yield one per target key field.
func (f *Field) Columns() []Column {
	switch f.Kind {
	case FieldPrimitive:
		return []Column{{Name: f.ColumnName(), Path: []string{f.Name}, Field: f}}
	case FieldStructure:
		var cols []Column
		for _, sub := range f.Target.Fields() {
			for _, c := range sub.Columns() {
				cols = append(cols, Column{
					Name:  f.Name + "_" + c.Name,
					Path:  append([]string{f.Name}, c.Path...),
					Field: c.Field,
					Ref:   c.Ref,
				})
			}
		}
		return cols
	case FieldReference:
		var cols []Column
		for _, k := range f.Target.Keys() {
			cols = append(cols, Column{
				Name:  f.Name + "_" + k.ColumnName(),
				Path:  []string{f.Name, k.Name},
				Field: k,
				Ref:   f,
			})
		}
		return cols
	}
	return nil
}

// Column is one stored column produced by flattening a field.
type Column struct {
	Name  string
	Path  []string
	Field *Field
	// Ref is the reference field when the column is a foreign key part.
	Ref *Field
}

// ValueType of the column.
func (c Column) ValueType() ValueType { return c.Field.Type }

// Nullable reports whether the column may contain NULL.
func (c Column) Nullable() bool {
	if c.Ref != nil {
		return !c.Ref.Key
	}
	return c.Field.Nullable
}

// TypeInfo describes an entity or structure type.
type TypeInfo struct {
	Name     string
	Kind     TypeKind
	Table    string
	Abstract bool
	TypeID   int
	Parent   *TypeInfo
	Children []*TypeInfo

	scheme InheritanceScheme
	own    []*Field
	all    []*Field
	byName map[string]*Field
}

// Scheme returns the inheritance scheme of the type's hierarchy.
func (t *TypeInfo) Scheme() InheritanceScheme { return t.Root().scheme }

// Root returns the hierarchy root.
func (t *TypeInfo) Root() *TypeInfo {
	r := t
	for r.Parent != nil {
		r = r.Parent
	}
	return r
}

// Fields returns every field visible on the type, ancestors first, each level in
// declaration order.
func (t *TypeInfo) Fields() []*Field { return t.all }

// OwnFields returns the fields declared by the type itself.
func (t *TypeInfo) OwnFields() []*Field { return t.own }

// Field looks a field up by name, including inherited and dynamic fields.
func (t *TypeInfo) Field(name string) (*Field, bool) {
	f, ok := t.byName[name]
	return f, ok
}

// Keys returns the hierarchy key fields.
func (t *TypeInfo) Keys() []*Field {
	var keys []*Field
	for _, f := range t.Root().own {
		if f.Key {
			keys = append(keys, f)
		}
	}
	return keys
}

// IsEntity reports whether t is an entity type.
func (t *TypeInfo) IsEntity() bool { return t.Kind == KindEntity }

// IsAncestorOf reports whether t is other or one of its ancestors.
func (t *TypeInfo) IsAncestorOf(other *TypeInfo) bool {
	for o := other; o != nil; o = o.Parent {
		if o == t {
			return true
		}
	}
	return false
}

// SameHierarchy reports whether both types share a root.
func (t *TypeInfo) SameHierarchy(other *TypeInfo) bool {
	return t.Root() == other.Root()
}

// Descendants returns t and all its descendants, depth first in declaration order.
func (t *TypeInfo) Descendants() []*TypeInfo {
	out := []*TypeInfo{t}
	for _, c := range t.Children {
		out = append(out, c.Descendants()...)
	}
	return out
}

// TypeIDs returns the discriminator values of t and its descendants.
func (t *TypeInfo) TypeIDs() []int {
	var ids []int
	for _, d := range t.Descendants() {
		ids = append(ids, d.TypeID)
	}
	sort.Ints(ids)
	return ids
}

// Ancestors returns the chain from the root down to t (inclusive).
func (t *TypeInfo) Ancestors() []*TypeInfo {
	var chain []*TypeInfo
	for c := t; c != nil; c = c.Parent {
		chain = append([]*TypeInfo{c}, chain...)
	}
	return chain
}

// Columns returns the flattened columns of all fields of t (no type id).
func (t *TypeInfo) Columns() []Column {
	var cols []Column
	for _, f := range t.all {
		cols = append(cols, f.Columns()...)
	}
	return cols
}

func (t *TypeInfo) String() string { return t.Name }

// Model is a sealed, immutable domain model.
type Model struct {
	types  map[string]*TypeInfo
	order  []*TypeInfo
	enums  map[string]*Enum
	nextID int
}

// Type returns the named type.
func (m *Model) Type(name string) (*TypeInfo, bool) {
	t, ok := m.types[name]
	return t, ok
}

// MustType returns the named type or panics. Intended for tests and examples.
func (m *Model) MustType(name string) *TypeInfo {
	t, ok := m.types[name]
	if !ok {
		panic(fmt.Sprintf("schema: unknown type %q", name))
	}
	return t
}

// Types returns all types in definition order.
func (m *Model) Types() []*TypeInfo { return m.order }

// Entities returns entity types in definition order.
func (m *Model) Entities() []*TypeInfo {
	var out []*TypeInfo
	for _, t := range m.order {
		if t.Kind == KindEntity {
			out = append(out, t)
		}
	}
	return out
}

// Enum returns the named enum.
func (m *Model) Enum(name string) (*Enum, bool) {
	e, ok := m.enums[name]
	return e, ok
}

// Enums returns all enums sorted by name.
func (m *Model) Enums() []*Enum {
	out := make([]*Enum, 0, len(m.enums))
	for _, e := range m.enums {
		out = append(out, e)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// DescendantByID resolves a type id among t and its descendants.
func (t *TypeInfo) DescendantByID(id int) (*TypeInfo, bool) {
	for _, d := range t.Descendants() {
		if d.TypeID == id {
			return d, true
		}
	}
	return nil, false
}
