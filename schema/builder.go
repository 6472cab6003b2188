package schema

import (
	"errors"
	"fmt"
)

// ErrInvalidModel is returned for every model definition error.
var ErrInvalidModel = errors.New("schema: invalid model")

// TypeDef is the definition of a type before the model is built.
type TypeDef struct {
	Name     string
	Kind     TypeKind
	Parent   string
	Table    string
	Abstract bool
	// Scheme is only meaningful on hierarchy roots.
	Scheme InheritanceScheme
	Fields []FieldDef
}

// FieldDef is the definition of a field before the model is built.
type FieldDef struct {
	Name     string
	Kind     FieldKind
	Type     ValueType
	Enum     string
	Nullable bool
	Target   string
	Inverse  string
	Key      bool
	Column   string
}

// Module is invoked once static definitions are validated, before the model is
// sealed. It is the hook for dynamically defined fields.
type Module interface {
	OnDefinitionsBuilt(d *Definer) error
}

// ModuleFunc adapts a function to Module.
type ModuleFunc func(d *Definer) error

// OnDefinitionsBuilt implements Module.
func (f ModuleFunc) OnDefinitionsBuilt(d *Definer) error { return f(d) }

// Builder collects definitions and builds a sealed Model.
type Builder struct {
	defs    []*TypeDef
	enums   []*Enum
	modules []Module
}

// NewBuilder returns an empty builder.
func NewBuilder() *Builder {
	return &Builder{}
}

// AddType registers a type definition.
func (b *Builder) AddType(def TypeDef) *Builder {
	d := def
	b.defs = append(b.defs, &d)
	return b
}

// AddEnum registers an enum.
func (b *Builder) AddEnum(e *Enum) *Builder {
	b.enums = append(b.enums, e)
	return b
}

// Use registers modules run after static definitions are built.
func (b *Builder) Use(modules ...Module) *Builder {
	b.modules = append(b.modules, modules...)
	return b
}

// Build validates every definition, runs modules and seals the model.
func (b *Builder) Build() (*Model, error) {
	m := &Model{
		types:  make(map[string]*TypeInfo),
		enums:  make(map[string]*Enum),
		nextID: 100,
	}
	for _, e := range b.enums {
		if e.Name == "" {
			return nil, fmt.Errorf("%w: enum without a name", ErrInvalidModel)
		}
		if _, dup := m.enums[e.Name]; dup {
			return nil, fmt.Errorf("%w: enum %q defined twice", ErrInvalidModel, e.Name)
		}
		if e.Underlying == TypeUnknown {
			e.Underlying = TypeInt32
		}
		if !e.Underlying.IsInteger() {
			return nil, fmt.Errorf("%w: enum %q must have an integer underlying type", ErrInvalidModel, e.Name)
		}
		m.enums[e.Name] = e
	}

	// Pass 1: declare types.
	for _, def := range b.defs {
		if def.Name == "" {
			return nil, fmt.Errorf("%w: type without a name", ErrInvalidModel)
		}
		if _, dup := m.types[def.Name]; dup {
			return nil, fmt.Errorf("%w: type %q defined twice", ErrInvalidModel, def.Name)
		}
		t := &TypeInfo{
			Name:     def.Name,
			Kind:     def.Kind,
			Table:    def.Table,
			Abstract: def.Abstract,
			scheme:   def.Scheme,
			byName:   make(map[string]*Field),
		}
		if t.Table == "" {
			t.Table = def.Name
		}
		m.types[def.Name] = t
		m.order = append(m.order, t)
	}

	// Pass 2: link parents, assign type ids.
	for _, def := range b.defs {
		t := m.types[def.Name]
		if def.Parent != "" {
			p, ok := m.types[def.Parent]
			if !ok {
				return nil, fmt.Errorf("%w: %s extends unknown type %q", ErrInvalidModel, def.Name, def.Parent)
			}
			if p.Kind != t.Kind {
				return nil, fmt.Errorf("%w: %s and its parent %s are of different kinds", ErrInvalidModel, def.Name, p.Name)
			}
			if t.Kind == KindStructure {
				return nil, fmt.Errorf("%w: structure %s cannot inherit", ErrInvalidModel, def.Name)
			}
			t.Parent = p
			p.Children = append(p.Children, t)
		}
		if t.Kind == KindEntity {
			t.TypeID = m.nextID
			m.nextID++
		}
	}
	for _, t := range m.order {
		if err := checkCycle(t); err != nil {
			return nil, err
		}
	}

	// Pass 3: own fields.
	for _, def := range b.defs {
		t := m.types[def.Name]
		for i, fd := range def.Fields {
			f, err := m.resolveField(t, fd)
			if err != nil {
				return nil, err
			}
			f.order = i
			t.own = append(t.own, f)
		}
	}

	// Pass 4: hierarchy invariants.
	for _, t := range m.order {
		if err := validateType(t); err != nil {
			return nil, err
		}
	}
	for _, t := range m.order {
		t.rebuildFields()
	}
	for _, t := range m.order {
		if err := validateEntitySets(t); err != nil {
			return nil, err
		}
	}

	d := &Definer{model: m}
	for _, mod := range b.modules {
		if err := mod.OnDefinitionsBuilt(d); err != nil {
			return nil, fmt.Errorf("schema module: %w", err)
		}
	}
	d.sealed = true
	return m, nil
}

func checkCycle(t *TypeInfo) error {
	seen := map[*TypeInfo]bool{}
	for c := t; c != nil; c = c.Parent {
		if seen[c] {
			return fmt.Errorf("%w: inheritance cycle through %s", ErrInvalidModel, t.Name)
		}
		seen[c] = true
	}
	return nil
}

func (m *Model) resolveField(owner *TypeInfo, fd FieldDef) (*Field, error) {
	if fd.Name == "" {
		return nil, fmt.Errorf("%w: %s has a field without a name", ErrInvalidModel, owner.Name)
	}
	f := &Field{
		Name:          fd.Name,
		Kind:          fd.Kind,
		Type:          fd.Type,
		Nullable:      fd.Nullable,
		Inverse:       fd.Inverse,
		Key:           fd.Key,
		Column:        fd.Column,
		declaringType: owner,
	}
	switch fd.Kind {
	case FieldPrimitive:
		if fd.Enum != "" {
			e, ok := m.enums[fd.Enum]
			if !ok {
				return nil, fmt.Errorf("%w: %s.%s uses unknown enum %q", ErrInvalidModel, owner.Name, fd.Name, fd.Enum)
			}
			f.Enum = e
			f.Type = e.Underlying
		}
		if f.Type == TypeUnknown {
			return nil, fmt.Errorf("%w: %s.%s has no value type", ErrInvalidModel, owner.Name, fd.Name)
		}
	case FieldStructure, FieldReference, FieldEntitySet:
		target, ok := m.types[fd.Target]
		if !ok {
			return nil, fmt.Errorf("%w: %s.%s targets unknown type %q", ErrInvalidModel, owner.Name, fd.Name, fd.Target)
		}
		want := KindEntity
		if fd.Kind == FieldStructure {
			want = KindStructure
		}
		if target.Kind != want {
			return nil, fmt.Errorf("%w: %s.%s must target a %s, %s is a %s", ErrInvalidModel, owner.Name, fd.Name, want, target.Name, target.Kind)
		}
		if fd.Kind == FieldStructure && target == owner {
			return nil, fmt.Errorf("%w: structure %s embeds itself", ErrInvalidModel, owner.Name)
		}
		f.Target = target
	default:
		return nil, fmt.Errorf("%w: %s.%s has unknown kind", ErrInvalidModel, owner.Name, fd.Name)
	}
	if fd.Key && (fd.Kind != FieldPrimitive || fd.Nullable) {
		return nil, fmt.Errorf("%w: key %s.%s must be a non-nullable primitive", ErrInvalidModel, owner.Name, fd.Name)
	}
	return f, nil
}

func validateType(t *TypeInfo) error {
	hasKey := false
	for _, f := range t.own {
		if f.Key {
			hasKey = true
		}
	}
	switch {
	case t.Kind == KindStructure && hasKey:
		return fmt.Errorf("%w: structure %s cannot declare keys", ErrInvalidModel, t.Name)
	case t.Kind == KindEntity && t.Parent == nil && !hasKey:
		return fmt.Errorf("%w: entity %s declares no key", ErrInvalidModel, t.Name)
	case t.Kind == KindEntity && t.Parent != nil && hasKey:
		return fmt.Errorf("%w: %s cannot declare keys, the hierarchy key belongs to %s", ErrInvalidModel, t.Name, t.Root().Name)
	}
	names := map[string]bool{}
	for _, a := range t.Ancestors() {
		for _, f := range a.own {
			if names[f.Name] {
				return fmt.Errorf("%w: %s redeclares field %q", ErrInvalidModel, t.Name, f.Name)
			}
			names[f.Name] = true
		}
	}
	return nil
}

func validateEntitySets(t *TypeInfo) error {
	for _, f := range t.own {
		if f.Kind != FieldEntitySet {
			continue
		}
		if f.Inverse == "" {
			return fmt.Errorf("%w: entity set %s.%s needs an inverse reference", ErrInvalidModel, t.Name, f.Name)
		}
		inv, ok := f.Target.Field(f.Inverse)
		if !ok || inv.Kind != FieldReference || !inv.Target.IsAncestorOf(t) {
			return fmt.Errorf("%w: %s.%s inverse %q is not a reference to %s", ErrInvalidModel, t.Name, f.Name, f.Inverse, t.Name)
		}
	}
	return nil
}

func (t *TypeInfo) rebuildFields() {
	t.all = t.all[:0]
	t.byName = make(map[string]*Field)
	for _, a := range t.Ancestors() {
		for _, f := range a.own {
			t.all = append(t.all, f)
			t.byName[f.Name] = f
		}
	}
}

// Definer lets modules add fields after static definitions are built.
type Definer struct {
	model  *Model
	sealed bool
}

// Model returns the model under construction.
func (d *Definer) Model() *Model { return d.model }

// DefineField adds a dynamic field to typeName and every descendant.
func (d *Definer) DefineField(typeName string, fd FieldDef) (*Field, error) {
	if d.sealed {
		return nil, fmt.Errorf("%w: model is sealed", ErrInvalidModel)
	}
	t, ok := d.model.types[typeName]
	if !ok {
		return nil, fmt.Errorf("%w: unknown type %q", ErrInvalidModel, typeName)
	}
	if fd.Key {
		return nil, fmt.Errorf("%w: dynamic field %s.%s cannot be a key", ErrInvalidModel, typeName, fd.Name)
	}
	for _, desc := range t.Descendants() {
		if _, dup := desc.byName[fd.Name]; dup {
			return nil, fmt.Errorf("%w: %s already has a field %q", ErrInvalidModel, desc.Name, fd.Name)
		}
	}
	f, err := d.model.resolveField(t, fd)
	if err != nil {
		return nil, err
	}
	f.Dynamic = true
	f.order = len(t.own)
	t.own = append(t.own, f)
	for _, desc := range t.Descendants() {
		desc.rebuildFields()
	}
	if fd.Kind == FieldEntitySet {
		if err := validateEntitySets(t); err != nil {
			return nil, err
		}
	}
	return f, nil
}
