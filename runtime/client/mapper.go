package client

import (
	"fmt"
	"reflect"
	"strings"

	"github.com/satishbabariya/queryable/runtime/types"
)

// List maps a sequence result into a slice of T. Entities, structures and
// records map onto struct fields by db tag or case-insensitive field name.
func List[T any](v any, err error) ([]T, error) {
	if err != nil {
		return nil, err
	}
	items, ok := v.([]any)
	if !ok {
		return nil, fmt.Errorf("client: result %T is not a sequence", v)
	}
	out := make([]T, len(items))
	for i, item := range items {
		if err := assign(reflect.ValueOf(&out[i]).Elem(), item); err != nil {
			return nil, fmt.Errorf("element %d: %w", i, err)
		}
	}
	return out, nil
}

// One maps a single result into T. A nil result yields the zero value.
func One[T any](v any, err error) (T, error) {
	var out T
	if err != nil {
		return out, err
	}
	if err := assign(reflect.ValueOf(&out).Elem(), v); err != nil {
		return out, err
	}
	return out, nil
}

// Into maps a result into the value dst points to.
func Into(v any, dst any) error {
	dv := reflect.ValueOf(dst)
	if dv.Kind() != reflect.Pointer || dv.IsNil() {
		return fmt.Errorf("client: Into needs a non-nil pointer, got %T", dst)
	}
	return assign(dv.Elem(), v)
}

type members interface {
	names() []string
	get(name string) any
}

type entityMembers struct{ e *types.Entity }

func (m entityMembers) names() []string {
	var out []string
	for _, f := range m.e.Type.Fields() {
		out = append(out, f.Name)
	}
	return out
}
func (m entityMembers) get(name string) any { return m.e.Get(name) }

type structureMembers struct{ s *types.Structure }

func (m structureMembers) names() []string {
	var out []string
	for _, f := range m.s.Type.Fields() {
		out = append(out, f.Name)
	}
	return out
}
func (m structureMembers) get(name string) any { return m.s.Get(name) }

type recordMembers struct{ r *types.Record }

func (m recordMembers) names() []string     { return m.r.Names }
func (m recordMembers) get(name string) any { return m.r.Get(name) }

type groupingMembers struct{ g *types.Grouping }

func (m groupingMembers) names() []string { return []string{"Key", "Elements"} }
func (m groupingMembers) get(name string) any {
	if name == "Key" {
		return m.g.Key
	}
	return m.g.Elements
}

func membersOf(v any) (members, bool) {
	switch x := v.(type) {
	case *types.Entity:
		return entityMembers{x}, x != nil
	case *types.Structure:
		return structureMembers{x}, x != nil
	case *types.Record:
		return recordMembers{x}, x != nil
	case *types.Grouping:
		return groupingMembers{x}, x != nil
	}
	return nil, false
}

func assign(dst reflect.Value, v any) error {
	if v == nil {
		dst.Set(reflect.Zero(dst.Type()))
		return nil
	}
	sv := reflect.ValueOf(v)
	if sv.Type().AssignableTo(dst.Type()) {
		dst.Set(sv)
		return nil
	}
	switch dst.Kind() {
	case reflect.Pointer:
		if sv.Kind() == reflect.Pointer && sv.IsNil() {
			dst.Set(reflect.Zero(dst.Type()))
			return nil
		}
		p := reflect.New(dst.Type().Elem())
		if err := assign(p.Elem(), v); err != nil {
			return err
		}
		dst.Set(p)
		return nil
	case reflect.Struct:
		if m, ok := membersOf(v); ok {
			return assignStruct(dst, m)
		}
	case reflect.Slice:
		if items, ok := v.([]any); ok {
			out := reflect.MakeSlice(dst.Type(), len(items), len(items))
			for i, item := range items {
				if err := assign(out.Index(i), item); err != nil {
					return fmt.Errorf("element %d: %w", i, err)
				}
			}
			dst.Set(out)
			return nil
		}
	}
	// nullable scalars arrive as pointers
	for sv.Kind() == reflect.Pointer {
		if sv.IsNil() {
			dst.Set(reflect.Zero(dst.Type()))
			return nil
		}
		sv = sv.Elem()
	}
	if sv.Type().ConvertibleTo(dst.Type()) && convertible(sv.Kind(), dst.Kind()) {
		dst.Set(sv.Convert(dst.Type()))
		return nil
	}
	return fmt.Errorf("cannot map %T into %s", v, dst.Type())
}

// convertible rejects conversions that change meaning, such as int to string.
func convertible(from, to reflect.Kind) bool {
	if to == reflect.String {
		return from == reflect.String
	}
	return true
}

func assignStruct(dst reflect.Value, m members) error {
	typ := dst.Type()
	for _, name := range m.names() {
		field := findFieldByName(typ, name)
		if field.Name == "" {
			continue
		}
		if err := assign(dst.FieldByIndex(field.Index), m.get(name)); err != nil {
			return fmt.Errorf("field %s: %w", name, err)
		}
	}
	return nil
}

// findFieldByName finds a struct field by member name (db tag or field name)
func findFieldByName(typ reflect.Type, name string) reflect.StructField {
	var fold reflect.StructField
	for i := 0; i < typ.NumField(); i++ {
		field := typ.Field(i)
		if !field.IsExported() {
			continue
		}
		if tag := field.Tag.Get("db"); tag != "" {
			tagName := strings.Split(tag, ",")[0]
			if tagName == "-" {
				continue
			}
			if tagName == name {
				return field
			}
		}
		if field.Name == name {
			return field
		}
		// case-insensitive match, used when nothing matches exactly
		if fold.Name == "" && strings.EqualFold(field.Name, name) {
			fold = field
		}
	}
	return fold
}
