// Package types provides the runtime values produced by query materialization.
package types

import (
	"context"
	"fmt"
	"reflect"
	"strings"
	"time"

	"github.com/cockroachdb/apd/v3"
	"github.com/google/uuid"

	"github.com/satishbabariya/queryable/schema"
)

// DateTime represents a timestamp
type DateTime = time.Time

// Decimal is an arbitrary-precision decimal number
type Decimal = apd.Decimal

// Guid is a 128-bit identifier
type Guid = uuid.UUID

// Point is the geometric point value type.
type Point = schema.Point

// DateTimeOffset is a timestamp that keeps its UTC offset.
type DateTimeOffset = schema.DateTimeOffset

// NewDecimal parses a decimal literal, panicking on malformed input.
func NewDecimal(value string) *Decimal {
	d, _, err := apd.NewFromString(value)
	if err != nil {
		panic(fmt.Sprintf("types: invalid decimal %q: %v", value, err))
	}
	return d
}

// Entity is a materialized persistent object.
type Entity struct {
	Type   *schema.TypeInfo
	values map[string]any
}

// NewEntity returns an empty entity of type t.
func NewEntity(t *schema.TypeInfo) *Entity {
	return &Entity{Type: t, values: make(map[string]any)}
}

// Get returns the value of a field. Structure fields hold *Structure values,
// references hold Ref values.
func (e *Entity) Get(name string) any { return e.values[name] }

// Set assigns a field value and returns the entity.
func (e *Entity) Set(name string, v any) *Entity {
	e.values[name] = v
	return e
}

// Key returns the key values in key field order.
func (e *Entity) Key() []any {
	keys := e.Type.Keys()
	out := make([]any, len(keys))
	for i, k := range keys {
		out[i] = e.values[k.Name]
	}
	return out
}

func (e *Entity) String() string {
	var parts []string
	for _, f := range e.Type.Fields() {
		if f.Kind == schema.FieldEntitySet {
			continue
		}
		parts = append(parts, fmt.Sprintf("%s: %v", f.Name, deref(e.values[f.Name])))
	}
	return e.Type.Name + "{" + strings.Join(parts, ", ") + "}"
}

// Structure is a value embedded in an entity.
type Structure struct {
	Type   *schema.TypeInfo
	values map[string]any
}

// NewStructure returns an empty structure of type t.
func NewStructure(t *schema.TypeInfo) *Structure {
	return &Structure{Type: t, values: make(map[string]any)}
}

// Get returns the value of a field.
func (s *Structure) Get(name string) any { return s.values[name] }

// Set assigns a field value and returns the structure.
func (s *Structure) Set(name string, v any) *Structure {
	s.values[name] = v
	return s
}

func (s *Structure) String() string {
	parts := make([]string, 0, len(s.Type.Fields()))
	for _, f := range s.Type.Fields() {
		parts = append(parts, fmt.Sprintf("%s: %v", f.Name, deref(s.values[f.Name])))
	}
	return s.Type.Name + "{" + strings.Join(parts, ", ") + "}"
}

// Record is an anonymous projection with ordered members.
type Record struct {
	Names  []string
	Values []any
}

// Get returns the value of the named member.
func (r *Record) Get(name string) any {
	for i, n := range r.Names {
		if n == name {
			return r.Values[i]
		}
	}
	return nil
}

func (r *Record) String() string {
	parts := make([]string, len(r.Names))
	for i, n := range r.Names {
		parts[i] = fmt.Sprintf("%s = %v", n, deref(r.Values[i]))
	}
	return "{ " + strings.Join(parts, ", ") + " }"
}

// Grouping is one group produced by GroupBy.
type Grouping struct {
	Key      any
	Elements []any
}

// Len returns the number of elements in the group.
func (g *Grouping) Len() int { return len(g.Elements) }

// Loader fetches an entity by key. Sessions implement it.
type Loader interface {
	LoadEntity(ctx context.Context, t *schema.TypeInfo, key []any) (*Entity, error)
}

// Ref is a lazily loaded entity reference built from foreign key columns.
type Ref struct {
	Type   *schema.TypeInfo
	KeyVal []any
	loader Loader
}

// NewRef returns a reference resolved through loader. A reference whose key
// columns are all NULL is nil.
func NewRef(t *schema.TypeInfo, key []any, loader Loader) *Ref {
	for _, k := range key {
		if k != nil {
			return &Ref{Type: t, KeyVal: key, loader: loader}
		}
	}
	return nil
}

// Load fetches the referenced entity.
func (r *Ref) Load(ctx context.Context) (*Entity, error) {
	if r.loader == nil {
		return nil, fmt.Errorf("types: reference to %s is detached", r.Type.Name)
	}
	return r.loader.LoadEntity(ctx, r.Type, r.KeyVal)
}

func (r *Ref) String() string {
	return fmt.Sprintf("%s%v", r.Type.Name, r.KeyVal)
}

func deref(v any) any {
	rv := reflect.ValueOf(v)
	if rv.Kind() != reflect.Pointer {
		return v
	}
	if rv.IsNil() {
		return nil
	}
	switch v.(type) {
	case *Entity, *Structure, *Record, *Grouping, *Ref, *Decimal:
		return v
	}
	return rv.Elem().Interface()
}
