package schema

import (
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/alecthomas/participle/v2"
	"github.com/alecthomas/participle/v2/lexer"
)

// SchemaLexer tokenizes model definition files.
var SchemaLexer = lexer.MustSimple([]lexer.SimpleRule{
	{Name: "Comment", Pattern: `//[^\n]*`},
	{Name: "String", Pattern: `"(?:\\.|[^"\\])*"`},
	{Name: "Number", Pattern: `-?\d+`},
	{Name: "Ident", Pattern: `[A-Za-z_][A-Za-z0-9_]*`},
	{Name: "Arrow", Pattern: `->`},
	{Name: "Punct", Pattern: `[{}():,=*?@;]`},
	{Name: "Whitespace", Pattern: `\s+`},
})

// File is the parse tree of a model definition file.
//
//	enum Color : uint8 { Red = 1, Green = 2 }
//
//	entity Animal @scheme("single_table") {
//	  key Id int64
//	  Name string
//	  Owner -> Person?
//	}
//	entity Dog : Animal { Breed string }
//	structure Address { City string  Zip string? }
//	entity Person {
//	  key Id int64
//	  Home Address
//	  Pets Animal* inverse Owner
//	}
type File struct {
	Pos   lexer.Position
	Decls []*Decl `@@*`
}

// Decl is a top-level declaration.
type Decl struct {
	Enum *EnumDecl `  @@`
	Type *TypeDecl `| @@`
}

// EnumDecl declares an enum.
type EnumDecl struct {
	Pos        lexer.Position
	Name       string            `"enum" @Ident`
	Underlying string            `(":" @Ident)?`
	Members    []*EnumMemberDecl `"{" (@@ ","?)* "}"`
}

// EnumMemberDecl declares one enum constant.
type EnumMemberDecl struct {
	Name  string `@Ident`
	Value string `("=" @Number)?`
}

// TypeDecl declares an entity or structure.
type TypeDecl struct {
	Pos      lexer.Position
	Abstract bool         `@"abstract"?`
	Kind     string       `@("entity" | "structure")`
	Name     string       `@Ident`
	Parent   string       `(":" @Ident)?`
	Attrs    []*Attribute `@@*`
	Fields   []*FieldDecl `"{" @@* "}"`
}

// Attribute is an annotation such as @table("people").
type Attribute struct {
	Name string `"@" @Ident`
	Arg  string `("(" @String ")")?`
}

// FieldDecl declares one field.
type FieldDecl struct {
	Pos       lexer.Position
	Key       bool         `@"key"?`
	Name      string       `@Ident`
	Reference bool         `@Arrow?`
	Type      string       `@Ident`
	Set       bool         `@"*"?`
	Nullable  bool         `@"?"?`
	Inverse   string       `("inverse" @Ident)?`
	Attrs     []*Attribute `@@*`
	Semicolon bool         `@";"?`
}

var schemaParser = participle.MustBuild[File](
	participle.Lexer(SchemaLexer),
	participle.Elide("Whitespace", "Comment"),
	participle.Unquote("String"),
	participle.UseLookahead(4),
)

// Parse parses a model definition from r.
func Parse(filename string, r io.Reader) (*File, error) {
	return schemaParser.Parse(filename, r)
}

// ParseString parses a model definition from a string.
func ParseString(filename, src string) (*File, error) {
	return schemaParser.ParseString(filename, src)
}

// Load parses src and builds a sealed model, running modules before sealing.
func Load(filename, src string, modules ...Module) (*Model, error) {
	f, err := ParseString(filename, src)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidModel, err)
	}
	b, err := f.Builder()
	if err != nil {
		return nil, err
	}
	return b.Use(modules...).Build()
}

// Builder converts the parse tree into builder definitions.
func (f *File) Builder() (*Builder, error) {
	b := NewBuilder()
	structures := map[string]bool{}
	enums := map[string]bool{}
	for _, d := range f.Decls {
		switch {
		case d.Type != nil && d.Type.Kind == "structure":
			structures[d.Type.Name] = true
		case d.Enum != nil:
			enums[d.Enum.Name] = true
		}
	}

	for _, d := range f.Decls {
		if d.Enum == nil {
			continue
		}
		e := &Enum{Name: d.Enum.Name, Underlying: TypeInt32}
		if d.Enum.Underlying != "" {
			vt, ok := ParseValueType(d.Enum.Underlying)
			if !ok {
				return nil, fmt.Errorf("%w: %s: enum %s has unknown underlying type %q", ErrInvalidModel, d.Enum.Pos, d.Enum.Name, d.Enum.Underlying)
			}
			e.Underlying = vt
		}
		next := int64(0)
		for _, m := range d.Enum.Members {
			if m.Value != "" {
				v, err := strconv.ParseInt(m.Value, 10, 64)
				if err != nil {
					return nil, fmt.Errorf("%w: %s: enum member %s.%s: %v", ErrInvalidModel, d.Enum.Pos, d.Enum.Name, m.Name, err)
				}
				next = v
			}
			e.Members = append(e.Members, EnumMember{Name: m.Name, Value: next})
			next++
		}
		b.AddEnum(e)
	}

	for _, d := range f.Decls {
		if d.Type == nil {
			continue
		}
		td := d.Type
		def := TypeDef{
			Name:     td.Name,
			Kind:     KindEntity,
			Parent:   td.Parent,
			Abstract: td.Abstract,
		}
		if td.Kind == "structure" {
			def.Kind = KindStructure
		}
		for _, a := range td.Attrs {
			switch strings.ToLower(a.Name) {
			case "table":
				def.Table = a.Arg
			case "scheme", "inheritance":
				s, err := ParseInheritanceScheme(a.Arg)
				if err != nil {
					return nil, fmt.Errorf("%w: %s: %v", ErrInvalidModel, td.Pos, err)
				}
				def.Scheme = s
			default:
				return nil, fmt.Errorf("%w: %s: unknown attribute @%s on %s", ErrInvalidModel, td.Pos, a.Name, td.Name)
			}
		}
		for _, fdecl := range td.Fields {
			fd, err := fieldDefFromDecl(fdecl, structures, enums)
			if err != nil {
				return nil, err
			}
			def.Fields = append(def.Fields, fd)
		}
		b.AddType(def)
	}
	return b, nil
}

func fieldDefFromDecl(d *FieldDecl, structures, enums map[string]bool) (FieldDef, error) {
	fd := FieldDef{
		Name:     d.Name,
		Key:      d.Key,
		Nullable: d.Nullable,
		Inverse:  d.Inverse,
	}
	for _, a := range d.Attrs {
		if strings.ToLower(a.Name) != "column" {
			return fd, fmt.Errorf("%w: %s: unknown field attribute @%s", ErrInvalidModel, d.Pos, a.Name)
		}
		fd.Column = a.Arg
	}
	switch {
	case d.Set:
		fd.Kind = FieldEntitySet
		fd.Target = d.Type
	case d.Reference:
		fd.Kind = FieldReference
		fd.Target = d.Type
	case structures[d.Type]:
		fd.Kind = FieldStructure
		fd.Target = d.Type
	case enums[d.Type]:
		fd.Kind = FieldPrimitive
		fd.Enum = d.Type
	default:
		vt, ok := ParseValueType(d.Type)
		if !ok {
			return fd, fmt.Errorf("%w: %s: field %s has unknown type %q", ErrInvalidModel, d.Pos, d.Name, d.Type)
		}
		fd.Kind = FieldPrimitive
		fd.Type = vt
	}
	return fd, nil
}
