package schema

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const zooSchema = `
// zoo
enum Color : uint8 { Red = 1, Green, Blue = 10 }

structure Address {
  City string
  Zip string?
}

entity Person @table("people") {
  key Id int64
  Name string
  Home Address
  Pets Animal* inverse Owner
}

abstract entity Animal @scheme("single_table") {
  key Id int64
  Name string
  Owner -> Person?
  Fur Color
}

entity Dog : Animal { Breed string }
entity Cat : Animal { Lives int32 @column("LivesLeft") }
`

func TestLoadDSL(t *testing.T) {
	m, err := Load("zoo.schema", zooSchema)
	require.NoError(t, err)

	color, ok := m.Enum("Color")
	require.True(t, ok)
	assert.Equal(t, TypeUint8, color.Underlying)
	green, _ := color.Value("Green")
	blue, _ := color.Value("Blue")
	assert.Equal(t, int64(2), green)
	assert.Equal(t, int64(10), blue)

	person := m.MustType("Person")
	assert.Equal(t, "people", person.Table)
	assert.Equal(t, ClassTable, person.Scheme())

	animal := m.MustType("Animal")
	dog := m.MustType("Dog")
	cat := m.MustType("Cat")
	assert.True(t, animal.Abstract)
	assert.Equal(t, SingleTable, dog.Scheme())
	assert.Same(t, animal, dog.Root())
	assert.True(t, animal.IsAncestorOf(dog))
	assert.False(t, dog.IsAncestorOf(cat))
	assert.True(t, dog.SameHierarchy(cat))
	assert.False(t, dog.SameHierarchy(person))
	assert.Equal(t, []int{animal.TypeID, dog.TypeID, cat.TypeID}, animal.TypeIDs())

	names := func(fs []*Field) []string {
		var out []string
		for _, f := range fs {
			out = append(out, f.Name)
		}
		return out
	}
	assert.Equal(t, []string{"Id", "Name", "Owner", "Fur", "Breed"}, names(dog.Fields()))
	assert.Equal(t, []string{"Id"}, names(dog.Keys()))

	lives, ok := cat.Field("Lives")
	require.True(t, ok)
	assert.Equal(t, "LivesLeft", lives.ColumnName())

	fur, _ := dog.Field("Fur")
	assert.Same(t, color, fur.Enum)
	assert.Equal(t, TypeUint8, fur.Type)
}

func TestFlattenedColumns(t *testing.T) {
	m, err := Load("zoo.schema", zooSchema)
	require.NoError(t, err)

	var cols []string
	for _, c := range m.MustType("Person").Columns() {
		cols = append(cols, c.Name)
	}
	assert.Equal(t, []string{"Id", "Name", "Home_City", "Home_Zip"}, cols)

	owner, _ := m.MustType("Animal").Field("Owner")
	fk := owner.Columns()
	require.Len(t, fk, 1)
	assert.Equal(t, "Owner_Id", fk[0].Name)
	assert.True(t, fk[0].Nullable())
	assert.Equal(t, TypeInt64, fk[0].ValueType())
}

func TestHierarchyKeyInvariants(t *testing.T) {
	tests := []struct {
		name string
		src  string
	}{
		{"root without key", `entity A { Name string }`},
		{"descendant declares key", `entity A { key Id int64 } entity B : A { key Other int64 }`},
		{"structure with key", `structure S { key Id int64 }`},
		{"redeclared field", `entity A { key Id int64 Name string } entity B : A { Name string }`},
		{"nullable key", `entity A { key Id int64? }`},
		{"unknown parent", `entity B : A { Name string }`},
		{"entity set without inverse", `entity A { key Id int64 Bs B* } entity B { key Id int64 }`},
		{"unknown type", `entity A { key Id int64 Weird unicorn }`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load("bad.schema", tt.src)
			require.Error(t, err)
			assert.True(t, errors.Is(err, ErrInvalidModel), "got %v", err)
		})
	}
}

func TestDynamicFields(t *testing.T) {
	var definer *Definer
	mod := ModuleFunc(func(d *Definer) error {
		definer = d
		if _, err := d.DefineField("Animal", FieldDef{Name: "Nickname", Kind: FieldPrimitive, Type: TypeString, Nullable: true}); err != nil {
			return err
		}
		_, err := d.DefineField("Person", FieldDef{Name: "Age", Kind: FieldPrimitive, Type: TypeInt32})
		return err
	})
	m, err := Load("zoo.schema", zooSchema, mod)
	require.NoError(t, err)

	for _, name := range []string{"Animal", "Dog", "Cat"} {
		f, ok := m.MustType(name).Field("Nickname")
		require.True(t, ok, name)
		assert.True(t, f.Dynamic)
		assert.Same(t, m.MustType("Animal"), f.DeclaringType())
	}
	age, ok := m.MustType("Person").Field("Age")
	require.True(t, ok)
	assert.Equal(t, TypeInt32, age.Type)

	_, err = definer.DefineField("Person", FieldDef{Name: "Late", Kind: FieldPrimitive, Type: TypeString})
	assert.ErrorIs(t, err, ErrInvalidModel)
}

func TestDynamicFieldConflicts(t *testing.T) {
	dup := ModuleFunc(func(d *Definer) error {
		_, err := d.DefineField("Animal", FieldDef{Name: "Breed", Kind: FieldPrimitive, Type: TypeString})
		return err
	})
	_, err := Load("zoo.schema", zooSchema, dup)
	assert.ErrorIs(t, err, ErrInvalidModel)

	key := ModuleFunc(func(d *Definer) error {
		_, err := d.DefineField("Person", FieldDef{Name: "Code", Kind: FieldPrimitive, Type: TypeString, Key: true})
		return err
	})
	_, err = Load("zoo.schema", zooSchema, key)
	assert.ErrorIs(t, err, ErrInvalidModel)
}

func TestLoadYAML(t *testing.T) {
	src := []byte(`
enums:
  - name: Size
    underlying: int16
    members: [{name: Small}, {name: Large, value: 5}]
types:
  - name: Shape
    scheme: concrete_table
    abstract: true
    fields:
      - {name: Id, type: guid, key: true}
      - {name: Size, enum: Size}
  - name: Circle
    parent: Shape
    fields:
      - {name: Radius, type: double}
  - name: Square
    parent: Shape
    fields:
      - {name: Side, type: decimal}
`)
	m, err := LoadYAML(src)
	require.NoError(t, err)
	circle := m.MustType("Circle")
	assert.Equal(t, ConcreteTable, circle.Scheme())
	id, _ := circle.Field("Id")
	assert.Equal(t, TypeGuid, id.Type)
	size, _ := m.Enum("Size")
	large, _ := size.Value("Large")
	assert.Equal(t, int64(5), large)

	_, err = LoadYAML([]byte("types:\n  - name: X\n    kind: blob\n"))
	assert.ErrorIs(t, err, ErrInvalidModel)
}

func TestValueTypeWidening(t *testing.T) {
	assert.True(t, TypeInt64.Widens(TypeInt32))
	assert.True(t, TypeInt32.Widens(TypeUint16))
	assert.False(t, TypeInt32.Widens(TypeUint32))
	assert.False(t, TypeUint32.Widens(TypeInt8))
	assert.True(t, TypeFloat64.Widens(TypeInt32))
	assert.False(t, TypeFloat64.Widens(TypeInt64))
	assert.True(t, TypeDecimal.Widens(TypeUint64))
	assert.False(t, TypeInt8.Widens(TypeInt16))
	assert.False(t, TypeString.Widens(TypeInt8))
}
