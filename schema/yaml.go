package schema

import (
	"fmt"

	"gopkg.in/yaml.v3"
)

// yamlModel mirrors the YAML layout of a model definition:
//
//	enums:
//	  - name: Color
//	    underlying: uint8
//	    members: [{name: Red, value: 1}]
//	types:
//	  - name: Person
//	    kind: entity
//	    fields:
//	      - {name: Id, type: int64, key: true}
//	      - {name: Pets, set: Animal, inverse: Owner}
type yamlModel struct {
	Enums []yamlEnum `yaml:"enums"`
	Types []yamlType `yaml:"types"`
}

type yamlEnum struct {
	Name       string `yaml:"name"`
	Underlying string `yaml:"underlying"`
	Members    []struct {
		Name  string `yaml:"name"`
		Value *int64 `yaml:"value"`
	} `yaml:"members"`
}

type yamlType struct {
	Name     string      `yaml:"name"`
	Kind     string      `yaml:"kind"`
	Parent   string      `yaml:"parent"`
	Table    string      `yaml:"table"`
	Abstract bool        `yaml:"abstract"`
	Scheme   string      `yaml:"scheme"`
	Fields   []yamlField `yaml:"fields"`
}

type yamlField struct {
	Name      string `yaml:"name"`
	Type      string `yaml:"type"`
	Enum      string `yaml:"enum"`
	Structure string `yaml:"structure"`
	Reference string `yaml:"reference"`
	Set       string `yaml:"set"`
	Inverse   string `yaml:"inverse"`
	Nullable  bool   `yaml:"nullable"`
	Key       bool   `yaml:"key"`
	Column    string `yaml:"column"`
}

// LoadYAML builds a model from a YAML definition.
func LoadYAML(data []byte, modules ...Module) (*Model, error) {
	var ym yamlModel
	if err := yaml.Unmarshal(data, &ym); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidModel, err)
	}
	b := NewBuilder()
	for _, ye := range ym.Enums {
		e := &Enum{Name: ye.Name, Underlying: TypeInt32}
		if ye.Underlying != "" {
			vt, ok := ParseValueType(ye.Underlying)
			if !ok {
				return nil, fmt.Errorf("%w: enum %s has unknown underlying type %q", ErrInvalidModel, ye.Name, ye.Underlying)
			}
			e.Underlying = vt
		}
		next := int64(0)
		for _, m := range ye.Members {
			if m.Value != nil {
				next = *m.Value
			}
			e.Members = append(e.Members, EnumMember{Name: m.Name, Value: next})
			next++
		}
		b.AddEnum(e)
	}
	for _, yt := range ym.Types {
		def := TypeDef{
			Name:     yt.Name,
			Parent:   yt.Parent,
			Table:    yt.Table,
			Abstract: yt.Abstract,
		}
		switch yt.Kind {
		case "", "entity":
			def.Kind = KindEntity
		case "structure":
			def.Kind = KindStructure
		default:
			return nil, fmt.Errorf("%w: type %s has unknown kind %q", ErrInvalidModel, yt.Name, yt.Kind)
		}
		if yt.Scheme != "" {
			s, err := ParseInheritanceScheme(yt.Scheme)
			if err != nil {
				return nil, fmt.Errorf("%w: %v", ErrInvalidModel, err)
			}
			def.Scheme = s
		}
		for _, yf := range yt.Fields {
			fd := FieldDef{
				Name:     yf.Name,
				Nullable: yf.Nullable,
				Key:      yf.Key,
				Column:   yf.Column,
				Inverse:  yf.Inverse,
			}
			switch {
			case yf.Set != "":
				fd.Kind, fd.Target = FieldEntitySet, yf.Set
			case yf.Reference != "":
				fd.Kind, fd.Target = FieldReference, yf.Reference
			case yf.Structure != "":
				fd.Kind, fd.Target = FieldStructure, yf.Structure
			case yf.Enum != "":
				fd.Kind, fd.Enum = FieldPrimitive, yf.Enum
			default:
				vt, ok := ParseValueType(yf.Type)
				if !ok {
					return nil, fmt.Errorf("%w: %s.%s has unknown type %q", ErrInvalidModel, yt.Name, yf.Name, yf.Type)
				}
				fd.Kind, fd.Type = FieldPrimitive, vt
			}
			def.Fields = append(def.Fields, fd)
		}
		b.AddType(def)
	}
	return b.Use(modules...).Build()
}
