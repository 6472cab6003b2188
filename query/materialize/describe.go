package materialize

import (
	"fmt"
	"strings"
)

// Describe renders p as an indented tree for explain output.
func Describe(p Plan) string {
	var b strings.Builder
	p.describe(&b, "")
	return strings.TrimRight(b.String(), "\n")
}

func (p *Scalar) describe(b *strings.Builder, indent string) {
	fmt.Fprintf(b, "%sscalar %s @%d\n", indent, p.Type, p.Pos)
}

func (p *Entity) describe(b *strings.Builder, indent string) {
	fmt.Fprintf(b, "%sentity %s (type id @%d)\n", indent, p.Type.Name, p.TypeID)
	for _, f := range p.Fields {
		fmt.Fprintf(b, "%s  %s:\n", indent, f.Field.Name)
		f.Plan.describe(b, indent+"    ")
	}
}

func (p *Structure) describe(b *strings.Builder, indent string) {
	fmt.Fprintf(b, "%sstructure %s\n", indent, p.Type.Name)
	for i, f := range p.Fields {
		fmt.Fprintf(b, "%s  %s:\n", indent, p.Names[i])
		f.describe(b, indent+"    ")
	}
}

func (p *Record) describe(b *strings.Builder, indent string) {
	fmt.Fprintf(b, "%srecord\n", indent)
	for i, m := range p.Members {
		fmt.Fprintf(b, "%s  %s:\n", indent, p.Names[i])
		m.describe(b, indent+"    ")
	}
}

func (p *Ref) describe(b *strings.Builder, indent string) {
	fmt.Fprintf(b, "%sref %s keys @%v\n", indent, p.Type.Name, p.Keys)
}

func (p *Sequence) describe(b *strings.Builder, indent string) {
	fmt.Fprintf(b, "%ssequence -> query %d", indent, p.Index)
	for _, o := range p.Outer {
		fmt.Fprintf(b, " c%d=@%d", o.Sub, o.Pos)
	}
	b.WriteString("\n")
}

func (p *Grouping) describe(b *strings.Builder, indent string) {
	fmt.Fprintf(b, "%sgrouping\n%s  key:\n", indent, indent)
	p.Key.describe(b, indent+"    ")
	fmt.Fprintf(b, "%s  elements:\n", indent)
	p.Elements.describe(b, indent+"    ")
}
