package expr

import (
	"fmt"
	"reflect"
	"strconv"
	"strings"
	"time"
)

// Print renders n canonically. Lambda parameters are renamed by binding
// depth, so trees that differ only in parameter names print identically.
// Captures print their name and declared type, never their value.
func Print(n Node) string {
	p := &printer{}
	p.node(n)
	return p.b.String()
}

type printer struct {
	b      strings.Builder
	params []string
}

func (p *printer) printf(format string, args ...any) {
	fmt.Fprintf(&p.b, format, args...)
}

func (p *printer) param(name string) string {
	for i := len(p.params) - 1; i >= 0; i-- {
		if p.params[i] == name {
			return "$" + strconv.Itoa(i)
		}
	}
	return "?" + name
}

func (p *printer) list(nodes []Node) {
	for i, a := range nodes {
		if i > 0 {
			p.b.WriteString(", ")
		}
		p.node(a)
	}
}

func (p *printer) node(n Node) {
	switch n := n.(type) {
	case nil:
		p.b.WriteString("<nil>")
	case *Parameter:
		p.b.WriteString(p.param(n.Name))
	case *Constant:
		p.b.WriteString(FormatValue(n.Value, n.GoType()))
	case *Capture:
		name := n.Name
		if len(n.Path) > 0 {
			name += "." + strings.Join(n.Path, ".")
		}
		scope := "field"
		if n.Static {
			scope = "static"
		}
		p.printf("%s(%s:%s)", scope, name, typeName(n.Type()))
	case *Placeholder:
		if n.Search {
			p.printf("@%d:search", n.Index)
			return
		}
		p.printf("@%d:%s", n.Index, typeName(n.Type))
	case *Member:
		p.node(n.Target)
		p.b.WriteString(".")
		p.b.WriteString(n.Name)
	case *Index:
		p.node(n.Target)
		p.printf("[%q]", n.Name)
	case *Binary:
		p.b.WriteString("(")
		p.node(n.Left)
		p.printf(" %s ", n.Op)
		p.node(n.Right)
		p.b.WriteString(")")
	case *Unary:
		p.b.WriteString(n.Op.String())
		p.node(n.Operand)
	case *Convert:
		nullable := ""
		if n.Nullable {
			nullable = "?"
		}
		p.printf("%s%s(", n.To, nullable)
		p.node(n.Operand)
		p.b.WriteString(")")
	case *Call:
		if n.Target != nil {
			p.node(n.Target)
			p.b.WriteString(".")
		}
		p.b.WriteString(n.Method)
		if n.TypeArg != "" {
			p.printf("<%s>", n.TypeArg)
		}
		p.b.WriteString("(")
		p.list(n.Args)
		p.b.WriteString(")")
	case *Invocation:
		p.printf("invoke %s(", n.Name)
		p.list(n.Args)
		p.b.WriteString(")")
	case *Conditional:
		p.b.WriteString("(")
		p.node(n.Test)
		p.b.WriteString(" ? ")
		p.node(n.Then)
		p.b.WriteString(" : ")
		p.node(n.Else)
		p.b.WriteString(")")
	case *New:
		p.b.WriteString("new {")
		for i, name := range n.Names {
			if i > 0 {
				p.b.WriteString(",")
			}
			p.printf(" %s = ", name)
			p.node(n.Values[i])
		}
		p.b.WriteString(" }")
	case *MemberInit:
		p.printf("new %s {", n.Type)
		for i, name := range n.Names {
			if i > 0 {
				p.b.WriteString(",")
			}
			p.printf(" %s = ", name)
			p.node(n.Values[i])
		}
		p.b.WriteString(" }")
	case *Lambda:
		start := len(p.params)
		p.params = append(p.params, n.Params...)
		names := make([]string, len(n.Params))
		for i := range n.Params {
			names[i] = "$" + strconv.Itoa(start+i)
		}
		p.printf("(%s) => ", strings.Join(names, ", "))
		p.node(n.Body)
		p.params = p.params[:start]
	case *Source:
		p.printf("All<%s>()", n.Type)
	case *Local:
		p.b.WriteString("Local(")
		p.node(n.Seq)
		p.b.WriteString(")")
	case *In:
		p.printf("In[%s](", n.Algorithm)
		p.node(n.Value)
		p.b.WriteString(", ")
		p.node(n.Collection)
		p.b.WriteString(")")
	case *Matches:
		p.b.WriteString("Matches(")
		p.node(n.Field)
		p.b.WriteString(", ")
		p.node(n.Condition)
		p.b.WriteString(")")
	default:
		p.printf("<%T>", n)
	}
}

var stringerType = reflect.TypeOf((*fmt.Stringer)(nil)).Elem()

func typeName(t reflect.Type) string {
	if t == nil {
		return "nil"
	}
	return t.String()
}

// FormatValue renders a literal with its type.
func FormatValue(v any, t reflect.Type) string {
	if t == nil {
		t = reflect.TypeOf(v)
	}
	if v == nil {
		return "null:" + typeName(t)
	}
	rv := reflect.ValueOf(v)
	if rv.Kind() == reflect.Pointer {
		if rv.IsNil() {
			return "null:" + typeName(t)
		}
		return "*" + FormatValue(rv.Elem().Interface(), rv.Elem().Type())
	}
	switch x := v.(type) {
	case string:
		return strconv.Quote(x)
	case time.Time:
		return "time(" + x.Format(time.RFC3339Nano) + ")"
	case []byte:
		return fmt.Sprintf("bytes(%x)", x)
	case fmt.Stringer:
		return fmt.Sprintf("%s(%s)", typeName(t), x.String())
	}
	switch rv.Kind() {
	case reflect.Slice, reflect.Array:
		parts := make([]string, rv.Len())
		for i := range parts {
			parts[i] = FormatValue(rv.Index(i).Interface(), rv.Type().Elem())
		}
		return typeName(t) + "[" + strings.Join(parts, ", ") + "]"
	case reflect.Struct:
		if reflect.PointerTo(rv.Type()).Implements(stringerType) {
			cp := reflect.New(rv.Type())
			cp.Elem().Set(rv)
			return fmt.Sprintf("%s(%s)", typeName(t), cp.Interface().(fmt.Stringer).String())
		}
		parts := make([]string, 0, rv.NumField())
		for i := 0; i < rv.NumField(); i++ {
			if !rv.Type().Field(i).IsExported() {
				continue
			}
			parts = append(parts, rv.Type().Field(i).Name+": "+FormatValue(rv.Field(i).Interface(), rv.Type().Field(i).Type))
		}
		return typeName(t) + "{" + strings.Join(parts, ", ") + "}"
	}
	return fmt.Sprintf("%s(%v)", typeName(t), v)
}
