package expr

import (
	"fmt"
	"reflect"

	"github.com/satishbabariya/queryable/schema"
)

// Param references the lambda parameter name.
func Param(name string) *Parameter { return &Parameter{Name: name} }

// Const embeds a literal value.
func Const(v any) *Constant { return &Constant{Value: v} }

// Null is a typed null literal.
func Null(t reflect.Type) *Constant { return &Constant{Type: t} }

// Field captures the field name of the struct pointed to by host, the way a
// closure captures a variable of its enclosing method. It panics when host is
// not a non-nil struct pointer or the field does not exist or is unexported.
func Field(host any, name string) *Capture {
	hv := reflect.ValueOf(host)
	if hv.Kind() != reflect.Pointer || hv.IsNil() || hv.Elem().Kind() != reflect.Struct {
		panic(fmt.Sprintf("expr: Field host must be a non-nil struct pointer, got %T", host))
	}
	sf, ok := hv.Elem().Type().FieldByName(name)
	if !ok {
		panic(fmt.Sprintf("expr: %T has no field %s", host, name))
	}
	if !sf.IsExported() {
		panic(fmt.Sprintf("expr: field %s of %T is not exported", name, host))
	}
	return &Capture{
		Name: hv.Elem().Type().Name() + "." + name,
		ref:  hv.Elem().FieldByIndex(sf.Index),
	}
}

// Var captures the variable ptr points to, typically a package-level one.
func Var(name string, ptr any) *Capture {
	pv := reflect.ValueOf(ptr)
	if pv.Kind() != reflect.Pointer || pv.IsNil() {
		panic(fmt.Sprintf("expr: Var %s needs a non-nil pointer, got %T", name, ptr))
	}
	return &Capture{Name: name, Static: true, ref: pv.Elem()}
}

// Prop accesses the member name of target.
func Prop(target Node, name string) *Member { return &Member{Target: target, Name: name} }

// Idx is the indexer target["name"].
func Idx(target Node, name string) *Index { return &Index{Target: target, Name: name} }

func bin(op BinaryOp, l, r Node) *Binary { return &Binary{Op: op, Left: l, Right: r} }

func Eq(l, r Node) *Binary       { return bin(OpEq, l, r) }
func Ne(l, r Node) *Binary       { return bin(OpNe, l, r) }
func Lt(l, r Node) *Binary       { return bin(OpLt, l, r) }
func Le(l, r Node) *Binary       { return bin(OpLe, l, r) }
func Gt(l, r Node) *Binary       { return bin(OpGt, l, r) }
func Ge(l, r Node) *Binary       { return bin(OpGe, l, r) }
func Add(l, r Node) *Binary      { return bin(OpAdd, l, r) }
func Sub(l, r Node) *Binary      { return bin(OpSub, l, r) }
func Mul(l, r Node) *Binary      { return bin(OpMul, l, r) }
func Div(l, r Node) *Binary      { return bin(OpDiv, l, r) }
func Mod(l, r Node) *Binary      { return bin(OpMod, l, r) }
func Coalesce(l, r Node) *Binary { return bin(OpCoalesce, l, r) }

// And folds operands left to right with &&.
func And(first Node, rest ...Node) Node {
	n := first
	for _, r := range rest {
		n = bin(OpAnd, n, r)
	}
	return n
}

// Or folds operands left to right with ||.
func Or(first Node, rest ...Node) Node {
	n := first
	for _, r := range rest {
		n = bin(OpOr, n, r)
	}
	return n
}

// Not negates a boolean operand.
func Not(n Node) *Unary { return &Unary{Op: OpNot, Operand: n} }

// Neg negates a numeric operand.
func Neg(n Node) *Unary { return &Unary{Op: OpNegate, Operand: n} }

// ConvertTo converts n to the value type to.
func ConvertTo(n Node, to schema.ValueType) *Convert { return &Convert{Operand: n, To: to} }

// Method calls method on target.
func Method(target Node, method string, args ...Node) *Call {
	return &Call{Method: method, Target: target, Args: args}
}

// Invoke calls fn, a Go function, with args.
func Invoke(name string, fn any, args ...Node) *Invocation {
	if reflect.TypeOf(fn) == nil || reflect.TypeOf(fn).Kind() != reflect.Func {
		panic(fmt.Sprintf("expr: Invoke %s needs a function, got %T", name, fn))
	}
	return &Invocation{Name: name, Fn: fn, Args: args}
}

// Cond is test ? then : els.
func Cond(test, then, els Node) *Conditional { return &Conditional{Test: test, Then: then, Else: els} }

// Assignment is one named member of a record or structure initializer.
type Assignment struct {
	Name  string
	Value Node
}

// As names a member value.
func As(name string, v Node) Assignment { return Assignment{Name: name, Value: v} }

// Rec builds an anonymous record.
func Rec(members ...Assignment) *New {
	n := &New{}
	for _, m := range members {
		n.Names = append(n.Names, m.Name)
		n.Values = append(n.Values, m.Value)
	}
	return n
}

// Init builds a structure value of the schema type typeName.
func Init(typeName string, members ...Assignment) *MemberInit {
	n := &MemberInit{Type: typeName}
	for _, m := range members {
		n.Names = append(n.Names, m.Name)
		n.Values = append(n.Values, m.Value)
	}
	return n
}

// Fn1 is a one-parameter lambda.
func Fn1(param string, body Node) *Lambda { return &Lambda{Params: []string{param}, Body: body} }

// Fn2 is a two-parameter lambda.
func Fn2(a, b string, body Node) *Lambda { return &Lambda{Params: []string{a, b}, Body: body} }

// All is the sequence of every instance of typeName.
func All(typeName string) *Source { return &Source{Type: typeName} }

// LocalSeq wraps an in-memory sequence.
func LocalSeq(seq Node) *Local { return &Local{Seq: seq} }

// InList tests value for membership in collection.
func InList(value, collection Node, alg Algorithm) *In {
	return &In{Value: value, Collection: collection, Algorithm: alg}
}

// Match is a full-text predicate.
func Match(field, cond Node) *Matches { return &Matches{Field: field, Condition: cond} }
