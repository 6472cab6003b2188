// Package expr defines query expression trees: lambda bodies over persistent
// types, closures captured from the calling code and the method-call chains
// that form a query.
package expr

import (
	"fmt"
	"reflect"
	"strings"

	"github.com/satishbabariya/queryable/schema"
)

// Kind identifies a node variant.
type Kind int

const (
	KindParameter Kind = iota
	KindConstant
	KindCapture
	KindPlaceholder
	KindMember
	KindIndex
	KindBinary
	KindUnary
	KindConvert
	KindCall
	KindInvoke
	KindConditional
	KindNew
	KindMemberInit
	KindLambda
	KindSource
	KindLocal
	KindIn
	KindMatches
)

var kindNames = [...]string{
	"Parameter", "Constant", "Capture", "Placeholder", "Member", "Index", "Binary", "Unary",
	"Convert", "Call", "Invoke", "Conditional", "New", "MemberInit", "Lambda", "Source",
	"Local", "In", "Matches",
}

func (k Kind) String() string {
	if int(k) < len(kindNames) {
		return kindNames[k]
	}
	return fmt.Sprintf("Kind(%d)", int(k))
}

// Node is an immutable expression tree node.
type Node interface {
	Kind() Kind
	String() string
}

// BinaryOp is a binary operator.
type BinaryOp int

const (
	OpEq BinaryOp = iota
	OpNe
	OpLt
	OpLe
	OpGt
	OpGe
	OpAnd
	OpOr
	OpAdd
	OpSub
	OpMul
	OpDiv
	OpMod
	OpCoalesce
)

var binaryOpText = [...]string{"==", "!=", "<", "<=", ">", ">=", "&&", "||", "+", "-", "*", "/", "%", "??"}

func (op BinaryOp) String() string { return binaryOpText[op] }

// IsComparison reports whether op compares its operands.
func (op BinaryOp) IsComparison() bool { return op <= OpGe }

// IsLogical reports whether op is a boolean connective.
func (op BinaryOp) IsLogical() bool { return op == OpAnd || op == OpOr }

// IsArithmetic reports whether op is an arithmetic operator.
func (op BinaryOp) IsArithmetic() bool { return op >= OpAdd && op <= OpMod }

// UnaryOp is a unary operator.
type UnaryOp int

const (
	OpNot UnaryOp = iota
	OpNegate
)

func (op UnaryOp) String() string {
	if op == OpNot {
		return "!"
	}
	return "-"
}

// Algorithm selects how In is translated.
type Algorithm int

const (
	// IncludeAuto inlines the list unless it exceeds the provider's inline
	// limit and temporary tables are available.
	IncludeAuto Algorithm = iota
	// IncludeComplexCondition always inlines the list.
	IncludeComplexCondition
	// IncludeTemporaryTable always loads the list into a temporary table.
	IncludeTemporaryTable
)

func (a Algorithm) String() string {
	switch a {
	case IncludeComplexCondition:
		return "ComplexCondition"
	case IncludeTemporaryTable:
		return "TemporaryTable"
	}
	return "Auto"
}

// Parameter is a lambda parameter reference.
type Parameter struct {
	Name string
}

func (*Parameter) Kind() Kind       { return KindParameter }
func (n *Parameter) String() string { return Print(n) }

// Constant is a literal value embedded in the query. Type is set for typed
// nulls and otherwise derived from Value.
type Constant struct {
	Value any
	Type  reflect.Type
}

func (*Constant) Kind() Kind       { return KindConstant }
func (n *Constant) String() string { return Print(n) }

// GoType returns the declared type of the constant.
func (n *Constant) GoType() reflect.Type {
	if n.Type != nil {
		return n.Type
	}
	return reflect.TypeOf(n.Value)
}

// Capture reads a variable of the calling code at execution time. Path walks
// into struct values held by the variable.
type Capture struct {
	Name   string
	Static bool
	Path   []string
	ref    reflect.Value
}

func (*Capture) Kind() Kind       { return KindCapture }
func (n *Capture) String() string { return Print(n) }

// RootType is the declared type of the captured variable itself.
func (n *Capture) RootType() reflect.Type { return n.ref.Type() }

// Type is the declared type at the end of Path.
func (n *Capture) Type() reflect.Type {
	t := n.ref.Type()
	for _, p := range n.Path {
		for t.Kind() == reflect.Pointer {
			t = t.Elem()
		}
		if t.Kind() != reflect.Struct {
			return nil
		}
		f, ok := t.FieldByName(p)
		if !ok {
			return nil
		}
		t = f.Type
	}
	return t
}

// Value reads the current value of the captured variable along Path. A nil
// pointer met before the end of the path yields nil.
func (n *Capture) Value() (any, error) {
	v := n.ref
	for _, p := range n.Path {
		for v.Kind() == reflect.Pointer {
			if v.IsNil() {
				return nil, nil
			}
			v = v.Elem()
		}
		if v.Kind() != reflect.Struct {
			return nil, fmt.Errorf("expr: %s is not a struct", n.Name)
		}
		v = v.FieldByName(p)
		if !v.IsValid() {
			return nil, fmt.Errorf("expr: %s has no field %s", n.Name, p)
		}
	}
	return v.Interface(), nil
}

// Identity distinguishes captured variables: two captures of the same
// variable along the same path share it.
func (n *Capture) Identity() string {
	addr := uintptr(0)
	if n.ref.CanAddr() {
		addr = n.ref.UnsafeAddr()
	}
	return fmt.Sprintf("%x/%s/%s", addr, n.ref.Type(), strings.Join(n.Path, "."))
}

// WithPath returns a copy of the capture reaching one member further.
func (n *Capture) WithPath(member string) *Capture {
	c := *n
	c.Path = append(append([]string(nil), n.Path...), member)
	return &c
}

// Placeholder is a normalized capture: a typed slot filled from the binding
// table at execution time.
type Placeholder struct {
	Index int
	Type  reflect.Type
	// Search marks a full-text search condition slot.
	Search bool
}

func (*Placeholder) Kind() Kind       { return KindPlaceholder }
func (n *Placeholder) String() string { return Print(n) }

// Member accesses a field of Target. Indexed members come from e["Name"].
type Member struct {
	Target  Node
	Name    string
	Indexed bool
}

func (*Member) Kind() Kind       { return KindMember }
func (n *Member) String() string { return Print(n) }

// Index is the indexer e["Name"] before normalization.
type Index struct {
	Target Node
	Name   string
}

func (*Index) Kind() Kind       { return KindIndex }
func (n *Index) String() string { return Print(n) }

// Binary applies a binary operator.
type Binary struct {
	Op          BinaryOp
	Left, Right Node
}

func (*Binary) Kind() Kind       { return KindBinary }
func (n *Binary) String() string { return Print(n) }

// Unary applies a unary operator.
type Unary struct {
	Op      UnaryOp
	Operand Node
}

func (*Unary) Kind() Kind       { return KindUnary }
func (n *Unary) String() string { return Print(n) }

// Convert changes the value type of Operand.
type Convert struct {
	Operand  Node
	To       schema.ValueType
	Nullable bool
}

func (*Convert) Kind() Kind       { return KindConvert }
func (n *Convert) String() string { return Print(n) }

// Call invokes a method on Target: a query operator when Target is a
// sequence, or a string, entity set or grouping method otherwise. TypeArg
// carries the type argument of OfType and Cast.
type Call struct {
	Method  string
	Target  Node
	TypeArg string
	Args    []Node
}

func (*Call) Kind() Kind       { return KindCall }
func (n *Call) String() string { return Print(n) }

// Invocation calls a Go function that is not part of the query algebra.
type Invocation struct {
	Name string
	Fn   any
	Args []Node
}

func (*Invocation) Kind() Kind       { return KindInvoke }
func (n *Invocation) String() string { return Print(n) }

// Conditional is test ? then : else.
type Conditional struct {
	Test, Then, Else Node
}

func (*Conditional) Kind() Kind       { return KindConditional }
func (n *Conditional) String() string { return Print(n) }

// New constructs an anonymous record with ordered members.
type New struct {
	Names  []string
	Values []Node
}

func (*New) Kind() Kind       { return KindNew }
func (n *New) String() string { return Print(n) }

// MemberInit constructs a structure value of the named schema type.
type MemberInit struct {
	Type   string
	Names  []string
	Values []Node
}

func (*MemberInit) Kind() Kind       { return KindMemberInit }
func (n *MemberInit) String() string { return Print(n) }

// Lambda is a function literal.
type Lambda struct {
	Params []string
	Body   Node
}

func (*Lambda) Kind() Kind       { return KindLambda }
func (n *Lambda) String() string { return Print(n) }

// Source is the root sequence of all instances of a persistent type.
type Source struct {
	Type string
}

func (*Source) Kind() Kind       { return KindSource }
func (n *Source) String() string { return Print(n) }

// Local is an in-memory sequence held by Seq, a constant or capture of a slice.
type Local struct {
	Seq Node
}

func (*Local) Kind() Kind       { return KindLocal }
func (n *Local) String() string { return Print(n) }

// In tests Value for membership in Collection, a local sequence or a query.
type In struct {
	Value      Node
	Collection Node
	Algorithm  Algorithm
}

func (*In) Kind() Kind       { return KindIn }
func (n *In) String() string { return Print(n) }

// Matches is a full-text predicate of Field against a search condition held
// by Condition (a constant or capture).
type Matches struct {
	Field     Node
	Condition Node
}

func (*Matches) Kind() Kind       { return KindMatches }
func (n *Matches) String() string { return Print(n) }
