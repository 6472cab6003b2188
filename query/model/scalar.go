package model

import (
	"github.com/satishbabariya/queryable/query/expr"
	"github.com/satishbabariya/queryable/schema"
)

// Scalar is a column-level expression evaluated per row.
type Scalar interface {
	// Type is the value type of the result.
	Type() schema.ValueType
	// Null reports whether the result may be NULL.
	Null() bool
}

// ColumnRef reads a column produced by an input node, or by an enclosing
// query when it appears inside a subquery.
type ColumnRef struct {
	ID       ColumnID
	T        schema.ValueType
	Nullable bool
}

func (c *ColumnRef) Type() schema.ValueType { return c.T }
func (c *ColumnRef) Null() bool             { return c.Nullable }

// Ref returns a reference to column c.
func Ref(c Column) *ColumnRef { return &ColumnRef{ID: c.ID, T: c.Type, Nullable: c.Nullable} }

// Literal is a constant; a nil Value is NULL.
type Literal struct {
	Value any
	T     schema.ValueType
}

func (l *Literal) Type() schema.ValueType { return l.T }
func (l *Literal) Null() bool             { return l.Value == nil }

// Param reads binding Index at execution time, following Path into struct
// values.
type Param struct {
	Index    int
	Path     []string
	T        schema.ValueType
	Nullable bool
	// Search marks a full-text search condition rendered per call.
	Search bool
	// Like escapes the value and wraps it in wildcards.
	Like LikeMode
}

func (p *Param) Type() schema.ValueType { return p.T }
func (p *Param) Null() bool             { return p.Nullable }

// LikeMode selects the wildcard placement of a LIKE pattern.
type LikeMode int

const (
	LikeNone LikeMode = iota
	LikeContains
	LikePrefix
	LikeSuffix
)

// Op is a scalar binary operator.
type Op int

const (
	Eq Op = iota
	Ne
	Lt
	Le
	Gt
	Ge
	And
	Or
	Add
	Sub
	Mul
	Div
	Mod
	Concat
)

var opText = [...]string{"=", "<>", "<", "<=", ">", ">=", "AND", "OR", "+", "-", "*", "/", "%", "||"}

func (o Op) String() string { return opText[o] }

// IsComparison reports whether o yields a predicate from two values.
func (o Op) IsComparison() bool { return o <= Ge }

// FromExpr maps an expression operator to a scalar operator.
func FromExpr(op expr.BinaryOp) (Op, bool) {
	switch op {
	case expr.OpEq:
		return Eq, true
	case expr.OpNe:
		return Ne, true
	case expr.OpLt:
		return Lt, true
	case expr.OpLe:
		return Le, true
	case expr.OpGt:
		return Gt, true
	case expr.OpGe:
		return Ge, true
	case expr.OpAnd:
		return And, true
	case expr.OpOr:
		return Or, true
	case expr.OpAdd:
		return Add, true
	case expr.OpSub:
		return Sub, true
	case expr.OpMul:
		return Mul, true
	case expr.OpDiv:
		return Div, true
	case expr.OpMod:
		return Mod, true
	}
	return 0, false
}

// Binary applies Op. NullSafe comparisons treat two NULLs as equal.
type Binary struct {
	Op       Op
	L, R     Scalar
	T        schema.ValueType
	NullSafe bool
}

func (b *Binary) Type() schema.ValueType { return b.T }
func (b *Binary) Null() bool {
	if b.Op.IsComparison() || b.Op == And || b.Op == Or {
		return false
	}
	return b.L.Null() || b.R.Null()
}

// Not negates a predicate.
type Not struct {
	X Scalar
}

func (*Not) Type() schema.ValueType { return schema.TypeBool }
func (*Not) Null() bool             { return false }

// Negate is arithmetic negation.
type Negate struct {
	X Scalar
}

func (n *Negate) Type() schema.ValueType { return n.X.Type() }
func (n *Negate) Null() bool             { return n.X.Null() }

// Cast converts X to To. An implicit cast is a widening the database
// performs on its own; it only changes the declared type.
type Cast struct {
	X        Scalar
	To       schema.ValueType
	Implicit bool
}

func (c *Cast) Type() schema.ValueType { return c.To }
func (c *Cast) Null() bool             { return c.X.Null() }

// When is one branch of a Case.
type When struct {
	Cond, Then Scalar
}

// Case is a searched CASE expression.
type Case struct {
	Whens    []When
	Else     Scalar
	T        schema.ValueType
	Nullable bool
}

func (c *Case) Type() schema.ValueType { return c.T }
func (c *Case) Null() bool             { return c.Nullable }

// Func is a scalar function.
type Func struct {
	Name     FuncName
	Args     []Scalar
	T        schema.ValueType
	Nullable bool
}

// FuncName identifies a scalar function rendered per dialect.
type FuncName int

const (
	FnUpper FuncName = iota
	FnLower
	FnTrim
	FnLength
	FnCoalesce
)

func (f *Func) Type() schema.ValueType { return f.T }
func (f *Func) Null() bool             { return f.Nullable }

// Like matches X against Pattern.
type Like struct {
	X, Pattern Scalar
	Mode       LikeMode
}

func (*Like) Type() schema.ValueType { return schema.TypeBool }
func (*Like) Null() bool             { return false }

// IsNull tests X for NULL.
type IsNull struct {
	X      Scalar
	Negate bool
}

func (*IsNull) Type() schema.ValueType { return schema.TypeBool }
func (*IsNull) Null() bool             { return false }

// InList tests a value (one scalar, or a row for composite values) for
// membership in an in-memory list expanded at bind time.
type InList struct {
	X []Scalar
	// Binding is the placeholder index of the list, or -1 for Const.
	Binding int
	Const   any
	// Paths address the element member feeding each position of X.
	Paths     [][]string
	Types     []schema.ValueType
	Algorithm expr.Algorithm
}

func (*InList) Type() schema.ValueType { return schema.TypeBool }
func (*InList) Null() bool             { return false }

// Exists tests whether Query returns rows.
type Exists struct {
	Query  Node
	Negate bool
}

func (*Exists) Type() schema.ValueType { return schema.TypeBool }
func (*Exists) Null() bool             { return false }

// InQuery tests X for membership in the single column of Query.
type InQuery struct {
	X     Scalar
	Query Node
}

func (*InQuery) Type() schema.ValueType { return schema.TypeBool }
func (*InQuery) Null() bool             { return false }

// Subquery is a scalar subquery returning one column and at most one row.
type Subquery struct {
	Query Node
	T     schema.ValueType
}

func (s *Subquery) Type() schema.ValueType { return s.T }
func (*Subquery) Null() bool               { return true }

// Contains is a full-text predicate over Column with a search condition
// parameter.
type Contains struct {
	Column    Scalar
	Condition *Param
}

func (*Contains) Type() schema.ValueType { return schema.TypeBool }
func (*Contains) Null() bool             { return false }

// IsPredicate reports whether s is a relational predicate rather than a value.
func IsPredicate(s Scalar) bool {
	switch s := s.(type) {
	case *Binary:
		return s.Op.IsComparison() || s.Op == And || s.Op == Or
	case *Not, *Like, *IsNull, *InList, *Exists, *InQuery, *Contains:
		return true
	}
	return false
}

// Refs calls fn for every column reference in s, including references inside
// subquery nodes.
func Refs(s Scalar, fn func(*ColumnRef)) {
	switch s := s.(type) {
	case *ColumnRef:
		fn(s)
	case *Binary:
		Refs(s.L, fn)
		Refs(s.R, fn)
	case *Not:
		Refs(s.X, fn)
	case *Negate:
		Refs(s.X, fn)
	case *Cast:
		Refs(s.X, fn)
	case *Case:
		for _, w := range s.Whens {
			Refs(w.Cond, fn)
			Refs(w.Then, fn)
		}
		if s.Else != nil {
			Refs(s.Else, fn)
		}
	case *Func:
		for _, a := range s.Args {
			Refs(a, fn)
		}
	case *Like:
		Refs(s.X, fn)
		Refs(s.Pattern, fn)
	case *IsNull:
		Refs(s.X, fn)
	case *InList:
		for _, x := range s.X {
			Refs(x, fn)
		}
	case *Exists:
		NodeRefs(s.Query, fn)
	case *InQuery:
		Refs(s.X, fn)
		NodeRefs(s.Query, fn)
	case *Subquery:
		NodeRefs(s.Query, fn)
	case *Contains:
		Refs(s.Column, fn)
	}
}

// NodeRefs calls fn for every column reference held by the scalars of n and
// its descendants.
func NodeRefs(n Node, fn func(*ColumnRef)) {
	NodeScalars(n, func(s Scalar) { Refs(s, fn) })
	for _, c := range Children(n) {
		NodeRefs(c, fn)
	}
}

// NodeScalars calls fn for every scalar held directly by n.
func NodeScalars(n Node, fn func(Scalar)) {
	switch n := n.(type) {
	case *Filter:
		fn(n.Pred)
	case *Project:
		for _, c := range n.Cols {
			fn(c.Expr)
		}
	case *Join:
		if n.On != nil {
			fn(n.On)
		}
	case *GroupBy:
		for _, k := range n.Keys {
			fn(k.Expr)
		}
		aggScalars(n.Aggs, fn)
	case *Aggregate:
		aggScalars(n.Aggs, fn)
	case *OrderBy:
		for _, k := range n.Keys {
			fn(k.Expr)
		}
	case *Page:
		if n.Skip != nil {
			fn(n.Skip)
		}
		if n.Take != nil {
			fn(n.Take)
		}
	case *Singleton:
		for _, c := range n.Cols {
			fn(c.Expr)
		}
	}
}

func aggScalars(aggs []*AggColumn, fn func(Scalar)) {
	for _, a := range aggs {
		if a.Arg != nil {
			fn(a.Arg)
		}
		if a.Where != nil {
			fn(a.Where)
		}
	}
}

// Subqueries calls fn for every subquery node directly inside s.
func Subqueries(s Scalar, fn func(Node)) {
	switch s := s.(type) {
	case *Exists:
		fn(s.Query)
	case *InQuery:
		Subqueries(s.X, fn)
		fn(s.Query)
	case *Subquery:
		fn(s.Query)
	case *Binary:
		Subqueries(s.L, fn)
		Subqueries(s.R, fn)
	case *Not:
		Subqueries(s.X, fn)
	case *Negate:
		Subqueries(s.X, fn)
	case *Cast:
		Subqueries(s.X, fn)
	case *Case:
		for _, w := range s.Whens {
			Subqueries(w.Cond, fn)
			Subqueries(w.Then, fn)
		}
		if s.Else != nil {
			Subqueries(s.Else, fn)
		}
	case *Func:
		for _, a := range s.Args {
			Subqueries(a, fn)
		}
	case *IsNull:
		Subqueries(s.X, fn)
	}
}

// Produced returns the ids of every column produced anywhere inside n,
// including inside its subqueries.
func Produced(n Node) map[ColumnID]bool {
	out := map[ColumnID]bool{}
	var walk func(Node)
	walk = func(n Node) {
		for _, c := range n.Columns() {
			out[c.ID] = true
		}
		NodeScalars(n, func(s Scalar) { Subqueries(s, walk) })
		for _, ch := range Children(n) {
			walk(ch)
		}
	}
	walk(n)
	return out
}

// FreeRefs returns the column references of n that are not produced inside
// n: the correlation of a subquery with its enclosing query.
func FreeRefs(n Node) []*ColumnRef {
	inner := Produced(n)
	seen := map[ColumnID]bool{}
	var out []*ColumnRef
	NodeRefs(n, func(r *ColumnRef) {
		if inner[r.ID] || seen[r.ID] {
			return
		}
		seen[r.ID] = true
		out = append(out, r)
	})
	return out
}
