// Package model is the intermediate relational representation of a query:
// a tree of relational nodes whose output columns are identified by
// per-translation column ids, plus shapes that describe how those columns
// map back to entities, structures, records, groupings and scalars.
package model

import (
	"fmt"

	"github.com/satishbabariya/queryable/schema"
)

// ColumnID identifies an output column within one translation.
type ColumnID int

// Column is an output column of a node.
type Column struct {
	ID       ColumnID
	Name     string
	Type     schema.ValueType
	Nullable bool
}

// Alias is the SQL alias used for the column.
func (c Column) Alias() string { return fmt.Sprintf("c%d", c.ID) }

// Node is a relational operator.
type Node interface {
	// Columns returns the output columns in order.
	Columns() []Column
	nodeName() string
}

// Name returns the operator name of n, for diagnostics.
func Name(n Node) string { return n.nodeName() }

// ScanColumn binds an output column to a stored column of a hierarchy.
type ScanColumn struct {
	Column
	// Owner is the type whose table stores the column (ClassTable) or the
	// type declaring the field (other schemes). Nil for the type id column.
	Owner *schema.TypeInfo
	// Stored is the physical column name.
	Stored string
}

// Scan reads every instance of Type, including descendants.
type Scan struct {
	Type *schema.TypeInfo
	// TypeID is the discriminator column.
	TypeID ScanColumn
	// Cols are the stored columns of Type and all its descendants, keys first.
	Cols []ScanColumn
}

func (s *Scan) Columns() []Column {
	out := []Column{s.TypeID.Column}
	for _, c := range s.Cols {
		out = append(out, c.Column)
	}
	return out
}

func (*Scan) nodeName() string { return "Scan" }

// Column returns the output column of a stored column path of the scan.
func (s *Scan) Column(owner *schema.TypeInfo, stored string) (Column, bool) {
	for _, c := range s.Cols {
		if c.Stored == stored && (owner == nil || c.Owner == owner) {
			return c.Column, true
		}
	}
	return Column{}, false
}

// Values is an in-memory sequence bound at execution time.
type Values struct {
	// Binding is the placeholder index holding the slice, or -1 for Const.
	Binding int
	Const   any
	// Paths address the struct member of each element feeding each column;
	// a nil path is the element itself.
	Paths [][]string
	Cols  []Column
}

func (v *Values) Columns() []Column { return v.Cols }
func (*Values) nodeName() string    { return "Values" }

// Filter keeps the rows of Child satisfying Pred.
type Filter struct {
	Child Node
	Pred  Scalar
}

func (f *Filter) Columns() []Column { return f.Child.Columns() }
func (*Filter) nodeName() string    { return "Filter" }

// ProjectColumn is one computed column.
type ProjectColumn struct {
	Column
	Expr Scalar
}

// Project computes new columns from Child.
type Project struct {
	Child Node
	Cols  []ProjectColumn
}

func (p *Project) Columns() []Column {
	out := make([]Column, len(p.Cols))
	for i, c := range p.Cols {
		out[i] = c.Column
	}
	return out
}

func (*Project) nodeName() string { return "Project" }

// JoinKind is the join flavour.
type JoinKind int

const (
	InnerJoin JoinKind = iota
	LeftJoin
)

// Join combines Left and Right rows satisfying On.
type Join struct {
	Kind        JoinKind
	Left, Right Node
	On          Scalar
}

func (j *Join) Columns() []Column {
	right := j.Right.Columns()
	if j.Kind == LeftJoin {
		nullable := make([]Column, len(right))
		for i, c := range right {
			c.Nullable = true
			nullable[i] = c
		}
		right = nullable
	}
	return append(append([]Column(nil), j.Left.Columns()...), right...)
}

func (*Join) nodeName() string { return "Join" }

// AggFunc is an aggregate function.
type AggFunc int

const (
	AggCount AggFunc = iota
	AggSum
	AggMin
	AggMax
	AggAvg
)

var aggNames = [...]string{"COUNT", "SUM", "MIN", "MAX", "AVG"}

func (f AggFunc) String() string { return aggNames[f] }

// AggColumn is an aggregate output column. A nil Arg counts rows; Where
// restricts the aggregated rows.
type AggColumn struct {
	Column
	Func  AggFunc
	Arg   Scalar
	Where Scalar
}

// GroupBy groups Child by Keys, producing key columns followed by aggregates.
// Aggregates are appended while the query is being built.
type GroupBy struct {
	Child Node
	Keys  []ProjectColumn
	Aggs  []*AggColumn
}

func (g *GroupBy) Columns() []Column {
	out := make([]Column, 0, len(g.Keys)+len(g.Aggs))
	for _, k := range g.Keys {
		out = append(out, k.Column)
	}
	for _, a := range g.Aggs {
		out = append(out, a.Column)
	}
	return out
}

func (*GroupBy) nodeName() string { return "GroupBy" }

// Aggregate folds all rows of Child into one row.
type Aggregate struct {
	Child Node
	Aggs  []*AggColumn
}

func (a *Aggregate) Columns() []Column {
	out := make([]Column, len(a.Aggs))
	for i, c := range a.Aggs {
		out[i] = c.Column
	}
	return out
}

func (*Aggregate) nodeName() string { return "Aggregate" }

// SetOpKind is a set operation.
type SetOpKind int

const (
	Union SetOpKind = iota
	UnionAll
	Intersect
	Except
)

func (k SetOpKind) String() string {
	return [...]string{"UNION", "UNION ALL", "INTERSECT", "EXCEPT"}[k]
}

// SetOp combines two inputs with matching column lists positionally.
type SetOp struct {
	Kind        SetOpKind
	Left, Right Node
	Cols        []Column
}

func (s *SetOp) Columns() []Column { return s.Cols }
func (*SetOp) nodeName() string    { return "SetOp" }

// SortKey is one ordering term.
type SortKey struct {
	Expr Scalar
	Desc bool
}

// OrderBy sorts Child.
type OrderBy struct {
	Child Node
	Keys  []SortKey
}

func (o *OrderBy) Columns() []Column { return o.Child.Columns() }
func (*OrderBy) nodeName() string    { return "OrderBy" }

// Page skips and limits rows. Nil Skip or Take means none.
type Page struct {
	Child      Node
	Skip, Take Scalar
}

func (p *Page) Columns() []Column { return p.Child.Columns() }
func (*Page) nodeName() string    { return "Page" }

// Distinct removes duplicate rows.
type Distinct struct {
	Child Node
}

func (d *Distinct) Columns() []Column { return d.Child.Columns() }
func (*Distinct) nodeName() string    { return "Distinct" }

// TypeFilter keeps rows whose type id is in IDs. An empty IDs keeps nothing.
type TypeFilter struct {
	Child  Node
	TypeID ColumnID
	IDs    []int
}

func (t *TypeFilter) Columns() []Column { return t.Child.Columns() }
func (*TypeFilter) nodeName() string    { return "TypeFilter" }

// Empty produces no rows with the columns of Child.
type Empty struct {
	Child Node
}

func (e *Empty) Columns() []Column { return e.Child.Columns() }
func (*Empty) nodeName() string    { return "Empty" }

// Singleton produces exactly one row of computed columns.
type Singleton struct {
	Cols []ProjectColumn
}

func (s *Singleton) Columns() []Column {
	out := make([]Column, len(s.Cols))
	for i, c := range s.Cols {
		out[i] = c.Column
	}
	return out
}

func (*Singleton) nodeName() string { return "Singleton" }

// Children returns the inputs of n.
func Children(n Node) []Node {
	switch n := n.(type) {
	case *Filter:
		return []Node{n.Child}
	case *Project:
		return []Node{n.Child}
	case *Join:
		return []Node{n.Left, n.Right}
	case *GroupBy:
		return []Node{n.Child}
	case *Aggregate:
		return []Node{n.Child}
	case *SetOp:
		return []Node{n.Left, n.Right}
	case *OrderBy:
		return []Node{n.Child}
	case *Page:
		return []Node{n.Child}
	case *Distinct:
		return []Node{n.Child}
	case *TypeFilter:
		return []Node{n.Child}
	case *Empty:
		return []Node{n.Child}
	}
	return nil
}

// ColumnByID finds an output column of n.
func ColumnByID(n Node, id ColumnID) (Column, bool) {
	for _, c := range n.Columns() {
		if c.ID == id {
			return c, true
		}
	}
	return Column{}, false
}
