// Package compiler compiles a translated query into a parameterized SQL
// command template and the plan materializing its rows.
package compiler

import (
	"fmt"
	"sort"

	"github.com/satishbabariya/queryable/query/builder"
	"github.com/satishbabariya/queryable/query/materialize"
	"github.com/satishbabariya/queryable/query/model"
	"github.com/satishbabariya/queryable/query/sqlgen"
)

// Command is a compiled query. It holds no values, so one command serves
// every execution of queries sharing a fingerprint.
type Command struct {
	Template *Template
	// Columns are the result columns in row order.
	Columns     []model.Column
	Plan        materialize.Plan
	Cardinality builder.Cardinality
	// Parameters are the binding indexes the command reads, ascending.
	Parameters []int
	// Nested are the per-row commands of sequence plans, addressed by
	// materialize.Sequence.Index. Nested commands have no Nested of their own.
	Nested []*Command
}

// Compile compiles q for dialect d.
func Compile(q *builder.Query, d sqlgen.Dialect) (*Command, error) {
	if q == nil || q.Root == nil {
		return nil, fmt.Errorf("%w: nil query", ErrInvalidQuery)
	}
	c := &compiler{d: d, features: d.Features(), next: maxColumn(q.Root, q.Shape)}
	cmd, err := c.command(q.Root, q.Shape, nil)
	if err != nil {
		return nil, err
	}
	cmd.Cardinality = q.Cardinality
	cmd.Nested = c.nested
	cmd.Parameters = c.parameters()
	return cmd, nil
}

type compiler struct {
	d        sqlgen.Dialect
	features sqlgen.Features

	aliases, hidden int
	next            model.ColumnID

	// tmpl receives the parameters and lists of the command being compiled.
	tmpl *Template
	// scopes are the environments of enclosing statements, visible to
	// correlated subqueries.
	scopes []map[model.ColumnID]string
	// free are the columns a per-row command reads from the enclosing row.
	free map[model.ColumnID]bool

	nested    []*Command
	templates []*Template
}

// command compiles one statement and the plan of its rows.
func (c *compiler) command(root model.Node, shape model.Shape, outer []model.OuterBinding) (*Command, error) {
	savedTmpl, savedFree, savedScopes := c.tmpl, c.free, c.scopes
	defer func() { c.tmpl, c.free, c.scopes = savedTmpl, savedFree, savedScopes }()
	c.tmpl, c.free, c.scopes = &Template{}, map[model.ColumnID]bool{}, nil
	c.templates = append(c.templates, c.tmpl)
	for _, o := range outer {
		c.free[o.Sub] = true
	}

	root, shape = c.expose(root, shape)
	s, err := c.node(root)
	if err != nil {
		return nil, err
	}
	text, err := c.render(s, renderOpts{keepOrder: true})
	if err != nil {
		return nil, err
	}
	c.tmpl.Segments = segments(text)

	cmd := &Command{Template: c.tmpl, Columns: root.Columns()}
	pos := map[model.ColumnID]int{}
	for i, col := range cmd.Columns {
		pos[col.ID] = i
	}
	if cmd.Plan, err = c.plan(shape, pos); err != nil {
		return nil, err
	}
	return cmd, nil
}

// expose makes every scalar the shape reads an output column of root.
func (c *compiler) expose(root model.Node, shape model.Shape) (model.Node, model.Shape) {
	out := map[model.ColumnID]bool{}
	for _, col := range root.Columns() {
		out[col.ID] = true
	}
	missing := false
	for _, x := range model.Flatten(shape) {
		if r, ok := x.(*model.ColumnRef); !ok || !out[r.ID] {
			missing = true
		}
	}
	if !missing {
		return root, shape
	}
	p := &model.Project{Child: root}
	for _, col := range root.Columns() {
		p.Cols = append(p.Cols, model.ProjectColumn{Column: col, Expr: model.Ref(col)})
	}
	shape = model.Rebind(shape, func(x model.Scalar) model.Scalar {
		if r, ok := x.(*model.ColumnRef); ok && out[r.ID] {
			return r
		}
		c.next++
		col := model.Column{ID: c.next, Name: "Expr", Type: x.Type(), Nullable: x.Null()}
		p.Cols = append(p.Cols, model.ProjectColumn{Column: col, Expr: x})
		return model.Ref(col)
	})
	return p, shape
}

// maxColumn is the largest column id used by n or the nested queries of s.
func maxColumn(n model.Node, s model.Shape) model.ColumnID {
	var top model.ColumnID
	for id := range model.Produced(n) {
		if id > top {
			top = id
		}
	}
	for _, seq := range model.Sequences(s) {
		if m := maxColumn(seq.Query, seq.Elem); m > top {
			top = m
		}
	}
	return top
}

// plan builds the materialization plan of shape over the row positions pos.
func (c *compiler) plan(shape model.Shape, pos map[model.ColumnID]int) (materialize.Plan, error) {
	at := func(x model.Scalar) (int, error) {
		r, ok := x.(*model.ColumnRef)
		if !ok {
			return 0, fmt.Errorf("%w: result value %T is not a column", ErrInvalidQuery, x)
		}
		p, ok := pos[r.ID]
		if !ok {
			return 0, fmt.Errorf("%w: column c%d is not in the result", ErrInvalidQuery, r.ID)
		}
		return p, nil
	}
	switch s := shape.(type) {
	case *model.ScalarShape:
		p, err := at(s.Expr)
		if err != nil {
			return nil, err
		}
		return &materialize.Scalar{Pos: p, Type: s.Expr.Type()}, nil
	case *model.EntityShape:
		tid, err := at(s.TypeID)
		if err != nil {
			return nil, err
		}
		e := &materialize.Entity{Type: s.Type, TypeID: tid}
		for _, f := range s.Fields {
			if _, ok := f.Shape.(*model.EntitySetShape); ok {
				continue
			}
			fp, err := c.plan(f.Shape, pos)
			if err != nil {
				return nil, err
			}
			e.Fields = append(e.Fields, materialize.EntityField{Field: f.Field, Plan: fp})
		}
		return e, nil
	case *model.StructureShape:
		st := &materialize.Structure{Type: s.Type, Names: s.Names}
		for _, f := range s.Fields {
			fp, err := c.plan(f, pos)
			if err != nil {
				return nil, err
			}
			st.Fields = append(st.Fields, fp)
		}
		return st, nil
	case *model.RecordShape:
		r := &materialize.Record{Names: s.Names}
		for _, m := range s.Members {
			mp, err := c.plan(m, pos)
			if err != nil {
				return nil, err
			}
			r.Members = append(r.Members, mp)
		}
		return r, nil
	case *model.RefShape:
		r := &materialize.Ref{Type: s.Type}
		for _, k := range s.Keys {
			p, err := at(k)
			if err != nil {
				return nil, err
			}
			r.Keys = append(r.Keys, p)
		}
		return r, nil
	case *model.SequenceShape:
		return c.sequence(s, pos)
	case *model.GroupingShape:
		key, err := c.plan(s.Key, pos)
		if err != nil {
			return nil, err
		}
		elems, err := c.sequence(s.Elements, pos)
		if err != nil {
			return nil, err
		}
		return &materialize.Grouping{Key: key, Elements: elems}, nil
	}
	return nil, fmt.Errorf("%w: result shape %T", ErrUnsupportedQuery, shape)
}

// sequence compiles the per-row command of s.
func (c *compiler) sequence(s *model.SequenceShape, pos map[model.ColumnID]int) (*materialize.Sequence, error) {
	seq := &materialize.Sequence{}
	for _, o := range s.Outer {
		p, ok := pos[o.Col]
		if !ok {
			return nil, fmt.Errorf("%w: outer column c%d of a nested query is not in the result", ErrInvalidQuery, o.Col)
		}
		seq.Outer = append(seq.Outer, materialize.OuterColumn{Sub: o.Sub, Pos: p})
	}
	cmd, err := c.command(s.Query, s.Elem, s.Outer)
	if err != nil {
		return nil, err
	}
	seq.Index = len(c.nested)
	c.nested = append(c.nested, cmd)
	return seq, nil
}

func (c *compiler) parameters() []int {
	seen := map[int]bool{}
	for _, t := range c.templates {
		for _, p := range t.Params {
			if p.Binding >= 0 {
				seen[p.Binding] = true
			}
		}
		for _, l := range t.Lists {
			if l.Binding >= 0 {
				seen[l.Binding] = true
			}
		}
	}
	out := make([]int, 0, len(seen))
	for i := range seen {
		out = append(out, i)
	}
	sort.Ints(out)
	return out
}
