package compiler

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/satishbabariya/queryable/query/expr"
	"github.com/satishbabariya/queryable/query/model"
	"github.com/satishbabariya/queryable/schema"
)

func ids(cols []model.Column) []model.ColumnID {
	out := make([]model.ColumnID, len(cols))
	for i, c := range cols {
		out[i] = c.ID
	}
	return out
}

// node compiles n into a statement whose output columns are n's columns.
func (c *compiler) node(n model.Node) (*sel, error) {
	s, err := c.compileNode(n)
	if err != nil {
		return nil, err
	}
	s.cols = ids(n.Columns())
	return s, nil
}

func (c *compiler) compileNode(n model.Node) (*sel, error) {
	switch n := n.(type) {
	case *model.Scan:
		return c.scan(n)
	case *model.Values:
		return c.values(n), nil
	case *model.Filter:
		return c.filter(n.Child, func(env map[model.ColumnID]string) (string, error) { return c.pred(env, n.Pred) })
	case *model.TypeFilter:
		return c.filter(n.Child, func(env map[model.ColumnID]string) (string, error) {
			id, err := c.ref(env, n.TypeID)
			if err != nil {
				return "", err
			}
			return typeIn(id, n.IDs), nil
		})
	case *model.Empty:
		return c.filter(n.Child, func(map[model.ColumnID]string) (string, error) { return "1 = 0", nil })
	case *model.Project:
		return c.project(n)
	case *model.Join:
		return c.join(n)
	case *model.GroupBy:
		return c.group(n.Child, n.Keys, n.Aggs)
	case *model.Aggregate:
		return c.group(n.Child, nil, n.Aggs)
	case *model.OrderBy:
		return c.orderBy(n)
	case *model.Page:
		return c.page(n)
	case *model.Distinct:
		return c.distinct(n)
	case *model.SetOp:
		return c.setOp(n)
	case *model.Singleton:
		s := &sel{env: newEnv()}
		for _, col := range n.Cols {
			v, err := c.value(s.env, col.Expr)
			if err != nil {
				return nil, err
			}
			s.env[col.ID] = v
		}
		return s, nil
	}
	return nil, fmt.Errorf("%w: %T", ErrUnsupportedQuery, n)
}

func typeIn(col string, typeIDs []int) string {
	switch len(typeIDs) {
	case 0:
		return "1 = 0"
	case 1:
		return col + " = " + strconv.Itoa(typeIDs[0])
	}
	parts := make([]string, len(typeIDs))
	for i, id := range typeIDs {
		parts[i] = strconv.Itoa(id)
	}
	return col + " IN (" + strings.Join(parts, ", ") + ")"
}

func (c *compiler) table(name string) string { return c.d.Quote(name) }

// scan reads a hierarchy according to its inheritance scheme.
func (c *compiler) scan(n *model.Scan) (*sel, error) {
	root := n.Type.Root()
	switch n.Type.Scheme() {
	case schema.SingleTable:
		t := c.alias()
		s := &sel{env: newEnv(), from: c.table(root.Table) + " AS " + t}
		s.env[n.TypeID.ID] = t + "." + c.d.Quote(schema.TypeIDColumn)
		for _, col := range n.Cols {
			s.env[col.ID] = t + "." + c.d.Quote(col.Stored)
		}
		if n.Type != root {
			s.where = append(s.where, typeIn(s.env[n.TypeID.ID], n.Type.TypeIDs()))
		}
		return s, nil
	case schema.ConcreteTable:
		return c.concreteScan(n), nil
	}
	return c.classScan(n), nil
}

// classScan joins the table of every ancestor of the scanned type and
// outer joins the tables of its descendants.
func (c *compiler) classScan(n *model.Scan) *sel {
	chain := n.Type.Ancestors()
	root := chain[0]
	aliases := map[*schema.TypeInfo]string{}
	t0 := c.alias()
	aliases[root] = t0
	var b strings.Builder
	b.WriteString(c.table(root.Table) + " AS " + t0)
	join := func(kind string, t *schema.TypeInfo) {
		a := c.alias()
		aliases[t] = a
		var on []string
		for _, k := range root.Keys() {
			on = append(on, a+"."+c.d.Quote(k.ColumnName())+" = "+t0+"."+c.d.Quote(k.ColumnName()))
		}
		fmt.Fprintf(&b, " %s %s AS %s ON %s", kind, c.table(t.Table), a, strings.Join(on, " AND "))
	}
	for _, t := range chain[1:] {
		join("INNER JOIN", t)
	}
	for _, t := range n.Type.Descendants()[1:] {
		join("LEFT JOIN", t)
	}
	s := &sel{env: newEnv(), from: b.String(), joined: len(aliases) > 1}
	s.env[n.TypeID.ID] = t0 + "." + c.d.Quote(schema.TypeIDColumn)
	for _, col := range n.Cols {
		a, ok := aliases[col.Owner]
		if !ok {
			a = t0
		}
		s.env[col.ID] = a + "." + c.d.Quote(col.Stored)
	}
	return s
}

// concreteScan unions the tables of every concrete type of the hierarchy
// below the scanned type, padding the columns a table lacks with NULL.
func (c *compiler) concreteScan(n *model.Scan) *sel {
	cols := ids(n.Columns())
	var parts []string
	for _, t := range n.Type.Descendants() {
		if t.Abstract {
			continue
		}
		items := []string{c.d.Quote(schema.TypeIDColumn) + " AS " + c.colAlias(n.TypeID.ID)}
		for _, col := range n.Cols {
			v := c.d.Cast("NULL", col.Type)
			if col.Owner == nil || col.Owner.IsAncestorOf(t) {
				v = c.d.Quote(col.Stored)
			}
			items = append(items, v+" AS "+c.colAlias(col.ID))
		}
		parts = append(parts, "SELECT "+strings.Join(items, ", ")+" FROM "+c.table(t.Table))
	}
	if len(parts) == 0 {
		items := []string{c.d.Cast("NULL", schema.TypeInt32) + " AS " + c.colAlias(n.TypeID.ID)}
		for _, col := range n.Cols {
			items = append(items, c.d.Cast("NULL", col.Type)+" AS "+c.colAlias(col.ID))
		}
		parts = append(parts, "SELECT "+strings.Join(items, ", ")+c.d.FromDual()+" WHERE 1 = 0")
	}
	s, _ := c.derived(strings.Join(parts, " UNION ALL "), cols)
	return s
}

func (c *compiler) values(n *model.Values) *sel {
	l := List{Binding: n.Binding, Const: n.Const, Paths: n.Paths, Algorithm: expr.IncludeAuto}
	for _, col := range n.Cols {
		l.Types = append(l.Types, col.Type)
		l.Aliases = append(l.Aliases, c.colAlias(col.ID))
	}
	c.tmpl.Lists = append(c.tmpl.Lists, l)
	s, _ := c.derived(listMarker(len(c.tmpl.Lists)-1), ids(n.Cols))
	return s
}

// filter adds a condition to child, moving to HAVING over groups.
func (c *compiler) filter(child model.Node, cond func(map[model.ColumnID]string) (string, error)) (*sel, error) {
	s, err := c.node(child)
	if err != nil {
		return nil, err
	}
	if s.distinct || s.paged() || (s.grouped && len(s.groupBy) == 0) {
		if s, err = c.wrap(s, true); err != nil {
			return nil, err
		}
	}
	p, err := cond(s.env)
	if err != nil {
		return nil, err
	}
	if s.grouped {
		s.having = append(s.having, p)
	} else {
		s.where = append(s.where, p)
	}
	return s, nil
}

func (c *compiler) project(n *model.Project) (*sel, error) {
	s, err := c.node(n.Child)
	if err != nil {
		return nil, err
	}
	if s.distinct {
		if s, err = c.wrap(s, true); err != nil {
			return nil, err
		}
	}
	vals := make([]string, len(n.Cols))
	for i, col := range n.Cols {
		if vals[i], err = c.value(s.env, col.Expr); err != nil {
			return nil, err
		}
	}
	for i, col := range n.Cols {
		s.env[col.ID] = vals[i]
	}
	return s, nil
}

func (c *compiler) join(n *model.Join) (*sel, error) {
	l, err := c.node(n.Left)
	if err != nil {
		return nil, err
	}
	r, err := c.node(n.Right)
	if err != nil {
		return nil, err
	}
	if !l.plain() || l.from == "" {
		if l, err = c.wrap(l, true); err != nil {
			return nil, err
		}
	}
	if !r.plain() || r.from == "" {
		if r, err = c.wrap(r, false); err != nil {
			return nil, err
		}
	}
	env := newEnv()
	for id, v := range l.env {
		env[id] = v
	}
	for id, v := range r.env {
		env[id] = v
	}
	on := "1 = 1"
	if n.On != nil {
		if on, err = c.pred(env, n.On); err != nil {
			return nil, err
		}
	}
	conds := append([]string{on}, r.where...)
	right := r.from
	if r.joined {
		right = "(" + right + ")"
	}
	kind := "INNER JOIN"
	if n.Kind == model.LeftJoin {
		kind = "LEFT JOIN"
	}
	return &sel{
		env:    env,
		from:   l.from + " " + kind + " " + right + " ON " + strings.Join(conds, " AND "),
		joined: true,
		where:  l.where,
		order:  l.order,
	}, nil
}

// group groups child by keys; no keys folds every row into one.
func (c *compiler) group(child model.Node, keys []model.ProjectColumn, aggs []*model.AggColumn) (*sel, error) {
	s, err := c.node(child)
	if err != nil {
		return nil, err
	}
	if !s.plain() {
		if s, err = c.wrap(s, false); err != nil {
			return nil, err
		}
	}
	s.order = nil
	in := s.env
	out := newEnv()
	for id, v := range in {
		out[id] = v
	}
	for _, k := range keys {
		v, err := c.value(in, k.Expr)
		if err != nil {
			return nil, err
		}
		out[k.ID] = v
		switch k.Expr.(type) {
		case *model.Literal, *model.Param:
		default:
			s.groupBy = append(s.groupBy, v)
		}
	}
	for _, a := range aggs {
		v, err := c.aggregate(in, a)
		if err != nil {
			return nil, err
		}
		out[a.ID] = v
	}
	s.env = out
	s.grouped = true
	return s, nil
}

func (c *compiler) aggregate(env map[model.ColumnID]string, a *model.AggColumn) (string, error) {
	arg := ""
	if a.Arg != nil {
		v, err := c.value(env, a.Arg)
		if err != nil {
			return "", err
		}
		arg = v
	}
	if a.Where != nil {
		w, err := c.pred(env, a.Where)
		if err != nil {
			return "", err
		}
		if arg == "" {
			arg = "1"
		}
		arg = "CASE WHEN " + w + " THEN " + arg + " END"
	}
	if arg == "" {
		arg = "*"
	}
	return a.Func.String() + "(" + arg + ")", nil
}

func (c *compiler) orderBy(n *model.OrderBy) (*sel, error) {
	s, err := c.node(n.Child)
	if err != nil {
		return nil, err
	}
	if s.paged() || s.distinct {
		if s, err = c.wrap(s, false); err != nil {
			return nil, err
		}
	}
	keys := make([]sortKey, len(n.Keys))
	for i, k := range n.Keys {
		v, err := c.value(s.env, k.Expr)
		if err != nil {
			return nil, err
		}
		keys[i] = sortKey{expr: v, desc: k.Desc}
	}
	s.order = keys
	return s, nil
}

func (c *compiler) page(n *model.Page) (*sel, error) {
	s, err := c.node(n.Child)
	if err != nil {
		return nil, err
	}
	if s.paged() {
		if s, err = c.wrap(s, true); err != nil {
			return nil, err
		}
	}
	if n.Skip != nil {
		if s.skip, err = c.value(s.env, n.Skip); err != nil {
			return nil, err
		}
	}
	if n.Take != nil {
		if s.take, err = c.value(s.env, n.Take); err != nil {
			return nil, err
		}
	}
	return s, nil
}

func (c *compiler) distinct(n *model.Distinct) (*sel, error) {
	s, err := c.node(n.Child)
	if err != nil {
		return nil, err
	}
	if s.paged() {
		if s, err = c.wrap(s, false); err != nil {
			return nil, err
		}
	}
	selected := map[string]bool{}
	for _, col := range n.Columns() {
		selected[s.env[col.ID]] = true
	}
	for _, k := range s.order {
		if !selected[k.expr] {
			s.order = nil
			break
		}
	}
	s.distinct = true
	return s, nil
}

func (c *compiler) setOp(n *model.SetOp) (*sel, error) {
	aliases := make([]string, len(n.Cols))
	for i, col := range n.Cols {
		aliases[i] = c.colAlias(col.ID)
	}
	operand := func(child model.Node) (string, error) {
		s, err := c.node(child)
		if err != nil {
			return "", err
		}
		if s.paged() {
			if s, err = c.wrap(s, false); err != nil {
				return "", err
			}
		}
		s.order = nil
		return c.render(s, renderOpts{aliases: aliases})
	}
	l, err := operand(n.Left)
	if err != nil {
		return nil, err
	}
	r, err := operand(n.Right)
	if err != nil {
		return nil, err
	}
	s, _ := c.derived(l+" "+n.Kind.String()+" "+r, ids(n.Cols))
	return s, nil
}
