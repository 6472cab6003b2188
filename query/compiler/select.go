package compiler

import (
	"fmt"
	"strings"

	"github.com/satishbabariya/queryable/query"
	"github.com/satishbabariya/queryable/query/model"
	"github.com/satishbabariya/queryable/query/sqlgen"
)

// sel is a SELECT statement under construction. env maps every column
// visible to the clauses of the statement to its SQL expression.
type sel struct {
	cols []model.ColumnID
	env  map[model.ColumnID]string

	from string
	// joined marks a FROM clause made of joins, which needs parentheses
	// when nested in another join.
	joined bool

	where, groupBy, having []string
	order                  []sortKey
	take, skip             string
	distinct, grouped      bool
}

type sortKey struct {
	expr string
	desc bool
}

func (s *sel) paged() bool { return s.take != "" || s.skip != "" }

// plain reports whether s only selects, filters and joins.
func (s *sel) plain() bool { return !s.distinct && !s.grouped && !s.paged() }

func newEnv() map[model.ColumnID]string { return map[model.ColumnID]string{} }

func (c *compiler) alias() string {
	c.aliases++
	return fmt.Sprintf("t%d", c.aliases)
}

func (c *compiler) colAlias(id model.ColumnID) string {
	return c.d.Quote(model.Column{ID: id}.Alias())
}

// derived turns statement text into a derived table exposing cols. It
// returns the table alias too.
func (c *compiler) derived(text string, cols []model.ColumnID) (*sel, string) {
	t := c.alias()
	out := &sel{cols: cols, env: newEnv(), from: "(" + text + ") AS " + t}
	for _, id := range cols {
		out.env[id] = t + "." + c.colAlias(id)
	}
	return out, t
}

// wrap closes s into a derived table. With keepOrder the ordering of s is
// carried to the new statement through hidden columns.
func (c *compiler) wrap(s *sel, keepOrder bool) (*sel, error) {
	var hidden, names []string
	if keepOrder {
		for _, k := range s.order {
			c.hidden++
			name := c.d.Quote(fmt.Sprintf("o%d", c.hidden))
			hidden = append(hidden, k.expr+" AS "+name)
			names = append(names, name)
		}
	}
	text, err := c.render(s, renderOpts{extra: hidden})
	if err != nil {
		return nil, err
	}
	out, t := c.derived(text, s.cols)
	for i, name := range names {
		out.order = append(out.order, sortKey{expr: t + "." + name, desc: s.order[i].desc})
	}
	return out, nil
}

type renderOpts struct {
	// aliases override the output column names.
	aliases []string
	// extra are additional select items.
	extra []string
	// exists selects a constant.
	exists bool
	// keepOrder keeps ORDER BY; otherwise it is kept only for paging.
	keepOrder bool
}

// render produces the SELECT text of s.
func (c *compiler) render(s *sel, o renderOpts) (string, error) {
	if s.skip != "" && !c.features.Has(sqlgen.FeatureNativeSkip) {
		return c.renderRowNumber(s, o)
	}
	var b strings.Builder
	b.WriteString("SELECT ")
	if s.distinct {
		b.WriteString("DISTINCT ")
	}
	ordered := len(s.order) > 0 && (o.keepOrder || s.paged())
	top, tail := "", ""
	if s.paged() {
		top, tail = c.d.Paging(s.take, s.skip, ordered)
	}
	b.WriteString(top)
	b.WriteString(c.selectList(s, o))
	c.clauses(&b, s)
	if ordered {
		b.WriteString(" ORDER BY ")
		b.WriteString(c.orderList(s.order))
	}
	if tail != "" {
		b.WriteString(" " + strings.TrimSpace(tail))
	}
	return b.String(), nil
}

func (c *compiler) selectList(s *sel, o renderOpts) string {
	if o.exists {
		return "1"
	}
	var items []string
	for i, id := range s.cols {
		a := c.colAlias(id)
		if o.aliases != nil {
			a = o.aliases[i]
		}
		items = append(items, s.env[id]+" AS "+a)
	}
	items = append(items, o.extra...)
	if len(items) == 0 {
		return "1"
	}
	return strings.Join(items, ", ")
}

func (c *compiler) clauses(b *strings.Builder, s *sel) {
	switch {
	case s.from != "":
		b.WriteString(" FROM " + s.from)
	case len(s.where) > 0:
		b.WriteString(c.d.FromDual())
	}
	if len(s.where) > 0 {
		b.WriteString(" WHERE " + strings.Join(s.where, " AND "))
	}
	if len(s.groupBy) > 0 {
		b.WriteString(" GROUP BY " + strings.Join(s.groupBy, ", "))
	}
	if len(s.having) > 0 {
		b.WriteString(" HAVING " + strings.Join(s.having, " AND "))
	}
}

func (c *compiler) orderList(keys []sortKey) string {
	parts := make([]string, len(keys))
	for i, k := range keys {
		parts[i] = k.expr
		if k.desc {
			parts[i] += " DESC"
		}
	}
	return strings.Join(parts, ", ")
}

// renderRowNumber pages s with ROW_NUMBER for servers without OFFSET.
func (c *compiler) renderRowNumber(s *sel, o renderOpts) (string, error) {
	if !c.features.Has(sqlgen.FeatureRowNumber) {
		return "", query.Errorf("compile", query.ErrFeatureNotSupported, "Skip requires %s or %s", sqlgen.FeatureNativeSkip, sqlgen.FeatureRowNumber)
	}
	over := "(SELECT NULL)"
	if len(s.order) > 0 {
		over = c.orderList(s.order)
	}
	inner := *s
	inner.take, inner.skip, inner.order = "", "", nil
	c.hidden++
	rn := c.d.Quote(fmt.Sprintf("rn%d", c.hidden))
	extra := append(append([]string(nil), o.extra...), "ROW_NUMBER() OVER (ORDER BY "+over+") AS "+rn)
	text, err := c.render(&inner, renderOpts{extra: extra})
	if err != nil {
		return "", err
	}
	outer, t := c.derived(text, s.cols)
	outer.where = append(outer.where, t+"."+rn+" > "+s.skip)
	if s.take != "" {
		outer.where = append(outer.where, t+"."+rn+" <= "+s.skip+" + "+s.take)
	}
	var b strings.Builder
	b.WriteString("SELECT ")
	var items []string
	for i, id := range s.cols {
		a := c.colAlias(id)
		if o.aliases != nil {
			a = o.aliases[i]
		}
		items = append(items, outer.env[id]+" AS "+a)
	}
	for _, e := range o.extra {
		name := e[strings.LastIndex(e, " AS ")+4:]
		items = append(items, t+"."+name+" AS "+name)
	}
	if o.exists {
		items = []string{"1"}
	}
	b.WriteString(strings.Join(items, ", "))
	c.clauses(&b, outer)
	if o.keepOrder && !o.exists {
		b.WriteString(" ORDER BY " + t + "." + rn)
	}
	return b.String(), nil
}

// subquery renders s for use inside an expression.
func (c *compiler) subquery(s *sel, exists bool) (string, error) {
	return c.render(s, renderOpts{exists: exists})
}
