package compiler

import (
	"fmt"
	"reflect"
	"strconv"
	"strings"

	"github.com/satishbabariya/queryable/query/expr"
	"github.com/satishbabariya/queryable/query/fulltext"
	"github.com/satishbabariya/queryable/query/model"
	"github.com/satishbabariya/queryable/query/sqlgen"
	"github.com/satishbabariya/queryable/schema"
)

// SegmentKind tells what a template segment renders.
type SegmentKind int

const (
	// SegText is literal SQL.
	SegText SegmentKind = iota
	// SegParam is a placeholder bound from the query bindings.
	SegParam
	// SegOuter is a placeholder bound from a column of the enclosing row.
	SegOuter
	// SegList expands a local collection at bind time: an IN list, a row
	// disjunction, a VALUES table or a temporary table reference.
	SegList
)

// Segment is one piece of a command template.
type Segment struct {
	Kind  SegmentKind
	Text  string
	Index int
	Outer model.ColumnID
}

// Param describes a value bound for a SegParam.
type Param struct {
	// Binding is the index of the query binding, or -1 for Const.
	Binding int
	Const   any
	Path    []string
	Type    schema.ValueType
	Like    model.LikeMode
	Search  bool
}

// List describes a local collection expanded at bind time.
type List struct {
	Binding int
	Const   any
	Paths   [][]string
	Types   []schema.ValueType
	// Algorithm picks inline expansion or a temporary table.
	Algorithm expr.Algorithm
	// Tested holds the templates of the tested values of a membership test;
	// it is empty for a table of values.
	Tested [][]Segment
	// Aliases are the quoted column names of a table of values.
	Aliases []string
}

// Template is a parameterized command. It is immutable and shared by every
// execution of a cached query.
type Template struct {
	Segments []Segment
	Params   []Param
	Lists    []List
}

// Rendered is a template bound to concrete values.
type Rendered struct {
	SQL  string
	Args []any
	// Setup creates and fills temporary tables before SQL runs; Teardown
	// drops them afterwards.
	Setup    []sqlgen.Query
	Teardown []string
}

const mark = '\x00'

func paramMarker(i int) string             { return fmt.Sprintf("\x00p%d\x00", i) }
func outerMarker(id model.ColumnID) string { return fmt.Sprintf("\x00o%d\x00", id) }
func listMarker(i int) string              { return fmt.Sprintf("\x00l%d\x00", i) }

// segments splits marked SQL text into template segments.
func segments(s string) []Segment {
	var out []Segment
	parts := strings.Split(s, string(mark))
	for i, p := range parts {
		if i%2 == 0 {
			if p != "" {
				out = append(out, Segment{Kind: SegText, Text: p})
			}
			continue
		}
		n, _ := strconv.Atoi(p[1:])
		switch p[0] {
		case 'p':
			out = append(out, Segment{Kind: SegParam, Index: n})
		case 'o':
			out = append(out, Segment{Kind: SegOuter, Outer: model.ColumnID(n)})
		case 'l':
			out = append(out, Segment{Kind: SegList, Index: n})
		}
	}
	return out
}

// Render binds values, the evaluated query bindings, and outer, the values
// of the enclosing row for a nested command.
func (t *Template) Render(d sqlgen.Dialect, values []any, outer map[model.ColumnID]any) (*Rendered, error) {
	r := &renderer{t: t, d: d, values: values, outer: outer, out: &Rendered{}}
	var b strings.Builder
	if err := r.segments(&b, t.Segments); err != nil {
		return nil, err
	}
	r.out.SQL = b.String()
	return r.out, nil
}

// Text renders the template with numbered placeholders and list markers
// left in place, for explain output.
func (t *Template) Text(d sqlgen.Dialect) string {
	var b strings.Builder
	n := 0
	for _, s := range t.Segments {
		switch s.Kind {
		case SegText:
			b.WriteString(s.Text)
		case SegParam, SegOuter:
			n++
			b.WriteString(d.Placeholder(n))
		case SegList:
			fmt.Fprintf(&b, "<list %d>", s.Index)
		}
	}
	return b.String()
}

type renderer struct {
	t      *Template
	d      sqlgen.Dialect
	values []any
	outer  map[model.ColumnID]any
	out    *Rendered
	temps  int
}

func (r *renderer) bind(b *strings.Builder, v any) error {
	arg, err := r.d.BindValue(v)
	if err != nil {
		return err
	}
	r.out.Args = append(r.out.Args, arg)
	b.WriteString(r.d.Placeholder(len(r.out.Args)))
	return nil
}

// item writes one list value. Lists beyond the inline limit render their
// values as literals so the statement stays under the driver's parameter
// ceiling.
func (r *renderer) item(b *strings.Builder, v any, literal bool) error {
	if literal {
		if s, ok := inlineLiteral(r.d, v); ok {
			b.WriteString(s)
			return nil
		}
	}
	return r.bind(b, v)
}

func (r *renderer) literalRows(rows [][]any) bool {
	n := 0
	for _, row := range rows {
		n += len(row)
	}
	return n > r.d.InlineListLimit()
}

func (r *renderer) segments(b *strings.Builder, segs []Segment) error {
	for _, s := range segs {
		switch s.Kind {
		case SegText:
			b.WriteString(s.Text)
		case SegParam:
			v, err := r.param(r.t.Params[s.Index])
			if err != nil {
				return err
			}
			if err := r.bind(b, v); err != nil {
				return err
			}
		case SegOuter:
			v, ok := r.outer[s.Outer]
			if !ok {
				return fmt.Errorf("compiler: no value for outer column c%d", s.Outer)
			}
			if err := r.bind(b, v); err != nil {
				return err
			}
		case SegList:
			if err := r.list(b, &r.t.Lists[s.Index]); err != nil {
				return err
			}
		}
	}
	return nil
}

func (r *renderer) binding(index int, c any) (any, error) {
	if index < 0 {
		return c, nil
	}
	if index >= len(r.values) {
		return nil, fmt.Errorf("compiler: binding %d is missing (%d values)", index, len(r.values))
	}
	return r.values[index], nil
}

func (r *renderer) param(p Param) (any, error) {
	v, err := r.binding(p.Binding, p.Const)
	if err != nil {
		return nil, err
	}
	if v, err = follow(v, p.Path); err != nil || v == nil {
		return v, err
	}
	switch {
	case p.Search:
		return searchText(v, r.d.Features().Has(sqlgen.FeatureCustomProximity))
	case p.Like != model.LikeNone:
		s, ok := v.(string)
		if !ok {
			return nil, fmt.Errorf("compiler: LIKE pattern is %T, not a string", v)
		}
		return sqlgen.LikePattern(s, likeModes[p.Like]), nil
	}
	return v, nil
}

var likeModes = map[model.LikeMode]string{
	model.LikeContains: "contains",
	model.LikePrefix:   "prefix",
	model.LikeSuffix:   "suffix",
}

// searchText compiles a bound search condition. Strings are parsed as
// search condition text.
func searchText(v any, customProximity bool) (string, error) {
	var c fulltext.Condition
	switch x := v.(type) {
	case fulltext.Condition:
		c = x
	case string:
		parsed, err := fulltext.Parse(x)
		if err != nil {
			return "", err
		}
		c = parsed
	default:
		return "", fmt.Errorf("compiler: search condition is %T", v)
	}
	return fulltext.Compile(c, fulltext.Options{CustomProximity: customProximity})
}

// follow reads the struct member path of v. A nil pointer along the way
// yields nil.
func follow(v any, path []string) (any, error) {
	rv := reflect.ValueOf(v)
	for _, name := range path {
		for rv.Kind() == reflect.Pointer || rv.Kind() == reflect.Interface {
			if rv.IsNil() {
				return nil, nil
			}
			rv = rv.Elem()
		}
		if rv.Kind() != reflect.Struct {
			return nil, fmt.Errorf("compiler: cannot read member %s of %s", name, rv.Type())
		}
		f := rv.FieldByName(name)
		if !f.IsValid() {
			return nil, fmt.Errorf("compiler: %s has no member %s", rv.Type(), name)
		}
		rv = f
	}
	if !rv.IsValid() {
		return nil, nil
	}
	if (rv.Kind() == reflect.Pointer || rv.Kind() == reflect.Interface) && rv.IsNil() {
		return nil, nil
	}
	return rv.Interface(), nil
}

// rows evaluates a list into one row of column values per element.
func (r *renderer) rows(l *List) ([][]any, error) {
	v, err := r.binding(l.Binding, l.Const)
	if err != nil {
		return nil, err
	}
	rv := reflect.ValueOf(v)
	for rv.IsValid() && rv.Kind() == reflect.Pointer {
		rv = rv.Elem()
	}
	if !rv.IsValid() {
		return nil, nil
	}
	if rv.Kind() != reflect.Slice && rv.Kind() != reflect.Array {
		return nil, fmt.Errorf("compiler: local collection is %s, not a slice", rv.Type())
	}
	out := make([][]any, rv.Len())
	for i := range out {
		e := rv.Index(i).Interface()
		row := make([]any, len(l.Paths))
		for j, path := range l.Paths {
			if row[j], err = follow(e, path); err != nil {
				return nil, err
			}
		}
		out[i] = row
	}
	return out, nil
}

func (r *renderer) useTemp(l *List, n int) bool {
	hasTemp := r.d.Features().Has(sqlgen.FeatureTemporaryTables)
	switch l.Algorithm {
	case expr.IncludeTemporaryTable:
		return hasTemp
	case expr.IncludeAuto:
		return hasTemp && n > r.d.InlineListLimit()
	}
	return false
}

func (r *renderer) list(b *strings.Builder, l *List) error {
	rows, err := r.rows(l)
	if err != nil {
		return err
	}
	if r.useTemp(l, len(rows)) {
		name, err := r.tempTable(l, rows)
		if err != nil {
			return err
		}
		return r.fromTemp(b, l, name)
	}
	if l.Tested == nil {
		return r.inlineValues(b, l, rows)
	}
	if len(rows) == 0 {
		b.WriteString("1 = 0")
		return nil
	}
	literal := r.literalRows(rows)
	if len(l.Tested) == 1 {
		if err := r.segments(b, l.Tested[0]); err != nil {
			return err
		}
		b.WriteString(" IN (")
		for i, row := range rows {
			if i > 0 {
				b.WriteString(", ")
			}
			if err := r.item(b, row[0], literal); err != nil {
				return err
			}
		}
		b.WriteString(")")
		return nil
	}
	b.WriteString("(")
	for i, row := range rows {
		if i > 0 {
			b.WriteString(" OR ")
		}
		b.WriteString("(")
		for j, v := range row {
			if j > 0 {
				b.WriteString(" AND ")
			}
			if err := r.segments(b, l.Tested[j]); err != nil {
				return err
			}
			b.WriteString(" = ")
			if err := r.item(b, v, literal); err != nil {
				return err
			}
		}
		b.WriteString(")")
	}
	b.WriteString(")")
	return nil
}

func (r *renderer) inlineValues(b *strings.Builder, l *List, rows [][]any) error {
	if len(rows) == 0 {
		b.WriteString("SELECT ")
		for j, t := range l.Types {
			if j > 0 {
				b.WriteString(", ")
			}
			b.WriteString(r.d.Cast("NULL", t) + " AS " + l.Aliases[j])
		}
		b.WriteString(r.d.FromDual() + " WHERE 1 = 0")
		return nil
	}
	literal := r.literalRows(rows)
	for i, row := range rows {
		if i > 0 {
			b.WriteString(" UNION ALL ")
		}
		b.WriteString("SELECT ")
		for j, v := range row {
			if j > 0 {
				b.WriteString(", ")
			}
			var p strings.Builder
			if err := r.item(&p, v, literal); err != nil {
				return err
			}
			b.WriteString(r.d.Cast(p.String(), l.Types[j]))
			if i == 0 {
				b.WriteString(" AS " + l.Aliases[j])
			}
		}
	}
	return nil
}

func tempColumn(j int) string { return "c" + strconv.Itoa(j) }

func (r *renderer) tempTable(l *List, rows [][]any) (string, error) {
	r.temps++
	name := r.d.TempTableName(r.temps)
	cols := make([]sqlgen.TempColumn, len(l.Types))
	names := make([]string, len(l.Types))
	for j, t := range l.Types {
		names[j] = tempColumn(j)
		cols[j] = sqlgen.TempColumn{Name: names[j], Type: t}
	}
	r.out.Setup = append(r.out.Setup, sqlgen.Query{SQL: r.d.CreateTempTable(name, cols)})
	insert := r.d.Insert(name, names)
	for _, row := range rows {
		args := make([]any, len(row))
		for j, v := range row {
			a, err := r.d.BindValue(v)
			if err != nil {
				return "", err
			}
			args[j] = a
		}
		r.out.Setup = append(r.out.Setup, sqlgen.Query{SQL: insert, Args: args})
	}
	r.out.Teardown = append(r.out.Teardown, r.d.DropTempTable(name))
	return name, nil
}

func (r *renderer) fromTemp(b *strings.Builder, l *List, name string) error {
	if l.Tested == nil {
		b.WriteString("SELECT ")
		for j := range l.Types {
			if j > 0 {
				b.WriteString(", ")
			}
			b.WriteString(r.d.Quote(tempColumn(j)) + " AS " + l.Aliases[j])
		}
		b.WriteString(" FROM " + name)
		return nil
	}
	if len(l.Tested) == 1 {
		if err := r.segments(b, l.Tested[0]); err != nil {
			return err
		}
		b.WriteString(" IN (SELECT " + r.d.Quote(tempColumn(0)) + " FROM " + name + ")")
		return nil
	}
	b.WriteString("EXISTS (SELECT 1 FROM " + name + " WHERE ")
	for j, seg := range l.Tested {
		if j > 0 {
			b.WriteString(" AND ")
		}
		b.WriteString(name + "." + r.d.Quote(tempColumn(j)) + " = ")
		if err := r.segments(b, seg); err != nil {
			return err
		}
	}
	b.WriteString(")")
	return nil
}
