package compiler

import (
	"fmt"
	"math"
	"reflect"
	"strconv"
	"strings"

	"github.com/satishbabariya/queryable/query/model"
	"github.com/satishbabariya/queryable/query/sqlgen"
)

var funcNames = map[model.FuncName]string{
	model.FnUpper:    "UPPER",
	model.FnLower:    "LOWER",
	model.FnTrim:     "TRIM",
	model.FnLength:   "LENGTH",
	model.FnCoalesce: "COALESCE",
}

// value renders x where a value is expected.
func (c *compiler) value(env map[model.ColumnID]string, x model.Scalar) (string, error) {
	if model.IsPredicate(x) {
		p, err := c.pred(env, x)
		if err != nil {
			return "", err
		}
		return "CASE WHEN " + p + " THEN " + c.d.BoolLiteral(true) + " ELSE " + c.d.BoolLiteral(false) + " END", nil
	}
	return c.scalar(env, x)
}

// pred renders x where a condition is expected.
func (c *compiler) pred(env map[model.ColumnID]string, x model.Scalar) (string, error) {
	if !model.IsPredicate(x) {
		if l, ok := x.(*model.Literal); ok {
			if b, ok := l.Value.(bool); ok {
				if b {
					return "1 = 1", nil
				}
				return "1 = 0", nil
			}
		}
		v, err := c.scalar(env, x)
		if err != nil {
			return "", err
		}
		return v + " = " + c.d.BoolLiteral(true), nil
	}
	return c.scalar(env, x)
}

// ref resolves a column visible to the current statement, to an enclosing
// statement or to the enclosing row of a nested command.
func (c *compiler) ref(env map[model.ColumnID]string, id model.ColumnID) (string, error) {
	if v, ok := env[id]; ok {
		return v, nil
	}
	for i := len(c.scopes) - 1; i >= 0; i-- {
		if v, ok := c.scopes[i][id]; ok {
			return v, nil
		}
	}
	if c.free[id] {
		return outerMarker(id), nil
	}
	return "", fmt.Errorf("%w: column c%d is not in scope", ErrInvalidQuery, id)
}

func (c *compiler) param(p Param) string {
	c.tmpl.Params = append(c.tmpl.Params, p)
	return paramMarker(len(c.tmpl.Params) - 1)
}

func (c *compiler) scalar(env map[model.ColumnID]string, x model.Scalar) (string, error) {
	switch x := x.(type) {
	case *model.ColumnRef:
		return c.ref(env, x.ID)
	case *model.Literal:
		return c.literal(x), nil
	case *model.Param:
		return c.param(Param{Binding: x.Index, Path: x.Path, Type: x.T, Like: x.Like, Search: x.Search}), nil
	case *model.Binary:
		return c.binary(env, x)
	case *model.Not:
		p, err := c.pred(env, x.X)
		if err != nil {
			return "", err
		}
		return "NOT (" + p + ")", nil
	case *model.Negate:
		v, err := c.value(env, x.X)
		if err != nil {
			return "", err
		}
		return "-(" + v + ")", nil
	case *model.Cast:
		v, err := c.value(env, x.X)
		if err != nil {
			return "", err
		}
		switch x.X.(type) {
		case *model.Param, *model.Literal:
			return v, nil
		}
		if x.Implicit {
			return v, nil
		}
		return c.d.Cast(v, x.To), nil
	case *model.Case:
		return c.caseWhen(env, x)
	case *model.Func:
		args := make([]string, len(x.Args))
		for i, a := range x.Args {
			v, err := c.value(env, a)
			if err != nil {
				return "", err
			}
			args[i] = v
		}
		return c.d.Function(funcNames[x.Name], args...), nil
	case *model.Like:
		v, err := c.value(env, x.X)
		if err != nil {
			return "", err
		}
		p, err := c.value(env, x.Pattern)
		if err != nil {
			return "", err
		}
		return v + " LIKE " + p + c.d.LikeEscape(), nil
	case *model.IsNull:
		v, err := c.value(env, x.X)
		if err != nil {
			return "", err
		}
		if x.Negate {
			return v + " IS NOT NULL", nil
		}
		return v + " IS NULL", nil
	case *model.InList:
		return c.inList(env, x)
	case *model.Exists:
		sub, err := c.sub(env, x.Query, true)
		if err != nil {
			return "", err
		}
		if x.Negate {
			return "NOT EXISTS (" + sub + ")", nil
		}
		return "EXISTS (" + sub + ")", nil
	case *model.InQuery:
		v, err := c.value(env, x.X)
		if err != nil {
			return "", err
		}
		sub, err := c.sub(env, x.Query, false)
		if err != nil {
			return "", err
		}
		return v + " IN (" + sub + ")", nil
	case *model.Subquery:
		sub, err := c.sub(env, x.Query, false)
		if err != nil {
			return "", err
		}
		return "(" + sub + ")", nil
	case *model.Contains:
		col, err := c.value(env, x.Column)
		if err != nil {
			return "", err
		}
		p := *x.Condition
		p.Search = true
		cond, err := c.scalar(env, &p)
		if err != nil {
			return "", err
		}
		return c.d.FullTextContains(col, cond), nil
	}
	return "", fmt.Errorf("%w: scalar %T", ErrUnsupportedQuery, x)
}

func (c *compiler) binary(env map[model.ColumnID]string, x *model.Binary) (string, error) {
	if x.Op == model.And || x.Op == model.Or {
		l, err := c.pred(env, x.L)
		if err != nil {
			return "", err
		}
		r, err := c.pred(env, x.R)
		if err != nil {
			return "", err
		}
		return "(" + l + " " + x.Op.String() + " " + r + ")", nil
	}
	l, err := c.value(env, x.L)
	if err != nil {
		return "", err
	}
	r, err := c.value(env, x.R)
	if err != nil {
		return "", err
	}
	switch {
	case x.NullSafe && (x.Op == model.Eq || x.Op == model.Ne):
		return c.d.NullSafeEqual(l, r, x.Op == model.Ne), nil
	case x.Op.IsComparison():
		return l + " " + x.Op.String() + " " + r, nil
	case x.Op == model.Concat:
		return c.d.Concat(l, r), nil
	}
	return "(" + l + " " + x.Op.String() + " " + r + ")", nil
}

func (c *compiler) caseWhen(env map[model.ColumnID]string, x *model.Case) (string, error) {
	var b strings.Builder
	b.WriteString("CASE")
	for _, w := range x.Whens {
		cond, err := c.pred(env, w.Cond)
		if err != nil {
			return "", err
		}
		then, err := c.value(env, w.Then)
		if err != nil {
			return "", err
		}
		b.WriteString(" WHEN " + cond + " THEN " + then)
	}
	if x.Else != nil {
		v, err := c.value(env, x.Else)
		if err != nil {
			return "", err
		}
		b.WriteString(" ELSE " + v)
	}
	b.WriteString(" END")
	return b.String(), nil
}

func (c *compiler) inList(env map[model.ColumnID]string, x *model.InList) (string, error) {
	l := List{Binding: x.Binding, Const: x.Const, Paths: x.Paths, Types: x.Types, Algorithm: x.Algorithm}
	for _, t := range x.X {
		v, err := c.value(env, t)
		if err != nil {
			return "", err
		}
		l.Tested = append(l.Tested, segments(v))
	}
	c.tmpl.Lists = append(c.tmpl.Lists, l)
	return listMarker(len(c.tmpl.Lists) - 1), nil
}

// sub compiles a subquery that may read the columns of env.
func (c *compiler) sub(env map[model.ColumnID]string, q model.Node, exists bool) (string, error) {
	c.scopes = append(c.scopes, env)
	defer func() { c.scopes = c.scopes[:len(c.scopes)-1] }()
	s, err := c.node(q)
	if err != nil {
		return "", err
	}
	if !exists && s.paged() {
		if s, err = c.wrap(s, false); err != nil {
			return "", err
		}
	}
	return c.subquery(s, exists)
}

// literal inlines numbers, booleans and plain strings and binds anything
// else.
func (c *compiler) literal(l *model.Literal) string {
	if s, ok := inlineLiteral(c.d, l.Value); ok {
		return s
	}
	return c.param(Param{Binding: -1, Const: l.Value, Type: l.T})
}

// inlineLiteral renders v as SQL text when it is nil, a boolean, a number
// or a string without backslashes or NUL bytes.
func inlineLiteral(d sqlgen.Dialect, v any) (string, bool) {
	switch x := v.(type) {
	case nil:
		return "NULL", true
	case bool:
		return d.BoolLiteral(x), true
	case string:
		if strings.ContainsAny(x, "\\\x00") {
			return "", false
		}
		q := "'" + strings.ReplaceAll(x, "'", "''") + "'"
		if d.Provider() == "sqlserver" {
			q = "N" + q
		}
		return q, true
	}
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return strconv.FormatInt(rv.Int(), 10), true
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		if rv.Uint() <= math.MaxInt64 {
			return strconv.FormatUint(rv.Uint(), 10), true
		}
	case reflect.Float32, reflect.Float64:
		s := strconv.FormatFloat(rv.Float(), 'g', -1, 64)
		if !strings.ContainsAny(s, ".eEIN") {
			s += ".0"
		}
		if !strings.ContainsAny(s, "IN") {
			return s, true
		}
	}
	return "", false
}
