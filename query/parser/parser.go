package parser

import (
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/satishbabariya/queryable/query"
	"github.com/satishbabariya/queryable/query/expr"
	"github.com/satishbabariya/queryable/schema"
)

const op = "parse"

// Vars maps capture names (without the $) to pointers to their values.
// Captures read the pointed-to value every time the query runs.
type Vars map[string]any

// Parse reads a query expression from src.
func Parse(src string, vars Vars) (expr.Node, error) {
	ast, err := queryParser.ParseString("query", src)
	if err != nil {
		return nil, fmt.Errorf("failed to parse query: %w", err)
	}
	c := &converter{vars: vars}
	return c.expression(ast)
}

type converter struct {
	vars   Vars
	scopes [][]string
}

func (c *converter) bound(name string) bool {
	for i := len(c.scopes) - 1; i >= 0; i-- {
		for _, p := range c.scopes[i] {
			if p == name {
				return true
			}
		}
	}
	return false
}

func (c *converter) expression(e *Expression) (expr.Node, error) {
	if e.Lambda != nil {
		return c.lambda(e.Lambda)
	}
	return c.conditional(e.Cond)
}

func (c *converter) lambda(l *Lambda) (expr.Node, error) {
	if len(l.Params) > 2 {
		return nil, query.Errorf(op, query.ErrNotSupported, "lambda with %d parameters", len(l.Params))
	}
	c.scopes = append(c.scopes, l.Params)
	defer func() { c.scopes = c.scopes[:len(c.scopes)-1] }()
	body, err := c.expression(l.Body)
	if err != nil {
		return nil, err
	}
	return &expr.Lambda{Params: l.Params, Body: body}, nil
}

func (c *converter) conditional(n *Conditional) (expr.Node, error) {
	test, err := c.coalesce(n.Test)
	if err != nil || n.Then == nil {
		return test, err
	}
	then, err := c.expression(n.Then)
	if err != nil {
		return nil, err
	}
	els, err := c.expression(n.Else)
	if err != nil {
		return nil, err
	}
	return expr.Cond(test, then, els), nil
}

func (c *converter) coalesce(n *Coalesce) (expr.Node, error) {
	left, err := c.or(n.Left)
	if err != nil || n.Right == nil {
		return left, err
	}
	right, err := c.coalesce(n.Right)
	if err != nil {
		return nil, err
	}
	return expr.Coalesce(left, right), nil
}

func (c *converter) or(n *Or) (expr.Node, error) {
	out, err := c.and(n.Left)
	if err != nil {
		return nil, err
	}
	for _, r := range n.Rest {
		right, err := c.and(r)
		if err != nil {
			return nil, err
		}
		out = expr.Or(out, right)
	}
	return out, nil
}

func (c *converter) and(n *And) (expr.Node, error) {
	out, err := c.comparison(n.Left)
	if err != nil {
		return nil, err
	}
	for _, r := range n.Rest {
		right, err := c.comparison(r)
		if err != nil {
			return nil, err
		}
		out = expr.And(out, right)
	}
	return out, nil
}

var comparisons = map[string]func(l, r expr.Node) *expr.Binary{
	"==": expr.Eq, "!=": expr.Ne, "<": expr.Lt, "<=": expr.Le, ">": expr.Gt, ">=": expr.Ge,
}

func (c *converter) comparison(n *Comparison) (expr.Node, error) {
	left, err := c.additive(n.Left)
	if err != nil || n.Op == "" {
		return left, err
	}
	right, err := c.additive(n.Right)
	if err != nil {
		return nil, err
	}
	return comparisons[n.Op](left, right), nil
}

func (c *converter) additive(n *Additive) (expr.Node, error) {
	out, err := c.multiplicative(n.Left)
	if err != nil {
		return nil, err
	}
	for _, r := range n.Rest {
		right, err := c.multiplicative(r.Operand)
		if err != nil {
			return nil, err
		}
		if r.Op == "+" {
			out = expr.Add(out, right)
		} else {
			out = expr.Sub(out, right)
		}
	}
	return out, nil
}

func (c *converter) multiplicative(n *Multiplicative) (expr.Node, error) {
	out, err := c.unary(n.Left)
	if err != nil {
		return nil, err
	}
	for _, r := range n.Rest {
		right, err := c.unary(r.Operand)
		if err != nil {
			return nil, err
		}
		switch r.Op {
		case "*":
			out = expr.Mul(out, right)
		case "/":
			out = expr.Div(out, right)
		default:
			out = expr.Mod(out, right)
		}
	}
	return out, nil
}

func (c *converter) unary(n *Unary) (expr.Node, error) {
	if n.Postfix != nil {
		return c.postfix(n.Postfix)
	}
	operand, err := c.unary(n.Operand)
	if err != nil {
		return nil, err
	}
	if n.Op == "!" {
		return expr.Not(operand), nil
	}
	// fold negative literals so -1 stays a constant
	if k, ok := operand.(*expr.Constant); ok {
		switch v := k.Value.(type) {
		case int32:
			return expr.Const(-v), nil
		case int64:
			return expr.Const(-v), nil
		case float64:
			return expr.Const(-v), nil
		}
	}
	return expr.Neg(operand), nil
}

func (c *converter) postfix(n *Postfix) (expr.Node, error) {
	out, err := c.primary(n.Primary)
	if err != nil {
		return nil, err
	}
	for _, s := range n.Suffixes {
		if s.Index != nil {
			out = expr.Idx(out, *s.Index)
			continue
		}
		m := s.Member
		if !m.Call {
			if m.TypeArg != "" {
				return nil, query.Errorf(op, query.ErrInvalidArgument, "%s: type argument without a call to %s", m.Pos, m.Name)
			}
			out = expr.Prop(out, m.Name)
			continue
		}
		args, err := c.expressions(m.Args)
		if err != nil {
			return nil, err
		}
		out = &expr.Call{Method: m.Name, Target: out, TypeArg: typeArg(m.TypeArg), Args: args}
	}
	return out, nil
}

func (c *converter) expressions(es []*Expression) ([]expr.Node, error) {
	out := make([]expr.Node, len(es))
	for i, e := range es {
		n, err := c.expression(e)
		if err != nil {
			return nil, err
		}
		out[i] = n
	}
	return out, nil
}

func typeArg(g string) string { return strings.TrimSuffix(strings.TrimPrefix(g, "<"), ">") }

func (c *converter) primary(p *Primary) (expr.Node, error) {
	switch {
	case p.Source != nil:
		return expr.All(typeArg(p.Source.Type)), nil
	case p.Convert != nil:
		name := typeArg(p.Convert.Type)
		vt, ok := schema.ParseValueType(name)
		if !ok {
			return nil, query.Errorf(op, query.ErrInvalidArgument, "%s: unknown value type %s", p.Pos, name)
		}
		operand, err := c.expression(p.Convert.Operand)
		if err != nil {
			return nil, err
		}
		return expr.ConvertTo(operand, vt), nil
	case p.New != nil:
		return c.newExpr(p.New)
	case p.Func != nil:
		return c.function(p.Func)
	case p.Capture != nil:
		ptr, ok := c.vars[*p.Capture]
		if !ok {
			return nil, query.Errorf(op, query.ErrInvalidArgument, "%s: unknown variable $%s", p.Pos, *p.Capture)
		}
		return expr.Var(*p.Capture, ptr), nil
	case p.Float != nil:
		f, err := strconv.ParseFloat(*p.Float, 64)
		if err != nil {
			return nil, query.Errorf(op, query.ErrInvalidArgument, "%s: %v", p.Pos, err)
		}
		return expr.Const(f), nil
	case p.Int != nil:
		return intLiteral(p)
	case p.String != nil:
		return expr.Const(*p.String), nil
	case p.Bool != nil:
		return expr.Const(*p.Bool == "true"), nil
	case p.Null:
		return expr.Const(nil), nil
	case p.Ident != nil:
		if !c.bound(*p.Ident) {
			return nil, query.Errorf(op, query.ErrInvalidArgument, "%s: unknown identifier %s", p.Pos, *p.Ident)
		}
		return expr.Param(*p.Ident), nil
	case p.Paren != nil:
		return c.expression(p.Paren)
	}
	return nil, query.Errorf(op, query.ErrInvalidArgument, "%s: empty expression", p.Pos)
}

// intLiteral reads an integer constant: int32 when it fits, int64 with an L
// suffix or when it does not.
func intLiteral(p *Primary) (expr.Node, error) {
	text := *p.Int
	long := strings.HasSuffix(text, "L") || strings.HasSuffix(text, "l")
	v, err := strconv.ParseInt(strings.TrimRight(text, "lL"), 10, 64)
	if err != nil {
		return nil, query.Errorf(op, query.ErrOutOfRange, "%s: %v", p.Pos, err)
	}
	if !long && v <= math.MaxInt32 {
		return expr.Const(int32(v)), nil
	}
	return expr.Const(v), nil
}

func (c *converter) newExpr(n *NewExpr) (expr.Node, error) {
	members := make([]expr.Assignment, len(n.Members))
	for i, m := range n.Members {
		v, err := c.expression(m.Value)
		if err != nil {
			return nil, err
		}
		name := m.Name
		if name == "" {
			// new { p.Name } takes the member name
			member, ok := v.(*expr.Member)
			if !ok {
				return nil, query.Errorf(op, query.ErrInvalidArgument, "member %d of new needs a name", i)
			}
			name = member.Name
		}
		members[i] = expr.As(name, v)
	}
	if n.Type != "" {
		return expr.Init(n.Type, members...), nil
	}
	return expr.Rec(members...), nil
}

var algorithms = map[string]expr.Algorithm{
	"auto":    expr.IncludeAuto,
	"complex": expr.IncludeComplexCondition,
	"temp":    expr.IncludeTemporaryTable,
}

func (c *converter) function(f *FuncCall) (expr.Node, error) {
	want := map[string][2]int{"Local": {1, 1}, "In": {2, 3}, "Match": {2, 2}}[f.Name]
	if len(f.Args) < want[0] || len(f.Args) > want[1] {
		return nil, query.Errorf(op, query.ErrInvalidArgument, "%s takes %d to %d arguments, got %d", f.Name, want[0], want[1], len(f.Args))
	}
	alg := expr.IncludeAuto
	args := f.Args
	if f.Name == "In" && len(args) == 3 {
		name, ok := identName(args[2])
		if a, known := algorithms[name]; ok && known {
			alg = a
		} else {
			return nil, query.Errorf(op, query.ErrInvalidArgument, "unknown list algorithm; want auto, complex or temp")
		}
		args = args[:2]
	}
	nodes, err := c.expressions(args)
	if err != nil {
		return nil, err
	}
	switch f.Name {
	case "Local":
		return expr.LocalSeq(nodes[0]), nil
	case "In":
		return expr.InList(nodes[0], nodes[1], alg), nil
	}
	return expr.Match(nodes[0], nodes[1]), nil
}

// identName returns the bare identifier e consists of.
func identName(e *Expression) (string, bool) {
	if e.Cond == nil || e.Cond.Then != nil || e.Cond.Test.Right != nil {
		return "", false
	}
	or := e.Cond.Test.Left
	if len(or.Rest) > 0 || len(or.Left.Rest) > 0 {
		return "", false
	}
	cmp := or.Left.Left
	if cmp.Op != "" || len(cmp.Left.Rest) > 0 || len(cmp.Left.Left.Rest) > 0 {
		return "", false
	}
	u := cmp.Left.Left.Left
	if u.Postfix == nil || len(u.Postfix.Suffixes) > 0 || u.Postfix.Primary.Ident == nil {
		return "", false
	}
	return *u.Postfix.Primary.Ident, true
}
