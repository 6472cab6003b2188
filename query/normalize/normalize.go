// Package normalize rewrites a query expression into its canonical form:
// closures become typed placeholders backed by a binding table, indexers
// become member accesses and the result carries a structural fingerprint used
// as the compiled-query cache key.
package normalize

import (
	"fmt"
	"reflect"

	"github.com/cespare/xxhash/v2"

	"github.com/satishbabariya/queryable/query"
	"github.com/satishbabariya/queryable/query/expr"
)

const op = "normalize"

// Binding reads the runtime value of one placeholder.
type Binding struct {
	Index int
	// Name is the captured variable or invoked function, for diagnostics.
	Name   string
	Type   reflect.Type
	Static bool
	Search bool
	eval   func() (any, error)
}

// Value evaluates the binding against the live closure state.
func (b *Binding) Value() (any, error) { return b.eval() }

// Result is a normalized query.
type Result struct {
	Root        expr.Node
	Bindings    []*Binding
	Fingerprint uint64
	// Text is the canonical print the fingerprint was computed from.
	Text string
}

// Values evaluates every binding in placeholder order.
func (r *Result) Values() ([]any, error) {
	out := make([]any, len(r.Bindings))
	for i, b := range r.Bindings {
		v, err := b.Value()
		if err != nil {
			return nil, fmt.Errorf("binding %d (%s): %w", i, b.Name, err)
		}
		out[i] = v
	}
	return out, nil
}

// Fingerprint hashes the canonical print of a normalized tree.
func Fingerprint(n expr.Node) uint64 {
	return xxhash.Sum64String(expr.Print(n))
}

// Normalize rewrites n without mutating it.
func Normalize(n expr.Node) (*Result, error) {
	if n == nil {
		return nil, query.Errorf(op, query.ErrNilArgument, "query expression is nil")
	}
	nz := &normalizer{byIdentity: map[string]int{}}
	root, err := nz.node(n)
	if err != nil {
		return nil, query.Wrap(op, expr.Print(n), err)
	}
	text := expr.Print(root)
	return &Result{
		Root:        root,
		Bindings:    nz.bindings,
		Fingerprint: xxhash.Sum64String(text),
		Text:        text,
	}, nil
}

type normalizer struct {
	scope      []string
	bindings   []*Binding
	byIdentity map[string]int
}

func (nz *normalizer) bound(name string) bool {
	for i := len(nz.scope) - 1; i >= 0; i-- {
		if nz.scope[i] == name {
			return true
		}
	}
	return false
}

func (nz *normalizer) bind(identity string, b *Binding) *expr.Placeholder {
	if identity != "" {
		if i, ok := nz.byIdentity[identity]; ok {
			prev := nz.bindings[i]
			return &expr.Placeholder{Index: i, Type: prev.Type, Search: prev.Search}
		}
	}
	b.Index = len(nz.bindings)
	nz.bindings = append(nz.bindings, b)
	if identity != "" {
		nz.byIdentity[identity] = b.Index
	}
	return &expr.Placeholder{Index: b.Index, Type: b.Type, Search: b.Search}
}

// collapse folds a member chain rooted at a capture into a single capture.
func collapse(n expr.Node) (*expr.Capture, bool) {
	switch n := n.(type) {
	case *expr.Capture:
		return n, true
	case *expr.Member:
		if c, ok := collapse(n.Target); ok {
			return c.WithPath(n.Name), true
		}
	}
	return nil, false
}

func (nz *normalizer) capture(c *expr.Capture) (expr.Node, error) {
	root := c.RootType()
	if !IsParameterizable(root) && !IsSequence(root) {
		return nil, query.Errorf(op, query.ErrNotSupported, "captured %s has unsupported type %s", c.Name, root)
	}
	t := c.Type()
	if t == nil {
		return nil, query.Errorf(op, query.ErrNotSupported, "captured %s has no member path %v", c.Name, c.Path)
	}
	name := c.Name
	for _, p := range c.Path {
		name += "." + p
	}
	return nz.bind(c.Identity(), &Binding{Name: name, Type: t, Static: c.Static, eval: c.Value}), nil
}

func (nz *normalizer) node(n expr.Node) (expr.Node, error) {
	switch n := n.(type) {
	case nil:
		return nil, query.Errorf(op, query.ErrNilArgument, "nil expression node")
	case *expr.Parameter:
		if !nz.bound(n.Name) {
			return nil, query.Errorf(op, query.ErrInvalidArgument, "parameter %s is not bound by any lambda", n.Name)
		}
		return n, nil
	case *expr.Constant:
		t := n.GoType()
		if t != nil && !IsParameterizable(t) && !IsSequence(t) {
			return nil, query.Errorf(op, query.ErrNotSupported, "constant of unsupported type %s", t)
		}
		return n, nil
	case *expr.Capture:
		return nz.capture(n)
	case *expr.Placeholder:
		return nil, query.Errorf(op, query.ErrInvalidArgument, "expression is already normalized")
	case *expr.Member:
		if c, ok := collapse(n); ok {
			return nz.capture(c)
		}
		target, err := nz.node(n.Target)
		if err != nil {
			return nil, err
		}
		return &expr.Member{Target: target, Name: n.Name, Indexed: n.Indexed}, nil
	case *expr.Index:
		if _, ok := collapse(n.Target); ok {
			return nil, query.Errorf(op, query.ErrNotSupported, "indexer on captured value %s", n.Target)
		}
		target, err := nz.node(n.Target)
		if err != nil {
			return nil, err
		}
		return &expr.Member{Target: target, Name: n.Name, Indexed: true}, nil
	case *expr.Binary:
		l, err := nz.node(n.Left)
		if err != nil {
			return nil, err
		}
		r, err := nz.node(n.Right)
		if err != nil {
			return nil, err
		}
		return &expr.Binary{Op: n.Op, Left: l, Right: r}, nil
	case *expr.Unary:
		x, err := nz.node(n.Operand)
		if err != nil {
			return nil, err
		}
		return &expr.Unary{Op: n.Op, Operand: x}, nil
	case *expr.Convert:
		x, err := nz.node(n.Operand)
		if err != nil {
			return nil, err
		}
		return &expr.Convert{Operand: x, To: n.To, Nullable: n.Nullable}, nil
	case *expr.Call:
		out := &expr.Call{Method: n.Method, TypeArg: n.TypeArg}
		if n.Target != nil {
			t, err := nz.node(n.Target)
			if err != nil {
				return nil, err
			}
			out.Target = t
		}
		args, err := nz.nodes(n.Args)
		if err != nil {
			return nil, err
		}
		out.Args = args
		return out, nil
	case *expr.Invocation:
		return nz.invoke(n)
	case *expr.Conditional:
		parts, err := nz.nodes([]expr.Node{n.Test, n.Then, n.Else})
		if err != nil {
			return nil, err
		}
		return &expr.Conditional{Test: parts[0], Then: parts[1], Else: parts[2]}, nil
	case *expr.New:
		vals, err := nz.nodes(n.Values)
		if err != nil {
			return nil, err
		}
		return &expr.New{Names: append([]string(nil), n.Names...), Values: vals}, nil
	case *expr.MemberInit:
		vals, err := nz.nodes(n.Values)
		if err != nil {
			return nil, err
		}
		return &expr.MemberInit{Type: n.Type, Names: append([]string(nil), n.Names...), Values: vals}, nil
	case *expr.Lambda:
		start := len(nz.scope)
		nz.scope = append(nz.scope, n.Params...)
		body, err := nz.node(n.Body)
		nz.scope = nz.scope[:start]
		if err != nil {
			return nil, err
		}
		return &expr.Lambda{Params: append([]string(nil), n.Params...), Body: body}, nil
	case *expr.Source:
		return n, nil
	case *expr.Local:
		switch n.Seq.(type) {
		case *expr.Constant, *expr.Capture, *expr.Member:
		default:
			return nil, query.Errorf(op, query.ErrNotSupported, "local sequence must be a constant or captured variable")
		}
		seq, err := nz.node(n.Seq)
		if err != nil {
			return nil, err
		}
		if !IsSequence(placeholderType(seq)) {
			return nil, query.Errorf(op, query.ErrNotSupported, "local sequence of unsupported type %s", placeholderType(seq))
		}
		return &expr.Local{Seq: seq}, nil
	case *expr.In:
		v, err := nz.node(n.Value)
		if err != nil {
			return nil, err
		}
		c, err := nz.node(n.Collection)
		if err != nil {
			return nil, err
		}
		return &expr.In{Value: v, Collection: c, Algorithm: n.Algorithm}, nil
	case *expr.Matches:
		f, err := nz.node(n.Field)
		if err != nil {
			return nil, err
		}
		cond, err := nz.searchCondition(n.Condition)
		if err != nil {
			return nil, err
		}
		return &expr.Matches{Field: f, Condition: cond}, nil
	}
	return nil, query.Errorf(op, query.ErrNotSupported, "unknown expression node %T", n)
}

func (nz *normalizer) nodes(ns []expr.Node) ([]expr.Node, error) {
	out := make([]expr.Node, len(ns))
	for i, a := range ns {
		x, err := nz.node(a)
		if err != nil {
			return nil, err
		}
		out[i] = x
	}
	return out, nil
}

func placeholderType(n expr.Node) reflect.Type {
	switch n := n.(type) {
	case *expr.Placeholder:
		return n.Type
	case *expr.Constant:
		return n.GoType()
	}
	return nil
}

func (nz *normalizer) searchCondition(n expr.Node) (expr.Node, error) {
	switch c := n.(type) {
	case *expr.Constant:
		if c.Value == nil {
			return nil, query.Errorf(op, query.ErrNilArgument, "search condition is nil")
		}
		v := c.Value
		return nz.bind("", &Binding{Name: "search condition", Type: reflect.TypeOf(v), Search: true, eval: func() (any, error) { return v, nil }}), nil
	case *expr.Capture, *expr.Member:
		cp, ok := collapse(c)
		if !ok {
			break
		}
		return nz.bind(cp.Identity(), &Binding{Name: cp.Name, Type: cp.Type(), Static: cp.Static, Search: true, eval: cp.Value}), nil
	}
	return nil, query.Errorf(op, query.ErrNotSupported, "search condition must be a constant or captured variable")
}
