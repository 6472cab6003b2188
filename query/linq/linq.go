// Package linq provides a fluent operator surface over query expressions.
//
// Every operator returns a new Query wrapping an expression call chain; the
// chain is translated only when a session runs it.
//
//	q := linq.All("Person").
//		Where(linq.F("p", func(p expr.Node) expr.Node {
//			return expr.Gt(expr.Prop(p, "Age"), expr.Var("minAge", &minAge))
//		})).
//		OrderBy(linq.F("p", func(p expr.Node) expr.Node { return expr.Prop(p, "Name") }))
package linq

import (
	"github.com/satishbabariya/queryable/query/expr"
)

// Expr is anything that denotes a query expression: a Query or a Terminal.
type Expr interface {
	Node() expr.Node
}

// Query is a sequence-valued query expression.
type Query struct {
	node expr.Node
}

// Terminal is a query reduced to a single value by a terminal operator.
type Terminal struct {
	node expr.Node
}

// Node returns the terminal call.
func (t Terminal) Node() expr.Node { return t.node }

func (t Terminal) String() string { return expr.Print(t.node) }

// All is the sequence of every persistent instance of typeName.
func All(typeName string) Query { return Query{node: expr.All(typeName)} }

// From wraps an existing sequence expression.
func From(n expr.Node) Query { return Query{node: n} }

// Local wraps an in-memory sequence, usually a captured slice.
func Local(seq expr.Node) Query { return Query{node: expr.LocalSeq(seq)} }

// F builds a one-parameter lambda from a Go function over the parameter.
func F(param string, body func(p expr.Node) expr.Node) *expr.Lambda {
	return expr.Fn1(param, body(expr.Param(param)))
}

// F2 builds a two-parameter lambda, used by Join and SelectMany results.
func F2(a, b string, body func(a, b expr.Node) expr.Node) *expr.Lambda {
	return expr.Fn2(a, b, body(expr.Param(a), expr.Param(b)))
}

// Node returns the call chain.
func (q Query) Node() expr.Node { return q.node }

func (q Query) String() string { return expr.Print(q.node) }

func (q Query) call(method string, args ...expr.Node) Query {
	return Query{node: expr.Method(q.node, method, args...)}
}

func (q Query) terminal(method string, args ...expr.Node) Terminal {
	return Terminal{node: expr.Method(q.node, method, args...)}
}

func lambdas(fs []*expr.Lambda) []expr.Node {
	out := make([]expr.Node, len(fs))
	for i, f := range fs {
		out[i] = f
	}
	return out
}

// Where filters by a predicate.
func (q Query) Where(pred *expr.Lambda) Query { return q.call("Where", pred) }

// Select projects each element.
func (q Query) Select(sel *expr.Lambda) Query { return q.call("Select", sel) }

// SelectMany flattens a sequence-valued selector. An optional result lambda
// combines the outer element with each inner one.
func (q Query) SelectMany(sel *expr.Lambda, result ...*expr.Lambda) Query {
	return q.call("SelectMany", append([]expr.Node{sel}, lambdas(result)...)...)
}

// OrderBy sorts ascending by key.
func (q Query) OrderBy(key *expr.Lambda) Query { return q.call("OrderBy", key) }

// OrderByDescending sorts descending by key.
func (q Query) OrderByDescending(key *expr.Lambda) Query {
	return q.call("OrderByDescending", key)
}

// ThenBy adds an ascending secondary key.
func (q Query) ThenBy(key *expr.Lambda) Query { return q.call("ThenBy", key) }

// ThenByDescending adds a descending secondary key.
func (q Query) ThenByDescending(key *expr.Lambda) Query {
	return q.call("ThenByDescending", key)
}

// Take keeps the first n elements.
func (q Query) Take(n int64) Query { return q.call("Take", expr.Const(n)) }

// Skip drops the first n elements.
func (q Query) Skip(n int64) Query { return q.call("Skip", expr.Const(n)) }

// TakeBy is Take with a count read from a captured value at execution time.
func (q Query) TakeBy(n expr.Node) Query { return q.call("Take", n) }

// SkipBy is Skip with a count read from a captured value at execution time.
func (q Query) SkipBy(n expr.Node) Query { return q.call("Skip", n) }

// Distinct removes duplicates.
func (q Query) Distinct() Query { return q.call("Distinct") }

// GroupBy groups by key, optionally projecting each element.
func (q Query) GroupBy(key *expr.Lambda, element ...*expr.Lambda) Query {
	return q.call("GroupBy", append([]expr.Node{key}, lambdas(element)...)...)
}

// Join is an inner equi-join; result receives the outer and inner element.
func (q Query) Join(inner Query, outerKey, innerKey, result *expr.Lambda) Query {
	return q.call("Join", inner.node, outerKey, innerKey, result)
}

// LeftJoin keeps outer elements without a match; the inner element is then
// null.
func (q Query) LeftJoin(inner Query, outerKey, innerKey, result *expr.Lambda) Query {
	return q.call("LeftJoin", inner.node, outerKey, innerKey, result)
}

// Union is the set union of two sequences.
func (q Query) Union(other Query) Query { return q.call("Union", other.node) }

// Concat appends other, keeping duplicates.
func (q Query) Concat(other Query) Query { return q.call("Concat", other.node) }

// Intersect keeps elements present in both sequences.
func (q Query) Intersect(other Query) Query { return q.call("Intersect", other.node) }

// Except keeps elements missing from other.
func (q Query) Except(other Query) Query { return q.call("Except", other.node) }

// OfType keeps the elements of typeName.
func (q Query) OfType(typeName string) Query {
	return Query{node: &expr.Call{Method: "OfType", Target: q.node, TypeArg: typeName}}
}

// Cast converts the elements to typeName, an ancestor or descendant type.
func (q Query) Cast(typeName string) Query {
	return Query{node: &expr.Call{Method: "Cast", Target: q.node, TypeArg: typeName}}
}

// Count counts the elements matching an optional predicate.
func (q Query) Count(pred ...*expr.Lambda) Terminal { return q.terminal("Count", lambdas(pred)...) }

// LongCount is Count with an int64 result.
func (q Query) LongCount(pred ...*expr.Lambda) Terminal {
	return q.terminal("LongCount", lambdas(pred)...)
}

// Sum adds the selected values; zero over an empty sequence.
func (q Query) Sum(sel ...*expr.Lambda) Terminal { return q.terminal("Sum", lambdas(sel)...) }

// Min is the smallest selected value.
func (q Query) Min(sel ...*expr.Lambda) Terminal { return q.terminal("Min", lambdas(sel)...) }

// Max is the largest selected value.
func (q Query) Max(sel ...*expr.Lambda) Terminal { return q.terminal("Max", lambdas(sel)...) }

// Average is the mean of the selected values.
func (q Query) Average(sel ...*expr.Lambda) Terminal {
	return q.terminal("Average", lambdas(sel)...)
}

// Any reports whether some element matches an optional predicate.
func (q Query) Any(pred ...*expr.Lambda) Terminal { return q.terminal("Any", lambdas(pred)...) }

// All reports whether every element matches pred.
func (q Query) All(pred *expr.Lambda) Terminal { return q.terminal("All", pred) }

// Contains reports whether value is an element of the sequence.
func (q Query) Contains(value expr.Node) Terminal { return q.terminal("Contains", value) }

// First is the first element; running it over an empty sequence fails.
func (q Query) First(pred ...*expr.Lambda) Terminal { return q.terminal("First", lambdas(pred)...) }

// FirstOrDefault is the first element or nil.
func (q Query) FirstOrDefault(pred ...*expr.Lambda) Terminal {
	return q.terminal("FirstOrDefault", lambdas(pred)...)
}

// Single is the only element; zero or several elements fail.
func (q Query) Single(pred ...*expr.Lambda) Terminal {
	return q.terminal("Single", lambdas(pred)...)
}

// SingleOrDefault is the only element or nil; several elements fail.
func (q Query) SingleOrDefault(pred ...*expr.Lambda) Terminal {
	return q.terminal("SingleOrDefault", lambdas(pred)...)
}
