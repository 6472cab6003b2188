// Package builder translates a normalized query expression into the
// relational model: a node tree plus the shape describing how its columns
// become result values.
package builder

import (
	"github.com/satishbabariya/queryable/query"
	"github.com/satishbabariya/queryable/query/expr"
	"github.com/satishbabariya/queryable/query/model"
	"github.com/satishbabariya/queryable/query/normalize"
	"github.com/satishbabariya/queryable/query/sqlgen"
	"github.com/satishbabariya/queryable/schema"
)

// Cardinality is the number of results the caller expects.
type Cardinality int

const (
	// Many returns every row.
	Many Cardinality = iota
	// Scalar returns the single value of an aggregate or quantifier.
	Scalar
	First
	FirstOrDefault
	Single
	SingleOrDefault
)

func (c Cardinality) String() string {
	return [...]string{"Many", "Scalar", "First", "FirstOrDefault", "Single", "SingleOrDefault"}[c]
}

// Query is a translated query.
type Query struct {
	Root        model.Node
	Shape       model.Shape
	Cardinality Cardinality
}

// Options configures a translation.
type Options struct {
	Model    *schema.Model
	Features sqlgen.Features
}

// Build translates a normalized expression.
func Build(r *normalize.Result, opts Options) (*Query, error) {
	if r == nil || r.Root == nil {
		return nil, query.Errorf("translate", query.ErrNilArgument, "query expression is nil")
	}
	if opts.Model == nil {
		return nil, query.Errorf("translate", query.ErrNilArgument, "model is nil")
	}
	b := &builder{
		model:    opts.Model,
		features: opts.Features,
		groups:   map[*model.SequenceShape]*grouping{},
	}
	q, err := b.build(r.Root)
	if err != nil {
		return nil, query.Wrap("translate", r.Text, err)
	}
	return q, nil
}

type builder struct {
	model    *schema.Model
	features sqlgen.Features
	next     model.ColumnID

	scope  []scopeEntry
	frames []*frame
	groups map[*model.SequenceShape]*grouping
}

// seq is a sequence under construction.
type seq struct {
	node  model.Node
	shape model.Shape
	joins map[string]*model.EntityShape
}

func newSeq(n model.Node, s model.Shape) *seq {
	return &seq{node: n, shape: s, joins: map[string]*model.EntityShape{}}
}

func (s *seq) frame() *frame { return &frame{node: &s.node, joins: s.joins} }

// frame is a node that lambda bodies may extend with navigation joins.
type frame struct {
	node  *model.Node
	joins map[string]*model.EntityShape
}

type scopeEntry struct {
	name  string
	shape model.Shape
}

func (b *builder) column(name string, t schema.ValueType, nullable bool) model.Column {
	b.next++
	return model.Column{ID: b.next, Name: name, Type: t, Nullable: nullable}
}

func (b *builder) require(f sqlgen.Features, op, what string) error {
	if b.features.Has(f) {
		return nil
	}
	return query.Errorf(op, query.ErrFeatureNotSupported, "%s requires %s", what, f)
}

func (b *builder) lookup(name string) (model.Shape, bool) {
	for i := len(b.scope) - 1; i >= 0; i-- {
		if b.scope[i].name == name {
			return b.scope[i].shape, true
		}
	}
	return nil, false
}

// lambdaArg binds one lambda parameter.
type lambdaArg struct {
	shape model.Shape
	frame *frame
}

func (s *seq) arg() lambdaArg { return lambdaArg{shape: s.shape, frame: s.frame()} }

// apply translates the body of lambda n with its parameters bound to args.
func (b *builder) apply(op string, n expr.Node, args ...lambdaArg) (model.Shape, error) {
	l, ok := n.(*expr.Lambda)
	if !ok {
		return nil, query.Errorf(op, query.ErrInvalidArgument, "expected a lambda, got %s", n)
	}
	if len(l.Params) != len(args) {
		return nil, query.Errorf(op, query.ErrInvalidArgument, "lambda takes %d parameters, want %d", len(l.Params), len(args))
	}
	scope, frames := len(b.scope), len(b.frames)
	defer func() {
		b.scope = b.scope[:scope]
		b.frames = b.frames[:frames]
	}()
	for i, a := range args {
		b.scope = append(b.scope, scopeEntry{name: l.Params[i], shape: a.shape})
		if a.frame != nil && !b.hasFrame(a.frame.node) {
			b.frames = append(b.frames, a.frame)
		}
	}
	return b.value(l.Body)
}

// applyScalar is apply for bodies that must yield one value.
func (b *builder) applyScalar(op string, n expr.Node, args ...lambdaArg) (model.Scalar, error) {
	s, err := b.apply(op, n, args...)
	if err != nil {
		return nil, err
	}
	return scalarOf(op, s)
}

// applyPredicate is apply for bodies that must yield a condition.
func (b *builder) applyPredicate(op string, n expr.Node, args ...lambdaArg) (model.Scalar, error) {
	s, err := b.applyScalar(op, n, args...)
	if err != nil {
		return nil, err
	}
	return predicate(op, s)
}

func (b *builder) hasFrame(n *model.Node) bool {
	for _, f := range b.frames {
		if f.node == n {
			return true
		}
	}
	return false
}

func scalarOf(op string, s model.Shape) (model.Scalar, error) {
	if sc, ok := s.(*model.ScalarShape); ok {
		return sc.Expr, nil
	}
	return nil, query.Errorf(op, query.ErrNotSupported, "expected a single value, got %T", s)
}

// predicate turns a boolean value into a condition.
func predicate(op string, s model.Scalar) (model.Scalar, error) {
	if model.IsPredicate(s) {
		return s, nil
	}
	if s.Type() != schema.TypeBool {
		return nil, query.Errorf(op, query.ErrTypeMismatch, "condition must be boolean, got %s", s.Type())
	}
	return &model.Binary{Op: model.Eq, L: s, R: &model.Literal{Value: true, T: schema.TypeBool}, T: schema.TypeBool}, nil
}

func and(preds ...model.Scalar) model.Scalar {
	var out model.Scalar
	for _, p := range preds {
		if out == nil {
			out = p
			continue
		}
		out = &model.Binary{Op: model.And, L: out, R: p, T: schema.TypeBool}
	}
	return out
}

func (b *builder) build(root expr.Node) (*Query, error) {
	if c, ok := root.(*expr.Call); ok && terminalMethods[c.Method] {
		return b.terminal(c)
	}
	s, err := b.sequence(root)
	if err != nil {
		return nil, err
	}
	shape, err := b.finish(s.shape)
	if err != nil {
		return nil, err
	}
	return &Query{Root: s.node, Shape: shape, Cardinality: Many}, nil
}
