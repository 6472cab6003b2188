package builder

import (
	"github.com/satishbabariya/queryable/query"
	"github.com/satishbabariya/queryable/query/expr"
	"github.com/satishbabariya/queryable/query/model"
	"github.com/satishbabariya/queryable/query/sqlgen"
	"github.com/satishbabariya/queryable/schema"
)

// sequenceMethods are operators returning a sequence.
var sequenceMethods = map[string]bool{
	"Where": true, "Select": true, "SelectMany": true,
	"OrderBy": true, "OrderByDescending": true, "ThenBy": true, "ThenByDescending": true,
	"Take": true, "Skip": true, "Distinct": true, "GroupBy": true,
	"Join": true, "LeftJoin": true,
	"Union": true, "Concat": true, "Intersect": true, "Except": true,
	"OfType": true, "Cast": true,
}

// terminalMethods reduce a sequence to one value.
var terminalMethods = map[string]bool{
	"Count": true, "LongCount": true, "Any": true, "All": true, "Contains": true,
	"Sum": true, "Min": true, "Max": true, "Average": true,
	"First": true, "FirstOrDefault": true, "Single": true, "SingleOrDefault": true,
}

// foldable aggregates can become columns of an enclosing GroupBy.
var foldable = map[string]model.AggFunc{
	"Count": model.AggCount, "LongCount": model.AggCount,
	"Sum": model.AggSum, "Min": model.AggMin, "Max": model.AggMax, "Average": model.AggAvg,
}

// operand translates the target of a method call: a sequence when it denotes
// one, otherwise a value shape.
func (b *builder) operand(n expr.Node) (*seq, model.Shape, error) {
	switch t := n.(type) {
	case *expr.Source, *expr.Local:
		s, err := b.sequence(n)
		return s, nil, err
	case *expr.Placeholder, *expr.Constant:
		if _, _, _, ok := localSource(n); ok {
			s, err := b.sequence(n)
			return s, nil, err
		}
	case *expr.Call:
		if sequenceMethods[t.Method] {
			s, err := b.sequence(n)
			return s, nil, err
		}
	}
	v, err := b.value(n)
	if err != nil {
		return nil, nil, err
	}
	return nil, v, nil
}

// call translates a method call in value position.
func (b *builder) call(n *expr.Call) (model.Shape, error) {
	if sequenceMethods[n.Method] {
		s, err := b.sequence(n)
		if err != nil {
			return nil, err
		}
		return b.collection(s), nil
	}
	if n.Target == nil {
		return nil, query.Errorf(n.Method, query.ErrNotSupported, "method %s without a target", n.Method)
	}
	if n.Method == "Contains" {
		if idx, c, t, ok := localSource(n.Target); ok {
			if len(n.Args) != 1 {
				return nil, query.Errorf(n.Method, query.ErrInvalidArgument, "Contains takes one argument")
			}
			v, err := b.value(n.Args[0])
			if err != nil {
				return nil, err
			}
			p, err := b.inList(n.Method, v, idx, c, t, expr.IncludeAuto)
			if err != nil {
				return nil, err
			}
			return &model.ScalarShape{Expr: p}, nil
		}
	}
	s, v, err := b.operand(n.Target)
	if err != nil {
		return nil, err
	}
	if s == nil {
		switch t := v.(type) {
		case *model.ScalarShape:
			return b.scalarMethod(n, t.Expr)
		case *model.GroupingShape:
			if fn, ok := foldable[n.Method]; ok {
				if g := b.groups[t.Elements]; g != nil && b.reachable(g.node) {
					return b.fold(n, fn, g)
				}
			}
			if s, err = b.elementsOf(n.Method, t); err != nil {
				return nil, err
			}
		case *model.EntitySetShape:
			if s, err = b.entitySet(n.Method, t); err != nil {
				return nil, err
			}
		default:
			return nil, query.Errorf(n.Method, query.ErrNotSupported, "method %s on %T", n.Method, v)
		}
	}
	if !terminalMethods[n.Method] {
		return nil, query.Errorf(n.Method, query.ErrNotSupported, "sequence method %s", n.Method)
	}
	p, err := b.nested(n, s)
	if err != nil {
		return nil, err
	}
	return &model.ScalarShape{Expr: p}, nil
}

// scalarMethod translates string methods.
func (b *builder) scalarMethod(n *expr.Call, x model.Scalar) (model.Shape, error) {
	op := n.Method
	if x.Type() != schema.TypeString && n.Method != "Equals" {
		return nil, query.Errorf(op, query.ErrNotSupported, "method %s on %s", n.Method, x.Type())
	}
	arg := func() (model.Scalar, error) {
		if len(n.Args) != 1 {
			return nil, query.Errorf(op, query.ErrInvalidArgument, "%s takes one argument", op)
		}
		return b.scalar(n.Args[0])
	}
	fn := func(name model.FuncName) (model.Shape, error) {
		if len(n.Args) != 0 {
			return nil, query.Errorf(op, query.ErrInvalidArgument, "%s takes no arguments", op)
		}
		return &model.ScalarShape{Expr: &model.Func{Name: name, Args: []model.Scalar{x}, T: schema.TypeString, Nullable: x.Null()}}, nil
	}
	switch n.Method {
	case "ToUpper":
		return fn(model.FnUpper)
	case "ToLower":
		return fn(model.FnLower)
	case "Trim":
		return fn(model.FnTrim)
	case "Equals":
		a, err := arg()
		if err != nil {
			return nil, err
		}
		p, err := b.compareScalars(op, model.Eq, x, a)
		if err != nil {
			return nil, err
		}
		return &model.ScalarShape{Expr: p}, nil
	case "Contains", "StartsWith", "EndsWith":
		a, err := arg()
		if err != nil {
			return nil, err
		}
		mode := map[string]model.LikeMode{"Contains": model.LikeContains, "StartsWith": model.LikePrefix, "EndsWith": model.LikeSuffix}[n.Method]
		pattern, err := likePattern(op, a, mode)
		if err != nil {
			return nil, err
		}
		return &model.ScalarShape{Expr: &model.Like{X: x, Pattern: pattern, Mode: mode}}, nil
	}
	return nil, query.Errorf(op, query.ErrNotSupported, "string method %s", n.Method)
}

// likePattern escapes a literal or parameter pattern for LIKE.
func likePattern(op string, a model.Scalar, mode model.LikeMode) (model.Scalar, error) {
	switch a := a.(type) {
	case *model.Literal:
		s, ok := a.Value.(string)
		if !ok {
			return nil, query.Errorf(op, query.ErrNilArgument, "pattern is not a string")
		}
		return &model.Literal{Value: sqlgen.LikePattern(s, likeNames[mode]), T: schema.TypeString}, nil
	case *model.Param:
		cp := *a
		cp.Like = mode
		return &cp, nil
	}
	return nil, query.Errorf(op, query.ErrNotSupported, "pattern must be a constant or captured value")
}

var likeNames = map[model.LikeMode]string{
	model.LikeContains: "contains",
	model.LikePrefix:   "prefix",
	model.LikeSuffix:   "suffix",
}

// nested reduces s to a scalar inside an enclosing query: quantifiers become
// EXISTS or IN, everything else a scalar subquery.
func (b *builder) nested(n *expr.Call, s *seq) (model.Scalar, error) {
	op := n.Method
	switch n.Method {
	case "Any":
		if err := b.where(op, s, n.Args); err != nil {
			return nil, err
		}
		return &model.Exists{Query: s.node}, nil
	case "All":
		if len(n.Args) != 1 {
			return nil, query.Errorf(op, query.ErrInvalidArgument, "All takes a predicate")
		}
		p, err := b.applyPredicate(op, n.Args[0], s.arg())
		if err != nil {
			return nil, err
		}
		return &model.Exists{Query: &model.Filter{Child: s.node, Pred: &model.Not{X: p}}, Negate: true}, nil
	case "Contains":
		if len(n.Args) != 1 {
			return nil, query.Errorf(op, query.ErrInvalidArgument, "Contains takes one argument")
		}
		v, err := b.value(n.Args[0])
		if err != nil {
			return nil, err
		}
		return b.memberOfQuery(op, s, v)
	}
	if err := b.require(sqlgen.FeatureScalarSubqueries, op, "scalar subqueries"); err != nil {
		return nil, err
	}
	if fn, ok := foldable[n.Method]; ok {
		agg, col, err := b.aggregate(n, fn, s)
		if err != nil {
			return nil, err
		}
		var x model.Scalar = &model.Subquery{Query: agg, T: col.Type}
		if n.Method == "Sum" {
			x = coalesceZero(x)
		}
		return x, nil
	}
	// First, Single and their defaults.
	if err := b.where(op, s, n.Args); err != nil {
		return nil, err
	}
	x, err := scalarOf(op, s.shape)
	if err != nil {
		return nil, query.Errorf(op, query.ErrNotSupported, "%s of a non-scalar sequence inside a query", op)
	}
	col := b.column("Value", x.Type(), true)
	one := &model.Page{Child: s.node, Take: &model.Literal{Value: int64(1), T: schema.TypeInt64}}
	return &model.Subquery{Query: &model.Project{Child: one, Cols: []model.ProjectColumn{{Column: col, Expr: x}}}, T: x.Type()}, nil
}

func coalesceZero(x model.Scalar) model.Scalar {
	return &model.Func{Name: model.FnCoalesce, Args: []model.Scalar{x, &model.Literal{Value: int64(0), T: x.Type()}}, T: x.Type()}
}

// where applies an optional predicate argument to s.
func (b *builder) where(op string, s *seq, args []expr.Node) error {
	if len(args) == 0 {
		return nil
	}
	if len(args) > 1 {
		return query.Errorf(op, query.ErrInvalidArgument, "%s takes at most one predicate", op)
	}
	p, err := b.applyPredicate(op, args[0], s.arg())
	if err != nil {
		return err
	}
	s.node = &model.Filter{Child: s.node, Pred: p}
	return nil
}

// aggregate builds an Aggregate node computing fn over s.
func (b *builder) aggregate(n *expr.Call, fn model.AggFunc, s *seq) (*model.Aggregate, model.Column, error) {
	a, err := b.aggColumn(n, fn, s.arg())
	if err != nil {
		return nil, model.Column{}, err
	}
	if fn == model.AggCount && len(n.Args) == 1 {
		s.node = &model.Filter{Child: s.node, Pred: a.Where}
		a.Where = nil
	}
	return &model.Aggregate{Child: s.node, Aggs: []*model.AggColumn{a}}, a.Column, nil
}

// aggColumn translates the argument of an aggregate over elements bound to
// elem: a predicate for counts, a selector otherwise.
func (b *builder) aggColumn(n *expr.Call, fn model.AggFunc, elem lambdaArg) (*model.AggColumn, error) {
	op := n.Method
	if len(n.Args) > 1 {
		return nil, query.Errorf(op, query.ErrInvalidArgument, "%s takes at most one argument", op)
	}
	if fn == model.AggCount {
		t := schema.TypeInt32
		if n.Method == "LongCount" {
			t = schema.TypeInt64
		}
		a := &model.AggColumn{Column: b.column("Count", t, false), Func: fn}
		if len(n.Args) == 1 {
			p, err := b.applyPredicate(op, n.Args[0], elem)
			if err != nil {
				return nil, err
			}
			a.Where = p
		}
		return a, nil
	}
	var x model.Scalar
	var err error
	if len(n.Args) == 1 {
		x, err = b.applyScalar(op, n.Args[0], elem)
	} else {
		x, err = scalarOf(op, elem.shape)
	}
	if err != nil {
		return nil, err
	}
	t := x.Type()
	switch {
	case !t.IsNumeric() && fn != model.AggMin && fn != model.AggMax:
		return nil, query.Errorf(op, query.ErrTypeMismatch, "%s of %s values", op, t)
	case fn == model.AggAvg && t != schema.TypeDecimal:
		if t != schema.TypeFloat64 {
			x = &model.Cast{X: x, To: schema.TypeFloat64}
		}
		t = schema.TypeFloat64
	}
	return &model.AggColumn{Column: b.column(op, t, true), Func: fn, Arg: x}, nil
}
