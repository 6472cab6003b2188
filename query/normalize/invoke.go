package normalize

import (
	"fmt"
	"reflect"
	"sort"
	"strings"

	"github.com/satishbabariya/queryable/query"
	"github.com/satishbabariya/queryable/query/expr"
)

var errorType = reflect.TypeOf((*error)(nil)).Elem()

// invoke turns a call of an external function into a computed binding. The
// call must not depend on lambda parameters: it is evaluated once per
// execution, outside the database.
func (nz *normalizer) invoke(n *expr.Invocation) (expr.Node, error) {
	if free := expr.FreeParams(n); len(free) > 0 {
		names := make([]string, 0, len(free))
		for name := range free {
			names = append(names, name)
		}
		sort.Strings(names)
		return nil, query.Errorf(op, query.ErrNotSupported,
			"%s cannot be called with arguments derived from the query (%s)", n.Name, strings.Join(names, ", "))
	}
	eval, err := closureOf(n)
	if err != nil {
		return nil, err
	}
	ft := reflect.TypeOf(n.Fn)
	rt := ft.Out(0)
	if !IsParameterizable(rt) && !IsSequence(rt) {
		return nil, query.Errorf(op, query.ErrNotSupported, "%s returns unsupported type %s", n.Name, rt)
	}
	return nz.bind("", &Binding{Name: n.Name, Type: rt, eval: eval}), nil
}

// closureOf compiles a parameter-free expression into a function evaluated at
// execution time.
func closureOf(n expr.Node) (func() (any, error), error) {
	switch n := n.(type) {
	case *expr.Constant:
		v := n.Value
		return func() (any, error) { return v, nil }, nil
	case *expr.Capture, *expr.Member:
		c, ok := collapse(n)
		if !ok {
			break
		}
		if t := c.RootType(); !IsParameterizable(t) && !IsSequence(t) {
			return nil, query.Errorf(op, query.ErrNotSupported, "captured %s has unsupported type %s", c.Name, t)
		}
		return c.Value, nil
	case *expr.Invocation:
		ft := reflect.TypeOf(n.Fn)
		switch {
		case ft.NumOut() == 1:
		case ft.NumOut() == 2 && ft.Out(1) == errorType:
		default:
			return nil, query.Errorf(op, query.ErrNotSupported, "%s must return a value and optionally an error", n.Name)
		}
		if ft.IsVariadic() || ft.NumIn() != len(n.Args) {
			return nil, query.Errorf(op, query.ErrInvalidArgument, "%s takes %d arguments, got %d", n.Name, ft.NumIn(), len(n.Args))
		}
		args := make([]func() (any, error), len(n.Args))
		for i, a := range n.Args {
			f, err := closureOf(a)
			if err != nil {
				return nil, err
			}
			args[i] = f
		}
		fv := reflect.ValueOf(n.Fn)
		name := n.Name
		return func() (any, error) {
			in := make([]reflect.Value, len(args))
			for i, f := range args {
				v, err := f()
				if err != nil {
					return nil, err
				}
				in[i], err = argValue(v, ft.In(i))
				if err != nil {
					return nil, fmt.Errorf("%s argument %d: %w", name, i, err)
				}
			}
			out := fv.Call(in)
			if len(out) == 2 && !out[1].IsNil() {
				return nil, out[1].Interface().(error)
			}
			return out[0].Interface(), nil
		}, nil
	}
	return nil, query.Errorf(op, query.ErrNotSupported, "argument %s cannot be evaluated outside the query", n)
}

func argValue(v any, want reflect.Type) (reflect.Value, error) {
	if v == nil {
		return reflect.Zero(want), nil
	}
	rv := reflect.ValueOf(v)
	switch {
	case rv.Type().AssignableTo(want):
		return rv, nil
	case rv.Type().ConvertibleTo(want):
		return rv.Convert(want), nil
	}
	return reflect.Value{}, fmt.Errorf("cannot use %s as %s", rv.Type(), want)
}
