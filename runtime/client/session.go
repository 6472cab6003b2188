package client

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"strings"

	"github.com/satishbabariya/queryable/internal/debug"
	"github.com/satishbabariya/queryable/query/executor"
	"github.com/satishbabariya/queryable/query/expr"
	"github.com/satishbabariya/queryable/query/linq"
	"github.com/satishbabariya/queryable/runtime/types"
	"github.com/satishbabariya/queryable/schema"
)

// ErrTransactionOpen is returned when a session already runs a transaction.
var ErrTransactionOpen = errors.New("session already has an open transaction")

// Session is a unit of work over a domain. A session is not safe for
// concurrent use; open one per goroutine.
type Session struct {
	domain *Domain
	tx     *Transaction
}

// Domain returns the domain the session belongs to.
func (s *Session) Domain() *Domain { return s.domain }

// Query returns the query endpoint of the session.
func (s *Session) Query() *Endpoint { return &Endpoint{s: s} }

// Transaction returns the open transaction, or nil.
func (s *Session) Transaction() *Transaction { return s.tx }

func (s *Session) executor() *executor.Executor {
	d := s.domain
	var e *executor.Executor
	if s.tx != nil {
		e = executor.NewTxExecutor(s.tx.tx, d.dialect)
	} else {
		e = executor.NewExecutor(d.db, d.dialect)
	}
	return e.WithLoader(s)
}

// LoadEntity fetches the entity of type t with the given key, or nil when
// none exists. It resolves lazy references.
func (s *Session) LoadEntity(ctx context.Context, t *schema.TypeInfo, key []any) (*types.Entity, error) {
	keys := t.Keys()
	if len(keys) != len(key) {
		return nil, fmt.Errorf("%s has %d key fields, got %d values", t.Name, len(keys), len(key))
	}
	conds := make([]expr.Node, len(keys))
	for i, k := range keys {
		if key[i] == nil {
			return nil, fmt.Errorf("key %s of %s is nil", k.Name, t.Name)
		}
		// a captured key keeps one cached command per type
		ptr := reflect.New(reflect.TypeOf(key[i]))
		ptr.Elem().Set(reflect.ValueOf(key[i]))
		conds[i] = expr.Eq(expr.Prop(expr.Param("e"), k.Name), expr.Var("key."+k.Name, ptr.Interface()))
	}
	q := linq.All(t.Name).Where(expr.Fn1("e", expr.And(conds[0], conds[1:]...))).SingleOrDefault()
	v, err := s.Query().Run(ctx, q)
	if err != nil {
		return nil, err
	}
	e, _ := v.(*types.Entity)
	return e, nil
}

var _ types.Loader = (*Session)(nil)

// Insert writes e to every table storing its type. It is meant for seeding;
// there is no change tracking.
func (s *Session) Insert(ctx context.Context, e *types.Entity) error {
	if e == nil || e.Type == nil {
		return fmt.Errorf("client: insert of a nil entity")
	}
	t := e.Type
	if !t.IsEntity() || t.Abstract {
		return fmt.Errorf("client: cannot insert %s: not a concrete entity", t.Name)
	}
	d := s.domain.dialect
	byName := make(map[string]schema.Column)
	for _, f := range t.Fields() {
		for _, c := range f.Columns() {
			byName[c.Name] = c
		}
	}
	exec := s.executor()
	for _, tbl := range storageTables(t) {
		var cols []string
		var args []any
		for _, col := range tbl.Columns {
			var v any
			if col.Name == schema.TypeIDColumn {
				v = int32(t.TypeID)
			} else {
				c, ok := byName[col.Name]
				if !ok {
					continue
				}
				v = columnValue(e, c.Path)
			}
			bound, err := d.BindValue(v)
			if err != nil {
				return fmt.Errorf("column %s: %w", col.Name, err)
			}
			if bound == nil && !col.Nullable {
				if col.Key {
					return fmt.Errorf("client: cannot insert %s: key column %s is not set", t.Name, col.Name)
				}
				// unset non-nullable fields hold the zero value of their type
				if bound, err = d.BindValue(zeroValue(col.Type)); err != nil {
					return fmt.Errorf("column %s: %w", col.Name, err)
				}
			}
			cols = append(cols, col.Name)
			args = append(args, bound)
		}
		stmt := d.Insert(tbl.Name, cols)
		debug.Debug("insert", "type", t.Name, "table", tbl.Name)
		if _, err := exec.Exec(ctx, stmt, args...); err != nil {
			return fmt.Errorf("failed to insert %s into %s: %w", t.Name, tbl.Name, err)
		}
	}
	return nil
}

func zeroValue(t schema.ValueType) any {
	if t == schema.TypeBytes {
		return []byte{}
	}
	if gt := t.GoType(); gt != nil {
		return reflect.Zero(gt).Interface()
	}
	return nil
}

// storageTables lists the tables a row of t is written to, root first.
func storageTables(t *schema.TypeInfo) []*schema.Table {
	switch t.Scheme() {
	case schema.SingleTable:
		return t.Root().OwnTables()
	case schema.ConcreteTable:
		return t.OwnTables()
	}
	var out []*schema.Table
	for _, a := range t.Ancestors() {
		out = append(out, a.OwnTables()...)
	}
	return out
}

// columnValue follows path through entities, structures and references.
func columnValue(e *types.Entity, path []string) any {
	var v any = e
	for _, name := range path {
		switch x := v.(type) {
		case *types.Entity:
			if x == nil {
				return nil
			}
			v = x.Get(name)
		case *types.Structure:
			if x == nil {
				return nil
			}
			v = x.Get(name)
		case *types.Ref:
			if x == nil {
				return nil
			}
			v = nil
			for i, k := range x.Type.Keys() {
				if strings.EqualFold(k.Name, name) && i < len(x.KeyVal) {
					v = x.KeyVal[i]
				}
			}
		default:
			return nil
		}
	}
	return v
}
