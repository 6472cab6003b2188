// Package executor runs compiled commands and materializes their results.
package executor

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/satishbabariya/queryable/internal/debug"
	"github.com/satishbabariya/queryable/query/builder"
	"github.com/satishbabariya/queryable/query/compiler"
	"github.com/satishbabariya/queryable/query/materialize"
	"github.com/satishbabariya/queryable/query/model"
	"github.com/satishbabariya/queryable/query/sqlgen"
	"github.com/satishbabariya/queryable/runtime/types"
)

var (
	// ErrNoRows is returned by First and Single over an empty result.
	ErrNoRows = errors.New("sequence contains no elements")
	// ErrMoreThanOneRow is returned by Single over more than one row.
	ErrMoreThanOneRow = errors.New("sequence contains more than one element")
)

// Querier is the part of *sql.DB, *sql.Conn and *sql.Tx the executor uses.
type Querier interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

// Executor runs commands against a database or inside a transaction.
type Executor struct {
	db      *sql.DB
	tx      *sql.Tx
	dialect sqlgen.Dialect
	loader  types.Loader
}

// NewExecutor returns an executor drawing connections from db.
func NewExecutor(db *sql.DB, d sqlgen.Dialect) *Executor {
	return &Executor{db: db, dialect: d}
}

// NewTxExecutor returns an executor running every statement in tx.
func NewTxExecutor(tx *sql.Tx, d sqlgen.Dialect) *Executor {
	return &Executor{tx: tx, dialect: d}
}

// WithLoader returns a copy of e whose entity references load through l.
func (e *Executor) WithLoader(l types.Loader) *Executor {
	c := *e
	c.loader = l
	return &c
}

// Dialect is the dialect commands are rendered for.
func (e *Executor) Dialect() sqlgen.Dialect { return e.dialect }

// Run executes cmd with the evaluated query bindings and applies its
// cardinality: Many yields []any, every other cardinality a single value.
func (e *Executor) Run(ctx context.Context, cmd *compiler.Command, values []any) (any, error) {
	q, release, err := e.querier(ctx)
	if err != nil {
		return nil, err
	}
	defer release()

	r := &run{e: e, q: q, root: cmd, values: values}
	items, err := r.materialize(ctx, cmd, nil)
	if err != nil {
		return nil, err
	}
	return applyCardinality(cmd.Cardinality, items)
}

// Exec runs a statement that returns no rows.
func (e *Executor) Exec(ctx context.Context, query string, args ...any) (sql.Result, error) {
	q, release, err := e.querier(ctx)
	if err != nil {
		return nil, err
	}
	defer release()
	debug.Debug("exec", "sql", query, "args", len(args))
	res, err := q.ExecContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("exec failed: %w", err)
	}
	return res, nil
}

// querier pins one connection for the whole run: temporary tables live on
// the connection that created them.
func (e *Executor) querier(ctx context.Context) (Querier, func(), error) {
	if e.tx != nil {
		return e.tx, func() {}, nil
	}
	if e.db == nil {
		return nil, nil, errors.New("executor: no database")
	}
	conn, err := e.db.Conn(ctx)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to acquire connection: %w", err)
	}
	return conn, func() { _ = conn.Close() }, nil
}

func applyCardinality(c builder.Cardinality, items []any) (any, error) {
	switch c {
	case builder.Many:
		return items, nil
	case builder.Scalar:
		if len(items) == 0 {
			return nil, nil
		}
		return items[0], nil
	case builder.First, builder.FirstOrDefault:
		if len(items) == 0 {
			if c == builder.First {
				return nil, ErrNoRows
			}
			return nil, nil
		}
		return items[0], nil
	case builder.Single, builder.SingleOrDefault:
		switch {
		case len(items) > 1:
			return nil, ErrMoreThanOneRow
		case len(items) == 0 && c == builder.Single:
			return nil, ErrNoRows
		case len(items) == 0:
			return nil, nil
		}
		return items[0], nil
	}
	return nil, fmt.Errorf("executor: unknown cardinality %d", c)
}

// run is one execution of a root command and its nested commands.
type run struct {
	e      *Executor
	q      Querier
	root   *compiler.Command
	values []any
}

func (r *run) Loader() types.Loader { return r.e.loader }

func (r *run) Nested(ctx context.Context, index int, outer map[model.ColumnID]any) ([]any, error) {
	if index < 0 || index >= len(r.root.Nested) {
		return nil, fmt.Errorf("executor: no nested command %d", index)
	}
	return r.materialize(ctx, r.root.Nested[index], outer)
}

// materialize reads every row of cmd before building values, so nested
// commands run on the same connection afterwards.
func (r *run) materialize(ctx context.Context, cmd *compiler.Command, outer map[model.ColumnID]any) ([]any, error) {
	rows, err := r.rows(ctx, cmd, outer)
	if err != nil {
		return nil, err
	}
	items := make([]any, 0, len(rows))
	for _, row := range rows {
		v, err := cmd.Plan.Read(ctx, row, r)
		if err != nil {
			return nil, err
		}
		items = append(items, v)
	}
	return items, nil
}

var _ materialize.Env = (*run)(nil)

func (r *run) rows(ctx context.Context, cmd *compiler.Command, outer map[model.ColumnID]any) (out [][]any, err error) {
	d := r.e.dialect
	rendered, err := cmd.Template.Render(d, r.values, outer)
	if err != nil {
		return nil, err
	}
	defer func() {
		for _, stmt := range rendered.Teardown {
			if _, terr := r.q.ExecContext(ctx, stmt); terr != nil {
				debug.Warn("teardown failed", "sql", stmt, "error", terr)
				if err == nil {
					err = fmt.Errorf("teardown failed: %w", terr)
				}
			}
		}
	}()
	for _, s := range rendered.Setup {
		if _, err := r.q.ExecContext(ctx, s.SQL, s.Args...); err != nil {
			return nil, fmt.Errorf("setup failed: %w", err)
		}
	}

	start := time.Now()
	debug.Debug("query", "sql", rendered.SQL, "args", len(rendered.Args))
	rs, err := r.q.QueryContext(ctx, rendered.SQL, rendered.Args...)
	if err != nil {
		return nil, fmt.Errorf("query execution failed: %w", err)
	}
	defer rs.Close()

	if out, err = scanRows(rs, cmd.Columns, d); err != nil {
		return nil, err
	}
	debug.Debug("query done", "rows", len(out), "elapsed", time.Since(start))
	return out, nil
}

// scanRows reads all rows and decodes each column to the Go type of its
// value type.
func scanRows(rs *sql.Rows, cols []model.Column, d sqlgen.Dialect) ([][]any, error) {
	names, err := rs.Columns()
	if err != nil {
		return nil, fmt.Errorf("failed to read columns: %w", err)
	}
	if len(names) != len(cols) {
		return nil, fmt.Errorf("executor: query returned %d columns, expected %d", len(names), len(cols))
	}
	var out [][]any
	for rs.Next() {
		raw := make([]any, len(cols))
		ptrs := make([]any, len(cols))
		for i := range raw {
			ptrs[i] = &raw[i]
		}
		if err := rs.Scan(ptrs...); err != nil {
			return nil, fmt.Errorf("failed to scan row: %w", err)
		}
		row := make([]any, len(cols))
		for i, c := range cols {
			v, err := d.Decode(raw[i], c.Type)
			if err != nil {
				return nil, fmt.Errorf("column %s: %w", c.Name, err)
			}
			row[i] = v
		}
		out = append(out, row)
	}
	if err := rs.Err(); err != nil {
		return nil, fmt.Errorf("row iteration failed: %w", err)
	}
	return out, nil
}
