package client

import (
	"context"
	"fmt"
	"time"

	"github.com/satishbabariya/queryable/internal/debug"
	"github.com/satishbabariya/queryable/query"
	"github.com/satishbabariya/queryable/query/builder"
	"github.com/satishbabariya/queryable/query/cache"
	"github.com/satishbabariya/queryable/query/compiler"
	"github.com/satishbabariya/queryable/query/expr"
	"github.com/satishbabariya/queryable/query/linq"
	"github.com/satishbabariya/queryable/query/normalize"
)

// Endpoint runs queries for a session.
type Endpoint struct {
	s *Session
}

// AsyncResult is the outcome of ExecuteAsync.
type AsyncResult struct {
	Value any
	Err   error
}

// Translation is the SQL a query compiles to.
type Translation struct {
	Query       string
	Fingerprint uint64
	SQL         string
	// Nested holds the per-row commands of sequence-valued results.
	Nested      []string
	Cardinality builder.Cardinality
	Parameters  []int
	// Bindings names the captured value behind each binding index.
	Bindings []string
	CacheHit bool
}

// All is the sequence of every instance of typeName.
func (e *Endpoint) All(typeName string) linq.Query { return linq.All(typeName) }

// Run translates q (through the compiled-query cache) and executes it. A
// sequence yields []any; terminal operators yield a single value.
func (e *Endpoint) Run(ctx context.Context, q linq.Expr) (any, error) {
	if q == nil {
		return nil, query.Errorf("run", query.ErrNilArgument, "query is nil")
	}
	return e.RunExpr(ctx, q.Node())
}

// Execute builds the query with build and runs it. Every call re-reads the
// values the query captures, so one build function can serve many calls
// while being translated once.
func (e *Endpoint) Execute(ctx context.Context, build func(*Endpoint) linq.Expr) (any, error) {
	if build == nil {
		return nil, query.Errorf("execute", query.ErrNilArgument, "query builder is nil")
	}
	return e.Run(ctx, build(e))
}

// ExecuteAsync is Execute on a new goroutine. The channel receives exactly
// one result and is then closed.
func (e *Endpoint) ExecuteAsync(ctx context.Context, build func(*Endpoint) linq.Expr) <-chan AsyncResult {
	out := make(chan AsyncResult, 1)
	go func() {
		defer close(out)
		v, err := e.Execute(ctx, build)
		out <- AsyncResult{Value: v, Err: err}
	}()
	return out
}

// RunExpr runs an expression tree, such as one read by the query parser.
func (e *Endpoint) RunExpr(ctx context.Context, n expr.Node) (any, error) {
	d := e.s.domain
	event := &QueryEvent{}
	var out any
	err := runChain(ctx, d.chain(), event, func() error {
		r, cmd, hit, err := e.prepare(n)
		if r != nil {
			event.Query = r.Text
			event.Fingerprint = r.Fingerprint
		}
		event.CacheHit = hit
		if err != nil {
			return err
		}
		event.SQL = cmd.Template.Text(d.dialect)

		values, err := r.Values()
		if err != nil {
			return fmt.Errorf("failed to read captured values: %w", err)
		}
		start := time.Now()
		out, err = e.s.executor().Run(ctx, cmd, values)
		d.telemetry.RecordExecution(time.Since(start), err)
		event.Result = out
		return err
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// Translate compiles q without running it.
func (e *Endpoint) Translate(q linq.Expr) (*Translation, error) {
	if q == nil {
		return nil, query.Errorf("translate", query.ErrNilArgument, "query is nil")
	}
	return e.TranslateExpr(q.Node())
}

// TranslateExpr compiles an expression tree without running it.
func (e *Endpoint) TranslateExpr(n expr.Node) (*Translation, error) {
	r, cmd, hit, err := e.prepare(n)
	if err != nil {
		return nil, err
	}
	d := e.s.domain.dialect
	t := &Translation{
		Query:       r.Text,
		Fingerprint: r.Fingerprint,
		SQL:         cmd.Template.Text(d),
		Cardinality: cmd.Cardinality,
		Parameters:  cmd.Parameters,
		CacheHit:    hit,
	}
	for _, b := range r.Bindings {
		t.Bindings = append(t.Bindings, b.Name)
	}
	for _, nested := range cmd.Nested {
		t.Nested = append(t.Nested, nested.Template.Text(d))
	}
	return t, nil
}

// prepare normalizes n and fetches its command from the cache, compiling it
// on a miss. Queries that fail to normalize never reach the cache.
func (e *Endpoint) prepare(n expr.Node) (*normalize.Result, *compiler.Command, bool, error) {
	d := e.s.domain
	r, err := normalize.Normalize(n)
	if err != nil {
		debug.Debug("query rejected", "error", err)
		d.telemetry.RecordTranslation(false, 0, err)
		return nil, nil, false, err
	}
	key := cache.Key(d.dialect.Provider(), d.dialect.Version().String(), r.Fingerprint)
	start := time.Now()
	cmd, hit, err := d.cache.GetOrCompile(key, r.Text, func() (*compiler.Command, error) {
		q, err := builder.Build(r, builder.Options{Model: d.model, Features: d.dialect.Features()})
		if err != nil {
			return nil, err
		}
		return compiler.Compile(q, d.dialect)
	})
	elapsed := time.Since(start)
	d.telemetry.RecordTranslation(hit, elapsed, err)
	if err != nil {
		debug.Debug("translation failed", "query", r.Text, "error", err)
		return r, nil, false, query.Wrap("translate", r.Text, err)
	}
	if !hit {
		debug.Debug("query compiled", "fingerprint", fmt.Sprintf("%016x", r.Fingerprint), "elapsed", elapsed)
	}
	return r, cmd, hit, nil
}
