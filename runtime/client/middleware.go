package client

import (
	"context"
	"time"
)

// QueryEvent describes one query execution as it passes the middleware
// chain. Fields after Start are filled in while the query runs.
type QueryEvent struct {
	// Query is the canonical print of the normalized expression.
	Query       string
	Fingerprint uint64
	CacheHit    bool
	// SQL is the text of the root command with positional placeholders.
	SQL      string
	Result   any
	Error    error
	Start    time.Time
	End      time.Time
	Duration time.Duration
}

// Middleware intercepts query executions. It must call next to run the
// query and return its error, possibly wrapped.
type Middleware func(ctx context.Context, event *QueryEvent, next func() error) error

// runChain runs exec through middlewares in registration order.
func runChain(ctx context.Context, middlewares []Middleware, event *QueryEvent, exec func() error) error {
	event.Start = time.Now()
	finish := func() error {
		err := exec()
		event.End = time.Now()
		event.Duration = event.End.Sub(event.Start)
		event.Error = err
		return err
	}
	if len(middlewares) == 0 {
		return finish()
	}

	var next func() error
	index := 0
	next = func() error {
		if index >= len(middlewares) {
			return finish()
		}
		m := middlewares[index]
		index++
		return m(ctx, event, next)
	}
	return next()
}

// LoggingMiddleware logs each query and its outcome.
func LoggingMiddleware(logger func(format string, args ...any)) Middleware {
	return func(ctx context.Context, event *QueryEvent, next func() error) error {
		err := next()
		if err != nil {
			logger("query %s failed: %v", event.Query, err)
		} else {
			logger("query %s completed in %v (cache hit: %t)", event.Query, event.Duration, event.CacheHit)
		}
		return err
	}
}

// TimingMiddleware reports the duration of every query.
func TimingMiddleware(onTiming func(query string, duration time.Duration)) Middleware {
	return func(ctx context.Context, event *QueryEvent, next func() error) error {
		err := next()
		if onTiming != nil {
			onTiming(event.Query, event.Duration)
		}
		return err
	}
}

// ErrorMiddleware reports failed queries.
func ErrorMiddleware(onError func(query string, err error)) Middleware {
	return func(ctx context.Context, event *QueryEvent, next func() error) error {
		err := next()
		if err != nil && onError != nil {
			onError(event.Query, err)
		}
		return err
	}
}
