package cache

import (
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/satishbabariya/queryable/internal/debug"
	"github.com/satishbabariya/queryable/query/compiler"
)

// DefaultSize is the compiled-query capacity used when none is configured.
const DefaultSize = 512

type entry struct {
	// text is the canonical expression print; it guards against two shapes
	// sharing a fingerprint.
	text string
	cmd  *compiler.Command
}

// QueryCache maps expression fingerprints to compiled commands.
type QueryCache struct {
	lru   *LRUCache
	group singleflight.Group
}

// NewQueryCache returns a cache holding at most size commands. A positive
// ttl drops commands that long after they were compiled.
func NewQueryCache(size int, ttl time.Duration) *QueryCache {
	if size == 0 {
		size = DefaultSize
	}
	return &QueryCache{lru: NewLRUCache(size, ttl)}
}

// GetOrCompile returns the command cached under key or compiles and inserts
// it. Concurrent callers with the same key share one compilation. The
// boolean reports a cache hit. Failed compilations are not cached.
func (q *QueryCache) GetOrCompile(key, text string, compile func() (*compiler.Command, error)) (*compiler.Command, bool, error) {
	if v, ok := q.lru.Get(key); ok {
		e := v.(*entry)
		if e.text == text {
			debug.Debug("query cache hit", "key", key)
			return e.cmd, true, nil
		}
		debug.Warn("query cache fingerprint collision", "key", key)
		cmd, err := compile()
		return cmd, false, err
	}
	v, err, shared := q.group.Do(key, func() (any, error) {
		if v, ok := q.lru.Get(key); ok {
			return v, nil
		}
		cmd, err := compile()
		if err != nil {
			return nil, err
		}
		e := &entry{text: text, cmd: cmd}
		q.lru.Set(key, e, 0)
		return e, nil
	})
	if err != nil {
		return nil, false, err
	}
	e := v.(*entry)
	if e.text != text {
		cmd, err := compile()
		return cmd, false, err
	}
	debug.Debug("query cache miss", "key", key, "shared", shared)
	return e.cmd, false, nil
}

// Count is the number of cached commands.
func (q *QueryCache) Count() int { return q.lru.Len() }

// Stats returns the statistics of the underlying store.
func (q *QueryCache) Stats() Stats { return q.lru.GetStats() }

// Clear drops every cached command.
func (q *QueryCache) Clear() { q.lru.Clear() }

// Invalidate drops the commands whose keys match pattern, for example
// "sqlite:*:*".
func (q *QueryCache) Invalidate(pattern string) int { return q.lru.InvalidatePattern(pattern) }
