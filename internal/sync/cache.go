package sync

import (
	"context"
	gosync "sync"

	"golang.org/x/sync/singleflight"
)

type memoEntry[V any] struct {
	v   V
	err error
}

// memo is a run-scoped lookup cache. Each key is fetched at most once per
// run: concurrent callers share one flight, and the outcome, value or error,
// is kept for later callers.
type memo[V any] struct {
	mu      gosync.Mutex
	entries map[string]memoEntry[V]
	group   singleflight.Group
	fetch   func(ctx context.Context, key string) (V, error)
}

func newMemo[V any](fetch func(ctx context.Context, key string) (V, error)) *memo[V] {
	return &memo[V]{entries: make(map[string]memoEntry[V]), fetch: fetch}
}

func (m *memo[V]) get(ctx context.Context, key string) (V, error) {
	if e, ok := m.lookup(key); ok {
		return e.v, e.err
	}
	res, _, _ := m.group.Do(key, func() (any, error) {
		// a flight that just finished may have filled the entry
		if e, ok := m.lookup(key); ok {
			return e, nil
		}
		v, err := m.fetch(ctx, key)
		e := memoEntry[V]{v: v, err: err}
		m.mu.Lock()
		m.entries[key] = e
		m.mu.Unlock()
		return e, nil
	})
	e := res.(memoEntry[V])
	return e.v, e.err
}

func (m *memo[V]) lookup(key string) (memoEntry[V], bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.entries[key]
	return e, ok
}

// fetched counts keys looked up, failed or not.
func (m *memo[V]) fetched() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.entries)
}
