// Package memstore is an in-process implementation of the store capability,
// used by tests and local development. Transactions are serialized on a
// single lock, which trivially satisfies the isolation the relationship
// engine requires.
package memstore

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"fanlink/backend/internal/store"
)

// MemStore holds all documents in memory, keyed by full path
type MemStore struct {
	mu   sync.Mutex
	docs map[string]map[string]any
	seq  map[string]int64 // creation order, used as the tie-break for equal sort keys
	next int64
}

// New creates an empty in-memory store
func New() *MemStore {
	return &MemStore{
		docs: make(map[string]map[string]any),
		seq:  make(map[string]int64),
	}
}

var _ store.Store = (*MemStore)(nil)

func (m *MemStore) Get(ctx context.Context, path string) (*store.Document, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.getLocked(path)
}

func (m *MemStore) getLocked(path string) (*store.Document, error) {
	data, ok := m.docs[path]
	if !ok {
		return nil, store.ErrNotFound
	}
	return &store.Document{Path: path, ID: lastSegment(path), Data: cloneData(data)}, nil
}

func (m *MemStore) Set(ctx context.Context, path string, data map[string]any, merge bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.setLocked(path, data, merge)
	return nil
}

func (m *MemStore) setLocked(path string, data map[string]any, merge bool) {
	existing, ok := m.docs[path]
	if !ok {
		existing = make(map[string]any)
		m.next++
		m.seq[path] = m.next
	} else if !merge {
		existing = make(map[string]any)
	}
	applyFields(existing, m.docs[path], data)
	m.docs[path] = existing
}

func (m *MemStore) Update(ctx context.Context, path string, updates map[string]any) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.updateLocked(path, updates)
}

func (m *MemStore) updateLocked(path string, updates map[string]any) error {
	existing, ok := m.docs[path]
	if !ok {
		return store.ErrNotFound
	}
	applyFields(existing, existing, updates)
	return nil
}

func (m *MemStore) Delete(ctx context.Context, path string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.deleteLocked(path)
	return nil
}

func (m *MemStore) deleteLocked(path string) {
	delete(m.docs, path)
	delete(m.seq, path)
}

// RunTransaction serializes the whole transaction under the store lock.
// Writes are buffered and applied only if fn returns nil, so a failed
// transaction leaves no partial state.
func (m *MemStore) RunTransaction(ctx context.Context, fn func(tx store.Txn) error) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	tx := &memTxn{store: m}
	if err := fn(tx); err != nil {
		return err
	}
	for _, w := range tx.writes {
		w()
	}
	return nil
}

func (m *MemStore) Query(collection string) store.Query {
	return &memQuery{store: m, collection: collection, limit: -1}
}

func (m *MemStore) Close() error { return nil }

// memTxn buffers writes until commit; reads see the committed state only
type memTxn struct {
	store  *MemStore
	writes []func()
}

var _ store.Txn = (*memTxn)(nil)

func (t *memTxn) Get(path string) (*store.Document, error) {
	return t.store.getLocked(path)
}

func (t *memTxn) Set(path string, data map[string]any, merge bool) error {
	t.writes = append(t.writes, func() { t.store.setLocked(path, data, merge) })
	return nil
}

func (t *memTxn) Update(path string, updates map[string]any) error {
	t.writes = append(t.writes, func() { _ = t.store.updateLocked(path, updates) })
	return nil
}

func (t *memTxn) Delete(path string) error {
	t.writes = append(t.writes, func() { t.store.deleteLocked(path) })
	return nil
}

// memQuery filters the direct children of a collection path
type memQuery struct {
	store      *MemStore
	collection string
	filters    []filter
	orderField string
	orderDir   store.Direction
	ordered    bool
	limit      int
}

type filter struct {
	field string
	op    string
	value any
}

var _ store.Query = (*memQuery)(nil)

func (q *memQuery) Where(field, op string, value any) store.Query {
	cp := *q
	cp.filters = append(append([]filter{}, q.filters...), filter{field, op, value})
	return &cp
}

func (q *memQuery) OrderBy(field string, dir store.Direction) store.Query {
	cp := *q
	cp.orderField = field
	cp.orderDir = dir
	cp.ordered = true
	return &cp
}

func (q *memQuery) Limit(n int) store.Query {
	cp := *q
	cp.limit = n
	return &cp
}

func (q *memQuery) Documents(ctx context.Context) ([]*store.Document, error) {
	q.store.mu.Lock()
	defer q.store.mu.Unlock()

	prefix := q.collection + "/"
	var out []*store.Document
	for path, data := range q.store.docs {
		if !strings.HasPrefix(path, prefix) {
			continue
		}
		if strings.Contains(path[len(prefix):], "/") {
			continue // not a direct child
		}
		if !q.matches(data) {
			continue
		}
		out = append(out, &store.Document{Path: path, ID: lastSegment(path), Data: cloneData(data)})
	}

	sort.Slice(out, func(i, j int) bool {
		if q.ordered {
			c := compareValues(out[i].Data[q.orderField], out[j].Data[q.orderField])
			if c != 0 {
				if q.orderDir == store.Desc {
					return c > 0
				}
				return c < 0
			}
		}
		return q.store.seq[out[i].Path] < q.store.seq[out[j].Path]
	})

	if q.limit >= 0 && len(out) > q.limit {
		out = out[:q.limit]
	}
	return out, nil
}

func (q *memQuery) matches(data map[string]any) bool {
	for _, f := range q.filters {
		val, ok := data[f.field]
		switch f.op {
		case "==":
			if !ok || compareValues(val, f.value) != 0 {
				return false
			}
		case "in":
			if !ok || !containsValue(f.value, val) {
				return false
			}
		default:
			// unsupported operator never matches; the adapters only
			// issue == and in
			return false
		}
	}
	return true
}

// helpers

func lastSegment(path string) string {
	idx := strings.LastIndex(path, "/")
	if idx < 0 {
		return path
	}
	return path[idx+1:]
}

func cloneData(data map[string]any) map[string]any {
	out := make(map[string]any, len(data))
	for k, v := range data {
		switch vv := v.(type) {
		case []string:
			out[k] = append([]string{}, vv...)
		case []any:
			out[k] = append([]any{}, vv...)
		default:
			out[k] = v
		}
	}
	return out
}

// applyFields writes updates into dst, resolving increment and delete
// sentinels against the previous field values in prev
func applyFields(dst, prev map[string]any, updates map[string]any) {
	for k, v := range updates {
		switch sv := v.(type) {
		case store.IncrementValue:
			var cur int64
			if prev != nil {
				cur = toInt64(prev[k])
			}
			dst[k] = cur + sv.N
		case store.DeleteValue:
			delete(dst, k)
		default:
			dst[k] = v
		}
	}
}

func toInt64(v any) int64 {
	switch n := v.(type) {
	case int:
		return int64(n)
	case int64:
		return n
	case float64:
		return int64(n)
	default:
		return 0
	}
}

func compareValues(a, b any) int {
	switch av := a.(type) {
	case nil:
		if b == nil {
			return 0
		}
		return -1
	case string:
		bv, ok := b.(string)
		if !ok {
			return -1
		}
		return strings.Compare(av, bv)
	case bool:
		bv, ok := b.(bool)
		if !ok {
			return -1
		}
		if av == bv {
			return 0
		}
		if av {
			return 1
		}
		return -1
	case time.Time:
		bv, ok := b.(time.Time)
		if !ok {
			return -1
		}
		return av.Compare(bv)
	case int, int64, float64:
		an := toFloat64(a)
		bn, ok := numeric(b)
		if !ok {
			return -1
		}
		switch {
		case an < bn:
			return -1
		case an > bn:
			return 1
		default:
			return 0
		}
	default:
		// fall back to string formatting for anything exotic
		return strings.Compare(fmt.Sprint(a), fmt.Sprint(b))
	}
}

func toFloat64(v any) float64 {
	f, _ := numeric(v)
	return f
}

func numeric(v any) (float64, bool) {
	switch n := v.(type) {
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case float64:
		return n, true
	default:
		return 0, false
	}
}

func containsValue(set any, val any) bool {
	switch s := set.(type) {
	case []string:
		sv, ok := val.(string)
		if !ok {
			return false
		}
		for _, item := range s {
			if item == sv {
				return true
			}
		}
	case []any:
		for _, item := range s {
			if compareValues(val, item) == 0 {
				return true
			}
		}
	}
	return false
}
