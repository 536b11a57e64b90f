// Package keymvqueue provides a FIFO of (key, value) pairs that preserves
// both per-key insertion order and global insertion order, and can extract
// every value stored under one key in a single operation.
package keymvqueue

import (
	"container/list"
	"time"
)

type item[K comparable, V any] struct {
	key      K
	value    V
	storedAt time.Time
}

// Handle references one stored value. Valid until that value is removed.
type Handle[K comparable, V any] struct {
	el *list.Element
}

func (h Handle[K, V]) Key() K              { return h.el.Value.(*item[K, V]).key }
func (h Handle[K, V]) Value() V            { return h.el.Value.(*item[K, V]).value }
func (h Handle[K, V]) StoredAt() time.Time { return h.el.Value.(*item[K, V]).storedAt }

// Queue keeps values in one global insertion-ordered list plus a per-key
// index of the elements belonging to that key, also in insertion order.
type Queue[K comparable, V any] struct {
	order *list.List
	byKey map[K][]*list.Element

	now func() time.Time
}

func New[K comparable, V any]() *Queue[K, V] {
	return &Queue[K, V]{
		order: list.New(),
		byKey: make(map[K][]*list.Element),
		now:   time.Now,
	}
}

// Insert appends the value at the newest end, stamped with the current time.
func (q *Queue[K, V]) Insert(key K, value V) {
	el := q.order.PushBack(&item[K, V]{key: key, value: value, storedAt: q.now()})
	q.byKey[key] = append(q.byKey[key], el)
}

func (q *Queue[K, V]) HasKey(key K) bool {
	return len(q.byKey[key]) > 0
}

// FindFirstForKey returns a handle on the oldest value stored under key.
func (q *Queue[K, V]) FindFirstForKey(key K) (Handle[K, V], bool) {
	els := q.byKey[key]
	if len(els) == 0 {
		return Handle[K, V]{}, false
	}
	return Handle[K, V]{el: els[0]}, true
}

// Oldest returns a handle on the globally oldest (key, value) pair.
func (q *Queue[K, V]) Oldest() (Handle[K, V], bool) {
	el := q.order.Front()
	if el == nil {
		return Handle[K, V]{}, false
	}
	return Handle[K, V]{el: el}, true
}

// Erase removes a single value. The key's other values are untouched.
func (q *Queue[K, V]) Erase(h Handle[K, V]) {
	key := h.Key()
	els := q.byKey[key]
	for i, el := range els {
		if el == h.el {
			els = append(els[:i], els[i+1:]...)
			break
		}
	}
	if len(els) == 0 {
		delete(q.byKey, key)
	} else {
		q.byKey[key] = els
	}
	q.order.Remove(h.el)
}

// ExtractValuesForKey removes every value stored under the handle's key and
// hands them to sink in insertion order. The values are detached from the
// queue before the first sink call, so a panicking sink cannot leave the
// queue in a half-extracted state.
func (q *Queue[K, V]) ExtractValuesForKey(h Handle[K, V], sink func(V)) {
	key := h.Key()
	els := q.byKey[key]
	delete(q.byKey, key)

	values := make([]V, 0, len(els))
	for _, el := range els {
		values = append(values, el.Value.(*item[K, V]).value)
		q.order.Remove(el)
	}
	for _, v := range values {
		sink(v)
	}
}

// UniqueKeys returns the number of distinct keys currently present.
func (q *Queue[K, V]) UniqueKeys() int { return len(q.byKey) }

func (q *Queue[K, V]) Empty() bool { return q.order.Len() == 0 }

func (q *Queue[K, V]) Len() int { return q.order.Len() }
