// Package cachemap provides a keyed container that additionally keeps a
// chronological order of last access, so the oldest-touched entry is O(1)
// to find and any entry can be refreshed or erased in O(1) given a handle.
package cachemap

import (
	"container/list"
	"time"
)

type entry[K comparable, V any] struct {
	key        K
	value      V
	accessTime time.Time
}

// Handle references a live entry. It stays valid until the entry is erased.
type Handle[K comparable, V any] struct {
	el *list.Element
}

func (h Handle[K, V]) Key() K                { return h.el.Value.(*entry[K, V]).key }
func (h Handle[K, V]) Value() V              { return h.el.Value.(*entry[K, V]).value }
func (h Handle[K, V]) AccessTime() time.Time { return h.el.Value.(*entry[K, V]).accessTime }

// Map is a key/value store with a doubly-linked access-order list.
// The list front is the oldest-touched entry, the back is the newest.
type Map[K comparable, V any] struct {
	items map[K]*list.Element
	order *list.List

	now func() time.Time
}

func New[K comparable, V any]() *Map[K, V] {
	return &Map[K, V]{
		items: make(map[K]*list.Element),
		order: list.New(),
		now:   time.Now,
	}
}

// Insert adds the entry stamped with the current time at the newest end.
// If the key is already present nothing happens: the value is a pure
// function of the key, so a collision carries identical content.
func (m *Map[K, V]) Insert(key K, value V) {
	if _, ok := m.items[key]; ok {
		return
	}
	el := m.order.PushBack(&entry[K, V]{key: key, value: value, accessTime: m.now()})
	m.items[key] = el
}

// Lookup finds an entry by key without touching its access time.
func (m *Map[K, V]) Lookup(key K) (Handle[K, V], bool) {
	el, ok := m.items[key]
	if !ok {
		return Handle[K, V]{}, false
	}
	return Handle[K, V]{el: el}, true
}

// UpdateAccessTime stamps the entry with the current time and splices it
// to the newest end of the access order.
func (m *Map[K, V]) UpdateAccessTime(h Handle[K, V]) {
	h.el.Value.(*entry[K, V]).accessTime = m.now()
	m.order.MoveToBack(h.el)
}

// Erase removes the entry and its order node. The handle becomes invalid.
func (m *Map[K, V]) Erase(h Handle[K, V]) {
	delete(m.items, h.Key())
	m.order.Remove(h.el)
}

// Oldest returns a handle on the entry with the least recent access time.
func (m *Map[K, V]) Oldest() (Handle[K, V], bool) {
	el := m.order.Front()
	if el == nil {
		return Handle[K, V]{}, false
	}
	return Handle[K, V]{el: el}, true
}

func (m *Map[K, V]) Size() int   { return len(m.items) }
func (m *Map[K, V]) Empty() bool { return len(m.items) == 0 }

// Clear drops every entry.
func (m *Map[K, V]) Clear() {
	m.items = make(map[K]*list.Element)
	m.order.Init()
}
