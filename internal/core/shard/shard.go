// Package shard provides a string-keyed map split over independently locked
// buckets, so unrelated keys never contend on one mutex.
package shard

import (
	"hash/fnv"
	"sync"
)

const bucketCount = 32

type bucket[V any] struct {
	mu    sync.Mutex
	items map[string]V
}

type Map[V any] struct {
	buckets [bucketCount]*bucket[V]
}

func New[V any]() *Map[V] {
	m := &Map[V]{}
	for i := range m.buckets {
		m.buckets[i] = &bucket[V]{items: make(map[string]V)}
	}
	return m
}

func (m *Map[V]) bucketFor(key string) *bucket[V] {
	h := fnv.New32a()
	_, _ = h.Write([]byte(key))
	return m.buckets[h.Sum32()%bucketCount]
}

// Update runs fn under the key's bucket lock. fn receives the current value
// and whether it exists; it returns the new value and whether to keep it.
// Returning keep=false removes the key.
func (m *Map[V]) Update(key string, fn func(current V, ok bool) (V, bool)) V {
	b := m.bucketFor(key)
	b.mu.Lock()
	defer b.mu.Unlock()

	current, ok := b.items[key]
	next, keep := fn(current, ok)
	if keep {
		b.items[key] = next
	} else {
		delete(b.items, key)
	}
	return next
}

func (m *Map[V]) Load(key string) (V, bool) {
	b := m.bucketFor(key)
	b.mu.Lock()
	defer b.mu.Unlock()
	v, ok := b.items[key]
	return v, ok
}

func (m *Map[V]) Store(key string, v V) {
	b := m.bucketFor(key)
	b.mu.Lock()
	b.items[key] = v
	b.mu.Unlock()
}

func (m *Map[V]) Delete(key string) {
	b := m.bucketFor(key)
	b.mu.Lock()
	delete(b.items, key)
	b.mu.Unlock()
}

// Clear drops every entry. Buckets are cleared one at a time.
func (m *Map[V]) Clear() {
	for _, b := range m.buckets {
		b.mu.Lock()
		b.items = make(map[string]V)
		b.mu.Unlock()
	}
}

func (m *Map[V]) Len() int {
	n := 0
	for _, b := range m.buckets {
		b.mu.Lock()
		n += len(b.items)
		b.mu.Unlock()
	}
	return n
}
