package docorm

import (
	"iter"
	"maps"
	"slices"
)

// EntityMap is the result of FindAll: entities keyed by the canonical string
// form of their keys, iterated in lexicographic key order.
type EntityMap[T any] struct {
	keys  []string
	items map[string]T
}

func newEntityMap[T any](n int) *EntityMap[T] {
	return &EntityMap[T]{
		keys:  make([]string, 0, n),
		items: make(map[string]T, n),
	}
}

// add must be called in key order.
func (m *EntityMap[T]) add(key string, v T) {
	m.keys = append(m.keys, key)
	m.items[key] = v
}

func (m *EntityMap[T]) Len() int {
	return len(m.keys)
}

func (m *EntityMap[T]) Keys() []string {
	return slices.Clone(m.keys)
}

func (m *EntityMap[T]) Get(key string) (T, bool) {
	v, ok := m.items[key]
	return v, ok
}

// Lookup is Get by typed key.
func (m *EntityMap[T]) Lookup(id Key[T]) (T, bool) {
	return m.Get(id.String())
}

func (m *EntityMap[T]) All() iter.Seq2[string, T] {
	return func(yield func(string, T) bool) {
		for _, k := range m.keys {
			if !yield(k, m.items[k]) {
				return
			}
		}
	}
}

func (m *EntityMap[T]) Values() []T {
	values := make([]T, 0, len(m.keys))
	for _, k := range m.keys {
		values = append(values, m.items[k])
	}
	return values
}

// Map returns a copy of the entities as a plain map.
func (m *EntityMap[T]) Map() map[string]T {
	return maps.Clone(m.items)
}
