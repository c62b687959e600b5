package fetch

import "container/list"

type lruItem[V any] struct {
	key   string
	value V
}

// lru is a capacity-bounded map that drops its least recently used key.
// It is not safe for concurrent use.
type lru[V any] struct {
	capacity int
	items    map[string]*list.Element
	order    *list.List
}

func newLRU[V any](capacity int) *lru[V] {
	return &lru[V]{capacity: capacity, items: make(map[string]*list.Element), order: list.New()}
}

func (l *lru[V]) get(key string) (V, bool) {
	elem, ok := l.items[key]
	if !ok {
		var zero V
		return zero, false
	}
	l.order.MoveToFront(elem)
	return elem.Value.(*lruItem[V]).value, true
}

// peek reads without touching recency.
func (l *lru[V]) peek(key string) (V, bool) {
	elem, ok := l.items[key]
	if !ok {
		var zero V
		return zero, false
	}
	return elem.Value.(*lruItem[V]).value, true
}

func (l *lru[V]) put(key string, value V) {
	if elem, ok := l.items[key]; ok {
		elem.Value.(*lruItem[V]).value = value
		l.order.MoveToFront(elem)
		return
	}
	l.items[key] = l.order.PushFront(&lruItem[V]{key: key, value: value})
	for l.order.Len() > l.capacity {
		back := l.order.Back()
		l.order.Remove(back)
		delete(l.items, back.Value.(*lruItem[V]).key)
	}
}

func (l *lru[V]) remove(key string) {
	if elem, ok := l.items[key]; ok {
		l.order.Remove(elem)
		delete(l.items, key)
	}
}

func (l *lru[V]) size() int { return l.order.Len() }
