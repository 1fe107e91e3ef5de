package archive

import "container/list"

// mru tracks buffer residency order, most-recently-touched at the front.
// Eviction always takes from the back. container/list is used directly
// rather than a third-party LRU cache package because mru never bounds its
// own size or owns eviction policy -- it is pure ordering, and Archive
// drives eviction itself against the byte budget rather than an entry
// count, which general-purpose LRU cache packages are not shaped for.
type mru[K comparable] struct {
	l *list.List
}

func newMRU[K comparable]() *mru[K] {
	return &mru[K]{l: list.New()}
}

// touch moves e to the front, giving it a fresh entry into the list if it
// isn't already tracked.
func (m *mru[K]) touch(e *entry[K]) {
	if e.elem != nil {
		m.l.MoveToFront(e.elem)
		return
	}
	e.elem = m.l.PushFront(e)
}

// remove drops e from residency tracking. Safe to call on an entry that
// isn't currently tracked.
func (m *mru[K]) remove(e *entry[K]) {
	if e.elem == nil {
		return
	}
	m.l.Remove(e.elem)
	e.elem = nil
}

// back returns the least-recently-touched resident entry, or nil if none
// are tracked.
func (m *mru[K]) back() *entry[K] {
	b := m.l.Back()
	if b == nil {
		return nil
	}
	return b.Value.(*entry[K])
}

func (m *mru[K]) len() int {
	return m.l.Len()
}
