package cache

// node is an element of the recency list. It carries the key so that the
// oldest entry can be removed from the index in O(1).
type node[K comparable, V any] struct {
	key   K
	value V
	prev  *node[K, V]
	next  *node[K, V]
}

// recency is a doubly-linked list ordered from most recently used (front)
// to least recently used (back). It is not safe for concurrent use.
type recency[K comparable, V any] struct {
	front *node[K, V]
	back  *node[K, V]
	n     int
}

func (l *recency[K, V]) pushFront(n *node[K, V]) {
	n.prev = nil
	n.next = l.front
	if l.front != nil {
		l.front.prev = n
	}
	l.front = n
	if l.back == nil {
		l.back = n
	}
	l.n++
}

func (l *recency[K, V]) moveToFront(n *node[K, V]) {
	if n == l.front {
		return
	}
	l.remove(n)
	l.pushFront(n)
}

func (l *recency[K, V]) remove(n *node[K, V]) {
	if n.prev != nil {
		n.prev.next = n.next
	} else {
		l.front = n.next
	}
	if n.next != nil {
		n.next.prev = n.prev
	} else {
		l.back = n.prev
	}
	n.prev, n.next = nil, nil
	l.n--
}

// oldest returns the least recently used node, or nil.
func (l *recency[K, V]) oldest() *node[K, V] { return l.back }
