// File: container/lru.go
// Author: momentics <momentics@gmail.com>
//
// LRUMap is a hash set plus a doubly-linked recency chain through the same
// slots (§3, §4.8). active(key) moves the key to most-recent in O(1) while
// preserving handle stability; disuse(n, pred) evicts from least-recent,
// optionally gated by a predicate that halts eviction (without touching
// further items) the first time it returns false.

package container

type lruNode[K comparable, V any] struct {
	key       K
	value     V
	bucketNx  int
	recPrev   int // 0 = anchor
	recNext   int
}

// LRUMap is a fixed-capacity, handle-stable least-recently-used map.
type LRUMap[K comparable, V any] struct {
	pool    *FixedPool[lruNode[K, V]]
	buckets []int
	hash    func(K) uint64
	// recency chain anchored via a virtual node 0 living outside the pool's
	// own handle space: recHead is most-recent, recTail is least-recent.
	recHead int
	recTail int
}

// NewLRUMap allocates an LRU map with room for capacity entries.
func NewLRUMap[K comparable, V any](capacity int, hash func(K) uint64) *LRUMap[K, V] {
	return &LRUMap[K, V]{
		pool:    NewFixedPool[lruNode[K, V]](capacity),
		buckets: make([]int, capacity),
		hash:    hash,
	}
}

func (m *LRUMap[K, V]) bucketFor(k K) int { return int(m.hash(k) % uint64(len(m.buckets))) }

func (m *LRUMap[K, V]) findHandle(k K) int {
	for h := m.buckets[m.bucketFor(k)]; h != 0; {
		node, _ := m.pool.Get(h)
		if node.key == k {
			return h
		}
		h = node.bucketNx
	}
	return 0
}

func (m *LRUMap[K, V]) unlinkRecency(h int, node lruNode[K, V]) {
	if node.recPrev != 0 {
		p, _ := m.pool.Get(node.recPrev)
		p.recNext = node.recNext
		m.pool.Set(node.recPrev, p)
	} else {
		m.recHead = node.recNext
	}
	if node.recNext != 0 {
		n, _ := m.pool.Get(node.recNext)
		n.recPrev = node.recPrev
		m.pool.Set(node.recNext, n)
	} else {
		m.recTail = node.recPrev
	}
}

func (m *LRUMap[K, V]) linkMostRecent(h int, node *lruNode[K, V]) {
	node.recPrev = 0
	node.recNext = m.recHead
	if m.recHead != 0 {
		old, _ := m.pool.Get(m.recHead)
		old.recPrev = h
		m.pool.Set(m.recHead, old)
	}
	m.recHead = h
	if m.recTail == 0 {
		m.recTail = h
	}
}

// Insert adds key k with value v, evicting least-recent entries satisfying
// pred if the map is full and force is true. Returns false if there is no
// room and eviction cannot make any (either force=false or pred rejects
// the least-recent entry).
func (m *LRUMap[K, V]) Insert(k K, v V, force bool, pred func(K) bool) bool {
	if h := m.findHandle(k); h != 0 {
		node, _ := m.pool.Get(h)
		node.value = v
		m.pool.Set(h, node)
		m.Active(k)
		return true
	}
	if m.pool.Size() >= m.pool.capacity && force {
		m.Disuse(1, pred)
	}
	b := m.bucketFor(k)
	h := m.pool.Alloc(false)
	if h == 0 {
		return false
	}
	node := lruNode[K, V]{key: k, value: v, bucketNx: m.buckets[b]}
	m.pool.Set(h, node)
	m.buckets[b] = h
	got, _ := m.pool.Get(h)
	m.linkMostRecent(h, &got)
	m.pool.Set(h, got)
	return true
}

// Find returns the value for k without changing recency.
func (m *LRUMap[K, V]) Find(k K) (V, bool) {
	h := m.findHandle(k)
	if h == 0 {
		var zero V
		return zero, false
	}
	node, _ := m.pool.Get(h)
	return node.value, true
}

// Exist reports whether k is present.
func (m *LRUMap[K, V]) Exist(k K) bool { return m.findHandle(k) != 0 }

// Active moves key k to most-recent. O(1), preserves handle stability.
func (m *LRUMap[K, V]) Active(k K) bool {
	h := m.findHandle(k)
	if h == 0 {
		return false
	}
	node, _ := m.pool.Get(h)
	m.unlinkRecency(h, node)
	m.linkMostRecent(h, &node)
	m.pool.Set(h, node)
	return true
}

// Erase removes k unconditionally.
func (m *LRUMap[K, V]) Erase(k K) bool {
	h := m.findHandle(k)
	if h == 0 {
		return false
	}
	node, _ := m.pool.Get(h)

	b := m.bucketFor(k)
	prev := 0
	for cur := m.buckets[b]; cur != 0; {
		n, _ := m.pool.Get(cur)
		if cur == h {
			if prev == 0 {
				m.buckets[b] = n.bucketNx
			} else {
				pn, _ := m.pool.Get(prev)
				pn.bucketNx = n.bucketNx
				m.pool.Set(prev, pn)
			}
			break
		}
		prev = cur
		cur = n.bucketNx
	}

	m.unlinkRecency(h, node)
	m.pool.Free(h)
	return true
}

// Disuse evicts up to n keys starting from least-recent, halting at the
// first key for which pred returns false. Returns the number actually
// removed.
func (m *LRUMap[K, V]) Disuse(n int, pred func(K) bool) int {
	removed := 0
	for removed < n && m.recTail != 0 {
		h := m.recTail
		node, _ := m.pool.Get(h)
		if pred != nil && !pred(node.key) {
			break
		}
		m.Erase(node.key)
		removed++
	}
	return removed
}

// Size returns the number of live entries.
func (m *LRUMap[K, V]) Size() int { return m.pool.Size() }
