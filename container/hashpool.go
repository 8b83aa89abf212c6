// File: container/hashpool.go
// Author: momentics <momentics@gmail.com>
//
// HashPool combines a FixedPool with a bucket array; each bucket is a
// singly linked list threaded through slot handles (§3, §4.8). insert(k) is
// idempotent in key; erase(k) followed by find(k) returns "not found";
// total count equals outstanding inserts minus erases.

package container

type hashNode[K comparable, V any] struct {
	key      K
	value    V
	bucketNx int // next handle in the same bucket, 0 = end
}

// HashPool is a fixed-capacity hash map with handle-stable storage.
type HashPool[K comparable, V any] struct {
	pool    *FixedPool[hashNode[K, V]]
	buckets []int
	hash    func(K) uint64
}

// NewHashPool allocates a hash pool with room for capacity entries spread
// over bucketCount buckets.
func NewHashPool[K comparable, V any](capacity, bucketCount int, hash func(K) uint64) *HashPool[K, V] {
	if bucketCount <= 0 {
		bucketCount = capacity
	}
	return &HashPool[K, V]{
		pool:    NewFixedPool[hashNode[K, V]](capacity),
		buckets: make([]int, bucketCount),
		hash:    hash,
	}
}

func (h *HashPool[K, V]) bucketFor(k K) int {
	return int(h.hash(k) % uint64(len(h.buckets)))
}

// Find returns the value for k, if present.
func (h *HashPool[K, V]) Find(k K) (V, bool) {
	b := h.bucketFor(k)
	for handle := h.buckets[b]; handle != 0; {
		node, ok := h.pool.Get(handle)
		if !ok {
			break
		}
		if node.key == k {
			return node.value, true
		}
		handle = node.bucketNx
	}
	var zero V
	return zero, false
}

// Insert adds or updates the value for k. Returns false only if the pool is
// full and k is not already present (idempotent in key).
func (h *HashPool[K, V]) Insert(k K, v V) bool {
	b := h.bucketFor(k)
	for handle := h.buckets[b]; handle != 0; {
		node, _ := h.pool.Get(handle)
		if node.key == k {
			node.value = v
			h.pool.Set(handle, node)
			return true
		}
		handle = node.bucketNx
	}
	handle := h.pool.Alloc(false)
	if handle == 0 {
		return false
	}
	h.pool.Set(handle, hashNode[K, V]{key: k, value: v, bucketNx: h.buckets[b]})
	h.buckets[b] = handle
	return true
}

// Erase removes k. Returns false if absent.
func (h *HashPool[K, V]) Erase(k K) bool {
	b := h.bucketFor(k)
	prev := 0
	for handle := h.buckets[b]; handle != 0; {
		node, _ := h.pool.Get(handle)
		if node.key == k {
			if prev == 0 {
				h.buckets[b] = node.bucketNx
			} else {
				prevNode, _ := h.pool.Get(prev)
				prevNode.bucketNx = node.bucketNx
				h.pool.Set(prev, prevNode)
			}
			h.pool.Free(handle)
			return true
		}
		prev = handle
		handle = node.bucketNx
	}
	return false
}

// Size returns the outstanding entry count (inserts minus erases).
func (h *HashPool[K, V]) Size() int { return h.pool.Size() }
