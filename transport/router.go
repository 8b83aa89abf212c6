// File: transport/router.go
// Author: momentics <momentics@gmail.com>
//
// StaticRouter is a reference, in-memory api.Routing implementation (§1,
// §6), grounded on original_source's routing_interface.h. Per DESIGN.md's
// Open Question decision #3, this rewrite targets single-version deployments: the
// version parameter is accepted on every method but folded to a single
// bucket internally, never consulted for route selection.

package transport

import "sync"

// StaticRouter maps svrType -> a set of node IDs, with no dynamic
// discovery: routes are installed and removed explicitly by the caller.
type StaticRouter struct {
	mu    sync.Mutex
	nodes map[uint32]map[uint32]struct{} // svrType -> set of nodeID
}

// NewStaticRouter creates an empty router.
func NewStaticRouter() *StaticRouter {
	return &StaticRouter{nodes: make(map[uint32]map[uint32]struct{})}
}

// AddRoute registers nodeID as an endpoint for svrType. version is
// accepted but ignored (see package doc).
func (r *StaticRouter) AddRoute(svrType uint32, nodeID uint32, version uint32) {
	r.mu.Lock()
	defer r.mu.Unlock()
	set, ok := r.nodes[svrType]
	if !ok {
		set = make(map[uint32]struct{})
		r.nodes[svrType] = set
	}
	set[nodeID] = struct{}{}
}

// DelRoute removes nodeID from svrType's endpoint set.
func (r *StaticRouter) DelRoute(svrType uint32, nodeID uint32) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if set, ok := r.nodes[svrType]; ok {
		delete(set, nodeID)
		if len(set) == 0 {
			delete(r.nodes, svrType)
		}
	}
}

// GetSendDest resolves a destination for svrType. If expectedDest is
// itself a registered node, it is returned as-is (the caller's hint wins).
// Otherwise a deterministic pick (gid modulo the sorted node-ID set) picks
// one of svrType's nodes. Returns 0 if svrType has no route at all.
func (r *StaticRouter) GetSendDest(svrType uint32, gid uint64, expectedDest uint32, version uint32) uint32 {
	r.mu.Lock()
	defer r.mu.Unlock()
	set, ok := r.nodes[svrType]
	if !ok || len(set) == 0 {
		return 0
	}
	if expectedDest != 0 {
		if _, ok := set[expectedDest]; ok {
			return expectedDest
		}
	}
	ids := sortedKeys(set)
	return ids[gid%uint64(len(ids))]
}

// GetAllSendDest returns every node registered for svrType. worldID and
// version are accepted but ignored (see package doc).
func (r *StaticRouter) GetAllSendDest(svrType uint32, worldID uint32, version uint32) []uint32 {
	r.mu.Lock()
	defer r.mu.Unlock()
	set, ok := r.nodes[svrType]
	if !ok {
		return nil
	}
	return sortedKeys(set)
}

// IsNodeExist reports whether nodeID is registered for svrType.
func (r *StaticRouter) IsNodeExist(svrType uint32, nodeID uint32) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	set, ok := r.nodes[svrType]
	if !ok {
		return false
	}
	_, ok = set[nodeID]
	return ok
}

// Clear removes every route.
func (r *StaticRouter) Clear() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.nodes = make(map[uint32]map[uint32]struct{})
}

func sortedKeys(set map[uint32]struct{}) []uint32 {
	out := make([]uint32, 0, len(set))
	for k := range set {
		out = append(out, k)
	}
	for i := 1; i < len(out); i++ {
		for j := i; j > 0 && out[j-1] > out[j]; j-- {
			out[j-1], out[j] = out[j], out[j-1]
		}
	}
	return out
}
