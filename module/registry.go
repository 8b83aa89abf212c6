// File: module/registry.go
// Author: momentics <momentics@gmail.com>
//
// Registry is the typed module store keyed by an autogenerated per-type
// integer (§4.7), grounded on the original system_mgr.h/cpp's SystemMgr plus
// generate_type_id.h's AutoGenTypeID<Scope,T>::GetID<T>(). Go has no
// per-instantiation static counter to hang that template trick off, so a
// reflect.Type-keyed map guarded by a mutex plays the same role: first use
// of a type allocates its ID, later uses hit the map.

package module

import (
	"fmt"
	"reflect"
	"sort"
	"sync"

	"github.com/momentics/rpcengine/api"
)

const defaultCapacity = 50

var (
	typeIDMu   sync.Mutex
	typeIDNext int
	typeIDs    = make(map[reflect.Type]int)
)

// typeID returns the stable per-type integer for T's dynamic type, assigning
// one on first use.
func typeID(t reflect.Type) int {
	typeIDMu.Lock()
	defer typeIDMu.Unlock()
	if id, ok := typeIDs[t]; ok {
		return id
	}
	typeIDNext++
	typeIDs[t] = typeIDNext
	return typeIDNext
}

type entry struct {
	id       int
	priority api.SystemPriority
	seq      int // registration order, for stable sort within a priority
	module   api.Module
}

// Registry is the bounded-capacity module store with priority-ordered
// lifecycle hooks.
type Registry struct {
	mu       sync.Mutex
	capacity int
	byID     map[int]*entry
	seq      int
}

// New creates a Registry with room for at most capacity modules. capacity<=0
// uses the default of 50.
func New(capacity int) *Registry {
	if capacity <= 0 {
		capacity = defaultCapacity
	}
	return &Registry{capacity: capacity, byID: make(map[int]*entry)}
}

// Register installs m under its dynamic type's auto-assigned ID at the given
// priority. Returns an error if the registry is at capacity or the type is
// already registered.
func (r *Registry) Register(m api.Module, priority api.SystemPriority) error {
	id := typeID(reflect.TypeOf(m))

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.byID[id]; exists {
		return fmt.Errorf("module: type %T already registered", m)
	}
	if len(r.byID) >= r.capacity {
		return fmt.Errorf("module: registry at capacity (%d)", r.capacity)
	}
	r.seq++
	r.byID[id] = &entry{id: id, priority: priority, seq: r.seq, module: m}
	return nil
}

// Unregister removes the module registered for T's dynamic type, clearing
// both the slot and the priority index entry. Returns false if T was never
// registered.
func (r *Registry) Unregister(m api.Module) bool {
	id := typeID(reflect.TypeOf(m))
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.byID[id]; !ok {
		return false
	}
	delete(r.byID, id)
	return true
}

// ordered returns every registered module sorted priority High->Low, and
// within a priority by registration order.
func (r *Registry) ordered() []*entry {
	r.mu.Lock()
	out := make([]*entry, 0, len(r.byID))
	for _, e := range r.byID {
		out = append(out, e)
	}
	r.mu.Unlock()

	sort.Slice(out, func(i, j int) bool {
		if out[i].priority != out[j].priority {
			return out[i].priority > out[j].priority
		}
		return out[i].seq < out[j].seq
	})
	return out
}

// Count returns the number of registered modules.
func (r *Registry) Count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.byID)
}

// InitAll calls Init on every module, priority High->Low. Returns the first
// error encountered, if any, after attempting every module.
func (r *Registry) InitAll() error {
	var firstErr error
	for _, e := range r.ordered() {
		if err := e.module.Init(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// TickAll calls Tick on every module, priority High->Low.
func (r *Registry) TickAll(nowMs int64, tickCount uint64) {
	for _, e := range r.ordered() {
		e.module.Tick(nowMs, tickCount)
	}
}

// ProcAll calls Proc on every module, priority High->Low, each receiving
// remainMs/activeCount (floored at 1ms) per §4.3 phase 1.
func (r *Registry) ProcAll(remainMs int64) {
	ordered := r.ordered()
	active := len(ordered)
	if active == 0 {
		return
	}
	share := remainMs / int64(active)
	if share < 1 {
		share = 1
	}
	for _, e := range ordered {
		e.module.Proc(share)
	}
}

// FinishAll calls Finish on every module, priority High->Low.
func (r *Registry) FinishAll() {
	for _, e := range r.ordered() {
		e.module.Finish()
	}
}
