package xpc

import (
	"sync"
	"unsafe"

	"github.com/haowjy/codexpc-go/bridge"
)

// registry maps the integer context handed to the foreign runtime to the
// request's callback and foreign handle. Only integers cross the boundary;
// a callback whose id is no longer registered is dropped.
type registry struct {
	mu      sync.Mutex
	next    uintptr
	entries map[uintptr]*entry
}

type entry struct {
	cb     bridge.Callback
	handle unsafe.Pointer
}

func newRegistry() *registry {
	return &registry{entries: make(map[uintptr]*entry)}
}

// add registers cb and returns its non-zero id.
func (r *registry) add(cb bridge.Callback) uintptr {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.next++
	r.entries[r.next] = &entry{cb: cb}
	return r.next
}

func (r *registry) setHandle(id uintptr, h unsafe.Pointer) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if e := r.entries[id]; e != nil {
		e.handle = h
	}
}

func (r *registry) handle(id uintptr) (unsafe.Pointer, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	e := r.entries[id]
	if e == nil || e.handle == nil {
		return nil, false
	}
	return e.handle, true
}

// remove deletes id and returns its foreign handle. Only the first call for
// an id returns ok.
func (r *registry) remove(id uintptr) (unsafe.Pointer, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	e := r.entries[id]
	if e == nil {
		return nil, false
	}
	delete(r.entries, id)
	return e.handle, true
}

// dispatch delivers fields to id's callback. It reports false when id is not
// registered, which happens for callbacks racing a release.
func (r *registry) dispatch(id uintptr, fields bridge.CallbackFields) bool {
	r.mu.Lock()
	e := r.entries[id]
	r.mu.Unlock()
	if e == nil {
		return false
	}
	e.cb(fields)
	return true
}

func (r *registry) len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.entries)
}
