// Package dispatch implements the ordered multicast used for every update
// kind the coordinator publishes.
//
// Delivery order is registration order, with front-registered listeners
// preceding all normal ones. Registration and removal performed while a
// dispatch is running only affect the next dispatch. A panicking listener is
// recovered and logged; the remaining listeners still receive the update.
package dispatch

import (
	"sync/atomic"

	"github.com/yanun0323/logs"
)

// Listener receives updates of type T.
type Listener[T any] interface {
	Update(T)
}

// ListenerFunc adapts a function to a Listener.
type ListenerFunc[T any] func(T)

func (f ListenerFunc[T]) Update(v T) {
	f(v)
}

// Handle identifies one registration for later removal.
type Handle uint64

type entry[T any] struct {
	handle   Handle
	name     string
	listener Listener[T]
}

// Dispatcher is an ordered list of non-owning listener references.
// It is not safe for concurrent use; it belongs to the coordinator thread.
type Dispatcher[T any] struct {
	name      string
	listeners []entry[T]
	front     int
	next      Handle
	panics    atomic.Uint64
}

// New creates an empty dispatcher. The name only appears in logs.
func New[T any](name string) *Dispatcher[T] {
	return &Dispatcher[T]{name: name}
}

// Name returns the dispatcher name.
func (d *Dispatcher[T]) Name() string {
	return d.name
}

// Add appends a listener after every existing one.
func (d *Dispatcher[T]) Add(name string, l Listener[T]) Handle {
	return d.insert(len(d.listeners), name, l)
}

// AddFunc appends a function listener.
func (d *Dispatcher[T]) AddFunc(name string, fn func(T)) Handle {
	return d.Add(name, ListenerFunc[T](fn))
}

// AddFront registers a listener ahead of all normal listeners, after the
// front listeners registered before it.
func (d *Dispatcher[T]) AddFront(name string, l Listener[T]) Handle {
	h := d.insert(d.front, name, l)
	d.front++
	return h
}

// Remove drops a registration. It reports false when the handle is unknown.
func (d *Dispatcher[T]) Remove(h Handle) bool {
	for i := range d.listeners {
		if d.listeners[i].handle != h {
			continue
		}
		next := make([]entry[T], 0, len(d.listeners)-1)
		next = append(next, d.listeners[:i]...)
		next = append(next, d.listeners[i+1:]...)
		d.listeners = next
		if i < d.front {
			d.front--
		}
		return true
	}
	return false
}

// Len returns the number of registered listeners.
func (d *Dispatcher[T]) Len() int {
	return len(d.listeners)
}

// Panics returns how many listener panics were recovered.
func (d *Dispatcher[T]) Panics() uint64 {
	return d.panics.Load()
}

// Dispatch delivers v to every listener registered when the call started.
func (d *Dispatcher[T]) Dispatch(v T) {
	// the slice is never mutated in place, so this snapshot is stable
	listeners := d.listeners
	for i := range listeners {
		d.deliver(&listeners[i], v)
	}
}

func (d *Dispatcher[T]) deliver(e *entry[T], v T) {
	defer func() {
		if r := recover(); r != nil {
			d.panics.Add(1)
			logs.Errorf("dispatch %s: listener %s panicked, err: %+v", d.name, e.name, r)
		}
	}()
	e.listener.Update(v)
}

func (d *Dispatcher[T]) insert(at int, name string, l Listener[T]) Handle {
	d.next++
	e := entry[T]{handle: d.next, name: name, listener: l}
	next := make([]entry[T], 0, len(d.listeners)+1)
	next = append(next, d.listeners[:at]...)
	next = append(next, e)
	next = append(next, d.listeners[at:]...)
	d.listeners = next
	return e.handle
}
