// Package events provides the observer registry used by the channel,
// connection and session layers. Each event a component exposes is one
// Emitter; listeners receive synchronous, in-order dispatch and hold an
// explicit Subscription handle for unsubscribing. There is no global bus.
package events

import "sync"

// Subscription is the handle returned by Subscribe. Unsubscribe is
// idempotent.
type Subscription interface {
	Unsubscribe()
}

// Emitter dispatches values of one event type to its listeners in
// subscription order.
type Emitter[T any] struct {
	mu   sync.Mutex
	subs []*subscription[T]
}

type subscription[T any] struct {
	owner *Emitter[T]
	fn    func(T)
}

// Subscribe registers a listener. Listeners are invoked in the order they
// subscribed.
func (e *Emitter[T]) Subscribe(fn func(T)) Subscription {
	s := &subscription[T]{owner: e, fn: fn}
	e.mu.Lock()
	e.subs = append(e.subs, s)
	e.mu.Unlock()
	return s
}

// Emit invokes every current listener with v. The listener list is
// snapshotted first, so a listener may unsubscribe itself or register new
// listeners during dispatch; additions take effect from the next Emit.
func (e *Emitter[T]) Emit(v T) {
	e.mu.Lock()
	snapshot := make([]*subscription[T], len(e.subs))
	copy(snapshot, e.subs)
	e.mu.Unlock()

	for _, s := range snapshot {
		s.fn(v)
	}
}

// Len returns the number of registered listeners.
func (e *Emitter[T]) Len() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.subs)
}

// Unsubscribe removes the listener from its emitter.
func (s *subscription[T]) Unsubscribe() {
	e := s.owner
	e.mu.Lock()
	defer e.mu.Unlock()
	for i, cur := range e.subs {
		if cur == s {
			e.subs = append(e.subs[:i], e.subs[i+1:]...)
			return
		}
	}
}

// Signal is an emitter for events that carry no payload.
type Signal struct {
	Emitter[struct{}]
}

// Listen registers a payloadless listener.
func (s *Signal) Listen(fn func()) Subscription {
	return s.Subscribe(func(struct{}) { fn() })
}

// Fire emits the signal.
func (s *Signal) Fire() {
	s.Emit(struct{}{})
}
