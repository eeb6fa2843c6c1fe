package tracker

import (
	"sync"
)

// Observable holds a snapshot value and pushes every new value to its
// subscribers in update order.
type Observable[T any] struct {
	// notifyMu serializes update+notify so subscribers see values in order.
	notifyMu sync.Mutex

	mu     sync.RWMutex
	value  T
	subs   map[int]func(T)
	nextID int
}

// NewObservable creates an observable with an initial value.
func NewObservable[T any](initial T) *Observable[T] {
	return &Observable[T]{
		value: initial,
		subs:  make(map[int]func(T)),
	}
}

// Get returns the current value.
func (o *Observable[T]) Get() T {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return o.value
}

// Set replaces the value and notifies subscribers.
func (o *Observable[T]) Set(value T) T {
	return o.Update(func(T) T { return value })
}

// Update derives the next value from the current one and notifies subscribers.
// Subscribers must not call Update or Set from their callback.
func (o *Observable[T]) Update(fn func(T) T) T {
	o.notifyMu.Lock()
	defer o.notifyMu.Unlock()

	o.mu.Lock()
	o.value = fn(o.value)
	next := o.value
	subs := make([]func(T), 0, len(o.subs))
	for i := 0; i < o.nextID; i++ {
		if sub, ok := o.subs[i]; ok {
			subs = append(subs, sub)
		}
	}
	o.mu.Unlock()

	for _, sub := range subs {
		sub(next)
	}
	return next
}

// Subscribe registers fn for future values and returns a function that
// removes it.
func (o *Observable[T]) Subscribe(fn func(T)) (unsubscribe func()) {
	o.mu.Lock()
	id := o.nextID
	o.nextID++
	o.subs[id] = fn
	o.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			o.mu.Lock()
			delete(o.subs, id)
			o.mu.Unlock()
		})
	}
}
