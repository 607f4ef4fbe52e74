package state

import "sync"

// Ticket tags an asynchronous computation that will write a field.
type Ticket uint64

// Field is one observable value. Writes notify the field's own observers
// first, then the owning store's.
type Field[T any] struct {
	mu     sync.RWMutex
	value  T
	issued Ticket
	own    Notifier
	store  *Notifier
}

// NewField returns a field holding initial. store may be nil.
func NewField[T any](store *Notifier, initial T) *Field[T] {
	return &Field[T]{value: initial, store: store}
}

func (f *Field[T]) Get() T {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.value
}

// Set writes v and notifies.
func (f *Field[T]) Set(v T) {
	f.mu.Lock()
	f.value = v
	f.mu.Unlock()
	f.notify()
}

// Update applies fn to the current value and notifies.
func (f *Field[T]) Update(fn func(T) T) {
	f.mu.Lock()
	f.value = fn(f.value)
	f.mu.Unlock()
	f.notify()
}

// Begin issues a ticket for a computation that will write this field.
// Issuing a ticket makes every earlier ticket stale.
func (f *Field[T]) Begin() Ticket {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.issued++
	return f.issued
}

// Invalidate makes every outstanding ticket stale without writing.
func (f *Field[T]) Invalidate() { f.Begin() }

// Current reports whether t is still the newest ticket issued.
func (f *Field[T]) Current(t Ticket) bool {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return t == f.issued
}

// Apply writes v only if t is the newest ticket issued for this field. It
// reports whether the write happened; a stale result is dropped.
func (f *Field[T]) Apply(t Ticket, v T) bool {
	f.mu.Lock()
	if t != f.issued {
		f.mu.Unlock()
		return false
	}
	f.value = v
	f.mu.Unlock()
	f.notify()
	return true
}

// Observe calls fn with the current value now and with every later value.
func (f *Field[T]) Observe(fn func(T)) Handle {
	h := f.own.Subscribe(func() { fn(f.Get()) })
	fn(f.Get())
	return h
}

// Unobserve removes an observer added with Observe.
func (f *Field[T]) Unobserve(h Handle) bool { return f.own.Unsubscribe(h) }

// Observers is the number of live field-level observers.
func (f *Field[T]) Observers() int { return f.own.Len() }

func (f *Field[T]) notify() {
	f.own.Notify()
	if f.store != nil {
		f.store.Notify()
	}
}
