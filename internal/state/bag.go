package state

import "sync"

// Bag collects the subscriptions a screen controller creates in one bind so
// that unbind can release exactly those.
type Bag struct {
	mu       sync.Mutex
	releases []func()
}

// Add registers a release function.
func (b *Bag) Add(release func()) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.releases = append(b.releases, release)
}

// Subscribe subscribes fn to s and keeps the handle.
func (b *Bag) Subscribe(s Subscribable, fn Observer) {
	h := s.Subscribe(fn)
	b.Add(func() { s.Unsubscribe(h) })
}

// Observe attaches fn to a field and keeps the handle.
func Observe[T any](b *Bag, f *Field[T], fn func(T)) {
	h := f.Observe(fn)
	b.Add(func() { f.Unobserve(h) })
}

// Release drops every subscription in reverse order of creation.
func (b *Bag) Release() {
	b.mu.Lock()
	releases := b.releases
	b.releases = nil
	b.mu.Unlock()
	for i := len(releases) - 1; i >= 0; i-- {
		releases[i]()
	}
}

// Len is the number of subscriptions held.
func (b *Bag) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.releases)
}

// Subscribable is implemented by every store.
type Subscribable interface {
	Subscribe(Observer) Handle
	Unsubscribe(Handle) bool
}
