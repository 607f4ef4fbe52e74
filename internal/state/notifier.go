// Package state holds the flow-scoped observable stores that screens share.
//
// Every store exposes Subscribe(observer) -> Handle and Unsubscribe(handle).
// Mutations are expected to run on the flow's control loop; observers are
// called synchronously, in mutation order, on the goroutine that mutated.
// Field reads are guarded so a renderer may snapshot values from elsewhere.
package state

import (
	"slices"
	"sync"
)

// Handle identifies one subscription.
type Handle uint64

// Observer is notified after a change has been applied.
type Observer func()

type subscriber struct {
	handle Handle
	fn     Observer
}

// Notifier is an ordered list of observers.
type Notifier struct {
	mu   sync.Mutex
	next Handle
	subs []subscriber
}

// Subscribe adds fn and returns its handle. Observers are called in
// subscription order.
func (n *Notifier) Subscribe(fn Observer) Handle {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.next++
	n.subs = append(n.subs, subscriber{handle: n.next, fn: fn})
	return n.next
}

// Unsubscribe removes h. It reports whether h was subscribed.
func (n *Notifier) Unsubscribe(h Handle) bool {
	n.mu.Lock()
	defer n.mu.Unlock()
	idx := slices.IndexFunc(n.subs, func(s subscriber) bool { return s.handle == h })
	if idx < 0 {
		return false
	}
	n.subs = slices.Delete(n.subs, idx, idx+1)
	return true
}

// Notify calls every observer subscribed at the time of the call.
func (n *Notifier) Notify() {
	n.mu.Lock()
	subs := slices.Clone(n.subs)
	n.mu.Unlock()
	for _, s := range subs {
		if n.active(s.handle) {
			s.fn()
		}
	}
}

// active reports whether h is still subscribed; an observer may
// unsubscribe another one mid-notification.
func (n *Notifier) active(h Handle) bool {
	n.mu.Lock()
	defer n.mu.Unlock()
	return slices.ContainsFunc(n.subs, func(s subscriber) bool { return s.handle == h })
}

// Len is the number of live subscriptions.
func (n *Notifier) Len() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.subs)
}
