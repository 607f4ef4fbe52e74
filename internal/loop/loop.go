// Package loop provides the single logical thread of control that every
// store mutation and observer notification runs on.
//
// Collaborator calls run on their own goroutines and post their results
// back with Call, so the loop never blocks on I/O.
package loop

import (
	"context"
	"log/slog"
	"sync"
)

// Loop is an unbounded FIFO of functions drained by one goroutine.
type Loop struct {
	mu      sync.Mutex
	cond    *sync.Cond
	queue   []func()
	closed  bool
	done    chan struct{}
	started bool
	logger  *slog.Logger
}

// New returns a loop that is not yet running; call Start or Run.
func New(logger *slog.Logger) *Loop {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	l := &Loop{done: make(chan struct{}), logger: logger}
	l.cond = sync.NewCond(&l.mu)
	return l
}

// Start runs the loop on a new goroutine until ctx is done or Stop is
// called.
func (l *Loop) Start(ctx context.Context) {
	go l.Run(ctx)
}

// Run drains the queue on the calling goroutine. It returns after the loop
// is stopped and every queued function has run.
func (l *Loop) Run(ctx context.Context) {
	l.mu.Lock()
	if l.started {
		l.mu.Unlock()
		return
	}
	l.started = true
	l.mu.Unlock()
	defer close(l.done)

	stop := context.AfterFunc(ctx, l.Stop)
	defer stop()

	for {
		l.mu.Lock()
		for len(l.queue) == 0 && !l.closed {
			l.cond.Wait()
		}
		if len(l.queue) == 0 && l.closed {
			l.mu.Unlock()
			return
		}
		fn := l.queue[0]
		l.queue[0] = nil
		l.queue = l.queue[1:]
		l.mu.Unlock()

		l.invoke(fn)
	}
}

func (l *Loop) invoke(fn func()) {
	defer func() {
		if r := recover(); r != nil {
			l.logger.Error("loop task panicked", "panic", r)
		}
	}()
	fn()
}

// Post queues fn. It never blocks and reports false once the loop is
// stopped.
func (l *Loop) Post(fn func()) bool {
	if fn == nil {
		return false
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed {
		return false
	}
	l.queue = append(l.queue, fn)
	l.cond.Signal()
	return true
}

// Do posts fn and waits for it to finish. It must not be called from the
// loop goroutine.
func (l *Loop) Do(fn func()) bool {
	finished := make(chan struct{})
	if !l.Post(func() {
		defer close(finished)
		fn()
	}) {
		return false
	}
	select {
	case <-finished:
		return true
	case <-l.done:
		return false
	}
}

// Stop refuses new work; queued functions still run.
func (l *Loop) Stop() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.closed = true
	l.cond.Broadcast()
}

// Done is closed when Run returns.
func (l *Loop) Done() <-chan struct{} { return l.done }

// Call runs fn on its own goroutine and delivers the result on the loop.
// If the loop has stopped by then the result is dropped.
func Call[T any](l *Loop, ctx context.Context, fn func(context.Context) (T, error), deliver func(T, error)) {
	go func() {
		v, err := fn(ctx)
		if !l.Post(func() { deliver(v, err) }) {
			l.logger.Debug("dropping result after loop stopped")
		}
	}()
}
