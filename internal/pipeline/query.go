// Package pipeline keeps derived fields in step with their inputs: the
// debounced article autocomplete and the open-requests synchronizer.
package pipeline

import (
	"context"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/nexd/nexd/internal/clock"
	"github.com/nexd/nexd/internal/collab"
	"github.com/nexd/nexd/internal/loop"
	"github.com/nexd/nexd/internal/metrics"
	"github.com/nexd/nexd/internal/model"
	"github.com/nexd/nexd/internal/state"
)

const (
	DefaultWindow  = 500 * time.Millisecond
	DefaultLimit   = 5
	DefaultTimeout = 10 * time.Second
)

// Options tune both pipelines. Zero values take the defaults.
type Options struct {
	Clock    clock.Clock
	Window   time.Duration
	Limit    int
	Language string
	Timeout  time.Duration
	Logger   *slog.Logger
	Metrics  *metrics.Pipelines
}

func (o Options) withDefaults() Options {
	if o.Clock == nil {
		o.Clock = clock.Real()
	}
	if o.Window <= 0 {
		o.Window = DefaultWindow
	}
	if o.Limit <= 0 {
		o.Limit = DefaultLimit
	}
	if o.Timeout <= 0 {
		o.Timeout = DefaultTimeout
	}
	if o.Logger == nil {
		o.Logger = slog.New(slog.DiscardHandler)
	}
	return o
}

// Query turns keystrokes into at most one article lookup per quiescence
// window and writes the result to Search.Suggestions.
type Query struct {
	ctx      context.Context
	loop     *loop.Loop
	articles collab.Articles
	search   *state.Search
	opts     Options

	mu      sync.Mutex
	gen     uint64
	pending string
	timer   clock.Timer
	closed  bool

	// last is only touched on the loop.
	last string
}

func NewQuery(ctx context.Context, l *loop.Loop, articles collab.Articles, search *state.Search, opts Options) *Query {
	return &Query{ctx: ctx, loop: l, articles: articles, search: search, opts: opts.withDefaults()}
}

// Submit records text and restarts the quiescence window. Safe to call
// from any goroutine.
func (q *Query) Submit(text string) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return
	}
	q.gen++
	gen := q.gen
	q.pending = text
	if q.timer != nil {
		q.timer.Stop()
	}
	q.timer = q.opts.Clock.AfterFunc(q.opts.Window, func() { q.settle(gen) })
}

func (q *Query) settle(gen uint64) {
	q.mu.Lock()
	if q.closed || gen != q.gen {
		q.mu.Unlock()
		return
	}
	text := q.pending
	q.timer = nil
	q.mu.Unlock()
	q.loop.Post(func() { q.commit(gen, text) })
}

// commit runs on the loop with the text that survived the window. A Cancel
// or Close issued after the window elapsed still stops it.
func (q *Query) commit(gen uint64, text string) {
	q.mu.Lock()
	stale := q.closed || gen != q.gen
	q.mu.Unlock()
	if stale {
		return
	}
	text = strings.TrimSpace(text)
	q.search.Query.Set(text)

	if text == "" {
		q.last = ""
		q.search.Suggestions.Invalidate()
		q.search.Suggestions.Set(nil)
		return
	}
	if text == q.last {
		return
	}
	q.last = text

	ticket := q.search.Suggestions.Begin()
	q.search.Suggestions.Set(nil)
	q.opts.Metrics.Lookup(metrics.Suggestions)

	query := collab.ArticleQuery{
		Limit:        q.opts.Limit,
		StartsWith:   text,
		Language:     q.opts.Language,
		OnlyVerified: false,
	}
	ctx, cancel := context.WithTimeout(q.ctx, q.opts.Timeout)
	loop.Call(q.loop, ctx, func(ctx context.Context) ([]model.Article, error) {
		defer cancel()
		return q.articles.SearchArticles(ctx, query)
	}, func(found []model.Article, err error) {
		if err != nil {
			q.opts.Logger.Debug("article lookup failed", "query", text, "err", err)
			q.opts.Metrics.Failed(metrics.Suggestions)
			found = nil
		}
		if !q.search.Suggestions.Apply(ticket, found) {
			q.opts.Metrics.Dropped(metrics.Suggestions)
			q.opts.Logger.Debug("dropping stale suggestions", "query", text)
		}
	})
}

// Reset forgets the last committed text so the next identical query is
// looked up again, and drops the visible suggestions. Call on the loop.
func (q *Query) Reset() {
	q.last = ""
	q.search.Suggestions.Invalidate()
	q.search.Suggestions.Set(nil)
}

// Cancel drops the pending window, if any, without closing the query.
func (q *Query) Cancel() {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.gen++
	if q.timer != nil {
		q.timer.Stop()
		q.timer = nil
	}
}

// Close stops the pending window; later submits are ignored.
func (q *Query) Close() {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.closed = true
	if q.timer != nil {
		q.timer.Stop()
		q.timer = nil
	}
}
