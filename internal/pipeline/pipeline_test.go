package pipeline

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"

	"github.com/nexd/nexd/internal/clock"
	"github.com/nexd/nexd/internal/collab"
	"github.com/nexd/nexd/internal/collab/collabtest"
	"github.com/nexd/nexd/internal/loop"
	"github.com/nexd/nexd/internal/metrics"
	"github.com/nexd/nexd/internal/model"
	"github.com/nexd/nexd/internal/state"
)

const (
	waitFor = 2 * time.Second
	tick    = 5 * time.Millisecond
)

type harness struct {
	ctx     context.Context
	loop    *loop.Loop
	clock   *clock.FakeClock
	fake    *collabtest.Fake
	metrics *metrics.Pipelines
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	l := loop.New(nil)
	l.Start(ctx)
	t.Cleanup(func() {
		cancel()
		<-l.Done()
	})
	return &harness{
		ctx:     ctx,
		loop:    l,
		clock:   clock.Fake(time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)),
		fake:    collabtest.New(),
		metrics: metrics.NewPipelines(prometheus.NewRegistry()),
	}
}

func (h *harness) options() Options {
	return Options{Clock: h.clock, Language: "de", Metrics: h.metrics}
}

func (h *harness) flush() { h.loop.Do(func() {}) }

func TestQueryCoalescesWithinWindow(t *testing.T) {
	h := newHarness(t)
	h.fake.Articles = []model.Article{{ID: 1, Name: "Milch"}, {ID: 2, Name: "Mehl"}}
	search := state.NewSearch()
	q := NewQuery(h.ctx, h.loop, h.fake, search, h.options())

	q.Submit("m")
	h.clock.Advance(300 * time.Millisecond)
	q.Submit("mi")
	h.clock.Advance(300 * time.Millisecond)
	q.Submit("mil")
	h.clock.Advance(499 * time.Millisecond)
	h.flush()
	require.Empty(t, h.fake.SearchCalls())

	h.clock.Advance(time.Millisecond)
	require.Eventually(t, func() bool { return len(search.Suggestions.Get()) == 1 }, waitFor, tick)

	calls := h.fake.SearchCalls()
	require.Len(t, calls, 1)
	require.Equal(t, collab.ArticleQuery{Limit: 5, StartsWith: "mil", Language: "de", OnlyVerified: false}, calls[0])
	require.Equal(t, "mil", search.Query.Get())
	require.Equal(t, "Milch", search.Suggestions.Get()[0].Name)
	require.Equal(t, 1.0, testutil.ToFloat64(h.metrics.Lookups.WithLabelValues(metrics.Suggestions)))
}

func TestQueryEmptyTextSkipsLookup(t *testing.T) {
	h := newHarness(t)
	h.fake.Articles = []model.Article{{ID: 1, Name: "Milch"}}
	search := state.NewSearch()
	q := NewQuery(h.ctx, h.loop, h.fake, search, h.options())

	q.Submit("mi")
	h.clock.Advance(DefaultWindow)
	require.Eventually(t, func() bool { return search.Suggestions.Get() != nil }, waitFor, tick)

	q.Submit("   ")
	h.clock.Advance(DefaultWindow)
	h.flush()
	require.Nil(t, search.Suggestions.Get())
	require.Len(t, h.fake.SearchCalls(), 1)
}

func TestQueryDropsSupersededResult(t *testing.T) {
	h := newHarness(t)
	release := make(chan struct{})
	h.fake.OnSearch = func(ctx context.Context, q collab.ArticleQuery) ([]model.Article, error) {
		if q.StartsWith == "mil" {
			<-release
			return []model.Article{{ID: 1, Name: "Milchreis"}}, nil
		}
		return []model.Article{{ID: 2, Name: "Milch"}}, nil
	}
	search := state.NewSearch()
	q := NewQuery(h.ctx, h.loop, h.fake, search, h.options())

	q.Submit("mil")
	h.clock.Advance(DefaultWindow)
	require.Eventually(t, func() bool { return len(h.fake.SearchCalls()) == 1 }, waitFor, tick)

	q.Submit("milch")
	h.clock.Advance(DefaultWindow)
	require.Eventually(t, func() bool { return len(search.Suggestions.Get()) == 1 }, waitFor, tick)

	close(release)
	require.Eventually(t, func() bool {
		return testutil.ToFloat64(h.metrics.Stale.WithLabelValues(metrics.Suggestions)) == 1
	}, waitFor, tick)
	require.Equal(t, "Milch", search.Suggestions.Get()[0].Name)
}

func TestQueryClearsSuggestionsWhileNewerQueryPending(t *testing.T) {
	h := newHarness(t)
	gate := make(chan struct{})
	h.fake.OnSearch = func(ctx context.Context, q collab.ArticleQuery) ([]model.Article, error) {
		if q.StartsWith == "brot" {
			<-gate
		}
		return []model.Article{{ID: 3, Name: q.StartsWith}}, nil
	}
	search := state.NewSearch()
	q := NewQuery(h.ctx, h.loop, h.fake, search, h.options())

	q.Submit("br")
	h.clock.Advance(DefaultWindow)
	require.Eventually(t, func() bool { return search.Suggestions.Get() != nil }, waitFor, tick)

	q.Submit("brot")
	h.clock.Advance(DefaultWindow)
	require.Eventually(t, func() bool { return len(h.fake.SearchCalls()) == 2 }, waitFor, tick)
	h.flush()
	require.Nil(t, search.Suggestions.Get())
	close(gate)
	require.Eventually(t, func() bool { return search.Suggestions.Get() != nil }, waitFor, tick)
}

func TestQueryFailureMeansNoSuggestions(t *testing.T) {
	h := newHarness(t)
	h.fake.SearchErr = &collab.Error{Op: "SearchArticles", Kind: collab.ErrRequestFailed}
	search := state.NewSearch()
	q := NewQuery(h.ctx, h.loop, h.fake, search, h.options())

	q.Submit("milch")
	h.clock.Advance(DefaultWindow)
	require.Eventually(t, func() bool {
		return testutil.ToFloat64(h.metrics.Failures.WithLabelValues(metrics.Suggestions)) == 1
	}, waitFor, tick)
	require.Nil(t, search.Suggestions.Get())
	require.Len(t, h.fake.SearchCalls(), 1)
}

func TestQueryIdenticalCommitIsNotRepeated(t *testing.T) {
	h := newHarness(t)
	search := state.NewSearch()
	q := NewQuery(h.ctx, h.loop, h.fake, search, h.options())

	q.Submit("eier")
	h.clock.Advance(DefaultWindow)
	require.Eventually(t, func() bool { return len(h.fake.SearchCalls()) == 1 }, waitFor, tick)

	q.Submit("eie")
	q.Submit("eier")
	h.clock.Advance(DefaultWindow)
	h.flush()
	require.Len(t, h.fake.SearchCalls(), 1)

	h.loop.Do(q.Reset)
	q.Submit("eier")
	h.clock.Advance(DefaultWindow)
	require.Eventually(t, func() bool { return len(h.fake.SearchCalls()) == 2 }, waitFor, tick)
}

func TestQueryCloseStopsPendingWindow(t *testing.T) {
	h := newHarness(t)
	q := NewQuery(h.ctx, h.loop, h.fake, state.NewSearch(), h.options())
	q.Submit("salz")
	q.Close()
	q.Submit("zucker")
	require.Equal(t, 0, h.clock.Pending())
	h.clock.Advance(time.Second)
	h.flush()
	require.Empty(t, h.fake.SearchCalls())
}

func TestQueryCloseAfterWindowSkipsLookup(t *testing.T) {
	for name, stop := range map[string]func(*Query){
		"close":  (*Query).Close,
		"cancel": (*Query).Cancel,
	} {
		t.Run(name, func(t *testing.T) {
			h := newHarness(t)
			q := NewQuery(h.ctx, h.loop, h.fake, state.NewSearch(), h.options())

			// Hold the loop so the settled commit queues up behind us.
			blocked, release := make(chan struct{}), make(chan struct{})
			h.loop.Post(func() {
				close(blocked)
				<-release
			})
			<-blocked
			q.Submit("salz")
			h.clock.Advance(DefaultWindow)
			stop(q)
			close(release)

			h.flush()
			require.Empty(t, h.fake.SearchCalls())
			require.Zero(t, testutil.ToFloat64(h.metrics.Lookups.WithLabelValues(metrics.Suggestions)))
		})
	}
}

func TestOpenRequestsQueryBranches(t *testing.T) {
	unfiltered := OpenRequestsQuery("")
	require.Equal(t, collab.OpenRequestsQuery{
		UserID:        "me",
		ExcludeUserID: true,
		Status:        []model.RequestStatus{model.StatusPending},
	}, unfiltered)

	zipped := OpenRequestsQuery("12345")
	require.Equal(t, []string{"12345"}, zipped.ZipCodes)
	require.Equal(t, "me", zipped.UserID)
	require.True(t, zipped.ExcludeUserID)
	require.Equal(t, []model.RequestStatus{model.StatusPending}, zipped.Status)
}

func TestSynchronizerFollowsZipFilter(t *testing.T) {
	h := newHarness(t)
	h.fake.Requests = []model.HelpRequest{
		{ID: 1, RequesterID: "anna", ZipCode: "12345", Status: model.StatusPending},
		{ID: 2, RequesterID: "ben", ZipCode: "10115", Status: model.StatusPending},
		{ID: 3, RequesterID: "me", ZipCode: "12345", Status: model.StatusPending},
	}
	wf, filter := state.NewWorkflow(), state.NewFilter()
	s := NewSynchronizer(h.ctx, h.loop, h.fake, wf, filter, h.options())

	var bag state.Bag
	h.loop.Do(func() { s.Attach(&bag) })
	require.Eventually(t, func() bool { return len(wf.FilteredRequests()) == 2 }, waitFor, tick)

	h.loop.Do(func() { filter.SetZipCode("12345") })
	require.Eventually(t, func() bool { return wf.Requests.Get().ZipCode == "12345" }, waitFor, tick)
	set := wf.Requests.Get()
	require.Len(t, set.Filtered, 1)
	require.Equal(t, int64(1), set.Filtered[0].ID)

	calls := h.fake.OpenCalls()
	require.Len(t, calls, 2)
	require.Nil(t, calls[0].ZipCodes)
	require.Equal(t, []string{"12345"}, calls[1].ZipCodes)

	h.loop.Do(bag.Release)
	h.loop.Do(func() { filter.SetZipCode("10115") })
	h.flush()
	require.Len(t, h.fake.OpenCalls(), 2)
}

func TestSynchronizerPublishesConsistentPairs(t *testing.T) {
	h := newHarness(t)
	slow := make(chan struct{})
	h.fake.OnOpen = func(ctx context.Context, q collab.OpenRequestsQuery) ([]model.HelpRequest, error) {
		if len(q.ZipCodes) == 0 {
			<-slow
			return []model.HelpRequest{{ID: 1, ZipCode: "10115", Status: model.StatusPending}}, nil
		}
		return []model.HelpRequest{{ID: 2, ZipCode: q.ZipCodes[0], Status: model.StatusPending}}, nil
	}
	wf, filter := state.NewWorkflow(), state.NewFilter()
	s := NewSynchronizer(h.ctx, h.loop, h.fake, wf, filter, h.options())

	var seen []state.RequestSet
	var bag state.Bag
	h.loop.Do(func() {
		state.Observe(&bag, wf.Requests, func(set state.RequestSet) { seen = append(seen, set) })
		s.Attach(&bag)
		filter.SetZipCode("12345")
	})
	require.Eventually(t, func() bool { return wf.Requests.Get().ZipCode == "12345" }, waitFor, tick)
	close(slow)
	require.Eventually(t, func() bool {
		return testutil.ToFloat64(h.metrics.Stale.WithLabelValues(metrics.OpenRequest)) == 1
	}, waitFor, tick)

	var published []state.RequestSet
	h.loop.Do(func() { published = append(published, seen...) })
	for _, set := range published {
		for _, r := range set.Filtered {
			if set.ZipCode != "" {
				require.Equal(t, set.ZipCode, r.ZipCode)
			}
		}
	}
	require.Equal(t, "12345", wf.Requests.Get().ZipCode)
	require.Equal(t, int64(2), wf.FilteredRequests()[0].ID)
}

func TestSynchronizerFailurePublishesNil(t *testing.T) {
	h := newHarness(t)
	h.fake.Requests = []model.HelpRequest{{ID: 1, RequesterID: "anna", Status: model.StatusPending}}
	wf, filter := state.NewWorkflow(), state.NewFilter()
	s := NewSynchronizer(h.ctx, h.loop, h.fake, wf, filter, h.options())

	var bag state.Bag
	h.loop.Do(func() { s.Attach(&bag) })
	require.Eventually(t, func() bool { return wf.FilteredRequests() != nil }, waitFor, tick)

	h.fake.Set(func(f *collabtest.Fake) { f.OpenErr = errors.New("offline") })
	h.loop.Do(s.Refresh)
	require.Eventually(t, func() bool { return wf.FilteredRequests() == nil }, waitFor, tick)
	require.Nil(t, wf.OpenRequests())
}
