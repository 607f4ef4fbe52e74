package pipeline

import (
	"context"

	"github.com/nexd/nexd/internal/collab"
	"github.com/nexd/nexd/internal/loop"
	"github.com/nexd/nexd/internal/metrics"
	"github.com/nexd/nexd/internal/model"
	"github.com/nexd/nexd/internal/state"
)

// Synchronizer recomputes Workflow.Requests whenever Filter.ZipCode is
// written or Refresh is called. Every method runs on the loop.
type Synchronizer struct {
	ctx      context.Context
	loop     *loop.Loop
	requests collab.HelpRequests
	workflow *state.Workflow
	filter   *state.Filter
	opts     Options
}

func NewSynchronizer(ctx context.Context, l *loop.Loop, requests collab.HelpRequests, workflow *state.Workflow, filter *state.Filter, opts Options) *Synchronizer {
	return &Synchronizer{ctx: ctx, loop: l, requests: requests, workflow: workflow, filter: filter, opts: opts.withDefaults()}
}

// Attach subscribes to the zip filter, running once immediately. The
// subscription is owned by bag.
func (s *Synchronizer) Attach(bag *state.Bag) {
	state.Observe(bag, s.filter.ZipCode, s.run)
}

// Refresh reruns the lookup against the current filter.
func (s *Synchronizer) Refresh() {
	s.run(s.filter.ZipCode.Get())
}

// OpenRequestsQuery is the lookup issued for zip; an empty zip means no
// zip constraint.
func OpenRequestsQuery(zip string) collab.OpenRequestsQuery {
	q := collab.OpenRequestsQuery{
		UserID:        collab.CurrentUserID,
		ExcludeUserID: true,
		Status:        []model.RequestStatus{model.StatusPending},
	}
	if zip != "" {
		q.ZipCodes = []string{zip}
	}
	return q
}

func (s *Synchronizer) run(zip string) {
	ticket := s.workflow.Requests.Begin()
	query := OpenRequestsQuery(zip)
	s.opts.Metrics.Lookup(metrics.OpenRequest)

	ctx, cancel := context.WithTimeout(s.ctx, s.opts.Timeout)
	loop.Call(s.loop, ctx, func(ctx context.Context) ([]model.HelpRequest, error) {
		defer cancel()
		return s.requests.OpenHelpRequests(ctx, query)
	}, func(found []model.HelpRequest, err error) {
		if err != nil {
			s.opts.Logger.Debug("open requests lookup failed", "zip", zip, "err", err)
			s.opts.Metrics.Failed(metrics.OpenRequest)
			found = nil
		}
		if !s.workflow.Requests.Apply(ticket, state.NewRequestSet(found, zip)) {
			s.opts.Metrics.Dropped(metrics.OpenRequest)
		}
	})
}
