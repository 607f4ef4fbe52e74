package flow

import (
	"context"
	"errors"

	"github.com/nexd/nexd/internal/collab"
	"github.com/nexd/nexd/internal/metrics"
	"github.com/nexd/nexd/internal/model"
	"github.com/nexd/nexd/internal/state"
)

// HelperOverview drives the helper's main screen: the accepted requests and
// the open requests matching the filter.
type HelperOverview struct {
	flow *HelperFlow
	bag  state.Bag
}

func NewHelperOverview(f *HelperFlow) *HelperOverview {
	return &HelperOverview{flow: f}
}

// Bind attaches observer to the workflow and filter stores and starts the
// lookups the screen needs. Binding again replaces the previous binding.
func (o *HelperOverview) Bind(observer func()) {
	o.flow.Loop.Post(func() { o.bind(observer) })
}

func (o *HelperOverview) bind(observer func()) {
	o.bag.Release()
	o.flow.loadUserZip()
	o.flow.refreshActiveList()
	o.bag.Subscribe(o.flow.Workflow, observer)
	o.bag.Subscribe(o.flow.Filter, observer)
	o.flow.Sync.Attach(&o.bag)
}

// Unbind releases every subscription made by Bind. The stores keep their
// values.
func (o *HelperOverview) Unbind() {
	o.flow.Loop.Post(o.bag.Release)
}

// Refresh reruns the open-requests lookup and re-fetches the active list.
func (o *HelperOverview) Refresh() {
	o.flow.Loop.Post(o.flow.refresh)
}

// AcceptRequest adds req to the caller's active list. done runs on the loop
// once the call has finished and both lists have been asked to refresh.
func (o *HelperOverview) AcceptRequest(req model.HelpRequest, done func(error)) {
	o.flow.apply(req, collab.ApplyAdd, done)
}

// RemoveAcceptedRequest takes req off the caller's active list.
func (o *HelperOverview) RemoveAcceptedRequest(req model.HelpRequest, done func(error)) {
	o.flow.apply(req, collab.ApplyRemove, done)
}

func (f *HelperFlow) apply(req model.HelpRequest, op collab.ApplyOp, done func(error)) {
	f.Loop.Post(func() {
		snapshot := collab.WorkflowSnapshot{ActiveListID: f.Workflow.ActiveListID()}
		call(&f.scope, func(ctx context.Context) (struct{}, error) {
			return struct{}{}, f.services.Workflow.ApplyToWorkflow(ctx, req, snapshot, op)
		}, func(_ struct{}, err error) {
			if err != nil {
				f.opts.Logger.Info("workflow mutation failed", "op", op, "request", req.ID, "err", err)
			}
			f.refresh()
			if done != nil {
				done(err)
			}
		})
	})
}

func (f *HelperFlow) refresh() {
	f.Sync.Refresh()
	f.refreshActiveList()
}

// refreshActiveList re-fetches the caller's list. Not having one yet is not
// an error; any failure leaves the list unknown. Runs on the loop.
func (f *HelperFlow) refreshActiveList() {
	ticket := f.Workflow.ActiveList.Begin()
	f.opts.Metrics.Lookup(metrics.ActiveList)
	call(&f.scope, func(ctx context.Context) (model.HelpList, error) {
		return f.services.HelpLists.ActiveHelpList(ctx)
	}, func(list model.HelpList, err error) {
		var found *model.HelpList
		switch {
		case err == nil:
			found = &list
		case errors.Is(err, collab.ErrNotFound):
		default:
			f.opts.Logger.Debug("active list lookup failed", "err", err)
			f.opts.Metrics.Failed(metrics.ActiveList)
		}
		if !f.Workflow.ActiveList.Apply(ticket, found) {
			f.opts.Metrics.Dropped(metrics.ActiveList)
		}
	})
}

// loadUserZip seeds the filter with the caller's zip code, once per flow. A
// filter written by the user in the meantime wins.
func (f *HelperFlow) loadUserZip() {
	if f.zipLoaded {
		return
	}
	f.zipLoaded = true
	ticket := f.Filter.ZipCode.Begin()
	call(&f.scope, func(ctx context.Context) (model.User, error) {
		return f.services.Users.FindCurrentUser(ctx)
	}, func(user model.User, err error) {
		if err != nil {
			f.opts.Logger.Debug("current user lookup failed", "err", err)
			f.zipLoaded = false
			return
		}
		if zip := normalizeZip(user.ZipCode); zip != "" {
			f.Filter.ZipCode.Apply(ticket, zip)
		}
	})
}

// FilterSettings drives the filter screen.
type FilterSettings struct {
	flow *HelperFlow
	bag  state.Bag
}

func NewFilterSettings(f *HelperFlow) *FilterSettings {
	return &FilterSettings{flow: f}
}

func (s *FilterSettings) Bind(observer func()) {
	s.flow.Loop.Post(func() {
		s.bag.Release()
		s.bag.Subscribe(s.flow.Filter, observer)
	})
}

func (s *FilterSettings) Unbind() { s.flow.Loop.Post(s.bag.Release) }

// ZipCode is the zip currently filtered on, empty for none.
func (s *FilterSettings) ZipCode() string { return s.flow.Filter.ZipCode.Get() }

// Apply validates zip and writes it to the filter; an empty zip clears the
// filter. Invalid input is rejected without touching the store.
func (s *FilterSettings) Apply(zip string) error {
	zip = normalizeZip(zip)
	verr := &collab.ValidationError{}
	if zip != "" {
		checkZip(verr, zip)
	}
	if err := verr.Err(); err != nil {
		return err
	}
	s.flow.Loop.Post(func() {
		s.flow.Filter.ZipCode.Invalidate()
		s.flow.Filter.SetZipCode(zip)
	})
	return nil
}
