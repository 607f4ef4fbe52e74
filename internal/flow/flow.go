// Package flow holds the flow-scoped stores and the screen controllers that
// read and write them.
//
// A HelperFlow or SeekerFlow is created by the root when the user enters a
// role and closed when they leave it. Controllers take the flow they belong
// to; their exported methods may be called from any goroutine and do their
// work on the flow's loop. Observers and done callbacks run on the loop.
package flow

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/nexd/nexd/internal/clock"
	"github.com/nexd/nexd/internal/collab"
	"github.com/nexd/nexd/internal/loop"
	"github.com/nexd/nexd/internal/metrics"
	"github.com/nexd/nexd/internal/model"
	"github.com/nexd/nexd/internal/pipeline"
	"github.com/nexd/nexd/internal/state"
)

// Options configure a flow. Zero values take the pipeline defaults.
type Options struct {
	Clock    clock.Clock
	Debounce time.Duration
	Limit    int
	Language string
	Timeout  time.Duration
	Logger   *slog.Logger
	Metrics  *metrics.Pipelines

	// MatchLateUnits pre-selects the unit of an accepted suggestion once the
	// unit catalog arrives, when it was not loaded at acceptance time.
	MatchLateUnits bool
}

func (o Options) pipeline() pipeline.Options {
	return pipeline.Options{
		Clock:    o.Clock,
		Window:   o.Debounce,
		Limit:    o.Limit,
		Language: o.Language,
		Timeout:  o.Timeout,
		Logger:   o.Logger,
		Metrics:  o.Metrics,
	}
}

func (o Options) withDefaults() Options {
	if o.Logger == nil {
		o.Logger = slog.New(slog.DiscardHandler)
	}
	if o.Timeout <= 0 {
		o.Timeout = pipeline.DefaultTimeout
	}
	return o
}

// scope is what every flow shares: the loop its stores live on, the
// collaborators, and a context cancelled when the flow closes.
type scope struct {
	Loop     *loop.Loop
	services collab.Services
	opts     Options
	ctx      context.Context
	cancel   context.CancelFunc
}

func newScope(ctx context.Context, l *loop.Loop, services collab.Services, opts Options) scope {
	ctx, cancel := context.WithCancel(ctx)
	return scope{Loop: l, services: services, opts: opts.withDefaults(), ctx: ctx, cancel: cancel}
}

// call runs fn off the loop with the configured timeout and hands the
// result to deliver on the loop.
func call[T any](s *scope, fn func(context.Context) (T, error), deliver func(T, error)) {
	ctx, cancel := context.WithTimeout(s.ctx, s.opts.Timeout)
	loop.Call(s.Loop, ctx, func(ctx context.Context) (T, error) {
		defer cancel()
		return fn(ctx)
	}, deliver)
}

// HelperFlow is the context of the helper role: the workflow record and the
// request filter, shared by every helper screen.
type HelperFlow struct {
	scope
	Workflow *state.Workflow
	Filter   *state.Filter
	Sync     *pipeline.Synchronizer

	// Only touched on the loop.
	zipLoaded bool
}

func NewHelperFlow(ctx context.Context, l *loop.Loop, services collab.Services, opts Options) *HelperFlow {
	f := &HelperFlow{
		scope:    newScope(ctx, l, services, opts),
		Workflow: state.NewWorkflow(),
		Filter:   state.NewFilter(),
	}
	f.Sync = pipeline.NewSynchronizer(f.ctx, l, services.HelpRequests, f.Workflow, f.Filter, f.opts.pipeline())
	return f
}

// Close cancels in-flight calls. Results arriving afterwards are dropped.
func (f *HelperFlow) Close() { f.cancel() }

// SeekerFlow is the context of the seeker role: the items being put
// together and the unit catalog.
type SeekerFlow struct {
	scope
	Selection *state.ItemSelection

	// Only touched on the loop.
	unitsRequested bool
}

func NewSeekerFlow(ctx context.Context, l *loop.Loop, services collab.Services, opts Options) *SeekerFlow {
	f := &SeekerFlow{scope: newScope(ctx, l, services, opts)}
	f.Selection = state.NewItemSelection(f.opts.Language)
	return f
}

func (f *SeekerFlow) Close() { f.cancel() }

// loadUnits fetches the unit catalog once per flow. Runs on the loop.
func (f *SeekerFlow) loadUnits() {
	if f.unitsRequested {
		return
	}
	f.unitsRequested = true
	ticket := f.Selection.Units.Begin()
	call(&f.scope, func(ctx context.Context) ([]model.Unit, error) {
		return f.services.Articles.ListUnits(ctx, f.Selection.Language)
	}, func(units []model.Unit, err error) {
		if err != nil {
			f.opts.Logger.Warn("loading unit catalog failed", "err", err)
			f.unitsRequested = false
			return
		}
		f.Selection.Units.Apply(ticket, units)
	})
}

var (
	// ErrProfileNotLoaded rejects a profile save before the profile it
	// amends has been fetched.
	ErrProfileNotLoaded = errors.New("profile not loaded")
	// ErrSubmitInProgress rejects a submit while an earlier one is running.
	ErrSubmitInProgress = errors.New("submission in progress")
)

// UserMessage renders err as the single message shown to the user.
func UserMessage(err error) string {
	if err == nil {
		return ""
	}
	var verr *collab.ValidationError
	switch {
	case errors.As(err, &verr) && len(verr.Fields) > 0:
		parts := make([]string, 0, len(verr.Fields))
		for _, f := range verr.Fields {
			parts = append(parts, fieldLabel(f.Field)+" "+f.Reason)
		}
		return "Please check your input: " + strings.Join(parts, "; ") + "."
	case errors.Is(err, ErrProfileNotLoaded):
		return "Your profile is still loading. Please try again in a moment."
	case errors.Is(err, ErrSubmitInProgress):
		return "Your request is already being sent."
	case errors.Is(err, collab.ErrValidation):
		return "The server rejected your input."
	case errors.Is(err, collab.ErrConflict):
		return "Someone else already took care of this request."
	case errors.Is(err, collab.ErrNotFound):
		return "That no longer exists."
	case errors.Is(err, context.Canceled):
		return ""
	case errors.Is(err, collab.ErrRequestFailed), errors.Is(err, context.DeadlineExceeded):
		return "Could not reach the server. Please try again."
	default:
		return "Something went wrong. Please try again."
	}
}
