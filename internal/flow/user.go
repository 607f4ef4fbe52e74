package flow

import (
	"context"
	"strings"

	"github.com/nexd/nexd/internal/collab"
	"github.com/nexd/nexd/internal/loop"
	"github.com/nexd/nexd/internal/model"
	"github.com/nexd/nexd/internal/state"
)

// UserDetails drives the onboarding screen that completes the caller's
// profile with a zip code and a phone number.
type UserDetails struct {
	scope
	User *state.Field[model.User]
	bag  state.Bag
}

func NewUserDetails(ctx context.Context, l *loop.Loop, users collab.Users, opts Options) *UserDetails {
	return &UserDetails{
		scope: newScope(ctx, l, collab.Services{Users: users}, opts),
		User:  state.NewField(nil, model.User{}),
	}
}

func (d *UserDetails) Close() { d.cancel() }

// Bind calls observer with the known profile now and after it is loaded.
func (d *UserDetails) Bind(observer func(model.User)) {
	d.Loop.Post(func() {
		d.bag.Release()
		state.Observe(&d.bag, d.User, observer)
		ticket := d.User.Begin()
		call(&d.scope, func(ctx context.Context) (model.User, error) {
			return d.services.Users.FindCurrentUser(ctx)
		}, func(user model.User, err error) {
			if err != nil {
				d.opts.Logger.Debug("profile lookup failed", "err", err)
				return
			}
			d.User.Apply(ticket, user)
		})
	})
}

func (d *UserDetails) Unbind() { d.Loop.Post(d.bag.Release) }

// Save validates zip and phone and updates the profile. Validation errors
// are reported to done without a network call, and so is a save before the
// profile has loaded: the update carries the loaded names. done runs on the
// loop.
func (d *UserDetails) Save(zip, phone string, done func(model.User, error)) {
	zip, phone = normalizeZip(zip), strings.TrimSpace(phone)
	d.Loop.Post(func() {
		verr := &collab.ValidationError{}
		checkZip(verr, zip)
		checkRequired(verr, FieldPhone, phone)
		checkPhone(verr, phone)
		if err := verr.Err(); err != nil {
			if done != nil {
				done(model.User{}, err)
			}
			return
		}
		current := d.User.Get()
		if current.ID == "" {
			err := &collab.Error{Op: "UpdateCurrentUser", Kind: collab.ErrRequestFailed, Err: ErrProfileNotLoaded}
			if done != nil {
				done(model.User{}, err)
			}
			return
		}
		update := collab.UserUpdate{
			FirstName:   current.FirstName,
			LastName:    current.LastName,
			ZipCode:     zip,
			PhoneNumber: phone,
		}
		d.User.Invalidate()
		call(&d.scope, func(ctx context.Context) (model.User, error) {
			return d.services.Users.UpdateCurrentUser(ctx, update)
		}, func(user model.User, err error) {
			if err != nil {
				d.opts.Logger.Info("updating profile failed", "err", err)
			} else {
				d.User.Set(user)
			}
			if done != nil {
				done(user, err)
			}
		})
	})
}
