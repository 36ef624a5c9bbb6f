package registry

import (
	"context"
	"errors"
	"time"

	"authright.org/internal/auth"
	"authright.org/internal/ids"
	"authright.org/internal/obs"
)

const (
	opRegister = "register"
	opApprove  = "approve"
	opClaim    = "claim"
)

// BlockSource supplies the current block height.
type BlockSource interface {
	BlockNumber() uint64
}

// Sink receives exactly one event per successful operation, after commit.
type Sink interface {
	Deposit(ctx context.Context, evt Event)
}

// SinkFunc adapts a function to Sink.
type SinkFunc func(ctx context.Context, evt Event)

func (f SinkFunc) Deposit(ctx context.Context, evt Event) { f(ctx, evt) }

// Sinks fans an event out to every non-nil sink in order.
func Sinks(sinks ...Sink) Sink {
	var out multiSink
	for _, s := range sinks {
		if s != nil {
			out = append(out, s)
		}
	}
	return out
}

type multiSink []Sink

func (m multiSink) Deposit(ctx context.Context, evt Event) {
	for _, s := range m {
		s.Deposit(ctx, evt)
	}
}

// Registry applies the organization lifecycle and claim operations.
type Registry struct {
	store  Store
	blocks BlockSource
	sink   Sink
	now    func() time.Time
}

// Option configures Registry.
type Option func(*Registry)

// WithSink sets the event sink.
func WithSink(s Sink) Option {
	return func(r *Registry) {
		if s != nil {
			r.sink = s
		}
	}
}

// WithClock overrides the wall clock used for event timestamps.
func WithClock(now func() time.Time) Option {
	return func(r *Registry) {
		if now != nil {
			r.now = now
		}
	}
}

// New constructs a Registry over store, reading heights from blocks.
func New(store Store, blocks BlockSource, opts ...Option) *Registry {
	r := &Registry{
		store:  store,
		blocks: blocks,
		sink:   Sinks(),
		now:    func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Register creates an unapproved organization. Any signed account may register.
func (r *Registry) Register(ctx context.Context, origin auth.Origin, code, name []byte) (Event, error) {
	who, err := origin.EnsureSigned()
	if err != nil {
		return r.fail(opRegister, err)
	}
	err = r.store.Update(ctx, func(tx Tx) error {
		orgs := tx.Organizations()
		exists, err := orgs.Contains(ctx, code)
		if err != nil {
			return err
		}
		if exists {
			return ErrOrganizationAlreadyExists
		}
		return orgs.Insert(ctx, code, Organization{Code: clone(code), Name: clone(name), Status: false})
	})
	if err != nil {
		return r.fail(opRegister, err)
	}

	evt := r.newEvent(EventOrganizationRegistered, who)
	evt.Code = clone(code)
	evt.Name = clone(name)
	return r.emit(ctx, opRegister, evt), nil
}

// Approve sets an organization's status. It both approves (true) and
// suspends (false); the caller must hold the privileged authority.
func (r *Registry) Approve(ctx context.Context, origin auth.Origin, code []byte, status bool) (Event, error) {
	who, err := origin.EnsureSignedRoot()
	if err != nil {
		return r.fail(opApprove, err)
	}
	err = r.store.Update(ctx, func(tx Tx) error {
		orgs := tx.Organizations()
		org, ok, err := orgs.Get(ctx, code)
		if err != nil {
			return err
		}
		if !ok {
			return ErrOrganizationNotFound
		}
		org.Status = status
		return orgs.Insert(ctx, code, org)
	})
	if err != nil {
		return r.fail(opApprove, err)
	}

	evt := r.newEvent(EventOrganizationApprovalChanged, who)
	evt.Code = clone(code)
	evt.Status = status
	return r.emit(ctx, opApprove, evt), nil
}

// Claim records hash as owned by the caller on behalf of an approved organization.
// Checks run in order: hash unclaimed, organization exists, organization approved.
func (r *Registry) Claim(ctx context.Context, origin auth.Origin, hash, description, orgCode []byte) (Event, error) {
	who, err := origin.EnsureSigned()
	if err != nil {
		return r.fail(opClaim, err)
	}
	var block uint64
	err = r.store.Update(ctx, func(tx Tx) error {
		claimed, err := tx.AuthRights().Contains(ctx, hash)
		if err != nil {
			return err
		}
		if claimed {
			return ErrClaimAlreadyExists
		}
		org, ok, err := tx.Organizations().Get(ctx, orgCode)
		if err != nil {
			return err
		}
		if !ok {
			return ErrOrganizationNotFound
		}
		if !org.Status {
			return ErrOrganizationNotApproved
		}

		block = r.blocks.BlockNumber()
		detail := AuthDetail{
			Hash:        clone(hash),
			AccountID:   who,
			BlockNumber: block,
			Description: clone(description),
			OrgCode:     clone(orgCode),
		}
		if err := tx.AuthRights().Insert(ctx, hash, who); err != nil {
			return err
		}
		return tx.AuthDetails().Insert(ctx, hash, detail)
	})
	if err != nil {
		return r.fail(opClaim, err)
	}

	evt := r.newEvent(EventAuthRightClaimed, who)
	evt.Block = block
	evt.Hash = clone(hash)
	evt.Code = clone(orgCode)
	return r.emit(ctx, opClaim, evt), nil
}

// Organization returns the stored organization for code.
func (r *Registry) Organization(ctx context.Context, code []byte) (Organization, error) {
	var out Organization
	err := r.store.View(ctx, func(tx Tx) error {
		org, ok, err := tx.Organizations().Get(ctx, code)
		if err != nil {
			return err
		}
		if !ok {
			return ErrOrganizationNotFound
		}
		out = org
		return nil
	})
	return out, err
}

// AuthRight returns the account owning hash.
func (r *Registry) AuthRight(ctx context.Context, hash []byte) (string, error) {
	var owner string
	err := r.store.View(ctx, func(tx Tx) error {
		acct, ok, err := tx.AuthRights().Get(ctx, hash)
		if err != nil {
			return err
		}
		if !ok {
			return ErrClaimNotFound
		}
		owner = acct
		return nil
	})
	return owner, err
}

// AuthDetail returns the claim record for hash.
func (r *Registry) AuthDetail(ctx context.Context, hash []byte) (AuthDetail, error) {
	var out AuthDetail
	err := r.store.View(ctx, func(tx Tx) error {
		d, ok, err := tx.AuthDetails().Get(ctx, hash)
		if err != nil {
			return err
		}
		if !ok {
			return ErrClaimNotFound
		}
		out = d
		return nil
	})
	return out, err
}

func (r *Registry) newEvent(kind EventKind, account string) Event {
	return Event{
		ID:      ids.NewPrefixed("evt"),
		Kind:    kind,
		Account: account,
		Block:   r.blocks.BlockNumber(),
		At:      r.now(),
	}
}

func (r *Registry) emit(ctx context.Context, op string, evt Event) Event {
	obs.RecordOperation(op, "ok")
	obs.Logger().Debug().
		Str("event", string(evt.Kind)).
		Str("event_id", evt.ID).
		Str("account", evt.Account).
		Uint64("block", evt.Block).
		Msg("registry event")
	r.sink.Deposit(ctx, evt)
	return evt
}

func (r *Registry) fail(op string, err error) (Event, error) {
	obs.RecordOperation(op, Outcome(err))
	return Event{}, err
}

// Outcome classifies an operation error into a short metric/log label.
func Outcome(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, ErrOrganizationAlreadyExists):
		return "organization_exists"
	case errors.Is(err, ErrOrganizationNotFound):
		return "organization_not_found"
	case errors.Is(err, ErrOrganizationNotApproved):
		return "organization_not_approved"
	case errors.Is(err, ErrClaimAlreadyExists):
		return "claim_exists"
	case errors.Is(err, ErrClaimNotFound):
		return "claim_not_found"
	case errors.Is(err, auth.ErrBadOrigin):
		return "bad_origin"
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return "canceled"
	default:
		return "error"
	}
}
