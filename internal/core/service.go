package core

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
)

// Store is the persistence contract for reminders. Implementations must return
// ErrNotFound for unknown ids and ErrStatusConflict when UpdateStatus finds the
// reminder in a status other than from.
type Store interface {
	Create(ctx context.Context, r NewReminder) (Reminder, error)
	Get(ctx context.Context, id string) (Reminder, error)
	UpdateStatus(ctx context.Context, id string, from, to Status) (Reminder, error)
	List(ctx context.Context, f Filter) ([]Reminder, error)
	Ping(ctx context.Context) error
}

const (
	DefaultMaxPendingPerUser = 25
	DefaultListLimit         = 100
	DefaultStoreTimeout      = 5 * time.Second

	// MaxCancelOptions is the most options a Discord select menu can carry.
	MaxCancelOptions = 25
)

type Options struct {
	MaxPendingPerUser int
	ListLimit         int
	StoreTimeout      time.Duration
	Now               func() time.Time
}

// Service enforces the reminder lifecycle rules on top of a Store.
//
// Duplicate and quota checks are reads followed by a write with no
// transaction around them. Two concurrent creates from the same user can both
// pass the quota check.
type Service struct {
	store Store
	opt   Options
}

func NewService(store Store, opt Options) *Service {
	if opt.MaxPendingPerUser <= 0 {
		opt.MaxPendingPerUser = DefaultMaxPendingPerUser
	}
	if opt.ListLimit <= 0 {
		opt.ListLimit = DefaultListLimit
	}
	if opt.StoreTimeout <= 0 {
		opt.StoreTimeout = DefaultStoreTimeout
	}
	if opt.Now == nil {
		opt.Now = time.Now
	}
	return &Service{store: store, opt: opt}
}

func (s *Service) MaxPendingPerUser() int { return s.opt.MaxPendingPerUser }

type CreateRequest struct {
	UserID          string
	GuildID         string
	ChannelID       string
	TargetMessageID string
	TimeInput       string
}

// Create validates and stores a new pending reminder. All checks run before
// the single write, so a rejected request never mutates the store.
func (s *Service) Create(ctx context.Context, req CreateRequest) (Reminder, error) {
	due, err := DueAt(req.TimeInput, s.opt.Now().UTC())
	if err != nil {
		return Reminder{}, err
	}
	if strings.TrimSpace(req.UserID) == "" {
		return Reminder{}, ErrUnidentifiedUser
	}
	// An empty target would leave the duplicate lookup unconstrained.
	if strings.TrimSpace(req.TargetMessageID) == "" {
		return Reminder{}, ErrMissingTarget
	}

	dups, err := s.list(ctx, "find duplicate", Filter{
		UserID:          req.UserID,
		TargetMessageID: req.TargetMessageID,
		Status:          StatusPending,
		Limit:           1,
	})
	if err != nil {
		return Reminder{}, err
	}
	if len(dups) > 0 {
		return Reminder{}, ErrDuplicateReminder
	}

	pending, err := s.list(ctx, "count pending", Filter{
		UserID: req.UserID,
		Status: StatusPending,
		Limit:  s.opt.MaxPendingPerUser,
	})
	if err != nil {
		return Reminder{}, err
	}
	if len(pending) >= s.opt.MaxPendingPerUser {
		return Reminder{}, fmt.Errorf("%w: limit is %d", ErrQuotaExceeded, s.opt.MaxPendingPerUser)
	}

	cctx, cancel := context.WithTimeout(ctx, s.opt.StoreTimeout)
	defer cancel()
	r, err := s.store.Create(cctx, NewReminder{
		UserID:            req.UserID,
		GuildID:           req.GuildID,
		ChannelID:         req.ChannelID,
		TargetMessageID:   req.TargetMessageID,
		ReminderTimeInput: req.TimeInput,
		ReminderDateTime:  due,
	})
	if err != nil {
		return Reminder{}, storeErr("create", err)
	}
	return r, nil
}

// List returns the user's reminders in the given status, newest first. An
// empty status means pending.
func (s *Service) List(ctx context.Context, userID string, status Status) ([]Reminder, error) {
	if strings.TrimSpace(userID) == "" {
		return nil, ErrUnidentifiedUser
	}
	if status == "" {
		status = StatusPending
	}
	if !status.Valid() {
		return nil, fmt.Errorf("%w: %q", ErrUnknownStatus, status)
	}
	return s.list(ctx, "list", Filter{
		UserID: userID,
		Status: status,
		Order:  OrderCreatedDesc,
		Limit:  s.opt.ListLimit,
	})
}

// ListCancellable is the first phase of cancellation: the user's pending
// reminders, newest first, capped at what a select menu can show.
func (s *Service) ListCancellable(ctx context.Context, userID string) ([]Reminder, error) {
	if strings.TrimSpace(userID) == "" {
		return nil, ErrUnidentifiedUser
	}
	return s.list(ctx, "list cancellable", Filter{
		UserID: userID,
		Status: StatusPending,
		Order:  OrderCreatedDesc,
		Limit:  MaxCancelOptions,
	})
}

// Cancel is the second phase of cancellation. The selection carries only an
// id, so ownership and state are checked again against the store.
func (s *Service) Cancel(ctx context.Context, userID, reminderID string) (Reminder, error) {
	if strings.TrimSpace(userID) == "" {
		return Reminder{}, ErrUnidentifiedUser
	}
	if strings.TrimSpace(reminderID) == "" {
		return Reminder{}, ErrNotFound
	}

	cctx, cancel := context.WithTimeout(ctx, s.opt.StoreTimeout)
	defer cancel()

	r, err := s.store.Get(cctx, reminderID)
	if err != nil {
		return Reminder{}, storeErr("get", err)
	}
	if r.UserID != userID {
		return Reminder{}, ErrForbidden
	}
	if r.Status != StatusPending {
		return Reminder{}, fmt.Errorf("%w: reminder is %s", ErrInvalidState, r.Status)
	}

	updated, err := s.store.UpdateStatus(cctx, reminderID, StatusPending, StatusCancelled)
	if err != nil {
		if errors.Is(err, ErrStatusConflict) {
			return Reminder{}, fmt.Errorf("%w: %w", ErrInvalidState, err)
		}
		return Reminder{}, storeErr("cancel", err)
	}
	return updated, nil
}

func (s *Service) list(ctx context.Context, op string, f Filter) ([]Reminder, error) {
	cctx, cancel := context.WithTimeout(ctx, s.opt.StoreTimeout)
	defer cancel()
	out, err := s.store.List(cctx, f)
	if err != nil {
		return nil, storeErr(op, err)
	}
	return out, nil
}
