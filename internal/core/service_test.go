package core_test

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/Cypherspark/reminder-bot/internal/core"
	database "github.com/Cypherspark/reminder-bot/internal/db"
)

var fixedNow = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

func newService(t *testing.T, opt core.Options) (*core.Service, *database.Memory) {
	t.Helper()
	store := database.NewMemory()
	if opt.Now == nil {
		opt.Now = func() time.Time { return fixedNow }
	}
	return core.NewService(store, opt), store
}

func createReq(user, msg, input string) core.CreateRequest {
	return core.CreateRequest{UserID: user, GuildID: "g", ChannelID: "c", TargetMessageID: msg, TimeInput: input}
}

func TestCreate_StoresPendingReminder(t *testing.T) {
	svc, store := newService(t, core.Options{})

	r, err := svc.Create(context.Background(), createReq("u1", "m1", "30m"))
	require.NoError(t, err)
	require.Equal(t, core.StatusPending, r.Status)
	require.Equal(t, fixedNow.Add(30*time.Minute), r.ReminderDateTime)
	require.Equal(t, "30m", r.ReminderTimeInput)
	require.NotEmpty(t, r.ID)

	got, err := store.Get(context.Background(), r.ID)
	require.NoError(t, err)
	require.Equal(t, r, got)
}

func TestCreate_RejectionsDoNotWrite(t *testing.T) {
	svc, store := newService(t, core.Options{})
	ctx := context.Background()

	_, err := svc.Create(ctx, createReq("u1", "m1", "soon"))
	require.ErrorIs(t, err, core.ErrInvalidFormat)
	_, err = svc.Create(ctx, createReq("u1", "m1", "31d"))
	require.ErrorIs(t, err, core.ErrDurationTooLong)
	_, err = svc.Create(ctx, createReq("", "m1", "1h"))
	require.ErrorIs(t, err, core.ErrUnidentifiedUser)

	all, err := store.List(ctx, core.Filter{})
	require.NoError(t, err)
	require.Empty(t, all)
}

func TestCreate_DuplicateOnlyWhilePending(t *testing.T) {
	svc, _ := newService(t, core.Options{})
	ctx := context.Background()

	first, err := svc.Create(ctx, createReq("u1", "m1", "1h"))
	require.NoError(t, err)

	_, err = svc.Create(ctx, createReq("u1", "m1", "2h"))
	require.ErrorIs(t, err, core.ErrDuplicateReminder)

	// another user may remind themselves of the same message
	_, err = svc.Create(ctx, createReq("u2", "m1", "2h"))
	require.NoError(t, err)

	_, err = svc.Cancel(ctx, "u1", first.ID)
	require.NoError(t, err)
	_, err = svc.Create(ctx, createReq("u1", "m1", "2h"))
	require.NoError(t, err)
}

func TestCreate_Quota(t *testing.T) {
	svc, _ := newService(t, core.Options{MaxPendingPerUser: 3})
	ctx := context.Background()

	var ids []string
	for i := 0; i < 3; i++ {
		r, err := svc.Create(ctx, createReq("u1", fmt.Sprintf("m%d", i), "1h"))
		require.NoError(t, err)
		ids = append(ids, r.ID)
	}
	_, err := svc.Create(ctx, createReq("u1", "m9", "1h"))
	require.ErrorIs(t, err, core.ErrQuotaExceeded)
	require.Equal(t, 3, svc.MaxPendingPerUser())

	// quota is per user
	_, err = svc.Create(ctx, createReq("u2", "m9", "1h"))
	require.NoError(t, err)

	_, err = svc.Cancel(ctx, "u1", ids[0])
	require.NoError(t, err)
	_, err = svc.Create(ctx, createReq("u1", "m9", "1h"))
	require.NoError(t, err)
}

func TestCreate_DefaultQuotaIs25(t *testing.T) {
	svc, _ := newService(t, core.Options{})
	ctx := context.Background()
	for i := 0; i < core.DefaultMaxPendingPerUser; i++ {
		_, err := svc.Create(ctx, createReq("u1", fmt.Sprintf("m%d", i), "1d"))
		require.NoError(t, err)
	}
	_, err := svc.Create(ctx, createReq("u1", "one-more", "1d"))
	require.ErrorIs(t, err, core.ErrQuotaExceeded)
}

func TestCreate_StoreFailure(t *testing.T) {
	svc, store := newService(t, core.Options{})
	store.Fail = func(op string) error {
		if op == "create" {
			return errors.New("boom")
		}
		return nil
	}
	_, err := svc.Create(context.Background(), createReq("u1", "m1", "1h"))
	require.ErrorIs(t, err, core.ErrStoreUnavailable)
}

func TestList_FiltersAndOrders(t *testing.T) {
	svc, store := newService(t, core.Options{ListLimit: 2})
	ctx := context.Background()

	base := fixedNow
	store.Put(core.Reminder{ID: "old", UserID: "u1", CreatedAt: base.Add(-3 * time.Hour)})
	store.Put(core.Reminder{ID: "mid", UserID: "u1", CreatedAt: base.Add(-2 * time.Hour)})
	store.Put(core.Reminder{ID: "new", UserID: "u1", CreatedAt: base.Add(-1 * time.Hour)})
	store.Put(core.Reminder{ID: "done", UserID: "u1", Status: core.StatusComplete, CreatedAt: base})
	store.Put(core.Reminder{ID: "other", UserID: "u2", CreatedAt: base})

	got, err := svc.List(ctx, "u1", "")
	require.NoError(t, err)
	require.Equal(t, []string{"new", "mid"}, ids(got))

	got, err = svc.List(ctx, "u1", core.StatusComplete)
	require.NoError(t, err)
	require.Equal(t, []string{"done"}, ids(got))

	got, err = svc.List(ctx, "u1", core.StatusFailed)
	require.NoError(t, err)
	require.Empty(t, got)

	_, err = svc.List(ctx, "u1", core.Status("done"))
	require.ErrorIs(t, err, core.ErrUnknownStatus)
	_, err = svc.List(ctx, "", core.StatusPending)
	require.ErrorIs(t, err, core.ErrUnidentifiedUser)
}

func TestListCancellable_CapsAtMenuSize(t *testing.T) {
	svc, store := newService(t, core.Options{MaxPendingPerUser: 50})
	for i := 0; i < 30; i++ {
		store.Put(core.Reminder{UserID: "u1", CreatedAt: fixedNow.Add(time.Duration(i) * time.Minute)})
	}
	got, err := svc.ListCancellable(context.Background(), "u1")
	require.NoError(t, err)
	require.Len(t, got, core.MaxCancelOptions)
	require.True(t, got[0].CreatedAt.After(got[1].CreatedAt))
}

func TestCancel(t *testing.T) {
	svc, store := newService(t, core.Options{})
	ctx := context.Background()

	r := store.Put(core.Reminder{UserID: "u1", TargetMessageID: "m1"})
	done := store.Put(core.Reminder{UserID: "u1", TargetMessageID: "m2", Status: core.StatusComplete})

	_, err := svc.Cancel(ctx, "u2", r.ID)
	require.ErrorIs(t, err, core.ErrForbidden)

	_, err = svc.Cancel(ctx, "u1", "nope")
	require.ErrorIs(t, err, core.ErrNotFound)
	_, err = svc.Cancel(ctx, "u1", "")
	require.ErrorIs(t, err, core.ErrNotFound)
	_, err = svc.Cancel(ctx, "", r.ID)
	require.ErrorIs(t, err, core.ErrUnidentifiedUser)

	_, err = svc.Cancel(ctx, "u1", done.ID)
	require.ErrorIs(t, err, core.ErrInvalidState)

	got, err := svc.Cancel(ctx, "u1", r.ID)
	require.NoError(t, err)
	require.Equal(t, core.StatusCancelled, got.Status)

	_, err = svc.Cancel(ctx, "u1", r.ID)
	require.ErrorIs(t, err, core.ErrInvalidState)
}

func TestCancel_StoreFailure(t *testing.T) {
	svc, store := newService(t, core.Options{})
	r := store.Put(core.Reminder{UserID: "u1"})
	store.Fail = func(op string) error {
		if op == "update_status" {
			return errors.New("conn reset")
		}
		return nil
	}
	_, err := svc.Cancel(context.Background(), "u1", r.ID)
	require.ErrorIs(t, err, core.ErrStoreUnavailable)

	store.Fail = nil
	cur, err := store.Get(context.Background(), r.ID)
	require.NoError(t, err)
	require.Equal(t, core.StatusPending, cur.Status)
}

func ids(rs []core.Reminder) []string {
	out := make([]string, 0, len(rs))
	for _, r := range rs {
		out = append(out, r.ID)
	}
	return out
}

func TestCreate_RequiresTargetMessage(t *testing.T) {
	svc, store := newService(t, core.Options{})
	ctx := context.Background()

	_, err := svc.Create(ctx, createReq("u1", "m1", "1h"))
	require.NoError(t, err)

	_, err = svc.Create(ctx, createReq("u1", "", "1h"))
	require.ErrorIs(t, err, core.ErrMissingTarget)
	_, err = svc.Create(ctx, createReq("u1", "  ", "1h"))
	require.ErrorIs(t, err, core.ErrMissingTarget)

	all, err := store.List(ctx, core.Filter{UserID: "u1"})
	require.NoError(t, err)
	require.Len(t, all, 1)
}

func TestCreate_DueTimeMatchesDueAt(t *testing.T) {
	svc, _ := newService(t, core.Options{})
	r, err := svc.Create(context.Background(), createReq("u1", "m1", "2d"))
	require.NoError(t, err)

	want, err := core.DueAt("2d", fixedNow)
	require.NoError(t, err)
	require.Equal(t, want, r.ReminderDateTime)
}
