package worker_test

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/Cypherspark/reminder-bot/internal/core"
	database "github.com/Cypherspark/reminder-bot/internal/db"
	"github.com/Cypherspark/reminder-bot/internal/notifier"
	"github.com/Cypherspark/reminder-bot/internal/worker"
)

var now = time.Date(2024, 1, 1, 10, 0, 42, 0, time.UTC)

func opts() worker.Options {
	o := worker.DefaultOptions()
	o.Lookback = 0
	o.NotifyQPS = 1000
	o.NotifyBurst = 1000
	return o
}

func seed(m *database.Memory, user string, due time.Time) core.Reminder {
	return m.Put(core.Reminder{UserID: user, ChannelID: "c", TargetMessageID: user + "-msg", ReminderDateTime: due})
}

func status(t *testing.T, m *database.Memory, id string) core.Status {
	t.Helper()
	r, err := m.Get(context.Background(), id)
	require.NoError(t, err)
	return r.Status
}

// recorder is a notifier that fails for selected users.
type recorder struct {
	mu      sync.Mutex
	failFor map[string]bool
	sent    []string
}

func (r *recorder) Notify(_ context.Context, userID, content string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.failFor[userID] {
		return errors.New("cannot send messages to this user")
	}
	r.sent = append(r.sent, content)
	return nil
}

func TestWindow(t *testing.T) {
	from, to := worker.Window(now, 0)
	require.Equal(t, time.Date(2024, 1, 1, 10, 0, 0, 0, time.UTC), from)
	require.Equal(t, time.Date(2024, 1, 1, 10, 1, 0, 0, time.UTC), to)

	from, _ = worker.Window(now.In(time.FixedZone("X", -7*3600)), time.Hour)
	require.Equal(t, time.Date(2024, 1, 1, 9, 0, 0, 0, time.UTC), from)
}

func TestRunOnce_WindowAndOutcomes(t *testing.T) {
	m := database.NewMemory()
	a := seed(m, "a", now.Truncate(time.Minute))
	b := seed(m, "b", now)
	c := seed(m, "c", now.Truncate(time.Minute).Add(59*time.Second))
	before := seed(m, "before", now.Truncate(time.Minute).Add(-time.Second))
	after := seed(m, "after", now.Truncate(time.Minute).Add(time.Minute))

	n := &recorder{failFor: map[string]bool{"c": true}}
	d := worker.New(m, n, zerolog.Nop(), opts())

	sum, err := d.RunOnce(context.Background(), now)
	require.NoError(t, err)
	require.Equal(t, 3, sum.TotalDue)
	require.Equal(t, 2, sum.Processed)
	require.Equal(t, 1, sum.Failed)
	require.False(t, sum.CapHit)
	require.Len(t, sum.Results, 3)
	require.Equal(t, 1, sum.Expired)

	require.Equal(t, core.StatusComplete, status(t, m, a.ID))
	require.Equal(t, core.StatusComplete, status(t, m, b.ID))
	require.Equal(t, core.StatusFailed, status(t, m, c.ID))
	require.Equal(t, core.StatusPending, status(t, m, before.ID))
	require.Equal(t, core.StatusPending, status(t, m, after.ID))

	for _, res := range sum.Results {
		if res.ReminderID == c.ID {
			require.False(t, res.Delivered)
			require.ErrorIs(t, res.Err, core.ErrNotificationDeliveryFailed)
		} else {
			require.True(t, res.Delivered)
			require.NoError(t, res.Err)
		}
	}
	require.Len(t, n.sent, 2)
	require.Contains(t, n.sent[0], "here's your reminder!")
}

func TestRunOnce_RerunIsNoop(t *testing.T) {
	m := database.NewMemory()
	seed(m, "a", now)
	var calls atomic.Int32
	d := worker.New(m, notifier.Func(func(context.Context, string, string) error {
		calls.Add(1)
		return nil
	}), zerolog.Nop(), opts())

	_, err := d.RunOnce(context.Background(), now)
	require.NoError(t, err)

	sum, err := d.RunOnce(context.Background(), now)
	require.NoError(t, err)
	require.Equal(t, 0, sum.TotalDue)
	require.Equal(t, 0, sum.Processed)
	require.Equal(t, 0, sum.Failed)
	require.Equal(t, int32(1), calls.Load())
}

func TestRunOnce_LookbackPicksUpMissedReminders(t *testing.T) {
	m := database.NewMemory()
	missed := seed(m, "a", now.Add(-3*time.Hour))
	tooOld := seed(m, "b", now.Add(-48*time.Hour))

	o := opts()
	o.Lookback = 24 * time.Hour
	d := worker.New(m, notifier.Func(func(context.Context, string, string) error { return nil }), zerolog.Nop(), o)

	sum, err := d.RunOnce(context.Background(), now)
	require.NoError(t, err)
	require.Equal(t, 1, sum.Processed)
	require.Equal(t, core.StatusComplete, status(t, m, missed.ID))
	require.Equal(t, core.StatusPending, status(t, m, tooOld.ID))
	require.Equal(t, 1, sum.Expired)
}

func TestRunOnce_BatchCapDrainsOldestFirst(t *testing.T) {
	m := database.NewMemory()
	var seeded []core.Reminder
	for i := 0; i < 5; i++ {
		seeded = append(seeded, m.Put(core.Reminder{UserID: "u", TargetMessageID: string(rune('a' + i)),
			ReminderDateTime: now.Add(-time.Duration(5-i) * time.Minute)}))
	}
	o := opts()
	o.Lookback = time.Hour
	o.BatchSize = 2
	d := worker.New(m, notifier.Func(func(context.Context, string, string) error { return nil }), zerolog.Nop(), o)

	sum, err := d.RunOnce(context.Background(), now)
	require.NoError(t, err)
	require.True(t, sum.CapHit)
	require.Equal(t, 2, sum.Processed)
	require.Equal(t, core.StatusComplete, status(t, m, seeded[0].ID))
	require.Equal(t, core.StatusComplete, status(t, m, seeded[1].ID))
	require.Equal(t, core.StatusPending, status(t, m, seeded[2].ID))

	for i := 0; i < 2; i++ {
		_, err = d.RunOnce(context.Background(), now.Add(time.Minute))
		require.NoError(t, err)
	}
	for _, r := range seeded {
		require.Equal(t, core.StatusComplete, status(t, m, r.ID))
	}
}

func TestRunOnce_StatusWriteFailureLeavesPending(t *testing.T) {
	m := database.NewMemory()
	r := seed(m, "a", now)
	m.Fail = func(op string) error {
		if op == "update_status" {
			return errors.New("write timeout")
		}
		return nil
	}
	d := worker.New(m, notifier.Func(func(context.Context, string, string) error { return nil }), zerolog.Nop(), opts())

	sum, err := d.RunOnce(context.Background(), now)
	require.NoError(t, err)
	require.Equal(t, 0, sum.Processed)
	require.Equal(t, 1, sum.Failed)
	require.True(t, sum.Results[0].Delivered)
	require.Equal(t, core.StatusPending, sum.Results[0].Status)
	require.Error(t, sum.Results[0].Err)

	m.Fail = nil
	require.Equal(t, core.StatusPending, status(t, m, r.ID))
}

func TestRunOnce_FetchFailure(t *testing.T) {
	m := database.NewMemory()
	m.Fail = func(op string) error {
		if op == "list" {
			return errors.New("db down")
		}
		return nil
	}
	d := worker.New(m, notifier.NewDummy(zerolog.Nop()), zerolog.Nop(), opts())
	_, err := d.RunOnce(context.Background(), now)
	require.ErrorIs(t, err, core.ErrStoreUnavailable)
}

func TestRunOnce_CancelledMidRunIsNotOverwritten(t *testing.T) {
	m := database.NewMemory()
	r := seed(m, "a", now)
	svc := core.NewService(m, core.Options{})

	d := worker.New(m, notifier.Func(func(ctx context.Context, userID, _ string) error {
		_, err := svc.Cancel(ctx, userID, r.ID)
		return err
	}), zerolog.Nop(), opts())

	sum, err := d.RunOnce(context.Background(), now)
	require.NoError(t, err)
	require.Equal(t, 1, sum.Failed)
	require.Equal(t, core.StatusCancelled, sum.Results[0].Status)
	require.ErrorIs(t, sum.Results[0].Err, core.ErrStatusConflict)
	require.Equal(t, core.StatusCancelled, status(t, m, r.ID))
}

func TestRunOnce_PanickingNotifierMarksFailed(t *testing.T) {
	m := database.NewMemory()
	bad := seed(m, "bad", now)
	good := seed(m, "good", now)

	d := worker.New(m, notifier.Func(func(_ context.Context, userID, _ string) error {
		if userID == "bad" {
			panic("nil session")
		}
		return nil
	}), zerolog.Nop(), opts())

	sum, err := d.RunOnce(context.Background(), now)
	require.NoError(t, err)
	require.Equal(t, 1, sum.Processed)
	require.Equal(t, 1, sum.Failed)
	require.Equal(t, core.StatusFailed, status(t, m, bad.ID))
	require.Equal(t, core.StatusComplete, status(t, m, good.ID))
}

func TestRunOnce_ExpiredCountSurvivesStoreHiccup(t *testing.T) {
	m := database.NewMemory()
	seed(m, "a", now)
	seed(m, "old", now.Add(-time.Hour))

	var lists atomic.Int32
	m.Fail = func(op string) error {
		// the due fetch is the first list; the expired count the second
		if op == "list" && lists.Add(1) == 2 {
			return errors.New("timeout")
		}
		return nil
	}
	d := worker.New(m, notifier.Func(func(context.Context, string, string) error { return nil }), zerolog.Nop(), opts())

	sum, err := d.RunOnce(context.Background(), now)
	require.NoError(t, err)
	require.Equal(t, 1, sum.Processed)
	require.Zero(t, sum.Expired)
}
