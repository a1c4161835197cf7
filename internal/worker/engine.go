package worker

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	"github.com/Cypherspark/reminder-bot/internal/core"
	"github.com/Cypherspark/reminder-bot/internal/metrics"
	"github.com/Cypherspark/reminder-bot/internal/notifier"
)

type Options struct {
	BatchSize    int           // max reminders fetched per invocation
	Concurrency  int           // number of sender goroutines
	Lookback     time.Duration // how far before the current minute due reminders are still picked up
	NotifyQPS    float64       // sustained DM rate
	NotifyBurst  int           // burst to allow short spikes
	SendTimeout  time.Duration // per-send timeout
	StoreTimeout time.Duration // per store call
}

func DefaultOptions() Options {
	return Options{
		BatchSize:    5000,
		Concurrency:  8,
		Lookback:     24 * time.Hour,
		NotifyQPS:    40,
		NotifyBurst:  10,
		SendTimeout:  10 * time.Second,
		StoreTimeout: 5 * time.Second,
	}
}

// Result is the outcome for one due reminder.
type Result struct {
	ReminderID string
	UserID     string
	Delivered  bool
	// Status is what the store holds after processing: complete, failed, or
	// pending when the status write itself failed.
	Status core.Status
	Err    error
}

// Summary aggregates one invocation. Processed counts reminders that reached
// complete; Failed counts the rest.
type Summary struct {
	WindowFrom time.Time
	WindowTo   time.Time
	TotalDue   int
	Processed  int
	Failed     int
	CapHit     bool
	// Expired counts pending reminders due before WindowFrom, capped at the
	// batch size. No run will pick them up, but they still hold quota.
	Expired    int
	Results    []Result
}

// Dispatcher delivers due reminders and finalizes their status.
type Dispatcher struct {
	store    core.Store
	notifier notifier.Notifier
	log      zerolog.Logger
	opt      Options
	limiter  *rate.Limiter
}

func New(store core.Store, n notifier.Notifier, log zerolog.Logger, opt Options) *Dispatcher {
	def := DefaultOptions()
	if opt.BatchSize <= 0 {
		opt.BatchSize = def.BatchSize
	}
	if opt.Concurrency <= 0 {
		opt.Concurrency = def.Concurrency
	}
	if opt.Lookback < 0 {
		opt.Lookback = 0
	}
	if opt.NotifyQPS <= 0 {
		opt.NotifyQPS = def.NotifyQPS
	}
	if opt.NotifyBurst <= 0 {
		opt.NotifyBurst = def.NotifyBurst
	}
	if opt.SendTimeout <= 0 {
		opt.SendTimeout = def.SendTimeout
	}
	if opt.StoreTimeout <= 0 {
		opt.StoreTimeout = def.StoreTimeout
	}
	return &Dispatcher{
		store:    store,
		notifier: n,
		log:      log,
		opt:      opt,
		// Rate limiter for outbound DMs (global for this process).
		limiter: rate.NewLimiter(rate.Limit(opt.NotifyQPS), opt.NotifyBurst),
	}
}

// Window returns the due range one invocation at now is responsible for:
// [minuteStart - lookback, minuteEnd). The lookback lets a run pick up what an
// earlier run deferred (batch cap, downtime, failed status writes).
func Window(now time.Time, lookback time.Duration) (from, to time.Time) {
	start := now.UTC().Truncate(time.Minute)
	return start.Add(-lookback), start.Add(time.Minute)
}

// RunOnce processes a single batch. The returned error is non-nil only when
// the due reminders could not be fetched; item failures are reported in the
// summary.
func (d *Dispatcher) RunOnce(ctx context.Context, now time.Time) (Summary, error) {
	from, to := Window(now, d.opt.Lookback)
	sum := Summary{WindowFrom: from, WindowTo: to}

	fctx, cancel := context.WithTimeout(ctx, d.opt.StoreTimeout)
	due, err := d.store.List(fctx, core.Filter{
		Status:    core.StatusPending,
		DueFrom:   from,
		DueBefore: to,
		Order:     core.OrderDueAsc,
		Limit:     d.opt.BatchSize,
	})
	cancel()
	if err != nil {
		metrics.DispatchRuns.WithLabelValues("error").Inc()
		return sum, fmt.Errorf("%w: fetch due: %w", core.ErrStoreUnavailable, err)
	}

	sum.Expired = d.countExpired(ctx, from)

	sum.TotalDue = len(due)
	sum.CapHit = len(due) >= d.opt.BatchSize
	metrics.DispatchBatchSize.Observe(float64(len(due)))
	if sum.CapHit {
		metrics.BatchCapHit.Inc()
		d.log.Warn().Int("batch_size", d.opt.BatchSize).Msg("due reminders filled the batch cap; remainder deferred")
	}
	if len(due) == 0 {
		metrics.DispatchRuns.WithLabelValues("empty").Inc()
		return sum, nil
	}

	// Each sender writes only its own slot.
	results := make([]Result, len(due))
	jobs := make(chan int)
	var wg sync.WaitGroup
	workers := min(d.opt.Concurrency, len(due))
	wg.Add(workers)
	for i := 0; i < workers; i++ {
		go func() {
			defer wg.Done()
			for idx := range jobs {
				results[idx] = d.processOne(ctx, due[idx])
			}
		}()
	}
	for i := range due {
		jobs <- i
	}
	close(jobs)
	wg.Wait()

	sum.Results = results
	for _, r := range results {
		if r.Status == core.StatusComplete {
			sum.Processed++
		} else {
			sum.Failed++
		}
	}
	metrics.DispatchRuns.WithLabelValues("ok").Inc()
	return sum, nil
}

func (d *Dispatcher) countExpired(ctx context.Context, before time.Time) int {
	ectx, cancel := context.WithTimeout(ctx, d.opt.StoreTimeout)
	defer cancel()
	stale, err := d.store.List(ectx, core.Filter{
		Status:    core.StatusPending,
		DueBefore: before,
		Limit:     d.opt.BatchSize,
	})
	if err != nil {
		d.log.Warn().Err(err).Msg("count expired reminders")
		return 0
	}
	metrics.ExpiredPending.Set(float64(len(stale)))
	if len(stale) > 0 {
		d.log.Warn().Int("expired", len(stale)).Time("before", before).
			Msg("pending reminders are older than the lookback and will not be sent")
	}
	return len(stale)
}

func (d *Dispatcher) processOne(ctx context.Context, r core.Reminder) (res Result) {
	res = Result{ReminderID: r.ID, UserID: r.UserID, Status: core.StatusPending}
	metrics.InFlight.Inc()
	defer metrics.InFlight.Dec()
	defer func() { metrics.NotifyTotal.WithLabelValues(outcome(res)).Inc() }()
	defer func() {
		// A panicking notifier must not take the batch down with it.
		if p := recover(); p != nil {
			res.Err = fmt.Errorf("%w: panic: %v", core.ErrNotificationDeliveryFailed, p)
			res.Status = d.transition(ctx, r, core.StatusFailed, &res)
		}
	}()

	log := d.log.With().Str("reminder_id", r.ID).Str("user_id", r.UserID).Logger()

	if err := d.send(ctx, r); err != nil {
		res.Err = fmt.Errorf("%w: %w", core.ErrNotificationDeliveryFailed, err)
		log.Error().Err(err).Msg("notify failed")
		res.Status = d.transition(ctx, r, core.StatusFailed, &res)
		return res
	}
	res.Delivered = true
	res.Status = d.transition(ctx, r, core.StatusComplete, &res)
	return res
}

func (d *Dispatcher) send(ctx context.Context, r core.Reminder) error {
	// Respect the DM rate limit; a cancelled wait counts as not delivered.
	if err := d.limiter.Wait(ctx); err != nil {
		return err
	}
	sctx, cancel := context.WithTimeout(ctx, d.opt.SendTimeout)
	defer cancel()

	start := time.Now()
	err := d.notifier.Notify(sctx, r.UserID, core.NotificationText(r))
	metrics.NotifyDuration.Observe(time.Since(start).Seconds())
	return err
}

// transition writes pending -> to. On a write failure the reminder stays
// pending and will be retried next run, possibly sending a second DM.
func (d *Dispatcher) transition(ctx context.Context, r core.Reminder, to core.Status, res *Result) core.Status {
	uctx, cancel := context.WithTimeout(ctx, d.opt.StoreTimeout)
	defer cancel()
	updated, err := d.store.UpdateStatus(uctx, r.ID, core.StatusPending, to)
	if err != nil {
		werr := fmt.Errorf("mark %s: %w", to, err)
		res.Err = errors.Join(res.Err, werr)
		d.log.Error().Err(err).Str("reminder_id", r.ID).Str("to", string(to)).Msg("status update failed")
		if errors.Is(err, core.ErrStatusConflict) {
			// Someone else finalized it (e.g. the user cancelled mid-run).
			if cur, gerr := d.store.Get(uctx, r.ID); gerr == nil {
				return cur.Status
			}
		}
		return core.StatusPending
	}
	return updated.Status
}

func outcome(r Result) string {
	switch r.Status {
	case core.StatusComplete:
		return "complete"
	case core.StatusFailed:
		return "failed"
	case core.StatusPending:
		return "left_pending"
	}
	return string(r.Status)
}
