package main

import (
	"context"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"

	wpkg "github.com/Cypherspark/reminder-bot/internal/worker"
)

// cronLogger routes robfig/cron's own logging into zerolog.
type cronLogger struct {
	log zerolog.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.log.Debug().Fields(keysAndValues).Msg(msg)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.log.Error().Err(err).Fields(keysAndValues).Msg(msg)
}

var parser = cron.NewParser(cron.SecondOptional | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)

// newScheduler registers one dispatch job on schedule. Overlapping runs are
// skipped rather than queued.
func newScheduler(ctx context.Context, schedule string, d *wpkg.Dispatcher, log zerolog.Logger) (*cron.Cron, error) {
	cl := cronLogger{log: log}
	c := cron.New(
		cron.WithParser(parser),
		cron.WithLocation(time.UTC),
		cron.WithLogger(cl),
		cron.WithChain(cron.Recover(cl), cron.SkipIfStillRunning(cl)),
	)
	if _, err := c.AddFunc(schedule, func() { _ = dispatch(ctx, d, log) }); err != nil {
		return nil, err
	}
	return c, nil
}

// dispatch runs one batch and logs its summary.
func dispatch(ctx context.Context, d *wpkg.Dispatcher, log zerolog.Logger) error {
	start := time.Now()
	sum, err := d.RunOnce(ctx, start)
	if err != nil {
		log.Error().Err(err).Msg("dispatch run failed")
		return err
	}
	ev := log.Info()
	if sum.Failed > 0 {
		ev = log.Warn()
	}
	ev.Time("window_from", sum.WindowFrom).
		Time("window_to", sum.WindowTo).
		Int("total_due", sum.TotalDue).
		Int("processed", sum.Processed).
		Int("failed", sum.Failed).
		Bool("cap_hit", sum.CapHit).
		Int("expired", sum.Expired).
		Dur("took", time.Since(start)).
		Msg("dispatch run")
	for _, r := range sum.Results {
		if r.Err != nil {
			log.Debug().Err(r.Err).Str("reminder_id", r.ReminderID).Str("status", string(r.Status)).Msg("reminder not completed")
		}
	}
	return nil
}
