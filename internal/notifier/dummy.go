package notifier

import (
	"context"
	"time"

	"github.com/rs/zerolog"
)

// Dummy logs instead of sending. For local runs without a bot token.
type Dummy struct {
	log zerolog.Logger
}

func NewDummy(log zerolog.Logger) *Dummy { return &Dummy{log: log} }

func (d *Dummy) Notify(ctx context.Context, userID, content string) error {
	// Simulate a little latency.
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(20 * time.Millisecond):
	}
	d.log.Info().Str("user_id", userID).Str("content", content).Msg("dummy notify")
	return nil
}
