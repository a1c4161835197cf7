package notifier

import (
	"context"
)

// Notifier delivers a direct message to a user. Any returned error means the
// message was not delivered.
type Notifier interface {
	Notify(ctx context.Context, userID, content string) error
}

// Func adapts a plain function to Notifier.
type Func func(ctx context.Context, userID, content string) error

func (f Func) Notify(ctx context.Context, userID, content string) error {
	return f(ctx, userID, content)
}
