package db

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/Cypherspark/reminder-bot/internal/core"
)

// Open builds the store selected by driver ("postgres" or "memory"). The
// returned pool is nil for the memory driver; closeFn releases whatever was
// opened.
func Open(ctx context.Context, driver, dsn string) (store core.Store, pool *pgxpool.Pool, closeFn func(), err error) {
	switch driver {
	case "memory":
		return NewMemory(), nil, func() {}, nil
	case "postgres", "":
		pg, err := Connect(ctx, dsn)
		if err != nil {
			return nil, nil, nil, err
		}
		return pg, pg.Pool, pg.Close, nil
	}
	return nil, nil, nil, fmt.Errorf("unknown store driver %q", driver)
}
