package db

import (
	"context"
	"embed"
	"errors"
	"fmt"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/Cypherspark/reminder-bot/internal/core"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

const uniqueViolation = "23505"

// DB is the Postgres implementation of core.Store.
type DB struct {
	Pool *pgxpool.Pool
}

var _ core.Store = (*DB)(nil)

func NewDB(pool *pgxpool.Pool) *DB {
	return &DB{Pool: pool}
}

// Connect opens a pool, pings it and applies the embedded migrations.
func Connect(ctx context.Context, dsn string) (*DB, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("db pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("db ping: %w", err)
	}
	if err := Migrate(ctx, pool); err != nil {
		pool.Close()
		return nil, err
	}
	return NewDB(pool), nil
}

// Migrate applies every migration in lexical order. Migrations are written to
// be re-runnable.
func Migrate(ctx context.Context, pool *pgxpool.Pool) error {
	entries, err := migrationsFS.ReadDir("migrations")
	if err != nil {
		return fmt.Errorf("read migrations: %w", err)
	}
	var files []string
	for _, e := range entries {
		if !e.IsDir() && strings.HasSuffix(e.Name(), ".sql") {
			files = append(files, e.Name())
		}
	}
	sort.Strings(files)

	for _, name := range files {
		sqlBytes, err := migrationsFS.ReadFile(filepath.ToSlash("migrations/" + name))
		if err != nil {
			return fmt.Errorf("read %s: %w", name, err)
		}
		if _, err := pool.Exec(ctx, string(sqlBytes)); err != nil {
			return fmt.Errorf("apply %s: %w", name, err)
		}
	}
	return nil
}

const reminderColumns = `id::text, user_id, guild_id, channel_id, target_message_id, reminder_time_input, reminder_date_time, status, created_at`

func (db *DB) Create(ctx context.Context, in core.NewReminder) (core.Reminder, error) {
	row := db.Pool.QueryRow(ctx, `
		INSERT INTO reminders(id, user_id, guild_id, channel_id, target_message_id, reminder_time_input, reminder_date_time, status)
		VALUES($1,$2,$3,$4,$5,$6,$7,'pending')
		RETURNING `+reminderColumns,
		uuid.NewString(), in.UserID, in.GuildID, in.ChannelID, in.TargetMessageID, in.ReminderTimeInput, in.ReminderDateTime.UTC())
	r, err := scanReminder(row)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return core.Reminder{}, core.ErrDuplicateReminder
		}
		return core.Reminder{}, err
	}
	return r, nil
}

func (db *DB) Get(ctx context.Context, id string) (core.Reminder, error) {
	if _, err := uuid.Parse(id); err != nil {
		// Not a key we could ever have issued.
		return core.Reminder{}, core.ErrNotFound
	}
	r, err := scanReminder(db.Pool.QueryRow(ctx, `SELECT `+reminderColumns+` FROM reminders WHERE id=$1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return core.Reminder{}, core.ErrNotFound
	}
	return r, err
}

// UpdateStatus moves a reminder from one status to another in a single
// conditional statement. A miss is resolved into ErrNotFound or
// ErrStatusConflict with a follow-up read.
func (db *DB) UpdateStatus(ctx context.Context, id string, from, to core.Status) (core.Reminder, error) {
	if _, err := uuid.Parse(id); err != nil {
		return core.Reminder{}, core.ErrNotFound
	}
	r, err := scanReminder(db.Pool.QueryRow(ctx, `
		UPDATE reminders SET status=$3
		WHERE id=$1 AND status=$2
		RETURNING `+reminderColumns, id, string(from), string(to)))
	if err == nil {
		return r, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return core.Reminder{}, err
	}
	cur, err := db.Get(ctx, id)
	if err != nil {
		return core.Reminder{}, err
	}
	return core.Reminder{}, fmt.Errorf("%w: reminder %s is %s", core.ErrStatusConflict, id, cur.Status)
}

func (db *DB) List(ctx context.Context, f core.Filter) ([]core.Reminder, error) {
	q := `SELECT ` + reminderColumns + ` FROM reminders WHERE TRUE`
	var args []any
	idx := 1
	add := func(clause string, v any) {
		q += fmt.Sprintf(" AND "+clause, idx)
		args = append(args, v)
		idx++
	}
	if f.UserID != "" {
		add("user_id=$%d", f.UserID)
	}
	if f.TargetMessageID != "" {
		add("target_message_id=$%d", f.TargetMessageID)
	}
	if f.Status != "" {
		add("status=$%d", string(f.Status))
	}
	if !f.DueFrom.IsZero() {
		add("reminder_date_time >= $%d", f.DueFrom.UTC())
	}
	if !f.DueBefore.IsZero() {
		add("reminder_date_time < $%d", f.DueBefore.UTC())
	}
	switch f.Order {
	case core.OrderDueAsc:
		q += " ORDER BY reminder_date_time ASC, created_at ASC"
	default:
		q += " ORDER BY created_at DESC, id DESC"
	}
	if f.Limit > 0 {
		q += fmt.Sprintf(" LIMIT $%d", idx)
		args = append(args, f.Limit)
	}

	rows, err := db.Pool.Query(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []core.Reminder
	for rows.Next() {
		r, err := scanReminder(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

func (db *DB) Ping(ctx context.Context) error {
	return db.Pool.Ping(ctx)
}

func (db *DB) Close() {
	db.Pool.Close()
}

func scanReminder(row pgx.Row) (core.Reminder, error) {
	var (
		r      core.Reminder
		status string
		due    time.Time
		at     time.Time
	)
	if err := row.Scan(&r.ID, &r.UserID, &r.GuildID, &r.ChannelID, &r.TargetMessageID, &r.ReminderTimeInput, &due, &status, &at); err != nil {
		return core.Reminder{}, err
	}
	r.Status = core.Status(status)
	r.ReminderDateTime = due.UTC()
	r.CreatedAt = at.UTC()
	return r, nil
}
