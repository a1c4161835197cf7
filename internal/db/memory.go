package db

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/Cypherspark/reminder-bot/internal/core"
)

// Memory is an in-process core.Store with the same semantics as the Postgres
// store, including the one-pending-per-message constraint. Used for tests and
// local runs with store_driver=memory.
type Memory struct {
	mu   sync.Mutex
	rows map[string]core.Reminder
	seq  map[string]int // insertion order breaks created_at ties
	next int
	now  func() time.Time

	// Fail, when set, is consulted before every operation; a non-nil return
	// is handed back to the caller unchanged.
	Fail func(op string) error
}

var _ core.Store = (*Memory)(nil)

func NewMemory() *Memory {
	return &Memory{
		rows: map[string]core.Reminder{},
		seq:  map[string]int{},
		now:  time.Now,
	}
}

// WithClock makes the store stamp created_at from now.
func (m *Memory) WithClock(now func() time.Time) *Memory {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.now = now
	return m
}

// Put inserts or replaces a record verbatim. Test seeding only.
func (m *Memory) Put(r core.Reminder) core.Reminder {
	m.mu.Lock()
	defer m.mu.Unlock()
	if r.ID == "" {
		r.ID = uuid.NewString()
	}
	if r.Status == "" {
		r.Status = core.StatusPending
	}
	if r.CreatedAt.IsZero() {
		r.CreatedAt = m.now().UTC()
	}
	if _, ok := m.seq[r.ID]; !ok {
		m.next++
		m.seq[r.ID] = m.next
	}
	m.rows[r.ID] = r
	return r
}

func (m *Memory) fail(op string) error {
	if m.Fail == nil {
		return nil
	}
	return m.Fail(op)
}

func (m *Memory) Create(ctx context.Context, in core.NewReminder) (core.Reminder, error) {
	if err := ctx.Err(); err != nil {
		return core.Reminder{}, err
	}
	if err := m.fail("create"); err != nil {
		return core.Reminder{}, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, r := range m.rows {
		if r.Status == core.StatusPending && r.UserID == in.UserID && r.TargetMessageID == in.TargetMessageID {
			return core.Reminder{}, core.ErrDuplicateReminder
		}
	}
	r := core.Reminder{
		ID:                uuid.NewString(),
		UserID:            in.UserID,
		GuildID:           in.GuildID,
		ChannelID:         in.ChannelID,
		TargetMessageID:   in.TargetMessageID,
		ReminderTimeInput: in.ReminderTimeInput,
		ReminderDateTime:  in.ReminderDateTime.UTC(),
		Status:            core.StatusPending,
		CreatedAt:         m.now().UTC(),
	}
	m.next++
	m.seq[r.ID] = m.next
	m.rows[r.ID] = r
	return r, nil
}

func (m *Memory) Get(ctx context.Context, id string) (core.Reminder, error) {
	if err := ctx.Err(); err != nil {
		return core.Reminder{}, err
	}
	if err := m.fail("get"); err != nil {
		return core.Reminder{}, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.rows[id]
	if !ok {
		return core.Reminder{}, core.ErrNotFound
	}
	return r, nil
}

func (m *Memory) UpdateStatus(ctx context.Context, id string, from, to core.Status) (core.Reminder, error) {
	if err := ctx.Err(); err != nil {
		return core.Reminder{}, err
	}
	if err := m.fail("update_status"); err != nil {
		return core.Reminder{}, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.rows[id]
	if !ok {
		return core.Reminder{}, core.ErrNotFound
	}
	if r.Status != from {
		return core.Reminder{}, fmt.Errorf("%w: reminder %s is %s", core.ErrStatusConflict, id, r.Status)
	}
	r.Status = to
	m.rows[id] = r
	return r, nil
}

func (m *Memory) List(ctx context.Context, f core.Filter) ([]core.Reminder, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := m.fail("list"); err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	var out []core.Reminder
	for _, r := range m.rows {
		if f.UserID != "" && r.UserID != f.UserID {
			continue
		}
		if f.TargetMessageID != "" && r.TargetMessageID != f.TargetMessageID {
			continue
		}
		if f.Status != "" && r.Status != f.Status {
			continue
		}
		if !f.DueFrom.IsZero() && r.ReminderDateTime.Before(f.DueFrom) {
			continue
		}
		if !f.DueBefore.IsZero() && !r.ReminderDateTime.Before(f.DueBefore) {
			continue
		}
		out = append(out, r)
	}

	switch f.Order {
	case core.OrderDueAsc:
		sort.Slice(out, func(i, j int) bool {
			if !out[i].ReminderDateTime.Equal(out[j].ReminderDateTime) {
				return out[i].ReminderDateTime.Before(out[j].ReminderDateTime)
			}
			return m.seq[out[i].ID] < m.seq[out[j].ID]
		})
	default:
		sort.Slice(out, func(i, j int) bool {
			if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
				return out[i].CreatedAt.After(out[j].CreatedAt)
			}
			return m.seq[out[i].ID] > m.seq[out[j].ID]
		})
	}
	if f.Limit > 0 && len(out) > f.Limit {
		out = out[:f.Limit]
	}
	return out, nil
}

func (m *Memory) Ping(ctx context.Context) error {
	if err := m.fail("ping"); err != nil {
		return err
	}
	return ctx.Err()
}
