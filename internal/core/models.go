package core

import (
	"time"
)

type Status string

const (
	StatusPending   Status = "pending"
	StatusComplete  Status = "complete"
	StatusCancelled Status = "cancelled"
	StatusFailed    Status = "failed"
)

// Valid reports whether s is one of the four lifecycle states.
func (s Status) Valid() bool {
	switch s {
	case StatusPending, StatusComplete, StatusCancelled, StatusFailed:
		return true
	}
	return false
}

type Reminder struct {
	ID                string    `json:"id"`
	UserID            string    `json:"user_id"`
	GuildID           string    `json:"guild_id"`
	ChannelID         string    `json:"channel_id"`
	TargetMessageID   string    `json:"target_message_id"`
	ReminderTimeInput string    `json:"reminder_time_input"`
	ReminderDateTime  time.Time `json:"reminder_date_time"`
	Status            Status    `json:"status"`
	CreatedAt         time.Time `json:"created_at"`
}

// NewReminder is what the lifecycle hands to Store.Create; id and created_at
// are assigned by the store.
type NewReminder struct {
	UserID            string
	GuildID           string
	ChannelID         string
	TargetMessageID   string
	ReminderTimeInput string
	ReminderDateTime  time.Time
}

type Order int

const (
	OrderCreatedDesc Order = iota
	OrderDueAsc
)

// Filter is the query surface the lifecycle and dispatcher need from a store.
// Zero-valued fields do not constrain the result.
type Filter struct {
	UserID          string
	TargetMessageID string
	Status          Status
	DueFrom         time.Time // inclusive
	DueBefore       time.Time // exclusive
	Order           Order
	Limit           int
}
