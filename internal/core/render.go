package core

import (
	"fmt"
	"strings"
	"time"
	"unicode/utf8"
)

const (
	// MaxMessageLength is Discord's content limit for a single message.
	MaxMessageLength = 2000
	// MaxOptionText is the limit for select option labels and descriptions.
	MaxOptionText = 100

	listTruncatedMarker = "... (list truncated)"
)

// MessageLink points at the message the reminder was set on. Reminders created
// in a DM have no guild and use the @me path.
func (r Reminder) MessageLink() string {
	guild := r.GuildID
	if guild == "" {
		guild = "@me"
	}
	return fmt.Sprintf("https://discord.com/channels/%s/%s/%s", guild, r.ChannelID, r.TargetMessageID)
}

// Timestamp renders t as a Discord timestamp markup in the viewer's locale.
func Timestamp(t time.Time) string {
	return fmt.Sprintf("<t:%d:f>", t.Unix())
}

// NotificationText is the DM body delivered when a reminder is due.
func NotificationText(r Reminder) string {
	return fmt.Sprintf("Hey <@%s>, here's your reminder! [View original message](<%s>) (scheduled for %s)",
		r.UserID, r.MessageLink(), Timestamp(r.ReminderDateTime))
}

// RenderList formats reminders for the list command, bounded to
// MaxMessageLength characters.
func RenderList(status Status, reminders []Reminder) string {
	if status == "" {
		status = StatusPending
	}
	if len(reminders) == 0 {
		return fmt.Sprintf("✨ You have no %s reminders! ✨", status)
	}
	var b strings.Builder
	fmt.Fprintf(&b, "**🗓️ Your %s Reminders:**\n\n", status)
	for _, r := range reminders {
		fmt.Fprintf(&b, "- Reminding at %s - [View original message](<%s>)\n", Timestamp(r.ReminderDateTime), r.MessageLink())
	}
	return TruncateWithMarker(b.String(), MaxMessageLength, listTruncatedMarker)
}

// TruncateWithMarker cuts s so that the result including marker is at most max
// runes. s is returned unchanged when it already fits.
func TruncateWithMarker(s string, max int, marker string) string {
	if utf8.RuneCountInString(s) <= max {
		return s
	}
	keep := max - utf8.RuneCountInString(marker)
	if keep < 0 {
		keep = 0
	}
	return string([]rune(s)[:keep]) + marker
}

// CancelOption is one entry in the cancellation select menu.
type CancelOption struct {
	Label       string
	Value       string
	Description string
}

func NewCancelOption(r Reminder) CancelOption {
	input := r.ReminderTimeInput
	if input == "" {
		input = "N/A"
	}
	label := "Remind: " + input
	desc := "Set on: date unknown"
	if !r.CreatedAt.IsZero() {
		desc = "Set on: " + r.CreatedAt.UTC().Format("2006-01-02 15:04") + " UTC"
	} else {
		label += " (date unknown)"
	}
	return CancelOption{
		Label:       TruncateWithMarker(label, MaxOptionText, "..."),
		Value:       r.ID,
		Description: TruncateWithMarker(desc, MaxOptionText, "..."),
	}
}
