// Package commands holds the application command definitions and the custom
// ids shared between registration and the interaction router.
package commands

import (
	"strings"

	"github.com/bwmarrin/discordgo"
)

const (
	Create = "create"
	List   = "list"
	Cancel = "cancel"

	ListStatusOption = "status"

	ReminderModalPrefix = "reminder_modal:"
	ReminderTimeInput   = "reminder_time_input"
	CancelSelect        = "cancel_reminder_select"
)

// ReminderModalID encodes the target message into the modal custom id.
func ReminderModalID(targetMessageID string) string {
	return ReminderModalPrefix + targetMessageID
}

// TargetFromModalID extracts the message id from a modal custom id.
func TargetFromModalID(customID string) (string, bool) {
	if !strings.HasPrefix(customID, ReminderModalPrefix) {
		return "", false
	}
	id := strings.TrimPrefix(customID, ReminderModalPrefix)
	return id, id != ""
}

// Definitions is the full global command set.
func Definitions() []*discordgo.ApplicationCommand {
	return []*discordgo.ApplicationCommand{
		{
			// Message context menu commands carry no description.
			Name: Create,
			Type: discordgo.MessageApplicationCommand,
		},
		{
			Name:        List,
			Type:        discordgo.ChatApplicationCommand,
			Description: "Lists your reminders, optionally filtering by status.",
			Options: []*discordgo.ApplicationCommandOption{
				{
					Name:        ListStatusOption,
					Type:        discordgo.ApplicationCommandOptionString,
					Description: "Filter reminders by status (default: pending)",
					Required:    false,
					Choices: []*discordgo.ApplicationCommandOptionChoice{
						{Name: "Pending", Value: "pending"},
						{Name: "Completed", Value: "complete"},
						{Name: "Cancelled", Value: "cancelled"},
						{Name: "Failed", Value: "failed"},
					},
				},
			},
		},
		{
			Name:        Cancel,
			Type:        discordgo.ChatApplicationCommand,
			Description: "Cancel a pending reminder by selecting it from a list.",
		},
	}
}
