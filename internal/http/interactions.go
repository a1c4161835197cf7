package httpapi

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/bwmarrin/discordgo"
	"github.com/rs/zerolog"

	"github.com/Cypherspark/reminder-bot/internal/commands"
	"github.com/Cypherspark/reminder-bot/internal/core"
	"github.com/Cypherspark/reminder-bot/internal/metrics"
)

const (
	msgUnknownCommand = "Sorry, I don't know how to handle that command."
	msgUnknownAction  = "Sorry, I don't know how to handle that action."
)

// route dispatches a verified interaction to its flow. Every branch returns a
// response; errors are turned into ephemeral messages here.
func (s *Server) route(ctx context.Context, log zerolog.Logger, in *discordgo.Interaction) *discordgo.InteractionResponse {
	switch in.Type {
	case discordgo.InteractionPing:
		metrics.Interactions.WithLabelValues("ping").Inc()
		return &discordgo.InteractionResponse{Type: discordgo.InteractionResponsePong}

	case discordgo.InteractionApplicationCommand:
		data := in.ApplicationCommandData()
		switch data.Name {
		case commands.Create:
			metrics.Interactions.WithLabelValues("command:create").Inc()
			return reminderModal(data.TargetID)
		case commands.List:
			metrics.Interactions.WithLabelValues("command:list").Inc()
			return s.listReminders(ctx, log, userID(in), statusOption(data))
		case commands.Cancel:
			metrics.Interactions.WithLabelValues("command:cancel").Inc()
			return s.cancelMenu(ctx, log, userID(in))
		default:
			metrics.Interactions.WithLabelValues("unknown").Inc()
			log.Warn().Str("command", data.Name).Msg("unhandled application command")
			return ephemeral(msgUnknownCommand)
		}

	case discordgo.InteractionModalSubmit:
		data := in.ModalSubmitData()
		if target, ok := commands.TargetFromModalID(data.CustomID); ok {
			metrics.Interactions.WithLabelValues("modal").Inc()
			return s.submitReminder(ctx, log, in, target, modalValue(data, commands.ReminderTimeInput))
		}
		metrics.Interactions.WithLabelValues("unknown").Inc()
		log.Warn().Str("custom_id", data.CustomID).Msg("unhandled modal")
		return ephemeral(msgUnknownAction)

	case discordgo.InteractionMessageComponent:
		data := in.MessageComponentData()
		if data.CustomID == commands.CancelSelect {
			metrics.Interactions.WithLabelValues("component").Inc()
			var selected string
			if len(data.Values) > 0 {
				selected = data.Values[0]
			}
			return s.cancelSelected(ctx, log, userID(in), selected)
		}
		metrics.Interactions.WithLabelValues("unknown").Inc()
		log.Warn().Str("custom_id", data.CustomID).Msg("unhandled message component")
		return ephemeral(msgUnknownAction)
	}

	metrics.Interactions.WithLabelValues("unknown").Inc()
	log.Warn().Int("type", int(in.Type)).Msg("unhandled interaction type")
	return &discordgo.InteractionResponse{Type: discordgo.InteractionResponsePong}
}

func reminderModal(targetMessageID string) *discordgo.InteractionResponse {
	if targetMessageID == "" {
		return ephemeral("Sorry, I couldn't tell which message to remind you about.")
	}
	return &discordgo.InteractionResponse{
		Type: discordgo.InteractionResponseModal,
		Data: &discordgo.InteractionResponseData{
			CustomID: commands.ReminderModalID(targetMessageID),
			Title:    "Set a Reminder",
			Components: []discordgo.MessageComponent{
				discordgo.ActionsRow{Components: []discordgo.MessageComponent{
					discordgo.TextInput{
						CustomID:    commands.ReminderTimeInput,
						Label:       "When to remind you?",
						Style:       discordgo.TextInputShort,
						MinLength:   1,
						Placeholder: "e.g., 30m, 2h, 1d",
						Required:    true,
					},
				}},
			},
		},
	}
}

func (s *Server) submitReminder(ctx context.Context, log zerolog.Logger, in *discordgo.Interaction, target, input string) *discordgo.InteractionResponse {
	uid := userID(in)
	r, err := s.Lifecycle.Create(ctx, core.CreateRequest{
		UserID:          uid,
		GuildID:         in.GuildID,
		ChannelID:       in.ChannelID,
		TargetMessageID: target,
		TimeInput:       strings.TrimSpace(input),
	})
	s.observe(log, "create", uid, err)
	if err != nil {
		return ephemeral(s.userMessage(err, "Sorry, I couldn't save your reminder. Please try again."))
	}
	return ephemeral("Okay, I'll remind you about that message at " + core.Timestamp(r.ReminderDateTime))
}

func (s *Server) listReminders(ctx context.Context, log zerolog.Logger, uid string, status core.Status) *discordgo.InteractionResponse {
	if status == "" {
		status = core.StatusPending
	}
	items, err := s.Lifecycle.List(ctx, uid, status)
	s.observe(log, "list", uid, err)
	if err != nil {
		return ephemeral(s.userMessage(err, "Sorry, I couldn't fetch your reminders. Please try again."))
	}
	return ephemeral(core.RenderList(status, items))
}

func (s *Server) cancelMenu(ctx context.Context, log zerolog.Logger, uid string) *discordgo.InteractionResponse {
	items, err := s.Lifecycle.ListCancellable(ctx, uid)
	s.observe(log, "cancel_list", uid, err)
	if err != nil {
		return ephemeral(s.userMessage(err, "Sorry, I couldn't fetch your reminders. Please try again."))
	}
	if len(items) == 0 {
		return ephemeral("✨ You have no pending reminders to cancel! ✨")
	}

	options := make([]discordgo.SelectMenuOption, 0, len(items))
	for _, r := range items {
		o := core.NewCancelOption(r)
		options = append(options, discordgo.SelectMenuOption{Label: o.Label, Value: o.Value, Description: o.Description})
	}
	resp := ephemeral("Select a reminder to cancel:")
	resp.Data.Components = []discordgo.MessageComponent{
		discordgo.ActionsRow{Components: []discordgo.MessageComponent{
			discordgo.SelectMenu{
				MenuType:    discordgo.StringSelectMenu,
				CustomID:    commands.CancelSelect,
				Placeholder: "Choose a reminder...",
				Options:     options,
			},
		}},
	}
	return resp
}

func (s *Server) cancelSelected(ctx context.Context, log zerolog.Logger, uid, reminderID string) *discordgo.InteractionResponse {
	if reminderID == "" {
		return updateMessage("No reminder selected or invalid selection.")
	}
	_, err := s.Lifecycle.Cancel(ctx, uid, reminderID)
	s.observe(log, "cancel", uid, err)
	if err != nil {
		return updateMessage(s.userMessage(err, "Sorry, I couldn't cancel your reminder. Please try again."))
	}
	return updateMessage(fmt.Sprintf("✅ Reminder with ID `%s` has been cancelled.", reminderID))
}

// observe records the outcome; only unexpected failures are errors.
func (s *Server) observe(log zerolog.Logger, op, uid string, err error) {
	label := errLabel(err)
	metrics.LifecycleResults.WithLabelValues(op, label).Inc()
	switch {
	case err == nil:
	case errors.Is(err, core.ErrStoreUnavailable):
		log.Error().Err(err).Str("op", op).Str("user_id", uid).Msg("reminder store failure")
	default:
		log.Debug().Err(err).Str("op", op).Str("user_id", uid).Msg("request rejected")
	}
}

var knownErrors = []error{
	core.ErrInvalidFormat, core.ErrDurationTooLong, core.ErrUnidentifiedUser, core.ErrMissingTarget,
	core.ErrDuplicateReminder, core.ErrQuotaExceeded, core.ErrUnknownStatus,
	core.ErrNotFound, core.ErrForbidden, core.ErrInvalidState, core.ErrStoreUnavailable,
}

func errLabel(err error) string {
	if err == nil {
		return "ok"
	}
	for _, k := range knownErrors {
		if errors.Is(err, k) {
			return k.Error()
		}
	}
	return "error"
}

func (s *Server) userMessage(err error, fallback string) string {
	switch {
	case errors.Is(err, core.ErrInvalidFormat):
		return "Sorry, that's not a valid time format. Please use formats like `30m` (minutes), `2h` (hours), or `1d` (days)."
	case errors.Is(err, core.ErrDurationTooLong):
		return "Sorry, the maximum reminder time is 30 days. Please enter a shorter duration."
	case errors.Is(err, core.ErrUnidentifiedUser):
		return "Sorry, I couldn't identify you."
	case errors.Is(err, core.ErrMissingTarget):
		return "Sorry, I couldn't tell which message to remind you about."
	case errors.Is(err, core.ErrDuplicateReminder):
		return "You already have a pending reminder for that message."
	case errors.Is(err, core.ErrQuotaExceeded):
		return fmt.Sprintf("⚠️ You've reached the maximum limit of %d pending reminders. Please cancel some old ones before adding new ones.", s.Lifecycle.MaxPendingPerUser())
	case errors.Is(err, core.ErrUnknownStatus):
		return "Sorry, that's not a reminder status I know."
	case errors.Is(err, core.ErrNotFound):
		return "Sorry, I couldn't find the selected reminder. It might have been already cancelled or deleted."
	case errors.Is(err, core.ErrForbidden):
		return "You can only cancel your own reminders. This selection is invalid."
	case errors.Is(err, core.ErrInvalidState):
		return "This reminder is no longer pending and cannot be cancelled."
	}
	return fallback
}

func ephemeral(content string) *discordgo.InteractionResponse {
	return &discordgo.InteractionResponse{
		Type: discordgo.InteractionResponseChannelMessageWithSource,
		Data: &discordgo.InteractionResponseData{Content: content, Flags: discordgo.MessageFlagsEphemeral},
	}
}

// updateMessage replaces the select menu message and drops its components.
func updateMessage(content string) *discordgo.InteractionResponse {
	return &discordgo.InteractionResponse{
		Type: discordgo.InteractionResponseUpdateMessage,
		Data: &discordgo.InteractionResponseData{
			Content:    content,
			Flags:      discordgo.MessageFlagsEphemeral,
			Components: []discordgo.MessageComponent{},
		},
	}
}

func userID(in *discordgo.Interaction) string {
	if in.Member != nil && in.Member.User != nil {
		return in.Member.User.ID
	}
	if in.User != nil {
		return in.User.ID
	}
	return ""
}

func statusOption(data discordgo.ApplicationCommandInteractionData) core.Status {
	for _, o := range data.Options {
		if o.Name == commands.ListStatusOption {
			if v, ok := o.Value.(string); ok {
				return core.Status(v)
			}
		}
	}
	return ""
}

// modalValue finds a text input by custom id in a submitted modal.
func modalValue(data discordgo.ModalSubmitInteractionData, customID string) string {
	for _, c := range data.Components {
		var row []discordgo.MessageComponent
		switch v := c.(type) {
		case *discordgo.ActionsRow:
			row = v.Components
		case discordgo.ActionsRow:
			row = v.Components
		}
		for _, rc := range row {
			switch ti := rc.(type) {
			case *discordgo.TextInput:
				if ti.CustomID == customID {
					return ti.Value
				}
			case discordgo.TextInput:
				if ti.CustomID == customID {
					return ti.Value
				}
			}
		}
	}
	return ""
}
