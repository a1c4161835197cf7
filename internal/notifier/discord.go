package notifier

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/bwmarrin/discordgo"
)

// Discord sends reminders as direct messages through the Discord REST API.
type Discord struct {
	session *discordgo.Session
}

func NewDiscord(token string, timeout time.Duration) (*Discord, error) {
	if token == "" {
		return nil, errors.New("discord token is required")
	}
	s, err := discordgo.New("Bot " + token)
	if err != nil {
		return nil, fmt.Errorf("discord session: %w", err)
	}
	s.Client = &http.Client{Timeout: timeout}
	// The dispatcher owns retries; a 429 should surface as a failure.
	s.ShouldRetryOnRateLimit = false
	s.MaxRestRetries = 0
	return &Discord{session: s}, nil
}

func (d *Discord) Notify(ctx context.Context, userID, content string) error {
	ch, err := d.session.UserChannelCreate(userID, discordgo.WithContext(ctx))
	if err != nil {
		return fmt.Errorf("open dm with %s: %w", userID, err)
	}
	if _, err := d.session.ChannelMessageSend(ch.ID, content, discordgo.WithContext(ctx)); err != nil {
		return fmt.Errorf("send dm to %s: %w", userID, err)
	}
	return nil
}
