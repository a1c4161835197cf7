package main

import (
	"fmt"
	"os"

	"github.com/bwmarrin/discordgo"
	"github.com/spf13/cobra"

	"github.com/Cypherspark/reminder-bot/internal/commands"
	"github.com/Cypherspark/reminder-bot/internal/config"
)

// overwriter is the part of *discordgo.Session the commands need.
type overwriter interface {
	ApplicationCommandBulkOverwrite(appID, guildID string, cmds []*discordgo.ApplicationCommand, options ...discordgo.RequestOption) ([]*discordgo.ApplicationCommand, error)
}

var guildID string

// connect is swapped in tests.
var connect = func() (overwriter, string, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, "", err
	}
	if cfg.DiscordToken == "" || cfg.DiscordApplicationID == "" {
		return nil, "", fmt.Errorf("DISCORD_TOKEN and DISCORD_APPLICATION_ID must be set")
	}
	s, err := discordgo.New("Bot " + cfg.DiscordToken)
	if err != nil {
		return nil, "", err
	}
	return s, cfg.DiscordApplicationID, nil
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:          "register",
		Short:        "Manage the bot's application commands",
		SilenceUsage: true,
	}
	root.PersistentFlags().StringVar(&guildID, "guild", "", "guild id for guild-scoped commands (default: global)")

	root.AddCommand(&cobra.Command{
		Use:   "sync",
		Short: "Overwrite the registered commands with create, list and cancel",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return overwrite(cmd, commands.Definitions())
		},
	})
	root.AddCommand(&cobra.Command{
		Use:   "delete-all",
		Short: "Remove every registered command",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return overwrite(cmd, []*discordgo.ApplicationCommand{})
		},
	})
	return root
}

func overwrite(cmd *cobra.Command, defs []*discordgo.ApplicationCommand) error {
	s, appID, err := connect()
	if err != nil {
		return err
	}
	out, err := s.ApplicationCommandBulkOverwrite(appID, guildID, defs, discordgo.WithContext(cmd.Context()))
	if err != nil {
		return fmt.Errorf("bulk overwrite: %w", err)
	}
	scope := "global"
	if guildID != "" {
		scope = "guild " + guildID
	}
	cmd.Printf("%d %s command(s) registered\n", len(out), scope)
	for _, c := range out {
		cmd.Printf("  %s (%s)\n", c.Name, c.ID)
	}
	return nil
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
