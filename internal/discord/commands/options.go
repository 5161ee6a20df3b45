package commands

import (
	"fmt"
	"time"

	"github.com/bwmarrin/discordgo"
)

// option returns the named option of a command or of its subcommand.
func option(i *discordgo.InteractionCreate, name string) *discordgo.ApplicationCommandInteractionDataOption {
	opts := i.ApplicationCommandData().Options
	if len(opts) == 1 && opts[0].Type == discordgo.ApplicationCommandOptionSubCommand {
		opts = opts[0].Options
	}
	for _, o := range opts {
		if o.Name == name {
			return o
		}
	}
	return nil
}

func stringOption(i *discordgo.InteractionCreate, name string) string {
	if o := option(i, name); o != nil {
		return o.StringValue()
	}
	return ""
}

func intOption(i *discordgo.InteractionCreate, name string) int64 {
	if o := option(i, name); o != nil {
		return o.IntValue()
	}
	return 0
}

func boolOption(i *discordgo.InteractionCreate, name string) bool {
	if o := option(i, name); o != nil {
		return o.BoolValue()
	}
	return false
}

// interactionUserID extracts the user ID from an interaction, handling both
// guild (Member) and DM (User) contexts.
func interactionUserID(i *discordgo.InteractionCreate) string {
	if i.Member != nil && i.Member.User != nil {
		return i.Member.User.ID
	}
	if i.User != nil {
		return i.User.ID
	}
	return ""
}

// truncate shortens s to at most n runes.
func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-1]) + "…"
}

// formatLength renders a track length as m:ss or h:mm:ss.
func formatLength(d time.Duration) string {
	d = d.Round(time.Second)
	h := int(d.Hours())
	m := int(d.Minutes()) % 60
	s := int(d.Seconds()) % 60
	if h > 0 {
		return fmt.Sprintf("%d:%02d:%02d", h, m, s)
	}
	return fmt.Sprintf("%d:%02d", m, s)
}

func lengthSuffix(d time.Duration) string {
	if d <= 0 {
		return ""
	}
	return " (" + formatLength(d) + ")"
}

func loopLabel(one, all bool) string {
	switch {
	case one:
		return "song"
	case all:
		return "queue"
	default:
		return "off"
	}
}

func onOff(b bool) string {
	if b {
		return "on"
	}
	return "off"
}

func ptr[T any](v T) *T { return &v }
