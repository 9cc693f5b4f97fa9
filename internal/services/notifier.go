package services

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/bwmarrin/discordgo"

	"github.com/isurunuwanthilaka/isuma.ai/internal/models"
)

// FlagAlerter is notified when a snapshot review flags a session.
type FlagAlerter interface {
	SnapshotFlagged(ctx context.Context, ev models.SnapshotFlaggedEvent) error
}

// Alerters fans one alert out to every configured channel. All channels are
// attempted; the joined error reports those that failed.
type Alerters []FlagAlerter

func (a Alerters) SnapshotFlagged(ctx context.Context, ev models.SnapshotFlaggedEvent) error {
	var errs []error
	for _, alerter := range a {
		if err := alerter.SnapshotFlagged(ctx, ev); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

type discordSender interface {
	ChannelMessageSend(channelID string, content string, options ...discordgo.RequestOption) (*discordgo.Message, error)
}

// DiscordAlerter posts flagged snapshot reviews to a recruiter channel.
type DiscordAlerter struct {
	sender    discordSender
	channelID string
}

func NewDiscordAlerter(botToken, channelID string) (*DiscordAlerter, error) {
	session, err := discordgo.New("Bot " + botToken)
	if err != nil {
		return nil, fmt.Errorf("failed to create Discord session: %w", err)
	}
	return &DiscordAlerter{sender: session, channelID: channelID}, nil
}

func (a *DiscordAlerter) SnapshotFlagged(ctx context.Context, ev models.SnapshotFlaggedEvent) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if _, err := a.sender.ChannelMessageSend(a.channelID, formatFlaggedAlert(ev), discordgo.WithContext(ctx)); err != nil {
		return fmt.Errorf("discord alert: %w", err)
	}
	return nil
}

func formatFlaggedAlert(ev models.SnapshotFlaggedEvent) string {
	var reasons []string
	o := ev.Observation
	if o.FaceCount == 0 {
		reasons = append(reasons, "no face visible")
	}
	if o.FaceCount > 1 {
		reasons = append(reasons, fmt.Sprintf("%d faces visible", o.FaceCount))
	}
	if o.OtherPerson {
		reasons = append(reasons, "another person present")
	}
	if o.PhoneVisible {
		reasons = append(reasons, "phone visible")
	}
	if o.LookingAway {
		reasons = append(reasons, "looking away")
	}
	if len(reasons) == 0 {
		reasons = append(reasons, "marked suspicious")
	}

	var b strings.Builder
	fmt.Fprintf(&b, "⚠️ Snapshot flagged in session `%s`: %s", ev.SessionID, strings.Join(reasons, ", "))
	if o.Notes != "" {
		fmt.Fprintf(&b, "\n> %s", o.Notes)
	}
	fmt.Fprintf(&b, "\nsnapshot `%s`", ev.SnapshotID)
	return b.String()
}
