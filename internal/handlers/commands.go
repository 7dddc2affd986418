package handlers

import (
	"context"
	"fmt"
	"strings"

	api "github.com/OvyFlash/telegram-bot-api"
	log "github.com/sirupsen/logrus"

	"github.com/Istamjon/Expressbot/internal/bot"
	"github.com/Istamjon/Expressbot/internal/db"
	"github.com/Istamjon/Expressbot/internal/i18n"
)

const leaderboardSize = 10

var medals = []string{"🥇", "🥈", "🥉"}

// Leaderboard is the read side of the referral ledger.
type Leaderboard interface {
	TopSponsors(ctx context.Context, chatID int64, limit int) ([]*db.SponsorTally, error)
}

// Commands answers the public group commands: greeting, help, current
// settings and the inviter leaderboard.
type Commands struct {
	s           bot.Service
	ops         AdminTransport
	leaderboard Leaderboard
}

func NewCommands(s bot.Service, ops AdminTransport, leaderboard Leaderboard) *Commands {
	return &Commands{
		s:           s,
		ops:         ops,
		leaderboard: leaderboard,
	}
}

func (c *Commands) Handle(ctx context.Context, u *api.Update, chat *api.Chat, user *api.User) (bool, error) {
	if u == nil || u.Message == nil || chat == nil {
		return true, nil
	}
	if !chat.IsGroup() && !chat.IsSuperGroup() {
		return true, nil
	}
	m := u.Message
	if !m.IsCommand() || (user != nil && user.IsBot) {
		return true, nil
	}
	lang := c.s.GetLanguage(ctx, chat.ID, user)

	switch m.Command() {
	case "start", "help":
		c.send(ctx, chat.ID, helpText(lang), m.MessageID)
	case "settings":
		c.sendSettings(ctx, chat.ID, lang, m.MessageID)
	case "topinviters":
		c.sendLeaderboard(ctx, chat.ID, lang, m.MessageID)
	default:
		return true, nil
	}
	return false, nil
}

func helpText(lang string) string {
	lines := []string{
		i18n.Get("I keep this group tidy: dangerous files are removed, links and system notices are moderated, and invites are counted.", lang),
		"",
		"/settings — " + i18n.Get("show the group's moderation settings", lang),
		"/topinviters — " + i18n.Get("show who invited the most members", lang),
	}
	return strings.Join(lines, "\n")
}

func (c *Commands) sendSettings(ctx context.Context, chatID int64, lang string, replyTo int) {
	settings, err := c.s.GetSettings(ctx, chatID)
	if err != nil {
		c.getLogEntry().WithError(err).Error("cant get settings")
		c.send(ctx, chatID, i18n.Get("Something went wrong, try again later.", lang), replyTo)
		return
	}

	lines := []string{
		i18n.Get("Moderation settings", lang) + ":",
		onOffLine(i18n.Get("Dangerous file filter", lang), settings.FileFilterEnabled, lang),
		onOffLine(i18n.Get("Link warnings", lang), settings.LinkWarningEnabled, lang),
		onOffLine(i18n.Get("System message cleanup", lang), settings.SystemMessageDeleteEnabled, lang),
	}
	c.send(ctx, chatID, strings.Join(lines, "\n"), replyTo)
}

func onOffLine(label string, enabled bool, lang string) string {
	mark := "❌ " + i18n.Get("off", lang)
	if enabled {
		mark = "✅ " + i18n.Get("on", lang)
	}
	return label + ": " + mark
}

func (c *Commands) sendLeaderboard(ctx context.Context, chatID int64, lang string, replyTo int) {
	tallies, err := c.leaderboard.TopSponsors(ctx, chatID, leaderboardSize)
	if err != nil {
		c.getLogEntry().WithError(err).Error("cant get leaderboard")
		c.send(ctx, chatID, i18n.Get("Something went wrong, try again later.", lang), replyTo)
		return
	}
	if len(tallies) == 0 {
		c.send(ctx, chatID, i18n.Get("Nobody has invited anyone yet. Be the first!", lang), replyTo)
		return
	}

	var b strings.Builder
	b.WriteString(i18n.Get("Top inviters", lang) + ":\n")
	total := 0
	for i, tally := range tallies {
		rank := fmt.Sprintf("%d.", i+1)
		if i < len(medals) {
			rank = medals[i]
		}
		b.WriteString(fmt.Sprintf("%s %s — %d\n", rank, bot.EscapeHTML(tally.DisplayName), tally.Count))
		total += tally.Count
	}
	b.WriteString(fmt.Sprintf("\n%s: %d", i18n.Get("Total attributed invites", lang), total))
	c.send(ctx, chatID, b.String(), replyTo)
}

func (c *Commands) send(ctx context.Context, chatID int64, text string, replyTo int) {
	if err := c.ops.SendText(ctx, chatID, text, replyTo); err != nil {
		c.getLogEntry().WithError(err).Error("cant send reply")
	}
}

func (c *Commands) getLogEntry() *log.Entry {
	return log.WithField("context", "commands")
}
