package handlers

import (
	"context"
	"strings"

	api "github.com/OvyFlash/telegram-bot-api"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"

	"github.com/Istamjon/Expressbot/internal/bot"
	"github.com/Istamjon/Expressbot/internal/config"
	"github.com/Istamjon/Expressbot/internal/db"
	"github.com/Istamjon/Expressbot/internal/infrastructure/telegram"
	"github.com/Istamjon/Expressbot/internal/observability"
)

const warningPrefix = "⚠️ "

// GuardTransport is the slice of transport operations the pipeline needs.
type GuardTransport interface {
	SelfID() int64
	DeleteMessage(ctx context.Context, chatID int64, messageID int) error
	SendText(ctx context.Context, chatID int64, text string, replyTo int) error
	SendContent(ctx context.Context, chatID int64, content telegram.Content) error
	ProfilePhotoFileID(ctx context.Context, userID int64) (string, error)
}

// Attributor forwards membership changes to the referral ledger.
type Attributor interface {
	Attribute(ctx context.Context, chatID int64, sponsor *api.User, invitees []api.User) (int, error)
}

// MembershipStore tracks the groups the bot is active in.
type MembershipStore interface {
	RecordMembership(ctx context.Context, chatID int64, title string) error
	RemoveMembership(ctx context.Context, chatID int64) error
}

// Guard is the per-event moderation pipeline: classify once, fetch live
// policy, act. One message's failure never blocks the next message.
type Guard struct {
	s      bot.Service
	ops    GuardTransport
	ledger Attributor
	store  MembershipStore
}

func NewGuard(s bot.Service, ops GuardTransport, ledger Attributor, store MembershipStore) *Guard {
	return &Guard{
		s:      s,
		ops:    ops,
		ledger: ledger,
		store:  store,
	}
}

func (g *Guard) Handle(ctx context.Context, u *api.Update, chat *api.Chat, user *api.User) (bool, error) {
	if u == nil {
		return false, errors.New("nil update")
	}

	if u.MyChatMember != nil {
		return g.handleSelfMembership(ctx, u.MyChatMember)
	}

	m := u.Message
	if m == nil || chat == nil {
		return true, nil
	}
	if !chat.IsGroup() && !chat.IsSuperGroup() {
		return true, nil
	}

	classification := ClassifyMessage(m)
	entry := g.getLogEntry().WithFields(log.Fields{
		"chat_id":  chat.ID,
		"category": classification.Category.String(),
	})

	switch classification.Category {
	case CategoryIgnored, CategoryPlainContent:
		return true, nil
	case CategoryMembershipChange:
		g.handleMembershipChange(ctx, m, chat, classification)
		return false, nil
	case CategorySystemNotice:
		g.handleSystemNotice(ctx, m, chat, classification)
		return false, nil
	case CategoryDangerousAttachment:
		g.handleDangerousAttachment(ctx, m, chat, classification)
		return false, nil
	case CategoryLinkContent:
		g.handleLinkContent(ctx, m, chat, classification)
		return false, nil
	}
	entry.Warn("unhandled category")
	return true, nil
}

// handleSelfMembership keeps the membership table in sync with the bot being
// added to or removed from groups. Other users' member updates pass through.
func (g *Guard) handleSelfMembership(ctx context.Context, mcm *api.ChatMemberUpdated) (bool, error) {
	if mcm.NewChatMember.User == nil || mcm.NewChatMember.User.ID != g.ops.SelfID() {
		return true, nil
	}
	entry := g.getLogEntry().WithFields(log.Fields{
		"chat_id": mcm.Chat.ID,
		"status":  mcm.NewChatMember.Status,
	})

	switch mcm.NewChatMember.Status {
	case "member", "administrator", "restricted":
		if err := g.store.RecordMembership(ctx, mcm.Chat.ID, mcm.Chat.Title); err != nil {
			entry.WithError(err).Error("cant record membership")
			return false, nil
		}
		entry.Info("joined group")
	case "left", "kicked":
		if err := g.store.RemoveMembership(ctx, mcm.Chat.ID); err != nil {
			entry.WithError(err).Error("cant remove membership")
			return false, nil
		}
		entry.Info("removed from group")
	}
	return false, nil
}

func (g *Guard) handleMembershipChange(ctx context.Context, m *api.Message, chat *api.Chat, c Classification) {
	entry := g.getLogEntry().WithField("chat_id", chat.ID)

	for _, member := range c.NewMembers {
		if member.ID == g.ops.SelfID() {
			if err := g.store.RecordMembership(ctx, chat.ID, chat.Title); err != nil {
				entry.WithError(err).Error("cant record membership")
			}
		}
	}

	// Attribution failure is not fatal: the invite facts are keyed by
	// invitee, so the next qualifying event retries it idempotently.
	newCount, err := g.ledger.Attribute(ctx, chat.ID, m.From, c.NewMembers)
	if err != nil {
		entry.WithError(err).Error("cant attribute invites")
	} else if newCount > 0 {
		observability.RecordAttribution(newCount)
		entry.WithFields(log.Fields{
			"sponsor": bot.GetUN(m.From),
			"count":   newCount,
		}).Info("attributed invites")
	}

	settings := g.policyFor(ctx, chat.ID)
	if settings == nil || !settings.SystemMessageDeleteEnabled {
		return
	}
	g.deleteMessage(ctx, chat.ID, m.MessageID, c.NoticeKind)
}

func (g *Guard) handleSystemNotice(ctx context.Context, m *api.Message, chat *api.Chat, c Classification) {
	settings := g.policyFor(ctx, chat.ID)
	if settings == nil || !settings.SystemMessageDeleteEnabled {
		return
	}
	g.deleteMessage(ctx, chat.ID, m.MessageID, c.NoticeKind)
}

func (g *Guard) handleDangerousAttachment(ctx context.Context, m *api.Message, chat *api.Chat, c Classification) {
	entry := g.getLogEntry().WithFields(log.Fields{
		"chat_id":   chat.ID,
		"file_name": c.FileName,
	})

	settings := g.policyFor(ctx, chat.ID)
	if settings == nil || !settings.FileFilterEnabled {
		return
	}

	g.deleteMessage(ctx, chat.ID, m.MessageID, "dangerous_attachment")

	warning := warningPrefix + renderTemplate(settings.FileWarningTemplate, m.From)
	if err := g.sendWarningWithPhoto(ctx, chat.ID, m.From, warning); err != nil {
		entry.WithError(err).Error("cant deliver file warning")
		return
	}
	observability.RecordModerationAction("file_warning")
	entry.Info("removed dangerous attachment")
}

func (g *Guard) handleLinkContent(ctx context.Context, m *api.Message, chat *api.Chat, c Classification) {
	entry := g.getLogEntry().WithFields(log.Fields{
		"chat_id":    chat.ID,
		"link_kinds": strings.Join(c.LinkKinds, ","),
	})

	settings := g.policyFor(ctx, chat.ID)
	if settings == nil || !settings.LinkWarningEnabled {
		return
	}

	warning := warningPrefix + renderTemplate(settings.LinkWarningTemplate, m.From)
	retryCfg := config.Get().Retry
	err := bot.Retry(ctx, retryCfg.MaxAttempts, retryCfg.BaseDelay, func() error {
		return g.ops.SendText(ctx, chat.ID, warning, m.MessageID)
	})
	if err != nil {
		entry.WithError(err).Error("cant deliver link warning")
		return
	}
	observability.RecordModerationAction("link_warning")
	entry.Info("link warning sent")
}

// policyFor fails closed: when the store is unreachable the pipeline takes no
// action rather than guessing the group's policy.
func (g *Guard) policyFor(ctx context.Context, chatID int64) *db.Settings {
	settings, err := g.s.GetSettings(ctx, chatID)
	if err != nil {
		g.getLogEntry().WithField("chat_id", chatID).WithError(err).Error("cant fetch policy, skipping moderation")
		return nil
	}
	return settings
}

func (g *Guard) deleteMessage(ctx context.Context, chatID int64, messageID int, kind string) {
	entry := g.getLogEntry().WithFields(log.Fields{
		"chat_id":    chatID,
		"message_id": messageID,
		"kind":       kind,
	})

	err := g.ops.DeleteMessage(ctx, chatID, messageID)
	switch bot.Classify(err) {
	case bot.FailurePermission:
		// Per-group configuration the bot cannot self-correct; no retry.
		entry.WithError(err).Warn("no permission to delete, giving up")
	case bot.FailureNotFound:
		entry.Debug("message already gone")
	default:
		if err != nil {
			entry.WithError(err).Error("cant delete message")
			return
		}
		observability.RecordModerationAction("delete")
		entry.Info("message deleted")
	}
}

func (g *Guard) sendWarningWithPhoto(ctx context.Context, chatID int64, offender *api.User, warning string) error {
	if offender != nil {
		fileID, err := g.ops.ProfilePhotoFileID(ctx, offender.ID)
		if err != nil {
			g.getLogEntry().WithError(err).Debug("cant fetch profile photo")
		}
		if fileID != "" {
			content := telegram.Content{Kind: telegram.ContentPhoto, FileID: fileID, Caption: warning}
			if err := g.ops.SendContent(ctx, chatID, content); err == nil {
				return nil
			}
			// Any attachment failure degrades to text.
		}
	}
	retryCfg := config.Get().Retry
	return bot.Retry(ctx, retryCfg.MaxAttempts, retryCfg.BaseDelay, func() error {
		return g.ops.SendText(ctx, chatID, warning, 0)
	})
}

func renderTemplate(template string, user *api.User) string {
	fullName := bot.EscapeHTML(bot.GetFullName(user))
	if fullName == "" {
		fullName = "???"
	}
	return strings.ReplaceAll(template, "{fullname}", fullName)
}

func (g *Guard) getLogEntry() *log.Entry {
	return log.WithField("context", "guard")
}
