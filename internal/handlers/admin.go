package handlers

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"sync"

	api "github.com/OvyFlash/telegram-bot-api"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"

	"github.com/Istamjon/Expressbot/internal/bot"
	"github.com/Istamjon/Expressbot/internal/broadcast"
	"github.com/Istamjon/Expressbot/internal/db"
	"github.com/Istamjon/Expressbot/internal/i18n"
	"github.com/Istamjon/Expressbot/internal/infra"
	"github.com/Istamjon/Expressbot/internal/infrastructure/telegram"
)

type pendingKind int

const (
	pendingFileTemplate pendingKind = iota
	pendingLinkTemplate
	pendingBroadcast
)

// pendingAction is the operator's one in-flight multi-step action. Kept in
// memory only: a restart drops every operator back to idle.
type pendingAction struct {
	kind     pendingKind
	targetID int64
}

// AdminTransport is the outbound slice the admin surface needs for its own
// replies. Broadcast content travels through the coordinator's transport.
type AdminTransport interface {
	SendText(ctx context.Context, chatID int64, text string, replyTo int) error
}

// Broadcaster runs one fan-out and reports the outcome.
type Broadcaster interface {
	Broadcast(ctx context.Context, content telegram.Content) (*broadcast.Report, error)
}

// LedgerAdmin exposes the destructive ledger operation to the owner surface.
type LedgerAdmin interface {
	Reset(ctx context.Context, chatID int64) error
}

var ownerCommands = map[string]bool{
	"groups":       true,
	"togglefile":   true,
	"togglelink":   true,
	"togglesystem": true,
	"editfile":     true,
	"editlink":     true,
	"reset":        true,
	"resetstats":   true,
	"broadcast":    true,
	"cancel":       true,
}

// Admin is the owner-only control surface, driven from the owner's private
// chat with the bot.
type Admin struct {
	s           bot.Service
	ops         AdminTransport
	coordinator Broadcaster
	ledger      LedgerAdmin
	ownerID     int64

	mu      sync.Mutex
	pending map[int64]*pendingAction

	launch func(id string, f func())
}

func NewAdmin(s bot.Service, ops AdminTransport, coordinator Broadcaster, ledger LedgerAdmin, ownerID int64) *Admin {
	return &Admin{
		s:           s,
		ops:         ops,
		coordinator: coordinator,
		ledger:      ledger,
		ownerID:     ownerID,
		pending:     make(map[int64]*pendingAction),
		launch: func(id string, f func()) {
			go infra.GoRecoverable(1, id, f)
		},
	}
}

func (a *Admin) Handle(ctx context.Context, u *api.Update, chat *api.Chat, user *api.User) (bool, error) {
	if u == nil || u.Message == nil || chat == nil || user == nil {
		return true, nil
	}
	if !chat.IsPrivate() || user.IsBot {
		return true, nil
	}
	m := u.Message
	lang := a.s.GetLanguage(ctx, chat.ID, user)

	if user.ID != a.ownerID {
		if m.IsCommand() && ownerCommands[m.Command()] {
			a.reply(ctx, chat.ID, i18n.Get("This command is available to the bot owner only.", lang))
			return false, nil
		}
		return true, nil
	}

	if m.IsCommand() {
		return a.handleCommand(ctx, m, chat, lang)
	}
	return a.handlePendingInput(ctx, m, chat, user, lang)
}

func (a *Admin) handleCommand(ctx context.Context, m *api.Message, chat *api.Chat, lang string) (bool, error) {
	entry := a.getLogEntry().WithField("command", m.Command())
	entry.Debug("owner command")

	switch m.Command() {
	case "groups":
		a.sendGroupList(ctx, chat.ID, lang)
	case "togglefile":
		a.togglePolicyFlag(ctx, m, chat.ID, lang, func(s *db.Settings) *bool { return &s.FileFilterEnabled })
	case "togglelink":
		a.togglePolicyFlag(ctx, m, chat.ID, lang, func(s *db.Settings) *bool { return &s.LinkWarningEnabled })
	case "togglesystem":
		a.togglePolicyFlag(ctx, m, chat.ID, lang, func(s *db.Settings) *bool { return &s.SystemMessageDeleteEnabled })
	case "editfile":
		a.beginTemplateEdit(ctx, m, chat.ID, lang, pendingFileTemplate)
	case "editlink":
		a.beginTemplateEdit(ctx, m, chat.ID, lang, pendingLinkTemplate)
	case "reset":
		targetID, ok := a.parseTarget(ctx, m, chat.ID, lang)
		if !ok {
			return false, nil
		}
		if err := a.s.GetDB().ResetSettings(ctx, targetID); err != nil {
			entry.WithError(err).Error("cant reset settings")
			a.reply(ctx, chat.ID, i18n.Get("Something went wrong, try again later.", lang))
			return false, nil
		}
		a.reply(ctx, chat.ID, i18n.Get("Group settings restored to defaults.", lang))
	case "resetstats":
		targetID, ok := a.parseTarget(ctx, m, chat.ID, lang)
		if !ok {
			return false, nil
		}
		if err := a.ledger.Reset(ctx, targetID); err != nil {
			entry.WithError(err).Error("cant reset ledger")
			a.reply(ctx, chat.ID, i18n.Get("Something went wrong, try again later.", lang))
			return false, nil
		}
		a.reply(ctx, chat.ID, i18n.Get("Invite statistics cleared for the group.", lang))
	case "broadcast":
		a.setPending(a.ownerID, &pendingAction{kind: pendingBroadcast})
		a.reply(ctx, chat.ID, i18n.Get("Send the message to broadcast to all groups. /cancel to abort.", lang))
	case "cancel":
		a.setPending(a.ownerID, nil)
		a.reply(ctx, chat.ID, i18n.Get("Cancelled.", lang))
	default:
		return true, nil
	}
	return false, nil
}

// handlePendingInput consumes one non-command message as the payload of the
// operator's pending action, then returns the session to idle.
func (a *Admin) handlePendingInput(ctx context.Context, m *api.Message, chat *api.Chat, user *api.User, lang string) (bool, error) {
	a.mu.Lock()
	action := a.pending[user.ID]
	delete(a.pending, user.ID)
	a.mu.Unlock()
	if action == nil {
		return true, nil
	}

	switch action.kind {
	case pendingFileTemplate, pendingLinkTemplate:
		if strings.TrimSpace(m.Text) == "" {
			a.reply(ctx, chat.ID, i18n.Get("The template must be plain text. Start over.", lang))
			return false, nil
		}
		if err := a.applyTemplate(ctx, action, m.Text); err != nil {
			a.getLogEntry().WithError(err).Error("cant apply template")
			a.reply(ctx, chat.ID, i18n.Get("Something went wrong, try again later.", lang))
			return false, nil
		}
		a.reply(ctx, chat.ID, i18n.Get("Template updated.", lang))
	case pendingBroadcast:
		content := telegram.ContentFromMessage(m)
		a.reply(ctx, chat.ID, i18n.Get("Broadcast started, the summary will follow.", lang))
		a.launch("broadcast run", func() {
			a.runBroadcast(chat.ID, lang, content)
		})
	}
	return false, nil
}

func (a *Admin) applyTemplate(ctx context.Context, action *pendingAction, text string) error {
	settings, err := a.s.GetSettings(ctx, action.targetID)
	if err != nil {
		return errors.WithMessage(err, "cant get settings")
	}
	switch action.kind {
	case pendingFileTemplate:
		settings.FileWarningTemplate = text
	case pendingLinkTemplate:
		settings.LinkWarningTemplate = text
	}
	return a.s.SetSettings(ctx, settings)
}

// runBroadcast executes one fan-out off the dispatch loop and reports the
// summary back to the owner.
func (a *Admin) runBroadcast(ownerChatID int64, lang string, content telegram.Content) {
	ctx := context.Background()
	report, err := a.coordinator.Broadcast(ctx, content)
	if err != nil {
		a.getLogEntry().WithError(err).Error("broadcast failed")
		a.reply(ctx, ownerChatID, i18n.Get("Broadcast failed to start.", lang))
		return
	}
	a.reply(ctx, ownerChatID, formatReport(report, lang))
}

func formatReport(report *broadcast.Report, lang string) string {
	var b strings.Builder
	b.WriteString(i18n.Get("Broadcast finished.", lang) + "\n")
	b.WriteString(fmt.Sprintf("%s: %d/%d\n", i18n.Get("Delivered", lang), report.Delivered, report.Total))
	b.WriteString(fmt.Sprintf("%s: %d\n", i18n.Get("Failed", lang), report.Failed))
	b.WriteString(fmt.Sprintf("%s: ~%d", i18n.Get("Estimated reach", lang), report.EstimatedReach))
	if len(report.Errors) > 0 {
		b.WriteString("\n" + i18n.Get("Errors", lang) + ":")
		for _, line := range report.Errors {
			b.WriteString("\n- " + line)
		}
		if report.ErrorsOmitted > 0 {
			b.WriteString(fmt.Sprintf("\n(+%d)", report.ErrorsOmitted))
		}
	}
	return b.String()
}

func (a *Admin) sendGroupList(ctx context.Context, ownerChatID int64, lang string) {
	memberships, err := a.s.GetDB().ListMemberships(ctx)
	if err != nil {
		a.getLogEntry().WithError(err).Error("cant list memberships")
		a.reply(ctx, ownerChatID, i18n.Get("Something went wrong, try again later.", lang))
		return
	}
	if len(memberships) == 0 {
		a.reply(ctx, ownerChatID, i18n.Get("The bot is not in any group yet.", lang))
		return
	}

	var b strings.Builder
	b.WriteString(i18n.Get("Managed groups", lang) + ":")
	for _, membership := range memberships {
		flags := "?"
		if settings, err := a.s.GetSettings(ctx, membership.ChatID); err == nil {
			flags = fmt.Sprintf("%s%s%s",
				flagMark("F", settings.FileFilterEnabled),
				flagMark("L", settings.LinkWarningEnabled),
				flagMark("S", settings.SystemMessageDeleteEnabled),
			)
		}
		b.WriteString(fmt.Sprintf("\n%d — %s [%s]", membership.ChatID, bot.EscapeHTML(membership.Title), flags))
	}
	a.reply(ctx, ownerChatID, b.String())
}

func flagMark(label string, enabled bool) string {
	if enabled {
		return label + "+"
	}
	return label + "-"
}

func (a *Admin) togglePolicyFlag(ctx context.Context, m *api.Message, ownerChatID int64, lang string, pick func(*db.Settings) *bool) {
	targetID, ok := a.parseTarget(ctx, m, ownerChatID, lang)
	if !ok {
		return
	}
	settings, err := a.s.GetSettings(ctx, targetID)
	if err != nil {
		a.getLogEntry().WithError(err).Error("cant get settings")
		a.reply(ctx, ownerChatID, i18n.Get("Something went wrong, try again later.", lang))
		return
	}
	flag := pick(settings)
	*flag = !*flag
	if err := a.s.SetSettings(ctx, settings); err != nil {
		a.getLogEntry().WithError(err).Error("cant set settings")
		a.reply(ctx, ownerChatID, i18n.Get("Something went wrong, try again later.", lang))
		return
	}
	state := i18n.Get("disabled", lang)
	if *flag {
		state = i18n.Get("enabled", lang)
	}
	a.reply(ctx, ownerChatID, fmt.Sprintf("%s: %s", i18n.Get("Done, the filter is now", lang), state))
}

func (a *Admin) beginTemplateEdit(ctx context.Context, m *api.Message, ownerChatID int64, lang string, kind pendingKind) {
	targetID, ok := a.parseTarget(ctx, m, ownerChatID, lang)
	if !ok {
		return
	}
	a.setPending(a.ownerID, &pendingAction{kind: kind, targetID: targetID})
	a.reply(ctx, ownerChatID, i18n.Get("Send the new template text, {fullname} is substituted with the member's name. /cancel to abort.", lang))
}

func (a *Admin) parseTarget(ctx context.Context, m *api.Message, ownerChatID int64, lang string) (int64, bool) {
	argument := strings.TrimSpace(m.CommandArguments())
	targetID, err := strconv.ParseInt(argument, 10, 64)
	if err != nil {
		a.reply(ctx, ownerChatID, i18n.Get("Pass the group id, see /groups for the list.", lang))
		return 0, false
	}
	return targetID, true
}

// setPending replaces the operator's pending action; a nil action resets the
// session to idle.
func (a *Admin) setPending(operatorID int64, action *pendingAction) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if action == nil {
		delete(a.pending, operatorID)
		return
	}
	a.pending[operatorID] = action
}

func (a *Admin) reply(ctx context.Context, chatID int64, text string) {
	if err := a.ops.SendText(ctx, chatID, text, 0); err != nil {
		a.getLogEntry().WithError(err).Error("cant reply to operator")
	}
}

func (a *Admin) getLogEntry() *log.Entry {
	return log.WithField("context", "admin")
}
