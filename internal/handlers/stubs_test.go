package handlers

import (
	"context"

	api "github.com/OvyFlash/telegram-bot-api"

	"github.com/Istamjon/Expressbot/internal/db"
	"github.com/Istamjon/Expressbot/internal/infrastructure/telegram"
)

type sentText struct {
	chatID  int64
	text    string
	replyTo int
}

// transportStub satisfies both the guard and the admin transport slices.
type transportStub struct {
	selfID        int64
	sentTexts     []sentText
	sentContents  []telegram.Content
	deleted       []int
	deleteErr     error
	sendTextErr   error
	sendContErr   error
	profilePhoto  string
	profilePhotoE error
}

func (t *transportStub) SelfID() int64 { return t.selfID }

func (t *transportStub) DeleteMessage(_ context.Context, _ int64, messageID int) error {
	if t.deleteErr != nil {
		return t.deleteErr
	}
	t.deleted = append(t.deleted, messageID)
	return nil
}

func (t *transportStub) SendText(_ context.Context, chatID int64, text string, replyTo int) error {
	if t.sendTextErr != nil {
		return t.sendTextErr
	}
	t.sentTexts = append(t.sentTexts, sentText{chatID: chatID, text: text, replyTo: replyTo})
	return nil
}

func (t *transportStub) SendContent(_ context.Context, _ int64, content telegram.Content) error {
	if t.sendContErr != nil {
		return t.sendContErr
	}
	t.sentContents = append(t.sentContents, content)
	return nil
}

func (t *transportStub) ProfilePhotoFileID(_ context.Context, _ int64) (string, error) {
	return t.profilePhoto, t.profilePhotoE
}

// clientStub is an in-memory db.Client for handler tests.
type clientStub struct {
	settings    map[int64]*db.Settings
	memberships []*db.Membership
	tallies     []*db.SponsorTally
	settingsErr error

	resetSettingsCalls []int64
	resetLedgerCalls   []int64
	recorded           []int64
	removed            []int64
}

func newClientStub() *clientStub {
	return &clientStub{settings: make(map[int64]*db.Settings)}
}

func (c *clientStub) Close() error { return nil }

func (c *clientStub) GetSettings(_ context.Context, chatID int64) (*db.Settings, error) {
	if c.settingsErr != nil {
		return nil, c.settingsErr
	}
	if settings, ok := c.settings[chatID]; ok {
		copied := *settings
		return &copied, nil
	}
	return nil, db.ErrNotFound
}

func (c *clientStub) UpsertSettings(_ context.Context, settings *db.Settings) error {
	copied := *settings
	c.settings[settings.ChatID] = &copied
	return nil
}

func (c *clientStub) ResetSettings(_ context.Context, chatID int64) error {
	c.resetSettingsCalls = append(c.resetSettingsCalls, chatID)
	return nil
}

func (c *clientStub) RecordMembership(_ context.Context, chatID int64, _ string) error {
	c.recorded = append(c.recorded, chatID)
	return nil
}

func (c *clientStub) RemoveMembership(_ context.Context, chatID int64) error {
	c.removed = append(c.removed, chatID)
	return nil
}

func (c *clientStub) ListMemberships(_ context.Context) ([]*db.Membership, error) {
	return c.memberships, nil
}

func (c *clientStub) AttributeInvites(_ context.Context, _, _ int64, _ string, inviteeIDs []int64) (int, error) {
	return len(inviteeIDs), nil
}

func (c *clientStub) TopTallies(_ context.Context, _ int64, _ int) ([]*db.SponsorTally, error) {
	return c.tallies, nil
}

func (c *clientStub) ResetLedger(_ context.Context, chatID int64) error {
	c.resetLedgerCalls = append(c.resetLedgerCalls, chatID)
	return nil
}

// serviceStub wires a clientStub behind the bot.Service contract with a fixed
// language, so responses in tests keep their source-language keys.
type serviceStub struct {
	client *clientStub
}

func newServiceStub(client *clientStub) *serviceStub {
	return &serviceStub{client: client}
}

func (s *serviceStub) GetBot() *api.BotAPI { return nil }

func (s *serviceStub) GetDB() db.Client { return s.client }

func (s *serviceStub) GetSettings(ctx context.Context, chatID int64) (*db.Settings, error) {
	settings, err := s.client.GetSettings(ctx, chatID)
	if err == db.ErrNotFound {
		settings = db.DefaultSettings(chatID)
		return settings, s.client.UpsertSettings(ctx, settings)
	}
	return settings, err
}

func (s *serviceStub) SetSettings(ctx context.Context, settings *db.Settings) error {
	return s.client.UpsertSettings(ctx, settings)
}

func (s *serviceStub) GetLanguage(_ context.Context, _ int64, _ *api.User) string {
	return "en"
}

func groupChat(id int64) *api.Chat {
	return &api.Chat{ID: id, Type: "supergroup", Title: "Test group"}
}

func privateChat(id int64) *api.Chat {
	return &api.Chat{ID: id, Type: "private"}
}

func commandMessage(chat *api.Chat, from *api.User, text string) *api.Message {
	return &api.Message{
		MessageID: 1,
		Chat:      *chat,
		From:      from,
		Text:      text,
		Entities: []api.MessageEntity{
			{Type: "bot_command", Offset: 0, Length: entityLength(text)},
		},
	}
}

func entityLength(text string) int {
	for i, r := range text {
		if r == ' ' {
			return i
		}
	}
	return len(text)
}
