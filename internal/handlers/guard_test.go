package handlers

import (
	"context"
	"strings"
	"testing"

	api "github.com/OvyFlash/telegram-bot-api"
	"github.com/pkg/errors"

	"github.com/Istamjon/Expressbot/internal/db"
)

type attributorStub struct {
	chatID   int64
	sponsor  *api.User
	invitees []api.User
	calls    int
	inserted int
	err      error
}

func (a *attributorStub) Attribute(_ context.Context, chatID int64, sponsor *api.User, invitees []api.User) (int, error) {
	a.calls++
	a.chatID = chatID
	a.sponsor = sponsor
	a.invitees = invitees
	return a.inserted, a.err
}

func newTestGuard(client *clientStub) (*Guard, *transportStub, *attributorStub) {
	transport := &transportStub{selfID: 999}
	attributor := &attributorStub{}
	guard := NewGuard(newServiceStub(client), transport, attributor, client)
	return guard, transport, attributor
}

func documentMessage(chat *api.Chat, from *api.User, fileName string) *api.Message {
	return &api.Message{
		MessageID: 10,
		Chat:      *chat,
		From:      from,
		Document:  &api.Document{FileName: fileName},
	}
}

func TestGuardDeletesDangerousAttachment(t *testing.T) {
	t.Parallel()

	client := newClientStub()
	client.settings[100] = db.DefaultSettings(100)
	guard, transport, _ := newTestGuard(client)

	chat := groupChat(100)
	from := &api.User{ID: 5, FirstName: "Eve"}
	u := &api.Update{Message: documentMessage(chat, from, "malware.APK")}

	proceed, err := guard.Handle(context.Background(), u, chat, from)
	if err != nil {
		t.Fatalf("Handle() error: %v", err)
	}
	if proceed {
		t.Fatal("dangerous attachment should end the chain")
	}
	if len(transport.deleted) != 1 || transport.deleted[0] != 10 {
		t.Fatalf("message not deleted: %v", transport.deleted)
	}
	if len(transport.sentTexts) != 1 {
		t.Fatalf("expected one warning, got %d", len(transport.sentTexts))
	}
	if !strings.Contains(transport.sentTexts[0].text, "Eve") {
		t.Fatalf("warning misses the offender name: %q", transport.sentTexts[0].text)
	}
}

func TestGuardAttachesProfilePhotoToWarning(t *testing.T) {
	t.Parallel()

	client := newClientStub()
	client.settings[100] = db.DefaultSettings(100)
	guard, transport, _ := newTestGuard(client)
	transport.profilePhoto = "photo-file-id"

	chat := groupChat(100)
	from := &api.User{ID: 5, FirstName: "Eve"}
	u := &api.Update{Message: documentMessage(chat, from, "setup.exe")}

	if _, err := guard.Handle(context.Background(), u, chat, from); err != nil {
		t.Fatalf("Handle() error: %v", err)
	}
	if len(transport.sentContents) != 1 || transport.sentContents[0].FileID != "photo-file-id" {
		t.Fatalf("expected a photo warning, got %+v", transport.sentContents)
	}
	if len(transport.sentTexts) != 0 {
		t.Fatalf("text fallback used despite photo success: %+v", transport.sentTexts)
	}
}

func TestGuardPhotoFailureFallsBackToText(t *testing.T) {
	t.Parallel()

	client := newClientStub()
	client.settings[100] = db.DefaultSettings(100)
	guard, transport, _ := newTestGuard(client)
	transport.profilePhoto = "photo-file-id"
	transport.sendContErr = errors.New("Bad Request: wrong file identifier")

	chat := groupChat(100)
	from := &api.User{ID: 5, FirstName: "Eve"}
	u := &api.Update{Message: documentMessage(chat, from, "setup.exe")}

	if _, err := guard.Handle(context.Background(), u, chat, from); err != nil {
		t.Fatalf("Handle() error: %v", err)
	}
	if len(transport.sentTexts) != 1 {
		t.Fatalf("expected text fallback, got %+v", transport.sentTexts)
	}
}

func TestGuardDisabledLinkWarningTakesNoAction(t *testing.T) {
	t.Parallel()

	client := newClientStub()
	settings := db.DefaultSettings(100)
	settings.LinkWarningEnabled = false
	client.settings[100] = settings
	guard, transport, _ := newTestGuard(client)

	chat := groupChat(100)
	from := &api.User{ID: 5, FirstName: "Eve"}
	u := &api.Update{Message: &api.Message{
		MessageID: 11,
		Chat:      *chat,
		From:      from,
		Text:      "check https://x.co/a",
	}}

	if _, err := guard.Handle(context.Background(), u, chat, from); err != nil {
		t.Fatalf("Handle() error: %v", err)
	}
	if len(transport.sentTexts) != 0 || len(transport.deleted) != 0 {
		t.Fatalf("action taken with disabled policy: texts=%v deleted=%v", transport.sentTexts, transport.deleted)
	}
}

func TestGuardLinkWarningRepliesWithoutDeleting(t *testing.T) {
	t.Parallel()

	client := newClientStub()
	client.settings[100] = db.DefaultSettings(100)
	guard, transport, _ := newTestGuard(client)

	chat := groupChat(100)
	from := &api.User{ID: 5, FirstName: "Eve", LastName: "Mallory"}
	u := &api.Update{Message: &api.Message{
		MessageID: 11,
		Chat:      *chat,
		From:      from,
		Text:      "join t.me/spamchannel now",
	}}

	if _, err := guard.Handle(context.Background(), u, chat, from); err != nil {
		t.Fatalf("Handle() error: %v", err)
	}
	if len(transport.deleted) != 0 {
		t.Fatalf("link message must not be deleted: %v", transport.deleted)
	}
	if len(transport.sentTexts) != 1 || transport.sentTexts[0].replyTo != 11 {
		t.Fatalf("warning is not a reply to the offending message: %+v", transport.sentTexts)
	}
}

func TestGuardPermissionFailureIsTerminal(t *testing.T) {
	t.Parallel()

	client := newClientStub()
	client.settings[100] = db.DefaultSettings(100)
	guard, transport, _ := newTestGuard(client)
	transport.deleteErr = errors.New("Bad Request: not enough rights to delete the message")

	chat := groupChat(100)
	from := &api.User{ID: 5, FirstName: "Eve"}
	u := &api.Update{Message: documentMessage(chat, from, "malware.apk")}

	proceed, err := guard.Handle(context.Background(), u, chat, from)
	if err != nil {
		t.Fatalf("permission failure must not propagate: %v", err)
	}
	if proceed {
		t.Fatal("handled message should end the chain")
	}
	// The warning still goes out even though the delete was refused.
	if len(transport.sentTexts) != 1 {
		t.Fatalf("expected a warning, got %+v", transport.sentTexts)
	}
}

func TestGuardFailsClosedOnPolicyError(t *testing.T) {
	t.Parallel()

	client := newClientStub()
	client.settingsErr = errors.New("database is locked")
	guard, transport, _ := newTestGuard(client)

	chat := groupChat(100)
	from := &api.User{ID: 5, FirstName: "Eve"}
	u := &api.Update{Message: documentMessage(chat, from, "malware.apk")}

	if _, err := guard.Handle(context.Background(), u, chat, from); err != nil {
		t.Fatalf("Handle() error: %v", err)
	}
	if len(transport.deleted) != 0 || len(transport.sentTexts) != 0 {
		t.Fatalf("moderation acted without policy: deleted=%v texts=%v", transport.deleted, transport.sentTexts)
	}
}

func TestGuardAttributesNewMembers(t *testing.T) {
	t.Parallel()

	client := newClientStub()
	client.settings[100] = db.DefaultSettings(100)
	guard, transport, attributor := newTestGuard(client)
	attributor.inserted = 2

	chat := groupChat(100)
	sponsor := &api.User{ID: 5, UserName: "sponsor"}
	u := &api.Update{Message: &api.Message{
		MessageID:      12,
		Chat:           *chat,
		From:           sponsor,
		NewChatMembers: []api.User{{ID: 6}, {ID: 7}},
	}}

	if _, err := guard.Handle(context.Background(), u, chat, sponsor); err != nil {
		t.Fatalf("Handle() error: %v", err)
	}
	if attributor.calls != 1 || attributor.chatID != 100 || len(attributor.invitees) != 2 {
		t.Fatalf("unexpected attribution call: %+v", attributor)
	}
	// Default policy deletes the join notice after attribution.
	if len(transport.deleted) != 1 || transport.deleted[0] != 12 {
		t.Fatalf("join notice not deleted: %v", transport.deleted)
	}
}

func TestGuardAttributionFailureStillAppliesPolicy(t *testing.T) {
	t.Parallel()

	client := newClientStub()
	client.settings[100] = db.DefaultSettings(100)
	guard, transport, attributor := newTestGuard(client)
	attributor.err = errors.New("database is locked")

	chat := groupChat(100)
	sponsor := &api.User{ID: 5, UserName: "sponsor"}
	u := &api.Update{Message: &api.Message{
		MessageID:      12,
		Chat:           *chat,
		From:           sponsor,
		NewChatMembers: []api.User{{ID: 6}},
	}}

	if _, err := guard.Handle(context.Background(), u, chat, sponsor); err != nil {
		t.Fatalf("Handle() error: %v", err)
	}
	if len(transport.deleted) != 1 {
		t.Fatalf("join notice not deleted after attribution failure: %v", transport.deleted)
	}
}

func TestGuardTracksSelfMembership(t *testing.T) {
	t.Parallel()

	client := newClientStub()
	guard, _, _ := newTestGuard(client)

	join := &api.Update{MyChatMember: &api.ChatMemberUpdated{
		Chat: *groupChat(100),
		NewChatMember: api.ChatMember{
			User:   &api.User{ID: 999},
			Status: "member",
		},
	}}
	if _, err := guard.Handle(context.Background(), join, groupChat(100), nil); err != nil {
		t.Fatalf("Handle() error: %v", err)
	}
	if len(client.recorded) != 1 || client.recorded[0] != 100 {
		t.Fatalf("membership not recorded: %v", client.recorded)
	}

	kick := &api.Update{MyChatMember: &api.ChatMemberUpdated{
		Chat: *groupChat(100),
		NewChatMember: api.ChatMember{
			User:   &api.User{ID: 999},
			Status: "kicked",
		},
	}}
	if _, err := guard.Handle(context.Background(), kick, groupChat(100), nil); err != nil {
		t.Fatalf("Handle() error: %v", err)
	}
	if len(client.removed) != 1 || client.removed[0] != 100 {
		t.Fatalf("membership not removed: %v", client.removed)
	}

	// Another participant's updates are none of the bot's business.
	other := &api.Update{MyChatMember: &api.ChatMemberUpdated{
		Chat: *groupChat(100),
		NewChatMember: api.ChatMember{
			User:   &api.User{ID: 5},
			Status: "kicked",
		},
	}}
	if _, err := guard.Handle(context.Background(), other, groupChat(100), nil); err != nil {
		t.Fatalf("Handle() error: %v", err)
	}
	if len(client.removed) != 1 {
		t.Fatalf("stranger's update mutated memberships: %v", client.removed)
	}
}

func TestGuardDeletesSystemNotice(t *testing.T) {
	t.Parallel()

	client := newClientStub()
	client.settings[100] = db.DefaultSettings(100)
	guard, transport, _ := newTestGuard(client)

	chat := groupChat(100)
	u := &api.Update{Message: &api.Message{
		MessageID:    13,
		Chat:         *chat,
		NewChatTitle: "Shiny new title",
	}}

	if _, err := guard.Handle(context.Background(), u, chat, nil); err != nil {
		t.Fatalf("Handle() error: %v", err)
	}
	if len(transport.deleted) != 1 || transport.deleted[0] != 13 {
		t.Fatalf("system notice not deleted: %v", transport.deleted)
	}
	if len(transport.sentTexts) != 0 {
		t.Fatalf("system notice must not trigger a warning: %+v", transport.sentTexts)
	}
}
