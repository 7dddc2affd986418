// Package telegram wraps the narrow slice of the Bot API the moderation core
// consumes: send, delete, member counts and profile photo lookups.
package telegram

import (
	"context"

	api "github.com/OvyFlash/telegram-bot-api"
	"github.com/pkg/errors"
)

// Content is a transport-neutral outbound payload. Exactly one of Text or
// FileID is meaningful, depending on Kind.
type Content struct {
	Kind    ContentKind
	Text    string
	FileID  string
	Caption string
}

type ContentKind string

const (
	ContentText     ContentKind = "text"
	ContentPhoto    ContentKind = "photo"
	ContentVideo    ContentKind = "video"
	ContentDocument ContentKind = "document"
)

// ContentFromMessage lifts an authored message into Content, preserving its
// native type. Unsupported kinds degrade to their caption or empty text.
func ContentFromMessage(msg *api.Message) Content {
	switch {
	case msg.Photo != nil && len(msg.Photo) > 0:
		return Content{Kind: ContentPhoto, FileID: msg.Photo[len(msg.Photo)-1].FileID, Caption: msg.Caption}
	case msg.Video != nil:
		return Content{Kind: ContentVideo, FileID: msg.Video.FileID, Caption: msg.Caption}
	case msg.Document != nil:
		return Content{Kind: ContentDocument, FileID: msg.Document.FileID, Caption: msg.Caption}
	default:
		return Content{Kind: ContentText, Text: msg.Text}
	}
}

// Operations provides the Telegram operations the pipeline and the broadcast
// coordinator depend on.
type Operations struct {
	bot *api.BotAPI
}

func NewOperations(bot *api.BotAPI) *Operations {
	return &Operations{bot: bot}
}

func (o *Operations) SelfID() int64 {
	return o.bot.Self.ID
}

func (o *Operations) DeleteMessage(ctx context.Context, chatID int64, messageID int) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
	}
	if _, err := o.bot.Request(api.NewDeleteMessage(chatID, messageID)); err != nil {
		return errors.WithMessage(err, "cant delete message")
	}
	return nil
}

// SendText delivers an HTML-formatted text message. A non-zero replyTo makes
// it a reply to that message.
func (o *Operations) SendText(ctx context.Context, chatID int64, text string, replyTo int) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
	}
	msg := api.NewMessage(chatID, text)
	msg.ParseMode = api.ModeHTML
	msg.DisableNotification = true
	if replyTo != 0 {
		msg.ReplyParameters.MessageID = replyTo
		msg.ReplyParameters.AllowSendingWithoutReply = true
	}
	if _, err := o.bot.Send(msg); err != nil {
		return errors.WithMessage(err, "cant send text")
	}
	return nil
}

// SendContent delivers arbitrary content preserving its native kind.
func (o *Operations) SendContent(ctx context.Context, chatID int64, content Content) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
	}
	var c api.Chattable
	switch content.Kind {
	case ContentPhoto:
		photo := api.NewPhoto(chatID, api.FileID(content.FileID))
		photo.Caption = content.Caption
		photo.ParseMode = api.ModeHTML
		c = photo
	case ContentVideo:
		video := api.NewVideo(chatID, api.FileID(content.FileID))
		video.Caption = content.Caption
		video.ParseMode = api.ModeHTML
		c = video
	case ContentDocument:
		document := api.NewDocument(chatID, api.FileID(content.FileID))
		document.Caption = content.Caption
		document.ParseMode = api.ModeHTML
		c = document
	default:
		msg := api.NewMessage(chatID, content.Text)
		msg.ParseMode = api.ModeHTML
		c = msg
	}
	if _, err := o.bot.Send(c); err != nil {
		return errors.WithMessage(err, "cant send content")
	}
	return nil
}

func (o *Operations) MemberCount(ctx context.Context, chatID int64) (int, error) {
	select {
	case <-ctx.Done():
		return 0, ctx.Err()
	default:
	}
	count, err := o.bot.GetChatMembersCount(api.ChatMemberCountConfig{
		ChatConfig: api.ChatConfig{ChatID: chatID},
	})
	if err != nil {
		return 0, errors.WithMessage(err, "cant get member count")
	}
	return count, nil
}

// ProfilePhotoFileID returns the file ID of the user's current profile photo,
// or an empty string when none is available.
func (o *Operations) ProfilePhotoFileID(ctx context.Context, userID int64) (string, error) {
	select {
	case <-ctx.Done():
		return "", ctx.Err()
	default:
	}
	photos, err := o.bot.GetUserProfilePhotos(api.NewUserProfilePhotos(userID))
	if err != nil {
		return "", errors.WithMessage(err, "cant get profile photos")
	}
	if photos.TotalCount == 0 || len(photos.Photos) == 0 || len(photos.Photos[0]) == 0 {
		return "", nil
	}
	sizes := photos.Photos[0]
	// A middle size keeps the warning light without being a thumbnail.
	if len(sizes) > 1 {
		return sizes[1].FileID, nil
	}
	return sizes[0].FileID, nil
}
