package bot

import (
	"context"

	api "github.com/OvyFlash/telegram-bot-api"
	"github.com/iamwavecut/tool"
	"github.com/pkg/errors"

	"github.com/Istamjon/Expressbot/internal/config"
	"github.com/Istamjon/Expressbot/internal/db"
	"github.com/Istamjon/Expressbot/internal/i18n"
)

type service struct {
	bot *api.BotAPI
	db  db.Client
}

func NewService(bot *api.BotAPI, db db.Client) *service {
	return &service{
		bot: bot,
		db:  db,
	}
}

func (s *service) GetBot() *api.BotAPI {
	return s.bot
}

func (s *service) GetDB() db.Client {
	return s.db
}

// GetSettings returns the stored policy for the chat, or freshly persisted
// defaults when the chat has never been seen before.
func (s *service) GetSettings(ctx context.Context, chatID int64) (*db.Settings, error) {
	settings, err := s.db.GetSettings(ctx, chatID)
	if err == nil {
		return settings, nil
	}
	if !errors.Is(err, db.ErrNotFound) {
		return nil, errors.WithMessage(err, "cant get settings")
	}
	settings = db.DefaultSettings(chatID)
	settings.Language = config.Get().DefaultLanguage
	if err := s.db.UpsertSettings(ctx, settings); err != nil {
		return nil, errors.WithMessage(err, "cant persist default settings")
	}
	return settings, nil
}

func (s *service) SetSettings(ctx context.Context, settings *db.Settings) error {
	return s.db.UpsertSettings(ctx, settings)
}

func (s *service) GetLanguage(ctx context.Context, chatID int64, user *api.User) string {
	if settings, err := s.db.GetSettings(ctx, chatID); !tool.Try(err) && settings.Language != "" {
		return settings.Language
	}
	if user != nil && tool.In(user.LanguageCode, i18n.GetLanguagesList()...) {
		return user.LanguageCode
	}
	return config.Get().DefaultLanguage
}
