package db

import "errors"

var ErrNotFound = errors.New("not found")

const (
	DefaultFileWarningTemplate = "<b>{fullname}</b> guruhga xavfli fayl (.apk, .exe) yubordi! Agar tanisangiz, darhol ogohlantiring: telefoniga virus tushgan bo'lishi mumkin. Telegram va qurilmasini tekshirsin!"
	DefaultLinkWarningTemplate = "<b>{fullname}</b> havola yubordi. Ochishdan oldin ogoh bo'ling! Ehtimol virus bo'lishi mumkin."
)

func DefaultSettings(chatID int64) *Settings {
	return &Settings{
		ChatID:                     chatID,
		FileFilterEnabled:          true,
		LinkWarningEnabled:         true,
		SystemMessageDeleteEnabled: true,
		FileWarningTemplate:        DefaultFileWarningTemplate,
		LinkWarningTemplate:        DefaultLinkWarningTemplate,
		Language:                   "uz",
	}
}
