package db

import "time"

type (
	// Settings is the per-group moderation policy. Every group the bot has
	// ever seen has exactly one row; readers fall back to DefaultSettings
	// when the row is absent.
	Settings struct {
		ChatID                     int64  `db:"chat_id"`
		Title                      string `db:"title"`
		FileFilterEnabled          bool   `db:"file_filter_enabled"`
		LinkWarningEnabled         bool   `db:"link_warning_enabled"`
		SystemMessageDeleteEnabled bool   `db:"system_message_delete_enabled"`
		FileWarningTemplate        string `db:"file_warning_template"`
		LinkWarningTemplate        string `db:"link_warning_template"`
		Language                   string `db:"language"`
	}

	// Membership marks a group the bot is currently active in.
	Membership struct {
		ChatID   int64     `db:"chat_id"`
		Title    string    `db:"title"`
		JoinedAt time.Time `db:"joined_at"`
	}

	// InviteRecord is the dedup anchor: at most one row per
	// (chat_id, invitee_id), no matter how often the invitee rejoins.
	InviteRecord struct {
		ChatID    int64     `db:"chat_id"`
		SponsorID int64     `db:"sponsor_id"`
		InviteeID int64     `db:"invitee_id"`
		CreatedAt time.Time `db:"created_at"`
	}

	// SponsorTally aggregates invites per sponsor. Count always equals the
	// number of invite rows for the pair; it is only ever written inside
	// the attribution transaction.
	SponsorTally struct {
		ChatID      int64     `db:"chat_id"`
		SponsorID   int64     `db:"sponsor_id"`
		DisplayName string    `db:"display_name"`
		Count       int       `db:"count"`
		LastUpdated time.Time `db:"last_updated"`
	}
)
