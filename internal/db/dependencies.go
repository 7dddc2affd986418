package db

import "context"

type Client interface {
	Close() error

	GetSettings(ctx context.Context, chatID int64) (*Settings, error)
	UpsertSettings(ctx context.Context, settings *Settings) error
	ResetSettings(ctx context.Context, chatID int64) error

	RecordMembership(ctx context.Context, chatID int64, title string) error
	RemoveMembership(ctx context.Context, chatID int64) error
	ListMemberships(ctx context.Context) ([]*Membership, error)

	// AttributeInvites inserts an invite row for every invitee that has no
	// prior attribution in the chat and bumps the sponsor tally by the
	// number of rows actually inserted, all in one transaction. Returns
	// the number of newly attributed invitees.
	AttributeInvites(ctx context.Context, chatID, sponsorID int64, displayName string, inviteeIDs []int64) (int, error)
	TopTallies(ctx context.Context, chatID int64, limit int) ([]*SponsorTally, error)
	ResetLedger(ctx context.Context, chatID int64) error
}
