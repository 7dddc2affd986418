// Package referral attributes newly added group members to the user who
// invited them and keeps per-sponsor leaderboards.
package referral

import (
	"context"

	api "github.com/OvyFlash/telegram-bot-api"
	"github.com/pkg/errors"

	"github.com/Istamjon/Expressbot/internal/bot"
	"github.com/Istamjon/Expressbot/internal/db"
)

type Store interface {
	AttributeInvites(ctx context.Context, chatID, sponsorID int64, displayName string, inviteeIDs []int64) (int, error)
	TopTallies(ctx context.Context, chatID int64, limit int) ([]*db.SponsorTally, error)
	ResetLedger(ctx context.Context, chatID int64) error
}

type Ledger struct {
	store Store
}

func NewLedger(store Store) *Ledger {
	return &Ledger{store: store}
}

// Attribute credits the sponsor with every invitee that qualifies: bots and
// the sponsor themselves never count. Invitees already attributed in the chat
// are skipped by the store, so replayed join events are harmless. Returns the
// number of newly attributed invitees.
func (l *Ledger) Attribute(ctx context.Context, chatID int64, sponsor *api.User, invitees []api.User) (int, error) {
	if sponsor == nil || sponsor.IsBot {
		return 0, nil
	}

	inviteeIDs := make([]int64, 0, len(invitees))
	for _, invitee := range invitees {
		if invitee.ID == sponsor.ID || invitee.IsBot {
			continue
		}
		inviteeIDs = append(inviteeIDs, invitee.ID)
	}
	if len(inviteeIDs) == 0 {
		return 0, nil
	}

	inserted, err := l.store.AttributeInvites(ctx, chatID, sponsor.ID, bot.GetDisplayName(sponsor), inviteeIDs)
	if err != nil {
		return 0, errors.WithMessage(err, "cant attribute invites")
	}
	return inserted, nil
}

// TopSponsors returns tallies ordered by count descending, ties broken by the
// earliest last update.
func (l *Ledger) TopSponsors(ctx context.Context, chatID int64, limit int) ([]*db.SponsorTally, error) {
	return l.store.TopTallies(ctx, chatID, limit)
}

// Reset clears both invite facts and tallies for the chat.
func (l *Ledger) Reset(ctx context.Context, chatID int64) error {
	return l.store.ResetLedger(ctx, chatID)
}
