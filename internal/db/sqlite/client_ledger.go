package sqlite

import (
	"context"
	"time"

	"github.com/pkg/errors"

	"github.com/Istamjon/Expressbot/internal/db"
)

// AttributeInvites records first-time invitees and bumps the sponsor tally by
// exactly the number of rows inserted. An invitee already attributed in the
// chat is skipped silently, keeping the earlier sponsor. The whole call either
// commits or rolls back, so a retry after a persistence failure is idempotent.
func (c *sqliteClient) AttributeInvites(ctx context.Context, chatID, sponsorID int64, displayName string, inviteeIDs []int64) (int, error) {
	if len(inviteeIDs) == 0 {
		return 0, nil
	}

	c.mutex.Lock()
	defer c.mutex.Unlock()

	tx, err := c.db.BeginTxx(ctx, nil)
	if err != nil {
		return 0, errors.WithMessage(err, "cant begin attribution tx")
	}
	defer tx.Rollback()

	stmt, err := tx.PreparexContext(ctx, `INSERT OR IGNORE INTO invites (chat_id, sponsor_id, invitee_id) VALUES (?, ?, ?)`)
	if err != nil {
		return 0, errors.WithMessage(err, "cant prepare invite insert")
	}
	defer stmt.Close()

	inserted := 0
	for _, inviteeID := range inviteeIDs {
		res, err := stmt.ExecContext(ctx, chatID, sponsorID, inviteeID)
		if err != nil {
			return 0, errors.WithMessage(err, "cant insert invite")
		}
		affected, err := res.RowsAffected()
		if err != nil {
			return 0, err
		}
		inserted += int(affected)
	}

	if inserted > 0 {
		query := `
			INSERT INTO tallies (chat_id, sponsor_id, display_name, count, last_updated)
			VALUES (?, ?, ?, ?, ?)
			ON CONFLICT(chat_id, sponsor_id) DO UPDATE SET
			count = count + excluded.count,
			display_name = excluded.display_name,
			last_updated = excluded.last_updated
		`
		if _, err := tx.ExecContext(ctx, query, chatID, sponsorID, displayName, inserted, time.Now().UTC()); err != nil {
			return 0, errors.WithMessage(err, "cant increment tally")
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, errors.WithMessage(err, "cant commit attribution")
	}
	return inserted, nil
}

func (c *sqliteClient) TopTallies(ctx context.Context, chatID int64, limit int) ([]*db.SponsorTally, error) {
	c.mutex.RLock()
	defer c.mutex.RUnlock()

	var tallies []*db.SponsorTally
	query := `
		SELECT chat_id, sponsor_id, display_name, count, last_updated
		FROM tallies
		WHERE chat_id = ?
		ORDER BY count DESC, last_updated ASC
		LIMIT ?
	`
	if err := c.db.SelectContext(ctx, &tallies, query, chatID, limit); err != nil {
		return nil, errors.WithMessage(err, "cant select tallies")
	}
	return tallies, nil
}

func (c *sqliteClient) ResetLedger(ctx context.Context, chatID int64) error {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	tx, err := c.db.BeginTxx(ctx, nil)
	if err != nil {
		return errors.WithMessage(err, "cant begin reset tx")
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM invites WHERE chat_id = ?`, chatID); err != nil {
		return errors.WithMessage(err, "cant clear invites")
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM tallies WHERE chat_id = ?`, chatID); err != nil {
		return errors.WithMessage(err, "cant clear tallies")
	}
	return tx.Commit()
}
