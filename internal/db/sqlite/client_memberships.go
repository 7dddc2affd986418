package sqlite

import (
	"context"

	"github.com/pkg/errors"

	"github.com/Istamjon/Expressbot/internal/db"
)

func (c *sqliteClient) RecordMembership(ctx context.Context, chatID int64, title string) error {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	query := `
		INSERT INTO memberships (chat_id, title)
		VALUES (?, ?)
		ON CONFLICT(chat_id) DO UPDATE SET
		title = excluded.title
	`
	_, err := c.db.ExecContext(ctx, query, chatID, title)
	if err != nil {
		return errors.WithMessage(err, "cant record membership")
	}
	return nil
}

func (c *sqliteClient) RemoveMembership(ctx context.Context, chatID int64) error {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	_, err := c.db.ExecContext(ctx, `DELETE FROM memberships WHERE chat_id = ?`, chatID)
	if err != nil {
		return errors.WithMessage(err, "cant remove membership")
	}
	return nil
}

func (c *sqliteClient) ListMemberships(ctx context.Context) ([]*db.Membership, error) {
	c.mutex.RLock()
	defer c.mutex.RUnlock()

	var memberships []*db.Membership
	query := `SELECT chat_id, title, joined_at FROM memberships ORDER BY joined_at`
	if err := c.db.SelectContext(ctx, &memberships, query); err != nil {
		return nil, errors.WithMessage(err, "cant list memberships")
	}
	return memberships, nil
}
