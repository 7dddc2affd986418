package sqlite

import (
	"context"
	"database/sql"
	"path/filepath"
	"sync"

	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"
	migrate "github.com/rubenv/sql-migrate"
	log "github.com/sirupsen/logrus"
	_ "modernc.org/sqlite"

	"github.com/Istamjon/Expressbot/internal/db"
	"github.com/Istamjon/Expressbot/resources"
)

type sqliteClient struct {
	db    *sqlx.DB
	mutex sync.RWMutex
}

func NewSQLiteClient(ctx context.Context, dir string, dbPath string) (*sqliteClient, error) {
	dbx, err := sqlx.Open("sqlite", filepath.Join(dir, dbPath))
	if err != nil {
		return nil, errors.WithMessage(err, "cant open db")
	}
	dbx.SetMaxOpenConns(1)

	migrationsSource := &migrate.EmbedFileSystemMigrationSource{
		FileSystem: resources.FS,
		Root:       "migrations",
	}
	n, err := migrate.ExecContext(ctx, dbx.DB, "sqlite3", migrationsSource, migrate.Up)
	if err != nil {
		return nil, errors.WithMessage(err, "migrate up failed")
	}
	if n > 0 {
		log.Infof("applied %d migrations", n)
	}

	return &sqliteClient{db: dbx}, nil
}

func (c *sqliteClient) Close() error {
	return c.db.Close()
}

func (c *sqliteClient) GetSettings(ctx context.Context, chatID int64) (*db.Settings, error) {
	c.mutex.RLock()
	defer c.mutex.RUnlock()

	settings := &db.Settings{}
	query := `
		SELECT chat_id, title, file_filter_enabled, link_warning_enabled, system_message_delete_enabled,
			file_warning_template, link_warning_template, language
		FROM chats WHERE chat_id = ?
	`
	if err := c.db.GetContext(ctx, settings, query, chatID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, db.ErrNotFound
		}
		return nil, errors.WithMessage(err, "cant get settings")
	}
	return settings, nil
}

func (c *sqliteClient) UpsertSettings(ctx context.Context, settings *db.Settings) error {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	query := `
		INSERT INTO chats (chat_id, title, file_filter_enabled, link_warning_enabled, system_message_delete_enabled,
			file_warning_template, link_warning_template, language)
		VALUES (:chat_id, :title, :file_filter_enabled, :link_warning_enabled, :system_message_delete_enabled,
			:file_warning_template, :link_warning_template, :language)
		ON CONFLICT(chat_id) DO UPDATE SET
		title = excluded.title,
		file_filter_enabled = excluded.file_filter_enabled,
		link_warning_enabled = excluded.link_warning_enabled,
		system_message_delete_enabled = excluded.system_message_delete_enabled,
		file_warning_template = excluded.file_warning_template,
		link_warning_template = excluded.link_warning_template,
		language = excluded.language
	`
	_, err := c.db.NamedExecContext(ctx, query, settings)
	if err != nil {
		return errors.WithMessage(err, "cant upsert settings")
	}
	return nil
}

func (c *sqliteClient) ResetSettings(ctx context.Context, chatID int64) error {
	defaults := db.DefaultSettings(chatID)

	c.mutex.Lock()
	defer c.mutex.Unlock()

	query := `
		UPDATE chats SET
		file_filter_enabled = ?,
		link_warning_enabled = ?,
		system_message_delete_enabled = ?,
		file_warning_template = ?,
		link_warning_template = ?
		WHERE chat_id = ?
	`
	res, err := c.db.ExecContext(ctx, query,
		defaults.FileFilterEnabled,
		defaults.LinkWarningEnabled,
		defaults.SystemMessageDeleteEnabled,
		defaults.FileWarningTemplate,
		defaults.LinkWarningTemplate,
		chatID,
	)
	if err != nil {
		return errors.WithMessage(err, "cant reset settings")
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return db.ErrNotFound
	}
	return nil
}
