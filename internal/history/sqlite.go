package history

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

// sqliteBackend stores one row per user with the full message list as
// a JSON document. Histories are small and always read and written
// whole, so a document column beats a per-message table here.
type sqliteBackend struct {
	db *sql.DB
}

func openSQLite(path string) (*sqliteBackend, error) {
	db, err := sql.Open("sqlite3", path+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	b := &sqliteBackend{db: db}
	if err := b.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return b, nil
}

func (b *sqliteBackend) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS chat_history (
		user_id TEXT PRIMARY KEY,
		messages TEXT NOT NULL,
		updated_at TIMESTAMP NOT NULL
	);
	`
	_, err := b.db.Exec(schema)
	return err
}

func (b *sqliteBackend) load(ctx context.Context, userID string) ([]Message, error) {
	var doc string
	err := b.db.QueryRowContext(ctx, `
		SELECT messages FROM chat_history WHERE user_id = ?
	`, userID).Scan(&doc)
	if errors.Is(err, sql.ErrNoRows) {
		return []Message{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("query history: %w", err)
	}

	var msgs []Message
	if err := json.Unmarshal([]byte(doc), &msgs); err != nil {
		return nil, fmt.Errorf("decode history: %w", err)
	}
	return msgs, nil
}

func (b *sqliteBackend) save(ctx context.Context, userID string, msgs []Message) error {
	doc, err := json.Marshal(msgs)
	if err != nil {
		return fmt.Errorf("encode history: %w", err)
	}

	_, err = b.db.ExecContext(ctx, `
		INSERT INTO chat_history (user_id, messages, updated_at)
		VALUES (?, ?, ?)
		ON CONFLICT(user_id) DO UPDATE SET
			messages = excluded.messages,
			updated_at = excluded.updated_at
	`, userID, string(doc), time.Now())
	if err != nil {
		return fmt.Errorf("upsert history: %w", err)
	}
	return nil
}

func (b *sqliteBackend) delete(ctx context.Context, userID string) error {
	_, err := b.db.ExecContext(ctx, `DELETE FROM chat_history WHERE user_id = ?`, userID)
	return err
}

func (b *sqliteBackend) deleteAll(ctx context.Context) error {
	_, err := b.db.ExecContext(ctx, `DELETE FROM chat_history`)
	return err
}

func (b *sqliteBackend) close() error {
	return b.db.Close()
}
