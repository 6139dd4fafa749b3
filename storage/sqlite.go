// SQLite transcript archive.
//
// Information Hiding:
// - SQLite connection management hidden behind the Archive interface
// - Schema and migration details encapsulated
// - Thread-safe via sql.DB's built-in connection pooling

package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/forshape/stepflow/history"
	"github.com/forshape/stepflow/llm"
)

// SqliteArchive implements Archive on a SQLite database file.
type SqliteArchive struct {
	db *sql.DB
}

var _ Archive = (*SqliteArchive)(nil)

// OpenSqlite opens or creates a SQLite archive at the given path.
// Creates parent directories if they don't exist.
func OpenSqlite(path string) (*SqliteArchive, error) {
	dir := filepath.Dir(path)
	if dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open SQLite database: %w", err)
	}

	archive := &SqliteArchive{db: db}
	if err := archive.createSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}
	return archive, nil
}

// NewSqliteInMemory creates an in-memory archive (useful for testing).
func NewSqliteInMemory() (*SqliteArchive, error) {
	db, err := sql.Open("sqlite3", ":memory:")
	if err != nil {
		return nil, fmt.Errorf("failed to create in-memory SQLite: %w", err)
	}

	archive := &SqliteArchive{db: db}
	if err := archive.createSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}
	return archive, nil
}

// Close closes the database connection.
func (s *SqliteArchive) Close() error {
	return s.db.Close()
}

func (s *SqliteArchive) createSchema() error {
	schema := `
		CREATE TABLE IF NOT EXISTS conversations (
			conversation_id TEXT PRIMARY KEY,
			label TEXT NOT NULL DEFAULT '',
			created_at TEXT NOT NULL DEFAULT (datetime('now')),
			updated_at TEXT NOT NULL DEFAULT (datetime('now'))
		);

		CREATE TABLE IF NOT EXISTS entries (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			conversation_id TEXT NOT NULL,
			entry_index INTEGER NOT NULL,
			role TEXT NOT NULL,
			content TEXT NOT NULL,
			parts TEXT,
			dedup_key TEXT NOT NULL DEFAULT '',
			step_name TEXT NOT NULL DEFAULT '',
			created_at TEXT NOT NULL,
			FOREIGN KEY (conversation_id) REFERENCES conversations(conversation_id) ON DELETE CASCADE,
			UNIQUE(conversation_id, entry_index)
		);

		CREATE INDEX IF NOT EXISTS idx_entries_conversation
		ON entries(conversation_id, entry_index);
	`

	if _, err := s.db.Exec(schema); err != nil {
		return fmt.Errorf("failed to create schema: %w", err)
	}
	return nil
}

// Begin records a conversation row. Idempotent; an existing label is
// kept.
func (s *SqliteArchive) Begin(ctx context.Context, conversationID, label string) error {
	_, err := s.db.ExecContext(ctx,
		"INSERT OR IGNORE INTO conversations (conversation_id, label) VALUES (?, ?)",
		conversationID, label)
	if err != nil {
		return fmt.Errorf("failed to record conversation: %w", err)
	}
	return nil
}

// Save replaces the archived transcript of a conversation.
func (s *SqliteArchive) Save(ctx context.Context, conversationID string, entries []history.Entry) error {
	if err := s.Begin(ctx, conversationID, ""); err != nil {
		return err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	// Rollback after Commit is a no-op.
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, "DELETE FROM entries WHERE conversation_id = ?", conversationID); err != nil {
		return fmt.Errorf("failed to clear old entries: %w", err)
	}

	stmt, err := tx.PrepareContext(ctx,
		"INSERT INTO entries (conversation_id, entry_index, role, content, parts, dedup_key, step_name, created_at) VALUES (?, ?, ?, ?, ?, ?, ?, ?)")
	if err != nil {
		return fmt.Errorf("failed to prepare insert statement: %w", err)
	}
	defer stmt.Close()

	for i, entry := range entries {
		parts, err := encodeParts(entry.Parts)
		if err != nil {
			return fmt.Errorf("failed to encode entry parts: %w", err)
		}
		_, err = stmt.ExecContext(ctx, conversationID, i,
			entry.Role, entry.Content, parts, entry.Key, entry.StepName,
			entry.Timestamp.UTC().Format(time.RFC3339Nano))
		if err != nil {
			return fmt.Errorf("failed to insert entry: %w", err)
		}
	}

	if _, err := tx.ExecContext(ctx,
		"UPDATE conversations SET updated_at = datetime('now') WHERE conversation_id = ?",
		conversationID); err != nil {
		return fmt.Errorf("failed to update conversation timestamp: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// Load returns the archived transcript of a conversation.
func (s *SqliteArchive) Load(ctx context.Context, conversationID string) ([]history.Entry, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT role, content, parts, dedup_key, step_name, created_at FROM entries WHERE conversation_id = ? ORDER BY entry_index ASC",
		conversationID)
	if err != nil {
		return nil, fmt.Errorf("failed to query entries: %w", err)
	}
	defer rows.Close()

	entries := []history.Entry{}
	for rows.Next() {
		var entry history.Entry
		var parts sql.NullString
		var createdAt string
		if err := rows.Scan(&entry.Role, &entry.Content, &parts, &entry.Key, &entry.StepName, &createdAt); err != nil {
			return nil, fmt.Errorf("failed to scan entry: %w", err)
		}
		if parts.Valid && parts.String != "" {
			if err := json.Unmarshal([]byte(parts.String), &entry.Parts); err != nil {
				return nil, fmt.Errorf("failed to decode entry parts: %w", err)
			}
		}
		if ts, err := time.Parse(time.RFC3339Nano, createdAt); err == nil {
			entry.Timestamp = ts
		}
		entry.ConversationID = conversationID
		entries = append(entries, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate entries: %w", err)
	}
	return entries, nil
}

// Delete removes a conversation and its entries.
func (s *SqliteArchive) Delete(ctx context.Context, conversationID string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, "DELETE FROM entries WHERE conversation_id = ?", conversationID); err != nil {
		return fmt.Errorf("failed to delete entries: %w", err)
	}
	if _, err := tx.ExecContext(ctx, "DELETE FROM conversations WHERE conversation_id = ?", conversationID); err != nil {
		return fmt.Errorf("failed to delete conversation: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// List returns all archived conversation ids, most recently updated
// first.
func (s *SqliteArchive) List(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT conversation_id FROM conversations ORDER BY updated_at DESC")
	if err != nil {
		return nil, fmt.Errorf("failed to query conversations: %w", err)
	}
	defer rows.Close()

	ids := []string{}
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan conversation id: %w", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate conversations: %w", err)
	}
	return ids, nil
}

// Exists checks whether a conversation has been archived.
func (s *SqliteArchive) Exists(ctx context.Context, conversationID string) (bool, error) {
	var count int
	err := s.db.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM conversations WHERE conversation_id = ?",
		conversationID).Scan(&count)
	if err != nil {
		return false, fmt.Errorf("failed to check conversation: %w", err)
	}
	return count > 0, nil
}

func encodeParts(parts []llm.ContentPart) (sql.NullString, error) {
	if len(parts) == 0 {
		return sql.NullString{}, nil
	}
	encoded, err := json.Marshal(parts)
	if err != nil {
		return sql.NullString{}, err
	}
	return sql.NullString{String: string(encoded), Valid: true}, nil
}
