package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	_ "github.com/mattn/go-sqlite3" // sqlite3 driver registration

	"github.com/openfab/fabdrive/logger"
)

const schema = `
CREATE TABLE IF NOT EXISTS devices (
	id         TEXT PRIMARY KEY,
	settings   TEXT NOT NULL DEFAULT '{}',
	updated_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
);
`

// SQLiteStore persists device settings in a sqlite database.
//
// Settings are stored as one JSON document per device; Update merges field by
// field into the existing document.
type SQLiteStore struct {
	db     *sql.DB
	logger logger.Logger
}

var _ Store = (*SQLiteStore)(nil)

// OpenSQLite opens (and creates, if needed) the database at path.
// Use ":memory:" for an ephemeral database.
func OpenSQLite(path string, l logger.Logger) (*SQLiteStore, error) {
	if l == nil {
		l = logger.GetLogger()
	}

	db, err := sql.Open("sqlite3", path+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("store: open sqlite at %s: %w", path, err)
	}

	// sqlite allows one writer; a single connection avoids SQLITE_BUSY churn.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()

		return nil, fmt.Errorf("store: apply schema: %w", err)
	}

	l.Debug("sqlite store open", "path", path)

	return &SQLiteStore{db: db, logger: l}, nil
}

// Save creates or replaces the device row with the given settings fields.
func (s *SQLiteStore) Save(ctx context.Context, id string, fields map[string]any) error {
	doc, err := json.Marshal(fields)
	if err != nil {
		return fmt.Errorf("store: serialize settings for %s: %w", id, err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO devices (id, settings) VALUES (?, ?)
		ON CONFLICT (id) DO UPDATE SET
			settings = excluded.settings,
			updated_at = CURRENT_TIMESTAMP`,
		id, string(doc))
	if err != nil {
		return fmt.Errorf("store: save device %s: %w", id, err)
	}

	return nil
}

// FindByID returns the stored settings fields of a device.
func (s *SQLiteStore) FindByID(ctx context.Context, id string) (map[string]any, error) {
	var doc string
	err := s.db.QueryRowContext(ctx,
		`SELECT settings FROM devices WHERE id = ?`, id).Scan(&doc)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("store: load device %s: %w", id, err)
	}

	var fields map[string]any
	if err := json.Unmarshal([]byte(doc), &fields); err != nil {
		return nil, fmt.Errorf("store: decode settings of %s: %w", id, err)
	}

	return fields, nil
}

// Update merges the given fields into the device's stored settings.
// Returns ErrNotFound when the device has never been saved.
func (s *SQLiteStore) Update(ctx context.Context, id string, fields map[string]any) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("store: begin update of %s: %w", id, err)
	}
	defer func() { _ = tx.Rollback() }()

	var doc string
	err = tx.QueryRowContext(ctx,
		`SELECT settings FROM devices WHERE id = ?`, id).Scan(&doc)
	if err == sql.ErrNoRows {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	if err != nil {
		return fmt.Errorf("store: load device %s: %w", id, err)
	}

	var current map[string]any
	if err := json.Unmarshal([]byte(doc), &current); err != nil {
		return fmt.Errorf("store: decode settings of %s: %w", id, err)
	}
	if current == nil {
		current = make(map[string]any)
	}
	for k, v := range fields {
		current[k] = v
	}

	merged, err := json.Marshal(current)
	if err != nil {
		return fmt.Errorf("store: serialize settings for %s: %w", id, err)
	}

	_, err = tx.ExecContext(ctx, `
		UPDATE devices SET settings = ?, updated_at = CURRENT_TIMESTAMP
		WHERE id = ?`,
		string(merged), id)
	if err != nil {
		return fmt.Errorf("store: update device %s: %w", id, err)
	}

	return tx.Commit()
}

// Delete removes the device row. Deleting an absent device is not an error.
func (s *SQLiteStore) Delete(ctx context.Context, id string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM devices WHERE id = ?`, id); err != nil {
		return fmt.Errorf("store: delete device %s: %w", id, err)
	}

	return nil
}

// Close closes the database.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
