// Package sqlitestore persists document snapshots in a local SQLite file.
// The snapshot JSON is stored verbatim; the engine owns its shape.
package sqlitestore

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	_ "github.com/mattn/go-sqlite3"

	"github.com/montagehq/montage/internal/document"
)

var ErrNotFound = errors.New("no snapshot for session")

const schema = `
CREATE TABLE IF NOT EXISTS snapshots (
	session_id TEXT PRIMARY KEY,
	version    INTEGER NOT NULL,
	taken_at   TEXT NOT NULL,
	doc        BLOB NOT NULL
);
`

type Store struct {
	db *sql.DB
}

func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("open snapshot db: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("init snapshot schema: %w", err)
	}
	return &Store{db: db}, nil
}

func (s *Store) Close() error { return s.db.Close() }

func (s *Store) Save(ctx context.Context, snap document.Snapshot) error {
	doc, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("marshal snapshot: %w", err)
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO snapshots (session_id, version, taken_at, doc) VALUES (?, ?, ?, ?)
		 ON CONFLICT(session_id) DO UPDATE SET version = excluded.version,
		 taken_at = excluded.taken_at, doc = excluded.doc`,
		snap.SessionID, snap.Version, snap.TakenAt.UTC().Format("2006-01-02T15:04:05.000Z"), doc)
	if err != nil {
		return fmt.Errorf("save snapshot: %w", err)
	}
	return nil
}

func (s *Store) Load(ctx context.Context, sessionID string) (document.Snapshot, error) {
	var doc []byte
	err := s.db.QueryRowContext(ctx,
		`SELECT doc FROM snapshots WHERE session_id = ?`, sessionID).Scan(&doc)
	if errors.Is(err, sql.ErrNoRows) {
		return document.Snapshot{}, ErrNotFound
	}
	if err != nil {
		return document.Snapshot{}, fmt.Errorf("load snapshot: %w", err)
	}
	var snap document.Snapshot
	if err := json.Unmarshal(doc, &snap); err != nil {
		return document.Snapshot{}, fmt.Errorf("unmarshal snapshot: %w", err)
	}
	return snap, nil
}
