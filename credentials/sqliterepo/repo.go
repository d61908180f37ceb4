// Package sqliterepo keeps the "remember me" credential record in a local
// SQLite file so it survives restarts.
package sqliterepo

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jrsteele09/go-telemed-client/credentials"
	_ "modernc.org/sqlite"
)

const (
	createTable = `CREATE TABLE IF NOT EXISTS credentials (
		slot       TEXT PRIMARY KEY,
		record     TEXT NOT NULL,
		updated_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
	)`
	upsertRecord = `INSERT INTO credentials (slot, record, updated_at) VALUES (?, ?, CURRENT_TIMESTAMP)
		ON CONFLICT(slot) DO UPDATE SET record = excluded.record, updated_at = CURRENT_TIMESTAMP`
	selectRecord = `SELECT record FROM credentials WHERE slot = ?`
	deleteRecord = `DELETE FROM credentials WHERE slot = ?`

	activeSlot = "active"
)

var _ credentials.Repo = (*Repo)(nil)

type Repo struct {
	db *sql.DB
}

// Open opens (creating if needed) the SQLite database at path.
func Open(ctx context.Context, path string) (*Repo, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open credentials db: %w", err)
	}
	// A single connection keeps ":memory:" databases consistent.
	db.SetMaxOpenConns(1)

	if _, err := db.ExecContext(ctx, createTable); err != nil {
		db.Close()
		return nil, fmt.Errorf("create credentials table: %w", err)
	}
	return &Repo{db: db}, nil
}

func (r *Repo) Save(ctx context.Context, record credentials.Record) error {
	raw, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("encode credentials: %w", err)
	}
	if _, err := r.db.ExecContext(ctx, upsertRecord, activeSlot, string(raw)); err != nil {
		return fmt.Errorf("save credentials: %w", err)
	}
	return nil
}

func (r *Repo) Load(ctx context.Context) (credentials.Record, error) {
	var raw string
	err := r.db.QueryRowContext(ctx, selectRecord, activeSlot).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return credentials.Record{}, credentials.ErrNotFound
	}
	if err != nil {
		return credentials.Record{}, fmt.Errorf("load credentials: %w", err)
	}

	var record credentials.Record
	if err := json.Unmarshal([]byte(raw), &record); err != nil {
		return credentials.Record{}, fmt.Errorf("decode credentials: %w", err)
	}
	return record, nil
}

func (r *Repo) Delete(ctx context.Context) error {
	if _, err := r.db.ExecContext(ctx, deleteRecord, activeSlot); err != nil {
		return fmt.Errorf("delete credentials: %w", err)
	}
	return nil
}

func (r *Repo) Close() error {
	return r.db.Close()
}
