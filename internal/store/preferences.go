package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// Preference keys.
const (
	PrefDisplayName = "display_name"
	PrefLastSync    = "last_sync"
)

// Preferences is a small key-value table for local user settings.
type Preferences struct {
	db *DB
}

// NewPreferences creates a preference store using the given database.
func NewPreferences(db *DB) *Preferences {
	return &Preferences{db: db}
}

// Get returns the value for key, or "" and false if unset.
func (p *Preferences) Get(ctx context.Context, key string) (string, bool, error) {
	var value string
	err := p.db.sql.QueryRowContext(ctx, `SELECT value FROM preferences WHERE key = ?`, key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("reading preference %s: %w", key, err)
	}
	return value, true, nil
}

// Set stores value under key.
func (p *Preferences) Set(ctx context.Context, key, value string) error {
	_, err := p.db.sql.ExecContext(ctx,
		`INSERT INTO preferences (key, value, updated_at) VALUES (?, ?, datetime('now'))
		 ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at`,
		key, value,
	)
	if err != nil {
		return fmt.Errorf("writing preference %s: %w", key, err)
	}
	return nil
}

// LastSync returns the last successful sync time, or the zero time.
func (p *Preferences) LastSync(ctx context.Context) (time.Time, error) {
	v, ok, err := p.Get(ctx, PrefLastSync)
	if err != nil || !ok {
		return time.Time{}, err
	}
	t, err := time.Parse(time.RFC3339Nano, v)
	if err != nil {
		return time.Time{}, fmt.Errorf("parsing %s: %w", PrefLastSync, err)
	}
	return t, nil
}

// MarkSynced records t as the last successful sync time.
func (p *Preferences) MarkSynced(ctx context.Context, t time.Time) error {
	return p.Set(ctx, PrefLastSync, t.UTC().Format(time.RFC3339Nano))
}
