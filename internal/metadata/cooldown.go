package metadata

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"
)

// CooldownStore persists per-normalized-title cooldown timestamps so
// they survive a daemon restart (spec.md §4.11), grounded on the
// teacher's embedded pure-Go sqlite `db.Store` open-with-recreate
// pattern.
type CooldownStore struct {
	db *sql.DB
}

const cooldownSchema = `
CREATE TABLE IF NOT EXISTS cooldowns (
	normalized_title_key TEXT PRIMARY KEY,
	not_before_utc       INTEGER NOT NULL
);`

// OpenCooldownStore opens or creates the sqlite-backed cooldown store
// at dbPath. A schema mismatch from a previous incompatible version is
// recovered by deleting and recreating the database file, matching the
// teacher's db.Open recovery behavior.
func OpenCooldownStore(dbPath string) (*CooldownStore, error) {
	store, err := openCooldownDB(dbPath)
	if err != nil {
		if isSchemaMismatch(err) {
			if removeErr := os.Remove(dbPath); removeErr != nil && !os.IsNotExist(removeErr) {
				return nil, fmt.Errorf("remove incompatible cooldown store: %w", removeErr)
			}
			return openCooldownDB(dbPath)
		}
		return nil, err
	}
	return store, nil
}

func openCooldownDB(dbPath string) (*CooldownStore, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil {
		return nil, fmt.Errorf("ensure cooldown store directory: %w", err)
	}
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open cooldown store: %w", err)
	}
	if _, err := db.Exec(cooldownSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("init cooldown schema: %w", err)
	}
	return &CooldownStore{db: db}, nil
}

func isSchemaMismatch(err error) bool {
	msg := err.Error()
	return strings.Contains(msg, "no such column") || strings.Contains(msg, "no such table") || strings.Contains(msg, "SQL logic error")
}

// Close releases the underlying database handle.
func (s *CooldownStore) Close() error { return s.db.Close() }

// NotBefore returns the stored not_before_utc for key, or the zero
// time if no cooldown is recorded.
func (s *CooldownStore) NotBefore(key string) (time.Time, error) {
	var epochSeconds int64
	err := s.db.QueryRow(`SELECT not_before_utc FROM cooldowns WHERE normalized_title_key = ?`, key).Scan(&epochSeconds)
	if err == sql.ErrNoRows {
		return time.Time{}, nil
	}
	if err != nil {
		return time.Time{}, fmt.Errorf("query cooldown for %s: %w", key, err)
	}
	return time.Unix(epochSeconds, 0).UTC(), nil
}

// SetCooldown persists notBefore for key, replacing any prior value.
func (s *CooldownStore) SetCooldown(key string, notBefore time.Time) error {
	_, err := s.db.Exec(
		`INSERT INTO cooldowns(normalized_title_key, not_before_utc) VALUES (?, ?)
		 ON CONFLICT(normalized_title_key) DO UPDATE SET not_before_utc = excluded.not_before_utc`,
		key, notBefore.UTC().Unix(),
	)
	if err != nil {
		return fmt.Errorf("set cooldown for %s: %w", key, err)
	}
	return nil
}
