// Package store persists the two durable records (settings, daily state) in
// a local SQLite database. Records are stored as JSON blobs and normalized
// on every read and every write, so the rest of the process only ever
// observes values satisfying the domain invariants, even after a partial
// write or a schema drift in an old database file.
package store

import (
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/goccy/go-json"
	_ "modernc.org/sqlite"

	"github.com/dailygrind/dailygrind/internal/domain"
)

const (
	keySettings   = "settings"
	keyDailyState = "daily_state"
)

// migrations returns the schema statements. Each string is a single SQL
// statement (SQLite executes one at a time).
func migrations() []string {
	return []string{
		`CREATE TABLE IF NOT EXISTS records (
			key        TEXT PRIMARY KEY,
			value      TEXT NOT NULL,
			updated_at TEXT NOT NULL DEFAULT (datetime('now'))
		)`,
	}
}

// Store is a SQLite-backed domain.StateStore.
type Store struct {
	db *sql.DB
}

// Open creates or opens the database under dir.
func Open(dir string) (*Store, error) {
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, fmt.Errorf("create data dir: %w", err)
	}
	path := filepath.Join(dir, "dailygrind.db")
	db, err := sql.Open("sqlite", path+"?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	// Single-writer access model: one connection keeps read-modify-write
	// cycles from interleaving at the driver level.
	db.SetMaxOpenConns(1)

	for _, stmt := range migrations() {
		if _, err := db.Exec(stmt); err != nil {
			db.Close()
			return nil, fmt.Errorf("migrate: %w", err)
		}
	}
	return &Store{db: db}, nil
}

// Close releases the database handle.
func (s *Store) Close() error { return s.db.Close() }

// ─── Record Plumbing ────────────────────────────────────────────────────────

func (s *Store) load(key string, out any) (found bool, err error) {
	var blob string
	err = s.db.QueryRow(`SELECT value FROM records WHERE key = ?`, key).Scan(&blob)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("load %s: %w", key, err)
	}
	if err := json.Unmarshal([]byte(blob), out); err != nil {
		// A corrupt blob is treated as absent; normalization rebuilds
		// defaults rather than wedging the daemon.
		return false, nil
	}
	return true, nil
}

func (s *Store) save(key string, v any) error {
	blob, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode %s: %w", key, err)
	}
	_, err = s.db.Exec(`
		INSERT INTO records (key, value, updated_at)
		VALUES (?, ?, datetime('now'))
		ON CONFLICT(key) DO UPDATE SET
			value      = excluded.value,
			updated_at = datetime('now')
	`, key, string(blob))
	if err != nil {
		return fmt.Errorf("save %s: %w", key, err)
	}
	return nil
}

// ─── domain.StateStore ──────────────────────────────────────────────────────

// Settings loads the settings record, normalized. A missing record yields
// the factory defaults; a partial blob decodes over the defaults, so absent
// fields inherit them while an explicit zero or false in the blob wins.
func (s *Store) Settings() (domain.Settings, error) {
	raw := domain.DefaultSettings()
	found, err := s.load(keySettings, &raw)
	if err != nil {
		return domain.Settings{}, err
	}
	if !found {
		return domain.DefaultSettings(), nil
	}
	return domain.NormalizeSettings(raw), nil
}

// SaveSettings normalizes and persists the settings record, returning the
// normalized value actually stored.
func (s *Store) SaveSettings(in domain.Settings) (domain.Settings, error) {
	normalized := domain.NormalizeSettings(in)
	if err := s.save(keySettings, normalized); err != nil {
		return domain.Settings{}, err
	}
	return normalized, nil
}

// DailyState loads the daily record, normalized. A missing record yields a
// zero (uninitialized) state.
func (s *Store) DailyState() (domain.DailyState, error) {
	var raw domain.DailyState
	found, err := s.load(keyDailyState, &raw)
	if err != nil {
		return domain.DailyState{}, err
	}
	if !found {
		return domain.NormalizeDailyState(domain.DailyState{}), nil
	}
	return domain.NormalizeDailyState(raw), nil
}

// SaveDailyState normalizes and persists the daily record as a whole,
// returning the normalized value actually stored.
func (s *Store) SaveDailyState(in domain.DailyState) (domain.DailyState, error) {
	normalized := domain.NormalizeDailyState(in)
	if err := s.save(keyDailyState, normalized); err != nil {
		return domain.DailyState{}, err
	}
	return normalized, nil
}

// Wipe removes both records. Used only by factory reset.
func (s *Store) Wipe() error {
	_, err := s.db.Exec(`DELETE FROM records`)
	return err
}
