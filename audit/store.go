// Package audit persists a best-effort trail of warming-step
// transitions to SQLite, so a repo's pool history survives process
// restarts even though the in-flight Warmers themselves do not.
package audit

import (
	"database/sql"
	"fmt"
	"log"
	"time"

	_ "modernc.org/sqlite"

	"github.com/jxucoder/prewarm/model"
)

// Entry is a single recorded transition.
type Entry struct {
	ID             int64     `json:"id"`
	RepoFullName   string    `json:"repo_full_name"`
	ConversationID string    `json:"conversation_id"`
	Status         string    `json:"status"`
	WarmingStep    string    `json:"warming_step"`
	ErrorMessage   string    `json:"error_message,omitempty"`
	RecordedAt     time.Time `json:"recorded_at"`
}

// Store manages the warming-step audit trail in SQLite.
type Store struct {
	db *sql.DB
}

// NewStore opens (or creates) a SQLite database at dbPath and ensures
// its schema exists.
func NewStore(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("opening audit database: %w", err)
	}
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("setting WAL mode: %w", err)
	}
	if err := migrate(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("running migrations: %w", err)
	}
	return &Store{db: db}, nil
}

func migrate(db *sql.DB) error {
	_, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS warming_events (
			id              INTEGER PRIMARY KEY AUTOINCREMENT,
			repo_full_name  TEXT NOT NULL,
			conversation_id TEXT NOT NULL,
			status          TEXT NOT NULL,
			warming_step    TEXT NOT NULL,
			error_message   TEXT NOT NULL DEFAULT '',
			recorded_at     DATETIME NOT NULL DEFAULT (datetime('now'))
		);

		CREATE INDEX IF NOT EXISTS idx_warming_events_repo
			ON warming_events(repo_full_name);
	`)
	return err
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// RecordStep implements pool.StatusListener. Failures are logged here,
// never returned — the audit trail must never block a Warmer.
func (s *Store) RecordStep(repoFullName, conversationID string, status model.Status, step model.WarmingStep, errMsg *string) {
	msg := ""
	if errMsg != nil {
		msg = *errMsg
	}
	if _, err := s.db.Exec(
		`INSERT INTO warming_events (repo_full_name, conversation_id, status, warming_step, error_message)
		 VALUES (?, ?, ?, ?, ?)`,
		repoFullName, conversationID, string(status), string(step), msg,
	); err != nil {
		log.Printf("audit: recording %s/%s: %v", repoFullName, conversationID, err)
	}
}

// ListForRepo returns every recorded transition for repoFullName,
// oldest first.
func (s *Store) ListForRepo(repoFullName string) ([]Entry, error) {
	rows, err := s.db.Query(
		`SELECT id, repo_full_name, conversation_id, status, warming_step, error_message, recorded_at
		 FROM warming_events WHERE repo_full_name = ? ORDER BY id ASC`,
		repoFullName,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		var e Entry
		if err := rows.Scan(&e.ID, &e.RepoFullName, &e.ConversationID, &e.Status, &e.WarmingStep, &e.ErrorMessage, &e.RecordedAt); err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}
