package store

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	_ "modernc.org/sqlite"

	"deepvision/internal/logging"
	"deepvision/internal/types"
)

// SQLiteStore keeps everything in one SQLite database file. Sessions are
// stored as JSON blobs so the schema survives session shape changes.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore opens (or creates) the database at dbPath.
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	timer := logging.StartTimer(logging.CategoryStore, "sqlite open")
	defer timer.Stop()

	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// SQLite handles one writer at a time
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	// Wait up to 5s on lock contention instead of failing immediately
	if _, err := db.Exec("PRAGMA busy_timeout=5000"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to set busy_timeout: %w", err)
	}

	// WAL with relaxed sync is a large speedup for our small write batches
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to set journal_mode: %w", err)
	}
	if _, err := db.Exec("PRAGMA synchronous=NORMAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to set synchronous: %w", err)
	}

	s := &SQLiteStore{db: db}
	if err := s.createSchema(); err != nil {
		db.Close()
		return nil, err
	}

	logging.Store("sqlite store opened at %s", dbPath)

	return s, nil
}

func (s *SQLiteStore) createSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS sessions (
		session_id TEXT PRIMARY KEY,
		topic      TEXT NOT NULL DEFAULT '',
		status     TEXT NOT NULL DEFAULT '',
		created_at TEXT NOT NULL DEFAULT '',
		updated_at TEXT NOT NULL DEFAULT '',
		data       TEXT NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_sessions_updated ON sessions(updated_at);

	CREATE TABLE IF NOT EXISTS summaries (
		hash TEXT PRIMARY KEY,
		text TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS metrics (
		id   INTEGER PRIMARY KEY CHECK (id = 1),
		data BLOB NOT NULL
	);
	`
	if _, err := s.db.Exec(schema); err != nil {
		return fmt.Errorf("failed to create schema: %w", err)
	}
	return nil
}

// GetSession loads a session by id.
func (s *SQLiteStore) GetSession(id string) (*types.Session, error) {
	var data string
	err := s.db.QueryRow("SELECT data FROM sessions WHERE session_id = ?", id).Scan(&data)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("session %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query session %s: %w", id, err)
	}

	var session types.Session
	if err := json.Unmarshal([]byte(data), &session); err != nil {
		return nil, fmt.Errorf("failed to parse session %s: %w", id, err)
	}
	if session.Dimensions == nil {
		session.Dimensions = types.NewDimensionStates()
	}
	if session.ResearchDocs == nil {
		session.ResearchDocs = []types.Document{}
	}

	return &session, nil
}

// PutSession upserts the whole session record.
func (s *SQLiteStore) PutSession(sess *types.Session) error {
	data, err := json.Marshal(sess)
	if err != nil {
		return fmt.Errorf("failed to marshal session: %w", err)
	}

	_, err = s.db.Exec(`
		INSERT INTO sessions (session_id, topic, status, created_at, updated_at, data)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(session_id) DO UPDATE SET
			topic = excluded.topic,
			status = excluded.status,
			updated_at = excluded.updated_at,
			data = excluded.data`,
		sess.SessionID, sess.Topic, sess.Status, sess.CreatedAt, sess.UpdatedAt, string(data))
	if err != nil {
		return fmt.Errorf("failed to write session %s: %w", sess.SessionID, err)
	}
	return nil
}

// DeleteSession removes a session. Deleting a missing session is not an
// error.
func (s *SQLiteStore) DeleteSession(id string) error {
	if _, err := s.db.Exec("DELETE FROM sessions WHERE session_id = ?", id); err != nil {
		return fmt.Errorf("failed to delete session %s: %w", id, err)
	}
	return nil
}

// ListSessions returns listings for all sessions, newest first.
func (s *SQLiteStore) ListSessions() ([]SessionListing, error) {
	rows, err := s.db.Query("SELECT data FROM sessions ORDER BY updated_at DESC")
	if err != nil {
		return nil, fmt.Errorf("failed to list sessions: %w", err)
	}
	defer rows.Close()

	var listings []SessionListing
	for rows.Next() {
		var data string
		if err := rows.Scan(&data); err != nil {
			return nil, fmt.Errorf("failed to scan session row: %w", err)
		}
		var session types.Session
		if err := json.Unmarshal([]byte(data), &session); err != nil {
			logging.Get(logging.CategoryStore).Warn("skipping unreadable session row: %v", err)
			continue
		}
		listings = append(listings, SessionListing{
			SessionID:      session.SessionID,
			Topic:          session.Topic,
			Status:         session.Status,
			CreatedAt:      session.CreatedAt,
			UpdatedAt:      session.UpdatedAt,
			Dimensions:     session.Dimensions,
			InterviewCount: len(session.InterviewLog),
		})
	}

	return listings, rows.Err()
}

// GetSummary returns a cached document summary by content hash.
func (s *SQLiteStore) GetSummary(hash string) (string, error) {
	var text string
	err := s.db.QueryRow("SELECT text FROM summaries WHERE hash = ?", hash).Scan(&text)
	if err == sql.ErrNoRows {
		return "", fmt.Errorf("summary %s: %w", hash, ErrNotFound)
	}
	if err != nil {
		return "", fmt.Errorf("failed to query summary %s: %w", hash, err)
	}
	return text, nil
}

// PutSummary caches a document summary keyed by content hash.
func (s *SQLiteStore) PutSummary(hash, text string) error {
	_, err := s.db.Exec(`
		INSERT INTO summaries (hash, text) VALUES (?, ?)
		ON CONFLICT(hash) DO UPDATE SET text = excluded.text`,
		hash, text)
	if err != nil {
		return fmt.Errorf("failed to write summary %s: %w", hash, err)
	}
	return nil
}

// SummaryInfo reports the number of cached summaries and their total size.
func (s *SQLiteStore) SummaryInfo() (int, int64, error) {
	var count int
	var totalBytes sql.NullInt64
	err := s.db.QueryRow("SELECT COUNT(*), COALESCE(SUM(LENGTH(text)), 0) FROM summaries").
		Scan(&count, &totalBytes)
	if err != nil {
		return 0, 0, fmt.Errorf("failed to query summary info: %w", err)
	}
	return count, totalBytes.Int64, nil
}

// ClearSummaries deletes all cached summaries and returns how many were
// removed.
func (s *SQLiteStore) ClearSummaries() (int, error) {
	res, err := s.db.Exec("DELETE FROM summaries")
	if err != nil {
		return 0, fmt.Errorf("failed to clear summaries: %w", err)
	}
	n, _ := res.RowsAffected()
	return int(n), nil
}

// ReadMetrics returns the metrics blob.
func (s *SQLiteStore) ReadMetrics() ([]byte, error) {
	var data []byte
	err := s.db.QueryRow("SELECT data FROM metrics WHERE id = 1").Scan(&data)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("metrics: %w", ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read metrics: %w", err)
	}
	return data, nil
}

// WriteMetrics replaces the metrics blob.
func (s *SQLiteStore) WriteMetrics(data []byte) error {
	_, err := s.db.Exec(`
		INSERT INTO metrics (id, data) VALUES (1, ?)
		ON CONFLICT(id) DO UPDATE SET data = excluded.data`,
		data)
	if err != nil {
		return fmt.Errorf("failed to write metrics: %w", err)
	}
	return nil
}

// Close closes the underlying database.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
