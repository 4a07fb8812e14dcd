// Package store provides session, metrics, and summary-cache persistence.
// Two backends implement the Store interface: a JSON-file layout and an
// embedded SQLite database. Session writes are whole-record last-write-wins;
// no locking or optimistic concurrency is provided.
package store

import (
	"errors"

	"deepvision/internal/types"
)

// ErrNotFound is returned when a session, summary, or blob does not exist.
var ErrNotFound = errors.New("not found")

// SessionListing is the lightweight per-session view returned by ListSessions.
type SessionListing struct {
	SessionID      string                           `json:"session_id"`
	Topic          string                           `json:"topic"`
	Status         string                           `json:"status"`
	CreatedAt      string                           `json:"created_at"`
	UpdatedAt      string                           `json:"updated_at"`
	Dimensions     map[string]*types.DimensionState `json:"dimensions"`
	InterviewCount int                              `json:"interview_count"`
}

// Store persists sessions, the document summary cache, and metrics.
type Store interface {
	// Sessions
	GetSession(id string) (*types.Session, error)
	PutSession(s *types.Session) error
	DeleteSession(id string) error
	ListSessions() ([]SessionListing, error)

	// Document summary cache, keyed by content hash
	GetSummary(hash string) (string, error)
	PutSummary(hash, text string) error
	SummaryInfo() (count int, totalBytes int64, err error)
	ClearSummaries() (deleted int, err error)

	// Metrics, one JSON blob
	ReadMetrics() ([]byte, error)
	WriteMetrics(data []byte) error

	Close() error
}
