package store

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"deepvision/internal/logging"
	"deepvision/internal/types"
)

// FileStore persists each session as one JSON file under
// <dataDir>/sessions/, summaries under <dataDir>/summaries/, and metrics as
// a single JSON file under <dataDir>/metrics/.
type FileStore struct {
	sessionsDir  string
	summariesDir string
	metricsFile  string
}

// NewFileStore creates the directory layout under dataDir.
func NewFileStore(dataDir string) (*FileStore, error) {
	fs := &FileStore{
		sessionsDir:  filepath.Join(dataDir, "sessions"),
		summariesDir: filepath.Join(dataDir, "summaries"),
		metricsFile:  filepath.Join(dataDir, "metrics", "api_metrics.json"),
	}

	for _, dir := range []string{fs.sessionsDir, fs.summariesDir, filepath.Dir(fs.metricsFile)} {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create data directory: %w", err)
		}
	}

	logging.Store("file store initialized at %s", dataDir)

	return fs, nil
}

func (fs *FileStore) sessionPath(id string) string {
	return filepath.Join(fs.sessionsDir, id+".json")
}

// GetSession loads a session by id.
func (fs *FileStore) GetSession(id string) (*types.Session, error) {
	data, err := os.ReadFile(fs.sessionPath(id))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("session %s: %w", id, ErrNotFound)
		}
		return nil, fmt.Errorf("failed to read session %s: %w", id, err)
	}

	var session types.Session
	if err := json.Unmarshal(data, &session); err != nil {
		return nil, fmt.Errorf("failed to parse session %s: %w", id, err)
	}

	// Older sessions may predate some fields
	if session.Dimensions == nil {
		session.Dimensions = types.NewDimensionStates()
	}
	if session.ResearchDocs == nil {
		session.ResearchDocs = []types.Document{}
	}

	return &session, nil
}

// PutSession writes the whole session record, last writer wins.
func (fs *FileStore) PutSession(s *types.Session) error {
	data, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal session: %w", err)
	}
	if err := os.WriteFile(fs.sessionPath(s.SessionID), data, 0644); err != nil {
		return fmt.Errorf("failed to write session %s: %w", s.SessionID, err)
	}
	return nil
}

// DeleteSession removes the session file. Deleting a missing session is not
// an error.
func (fs *FileStore) DeleteSession(id string) error {
	if err := os.Remove(fs.sessionPath(id)); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to delete session %s: %w", id, err)
	}
	return nil
}

// ListSessions returns listings for all sessions, newest first.
func (fs *FileStore) ListSessions() ([]SessionListing, error) {
	entries, err := os.ReadDir(fs.sessionsDir)
	if err != nil {
		return nil, fmt.Errorf("failed to read sessions directory: %w", err)
	}

	listings := make([]SessionListing, 0, len(entries))
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".json") {
			continue
		}
		id := strings.TrimSuffix(entry.Name(), ".json")
		session, err := fs.GetSession(id)
		if err != nil {
			// Skip corrupt files rather than failing the listing
			logging.Get(logging.CategoryStore).Warn("skipping unreadable session %s: %v", id, err)
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

	sort.Slice(listings, func(i, j int) bool {
		return listings[i].UpdatedAt > listings[j].UpdatedAt
	})

	return listings, nil
}

func (fs *FileStore) summaryPath(hash string) string {
	return filepath.Join(fs.summariesDir, hash+".txt")
}

// GetSummary returns a cached document summary by content hash.
func (fs *FileStore) GetSummary(hash string) (string, error) {
	data, err := os.ReadFile(fs.summaryPath(hash))
	if err != nil {
		if os.IsNotExist(err) {
			return "", fmt.Errorf("summary %s: %w", hash, ErrNotFound)
		}
		return "", fmt.Errorf("failed to read summary %s: %w", hash, err)
	}
	return string(data), nil
}

// PutSummary caches a document summary keyed by content hash.
func (fs *FileStore) PutSummary(hash, text string) error {
	if err := os.WriteFile(fs.summaryPath(hash), []byte(text), 0644); err != nil {
		return fmt.Errorf("failed to write summary %s: %w", hash, err)
	}
	return nil
}

// SummaryInfo reports the number of cached summaries and their total size.
func (fs *FileStore) SummaryInfo() (int, int64, error) {
	entries, err := os.ReadDir(fs.summariesDir)
	if err != nil {
		return 0, 0, fmt.Errorf("failed to read summaries directory: %w", err)
	}

	count := 0
	var totalBytes int64
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".txt") {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			continue
		}
		count++
		totalBytes += info.Size()
	}

	return count, totalBytes, nil
}

// ClearSummaries deletes all cached summaries and returns how many were
// removed.
func (fs *FileStore) ClearSummaries() (int, error) {
	entries, err := os.ReadDir(fs.summariesDir)
	if err != nil {
		return 0, fmt.Errorf("failed to read summaries directory: %w", err)
	}

	deleted := 0
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".txt") {
			continue
		}
		if err := os.Remove(filepath.Join(fs.summariesDir, entry.Name())); err == nil {
			deleted++
		}
	}

	return deleted, nil
}

// ReadMetrics returns the metrics blob.
func (fs *FileStore) ReadMetrics() ([]byte, error) {
	data, err := os.ReadFile(fs.metricsFile)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("metrics: %w", ErrNotFound)
		}
		return nil, fmt.Errorf("failed to read metrics: %w", err)
	}
	return data, nil
}

// WriteMetrics replaces the metrics blob.
func (fs *FileStore) WriteMetrics(data []byte) error {
	if err := os.WriteFile(fs.metricsFile, data, 0644); err != nil {
		return fmt.Errorf("failed to write metrics: %w", err)
	}
	return nil
}

// Close is a no-op for the file backend.
func (fs *FileStore) Close() error {
	return nil
}
