package store

import (
	"errors"
	"path/filepath"
	"testing"

	"deepvision/internal/types"

	"github.com/google/go-cmp/cmp"
)

func openBackends(t *testing.T) map[string]Store {
	t.Helper()
	dir := t.TempDir()

	fileStore, err := NewFileStore(filepath.Join(dir, "file"))
	if err != nil {
		t.Fatalf("NewFileStore failed: %v", err)
	}
	sqliteStore, err := NewSQLiteStore(filepath.Join(dir, "sqlite", "test.db"))
	if err != nil {
		t.Fatalf("NewSQLiteStore failed: %v", err)
	}

	backends := map[string]Store{
		"file":   fileStore,
		"sqlite": sqliteStore,
	}
	t.Cleanup(func() {
		for _, s := range backends {
			s.Close()
		}
	})
	return backends
}

func TestSessionRoundTrip(t *testing.T) {
	for name, s := range openBackends(t) {
		t.Run(name, func(t *testing.T) {
			session := types.NewSession("在线教育平台", "面向K12的直播课堂")
			session.InterviewLog = append(session.InterviewLog, types.InterviewEntry{
				Timestamp: types.UTCNow(),
				Question:  "目标用户是谁？",
				Answer:    "中小学学生和家长",
				Dimension: types.DimCustomerNeeds,
			})

			if err := s.PutSession(session); err != nil {
				t.Fatalf("PutSession failed: %v", err)
			}

			got, err := s.GetSession(session.SessionID)
			if err != nil {
				t.Fatalf("GetSession failed: %v", err)
			}
			if diff := cmp.Diff(session, got); diff != "" {
				t.Errorf("session round trip mismatch (-want +got):\n%s", diff)
			}
			if got.Dimensions == nil || len(got.Dimensions) != 4 {
				t.Errorf("expected 4 dimension states, got %v", got.Dimensions)
			}
		})
	}
}

func TestGetSessionNotFound(t *testing.T) {
	for name, s := range openBackends(t) {
		t.Run(name, func(t *testing.T) {
			_, err := s.GetSession("dv-00000000000000-deadbeef")
			if !errors.Is(err, ErrNotFound) {
				t.Errorf("expected ErrNotFound, got %v", err)
			}
		})
	}
}

func TestPutSessionOverwrites(t *testing.T) {
	for name, s := range openBackends(t) {
		t.Run(name, func(t *testing.T) {
			session := types.NewSession("物流系统", "")
			if err := s.PutSession(session); err != nil {
				t.Fatalf("PutSession failed: %v", err)
			}

			session.Status = types.StatusPaused
			if err := s.PutSession(session); err != nil {
				t.Fatalf("second PutSession failed: %v", err)
			}

			got, err := s.GetSession(session.SessionID)
			if err != nil {
				t.Fatalf("GetSession failed: %v", err)
			}
			if got.Status != types.StatusPaused {
				t.Errorf("status = %q, want %q", got.Status, types.StatusPaused)
			}
		})
	}
}

func TestDeleteSession(t *testing.T) {
	for name, s := range openBackends(t) {
		t.Run(name, func(t *testing.T) {
			session := types.NewSession("CRM系统", "")
			if err := s.PutSession(session); err != nil {
				t.Fatalf("PutSession failed: %v", err)
			}
			if err := s.DeleteSession(session.SessionID); err != nil {
				t.Fatalf("DeleteSession failed: %v", err)
			}
			if _, err := s.GetSession(session.SessionID); !errors.Is(err, ErrNotFound) {
				t.Errorf("expected ErrNotFound after delete, got %v", err)
			}

			// Deleting again is fine
			if err := s.DeleteSession(session.SessionID); err != nil {
				t.Errorf("second DeleteSession failed: %v", err)
			}
		})
	}
}

func TestListSessionsOrder(t *testing.T) {
	for name, s := range openBackends(t) {
		t.Run(name, func(t *testing.T) {
			older := types.NewSession("旧项目", "")
			older.UpdatedAt = "2026-01-01T00:00:00Z"
			newer := types.NewSession("新项目", "")
			newer.UpdatedAt = "2026-06-01T00:00:00Z"

			for _, sess := range []*types.Session{older, newer} {
				if err := s.PutSession(sess); err != nil {
					t.Fatalf("PutSession failed: %v", err)
				}
			}

			listings, err := s.ListSessions()
			if err != nil {
				t.Fatalf("ListSessions failed: %v", err)
			}
			if len(listings) != 2 {
				t.Fatalf("got %d listings, want 2", len(listings))
			}
			if listings[0].SessionID != newer.SessionID {
				t.Errorf("expected newest session first, got %s", listings[0].SessionID)
			}
		})
	}
}

func TestSummaryCache(t *testing.T) {
	for name, s := range openBackends(t) {
		t.Run(name, func(t *testing.T) {
			if _, err := s.GetSummary("abc123"); !errors.Is(err, ErrNotFound) {
				t.Errorf("expected ErrNotFound for missing summary, got %v", err)
			}

			if err := s.PutSummary("abc123", "摘要内容"); err != nil {
				t.Fatalf("PutSummary failed: %v", err)
			}
			got, err := s.GetSummary("abc123")
			if err != nil {
				t.Fatalf("GetSummary failed: %v", err)
			}
			if got != "摘要内容" {
				t.Errorf("summary = %q", got)
			}

			if err := s.PutSummary("def456", "另一份摘要"); err != nil {
				t.Fatalf("PutSummary failed: %v", err)
			}
			count, totalBytes, err := s.SummaryInfo()
			if err != nil {
				t.Fatalf("SummaryInfo failed: %v", err)
			}
			if count != 2 {
				t.Errorf("summary count = %d, want 2", count)
			}
			if totalBytes <= 0 {
				t.Errorf("total bytes = %d, want > 0", totalBytes)
			}

			deleted, err := s.ClearSummaries()
			if err != nil {
				t.Fatalf("ClearSummaries failed: %v", err)
			}
			if deleted != 2 {
				t.Errorf("deleted = %d, want 2", deleted)
			}
			count, _, _ = s.SummaryInfo()
			if count != 0 {
				t.Errorf("summary count after clear = %d, want 0", count)
			}
		})
	}
}

func TestMetricsBlob(t *testing.T) {
	for name, s := range openBackends(t) {
		t.Run(name, func(t *testing.T) {
			if _, err := s.ReadMetrics(); !errors.Is(err, ErrNotFound) {
				t.Errorf("expected ErrNotFound for missing metrics, got %v", err)
			}

			blob := []byte(`{"records":[],"summary":{}}`)
			if err := s.WriteMetrics(blob); err != nil {
				t.Fatalf("WriteMetrics failed: %v", err)
			}
			got, err := s.ReadMetrics()
			if err != nil {
				t.Fatalf("ReadMetrics failed: %v", err)
			}
			if string(got) != string(blob) {
				t.Errorf("metrics = %s", got)
			}

			blob2 := []byte(`{"records":[{"type":"interview"}]}`)
			if err := s.WriteMetrics(blob2); err != nil {
				t.Fatalf("second WriteMetrics failed: %v", err)
			}
			got, _ = s.ReadMetrics()
			if string(got) != string(blob2) {
				t.Errorf("metrics after overwrite = %s", got)
			}
		})
	}
}
