// Package report manages the rendered report files: naming, listing, and
// soft deletion. Deleted reports are tombstoned in a sidecar file so the
// markdown stays archived on disk.
package report

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"deepvision/internal/logging"
)

// ErrNotFound means the named report file does not exist.
var ErrNotFound = errors.New("report not found")

const (
	filePrefix    = "deep-vision"
	topicSlugCap  = 30
	tombstoneFile = ".deleted_reports.json"
)

// Info describes one stored report.
type Info struct {
	Name      string `json:"name"`
	Path      string `json:"path"`
	Size      int64  `json:"size"`
	CreatedAt string `json:"created_at"`
}

// Registry stores report markdown files in a single directory.
type Registry struct {
	dir string
}

// NewRegistry creates the reports directory if needed.
func NewRegistry(dir string) (*Registry, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create reports directory: %w", err)
	}
	return &Registry{dir: dir}, nil
}

// Filename builds the canonical report filename for a topic on a date.
// Spaces in the topic become dashes and the slug is capped.
func Filename(topic string, now time.Time) string {
	if topic == "" {
		topic = "report"
	}
	slug := strings.ReplaceAll(topic, " ", "-")
	if runes := []rune(slug); len(runes) > topicSlugCap {
		slug = string(runes[:topicSlugCap])
	}
	return fmt.Sprintf("%s-%s-%s.md", filePrefix, now.Format("20060102"), slug)
}

// Save writes report content under the canonical name and returns it.
// Saving the same topic on the same day overwrites the earlier report.
func (r *Registry) Save(topic, content string, now time.Time) (string, error) {
	name := Filename(topic, now)
	if err := os.WriteFile(filepath.Join(r.dir, name), []byte(content), 0644); err != nil {
		return "", fmt.Errorf("failed to write report %s: %w", name, err)
	}
	logging.Get(logging.CategoryReport).Info("report saved: %s", name)
	return name, nil
}

// Get returns a report's content.
func (r *Registry) Get(name string) (string, error) {
	data, err := os.ReadFile(filepath.Join(r.dir, name))
	if err != nil {
		if os.IsNotExist(err) {
			return "", fmt.Errorf("%w: %s", ErrNotFound, name)
		}
		return "", fmt.Errorf("failed to read report %s: %w", name, err)
	}
	return string(data), nil
}

// Path returns the on-disk location of a report.
func (r *Registry) Path(name string) string {
	return filepath.Join(r.dir, name)
}

// List returns all non-deleted reports, newest first.
func (r *Registry) List() ([]Info, error) {
	entries, err := os.ReadDir(r.dir)
	if err != nil {
		return nil, fmt.Errorf("failed to read reports directory: %w", err)
	}
	deleted := r.deletedSet()

	var reports []Info
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".md") {
			continue
		}
		if _, gone := deleted[entry.Name()]; gone {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			continue
		}
		reports = append(reports, Info{
			Name:      entry.Name(),
			Path:      filepath.Join(r.dir, entry.Name()),
			Size:      info.Size(),
			CreatedAt: info.ModTime().UTC().Format(time.RFC3339),
		})
	}

	sort.Slice(reports, func(i, j int) bool {
		return reports[i].CreatedAt > reports[j].CreatedAt
	})
	return reports, nil
}

// Delete tombstones a report. The file itself stays archived on disk.
func (r *Registry) Delete(name string) error {
	if _, err := os.Stat(filepath.Join(r.dir, name)); err != nil {
		if os.IsNotExist(err) {
			return fmt.Errorf("%w: %s", ErrNotFound, name)
		}
		return err
	}

	deleted := r.deletedSet()
	deleted[name] = struct{}{}

	names := make([]string, 0, len(deleted))
	for n := range deleted {
		names = append(names, n)
	}
	sort.Strings(names)

	data, err := json.MarshalIndent(map[string][]string{"deleted": names}, "", "  ")
	if err != nil {
		return err
	}
	if err := os.WriteFile(filepath.Join(r.dir, tombstoneFile), data, 0644); err != nil {
		return fmt.Errorf("failed to write tombstone file: %w", err)
	}
	logging.Get(logging.CategoryReport).Info("report tombstoned: %s", name)
	return nil
}

func (r *Registry) deletedSet() map[string]struct{} {
	set := make(map[string]struct{})
	data, err := os.ReadFile(filepath.Join(r.dir, tombstoneFile))
	if err != nil {
		return set
	}
	var parsed struct {
		Deleted []string `json:"deleted"`
	}
	if err := json.Unmarshal(data, &parsed); err != nil {
		return set
	}
	for _, name := range parsed.Deleted {
		set[name] = struct{}{}
	}
	return set
}
