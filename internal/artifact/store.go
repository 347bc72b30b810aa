package artifact

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"sync"
	"time"
)

var uuidRe = regexp.MustCompile(`^[0-9a-f]{8}-[0-9a-f]{4}-[0-9a-f]{4}-[0-9a-f]{4}-[0-9a-f]{12}$`)

var (
	// ErrNotFound is returned when a run record does not exist.
	ErrNotFound = errors.New("run record not found")
	// ErrInvalidID is returned for ids that are not lowercase UUIDs.
	ErrInvalidID = errors.New("invalid run id")
)

// Record describes one stored verification run.
type Record struct {
	ID        string    `json:"id"`
	TargetURL string    `json:"target_url"`
	Selector  string    `json:"selector"`
	OK        bool      `json:"ok"`
	Kind      string    `json:"kind,omitempty"`
	Message   string    `json:"message,omitempty"`
	Format    string    `json:"format,omitempty"`
	Width     int       `json:"width,omitempty"`
	Height    int       `json:"height,omitempty"`
	SizeBytes int       `json:"size_bytes,omitempty"`
	ElapsedMS int64     `json:"elapsed_ms"`
	CreatedAt time.Time `json:"created_at"`
	Notes     string    `json:"notes,omitempty"`
}

// HasImage reports whether the run produced an artifact.
func (r Record) HasImage() bool {
	return r.OK && r.Format != ""
}

// Store keeps run records as <id>.json sidecars next to <id>.<format> images.
type Store struct {
	dir string
	mu  sync.RWMutex
}

// NewStore creates a Store and ensures the directory exists.
func NewStore(dir string) (*Store, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("artifact store: mkdir %s: %w", dir, err)
	}
	return &Store{dir: dir}, nil
}

// Dir returns the directory backing the store.
func (s *Store) Dir() string {
	return s.dir
}

func (s *Store) validateID(id string) error {
	if !uuidRe.MatchString(id) {
		return fmt.Errorf("%w: %q", ErrInvalidID, id)
	}
	return nil
}

// ImagePath is where the artifact for id is written by the runner.
func (s *Store) ImagePath(id, format string) string {
	return filepath.Join(s.dir, id+"."+format)
}

// Save writes the metadata sidecar for a run whose image, if any, is
// already in place at ImagePath.
func (s *Store) Save(rec Record) error {
	if err := s.validateID(rec.ID); err != nil {
		return err
	}

	data, err := json.MarshalIndent(rec, "", "  ")
	if err != nil {
		return fmt.Errorf("artifact store: marshal record: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := WriteFile(filepath.Join(s.dir, rec.ID+".json"), data); err != nil {
		return fmt.Errorf("artifact store: write record: %w", err)
	}
	return nil
}

// Get reads run metadata by ID.
func (s *Store) Get(id string) (Record, error) {
	if err := s.validateID(id); err != nil {
		return Record{}, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	data, err := os.ReadFile(filepath.Join(s.dir, id+".json"))
	if err != nil {
		if os.IsNotExist(err) {
			return Record{}, fmt.Errorf("%w: %s", ErrNotFound, id)
		}
		return Record{}, fmt.Errorf("artifact store: read record: %w", err)
	}

	var rec Record
	if err := json.Unmarshal(data, &rec); err != nil {
		return Record{}, fmt.Errorf("artifact store: unmarshal record: %w", err)
	}
	return rec, nil
}

// List returns all run records sorted by creation time (newest first).
func (s *Store) List() ([]Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	matches, err := filepath.Glob(filepath.Join(s.dir, "*.json"))
	if err != nil {
		return nil, fmt.Errorf("artifact store: glob: %w", err)
	}

	recs := make([]Record, 0, len(matches))
	for _, path := range matches {
		data, err := os.ReadFile(path)
		if err != nil {
			slog.Debug("artifact record read failed", "path", path, "error", err)
			continue
		}
		var rec Record
		if err := json.Unmarshal(data, &rec); err != nil {
			slog.Debug("artifact record decode failed", "path", path, "error", err)
			continue
		}
		recs = append(recs, rec)
	}

	sort.Slice(recs, func(i, j int) bool {
		return recs[i].CreatedAt.After(recs[j].CreatedAt)
	})
	return recs, nil
}

// ReadImage reads the raw image bytes and returns the format.
func (s *Store) ReadImage(id string) ([]byte, string, error) {
	rec, err := s.Get(id)
	if err != nil {
		return nil, "", err
	}
	if !rec.HasImage() {
		return nil, "", fmt.Errorf("%w: no image for run %s", ErrNotFound, id)
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	data, err := os.ReadFile(s.ImagePath(id, rec.Format))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, "", fmt.Errorf("%w: image for run %s", ErrNotFound, id)
		}
		return nil, "", fmt.Errorf("artifact store: read image: %w", err)
	}
	return data, rec.Format, nil
}

// Delete removes both the image and metadata files.
func (s *Store) Delete(id string) error {
	rec, err := s.Get(id)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if rec.Format != "" {
		imgPath := s.ImagePath(id, rec.Format)
		if err := os.Remove(imgPath); err != nil {
			slog.Debug("artifact image cleanup failed", "path", imgPath, "error", err)
		}
	}
	jsonPath := filepath.Join(s.dir, id+".json")
	if err := os.Remove(jsonPath); err != nil {
		return fmt.Errorf("artifact store: delete record: %w", err)
	}
	return nil
}
