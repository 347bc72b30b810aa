// Package journal keeps an append-only JSONL history of verification
// outcomes, one file per target per UTC day.
package journal

import (
	"log/slog"
	"sync"
	"time"

	"github.com/dgnsrekt/rendercheck/internal/verify"
)

// Entry is one journal line.
type Entry struct {
	Time  time.Time `json:"time"`
	RunID string    `json:"run_id,omitempty"`
	verify.Outcome
}

// Journal manages one Writer per target segment.
type Journal struct {
	baseDir    string
	bufferSize int
	maxSizeMB  int

	mu      sync.Mutex
	writers map[string]*Writer
}

func New(baseDir string, bufferSize, maxSizeMB int) *Journal {
	return &Journal{
		baseDir:    baseDir,
		bufferSize: bufferSize,
		maxSizeMB:  maxSizeMB,
		writers:    make(map[string]*Writer),
	}
}

// Record queues out for the target's journal file.
func (j *Journal) Record(runID string, out verify.Outcome) error {
	w := j.writer(Segment(out.TargetURL))
	return w.Write(Entry{Time: time.Now().UTC(), RunID: runID, Outcome: out})
}

func (j *Journal) writer(segment string) *Writer {
	j.mu.Lock()
	defer j.mu.Unlock()

	if w, ok := j.writers[segment]; ok {
		return w
	}
	w := NewWriter(j.baseDir, segment, j.bufferSize, j.maxSizeMB)
	j.writers[segment] = w
	slog.Debug("journal writer created", "segment", segment)
	return w
}

// Close flushes and closes every writer.
func (j *Journal) Close() error {
	j.mu.Lock()
	defer j.mu.Unlock()

	var lastErr error
	for segment, w := range j.writers {
		if err := w.Close(); err != nil {
			slog.Error("journal close failed", "segment", segment, "error", err)
			lastErr = err
		}
	}
	j.writers = make(map[string]*Writer)
	return lastErr
}
