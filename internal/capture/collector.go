// Package capture records page-side problems (console errors, uncaught
// exceptions, failed requests) while a verification run is in progress.
package capture

import (
	"fmt"
	"sync"
	"time"

	"github.com/dgnsrekt/rendercheck/internal/verify"
)

const (
	KindConsole       = "console"
	KindException     = "exception"
	KindRequestFailed = "request_failed"

	DefaultMaxEntries   = 50
	DefaultMaxTextBytes = 2048
)

// Collector is a bounded, concurrency-safe list of diagnostics. Browser
// event callbacks add to it; the runner reads it once at the end.
type Collector struct {
	maxEntries   int
	maxTextBytes int

	mu      sync.Mutex
	items   []verify.Diagnostic
	dropped int
	now     func() time.Time
}

func NewCollector(maxEntries, maxTextBytes int) *Collector {
	if maxEntries <= 0 {
		maxEntries = DefaultMaxEntries
	}
	return &Collector{
		maxEntries:   maxEntries,
		maxTextBytes: maxTextBytes,
		now:          time.Now,
	}
}

// Add records one diagnostic. Entries past the limit are counted, not kept.
func (c *Collector) Add(kind, text, url string) {
	text, _ = truncateText(text, c.maxTextBytes)

	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.items) >= c.maxEntries {
		c.dropped++
		return
	}
	c.items = append(c.items, verify.Diagnostic{
		Kind: kind,
		Text: text,
		URL:  url,
		At:   c.now().UTC(),
	})
}

// Diagnostics returns a copy of what has been recorded, with a trailing
// summary entry when some were dropped.
func (c *Collector) Diagnostics() []verify.Diagnostic {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.items) == 0 && c.dropped == 0 {
		return nil
	}
	out := make([]verify.Diagnostic, len(c.items), len(c.items)+1)
	copy(out, c.items)
	if c.dropped > 0 {
		out = append(out, verify.Diagnostic{
			Kind: "dropped",
			Text: fmt.Sprintf("%d more diagnostics not recorded", c.dropped),
			At:   c.now().UTC(),
		})
	}
	return out
}
