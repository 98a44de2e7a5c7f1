package cli

import (
	"fmt"
	"io"
	"sync"
	"time"
)

// Progress reports a running count for long exports. Lines are written at
// most once per interval so that piping to a file stays readable.
type Progress struct {
	mu       sync.Mutex
	w        io.Writer
	label    string
	interval time.Duration
	count    int64
	started  time.Time
	last     time.Time
	now      func() time.Time
}

// NewProgress creates a reporter writing to w. A nil w disables output.
func NewProgress(w io.Writer, label string, interval time.Duration) *Progress {
	if interval <= 0 {
		interval = time.Second
	}
	return &Progress{w: w, label: label, interval: interval, now: time.Now}
}

// Start resets the counter.
func (p *Progress) Start() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.count = 0
	p.started = p.now()
	p.last = p.started
}

// Add counts n more items and reports if the interval has elapsed.
func (p *Progress) Add(n int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.count += int64(n)
	if now := p.now(); now.Sub(p.last) >= p.interval {
		p.last = now
		p.render(now)
	}
}

// Count returns the items counted so far.
func (p *Progress) Count() int64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.count
}

// Finish writes the final count.
func (p *Progress) Finish() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.render(p.now())
}

func (p *Progress) render(now time.Time) {
	if p.w == nil {
		return
	}
	elapsed := now.Sub(p.started)
	rate := 0.0
	if elapsed > 0 {
		rate = float64(p.count) / elapsed.Seconds()
	}
	fmt.Fprintf(p.w, "%s: %d (%.1f/s)\n", p.label, p.count, rate)
}
