package cli

import (
	"bytes"
	"strings"
	"testing"
	"time"
)

// TestProgress tests throttling against a fake clock.
func TestProgress(t *testing.T) {
	var buf bytes.Buffer
	p := NewProgress(&buf, "Exported", time.Second)
	clock := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	p.now = func() time.Time { return clock }

	p.Start()
	p.Add(100)
	clock = clock.Add(500 * time.Millisecond)
	p.Add(100)
	if buf.Len() != 0 {
		t.Fatalf("reported before the interval: %q", buf.String())
	}

	clock = clock.Add(600 * time.Millisecond)
	p.Add(100)
	clock = clock.Add(900 * time.Millisecond)
	p.Finish()

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 2 {
		t.Fatalf("got %d lines, want 2: %q", len(lines), buf.String())
	}
	if lines[0] != "Exported: 300 (272.7/s)" {
		t.Errorf("first line = %q", lines[0])
	}
	if lines[1] != "Exported: 300 (150.0/s)" {
		t.Errorf("final line = %q", lines[1])
	}
	if p.Count() != 300 {
		t.Errorf("Count() = %d, want 300", p.Count())
	}
}

func TestProgress_NilWriter(t *testing.T) {
	p := NewProgress(nil, "Exported", 0)
	p.Start()
	p.Add(5)
	p.Finish()
	if p.Count() != 5 {
		t.Errorf("Count() = %d, want 5", p.Count())
	}
}
