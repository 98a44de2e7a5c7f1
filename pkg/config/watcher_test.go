package config

import (
	"context"
	"os"
	"sync/atomic"
	"testing"
	"time"
)

// TestWatcher_ReloadsOnChange tests that a valid edit reaches the callback
// and an invalid edit does not.
func TestWatcher_ReloadsOnChange(t *testing.T) {
	t.Cleanup(func() { SetConfig(nil) })

	path := writeConfig(t, "retention:\n  schedule: \"0 3 * * *\"\n")
	if _, err := Load(path); err != nil {
		t.Fatalf("Load() failed: %v", err)
	}

	w, err := NewWatcher(path, 100*time.Millisecond)
	if err != nil {
		t.Fatalf("NewWatcher() failed: %v", err)
	}

	changes := make(chan *Config, 4)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go w.Watch(ctx, func(cfg *Config) { changes <- cfg })
	defer w.Stop()

	// let the watch register before editing
	time.Sleep(50 * time.Millisecond)

	if err := os.WriteFile(path, []byte("retention:\n  schedule: \"not cron\"\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	select {
	case cfg := <-changes:
		t.Fatalf("invalid edit delivered: %+v", cfg.Retention)
	case <-time.After(400 * time.Millisecond):
	}
	if got := GetConfig().Retention.Schedule; got != "0 3 * * *" {
		t.Errorf("schedule after invalid edit = %q", got)
	}

	if err := os.WriteFile(path, []byte("retention:\n  schedule: \"15 2 * * *\"\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	select {
	case cfg := <-changes:
		if cfg.Retention.Schedule != "15 2 * * *" {
			t.Errorf("schedule = %q, want 15 2 * * *", cfg.Retention.Schedule)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("no reload after a valid edit")
	}
}

// TestWatcher_RequiresPath tests constructor validation.
func TestWatcher_RequiresPath(t *testing.T) {
	if _, err := NewWatcher("", 0); err == nil {
		t.Error("NewWatcher(\"\") succeeded")
	}
}

// TestDebouncer tests that a burst of triggers runs only the last callback.
func TestDebouncer(t *testing.T) {
	d := NewDebouncer(30 * time.Millisecond)
	defer d.Stop()

	var calls, last atomic.Int32
	for i := int32(1); i <= 5; i++ {
		n := i
		d.Trigger(func() {
			calls.Add(1)
			last.Store(n)
		})
	}

	time.Sleep(150 * time.Millisecond)
	if calls.Load() != 1 {
		t.Errorf("calls = %d, want 1", calls.Load())
	}
	if last.Load() != 5 {
		t.Errorf("last = %d, want 5", last.Load())
	}
}

// TestDebouncer_Stop tests that stopping cancels a pending callback.
func TestDebouncer_Stop(t *testing.T) {
	d := NewDebouncer(30 * time.Millisecond)
	var calls atomic.Int32
	d.Trigger(func() { calls.Add(1) })
	d.Stop()
	d.Trigger(func() { calls.Add(1) })

	time.Sleep(100 * time.Millisecond)
	if calls.Load() != 0 {
		t.Errorf("calls = %d, want 0", calls.Load())
	}
}
