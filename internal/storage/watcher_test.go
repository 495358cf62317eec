package storage

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestWatcherReportsExternalWrite(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "alarms.json")
	changed := make(chan struct{}, 4)
	w, err := NewWatcher(path, func() { changed <- struct{}{} }, nil)
	if err != nil {
		t.Fatalf("new watcher: %v", err)
	}
	w.debounce = 20 * time.Millisecond

	ctx, cancel := context.WithCancel(t.Context())
	done := make(chan error, 1)
	go func() { done <- w.Run(ctx) }()

	// Give the watcher time to register the directory.
	time.Sleep(100 * time.Millisecond)
	if err := os.WriteFile(filepath.Join(dir, "unrelated.txt"), []byte("x"), 0o644); err != nil {
		t.Fatalf("write unrelated: %v", err)
	}
	if err := os.WriteFile(path, []byte("{}"), 0o644); err != nil {
		t.Fatalf("write store: %v", err)
	}

	select {
	case <-changed:
	case <-time.After(3 * time.Second):
		t.Fatal("timed out waiting for change callback")
	}

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("run returned error: %v", err)
		}
	case <-time.After(time.Second):
		t.Fatal("watcher did not stop after cancel")
	}
}

func TestNewWatcherValidatesArguments(t *testing.T) {
	if _, err := NewWatcher("", func() {}, nil); err == nil {
		t.Fatal("expected error for empty path")
	}
	if _, err := NewWatcher("x.json", nil, nil); err == nil {
		t.Fatal("expected error for nil callback")
	}
}
