package plugin

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestWatcherReloadsOnScriptChange(t *testing.T) {
	dir := t.TempDir()
	reloads := make(chan struct{}, 4)
	watcher := NewWatcher(dir, []string{".lua"}, 20*time.Millisecond, func(context.Context) {
		reloads <- struct{}{}
	}, nil)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	errCh := make(chan error, 1)
	go func() { errCh <- watcher.Run(ctx) }()

	// Give the watcher a moment to register the directory.
	time.Sleep(50 * time.Millisecond)
	if err := os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dir, "ping.lua"), []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}

	select {
	case <-reloads:
	case <-time.After(2 * time.Second):
		t.Fatal("watcher did not trigger a reload")
	}

	cancel()
	if err := <-errCh; err != nil {
		t.Fatalf("Run() error = %v", err)
	}
}

func TestWatcherWaitsForMissingDirectory(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "plugins")
	reloads := make(chan struct{}, 4)
	watcher := NewWatcher(dir, []string{".lua"}, 20*time.Millisecond, func(context.Context) {
		reloads <- struct{}{}
	}, nil)
	watcher.retry = 20 * time.Millisecond

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	errCh := make(chan error, 1)
	go func() { errCh <- watcher.Run(ctx) }()

	select {
	case err := <-errCh:
		t.Fatalf("Run() returned early: %v", err)
	case <-reloads:
		t.Fatal("reload before the directory exists")
	case <-time.After(80 * time.Millisecond):
	}

	if err := os.Mkdir(dir, 0o755); err != nil {
		t.Fatal(err)
	}
	select {
	case <-reloads:
	case <-time.After(2 * time.Second):
		t.Fatal("watcher did not reload once the directory appeared")
	}

	if err := os.WriteFile(filepath.Join(dir, "ping.lua"), []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}
	select {
	case <-reloads:
	case <-time.After(2 * time.Second):
		t.Fatal("watcher did not pick up a script in the late directory")
	}

	cancel()
	if err := <-errCh; err != nil {
		t.Fatalf("Run() error = %v", err)
	}
}
