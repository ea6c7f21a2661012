// Package logging includes tests for the zap logger helpers.
package logging

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

// TestNewDevelopmentLogger confirms the development logger builds and logs.
func TestNewDevelopmentLogger(t *testing.T) {
	t.Parallel()

	logger, err := New(true)
	if err != nil {
		t.Fatalf("New(true) error = %v", err)
	}
	if logger == nil {
		t.Fatal("expected logger to be non-nil")
	}
	defer logger.Sync() //nolint:errcheck // best-effort flush
	logger.Info("development logger ready")
}

// TestNewProductionLogger ensures the production logger configuration succeeds.
func TestNewProductionLogger(t *testing.T) {
	t.Parallel()

	logger, err := New(false)
	if err != nil {
		t.Fatalf("New(false) error = %v", err)
	}
	if logger == nil {
		t.Fatal("expected logger to be non-nil")
	}
	defer logger.Sync() //nolint:errcheck // best-effort flush
	logger.Info("production logger ready")
}

// TestNewFileWritesEntries confirms entries land in the returned log file.
func TestNewFileWritesEntries(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	logger, path, err := NewFile(dir, false, 30)
	if err != nil {
		t.Fatalf("NewFile() error = %v", err)
	}
	logger.Info("file logger ready")
	_ = logger.Sync()

	raw, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read log file: %v", err)
	}
	if !strings.Contains(string(raw), "file logger ready") {
		t.Fatalf("expected entry in log file, got %q", raw)
	}
	if filepath.Dir(path) != dir {
		t.Fatalf("expected log file under %s, got %s", dir, path)
	}
}

// TestSweepOldLogs verifies only files past the retention window go.
func TestSweepOldLogs(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	now := time.Now()

	stale := filepath.Join(dir, "stale.log")
	if err := os.WriteFile(stale, []byte("old"), 0o600); err != nil {
		t.Fatalf("write stale log: %v", err)
	}
	if err := os.Chtimes(stale, now, now.Add(-40*24*time.Hour)); err != nil {
		t.Fatalf("age stale log: %v", err)
	}

	fresh := filepath.Join(dir, "fresh.log")
	if err := os.WriteFile(fresh, []byte("new"), 0o600); err != nil {
		t.Fatalf("write fresh log: %v", err)
	}
	other := filepath.Join(dir, "notes.txt")
	if err := os.WriteFile(other, []byte("keep"), 0o600); err != nil {
		t.Fatalf("write unrelated file: %v", err)
	}
	if err := os.Chtimes(other, now, now.Add(-40*24*time.Hour)); err != nil {
		t.Fatalf("age unrelated file: %v", err)
	}

	pruned, err := sweepOldLogs(dir, 30, now)
	if err != nil {
		t.Fatalf("sweepOldLogs() error = %v", err)
	}
	if pruned != 1 {
		t.Fatalf("expected one pruned file, got %d", pruned)
	}
	if _, err := os.Stat(stale); !os.IsNotExist(err) {
		t.Fatalf("expected stale log removed, stat err = %v", err)
	}
	if _, err := os.Stat(fresh); err != nil {
		t.Fatalf("expected fresh log kept: %v", err)
	}
	if _, err := os.Stat(other); err != nil {
		t.Fatalf("expected unrelated file kept: %v", err)
	}

	if pruned, err := sweepOldLogs(dir, 0, now); err != nil || pruned != 0 {
		t.Fatalf("expected disabled sweep to be a no-op, got %d, %v", pruned, err)
	}
}
