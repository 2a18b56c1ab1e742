package main

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"dxlistener/config"
)

func TestPruneLogsKeepsRetentionWindow(t *testing.T) {
	dir := t.TempDir()
	for _, name := range []string{"2026-01-20.log", "2026-01-21.log", "2026-01-22.log", "notes.txt", "bogus.log"} {
		if err := os.WriteFile(filepath.Join(dir, name), []byte("x"), 0o644); err != nil {
			t.Fatalf("write %s: %v", name, err)
		}
	}
	now := time.Date(2026, time.January, 22, 12, 0, 0, 0, time.UTC)
	if err := pruneLogs(dir, now, 2); err != nil {
		t.Fatalf("prune: %v", err)
	}
	if _, err := os.Stat(filepath.Join(dir, "2026-01-20.log")); !os.IsNotExist(err) {
		t.Fatalf("expected 2026-01-20.log to be removed, stat err=%v", err)
	}
	for _, name := range []string{"2026-01-21.log", "2026-01-22.log", "notes.txt", "bogus.log"} {
		if _, err := os.Stat(filepath.Join(dir, name)); err != nil {
			t.Fatalf("expected %s to remain: %v", name, err)
		}
	}
}

func TestLogFanoutSplitsLinesToBothSides(t *testing.T) {
	dir := t.TempDir()
	var console bytes.Buffer
	f, err := setupLogging(config.LoggingConfig{Enabled: true, Dir: dir, RetentionDays: 3}, &console)
	if err != nil {
		t.Fatalf("setupLogging: %v", err)
	}
	f.SetConsole(&console, false)

	f.Write([]byte("first line\r\nsecond "))
	f.Write([]byte("half\n"))
	if err := f.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	if console.String() != "first line\nsecond half\n" {
		t.Fatalf("unexpected console output %q", console.String())
	}
	entries, err := os.ReadDir(dir)
	if err != nil || len(entries) != 1 {
		t.Fatalf("expected one log file, got %v (%v)", entries, err)
	}
	data, err := os.ReadFile(filepath.Join(dir, entries[0].Name()))
	if err != nil {
		t.Fatalf("read log: %v", err)
	}
	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	if len(lines) != 2 || !strings.HasSuffix(lines[1], " second half") {
		t.Fatalf("unexpected file contents %q", data)
	}
}

func TestLogFanoutFlushesOverlongPartial(t *testing.T) {
	var console bytes.Buffer
	f, _ := setupLogging(config.LoggingConfig{}, &console)
	f.SetConsole(&console, false)
	f.Write(bytes.Repeat([]byte("x"), maxPartialLogBytes+1))
	if console.Len() != maxPartialLogBytes+2 {
		t.Fatalf("expected overlong partial to be flushed, got %d bytes", console.Len())
	}
}

func TestSetupLoggingRejectsEmptyDir(t *testing.T) {
	var console bytes.Buffer
	f, err := setupLogging(config.LoggingConfig{Enabled: true, Dir: "  "}, &console)
	if err == nil {
		t.Fatal("expected error for empty log dir")
	}
	if f == nil {
		t.Fatal("console fanout should still be returned")
	}
}
