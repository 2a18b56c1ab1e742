package main

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"dxlistener/config"
)

const (
	logTimestampLayout = "2006/01/02 15:04:05"
	logFileDateLayout  = "2006-01-02"
	maxPartialLogBytes = 16 * 1024
)

// lineWriter receives whole log lines from the fanout.
type lineWriter interface {
	WriteLine(line string, now time.Time)
	Close() error
}

type consoleLines struct {
	w             io.Writer
	withTimestamp bool
}

func (c *consoleLines) WriteLine(line string, now time.Time) {
	if c.withTimestamp {
		line = now.UTC().Format(logTimestampLayout) + " " + line
	}
	_, _ = io.WriteString(c.w, line+"\n")
}

func (c *consoleLines) Close() error { return nil }

// dailyLogFile appends to dir/YYYY-MM-DD.log, switching files at UTC
// midnight and pruning files older than the retention window.
type dailyLogFile struct {
	mu            sync.Mutex
	dir           string
	retentionDays int
	date          string
	file          *os.File
	lastErrorAt   time.Time
}

func openDailyLogFile(dir string, retentionDays int) (*dailyLogFile, error) {
	dir = strings.TrimSpace(dir)
	if dir == "" {
		return nil, fmt.Errorf("log directory is empty")
	}
	if retentionDays <= 0 {
		retentionDays = 7
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create log directory %q: %w", dir, err)
	}
	if err := pruneLogs(dir, time.Now().UTC(), retentionDays); err != nil {
		fmt.Fprintf(os.Stderr, "Logging: cleanup failed for %s: %v\n", dir, err)
	}
	return &dailyLogFile{dir: dir, retentionDays: retentionDays}, nil
}

func (d *dailyLogFile) WriteLine(line string, now time.Time) {
	now = now.UTC()
	d.mu.Lock()
	defer d.mu.Unlock()
	if date := now.Format(logFileDateLayout); d.file == nil || d.date != date {
		d.rotateLocked(date, now)
	}
	if d.file == nil {
		return
	}
	if _, err := d.file.WriteString(now.Format(logTimestampLayout) + " " + line + "\n"); err != nil {
		d.reportLocked(now, fmt.Errorf("write failed: %w", err))
	}
}

func (d *dailyLogFile) rotateLocked(date string, now time.Time) {
	if d.file != nil {
		_ = d.file.Close()
		d.file = nil
	}
	path := filepath.Join(d.dir, date+".log")
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		d.reportLocked(now, fmt.Errorf("open %s: %w", path, err))
		return
	}
	d.file = f
	d.date = date
	if err := pruneLogs(d.dir, now, d.retentionDays); err != nil {
		d.reportLocked(now, fmt.Errorf("cleanup failed: %w", err))
	}
}

// reportLocked prints file errors to stderr at most once a minute.
func (d *dailyLogFile) reportLocked(now time.Time, err error) {
	if !d.lastErrorAt.IsZero() && now.Sub(d.lastErrorAt) < time.Minute {
		return
	}
	d.lastErrorAt = now
	fmt.Fprintf(os.Stderr, "Logging: %v\n", err)
}

func (d *dailyLogFile) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.file == nil {
		return nil
	}
	err := d.file.Close()
	d.file = nil
	d.date = ""
	return err
}

// logFanout is installed with log.SetOutput. It splits the byte stream into
// lines and copies each to the console (or dashboard) and the daily file.
type logFanout struct {
	mu      sync.Mutex
	partial []byte
	console lineWriter
	file    lineWriter
}

func setupLogging(cfg config.LoggingConfig, console io.Writer) (*logFanout, error) {
	f := &logFanout{console: &consoleLines{w: console, withTimestamp: true}}
	if !cfg.Enabled {
		return f, nil
	}
	file, err := openDailyLogFile(cfg.Dir, cfg.RetentionDays)
	if err != nil {
		return f, err
	}
	f.file = file
	return f, nil
}

// SetConsole swaps the console side, e.g. to the dashboard's system pane.
func (f *logFanout) SetConsole(w io.Writer, withTimestamp bool) {
	var lw lineWriter
	if w != nil {
		lw = &consoleLines{w: w, withTimestamp: withTimestamp}
	}
	f.mu.Lock()
	f.console = lw
	f.mu.Unlock()
}

func (f *logFanout) Write(p []byte) (int, error) {
	f.mu.Lock()
	f.partial = append(f.partial, p...)
	var lines []string
	for {
		idx := bytes.IndexByte(f.partial, '\n')
		if idx < 0 {
			break
		}
		lines = append(lines, string(bytes.TrimRight(f.partial[:idx], "\r")))
		f.partial = f.partial[idx+1:]
	}
	if len(f.partial) > maxPartialLogBytes {
		lines = append(lines, string(f.partial))
		f.partial = nil
	}
	console, file := f.console, f.file
	f.mu.Unlock()

	now := time.Now()
	for _, line := range lines {
		if console != nil {
			console.WriteLine(line, now)
		}
		if file != nil {
			file.WriteLine(line, now)
		}
	}
	return len(p), nil
}

func (f *logFanout) Close() error {
	f.mu.Lock()
	file := f.file
	f.mu.Unlock()
	if file == nil {
		return nil
	}
	return file.Close()
}

func pruneLogs(dir string, now time.Time, retentionDays int) error {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return err
	}
	y, m, d := now.UTC().Date()
	cutoff := time.Date(y, m, d, 0, 0, 0, 0, time.UTC).AddDate(0, 0, -(retentionDays - 1))
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || filepath.Ext(name) != ".log" {
			continue
		}
		date, err := time.ParseInLocation(logFileDateLayout, strings.TrimSuffix(name, ".log"), time.UTC)
		if err != nil {
			continue
		}
		if date.Before(cutoff) {
			_ = os.Remove(filepath.Join(dir, name))
		}
	}
	return nil
}
