package archive

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"dxlistener/config"
	"dxlistener/spot"
)

func backends(t *testing.T) map[string]config.ArchiveConfig {
	dir := t.TempDir()
	return map[string]config.ArchiveConfig{
		"sqlite": {Backend: "sqlite", DBPath: filepath.Join(dir, "spots.db"), Synchronous: "off", BusyTimeoutMS: 1000},
		"pebble": {Backend: "pebble", DBPath: filepath.Join(dir, "spots-pebble"), Synchronous: "off"},
	}
}

func spotAt(dx, mode string, freq float64, at time.Time) *spot.Spot {
	s := spot.NewSpot(dx, "K1ABC", freq, mode)
	s.Time = at
	return s
}

func TestStoreRecentNewestFirst(t *testing.T) {
	for name, cfg := range backends(t) {
		t.Run(name, func(t *testing.T) {
			store, err := Open(cfg)
			if err != nil {
				t.Fatalf("Open: %v", err)
			}
			defer store.Close()

			base := time.Date(2026, 3, 14, 12, 0, 0, 0, time.UTC)
			batch := []*spot.Spot{
				spotAt("W1AAA", "CW", 14025, base),
				spotAt("W1BBB", "CW", 14026, base.Add(time.Minute)),
				spotAt("W1CCC", "FT8", 14074, base.Add(2*time.Minute)),
			}
			batch[2].Report = -5
			batch[2].HasReport = true
			if err := store.Append(batch); err != nil {
				t.Fatalf("Append: %v", err)
			}

			got, err := store.Recent(2, nil)
			if err != nil {
				t.Fatalf("Recent: %v", err)
			}
			if len(got) != 2 || got[0].DXCall != "W1CCC" || got[1].DXCall != "W1BBB" {
				t.Fatalf("unexpected order: %v", got)
			}
			if !got[0].HasReport || got[0].Report != -5 || !got[0].Time.Equal(batch[2].Time) {
				t.Fatalf("fields not round-tripped: %+v", got[0])
			}

			cwOnly, err := store.Recent(10, func(s *spot.Spot) bool { return s.Mode == "CW" })
			if err != nil {
				t.Fatalf("Recent filtered: %v", err)
			}
			if len(cwOnly) != 2 || cwOnly[0].DXCall != "W1BBB" {
				t.Fatalf("unexpected filtered result: %v", cwOnly)
			}
		})
	}
}

func TestStorePruneAppliesPerModeRetention(t *testing.T) {
	for name, cfg := range backends(t) {
		t.Run(name, func(t *testing.T) {
			store, err := Open(cfg)
			if err != nil {
				t.Fatalf("Open: %v", err)
			}
			defer store.Close()

			now := time.Now().UTC()
			old := now.Add(-2 * time.Hour)
			batch := []*spot.Spot{
				spotAt("DXFT", "FT8", 14074, old),
				spotAt("DXCW", "CW", 14030, old),
				spotAt("DXFTNEW", "FT8", 14074, now),
				spotAt("DXCWNEW", "CW", 14030, now),
			}
			if err := store.Append(batch); err != nil {
				t.Fatalf("Append: %v", err)
			}

			// FT retention one hour, everything else one day.
			removed, err := store.Prune(now.Add(-time.Hour), now.Add(-24*time.Hour))
			if err != nil {
				t.Fatalf("Prune: %v", err)
			}
			if removed != 1 {
				t.Fatalf("expected 1 removed, got %d", removed)
			}
			got, err := store.Recent(10, nil)
			if err != nil {
				t.Fatalf("Recent: %v", err)
			}
			if len(got) != 3 {
				t.Fatalf("expected 3 retained spots, got %d", len(got))
			}
			for _, s := range got {
				if s.DXCall == "DXFT" {
					t.Fatalf("old FT8 spot survived pruning")
				}
			}
		})
	}
}

func TestPebbleReplacesCorruptPath(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "archive-pebble")
	if err := os.WriteFile(dbPath, []byte("not a pebble db"), 0o644); err != nil {
		t.Fatalf("write corrupt db: %v", err)
	}
	cfg := config.ArchiveConfig{Backend: "pebble", DBPath: dbPath, AutoDeleteCorruptDB: true}
	store, err := Open(cfg)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer store.Close()
	info, err := os.Stat(dbPath)
	if err != nil || !info.IsDir() {
		t.Fatalf("expected archive path to be a directory, err=%v", err)
	}

	cfg.DBPath = filepath.Join(t.TempDir(), "other")
	os.WriteFile(cfg.DBPath, []byte("x"), 0o644)
	cfg.AutoDeleteCorruptDB = false
	if _, err := Open(cfg); err == nil {
		t.Fatalf("expected error without auto delete")
	}
}

func TestOpenUnknownBackend(t *testing.T) {
	if _, err := Open(config.ArchiveConfig{Backend: "mysql"}); err == nil {
		t.Fatalf("expected error for unknown backend")
	}
}

func TestWriterFlushesOnStop(t *testing.T) {
	cfg := config.ArchiveConfig{
		Backend:         "sqlite",
		DBPath:          filepath.Join(t.TempDir(), "spots.db"),
		QueueSize:       16,
		BatchSize:       100,
		BatchIntervalMS: 60000,
		BusyTimeoutMS:   1000,
	}
	store, err := OpenSQLite(cfg)
	if err != nil {
		t.Fatalf("OpenSQLite: %v", err)
	}
	w := NewWriterWithStore(store, cfg)
	w.Start(context.Background())

	at := time.Now().UTC()
	for i, call := range []string{"W1AAA", "W1BBB", "W1CCC"} {
		if err := w.Deliver(context.Background(), spotAt(call, "CW", 14025+float64(i), at)); err != nil {
			t.Fatalf("Deliver: %v", err)
		}
	}
	got, err := w.Recent(10)
	if err != nil {
		t.Fatalf("Recent: %v", err)
	}
	if len(got) != 0 {
		t.Fatalf("expected nothing written before the batch interval, got %d", len(got))
	}

	// Reopen after Stop to confirm the batch was flushed.
	if err := w.Stop(); err != nil {
		t.Fatalf("Stop: %v", err)
	}
	reopened, err := OpenSQLite(cfg)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer reopened.Close()
	if n, err := reopened.Count(); err != nil || n != 3 {
		t.Fatalf("expected 3 archived spots, got %d (%v)", n, err)
	}
	written, dropped, failed := w.Stats()
	if written != 3 || dropped != 0 || failed != 0 {
		t.Fatalf("unexpected stats %d/%d/%d", written, dropped, failed)
	}
}

func TestWriterDropsWhenQueueFull(t *testing.T) {
	cfg := config.ArchiveConfig{
		Backend:       "sqlite",
		DBPath:        filepath.Join(t.TempDir(), "spots.db"),
		QueueSize:     1,
		BusyTimeoutMS: 1000,
	}
	w, err := NewWriter(cfg)
	if err != nil {
		t.Fatalf("NewWriter: %v", err)
	}
	defer w.Stop()
	// Not started, so the queue never drains.
	at := time.Now().UTC()
	w.Deliver(context.Background(), spotAt("W1AAA", "CW", 14025, at))
	w.Deliver(context.Background(), spotAt("W1BBB", "CW", 14025, at))
	if _, dropped, _ := w.Stats(); dropped != 1 {
		t.Fatalf("expected 1 dropped spot, got %d", dropped)
	}
}
