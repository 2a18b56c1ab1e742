// Package archive persists delivered spots so recent history survives a
// restart. The Writer is a listener.Sink that never blocks the read loop:
// when its queue is full the spot is dropped from the archive only.
package archive

import (
	"fmt"
	"strings"
	"time"

	"dxlistener/config"
	"dxlistener/spot"
)

// Store is a spot archive backend.
type Store interface {
	// Append writes a batch in one transaction.
	Append(batch []*spot.Spot) error
	// Recent returns up to limit spots newest-first. A nil match accepts all.
	Recent(limit int, match func(*spot.Spot) bool) ([]*spot.Spot, error)
	// Prune deletes FT8/FT4 spots older than ftCutoff and all other spots
	// older than defaultCutoff, returning the number removed.
	Prune(ftCutoff, defaultCutoff time.Time) (int, error)
	Close() error
}

// Open selects the backend named by cfg.Backend.
func Open(cfg config.ArchiveConfig) (Store, error) {
	switch strings.ToLower(strings.TrimSpace(cfg.Backend)) {
	case "", "sqlite":
		return OpenSQLite(cfg)
	case "pebble":
		return OpenPebble(cfg)
	default:
		return nil, fmt.Errorf("archive: unknown backend %q", cfg.Backend)
	}
}

func isFTMode(mode string) bool {
	return mode == "FT8" || mode == "FT4"
}

// normalizeUnixNano maps zero and pre-epoch times to 0 so they sort first
// and never match a "before" comparison.
func normalizeUnixNano(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	ns := t.UTC().UnixNano()
	if ns < 0 {
		return 0
	}
	return ns
}
