package archive

import (
	"encoding/binary"
	"errors"
	"fmt"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/cockroachdb/pebble"
	"github.com/cockroachdb/pebble/bloom"

	"dxlistener/config"
	"dxlistener/spot"
)

const spotKeyPrefix byte = 'S'

var (
	spotKeyLower = []byte{spotKeyPrefix}
	spotKeyUpper = []byte{spotKeyPrefix + 1}
)

// PebbleStore keeps spots keyed by prefix|unix-nanos|seq so iteration order
// is arrival order. Values are the spot JSON encoding.
type PebbleStore struct {
	db        *pebble.DB
	writeOpts *pebble.WriteOptions

	mu  sync.Mutex
	seq uint32
}

// OpenPebble opens or creates the store directory. A path that exists as a
// regular file, or a directory Pebble cannot open, is removed and recreated
// when AutoDeleteCorruptDB is set.
func OpenPebble(cfg config.ArchiveConfig) (*PebbleStore, error) {
	path := strings.TrimSpace(cfg.DBPath)
	if path == "" {
		return nil, errors.New("archive: pebble path is empty")
	}
	if info, err := os.Stat(path); err == nil && !info.IsDir() {
		if !cfg.AutoDeleteCorruptDB {
			return nil, fmt.Errorf("archive: %s is not a directory", path)
		}
		if err := os.Remove(path); err != nil {
			return nil, fmt.Errorf("archive: remove corrupt db: %w", err)
		}
	}
	db, err := openPebbleDB(path)
	if err != nil && cfg.AutoDeleteCorruptDB {
		if rmErr := os.RemoveAll(path); rmErr == nil {
			db, err = openPebbleDB(path)
		}
	}
	if err != nil {
		return nil, err
	}
	writeOpts := pebble.NoSync
	if s := strings.ToLower(cfg.Synchronous); s == "normal" || s == "full" {
		writeOpts = pebble.Sync
	}
	// Seed the sequence so keys written by this process do not collide with
	// earlier runs that stored spots for the same minute.
	return &PebbleStore{db: db, writeOpts: writeOpts, seq: uint32(time.Now().UnixNano())}, nil
}

func openPebbleDB(path string) (*pebble.DB, error) {
	opts := &pebble.Options{}
	level := pebble.LevelOptions{
		FilterPolicy: bloom.FilterPolicy(10),
		FilterType:   pebble.TableFilter,
	}
	opts.Levels = make([]pebble.LevelOptions, 7)
	for i := range opts.Levels {
		opts.Levels[i] = level
	}
	db, err := pebble.Open(path, opts)
	if err != nil {
		return nil, fmt.Errorf("archive: pebble open: %w", err)
	}
	return db, nil
}

func spotKey(ts int64, seq uint32) []byte {
	key := make([]byte, 13)
	key[0] = spotKeyPrefix
	binary.BigEndian.PutUint64(key[1:9], uint64(ts))
	binary.BigEndian.PutUint32(key[9:], seq)
	return key
}

func keyTime(key []byte) int64 {
	if len(key) < 9 {
		return 0
	}
	return int64(binary.BigEndian.Uint64(key[1:9]))
}

func (p *PebbleStore) Append(batch []*spot.Spot) error {
	if len(batch) == 0 {
		return nil
	}
	b := p.db.NewBatch()
	defer b.Close()
	p.mu.Lock()
	for _, sp := range batch {
		if sp == nil {
			continue
		}
		value, err := sp.JSON()
		if err != nil {
			p.mu.Unlock()
			return fmt.Errorf("archive: encode: %w", err)
		}
		key := spotKey(normalizeUnixNano(sp.Time), p.seq)
		p.seq++
		if err := b.Set(key, value, nil); err != nil {
			p.mu.Unlock()
			return fmt.Errorf("archive: batch set: %w", err)
		}
	}
	p.mu.Unlock()
	if err := b.Commit(p.writeOpts); err != nil {
		return fmt.Errorf("archive: batch commit: %w", err)
	}
	return nil
}

func (p *PebbleStore) Recent(limit int, match func(*spot.Spot) bool) ([]*spot.Spot, error) {
	if limit <= 0 {
		return []*spot.Spot{}, nil
	}
	iter, err := p.db.NewIter(&pebble.IterOptions{LowerBound: spotKeyLower, UpperBound: spotKeyUpper})
	if err != nil {
		return nil, fmt.Errorf("archive: iterator: %w", err)
	}
	defer iter.Close()

	results := make([]*spot.Spot, 0, limit)
	for ok := iter.Last(); ok && len(results) < limit; ok = iter.Prev() {
		sp, err := spot.FromJSON(iter.Value())
		if err != nil {
			// Skip undecodable rows rather than failing the whole read.
			continue
		}
		if match != nil && !match(sp) {
			continue
		}
		results = append(results, sp)
	}
	return results, iter.Error()
}

func (p *PebbleStore) Prune(ftCutoff, defaultCutoff time.Time) (int, error) {
	ft := normalizeUnixNano(ftCutoff)
	def := normalizeUnixNano(defaultCutoff)
	lo, hi := ft, def
	if lo > hi {
		lo, hi = hi, lo
	}

	iter, err := p.db.NewIter(&pebble.IterOptions{LowerBound: spotKeyLower, UpperBound: spotKey(hi, 0)})
	if err != nil {
		return 0, fmt.Errorf("archive: iterator: %w", err)
	}
	b := p.db.NewBatch()
	defer b.Close()
	removed := 0
	for ok := iter.First(); ok; ok = iter.Next() {
		ts := keyTime(iter.Key())
		drop := ts < lo
		if !drop {
			sp, err := spot.FromJSON(iter.Value())
			if err != nil {
				drop = true
			} else if isFTMode(sp.Mode) {
				drop = ts < ft
			} else {
				drop = ts < def
			}
		}
		if drop {
			key := append([]byte(nil), iter.Key()...)
			if err := b.Delete(key, nil); err != nil {
				iter.Close()
				return removed, fmt.Errorf("archive: batch delete: %w", err)
			}
			removed++
		}
	}
	if err := iter.Close(); err != nil {
		return 0, fmt.Errorf("archive: iterator close: %w", err)
	}
	if removed == 0 {
		return 0, nil
	}
	if err := b.Commit(p.writeOpts); err != nil {
		return 0, fmt.Errorf("archive: prune commit: %w", err)
	}
	return removed, nil
}

func (p *PebbleStore) Close() error {
	return p.db.Close()
}
