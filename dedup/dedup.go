// Package dedup suppresses spots that several cluster connections report for
// the same contact. It sits in front of the real sink as a listener.Sink.
package dedup

import (
	"context"
	"log"
	"sync"
	"time"

	"dxlistener/listener"
	"dxlistener/spot"
)

// shardCount must remain a power of two so we can use bit masking for fast shard selection.
const shardCount = 64

const (
	compactMinPeak     = 1024
	compactShrinkRatio = 0.5
)

// Filter forwards a spot to Next unless a spot with the same Hash32 passed
// within Window. A zero window forwards everything while still counting.
type Filter struct {
	window         time.Duration
	preferStronger bool
	next           listener.Sink
	shards         []cacheShard
	now            func() time.Time

	cleanupInterval time.Duration
	stopOnce        sync.Once
	shutdown        chan struct{}
}

type cacheShard struct {
	mu             sync.Mutex
	cache          map[uint32]cachedEntry
	processedCount uint64
	duplicateCount uint64
	peak           int
}

// cachedEntry remembers when a hash was last forwarded and at what report so
// a stronger skimmer copy can replace a weaker one.
type cachedEntry struct {
	when time.Time
	snr  int
}

// NewFilter wraps next. preferStronger lets a duplicate with a higher signal
// report through and replace the cached entry.
func NewFilter(window time.Duration, preferStronger bool, next listener.Sink) *Filter {
	shards := make([]cacheShard, shardCount)
	for i := range shards {
		shards[i].cache = make(map[uint32]cachedEntry)
	}
	return &Filter{
		window:          window,
		preferStronger:  preferStronger,
		next:            next,
		shards:          shards,
		now:             func() time.Time { return time.Now().UTC() },
		cleanupInterval: 60 * time.Second,
		shutdown:        make(chan struct{}),
	}
}

// Start launches the periodic cleanup goroutine. It exits on Stop or when ctx
// is cancelled.
func (f *Filter) Start(ctx context.Context) {
	go f.cleanupLoop(ctx)
}

// Stop ends the cleanup loop. Safe to call more than once.
func (f *Filter) Stop() {
	f.stopOnce.Do(func() { close(f.shutdown) })
}

// Deliver implements listener.Sink. Duplicates are swallowed without error.
func (f *Filter) Deliver(ctx context.Context, s *spot.Spot) error {
	if s == nil {
		return nil
	}
	if !f.admit(s) {
		return nil
	}
	if f.next == nil {
		return nil
	}
	return f.next.Deliver(ctx, s)
}

func (f *Filter) admit(s *spot.Spot) bool {
	hash := s.Hash32()
	shard := f.shardFor(hash)
	when := s.Time
	if when.IsZero() {
		when = f.now()
	}

	shard.mu.Lock()
	defer shard.mu.Unlock()
	shard.processedCount++

	dup, lastSeen := isDuplicateLocked(shard.cache, hash, when, f.window)
	if dup && !(f.preferStronger && s.HasReport && s.Report > lastSeen.snr) {
		shard.duplicateCount++
		return false
	}
	shard.cache[hash] = cachedEntry{when: when, snr: s.Report}
	if n := len(shard.cache); n > shard.peak {
		shard.peak = n
	}
	return true
}

// isDuplicateLocked checks if a spot is a duplicate within a shard.
// Caller must hold the shard mutex.
func isDuplicateLocked(cache map[uint32]cachedEntry, hash uint32, spotTime time.Time, window time.Duration) (bool, cachedEntry) {
	lastSeen, exists := cache[hash]
	if !exists || window <= 0 {
		return false, cachedEntry{}
	}
	age := spotTime.Sub(lastSeen.when)
	if age < 0 {
		age = -age // out-of-order spots from slower nodes
	}
	return age < window, lastSeen
}

func (f *Filter) cleanupLoop(ctx context.Context) {
	ticker := time.NewTicker(f.cleanupInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-f.shutdown:
			return
		case <-ticker.C:
			if removed := f.cleanup(); removed > 0 {
				log.Printf("dedup: expired %d entries", removed)
			}
		}
	}
}

// cleanup drops expired entries and rebuilds shards that shrank well below
// their peak so the map buckets are released.
func (f *Filter) cleanup() int {
	now := f.now()
	removed := 0
	for i := range f.shards {
		shard := &f.shards[i]
		shard.mu.Lock()
		for hash, lastSeen := range shard.cache {
			if now.Sub(lastSeen.when) > f.window {
				delete(shard.cache, hash)
				removed++
			}
		}
		size := len(shard.cache)
		if shard.peak >= compactMinPeak && float64(size) < float64(shard.peak)*compactShrinkRatio {
			fresh := make(map[uint32]cachedEntry, size)
			for k, v := range shard.cache {
				fresh[k] = v
			}
			shard.cache = fresh
			shard.peak = size
		}
		shard.mu.Unlock()
	}
	return removed
}

// Stats returns processed and duplicate counts plus the current cache size.
func (f *Filter) Stats() (processed uint64, duplicates uint64, cacheSize int) {
	for i := range f.shards {
		shard := &f.shards[i]
		shard.mu.Lock()
		processed += shard.processedCount
		duplicates += shard.duplicateCount
		cacheSize += len(shard.cache)
		shard.mu.Unlock()
	}
	return processed, duplicates, cacheSize
}

func (f *Filter) shardFor(hash uint32) *cacheShard {
	return &f.shards[hash&(shardCount-1)]
}
