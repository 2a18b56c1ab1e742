package dedup

import (
	"context"
	"testing"
	"time"

	"dxlistener/spot"
)

type countSink struct{ n int }

func (c *countSink) Deliver(context.Context, *spot.Spot) error {
	c.n++
	return nil
}

func testSpot(node string, at time.Time, report int) *spot.Spot {
	s := spot.NewSpot("W1XYZ", "K1ABC", 14025.0, "CW")
	s.Time = at
	s.SourceNode = node
	s.Report = report
	s.HasReport = true
	return s
}

func TestFilterDropsCrossNodeDuplicates(t *testing.T) {
	sink := &countSink{}
	f := NewFilter(2*time.Minute, false, sink)
	at := time.Date(2026, 3, 14, 12, 0, 10, 0, time.UTC)
	ctx := context.Background()

	f.Deliver(ctx, testSpot("node-a", at, 10))
	f.Deliver(ctx, testSpot("node-b", at.Add(20*time.Second), 12))
	if sink.n != 1 {
		t.Fatalf("expected one forwarded spot, got %d", sink.n)
	}
	processed, dups, size := f.Stats()
	if processed != 2 || dups != 1 || size != 1 {
		t.Fatalf("unexpected stats processed=%d dups=%d size=%d", processed, dups, size)
	}
}

func TestFilterPreferStronger(t *testing.T) {
	sink := &countSink{}
	f := NewFilter(2*time.Minute, true, sink)
	at := time.Date(2026, 3, 14, 12, 0, 10, 0, time.UTC)
	ctx := context.Background()

	f.Deliver(ctx, testSpot("a", at, 10))
	f.Deliver(ctx, testSpot("b", at, 25))
	f.Deliver(ctx, testSpot("c", at, 15))
	if sink.n != 2 {
		t.Fatalf("expected the stronger duplicate to pass, got %d forwards", sink.n)
	}
}

func TestFilterZeroWindowForwardsAll(t *testing.T) {
	sink := &countSink{}
	f := NewFilter(0, false, sink)
	at := time.Now().UTC()
	for i := 0; i < 3; i++ {
		f.Deliver(context.Background(), testSpot("a", at, 1))
	}
	if sink.n != 3 {
		t.Fatalf("expected 3 forwards with dedup disabled, got %d", sink.n)
	}
}

func TestFilterCleanupCompactsShard(t *testing.T) {
	f := NewFilter(time.Second, false, nil)
	now := time.Date(2026, 3, 14, 12, 0, 0, 0, time.UTC)
	f.now = func() time.Time { return now }
	shard := &f.shards[0]

	shard.mu.Lock()
	for i := 0; i < compactMinPeak; i++ {
		shard.cache[uint32(i)] = cachedEntry{when: now.Add(-2 * time.Second)}
	}
	keepKey := uint32(compactMinPeak + 1)
	shard.cache[keepKey] = cachedEntry{when: now}
	shard.peak = len(shard.cache)
	shard.mu.Unlock()

	if removed := f.cleanup(); removed != compactMinPeak {
		t.Fatalf("expected %d removed, got %d", compactMinPeak, removed)
	}

	shard.mu.Lock()
	defer shard.mu.Unlock()
	if _, ok := shard.cache[keepKey]; !ok || len(shard.cache) != 1 {
		t.Fatalf("expected only keepKey to remain, got %d entries", len(shard.cache))
	}
	if shard.peak != 1 {
		t.Fatalf("expected peak reset to 1, got %d", shard.peak)
	}
}
