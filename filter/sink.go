package filter

import (
	"context"
	"log"
	"sync/atomic"

	"dxlistener/listener"
	"dxlistener/spot"
)

// Sink applies a Filter and WatchList in front of next. Rejected spots are
// swallowed; they are not delivery failures.
type Sink struct {
	filter  *Filter
	watch   *WatchList
	next    listener.Sink
	onWatch func(*spot.Spot, WatchHit)

	passed   atomic.Uint64
	rejected atomic.Uint64
	watched  atomic.Uint64
}

// NewSink wires a filter (nil accepts all) and watch list (nil disables).
func NewSink(f *Filter, w *WatchList, next listener.Sink) *Sink {
	if f == nil {
		f = NewFilter()
	}
	return &Sink{filter: f, watch: w, next: next}
}

// OnWatch sets the callback for watch-list hits. Without one, hits are
// logged.
func (s *Sink) OnWatch(fn func(*spot.Spot, WatchHit)) {
	s.onWatch = fn
}

// Accepts reports whether sp is complete, inside the band plan and passes
// the filter. It does not touch the counters.
func (s *Sink) Accepts(sp *spot.Spot) bool {
	return sp.IsValid() && s.filter.Matches(sp)
}

func (s *Sink) Deliver(ctx context.Context, sp *spot.Spot) error {
	if !s.Accepts(sp) {
		s.rejected.Add(1)
		return nil
	}
	s.passed.Add(1)
	if hit, ok := s.watch.Check(sp.DXCall); ok {
		s.watched.Add(1)
		if s.onWatch != nil {
			s.onWatch(sp, hit)
		} else if hit.Distance == 0 {
			log.Printf("watch: %s on %.1f %s spotted by %s", sp.DXCall, sp.Frequency, sp.Mode, sp.DECall)
		} else {
			log.Printf("watch: %s on %.1f looks like %s (distance %d), spotted by %s",
				sp.DXCall, sp.Frequency, hit.Watched, hit.Distance, sp.DECall)
		}
	}
	if s.next == nil {
		return nil
	}
	return s.next.Deliver(ctx, sp)
}

// Stats returns passed, rejected and watch-hit counts.
func (s *Sink) Stats() (passed, rejected, watched uint64) {
	return s.passed.Load(), s.rejected.Load(), s.watched.Load()
}
