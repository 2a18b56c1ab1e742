package filter

import (
	lev "github.com/agnivade/levenshtein"

	"dxlistener/spot"
)

// WatchList flags spots for calls of interest. Busted skimmer copies are
// common, so a call within MaxDistance edits of a watched call also hits.
type WatchList struct {
	calls       []string
	maxDistance int
}

// WatchHit describes why a spot matched.
type WatchHit struct {
	Watched  string
	Distance int
}

// NewWatchList normalizes calls; maxDistance below zero is treated as zero.
func NewWatchList(calls []string, maxDistance int) *WatchList {
	if maxDistance < 0 {
		maxDistance = 0
	}
	w := &WatchList{maxDistance: maxDistance}
	for _, c := range calls {
		if c = spot.NormalizeCallsign(c); c != "" {
			w.calls = append(w.calls, c)
		}
	}
	return w
}

// Len returns the number of watched calls.
func (w *WatchList) Len() int {
	if w == nil {
		return 0
	}
	return len(w.calls)
}

// Check returns the closest watched call within range. Exact matches win.
func (w *WatchList) Check(dxCall string) (WatchHit, bool) {
	if w == nil || len(w.calls) == 0 {
		return WatchHit{}, false
	}
	call := spot.NormalizeCallsign(dxCall)
	best := WatchHit{Distance: -1}
	for _, watched := range w.calls {
		if watched == call {
			return WatchHit{Watched: watched}, true
		}
		if w.maxDistance == 0 || absInt(len(watched)-len(call)) > w.maxDistance {
			continue
		}
		d := lev.ComputeDistance(watched, call)
		if d <= w.maxDistance && (best.Distance < 0 || d < best.Distance) {
			best = WatchHit{Watched: watched, Distance: d}
		}
	}
	if best.Distance < 0 {
		return WatchHit{}, false
	}
	return best, true
}

func absInt(v int) int {
	if v < 0 {
		return -v
	}
	return v
}
