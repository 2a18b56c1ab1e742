// Package publish fans delivered spots out to message brokers. Publishers
// implement listener.Sink. A broker outage is logged and counted but never
// fails the delivery, so a listener keeps streaming while MQTT or Redis is
// down.
package publish

import (
	"strings"
	"sync/atomic"

	"dxlistener/spot"
)

// Counters tracks publish outcomes.
type Counters struct {
	published atomic.Uint64
	failed    atomic.Uint64
}

// Stats returns published and failed counts.
func (c *Counters) Stats() (published, failed uint64) {
	return c.published.Load(), c.failed.Load()
}

// topicFor builds base/band/mode, mirroring the pskr/filter/v2 layout so
// subscribers can filter with wildcards.
func topicFor(base string, s *spot.Spot) string {
	band := s.Band
	if band == "" {
		band = "unknown"
	}
	mode := s.Mode
	if mode == "" {
		mode = "unknown"
	}
	return strings.TrimRight(base, "/") + "/" + band + "/" + mode
}
