// Package stats tracks per-cluster and per-mode counters for the console
// status line, the dashboard and the Prometheus endpoint.
package stats

import (
	"fmt"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"dxlistener/listener"
	"dxlistener/spot"
)

// Tracker implements listener.Observer.
type Tracker struct {
	// counters live in sync.Map + atomic.Uint64 so per-spot increments don't fight over a mutex
	modeCounts    sync.Map // string -> *atomic.Uint64
	clusterCounts sync.Map // string -> *atomic.Uint64
	lineCounts    sync.Map // string -> *atomic.Uint64
	parseFailures sync.Map // string -> *atomic.Uint64
	phases        sync.Map // string -> listener.Phase
	lastSpot      atomic.Int64
	start         atomic.Int64

	metrics *Metrics
}

// NewTracker creates a tracker. metrics may be nil.
func NewTracker(metrics *Metrics) *Tracker {
	t := &Tracker{metrics: metrics}
	t.start.Store(time.Now().UnixNano())
	return t
}

func (t *Tracker) LineReceived(name string) {
	incrementCounter(&t.lineCounts, name)
	if t.metrics != nil {
		t.metrics.lines.WithLabelValues(name).Inc()
	}
}

func (t *Tracker) SpotDelivered(name string, s *spot.Spot) {
	incrementCounter(&t.clusterCounts, name)
	incrementCounter(&t.modeCounts, s.Mode)
	t.lastSpot.Store(time.Now().UnixNano())
	if t.metrics != nil {
		t.metrics.spots.WithLabelValues(name, s.Mode).Inc()
	}
}

func (t *Tracker) ParseFailed(name string, _ string) {
	incrementCounter(&t.parseFailures, name)
	if t.metrics != nil {
		t.metrics.parseFailures.WithLabelValues(name).Inc()
	}
}

func (t *Tracker) PhaseChanged(name string, phase listener.Phase) {
	t.phases.Store(name, phase)
	if t.metrics != nil {
		t.metrics.phase.WithLabelValues(name).Set(float64(phase))
		connected := 0.0
		if phase == listener.PhaseStreaming {
			connected = 1
		}
		t.metrics.streaming.WithLabelValues(name).Set(connected)
	}
}

// Reconnected counts a manager restart of the named cluster.
func (t *Tracker) Reconnected(name string) {
	if t.metrics != nil {
		t.metrics.reconnects.WithLabelValues(name).Inc()
	}
}

// ClusterCounts returns delivered spots per cluster.
func (t *Tracker) ClusterCounts() map[string]uint64 { return snapshot(&t.clusterCounts) }

// ModeCounts returns delivered spots per mode.
func (t *Tracker) ModeCounts() map[string]uint64 { return snapshot(&t.modeCounts) }

// ParseFailures returns dropped lines per cluster.
func (t *Tracker) ParseFailures() map[string]uint64 { return snapshot(&t.parseFailures) }

// Lines returns received lines per cluster.
func (t *Tracker) Lines() map[string]uint64 { return snapshot(&t.lineCounts) }

// Phase returns the last reported phase for a cluster.
func (t *Tracker) Phase(name string) (listener.Phase, bool) {
	v, ok := t.phases.Load(name)
	if !ok {
		return listener.PhaseIdle, false
	}
	return v.(listener.Phase), true
}

// GetTotal returns the total delivered spots across clusters.
func (t *Tracker) GetTotal() uint64 {
	var total uint64
	t.clusterCounts.Range(func(_, value any) bool {
		total += value.(*atomic.Uint64).Load()
		return true
	})
	return total
}

// GetUptime returns how long the tracker has been running
func (t *Tracker) GetUptime() time.Duration {
	return time.Since(time.Unix(0, t.start.Load()))
}

// LastSpot returns when the most recent spot was delivered (zero if none).
func (t *Tracker) LastSpot() time.Time {
	ns := t.lastSpot.Load()
	if ns == 0 {
		return time.Time{}
	}
	return time.Unix(0, ns)
}

// SnapshotLines returns human-readable stats ready for console display.
func (t *Tracker) SnapshotLines() []string {
	return []string{
		formatMapCounts("Spots by cluster", &t.clusterCounts),
		formatMapCounts("Spots by mode", &t.modeCounts),
		formatMapCounts("Parse failures", &t.parseFailures),
	}
}

func snapshot(m *sync.Map) map[string]uint64 {
	counts := make(map[string]uint64)
	m.Range(func(key, value any) bool {
		counts[key.(string)] = value.(*atomic.Uint64).Load()
		return true
	})
	return counts
}

func formatMapCounts(label string, counts *sync.Map) string {
	snap := snapshot(counts)
	keys := make([]string, 0, len(snap))
	for k := range snap {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var builder strings.Builder
	builder.WriteString(label)
	builder.WriteString(": ")
	if len(keys) == 0 {
		builder.WriteString("(none)")
		return builder.String()
	}
	for i, k := range keys {
		if i > 0 {
			builder.WriteString(", ")
		}
		fmt.Fprintf(&builder, "%s=%d", k, snap[k])
	}
	return builder.String()
}

func incrementCounter(m *sync.Map, key string) {
	if strings.TrimSpace(key) == "" {
		return
	}
	if value, ok := m.Load(key); ok {
		value.(*atomic.Uint64).Add(1)
		return
	}
	counter := &atomic.Uint64{}
	actual, loaded := m.LoadOrStore(key, counter)
	if loaded {
		actual.(*atomic.Uint64).Add(1)
		return
	}
	counter.Add(1)
}
