package main

import (
	"context"
	"fmt"
	"io"
	"log"
	"strings"
	"sync"
	"time"

	"github.com/dustin/go-humanize"

	"dxlistener/manager"
	"dxlistener/spot"
	"dxlistener/stats"
	"dxlistener/ui"
)

// consoleSink prints one spot per line: text on a terminal, JSON lines when
// piped or when --json is set. Write errors are logged, never fatal.
type consoleSink struct {
	mu     sync.Mutex
	w      io.Writer
	asJSON bool
}

func newConsoleSink(w io.Writer, asJSON bool) *consoleSink {
	return &consoleSink{w: w, asJSON: asJSON}
}

func (c *consoleSink) Deliver(_ context.Context, s *spot.Spot) error {
	var line string
	if c.asJSON {
		data, err := s.JSON()
		if err != nil {
			log.Printf("Output: encode %s: %v", s.DXCall, err)
			return nil
		}
		line = string(data)
	} else {
		line = fmt.Sprintf("%-10s %s", s.SourceNode, s.String())
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, err := io.WriteString(c.w, line+"\n"); err != nil {
		log.Printf("Output: %v", err)
	}
	return nil
}

type surfaceSink struct {
	surface ui.Surface
}

func (s surfaceSink) Deliver(_ context.Context, sp *spot.Spot) error {
	s.surface.AppendSpot(sp)
	return nil
}

// reportStats refreshes the dashboard every second, or logs a summary line
// every statsInterval when headless.
func reportStats(ctx context.Context, tracker *stats.Tracker, mgr *manager.Manager, p *pipeline, surface ui.Surface) {
	interval := statsInterval
	if surface != nil {
		interval = time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if surface == nil {
				log.Printf("Stats: %s", summaryLine(tracker, p))
				continue
			}
			surface.SetStatuses(mgr.Statuses())
			surface.SetStats(statsLines(tracker, p))
		}
	}
}

func summaryLine(tracker *stats.Tracker, p *pipeline) string {
	parts := []string{
		"spots=" + humanize.Comma(int64(tracker.GetTotal())),
		"lines=" + humanize.Comma(int64(sum(tracker.Lines()))),
		"parse_failures=" + humanize.Comma(int64(sum(tracker.ParseFailures()))),
	}
	if p != nil && p.dedup != nil {
		_, dupes, _ := p.dedup.Stats()
		parts = append(parts, "duplicates="+humanize.Comma(int64(dupes)))
	}
	if p != nil && p.archive != nil {
		written, dropped, _ := p.archive.Stats()
		parts = append(parts, "archived="+humanize.Comma(int64(written)), "archive_dropped="+humanize.Comma(int64(dropped)))
	}
	parts = append(parts, "uptime="+tracker.GetUptime().Truncate(time.Second).String())
	if last := tracker.LastSpot(); !last.IsZero() {
		parts = append(parts, "last_spot="+humanize.Time(last))
	}
	return strings.Join(parts, " ")
}

func statsLines(tracker *stats.Tracker, p *pipeline) []string {
	lines := []string{
		fmt.Sprintf("Uptime %s  spots %s", tracker.GetUptime().Truncate(time.Second), humanize.Comma(int64(tracker.GetTotal()))),
	}
	if last := tracker.LastSpot(); !last.IsZero() {
		lines = append(lines, "Last spot "+humanize.Time(last))
	}
	if p != nil && p.filter != nil {
		passed, rejected, watched := p.filter.Stats()
		lines = append(lines, fmt.Sprintf("Filter pass %s  drop %s  watch %s",
			humanize.Comma(int64(passed)), humanize.Comma(int64(rejected)), humanize.Comma(int64(watched))))
	}
	if p != nil && p.dedup != nil {
		processed, dupes, cached := p.dedup.Stats()
		lines = append(lines, fmt.Sprintf("Dedup %s seen  %s dupes  %d cached",
			humanize.Comma(int64(processed)), humanize.Comma(int64(dupes)), cached))
	}
	if p != nil && p.cty != nil {
		st := p.cty.Stats()
		lines = append(lines, fmt.Sprintf("CTY %s lookups  %s misses", humanize.Comma(int64(st.Lookups)), humanize.Comma(int64(st.Misses))))
	}
	return append(lines, tracker.SnapshotLines()...)
}

func sum(counts map[string]uint64) uint64 {
	var total uint64
	for _, n := range counts {
		total += n
	}
	return total
}
