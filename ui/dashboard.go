// Package ui renders the optional console dashboard: one row per cluster
// connection, a stats pane, the live spot stream and the system log.
package ui

import (
	"fmt"
	"io"
	"log"
	"strings"
	"sync"
	"time"

	"github.com/gdamore/tcell/v2"
	"github.com/rivo/tview"

	"dxlistener/manager"
	"dxlistener/spot"
)

const (
	accentTag   = "[#ff69b4]"
	accentReset = "[-]"
)

var (
	borderColor = tcell.ColorGray
	titleColor  = tcell.ColorHotPink
)

// Surface is what the CLI feeds. Implementations are safe for concurrent use.
type Surface interface {
	WaitReady()
	Stop()
	Done() <-chan struct{}
	SetStatuses(statuses []manager.Status)
	SetStats(lines []string)
	AppendSpot(s *spot.Spot)
	AppendWatch(line string)
	AppendSystem(line string)
	SystemWriter() io.Writer
}

// Dashboard is the tview implementation of Surface.
type Dashboard struct {
	app       *tview.Application
	scheduler *frameScheduler

	clusters *tview.Table
	stats    *tview.TextView
	spots    *tview.TextView
	system   *tview.TextView
	focus    []tview.Primitive
	focusAt  int

	spotRing   *eventRing
	systemRing *eventRing

	ready    chan struct{}
	done     chan struct{}
	stopOnce sync.Once
}

// NewDashboard builds the layout and starts the application loop.
func NewDashboard(refresh time.Duration, maxSpots int) *Dashboard {
	app := tview.NewApplication()
	d := &Dashboard{
		app:        app,
		clusters:   tview.NewTable().SetBorders(false).SetFixed(1, 0),
		stats:      newBoxedTextView("Stats"),
		spots:      newBoxedTextView("Spots"),
		system:     newBoxedTextView("System"),
		spotRing:   newEventRing(maxSpots),
		systemRing: newEventRing(200),
		ready:      make(chan struct{}),
		done:       make(chan struct{}),
	}
	d.clusters.SetBorder(true).SetTitle(" Clusters ").SetBorderColor(borderColor).SetTitleColor(titleColor)
	d.spots.SetScrollable(true)
	d.system.SetScrollable(true)
	d.focus = []tview.Primitive{d.spots, d.system, d.clusters}

	var once sync.Once
	app.SetBeforeDrawFunc(func(tcell.Screen) bool {
		once.Do(func() { close(d.ready) })
		return false
	})

	body := tview.NewFlex().SetDirection(tview.FlexRow).
		AddItem(tview.NewFlex().
			AddItem(d.clusters, 0, 2, false).
			AddItem(d.stats, 0, 1, false), 10, 0, false).
		AddItem(d.spots, 0, 3, true).
		AddItem(d.system, 8, 0, false).
		AddItem(tview.NewTextView().SetDynamicColors(true).
			SetText(accentTag+"q"+accentReset+" quit  "+accentTag+"Tab"+accentReset+" focus"), 1, 0, false)
	app.SetRoot(body, true).SetFocus(d.spots)
	app.SetInputCapture(d.handleKey)

	d.scheduler = newFrameScheduler(app, refresh)
	d.scheduler.Start()

	go func() {
		defer d.finish()
		if err := app.Run(); err != nil {
			log.Printf("UI: tview error: %v", err)
		}
	}()
	return d
}

func newBoxedTextView(title string) *tview.TextView {
	tv := tview.NewTextView().SetDynamicColors(true).SetWrap(false)
	tv.SetBorder(true).SetTitle(" " + title + " ").SetBorderColor(borderColor).SetTitleColor(titleColor)
	return tv
}

func (d *Dashboard) handleKey(event *tcell.EventKey) *tcell.EventKey {
	switch event.Key() {
	case tcell.KeyCtrlC:
		d.Stop()
		return nil
	case tcell.KeyTab:
		d.focusAt = (d.focusAt + 1) % len(d.focus)
		d.app.SetFocus(d.focus[d.focusAt])
		return nil
	}
	switch event.Rune() {
	case 'q', 'Q':
		d.Stop()
		return nil
	}
	return event
}

func (d *Dashboard) finish() {
	select {
	case <-d.done:
	default:
		close(d.done)
	}
}

// WaitReady blocks until the first frame is drawn or the app exits.
func (d *Dashboard) WaitReady() {
	select {
	case <-d.ready:
	case <-d.done:
	}
}

// Stop ends the application. The user quitting has the same effect.
func (d *Dashboard) Stop() {
	d.stopOnce.Do(func() {
		d.scheduler.Stop()
		d.app.Stop()
	})
}

// Done is closed once the application loop has returned.
func (d *Dashboard) Done() <-chan struct{} { return d.done }

func (d *Dashboard) SetStatuses(statuses []manager.Status) {
	rows := statusRows(statuses)
	d.scheduler.Schedule("clusters", func() {
		d.clusters.Clear()
		for r, row := range rows {
			for c, cell := range row {
				tc := tview.NewTableCell(cell).SetExpansion(1)
				if r == 0 {
					tc.SetTextColor(titleColor).SetSelectable(false)
				}
				d.clusters.SetCell(r, c, tc)
			}
		}
	})
}

func (d *Dashboard) SetStats(lines []string) {
	text := strings.Join(lines, "\n")
	d.scheduler.Schedule("stats", func() { d.stats.SetText(text) })
}

func (d *Dashboard) AppendSpot(s *spot.Spot) {
	d.appendTo(d.spotRing, "spots", d.spots, Event{Timestamp: time.Now().UTC(), Kind: EventSpot, Message: formatSpot(s)})
}

func (d *Dashboard) AppendWatch(line string) {
	d.appendTo(d.spotRing, "spots", d.spots, Event{Timestamp: time.Now().UTC(), Kind: EventWatch, Message: line})
}

func (d *Dashboard) AppendSystem(line string) {
	d.appendTo(d.systemRing, "system", d.system, Event{Timestamp: time.Now().UTC(), Kind: EventSystem, Message: line})
}

func (d *Dashboard) appendTo(ring *eventRing, id string, view *tview.TextView, e Event) {
	ring.Append(e)
	d.scheduler.Schedule(id, func() {
		view.SetText(renderEvents(ring.Snapshot()))
		view.ScrollToEnd()
	})
}

// SystemWriter adapts the system pane to io.Writer for the log fanout.
func (d *Dashboard) SystemWriter() io.Writer {
	return paneWriter{append: d.AppendSystem}
}

type paneWriter struct {
	append func(string)
}

func (w paneWriter) Write(p []byte) (int, error) {
	for _, line := range strings.Split(strings.TrimRight(string(p), "\r\n"), "\n") {
		if line = strings.TrimRight(line, "\r"); line != "" {
			w.append(line)
		}
	}
	return len(p), nil
}

func statusRows(statuses []manager.Status) [][]string {
	rows := [][]string{{"Cluster", "Address", "State", "Phase", "Sessions", "Last error"}}
	for _, st := range statuses {
		lastErr := "-"
		if st.LastError != nil {
			lastErr = st.LastError.Error()
		}
		if !st.RetryAt.IsZero() {
			lastErr = fmt.Sprintf("%s (retry %s)", lastErr, st.RetryAt.UTC().Format("15:04:05"))
		}
		rows = append(rows, []string{
			st.Name,
			st.Handle.Addr(),
			st.State.String(),
			st.Phase.String(),
			fmt.Sprintf("%d", st.Sessions),
			lastErr,
		})
	}
	return rows
}

func formatSpot(s *spot.Spot) string {
	if s == nil {
		return ""
	}
	node := s.SourceNode
	if node == "" {
		node = "-"
	}
	return fmt.Sprintf("%-12s %s", tview.Escape(node), tview.Escape(s.String()))
}

func renderEvents(events []Event) string {
	var b strings.Builder
	for _, e := range events {
		b.WriteString(e.Timestamp.Format("15:04:05"))
		b.WriteByte(' ')
		if e.Kind != EventSpot {
			b.WriteString(accentTag + e.Kind.Label() + accentReset + " ")
		}
		b.WriteString(e.Message)
		b.WriteByte('\n')
	}
	return b.String()
}

var _ Surface = (*Dashboard)(nil)
