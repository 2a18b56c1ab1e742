package ui

import (
	"sort"
	"sync"
	"time"

	"github.com/rivo/tview"
)

// frameScheduler coalesces pane updates so only the latest update per pane
// runs once per frame. With a nil app the updates run inline, which is what
// the tests use.
type frameScheduler struct {
	app       *tview.Application
	frameTime time.Duration

	mu      sync.Mutex
	pending map[string]func()

	quit     chan struct{}
	done     chan struct{}
	stopOnce sync.Once
}

func newFrameScheduler(app *tview.Application, refresh time.Duration) *frameScheduler {
	if refresh <= 0 {
		refresh = 500 * time.Millisecond
	}
	return &frameScheduler{
		app:       app,
		frameTime: refresh,
		pending:   make(map[string]func()),
		quit:      make(chan struct{}),
		done:      make(chan struct{}),
	}
}

func (f *frameScheduler) Start() {
	go f.run()
}

// Stop flushes what is pending and ends the loop. Safe to call twice.
func (f *frameScheduler) Stop() {
	f.stopOnce.Do(func() {
		close(f.quit)
		<-f.done
	})
}

// Schedule replaces any pending update for id.
func (f *frameScheduler) Schedule(id string, fn func()) {
	f.mu.Lock()
	f.pending[id] = fn
	f.mu.Unlock()
}

func (f *frameScheduler) run() {
	defer close(f.done)
	ticker := time.NewTicker(f.frameTime)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			f.flush()
		case <-f.quit:
			f.flush()
			return
		}
	}
}

// flush runs pending updates in pane-id order.
func (f *frameScheduler) flush() {
	f.mu.Lock()
	if len(f.pending) == 0 {
		f.mu.Unlock()
		return
	}
	ids := make([]string, 0, len(f.pending))
	for id := range f.pending {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	batch := make([]func(), 0, len(ids))
	for _, id := range ids {
		batch = append(batch, f.pending[id])
		delete(f.pending, id)
	}
	f.mu.Unlock()

	apply := func() {
		for _, fn := range batch {
			fn()
		}
	}
	if f.app == nil {
		apply()
		return
	}
	f.app.QueueUpdateDraw(apply)
}
