package archive

import (
	"context"
	"log"
	"sync"
	"sync/atomic"
	"time"

	"dxlistener/config"
	"dxlistener/spot"
)

// Writer batches spots into a Store on its own goroutine and applies
// per-mode retention. Deliver never blocks and never fails: backpressure
// drops archive writes and counts them.
type Writer struct {
	store            Store
	queue            chan *spot.Spot
	batchSize        int
	batchInterval    time.Duration
	cleanupInterval  time.Duration
	retentionFT      time.Duration
	retentionDefault time.Duration

	startOnce sync.Once
	stopOnce  sync.Once
	stop      chan struct{}
	wg        sync.WaitGroup

	written atomic.Uint64
	dropped atomic.Uint64
	failed  atomic.Uint64
}

// NewWriter opens the configured store; call Start to begin processing.
func NewWriter(cfg config.ArchiveConfig) (*Writer, error) {
	store, err := Open(cfg)
	if err != nil {
		return nil, err
	}
	return NewWriterWithStore(store, cfg), nil
}

// NewWriterWithStore wraps an already opened store.
func NewWriterWithStore(store Store, cfg config.ArchiveConfig) *Writer {
	qsize := cfg.QueueSize
	if qsize <= 0 {
		qsize = 10000
	}
	batch := cfg.BatchSize
	if batch <= 0 {
		batch = 200
	}
	interval := time.Duration(cfg.BatchIntervalMS) * time.Millisecond
	if interval <= 0 {
		interval = 500 * time.Millisecond
	}
	cleanup := time.Duration(cfg.CleanupIntervalSeconds) * time.Second
	if cleanup <= 0 {
		cleanup = time.Hour
	}
	return &Writer{
		store:            store,
		queue:            make(chan *spot.Spot, qsize),
		batchSize:        batch,
		batchInterval:    interval,
		cleanupInterval:  cleanup,
		retentionFT:      time.Duration(cfg.RetentionFTSeconds) * time.Second,
		retentionDefault: time.Duration(cfg.RetentionDefaultSeconds) * time.Second,
		stop:             make(chan struct{}),
	}
}

// Start launches the insert and cleanup loops.
func (w *Writer) Start(ctx context.Context) {
	w.startOnce.Do(func() {
		w.wg.Add(2)
		go w.insertLoop(ctx)
		go w.cleanupLoop(ctx)
	})
}

// Stop flushes what is queued and closes the store.
func (w *Writer) Stop() error {
	var err error
	w.stopOnce.Do(func() {
		close(w.stop)
		w.wg.Wait()
		w.drain()
		err = w.store.Close()
	})
	return err
}

// Deliver implements listener.Sink.
func (w *Writer) Deliver(_ context.Context, s *spot.Spot) error {
	if s == nil {
		return nil
	}
	select {
	case w.queue <- s:
	default:
		w.dropped.Add(1)
	}
	return nil
}

func (w *Writer) insertLoop(ctx context.Context) {
	defer w.wg.Done()
	batch := make([]*spot.Spot, 0, w.batchSize)
	timer := time.NewTimer(w.batchInterval)
	defer timer.Stop()

	for {
		select {
		case <-w.stop:
			w.flush(batch)
			return
		case <-ctx.Done():
			w.flush(batch)
			return
		case s := <-w.queue:
			batch = append(batch, s)
			if len(batch) >= w.batchSize {
				w.flush(batch)
				batch = batch[:0]
				if !timer.Stop() {
					<-timer.C
				}
				timer.Reset(w.batchInterval)
			}
		case <-timer.C:
			if len(batch) > 0 {
				w.flush(batch)
				batch = batch[:0]
			}
			timer.Reset(w.batchInterval)
		}
	}
}

// drain writes anything still queued after the loops exit.
func (w *Writer) drain() {
	var batch []*spot.Spot
	for {
		select {
		case s := <-w.queue:
			batch = append(batch, s)
		default:
			w.flush(batch)
			return
		}
	}
}

func (w *Writer) flush(batch []*spot.Spot) {
	if len(batch) == 0 {
		return
	}
	if err := w.store.Append(batch); err != nil {
		w.failed.Add(uint64(len(batch)))
		log.Printf("archive: %v", err)
		return
	}
	w.written.Add(uint64(len(batch)))
}

func (w *Writer) cleanupLoop(ctx context.Context) {
	defer w.wg.Done()
	ticker := time.NewTicker(w.cleanupInterval)
	defer ticker.Stop()
	for {
		select {
		case <-w.stop:
			return
		case <-ctx.Done():
			return
		case <-ticker.C:
			w.cleanupOnce()
		}
	}
}

func (w *Writer) cleanupOnce() {
	if w.retentionFT <= 0 && w.retentionDefault <= 0 {
		return
	}
	now := time.Now().UTC()
	ftCutoff := time.Time{}
	if w.retentionFT > 0 {
		ftCutoff = now.Add(-w.retentionFT)
	}
	defaultCutoff := time.Time{}
	if w.retentionDefault > 0 {
		defaultCutoff = now.Add(-w.retentionDefault)
	}
	removed, err := w.store.Prune(ftCutoff, defaultCutoff)
	if err != nil {
		log.Printf("archive: cleanup: %v", err)
		return
	}
	if removed > 0 {
		log.Printf("archive: pruned %d spots", removed)
	}
}

// Recent returns the newest spots from the store.
func (w *Writer) Recent(limit int) ([]*spot.Spot, error) {
	return w.store.Recent(limit, nil)
}

// RecentFiltered returns the newest spots accepted by match.
func (w *Writer) RecentFiltered(limit int, match func(*spot.Spot) bool) ([]*spot.Spot, error) {
	return w.store.Recent(limit, match)
}

// Stats returns written, dropped (queue full) and failed (store error)
// counts.
func (w *Writer) Stats() (written, dropped, failed uint64) {
	return w.written.Load(), w.dropped.Load(), w.failed.Load()
}
