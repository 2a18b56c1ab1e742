// Package manager runs one listener per configured cluster node and keeps
// them alive.
//
// Purpose:
//
//	Registry of named endpoints with bulk start/stop and aggregated status.
//
// Key aspects:
//   - Every endpoint owns a fresh listener.Listener per session; a listener is
//     never restarted in place.
//   - Run polls for listeners that ended on their own, joins them, logs the
//     outcome and, when reconnect is enabled, schedules a new session with
//     exponential backoff.
//   - Dials for reconnects run off the poll loop so one slow node never
//     delays detection on the others.
//
// Upstream: cmd/dxlisten.
// Downstream: listener.Listener, the shared listener.Sink chain.
package manager

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"dxlistener/listener"
)

// Endpoint names one cluster session target.
type Endpoint struct {
	Name     string
	Handle   listener.Handle
	Settings listener.Settings
}

// Options tunes the supervision loop. Zero values select defaults.
type Options struct {
	PollInterval   time.Duration
	ConnectTimeout time.Duration
	Reconnect      bool
	BackoffBase    time.Duration
	BackoffMax     time.Duration
	// StableAfter is how long a session must have lasted for its failure to
	// reset the backoff.
	StableAfter time.Duration
	Logger      *log.Logger
	// OnReconnect fires after a replacement session has connected.
	OnReconnect func(name string)
}

func (o Options) withDefaults() Options {
	if o.PollInterval <= 0 {
		o.PollInterval = 250 * time.Millisecond
	}
	if o.ConnectTimeout <= 0 {
		o.ConnectTimeout = listener.DefaultConnectTimeout
	}
	if o.BackoffBase <= 0 {
		o.BackoffBase = 5 * time.Second
	}
	if o.BackoffMax <= 0 {
		o.BackoffMax = 5 * time.Minute
	}
	if o.StableAfter <= 0 {
		o.StableAfter = time.Minute
	}
	if o.Logger == nil {
		o.Logger = log.Default()
	}
	return o
}

// Status is a point-in-time view of one endpoint.
type Status struct {
	Name      string
	Handle    listener.Handle
	State     listener.RunState
	Phase     listener.Phase
	LastError error
	Sessions  int
	RetryAt   time.Time // zero unless a reconnect is scheduled
}

var (
	ErrDuplicateEndpoint = errors.New("duplicate endpoint")
	ErrStopped           = errors.New("manager stopped")
)

type endpoint struct {
	ep       Endpoint
	l        *listener.Listener
	joined   bool
	dialing  bool
	lastErr  error
	sessions int
	attempts int
	since    time.Time
	retryAt  time.Time
	backoff  *backoff
}

// Manager supervises a set of endpoints feeding one sink.
type Manager struct {
	opts Options
	sink listener.Sink

	mu      sync.Mutex
	order   []*endpoint
	byName  map[string]*endpoint
	ctx     context.Context
	started bool
	stopped bool
	dialers sync.WaitGroup
}

// New creates an empty manager. sink receives the spots of every endpoint.
func New(sink listener.Sink, opts Options) *Manager {
	return &Manager{
		opts:   opts.withDefaults(),
		sink:   sink,
		byName: make(map[string]*endpoint),
	}
}

// Add registers an endpoint. When the manager is already running the
// endpoint is dialed in the background.
func (m *Manager) Add(ep Endpoint) error {
	if ep.Name == "" {
		ep.Name = ep.Handle.String()
	}
	if ep.Settings.Name == "" {
		ep.Settings.Name = ep.Name
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.stopped {
		return ErrStopped
	}
	if _, ok := m.byName[ep.Name]; ok {
		return fmt.Errorf("%w: %s", ErrDuplicateEndpoint, ep.Name)
	}
	e := &endpoint{ep: ep, backoff: newBackoff(m.opts.BackoffBase, m.opts.BackoffMax)}
	m.order = append(m.order, e)
	m.byName[ep.Name] = e
	if m.started {
		m.dialLocked(e)
	}
	return nil
}

// Start dials every registered endpoint concurrently and waits for the
// dials to finish. It returns the joined dial errors; failed endpoints are
// retried by Run when reconnect is enabled. ctx also bounds later
// reconnect dials.
func (m *Manager) Start(ctx context.Context) error {
	m.mu.Lock()
	if m.stopped {
		m.mu.Unlock()
		return ErrStopped
	}
	if m.started {
		m.mu.Unlock()
		return errors.New("manager already started")
	}
	m.started = true
	m.ctx = ctx
	pending := make([]*endpoint, 0, len(m.order))
	for _, e := range m.order {
		m.dialLocked(e)
		pending = append(pending, e)
	}
	m.mu.Unlock()

	m.dialers.Wait()

	m.mu.Lock()
	defer m.mu.Unlock()
	var errs []error
	for _, e := range pending {
		if e.lastErr != nil && e.sessions == 0 {
			errs = append(errs, fmt.Errorf("%s: %w", e.ep.Name, e.lastErr))
		}
	}
	return errors.Join(errs...)
}

// dialLocked launches a fresh session for e. m.mu must be held.
func (m *Manager) dialLocked(e *endpoint) {
	l := listener.NewWithSettings(e.ep.Handle, e.ep.Settings)
	e.l = l
	e.joined = false
	e.dialing = true
	e.retryAt = time.Time{}
	e.attempts++
	attempt := e.attempts
	ctx := m.ctx
	m.dialers.Add(1)
	go func() {
		defer m.dialers.Done()
		err := l.Start(ctx, m.sink, m.opts.ConnectTimeout)

		m.mu.Lock()
		defer m.mu.Unlock()
		e.dialing = false
		if err != nil {
			// Start already closed Done; consume the outcome here.
			e.joined = true
			_ = l.Join()
			if errors.Is(err, listener.ErrShutdownAlreadyRequested) {
				return
			}
			e.lastErr = err
			m.scheduleLocked(e, time.Now())
			return
		}
		e.sessions++
		e.since = time.Now()
		if attempt > 1 {
			m.opts.Logger.Printf("%s: reconnected (attempt %d)", e.ep.Name, attempt)
			if m.opts.OnReconnect != nil {
				m.opts.OnReconnect(e.ep.Name)
			}
		}
	}()
}

func (m *Manager) scheduleLocked(e *endpoint, now time.Time) {
	if !m.opts.Reconnect || m.stopped {
		return
	}
	delay := e.backoff.Next()
	e.retryAt = now.Add(delay)
	m.opts.Logger.Printf("%s: reconnecting in %s", e.ep.Name, delay)
}

// Run supervises until ctx is cancelled, then stops every endpoint and
// returns the result of Stop.
func (m *Manager) Run(ctx context.Context) error {
	ticker := time.NewTicker(m.opts.PollInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return m.Stop()
		case now := <-ticker.C:
			m.poll(now)
		}
	}
}

// poll joins listeners that ended without a stop request and restarts
// endpoints whose backoff has expired.
func (m *Manager) poll(now time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.stopped {
		return
	}
	for _, e := range m.order {
		if e.dialing {
			continue
		}
		if e.l != nil && !e.joined {
			select {
			case <-e.l.Done():
			default:
				continue
			}
			e.joined = true
			err := e.l.Join()
			if err == nil {
				m.opts.Logger.Printf("%s: session ended", e.ep.Name)
				continue
			}
			m.opts.Logger.Printf("%s: session failed: %v", e.ep.Name, err)
			e.lastErr = err
			if !e.since.IsZero() && now.Sub(e.since) >= m.opts.StableAfter {
				e.backoff.Reset()
			}
			m.scheduleLocked(e, now)
			continue
		}
		if !e.retryAt.IsZero() && !now.Before(e.retryAt) {
			m.dialLocked(e)
		}
	}
}

// Stop requests every session to end, waits for pending dials and joins
// all workers. Failures that had not been collected yet are returned
// joined; a clean shutdown returns nil. Stop is idempotent.
func (m *Manager) Stop() error {
	m.mu.Lock()
	if m.stopped {
		m.mu.Unlock()
		return nil
	}
	m.stopped = true
	live := make([]*endpoint, 0, len(m.order))
	for _, e := range m.order {
		if e.l != nil {
			_ = e.l.RequestStop()
			live = append(live, e)
		}
	}
	m.mu.Unlock()

	m.dialers.Wait()

	var errs []error
	for _, e := range live {
		m.mu.Lock()
		if e.joined {
			m.mu.Unlock()
			continue
		}
		e.joined = true
		l := e.l
		m.mu.Unlock()

		if err := l.Join(); err != nil && !errors.Is(err, listener.ErrShutdownAlreadyRequested) {
			errs = append(errs, fmt.Errorf("%s: %w", e.ep.Name, err))
		}
	}
	return errors.Join(errs...)
}

// Statuses reports every endpoint in registration order.
func (m *Manager) Statuses() []Status {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Status, 0, len(m.order))
	for _, e := range m.order {
		st := Status{
			Name:      e.ep.Name,
			Handle:    e.ep.Handle,
			LastError: e.lastErr,
			Sessions:  e.sessions,
			RetryAt:   e.retryAt,
			State:     listener.NotStarted,
			Phase:     listener.PhaseIdle,
		}
		if e.l != nil {
			st.State = e.l.State()
			st.Phase = e.l.Phase()
		}
		out = append(out, st)
	}
	return out
}

// Healthy reports how many endpoints are currently streaming.
func (m *Manager) Healthy() (streaming, total int) {
	for _, st := range m.Statuses() {
		total++
		if st.Phase == listener.PhaseStreaming {
			streaming++
		}
	}
	return streaming, total
}
