// Package listener maintains one authenticated connection to a DX cluster
// node and streams parsed spots to a Sink.
//
// Purpose:
//
//	Dial the node, answer its login prompt with a callsign, then read spot
//	lines until the peer closes, a fatal error occurs, the sink goes away or
//	the owner asks it to stop.
//
// Key aspects:
//   - One worker goroutine per Listener; it owns the socket.
//   - Every read is bounded by Settings.PollInterval so a stop request is
//     honoured within one interval even on a silent feed. A stop request also
//     expires the read deadline immediately.
//   - The terminal outcome is stored once and handed to the single Join call.
//
// Upstream: manager.Manager or a caller of Record.
// Downstream: a Sink (callback, channel, dedup/filter chain, archive).
package listener

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sync"
	"sync/atomic"
	"time"
)

// DefaultConnectTimeout is used by Record and by callers that pass zero.
const DefaultConnectTimeout = 30 * time.Second

var errStopped = errors.New("stop requested")

// Listener supervises a single cluster connection.
type Listener struct {
	handle   Handle
	settings Settings
	state    stateCell

	ctx           context.Context
	cancel        context.CancelFunc
	stopRequested atomic.Bool

	mu      sync.Mutex // guards started and joined
	started bool
	joined  bool

	done   chan struct{}
	result error
}

// New creates an idle listener with default settings. No I/O happens until
// Start.
func New(host string, port uint16, callsign string) *Listener {
	return NewWithSettings(Handle{Host: host, Port: port, Callsign: callsign}, Settings{})
}

// NewWithSettings creates an idle listener with explicit tuning.
func NewWithSettings(h Handle, s Settings) *Listener {
	ctx, cancel := context.WithCancel(context.Background())
	return &Listener{
		handle:   h,
		settings: s.withDefaults(h),
		ctx:      ctx,
		cancel:   cancel,
		done:     make(chan struct{}),
	}
}

// Handle returns the immutable target identity.
func (l *Listener) Handle() Handle { return l.handle }

// Name is the label used in logs and observer events.
func (l *Listener) Name() string { return l.settings.Name }

func (l *Listener) String() string {
	return fmt.Sprintf("%s [%s/%s]", l.settings.Name, l.State(), l.Phase())
}

// Start dials the node and, on success, launches the worker. Dial failures
// are returned synchronously and the listener never reaches Running. ctx
// bounds only the dial; use RequestStop to end the session.
func (l *Listener) Start(ctx context.Context, sink Sink, connectTimeout time.Duration) error {
	addr := l.handle.Addr()
	if sink == nil {
		return newError(KindInternal, "start", addr, errors.New("nil sink"))
	}

	l.mu.Lock()
	if l.started {
		l.mu.Unlock()
		return newError(KindInternal, "start", addr, errors.New("already started"))
	}
	l.started = true
	l.mu.Unlock()

	if l.stopRequested.Load() {
		err := newError(KindShutdownAlreadyRequested, "start", addr, nil)
		l.finishEarly(err)
		return err
	}

	l.setPhase(PhaseConnecting)
	l.settings.Logger.Printf("%s: connecting to %s", l.settings.Name, addr)

	if connectTimeout <= 0 {
		connectTimeout = DefaultConnectTimeout
	}
	dialCtx, cancelDial := context.WithTimeout(ctx, connectTimeout)
	stopDial := context.AfterFunc(l.ctx, cancelDial)
	var d net.Dialer
	conn, err := d.DialContext(dialCtx, "tcp", addr)
	stopDial()
	cancelDial()
	if err != nil {
		var lerr *Error
		if l.ctx.Err() != nil {
			lerr = newError(KindShutdownAlreadyRequested, "dial", addr, err)
		} else {
			lerr = classifyDial(addr, err)
		}
		l.settings.Logger.Printf("%s: %v", l.settings.Name, lerr)
		l.finishEarly(lerr)
		return lerr
	}

	lc, err := newLineChannel(conn, l.settings.Transport, l.settings.MaxLineLength)
	if err != nil {
		_ = conn.Close()
		lerr := newError(KindInternal, "start", addr, err)
		l.finishEarly(lerr)
		return lerr
	}

	l.settings.Logger.Printf("%s: connection established", l.settings.Name)
	l.state.setRun(Running)
	w := &worker{
		handle:   l.handle,
		settings: l.settings,
		addr:     addr,
		lc:       lc,
		sink:     sink,
		phase:    l.setPhase,
	}
	go l.run(conn, w)
	return nil
}

// finishEarly records an outcome reached before the worker launched. A stop
// requested before or during the dial is not a failure: Start reports it,
// Join returns nil.
func (l *Listener) finishEarly(err error) {
	if errors.Is(err, ErrShutdownAlreadyRequested) {
		l.setPhase(PhaseStopped)
		l.result = nil
	} else {
		l.setPhase(PhaseFailed)
		l.result = err
	}
	close(l.done)
}

func (l *Listener) run(conn net.Conn, w *worker) {
	defer close(l.done)

	// Expire the pending read as soon as a stop is requested.
	stopWake := context.AfterFunc(l.ctx, func() {
		_ = conn.SetReadDeadline(time.Now())
	})

	err := w.drive(l.ctx)

	stopWake()
	_ = conn.Close()

	if err == nil || errors.Is(err, errStopped) {
		l.setPhase(PhaseStopped)
		l.settings.Logger.Printf("%s: stopped", l.settings.Name)
		l.result = nil
	} else {
		l.setPhase(PhaseFailed)
		l.settings.Logger.Printf("%s: terminated: %v", l.settings.Name, err)
		l.result = err
	}
	l.state.setRun(Stopped)
}

func (l *Listener) setPhase(p Phase) {
	if l.state.advance(p) && l.settings.Observer != nil {
		l.settings.Observer.PhaseChanged(l.settings.Name, p)
	}
}

// RequestStop asks the worker to end the session. It never blocks. Only the
// first call succeeds; later calls return ShutdownAlreadyRequested.
func (l *Listener) RequestStop() error {
	if !l.stopRequested.CompareAndSwap(false, true) {
		return newError(KindShutdownAlreadyRequested, "stop", l.handle.Addr(), nil)
	}
	l.cancel()
	return nil
}

// IsRunning reports whether the worker is active. It may lag the real state
// by up to one poll interval.
func (l *Listener) IsRunning() bool {
	return l.state.runState() == Running
}

// State returns the coarse run state.
func (l *Listener) State() RunState { return l.state.runState() }

// Phase returns the connection phase.
func (l *Listener) Phase() Phase { return l.state.current() }

// Done is closed once the listener has reached its terminal outcome,
// including a Start that failed.
func (l *Listener) Done() <-chan struct{} { return l.done }

// Join blocks until the worker ends and returns its outcome: nil after a
// requested stop (including one that cut a dial short), the failure
// otherwise. A failed Start is reported again here. Only the first call consumes the outcome; later calls return
// AlreadyJoined.
func (l *Listener) Join() error {
	l.mu.Lock()
	if !l.started {
		l.mu.Unlock()
		return newError(KindInternal, "join", l.handle.Addr(), errors.New("not started"))
	}
	if l.joined {
		l.mu.Unlock()
		return newError(KindAlreadyJoined, "join", l.handle.Addr(), nil)
	}
	l.joined = true
	l.mu.Unlock()

	<-l.done
	return l.result
}

// worker is the state owned by the connection goroutine.
type worker struct {
	handle   Handle
	settings Settings
	addr     string
	lc       *lineChannel
	sink     Sink
	phase    func(Phase)
}

func (w *worker) drive(ctx context.Context) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = newError(KindInternal, "stream", w.addr, fmt.Errorf("panic: %v", r))
		}
	}()

	w.phase(PhaseAuthenticating)
	if err := w.authenticate(ctx); err != nil {
		return err
	}
	w.phase(PhaseStreaming)
	return w.stream(ctx)
}

func (w *worker) observeLine() {
	if w.settings.Observer != nil {
		w.settings.Observer.LineReceived(w.settings.Name)
	}
}

func (w *worker) logf(format string, args ...any) {
	w.settings.Logger.Printf(format, args...)
}
