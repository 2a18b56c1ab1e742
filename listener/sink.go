package listener

import (
	"context"
	"errors"
	"sync"

	"dxlistener/spot"
)

// ErrSinkClosed is returned by sinks whose consumer has gone away. The
// listener reports any delivery failure as ReceiverLost.
var ErrSinkClosed = errors.New("sink closed")

// Sink receives parsed spots, one at a time, in receive order. Deliver runs on
// the worker goroutine, so a slow sink throttles the read loop. A non-nil
// error terminates the connection unless ctx was cancelled.
type Sink interface {
	Deliver(ctx context.Context, s *spot.Spot) error
}

// SinkFunc adapts a callback to Sink. The callback cannot reject a spot.
type SinkFunc func(s *spot.Spot)

func (f SinkFunc) Deliver(_ context.Context, s *spot.Spot) error {
	f(s)
	return nil
}

// ChannelSink hands spots to a queue consumed elsewhere. The consumer calls
// Close when it stops reading; the next Deliver then fails instead of
// stalling.
type ChannelSink struct {
	ch        chan *spot.Spot
	closed    chan struct{}
	closeOnce sync.Once
}

// NewChannelSink creates a channel sink with the given buffer size (0 for
// an unbuffered hand-off).
func NewChannelSink(buffer int) *ChannelSink {
	if buffer < 0 {
		buffer = 0
	}
	return &ChannelSink{
		ch:     make(chan *spot.Spot, buffer),
		closed: make(chan struct{}),
	}
}

// Spots returns the receive side of the queue. It is never closed by the
// sink; consumers stop on Listener.Done or their own signal.
func (c *ChannelSink) Spots() <-chan *spot.Spot {
	return c.ch
}

// Close marks the consumer as gone. Safe to call more than once.
func (c *ChannelSink) Close() {
	c.closeOnce.Do(func() { close(c.closed) })
}

func (c *ChannelSink) Deliver(ctx context.Context, s *spot.Spot) error {
	select {
	case <-c.closed:
		return ErrSinkClosed
	default:
	}
	select {
	case c.ch <- s:
		return nil
	case <-c.closed:
		return ErrSinkClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

// MultiSink delivers to each sink in order and stops at the first error.
type MultiSink []Sink

func (m MultiSink) Deliver(ctx context.Context, s *spot.Spot) error {
	for _, sink := range m {
		if sink == nil {
			continue
		}
		if err := sink.Deliver(ctx, s); err != nil {
			return err
		}
	}
	return nil
}
