package listener

import (
	"context"

	"dxlistener/spot"
)

// Record is the one-call form: it creates a listener with default settings,
// starts it with fn as the sink and returns it running. The caller still owns
// RequestStop and Join.
func Record(ctx context.Context, host string, port uint16, callsign string, fn func(*spot.Spot)) (*Listener, error) {
	l := New(host, port, callsign)
	if fn == nil {
		fn = func(*spot.Spot) {}
	}
	if err := l.Start(ctx, SinkFunc(fn), DefaultConnectTimeout); err != nil {
		return nil, err
	}
	return l, nil
}

// Stream starts a listener that feeds a ChannelSink of the given buffer size.
// Closing the returned sink makes the listener fail with ReceiverLost on its
// next delivery.
func Stream(ctx context.Context, h Handle, s Settings, buffer int) (*Listener, *ChannelSink, error) {
	l := NewWithSettings(h, s)
	sink := NewChannelSink(buffer)
	if err := l.Start(ctx, sink, DefaultConnectTimeout); err != nil {
		return nil, nil, err
	}
	return l, sink, nil
}
