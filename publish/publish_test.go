package publish

import (
	"context"
	"errors"
	"testing"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/redis/go-redis/v9"

	"dxlistener/config"
	"dxlistener/spot"
)

type fakeToken struct {
	err  error
	done chan struct{}
}

func newFakeToken(err error) *fakeToken {
	t := &fakeToken{err: err, done: make(chan struct{})}
	close(t.done)
	return t
}

func (t *fakeToken) Wait() bool                     { return true }
func (t *fakeToken) WaitTimeout(time.Duration) bool { return true }
func (t *fakeToken) Done() <-chan struct{}          { return t.done }
func (t *fakeToken) Error() error                   { return t.err }

type published struct {
	topic   string
	payload []byte
}

type fakeMQTT struct {
	connected bool
	err       error
	msgs      []published
}

func (f *fakeMQTT) Publish(topic string, _ byte, _ bool, payload interface{}) mqtt.Token {
	f.msgs = append(f.msgs, published{topic: topic, payload: payload.([]byte)})
	return newFakeToken(f.err)
}
func (f *fakeMQTT) IsConnected() bool { return f.connected }
func (f *fakeMQTT) Disconnect(uint)   { f.connected = false }

func TestMQTTPublisherTopicAndPayload(t *testing.T) {
	client := &fakeMQTT{connected: true}
	p := newMQTTPublisher(client, config.MQTTConfig{Topic: "dxlisten/spots/"})
	s := spot.NewSpot("W1XYZ", "K1ABC", 14074, "FT8")

	if err := p.Deliver(context.Background(), s); err != nil {
		t.Fatalf("Deliver: %v", err)
	}
	if len(client.msgs) != 1 || client.msgs[0].topic != "dxlisten/spots/20m/FT8" {
		t.Fatalf("unexpected publish %+v", client.msgs)
	}
	decoded, err := spot.FromJSON(client.msgs[0].payload)
	if err != nil || decoded.DXCall != "W1XYZ" {
		t.Fatalf("payload did not decode: %v %+v", err, decoded)
	}
	if pub, failed := p.Stats(); pub != 1 || failed != 0 {
		t.Fatalf("unexpected stats %d/%d", pub, failed)
	}
}

func TestMQTTPublisherNeverFailsDelivery(t *testing.T) {
	client := &fakeMQTT{connected: true, err: errors.New("broker said no")}
	p := newMQTTPublisher(client, config.MQTTConfig{Topic: "t"})
	s := spot.NewSpot("W1XYZ", "K1ABC", 14025, "CW")
	if err := p.Deliver(context.Background(), s); err != nil {
		t.Fatalf("publish errors must not fail delivery: %v", err)
	}
	client.connected = false
	p.Deliver(context.Background(), s)
	if pub, failed := p.Stats(); pub != 0 || failed != 2 {
		t.Fatalf("unexpected stats %d/%d", pub, failed)
	}
	if len(client.msgs) != 1 {
		t.Fatalf("expected no publish while disconnected, got %d", len(client.msgs))
	}
}

type fakeRedis struct {
	publishErr error
	channel    []string
	list       []interface{}
	trimStop   int64
	closed     bool
}

func (f *fakeRedis) Publish(ctx context.Context, channel string, message interface{}) *redis.IntCmd {
	cmd := redis.NewIntCmd(ctx)
	if f.publishErr != nil {
		cmd.SetErr(f.publishErr)
		return cmd
	}
	f.channel = append(f.channel, channel)
	cmd.SetVal(1)
	return cmd
}

func (f *fakeRedis) LPush(ctx context.Context, _ string, values ...interface{}) *redis.IntCmd {
	f.list = append(values, f.list...)
	cmd := redis.NewIntCmd(ctx)
	cmd.SetVal(int64(len(f.list)))
	return cmd
}

func (f *fakeRedis) LTrim(ctx context.Context, _ string, _, stop int64) *redis.StatusCmd {
	f.trimStop = stop
	if int64(len(f.list)) > stop+1 {
		f.list = f.list[:stop+1]
	}
	cmd := redis.NewStatusCmd(ctx)
	cmd.SetVal("OK")
	return cmd
}

func (f *fakeRedis) Close() error {
	f.closed = true
	return nil
}

func TestRedisPublisherKeepsCappedList(t *testing.T) {
	client := &fakeRedis{}
	p := newRedisPublisher(client, config.RedisConfig{Channel: "dx", ListKey: "dx:recent", ListMax: 2})
	for _, call := range []string{"W1AAA", "W1BBB", "W1CCC"} {
		if err := p.Deliver(context.Background(), spot.NewSpot(call, "K1ABC", 14025, "CW")); err != nil {
			t.Fatalf("Deliver: %v", err)
		}
	}
	if len(client.channel) != 3 || client.channel[0] != "dx" {
		t.Fatalf("unexpected publishes %v", client.channel)
	}
	if len(client.list) != 2 || client.trimStop != 1 {
		t.Fatalf("expected list capped at 2, got %d (stop %d)", len(client.list), client.trimStop)
	}
	newest, _ := spot.FromJSON(client.list[0].([]byte))
	if newest.DXCall != "W1CCC" {
		t.Fatalf("expected newest first, got %s", newest.DXCall)
	}
	p.Close()
	if !client.closed {
		t.Fatalf("expected Close to close the client")
	}
}

func TestRedisPublisherCountsFailures(t *testing.T) {
	client := &fakeRedis{publishErr: errors.New("connection refused")}
	p := newRedisPublisher(client, config.RedisConfig{Channel: "dx"})
	if err := p.Deliver(context.Background(), spot.NewSpot("W1AAA", "K1ABC", 14025, "CW")); err != nil {
		t.Fatalf("publish errors must not fail delivery: %v", err)
	}
	if pub, failed := p.Stats(); pub != 0 || failed != 1 {
		t.Fatalf("unexpected stats %d/%d", pub, failed)
	}
}
