package publish

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/redis/go-redis/v9"

	"dxlistener/config"
	"dxlistener/spot"
)

type redisClient interface {
	Publish(ctx context.Context, channel string, message interface{}) *redis.IntCmd
	LPush(ctx context.Context, key string, values ...interface{}) *redis.IntCmd
	LTrim(ctx context.Context, key string, start, stop int64) *redis.StatusCmd
	Close() error
}

// RedisPublisher PUBLISHes spot JSON on a channel and optionally keeps the
// newest ListMax spots in a list for late subscribers.
type RedisPublisher struct {
	Counters
	client  redisClient
	channel string
	listKey string
	listMax int
	timeout time.Duration
}

// NewRedisPublisher connects and pings the server.
func NewRedisPublisher(cfg config.RedisConfig) (*RedisPublisher, error) {
	rdb := redis.NewClient(&redis.Options{Addr: cfg.Addr, Password: cfg.Password, DB: cfg.DB})
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		rdb.Close()
		return nil, fmt.Errorf("redis ping %s: %w", cfg.Addr, err)
	}
	log.Printf("Redis: connected to %s (channel %s)", cfg.Addr, cfg.Channel)
	return newRedisPublisher(rdb, cfg), nil
}

func newRedisPublisher(client redisClient, cfg config.RedisConfig) *RedisPublisher {
	return &RedisPublisher{
		client:  client,
		channel: cfg.Channel,
		listKey: cfg.ListKey,
		listMax: cfg.ListMax,
		timeout: 2 * time.Second,
	}
}

func (p *RedisPublisher) Deliver(ctx context.Context, s *spot.Spot) error {
	payload, err := s.JSON()
	if err != nil {
		p.failed.Add(1)
		return nil
	}
	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()
	if err := p.client.Publish(ctx, p.channel, payload).Err(); err != nil {
		p.failed.Add(1)
		log.Printf("Redis: publish failed: %v", err)
		return nil
	}
	if p.listKey != "" {
		if err := p.client.LPush(ctx, p.listKey, payload).Err(); err != nil {
			log.Printf("Redis: lpush failed: %v", err)
		} else if p.listMax > 0 {
			if err := p.client.LTrim(ctx, p.listKey, 0, int64(p.listMax-1)).Err(); err != nil {
				log.Printf("Redis: ltrim failed: %v", err)
			}
		}
	}
	p.published.Add(1)
	return nil
}

func (p *RedisPublisher) Close() error {
	return p.client.Close()
}
