package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"dxlistener/archive"
	"dxlistener/config"
	"dxlistener/cty"
	"dxlistener/dedup"
	"dxlistener/filter"
	"dxlistener/listener"
	"dxlistener/publish"
	"dxlistener/spot"
	"dxlistener/ui"
)

// pipeline is the sink chain shared by every cluster connection:
//
//	cty enrich -> filter/watch -> dedup -> archive, mqtt, redis, output
//
// Optional stages are nil when disabled.
type pipeline struct {
	head    listener.Sink
	cty     *cty.Database
	filter  *filter.Sink
	dedup   *dedup.Filter
	archive *archive.Writer
	mqtt    *publish.MQTTPublisher
	redis   *publish.RedisPublisher
}

func buildPipeline(ctx context.Context, cfg *config.Config, out listener.Sink, surface ui.Surface) (*pipeline, error) {
	p := &pipeline{}
	fanout := listener.MultiSink{}

	if cfg.Archive.Enabled {
		w, err := archive.NewWriter(cfg.Archive)
		if err != nil {
			return nil, fmt.Errorf("archive: %w", err)
		}
		w.Start(ctx)
		p.archive = w
		fanout = append(fanout, w)
		log.Printf("Archive: %s at %s", cfg.Archive.Backend, cfg.Archive.DBPath)
	}
	if cfg.MQTT.Enabled {
		if m, err := publish.NewMQTTPublisher(cfg.MQTT); err != nil {
			log.Printf("Warning: MQTT publishing disabled: %v", err)
		} else {
			p.mqtt = m
			fanout = append(fanout, m)
		}
	}
	if cfg.Redis.Enabled {
		if r, err := publish.NewRedisPublisher(cfg.Redis); err != nil {
			log.Printf("Warning: Redis publishing disabled: %v", err)
		} else {
			p.redis = r
			fanout = append(fanout, r)
		}
	}
	fanout = append(fanout, out)

	var next listener.Sink = fanout
	if cfg.Dedup.Enabled {
		p.dedup = dedup.NewFilter(time.Duration(cfg.Dedup.WindowSeconds)*time.Second, cfg.Dedup.PreferStrongerSNR, next)
		p.dedup.Start(ctx)
		next = p.dedup
	}

	f, err := buildFilter(cfg.Filter)
	if err != nil {
		p.Close()
		return nil, fmt.Errorf("filter: %w", err)
	}
	var watch *filter.WatchList
	if len(cfg.Filter.Watch) > 0 {
		watch = filter.NewWatchList(cfg.Filter.Watch, cfg.Filter.WatchDistance)
	}
	p.filter = filter.NewSink(f, watch, next)
	if surface != nil {
		p.filter.OnWatch(func(s *spot.Spot, hit filter.WatchHit) {
			surface.AppendWatch(watchLine(s, hit))
		})
	}
	next = p.filter
	log.Printf("Filter: %s", f)

	if cfg.CTY.Enabled {
		db, err := cty.Load(cfg.CTY.File)
		if err != nil {
			log.Printf("Warning: failed to load CTY database: %v", err)
		} else {
			p.cty = db
			log.Printf("CTY: loaded %d entries from %s", db.Len(), cfg.CTY.File)
		}
	}
	p.head = cty.NewEnrichSink(p.cty, next)
	return p, nil
}

func buildFilter(cfg config.FilterConfig) (*filter.Filter, error) {
	if path := strings.TrimSpace(cfg.File); path != "" {
		return filter.Load(path)
	}
	return filter.FromSelections(cfg.Bands, cfg.Modes, cfg.Callsigns, cfg.DXContinents, cfg.SkipSkimmers)
}

func watchLine(s *spot.Spot, hit filter.WatchHit) string {
	if hit.Distance == 0 {
		return fmt.Sprintf("%s on %.1f %s by %s", s.DXCall, s.Frequency, s.Mode, s.DECall)
	}
	return fmt.Sprintf("%s on %.1f looks like %s (distance %d) by %s", s.DXCall, s.Frequency, hit.Watched, hit.Distance, s.DECall)
}

// backfill replays the newest archived spots that the current filter accepts,
// oldest first, so a fresh dashboard does not start empty.
func (p *pipeline) backfill(limit int, appendSpot func(*spot.Spot)) int {
	if p.archive == nil || limit <= 0 {
		return 0
	}
	recent, err := p.archive.RecentFiltered(limit, p.filter.Accepts)
	if err != nil {
		log.Printf("Archive: backfill: %v", err)
		return 0
	}
	for i := len(recent) - 1; i >= 0; i-- {
		appendSpot(recent[i])
	}
	return len(recent)
}

// Close flushes the archive and disconnects the publishers.
func (p *pipeline) Close() error {
	var errs []error
	if p.dedup != nil {
		p.dedup.Stop()
	}
	if p.archive != nil {
		if err := p.archive.Stop(); err != nil {
			errs = append(errs, fmt.Errorf("archive: %w", err))
		}
	}
	if p.mqtt != nil {
		if err := p.mqtt.Close(); err != nil {
			errs = append(errs, fmt.Errorf("mqtt: %w", err))
		}
	}
	if p.redis != nil {
		if err := p.redis.Close(); err != nil {
			errs = append(errs, fmt.Errorf("redis: %w", err))
		}
	}
	return errors.Join(errs...)
}
