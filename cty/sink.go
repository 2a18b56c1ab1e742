package cty

import (
	"context"

	"dxlistener/listener"
	"dxlistener/spot"
)

// EnrichSink fills country metadata and forwards to next. A nil database
// passes spots through unchanged.
type EnrichSink struct {
	db   *Database
	next listener.Sink
}

func NewEnrichSink(db *Database, next listener.Sink) *EnrichSink {
	return &EnrichSink{db: db, next: next}
}

func (e *EnrichSink) Deliver(ctx context.Context, s *spot.Spot) error {
	e.db.Enrich(s)
	return e.next.Deliver(ctx, s)
}
