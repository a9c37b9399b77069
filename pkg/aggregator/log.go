// Copyright 2024-2026 Aiku AI

package aggregator

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// Entry is one row of the per-post aggregation ledger: a remote item that
// was seen during a pass, how it was discovered and whether it was already
// known.
type Entry struct {
	ID          string
	PostID      string
	Service     string
	RemoteID    string
	Method      string
	IsDuplicate bool
	Extra       map[string]any
	LoggedAt    time.Time
}

// LogSink persists ledger entries. Sinks are an audit trail, not a dedup
// index; dedup reads the post's aggregated ID set directly.
type LogSink interface {
	WriteEntry(ctx context.Context, e *Entry) error
}

// NopSink discards entries.
type NopSink struct{}

func (NopSink) WriteEntry(context.Context, *Entry) error { return nil }

// AggregationLog is the append-only ledger for one post's aggregation
// pass. Construct a fresh instance per pass; its lifetime is the pass.
type AggregationLog struct {
	postID  string
	sink    LogSink
	log     zerolog.Logger
	entries []*Entry
}

// NewAggregationLog creates a ledger for the given post backed by the sink.
func NewAggregationLog(postID string, sink LogSink, log zerolog.Logger) *AggregationLog {
	if sink == nil {
		sink = NopSink{}
	}
	return &AggregationLog{
		postID: postID,
		sink:   sink,
		log:    log.With().Str("component", "aggregation_log").Str("post_id", postID).Logger(),
	}
}

// Add appends an entry. It never fails the caller: if the sink write
// fails, the failure is logged and aggregation continues.
func (l *AggregationLog) Add(service, remoteID, method string, duplicate bool, extra map[string]any) {
	e := &Entry{
		ID:          uuid.NewString(),
		PostID:      l.postID,
		Service:     service,
		RemoteID:    remoteID,
		Method:      method,
		IsDuplicate: duplicate,
		Extra:       extra,
		LoggedAt:    time.Now().UTC(),
	}
	l.entries = append(l.entries, e)

	if err := l.sink.WriteEntry(context.Background(), e); err != nil {
		l.log.Warn().Err(err).
			Str("service", service).
			Str("remote_id", remoteID).
			Str("method", method).
			Msg("Failed to persist aggregation log entry")
	}
}

// Entries returns the entries recorded so far, in append order.
func (l *AggregationLog) Entries() []*Entry {
	cp := make([]*Entry, len(l.entries))
	copy(cp, l.entries)
	return cp
}
