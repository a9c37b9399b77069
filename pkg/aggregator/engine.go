// Copyright 2024-2026 Aiku AI

package aggregator

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/time/rate"
)

// Engine runs aggregation passes. All mutable state is scoped to the post
// being processed; the engine itself holds no locks and relies on the
// caller never running two passes for the same post concurrently.
type Engine struct {
	registry *Registry
	posts    PostStore
	sink     LogSink
	log      zerolog.Logger
}

// NewEngine creates an engine over the given registry and host stores.
func NewEngine(registry *Registry, posts PostStore, sink LogSink, log zerolog.Logger) *Engine {
	return &Engine{
		registry: registry,
		posts:    posts,
		sink:     sink,
		log:      log.With().Str("component", "engine").Logger(),
	}
}

// RunPass aggregates one post across the given services: URL search, API
// traversal, then comment flush, sequentially per service. Individual
// item/account/page failures are handled inside the services; RunPass only
// fails when the post cannot be loaded or its state cannot be persisted.
func (e *Engine) RunPass(ctx context.Context, postID string, services []string) error {
	post, err := e.posts.GetPost(ctx, postID)
	if err != nil {
		return fmt.Errorf("failed to load post %s: %w", postID, err)
	}

	alog := NewAggregationLog(post.ID, e.sink, e.log)
	for _, key := range services {
		svc, ok := e.registry.Get(key)
		if !ok {
			e.log.Warn().Str("service", key).Msg("Unknown service, skipping")
			continue
		}

		e.log.Info().Str("post_id", post.ID).Str("service", key).Msg("Starting aggregation pass")
		svc.AggregateByURL(ctx, post, alog, []string{post.Permalink, post.Shortlink})
		svc.AggregateByAPI(ctx, post, alog)
		svc.SaveAggregatedComments(ctx, post)
	}

	if err := e.posts.SaveAggregatedIDs(ctx, post); err != nil {
		return fmt.Errorf("failed to persist aggregated IDs for post %s: %w", postID, err)
	}

	e.log.Info().Str("post_id", post.ID).Int("ledger_entries", len(alog.Entries())).Msg("Aggregation pass complete")
	return nil
}

// Scheduler periodically aggregates every post still inside the
// re-aggregation window, one pass at a time, paced by a rate limiter so
// remote APIs are not hammered.
type Scheduler struct {
	engine   *Engine
	posts    PostStore
	services []string
	interval time.Duration
	window   time.Duration
	limiter  *rate.Limiter
	log      zerolog.Logger
}

// NewScheduler creates a scheduler ticking at interval that re-aggregates
// posts published within the window.
func NewScheduler(engine *Engine, posts PostStore, services []string, interval, window time.Duration, log zerolog.Logger) *Scheduler {
	return &Scheduler{
		engine:   engine,
		posts:    posts,
		services: services,
		interval: interval,
		window:   window,
		limiter:  rate.NewLimiter(rate.Every(time.Second), 1),
		log:      log.With().Str("component", "scheduler").Logger(),
	}
}

// Run blocks until the context is cancelled.
func (s *Scheduler) Run(ctx context.Context) error {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			s.tick(ctx)
		}
	}
}

func (s *Scheduler) tick(ctx context.Context) {
	postIDs, err := s.posts.DueForAggregation(ctx, time.Now().Add(-s.window))
	if err != nil {
		s.log.Warn().Err(err).Msg("Failed to list posts due for aggregation")
		return
	}

	for _, postID := range postIDs {
		if err := s.limiter.Wait(ctx); err != nil {
			return
		}
		if err := s.engine.RunPass(ctx, postID, s.services); err != nil {
			s.log.Warn().Err(err).Str("post_id", postID).Msg("Aggregation pass failed")
		}
	}
}
