// Copyright 2024-2026 Aiku AI

package aggregator

import (
	"context"
	"time"
)

// CommentStore is the host CMS's comment subsystem. Insertion, metadata and
// notifications are host concerns; the engine only decides what to insert
// and which notifications policy applies.
type CommentStore interface {
	// AllowComment runs the host's moderation policy and returns one of
	// CommentApproved, CommentHeld or CommentSpam.
	AllowComment(ctx context.Context, c *CommentData) (string, error)

	// InsertComment persists the comment and returns its local ID.
	InsertComment(ctx context.Context, c *CommentData) (string, error)

	// AttachMeta stores a metadata key/value pair on a comment.
	AttachMeta(ctx context.Context, commentID, key, value string) error

	// NotifyModerator queues a moderation notification for a held comment.
	NotifyModerator(ctx context.Context, commentID string) error

	// NotifyAuthor queues a new-comment notification for the post author.
	NotifyAuthor(ctx context.Context, commentID, commentType string) error
}

// PostStore reads and writes per-post aggregation metadata.
type PostStore interface {
	// GetPost loads a post with its broadcasted and aggregated ID maps.
	GetPost(ctx context.Context, postID string) (*Post, error)

	// SaveAggregatedIDs persists the post's aggregated ID set after a pass.
	SaveAggregatedIDs(ctx context.Context, post *Post) error

	// DueForAggregation returns IDs of posts published after the cutoff
	// that should be re-aggregated.
	DueForAggregation(ctx context.Context, publishedAfter time.Time) ([]string, error)
}

// AccountDirectory resolves which social accounts are authorized to
// aggregate engagement for a post on a given service.
type AccountDirectory interface {
	AggregationAccounts(ctx context.Context, post *Post, service string) ([]*Account, error)
}
