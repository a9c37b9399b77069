// Copyright 2024-2026 Aiku AI

package aggregator

import (
	"context"
	"encoding/base64"
	"sort"

	"github.com/rs/zerolog"
)

// Service is implemented once per social network. The aggregation
// operations mutate the post's working state and write to the pass's
// ledger; they never return errors because every failure inside a pass is
// local-and-logged (one bad URL, account or page must not halt the batch).
type Service interface {
	// Key identifies the network ("facebook", "twitter").
	Key() string

	// Broadcast posts the message to the network under the given account
	// and returns the remote ID the network assigned.
	Broadcast(ctx context.Context, account *Account, message string) (string, error)

	// AggregateByURL searches the network for items referencing the given
	// URLs and stages the genuinely new ones.
	AggregateByURL(ctx context.Context, post *Post, alog *AggregationLog, urls []string)

	// AggregateByAPI traverses replies and likes/retweets of every
	// broadcast of the post and stages the genuinely new ones.
	AggregateByAPI(ctx context.Context, post *Post, alog *AggregationLog)

	// SaveAggregatedComments drains the staged working set into local
	// comments via the host comment store.
	SaveAggregatedComments(ctx context.Context, post *Post)

	// AggregationRow renders a human-readable summary for a ledger entry.
	AggregationRow(e *Entry) string

	// MaxBroadcastLength is the network's message length limit.
	MaxBroadcastLength() int

	// LimitReached reports whether the response text is the network's
	// rate-limit sentinel.
	LimitReached(response string) bool

	// DuplicateStatus reports whether the response text is the network's
	// duplicate-broadcast sentinel.
	DuplicateStatus(response string) bool

	// Deauthorized reports whether the response text indicates a revoked
	// or expired token.
	Deauthorized(response string) bool

	// StatusURL returns the permalink for a broadcasted item.
	StatusURL(username, remoteID string) string

	// ResponseIDKey is the JSON key holding the item ID in broadcast
	// responses.
	ResponseIDKey() string

	// ShowFullComment reports whether comments of the given type are
	// rendered in full.
	ShowFullComment(commentType string) bool
}

// Registry resolves services by key. Built once at startup.
type Registry struct {
	services map[string]Service
}

// NewRegistry creates a registry from the given services.
func NewRegistry(services ...Service) *Registry {
	r := &Registry{services: make(map[string]Service, len(services))}
	for _, s := range services {
		r.services[s.Key()] = s
	}
	return r
}

// Get returns the service registered under key.
func (r *Registry) Get(key string) (Service, bool) {
	s, ok := r.services[key]
	return s, ok
}

// Keys returns the registered service keys, sorted.
func (r *Registry) Keys() []string {
	keys := make([]string, 0, len(r.services))
	for k := range r.services {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// baseService carries the collaborators shared by every network
// implementation and the common candidate classification pipeline.
type baseService struct {
	key       string
	transport Transport
	comments  CommentStore
	accounts  AccountDirectory
	cfg       *Config
	log       zerolog.Logger
}

// recordCandidate applies the shared new/duplicate/echo pipeline to one
// candidate item. Duplicates are ledgered and skipped; echoes of the
// post's own broadcast are skipped silently without a ledger entry; new
// items are ledgered, marked aggregated and staged. Returns true when the
// item was accepted as new.
func (s *baseService) recordCandidate(post *Post, alog *AggregationLog, item *RemoteItem, method string, extra map[string]any) bool {
	if post.HasAggregated(s.key, item.ID) {
		alog.Add(s.key, item.ID, method, true, extra)
		return false
	}
	if post.IsOriginalBroadcast(s.key, item.ID) {
		return false
	}

	alog.Add(s.key, item.ID, method, false, extra)
	post.MarkAggregated(s.key, item.ID)
	post.StageResult(s.key, item)
	return true
}

// insertComment runs the shared insert flow: moderation, insertion, social
// metadata, then notifications unless the comment was classified as spam.
// Failures are logged and the batch continues with the next item.
func (s *baseService) insertComment(ctx context.Context, post *Post, item *RemoteItem, c *CommentData, userID, profileImageURL string) {
	approved, err := s.comments.AllowComment(ctx, c)
	if err != nil {
		s.log.Warn().Err(err).Str("post_id", post.ID).Str("remote_id", item.ID).Msg("Moderation check failed")
		approved = CommentHeld
	}
	c.Approved = approved

	commentID, err := s.comments.InsertComment(ctx, c)
	if err != nil {
		s.log.Warn().Err(err).Str("post_id", post.ID).Str("remote_id", item.ID).Msg("Comment insert failed")
		return
	}

	statusID := item.StatusID
	if statusID == "" {
		statusID = item.ID
	}
	s.attachMeta(ctx, commentID, "social_account_id", userID)
	s.attachMeta(ctx, commentID, "social_profile_image_url", profileImageURL)
	s.attachMeta(ctx, commentID, "social_status_id", statusID)
	if len(item.Raw) > 0 {
		s.attachMeta(ctx, commentID, "social_raw_data", base64.StdEncoding.EncodeToString(item.Raw))
	}

	if c.Approved == CommentSpam {
		return
	}
	if c.Approved == CommentHeld {
		if err := s.comments.NotifyModerator(ctx, commentID); err != nil {
			s.log.Warn().Err(err).Str("comment_id", commentID).Msg("Moderator notification failed")
		}
	}
	if s.cfg.CommentsNotify && c.Approved == CommentApproved && post.AuthorID != userID {
		if err := s.comments.NotifyAuthor(ctx, commentID, c.Type); err != nil {
			s.log.Warn().Err(err).Str("comment_id", commentID).Msg("Author notification failed")
		}
	}
}

func (s *baseService) attachMeta(ctx context.Context, commentID, key, value string) {
	if err := s.comments.AttachMeta(ctx, commentID, key, value); err != nil {
		s.log.Warn().Err(err).Str("comment_id", commentID).Str("key", key).Msg("Failed to attach comment meta")
	}
}
