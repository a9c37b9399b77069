// Copyright 2024-2026 Aiku AI

package aggregator

import (
	"time"
)

// Discovery methods recorded in the aggregation ledger.
const (
	MethodURL   = "url"
	MethodReply = "reply"
	MethodLike  = "like"
)

// BroadcastedID records one outbound broadcast of a post: the remote ID the
// network assigned and the message text that was sent. The message is kept
// so render-time reconciliation can fingerprint retweets of the broadcast
// without a network round-trip.
type BroadcastedID struct {
	RemoteID string
	Message  string
}

// Post is the aggregation subsystem's view of a CMS post. BroadcastedIDs
// and AggregatedIDs are persisted post metadata; the staged results are a
// working set that lives only for the duration of one pass.
type Post struct {
	ID        string
	AuthorID  string
	Permalink string
	Shortlink string

	// BroadcastedIDs maps service -> account ID -> ordered broadcasts.
	// Written by the broadcast step, read-only here.
	BroadcastedIDs map[string]map[string][]BroadcastedID

	// AggregatedIDs maps service -> every remote ID already converted into
	// a local comment, across all passes. Append-only.
	AggregatedIDs map[string][]string

	results     map[string]map[string]*RemoteItem
	resultOrder map[string][]string
}

// NewPost creates a Post with initialized metadata maps.
func NewPost(id, authorID, permalink string) *Post {
	return &Post{
		ID:             id,
		AuthorID:       authorID,
		Permalink:      permalink,
		BroadcastedIDs: make(map[string]map[string][]BroadcastedID),
		AggregatedIDs:  make(map[string][]string),
	}
}

// HasAggregated reports whether the remote ID has already been converted
// into a comment for this post.
func (p *Post) HasAggregated(service, remoteID string) bool {
	for _, id := range p.AggregatedIDs[service] {
		if id == remoteID {
			return true
		}
	}
	return false
}

// MarkAggregated appends the remote ID to the post's aggregated set. The
// caller checks HasAggregated first; marking happens exactly once, at the
// moment the item is accepted as new.
func (p *Post) MarkAggregated(service, remoteID string) {
	if p.AggregatedIDs == nil {
		p.AggregatedIDs = make(map[string][]string)
	}
	p.AggregatedIDs[service] = append(p.AggregatedIDs[service], remoteID)
}

// IsOriginalBroadcast reports whether the remote ID is the echo of the
// post's own outbound broadcast on the given service.
func (p *Post) IsOriginalBroadcast(service, remoteID string) bool {
	for _, byAccount := range p.BroadcastedIDs[service] {
		for _, b := range byAccount {
			if b.RemoteID == remoteID {
				return true
			}
		}
	}
	return false
}

// StageResult adds the item to the pass's working set. The first writer
// for a given remote ID wins: a like discovered after a reply with the
// same ID does not overwrite it. Returns false when the ID was already
// staged.
func (p *Post) StageResult(service string, item *RemoteItem) bool {
	if p.results == nil {
		p.results = make(map[string]map[string]*RemoteItem)
		p.resultOrder = make(map[string][]string)
	}
	if p.results[service] == nil {
		p.results[service] = make(map[string]*RemoteItem)
	}
	if _, ok := p.results[service][item.ID]; ok {
		return false
	}
	p.results[service][item.ID] = item
	p.resultOrder[service] = append(p.resultOrder[service], item.ID)
	return true
}

// HasResult reports whether the remote ID is already staged in this pass.
func (p *Post) HasResult(service, remoteID string) bool {
	_, ok := p.results[service][remoteID]
	return ok
}

// StagedResults returns the pass's working set in staging order.
func (p *Post) StagedResults(service string) []*RemoteItem {
	ids := p.resultOrder[service]
	items := make([]*RemoteItem, 0, len(ids))
	for _, id := range ids {
		items = append(items, p.results[service][id])
	}
	return items
}

// ClearResults discards the working set after it has been flushed to
// comments.
func (p *Post) ClearResults(service string) {
	delete(p.results, service)
	delete(p.resultOrder, service)
}

// RemoteItem is one piece of remote engagement discovered during a pass.
// Transient; it exists only until the pass drains it into a comment.
type RemoteItem struct {
	ID         string
	AuthorID   string
	AuthorName string
	Message    string
	CreatedAt  time.Time

	// Like marks Facebook likes and Twitter retweet satellites that were
	// collected by the page-walk rather than the reply traversal.
	Like bool

	// StatusID is the broadcasted remote ID this item replied to, used to
	// thread the resulting comment. Empty for URL search matches.
	StatusID string

	// ParentID is the service-specific parent object ID (the page half of
	// a composite Facebook post ID).
	ParentID string

	// Raw is the item's original JSON payload, stored alongside the
	// comment for render-time reconciliation.
	Raw []byte
}

// Account is an authorized social account usable for aggregation requests.
type Account struct {
	ID       string
	Username string
	Token    string
}

// CommentData is a comment record handed to the host comment store.
type CommentData struct {
	PostID      string
	Author      string
	AuthorEmail string
	AuthorURL   string
	AuthorIP    string
	Agent       string
	Type        string
	Content     string
	Date        time.Time
	DateGMT     time.Time

	// Approved is the moderation classification: "1" approved, "0" held
	// for moderation, "spam" rejected.
	Approved string
}

// Moderation classifications returned by CommentStore.AllowComment.
const (
	CommentApproved = "1"
	CommentHeld     = "0"
	CommentSpam     = "spam"
)
