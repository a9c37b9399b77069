// Copyright 2024-2026 Aiku AI

package aggregator

import "strings"

// StoredComment is a locally persisted comment as the host hands it back
// at render time, with its social metadata resolved.
type StoredComment struct {
	ID              string
	PostID          string
	Author          string
	Content         string
	Type            string
	StatusID        string
	ProfileImageURL string

	// RawData is the decoded remote payload stored at aggregation time.
	// Originals without raw data cannot be fingerprinted and collect no
	// satellites.
	RawData []byte

	// SocialItems are the retweet satellites attached by reconciliation.
	SocialItems []*StoredComment
}

// ReconciledComments is the render-ready grouping: originals annotated
// with their satellites, retweets of the outbound broadcast in their own
// bucket, and everything that matched nothing passed through unchanged.
type ReconciledComments struct {
	Originals         []*StoredComment
	BroadcastRetweets []*StoredComment
	Others            []*StoredComment
}

// ReconcileRetweets re-links stored retweet comments to the original
// tweets they retweet, using fingerprints instead of IDs and without any
// network round-trip. A retweet matching one of the post's own broadcast
// messages is grouped into the broadcast bucket rather than attached to a
// local comment. The input comments are not modified; originals are
// returned as copies with their satellites attached, so repeated calls
// over the same data are independent. Several replies can share a status
// ID (they all answer the same broadcast), so satellites resolve to the
// specific comment whose text matches, never to the shared status ID.
func ReconcileRetweets(post *Post, comments []*StoredComment) *ReconciledComments {
	out := &ReconciledComments{}

	broadcastHashes := make(map[string]bool)
	for _, byAccount := range post.BroadcastedIDs["twitter"] {
		for _, b := range byAccount {
			broadcastHashes[Fingerprint(b.Message, false)] = true
		}
	}

	byHash := make(map[string]*StoredComment)
	var candidates []*StoredComment

	for _, c := range comments {
		if isRetweetBody(c.Content) {
			candidates = append(candidates, c)
			continue
		}
		if c.StatusID == "" {
			out.Others = append(out.Others, c)
			continue
		}
		cp := *c
		cp.SocialItems = nil
		out.Originals = append(out.Originals, &cp)
		if len(c.RawData) == 0 {
			continue
		}
		if h := Fingerprint(c.Content, false); byHash[h] == nil {
			byHash[h] = &cp
		}
	}

	for _, c := range candidates {
		h := Fingerprint(c.Content, true)
		// An original comment with the same fingerprint wins over the
		// broadcast sentinel.
		if original := byHash[h]; original != nil {
			original.SocialItems = append(original.SocialItems, c)
			continue
		}
		if broadcastHashes[h] {
			out.BroadcastRetweets = append(out.BroadcastRetweets, c)
			continue
		}
		out.Others = append(out.Others, c)
	}
	return out
}

func isRetweetBody(content string) bool {
	return strings.HasPrefix(content, "RT @")
}
