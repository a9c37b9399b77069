// Copyright 2024-2026 Aiku AI

package aggregator

import (
	"context"
	"errors"
	"testing"
	"time"
)

func newTwitterFixture(t *testing.T) (*TwitterService, *fakeTwitter, *mockCommentStore) {
	t.Helper()
	tw := newFakeTwitter()
	t.Cleanup(tw.Close)

	comments := newMockCommentStore()
	accounts := &staticAccounts{accounts: []*Account{{ID: "tw-acct", Username: "site", Token: "tok"}}}
	cfg := testConfig("", tw.Server.URL)
	svc := NewTwitterService(NewTransport(5*time.Second), comments, accounts, cfg, testLogger())
	return svc, tw, comments
}

func TestTwitterAggregateByURL(t *testing.T) {
	t.Parallel()
	svc, tw, _ := newTwitterFixture(t)
	tw.SearchResults = []map[string]any{
		{"id_str": "1001", "from_user_id_str": "u1", "from_user": "alice", "text": "interesting read http://example.com/?p=1"},
		{"id_str": "900", "from_user_id_str": "site-id", "from_user": "site", "text": "New post is up http://ex.am/1"},
	}

	post := testPost()
	alog := NewAggregationLog(post.ID, NopSink{}, testLogger())
	svc.AggregateByURL(context.Background(), post, alog, []string{post.Permalink})

	staged := post.StagedResults("twitter")
	if len(staged) != 1 {
		t.Fatalf("staged %d tweets, want 1", len(staged))
	}
	if staged[0].ID != "1001" {
		t.Errorf("staged wrong tweet: %q", staged[0].ID)
	}
	// The broadcast echo (900) is skipped without a ledger entry.
	if len(alog.Entries()) != 1 {
		t.Errorf("got %d ledger entries, want 1", len(alog.Entries()))
	}
}

func TestTwitterAggregateByAPI_RepliesScopedToBroadcast(t *testing.T) {
	t.Parallel()
	svc, tw, _ := newTwitterFixture(t)
	tw.Mentions = []map[string]any{
		{
			"id_str": "1002", "in_reply_to_status_id_str": "900",
			"user": map[string]any{"id_str": "u2", "screen_name": "bob"},
			"text": "@site great post", "created_at": "Mon Jun 06 10:00:00 +0000 2011",
		},
		{
			"id_str": "1003", "in_reply_to_status_id_str": "777",
			"user": map[string]any{"id_str": "u3", "screen_name": "carol"},
			"text": "@site unrelated mention",
		},
	}

	post := testPost()
	alog := NewAggregationLog(post.ID, NopSink{}, testLogger())
	svc.AggregateByAPI(context.Background(), post, alog)

	staged := post.StagedResults("twitter")
	if len(staged) != 1 {
		t.Fatalf("staged %d mentions, want 1 (only replies to the broadcast)", len(staged))
	}
	if staged[0].ID != "1002" || staged[0].StatusID != "900" {
		t.Errorf("reply not threaded to broadcast: %+v", staged[0])
	}
	if staged[0].CreatedAt.IsZero() {
		t.Error("timeline timestamp should parse")
	}
}

func TestTwitterAggregateByAPI_Retweets(t *testing.T) {
	t.Parallel()
	svc, tw, _ := newTwitterFixture(t)
	tw.Retweets["900"] = []map[string]any{
		{
			"id_str": "2001",
			"user":   map[string]any{"id_str": "u5", "screen_name": "dave"},
			"text":   "RT @site: New post is up http://t.co/x",
		},
		{
			"id_str": "2002",
			"user":   map[string]any{"id_str": "u6", "screen_name": "erin"},
			"text":   "RT @site: New post is up http://t.co/x",
		},
	}

	post := testPost()
	alog := NewAggregationLog(post.ID, NopSink{}, testLogger())
	svc.AggregateByAPI(context.Background(), post, alog)

	staged := post.StagedResults("twitter")
	if len(staged) != 2 {
		t.Fatalf("staged %d retweets, want 2", len(staged))
	}
	for _, item := range staged {
		if !item.Like || item.StatusID != "900" {
			t.Errorf("retweet satellite malformed: %+v", item)
		}
		if item.Message == "" {
			t.Error("retweet text must be kept for render-time reconciliation")
		}
	}

	likeEntries := 0
	for _, e := range alog.Entries() {
		if e.Method == MethodLike {
			likeEntries++
			if e.Extra["total"] != 2 {
				t.Errorf("retweet total = %v, want 2", e.Extra["total"])
			}
		}
	}
	if likeEntries != 1 {
		t.Errorf("want exactly one aggregate retweet entry, got %d", likeEntries)
	}
}

func TestTwitterSaveAggregatedComments(t *testing.T) {
	t.Parallel()
	svc, tw, comments := newTwitterFixture(t)
	tw.Profiles["u2"] = map[string]any{
		"id_str": "u2", "screen_name": "bob", "profile_image_url": "http://img.example/bob.png",
	}

	created := time.Date(2011, 6, 6, 10, 0, 0, 0, time.UTC)
	post := testPost()
	post.StageResult("twitter", &RemoteItem{
		ID: "1002", AuthorID: "u2", AuthorName: "bob-cached",
		Message: "@site great post", CreatedAt: created, StatusID: "900",
		Raw: []byte(`{"id_str":"1002","user":{"profile_image_url":"http://img.example/bob.png"}}`),
	})
	post.StageResult("twitter", &RemoteItem{
		ID: "2001", AuthorID: "u5", AuthorName: "dave", Like: true,
		Message: "RT @site: New post is up", CreatedAt: created, StatusID: "900",
	})

	svc.SaveAggregatedComments(context.Background(), post)

	inserted := comments.Inserted()
	if len(inserted) != 2 {
		t.Fatalf("inserted %d comments, want 2", len(inserted))
	}

	reply := inserted[0]
	if reply.Comment.Type != "social-twitter" || reply.Comment.Author != "bob" {
		t.Errorf("reply comment wrong: %+v", reply.Comment)
	}
	if reply.Comment.AuthorEmail != "twitter.u2@example.com" {
		t.Errorf("reply author email = %q", reply.Comment.AuthorEmail)
	}
	replyMeta := comments.Meta(reply.ID)
	if replyMeta["social_status_id"] != "900" {
		t.Errorf("reply should be threaded to the broadcast, meta %v", replyMeta)
	}
	if replyMeta["social_profile_image_url"] != "http://img.example/bob.png" {
		t.Errorf("profile image should come from the raw payload, got %q", replyMeta["social_profile_image_url"])
	}

	rt := inserted[1]
	if rt.Comment.Type != "social-twitter-rt" || rt.Comment.Author != "dave" {
		t.Errorf("retweet comment wrong: %+v", rt.Comment)
	}
	if rt.Comment.Content != "RT @site: New post is up" {
		t.Errorf("retweet body should be the full tweet text, got %q", rt.Comment.Content)
	}

	if len(post.StagedResults("twitter")) != 0 {
		t.Error("working set should be drained after save")
	}
}

func TestTwitterBroadcast(t *testing.T) {
	t.Parallel()
	svc, tw, _ := newTwitterFixture(t)
	tw.BroadcastResponse = map[string]any{"id_str": "3001"}

	id, err := svc.Broadcast(context.Background(), &Account{ID: "tw-acct", Token: "tok"}, "hello")
	if err != nil {
		t.Fatalf("Broadcast failed: %v", err)
	}
	if id != "3001" {
		t.Errorf("broadcast id = %q, want 3001", id)
	}
}

func TestTwitterBroadcast_DuplicateStatus(t *testing.T) {
	t.Parallel()
	svc, tw, _ := newTwitterFixture(t)
	tw.BroadcastStatus = 403
	tw.BroadcastResponse = map[string]any{"error": "Status is a duplicate."}

	_, err := svc.Broadcast(context.Background(), &Account{ID: "tw-acct", Token: "tok"}, "hello")
	var cerr *ClassifiedError
	if !errors.As(err, &cerr) {
		t.Fatalf("want ClassifiedError, got %v", err)
	}
	if cerr.Kind != ErrorDuplicateStatus {
		t.Errorf("error kind = %v, want duplicate status", cerr.Kind)
	}
}

func TestTwitterStatusURL(t *testing.T) {
	t.Parallel()
	svc := NewTwitterService(nil, nil, nil, testConfig("", ""), testLogger())
	got := svc.StatusURL("alice", "1001")
	if got != "http://twitter.com/alice/status/1001" {
		t.Errorf("StatusURL = %q", got)
	}
}

func TestTwitterAggregationRow(t *testing.T) {
	t.Parallel()
	svc := NewTwitterService(nil, nil, nil, testConfig("", ""), testLogger())
	row := svc.AggregationRow(&Entry{Method: MethodLike, Extra: map[string]any{"total": 3}})
	if row != "Found 3 additional retweets." {
		t.Errorf("aggregation row = %q", row)
	}
	if svc.AggregationRow(&Entry{Method: MethodURL}) != "" {
		t.Error("non-retweet entries should render empty")
	}
}

func TestParseTwitterTime(t *testing.T) {
	t.Parallel()
	if parseTwitterTime("Mon Jun 06 10:00:00 +0000 2011").IsZero() {
		t.Error("timeline format should parse")
	}
	if parseTwitterTime("Mon, 06 Jun 2011 10:00:00 +0000").IsZero() {
		t.Error("search format should parse")
	}
	if !parseTwitterTime("garbage").IsZero() {
		t.Error("unparseable input should yield the zero time")
	}
}
