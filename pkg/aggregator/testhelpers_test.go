// Copyright 2024-2026 Aiku AI

package aggregator

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync"

	"github.com/rs/zerolog"
)

func testLogger() zerolog.Logger {
	return zerolog.Nop()
}

// insertedComment pairs a stored comment with its assigned ID.
type insertedComment struct {
	ID      string
	Comment CommentData
}

// mockCommentStore captures inserted comments, metadata and notifications
// for test assertions. Moderation results come from AllowFunc; the default
// approves everything and classifies exact author+content repeats as spam,
// mirroring the host CMS's duplicate check.
type mockCommentStore struct {
	mu            sync.Mutex
	inserted      []insertedComment
	meta          map[string]map[string]string
	moderatorized []string
	authorized    []string

	AllowFunc  func(c *CommentData) string
	InsertErr  error
	seenBodies map[string]bool
}

func newMockCommentStore() *mockCommentStore {
	return &mockCommentStore{
		meta:       make(map[string]map[string]string),
		seenBodies: make(map[string]bool),
	}
}

func (m *mockCommentStore) AllowComment(_ context.Context, c *CommentData) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.AllowFunc != nil {
		return m.AllowFunc(c), nil
	}
	key := c.AuthorEmail + "\x00" + c.Content
	if m.seenBodies[key] {
		return CommentSpam, nil
	}
	m.seenBodies[key] = true
	return CommentApproved, nil
}

func (m *mockCommentStore) InsertComment(_ context.Context, c *CommentData) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.InsertErr != nil {
		return "", m.InsertErr
	}
	id := "comment-" + strconv.Itoa(len(m.inserted)+1)
	m.inserted = append(m.inserted, insertedComment{ID: id, Comment: *c})
	return id, nil
}

func (m *mockCommentStore) AttachMeta(_ context.Context, commentID, key, value string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.meta[commentID] == nil {
		m.meta[commentID] = make(map[string]string)
	}
	m.meta[commentID][key] = value
	return nil
}

func (m *mockCommentStore) NotifyModerator(_ context.Context, commentID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.moderatorized = append(m.moderatorized, commentID)
	return nil
}

func (m *mockCommentStore) NotifyAuthor(_ context.Context, commentID, _ string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.authorized = append(m.authorized, commentID)
	return nil
}

func (m *mockCommentStore) Inserted() []insertedComment {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := make([]insertedComment, len(m.inserted))
	copy(cp, m.inserted)
	return cp
}

func (m *mockCommentStore) Meta(commentID string) map[string]string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.meta[commentID]
}

// staticAccounts returns a fixed account list for every post.
type staticAccounts struct {
	accounts []*Account
	err      error
}

func (s *staticAccounts) AggregationAccounts(context.Context, *Post, string) ([]*Account, error) {
	return s.accounts, s.err
}

// failingSink always fails, for verifying ledger writes never propagate.
type failingSink struct{ writes int }

func (f *failingSink) WriteEntry(context.Context, *Entry) error {
	f.writes++
	return errors.New("sink unavailable")
}

// fakeGraph simulates the Facebook Graph API over httptest.
type fakeGraph struct {
	Server *httptest.Server

	mu sync.Mutex
	// SearchResults are returned under data for /search requests.
	SearchResults []map[string]any
	// Comments maps story ID to the comment list under /<story>/comments.
	Comments map[string][]map[string]any
	// LikePages maps story ID to like pages served in order; each page
	// except the last carries a paging.next cursor.
	LikePages map[string][][]map[string]any
	// Profiles maps user ID to the profile object under /<user>.
	Profiles map[string]map[string]any
	// FailPaths causes matching path prefixes to return 500.
	FailPaths map[string]bool

	calls []string
}

func newFakeGraph() *fakeGraph {
	f := &fakeGraph{
		Comments:  make(map[string][]map[string]any),
		LikePages: make(map[string][][]map[string]any),
		Profiles:  make(map[string]map[string]any),
		FailPaths: make(map[string]bool),
	}
	f.Server = httptest.NewServer(http.HandlerFunc(f.handler))
	return f
}

func (f *fakeGraph) Close() { f.Server.Close() }

func (f *fakeGraph) Calls() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	cp := make([]string, len(f.calls))
	copy(cp, f.calls)
	return cp
}

func (f *fakeGraph) handler(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	f.calls = append(f.calls, r.URL.Path)
	for prefix := range f.FailPaths {
		if strings.HasPrefix(r.URL.Path, prefix) {
			f.mu.Unlock()
			http.Error(w, `{"error":{"message":"internal error"}}`, http.StatusInternalServerError)
			return
		}
	}
	f.mu.Unlock()

	switch {
	case r.URL.Path == "/search":
		writeJSON(w, map[string]any{"data": f.SearchResults})
	case strings.HasSuffix(r.URL.Path, "/comments"):
		story := strings.TrimSuffix(strings.TrimPrefix(r.URL.Path, "/"), "/comments")
		writeJSON(w, map[string]any{"data": f.Comments[story]})
	case strings.HasSuffix(r.URL.Path, "/likes"):
		story := strings.TrimSuffix(strings.TrimPrefix(r.URL.Path, "/"), "/likes")
		page, _ := strconv.Atoi(r.URL.Query().Get("page"))
		pages := f.LikePages[story]
		if page >= len(pages) {
			writeJSON(w, map[string]any{"data": []any{}})
			return
		}
		resp := map[string]any{"data": pages[page]}
		if page+1 < len(pages) {
			resp["paging"] = map[string]any{
				"next": fmt.Sprintf("%s/%s/likes?limit=100&page=%d", f.Server.URL, story, page+1),
			}
		}
		writeJSON(w, resp)
	default:
		userID := strings.TrimPrefix(r.URL.Path, "/")
		if profile, ok := f.Profiles[userID]; ok {
			writeJSON(w, profile)
			return
		}
		http.NotFound(w, r)
	}
}

// fakeTwitter simulates the Twitter REST and search APIs over httptest.
type fakeTwitter struct {
	Server *httptest.Server

	mu sync.Mutex
	// SearchResults are returned under results for /search.json.
	SearchResults []map[string]any
	// Mentions is the flat timeline returned for /statuses/mentions.json.
	Mentions []map[string]any
	// Retweets maps tweet ID to /statuses/retweets/<id>.json responses.
	Retweets map[string][]map[string]any
	// Profiles maps user ID to /users/show.json responses.
	Profiles map[string]map[string]any
	// BroadcastResponse is returned for /statuses/update.json.
	BroadcastResponse map[string]any
	BroadcastStatus   int
}

func newFakeTwitter() *fakeTwitter {
	f := &fakeTwitter{
		Retweets: make(map[string][]map[string]any),
		Profiles: make(map[string]map[string]any),
	}
	f.Server = httptest.NewServer(http.HandlerFunc(f.handler))
	return f
}

func (f *fakeTwitter) Close() { f.Server.Close() }

func (f *fakeTwitter) handler(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()

	switch {
	case r.URL.Path == "/search.json":
		writeJSON(w, map[string]any{"results": f.SearchResults})
	case r.URL.Path == "/statuses/mentions.json":
		writeJSON(w, f.Mentions)
	case strings.HasPrefix(r.URL.Path, "/statuses/retweets/"):
		id := strings.TrimSuffix(strings.TrimPrefix(r.URL.Path, "/statuses/retweets/"), ".json")
		writeJSON(w, f.Retweets[id])
	case r.URL.Path == "/users/show.json":
		if profile, ok := f.Profiles[r.URL.Query().Get("user_id")]; ok {
			writeJSON(w, profile)
			return
		}
		http.NotFound(w, r)
	case r.URL.Path == "/statuses/update.json":
		if f.BroadcastStatus != 0 {
			w.WriteHeader(f.BroadcastStatus)
		}
		writeJSON(w, f.BroadcastResponse)
	default:
		http.NotFound(w, r)
	}
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}

// testConfig builds a config pointed at the given fake endpoints.
func testConfig(graphURL, twitterURL string) *Config {
	cfg := &Config{
		CommentsNotify: true,
		ServerIP:       "203.0.113.7",
		Facebook:       FacebookConfig{GraphURL: graphURL},
		Twitter:        TwitterConfig{APIURL: twitterURL, SearchURL: twitterURL},
	}
	if err := cfg.PostProcess(); err != nil {
		panic(err)
	}
	return cfg
}

// testPost builds a post with one Facebook and one Twitter broadcast.
func testPost() *Post {
	post := NewPost("post-1", "author-9", "http://example.com/?p=1")
	post.Shortlink = ""
	post.BroadcastedIDs["facebook"] = map[string][]BroadcastedID{
		"fb-acct": {{RemoteID: "111_222", Message: "New post is up"}},
	}
	post.BroadcastedIDs["twitter"] = map[string][]BroadcastedID{
		"tw-acct": {{RemoteID: "900", Message: "New post is up http://ex.am/1"}},
	}
	return post
}
