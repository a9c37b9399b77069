// Copyright 2024-2026 Aiku AI

package aggregator

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/tidwall/gjson"
)

// FacebookService aggregates Facebook engagement: post matches by Graph
// URL search, comments on every broadcast, and likes via a bounded
// page-walk.
type FacebookService struct {
	baseService
}

var _ Service = (*FacebookService)(nil)

// NewFacebookService creates the Facebook aggregator.
func NewFacebookService(transport Transport, comments CommentStore, accounts AccountDirectory, cfg *Config, log zerolog.Logger) *FacebookService {
	return &FacebookService{
		baseService: baseService{
			key:       "facebook",
			transport: transport,
			comments:  comments,
			accounts:  accounts,
			cfg:       cfg,
			log:       log.With().Str("component", "facebook").Logger(),
		},
	}
}

func (s *FacebookService) Key() string { return s.key }

// Broadcast posts the message to the account's feed and returns the remote
// post ID. Sentinel responses are classified into structured error kinds.
func (s *FacebookService) Broadcast(ctx context.Context, account *Account, message string) (string, error) {
	form := url.Values{}
	form.Set("message", message)
	form.Set("access_token", account.Token)

	body, err := s.transport.PostForm(ctx, s.cfg.Facebook.GraphURL+"/"+account.ID+"/feed", form)
	if err != nil {
		if kind := classifyResponse(facebookSentinels, errorMessage(body)); kind != ErrorNone {
			return "", &ClassifiedError{Kind: kind, Response: errorMessage(body)}
		}
		return "", fmt.Errorf("facebook broadcast failed: %w", err)
	}

	id := gjson.GetBytes(body, s.ResponseIDKey()).String()
	if id == "" {
		return "", fmt.Errorf("facebook broadcast response missing %s", s.ResponseIDKey())
	}
	return id, nil
}

// AggregateByURL searches the Graph API for posts referencing each URL and
// stages the genuinely new matches. Search failures are logged and skipped;
// one bad URL never aborts the pass.
func (s *FacebookService) AggregateByURL(ctx context.Context, post *Post, alog *AggregationLog, urls []string) {
	for _, u := range urls {
		if u == "" {
			continue
		}
		query := s.cfg.Facebook.GraphURL + "/search?type=post&q=" + url.QueryEscape(u)
		s.log.Info().Str("post_id", post.ID).Str("query", query).Msg("Searching for posts by URL")

		body, err := s.transport.Get(ctx, query)
		if err != nil {
			s.log.Warn().Err(err).Str("post_id", post.ID).Str("url", u).Msg("URL search failed")
			continue
		}

		for _, result := range gjson.GetBytes(body, "data").Array() {
			item := facebookItem(result)
			if item == nil {
				continue
			}
			s.recordCandidate(post, alog, item, MethodURL, nil)
		}
	}
}

// AggregateByAPI walks every broadcast of the post under every authorized
// account, staging new comments (threaded to the broadcast they reply to)
// and new likes. If any likes were found, one synthetic ledger entry
// carries the total.
func (s *FacebookService) AggregateByAPI(ctx context.Context, post *Post, alog *AggregationLog) {
	accounts, err := s.accounts.AggregationAccounts(ctx, post, s.key)
	if err != nil {
		s.log.Warn().Err(err).Str("post_id", post.ID).Msg("Failed to resolve aggregation accounts")
		return
	}

	likeTotal := 0
	for _, account := range accounts {
		for _, broadcast := range post.BroadcastedIDs[s.key][account.ID] {
			pageID, storyID := splitCompositeID(broadcast.RemoteID)

			reqURL := s.cfg.Facebook.GraphURL + "/" + storyID + "/comments?access_token=" + url.QueryEscape(account.Token)
			body, err := s.transport.Get(ctx, reqURL)
			if err != nil {
				s.log.Warn().Err(err).
					Str("post_id", post.ID).
					Str("broadcast_id", broadcast.RemoteID).
					Msg("Comment fetch failed")
			} else {
				for _, result := range gjson.GetBytes(body, "data").Array() {
					item := facebookItem(result)
					if item == nil {
						continue
					}
					item.StatusID = broadcast.RemoteID
					item.ParentID = pageID
					s.recordCandidate(post, alog, item, MethodReply, map[string]any{"parent_id": pageID})
				}
			}

			likeTotal += s.searchForLikes(ctx, post, account, storyID)
		}
	}

	if likeTotal > 0 {
		alog.Add(s.key, fmt.Sprintf("%s%d", post.ID, time.Now().Unix()), MethodLike, false, map[string]any{"total": likeTotal})
	}
}

// searchForLikes walks the like pages for one broadcasted story. Likes
// dedup only against the pass's working set, never the ledger. The walk is
// bounded by the configured page limit.
func (s *FacebookService) searchForLikes(ctx context.Context, post *Post, account *Account, storyID string) int {
	count := 0
	pageURL := s.cfg.Facebook.GraphURL + "/" + storyID + "/likes?limit=100&access_token=" + url.QueryEscape(account.Token)

	for page := 0; ; page++ {
		if page >= s.cfg.LikePageLimit {
			s.log.Warn().
				Str("post_id", post.ID).
				Str("story_id", storyID).
				Int("pages", page).
				Msg("Like page limit reached, stopping walk")
			break
		}

		body, err := s.transport.Get(ctx, pageURL)
		if err != nil {
			s.log.Warn().Err(err).Str("post_id", post.ID).Str("story_id", storyID).Msg("Like fetch failed")
			break
		}

		for _, result := range gjson.GetBytes(body, "data").Array() {
			id := result.Get("id").String()
			if id == "" || post.HasResult(s.key, id) {
				continue
			}
			post.StageResult(s.key, &RemoteItem{
				ID:         id,
				AuthorID:   id,
				AuthorName: result.Get("name").String(),
				Like:       true,
				Raw:        []byte(result.Raw),
			})
			count++
		}

		next := gjson.GetBytes(body, "paging.next").String()
		if next == "" {
			break
		}
		pageURL = next
	}
	return count
}

// SaveAggregatedComments drains the staged working set into comments.
// Non-like items resolve the author profile with one extra lookup; likes
// use the liker's ID directly and a generated sentence body. The
// aggregated ID set is not touched here; membership was finalized during
// the aggregate passes.
func (s *FacebookService) SaveAggregatedComments(ctx context.Context, post *Post) {
	for _, item := range post.StagedResults(s.key) {
		c := &CommentData{
			PostID:   post.ID,
			AuthorIP: s.cfg.ServerIP,
			Agent:    "Social Aggregator",
		}

		userID := item.AuthorID
		if !item.Like {
			name, _ := s.lookupProfile(ctx, item.AuthorID)
			if name == "" {
				name = item.AuthorName
			}
			c.Type = "social-" + s.key
			c.Author = name
			c.AuthorURL = s.pictureURL(item.AuthorID)
			c.Content = item.Message
			c.Date = item.CreatedAt.UTC().Add(s.cfg.UTCOffset())
			c.DateGMT = item.CreatedAt.UTC()
		} else {
			profileURL := "http://facebook.com/profile.php?id=" + item.ID
			now := time.Now().UTC()
			c.Type = "social-" + s.key + "-like"
			c.Author = item.AuthorName
			c.AuthorURL = profileURL
			c.Content = fmt.Sprintf(`<a href="%s" target="_blank">%s</a> liked this on Facebook.`, profileURL, item.AuthorName)
			c.Date = now.Add(s.cfg.UTCOffset())
			c.DateGMT = now
		}
		c.AuthorEmail = s.key + "." + userID + "@example.com"

		s.insertComment(ctx, post, item, c, userID, s.pictureURL(userID))
	}
	post.ClearResults(s.key)
}

// lookupProfile fetches the public profile for a Graph user ID.
func (s *FacebookService) lookupProfile(ctx context.Context, userID string) (name string, err error) {
	body, err := s.transport.Get(ctx, s.cfg.Facebook.GraphURL+"/"+userID)
	if err != nil {
		s.log.Warn().Err(err).Str("user_id", userID).Msg("Profile lookup failed")
		return "", err
	}
	return gjson.GetBytes(body, "name").String(), nil
}

func (s *FacebookService) pictureURL(userID string) string {
	return s.cfg.Facebook.GraphURL + "/" + userID + "/picture"
}

// AggregationRow renders the ledger summary for like entries.
func (s *FacebookService) AggregationRow(e *Entry) string {
	if e.Method == MethodLike {
		return fmt.Sprintf("Found %v additional likes.", e.Extra["total"])
	}
	return ""
}

func (s *FacebookService) MaxBroadcastLength() int { return 400 }

func (s *FacebookService) LimitReached(response string) bool {
	return classifyResponse(facebookSentinels, response) == ErrorRateLimited
}

func (s *FacebookService) DuplicateStatus(response string) bool {
	return classifyResponse(facebookSentinels, response) == ErrorDuplicateStatus
}

func (s *FacebookService) Deauthorized(response string) bool {
	return classifyResponse(facebookSentinels, response) == ErrorDeauthorized
}

// StatusURL builds the permalink for a composite "page_story" post ID.
func (s *FacebookService) StatusURL(_ string, remoteID string) string {
	pageID, storyID := splitCompositeID(remoteID)
	return "http://facebook.com/permalink.php?story_fbid=" + storyID + "&id=" + pageID
}

func (s *FacebookService) ResponseIDKey() string { return "id" }

func (s *FacebookService) ShowFullComment(commentType string) bool {
	return commentType != "social-facebook-like"
}

// facebookItem converts one Graph API result into a RemoteItem. Missing
// fields are treated as no data; an item without an ID is dropped.
func facebookItem(result gjson.Result) *RemoteItem {
	id := result.Get("id").String()
	if id == "" {
		return nil
	}
	return &RemoteItem{
		ID:         id,
		AuthorID:   result.Get("from.id").String(),
		AuthorName: result.Get("from.name").String(),
		Message:    result.Get("message").String(),
		CreatedAt:  parseGraphTime(result.Get("created_time").String()),
		Raw:        []byte(result.Raw),
	}
}

// parseGraphTime parses Graph API timestamps, tolerating both the legacy
// numeric-offset format and RFC 3339. Unparseable values yield the zero
// time, which SaveAggregatedComments passes through unchanged.
func parseGraphTime(value string) time.Time {
	for _, layout := range []string{"2006-01-02T15:04:05-0700", time.RFC3339} {
		if t, err := time.Parse(layout, value); err == nil {
			return t
		}
	}
	return time.Time{}
}

// splitCompositeID splits a "page_story" Facebook post ID. IDs without an
// underscore are treated as the story half with an empty page.
func splitCompositeID(id string) (pageID, storyID string) {
	if i := strings.Index(id, "_"); i >= 0 {
		return id[:i], id[i+1:]
	}
	return "", id
}

// errorMessage pulls the Graph error message out of a failed response
// body, falling back to the raw body text.
func errorMessage(body []byte) string {
	if msg := gjson.GetBytes(body, "error.message").String(); msg != "" {
		return msg
	}
	return string(body)
}
