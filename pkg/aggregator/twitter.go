// Copyright 2024-2026 Aiku AI

package aggregator

import (
	"context"
	"fmt"
	"net/url"
	"time"

	"github.com/rs/zerolog"
	"github.com/tidwall/gjson"
)

// TwitterService aggregates Twitter engagement: tweet matches by URL
// search, replies to every broadcast via the mentions timeline, and
// retweets of the broadcast as satellite items.
type TwitterService struct {
	baseService
}

var _ Service = (*TwitterService)(nil)

// NewTwitterService creates the Twitter aggregator.
func NewTwitterService(transport Transport, comments CommentStore, accounts AccountDirectory, cfg *Config, log zerolog.Logger) *TwitterService {
	return &TwitterService{
		baseService: baseService{
			key:       "twitter",
			transport: transport,
			comments:  comments,
			accounts:  accounts,
			cfg:       cfg,
			log:       log.With().Str("component", "twitter").Logger(),
		},
	}
}

func (s *TwitterService) Key() string { return s.key }

// Broadcast posts a status update and returns the tweet ID. Sentinel
// responses are classified into structured error kinds.
func (s *TwitterService) Broadcast(ctx context.Context, account *Account, message string) (string, error) {
	form := url.Values{}
	form.Set("status", message)
	form.Set("access_token", account.Token)

	body, err := s.transport.PostForm(ctx, s.cfg.Twitter.APIURL+"/statuses/update.json", form)
	if err != nil {
		if kind := classifyResponse(twitterSentinels, twitterError(body)); kind != ErrorNone {
			return "", &ClassifiedError{Kind: kind, Response: twitterError(body)}
		}
		return "", fmt.Errorf("twitter broadcast failed: %w", err)
	}

	id := gjson.GetBytes(body, s.ResponseIDKey()).String()
	if id == "" {
		return "", fmt.Errorf("twitter broadcast response missing %s", s.ResponseIDKey())
	}
	return id, nil
}

// AggregateByURL searches Twitter for tweets referencing each URL and
// stages the genuinely new matches.
func (s *TwitterService) AggregateByURL(ctx context.Context, post *Post, alog *AggregationLog, urls []string) {
	for _, u := range urls {
		if u == "" {
			continue
		}
		query := s.cfg.Twitter.SearchURL + "/search.json?q=" + url.QueryEscape(u)
		s.log.Info().Str("post_id", post.ID).Str("query", query).Msg("Searching for tweets by URL")

		body, err := s.transport.Get(ctx, query)
		if err != nil {
			s.log.Warn().Err(err).Str("post_id", post.ID).Str("url", u).Msg("URL search failed")
			continue
		}

		for _, result := range gjson.GetBytes(body, "results").Array() {
			item := twitterSearchItem(result)
			if item == nil {
				continue
			}
			s.recordCandidate(post, alog, item, MethodURL, nil)
		}
	}
}

// AggregateByAPI walks every broadcast of the post under every authorized
// account: replies come from the mentions timeline scoped to the
// broadcast, retweets from the retweets endpoint. If any retweets were
// found, one synthetic ledger entry carries the total.
func (s *TwitterService) AggregateByAPI(ctx context.Context, post *Post, alog *AggregationLog) {
	accounts, err := s.accounts.AggregationAccounts(ctx, post, s.key)
	if err != nil {
		s.log.Warn().Err(err).Str("post_id", post.ID).Msg("Failed to resolve aggregation accounts")
		return
	}

	retweetTotal := 0
	for _, account := range accounts {
		for _, broadcast := range post.BroadcastedIDs[s.key][account.ID] {
			reqURL := s.cfg.Twitter.APIURL + "/statuses/mentions.json?since_id=" + url.QueryEscape(broadcast.RemoteID) +
				"&access_token=" + url.QueryEscape(account.Token)
			body, err := s.transport.Get(ctx, reqURL)
			if err != nil {
				s.log.Warn().Err(err).
					Str("post_id", post.ID).
					Str("broadcast_id", broadcast.RemoteID).
					Msg("Mentions fetch failed")
			} else {
				for _, result := range gjson.ParseBytes(body).Array() {
					if result.Get("in_reply_to_status_id_str").String() != broadcast.RemoteID {
						continue
					}
					item := twitterItem(result)
					if item == nil {
						continue
					}
					item.StatusID = broadcast.RemoteID
					s.recordCandidate(post, alog, item, MethodReply, nil)
				}
			}

			retweetTotal += s.searchForRetweets(ctx, post, account, broadcast.RemoteID)
		}
	}

	if retweetTotal > 0 {
		alog.Add(s.key, fmt.Sprintf("%s%d", post.ID, time.Now().Unix()), MethodLike, false, map[string]any{"total": retweetTotal})
	}
}

// searchForRetweets stages retweets of one broadcast as satellite items.
// Retweets dedup only against the pass's working set; their full text is
// kept so render-time reconciliation can fingerprint them.
func (s *TwitterService) searchForRetweets(ctx context.Context, post *Post, account *Account, tweetID string) int {
	reqURL := s.cfg.Twitter.APIURL + "/statuses/retweets/" + url.PathEscape(tweetID) + ".json?count=100" +
		"&access_token=" + url.QueryEscape(account.Token)
	body, err := s.transport.Get(ctx, reqURL)
	if err != nil {
		s.log.Warn().Err(err).Str("post_id", post.ID).Str("tweet_id", tweetID).Msg("Retweet fetch failed")
		return 0
	}

	count := 0
	for _, result := range gjson.ParseBytes(body).Array() {
		id := result.Get("id_str").String()
		if id == "" || post.HasResult(s.key, id) {
			continue
		}
		item := twitterItem(result)
		if item == nil {
			continue
		}
		item.Like = true
		item.StatusID = tweetID
		post.StageResult(s.key, item)
		count++
	}
	return count
}

// SaveAggregatedComments drains the staged working set into comments.
// Replies resolve the author profile with one extra lookup; retweet
// satellites use the payload data directly.
func (s *TwitterService) SaveAggregatedComments(ctx context.Context, post *Post) {
	for _, item := range post.StagedResults(s.key) {
		c := &CommentData{
			PostID:   post.ID,
			AuthorIP: s.cfg.ServerIP,
			Agent:    "Social Aggregator",
			Content:  item.Message,
			Date:     item.CreatedAt.UTC().Add(s.cfg.UTCOffset()),
			DateGMT:  item.CreatedAt.UTC(),
		}

		if !item.Like {
			screenName, imageURL := s.lookupProfile(ctx, item.AuthorID)
			if screenName == "" {
				screenName = item.AuthorName
			}
			c.Type = "social-" + s.key
			c.Author = screenName
			c.AuthorURL = "http://twitter.com/" + screenName
			if imageURL != "" {
				c.AuthorURL = imageURL
			}
		} else {
			c.Type = "social-" + s.key + "-rt"
			c.Author = item.AuthorName
			c.AuthorURL = "http://twitter.com/" + item.AuthorName
		}
		c.AuthorEmail = s.key + "." + item.AuthorID + "@example.com"

		s.insertComment(ctx, post, item, c, item.AuthorID, s.profileImageURL(item))
	}
	post.ClearResults(s.key)
}

// lookupProfile fetches the screen name and avatar for a Twitter user ID.
func (s *TwitterService) lookupProfile(ctx context.Context, userID string) (screenName, imageURL string) {
	body, err := s.transport.Get(ctx, s.cfg.Twitter.APIURL+"/users/show.json?user_id="+url.QueryEscape(userID))
	if err != nil {
		s.log.Warn().Err(err).Str("user_id", userID).Msg("Profile lookup failed")
		return "", ""
	}
	return gjson.GetBytes(body, "screen_name").String(), gjson.GetBytes(body, "profile_image_url").String()
}

func (s *TwitterService) profileImageURL(item *RemoteItem) string {
	if img := gjson.GetBytes(item.Raw, "user.profile_image_url").String(); img != "" {
		return img
	}
	return gjson.GetBytes(item.Raw, "profile_image_url").String()
}

// AggregationRow renders the ledger summary for retweet entries.
func (s *TwitterService) AggregationRow(e *Entry) string {
	if e.Method == MethodLike {
		return fmt.Sprintf("Found %v additional retweets.", e.Extra["total"])
	}
	return ""
}

func (s *TwitterService) MaxBroadcastLength() int { return 140 }

func (s *TwitterService) LimitReached(response string) bool {
	return classifyResponse(twitterSentinels, response) == ErrorRateLimited
}

func (s *TwitterService) DuplicateStatus(response string) bool {
	return classifyResponse(twitterSentinels, response) == ErrorDuplicateStatus
}

func (s *TwitterService) Deauthorized(response string) bool {
	return classifyResponse(twitterSentinels, response) == ErrorDeauthorized
}

// StatusURL builds the permalink for a broadcasted tweet.
func (s *TwitterService) StatusURL(username, remoteID string) string {
	return "http://twitter.com/" + username + "/status/" + remoteID
}

func (s *TwitterService) ResponseIDKey() string { return "id_str" }

func (s *TwitterService) ShowFullComment(commentType string) bool {
	return commentType != "social-twitter-rt"
}

// twitterItem converts a REST API tweet into a RemoteItem.
func twitterItem(result gjson.Result) *RemoteItem {
	id := result.Get("id_str").String()
	if id == "" {
		return nil
	}
	return &RemoteItem{
		ID:         id,
		AuthorID:   result.Get("user.id_str").String(),
		AuthorName: result.Get("user.screen_name").String(),
		Message:    result.Get("text").String(),
		CreatedAt:  parseTwitterTime(result.Get("created_at").String()),
		Raw:        []byte(result.Raw),
	}
}

// twitterSearchItem converts a search API result, which flattens the user
// fields into the tweet object.
func twitterSearchItem(result gjson.Result) *RemoteItem {
	id := result.Get("id_str").String()
	if id == "" {
		return nil
	}
	return &RemoteItem{
		ID:         id,
		AuthorID:   result.Get("from_user_id_str").String(),
		AuthorName: result.Get("from_user").String(),
		Message:    result.Get("text").String(),
		CreatedAt:  parseTwitterTime(result.Get("created_at").String()),
		Raw:        []byte(result.Raw),
	}
}

// parseTwitterTime parses both the REST timeline format and the search API
// RFC 1123 variant. Unparseable values yield the zero time.
func parseTwitterTime(value string) time.Time {
	for _, layout := range []string{time.RubyDate, "Mon, 02 Jan 2006 15:04:05 -0700"} {
		if t, err := time.Parse(layout, value); err == nil {
			return t
		}
	}
	return time.Time{}
}

// twitterError pulls the error message out of a failed response body,
// falling back to the raw body text.
func twitterError(body []byte) string {
	if msg := gjson.GetBytes(body, "error").String(); msg != "" {
		return msg
	}
	return string(body)
}
