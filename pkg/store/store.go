// Copyright 2024-2026 Aiku AI

// Package store provides a SQLite implementation of the aggregation
// engine's host collaborator interfaces: post metadata, comments with
// social metadata, account directory and the aggregation-log sink.
//
// Store is safe for concurrent use; the underlying sql.DB serializes
// access. Read-modify-write sequences (a post's aggregation pass) require
// the external one-pass-per-post guarantee the engine already documents.
package store

import (
	"context"
	"database/sql"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	_ "modernc.org/sqlite" // Pure-Go SQLite driver (no CGO required)

	"github.com/aiku/socialsync/pkg/aggregator"
)

// Store persists posts, comments and the aggregation ledger.
type Store struct {
	db *sql.DB

	// ModerateAll holds every incoming comment for moderation instead of
	// approving it.
	ModerateAll bool
}

var (
	_ aggregator.PostStore        = (*Store)(nil)
	_ aggregator.CommentStore     = (*Store)(nil)
	_ aggregator.AccountDirectory = (*Store)(nil)
	_ aggregator.LogSink          = (*Store)(nil)
)

// NewStore opens (and if needed creates) a SQLite store at the given path.
func NewStore(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to enable WAL mode: %w", err)
	}

	s := &Store{db: db}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}
	return s, nil
}

func (s *Store) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS posts (
		id TEXT PRIMARY KEY,
		author_id TEXT NOT NULL,
		permalink TEXT,
		shortlink TEXT,
		published_at DATETIME NOT NULL
	);

	CREATE TABLE IF NOT EXISTS broadcasted_ids (
		post_id TEXT NOT NULL,
		service TEXT NOT NULL,
		account_id TEXT NOT NULL,
		remote_id TEXT NOT NULL,
		message TEXT,
		position INTEGER NOT NULL,
		PRIMARY KEY (post_id, service, account_id, remote_id)
	);

	CREATE TABLE IF NOT EXISTS aggregated_ids (
		post_id TEXT NOT NULL,
		service TEXT NOT NULL,
		remote_id TEXT NOT NULL,
		PRIMARY KEY (post_id, service, remote_id)
	);

	CREATE TABLE IF NOT EXISTS accounts (
		service TEXT NOT NULL,
		account_id TEXT NOT NULL,
		username TEXT,
		token TEXT,
		PRIMARY KEY (service, account_id)
	);

	CREATE TABLE IF NOT EXISTS comments (
		id TEXT PRIMARY KEY,
		post_id TEXT NOT NULL,
		author TEXT,
		author_email TEXT,
		author_url TEXT,
		author_ip TEXT,
		agent TEXT,
		type TEXT,
		content TEXT,
		date_local DATETIME,
		date_gmt DATETIME,
		approved TEXT
	);
	CREATE INDEX IF NOT EXISTS idx_comments_post ON comments(post_id);

	CREATE TABLE IF NOT EXISTS comment_meta (
		comment_id TEXT NOT NULL,
		meta_key TEXT NOT NULL,
		meta_value TEXT,
		PRIMARY KEY (comment_id, meta_key)
	);

	CREATE TABLE IF NOT EXISTS aggregation_log (
		id TEXT PRIMARY KEY,
		post_id TEXT NOT NULL,
		service TEXT NOT NULL,
		remote_id TEXT NOT NULL,
		method TEXT NOT NULL,
		is_duplicate INTEGER NOT NULL,
		extra_json TEXT,
		logged_at DATETIME NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_log_post ON aggregation_log(post_id);

	CREATE TABLE IF NOT EXISTS notifications (
		id TEXT PRIMARY KEY,
		comment_id TEXT NOT NULL,
		kind TEXT NOT NULL,
		comment_type TEXT,
		created_at DATETIME NOT NULL
	);
	`
	_, err := s.db.Exec(schema)
	return err
}

// Close releases the database handle.
func (s *Store) Close() error {
	return s.db.Close()
}

// CreatePost inserts a post record.
func (s *Store) CreatePost(ctx context.Context, post *aggregator.Post, publishedAt time.Time) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO posts (id, author_id, permalink, shortlink, published_at) VALUES (?, ?, ?, ?, ?)`,
		post.ID, post.AuthorID, post.Permalink, post.Shortlink, publishedAt.UTC())
	if err != nil {
		return fmt.Errorf("failed to insert post: %w", err)
	}
	return nil
}

// AddBroadcastedID records one outbound broadcast of a post. Broadcast
// records are immutable once written.
func (s *Store) AddBroadcastedID(ctx context.Context, postID, service, accountID, remoteID, message string) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO broadcasted_ids (post_id, service, account_id, remote_id, message, position)
		 VALUES (?, ?, ?, ?, ?,
		   (SELECT COALESCE(MAX(position), -1) + 1 FROM broadcasted_ids
		     WHERE post_id = ? AND service = ? AND account_id = ?))`,
		postID, service, accountID, remoteID, message, postID, service, accountID)
	if err != nil {
		return fmt.Errorf("failed to insert broadcasted id: %w", err)
	}
	return nil
}

// GetPost loads a post with its broadcasted and aggregated ID maps.
func (s *Store) GetPost(ctx context.Context, postID string) (*aggregator.Post, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, author_id, COALESCE(permalink, ''), COALESCE(shortlink, '') FROM posts WHERE id = ?`, postID)

	post := aggregator.NewPost("", "", "")
	if err := row.Scan(&post.ID, &post.AuthorID, &post.Permalink, &post.Shortlink); err != nil {
		return nil, fmt.Errorf("failed to load post %s: %w", postID, err)
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT service, account_id, remote_id, COALESCE(message, '')
		   FROM broadcasted_ids WHERE post_id = ? ORDER BY position`, postID)
	if err != nil {
		return nil, fmt.Errorf("failed to load broadcasted ids: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var service, accountID, remoteID, message string
		if err := rows.Scan(&service, &accountID, &remoteID, &message); err != nil {
			return nil, fmt.Errorf("failed to scan broadcasted id: %w", err)
		}
		if post.BroadcastedIDs[service] == nil {
			post.BroadcastedIDs[service] = make(map[string][]aggregator.BroadcastedID)
		}
		post.BroadcastedIDs[service][accountID] = append(post.BroadcastedIDs[service][accountID],
			aggregator.BroadcastedID{RemoteID: remoteID, Message: message})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate broadcasted ids: %w", err)
	}

	aggRows, err := s.db.QueryContext(ctx,
		`SELECT service, remote_id FROM aggregated_ids WHERE post_id = ? ORDER BY rowid`, postID)
	if err != nil {
		return nil, fmt.Errorf("failed to load aggregated ids: %w", err)
	}
	defer aggRows.Close()
	for aggRows.Next() {
		var service, remoteID string
		if err := aggRows.Scan(&service, &remoteID); err != nil {
			return nil, fmt.Errorf("failed to scan aggregated id: %w", err)
		}
		post.AggregatedIDs[service] = append(post.AggregatedIDs[service], remoteID)
	}
	if err := aggRows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate aggregated ids: %w", err)
	}

	return post, nil
}

// SaveAggregatedIDs persists the post's aggregated ID set. Already-known
// IDs are left untouched, keeping the set append-only.
func (s *Store) SaveAggregatedIDs(ctx context.Context, post *aggregator.Post) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	for service, ids := range post.AggregatedIDs {
		for _, remoteID := range ids {
			if _, err := tx.ExecContext(ctx,
				`INSERT OR IGNORE INTO aggregated_ids (post_id, service, remote_id) VALUES (?, ?, ?)`,
				post.ID, service, remoteID); err != nil {
				return fmt.Errorf("failed to insert aggregated id: %w", err)
			}
		}
	}
	return tx.Commit()
}

// DueForAggregation returns posts published after the cutoff, oldest first.
func (s *Store) DueForAggregation(ctx context.Context, publishedAfter time.Time) ([]string, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id FROM posts WHERE published_at > ? ORDER BY published_at`, publishedAfter.UTC())
	if err != nil {
		return nil, fmt.Errorf("failed to list due posts: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan post id: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// AddAccount registers a social account for aggregation.
func (s *Store) AddAccount(ctx context.Context, service string, account *aggregator.Account) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT OR REPLACE INTO accounts (service, account_id, username, token) VALUES (?, ?, ?, ?)`,
		service, account.ID, account.Username, account.Token)
	if err != nil {
		return fmt.Errorf("failed to insert account: %w", err)
	}
	return nil
}

// AggregationAccounts returns every account authorized for the service.
func (s *Store) AggregationAccounts(ctx context.Context, _ *aggregator.Post, service string) ([]*aggregator.Account, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT account_id, COALESCE(username, ''), COALESCE(token, '') FROM accounts WHERE service = ? ORDER BY account_id`,
		service)
	if err != nil {
		return nil, fmt.Errorf("failed to list accounts: %w", err)
	}
	defer rows.Close()

	var accounts []*aggregator.Account
	for rows.Next() {
		a := &aggregator.Account{}
		if err := rows.Scan(&a.ID, &a.Username, &a.Token); err != nil {
			return nil, fmt.Errorf("failed to scan account: %w", err)
		}
		accounts = append(accounts, a)
	}
	return accounts, rows.Err()
}

// AllowComment applies the stand-in moderation policy: an identical
// comment from the same author on the same post is spam, and ModerateAll
// holds everything else for review.
func (s *Store) AllowComment(ctx context.Context, c *aggregator.CommentData) (string, error) {
	var n int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM comments WHERE post_id = ? AND author_email = ? AND content = ?`,
		c.PostID, c.AuthorEmail, c.Content).Scan(&n)
	if err != nil {
		return "", fmt.Errorf("failed to check for duplicate comment: %w", err)
	}
	if n > 0 {
		return aggregator.CommentSpam, nil
	}
	if s.ModerateAll {
		return aggregator.CommentHeld, nil
	}
	return aggregator.CommentApproved, nil
}

// InsertComment persists the comment and returns its generated ID.
func (s *Store) InsertComment(ctx context.Context, c *aggregator.CommentData) (string, error) {
	id := uuid.NewString()
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO comments (id, post_id, author, author_email, author_url, author_ip, agent, type, content, date_local, date_gmt, approved)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		id, c.PostID, c.Author, c.AuthorEmail, c.AuthorURL, c.AuthorIP, c.Agent, c.Type, c.Content, c.Date, c.DateGMT, c.Approved)
	if err != nil {
		return "", fmt.Errorf("failed to insert comment: %w", err)
	}
	return id, nil
}

// AttachMeta stores a metadata key/value pair on a comment, replacing any
// prior value for the key.
func (s *Store) AttachMeta(ctx context.Context, commentID, key, value string) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT OR REPLACE INTO comment_meta (comment_id, meta_key, meta_value) VALUES (?, ?, ?)`,
		commentID, key, value)
	if err != nil {
		return fmt.Errorf("failed to attach comment meta: %w", err)
	}
	return nil
}

// NotifyModerator records a moderation notification. Delivery is the host
// CMS's concern; this store only queues the record.
func (s *Store) NotifyModerator(ctx context.Context, commentID string) error {
	return s.insertNotification(ctx, commentID, "moderator", "")
}

// NotifyAuthor records a post-author notification.
func (s *Store) NotifyAuthor(ctx context.Context, commentID, commentType string) error {
	return s.insertNotification(ctx, commentID, "author", commentType)
}

func (s *Store) insertNotification(ctx context.Context, commentID, kind, commentType string) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO notifications (id, comment_id, kind, comment_type, created_at) VALUES (?, ?, ?, ?, ?)`,
		uuid.NewString(), commentID, kind, commentType, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("failed to insert notification: %w", err)
	}
	return nil
}

// WriteEntry persists one aggregation ledger entry.
func (s *Store) WriteEntry(ctx context.Context, e *aggregator.Entry) error {
	var extraJSON []byte
	if len(e.Extra) > 0 {
		var err error
		extraJSON, err = json.Marshal(e.Extra)
		if err != nil {
			return fmt.Errorf("failed to marshal entry extra data: %w", err)
		}
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO aggregation_log (id, post_id, service, remote_id, method, is_duplicate, extra_json, logged_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		e.ID, e.PostID, e.Service, e.RemoteID, e.Method, boolToInt(e.IsDuplicate), string(extraJSON), e.LoggedAt)
	if err != nil {
		return fmt.Errorf("failed to insert log entry: %w", err)
	}
	return nil
}

// ListComments returns the post's comments with social metadata resolved,
// oldest first, in the shape the reconciler consumes.
func (s *Store) ListComments(ctx context.Context, postID string) ([]*aggregator.StoredComment, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, post_id, COALESCE(author, ''), COALESCE(content, ''), COALESCE(type, '')
		   FROM comments WHERE post_id = ? ORDER BY date_gmt, id`, postID)
	if err != nil {
		return nil, fmt.Errorf("failed to list comments: %w", err)
	}
	defer rows.Close()

	var comments []*aggregator.StoredComment
	byID := make(map[string]*aggregator.StoredComment)
	for rows.Next() {
		c := &aggregator.StoredComment{}
		if err := rows.Scan(&c.ID, &c.PostID, &c.Author, &c.Content, &c.Type); err != nil {
			return nil, fmt.Errorf("failed to scan comment: %w", err)
		}
		comments = append(comments, c)
		byID[c.ID] = c
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate comments: %w", err)
	}
	if len(comments) == 0 {
		return nil, nil
	}

	metaRows, err := s.db.QueryContext(ctx,
		`SELECT m.comment_id, m.meta_key, m.meta_value
		   FROM comment_meta m JOIN comments c ON c.id = m.comment_id
		  WHERE c.post_id = ?`, postID)
	if err != nil {
		return nil, fmt.Errorf("failed to load comment meta: %w", err)
	}
	defer metaRows.Close()
	for metaRows.Next() {
		var commentID, key, value string
		if err := metaRows.Scan(&commentID, &key, &value); err != nil {
			return nil, fmt.Errorf("failed to scan comment meta: %w", err)
		}
		c, ok := byID[commentID]
		if !ok {
			continue
		}
		switch key {
		case "social_status_id":
			c.StatusID = value
		case "social_profile_image_url":
			c.ProfileImageURL = value
		case "social_raw_data":
			if raw, err := base64.StdEncoding.DecodeString(value); err == nil {
				c.RawData = raw
			}
		}
	}
	return comments, metaRows.Err()
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
