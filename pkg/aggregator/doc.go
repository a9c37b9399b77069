// Copyright 2024-2026 Aiku AI

// Package aggregator reconciles remote social network engagement into a
// site's local comment stream.
//
// The engine runs one aggregation pass per post: it collects candidate
// remote items (replies, likes, retweets, URL search matches) from each
// configured network, decides which items are genuinely new, and persists
// the net-new items as local comments with correct authorship, timestamps
// and threading metadata. Two append-only logs converge here: the site's
// comment log and the remote activity feed. A remote item is converted into
// a comment at most once, ever.
//
// # Core Types
//
// [Service] is implemented once per network (Facebook, Twitter). Each
// implementation collects candidates by URL search and by API traversal,
// classifies them against the post's aggregation state, and drains the
// staged results into comments via the host collaborators.
//
// [AggregationLog] is the append-only audit ledger for a single post's
// pass. Every duplicate hit and every newly discovered item is recorded;
// ledger write failures never fail the pass.
//
// [Engine] orchestrates a pass and [Scheduler] drives passes on a timer,
// paced by a rate limiter. The scheduler runs one pass at a time; the
// engine itself has no internal locking and relies on the caller never
// running the same post's pass concurrently.
//
// # Echo Exclusion
//
// A remote item whose ID matches one of the post's own broadcasted IDs is
// the reflection of the site's outbound broadcast, not inbound engagement.
// Such echoes are skipped silently: they are never staged, never turned
// into comments, and never written to the ledger. This layer must not be
// removed; without it every broadcast would reappear as a self-comment on
// the next pass.
//
// # Host Collaborators
//
// The content-management system's comment storage, post metadata and
// account directory are consumed through the interfaces in host.go. The
// sibling package store provides a SQLite implementation for standalone
// deployments and tests.
package aggregator
