// Copyright 2024-2026 Aiku AI

package aggregator

import (
	"hash/fnv"
	"regexp"
	"strconv"
	"strings"
)

var mentionToken = regexp.MustCompile(`@[\w_]+:`)

// Fingerprint computes a decoration-insensitive content hash for matching
// a locally stored comment against a remote item when no ID match exists.
//
// Tokens containing URLs are always dropped, since shortened links vary per
// copy of the same message. In retweet mode a leading RT token and @name:
// mention tokens are dropped as well, so "RT @bob: hello world" and the
// broadcast "hello world" hash identically.
func Fingerprint(text string, retweet bool) string {
	var b strings.Builder
	for _, token := range strings.Fields(text) {
		if strings.Contains(token, "http://") || strings.Contains(token, "https://") {
			continue
		}
		if retweet && (token == "RT" || mentionToken.MatchString(token)) {
			continue
		}
		b.WriteString(token)
		b.WriteByte(' ')
	}

	h := fnv.New64a()
	h.Write([]byte(strings.TrimSpace(b.String())))
	return strconv.FormatUint(h.Sum64(), 16)
}
