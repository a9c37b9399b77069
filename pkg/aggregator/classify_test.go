// Copyright 2024-2026 Aiku AI

package aggregator

import "testing"

func TestClassifyResponse_Facebook(t *testing.T) {
	t.Parallel()
	tests := []struct {
		response string
		want     ErrorKind
	}{
		{"(#341) Feed action request limit reached", ErrorRateLimited},
		{"(#506) Duplicate status message", ErrorDuplicateStatus},
		{"OAuthException: Error validating access token: session expired", ErrorDeauthorized},
		{"(#341) Feed action request limit reached!", ErrorNone}, // exact match only
		{"everything is fine", ErrorNone},
	}
	for _, tt := range tests {
		if got := classifyResponse(facebookSentinels, tt.response); got != tt.want {
			t.Errorf("classifyResponse(%q): got %v, want %v", tt.response, got, tt.want)
		}
	}
}

func TestClassifyResponse_Twitter(t *testing.T) {
	t.Parallel()
	tests := []struct {
		response string
		want     ErrorKind
	}{
		{"Rate limit exceeded. Clients may not make more than 150 requests per hour.", ErrorRateLimited},
		{"Status is a duplicate.", ErrorDuplicateStatus},
		{"Invalid / expired Token", ErrorDeauthorized},
		{"ok", ErrorNone},
	}
	for _, tt := range tests {
		if got := classifyResponse(twitterSentinels, tt.response); got != tt.want {
			t.Errorf("classifyResponse(%q): got %v, want %v", tt.response, got, tt.want)
		}
	}
}

func TestClassifiedError_Messages(t *testing.T) {
	t.Parallel()
	e := &ClassifiedError{Kind: ErrorRateLimited, Response: "slow down"}
	if e.Error() != "rate limited: slow down" {
		t.Errorf("unexpected error text: %s", e.Error())
	}
	e = &ClassifiedError{Kind: ErrorDeauthorized, Response: "token gone"}
	if e.Error() != "account deauthorized: token gone" {
		t.Errorf("unexpected error text: %s", e.Error())
	}
}

func TestServicePredicates(t *testing.T) {
	t.Parallel()
	fb := NewFacebookService(nil, nil, nil, testConfig("", ""), testLogger())
	tw := NewTwitterService(nil, nil, nil, testConfig("", ""), testLogger())

	if !fb.LimitReached("(#341) Feed action request limit reached") {
		t.Error("facebook rate limit sentinel not recognized")
	}
	if !fb.DuplicateStatus("(#506) Duplicate status message") {
		t.Error("facebook duplicate sentinel not recognized")
	}
	if !fb.Deauthorized("Error validating access token") {
		t.Error("facebook deauthorized sentinel not recognized")
	}
	if fb.MaxBroadcastLength() != 400 || tw.MaxBroadcastLength() != 140 {
		t.Error("broadcast length limits wrong")
	}
	if !tw.LimitReached("Rate limit exceeded") || !tw.DuplicateStatus("Status is a duplicate.") {
		t.Error("twitter sentinels not recognized")
	}
	if fb.ResponseIDKey() != "id" || tw.ResponseIDKey() != "id_str" {
		t.Error("response ID keys wrong")
	}
	if fb.ShowFullComment("social-facebook-like") || !fb.ShowFullComment("social-facebook") {
		t.Error("facebook ShowFullComment wrong")
	}
	if tw.ShowFullComment("social-twitter-rt") || !tw.ShowFullComment("social-twitter") {
		t.Error("twitter ShowFullComment wrong")
	}
}
