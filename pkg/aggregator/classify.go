// Copyright 2024-2026 Aiku AI

package aggregator

import (
	"fmt"
	"strings"
)

// ErrorKind is the structured classification of a remote API response.
// Networks report these conditions as free-form text in otherwise
// successful-looking bodies, so classification is string matching against
// an enumerated sentinel table per service rather than status codes.
type ErrorKind int

const (
	ErrorNone ErrorKind = iota
	ErrorRateLimited
	ErrorDuplicateStatus
	ErrorDeauthorized
)

// responseSentinel maps one known response text to an ErrorKind. Exact
// takes precedence; Substring matches anywhere in the response.
type responseSentinel struct {
	Kind      ErrorKind
	Exact     string
	Substring string
}

var facebookSentinels = []responseSentinel{
	{Kind: ErrorRateLimited, Exact: "(#341) Feed action request limit reached"},
	{Kind: ErrorDuplicateStatus, Exact: "(#506) Duplicate status message"},
	{Kind: ErrorDeauthorized, Substring: "Error validating access token"},
}

var twitterSentinels = []responseSentinel{
	{Kind: ErrorRateLimited, Substring: "Rate limit exceeded"},
	{Kind: ErrorDuplicateStatus, Substring: "Status is a duplicate"},
	{Kind: ErrorDeauthorized, Substring: "Invalid / expired Token"},
}

// ClassifiedError is a broadcast failure matched against a service's
// sentinel table. The broadcasting subsystem uses the kind to suppress
// retries or prompt re-authorization.
type ClassifiedError struct {
	Kind     ErrorKind
	Response string
}

func (e *ClassifiedError) Error() string {
	switch e.Kind {
	case ErrorRateLimited:
		return fmt.Sprintf("rate limited: %s", e.Response)
	case ErrorDuplicateStatus:
		return fmt.Sprintf("duplicate broadcast: %s", e.Response)
	case ErrorDeauthorized:
		return fmt.Sprintf("account deauthorized: %s", e.Response)
	default:
		return e.Response
	}
}

// classifyResponse matches the response text against a sentinel table.
func classifyResponse(table []responseSentinel, response string) ErrorKind {
	for _, s := range table {
		if s.Exact != "" && response == s.Exact {
			return s.Kind
		}
		if s.Substring != "" && strings.Contains(response, s.Substring) {
			return s.Kind
		}
	}
	return ErrorNone
}
