// Copyright 2024-2026 Aiku AI

package aggregator

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// Transport issues requests against a social network's API. Implementations
// return the raw response body; callers decode it fail-soft, treating
// missing fields as "no data".
type Transport interface {
	Get(ctx context.Context, url string) ([]byte, error)
	PostForm(ctx context.Context, url string, form url.Values) ([]byte, error)
}

// StatusError is returned alongside the body for non-2xx responses so the
// caller can still run the per-service sentinel classifiers on the error
// text.
type StatusError struct {
	Code int
	Body string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("unexpected status %d: %s", e.Code, e.Body)
}

type httpTransport struct {
	client *http.Client
}

// NewTransport creates an HTTP transport with a per-call timeout. Timeouts
// surface as transport failures, which aggregation treats as non-fatal.
func NewTransport(timeout time.Duration) Transport {
	return &httpTransport{
		client: &http.Client{Timeout: timeout},
	}
}

func (t *httpTransport) Get(ctx context.Context, reqURL string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build request: %w", err)
	}
	return t.do(req)
}

func (t *httpTransport) PostForm(ctx context.Context, reqURL string, form url.Values) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, reqURL, strings.NewReader(form.Encode()))
	if err != nil {
		return nil, fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	return t.do(req)
}

func (t *httpTransport) do(req *http.Request) ([]byte, error) {
	resp, err := t.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 10<<20))
	if err != nil {
		return nil, fmt.Errorf("failed to read response body: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return body, &StatusError{Code: resp.StatusCode, Body: string(body)}
	}
	return body, nil
}
