// Copyright (C) 2025 Driftwood AI (dev@driftwood.sh)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package main

import (
	"context"
	"io"
	"net/http"
	"time"
)

// =============================================================================
// HTTPClient Interface
// =============================================================================

// HTTPClient abstracts HTTP operations for testability.
//
// # Description
//
// HTTPClient wraps the subset of http.Client behavior the CLI needs so unit
// tests can inject mock transports. All methods build context-aware requests,
// so cancelling the context aborts both the dial and any in-flight body read.
//
// # Outputs
//
// All methods return the raw *http.Response; the caller owns Body and must
// close it on every path, including error statuses.
//
// # Assumptions
//
//   - Callers close the response body
//   - Context cancellation is the cancellation mechanism; there is no
//     separate abort call
type HTTPClient interface {
	// Post sends a POST request with the given content type and body.
	Post(ctx context.Context, url, contentType string, body io.Reader) (*http.Response, error)

	// Get sends a GET request.
	Get(ctx context.Context, url string) (*http.Response, error)

	// Delete sends a DELETE request.
	Delete(ctx context.Context, url string) (*http.Response, error)
}

// =============================================================================
// Production Implementation
// =============================================================================

// defaultHTTPClient implements HTTPClient over net/http.
type defaultHTTPClient struct {
	client *http.Client
}

// newHTTPClient creates the production HTTP client.
//
// The timeout bounds the whole exchange including the streamed body read. A
// zero timeout means no limit, which is what the chat stream wants: answers
// can legitimately stream for minutes, and cancellation is handled through
// the request context instead.
func newHTTPClient(timeout time.Duration) *defaultHTTPClient {
	return &defaultHTTPClient{
		client: &http.Client{Timeout: timeout},
	}
}

func (c *defaultHTTPClient) Post(ctx context.Context, url, contentType string, body io.Reader) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, body)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", contentType)
	return c.client.Do(req)
}

func (c *defaultHTTPClient) Get(ctx context.Context, url string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	return c.client.Do(req)
}

func (c *defaultHTTPClient) Delete(ctx context.Context, url string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodDelete, url, nil)
	if err != nil {
		return nil, err
	}
	return c.client.Do(req)
}

var _ HTTPClient = (*defaultHTTPClient)(nil)
