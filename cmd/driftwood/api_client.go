// Copyright (C) 2025 Driftwood AI (dev@driftwood.sh)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/driftwood-ai/driftwood/pkg/transcript"
)

// =============================================================================
// Server Datatypes
// =============================================================================

// SessionSummary is one entry of the server's session listing, most recent
// first.
type SessionSummary struct {
	ID    string `json:"id"`
	Title string `json:"title"`
	Date  string `json:"date"`
}

// sessionMessage is the wire form of one stored history message.
type sessionMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// FileInfo is one entry of the server's uploaded-document listing.
type FileInfo struct {
	Name string `json:"name"`
	Size int64  `json:"size"`
}

// =============================================================================
// APIClient
// =============================================================================

// APIClient talks to the server's non-streaming management endpoints:
// session listing, history, deletion, and document upload/list/delete.
//
// Concurrent session-list fetches are collapsed through singleflight, so the
// fire-and-forget refresh after a new session binding never stacks requests
// behind a slow server. The most recent listing is cached for the interactive
// loop's /sessions command.
type APIClient struct {
	http    HTTPClient
	baseURL string

	group    singleflight.Group
	mu       sync.Mutex
	sessions []SessionSummary
}

// NewAPIClient creates a client for the server's management endpoints.
func NewAPIClient(client HTTPClient, baseURL string) *APIClient {
	return &APIClient{http: client, baseURL: baseURL}
}

// ListSessions fetches the stored session listing, most recent first.
// Concurrent calls share one request.
func (c *APIClient) ListSessions(ctx context.Context) ([]SessionSummary, error) {
	v, err, _ := c.group.Do("sessions", func() (interface{}, error) {
		var sessions []SessionSummary
		if err := c.getJSON(ctx, "/api/sessions", &sessions); err != nil {
			return nil, err
		}
		c.mu.Lock()
		c.sessions = sessions
		c.mu.Unlock()
		return sessions, nil
	})
	if err != nil {
		return nil, err
	}
	return v.([]SessionSummary), nil
}

// CachedSessions returns the last fetched session listing, which may be
// empty if no fetch has succeeded yet.
func (c *APIClient) CachedSessions() []SessionSummary {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]SessionSummary, len(c.sessions))
	copy(out, c.sessions)
	return out
}

// RefreshSessionsAsync triggers a session-list refresh without blocking the
// caller. Used when a response binds a new session: the listing just gained
// an entry, but the stream must keep rendering while the list updates.
// Failures are logged and otherwise ignored; the next explicit listing
// recovers.
func (c *APIClient) RefreshSessionsAsync(requestID string) {
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if _, err := c.ListSessions(ctx); err != nil {
			slog.Debug("background session list refresh failed",
				"request_id", requestID,
				"error", err,
			)
			return
		}
		slog.Debug("session list refreshed", "request_id", requestID)
	}()
}

// SessionHistory fetches the ordered message history of a stored session,
// converted to transcript messages with all entries final.
func (c *APIClient) SessionHistory(ctx context.Context, sessionID string) ([]transcript.Message, error) {
	var wire []sessionMessage
	path := fmt.Sprintf("/api/sessions/%s/messages", url.PathEscape(sessionID))
	if err := c.getJSON(ctx, path, &wire); err != nil {
		return nil, err
	}

	messages := make([]transcript.Message, 0, len(wire))
	for _, m := range wire {
		role := transcript.RoleAssistant
		if m.Role == string(transcript.RoleUser) {
			role = transcript.RoleUser
		}
		messages = append(messages, transcript.Message{Role: role, Content: m.Content})
	}
	return messages, nil
}

// DeleteSession removes a stored session server-side.
func (c *APIClient) DeleteSession(ctx context.Context, sessionID string) error {
	path := fmt.Sprintf("/api/sessions/%s", url.PathEscape(sessionID))
	return c.delete(ctx, path)
}

// ListFiles fetches the uploaded-document listing.
func (c *APIClient) ListFiles(ctx context.Context) ([]FileInfo, error) {
	var files []FileInfo
	if err := c.getJSON(ctx, "/api/files", &files); err != nil {
		return nil, err
	}
	return files, nil
}

// DeleteFile removes an uploaded document and its indexed content.
func (c *APIClient) DeleteFile(ctx context.Context, name string) error {
	path := fmt.Sprintf("/api/files/%s", url.PathEscape(name))
	return c.delete(ctx, path)
}

// UploadFile sends a local document to the server for indexing.
//
// The request is built as multipart form data with the file under the "file"
// field, matching the server's upload contract. Returns the server-side name
// of the stored document.
func (c *APIClient) UploadFile(ctx context.Context, localPath string) (string, error) {
	f, err := os.Open(localPath)
	if err != nil {
		return "", fmt.Errorf("open %s: %w", localPath, err)
	}
	defer func() {
		if err := f.Close(); err != nil {
			slog.Error("failed to close upload file", "path", localPath, "error", err)
		}
	}()

	pr, pw := io.Pipe()
	mw := multipart.NewWriter(pw)
	name := filepath.Base(localPath)

	go func() {
		part, err := mw.CreateFormFile("file", name)
		if err != nil {
			pw.CloseWithError(err)
			return
		}
		if _, err := io.Copy(part, f); err != nil {
			pw.CloseWithError(err)
			return
		}
		pw.CloseWithError(mw.Close())
	}()

	resp, err := c.http.Post(ctx, c.baseURL+"/api/upload", mw.FormDataContentType(), pr)
	if err != nil {
		return "", fmt.Errorf("upload %s: %w", name, err)
	}
	defer c.closeBody(resp.Body)

	if resp.StatusCode != http.StatusOK {
		return "", c.statusError(resp)
	}
	return name, nil
}

// -----------------------------------------------------------------------------
// Request helpers
// -----------------------------------------------------------------------------

func (c *APIClient) getJSON(ctx context.Context, path string, out interface{}) error {
	resp, err := c.http.Get(ctx, c.baseURL+path)
	if err != nil {
		return fmt.Errorf("get %s: %w", path, err)
	}
	defer c.closeBody(resp.Body)

	if resp.StatusCode != http.StatusOK {
		return c.statusError(resp)
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode %s response: %w", path, err)
	}
	return nil
}

func (c *APIClient) delete(ctx context.Context, path string) error {
	resp, err := c.http.Delete(ctx, c.baseURL+path)
	if err != nil {
		return fmt.Errorf("delete %s: %w", path, err)
	}
	defer c.closeBody(resp.Body)

	if resp.StatusCode != http.StatusOK {
		return c.statusError(resp)
	}
	return nil
}

func (c *APIClient) statusError(resp *http.Response) error {
	body, err := io.ReadAll(io.LimitReader(resp.Body, 4096))
	if err != nil {
		return fmt.Errorf("server error (%d): failed to read response body", resp.StatusCode)
	}
	return fmt.Errorf("server error (%d): %s", resp.StatusCode, string(body))
}

func (c *APIClient) closeBody(body io.ReadCloser) {
	if err := body.Close(); err != nil {
		slog.Error("failed to close response body", "error", err)
	}
}
