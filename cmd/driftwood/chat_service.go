// Copyright (C) 2025 Driftwood AI (dev@driftwood.sh)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package main contains the Driftwood CLI chat service implementation.
//
// This file defines the StreamingChatService interface and its implementation
// for communicating with the document-chat server's streaming endpoint. It
// follows the layered streaming architecture:
//
//	HTTP Response Body → stream.FrameDecoder → stream.Consumer → transcript.Log
//	                                                           → ux.StreamRenderer
//
// # Architecture
//
//	CLI Loop → StreamingChatService → HTTPClient → http.Client
//	                ↓                      ↓
//	        session.Reconcile       stream.Consumer
//	        APIClient (refresh)     transcript.Log
package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"sync"

	"github.com/google/uuid"

	"github.com/driftwood-ai/driftwood/pkg/session"
	"github.com/driftwood-ai/driftwood/pkg/stream"
	"github.com/driftwood-ai/driftwood/pkg/transcript"
)

// sessionHeader is the response header carrying the server-assigned session
// id. Read before the body is streamed; the binding is settled for the whole
// turn by the time the first chunk renders.
const sessionHeader = "X-Session-Id"

// =============================================================================
// INTERFACES
// =============================================================================

// StreamingChatService defines the contract for streamed conversation turns.
//
// # Description
//
// One service instance owns one conversation: its message log, its session
// binding, and the single-stream invariant. SendMessage drives a complete
// turn; at most one turn may be in flight, and a second send while one is
// streaming is rejected with transcript.ErrStreamActive rather than queued.
//
// # Inputs
//
// Methods accept context.Context for cancellation. Cancelling the context of
// an in-flight SendMessage stops the stream cooperatively: the partial answer
// is kept and the turn ends in StateCancelled.
//
// # Outputs
//
// SendMessage returns a *StreamOutcome describing the terminal state of the
// turn: the accumulated answer, citations if any parsed, the bound session
// id, and whether the turn completed or was cancelled.
//
// # Limitations
//
//   - Does not retry on transient errors
//   - A turn rejected as busy leaves the in-flight turn untouched
//
// # Assumptions
//
//   - Server speaks the sentinel-framed chunked answer format
//   - Caller handles context lifecycle (cancellation, timeout)
type StreamingChatService interface {
	// SendMessage sends a user message and streams the assistant's answer.
	SendMessage(ctx context.Context, message string) (*StreamOutcome, error)

	// SessionID returns the session id the next request will carry, empty
	// while the conversation is unbound.
	SessionID() string

	// OpenSession loads a stored session's history into the log and binds
	// future requests to it.
	OpenSession(ctx context.Context, sessionID string) (int, error)

	// ResetSession clears the session binding and the message log, starting
	// a fresh conversation.
	ResetSession() error

	// Log returns the conversation's message log.
	Log() *transcript.Log

	// Close releases any resources held by the service.
	Close() error
}

// StreamOutcome is the result of one conversation turn.
type StreamOutcome struct {
	// Answer is the display text accumulated when the turn ended. For a
	// cancelled turn this is the partial answer.
	Answer string

	// Sources is the last successfully parsed citation list, nil if the
	// answer carried none or the metadata never parsed.
	Sources transcript.CitationList

	// SessionID is the confirmed session id after this turn.
	SessionID string

	// State is the terminal state: completed, cancelled, or failed.
	State stream.State
}

// Cancelled reports whether the user stopped this turn mid-stream.
func (o *StreamOutcome) Cancelled() bool {
	return o.State == stream.StateCancelled
}

// =============================================================================
// CONFIGURATION
// =============================================================================

// ChatServiceConfig holds configuration for the streaming chat service.
//
// Only BaseURL is required. Callbacks are forwarded to the stream consumer
// for incremental rendering; either may be nil.
type ChatServiceConfig struct {
	BaseURL   string                        // Server URL without trailing slash (required)
	SessionID string                        // Session id to resume (optional)
	OnDelta   func(string)                  // Incremental display callback (optional)
	OnSources func(transcript.CitationList) // Citation parse callback (optional)
}

// =============================================================================
// IMPLEMENTATION
// =============================================================================

// streamingChatService implements StreamingChatService against the
// /api/chat endpoint.
//
// # Thread Safety
//
// Binding and busy state are mutex-guarded; the log guards itself. Safe for
// concurrent use, though the single-stream invariant means concurrent sends
// resolve to one winner and ErrStreamActive for the rest.
type streamingChatService struct {
	client    HTTPClient
	api       *APIClient
	log       *transcript.Log
	baseURL   string
	onDelta   func(string)
	onSources func(transcript.CitationList)

	mu      sync.Mutex
	binding session.Binding
	busy    bool
}

// chatRequest is the wire form of one chat turn request. A conversation that
// has no session yet sends an explicit null, matching the server contract.
type chatRequest struct {
	Input     string  `json:"input"`
	SessionID *string `json:"session_id"`
}

// NewStreamingChatService creates a chat service with the production HTTP
// client. The stream transport carries no client-side timeout; answers may
// legitimately stream for minutes and cancellation flows through contexts.
//
// Returns the concrete type to expose the API accessor alongside the
// StreamingChatService contract.
func NewStreamingChatService(config ChatServiceConfig) *streamingChatService {
	return NewStreamingChatServiceWithClient(newHTTPClient(0), config)
}

// NewStreamingChatServiceWithClient creates a chat service with an injected
// HTTP client. Use this constructor for testing with mock clients.
func NewStreamingChatServiceWithClient(client HTTPClient, config ChatServiceConfig) *streamingChatService {
	return &streamingChatService{
		client:    client,
		api:       NewAPIClient(client, config.BaseURL),
		log:       transcript.NewLog(),
		baseURL:   config.BaseURL,
		onDelta:   config.OnDelta,
		onSources: config.OnSources,
		binding:   session.Binding{ProvisionalID: config.SessionID},
	}
}

var _ StreamingChatService = (*streamingChatService)(nil)

// SendMessage drives one conversation turn.
//
// # Description
//
// Appends the user message and an in-progress assistant placeholder to the
// log, POSTs to /api/chat, reconciles the session header before the body is
// consumed, then streams the answer into the log chunk by chunk. On a newly
// established binding the session list refresh fires in the background,
// exactly once for the conversation.
//
// # Outputs
//
// On cancellation the outcome has State StateCancelled and a nil error; the
// partial answer stays in the log. Transport and protocol failures return an
// error alongside a failed outcome, with any partial answer likewise kept.
// A send while another turn is streaming returns transcript.ErrStreamActive.
func (s *streamingChatService) SendMessage(ctx context.Context, message string) (*StreamOutcome, error) {
	requestID := uuid.New().String()

	s.mu.Lock()
	if s.busy {
		s.mu.Unlock()
		return nil, transcript.ErrStreamActive
	}
	s.busy = true
	currentSessionID := s.binding.ProvisionalID
	s.mu.Unlock()
	defer func() {
		s.mu.Lock()
		s.busy = false
		s.mu.Unlock()
	}()

	slog.Debug("sending chat message",
		"request_id", requestID,
		"session_id", currentSessionID,
		"message_length", len(message),
	)

	s.log.Append(transcript.RoleUser, message)
	if err := s.log.BeginStream(); err != nil {
		return nil, err
	}
	defer func() {
		if err := s.log.EndStream(); err != nil {
			slog.Error("failed to finalize streaming message", "request_id", requestID, "error", err)
		}
	}()

	resp, err := s.postRequest(ctx, requestID, message, currentSessionID)
	if err != nil {
		if ctx.Err() != nil || errors.Is(err, context.Canceled) {
			return s.outcome(stream.StateCancelled, nil), nil
		}
		return nil, err
	}
	defer func(body io.ReadCloser) {
		if err := body.Close(); err != nil {
			slog.Error("failed to close response body", "request_id", requestID, "error", err)
		}
	}(resp.Body)

	if err := s.validateResponse(requestID, resp); err != nil {
		return nil, err
	}

	if err := s.reconcileSession(requestID, resp.Header.Get(sessionHeader)); err != nil {
		return nil, err
	}

	consumer := stream.NewConsumer(s.log, stream.Callbacks{
		OnDelta:   s.onDelta,
		OnSources: s.onSources,
	})
	state, err := consumer.Run(ctx, resp.Body)
	if err != nil {
		slog.Error("chat stream failed",
			"request_id", requestID,
			"state", state.String(),
			"error", err,
		)
		return s.outcome(state, consumer.Sources()), err
	}

	slog.Debug("chat stream finished",
		"request_id", requestID,
		"state", state.String(),
		"sources", len(consumer.Sources()),
	)

	return s.outcome(state, consumer.Sources()), nil
}

// postRequest marshals and sends the chat request.
func (s *streamingChatService) postRequest(ctx context.Context, requestID, message, sessionID string) (*http.Response, error) {
	reqBody := chatRequest{Input: message}
	if sessionID != "" {
		reqBody.SessionID = &sessionID
	}

	postBody, err := json.Marshal(reqBody)
	if err != nil {
		slog.Error("failed to marshal chat request", "request_id", requestID, "error", err)
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	targetURL := s.baseURL + "/api/chat"
	resp, err := s.client.Post(ctx, targetURL, "application/json", bytes.NewBuffer(postBody))
	if err != nil {
		if ctx.Err() == nil {
			slog.Error("chat HTTP request failed",
				"request_id", requestID,
				"url", targetURL,
				"error", err,
			)
		}
		return nil, fmt.Errorf("http post: %w", err)
	}
	return resp, nil
}

// validateResponse checks the HTTP status before the body is streamed.
func (s *streamingChatService) validateResponse(requestID string, resp *http.Response) error {
	if resp.StatusCode != http.StatusOK {
		bodyBytes, err := io.ReadAll(io.LimitReader(resp.Body, 4096))
		if err != nil {
			slog.Error("chat server returned error (failed to read body)",
				"request_id", requestID,
				"status_code", resp.StatusCode,
				"read_error", err,
			)
			return fmt.Errorf("server error (%d): failed to read response body", resp.StatusCode)
		}
		slog.Error("chat server returned error",
			"request_id", requestID,
			"status_code", resp.StatusCode,
			"response_body", string(bodyBytes),
		)
		return fmt.Errorf("server error (%d): %s", resp.StatusCode, string(bodyBytes))
	}
	return nil
}

// reconcileSession merges the response's session header into the binding.
// Runs before any body chunk is consumed, so the session identity is settled
// for the whole turn. A newly established binding triggers exactly one
// background session-list refresh.
func (s *streamingChatService) reconcileSession(requestID, responseID string) error {
	s.mu.Lock()
	updated, refresh, err := session.Reconcile(responseID, s.binding)
	if err != nil {
		s.mu.Unlock()
		slog.Error("session binding violation",
			"request_id", requestID,
			"confirmed_session", s.binding.ConfirmedID,
			"response_session", responseID,
		)
		return err
	}
	s.binding = updated
	s.mu.Unlock()

	if refresh {
		slog.Debug("session established",
			"request_id", requestID,
			"session_id", updated.ConfirmedID,
		)
		s.api.RefreshSessionsAsync(requestID)
	}
	return nil
}

func (s *streamingChatService) outcome(state stream.State, sources transcript.CitationList) *StreamOutcome {
	answer := ""
	if last, ok := s.log.Last(); ok {
		answer = last.Content
	}
	return &StreamOutcome{
		Answer:    answer,
		Sources:   sources,
		SessionID: s.SessionID(),
		State:     state,
	}
}

// SessionID returns the session id the next request will carry.
func (s *streamingChatService) SessionID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.binding.ProvisionalID
}

// OpenSession loads a stored session's history and binds to it. Returns the
// number of loaded messages. Rejected while a turn is streaming.
func (s *streamingChatService) OpenSession(ctx context.Context, sessionID string) (int, error) {
	messages, err := s.api.SessionHistory(ctx, sessionID)
	if err != nil {
		return 0, err
	}
	if err := s.log.Reset(messages); err != nil {
		return 0, err
	}

	s.mu.Lock()
	s.binding = session.Binding{ProvisionalID: sessionID}
	s.mu.Unlock()

	slog.Debug("session opened", "session_id", sessionID, "messages", len(messages))
	return len(messages), nil
}

// ResetSession clears the binding and the log for a fresh conversation.
// Rejected while a turn is streaming.
func (s *streamingChatService) ResetSession() error {
	if err := s.log.Reset(nil); err != nil {
		return err
	}
	s.mu.Lock()
	s.binding = session.Binding{}
	s.mu.Unlock()
	return nil
}

// Log returns the conversation's message log.
func (s *streamingChatService) Log() *transcript.Log {
	return s.log
}

// API returns the management-endpoint client sharing this service's
// transport and session-list cache.
func (s *streamingChatService) API() *APIClient {
	return s.api
}

// Close releases resources. Currently a no-op for the HTTP implementation,
// kept for interface completeness.
func (s *streamingChatService) Close() error {
	return nil
}
