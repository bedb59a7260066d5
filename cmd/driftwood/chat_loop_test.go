// Copyright (C) 2025 Driftwood AI (dev@driftwood.sh)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package main

import (
	"bytes"
	"context"
	"errors"
	"net/http"
	"strings"
	"testing"

	"github.com/driftwood-ai/driftwood/pkg/stream"
	"github.com/driftwood-ai/driftwood/pkg/transcript"
	"github.com/driftwood-ai/driftwood/pkg/ux"
)

// =============================================================================
// TEST HELPERS
// =============================================================================

// mockChatService implements StreamingChatService for chat loop tests,
// recording sent messages and returning canned outcomes.
type mockChatService struct {
	log       *transcript.Log
	sessionID string

	sent        []string
	sendErr     error // returned once, then cleared
	resetCalls  int
	openedID    string
	history     []transcript.Message
	closeCalled bool
}

func newMockChatService() *mockChatService {
	return &mockChatService{log: transcript.NewLog()}
}

func (m *mockChatService) SendMessage(ctx context.Context, message string) (*StreamOutcome, error) {
	m.sent = append(m.sent, message)
	if m.sendErr != nil {
		err := m.sendErr
		m.sendErr = nil
		return nil, err
	}

	answer := "answer to: " + message
	m.log.Append(transcript.RoleUser, message)
	m.log.Append(transcript.RoleAssistant, answer)
	m.sessionID = "sess-mock"
	return &StreamOutcome{
		Answer:    answer,
		SessionID: m.sessionID,
		State:     stream.StateCompleted,
	}, nil
}

func (m *mockChatService) SessionID() string { return m.sessionID }

func (m *mockChatService) OpenSession(ctx context.Context, sessionID string) (int, error) {
	m.openedID = sessionID
	if err := m.log.Reset(m.history); err != nil {
		return 0, err
	}
	m.sessionID = sessionID
	return len(m.history), nil
}

func (m *mockChatService) ResetSession() error {
	m.resetCalls++
	m.sessionID = ""
	return m.log.Reset(nil)
}

func (m *mockChatService) Log() *transcript.Log { return m.log }

func (m *mockChatService) Close() error {
	m.closeCalled = true
	return nil
}

var _ StreamingChatService = (*mockChatService)(nil)

// newTestRunner wires a runner with mock input and a buffered machine-mode
// UI so tests produce no terminal noise.
func newTestRunner(service *mockChatService, inputs []string) (*InteractiveChatRunner, *bytes.Buffer) {
	ux.SetPersonalityLevel(ux.PersonalityMachine)
	var buf bytes.Buffer
	ui := ux.NewChatUIWithWriter(&buf, ux.PersonalityMachine)
	runner := NewInteractiveChatRunnerWithDeps(
		service, nil, ui, NewMockInputReader(inputs), "http://localhost:8000",
	)
	return runner, &buf
}

// =============================================================================
// CHAT LOOP TESTS
// =============================================================================

func TestChatLoop_ExitCommand(t *testing.T) {
	service := newMockChatService()
	runner, _ := newTestRunner(service, []string{"what is driftwood?", "exit"})

	if err := runner.Run(context.Background()); err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	if len(service.sent) != 1 || service.sent[0] != "what is driftwood?" {
		t.Errorf("expected one sent message, got %v", service.sent)
	}
}

func TestChatLoop_EOFEndsSession(t *testing.T) {
	service := newMockChatService()
	runner, _ := newTestRunner(service, []string{"hello"})

	if err := runner.Run(context.Background()); err != nil {
		t.Fatalf("Run should end cleanly at EOF, got %v", err)
	}
	if len(service.sent) != 1 {
		t.Errorf("expected one sent message, got %v", service.sent)
	}
}

func TestChatLoop_EmptyInputSkipped(t *testing.T) {
	service := newMockChatService()
	runner, _ := newTestRunner(service, []string{"", "", "hello", "quit"})

	if err := runner.Run(context.Background()); err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if len(service.sent) != 1 {
		t.Errorf("empty lines should not become turns, got %v", service.sent)
	}
}

func TestChatLoop_PerTurnErrorKeepsLoopAlive(t *testing.T) {
	service := newMockChatService()
	service.sendErr = errors.New("server error (500): index rebuilding")
	runner, _ := newTestRunner(service, []string{"first", "second", "exit"})

	if err := runner.Run(context.Background()); err != nil {
		t.Fatalf("per-turn error must not end the loop, got %v", err)
	}
	if len(service.sent) != 2 {
		t.Errorf("expected both turns attempted, got %v", service.sent)
	}
}

func TestChatLoop_NewCommandResetsSession(t *testing.T) {
	service := newMockChatService()
	runner, _ := newTestRunner(service, []string{"hello", "/new", "exit"})

	if err := runner.Run(context.Background()); err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if service.resetCalls != 1 {
		t.Errorf("expected one reset, got %d", service.resetCalls)
	}
	if service.SessionID() != "" {
		t.Errorf("expected unbound session after /new, got %q", service.SessionID())
	}
}

func TestChatLoop_OpenCommandLoadsSession(t *testing.T) {
	service := newMockChatService()
	service.history = []transcript.Message{
		{Role: transcript.RoleUser, Content: "earlier question"},
		{Role: transcript.RoleAssistant, Content: "earlier answer"},
	}
	runner, _ := newTestRunner(service, []string{"/open sess-42", "exit"})

	if err := runner.Run(context.Background()); err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if service.openedID != "sess-42" {
		t.Errorf("expected session sess-42 opened, got %q", service.openedID)
	}
}

func TestChatLoop_OpenCommandRequiresArgument(t *testing.T) {
	service := newMockChatService()
	runner, _ := newTestRunner(service, []string{"/open", "exit"})

	if err := runner.Run(context.Background()); err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if service.openedID != "" {
		t.Errorf("bare /open must not open anything, got %q", service.openedID)
	}
}

func TestChatLoop_DeleteActiveSessionResetsBinding(t *testing.T) {
	service := newMockChatService()
	service.sessionID = "sess-1"

	deleted := ""
	api := NewAPIClient(&mockChatHTTPClient{
		deleteFn: func(ctx context.Context, url string) (*http.Response, error) {
			deleted = url
			return createMockResponse(http.StatusOK, "", ""), nil
		},
	}, "http://localhost:8000")

	ux.SetPersonalityLevel(ux.PersonalityMachine)
	var buf bytes.Buffer
	ui := ux.NewChatUIWithWriter(&buf, ux.PersonalityMachine)
	runner := NewInteractiveChatRunnerWithDeps(
		service, api, ui, NewMockInputReader([]string{"/delete sess-1", "exit"}),
		"http://localhost:8000",
	)

	if err := runner.Run(context.Background()); err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if !strings.Contains(deleted, "/api/sessions/sess-1") {
		t.Errorf("delete endpoint not called: %q", deleted)
	}
	if service.resetCalls != 1 {
		t.Errorf("deleting the active session must reset the binding, resets=%d", service.resetCalls)
	}
}

func TestChatLoop_DeleteOtherSessionKeepsBinding(t *testing.T) {
	service := newMockChatService()
	service.sessionID = "sess-1"

	api := NewAPIClient(&mockChatHTTPClient{
		deleteFn: func(ctx context.Context, url string) (*http.Response, error) {
			return createMockResponse(http.StatusOK, "", ""), nil
		},
	}, "http://localhost:8000")

	ux.SetPersonalityLevel(ux.PersonalityMachine)
	var buf bytes.Buffer
	ui := ux.NewChatUIWithWriter(&buf, ux.PersonalityMachine)
	runner := NewInteractiveChatRunnerWithDeps(
		service, api, ui, NewMockInputReader([]string{"/delete sess-other", "exit"}),
		"http://localhost:8000",
	)

	if err := runner.Run(context.Background()); err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if service.resetCalls != 0 {
		t.Errorf("deleting another session must keep the binding, resets=%d", service.resetCalls)
	}
	if service.SessionID() != "sess-1" {
		t.Errorf("binding changed: %q", service.SessionID())
	}
}

func TestChatLoop_UnknownSlashCommand(t *testing.T) {
	service := newMockChatService()
	runner, _ := newTestRunner(service, []string{"/teleport", "exit"})

	if err := runner.Run(context.Background()); err != nil {
		t.Fatalf("unknown command must not end the loop, got %v", err)
	}
	if len(service.sent) != 0 {
		t.Errorf("slash commands must not become turns, got %v", service.sent)
	}
}

func TestChatLoop_CancelledContext(t *testing.T) {
	service := newMockChatService()
	runner, _ := newTestRunner(service, []string{"hello", "exit"})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := runner.Run(ctx)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if len(service.sent) != 0 {
		t.Errorf("no turns should run after cancellation, got %v", service.sent)
	}
}

func TestChatLoop_CloseIsIdempotent(t *testing.T) {
	service := newMockChatService()
	runner, _ := newTestRunner(service, nil)

	if err := runner.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}
	if err := runner.Close(); err != nil {
		t.Fatalf("second Close failed: %v", err)
	}
	if !service.closeCalled {
		t.Error("runner must close its service")
	}
}

func TestChatLoop_ResumeReplaysHistory(t *testing.T) {
	service := newMockChatService()
	service.history = []transcript.Message{
		{Role: transcript.RoleUser, Content: "what washed ashore?"},
		{Role: transcript.RoleAssistant, Content: "Driftwood."},
	}
	runner, buf := newTestRunner(service, []string{"exit"})

	if err := runner.Resume(context.Background(), "sess-7"); err != nil {
		t.Fatalf("Resume failed: %v", err)
	}
	if err := runner.Run(context.Background()); err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	out := buf.String()
	if !bytes.Contains([]byte(out), []byte("what washed ashore?")) {
		t.Errorf("user history line not replayed:\n%s", out)
	}
	if !bytes.Contains([]byte(out), []byte("Driftwood.")) {
		t.Errorf("assistant history line not replayed:\n%s", out)
	}
}
