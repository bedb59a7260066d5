// Copyright (C) 2025 Driftwood AI (dev@driftwood.sh)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package transcript

import (
	"errors"
	"sync"
	"testing"
)

// =============================================================================
// Message Log Tests
// =============================================================================

func TestLog_AppendAndRead(t *testing.T) {
	log := NewLog()

	log.Append(RoleUser, "hello")
	log.Append(RoleAssistant, "hi there")

	if log.Len() != 2 {
		t.Fatalf("expected 2 messages, got %d", log.Len())
	}
	msgs := log.Messages()
	if msgs[0].Role != RoleUser || msgs[0].Content != "hello" {
		t.Errorf("unexpected first message: %+v", msgs[0])
	}
	if msgs[1].Role != RoleAssistant || msgs[1].Content != "hi there" {
		t.Errorf("unexpected second message: %+v", msgs[1])
	}
	if msgs[0].InProgress() || msgs[1].InProgress() {
		t.Error("appended messages must be final")
	}
}

func TestLog_StreamLifecycle(t *testing.T) {
	log := NewLog()
	log.Append(RoleUser, "question")

	if err := log.BeginStream(); err != nil {
		t.Fatalf("BeginStream: %v", err)
	}
	if !log.Streaming() {
		t.Error("expected Streaming() true after BeginStream")
	}
	last, _ := log.Last()
	if last.Role != RoleAssistant || last.Content != "" || !last.InProgress() {
		t.Errorf("unexpected placeholder: %+v", last)
	}

	if err := log.ReplaceLast("partial", nil); err != nil {
		t.Fatalf("ReplaceLast: %v", err)
	}
	if err := log.ReplaceLast("full answer", CitationList{{ID: 1, Name: "a.pdf", Score: 0.9}}); err != nil {
		t.Fatalf("ReplaceLast: %v", err)
	}
	if err := log.EndStream(); err != nil {
		t.Fatalf("EndStream: %v", err)
	}

	if log.Streaming() {
		t.Error("expected Streaming() false after EndStream")
	}
	last, _ = log.Last()
	if last.Content != "full answer" {
		t.Errorf("expected final content 'full answer', got %q", last.Content)
	}
	if len(last.Sources) != 1 || last.Sources[0].Name != "a.pdf" {
		t.Errorf("unexpected sources: %+v", last.Sources)
	}
	if last.InProgress() {
		t.Error("ended message must be final")
	}
}

func TestLog_ReplaceLastNeverTouchesHistory(t *testing.T) {
	log := NewLog()
	log.Append(RoleUser, "first question")
	log.Append(RoleAssistant, "first answer")
	log.Append(RoleUser, "second question")
	if err := log.BeginStream(); err != nil {
		t.Fatalf("BeginStream: %v", err)
	}

	if err := log.ReplaceLast("second answer", nil); err != nil {
		t.Fatalf("ReplaceLast: %v", err)
	}

	msgs := log.Messages()
	if msgs[1].Content != "first answer" {
		t.Errorf("historical message mutated: %+v", msgs[1])
	}
	if msgs[3].Content != "second answer" {
		t.Errorf("in-progress message not updated: %+v", msgs[3])
	}
}

// -----------------------------------------------------------------------------
// Misuse Tests
// -----------------------------------------------------------------------------

func TestLog_SecondStreamRejected(t *testing.T) {
	log := NewLog()
	if err := log.BeginStream(); err != nil {
		t.Fatalf("BeginStream: %v", err)
	}

	err := log.BeginStream()

	if !errors.Is(err, ErrStreamActive) {
		t.Errorf("expected ErrStreamActive, got %v", err)
	}
}

func TestLog_ReplaceWithoutStream(t *testing.T) {
	log := NewLog()
	log.Append(RoleAssistant, "final")

	err := log.ReplaceLast("rewritten", nil)

	if !errors.Is(err, ErrNoActiveStream) {
		t.Errorf("expected ErrNoActiveStream, got %v", err)
	}
	last, _ := log.Last()
	if last.Content != "final" {
		t.Errorf("final message mutated: %q", last.Content)
	}
}

func TestLog_EndWithoutStream(t *testing.T) {
	log := NewLog()

	if err := log.EndStream(); !errors.Is(err, ErrNoActiveStream) {
		t.Errorf("expected ErrNoActiveStream, got %v", err)
	}
}

func TestLog_ResetWhileStreamingRejected(t *testing.T) {
	log := NewLog()
	if err := log.BeginStream(); err != nil {
		t.Fatalf("BeginStream: %v", err)
	}

	err := log.Reset([]Message{{Role: RoleUser, Content: "x"}})

	if !errors.Is(err, ErrStreamActive) {
		t.Errorf("expected ErrStreamActive, got %v", err)
	}
}

// -----------------------------------------------------------------------------
// Reset and Snapshot Tests
// -----------------------------------------------------------------------------

func TestLog_ResetLoadsHistory(t *testing.T) {
	log := NewLog()
	log.Append(RoleUser, "old")

	err := log.Reset([]Message{
		{Role: RoleUser, Content: "loaded question"},
		{Role: RoleAssistant, Content: "loaded answer"},
	})

	if err != nil {
		t.Fatalf("Reset: %v", err)
	}
	if log.Len() != 2 {
		t.Fatalf("expected 2 messages after reset, got %d", log.Len())
	}
	last, _ := log.Last()
	if last.Content != "loaded answer" || last.InProgress() {
		t.Errorf("unexpected last message after reset: %+v", last)
	}
}

func TestLog_MessagesReturnsCopy(t *testing.T) {
	log := NewLog()
	log.Append(RoleUser, "original")

	msgs := log.Messages()
	msgs[0].Content = "tampered"

	fresh := log.Messages()
	if fresh[0].Content != "original" {
		t.Errorf("snapshot mutation leaked into the log: %q", fresh[0].Content)
	}
}

func TestLog_LastOnEmpty(t *testing.T) {
	log := NewLog()

	if _, ok := log.Last(); ok {
		t.Error("expected ok=false on empty log")
	}
}

func TestLog_ConcurrentReplaceAndRead(t *testing.T) {
	log := NewLog()
	if err := log.BeginStream(); err != nil {
		t.Fatalf("BeginStream: %v", err)
	}

	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				_ = log.ReplaceLast("content", nil)
			}
		}()
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				_, _ = log.Last()
				_ = log.Messages()
			}
		}()
	}
	wg.Wait()
}
