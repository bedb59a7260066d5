// Copyright (C) 2025 Driftwood AI (dev@driftwood.sh)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package transcript holds the conversation data model: messages, citations,
// and the ordered message log for one conversation.
//
// A Log is append-only with one exception: while a response is streaming in,
// exactly one trailing assistant message is in-progress and may be replaced in
// place. Every other message is immutable once appended. The in-progress slot
// is tracked explicitly rather than by positional convention, so historical
// messages can never be mutated by accident.
package transcript

import (
	"errors"
	"sync"
)

// Role identifies the author of a message.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Citation is one retrieved document reference attached to an answer.
// Immutable once constructed.
type Citation struct {
	ID    int     `json:"id"`
	Name  string  `json:"name"`
	Score float64 `json:"score"`
}

// CitationList is an ordered sequence of citations. Order is the server's
// emission order, which is its relevance ranking; the client never re-sorts.
type CitationList []Citation

// Message is one entry in a conversation. Content and Sources of the single
// in-progress assistant message are the only fields ever mutated in place.
type Message struct {
	Role    Role         `json:"role"`
	Content string       `json:"content"`
	Sources CitationList `json:"sources,omitempty"`

	inProgress bool
}

// InProgress reports whether the message is the mutable streaming tail.
func (m Message) InProgress() bool {
	return m.inProgress
}

var (
	// ErrStreamActive is returned when a second stream is started while one
	// is already mutating the log's tail.
	ErrStreamActive = errors.New("transcript: a stream is already active")

	// ErrNoActiveStream is returned when ReplaceLast or EndStream is called
	// without a streaming message. This is a programming error on the
	// caller's side, surfaced rather than silently corrupting history.
	ErrNoActiveStream = errors.New("transcript: no active streaming message")
)

// Log is the ordered message sequence for one conversation.
//
// Thread safety: all methods are mutex-guarded. At most one stream may be
// active at a time; BeginStream enforces this.
type Log struct {
	mu       sync.Mutex
	messages []Message
	active   int // index of the in-progress message, -1 when none
}

// NewLog creates an empty message log.
func NewLog() *Log {
	return &Log{active: -1}
}

// Append adds a finalized message to the log.
func (l *Log) Append(role Role, content string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.messages = append(l.messages, Message{Role: role, Content: content})
}

// BeginStream appends an empty in-progress assistant message, the placeholder
// that ReplaceLast will update while the response streams in.
func (l *Log) BeginStream() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.active >= 0 {
		return ErrStreamActive
	}
	l.messages = append(l.messages, Message{Role: RoleAssistant, inProgress: true})
	l.active = len(l.messages) - 1
	return nil
}

// ReplaceLast atomically replaces the content and sources of the in-progress
// message. The role and position are preserved.
func (l *Log) ReplaceLast(content string, sources CitationList) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.active < 0 {
		return ErrNoActiveStream
	}
	m := &l.messages[l.active]
	m.Content = content
	m.Sources = sources
	return nil
}

// EndStream freezes the in-progress message as-is. Whatever content and
// sources were last applied are retained, which is exactly what a cancelled
// or failed stream wants: the partial answer stays visible.
func (l *Log) EndStream() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.active < 0 {
		return ErrNoActiveStream
	}
	l.messages[l.active].inProgress = false
	l.active = -1
	return nil
}

// Streaming reports whether a stream currently owns the log's tail.
func (l *Log) Streaming() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.active >= 0
}

// Len returns the number of messages in the log.
func (l *Log) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.messages)
}

// Last returns a copy of the final message and true, or a zero message and
// false when the log is empty.
func (l *Log) Last() (Message, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if len(l.messages) == 0 {
		return Message{}, false
	}
	return l.messages[len(l.messages)-1], true
}

// Messages returns a copy of the log in order.
func (l *Log) Messages() []Message {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]Message, len(l.messages))
	copy(out, l.messages)
	return out
}

// Reset replaces the log's contents, used when switching to another session's
// history. Resetting while a stream is active is rejected.
func (l *Log) Reset(messages []Message) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.active >= 0 {
		return ErrStreamActive
	}
	l.messages = make([]Message, len(messages))
	copy(l.messages, messages)
	for i := range l.messages {
		l.messages[i].inProgress = false
	}
	return nil
}
