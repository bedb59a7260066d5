// Copyright (C) 2025 Driftwood AI (dev@driftwood.sh)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package session reconciles the client's provisional session identity with
// the server-assigned one.
//
// A conversation starts unbound: the first request carries no session id, and
// the server mints one, reporting it in a response header. From that point the
// id is fixed for the conversation; every later turn echoes it back. The
// binding is an explicit value passed through the chat service rather than
// ambient package state, so each conversation owns its identity exclusively.
package session

import "errors"

// ErrSessionRebound is returned when the server reports a session id that
// differs from one already confirmed for this conversation. The server
// contract forbids that; the current stream is abandoned rather than silently
// adopting a corrupted identity.
var ErrSessionRebound = errors.New("session: server rebound a confirmed session id")

// Binding tracks the session identity of one conversation.
//
// ProvisionalID is what the next request will carry; ConfirmedID is what the
// server has acknowledged. They are equal from the moment the server first
// reports an id. A "new conversation" gesture resets the binding to zero.
type Binding struct {
	ProvisionalID string
	ConfirmedID   string
}

// Bound reports whether the server has confirmed an id for this conversation.
func (b Binding) Bound() bool {
	return b.ConfirmedID != ""
}

// Reconcile merges the session id reported by a response into the current
// binding.
//
// Returns the updated binding and whether the caller should refresh its
// session list. The refresh signal fires exactly once per conversation: on
// the turn that establishes the binding. Repeats of the confirmed id are
// idempotent no-ops, an absent id leaves the binding untouched, and a
// conflicting id after confirmation returns ErrSessionRebound with the
// binding unchanged.
func Reconcile(responseID string, b Binding) (Binding, bool, error) {
	if responseID == "" {
		return b, false, nil
	}
	if responseID == b.ConfirmedID {
		return b, false, nil
	}
	if b.ConfirmedID != "" {
		return b, false, ErrSessionRebound
	}
	return Binding{ProvisionalID: responseID, ConfirmedID: responseID}, true, nil
}
