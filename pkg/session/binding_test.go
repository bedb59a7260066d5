// Copyright (C) 2025 Driftwood AI (dev@driftwood.sh)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package session

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReconcile_FirstResponseBinds(t *testing.T) {
	b, refresh, err := Reconcile("sess-123", Binding{})

	require.NoError(t, err)
	assert.True(t, refresh, "first binding must trigger a list refresh")
	assert.Equal(t, "sess-123", b.ProvisionalID)
	assert.Equal(t, "sess-123", b.ConfirmedID)
	assert.True(t, b.Bound())
}

func TestReconcile_AbsentIDIsNoOp(t *testing.T) {
	orig := Binding{ProvisionalID: "sess-123", ConfirmedID: "sess-123"}

	b, refresh, err := Reconcile("", orig)

	require.NoError(t, err)
	assert.False(t, refresh)
	assert.Equal(t, orig, b)
}

func TestReconcile_AbsentIDBeforeBinding(t *testing.T) {
	b, refresh, err := Reconcile("", Binding{})

	require.NoError(t, err)
	assert.False(t, refresh)
	assert.False(t, b.Bound())
}

func TestReconcile_RepeatedIDIsIdempotent(t *testing.T) {
	b1, refresh, err := Reconcile("sess-123", Binding{})
	require.NoError(t, err)
	require.True(t, refresh)

	// Every later turn echoes the same id; no further refresh fires.
	for i := 0; i < 3; i++ {
		var b2 Binding
		b2, refresh, err = Reconcile("sess-123", b1)
		require.NoError(t, err)
		assert.False(t, refresh, "turn %d must not refresh again", i+2)
		assert.Equal(t, b1, b2)
		b1 = b2
	}
}

func TestReconcile_ConflictingIDAfterConfirmation(t *testing.T) {
	confirmed := Binding{ProvisionalID: "sess-123", ConfirmedID: "sess-123"}

	b, refresh, err := Reconcile("sess-999", confirmed)

	require.ErrorIs(t, err, ErrSessionRebound)
	assert.False(t, refresh)
	assert.Equal(t, confirmed, b, "binding must keep its original id")
}

func TestReconcile_ResumedSessionConfirmation(t *testing.T) {
	// Opening a stored session sets only the provisional id; the first
	// response confirms it and refreshes once.
	b, refresh, err := Reconcile("sess-abc", Binding{ProvisionalID: "sess-abc"})

	require.NoError(t, err)
	assert.True(t, refresh)
	assert.Equal(t, "sess-abc", b.ConfirmedID)
}

func TestBinding_ZeroValueIsUnbound(t *testing.T) {
	var b Binding

	assert.False(t, b.Bound())
	assert.Empty(t, b.ProvisionalID)
}
