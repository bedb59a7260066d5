// Copyright (C) 2025 Driftwood AI (dev@driftwood.sh)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package stream

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/driftwood-ai/driftwood/pkg/transcript"
)

func TestParseCitations_ValidList(t *testing.T) {
	list, ok := ParseCitations([]byte(`[{"id":1,"name":"report.pdf","score":0.92},{"id":2,"name":"notes.txt","score":0.61}]`))

	require.True(t, ok)
	require.Len(t, list, 2)
	assert.Equal(t, transcript.Citation{ID: 1, Name: "report.pdf", Score: 0.92}, list[0])
	assert.Equal(t, transcript.Citation{ID: 2, Name: "notes.txt", Score: 0.61}, list[1])
}

func TestParseCitations_OrderPreserved(t *testing.T) {
	// Server order is relevance order, even when scores look unsorted.
	list, ok := ParseCitations([]byte(`[{"id":3,"name":"c","score":0.1},{"id":1,"name":"a","score":0.9}]`))

	require.True(t, ok)
	require.Len(t, list, 2)
	assert.Equal(t, "c", list[0].Name)
	assert.Equal(t, "a", list[1].Name)
}

func TestParseCitations_EmptyArray(t *testing.T) {
	list, ok := ParseCitations([]byte(`[]`))

	require.True(t, ok)
	assert.Empty(t, list)
}

func TestParseCitations_SurroundingWhitespace(t *testing.T) {
	list, ok := ParseCitations([]byte("\n  [{\"id\":1,\"name\":\"a\",\"score\":0.5}]  \n"))

	require.True(t, ok)
	assert.Len(t, list, 1)
}

func TestParseCitations_TruncatedJSON(t *testing.T) {
	list, ok := ParseCitations([]byte(`[{"id":1,"name":"a.pdf","sco`))

	assert.False(t, ok)
	assert.Nil(t, list)
}

func TestParseCitations_EmptyRegion(t *testing.T) {
	list, ok := ParseCitations(nil)

	assert.False(t, ok)
	assert.Nil(t, list)
}

func TestParseCitations_NotAnArray(t *testing.T) {
	list, ok := ParseCitations([]byte(`{"id":1,"name":"a","score":0.5}`))

	assert.False(t, ok)
	assert.Nil(t, list)
}

func TestParseCitations_MissingName(t *testing.T) {
	list, ok := ParseCitations([]byte(`[{"id":1,"score":0.5}]`))

	assert.False(t, ok)
	assert.Nil(t, list)
}

func TestParseCitations_ScoreOutOfRange(t *testing.T) {
	for _, region := range []string{
		`[{"id":1,"name":"a","score":1.5}]`,
		`[{"id":1,"name":"a","score":-0.1}]`,
	} {
		list, ok := ParseCitations([]byte(region))
		assert.False(t, ok, "region %s", region)
		assert.Nil(t, list)
	}
}

func TestParseCitations_OneBadEntryRejectsAll(t *testing.T) {
	list, ok := ParseCitations([]byte(`[{"id":1,"name":"good","score":0.9},{"id":2,"name":"","score":0.8}]`))

	assert.False(t, ok)
	assert.Nil(t, list)
}

func TestParseCitations_WrongFieldTypes(t *testing.T) {
	list, ok := ParseCitations([]byte(`[{"id":"one","name":"a","score":0.5}]`))

	assert.False(t, ok)
	assert.Nil(t, list)
}
