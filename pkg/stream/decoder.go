// Copyright (C) 2025 Driftwood AI (dev@driftwood.sh)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package stream consumes the chunked answer stream of the chat endpoint.
//
// The wire format is two-phase: plain answer prose, optionally followed by
// the literal sentinel token and a JSON citation array. There is no escaping
// mechanism; the server guarantees the sentinel never occurs in answer prose.
// Components here only parse and sequence; rendering lives in pkg/ux and
// transport in the caller.
//
//	HTTP body → FrameDecoder → (display delta, metadata region)
//	                         → ParseCitations → CitationList | nil
//	          → Consumer     → transcript.Log updates, in arrival order
package stream

import (
	"bytes"
	"errors"
	"unicode/utf8"
)

// Sentinel is the out-of-band marker separating answer prose from the
// trailing citation metadata. It must match the server byte for byte.
const Sentinel = "__SOURCES__"

var sentinelBytes = []byte(Sentinel)

// ErrSentinelRepeated reports a second sentinel occurrence in one stream,
// which the protocol forbids. Fatal to the stream, not to the conversation.
var ErrSentinelRepeated = errors.New("stream: sentinel token appeared twice")

// FrameDecoder reassembles the answer text from raw network chunks and
// splits it at the sentinel into a display portion and a metadata region.
//
// Chunk boundaries carry no meaning: they may fall inside a multi-byte UTF-8
// sequence or inside the sentinel itself. The decoder holds incomplete
// trailing bytes until the next chunk and re-scans the whole accumulated
// buffer for the sentinel on every feed, so the final split is identical for
// any chunking of the same body.
//
// Display deltas are monotone: a buffer suffix that is a proper prefix of the
// sentinel is withheld from deltas until disambiguated, so a caller printing
// deltas never has to retract output. DisplayText itself always reflects the
// full pre-sentinel buffer.
//
// Not safe for concurrent use; one decoder serves one stream.
type FrameDecoder struct {
	raw        []byte // decoded text accumulated so far
	pending    []byte // incomplete trailing UTF-8 sequence held for next feed
	sentinelAt int    // offset of the first sentinel in raw, -1 until found
	reported   int    // display bytes already returned as deltas
	finished   bool
}

// NewFrameDecoder creates a decoder for one response stream.
func NewFrameDecoder() *FrameDecoder {
	return &FrameDecoder{sentinelAt: -1}
}

// Feed consumes one network chunk and returns the newly displayable text.
//
// The returned delta is only the portion of the display text not previously
// reported, so callers can update a terminal incrementally. An empty delta is
// normal while metadata is streaming in or a possible sentinel prefix is
// pending. Returns ErrSentinelRepeated if the sentinel occurs a second time.
func (d *FrameDecoder) Feed(chunk []byte) (string, error) {
	data := chunk
	if len(d.pending) > 0 {
		data = append(d.pending, chunk...)
		d.pending = nil
	}

	complete, rest := splitIncompleteRune(data)
	if len(rest) > 0 {
		d.pending = append([]byte(nil), rest...)
	}
	d.raw = append(d.raw, complete...)

	if d.sentinelAt < 0 {
		if idx := bytes.Index(d.raw, sentinelBytes); idx >= 0 {
			d.sentinelAt = idx
		}
	}
	if d.sentinelAt >= 0 && bytes.Contains(d.MetadataRegion(), sentinelBytes) {
		return "", ErrSentinelRepeated
	}

	return d.nextDelta(), nil
}

// Finish flushes the decoder at end of stream and returns the final delta.
//
// Any withheld sentinel-prefix bytes turn out to be ordinary prose and are
// released. A dangling incomplete UTF-8 sequence decodes to U+FFFD, matching
// an eager text decoder's end-of-input behavior.
func (d *FrameDecoder) Finish() string {
	if d.finished {
		return ""
	}
	d.finished = true
	if len(d.pending) > 0 {
		d.raw = utf8.AppendRune(d.raw, utf8.RuneError)
		d.pending = nil
	}
	if d.sentinelAt >= 0 {
		return ""
	}
	delta := string(d.raw[d.reported:])
	d.reported = len(d.raw)
	return delta
}

// SentinelFound reports whether the sentinel has been seen.
func (d *FrameDecoder) SentinelFound() bool {
	return d.sentinelAt >= 0
}

// DisplayText returns everything before the sentinel, or the whole buffer
// while no sentinel has been found. Once the sentinel is found its length
// never changes again.
func (d *FrameDecoder) DisplayText() string {
	if d.sentinelAt >= 0 {
		return string(d.raw[:d.sentinelAt])
	}
	return string(d.raw)
}

// MetadataRegion returns the raw bytes after the sentinel, growing as chunks
// arrive. Nil while no sentinel has been found.
func (d *FrameDecoder) MetadataRegion() []byte {
	if d.sentinelAt < 0 {
		return nil
	}
	return d.raw[d.sentinelAt+len(sentinelBytes):]
}

// nextDelta advances the reported watermark and returns the fresh display
// bytes. The watermark never enters a suffix that could still become the
// sentinel, and never crosses the sentinel once found.
func (d *FrameDecoder) nextDelta() string {
	end := d.displayEnd()
	if end <= d.reported {
		return ""
	}
	delta := string(d.raw[d.reported:end])
	d.reported = end
	return delta
}

func (d *FrameDecoder) displayEnd() int {
	if d.sentinelAt >= 0 {
		return d.sentinelAt
	}
	n := len(d.raw)
	max := len(sentinelBytes) - 1
	if max > n {
		max = n
	}
	for k := max; k > 0; k-- {
		if bytes.Equal(d.raw[n-k:], sentinelBytes[:k]) {
			return n - k
		}
	}
	return n
}

// splitIncompleteRune splits data into the longest prefix ending on a rune
// boundary and the incomplete trailing sequence, if any. The sentinel is
// ASCII, so withheld bytes here never interact with sentinel detection.
// Malformed sequences are passed through unchanged rather than held forever.
func splitIncompleteRune(data []byte) (complete, rest []byte) {
	n := len(data)
	if n == 0 {
		return data, nil
	}
	i := n - 1
	for i >= 0 && n-i < utf8.UTFMax && data[i]&0xC0 == 0x80 {
		i--
	}
	if i < 0 {
		return data, nil
	}
	b := data[i]
	var need int
	switch {
	case b < 0x80:
		return data, nil
	case b&0xE0 == 0xC0:
		need = 2
	case b&0xF0 == 0xE0:
		need = 3
	case b&0xF8 == 0xF0:
		need = 4
	default:
		// Stray continuation or invalid lead byte; not decodable later.
		return data, nil
	}
	if n-i < need {
		return data[:i], data[i:]
	}
	return data, nil
}
