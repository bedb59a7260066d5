// Copyright (C) 2025 Driftwood AI (dev@driftwood.sh)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package stream

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/driftwood-ai/driftwood/pkg/transcript"
)

// State is the lifecycle position of one stream consumption.
type State int

const (
	StateIdle State = iota
	StateStreaming
	StateCompleted
	StateCancelled
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateStreaming:
		return "streaming"
	case StateCompleted:
		return "completed"
	case StateCancelled:
		return "cancelled"
	case StateFailed:
		return "failed"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// Terminal reports whether the state is an end state.
func (s State) Terminal() bool {
	return s == StateCompleted || s == StateCancelled || s == StateFailed
}

// Callbacks notify a renderer as the stream progresses. Either field may be
// nil. Callbacks run synchronously on the consuming goroutine, so effects of
// one chunk are fully applied before the next chunk is read.
type Callbacks struct {
	// OnDelta receives each non-empty display delta in order.
	OnDelta func(delta string)
	// OnSources receives each successful citation parse; later calls
	// supersede earlier ones as the metadata region grows.
	OnSources func(sources transcript.CitationList)
}

// Consumer drives one response stream to a terminal state, applying every
// chunk's effects to the message log in arrival order.
//
// The caller owns the log's stream lifecycle: BeginStream before Run,
// EndStream after, on every path. The consumer only replaces the in-progress
// tail. One consumer serves one stream; a single goroutine calls Run.
type Consumer struct {
	dec     *FrameDecoder
	log     *transcript.Log
	cb      Callbacks
	sources transcript.CitationList
	state   State
}

// NewConsumer creates a consumer that writes into log and reports to cb.
func NewConsumer(log *transcript.Log, cb Callbacks) *Consumer {
	return &Consumer{dec: NewFrameDecoder(), log: log, cb: cb, state: StateIdle}
}

// State returns the consumer's current lifecycle state.
func (c *Consumer) State() State {
	return c.state
}

// Sources returns the last successfully parsed citation list, nil if none.
func (c *Consumer) Sources() transcript.CitationList {
	return c.sources
}

// Run reads r until end of stream, cancellation, or error.
//
// Cancellation is cooperative: the context is checked before every read and a
// chunk that races with cancellation is discarded, so no further effects are
// applied after cancel. A cancelled stream is a valid outcome, not an error:
// Run returns (StateCancelled, nil) and whatever partial answer was applied
// stays in the log. Transport failures return (StateFailed, err) with the
// partial answer likewise retained.
func (c *Consumer) Run(ctx context.Context, r io.Reader) (State, error) {
	c.state = StateStreaming
	buf := make([]byte, 4096)
	for {
		select {
		case <-ctx.Done():
			c.state = StateCancelled
			return c.state, nil
		default:
		}

		n, err := r.Read(buf)
		if n > 0 {
			if ctx.Err() != nil {
				c.state = StateCancelled
				return c.state, nil
			}
			if aerr := c.apply(buf[:n]); aerr != nil {
				c.state = StateFailed
				return c.state, aerr
			}
		}
		if err == io.EOF {
			if ferr := c.finish(); ferr != nil {
				c.state = StateFailed
				return c.state, ferr
			}
			c.state = StateCompleted
			return c.state, nil
		}
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, context.Canceled) {
				c.state = StateCancelled
				return c.state, nil
			}
			c.state = StateFailed
			return c.state, fmt.Errorf("read stream: %w", err)
		}
	}
}

// apply feeds one chunk through the decoder and applies its effects in order:
// citation reparse, log replacement, then the delta callback.
func (c *Consumer) apply(chunk []byte) error {
	delta, err := c.dec.Feed(chunk)
	if err != nil {
		return err
	}
	if c.dec.SentinelFound() {
		if list, ok := ParseCitations(c.dec.MetadataRegion()); ok {
			c.sources = list
			if c.cb.OnSources != nil {
				c.cb.OnSources(list)
			}
		}
	}
	if err := c.log.ReplaceLast(c.dec.DisplayText(), c.sources); err != nil {
		return err
	}
	if delta != "" && c.cb.OnDelta != nil {
		c.cb.OnDelta(delta)
	}
	return nil
}

func (c *Consumer) finish() error {
	delta := c.dec.Finish()
	if err := c.log.ReplaceLast(c.dec.DisplayText(), c.sources); err != nil {
		return err
	}
	if delta != "" && c.cb.OnDelta != nil {
		c.cb.OnDelta(delta)
	}
	return nil
}
