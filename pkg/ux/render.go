// Copyright (C) 2025 Driftwood AI (dev@driftwood.sh)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package ux

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/driftwood-ai/driftwood/pkg/transcript"
)

// StreamRenderer writes a streamed answer to the terminal as it arrives.
//
// It shows a spinner while waiting for the first chunk, prints display deltas
// incrementally, and renders the citation box once the answer is done. In
// machine mode the answer is buffered and printed as one line, matching the
// other machine-mode output in this package.
//
// Deltas from the decoder are monotone, so the renderer only ever appends;
// it never repaints or retracts printed text.
type StreamRenderer struct {
	writer      io.Writer
	personality PersonalityLevel
	ui          ChatUI
	spinner     *Spinner
	started     bool
	buffered    strings.Builder
	sources     transcript.CitationList
}

// NewStreamRenderer creates a renderer writing to stdout.
func NewStreamRenderer() *StreamRenderer {
	p := GetPersonality()
	return &StreamRenderer{
		writer:      os.Stdout,
		personality: p.Level,
		ui:          NewChatUI(),
	}
}

// NewStreamRendererWithWriter creates a renderer with a custom writer (for testing)
func NewStreamRendererWithWriter(w io.Writer, personality PersonalityLevel) *StreamRenderer {
	return &StreamRenderer{
		writer:      w,
		personality: personality,
		ui:          NewChatUIWithWriter(w, personality),
	}
}

// Begin starts the waiting spinner. Call before the request is sent.
func (r *StreamRenderer) Begin(message string) {
	if r.personality == PersonalityMachine {
		return
	}
	r.spinner = NewSpinner(message).WithType(SpinnerWave)
	r.spinner.Start()
}

// OnDelta prints one display delta. The spinner stops on the first delta.
func (r *StreamRenderer) OnDelta(delta string) {
	if !r.started {
		r.started = true
		r.stopSpinner()
	}

	if r.personality == PersonalityMachine {
		r.buffered.WriteString(delta)
		return
	}
	fmt.Fprint(r.writer, delta)
}

// OnSources records the latest citation parse for rendering at Done.
func (r *StreamRenderer) OnSources(sources transcript.CitationList) {
	r.sources = sources
}

// Done finalizes the rendered answer: closing newline, citation box, and the
// buffered machine-mode output. Safe to call when no delta ever arrived.
func (r *StreamRenderer) Done() {
	r.stopSpinner()

	if r.personality == PersonalityMachine {
		if r.buffered.Len() > 0 {
			fmt.Fprintf(r.writer, "ANSWER: %s\n", r.buffered.String())
		}
	} else if r.started {
		fmt.Fprintln(r.writer)
	}

	if len(r.sources) > 0 {
		r.ui.Sources(r.sources)
	} else {
		r.ui.NoSources()
	}
}

// Stopped finalizes a cancelled answer: whatever was printed stays, followed
// by a stop notice. Citations are not rendered for a stopped answer.
func (r *StreamRenderer) Stopped() {
	r.stopSpinner()

	if r.personality == PersonalityMachine {
		if r.buffered.Len() > 0 {
			fmt.Fprintf(r.writer, "ANSWER: %s\n", r.buffered.String())
		}
	} else if r.started {
		fmt.Fprintln(r.writer)
	}
	r.ui.Stopped()
}

// Fail finalizes a failed answer, keeping any partial text on screen.
func (r *StreamRenderer) Fail(err error) {
	r.stopSpinner()

	if r.personality != PersonalityMachine && r.started {
		fmt.Fprintln(r.writer)
	}
	r.ui.Error(err)
}

func (r *StreamRenderer) stopSpinner() {
	if r.spinner != nil {
		r.spinner.Stop()
		r.spinner = nil
	}
}
