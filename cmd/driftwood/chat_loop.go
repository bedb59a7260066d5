// Copyright (C) 2025 Driftwood AI (dev@driftwood.sh)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package main contains the Driftwood CLI interactive chat loop.
//
// This file implements ChatRunner for the document-chat conversation:
//
//	cmd_chat.go → InteractiveChatRunner → StreamingChatService (chat_service.go)
//	                                      InputReader (chat_runner.go)
//	                                      ux.ChatUI / ux.StreamRenderer
package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"time"

	"github.com/driftwood-ai/driftwood/pkg/transcript"
	"github.com/driftwood-ai/driftwood/pkg/ux"
)

// =============================================================================
// InteractiveChatRunner
// =============================================================================

// InteractiveChatRunner implements ChatRunner for the conversation loop.
//
// # Description
//
// Runs the prompt/answer loop against one StreamingChatService. Besides
// plain questions it understands:
//   - "exit" / "quit": end the session with a summary
//   - "/new": start a fresh conversation (new session binding, empty log)
//   - "/sessions": list stored sessions
//   - "/open <id>": load a stored session's history and continue it
//   - "/delete <id>": remove a stored session (resets the binding when it
//     is the active one)
//   - "/help": list the commands above
//
// Ctrl+C while an answer is streaming stops only that answer; the partial
// text is kept and the loop continues. At the prompt, the interactive reader
// treats Ctrl+C as line-clear and Ctrl+D as exit.
//
// # Thread Safety
//
// Not thread-safe. One runner, one goroutine, one Run call.
type InteractiveChatRunner struct {
	service StreamingChatService
	api     *APIClient
	ui      ux.ChatUI
	input   InputReader

	serverURL string
	resumed   int // loaded history length when resuming, 0 otherwise

	renderer         *ux.StreamRenderer
	sendStart        time.Time
	stats            ux.SessionStats
	uniqueSources    map[string]bool
	sessionStartTime time.Time
	closed           bool
}

// InteractiveChatRunnerConfig holds configuration for the chat runner.
type InteractiveChatRunnerConfig struct {
	ServerURL string // Server URL without trailing slash (required)
	SessionID string // Session id to resume (optional)
}

// NewInteractiveChatRunner creates a chat runner with production
// dependencies: real chat service, terminal UI, and interactive input with
// history.
func NewInteractiveChatRunner(config InteractiveChatRunnerConfig) *InteractiveChatRunner {
	r := &InteractiveChatRunner{
		ui:            ux.NewChatUI(),
		input:         NewInteractiveInputReader(50),
		serverURL:     config.ServerURL,
		uniqueSources: make(map[string]bool),
	}

	svc := NewStreamingChatService(ChatServiceConfig{
		BaseURL:   config.ServerURL,
		SessionID: config.SessionID,
		OnDelta:   r.onDelta,
		OnSources: r.onSources,
	})
	r.service = svc
	r.api = svc.API()
	return r
}

// NewInteractiveChatRunnerWithDeps creates a chat runner with injected
// dependencies. Use this constructor for testing with mock services and
// predetermined input.
func NewInteractiveChatRunnerWithDeps(
	service StreamingChatService,
	api *APIClient,
	ui ux.ChatUI,
	input InputReader,
	serverURL string,
) *InteractiveChatRunner {
	return &InteractiveChatRunner{
		service:       service,
		api:           api,
		ui:            ui,
		input:         input,
		serverURL:     serverURL,
		uniqueSources: make(map[string]bool),
	}
}

// Resume loads a stored session before the loop starts, so the header and
// replayed history reflect it.
func (r *InteractiveChatRunner) Resume(ctx context.Context, sessionID string) error {
	count, err := r.service.OpenSession(ctx, sessionID)
	if err != nil {
		return fmt.Errorf("resume session %s: %w", sessionID, err)
	}
	r.resumed = count
	return nil
}

// Run executes the interactive chat loop.
//
// # Description
//
// Displays the header (and replayed history when resuming), then loops:
// prompt, read input, dispatch. Slash commands and exit words are handled
// locally; everything else becomes a conversation turn. Per-turn errors are
// rendered and the loop continues; only input failure or context
// cancellation ends it.
//
// # Outputs
//
//   - error: nil on normal exit ("exit"/"quit"/EOF), the context error on
//     shutdown, or an input read failure
func (r *InteractiveChatRunner) Run(ctx context.Context) error {
	r.sessionStartTime = time.Now()

	r.ui.Header(ux.HeaderConfig{
		ServerURL: r.serverURL,
		SessionID: r.service.SessionID(),
		TurnCount: r.resumed,
	})
	if r.resumed > 0 {
		r.ui.SessionResume(r.service.SessionID(), r.resumed)
		r.replayHistory()
	}

	for {
		// Check for cancellation before blocking on input
		select {
		case <-ctx.Done():
			return r.handleShutdown(ctx)
		default:
		}

		// If the reader handles prompts (interactive mode), set it;
		// otherwise print manually
		if p, ok := r.input.(PromptingInputReader); ok {
			p.SetPrompt(r.ui.Prompt())
		} else {
			fmt.Print(r.ui.Prompt())
		}
		input, err := r.input.ReadLine()
		if err != nil {
			if err == io.EOF {
				r.displaySessionEndWithStats()
				return nil
			}
			slog.Error("failed to read input", "error", err)
			return fmt.Errorf("read input: %w", err)
		}

		if input == "" {
			continue
		}

		// Bubbletea clears its rendering area on exit, so restore the
		// visual line for interactive readers
		if _, isInteractive := r.input.(*InteractiveInputReader); isInteractive {
			fmt.Printf("%s%s\n", r.ui.Prompt(), input)
		}

		if isExitCommand(input) {
			r.displaySessionEndWithStats()
			return nil
		}

		if strings.HasPrefix(input, "/") {
			r.handleSlashCommand(ctx, input)
			continue
		}

		if err := r.handleMessage(ctx, input); err != nil {
			return r.handleShutdown(ctx)
		}
	}
}

// handleMessage drives one conversation turn.
//
// A SIGINT received while the turn is streaming cancels only this turn's
// context; the partial answer stays in the log and on screen, and the loop
// continues. Returns non-nil only when the outer context was cancelled, which
// the caller treats as shutdown.
func (r *InteractiveChatRunner) handleMessage(ctx context.Context, message string) error {
	msgCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt)
	defer signal.Stop(sigCh)
	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-sigCh:
			cancel()
		case <-done:
		}
	}()

	r.renderer = ux.NewStreamRenderer()
	r.renderer.Begin("retrieving...")
	r.sendStart = time.Now()

	outcome, err := r.service.SendMessage(msgCtx, message)
	if err != nil {
		if ctx.Err() != nil {
			r.renderer.Stopped()
			return ctx.Err()
		}
		// Per-turn failure: render and keep the loop alive
		r.renderer.Fail(err)
		return nil
	}

	if outcome.Cancelled() {
		r.stats.Cancelled++
		r.renderer.Stopped()
	} else {
		r.renderer.Done()
	}
	r.accumulateStats(outcome)
	fmt.Println()

	if ctx.Err() != nil {
		return ctx.Err()
	}
	return nil
}

// handleSlashCommand dispatches the interactive slash commands. Unknown
// commands print a hint rather than erroring.
func (r *InteractiveChatRunner) handleSlashCommand(ctx context.Context, input string) {
	fields := strings.Fields(input)
	switch fields[0] {
	case "/help":
		ux.Muted("Commands: /new  /sessions  /open <id>  /delete <id>  exit")

	case "/new":
		if err := r.service.ResetSession(); err != nil {
			r.ui.Error(err)
			return
		}
		r.resumed = 0
		ux.Success("Started a new conversation")

	case "/sessions":
		r.listSessions(ctx)

	case "/open":
		if len(fields) < 2 {
			ux.Warning("Usage: /open <session-id>")
			return
		}
		r.openSession(ctx, fields[1])

	case "/delete":
		if len(fields) < 2 {
			ux.Warning("Usage: /delete <session-id>")
			return
		}
		r.deleteSession(ctx, fields[1])

	default:
		ux.Warning(fmt.Sprintf("Unknown command %q. Try /help.", fields[0]))
	}
}

func (r *InteractiveChatRunner) listSessions(ctx context.Context) {
	reqCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	sessions, err := r.api.ListSessions(reqCtx)
	if err != nil {
		r.ui.Error(err)
		return
	}
	if len(sessions) == 0 {
		ux.Muted("No stored sessions.")
		return
	}
	for _, s := range sessions {
		ux.Info(fmt.Sprintf("%s  %s  %s", s.ID, s.Title, ux.RelativeTime(s.Date)))
	}
}

func (r *InteractiveChatRunner) openSession(ctx context.Context, sessionID string) {
	reqCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	count, err := r.service.OpenSession(reqCtx, sessionID)
	if err != nil {
		r.ui.Error(err)
		return
	}
	r.resumed = count
	r.ui.SessionResume(sessionID, count)
	r.replayHistory()
}

// deleteSession removes a stored session. Deleting the conversation this
// loop is bound to also resets the binding: the server-side identity is gone,
// so the next turn must start a fresh session.
func (r *InteractiveChatRunner) deleteSession(ctx context.Context, sessionID string) {
	reqCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	if err := r.api.DeleteSession(reqCtx, sessionID); err != nil {
		r.ui.Error(err)
		return
	}
	ux.Success(fmt.Sprintf("Deleted session %s", sessionID))

	if sessionID == r.service.SessionID() {
		if err := r.service.ResetSession(); err != nil {
			r.ui.Error(err)
			return
		}
		r.resumed = 0
		ux.Muted("That was the active session; starting a new conversation.")
	}
}

// replayHistory prints the loaded conversation so a resumed session reads
// continuously.
func (r *InteractiveChatRunner) replayHistory() {
	for _, m := range r.service.Log().Messages() {
		switch m.Role {
		case transcript.RoleUser:
			r.ui.UserLine(m.Content)
		case transcript.RoleAssistant:
			r.ui.Response(m.Content)
			if len(m.Sources) > 0 {
				r.ui.Sources(m.Sources)
			}
		}
	}
	fmt.Println()
}

// onDelta forwards a display delta to the current turn's renderer and
// records first-response latency.
func (r *InteractiveChatRunner) onDelta(delta string) {
	if r.stats.FirstResponseLatency == 0 && !r.sendStart.IsZero() {
		r.stats.FirstResponseLatency = time.Since(r.sendStart)
	}
	if r.renderer != nil {
		r.renderer.OnDelta(delta)
	}
}

// onSources forwards a citation parse to the current turn's renderer.
func (r *InteractiveChatRunner) onSources(sources transcript.CitationList) {
	if r.renderer != nil {
		r.renderer.OnSources(sources)
	}
}

// accumulateStats updates session statistics from one finished turn.
func (r *InteractiveChatRunner) accumulateStats(outcome *StreamOutcome) {
	r.stats.MessageCount++
	r.stats.AnswerChars += len(outcome.Answer)
	for _, src := range outcome.Sources {
		r.uniqueSources[src.Name] = true
	}
	r.stats.SourcesSeen = len(r.uniqueSources)
}

// displaySessionEndWithStats finalizes duration and shows the summary.
func (r *InteractiveChatRunner) displaySessionEndWithStats() {
	r.stats.Duration = time.Since(r.sessionStartTime)
	r.ui.SessionEndRich(r.service.SessionID(), &r.stats)
}

// handleShutdown performs graceful shutdown on context cancellation.
func (r *InteractiveChatRunner) handleShutdown(ctx context.Context) error {
	slog.Debug("chat loop shutting down", "session_id", r.service.SessionID())
	r.displaySessionEndWithStats()
	return ctx.Err()
}

// Close releases resources held by the runner. Safe to call multiple times.
func (r *InteractiveChatRunner) Close() error {
	if r.closed {
		return nil
	}
	r.closed = true
	return r.service.Close()
}

var _ ChatRunner = (*InteractiveChatRunner)(nil)
