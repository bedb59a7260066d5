// Copyright (C) 2025 Driftwood AI (dev@driftwood.sh)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/driftwood-ai/driftwood/pkg/ux"
)

// runChatCommand starts the interactive chat loop.
//
// # Description
//
// Builds an InteractiveChatRunner against the configured server, optionally
// resuming a stored session, and runs it until the user exits.
//
// Signal handling is split in two: SIGTERM cancels the outer context and
// shuts the loop down gracefully, while SIGINT is handled per answer inside
// the loop, stopping only the in-flight stream. At the prompt the
// interactive reader maps Ctrl+C to line-clear and Ctrl+D to exit.
func runChatCommand(cmd *cobra.Command, args []string) {
	runner := NewInteractiveChatRunner(InteractiveChatRunnerConfig{
		ServerURL: config.ServerURL,
	})
	defer func() {
		if err := runner.Close(); err != nil {
			slog.Error("failed to close chat runner", "error", err)
		}
	}()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGTERM)
	go func() {
		<-sigCh
		cancel()
	}()

	if resumeSessionID != "" {
		if err := runner.Resume(ctx, resumeSessionID); err != nil {
			ux.Error(err.Error())
			os.Exit(1)
		}
	}

	if err := runner.Run(ctx); err != nil && err != context.Canceled {
		slog.Error("chat loop failed", "error", err)
		os.Exit(1)
	}
}

// runAskCommand streams the answer to a single question and exits.
//
// One conversation turn against the server: the question goes out, the
// answer streams to the terminal as it is generated, and citations print
// once the metadata arrives. Ctrl+C stops the stream and keeps the partial
// answer; the exit code is zero because the partial output is still valid.
func runAskCommand(cmd *cobra.Command, args []string) {
	question := strings.Join(args, " ")

	renderer := ux.NewStreamRenderer()
	service := NewStreamingChatService(ChatServiceConfig{
		BaseURL:   config.ServerURL,
		SessionID: resumeSessionID,
		OnDelta:   renderer.OnDelta,
		OnSources: renderer.OnSources,
	})

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	renderer.Begin("retrieving...")
	outcome, err := service.SendMessage(ctx, question)
	if err != nil {
		renderer.Fail(err)
		os.Exit(1)
	}

	if outcome.Cancelled() {
		renderer.Stopped()
	} else {
		renderer.Done()
	}

	if outcome.SessionID != "" && ux.IsInteractive() {
		ux.Muted(fmt.Sprintf("Session %s (continue with: driftwood chat --resume %s)",
			outcome.SessionID, outcome.SessionID))
	}
}
