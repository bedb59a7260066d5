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
	"os"

	"github.com/spf13/cobra"

	"github.com/driftwood-ai/driftwood/pkg/transcript"
	"github.com/driftwood-ai/driftwood/pkg/ux"
)

// managementClient builds an APIClient for one-shot management commands,
// with the configured request timeout applied per call.
func managementClient() (*APIClient, context.Context, context.CancelFunc) {
	client := NewAPIClient(newHTTPClient(config.RequestTimeout), config.ServerURL)
	ctx, cancel := context.WithTimeout(context.Background(), config.RequestTimeout)
	return client, ctx, cancel
}

// runListSessions prints the stored sessions, most recent first.
func runListSessions(cmd *cobra.Command, args []string) {
	client, ctx, cancel := managementClient()
	defer cancel()

	sessions, err := client.ListSessions(ctx)
	if err != nil {
		ux.Error(err.Error())
		os.Exit(1)
	}

	if len(sessions) == 0 {
		ux.Muted("No stored sessions.")
		return
	}

	ux.Title("Stored Sessions")
	for _, s := range sessions {
		title := s.Title
		if title == "" {
			title = "(untitled)"
		}
		ux.Info(fmt.Sprintf("%s  %-40s  %s", s.ID, title, ux.RelativeTime(s.Date)))
	}
	ux.Muted(fmt.Sprintf("%d session(s). Resume with: driftwood chat --resume <id>", len(sessions)))
}

// runSessionHistory prints a stored session's conversation in chat form.
func runSessionHistory(cmd *cobra.Command, args []string) {
	client, ctx, cancel := managementClient()
	defer cancel()

	messages, err := client.SessionHistory(ctx, args[0])
	if err != nil {
		ux.Error(err.Error())
		os.Exit(1)
	}

	if len(messages) == 0 {
		ux.Muted("Session is empty.")
		return
	}

	ui := ux.NewChatUI()
	for _, m := range messages {
		switch m.Role {
		case transcript.RoleUser:
			ui.UserLine(m.Content)
		case transcript.RoleAssistant:
			ui.Response(m.Content)
			if len(m.Sources) > 0 {
				ui.Sources(m.Sources)
			}
		}
	}
}

// runDeleteSession removes a stored session server-side.
func runDeleteSession(cmd *cobra.Command, args []string) {
	client, ctx, cancel := managementClient()
	defer cancel()

	if err := client.DeleteSession(ctx, args[0]); err != nil {
		ux.Error(err.Error())
		os.Exit(1)
	}
	ux.Success(fmt.Sprintf("Deleted session %s", args[0]))
}
