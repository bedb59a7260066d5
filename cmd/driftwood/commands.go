// Copyright (C) 2025 Driftwood AI (dev@driftwood.sh)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package main

import (
	"github.com/driftwood-ai/driftwood/pkg/ux"
	"github.com/spf13/cobra"
)

// --- Global Command Variables ---
var (
	serverURL        string // CLI override for the server base URL
	personalityLevel string // UX personality level (full/standard/minimal/machine)
	resumeSessionID  string
	verbose          bool

	rootCmd = &cobra.Command{
		Use:   "driftwood",
		Short: "A cli to chat with your documents over a Driftwood server",
		Long: `Driftwood is a terminal client for a retrieval-augmented document
				chat server. Ask questions, stream the answers as they are
				generated, and see which documents each answer drew from.`,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			initRuntime()
		},
	}

	// --- Chat ---
	chatCmd = &cobra.Command{
		Use:   "chat",
		Short: "Starts an interactive chat session",
		Run:   runChatCommand, // Defined in cmd_chat.go
	}

	askCmd = &cobra.Command{
		Use:   "ask [question]",
		Short: "Asks a single question and streams the answer",
		Args:  cobra.MinimumNArgs(1),
		Run:   runAskCommand, // Defined in cmd_chat.go
	}

	// --- Sessions ---
	sessionCmd = &cobra.Command{
		Use:   "session",
		Short: "Manage stored conversation sessions",
	}
	listSessionsCmd = &cobra.Command{
		Use:   "list",
		Short: "List all stored conversation sessions",
		Run:   runListSessions, // Defined in cmd_session.go
	}
	sessionHistoryCmd = &cobra.Command{
		Use:   "history [session_id]",
		Short: "Print the full message history of a session",
		Args:  cobra.ExactArgs(1),
		Run:   runSessionHistory, // Defined in cmd_session.go
	}
	deleteSessionCmd = &cobra.Command{
		Use:   "delete [session_id]",
		Short: "Delete a specific conversation session",
		Args:  cobra.ExactArgs(1),
		Run:   runDeleteSession, // Defined in cmd_session.go
	}

	// --- Files ---
	filesCmd = &cobra.Command{
		Use:   "files",
		Short: "Manage the documents available to the chat server",
	}
	listFilesCmd = &cobra.Command{
		Use:   "list",
		Short: "List uploaded documents",
		Run:   runListFiles, // Defined in cmd_files.go
	}
	uploadFileCmd = &cobra.Command{
		Use:   "upload [path...]",
		Short: "Upload local documents for indexing",
		Args:  cobra.MinimumNArgs(1),
		Run:   runUploadFiles, // Defined in cmd_files.go
	}
	deleteFileCmd = &cobra.Command{
		Use:   "delete [name]",
		Short: "Delete an uploaded document and its indexed content",
		Args:  cobra.ExactArgs(1),
		Run:   runDeleteFile, // Defined in cmd_files.go
	}
)

// init runs when the Go program starts
func init() {
	rootCmd.PersistentFlags().StringVar(&serverURL, "server", "",
		"Server base URL (overrides config and DRIFTWOOD_SERVER_URL)")
	rootCmd.PersistentFlags().StringVar(&personalityLevel, "personality", "",
		"Output style: full (default), standard, minimal, or machine (scripting)")
	rootCmd.PersistentFlags().BoolVar(&verbose, "verbose", false,
		"Enable debug logging on stderr")

	rootCmd.AddCommand(chatCmd)
	chatCmd.Flags().StringVar(&resumeSessionID, "resume", "",
		"Resume a conversation using a specific session ID.")

	rootCmd.AddCommand(askCmd)
	askCmd.Flags().StringVar(&resumeSessionID, "session", "",
		"Ask within an existing session instead of starting a new one.")

	rootCmd.AddCommand(sessionCmd)
	sessionCmd.AddCommand(listSessionsCmd)
	sessionCmd.AddCommand(sessionHistoryCmd)
	sessionCmd.AddCommand(deleteSessionCmd)

	rootCmd.AddCommand(filesCmd)
	filesCmd.AddCommand(listFilesCmd)
	filesCmd.AddCommand(uploadFileCmd)
	filesCmd.AddCommand(deleteFileCmd)
}

// applyPersonality resolves the output style: flag beats config beats
// terminal auto-detection.
func applyPersonality(cfg Config) {
	switch {
	case personalityLevel != "":
		ux.SetPersonalityLevel(ux.ParsePersonalityLevel(personalityLevel))
	case cfg.Personality != "":
		ux.SetPersonalityLevel(ux.ParsePersonalityLevel(cfg.Personality))
	default:
		ux.InitPersonality()
	}
}
