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
	"time"

	"github.com/driftwood-ai/driftwood/pkg/transcript"
)

// HeaderConfig groups the optional parameters for the chat header display,
// so the header can grow new fields without breaking existing callers.
type HeaderConfig struct {
	// ServerURL is the document-chat server being queried.
	ServerURL string
	// SessionID is the resumed session identifier. Empty for new sessions.
	SessionID string
	// TurnCount is the number of loaded history messages on resume.
	TurnCount int
}

// SessionStats aggregates metrics from a chat session for display.
//
// # Description
//
// SessionStats captures accumulated metrics across all exchanges in a chat
// session. It's designed to be displayed when the session ends, giving users
// visibility into what the session covered.
//
// # Fields
//
//   - MessageCount: Number of user messages sent
//   - AnswerChars: Total characters of answer text received
//   - SourcesSeen: Number of citations received across all answers
//   - Cancelled: Number of answers the user stopped mid-stream
//   - Duration: Total session duration
//   - FirstResponseLatency: Time to first chunk of the first response
type SessionStats struct {
	MessageCount         int
	AnswerChars          int
	SourcesSeen          int
	Cancelled            int
	Duration             time.Duration
	FirstResponseLatency time.Duration
}

// ChatUI defines the interface for chat user interface operations.
// Implementations handle rendering chat elements to different outputs.
type ChatUI interface {
	// Header displays the chat session header.
	Header(config HeaderConfig)

	// Prompt returns the styled input prompt string
	Prompt() string

	// Response displays a complete assistant response (history replay)
	Response(answer string)

	// UserLine displays a replayed user message (history replay)
	UserLine(content string)

	// Sources displays the citations attached to an answer
	Sources(sources transcript.CitationList)

	// NoSources displays a message when an answer carried no citations
	NoSources()

	// Stopped displays a notice that the current answer was cancelled
	Stopped()

	// Error displays a chat error message
	Error(err error)

	// SessionResume displays session resume information
	SessionResume(sessionID string, turnCount int)

	// SessionEnd displays session end information
	SessionEnd(sessionID string)

	// SessionEndRich displays session end information with stats.
	// Falls back to SessionEnd when stats is nil.
	SessionEndRich(sessionID string, stats *SessionStats)
}

// terminalChatUI implements ChatUI for terminal output
type terminalChatUI struct {
	writer      io.Writer
	personality PersonalityLevel
	showScores  bool
}

// write is a helper that writes formatted output and handles errors.
// Errors are silently ignored as there's no meaningful recovery for terminal output.
func (u *terminalChatUI) write(format string, args ...interface{}) {
	if _, err := fmt.Fprintf(u.writer, format, args...); err != nil {
		return
	}
}

// writeln is a helper that writes a line and handles errors.
func (u *terminalChatUI) writeln(args ...interface{}) {
	if _, err := fmt.Fprintln(u.writer, args...); err != nil {
		return
	}
}

// NewChatUI creates a new terminal-based ChatUI
func NewChatUI() ChatUI {
	p := GetPersonality()
	return &terminalChatUI{
		writer:      os.Stdout,
		personality: p.Level,
		showScores:  p.ShowScores,
	}
}

// NewChatUIWithWriter creates a ChatUI with a custom writer (for testing)
func NewChatUIWithWriter(w io.Writer, personality PersonalityLevel) ChatUI {
	return &terminalChatUI{
		writer:      w,
		personality: personality,
		showScores:  true,
	}
}

// Header displays the chat session header.
func (u *terminalChatUI) Header(config HeaderConfig) {
	if u.personality == PersonalityMachine {
		parts := []string{fmt.Sprintf("server=%s", config.ServerURL)}
		if config.SessionID != "" {
			parts = append(parts, fmt.Sprintf("session=%s", config.SessionID))
		}
		u.write("CHAT_START: %s\n", strings.Join(parts, " "))
		return
	}

	if u.personality == PersonalityMinimal {
		u.write("Document Chat (%s)\n", config.ServerURL)
		if config.SessionID != "" {
			u.write("Session: %s\n", config.SessionID)
		}
		u.writeln("Type 'exit' to end.")
		return
	}

	var content strings.Builder
	content.WriteString(Styles.Highlight.Render("Document Chat"))
	content.WriteString("\n")
	content.WriteString(fmt.Sprintf("Server: %s", Styles.Success.Render(config.ServerURL)))
	if config.SessionID != "" {
		content.WriteString("\n")
		content.WriteString(fmt.Sprintf("Session: %s", Styles.Muted.Render(config.SessionID)))
		if config.TurnCount > 0 {
			content.WriteString(Styles.Muted.Render(fmt.Sprintf(" (%d messages)", config.TurnCount)))
		}
	}

	boxStyle := Styles.Box.Width(60)
	u.writeln(boxStyle.Render(content.String()))
	u.writeln()
	u.writeln(Styles.Muted.Render("Type 'exit' to end, '/help' for commands."))
	u.writeln()
}

// Prompt returns the styled input prompt string
func (u *terminalChatUI) Prompt() string {
	if u.personality == PersonalityMachine {
		return "> "
	}
	return Styles.Highlight.Render("> ")
}

// Response displays a complete assistant response
func (u *terminalChatUI) Response(answer string) {
	if u.personality == PersonalityMachine {
		u.write("RESPONSE: %s\n", answer)
		return
	}
	u.writeln(answer)
}

// UserLine displays a replayed user message
func (u *terminalChatUI) UserLine(content string) {
	if u.personality == PersonalityMachine {
		u.write("USER: %s\n", content)
		return
	}
	u.write("%s%s\n", u.Prompt(), content)
}

// Sources displays the citations attached to an answer, in server order.
// Server order is relevance order; the list is never re-sorted here.
func (u *terminalChatUI) Sources(sources transcript.CitationList) {
	if len(sources) == 0 {
		return
	}

	if u.personality == PersonalityMachine {
		for _, src := range sources {
			u.write("SOURCE: %s score=%.4f\n", src.Name, src.Score)
		}
		return
	}

	u.writeln()
	if u.personality == PersonalityMinimal {
		u.writeln("Sources:")
		for i, src := range sources {
			u.write("  %d. %s\n", i+1, src.Name)
		}
		return
	}

	var content strings.Builder
	for i, src := range sources {
		scoreInfo := ""
		if u.showScores {
			scoreInfo = Styles.Muted.Render(fmt.Sprintf(" (%.2f)", src.Score))
		}
		content.WriteString(fmt.Sprintf("%d. %s%s", i+1, src.Name, scoreInfo))
		if i < len(sources)-1 {
			content.WriteString("\n")
		}
	}

	boxStyle := Styles.Box.Width(60)
	titleLine := Styles.Subtitle.Render("Sources")
	u.writeln(boxStyle.Render(titleLine + "\n" + content.String()))
}

// NoSources displays a message when an answer carried no citations
func (u *terminalChatUI) NoSources() {
	if u.personality == PersonalityMachine {
		u.writeln("SOURCES: none")
		return
	}
	if u.personality != PersonalityMinimal {
		u.writeln(Styles.Muted.Render("(No sources from document store)"))
	}
}

// Stopped displays a notice that the current answer was cancelled
func (u *terminalChatUI) Stopped() {
	if u.personality == PersonalityMachine {
		u.writeln("STOPPED")
		return
	}
	u.writeln(Styles.Warning.Render("(answer stopped)"))
}

// Error displays a chat error message
func (u *terminalChatUI) Error(err error) {
	if u.personality == PersonalityMachine {
		u.write("CHAT_ERROR: %v\n", err)
		return
	}
	u.write("%s %s\n", IconError.Render(), Styles.Error.Render(fmt.Sprintf("Chat error: %v", err)))
}

// SessionResume displays session resume information
func (u *terminalChatUI) SessionResume(sessionID string, turnCount int) {
	if u.personality == PersonalityMachine {
		u.write("SESSION_RESUME: session=%s turns=%d\n", sessionID, turnCount)
		return
	}
	u.write("%s %s\n", IconSuccess.Render(),
		Styles.Success.Render(fmt.Sprintf("Resumed session %s (%d previous messages)", sessionID, turnCount)))
}

// SessionEnd displays session end information
func (u *terminalChatUI) SessionEnd(sessionID string) {
	if u.personality == PersonalityMachine {
		u.write("CHAT_END: session=%s\n", sessionID)
		return
	}
	if sessionID != "" {
		u.writeln(Styles.Muted.Render(fmt.Sprintf("Session: %s", sessionID)))
	}
	u.writeln("Goodbye!")
}

// SessionEndRich displays rich session end information with statistics.
//
// # Description
//
// Displays a session summary including:
//   - Session ID with visual prominence
//   - Session statistics (messages, sources, duration)
//   - The command for resuming the session later
//
// # Inputs
//
//   - sessionID: The session identifier. May be empty for unbound sessions.
//   - stats: Session statistics. If nil, falls back to SessionEnd behavior.
//
// # Outputs
//
// None. Writes directly to the configured writer.
//
// # Limitations
//
//   - Box rendering assumes a terminal width of at least 68 characters
//
// # Assumptions
//
//   - Writer is available and writable
func (u *terminalChatUI) SessionEndRich(sessionID string, stats *SessionStats) {
	if stats == nil {
		u.SessionEnd(sessionID)
		return
	}

	if u.personality == PersonalityMachine {
		u.write("CHAT_END: session=%s messages=%d sources=%d cancelled=%d duration=%s\n",
			sessionID, stats.MessageCount, stats.SourcesSeen, stats.Cancelled,
			stats.Duration.Round(time.Millisecond))
		return
	}

	if u.personality == PersonalityMinimal {
		u.writeln()
		if sessionID != "" {
			u.write("Session: %s\n", sessionID)
		}
		u.write("Messages: %d | Sources: %d | Duration: %s\n",
			stats.MessageCount, stats.SourcesSeen, formatDuration(stats.Duration))
		u.writeln("Goodbye!")
		return
	}

	u.sessionEndRichFull(sessionID, stats)
}

func (u *terminalChatUI) sessionEndRichFull(sessionID string, stats *SessionStats) {
	u.writeln()

	var content strings.Builder
	content.WriteString(Styles.Subtitle.Render("Session Summary"))
	content.WriteString("\n\n")

	if sessionID != "" {
		content.WriteString(fmt.Sprintf("  %s  %s\n",
			Styles.Muted.Render("ID:"),
			Styles.Highlight.Render(sessionID)))
	}

	content.WriteString("\n")
	content.WriteString(Styles.Subtitle.Render("Statistics"))
	content.WriteString("\n\n")

	content.WriteString(fmt.Sprintf("  %s  %d messages exchanged\n",
		IconBullet.Render(), stats.MessageCount))
	if stats.SourcesSeen > 0 {
		content.WriteString(fmt.Sprintf("  %s  %d sources referenced\n",
			IconDoc.Render(), stats.SourcesSeen))
	}
	if stats.Cancelled > 0 {
		content.WriteString(fmt.Sprintf("  %s  %d answers stopped early\n",
			IconWarning.Render(), stats.Cancelled))
	}
	content.WriteString(fmt.Sprintf("  %s  %s session duration\n",
		IconWave.Render(), formatDuration(stats.Duration)))
	if stats.FirstResponseLatency > 0 {
		content.WriteString(fmt.Sprintf("  %s  %s time to first response\n",
			Styles.Muted.Render("⚡"), formatDuration(stats.FirstResponseLatency)))
	}

	if sessionID != "" {
		content.WriteString("\n")
		content.WriteString(Styles.Subtitle.Render("Continue Later"))
		content.WriteString("\n\n")
		content.WriteString(fmt.Sprintf("  %s\n",
			Styles.Muted.Render("Resume this session:")))
		content.WriteString(fmt.Sprintf("  %s\n",
			Styles.Success.Render(fmt.Sprintf("driftwood chat --resume %s", sessionID))))
	}

	// Width 68 accommodates the resume command plus a UUID
	boxStyle := Styles.Box.Width(68)
	u.writeln(boxStyle.Render(content.String()))
	u.writeln()
	u.writeln(Styles.Highlight.Render("Goodbye!"))
}

// formatDuration formats a duration for human-readable display.
func formatDuration(d time.Duration) string {
	if d < time.Second {
		return fmt.Sprintf("%dms", d.Milliseconds())
	}
	if d < time.Minute {
		return fmt.Sprintf("%.1fs", d.Seconds())
	}
	if d < time.Hour {
		mins := int(d.Minutes())
		secs := int(d.Seconds()) % 60
		if secs == 0 {
			return fmt.Sprintf("%dm", mins)
		}
		return fmt.Sprintf("%dm %ds", mins, secs)
	}
	hours := int(d.Hours())
	mins := int(d.Minutes()) % 60
	return fmt.Sprintf("%dh %dm", hours, mins)
}

// RelativeTime converts a timestamp string from the session listing to a
// display string, falling back to the raw value when it isn't a timestamp
// the client recognizes.
func RelativeTime(raw string) string {
	t, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		return raw
	}
	diff := time.Since(t)

	if diff < time.Minute {
		return "just now"
	}
	if diff < time.Hour {
		mins := int(diff.Minutes())
		if mins == 1 {
			return "1 min ago"
		}
		return fmt.Sprintf("%d mins ago", mins)
	}
	if diff < 24*time.Hour {
		hours := int(diff.Hours())
		if hours == 1 {
			return "1h ago"
		}
		return fmt.Sprintf("%dh ago", hours)
	}
	if diff < 7*24*time.Hour {
		days := int(diff.Hours() / 24)
		if days == 1 {
			return "1 day ago"
		}
		return fmt.Sprintf("%d days ago", days)
	}
	return t.Format("Jan 2, 2006")
}
