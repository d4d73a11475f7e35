// Package watch implements the one-shot and persistent inotify readers
// (spec.md §4.6): both wrap the external `inotifywait` binary through an
// exec.Executor and turn its output into bounded, structured event
// batches.
package watch

import "time"

// Outcome classifies one Poll call.
type Outcome int

const (
	Success Outcome = iota
	TimedOut
	CommandFailed
	ToolNotFound
)

// EventRecord is one parsed "<path>|<mask_tokens>" inotifywait line.
type EventRecord struct {
	Path            string
	EventMaskFlags  []string
	RawEventTokens  string
}

// PollResult is the outcome of one Poll call.
type PollResult struct {
	Outcome  Outcome
	Events   []EventRecord
	Warnings []string
}

// StartupMode selects how the persistent reader bootstraps sessions
// across multiple watch roots (spec.md §4.6).
type StartupMode int

const (
	StartupFull StartupMode = iota
	StartupProgressive
)

const (
	maxEventsPerPoll   = 4096
	maxWarningsPerPoll = 1024
)

// DefaultRestartDelay is used when a caller does not configure one
// explicitly.
const DefaultRestartDelay = 10 * time.Second
