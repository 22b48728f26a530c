// Package transfer supervises a single resumable download and reports its
// lifecycle as an ordered event stream: zero or more Progress events followed
// by exactly one terminal event (Completed, Failed or Cancelled).
package transfer

import (
	"context"
	"path/filepath"

	"modelfetch/internal/progress"
)

// Request describes one download into the staging area
type Request struct {
	SourceURL       string
	StagingDir      string
	StagingFilename string
}

// StagingPath returns the file the transfer writes to
func (r Request) StagingPath() string {
	return filepath.Join(r.StagingDir, r.StagingFilename)
}

// EventKind tags an Event
type EventKind int

const (
	// EventProgress carries a progress snapshot
	EventProgress EventKind = iota
	// EventCompleted reports a successful transfer
	EventCompleted
	// EventFailed reports a failed transfer; Message holds the reason
	EventFailed
	// EventCancelled reports a transfer stopped by Cancel or context cancellation
	EventCancelled
)

// String returns the string representation of the kind
func (k EventKind) String() string {
	switch k {
	case EventProgress:
		return "progress"
	case EventCompleted:
		return "completed"
	case EventFailed:
		return "failed"
	case EventCancelled:
		return "cancelled"
	default:
		return "unknown"
	}
}

// Terminal reports whether the kind ends a transfer
func (k EventKind) Terminal() bool {
	return k != EventProgress
}

// FailureKind classifies EventFailed
type FailureKind string

const (
	// FailureNone is set on non-failure events
	FailureNone FailureKind = ""
	// FailureStaging means the staging directory could not be prepared
	FailureStaging FailureKind = "staging"
	// FailureSpawn means the transfer agent could not be launched
	FailureSpawn FailureKind = "spawn"
	// FailureTransfer means the agent ran and reported an error
	FailureTransfer FailureKind = "transfer"
)

// Event is one item of a transfer's event stream
type Event struct {
	Kind     EventKind
	Progress progress.Event
	Failure  FailureKind
	Message  string
	ExitCode int
}

// Agent starts transfers. Implementations never return a nil Transfer; setup
// and spawn failures are reported as an EventFailed on the stream.
type Agent interface {
	Start(ctx context.Context, req Request) *Transfer
}
