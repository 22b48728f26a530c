// Package download runs the single-slot model download lifecycle: it accepts
// one request at a time, supervises its transfer, installs the finished file
// and reports exactly one outcome per accepted request.
package download

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"modelfetch/internal/catalog"
	"modelfetch/internal/progress"
	"modelfetch/internal/transfer"
)

var (
	// ErrAlreadyInstalled rejects a request whose installed file exists
	ErrAlreadyInstalled = errors.New("model file already exists, no need to download again")
	// ErrBusy rejects a request while another download is active
	ErrBusy = errors.New("a download is already in progress")
	// ErrUnknownVariant is returned for identifiers not in the catalog
	ErrUnknownVariant = catalog.ErrUnknownVariant
	// ErrInsufficientSpace rejects a request the staging volume cannot hold
	ErrInsufficientSpace = errors.New("insufficient free space")
	// ErrNoSource is returned when the source policy yields no URL for a variant
	ErrNoSource = errors.New("no download source for variant")
	// ErrTransferFailed wraps the message of a failed transfer in an error outcome
	ErrTransferFailed = errors.New("download failed")
	// ErrClosed is returned after Close
	ErrClosed = errors.New("download controller closed")
)

// ConnectingStatus is the status shown before the first progress snapshot
const ConnectingStatus = "Connecting..."

// StagingSubdir is the directory under the cache dir that holds partial files
const StagingSubdir = "whisper_models"

// State is the lifecycle state of an Operation
type State int

const (
	// StatePending means the operation was accepted but not started
	StatePending State = iota
	// StateConnecting means the transfer started without progress yet
	StateConnecting
	// StateInProgress means at least one progress snapshot arrived
	StateInProgress
	// StateInstalling means the transfer completed and the file is being moved
	StateInstalling
	// StateSucceeded is terminal: file installed
	StateSucceeded
	// StateFailed is terminal: transfer or install failed
	StateFailed
	// StateCancelled is terminal: stopped on request
	StateCancelled
)

// String returns the string representation of the state
func (s State) String() string {
	switch s {
	case StatePending:
		return "pending"
	case StateConnecting:
		return "connecting"
	case StateInProgress:
		return "in_progress"
	case StateInstalling:
		return "installing"
	case StateSucceeded:
		return "succeeded"
	case StateFailed:
		return "failed"
	case StateCancelled:
		return "cancelled"
	default:
		return "unknown"
	}
}

// SourcePolicy selects which catalog URLs a download uses
type SourcePolicy string

const (
	// SourceMirror downloads from the mirror URL only
	SourceMirror SourcePolicy = "mirror"
	// SourcePrimary downloads from the primary URL only
	SourcePrimary SourcePolicy = "primary"
	// SourceMirrorFallback tries the mirror, then the primary URL after a failure
	SourceMirrorFallback SourcePolicy = "mirror-fallback"
)

// ParseSourcePolicy converts a config string; empty selects SourceMirror
func ParseSourcePolicy(s string) (SourcePolicy, error) {
	switch p := SourcePolicy(strings.ToLower(strings.TrimSpace(s))); p {
	case "":
		return SourceMirror, nil
	case SourceMirror, SourcePrimary, SourceMirrorFallback:
		return p, nil
	default:
		return "", fmt.Errorf("unknown source policy %q (want mirror, primary or mirror-fallback)", s)
	}
}

// URLs returns the ordered source URLs for v, skipping empty ones.
// A variant lacking the preferred URL falls back to the one it has.
func (p SourcePolicy) URLs(v catalog.Variant) []string {
	var ordered []string
	switch p {
	case SourcePrimary:
		ordered = []string{v.PrimaryURL, v.MirrorURL}
	case SourceMirrorFallback:
		ordered = []string{v.MirrorURL, v.PrimaryURL}
	default:
		ordered = []string{v.MirrorURL, v.PrimaryURL}
	}

	urls := make([]string, 0, 2)
	for _, u := range ordered {
		if u != "" {
			urls = append(urls, u)
		}
	}
	if p != SourceMirrorFallback && len(urls) > 1 {
		urls = urls[:1]
	}
	return urls
}

// Operation is the single in-flight download
type Operation struct {
	Variant      catalog.Variant
	StagingPath  string
	FinalPath    string
	State        State
	LastProgress progress.Event
	Source       string
	Started      time.Time

	transfer        *transfer.Transfer
	cancelRequested bool
	// notifying is set while OnProgress runs on the supervising goroutine
	notifying bool
}

// Snapshot is a copy of the controller state for display
type Snapshot struct {
	Active      bool
	Variant     catalog.Variant
	State       State
	Progress    progress.Event
	Source      string
	StagingPath string
	FinalPath   string
}

// Status renders the user-facing status line of the snapshot
func (s Snapshot) Status() string {
	switch s.State {
	case StatePending, StateConnecting:
		return ConnectingStatus
	case StateInstalling:
		return "Installing..."
	default:
		return s.Progress.Status()
	}
}

// OutcomeKind classifies the terminal result of a request
type OutcomeKind int

const (
	// OutcomeSuccess means the file was installed
	OutcomeSuccess OutcomeKind = iota
	// OutcomeError means the transfer or install failed
	OutcomeError
	// OutcomeCancelled means the request was cancelled
	OutcomeCancelled
)

// String returns the string representation of the outcome kind
func (k OutcomeKind) String() string {
	switch k {
	case OutcomeSuccess:
		return "success"
	case OutcomeError:
		return "error"
	case OutcomeCancelled:
		return "cancelled"
	default:
		return "unknown"
	}
}

// Outcome is delivered exactly once per accepted request
type Outcome struct {
	Kind    OutcomeKind
	Variant catalog.Variant
	Path    string // installed path on success, staging path otherwise
	Err     error  // set for OutcomeError
	Source  string // last URL tried
	Elapsed time.Duration
}

// Message renders the notification text for the outcome
func (o Outcome) Message() string {
	switch o.Kind {
	case OutcomeSuccess:
		return "Model downloaded!"
	case OutcomeCancelled:
		return "Download cancelled"
	default:
		if o.Err == nil {
			return ErrTransferFailed.Error()
		}
		return o.Err.Error()
	}
}

// Observer receives progress and outcome notifications. Callbacks run on the
// controller's supervising goroutine; a slow observer delays later progress.
// OnProgress may call CancelDownload, which then returns without waiting for
// idle. Callbacks must not call Wait or Close.
type Observer interface {
	OnProgress(v catalog.Variant, ev progress.Event)
	OnOutcome(o Outcome)
}

// Lease guards the staging directory against other processes
type Lease interface {
	Acquire(variantID string) error
	Release() error
}

// Observers fans notifications out to every member in order
type Observers []Observer

// OnProgress implements Observer
func (all Observers) OnProgress(v catalog.Variant, ev progress.Event) {
	for _, obs := range all {
		obs.OnProgress(v, ev)
	}
}

// OnOutcome implements Observer
func (all Observers) OnOutcome(o Outcome) {
	for _, obs := range all {
		obs.OnOutcome(o)
	}
}

// ObserverFuncs adapts plain functions to Observer; nil fields are ignored
type ObserverFuncs struct {
	Progress func(v catalog.Variant, ev progress.Event)
	Outcome  func(o Outcome)
}

// OnProgress implements Observer
func (f ObserverFuncs) OnProgress(v catalog.Variant, ev progress.Event) {
	if f.Progress != nil {
		f.Progress(v, ev)
	}
}

// OnOutcome implements Observer
func (f ObserverFuncs) OnOutcome(o Outcome) {
	if f.Outcome != nil {
		f.Outcome(o)
	}
}

// VariantStatus describes a catalog entry with its local state
type VariantStatus struct {
	Variant      catalog.Variant
	Installed    bool
	PartialBytes int64
}
