package tui

import (
	"time"

	"modelfetch/internal/catalog"
	"modelfetch/internal/download"
	"modelfetch/internal/progress"
)

// Screen represents different TUI screens
type Screen string

const (
	// ScreenVariants is the variant list with the download panel
	ScreenVariants Screen = "variants"
	// ScreenHelp shows the keyboard shortcuts
	ScreenHelp Screen = "help"
)

// UIState represents the persisted UI state (ui_state.json)
type UIState struct {
	CurrentScreen Screen    `json:"screen"`
	Selection     int       `json:"selection"`
	LastError     string    `json:"last_error"`
	Updated       time.Time `json:"updated"`
}

// Downloader is the controller surface the dialog drives
type Downloader interface {
	Variants() []download.VariantStatus
	RequestDownload(variantID string) error
	CancelDownload() bool
	Status() download.Snapshot
}

// progressMsg relays a progress snapshot from the controller
type progressMsg struct {
	variant catalog.Variant
	event   progress.Event
}

// outcomeMsg relays the terminal outcome of a download
type outcomeMsg struct {
	outcome download.Outcome
}

// cancelDoneMsg reports that CancelDownload returned
type cancelDoneMsg struct {
	cancelled bool
}
