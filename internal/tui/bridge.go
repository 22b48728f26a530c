package tui

import (
	"sync"

	tea "github.com/charmbracelet/bubbletea"

	"modelfetch/internal/catalog"
	"modelfetch/internal/download"
	"modelfetch/internal/progress"
)

const bridgeBuffer = 64

// Bridge forwards controller notifications into the bubbletea event loop.
// It implements download.Observer.
type Bridge struct {
	events   chan tea.Msg
	stop     chan struct{}
	stopOnce sync.Once
}

// NewBridge creates a bridge
func NewBridge() *Bridge {
	return &Bridge{
		events: make(chan tea.Msg, bridgeBuffer),
		stop:   make(chan struct{}),
	}
}

// OnProgress implements download.Observer; snapshots are dropped when the UI lags
func (b *Bridge) OnProgress(v catalog.Variant, ev progress.Event) {
	select {
	case b.events <- progressMsg{variant: v, event: ev}:
	default:
	}
}

// OnOutcome implements download.Observer; it blocks until delivered or stopped
func (b *Bridge) OnOutcome(o download.Outcome) {
	select {
	case b.events <- outcomeMsg{outcome: o}:
	case <-b.stop:
	}
}

// Stop releases pending senders once the UI is gone
func (b *Bridge) Stop() {
	b.stopOnce.Do(func() { close(b.stop) })
}

// Wait returns a command that delivers the next notification
func (b *Bridge) Wait() tea.Cmd {
	return func() tea.Msg {
		select {
		case msg := <-b.events:
			return msg
		case <-b.stop:
			return nil
		}
	}
}
