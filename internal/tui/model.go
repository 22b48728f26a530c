package tui

import (
	"errors"
	"time"

	"github.com/charmbracelet/bubbles/progress"
	tea "github.com/charmbracelet/bubbletea"

	"modelfetch/internal/download"
	"modelfetch/internal/logging"
)

const down = "down"

// Model is the interactive download dialog
type Model struct {
	startTime time.Time
	quitting  bool

	logger       *logging.Logger
	downloader   Downloader
	bridge       *Bridge
	stateManager *UIStateManager

	// UI State
	currentScreen Screen
	selection     int
	lastError     string
	message       string

	variants []download.VariantStatus

	// Download panel
	active     string // display name of the running download
	status     string
	percent    float64
	cancelling bool
	bar        progress.Model
}

// NewModel creates the dialog. bridge must be the Observer the downloader
// reports to; stateDir may be empty to disable UI state persistence.
func NewModel(logger *logging.Logger, downloader Downloader, bridge *Bridge, stateDir string) Model {
	m := Model{
		startTime:     time.Now(),
		logger:        logger,
		downloader:    downloader,
		bridge:        bridge,
		stateManager:  NewUIStateManager(stateDir, logger),
		currentScreen: ScreenVariants,
		bar: progress.New(
			progress.WithDefaultGradient(),
			progress.WithWidth(40),
		),
	}

	if state, err := m.stateManager.Load(); err == nil {
		m.currentScreen = state.CurrentScreen
		m.selection = state.Selection
		m.lastError = state.LastError
	}

	m.refreshVariants()
	if m.selection < 0 || m.selection >= len(m.variants) {
		m.selection = 0
	}

	// Reattach to a download started before the dialog opened
	if snap := downloader.Status(); snap.Active {
		m.active = snap.Variant.DisplayName()
		m.status = snap.Status()
		m.percent = snap.Progress.Clamp() / 100
	}

	return m
}

// Init starts listening for controller notifications
func (m Model) Init() tea.Cmd {
	if m.bridge == nil {
		return nil
	}
	return m.bridge.Wait()
}

// Update handles messages and updates the model
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case progressMsg:
		return m.handleProgress(msg)
	case outcomeMsg:
		return m.handleOutcome(msg)
	case cancelDoneMsg:
		m.cancelling = false
		if !msg.cancelled && m.active != "" {
			m.message = "Download is already installing and cannot be cancelled"
		}
		return m, nil
	case progress.FrameMsg:
		bar, cmd := m.bar.Update(msg)
		if pm, ok := bar.(progress.Model); ok {
			m.bar = pm
		}
		return m, cmd
	case tea.WindowSizeMsg:
		m.bar.Width = clampWidth(msg.Width - 8)
		return m, nil
	case tea.KeyMsg:
		return m.handleKey(msg.String())
	}
	return m, nil
}

func (m Model) handleKey(key string) (tea.Model, tea.Cmd) {
	if next, handled, cmd := m.handleQuitKeys(key); handled {
		return next, cmd
	}

	if next, handled := m.handleHelpKeys(key); handled {
		return next, nil
	}

	if next, handled, cmd := m.handleVariantKeys(key); handled {
		return next, cmd
	}

	return m, nil
}

func (m Model) handleQuitKeys(key string) (tea.Model, bool, tea.Cmd) {
	switch key {
	case "ctrl+c", "q":
		m.quitting = true
		m.saveState()
		if m.bridge != nil {
			m.bridge.Stop()
		}
		return m, true, tea.Quit
	}
	return m, false, nil
}

func (m Model) handleHelpKeys(key string) (tea.Model, bool) {
	switch {
	case key == "?" && m.currentScreen != ScreenHelp:
		m.currentScreen = ScreenHelp
		m.saveState()
		return m, true
	case m.currentScreen == ScreenHelp && (key == "esc" || key == "?"):
		m.currentScreen = ScreenVariants
		m.saveState()
		return m, true
	}
	return m, false
}

func (m Model) handleVariantKeys(key string) (tea.Model, bool, tea.Cmd) {
	if m.currentScreen != ScreenVariants {
		return m, false, nil
	}

	switch key {
	case "up", "k":
		return m.navigateUp(), true, nil
	case down, "j":
		return m.navigateDown(), true, nil
	case "enter", " ":
		next := m.startDownload()
		return next, true, nil
	case "esc", "c":
		return m.cancelDownload()
	case "r":
		m.refreshVariants()
		m.message = ""
		return m, true, nil
	}
	return m, false, nil
}

// startDownload requests the selected variant
func (m Model) startDownload() Model {
	if m.selection < 0 || m.selection >= len(m.variants) {
		return m
	}
	v := m.variants[m.selection].Variant

	m.message = ""
	m.lastError = ""

	err := m.downloader.RequestDownload(v.ID)
	switch {
	case err == nil:
		m.active = v.DisplayName()
		m.status = download.ConnectingStatus
		m.percent = 0
		m.logger.Info("tui.download.requested", "Download requested", map[string]interface{}{
			"variant": v.ID,
		})
	case errors.Is(err, download.ErrAlreadyInstalled):
		m.message = "Model file already exists, no need to download again"
	default:
		m.lastError = err.Error()
	}

	m.saveState()
	return m
}

// cancelDownload runs the blocking cancel off the UI goroutine
func (m Model) cancelDownload() (tea.Model, bool, tea.Cmd) {
	if m.active == "" || m.cancelling {
		return m, false, nil
	}
	m.cancelling = true
	m.status = "Cancelling..."
	downloader := m.downloader
	return m, true, func() tea.Msg {
		return cancelDoneMsg{cancelled: downloader.CancelDownload()}
	}
}

func (m Model) handleProgress(msg progressMsg) (tea.Model, tea.Cmd) {
	cmds := []tea.Cmd{m.waitCmd()}
	if m.active == "" {
		m.active = msg.variant.DisplayName()
	}
	if !m.cancelling {
		m.status = msg.event.Status()
	}
	m.percent = msg.event.Clamp() / 100
	cmds = append(cmds, m.bar.SetPercent(m.percent))
	return m, tea.Batch(cmds...)
}

func (m Model) handleOutcome(msg outcomeMsg) (tea.Model, tea.Cmd) {
	o := msg.outcome
	m.active = ""
	m.status = ""
	m.cancelling = false

	switch o.Kind {
	case download.OutcomeSuccess:
		m.message = o.Message()
		m.lastError = ""
		m.percent = 1
	case download.OutcomeCancelled:
		m.message = o.Message()
	default:
		m.lastError = "Download failed: " + o.Message()
	}

	m.refreshVariants()
	m.saveState()
	return m, m.waitCmd()
}

func (m Model) waitCmd() tea.Cmd {
	if m.bridge == nil {
		return nil
	}
	return m.bridge.Wait()
}

// View renders the TUI
func (m Model) View() string {
	if m.quitting {
		return ""
	}

	switch m.currentScreen {
	case ScreenHelp:
		return m.renderHelpScreen()
	default:
		return m.renderVariants()
	}
}

// refreshVariants reloads installed and partial markers
func (m *Model) refreshVariants() {
	m.variants = m.downloader.Variants()
}

// saveState persists the current UI state
func (m *Model) saveState() {
	state := &UIState{
		CurrentScreen: m.currentScreen,
		Selection:     m.selection,
		LastError:     m.lastError,
	}

	if err := m.stateManager.Save(state); err != nil {
		m.logger.Warn("tui.state.save_failed", "Failed to save UI state", map[string]interface{}{
			"error": err.Error(),
		})
	}
}

func clampWidth(w int) int {
	switch {
	case w < 10:
		return 10
	case w > 80:
		return 80
	default:
		return w
	}
}
