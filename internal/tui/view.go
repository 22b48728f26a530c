package tui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/dustin/go-humanize"
)

var (
	titleStyle        = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#00d7ff")).MarginBottom(1)
	itemStyle         = lipgloss.NewStyle().Foreground(lipgloss.Color("#ffffff"))
	itemSelectedStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#000000")).Background(lipgloss.Color("#00d7ff")).Bold(true)
	installedStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("#87d7af")).Bold(true)
	partialStyle      = lipgloss.NewStyle().Foreground(lipgloss.Color("#808080"))
	sectionStyle      = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#ffd700")).MarginTop(1)
	statusStyle       = lipgloss.NewStyle().Foreground(lipgloss.Color("#ffffff"))
	successStyle      = lipgloss.NewStyle().Foreground(lipgloss.Color("#87d787")).Bold(true)
	errorStyle        = lipgloss.NewStyle().Foreground(lipgloss.Color("#ff5f5f")).Bold(true)
	keyStyle          = lipgloss.NewStyle().Foreground(lipgloss.Color("#87d7af")).Bold(true)
	hintStyle         = lipgloss.NewStyle().Foreground(lipgloss.Color("#5fafff")).MarginTop(1)
)

// renderVariants renders the variant list and the download panel
func (m Model) renderVariants() string {
	var b strings.Builder

	b.WriteString(titleStyle.Render("modelfetch · Download Model"))
	b.WriteString("\n\n")

	for i, vs := range m.variants {
		marker := "  "
		if vs.Installed {
			marker = installedStyle.Render("✓ ")
		}

		label := vs.Variant.DisplayName()
		if i == m.selection {
			label = itemSelectedStyle.Render(label)
		} else {
			label = itemStyle.Render(label)
		}

		b.WriteString(marker)
		b.WriteString(label)
		if !vs.Installed && vs.PartialBytes > 0 {
			b.WriteString(partialStyle.Render(fmt.Sprintf("  (partial %s)", humanize.Bytes(uint64(vs.PartialBytes)))))
		}
		b.WriteString("\n")
	}

	if m.active != "" {
		b.WriteString(sectionStyle.Render("Downloading " + m.active))
		b.WriteString("\n")
		b.WriteString(m.bar.View())
		b.WriteString("\n")
		b.WriteString(statusStyle.Render(m.status))
		b.WriteString("\n")
	}

	if m.message != "" {
		b.WriteString("\n")
		b.WriteString(successStyle.Render(m.message))
		b.WriteString("\n")
	}

	if m.lastError != "" {
		b.WriteString("\n")
		b.WriteString(errorStyle.Render("⚠ " + m.lastError))
		b.WriteString("\n")
	}

	b.WriteString("\n")
	if m.active != "" {
		b.WriteString(hintStyle.Render("Cancel: Esc/c | Help: ? | Quit: q"))
	} else {
		b.WriteString(hintStyle.Render("Navigate: ↑/↓ | Download: Enter | Refresh: r | Help: ? | Quit: q"))
	}
	b.WriteString("\n")

	return b.String()
}

// renderHelpScreen renders the help screen
func (m Model) renderHelpScreen() string {
	var b strings.Builder

	b.WriteString(titleStyle.Render("Help · Keyboard Shortcuts"))
	b.WriteString("\n\n")

	rows := []struct{ key, desc string }{
		{"↑ / ↓, k / j", "Select a model"},
		{"Enter/Space ", "Download the selected model"},
		{"Esc / c     ", "Cancel the running download (partial file is kept)"},
		{"r           ", "Refresh installed markers"},
		{"?           ", "Toggle this help"},
		{"q / Ctrl+C  ", "Quit (a running download is cancelled)"},
	}
	for _, row := range rows {
		b.WriteString(keyStyle.Render(row.key + " "))
		b.WriteString(statusStyle.Render(row.desc))
		b.WriteString("\n")
	}

	b.WriteString("\n")
	b.WriteString(hintStyle.Render("Press Esc to return"))
	b.WriteString("\n")

	return b.String()
}

// navigateUp moves selection up in the list
func (m Model) navigateUp() Model {
	if len(m.variants) == 0 {
		return m
	}
	if m.selection > 0 {
		m.selection--
	} else {
		m.selection = len(m.variants) - 1
	}
	return m
}

// navigateDown moves selection down in the list
func (m Model) navigateDown() Model {
	if len(m.variants) == 0 {
		return m
	}
	if m.selection < len(m.variants)-1 {
		m.selection++
	} else {
		m.selection = 0
	}
	return m
}
