package ui

import (
	"fmt"
	"image/color"
	"strings"
	"time"

	"charm.land/lipgloss/v2"
)

var (
	// Dark gray background matching the lipgloss example
	statusBarBg = lipgloss.Color("#353533")
	// Bright magenta for the status pill and time highlight
	statusPillBg    = lipgloss.Color("#FF5FAF")
	statusPillBgOff = lipgloss.Color("#6C5098")
	// Violet for the time pill
	statusTimeBg = lipgloss.Color("#6124DF")
	statusUserBg = lipgloss.Color("#7B5EA7")
)

type statusModel struct {
	text      string
	connected bool
	chatTitle string
	userName  string
	unread    int
	syncedAt  time.Time
	width     int
}

func newStatusModel() statusModel {
	return statusModel{text: "Offline"}
}

// SetWidth sets the full terminal width for the status bar.
func (m statusModel) SetWidth(w int) statusModel {
	m.width = w
	return m
}

func pill(bg color.Color, text string) string {
	return lipgloss.NewStyle().
		Background(bg).
		Foreground(lipgloss.Color("#FFFFFF")).
		Bold(true).
		Padding(0, 1).
		Render(text)
}

// View renders a full-width status bar:
// [STATUS pill] [chat title] ... [unread] [user name] [time pill]
func (m statusModel) View() string {
	pillBg := statusPillBgOff
	if m.connected {
		pillBg = statusPillBg
	}
	left := pill(pillBg, strings.ToUpper(m.text))
	if m.chatTitle != "" {
		left += pill(statusBarBg, m.chatTitle)
	}

	var right string
	if m.unread > 0 {
		right += pill(statusBarBg, fmt.Sprintf("%d unread", m.unread))
	}
	if m.userName != "" {
		right += pill(statusUserBg, m.userName)
	}
	clock := time.Now().Format("15:04")
	if !m.syncedAt.IsZero() {
		clock = "synced " + m.syncedAt.Format("15:04:05")
	}
	right += pill(statusTimeBg, clock)

	// Fill gap between left and right
	gap := m.width - lipgloss.Width(left) - lipgloss.Width(right)
	if gap < 0 {
		gap = 0
	}
	filler := lipgloss.NewStyle().
		Background(statusBarBg).
		Render(strings.Repeat(" ", gap))

	return lipgloss.NewStyle().
		Background(statusBarBg).
		MaxWidth(m.width).
		Render(left + filler + right)
}
