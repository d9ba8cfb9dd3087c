package ui

import (
	"fmt"
	"strings"
	"time"

	"charm.land/bubbles/v2/viewport"
	tea "charm.land/bubbletea/v2"
	"charm.land/lipgloss/v2"
	"github.com/charmbracelet/glamour"

	"github.com/danhigham/sschat/internal/chat"
	"github.com/danhigham/sschat/internal/domain"
)

// timestampLayouts are the created_at formats the server is known to emit.
var timestampLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02 15:04:05",
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05.999999",
}

func parseTimestamp(s string) (time.Time, bool) {
	for _, layout := range timestampLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.Local(), true
		}
	}
	return time.Time{}, false
}

// MessageViewModel displays the active conversation using a viewport and
// glamour for markdown.
type MessageViewModel struct {
	viewport viewport.Model
	renderer *glamour.TermRenderer
	mediaURL func(int64) string
	focused  bool
	width    int
	height   int

	key      domain.Key
	self     domain.User
	messages []domain.Message
}

func NewMessageViewModel(mediaURL func(int64) string) MessageViewModel {
	vp := viewport.New()
	return MessageViewModel{viewport: vp, mediaURL: mediaURL}
}

func (m MessageViewModel) Update(msg tea.Msg) (MessageViewModel, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "j":
			m.viewport.ScrollDown(1)
			return m, nil
		case "k":
			m.viewport.ScrollUp(1)
			return m, nil
		}
	}

	var cmd tea.Cmd
	m.viewport, cmd = m.viewport.Update(msg)
	return m, cmd
}

func (m MessageViewModel) View() string {
	contentH := m.height - 2
	if contentH < 0 {
		contentH = 0
	}

	content := truncateHeight(m.viewport.View(), contentH)
	if m.key.IsZero() {
		content = emptyStyle.Render("Select a conversation, or start one with /dm <name> or /group <name>.")
	}

	style := lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		Width(m.width).
		Height(m.height)
	style = applyBorderColor(style, m.focused)

	return style.Render(content)
}

func (m MessageViewModel) SetSize(w, h int) MessageViewModel {
	m.width = w
	m.height = h
	// Viewport inner: subtract border (2)
	vpW := w - 2
	vpH := h - 2
	if vpW < 1 {
		vpW = 1
	}
	if vpH < 1 {
		vpH = 1
	}
	m.viewport.SetWidth(vpW)
	m.viewport.SetHeight(vpH)
	m = m.recreateRenderer()
	m = m.renderContent()
	return m
}

func (m MessageViewModel) SetFocused(f bool) MessageViewModel {
	m.focused = f
	return m
}

// SetConversation shows msgs for key. The view is only re-rendered (and
// scrolled to the bottom) when the conversation or its messages changed, so
// polls that bring nothing new leave the scroll position alone.
func (m MessageViewModel) SetConversation(key domain.Key, self domain.User, msgs []domain.Message) MessageViewModel {
	if key == m.key && self == m.self && sameMessages(m.messages, msgs) {
		return m
	}
	m.key = key
	m.self = self
	m.messages = msgs
	return m.renderContent()
}

// Clear empties the view.
func (m MessageViewModel) Clear() MessageViewModel {
	m.key = domain.Key{}
	m.messages = nil
	m.viewport.SetContent("")
	return m
}

func sameMessages(a, b []domain.Message) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i].ID != b[i].ID || a[i].Text != b[i].Text {
			return false
		}
	}
	return true
}

func (m MessageViewModel) recreateRenderer() MessageViewModel {
	wordWrap := m.viewport.Width() - 2
	if wordWrap < 10 {
		wordWrap = 10
	}
	r, err := glamour.NewTermRenderer(
		glamour.WithStylePath("dark"),
		glamour.WithWordWrap(wordWrap),
	)
	if err == nil {
		m.renderer = r
	}
	return m
}

// senderName picks a display name for the author of msg.
func (m MessageViewModel) senderName(msg domain.Message) string {
	switch {
	case msg.FromUserID == m.self.ID && m.self.Username != "":
		return m.self.Username
	case msg.FromUsername != "":
		return msg.FromUsername
	case m.key.Kind == domain.KindDirect:
		return m.key.PeerName
	default:
		return fmt.Sprintf("user #%d", msg.FromUserID)
	}
}

func (m MessageViewModel) renderContent() MessageViewModel {
	var b strings.Builder
	var currentDate string

	if len(m.messages) == 0 && !m.key.IsZero() {
		b.WriteString(emptyStyle.Render("No messages yet."))
	}

	for _, msg := range m.messages {
		ts := ""
		if t, ok := parseTimestamp(msg.CreatedAt); ok {
			msgDate := t.Format("January 2, 2006")
			if msgDate != currentDate {
				if currentDate != "" {
					b.WriteString("\n")
				}
				sep := daySeparatorStyle.Render(fmt.Sprintf("───── %s ─────", msgDate))
				b.WriteString(sep + "\n")
				currentDate = msgDate
			}
			ts = timeStyle.Render(t.Format("15:04"))
		} else if msg.CreatedAt != "" {
			ts = timeStyle.Render(msg.CreatedAt)
		}

		var name string
		if msg.FromUserID == m.self.ID {
			name = outNameStyle.Render(m.senderName(msg) + ":")
		} else {
			name = inNameStyle.Render(m.senderName(msg) + ":")
		}
		prefix := strings.TrimSpace(ts + " " + name)

		text := msg.Text
		switch {
		case m.isImage(text):
			fmt.Fprintf(&b, "%s %s\n", prefix, m.renderImage(text))
		case hasMarkdown(text):
			fmt.Fprintf(&b, "%s\n%s\n\n", prefix, m.renderMessageText(text))
		case strings.Contains(text, "\n"):
			fmt.Fprintf(&b, "%s\n%s\n\n", prefix, text)
		default:
			fmt.Fprintf(&b, "%s %s\n", prefix, text)
		}
	}

	// Wrap content to viewport width so long lines don't overflow
	wrapped := lipgloss.NewStyle().Width(m.viewport.Width()).Render(b.String())
	m.viewport.SetContent(wrapped)
	m.viewport.GotoBottom()
	return m
}

func (m MessageViewModel) isImage(text string) bool {
	_, ok := chat.ParseImageTag(text)
	return ok
}

func (m MessageViewModel) renderImage(text string) string {
	id, _ := chat.ParseImageTag(text)
	label := fmt.Sprintf("[image #%d]", id)
	if m.mediaURL != nil {
		label += " " + m.mediaURL(id)
	}
	return imageStyle.Render(label)
}

func (m MessageViewModel) renderMessageText(text string) string {
	if m.renderer == nil {
		return text
	}

	// Glamour collapses single newlines (standard markdown paragraph
	// continuation). Multi-line constructs (tables, fenced code) are
	// rendered as a whole; other blocks line by line so line breaks survive.
	blocks := strings.Split(text, "\n\n")
	renderedBlocks := make([]string, len(blocks))

	for i, block := range blocks {
		if block == "" {
			continue
		}

		if isMultiLineMarkdown(block) {
			renderedBlocks[i] = m.renderBlock(block)
			continue
		}
		lines := strings.Split(block, "\n")
		for j, line := range lines {
			if line != "" {
				lines[j] = m.renderBlock(line)
			}
		}
		renderedBlocks[i] = strings.Join(lines, "\n")
	}

	return strings.Join(renderedBlocks, "\n")
}

// renderBlock renders a single text block through glamour, trimming whitespace.
func (m MessageViewModel) renderBlock(text string) string {
	r, err := m.renderer.Render(text)
	if err != nil {
		return text
	}
	r = strings.TrimRight(r, "\n ")
	r = strings.TrimLeft(r, "\n")
	return r
}

// hasMarkdown guesses whether text was written as markdown. Plain chat lines
// skip glamour so they keep their exact spacing.
func hasMarkdown(text string) bool {
	for _, marker := range []string{"```", "**", "__", "`", "](", "~~"} {
		if strings.Contains(text, marker) {
			return true
		}
	}
	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimSpace(line)
		if strings.HasPrefix(line, "# ") || strings.HasPrefix(line, "## ") ||
			strings.HasPrefix(line, "- ") || strings.HasPrefix(line, "> ") {
			return true
		}
	}
	return isMultiLineMarkdown(text)
}

// isMultiLineMarkdown returns true if the block is a multi-line markdown
// construct that must be rendered as a whole (tables, fenced code blocks).
func isMultiLineMarkdown(block string) bool {
	if !strings.Contains(block, "\n") {
		return false
	}
	trimmed := strings.TrimSpace(block)
	// Fenced code blocks.
	if strings.HasPrefix(trimmed, "```") {
		return true
	}
	// Tables: all lines contain pipes.
	for _, line := range strings.Split(trimmed, "\n") {
		if !strings.Contains(line, "|") {
			return false
		}
	}
	return true
}
