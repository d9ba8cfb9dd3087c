package ui

import (
	"fmt"
	"io"

	"charm.land/bubbles/v2/list"
	tea "charm.land/bubbletea/v2"
	"charm.land/lipgloss/v2"

	"github.com/danhigham/sschat/internal/domain"
)

// chatItem implements list.Item for the conversation list.
type chatItem struct {
	key         domain.Key
	title       string
	unreadCount int
	online      bool
}

func (i chatItem) FilterValue() string { return i.title }

// label is the first line of the item: the title with its unread badge.
func (i chatItem) label() string {
	if i.unreadCount > 0 {
		return fmt.Sprintf("%s (%d)", i.title, i.unreadCount)
	}
	return i.title
}

func (i chatItem) subtitle() string {
	if i.key.Kind == domain.KindGroup {
		return "group"
	}
	if i.online {
		return "direct · online"
	}
	return "direct"
}

// chatItemDelegate renders a chatItem in the list.
type chatItemDelegate struct{}

func (d chatItemDelegate) Height() int                             { return 2 }
func (d chatItemDelegate) Spacing() int                            { return 1 }
func (d chatItemDelegate) Update(_ tea.Msg, _ *list.Model) tea.Cmd { return nil }

func (d chatItemDelegate) Render(w io.Writer, m list.Model, index int, item list.Item) {
	ci, ok := item.(chatItem)
	if !ok {
		return
	}

	isSelected := index == m.Index()
	// Account for the cursor prefix ("  " or "> ") in available width.
	contentWidth := m.Width() - 2
	if contentWidth < 1 {
		contentWidth = 1
	}

	titleStyle := lipgloss.NewStyle().MaxWidth(contentWidth).MaxHeight(1)
	descStyle := lipgloss.NewStyle().MaxWidth(contentWidth).MaxHeight(1).Foreground(lipgloss.Color("240"))

	cursor := "  "
	if isSelected {
		cursor = "> "
		titleStyle = titleStyle.Foreground(lipgloss.Color("170")).Bold(true)
		descStyle = descStyle.Foreground(lipgloss.Color("250"))
	}
	if ci.unreadCount > 0 {
		titleStyle = titleStyle.Bold(true)
	}

	desc := descStyle.Render(ci.subtitle())
	if ci.online {
		desc = onlineStyle.Render("●") + " " + desc
	}

	fmt.Fprintf(w, "%s%s\n%s%s", cursor, titleStyle.Render(ci.label()), "  ", desc)
}

// ChatListModel wraps bubbles/list for the conversation sidebar.
type ChatListModel struct {
	list    list.Model
	focused bool
	width   int
	height  int
}

func NewChatListModel() ChatListModel {
	delegate := chatItemDelegate{}
	l := list.New(nil, delegate, 0, 0)
	l.SetShowTitle(false)
	l.SetShowStatusBar(false)
	l.SetShowHelp(false)
	l.SetFilteringEnabled(true)
	l.DisableQuitKeybindings()

	return ChatListModel{list: l}
}

func (m ChatListModel) Update(msg tea.Msg) (ChatListModel, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		// Only handle enter for chat selection when not filtering.
		if msg.String() == "enter" && m.list.FilterState() != list.Filtering {
			if item, ok := m.list.SelectedItem().(chatItem); ok {
				return m, func() tea.Msg {
					return ChatSelectedMsg{Key: item.key}
				}
			}
			return m, nil
		}
	}

	// Delegate all other keys (including j/k and filter '/') to the list
	var cmd tea.Cmd
	m.list, cmd = m.list.Update(msg)
	return m, cmd
}

func (m ChatListModel) View() string {
	contentH := m.height - 2
	if contentH < 0 {
		contentH = 0
	}

	var content string
	if len(m.list.Items()) == 0 {
		content = emptyStyle.Render("No conversations yet.\nStart one with /dm <name>")
	} else {
		// Truncate list output to content area inside border
		content = truncateHeight(m.list.View(), contentH)
	}

	style := lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		Width(m.width).
		Height(m.height)
	style = applyBorderColor(style, m.focused)

	return style.Render(content)
}

// WithItems replaces the list contents. The cursor stays on the
// conversation it was on, even when the order changes.
func (m ChatListModel) WithItems(convs []domain.Conversation) ChatListModel {
	selected := m.SelectedKey()

	items := make([]list.Item, len(convs))
	cursor := -1
	for i, c := range convs {
		items[i] = chatItem{
			key:         c.Key,
			title:       c.Title,
			unreadCount: c.UnreadCount,
			online:      c.Online,
		}
		if c.Key == selected {
			cursor = i
		}
	}
	m.list.SetItems(items)
	if cursor >= 0 && m.list.FilterState() == list.Unfiltered {
		m.list.Select(cursor)
	}
	return m
}

// SelectedKey returns the key under the cursor, or the zero key.
func (m ChatListModel) SelectedKey() domain.Key {
	if item, ok := m.list.SelectedItem().(chatItem); ok {
		return item.key
	}
	return domain.Key{}
}

func (m ChatListModel) SetSize(w, h int) ChatListModel {
	m.width = w
	m.height = h
	innerW := w - 2
	innerH := h - 2
	if innerW < 1 {
		innerW = 1
	}
	if innerH < 1 {
		innerH = 1
	}
	m.list.SetSize(innerW, innerH)
	return m
}

func (m ChatListModel) SetFocused(f bool) ChatListModel {
	m.focused = f
	return m
}
