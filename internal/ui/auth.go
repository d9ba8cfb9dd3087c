package ui

import (
	"strings"

	"charm.land/bubbles/v2/textinput"
	tea "charm.land/bubbletea/v2"
	"charm.land/lipgloss/v2"
)

const (
	authFieldUsername = iota
	authFieldPassword
)

// AuthModel is the login screen. Enter logs in, ctrl+r registers the
// entered username instead.
type AuthModel struct {
	username textinput.Model
	password textinput.Model
	field    int
	message  string
	busy     bool
	visible  bool

	width, height int
}

func NewAuthModel() AuthModel {
	u := textinput.New()
	u.Prompt = "Username: "
	u.CharLimit = 64

	p := textinput.New()
	p.Prompt = "Password: "
	p.EchoMode = textinput.EchoPassword
	p.EchoCharacter = '•'
	p.CharLimit = 128

	return AuthModel{username: u, password: p}
}

func (m AuthModel) IsVisible() bool { return m.visible }

// Show displays the login screen with an optional message (an error or a
// reason the user has to log in again). The username is kept.
func (m AuthModel) Show(message string) AuthModel {
	m.visible = true
	m.busy = false
	m.message = message
	m.password.Reset()
	if strings.TrimSpace(m.username.Value()) == "" {
		m.field = authFieldUsername
	} else {
		m.field = authFieldPassword
	}
	return m.focusField()
}

func (m AuthModel) Hide() AuthModel {
	m.visible = false
	m.busy = false
	m.message = ""
	m.password.Reset()
	return m
}

// SetUsername pre-fills the username field.
func (m AuthModel) SetUsername(name string) AuthModel {
	m.username.SetValue(name)
	return m
}

func (m AuthModel) SetSize(w, h int) AuthModel {
	m.width = w
	m.height = h
	return m
}

func (m AuthModel) focusField() AuthModel {
	if m.field == authFieldUsername {
		m.username.Focus()
		m.password.Blur()
	} else {
		m.password.Focus()
		m.username.Blur()
	}
	return m
}

func (m AuthModel) Update(msg tea.Msg) (AuthModel, tea.Cmd) {
	if key, ok := msg.(tea.KeyMsg); ok {
		if m.busy {
			return m, nil
		}
		switch key.String() {
		case "tab", "shift+tab", "up", "down":
			m.field = 1 - m.field
			return m.focusField(), nil
		case "enter", "ctrl+r":
			return m.submit(key.String() == "ctrl+r")
		}
	}

	var cmd tea.Cmd
	if m.field == authFieldUsername {
		m.username, cmd = m.username.Update(msg)
	} else {
		m.password, cmd = m.password.Update(msg)
	}
	return m, cmd
}

func (m AuthModel) submit(register bool) (AuthModel, tea.Cmd) {
	username := strings.TrimSpace(m.username.Value())
	password := m.password.Value()
	if username == "" {
		m.field = authFieldUsername
		m.message = "Username is required"
		return m.focusField(), nil
	}
	if password == "" {
		m.field = authFieldPassword
		m.message = "Password is required"
		return m.focusField(), nil
	}

	m.busy = true
	m.message = ""
	return m, func() tea.Msg {
		return authSubmitMsg{username: username, password: password, register: register}
	}
}

func (m AuthModel) View() string {
	var b strings.Builder
	b.WriteString(lipgloss.NewStyle().Bold(true).Foreground(highlightColor).Render("sschat"))
	b.WriteString("\n\n")
	b.WriteString(m.username.View())
	b.WriteString("\n")
	b.WriteString(m.password.View())
	b.WriteString("\n\n")

	switch {
	case m.busy:
		b.WriteString(emptyStyle.Render("Logging in..."))
	case m.message != "":
		b.WriteString(errorStyle.Render(m.message))
	}
	b.WriteString("\n\n")
	b.WriteString(timeStyle.Render("enter log in · ctrl+r register · tab switch field · ctrl+c quit"))

	box := lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForegroundBlend(rainbowBlend...).
		Padding(1, 3).
		Width(min(max(m.width-4, 20), 64)).
		Render(b.String())

	if m.width == 0 || m.height == 0 {
		return box
	}
	return lipgloss.Place(m.width, m.height, lipgloss.Center, lipgloss.Center, box)
}
