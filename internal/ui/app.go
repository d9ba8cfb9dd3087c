package ui

import (
	"context"
	"fmt"
	"time"

	tea "charm.land/bubbletea/v2"
	"charm.land/lipgloss/v2"

	"github.com/danhigham/sschat/internal/chat"
	"github.com/danhigham/sschat/internal/domain"
	"github.com/danhigham/sschat/internal/state"
)

type focusTarget int

const (
	focusChatList focusTarget = iota
	focusMessages
	focusInput
)

const chatListWidth = 36

// statusBarHeight is the single row under the panes.
const statusBarHeight = 1

// Session is what the UI needs from the chat service.
type Session interface {
	Login(ctx context.Context, username, password string) error
	Register(ctx context.Context, username, password string) error
	Logout()
	Open(ctx context.Context, key domain.Key) error
	OpenDirect(ctx context.Context, peerName string) (domain.Key, error)
	CreateGroup(ctx context.Context, name string) (domain.Key, error)
	AddMember(ctx context.Context, username string) (int64, error)
	Send(ctx context.Context, text string) error
	SendImage(ctx context.Context, path string) error
	SaveMedia(ctx context.Context, id int64, path string) error
	MediaURL(id int64) string
}

// Poller is the background poll loop, started after login.
type Poller interface {
	Start(ctx context.Context)
	Stop()
}

// Credentials optionally log in without showing the login screen.
type Credentials struct {
	Username string
	Password string
}

func (c Credentials) complete() bool { return c.Username != "" && c.Password != "" }

// Model is the root Bubble Tea model.
type Model struct {
	chatList    ChatListModel
	messageView MessageViewModel
	input       InputModel
	auth        AuthModel
	status      statusModel
	splash      SplashModel
	help        HelpModel

	ctx     context.Context
	store   *state.Store
	session Session
	poller  Poller
	creds   Credentials
	polling bool

	focus  focusTarget
	width  int
	height int
}

// NewModel creates the root model with all sub-components.
func NewModel(ctx context.Context, store *state.Store, session Session, poller Poller, creds Credentials) Model {
	m := Model{
		chatList:    NewChatListModel(),
		messageView: NewMessageViewModel(session.MediaURL),
		input:       NewInputModel(),
		auth:        NewAuthModel().SetUsername(creds.Username),
		status:      newStatusModel(),
		splash:      NewSplashModel(),
		help:        NewHelpModel(),
		ctx:         ctx,
		store:       store,
		session:     session,
		poller:      poller,
		creds:       creds,
		focus:       focusChatList,
	}
	if creds.complete() {
		m.status.text = "Logging in..."
	} else {
		m.auth = m.auth.Show("")
		m.splash = m.splash.ConnReady()
	}
	return m
}

func (m Model) Init() tea.Cmd {
	cmds := []tea.Cmd{
		tea.Tick(3*time.Second, func(time.Time) tea.Msg { return SplashDoneMsg{} }),
		clockTick(),
	}
	if m.creds.complete() {
		cmds = append(cmds, m.loginCmd(m.creds.Username, m.creds.Password, false))
	}
	return tea.Batch(cmds...)
}

func clockTick() tea.Cmd {
	return tea.Tick(30*time.Second, func(time.Time) tea.Msg { return clockTickMsg{} })
}

func (m Model) loginCmd(username, password string, register bool) tea.Cmd {
	ctx, session := m.ctx, m.session
	return func() tea.Msg {
		var err error
		if register {
			err = session.Register(ctx, username, password)
		} else {
			err = session.Login(ctx, username, password)
		}
		return LoginResultMsg{Username: username, Err: err}
	}
}

// action runs fn off the event loop and reports done (or fn's error).
func (m Model) action(done string, fn func(ctx context.Context) error) tea.Cmd {
	ctx := m.ctx
	return func() tea.Msg {
		if err := fn(ctx); err != nil {
			return actionResultMsg{err: err}
		}
		return actionResultMsg{text: done}
	}
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmds []tea.Cmd

	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m = m.distributeSize()
		return m, nil

	case StoreUpdatedMsg:
		if m.store.GetAuthState() == domain.AuthStateExpired && !m.auth.IsVisible() {
			return m.expire(), nil
		}
		m = m.refreshFromStore()
		return m, nil

	case authSubmitMsg:
		m.status.text = "Logging in..."
		return m, m.loginCmd(msg.username, msg.password, msg.register)

	case LoginResultMsg:
		m.splash = m.splash.ConnReady()
		if msg.Err != nil {
			m.status.text = "Offline"
			m.status.connected = false
			m.auth = m.auth.SetUsername(msg.Username).Show(msg.Err.Error())
			return m, nil
		}
		m.auth = m.auth.Hide()
		m.status.text = "Online"
		m.status.connected = true
		m.status.userName = msg.Username
		m.startPolling()
		m = m.refreshFromStore()
		m.focus = focusChatList
		m = m.updateFocus()
		if active := m.store.Active(); !active.IsZero() {
			return m, func() tea.Msg { return ChatSelectedMsg{Key: active} }
		}
		return m, nil

	case ChatSelectedMsg:
		c, ok := m.store.Get(msg.Key)
		if !ok {
			return m, nil
		}
		m.status.chatTitle = c.Title
		m.messageView = m.messageView.SetConversation(msg.Key, m.self(), m.store.Messages(msg.Key))
		m.focus = focusInput
		m = m.updateFocus()
		key := msg.Key
		session := m.session
		return m, m.action("", func(ctx context.Context) error {
			return session.Open(ctx, key)
		})

	case sendMessageMsg:
		return m.runCommand(msg.text)

	case actionResultMsg:
		if m.store.GetAuthState() == domain.AuthStateExpired {
			return m.expire(), nil
		}
		if msg.err != nil {
			m.status.text = "Error: " + msg.err.Error()
		} else if msg.text != "" {
			m.status.text = msg.text
		}
		m = m.refreshFromStore()
		return m, nil

	case loggedOutMsg:
		m.status = newStatusModel().SetWidth(m.width)
		m.messageView = m.messageView.Clear()
		m.chatList = m.chatList.WithItems(nil)
		m.auth = m.auth.Show("Logged out")
		return m, nil

	case TickMsg:
		m.status.syncedAt = msg.Snapshot.At
		if failed := len(msg.Snapshot.Failed()); failed > 0 {
			m.status.text = fmt.Sprintf("Online · %d failed", failed)
		} else if m.status.connected {
			m.status.text = "Online"
		}
		if msg.Snapshot.ActiveChanged() {
			if active := m.store.Active(); !active.IsZero() {
				m.messageView = m.messageView.SetConversation(active, m.self(), m.store.Messages(active))
			}
		}
		return m, nil

	case SessionExpiredMsg:
		return m.expire(), nil

	case SplashDoneMsg:
		m.splash = m.splash.TimerDone()
		return m, nil

	case clockTickMsg:
		return m, clockTick()

	case tea.KeyMsg:
		if m.splash.IsVisible() {
			if msg.String() == "ctrl+c" {
				return m, tea.Quit
			}
			return m, nil
		}

		if m.auth.IsVisible() {
			if msg.String() == "ctrl+c" {
				return m, tea.Quit
			}
			var cmd tea.Cmd
			m.auth, cmd = m.auth.Update(msg)
			return m, cmd
		}

		if m.help.IsVisible() {
			switch msg.String() {
			case "ctrl+c":
				return m, tea.Quit
			case "h", "f1", "esc", "q":
				m.help = m.help.Toggle()
			}
			return m, nil
		}

		switch msg.String() {
		case "ctrl+c":
			return m, tea.Quit
		case "q":
			if m.focus != focusInput {
				return m, tea.Quit
			}
		case "f1":
			m.help = m.help.Toggle()
			return m, nil
		case "h":
			if m.focus != focusInput {
				m.help = m.help.Toggle()
				return m, nil
			}
		case "tab":
			m.focus = (m.focus + 1) % 3
			m = m.updateFocus()
			return m, nil
		case "shift+tab":
			m.focus = (m.focus + 2) % 3
			m = m.updateFocus()
			return m, nil
		case "esc":
			m.focus = focusChatList
			m = m.updateFocus()
			return m, nil
		}

		switch m.focus {
		case focusChatList:
			var cmd tea.Cmd
			m.chatList, cmd = m.chatList.Update(msg)
			cmds = append(cmds, cmd)
		case focusMessages:
			var cmd tea.Cmd
			m.messageView, cmd = m.messageView.Update(msg)
			cmds = append(cmds, cmd)
		case focusInput:
			var cmd tea.Cmd
			m.input, cmd = m.input.Update(msg)
			cmds = append(cmds, cmd)
		}
		return m, tea.Batch(cmds...)
	}

	return m, nil
}

// runCommand executes one line from the input box.
func (m Model) runCommand(line string) (tea.Model, tea.Cmd) {
	c, err := parseCommand(line)
	if err != nil {
		m.status.text = err.Error()
		return m, nil
	}

	session := m.session
	switch c.kind {
	case cmdSend:
		return m, m.action("", func(ctx context.Context) error {
			return session.Send(ctx, c.arg)
		})
	case cmdDirect:
		return m, m.action("Chat with "+c.arg, func(ctx context.Context) error {
			_, err := session.OpenDirect(ctx, c.arg)
			return err
		})
	case cmdGroup:
		return m, m.action("Created group "+c.arg, func(ctx context.Context) error {
			_, err := session.CreateGroup(ctx, c.arg)
			return err
		})
	case cmdAdd:
		return m, m.action("Added "+c.arg, func(ctx context.Context) error {
			_, err := session.AddMember(ctx, c.arg)
			return err
		})
	case cmdImage:
		m.status.text = "Uploading..."
		return m, m.action("Image sent", func(ctx context.Context) error {
			return session.SendImage(ctx, c.arg)
		})
	case cmdSave:
		return m, m.action(fmt.Sprintf("Saved image #%d to %s", c.mediaID, c.arg), func(ctx context.Context) error {
			return session.SaveMedia(ctx, c.mediaID, c.arg)
		})
	case cmdLogout:
		m.stopPolling()
		return m, func() tea.Msg {
			session.Logout()
			return loggedOutMsg{}
		}
	case cmdHelp:
		m.help = m.help.Toggle()
	}
	return m, nil
}

// expire stops polling and sends the user back to the login screen.
func (m Model) expire() Model {
	m.stopPolling()
	m.status.text = "Session expired"
	m.status.connected = false
	m.auth = m.auth.Show("Session expired, please log in again")
	return m
}

func (m *Model) startPolling() {
	if m.poller == nil {
		return
	}
	m.poller.Start(m.ctx)
	m.polling = true
}

func (m *Model) stopPolling() {
	if m.poller == nil || !m.polling {
		return
	}
	m.poller.Stop()
	m.polling = false
}

func (m Model) self() domain.User {
	id, name := m.store.Self()
	return domain.User{ID: id, Username: name}
}

func (m Model) View() tea.View {
	v := tea.NewView("")
	v.AltScreen = true

	if m.width == 0 || m.height == 0 {
		return v
	}

	if m.auth.IsVisible() {
		v.SetContent(m.auth.View())
		return v
	}

	// Chat list on the left
	chatListView := m.chatList.View()

	// Right pane: messages + input stacked vertically
	messagesView := m.messageView.View()
	inputView := m.input.View()
	rightPane := lipgloss.JoinVertical(lipgloss.Left, messagesView, inputView)

	panes := lipgloss.JoinHorizontal(lipgloss.Top, chatListView, rightPane)
	full := lipgloss.JoinVertical(lipgloss.Left, panes, m.status.View())

	// Clamp to terminal dimensions
	mainContent := lipgloss.NewStyle().
		MaxWidth(m.width).
		MaxHeight(m.height).
		Render(full)

	var overlay string
	var x, y int
	switch {
	case m.splash.IsVisible():
		overlay = m.splash.View()
		x, y = m.splash.BoxOffset()
	case m.help.IsVisible():
		overlay = m.help.View()
		x, y = m.help.BoxOffset()
	}

	if overlay != "" {
		bg := lipgloss.NewLayer(mainContent)
		fg := lipgloss.NewLayer(overlay).X(x).Y(y).Z(1)
		comp := lipgloss.NewCompositor(bg, fg)
		v.SetContent(comp.Render())
	} else {
		v.SetContent(mainContent)
	}
	return v
}

func (m Model) distributeSize() Model {
	contentHeight := m.height - statusBarHeight
	if contentHeight < 1 {
		contentHeight = 1
	}

	// Chat list: fixed width, full height
	clWidth := chatListWidth
	if clWidth > m.width {
		clWidth = m.width
	}
	m.chatList = m.chatList.SetSize(clWidth, contentHeight)

	// Right pane: remaining width
	rightWidth := m.width - clWidth
	if rightWidth < 1 {
		rightWidth = 1
	}

	// Input gets fixed height, messages get the rest
	messagesHeight := contentHeight - inputRenderedHeight
	if messagesHeight < 1 {
		messagesHeight = 1
	}

	m.messageView = m.messageView.SetSize(rightWidth, messagesHeight)
	m.input = m.input.SetSize(rightWidth, inputRenderedHeight)
	m.status = m.status.SetWidth(m.width)

	m.auth = m.auth.SetSize(m.width, m.height)
	m.splash = m.splash.SetSize(m.width, m.height)
	m.help = m.help.SetSize(m.width, m.height)

	return m
}

func (m Model) updateFocus() Model {
	m.chatList = m.chatList.SetFocused(m.focus == focusChatList)
	m.messageView = m.messageView.SetFocused(m.focus == focusMessages)
	m.input = m.input.SetFocused(m.focus == focusInput)
	return m
}

func (m Model) refreshFromStore() Model {
	convs := m.store.List()
	m.chatList = m.chatList.WithItems(convs)

	unread := 0
	for _, c := range convs {
		unread += c.UnreadCount
	}
	m.status.unread = unread

	self := m.self()
	if self.Username != "" {
		m.status.userName = self.Username
	}

	active := m.store.Active()
	if active.IsZero() {
		m.status.chatTitle = ""
		m.messageView = m.messageView.Clear()
		return m
	}
	if c, ok := m.store.Get(active); ok {
		m.status.chatTitle = c.Title
	}
	m.messageView = m.messageView.SetConversation(active, self, m.store.Messages(active))
	return m
}

// App wraps the Bubble Tea program for external use.
type App struct {
	program *tea.Program
}

// NewApp creates a new App ready to Run.
func NewApp(ctx context.Context, store *state.Store, session Session, poller Poller, creds Credentials) *App {
	model := NewModel(ctx, store, session, poller, creds)
	p := tea.NewProgram(model, tea.WithContext(ctx))
	return &App{program: p}
}

// Run starts the Bubble Tea event loop (blocks until quit).
func (a *App) Run() error {
	_, err := a.program.Run()
	return err
}

// Send sends a message into the Bubble Tea event loop from external goroutines.
func (a *App) Send(msg tea.Msg) {
	go a.program.Send(msg)
}

// DrawFunc returns a function suitable for state.Store that triggers a re-render.
func (a *App) DrawFunc() func() {
	return func() {
		a.Send(StoreUpdatedMsg{})
	}
}

// TickFunc forwards completed poll ticks to the UI.
func (a *App) TickFunc() func(chat.Snapshot) {
	return func(s chat.Snapshot) {
		a.Send(TickMsg{Snapshot: s})
	}
}

// ExpiredFunc tells the UI the session expired.
func (a *App) ExpiredFunc() func() {
	return func() {
		a.Send(SessionExpiredMsg{})
	}
}
