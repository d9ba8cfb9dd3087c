package ui

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/danhigham/sschat/internal/chat"
	"github.com/danhigham/sschat/internal/domain"
	"github.com/danhigham/sschat/internal/state"
)

type fakeSession struct {
	store     *state.Store
	opened    []string
	sent      []string
	loggedIn  string
	loggedOut bool
	sendErr   error
}

func (f *fakeSession) Login(ctx context.Context, username, password string) error {
	f.loggedIn = username
	f.store.SetSelf(1, username)
	return nil
}

func (f *fakeSession) Register(ctx context.Context, username, password string) error {
	return f.Login(ctx, username, password)
}

func (f *fakeSession) Logout() {
	f.loggedOut = true
	f.store.Reset()
}

func (f *fakeSession) Open(ctx context.Context, key domain.Key) error {
	f.store.MarkActive(key)
	return nil
}

func (f *fakeSession) OpenDirect(ctx context.Context, peerName string) (domain.Key, error) {
	f.opened = append(f.opened, peerName)
	f.store.UpsertDirect(peerName, 0)
	key := domain.DirectKey(peerName)
	f.store.MarkActive(key)
	return key, nil
}

func (f *fakeSession) CreateGroup(ctx context.Context, name string) (domain.Key, error) {
	return domain.Key{}, errors.New("not supported")
}

func (f *fakeSession) AddMember(ctx context.Context, username string) (int64, error) {
	return 0, errors.New("not supported")
}

func (f *fakeSession) Send(ctx context.Context, text string) error {
	if f.sendErr != nil {
		return f.sendErr
	}
	f.sent = append(f.sent, text)
	return nil
}

func (f *fakeSession) SendImage(ctx context.Context, path string) error           { return nil }
func (f *fakeSession) SaveMedia(ctx context.Context, id int64, path string) error { return nil }
func (f *fakeSession) MediaURL(id int64) string                                   { return "" }

type fakePoller struct{ started, stopped int }

func (p *fakePoller) Start(ctx context.Context) { p.started++ }
func (p *fakePoller) Stop()                     { p.stopped++ }

func newTestModel(creds Credentials) (Model, *fakeSession, *fakePoller) {
	store := state.New(nil)
	session := &fakeSession{store: store}
	poller := &fakePoller{}
	m := NewModel(context.Background(), store, session, poller, creds)
	return m, session, poller
}

func update(t *testing.T, m Model, msg any) (Model, func() any) {
	t.Helper()
	next, cmd := m.Update(msg)
	model, ok := next.(Model)
	if !ok {
		t.Fatalf("Update returned %T", next)
	}
	if cmd == nil {
		return model, nil
	}
	return model, func() any { return cmd() }
}

func TestModel_ShowsLoginWithoutCredentials(t *testing.T) {
	m, _, _ := newTestModel(Credentials{})
	if !m.auth.IsVisible() {
		t.Error("expected login screen")
	}

	m, _, _ = newTestModel(Credentials{Username: "alice", Password: "secret"})
	if m.auth.IsVisible() {
		t.Error("login screen shown despite stored credentials")
	}
}

func TestModel_LoginStartsPolling(t *testing.T) {
	m, session, poller := newTestModel(Credentials{})

	m, cmd := update(t, m, authSubmitMsg{username: "alice", password: "secret"})
	if cmd == nil {
		t.Fatal("expected login command")
	}
	result := cmd()
	if session.loggedIn != "alice" {
		t.Fatalf("login not called, got %q", session.loggedIn)
	}

	m, _ = update(t, m, result)
	if m.auth.IsVisible() {
		t.Error("login screen still visible")
	}
	if poller.started != 1 {
		t.Errorf("expected poller started once, got %d", poller.started)
	}
	if m.status.userName != "alice" {
		t.Errorf("expected user in status bar, got %q", m.status.userName)
	}
}

func TestModel_LoginFailureKeepsLoginScreen(t *testing.T) {
	m, _, poller := newTestModel(Credentials{})
	m, _ = update(t, m, LoginResultMsg{Username: "alice", Err: errors.New("login: wrong username or password")})
	if !m.auth.IsVisible() {
		t.Error("expected login screen")
	}
	if !strings.Contains(m.auth.message, "wrong username") {
		t.Errorf("error not shown: %q", m.auth.message)
	}
	if poller.started != 0 {
		t.Error("poller started after failed login")
	}
}

func TestModel_DirectCommand(t *testing.T) {
	m, session, _ := newTestModel(Credentials{})
	m, _ = update(t, m, LoginResultMsg{Username: "alice"})

	m, cmd := update(t, m, sendMessageMsg{text: "/dm bob"})
	if cmd == nil {
		t.Fatal("expected command")
	}
	m, _ = update(t, m, cmd())
	if len(session.opened) != 1 || session.opened[0] != "bob" {
		t.Fatalf("OpenDirect not called: %v", session.opened)
	}
	if m.status.chatTitle != "bob" {
		t.Errorf("expected title bob, got %q", m.status.chatTitle)
	}
	if m.status.text != "Chat with bob" {
		t.Errorf("unexpected status %q", m.status.text)
	}
}

func TestModel_SendAndError(t *testing.T) {
	m, session, _ := newTestModel(Credentials{})
	m, _ = update(t, m, LoginResultMsg{Username: "alice"})

	_, cmd := update(t, m, sendMessageMsg{text: "hello"})
	cmd()
	if len(session.sent) != 1 || session.sent[0] != "hello" {
		t.Fatalf("message not sent: %v", session.sent)
	}

	session.sendErr = errors.New("no conversation selected")
	m, cmd = update(t, m, sendMessageMsg{text: "again"})
	m, _ = update(t, m, cmd())
	if !strings.Contains(m.status.text, "no conversation selected") {
		t.Errorf("error not surfaced: %q", m.status.text)
	}
}

func TestModel_UnknownCommand(t *testing.T) {
	m, _, _ := newTestModel(Credentials{})
	m, cmd := update(t, m, sendMessageMsg{text: "/frobnicate"})
	if cmd != nil {
		t.Error("unknown command should not run anything")
	}
	if !strings.Contains(m.status.text, "unknown command") {
		t.Errorf("unexpected status %q", m.status.text)
	}
}

func TestModel_SessionExpiry(t *testing.T) {
	m, session, poller := newTestModel(Credentials{})
	m, _ = update(t, m, LoginResultMsg{Username: "alice"})

	session.store.SetAuthState(domain.AuthStateExpired)
	m, _ = update(t, m, StoreUpdatedMsg{})
	if !m.auth.IsVisible() {
		t.Fatal("expected login screen after expiry")
	}
	if poller.stopped != 1 {
		t.Errorf("expected poller stopped once, got %d", poller.stopped)
	}

	// A second expiry signal from the poller is harmless.
	m, _ = update(t, m, SessionExpiredMsg{})
	if poller.stopped != 1 {
		t.Errorf("poller stopped again: %d", poller.stopped)
	}
}

func TestModel_Logout(t *testing.T) {
	m, session, poller := newTestModel(Credentials{})
	m, _ = update(t, m, LoginResultMsg{Username: "alice"})

	m, cmd := update(t, m, sendMessageMsg{text: "/logout"})
	if poller.stopped != 1 {
		t.Errorf("expected poller stopped, got %d", poller.stopped)
	}
	m, _ = update(t, m, cmd())
	if !session.loggedOut {
		t.Error("Logout not called")
	}
	if !m.auth.IsVisible() {
		t.Error("expected login screen after logout")
	}
}

func TestModel_AutoOpensLastActive(t *testing.T) {
	m, session, _ := newTestModel(Credentials{})
	session.store.Restore([]domain.Conversation{
		{Key: domain.DirectKey("bob"), Title: "bob", Baselined: true},
	}, domain.DirectKey("bob"))

	_, cmd := update(t, m, LoginResultMsg{Username: "alice"})
	if cmd == nil {
		t.Fatal("expected the last active conversation to open")
	}
	sel, ok := cmd().(ChatSelectedMsg)
	if !ok || sel.Key != domain.DirectKey("bob") {
		t.Errorf("unexpected message %#v", sel)
	}
}

func TestModel_TickRedrawsActiveConversation(t *testing.T) {
	m, session, _ := newTestModel(Credentials{})
	m, _ = update(t, m, LoginResultMsg{Username: "alice"})
	key := domain.DirectKey("bob")
	session.store.UpsertDirect("bob", 2)
	session.store.MarkActive(key)
	session.store.RecomputeUnread(key, []domain.Message{{ID: 1, FromUserID: 2, ToUserID: 1, Text: "hi there"}})

	m, _ = update(t, m, TickMsg{Snapshot: chat.Snapshot{
		At:     time.Now(),
		Deltas: []chat.Delta{{Key: key, Active: true, NewMessages: true}},
	}})
	if len(m.messageView.messages) != 1 || m.messageView.key != key {
		t.Fatalf("active conversation not redrawn: key=%v msgs=%d", m.messageView.key, len(m.messageView.messages))
	}

	// A tick without new messages in the active conversation leaves the pane alone.
	session.store.RecomputeUnread(key, []domain.Message{
		{ID: 1, FromUserID: 2, ToUserID: 1, Text: "hi there"},
		{ID: 2, FromUserID: 2, ToUserID: 1, Text: "again"},
	})
	m, _ = update(t, m, TickMsg{Snapshot: chat.Snapshot{At: time.Now()}})
	if len(m.messageView.messages) != 1 {
		t.Errorf("pane redrawn without new messages: %d", len(m.messageView.messages))
	}
}
