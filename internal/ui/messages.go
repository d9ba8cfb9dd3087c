package ui

import (
	"github.com/danhigham/sschat/internal/chat"
	"github.com/danhigham/sschat/internal/domain"
)

// StoreUpdatedMsg signals that the store state has changed.
type StoreUpdatedMsg struct{}

// ChatSelectedMsg is emitted when the user picks a conversation.
type ChatSelectedMsg struct {
	Key domain.Key
}

// sendMessageMsg is emitted when the user presses Enter in the input.
type sendMessageMsg struct {
	text string
}

// authSubmitMsg is emitted by the login screen.
type authSubmitMsg struct {
	username string
	password string
	register bool
}

// LoginResultMsg reports the outcome of a login or registration.
type LoginResultMsg struct {
	Username string
	Err      error
}

// actionResultMsg reports the outcome of a user action run off the event loop.
type actionResultMsg struct {
	text string
	err  error
}

// loggedOutMsg is sent once the session has been torn down.
type loggedOutMsg struct{}

// TickMsg delivers a completed poll tick.
type TickMsg struct {
	Snapshot chat.Snapshot
}

// SessionExpiredMsg is sent when the backend rejects the session.
type SessionExpiredMsg struct{}

// SplashDoneMsg signals that the splash screen timeout has elapsed.
type SplashDoneMsg struct{}

// clockTickMsg triggers a status bar time refresh.
type clockTickMsg struct{}
