package domain

import (
	"fmt"
	"strconv"
	"strings"
)

type Kind int

const (
	KindDirect Kind = iota
	KindGroup
)

func (k Kind) String() string {
	if k == KindGroup {
		return "group"
	}
	return "direct"
}

// Key identifies a conversation: a direct chat by the peer's username, a
// group by its backend ID.
type Key struct {
	Kind     Kind
	PeerName string
	GroupID  int64
}

func DirectKey(peerName string) Key { return Key{Kind: KindDirect, PeerName: peerName} }

func GroupKey(groupID int64) Key { return Key{Kind: KindGroup, GroupID: groupID} }

func (k Key) IsZero() bool { return k == Key{} }

// String renders the key as "u:<peer>" or "g:<id>".
func (k Key) String() string {
	if k.Kind == KindGroup {
		return "g:" + strconv.FormatInt(k.GroupID, 10)
	}
	return "u:" + k.PeerName
}

// ParseKey is the inverse of Key.String.
func ParseKey(s string) (Key, error) {
	switch {
	case strings.HasPrefix(s, "u:") && len(s) > 2:
		return DirectKey(s[2:]), nil
	case strings.HasPrefix(s, "g:"):
		id, err := strconv.ParseInt(s[2:], 10, 64)
		if err != nil || id <= 0 {
			return Key{}, fmt.Errorf("bad group key %q", s)
		}
		return GroupKey(id), nil
	default:
		return Key{}, fmt.Errorf("bad conversation key %q", s)
	}
}

type Conversation struct {
	Key    Key
	Title  string
	PeerID int64 // direct only, 0 until resolved

	LastKnownMessageID int64
	LastReadMessageID  int64
	UnreadCount        int

	// Baselined is set once the first reconciliation has treated existing
	// history as read.
	Baselined bool
	Online    bool
}

type Message struct {
	ID           int64  `json:"id"`
	GroupID      int64  `json:"group_id,omitempty"`
	FromUserID   int64  `json:"from_user_id"`
	ToUserID     int64  `json:"to_user_id,omitempty"`
	FromUsername string `json:"from_username,omitempty"`
	Text         string `json:"text"`
	CreatedAt    string `json:"created_at"`
}

type Group struct {
	ID        int64  `json:"id"`
	Name      string `json:"name"`
	OwnerID   int64  `json:"owner_id"`
	CreatedAt string `json:"created_at,omitempty"`
}

type InboxEntry struct {
	PeerID        int64  `json:"peer_id"`
	PeerUsername  string `json:"peer_username"`
	LastMessageID int64  `json:"last_message_id"`
	LastText      string `json:"last_text"`
	LastCreatedAt string `json:"last_created_at"`
}

type User struct {
	ID       int64  `json:"id"`
	Username string `json:"username"`
}

type AuthState int

const (
	AuthStateNone AuthState = iota
	AuthStateLoggingIn
	AuthStateAuthenticated
	AuthStateExpired
)
