package state

import "github.com/danhigham/sschat/internal/domain"

// Reconcile folds a freshly fetched message list into prev and returns the
// updated conversation. It is pure: the store and poller only decide which
// conversation is active and who the local user is.
//
// The first reconciliation of a conversation (Baselined false) treats the
// whole history as read. After that, an active conversation rolls its read
// position forward to everything it has seen, and an inactive one counts
// qualifying messages past its read position.
func Reconcile(prev domain.Conversation, msgs []domain.Message, selfID int64, active bool) domain.Conversation {
	next := prev

	newMax := max(prev.LastKnownMessageID, MaxID(msgs))
	next.LastKnownMessageID = newMax

	if !prev.Baselined || active {
		next.LastReadMessageID = newMax
		next.UnreadCount = 0
		next.Baselined = true
		return next
	}

	if next.LastReadMessageID > next.LastKnownMessageID {
		next.LastReadMessageID = next.LastKnownMessageID
	}

	unread := 0
	for _, m := range msgs {
		if m.ID > next.LastReadMessageID && counts(prev.Key.Kind, m, selfID) {
			unread++
		}
	}
	next.UnreadCount = unread
	return next
}

// counts reports whether m can contribute to an unread badge: never our own
// messages, and in a direct chat only messages addressed to us.
func counts(kind domain.Kind, m domain.Message, selfID int64) bool {
	if m.FromUserID == selfID {
		return false
	}
	if kind == domain.KindDirect {
		return m.ToUserID == selfID
	}
	return true
}

// MaxID returns the highest message ID in msgs, or 0.
func MaxID(msgs []domain.Message) int64 {
	var top int64
	for _, m := range msgs {
		if m.ID > top {
			top = m.ID
		}
	}
	return top
}
