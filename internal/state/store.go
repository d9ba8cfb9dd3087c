package state

import (
	"sort"
	"strings"
	"sync"

	"github.com/danhigham/sschat/internal/domain"
)

const maxMessages = 500

// Store is the session-scoped conversation store. It owns every
// conversation, the last fetched message list of each, and the active key.
type Store struct {
	mu        sync.RWMutex
	convs     map[domain.Key]*domain.Conversation
	messages  map[domain.Key][]domain.Message
	active    domain.Key
	selfID    int64
	selfName  string
	authState domain.AuthState
	drawFunc  func()
}

func New(drawFunc func()) *Store {
	return &Store{
		convs:    make(map[domain.Key]*domain.Conversation),
		messages: make(map[domain.Key][]domain.Message),
		drawFunc: drawFunc,
	}
}

func (s *Store) SetDrawFunc(f func()) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.drawFunc = f
}

func (s *Store) draw() {
	if s.drawFunc != nil {
		s.drawFunc()
	}
}

// Update is the outcome of folding one fetch into the store.
type Update struct {
	Conversation domain.Conversation
	// NewMessages is true when the fetched list differs from the previous one.
	NewMessages bool
}

// SetSelf records the logged-in account.
func (s *Store) SetSelf(id int64, username string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.selfID = id
	s.selfName = username
}

func (s *Store) Self() (int64, string) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.selfID, s.selfName
}

// UpsertDirect creates the direct conversation with peerName if absent. A
// resolved peer ID is never replaced by zero.
func (s *Store) UpsertDirect(peerName string, peerID int64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := domain.DirectKey(peerName)
	c, ok := s.convs[key]
	if !ok {
		s.convs[key] = &domain.Conversation{Key: key, Title: peerName, PeerID: peerID}
		s.draw()
		return true
	}
	if peerID != 0 && c.PeerID != peerID {
		c.PeerID = peerID
	}
	return false
}

// UpsertGroup creates the group conversation or refreshes its title. The
// group ID is part of the key and so never changes.
func (s *Store) UpsertGroup(groupID int64, title string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := domain.GroupKey(groupID)
	c, ok := s.convs[key]
	if !ok {
		if title == "" {
			title = "group #" + strings.TrimPrefix(key.String(), "g:")
		}
		s.convs[key] = &domain.Conversation{Key: key, Title: title}
		s.draw()
		return true
	}
	if title != "" && c.Title != title {
		c.Title = title
		s.draw()
	}
	return false
}

// SetPeerID stores a resolved peer ID for a direct conversation.
func (s *Store) SetPeerID(key domain.Key, peerID int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if c, ok := s.convs[key]; ok && peerID != 0 {
		c.PeerID = peerID
	}
}

// MarkActive makes key the active conversation. Its badge is cleared by the
// next RecomputeUnread for that key, not here.
func (s *Store) MarkActive(key domain.Key) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.active = key
	s.draw()
}

func (s *Store) Active() domain.Key {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.active
}

// RecomputeUnread applies a fetched message list to the conversation at key.
func (s *Store) RecomputeUnread(key domain.Key, msgs []domain.Message) (Update, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	c, ok := s.convs[key]
	if !ok {
		return Update{}, false
	}
	*c = Reconcile(*c, msgs, s.selfID, key == s.active)

	// Only the newest maxMessages are kept, so compare against the same window.
	if len(msgs) > maxMessages {
		msgs = msgs[len(msgs)-maxMessages:]
	}
	prevMsgs := s.messages[key]
	changed := len(prevMsgs) != len(msgs) || MaxID(prevMsgs) != MaxID(msgs)

	kept := make([]domain.Message, len(msgs))
	copy(kept, msgs)
	s.messages[key] = kept

	s.draw()
	return Update{Conversation: *c, NewMessages: changed}, true
}

// SetOnline flags direct conversations whose peer is in names.
func (s *Store) SetOnline(names map[string]bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for key, c := range s.convs {
		c.Online = key.Kind == domain.KindDirect && names[key.PeerName]
	}
	s.draw()
}

func (s *Store) Get(key domain.Key) (domain.Conversation, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.convs[key]
	if !ok {
		return domain.Conversation{}, false
	}
	return *c, true
}

// Keys returns every conversation key in a stable order.
func (s *Store) Keys() []domain.Key {
	s.mu.RLock()
	defer s.mu.RUnlock()
	keys := make([]domain.Key, 0, len(s.convs))
	for k := range s.convs {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i].String() < keys[j].String() })
	return keys
}

// List returns the conversations ordered for display: most unread first,
// then by title ignoring case.
func (s *Store) List() []domain.Conversation {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]domain.Conversation, 0, len(s.convs))
	for _, c := range s.convs {
		out = append(out, *c)
	}
	SortForDisplay(out)
	return out
}

func SortForDisplay(convs []domain.Conversation) {
	sort.Slice(convs, func(i, j int) bool {
		a, b := convs[i], convs[j]
		if a.UnreadCount != b.UnreadCount {
			return a.UnreadCount > b.UnreadCount
		}
		at, bt := strings.ToLower(a.Title), strings.ToLower(b.Title)
		if at != bt {
			return at < bt
		}
		return a.Key.String() < b.Key.String()
	})
}

func (s *Store) Messages(key domain.Key) []domain.Message {
	s.mu.RLock()
	defer s.mu.RUnlock()
	msgs := s.messages[key]
	out := make([]domain.Message, len(msgs))
	copy(out, msgs)
	return out
}

// Restore loads previously persisted conversations. Conversations with a
// stored read position count as already baselined.
func (s *Store) Restore(convs []domain.Conversation, active domain.Key) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, c := range convs {
		if c.LastReadMessageID > c.LastKnownMessageID {
			c.LastReadMessageID = c.LastKnownMessageID
		}
		c.UnreadCount = 0
		c.Online = false
		if existing, ok := s.convs[c.Key]; ok && c.PeerID == 0 {
			c.PeerID = existing.PeerID
		}
		s.convs[c.Key] = &c
	}
	if _, ok := s.convs[active]; ok {
		s.active = active
	}
	s.draw()
}

// Snapshot copies every conversation, in key order.
func (s *Store) Snapshot() []domain.Conversation {
	keys := s.Keys()
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]domain.Conversation, 0, len(keys))
	for _, k := range keys {
		if c, ok := s.convs[k]; ok {
			out = append(out, *c)
		}
	}
	return out
}

// Reset wipes all session state. It must run whenever the account changes.
func (s *Store) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.convs = make(map[domain.Key]*domain.Conversation)
	s.messages = make(map[domain.Key][]domain.Message)
	s.active = domain.Key{}
	s.selfID = 0
	s.selfName = ""
	s.authState = domain.AuthStateNone
	s.draw()
}

func (s *Store) SetAuthState(as domain.AuthState) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.authState = as
	s.draw()
}

func (s *Store) GetAuthState() domain.AuthState {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.authState
}
