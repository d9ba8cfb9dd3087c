package chat

import (
	"context"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"go.uber.org/zap"

	"github.com/danhigham/sschat/internal/api"
	"github.com/danhigham/sschat/internal/domain"
	"github.com/danhigham/sschat/internal/persist"
	"github.com/danhigham/sschat/internal/state"
)

var (
	ErrNotLoggedIn          = errors.New("not logged in")
	ErrNoActiveConversation = errors.New("no conversation selected")
	ErrNotGroup             = errors.New("active conversation is not a group")
	ErrEmptyName            = errors.New("name is required")
	ErrBadCredentials       = errors.New("wrong username or password")
)

// Backend is the part of the REST API the client drives.
type Backend interface {
	UserLookup
	Register(ctx context.Context, username, password string) (*api.Account, error)
	Login(ctx context.Context, username, password string) (*api.Account, error)
	GroupsByUser(ctx context.Context, userID int64) ([]domain.Group, error)
	GroupMessages(ctx context.Context, groupID int64) ([]domain.Message, error)
	SendGroup(ctx context.Context, groupID, fromUserID int64, text string) (int64, error)
	CreateGroup(ctx context.Context, name string, ownerID int64, memberIDs []int64) (*domain.Group, error)
	AddGroupMember(ctx context.Context, groupID, actorID, memberID int64) error
	DirectMessages(ctx context.Context, userA, userB int64) ([]domain.Message, error)
	SendDirect(ctx context.Context, fromUserID, toUserID int64, text string) (int64, error)
	Inbox(ctx context.Context, userID int64) ([]domain.InboxEntry, error)
	PresencePing(ctx context.Context, userID int64) error
	Online(ctx context.Context) ([]domain.User, error)
	UploadMedia(ctx context.Context, up api.Upload) (int64, error)
	FetchMedia(ctx context.Context, id int64, w io.Writer) error
	MediaURL(id int64) string
}

// Service is the session controller: it owns the store for one logged-in
// account and performs every user action against the backend.
type Service struct {
	backend  Backend
	store    *state.Store
	states   *persist.Dir
	resolver *Resolver
	logger   *zap.Logger

	// fetchMu serializes fetch+reconcile so a send-triggered refetch never
	// interleaves with a poll of the same conversation.
	fetchMu sync.Mutex
}

// NewService wires a service. states may be nil to disable persistence.
func NewService(backend Backend, store *state.Store, states *persist.Dir, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{
		backend:  backend,
		store:    store,
		states:   states,
		resolver: NewResolver(backend),
		logger:   logger,
	}
}

func (s *Service) Store() *state.Store { return s.store }

func (s *Service) self() (int64, string, error) {
	id, name := s.store.Self()
	if id == 0 {
		return 0, "", ErrNotLoggedIn
	}
	return id, name, nil
}

// checkSession flags the store when err means the session is gone.
func (s *Service) checkSession(err error) error {
	if errors.Is(err, api.ErrUnauthorized) {
		s.store.SetAuthState(domain.AuthStateExpired)
	}
	return err
}

// Register creates the account and logs in with it.
func (s *Service) Register(ctx context.Context, username, password string) error {
	username = strings.TrimSpace(username)
	if username == "" || password == "" {
		return ErrEmptyName
	}
	if _, err := s.backend.Register(ctx, username, password); err != nil {
		return fmt.Errorf("register: %w", err)
	}
	return s.Login(ctx, username, password)
}

// Login authenticates and loads the account's persisted state. Logging in
// as a different account than the one in memory wipes the store first.
func (s *Service) Login(ctx context.Context, username, password string) error {
	username = strings.TrimSpace(username)
	if username == "" || password == "" {
		return ErrEmptyName
	}
	s.store.SetAuthState(domain.AuthStateLoggingIn)

	acc, err := s.backend.Login(ctx, username, password)
	if err != nil {
		s.store.SetAuthState(domain.AuthStateNone)
		if errors.Is(err, api.ErrUnauthorized) {
			return fmt.Errorf("login: %w", ErrBadCredentials)
		}
		return fmt.Errorf("login: %w", err)
	}

	_, current := s.store.Self()
	switched := current != "" && current != username
	if s.states != nil {
		diskSwitched, err := s.states.SwitchAccount(username)
		if err != nil {
			s.logger.Warn("failed to record last user", zap.Error(err))
		}
		switched = switched || diskSwitched
	}
	if switched {
		s.logger.Info("account switched, wiping local state", zap.String("account", username))
		s.store.Reset()
		s.resolver.Reset()
	}

	s.store.SetSelf(acc.ID, username)
	s.resolver.Prime(username, acc.ID)

	// A re-login after expiry keeps the live store; only a fresh one is
	// seeded from disk.
	if s.states != nil && len(s.store.Keys()) == 0 {
		st, err := s.states.Load(username)
		if err != nil {
			s.logger.Warn("failed to load persisted state", zap.Error(err))
		} else {
			convs, active := st.Conversations()
			s.store.Restore(convs, active)
		}
	}

	s.store.SetAuthState(domain.AuthStateAuthenticated)
	s.logger.Info("logged in", zap.String("account", username), zap.Int64("user_id", acc.ID))
	return nil
}

// Logout saves state and forgets the session.
func (s *Service) Logout() {
	s.Save()
	s.store.Reset()
	s.resolver.Reset()
}

// RefreshConversations pulls the inbox and group membership into the store
// and updates presence. Only an expired session aborts it.
func (s *Service) RefreshConversations(ctx context.Context) error {
	selfID, _, err := s.self()
	if err != nil {
		return err
	}

	groups, err := s.backend.GroupsByUser(ctx, selfID)
	if err != nil {
		if errors.Is(err, api.ErrUnauthorized) {
			return s.checkSession(err)
		}
		s.logger.Debug("refresh groups failed", zap.Error(err))
	}
	for _, g := range groups {
		s.store.UpsertGroup(g.ID, g.Name)
	}

	inbox, err := s.backend.Inbox(ctx, selfID)
	if err != nil {
		if errors.Is(err, api.ErrUnauthorized) {
			return s.checkSession(err)
		}
		s.logger.Debug("refresh inbox failed", zap.Error(err))
	}
	for _, e := range inbox {
		if e.PeerUsername == "" {
			continue
		}
		s.resolver.Prime(e.PeerUsername, e.PeerID)
		s.store.UpsertDirect(e.PeerUsername, e.PeerID)
	}

	if err := s.backend.PresencePing(ctx, selfID); err != nil {
		if errors.Is(err, api.ErrUnauthorized) {
			return s.checkSession(err)
		}
		s.logger.Debug("presence ping failed", zap.Error(err))
	}
	online, err := s.backend.Online(ctx)
	if err != nil {
		if errors.Is(err, api.ErrUnauthorized) {
			return s.checkSession(err)
		}
		s.logger.Debug("presence list failed", zap.Error(err))
		return nil
	}
	names := make(map[string]bool, len(online))
	for _, u := range online {
		names[u.Username] = true
	}
	s.store.SetOnline(names)
	return nil
}

// peerID returns the resolved peer of a direct conversation, resolving it
// on first use.
func (s *Service) peerID(ctx context.Context, c domain.Conversation) (int64, error) {
	if c.PeerID != 0 {
		return c.PeerID, nil
	}
	id, err := s.resolver.Resolve(ctx, c.Key.PeerName)
	if err != nil {
		return 0, err
	}
	s.store.SetPeerID(c.Key, id)
	return id, nil
}

func (s *Service) fetchMessages(ctx context.Context, c domain.Conversation, selfID int64) ([]domain.Message, error) {
	if c.Key.Kind == domain.KindGroup {
		return s.backend.GroupMessages(ctx, c.Key.GroupID)
	}
	peer, err := s.peerID(ctx, c)
	if err != nil {
		return nil, err
	}
	return s.backend.DirectMessages(ctx, selfID, peer)
}

// FetchConversation re-fetches one conversation and folds it into the store.
func (s *Service) FetchConversation(ctx context.Context, key domain.Key) Delta {
	s.fetchMu.Lock()
	defer s.fetchMu.Unlock()

	d := Delta{Key: key}
	selfID, _, err := s.self()
	if err != nil {
		d.Err = err
		return d
	}
	c, ok := s.store.Get(key)
	if !ok {
		d.Err = fmt.Errorf("unknown conversation %s", key)
		return d
	}

	msgs, err := s.fetchMessages(ctx, c, selfID)
	if err != nil {
		d.Err = s.checkSession(fmt.Errorf("fetch %s: %w", key, err))
		return d
	}

	up, ok := s.store.RecomputeUnread(key, msgs)
	if !ok {
		d.Err = fmt.Errorf("conversation %s vanished", key)
		return d
	}
	d.Unread = up.Conversation.UnreadCount
	d.LastKnown = up.Conversation.LastKnownMessageID
	d.NewMessages = up.NewMessages
	d.Active = key == s.store.Active()
	d.moved = up.Conversation.LastKnownMessageID != c.LastKnownMessageID ||
		up.Conversation.LastReadMessageID != c.LastReadMessageID ||
		up.Conversation.Baselined != c.Baselined
	return d
}

// Open activates key and fetches it right away so its badge clears.
func (s *Service) Open(ctx context.Context, key domain.Key) error {
	if _, ok := s.store.Get(key); !ok {
		return fmt.Errorf("unknown conversation %s", key)
	}
	s.store.MarkActive(key)
	d := s.FetchConversation(ctx, key)
	s.Save()
	return d.Err
}

// OpenDirect creates (if needed) and activates the chat with peerName.
func (s *Service) OpenDirect(ctx context.Context, peerName string) (domain.Key, error) {
	peerName = strings.TrimSpace(peerName)
	if peerName == "" {
		return domain.Key{}, ErrEmptyName
	}
	if _, _, err := s.self(); err != nil {
		return domain.Key{}, err
	}
	key := domain.DirectKey(peerName)
	if s.store.UpsertDirect(peerName, 0) {
		s.Save()
	}
	return key, s.Open(ctx, key)
}

// CreateGroup creates a group owned by the local user and activates it.
func (s *Service) CreateGroup(ctx context.Context, name string) (domain.Key, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return domain.Key{}, ErrEmptyName
	}
	selfID, _, err := s.self()
	if err != nil {
		return domain.Key{}, err
	}
	g, err := s.backend.CreateGroup(ctx, name, selfID, nil)
	if err != nil {
		return domain.Key{}, s.checkSession(fmt.Errorf("create group: %w", err))
	}
	title := g.Name
	if title == "" {
		title = name
	}
	s.store.UpsertGroup(g.ID, title)
	key := domain.GroupKey(g.ID)
	return key, s.Open(ctx, key)
}

// AddMember adds username to the active group.
func (s *Service) AddMember(ctx context.Context, username string) (int64, error) {
	username = strings.TrimSpace(username)
	if username == "" {
		return 0, ErrEmptyName
	}
	selfID, _, err := s.self()
	if err != nil {
		return 0, err
	}
	key := s.store.Active()
	if key.IsZero() {
		return 0, ErrNoActiveConversation
	}
	if key.Kind != domain.KindGroup {
		return 0, ErrNotGroup
	}
	memberID, err := s.resolver.Resolve(ctx, username)
	if err != nil {
		return 0, s.checkSession(err)
	}
	if err := s.backend.AddGroupMember(ctx, key.GroupID, selfID, memberID); err != nil {
		return 0, s.checkSession(fmt.Errorf("add member: %w", err))
	}
	return memberID, nil
}

func (s *Service) activeTarget() (domain.Conversation, int64, error) {
	selfID, _, err := s.self()
	if err != nil {
		return domain.Conversation{}, 0, err
	}
	key := s.store.Active()
	if key.IsZero() {
		return domain.Conversation{}, 0, ErrNoActiveConversation
	}
	c, ok := s.store.Get(key)
	if !ok {
		return domain.Conversation{}, 0, ErrNoActiveConversation
	}
	return c, selfID, nil
}

func (s *Service) sendText(ctx context.Context, c domain.Conversation, selfID int64, text string) error {
	if c.Key.Kind == domain.KindGroup {
		_, err := s.backend.SendGroup(ctx, c.Key.GroupID, selfID, text)
		return err
	}
	peer, err := s.peerID(ctx, c)
	if err != nil {
		return err
	}
	_, err = s.backend.SendDirect(ctx, selfID, peer, text)
	return err
}

// Send posts text to the active conversation and refetches it immediately.
func (s *Service) Send(ctx context.Context, text string) error {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil
	}
	c, selfID, err := s.activeTarget()
	if err != nil {
		return err
	}
	if err := s.sendText(ctx, c, selfID, text); err != nil {
		return s.checkSession(fmt.Errorf("send: %w", err))
	}
	d := s.FetchConversation(ctx, c.Key)
	if d.Err != nil {
		s.logger.Debug("refetch after send failed", zap.Error(d.Err))
	}
	return nil
}

// SendImage uploads the file at path and posts its image tag.
func (s *Service) SendImage(ctx context.Context, path string) error {
	c, selfID, err := s.activeTarget()
	if err != nil {
		return err
	}

	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("open image: %w", err)
	}
	defer f.Close()

	contentType, err := sniffContentType(f, path)
	if err != nil {
		return err
	}
	if !strings.HasPrefix(contentType, "image/") {
		return fmt.Errorf("%s is not an image (%s)", filepath.Base(path), contentType)
	}

	up := api.Upload{
		FromUserID:  selfID,
		Filename:    path,
		ContentType: contentType,
		Content:     f,
	}
	if c.Key.Kind == domain.KindGroup {
		up.GroupID = c.Key.GroupID
	} else {
		peer, err := s.peerID(ctx, c)
		if err != nil {
			return s.checkSession(err)
		}
		up.ToUserID = peer
	}

	mediaID, err := s.backend.UploadMedia(ctx, up)
	if err != nil {
		return s.checkSession(fmt.Errorf("upload: %w", err))
	}
	if err := s.sendText(ctx, c, selfID, ImageTag(mediaID)); err != nil {
		return s.checkSession(fmt.Errorf("send image: %w", err))
	}
	d := s.FetchConversation(ctx, c.Key)
	if d.Err != nil {
		s.logger.Debug("refetch after image failed", zap.Error(d.Err))
	}
	return nil
}

func sniffContentType(f *os.File, path string) (string, error) {
	if ct := mime.TypeByExtension(strings.ToLower(filepath.Ext(path))); ct != "" {
		return ct, nil
	}
	head := make([]byte, 512)
	n, err := f.Read(head)
	if err != nil && err != io.EOF {
		return "", fmt.Errorf("read image: %w", err)
	}
	if _, err := f.Seek(0, io.SeekStart); err != nil {
		return "", fmt.Errorf("rewind image: %w", err)
	}
	return http.DetectContentType(head[:n]), nil
}

// SaveMedia downloads media id to path.
func (s *Service) SaveMedia(ctx context.Context, id int64, path string) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create %s: %w", path, err)
	}
	if err := s.backend.FetchMedia(ctx, id, f); err != nil {
		f.Close()
		os.Remove(path)
		return s.checkSession(fmt.Errorf("download media %d: %w", id, err))
	}
	return f.Close()
}

func (s *Service) MediaURL(id int64) string { return s.backend.MediaURL(id) }

// Save persists peers, read positions and the active key for the current
// account. Failures are logged; persistence never blocks the UI.
func (s *Service) Save() {
	if s.states == nil {
		return
	}
	_, account := s.store.Self()
	if account == "" {
		return
	}
	st := persist.FromConversations(account, s.store.Snapshot(), s.store.Active())
	if err := s.states.Save(st); err != nil {
		s.logger.Warn("failed to save state", zap.Error(err))
	}
}
