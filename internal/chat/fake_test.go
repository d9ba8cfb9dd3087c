package chat_test

import (
	"context"
	"fmt"
	"io"
	"sync"

	"github.com/danhigham/sschat/internal/api"
	"github.com/danhigham/sschat/internal/domain"
)

// fakeBackend is an in-memory stand-in for the REST API.
type fakeBackend struct {
	mu sync.Mutex

	users    map[string]int64
	groups   map[int64]domain.Group
	members  map[int64][]int64
	messages []domain.Message
	media    map[int64][]byte
	online   []domain.User
	nextID   int64

	lookups      map[string]int
	failDirect   map[int64]error // keyed by peer id
	failGroup    map[int64]error
	unauthorized bool
}

func newFakeBackend() *fakeBackend {
	return &fakeBackend{
		users:      map[string]int64{"alice": 1, "bob": 2, "carol": 3},
		groups:     make(map[int64]domain.Group),
		members:    make(map[int64][]int64),
		media:      make(map[int64][]byte),
		lookups:    make(map[string]int),
		failDirect: make(map[int64]error),
		failGroup:  make(map[int64]error),
		nextID:     100,
	}
}

func (f *fakeBackend) id() int64 {
	f.nextID++
	return f.nextID
}

func (f *fakeBackend) authErr() error {
	if f.unauthorized {
		return api.ErrUnauthorized
	}
	return nil
}

func (f *fakeBackend) nameOf(id int64) string {
	for n, uid := range f.users {
		if uid == id {
			return n
		}
	}
	return ""
}

// post appends a message as if another client had sent it.
func (f *fakeBackend) post(m domain.Message) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if m.ID == 0 {
		m.ID = f.id()
	}
	if m.ID > f.nextID {
		f.nextID = m.ID
	}
	f.messages = append(f.messages, m)
}

func (f *fakeBackend) addGroup(id int64, name string, members ...int64) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.groups[id] = domain.Group{ID: id, Name: name}
	f.members[id] = members
}

func (f *fakeBackend) LookupUser(ctx context.Context, username string) (*domain.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.lookups[username]++
	if err := f.authErr(); err != nil {
		return nil, err
	}
	id, ok := f.users[username]
	if !ok {
		return nil, &api.StatusError{Status: 404, Body: "user not found"}
	}
	return &domain.User{ID: id, Username: username}, nil
}

func (f *fakeBackend) Register(ctx context.Context, username, password string) (*api.Account, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.users[username]; ok {
		return nil, &api.StatusError{Status: 409, Body: "username taken"}
	}
	f.users[username] = f.id()
	return &api.Account{ID: f.users[username], Username: username}, nil
}

func (f *fakeBackend) Login(ctx context.Context, username, password string) (*api.Account, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	id, ok := f.users[username]
	if !ok || password != username+"pass" {
		return nil, api.ErrUnauthorized
	}
	return &api.Account{ID: id, Username: username}, nil
}

func (f *fakeBackend) GroupsByUser(ctx context.Context, userID int64) ([]domain.Group, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.authErr(); err != nil {
		return nil, err
	}
	var out []domain.Group
	for gid, ms := range f.members {
		for _, m := range ms {
			if m == userID {
				out = append(out, f.groups[gid])
			}
		}
	}
	return out, nil
}

func (f *fakeBackend) GroupMessages(ctx context.Context, groupID int64) ([]domain.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.authErr(); err != nil {
		return nil, err
	}
	if err := f.failGroup[groupID]; err != nil {
		return nil, err
	}
	var out []domain.Message
	for _, m := range f.messages {
		if m.GroupID == groupID {
			out = append(out, m)
		}
	}
	return out, nil
}

func (f *fakeBackend) SendGroup(ctx context.Context, groupID, fromUserID int64, text string) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.authErr(); err != nil {
		return 0, err
	}
	m := domain.Message{ID: f.id(), GroupID: groupID, FromUserID: fromUserID, FromUsername: f.nameOf(fromUserID), Text: text}
	f.messages = append(f.messages, m)
	return m.ID, nil
}

func (f *fakeBackend) CreateGroup(ctx context.Context, name string, ownerID int64, memberIDs []int64) (*domain.Group, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.authErr(); err != nil {
		return nil, err
	}
	g := domain.Group{ID: f.id(), Name: name, OwnerID: ownerID}
	f.groups[g.ID] = g
	f.members[g.ID] = append([]int64{ownerID}, memberIDs...)
	return &g, nil
}

func (f *fakeBackend) AddGroupMember(ctx context.Context, groupID, actorID, memberID int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.authErr(); err != nil {
		return err
	}
	if _, ok := f.groups[groupID]; !ok {
		return &api.StatusError{Status: 400, Body: "group not found"}
	}
	f.members[groupID] = append(f.members[groupID], memberID)
	return nil
}

func (f *fakeBackend) DirectMessages(ctx context.Context, userA, userB int64) ([]domain.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.authErr(); err != nil {
		return nil, err
	}
	if err := f.failDirect[userB]; err != nil {
		return nil, err
	}
	var out []domain.Message
	for _, m := range f.messages {
		if m.GroupID != 0 {
			continue
		}
		if (m.FromUserID == userA && m.ToUserID == userB) || (m.FromUserID == userB && m.ToUserID == userA) {
			out = append(out, m)
		}
	}
	return out, nil
}

func (f *fakeBackend) SendDirect(ctx context.Context, fromUserID, toUserID int64, text string) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.authErr(); err != nil {
		return 0, err
	}
	m := domain.Message{ID: f.id(), FromUserID: fromUserID, ToUserID: toUserID, Text: text}
	f.messages = append(f.messages, m)
	return m.ID, nil
}

func (f *fakeBackend) Inbox(ctx context.Context, userID int64) ([]domain.InboxEntry, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.authErr(); err != nil {
		return nil, err
	}
	last := make(map[int64]domain.Message)
	for _, m := range f.messages {
		if m.GroupID != 0 {
			continue
		}
		switch userID {
		case m.ToUserID:
			last[m.FromUserID] = m
		case m.FromUserID:
			last[m.ToUserID] = m
		}
	}
	var out []domain.InboxEntry
	for peer, m := range last {
		out = append(out, domain.InboxEntry{PeerID: peer, PeerUsername: f.nameOf(peer), LastMessageID: m.ID, LastText: m.Text})
	}
	return out, nil
}

func (f *fakeBackend) PresencePing(ctx context.Context, userID int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.authErr()
}

func (f *fakeBackend) Online(ctx context.Context) ([]domain.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.authErr(); err != nil {
		return nil, err
	}
	return f.online, nil
}

func (f *fakeBackend) UploadMedia(ctx context.Context, up api.Upload) (int64, error) {
	b, err := io.ReadAll(up.Content)
	if err != nil {
		return 0, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.authErr(); err != nil {
		return 0, err
	}
	id := f.id()
	f.media[id] = b
	return id, nil
}

func (f *fakeBackend) FetchMedia(ctx context.Context, id int64, w io.Writer) error {
	f.mu.Lock()
	b, ok := f.media[id]
	f.mu.Unlock()
	if !ok {
		return &api.StatusError{Status: 404, Body: "not found"}
	}
	_, err := w.Write(b)
	return err
}

func (f *fakeBackend) MediaURL(id int64) string {
	return fmt.Sprintf("http://fake/plain_media/get?id=%d", id)
}
