package chat_test

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/danhigham/sschat/internal/api"
	"github.com/danhigham/sschat/internal/chat"
	"github.com/danhigham/sschat/internal/domain"
	"github.com/danhigham/sschat/internal/persist"
	"github.com/danhigham/sschat/internal/state"
)

func newService(t *testing.T, fb *fakeBackend, states *persist.Dir) *chat.Service {
	t.Helper()
	return chat.NewService(fb, state.New(nil), states, nil)
}

func loggedIn(t *testing.T, fb *fakeBackend) *chat.Service {
	t.Helper()
	svc := newService(t, fb, nil)
	require.NoError(t, svc.Login(context.Background(), "alice", "alicepass"))
	return svc
}

func TestLogin_WrongPassword(t *testing.T) {
	svc := newService(t, newFakeBackend(), nil)
	err := svc.Login(context.Background(), "alice", "nope")
	require.ErrorIs(t, err, chat.ErrBadCredentials)
	assert.NotErrorIs(t, err, api.ErrUnauthorized)
	assert.Equal(t, "login: wrong username or password", err.Error())
	assert.Equal(t, domain.AuthStateNone, svc.Store().GetAuthState())
	id, _ := svc.Store().Self()
	assert.Zero(t, id)
}

func TestLogin_EmptyCredentials(t *testing.T) {
	svc := newService(t, newFakeBackend(), nil)
	assert.ErrorIs(t, svc.Login(context.Background(), " ", "x"), chat.ErrEmptyName)
}

func TestRegister_ThenLoggedIn(t *testing.T) {
	fb := newFakeBackend()
	svc := newService(t, fb, nil)

	require.NoError(t, svc.Register(context.Background(), "dave", "davepass"))
	id, name := svc.Store().Self()
	assert.NotZero(t, id)
	assert.Equal(t, "dave", name)
	assert.Equal(t, domain.AuthStateAuthenticated, svc.Store().GetAuthState())
}

func TestOpenDirect_ResolvesPeerOnce(t *testing.T) {
	fb := newFakeBackend()
	fb.post(domain.Message{FromUserID: 3, ToUserID: 1, Text: "hi alice"})
	svc := loggedIn(t, fb)
	ctx := context.Background()

	key, err := svc.OpenDirect(ctx, "  carol ")
	require.NoError(t, err)
	assert.Equal(t, domain.DirectKey("carol"), key)
	assert.Equal(t, key, svc.Store().Active())

	c, ok := svc.Store().Get(key)
	require.True(t, ok)
	assert.Equal(t, int64(3), c.PeerID)
	assert.Equal(t, 0, c.UnreadCount)
	require.Len(t, svc.Store().Messages(key), 1)

	svc.FetchConversation(ctx, key)
	require.NoError(t, svc.Send(ctx, "hello"))
	assert.Equal(t, 1, fb.lookups["carol"])
}

func TestOpenDirect_EmptyName(t *testing.T) {
	svc := loggedIn(t, newFakeBackend())
	_, err := svc.OpenDirect(context.Background(), "")
	assert.ErrorIs(t, err, chat.ErrEmptyName)
}

func TestOpenDirect_UnknownUser(t *testing.T) {
	svc := loggedIn(t, newFakeBackend())
	_, err := svc.OpenDirect(context.Background(), "nobody")

	var se *api.StatusError
	require.True(t, errors.As(err, &se))
	assert.Equal(t, 404, se.Status)
}

func TestSend_VisibleBeforeNextTick(t *testing.T) {
	fb := newFakeBackend()
	svc := loggedIn(t, fb)
	ctx := context.Background()

	key, err := svc.OpenDirect(ctx, "bob")
	require.NoError(t, err)
	require.NoError(t, svc.Send(ctx, "ping"))

	msgs := svc.Store().Messages(key)
	require.Len(t, msgs, 1)
	assert.Equal(t, "ping", msgs[0].Text)
	c, _ := svc.Store().Get(key)
	assert.Equal(t, msgs[0].ID, c.LastKnownMessageID)
	assert.Equal(t, c.LastKnownMessageID, c.LastReadMessageID)
}

func TestSend_NoActiveConversation(t *testing.T) {
	svc := loggedIn(t, newFakeBackend())
	assert.ErrorIs(t, svc.Send(context.Background(), "hello"), chat.ErrNoActiveConversation)
}

func TestSend_BlankIsNoop(t *testing.T) {
	svc := loggedIn(t, newFakeBackend())
	assert.NoError(t, svc.Send(context.Background(), "   "))
}

func TestCreateGroupAndAddMember(t *testing.T) {
	fb := newFakeBackend()
	svc := loggedIn(t, fb)
	ctx := context.Background()

	_, err := svc.AddMember(ctx, "bob")
	assert.ErrorIs(t, err, chat.ErrNoActiveConversation)

	key, err := svc.CreateGroup(ctx, "ops")
	require.NoError(t, err)
	assert.Equal(t, domain.KindGroup, key.Kind)
	assert.Equal(t, key, svc.Store().Active())
	c, _ := svc.Store().Get(key)
	assert.Equal(t, "ops", c.Title)

	memberID, err := svc.AddMember(ctx, "bob")
	require.NoError(t, err)
	assert.Equal(t, int64(2), memberID)
	assert.Contains(t, fb.members[key.GroupID], int64(2))

	_, err = svc.OpenDirect(ctx, "carol")
	require.NoError(t, err)
	_, err = svc.AddMember(ctx, "bob")
	assert.ErrorIs(t, err, chat.ErrNotGroup)
}

func TestSendImage(t *testing.T) {
	fb := newFakeBackend()
	svc := loggedIn(t, fb)
	ctx := context.Background()

	path := filepath.Join(t.TempDir(), "cat.png")
	png := []byte("\x89PNG\r\n\x1a\nrest-of-image")
	require.NoError(t, os.WriteFile(path, png, 0600))

	key, err := svc.OpenDirect(ctx, "bob")
	require.NoError(t, err)
	require.NoError(t, svc.SendImage(ctx, path))

	msgs := svc.Store().Messages(key)
	require.Len(t, msgs, 1)
	mediaID, ok := chat.ParseImageTag(msgs[0].Text)
	require.True(t, ok, "last message %q is not an image tag", msgs[0].Text)
	assert.Equal(t, png, fb.media[mediaID])

	out := filepath.Join(t.TempDir(), "saved.png")
	require.NoError(t, svc.SaveMedia(ctx, mediaID, out))
	saved, err := os.ReadFile(out)
	require.NoError(t, err)
	assert.Equal(t, png, saved)
}

func TestSendImage_RejectsNonImage(t *testing.T) {
	fb := newFakeBackend()
	svc := loggedIn(t, fb)
	ctx := context.Background()

	path := filepath.Join(t.TempDir(), "notes.txt")
	require.NoError(t, os.WriteFile(path, []byte("plain text"), 0600))

	_, err := svc.OpenDirect(ctx, "bob")
	require.NoError(t, err)
	assert.Error(t, svc.SendImage(ctx, path))
	assert.Empty(t, fb.media)
}

func TestSaveMedia_MissingRemovesFile(t *testing.T) {
	svc := loggedIn(t, newFakeBackend())
	out := filepath.Join(t.TempDir(), "missing.png")
	assert.Error(t, svc.SaveMedia(context.Background(), 999, out))
	_, err := os.Stat(out)
	assert.True(t, os.IsNotExist(err))
}

func TestUnauthorizedMarksSessionExpired(t *testing.T) {
	fb := newFakeBackend()
	svc := loggedIn(t, fb)
	ctx := context.Background()
	_, err := svc.OpenDirect(ctx, "bob")
	require.NoError(t, err)

	fb.unauthorized = true
	err = svc.Send(ctx, "hello")
	assert.ErrorIs(t, err, api.ErrUnauthorized)
	assert.Equal(t, domain.AuthStateExpired, svc.Store().GetAuthState())
}

func TestAccountSwitchWipesState(t *testing.T) {
	fb := newFakeBackend()
	states, err := persist.NewDir(t.TempDir())
	require.NoError(t, err)
	svc := newService(t, fb, states)
	ctx := context.Background()

	require.NoError(t, svc.Login(ctx, "alice", "alicepass"))
	_, err = svc.OpenDirect(ctx, "carol")
	require.NoError(t, err)

	require.NoError(t, svc.Login(ctx, "bob", "bobpass"))
	_, ok := svc.Store().Get(domain.DirectKey("carol"))
	assert.False(t, ok, "alice's conversation leaked into bob's session")
	assert.True(t, svc.Store().Active().IsZero())

	// Coming back as alice restores her own state from disk.
	require.NoError(t, svc.Login(ctx, "alice", "alicepass"))
	_, ok = svc.Store().Get(domain.DirectKey("carol"))
	assert.True(t, ok)
	assert.Equal(t, domain.DirectKey("carol"), svc.Store().Active())
}

func TestResolver_SharesConcurrentLookups(t *testing.T) {
	fb := newFakeBackend()
	r := chat.NewResolver(fb)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			id, err := r.Resolve(context.Background(), "bob")
			assert.NoError(t, err)
			assert.Equal(t, int64(2), id)
		}()
	}
	wg.Wait()

	_, err := r.Resolve(context.Background(), "bob")
	require.NoError(t, err)
	fb.mu.Lock()
	defer fb.mu.Unlock()
	assert.LessOrEqual(t, fb.lookups["bob"], 8)
	assert.GreaterOrEqual(t, fb.lookups["bob"], 1)
}

func TestResolver_PrimeSkipsLookup(t *testing.T) {
	fb := newFakeBackend()
	r := chat.NewResolver(fb)
	r.Prime("bob", 2)

	id, err := r.Resolve(context.Background(), "bob")
	require.NoError(t, err)
	assert.Equal(t, int64(2), id)
	assert.Zero(t, fb.lookups["bob"])

	r.Reset()
	_, err = r.Resolve(context.Background(), "bob")
	require.NoError(t, err)
	assert.Equal(t, 1, fb.lookups["bob"])
}

func TestImageTag(t *testing.T) {
	assert.Equal(t, "[[img:42]]", chat.ImageTag(42))

	id, ok := chat.ParseImageTag("[[img:42]]")
	assert.True(t, ok)
	assert.Equal(t, int64(42), id)

	for _, text := range []string{"[[img:]]", "see [[img:42]]", "[[img:42]] ", "[[IMG:42]]", "[[img:4a]]"} {
		_, ok := chat.ParseImageTag(text)
		assert.False(t, ok, text)
	}
}
