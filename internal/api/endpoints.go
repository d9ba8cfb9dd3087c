package api

import (
	"context"
	"net/url"
	"strconv"

	"github.com/danhigham/sschat/internal/domain"
)

type credentials struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// Account is the subset of the login/register response the client uses.
type Account struct {
	ID        int64  `json:"id"`
	Username  string `json:"username"`
	PublicKey string `json:"public_key_base64,omitempty"`
}

func (c *Client) Register(ctx context.Context, username, password string) (*Account, error) {
	var acc Account
	if err := c.postJSON(ctx, "/register", credentials{username, password}, &acc); err != nil {
		return nil, err
	}
	return &acc, nil
}

func (c *Client) Login(ctx context.Context, username, password string) (*Account, error) {
	var acc Account
	if err := c.postJSON(ctx, "/login", credentials{username, password}, &acc); err != nil {
		return nil, err
	}
	return &acc, nil
}

// LookupUser resolves a username to its account via the public key endpoint.
func (c *Client) LookupUser(ctx context.Context, username string) (*domain.User, error) {
	var u domain.User
	q := url.Values{"username": {username}}
	if err := c.getJSON(ctx, "/public_key", q, &u); err != nil {
		return nil, err
	}
	return &u, nil
}

func (c *Client) GroupsByUser(ctx context.Context, userID int64) ([]domain.Group, error) {
	var out []domain.Group
	q := url.Values{"user_id": {itoa(userID)}}
	if err := c.getJSON(ctx, "/groups/by_user", q, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) GroupMessages(ctx context.Context, groupID int64) ([]domain.Message, error) {
	var out []domain.Message
	q := url.Values{"group_id": {itoa(groupID)}}
	if err := c.getJSON(ctx, "/groups/messages", q, &out); err != nil {
		return nil, err
	}
	return out, nil
}

type sentResponse struct {
	ID int64 `json:"id"`
}

func (c *Client) SendGroup(ctx context.Context, groupID, fromUserID int64, text string) (int64, error) {
	req := struct {
		GroupID    int64  `json:"group_id"`
		FromUserID int64  `json:"from_user_id"`
		Text       string `json:"text"`
	}{groupID, fromUserID, text}
	var resp sentResponse
	if err := c.postJSON(ctx, "/groups/send", req, &resp); err != nil {
		return 0, err
	}
	return resp.ID, nil
}

func (c *Client) CreateGroup(ctx context.Context, name string, ownerID int64, memberIDs []int64) (*domain.Group, error) {
	if memberIDs == nil {
		memberIDs = []int64{}
	}
	req := struct {
		Name      string  `json:"name"`
		OwnerID   int64   `json:"owner_id"`
		MemberIDs []int64 `json:"member_ids"`
	}{name, ownerID, memberIDs}
	var g domain.Group
	if err := c.postJSON(ctx, "/groups/create", req, &g); err != nil {
		return nil, err
	}
	return &g, nil
}

// AddGroupMember sends both member_id and user_id; backend revisions disagree
// on the field name.
func (c *Client) AddGroupMember(ctx context.Context, groupID, actorID, memberID int64) error {
	req := struct {
		GroupID  int64 `json:"group_id"`
		ActorID  int64 `json:"actor_id"`
		MemberID int64 `json:"member_id"`
		UserID   int64 `json:"user_id"`
	}{groupID, actorID, memberID, memberID}
	return c.postJSON(ctx, "/groups/add_member", req, nil)
}

func (c *Client) DirectMessages(ctx context.Context, userA, userB int64) ([]domain.Message, error) {
	var out []domain.Message
	q := url.Values{"user_a": {itoa(userA)}, "user_b": {itoa(userB)}}
	if err := c.getJSON(ctx, "/chat/messages", q, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) SendDirect(ctx context.Context, fromUserID, toUserID int64, text string) (int64, error) {
	req := struct {
		FromUserID int64  `json:"from_user_id"`
		ToUserID   int64  `json:"to_user_id"`
		Text       string `json:"text"`
	}{fromUserID, toUserID, text}
	var resp sentResponse
	if err := c.postJSON(ctx, "/chat/send", req, &resp); err != nil {
		return 0, err
	}
	return resp.ID, nil
}

func (c *Client) Inbox(ctx context.Context, userID int64) ([]domain.InboxEntry, error) {
	var out []domain.InboxEntry
	q := url.Values{"user_id": {itoa(userID)}}
	if err := c.getJSON(ctx, "/chat/inbox", q, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) PresencePing(ctx context.Context, userID int64) error {
	req := struct {
		UserID int64 `json:"user_id"`
	}{userID}
	return c.postJSON(ctx, "/presence/ping", req, nil)
}

func (c *Client) Online(ctx context.Context) ([]domain.User, error) {
	var out []domain.User
	if err := c.getJSON(ctx, "/presence/online", nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func itoa(v int64) string { return strconv.FormatInt(v, 10) }
