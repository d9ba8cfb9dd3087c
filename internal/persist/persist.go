// Package persist keeps per-account client state on disk: known peers, read
// positions and the last active conversation. Every file is namespaced by
// account so one login never sees another's positions.
package persist

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/danhigham/sschat/internal/domain"
)

const lastUserFile = "last_user"

type Position struct {
	Key       string `yaml:"key"`
	Title     string `yaml:"title,omitempty"`
	LastKnown int64  `yaml:"last_known"`
	LastRead  int64  `yaml:"last_read"`
}

// State is the on-disk document for one account.
type State struct {
	Account   string     `yaml:"account"`
	Peers     []string   `yaml:"peers"`
	Positions []Position `yaml:"positions"`
	Active    string     `yaml:"active,omitempty"`
}

// Dir stores one YAML file per account under a directory.
type Dir struct {
	path string
}

func NewDir(path string) (*Dir, error) {
	if err := os.MkdirAll(path, 0700); err != nil {
		return nil, fmt.Errorf("create state dir: %w", err)
	}
	return &Dir{path: path}, nil
}

var unsafeName = regexp.MustCompile(`[^A-Za-z0-9._-]`)

func (d *Dir) file(account string) string {
	name := unsafeName.ReplaceAllString(account, "_")
	return filepath.Join(d.path, "ss_"+name+".yaml")
}

// SwitchAccount records account as the last logged-in user and reports
// whether it differs from the previous one. Callers wipe in-memory state
// when it returns true.
func (d *Dir) SwitchAccount(account string) (bool, error) {
	p := filepath.Join(d.path, lastUserFile)
	prev, err := os.ReadFile(p)
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return false, fmt.Errorf("read last user: %w", err)
	}
	switched := len(prev) > 0 && strings.TrimSpace(string(prev)) != account
	if err := os.WriteFile(p, []byte(account+"\n"), 0600); err != nil {
		return switched, fmt.Errorf("write last user: %w", err)
	}
	return switched, nil
}

// Load returns the stored state for account. A missing file is an empty
// state, not an error.
func (d *Dir) Load(account string) (*State, error) {
	data, err := os.ReadFile(d.file(account))
	if errors.Is(err, os.ErrNotExist) {
		return &State{Account: account}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read state: %w", err)
	}

	var st State
	if err := yaml.Unmarshal(data, &st); err != nil {
		return nil, fmt.Errorf("parse state: %w", err)
	}
	if st.Account != account {
		// Renamed or hand-copied file; never reuse another account's data.
		return &State{Account: account}, nil
	}
	return &st, nil
}

// Save writes st atomically.
func (d *Dir) Save(st *State) error {
	if st.Account == "" {
		return errors.New("save state: account is empty")
	}
	data, err := yaml.Marshal(st)
	if err != nil {
		return fmt.Errorf("encode state: %w", err)
	}
	target := d.file(st.Account)
	tmp := target + ".tmp"
	if err := os.WriteFile(tmp, data, 0600); err != nil {
		return fmt.Errorf("write state: %w", err)
	}
	if err := os.Rename(tmp, target); err != nil {
		return fmt.Errorf("replace state: %w", err)
	}
	return nil
}

// FromConversations builds the document for account from store contents.
func FromConversations(account string, convs []domain.Conversation, active domain.Key) *State {
	st := &State{Account: account}
	for _, c := range convs {
		if c.Key.Kind == domain.KindDirect {
			st.Peers = append(st.Peers, c.Key.PeerName)
		}
		if c.Baselined {
			st.Positions = append(st.Positions, Position{
				Key:       c.Key.String(),
				Title:     c.Title,
				LastKnown: c.LastKnownMessageID,
				LastRead:  c.LastReadMessageID,
			})
		}
	}
	if !active.IsZero() {
		st.Active = active.String()
	}
	return st
}

// Conversations turns the stored document back into conversations for
// Store.Restore. Entries with unparseable keys are dropped.
func (st *State) Conversations() ([]domain.Conversation, domain.Key) {
	byKey := make(map[domain.Key]*domain.Conversation)
	var order []domain.Key

	add := func(k domain.Key, title string) *domain.Conversation {
		if c, ok := byKey[k]; ok {
			return c
		}
		if title == "" && k.Kind == domain.KindDirect {
			title = k.PeerName
		}
		c := &domain.Conversation{Key: k, Title: title}
		byKey[k] = c
		order = append(order, k)
		return c
	}

	for _, name := range st.Peers {
		name = strings.TrimSpace(name)
		if name == "" {
			continue
		}
		add(domain.DirectKey(name), name)
	}
	for _, p := range st.Positions {
		k, err := domain.ParseKey(p.Key)
		if err != nil {
			continue
		}
		c := add(k, p.Title)
		if c.Title == "" {
			c.Title = p.Title
		}
		c.LastKnownMessageID = p.LastKnown
		c.LastReadMessageID = min(p.LastRead, p.LastKnown)
		c.Baselined = true
	}

	out := make([]domain.Conversation, 0, len(order))
	for _, k := range order {
		out = append(out, *byKey[k])
	}

	active, err := domain.ParseKey(st.Active)
	if err != nil {
		active = domain.Key{}
	}
	return out, active
}
