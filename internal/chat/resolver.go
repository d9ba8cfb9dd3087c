package chat

import (
	"context"
	"fmt"
	"sync"

	"golang.org/x/sync/singleflight"

	"github.com/danhigham/sschat/internal/domain"
)

// UserLookup resolves a username to an account.
type UserLookup interface {
	LookupUser(ctx context.Context, username string) (*domain.User, error)
}

// Resolver maps peer names to user IDs. Each name is looked up at most once
// per session; concurrent callers for the same name share one request.
type Resolver struct {
	lookup UserLookup
	group  singleflight.Group

	mu    sync.Mutex
	cache map[string]int64
}

func NewResolver(lookup UserLookup) *Resolver {
	return &Resolver{lookup: lookup, cache: make(map[string]int64)}
}

func (r *Resolver) cached(name string) (int64, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	id, ok := r.cache[name]
	return id, ok
}

// Prime records an ID learned elsewhere (inbox listing, login).
func (r *Resolver) Prime(name string, id int64) {
	if name == "" || id == 0 {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.cache[name] = id
}

func (r *Resolver) Resolve(ctx context.Context, name string) (int64, error) {
	if id, ok := r.cached(name); ok {
		return id, nil
	}

	v, err, _ := r.group.Do(name, func() (any, error) {
		if id, ok := r.cached(name); ok {
			return id, nil
		}
		u, err := r.lookup.LookupUser(ctx, name)
		if err != nil {
			return int64(0), err
		}
		if u.ID == 0 {
			return int64(0), fmt.Errorf("user %q has no id", name)
		}
		r.Prime(name, u.ID)
		return u.ID, nil
	})
	if err != nil {
		return 0, fmt.Errorf("resolve %s: %w", name, err)
	}
	return v.(int64), nil
}

// Reset forgets every resolved name; used on account switch.
func (r *Resolver) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.cache = make(map[string]int64)
}
