package chat

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/danhigham/sschat/internal/api"
	"github.com/danhigham/sschat/internal/domain"
)

// Delta is what one fetch did to one conversation.
type Delta struct {
	Key         domain.Key
	Unread      int
	LastKnown   int64
	NewMessages bool
	Active      bool
	Err         error

	moved bool // read or known position changed
}

// Snapshot is the outcome of one poll tick.
type Snapshot struct {
	At        time.Time
	Refreshed bool
	Deltas    []Delta
}

// Failed returns the deltas whose fetch failed.
func (s Snapshot) Failed() []Delta {
	var out []Delta
	for _, d := range s.Deltas {
		if d.Err != nil {
			out = append(out, d)
		}
	}
	return out
}

// ActiveChanged reports whether the active conversation got new messages.
func (s Snapshot) ActiveChanged() bool {
	for _, d := range s.Deltas {
		if d.Active && d.NewMessages && d.Err == nil {
			return true
		}
	}
	return false
}

func (s Snapshot) positionsMoved() bool {
	for _, d := range s.Deltas {
		if d.moved {
			return true
		}
	}
	return false
}

// Poller re-fetches every known conversation on a fixed interval. Ticks run
// one after another on a single goroutine and never overlap.
type Poller struct {
	svc             *Service
	interval        time.Duration
	refreshInterval time.Duration
	logger          *zap.Logger
	now             func() time.Time

	// OnTick, if set, receives every completed tick.
	OnTick func(Snapshot)
	// OnExpired, if set, runs once when the session expires mid-poll.
	OnExpired func()

	lastRefresh time.Time

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

func NewPoller(svc *Service, interval, refreshInterval time.Duration, logger *zap.Logger) *Poller {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Poller{
		svc:             svc,
		interval:        interval,
		refreshInterval: refreshInterval,
		logger:          logger,
		now:             time.Now,
	}
}

// Tick runs one poll pass: an optional conversation refresh, then a fetch of
// every conversation. Per-conversation failures are recorded in the snapshot
// and skipped; only an expired session stops the pass early.
func (p *Poller) Tick(ctx context.Context) (Snapshot, error) {
	snap := Snapshot{At: p.now()}

	if p.lastRefresh.IsZero() || snap.At.Sub(p.lastRefresh) >= p.refreshInterval {
		if err := p.svc.RefreshConversations(ctx); err != nil {
			if errors.Is(err, api.ErrUnauthorized) {
				return snap, err
			}
			p.logger.Debug("refresh failed", zap.Error(err))
		} else {
			p.lastRefresh = snap.At
			snap.Refreshed = true
		}
	}

	for _, key := range p.svc.store.Keys() {
		if ctx.Err() != nil {
			return snap, ctx.Err()
		}
		d := p.svc.FetchConversation(ctx, key)
		snap.Deltas = append(snap.Deltas, d)
		if d.Err != nil {
			if errors.Is(d.Err, api.ErrUnauthorized) {
				return snap, d.Err
			}
			p.logger.Debug("poll failed", zap.Stringer("conversation", key), zap.Error(d.Err))
		}
	}

	if snap.positionsMoved() {
		p.svc.Save()
	}
	return snap, nil
}

// Run polls until ctx is done or the session expires.
func (p *Poller) Run(ctx context.Context) error {
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		snap, err := p.Tick(ctx)
		if err != nil {
			if errors.Is(err, api.ErrUnauthorized) {
				p.logger.Info("session expired, polling stopped")
				if p.OnExpired != nil {
					p.OnExpired()
				}
				return err
			}
			if ctx.Err() != nil {
				return nil
			}
		}
		if p.OnTick != nil {
			p.OnTick(snap)
		}

		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
	}
}

// Start launches Run in the background, replacing any running loop.
func (p *Poller) Start(ctx context.Context) {
	p.Stop()

	p.mu.Lock()
	defer p.mu.Unlock()
	ctx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	p.cancel = cancel
	p.done = done
	p.lastRefresh = time.Time{}

	go func() {
		defer close(done)
		if err := p.Run(ctx); err != nil {
			p.logger.Warn("poller stopped", zap.Error(err))
		}
	}()
}

// Stop cancels the running loop and waits for its current tick to finish.
func (p *Poller) Stop() {
	p.mu.Lock()
	cancel, done := p.cancel, p.done
	p.cancel, p.done = nil, nil
	p.mu.Unlock()

	if cancel != nil {
		cancel()
		<-done
	}
}
