// Marquee - Personalized Virtual Libraries for Media Servers
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/marquee

package continuewatching

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"github.com/tomtom215/marquee/internal/logging"
	"github.com/tomtom215/marquee/internal/metrics"
	"github.com/tomtom215/marquee/internal/models"
)

const minPerUserInterval = time.Second

// UserSyncer syncs one user. *Syncer implements it.
type UserSyncer interface {
	SyncUser(ctx context.Context, userID, userName string) (*SyncResult, error)
}

// UserLister lists media-server users.
type UserLister interface {
	GetUsers(ctx context.Context) ([]models.User, error)
}

// PerUserInterval spreads one poll interval over n users, never polling
// faster than once a second.
func PerUserInterval(pollInterval time.Duration, n int) time.Duration {
	if n <= 0 {
		return max(minPerUserInterval, pollInterval)
	}
	return max(minPerUserInterval, pollInterval/time.Duration(n))
}

// Poller visits one user per tick, round-robin, so a full cycle takes about
// one poll interval. A tick is skipped while the previous one is running.
// The user list is reloaded at the start of every cycle.
//
// Poller implements suture.Service.
type Poller struct {
	syncer       UserSyncer
	users        UserLister
	pollInterval time.Duration

	inFlight atomic.Bool

	mu        sync.Mutex
	list      []models.User
	cursor    int
	preloaded bool

	logger zerolog.Logger
}

// NewPoller creates a poller.
func NewPoller(syncer UserSyncer, users UserLister, pollInterval time.Duration) *Poller {
	if pollInterval <= 0 {
		pollInterval = 5 * time.Minute
	}
	return &Poller{
		syncer:       syncer,
		users:        users,
		pollInterval: pollInterval,
		logger:       logging.WithComponent("continue-watching-poller"),
	}
}

// Serve polls until ctx is canceled. The user list is loaded before the
// first tick so the spacing is spread across users from the start.
func (p *Poller) Serve(ctx context.Context) error {
	p.logger.Info().Dur("poll_interval", p.pollInterval).Msg("Continue watching poller starting")
	p.preload(ctx)

	var wg sync.WaitGroup
	defer wg.Wait()

	timer := time.NewTimer(0)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			p.logger.Info().Msg("Continue watching poller stopping")
			return ctx.Err()

		case <-timer.C:
			wg.Add(1)
			go func() {
				defer wg.Done()
				p.tick(ctx)
			}()
			timer.Reset(p.interval())
		}
	}
}

// tick polls the next user unless the previous tick is still running.
func (p *Poller) tick(ctx context.Context) bool {
	if !p.inFlight.CompareAndSwap(false, true) {
		p.logger.Debug().Msg("Previous poll still running; skipping tick")
		metrics.RecordContinueWatchingPoll(metrics.StatusSkipped, 0)
		return false
	}
	defer p.inFlight.Store(false)
	p.pollNext(ctx)
	return true
}

func (p *Poller) interval() time.Duration {
	p.mu.Lock()
	n := len(p.list)
	p.mu.Unlock()
	return PerUserInterval(p.pollInterval, n)
}

func (p *Poller) preload(ctx context.Context) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.preloaded = p.refreshLocked(ctx)
}

// refreshLocked reloads the active users. On error the previous list is
// kept. p.mu must be held.
func (p *Poller) refreshLocked(ctx context.Context) bool {
	users, err := p.users.GetUsers(ctx)
	if err != nil {
		p.logger.Warn().Err(err).Msg("Failed to refresh users; keeping previous list")
		return false
	}
	active := users[:0:0]
	for _, u := range users {
		if !u.IsDisabled {
			active = append(active, u)
		}
	}
	p.list = active
	return true
}

// next returns the user to poll, reloading the list when a cycle starts.
// A list loaded by preload serves as the first cycle's list.
func (p *Poller) next(ctx context.Context) (models.User, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.cursor >= len(p.list) {
		p.cursor = 0
	}
	if p.cursor == 0 {
		if p.preloaded {
			p.preloaded = false
		} else {
			p.refreshLocked(ctx)
		}
	}
	if len(p.list) == 0 {
		return models.User{}, false
	}

	u := p.list[p.cursor]
	p.cursor++
	return u, true
}

func (p *Poller) pollNext(ctx context.Context) {
	user, ok := p.next(ctx)
	if !ok {
		return
	}

	res, err := p.syncer.SyncUser(ctx, user.ID, user.Name)
	switch {
	case err == nil:
		metrics.RecordContinueWatchingPoll(metrics.StatusSuccess, len(res.Items))
	case errors.Is(err, ErrSyncInProgress):
		metrics.RecordContinueWatchingPoll(metrics.StatusSkipped, 0)
	case errors.Is(err, context.Canceled):
		metrics.RecordContinueWatchingPoll(metrics.StatusCanceled, 0)
	default:
		metrics.RecordContinueWatchingPoll(metrics.StatusFailure, 0)
		p.logger.Warn().Err(err).Str("user_id", user.ID).Msg("Continue watching sync failed")
	}
}

// String names the service in supervisor logs.
func (p *Poller) String() string {
	return "continue-watching-poller"
}
