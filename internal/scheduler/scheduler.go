// Package scheduler drives the campaign tick loop: every interval it
// lists runnable campaigns and hands each one to the runner, bounded by a
// worker budget and guarded by a per-campaign Redis lease so overlapping
// ticks (or a second scheduler instance) never double-run a campaign.
package scheduler

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/postpilot/postpilot-backend/internal/model"
)

// CampaignLister is the slice of the campaign repository the loop needs.
type CampaignLister interface {
	ListRunnable() ([]*model.Campaign, error)
}

// CampaignRunner executes one tick for one campaign and never returns an
// error: the runner is its own failure boundary.
type CampaignRunner interface {
	Run(ctx context.Context, c *model.Campaign)
}

// LeaseLocker hands out per-campaign leases. Satisfied by *Locker.
type LeaseLocker interface {
	Acquire(ctx context.Context, campaignID int) (release func(), ok bool, err error)
}

type Scheduler struct {
	Campaigns CampaignLister
	Runner    CampaignRunner
	Locker    LeaseLocker

	// Interval between ticks; defaults to one minute.
	Interval time.Duration
	// MaxConcurrent bounds in-flight campaign runs; defaults to 8.
	MaxConcurrent int

	Log *zap.Logger
}

// Start blocks, ticking until ctx is cancelled. The first tick fires
// immediately so a fresh deploy does not sit idle for a full interval.
func (s *Scheduler) Start(ctx context.Context) {
	interval := s.Interval
	if interval <= 0 {
		interval = time.Minute
	}

	s.Log.Info("scheduler started", zap.Duration("interval", interval))

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	s.Tick(ctx)
	for {
		select {
		case <-ctx.Done():
			s.Log.Info("scheduler stopped")
			return
		case <-ticker.C:
			s.Tick(ctx)
		}
	}
}

// Tick runs one scheduling pass and waits for every campaign run it
// started, so a pass never overlaps itself.
func (s *Scheduler) Tick(ctx context.Context) {
	campaigns, err := s.Campaigns.ListRunnable()
	if err != nil {
		s.Log.Error("list runnable campaigns", zap.Error(err))
		return
	}
	if len(campaigns) == 0 {
		return
	}

	limit := s.MaxConcurrent
	if limit <= 0 {
		limit = 8
	}
	sem := make(chan struct{}, limit)

	var wg sync.WaitGroup
	for _, c := range campaigns {
		if ctx.Err() != nil {
			break
		}
		select {
		case sem <- struct{}{}:
		case <-ctx.Done():
			wg.Wait()
			return
		}

		wg.Add(1)
		go func(c *model.Campaign) {
			defer wg.Done()
			defer func() { <-sem }()
			s.runOne(ctx, c)
		}(c)
	}
	wg.Wait()
}

func (s *Scheduler) runOne(ctx context.Context, c *model.Campaign) {
	release, ok, err := s.Locker.Acquire(ctx, c.ID)
	if err != nil {
		s.Log.Error("acquire campaign lease", zap.Int("campaign", c.ID), zap.Error(err))
		return
	}
	if !ok {
		// Another runner holds the lease; this tick simply skips it.
		s.Log.Debug("campaign lease held elsewhere, skipping", zap.Int("campaign", c.ID))
		return
	}
	defer release()

	s.Runner.Run(ctx, c)
}
