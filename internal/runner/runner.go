// Package runner orchestrates one campaign tick: gap-fill in-flight
// partial items, ask the trigger evaluator, pick the next content item,
// fan it out to every resolved channel, and settle the outcomes. Failures
// never escape the runner: per-channel errors are logged and retried by
// the gap-filler, campaign-fatal errors pause the campaign.
package runner

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/postpilot/postpilot-backend/internal/adapter"
	"github.com/postpilot/postpilot-backend/internal/channel"
	"github.com/postpilot/postpilot-backend/internal/events"
	"github.com/postpilot/postpilot-backend/internal/model"
	"github.com/postpilot/postpilot-backend/internal/selector"
	"github.com/postpilot/postpilot-backend/internal/trigger"
)

// CampaignStore is the slice of the campaign repository the runner needs.
type CampaignStore interface {
	UpdateStatus(campaignID int, status string) error
	SetLastPostAt(campaignID int, t time.Time) error
	SetLastRepostAt(campaignID int, t time.Time) error
}

// ItemStore is the slice of the content item repository the runner needs.
// It is a superset of selector.ItemSource.
type ItemStore interface {
	NextFresh(campaignID int) (*model.ContentItem, error)
	NextRepostable(campaignID, maxCount int) (*model.ContentItem, error)
	ListPartial(campaignID int) ([]*model.ContentItem, error)
	UpdateStatus(id int, status string, partial bool, errorMessage string) error
	MarkPublished(id int, publishedAt time.Time, partial bool) error
	SetRepublishCount(id, count int) error
	AppendExternalPost(itemID, channelID, attempt int, externalPostID string) error
	ListExternalPosts(itemID int) ([]model.ExternalPost, error)
}

type ConnectionSource interface {
	ListActiveByCampaign(campaignID int) ([]*model.Connection, error)
}

type LogStore interface {
	Append(entry *model.CampaignLog) error
}

// ChannelResolver is the channel registry collaborator boundary.
type ChannelResolver interface {
	Resolve(conn *model.Connection, now time.Time) ([]*model.Channel, []channel.Skip, error)
}

// PublisherRegistry hands out the adapter for a platform.
type PublisherRegistry interface {
	For(platform string) (adapter.Publisher, bool)
}

type Runner struct {
	Campaigns   CampaignStore
	Items       ItemStore
	Connections ConnectionSource
	Logs        LogStore
	Registry    ChannelResolver
	Adapters    PublisherRegistry
	Events      events.Sink
	Trigger     trigger.Evaluator
	Now         trigger.Clock

	// PublishTimeout bounds each channel adapter call.
	PublishTimeout time.Duration

	Log *zap.Logger
}

// Run executes one tick for one campaign. It is the failure boundary: the
// scheduler only ever observes "tick completed".
func (r *Runner) Run(ctx context.Context, c *model.Campaign) {
	defer func() {
		if rec := recover(); rec != nil {
			r.campaignError(c, fmt.Sprintf("panic: %v", rec))
		}
	}()

	// Any error escaping the tick is campaign-fatal (malformed policy,
	// storage failure): circuit-break instead of burning retries every
	// minute.
	if err := r.tick(ctx, c); err != nil {
		r.campaignError(c, err.Error())
	}
}

func (r *Runner) tick(ctx context.Context, c *model.Campaign) error {
	now := r.Now()

	// Close out in-flight partial items before anything new. This also
	// runs for paused campaigns so a pause never strands a half-published
	// item.
	if err := r.fillGaps(ctx, c, now); err != nil {
		return err
	}
	if c.Status != model.CampaignStatusActive {
		return nil
	}

	sel := selector.New(r.Items)

	duePost, err := r.Trigger.ShouldPost(c, now)
	if err != nil {
		return err
	}
	if duePost {
		item, err := sel.NextFresh(c)
		if err != nil {
			return err
		}
		if item != nil {
			return r.publishCycle(ctx, c, item, item.RepublishCount, false, now)
		}
	}

	// Fresh pool exhausted (or not due): offer a repost.
	item, err := sel.NextRepost(c)
	if err != nil || item == nil {
		return err
	}
	due, err := r.Trigger.ShouldRepost(c, item, now)
	if err != nil || !due {
		return err
	}
	return r.publishCycle(ctx, c, item, item.RepublishCount+1, true, now)
}

// publishCycle runs the Publishing and Settling phases for one item at one
// attempt number (0 = first publish, N = Nth repost).
func (r *Runner) publishCycle(ctx context.Context, c *model.Campaign, item *model.ContentItem, attempt int, repost bool, now time.Time) error {
	transitional := model.ItemStatusScheduled
	if repost {
		transitional = model.ItemStatusReposting
	}
	if err := r.Items.UpdateStatus(item.ID, transitional, false, ""); err != nil {
		return err
	}

	channels, skips, err := r.resolveChannels(c, now)
	if err != nil {
		return err
	}
	r.logSkips(c, item, skips)
	if len(channels) == 0 && len(skips) == 0 {
		// No active connections: leave the item untouched for later.
		if err := r.Items.UpdateStatus(item.ID, item.Status, item.Partial, ""); err != nil {
			return err
		}
		return nil
	}

	posted, err := r.postedChannels(item.ID, attempt)
	if err != nil {
		return err
	}

	// Idempotency guard: a channel holding an entry for this attempt has
	// already received the item and must not receive it again.
	targets := make([]*model.Channel, 0, len(channels))
	already := 0
	for _, ch := range channels {
		if posted[ch.ID] {
			already++
			continue
		}
		targets = append(targets, ch)
	}

	if len(targets) == 0 && already == 0 {
		// Every channel was skipped this tick; the item stays eligible
		// and retries once credentials are fixed.
		return r.Items.UpdateStatus(item.ID, item.Status, item.Partial, "")
	}

	outcomes := r.fanOut(ctx, item, targets)

	succeeded, failed := 0, 0
	firstErr := ""
	for _, o := range outcomes {
		if o.err == nil {
			if err := r.Items.AppendExternalPost(item.ID, o.ch.ID, attempt, o.postID); err != nil {
				return err
			}
			r.appendLog(c, item, o.ch, model.EventPublished,
				fmt.Sprintf("posted to %s channel %q as %s", o.ch.Platform, o.ch.Name, o.postID))
			succeeded++
			continue
		}
		if firstErr == "" {
			firstErr = o.err.Error()
		}
		r.appendLog(c, item, o.ch, model.EventPublishFailed, o.err.Error())
		failed++
	}

	total := len(channels) + len(skips)
	have := already + succeeded

	switch {
	case have == 0:
		if repost {
			// The item was already published once; keep it repostable.
			if err := r.Items.UpdateStatus(item.ID, model.ItemStatusPublished, false, firstErr); err != nil {
				return err
			}
		} else {
			// All channels failed: the campaign is not advanced, the same
			// item retries on the next eligible tick.
			if err := r.Items.UpdateStatus(item.ID, model.ItemStatusFailed, false, firstErr); err != nil {
				return err
			}
		}
	case have < total:
		if err := r.Items.MarkPublished(item.ID, now, true); err != nil {
			return err
		}
	default:
		if err := r.completeCycle(c, item, attempt, now); err != nil {
			return err
		}
	}

	// Trigger timestamps advance only once something actually went out.
	if succeeded > 0 {
		if repost {
			if err := r.Campaigns.SetLastRepostAt(c.ID, now); err != nil {
				return err
			}
		} else {
			if err := r.Campaigns.SetLastPostAt(c.ID, now); err != nil {
				return err
			}
		}
	}
	return nil
}

// fillGaps retries only the channels missing a success entry for items
// that are partially published.
func (r *Runner) fillGaps(ctx context.Context, c *model.Campaign, now time.Time) error {
	items, err := r.Items.ListPartial(c.ID)
	if err != nil {
		return err
	}
	if len(items) == 0 {
		return nil
	}

	channels, skips, err := r.resolveChannels(c, now)
	if err != nil {
		return err
	}

	for _, item := range items {
		attempt, err := r.inFlightAttempt(item.ID)
		if err != nil {
			return err
		}
		posted, err := r.postedChannels(item.ID, attempt)
		if err != nil {
			return err
		}

		targets := make([]*model.Channel, 0, len(channels))
		for _, ch := range channels {
			if !posted[ch.ID] {
				targets = append(targets, ch)
			}
		}

		if len(targets) == 0 {
			if len(skips) == 0 {
				if err := r.completeCycle(c, item, attempt, now); err != nil {
					return err
				}
			}
			continue
		}

		r.logSkips(c, item, skips)
		outcomes := r.fanOut(ctx, item, targets)

		remaining := 0
		for _, o := range outcomes {
			if o.err == nil {
				if err := r.Items.AppendExternalPost(item.ID, o.ch.ID, attempt, o.postID); err != nil {
					return err
				}
				r.appendLog(c, item, o.ch, model.EventPublished,
					fmt.Sprintf("gap filled on %s channel %q as %s", o.ch.Platform, o.ch.Name, o.postID))
				continue
			}
			r.appendLog(c, item, o.ch, model.EventPublishFailed, o.err.Error())
			remaining++
		}

		if remaining == 0 && len(skips) == 0 {
			if err := r.completeCycle(c, item, attempt, now); err != nil {
				return err
			}
		}
	}
	return nil
}

// completeCycle settles an item whose attempt reached every resolvable
// channel: the repost counter catches up to the attempt number and the
// item exhausts once its repost budget is spent (or reposting is off).
func (r *Runner) completeCycle(c *model.Campaign, item *model.ContentItem, attempt int, now time.Time) error {
	if err := r.Items.MarkPublished(item.ID, now, false); err != nil {
		return err
	}
	if attempt > 0 {
		if err := r.Items.SetRepublishCount(item.ID, attempt); err != nil {
			return err
		}
	}
	exhausted := (attempt == 0 && !c.RepostEnabled) ||
		(c.RepostEnabled && attempt >= c.RepostMaxCount)
	if exhausted {
		if err := r.Items.UpdateStatus(item.ID, model.ItemStatusExhausted, false, ""); err != nil {
			return err
		}
	}
	return nil
}

type outcome struct {
	ch     *model.Channel
	postID string
	err    error
}

// fanOut publishes one item to every target channel concurrently. The
// per-channel idempotency guard upstream makes concurrent publishes to
// different channels safe.
func (r *Runner) fanOut(ctx context.Context, item *model.ContentItem, targets []*model.Channel) []outcome {
	outcomes := make([]outcome, len(targets))
	var wg sync.WaitGroup
	for i, ch := range targets {
		wg.Add(1)
		go func(i int, ch *model.Channel) {
			defer wg.Done()
			outcomes[i] = r.publishOne(ctx, item, ch)
		}(i, ch)
	}
	wg.Wait()
	return outcomes
}

func (r *Runner) publishOne(ctx context.Context, item *model.ContentItem, ch *model.Channel) outcome {
	pub, ok := r.Adapters.For(ch.Platform)
	if !ok {
		return outcome{ch: ch, err: fmt.Errorf("no adapter for platform %q", ch.Platform)}
	}

	timeout := r.PublishTimeout
	if timeout <= 0 {
		timeout = 2 * time.Minute
	}
	cctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	postID, err := pub.Publish(cctx, ch, item)
	if err != nil {
		r.Log.Warn("channel publish failed",
			zap.Int("campaign", item.CampaignID),
			zap.Int("item", item.ID),
			zap.Int("channel", ch.ID),
			zap.String("platform", ch.Platform),
			zap.Error(err))
		return outcome{ch: ch, err: err}
	}
	r.Log.Info("channel publish succeeded",
		zap.Int("campaign", item.CampaignID),
		zap.Int("item", item.ID),
		zap.Int("channel", ch.ID),
		zap.String("external_post_id", postID))
	return outcome{ch: ch, postID: postID}
}

// resolveChannels expands every active connection and dedupes channels that
// appear through both a direct connection and a group.
func (r *Runner) resolveChannels(c *model.Campaign, now time.Time) ([]*model.Channel, []channel.Skip, error) {
	conns, err := r.Connections.ListActiveByCampaign(c.ID)
	if err != nil {
		return nil, nil, err
	}

	seen := map[int]bool{}
	var channels []*model.Channel
	var skips []channel.Skip
	for _, conn := range conns {
		resolved, s, err := r.Registry.Resolve(conn, now)
		if err != nil {
			return nil, nil, err
		}
		skips = append(skips, s...)
		for _, ch := range resolved {
			if !seen[ch.ID] {
				seen[ch.ID] = true
				channels = append(channels, ch)
			}
		}
	}
	return channels, skips, nil
}

func (r *Runner) postedChannels(itemID, attempt int) (map[int]bool, error) {
	existing, err := r.Items.ListExternalPosts(itemID)
	if err != nil {
		return nil, err
	}
	posted := map[int]bool{}
	for _, p := range existing {
		if p.Attempt == attempt {
			posted[p.ChannelID] = true
		}
	}
	return posted, nil
}

// inFlightAttempt recovers which attempt cycle a partial item is in: the
// highest attempt that has at least one entry.
func (r *Runner) inFlightAttempt(itemID int) (int, error) {
	existing, err := r.Items.ListExternalPosts(itemID)
	if err != nil {
		return 0, err
	}
	attempt := 0
	for _, p := range existing {
		if p.Attempt > attempt {
			attempt = p.Attempt
		}
	}
	return attempt, nil
}

func (r *Runner) logSkips(c *model.Campaign, item *model.ContentItem, skips []channel.Skip) {
	for _, s := range skips {
		var chID *int
		if s.ChannelID != 0 {
			id := s.ChannelID
			chID = &id
		}
		entry := &model.CampaignLog{
			CampaignID: c.ID,
			ChannelID:  chID,
			Event:      model.EventChannelSkipped,
			Message:    s.Reason,
		}
		if item != nil {
			id := item.ID
			entry.ContentItemID = &id
		}
		r.append(entry)
	}
}

func (r *Runner) appendLog(c *model.Campaign, item *model.ContentItem, ch *model.Channel, event, message string) {
	entry := &model.CampaignLog{
		CampaignID: c.ID,
		Event:      event,
		Message:    message,
	}
	if item != nil {
		id := item.ID
		entry.ContentItemID = &id
	}
	if ch != nil {
		id := ch.ID
		entry.ChannelID = &id
	}
	r.append(entry)
}

func (r *Runner) append(entry *model.CampaignLog) {
	if err := r.Logs.Append(entry); err != nil {
		r.Log.Error("append campaign log", zap.Int("campaign", entry.CampaignID), zap.Error(err))
		return
	}
	if r.Events != nil {
		r.Events.CampaignEvent(entry)
	}
}

// campaignError is the circuit breaker: one log entry, campaign paused,
// the owner sees the message and resumes manually after fixing the cause.
func (r *Runner) campaignError(c *model.Campaign, message string) {
	r.Log.Error("campaign tick failed, pausing campaign",
		zap.Int("campaign", c.ID),
		zap.String("reason", message))
	r.appendLog(c, nil, nil, model.EventCampaignError, message)
	if err := r.Campaigns.UpdateStatus(c.ID, model.CampaignStatusPaused); err != nil {
		r.Log.Error("auto-pause failed", zap.Int("campaign", c.ID), zap.Error(err))
		return
	}
	r.appendLog(c, nil, nil, model.EventCampaignPaused, "auto-paused after error: "+message)
}
