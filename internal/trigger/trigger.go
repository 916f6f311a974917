// Package trigger decides whether a campaign is due to post or repost.
// Evaluation is a pure function of the campaign state and the supplied
// clock value, so running it twice in the same tick is always safe.
package trigger

import (
	"time"

	appErrors "github.com/postpilot/postpilot-backend/internal/errors"
	"github.com/postpilot/postpilot-backend/internal/model"
)

// Clock supplies the current time. Injectable for tests.
type Clock func() time.Time

// Evaluator answers "is it time to act now?" for both the first-post and
// the repost path. It holds no state.
type Evaluator struct{}

// ShouldPost reports whether the campaign is due for a fresh publish at now.
// A malformed schedule policy is returned as an error, never guessed around.
func (Evaluator) ShouldPost(c *model.Campaign, now time.Time) (bool, error) {
	if c.Status != model.CampaignStatusActive {
		return false, nil
	}
	if err := validatePolicy(c.ScheduleCondition, c.ScheduleInterval, "schedule"); err != nil {
		return false, err
	}
	if c.LastPostAt == nil {
		return true, nil
	}
	due, err := nextDue(*c.LastPostAt, c.ScheduleCondition, c.ScheduleInterval)
	if err != nil {
		return false, err
	}
	return !now.Before(due), nil
}

// ShouldRepost reports whether the item is due for a repost at now. Requires
// repost enabled, a published item with remaining repost budget, and the
// repost interval elapsed since the campaign's last repost.
func (e Evaluator) ShouldRepost(c *model.Campaign, item *model.ContentItem, now time.Time) (bool, error) {
	open, err := e.RepostWindowOpen(c, now)
	if err != nil || !open {
		return false, err
	}
	if item == nil {
		return false, nil
	}
	// Reposting items are in-flight cycles resumed after a crash.
	if item.Status != model.ItemStatusPublished && item.Status != model.ItemStatusReposting {
		return false, nil
	}
	if item.RepublishCount >= c.RepostMaxCount {
		return false, nil
	}
	return true, nil
}

// RepostWindowOpen is the campaign-level half of ShouldRepost: repost policy
// enabled and the repost interval elapsed since last_repost_at.
func (Evaluator) RepostWindowOpen(c *model.Campaign, now time.Time) (bool, error) {
	if c.Status != model.CampaignStatusActive || !c.RepostEnabled {
		return false, nil
	}
	if err := validatePolicy(c.RepostCondition, c.RepostInterval, "repost"); err != nil {
		return false, err
	}
	if c.RepostMaxCount < 1 {
		return false, &appErrors.ErrInvalidPolicy{Field: "repost_max_count", Reason: "must be >= 1"}
	}
	if c.LastRepostAt == nil {
		return true, nil
	}
	due, err := nextDue(*c.LastRepostAt, c.RepostCondition, c.RepostInterval)
	if err != nil {
		return false, err
	}
	return !now.Before(due), nil
}

func validatePolicy(condition string, interval int, field string) error {
	if !model.ValidCondition(condition) {
		return &appErrors.ErrInvalidPolicy{Field: field + "_condition", Reason: "unknown condition " + condition}
	}
	if interval < 1 {
		return &appErrors.ErrInvalidPolicy{Field: field + "_interval", Reason: "must be >= 1"}
	}
	return nil
}

// nextDue returns the first instant at which the interval has elapsed since
// last. Months use calendar arithmetic clamped to the last valid day, so
// "every 1 month" from Jan 31 lands on the end of February rather than
// overflowing into March.
func nextDue(last time.Time, condition string, interval int) (time.Time, error) {
	switch condition {
	case model.ConditionMinute:
		return last.Add(time.Duration(interval) * time.Minute), nil
	case model.ConditionHourly:
		return last.Add(time.Duration(interval) * time.Hour), nil
	case model.ConditionDaily:
		return last.Add(time.Duration(interval) * 24 * time.Hour), nil
	case model.ConditionWeekly:
		return last.Add(time.Duration(interval) * 7 * 24 * time.Hour), nil
	case model.ConditionMonthly:
		return addMonthsClamped(last, interval), nil
	}
	return time.Time{}, &appErrors.ErrInvalidPolicy{Field: "condition", Reason: "unknown condition " + condition}
}

func addMonthsClamped(t time.Time, months int) time.Time {
	year, month, day := t.Date()
	m := int(month) + months
	year += (m - 1) / 12
	m = (m-1)%12 + 1
	if last := daysInMonth(year, time.Month(m)); day > last {
		day = last
	}
	return time.Date(year, time.Month(m), day, t.Hour(), t.Minute(), t.Second(), t.Nanosecond(), t.Location())
}

func daysInMonth(year int, month time.Month) int {
	// Day 0 of the next month is the last day of this one.
	return time.Date(year, month+1, 0, 0, 0, 0, 0, time.UTC).Day()
}
