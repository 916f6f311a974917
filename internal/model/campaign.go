// internal/model/campaign.go
package model

import "time"

// Campaign lifecycle statuses.
const (
	CampaignStatusDraft   = "draft"
	CampaignStatusActive  = "active"
	CampaignStatusPaused  = "paused"
	CampaignStatusStopped = "stopped" // terminal
)

// Schedule/repost conditions. Interval means "every N units of condition".
const (
	ConditionMinute  = "minute"
	ConditionHourly  = "hourly"
	ConditionDaily   = "daily"
	ConditionWeekly  = "weekly"
	ConditionMonthly = "monthly"
)

type Campaign struct {
	ID      int    `db:"id" json:"id"`
	UserID  int    `db:"user_id" json:"user_id"`
	Name    string `db:"name" json:"name"`
	LogoURL string `db:"logo_url" json:"logo_url,omitempty"`

	// Content source descriptor; items are created by the ingestion
	// collaborator, the core never parses SourceConfig itself.
	SourceType   string `db:"source_type" json:"source_type"`
	SourceConfig string `db:"source_config" json:"source_config,omitempty"`

	ScheduleCondition string `db:"schedule_condition" json:"schedule_condition"`
	ScheduleInterval  int    `db:"schedule_interval" json:"schedule_interval"`

	RepostEnabled   bool   `db:"repost_enabled" json:"repost_enabled"`
	RepostCondition string `db:"repost_condition" json:"repost_condition,omitempty"`
	RepostInterval  int    `db:"repost_interval" json:"repost_interval"`
	RepostMaxCount  int    `db:"repost_max_count" json:"repost_max_count"`

	Status string `db:"status" json:"status"`

	StartedAt    *time.Time `db:"started_at" json:"started_at,omitempty"`
	PausedAt     *time.Time `db:"paused_at" json:"paused_at,omitempty"`
	LastPostAt   *time.Time `db:"last_post_at" json:"last_post_at,omitempty"`
	LastRepostAt *time.Time `db:"last_repost_at" json:"last_repost_at,omitempty"`
	CreatedAt    time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt    *time.Time `db:"updated_at" json:"updated_at,omitempty"`
}

// ValidCondition reports whether c is one of the fixed schedule conditions.
func ValidCondition(c string) bool {
	switch c {
	case ConditionMinute, ConditionHourly, ConditionDaily, ConditionWeekly, ConditionMonthly:
		return true
	}
	return false
}
