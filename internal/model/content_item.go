// internal/model/content_item.go
package model

import "time"

// Content item lifecycle statuses.
const (
	ItemStatusPending   = "pending"
	ItemStatusScheduled = "scheduled"
	ItemStatusPublished = "published"
	ItemStatusReposting = "reposting"
	ItemStatusExhausted = "exhausted"
	ItemStatusFailed    = "failed"
)

type ContentItem struct {
	ID         int    `db:"id" json:"id"`
	CampaignID int    `db:"campaign_id" json:"campaign_id"`
	Source     string `db:"source" json:"source"` // how it was ingested: csv, folder, manual

	Caption   string `db:"caption" json:"caption"`
	MediaURL  string `db:"media_url" json:"media_url,omitempty"`
	MediaType string `db:"media_type" json:"media_type,omitempty"` // image, video
	MediaSize int64  `db:"media_size" json:"media_size,omitempty"`

	Status string `db:"status" json:"status"`
	// Partial marks an item that reached some channels but not all;
	// the gap-filler targets only the missing channels.
	Partial bool `db:"partial" json:"partial"`

	ScheduledAt    *time.Time `db:"scheduled_at" json:"scheduled_at,omitempty"`
	PublishedAt    *time.Time `db:"published_at" json:"published_at,omitempty"`
	RepublishCount int        `db:"republish_count" json:"republish_count"`
	ErrorMessage   string     `db:"error_message" json:"error_message,omitempty"`
	CreatedAt      time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt      time.Time  `db:"updated_at" json:"updated_at"`
}

// ExternalPost is one append-only (item, channel, attempt) delivery record.
// Attempt 0 is the first publish, attempt N the Nth repost cycle. The
// presence of a row is the idempotency proof that the channel already
// received the item for that cycle.
type ExternalPost struct {
	ID             int       `db:"id" json:"id"`
	ContentItemID  int       `db:"content_item_id" json:"content_item_id"`
	ChannelID      int       `db:"channel_id" json:"channel_id"`
	Attempt        int       `db:"attempt" json:"attempt"`
	ExternalPostID string    `db:"external_post_id" json:"external_post_id"`
	CreatedAt      time.Time `db:"created_at" json:"created_at"`
}
