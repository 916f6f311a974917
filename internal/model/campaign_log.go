// internal/model/campaign_log.go
package model

import "time"

// Campaign log event types. Logs are append-only and never mutated.
const (
	EventPublished      = "published"
	EventPublishFailed  = "publish_failed"
	EventChannelSkipped = "channel_skipped"
	EventCampaignError  = "campaign_error"
	EventCampaignPaused = "campaign_paused"
)

type CampaignLog struct {
	ID            int       `db:"id" json:"id"`
	CampaignID    int       `db:"campaign_id" json:"campaign_id"`
	ContentItemID *int      `db:"content_item_id" json:"content_item_id,omitempty"`
	ChannelID     *int      `db:"channel_id" json:"channel_id,omitempty"`
	Event         string    `db:"event" json:"event"`
	Message       string    `db:"message" json:"message,omitempty"`
	CreatedAt     time.Time `db:"created_at" json:"created_at"`
}
