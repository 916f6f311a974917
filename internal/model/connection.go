// internal/model/connection.go
package model

import "time"

// Connection target types.
const (
	TargetChannel = "channel"
	TargetGroup   = "group"
)

// Connection links a campaign to a destination channel or channel group.
type Connection struct {
	ID         int       `db:"id" json:"id"`
	CampaignID int       `db:"campaign_id" json:"campaign_id"`
	TargetType string    `db:"target_type" json:"target_type"`
	TargetID   int       `db:"target_id" json:"target_id"`
	Status     string    `db:"status" json:"status"` // active, disabled
	CreatedAt  time.Time `db:"created_at" json:"created_at"`
}

// Channel is one concrete destination on an external platform, with the
// credential handed in by the token collaborator.
type Channel struct {
	ID             int        `db:"id" json:"id"`
	UserID         int        `db:"user_id" json:"user_id"`
	GroupID        *int       `db:"group_id" json:"group_id,omitempty"`
	Platform       string     `db:"platform" json:"platform"` // instagram, mastodon, ...
	Name           string     `db:"name" json:"name"`
	DestinationID  string     `db:"destination_id" json:"destination_id"`
	AccessToken    string     `db:"access_token" json:"-"`
	TokenExpiresAt *time.Time `db:"token_expires_at" json:"token_expires_at,omitempty"`
	ProxyURL       string     `db:"proxy_url" json:"-"` // optional egress policy
	CreatedAt      time.Time  `db:"created_at" json:"created_at"`
}

// CredentialValid reports whether the channel token can be used at dispatch
// time. An invalid credential makes the channel a skipped outcome, never a
// campaign failure.
func (c *Channel) CredentialValid(now time.Time) bool {
	if c.AccessToken == "" {
		return false
	}
	if c.TokenExpiresAt != nil && !c.TokenExpiresAt.After(now) {
		return false
	}
	return true
}
