package repository

import (
	"database/sql"

	"github.com/postpilot/postpilot-backend/internal/model"
)

type CampaignLogRepositoryInterface interface {
	Append(entry *model.CampaignLog) error
	ListByCampaign(campaignID, offset, limit int) ([]*model.CampaignLog, int, error)
	LastByEvent(campaignID int, event string) (*model.CampaignLog, error)
}

// CampaignLogRepository writes the append-only campaign event record.
// Logs are never updated or deleted by normal operation.
type CampaignLogRepository struct {
	DB *sql.DB
}

func (r *CampaignLogRepository) Append(entry *model.CampaignLog) error {
	query := `
        INSERT INTO campaign_logs (campaign_id, content_item_id, channel_id, event, message, created_at)
        VALUES ($1, $2, $3, $4, $5, NOW())
        RETURNING id, created_at
    `
	return r.DB.QueryRow(query,
		entry.CampaignID, entry.ContentItemID, entry.ChannelID, entry.Event, entry.Message,
	).Scan(&entry.ID, &entry.CreatedAt)
}

func (r *CampaignLogRepository) ListByCampaign(campaignID, offset, limit int) ([]*model.CampaignLog, int, error) {
	rows, err := r.DB.Query(
		`SELECT id, campaign_id, content_item_id, channel_id, event, message, created_at
         FROM campaign_logs WHERE campaign_id=$1 ORDER BY id DESC LIMIT $2 OFFSET $3`,
		campaignID, limit, offset,
	)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	logs := []*model.CampaignLog{}
	for rows.Next() {
		var l model.CampaignLog
		if err := rows.Scan(&l.ID, &l.CampaignID, &l.ContentItemID, &l.ChannelID, &l.Event, &l.Message, &l.CreatedAt); err != nil {
			return nil, 0, err
		}
		logs = append(logs, &l)
	}

	var total int
	if err := r.DB.QueryRow(`SELECT COUNT(*) FROM campaign_logs WHERE campaign_id=$1`, campaignID).Scan(&total); err != nil {
		return nil, 0, err
	}
	return logs, total, nil
}

// LastByEvent returns the most recent entry of a given event type, used to
// surface the reason a campaign was auto-paused to its owner.
func (r *CampaignLogRepository) LastByEvent(campaignID int, event string) (*model.CampaignLog, error) {
	var l model.CampaignLog
	err := r.DB.QueryRow(
		`SELECT id, campaign_id, content_item_id, channel_id, event, message, created_at
         FROM campaign_logs WHERE campaign_id=$1 AND event=$2 ORDER BY id DESC LIMIT 1`,
		campaignID, event,
	).Scan(&l.ID, &l.CampaignID, &l.ContentItemID, &l.ChannelID, &l.Event, &l.Message, &l.CreatedAt)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, err
	}
	return &l, nil
}

var _ CampaignLogRepositoryInterface = (*CampaignLogRepository)(nil)
