package repository

import (
	"database/sql"

	"github.com/postpilot/postpilot-backend/internal/model"
)

type ConnectionRepositoryInterface interface {
	Create(conn *model.Connection) error
	ListActiveByCampaign(campaignID int) ([]*model.Connection, error)

	// Channel lookups used by the registry to resolve a connection to
	// concrete destinations.
	GetChannel(id int) (*model.Channel, error)
	ListChannelsByGroup(groupID int) ([]*model.Channel, error)
}

type ConnectionRepository struct {
	DB *sql.DB
}

const channelColumns = `id, user_id, group_id, platform, name, destination_id,
       access_token, token_expires_at, proxy_url, created_at`

func scanChannel(row interface{ Scan(...any) error }) (*model.Channel, error) {
	var ch model.Channel
	err := row.Scan(
		&ch.ID, &ch.UserID, &ch.GroupID, &ch.Platform, &ch.Name, &ch.DestinationID,
		&ch.AccessToken, &ch.TokenExpiresAt, &ch.ProxyURL, &ch.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &ch, nil
}

func (r *ConnectionRepository) Create(conn *model.Connection) error {
	if conn.Status == "" {
		conn.Status = "active"
	}
	query := `
        INSERT INTO connections (campaign_id, target_type, target_id, status, created_at)
        VALUES ($1, $2, $3, $4, NOW())
        RETURNING id, created_at
    `
	return r.DB.QueryRow(query, conn.CampaignID, conn.TargetType, conn.TargetID, conn.Status).
		Scan(&conn.ID, &conn.CreatedAt)
}

func (r *ConnectionRepository) ListActiveByCampaign(campaignID int) ([]*model.Connection, error) {
	rows, err := r.DB.Query(
		`SELECT id, campaign_id, target_type, target_id, status, created_at
         FROM connections WHERE campaign_id=$1 AND status='active' ORDER BY id`, campaignID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	conns := []*model.Connection{}
	for rows.Next() {
		var c model.Connection
		if err := rows.Scan(&c.ID, &c.CampaignID, &c.TargetType, &c.TargetID, &c.Status, &c.CreatedAt); err != nil {
			return nil, err
		}
		conns = append(conns, &c)
	}
	return conns, rows.Err()
}

func (r *ConnectionRepository) GetChannel(id int) (*model.Channel, error) {
	ch, err := scanChannel(r.DB.QueryRow(`SELECT `+channelColumns+` FROM channels WHERE id=$1`, id))
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, err
	}
	return ch, nil
}

func (r *ConnectionRepository) ListChannelsByGroup(groupID int) ([]*model.Channel, error) {
	rows, err := r.DB.Query(`SELECT `+channelColumns+` FROM channels WHERE group_id=$1 ORDER BY id`, groupID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	channels := []*model.Channel{}
	for rows.Next() {
		ch, err := scanChannel(rows)
		if err != nil {
			return nil, err
		}
		channels = append(channels, ch)
	}
	return channels, rows.Err()
}

var _ ConnectionRepositoryInterface = (*ConnectionRepository)(nil)
