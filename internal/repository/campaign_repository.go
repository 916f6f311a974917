package repository

import (
	"database/sql"
	"fmt"
	"time"

	appErrors "github.com/postpilot/postpilot-backend/internal/errors"
	"github.com/postpilot/postpilot-backend/internal/model"
)

type CampaignRepositoryInterface interface {
	// Campaign CRUD
	Create(c *model.Campaign) error
	GetByID(id int) (*model.Campaign, error)
	ListCampaigns(offset, limit int, status string) ([]*model.Campaign, int, error)
	UpdateStatus(campaignID int, status string) error
	Update(c *model.Campaign) error

	// Scheduler support
	ListRunnable() ([]*model.Campaign, error)
	SetLastPostAt(campaignID int, t time.Time) error
	SetLastRepostAt(campaignID int, t time.Time) error
}

type CampaignRepository struct {
	DB *sql.DB
}

const campaignColumns = `id, user_id, name, logo_url, source_type, source_config,
       schedule_condition, schedule_interval,
       repost_enabled, repost_condition, repost_interval, repost_max_count,
       status, started_at, paused_at, last_post_at, last_repost_at, created_at, updated_at`

func scanCampaign(row interface{ Scan(...any) error }) (*model.Campaign, error) {
	var c model.Campaign
	err := row.Scan(
		&c.ID, &c.UserID, &c.Name, &c.LogoURL, &c.SourceType, &c.SourceConfig,
		&c.ScheduleCondition, &c.ScheduleInterval,
		&c.RepostEnabled, &c.RepostCondition, &c.RepostInterval, &c.RepostMaxCount,
		&c.Status, &c.StartedAt, &c.PausedAt, &c.LastPostAt, &c.LastRepostAt, &c.CreatedAt, &c.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &c, nil
}

// ====================== Campaign CRUD ======================

func (r *CampaignRepository) Create(c *model.Campaign) error {
	c.CreatedAt = time.Now()
	if c.Status == "" {
		c.Status = model.CampaignStatusDraft
	}
	query := `
        INSERT INTO campaigns
            (user_id, name, logo_url, source_type, source_config,
             schedule_condition, schedule_interval,
             repost_enabled, repost_condition, repost_interval, repost_max_count,
             status, created_at)
        VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
        RETURNING id
    `
	return r.DB.QueryRow(query,
		c.UserID, c.Name, c.LogoURL, c.SourceType, c.SourceConfig,
		c.ScheduleCondition, c.ScheduleInterval,
		c.RepostEnabled, c.RepostCondition, c.RepostInterval, c.RepostMaxCount,
		c.Status, c.CreatedAt,
	).Scan(&c.ID)
}

func (r *CampaignRepository) GetByID(id int) (*model.Campaign, error) {
	query := `SELECT ` + campaignColumns + ` FROM campaigns WHERE id=$1`
	c, err := scanCampaign(r.DB.QueryRow(query, id))
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, appErrors.NewCampaignNotFound(id)
		}
		return nil, err
	}
	return c, nil
}

func (r *CampaignRepository) Update(c *model.Campaign) error {
	query := `
        UPDATE campaigns
        SET name=$1, logo_url=$2,
            schedule_condition=$3, schedule_interval=$4,
            repost_enabled=$5, repost_condition=$6, repost_interval=$7, repost_max_count=$8,
            updated_at=NOW()
        WHERE id=$9
    `
	_, err := r.DB.Exec(query,
		c.Name, c.LogoURL,
		c.ScheduleCondition, c.ScheduleInterval,
		c.RepostEnabled, c.RepostCondition, c.RepostInterval, c.RepostMaxCount,
		c.ID,
	)
	return err
}

func (r *CampaignRepository) UpdateStatus(campaignID int, status string) error {
	query := `UPDATE campaigns SET status=$1, updated_at=NOW(),
              started_at = CASE WHEN $1='active' AND started_at IS NULL THEN NOW() ELSE started_at END,
              paused_at  = CASE WHEN $1='paused' THEN NOW() ELSE paused_at END
              WHERE id=$2`
	_, err := r.DB.Exec(query, status, campaignID)
	return err
}

func (r *CampaignRepository) ListCampaigns(offset, limit int, status string) ([]*model.Campaign, int, error) {
	campaigns := []*model.Campaign{}
	query := `SELECT ` + campaignColumns + ` FROM campaigns WHERE 1=1`
	args := []interface{}{}
	argPos := 1

	if status != "" {
		query += fmt.Sprintf(" AND status=$%d", argPos)
		args = append(args, status)
		argPos++
	}

	query += fmt.Sprintf(" ORDER BY id DESC LIMIT $%d OFFSET $%d", argPos, argPos+1)
	args = append(args, limit, offset)

	rows, err := r.DB.Query(query, args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	for rows.Next() {
		c, err := scanCampaign(rows)
		if err != nil {
			return nil, 0, err
		}
		campaigns = append(campaigns, c)
	}

	countQuery := `SELECT COUNT(*) FROM campaigns WHERE 1=1`
	argsCount := []interface{}{}
	if status != "" {
		countQuery += " AND status=$1"
		argsCount = append(argsCount, status)
	}

	var total int
	if err := r.DB.QueryRow(countQuery, argsCount...).Scan(&total); err != nil {
		return nil, 0, err
	}

	return campaigns, total, nil
}

// ====================== Scheduler support ======================

// ListRunnable returns campaigns the scheduler should hand to the runner:
// every active campaign, plus paused campaigns that still hold partial
// items (they get one gap-filler-only pass per tick).
func (r *CampaignRepository) ListRunnable() ([]*model.Campaign, error) {
	query := `SELECT ` + campaignColumns + ` FROM campaigns
              WHERE status='active'
                 OR (status='paused' AND EXISTS (
                        SELECT 1 FROM content_items
                        WHERE campaign_id = campaigns.id AND partial = TRUE))
              ORDER BY id`
	rows, err := r.DB.Query(query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	campaigns := []*model.Campaign{}
	for rows.Next() {
		c, err := scanCampaign(rows)
		if err != nil {
			return nil, err
		}
		campaigns = append(campaigns, c)
	}
	return campaigns, rows.Err()
}

func (r *CampaignRepository) SetLastPostAt(campaignID int, t time.Time) error {
	_, err := r.DB.Exec(`UPDATE campaigns SET last_post_at=$1, updated_at=NOW() WHERE id=$2`, t, campaignID)
	return err
}

func (r *CampaignRepository) SetLastRepostAt(campaignID int, t time.Time) error {
	_, err := r.DB.Exec(`UPDATE campaigns SET last_repost_at=$1, updated_at=NOW() WHERE id=$2`, t, campaignID)
	return err
}

var _ CampaignRepositoryInterface = (*CampaignRepository)(nil)
