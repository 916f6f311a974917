package repository

import (
	"database/sql"
	"time"

	"github.com/postpilot/postpilot-backend/internal/model"
)

type ContentItemRepositoryInterface interface {
	Create(item *model.ContentItem) error
	GetByID(id int) (*model.ContentItem, error)
	ListByCampaign(campaignID, offset, limit int) ([]*model.ContentItem, int, error)

	// Selection
	NextFresh(campaignID int) (*model.ContentItem, error)
	NextRepostable(campaignID, maxCount int) (*model.ContentItem, error)
	ListPartial(campaignID int) ([]*model.ContentItem, error)

	// Settlement
	UpdateStatus(id int, status string, partial bool, errorMessage string) error
	MarkPublished(id int, publishedAt time.Time, partial bool) error
	SetRepublishCount(id, count int) error
	StatsByStatus(campaignID int) (map[string]int, error)

	// External post bookkeeping (append-only)
	AppendExternalPost(itemID, channelID, attempt int, externalPostID string) error
	ListExternalPosts(itemID int) ([]model.ExternalPost, error)
}

type ContentItemRepository struct {
	DB *sql.DB
}

const itemColumns = `id, campaign_id, source, caption, media_url, media_type, media_size,
       status, partial, scheduled_at, published_at, republish_count, error_message,
       created_at, updated_at`

func scanItem(row interface{ Scan(...any) error }) (*model.ContentItem, error) {
	var it model.ContentItem
	err := row.Scan(
		&it.ID, &it.CampaignID, &it.Source, &it.Caption, &it.MediaURL, &it.MediaType, &it.MediaSize,
		&it.Status, &it.Partial, &it.ScheduledAt, &it.PublishedAt, &it.RepublishCount, &it.ErrorMessage,
		&it.CreatedAt, &it.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &it, nil
}

// ====================== Item CRUD ======================

func (r *ContentItemRepository) Create(item *model.ContentItem) error {
	if item.Status == "" {
		item.Status = model.ItemStatusPending
	}
	query := `
        INSERT INTO content_items
            (campaign_id, source, caption, media_url, media_type, media_size, status, created_at, updated_at)
        VALUES ($1, $2, $3, $4, $5, $6, $7, NOW(), NOW())
        RETURNING id, created_at, updated_at
    `
	return r.DB.QueryRow(query,
		item.CampaignID, item.Source, item.Caption, item.MediaURL, item.MediaType, item.MediaSize, item.Status,
	).Scan(&item.ID, &item.CreatedAt, &item.UpdatedAt)
}

func (r *ContentItemRepository) GetByID(id int) (*model.ContentItem, error) {
	item, err := scanItem(r.DB.QueryRow(`SELECT `+itemColumns+` FROM content_items WHERE id=$1`, id))
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, err
	}
	return item, nil
}

func (r *ContentItemRepository) ListByCampaign(campaignID, offset, limit int) ([]*model.ContentItem, int, error) {
	rows, err := r.DB.Query(
		`SELECT `+itemColumns+` FROM content_items WHERE campaign_id=$1 ORDER BY id LIMIT $2 OFFSET $3`,
		campaignID, limit, offset,
	)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	items := []*model.ContentItem{}
	for rows.Next() {
		it, err := scanItem(rows)
		if err != nil {
			return nil, 0, err
		}
		items = append(items, it)
	}

	var total int
	if err := r.DB.QueryRow(`SELECT COUNT(*) FROM content_items WHERE campaign_id=$1`, campaignID).Scan(&total); err != nil {
		return nil, 0, err
	}
	return items, total, nil
}

// ====================== Selection ======================

// NextFresh returns the oldest item still waiting for its first full publish:
// pending items in ingestion order (plus scheduled items stranded by a
// crashed tick), then failed items so they retry naturally on the next
// eligible tick.
func (r *ContentItemRepository) NextFresh(campaignID int) (*model.ContentItem, error) {
	query := `SELECT ` + itemColumns + ` FROM content_items
              WHERE campaign_id=$1 AND status IN ('pending','scheduled','failed') AND partial = FALSE
              ORDER BY CASE status WHEN 'failed' THEN 1 ELSE 0 END, id
              LIMIT 1`
	item, err := scanItem(r.DB.QueryRow(query, campaignID))
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, err
	}
	return item, nil
}

// NextRepostable returns the published item whose last publish is longest
// ago and which still has repost budget. Partial items are excluded; the
// gap-filler owns those.
func (r *ContentItemRepository) NextRepostable(campaignID, maxCount int) (*model.ContentItem, error) {
	query := `SELECT ` + itemColumns + ` FROM content_items
              WHERE campaign_id=$1 AND status IN ('published','reposting') AND partial = FALSE
                AND republish_count < $2
              ORDER BY published_at NULLS FIRST, id
              LIMIT 1`
	item, err := scanItem(r.DB.QueryRow(query, campaignID, maxCount))
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, err
	}
	return item, nil
}

func (r *ContentItemRepository) ListPartial(campaignID int) ([]*model.ContentItem, error) {
	rows, err := r.DB.Query(
		`SELECT `+itemColumns+` FROM content_items WHERE campaign_id=$1 AND partial = TRUE ORDER BY id`,
		campaignID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	items := []*model.ContentItem{}
	for rows.Next() {
		it, err := scanItem(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, it)
	}
	return items, rows.Err()
}

// ====================== Settlement ======================

func (r *ContentItemRepository) UpdateStatus(id int, status string, partial bool, errorMessage string) error {
	query := `UPDATE content_items SET status=$1, partial=$2, error_message=$3, updated_at=NOW() WHERE id=$4`
	_, err := r.DB.Exec(query, status, partial, errorMessage, id)
	return err
}

func (r *ContentItemRepository) MarkPublished(id int, publishedAt time.Time, partial bool) error {
	query := `UPDATE content_items
              SET status='published', partial=$1, published_at=$2, error_message='', updated_at=NOW()
              WHERE id=$3`
	_, err := r.DB.Exec(query, partial, publishedAt, id)
	return err
}

func (r *ContentItemRepository) SetRepublishCount(id, count int) error {
	_, err := r.DB.Exec(`UPDATE content_items SET republish_count=$1, updated_at=NOW() WHERE id=$2`, count, id)
	return err
}

func (r *ContentItemRepository) StatsByStatus(campaignID int) (map[string]int, error) {
	rows, err := r.DB.Query(
		`SELECT status, COUNT(*) FROM content_items WHERE campaign_id=$1 GROUP BY status`, campaignID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	stats := map[string]int{
		"pending": 0, "scheduled": 0, "published": 0, "reposting": 0, "exhausted": 0, "failed": 0,
	}
	for rows.Next() {
		var status string
		var count int
		if err := rows.Scan(&status, &count); err != nil {
			return nil, err
		}
		stats[status] = count
	}
	return stats, nil
}

// ====================== External posts ======================

// AppendExternalPost records one successful delivery. Rows are never
// updated or deleted; the unique (item, channel, attempt) index makes a
// crashed-and-retried settle harmless.
func (r *ContentItemRepository) AppendExternalPost(itemID, channelID, attempt int, externalPostID string) error {
	query := `
        INSERT INTO external_posts (content_item_id, channel_id, attempt, external_post_id, created_at)
        VALUES ($1, $2, $3, $4, NOW())
        ON CONFLICT (content_item_id, channel_id, attempt) DO NOTHING
    `
	_, err := r.DB.Exec(query, itemID, channelID, attempt, externalPostID)
	return err
}

func (r *ContentItemRepository) ListExternalPosts(itemID int) ([]model.ExternalPost, error) {
	rows, err := r.DB.Query(
		`SELECT id, content_item_id, channel_id, attempt, external_post_id, created_at
         FROM external_posts WHERE content_item_id=$1 ORDER BY id`, itemID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	posts := []model.ExternalPost{}
	for rows.Next() {
		var p model.ExternalPost
		if err := rows.Scan(&p.ID, &p.ContentItemID, &p.ChannelID, &p.Attempt, &p.ExternalPostID, &p.CreatedAt); err != nil {
			return nil, err
		}
		posts = append(posts, p)
	}
	return posts, rows.Err()
}

var _ ContentItemRepositoryInterface = (*ContentItemRepository)(nil)
