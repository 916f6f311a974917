// Package selector picks the next content item a campaign should publish
// or repost. Returning nil is a normal "nothing to do this tick" outcome,
// not an error.
package selector

import (
	"github.com/postpilot/postpilot-backend/internal/model"
)

// ItemSource is the slice of the item repository the selector needs.
type ItemSource interface {
	NextFresh(campaignID int) (*model.ContentItem, error)
	NextRepostable(campaignID, maxCount int) (*model.ContentItem, error)
}

type Selector struct {
	Items ItemSource
}

func New(items ItemSource) *Selector {
	return &Selector{Items: items}
}

// NextFresh returns the next item waiting for its first full publish,
// in ingestion order.
func (s *Selector) NextFresh(c *model.Campaign) (*model.ContentItem, error) {
	return s.Items.NextFresh(c.ID)
}

// NextRepost returns the published item whose last publish is longest ago
// and which still has repost budget. Only meaningful when the campaign's
// repost policy is enabled; partial items are never re-offered here, the
// gap-filler owns them.
func (s *Selector) NextRepost(c *model.Campaign) (*model.ContentItem, error) {
	if !c.RepostEnabled {
		return nil, nil
	}
	return s.Items.NextRepostable(c.ID, c.RepostMaxCount)
}

// NextItem is the combined selection order: fresh items first, repost
// candidates once the fresh pool is exhausted. The second return value
// reports whether the pick is a repost.
func (s *Selector) NextItem(c *model.Campaign) (*model.ContentItem, bool, error) {
	item, err := s.NextFresh(c)
	if err != nil || item != nil {
		return item, false, err
	}
	item, err = s.NextRepost(c)
	return item, item != nil, err
}
