package service

import (
	"go.uber.org/zap"

	appErrors "github.com/postpilot/postpilot-backend/internal/errors"
	"github.com/postpilot/postpilot-backend/internal/model"
	"github.com/postpilot/postpilot-backend/internal/repository"
)

type CampaignService struct {
	CampaignRepo   repository.CampaignRepositoryInterface
	ItemRepo       repository.ContentItemRepositoryInterface
	ConnectionRepo repository.ConnectionRepositoryInterface
	LogRepo        repository.CampaignLogRepositoryInterface
	Log            *zap.Logger
}

// CampaignDetails is the detail view: the campaign plus per-status item
// counts and, for paused campaigns, the error that paused them.
type CampaignDetails struct {
	*model.Campaign
	Stats     map[string]int `json:"stats"`
	LastError string         `json:"last_error,omitempty"`
}

// CreateCampaignInput carries the client-supplied fields of a new campaign.
type CreateCampaignInput struct {
	UserID            int    `json:"user_id"`
	Name              string `json:"name"`
	LogoURL           string `json:"logo_url"`
	SourceType        string `json:"source_type"`
	SourceConfig      string `json:"source_config"`
	ScheduleCondition string `json:"schedule_condition"`
	ScheduleInterval  int    `json:"schedule_interval"`
	RepostEnabled     bool   `json:"repost_enabled"`
	RepostCondition   string `json:"repost_condition"`
	RepostInterval    int    `json:"repost_interval"`
	RepostMaxCount    int    `json:"repost_max_count"`
}

// CreateCampaign validates the posting policy up front so a broken policy
// is rejected at the API instead of auto-pausing the campaign later.
func (s *CampaignService) CreateCampaign(in CreateCampaignInput) (*model.Campaign, error) {
	if err := validatePolicy(in.ScheduleCondition, in.ScheduleInterval,
		in.RepostEnabled, in.RepostCondition, in.RepostInterval, in.RepostMaxCount); err != nil {
		return nil, err
	}

	c := &model.Campaign{
		UserID:            in.UserID,
		Name:              in.Name,
		LogoURL:           in.LogoURL,
		SourceType:        in.SourceType,
		SourceConfig:      in.SourceConfig,
		ScheduleCondition: in.ScheduleCondition,
		ScheduleInterval:  in.ScheduleInterval,
		RepostEnabled:     in.RepostEnabled,
		RepostCondition:   in.RepostCondition,
		RepostInterval:    in.RepostInterval,
		RepostMaxCount:    in.RepostMaxCount,
		Status:            model.CampaignStatusDraft,
	}
	if err := s.CampaignRepo.Create(c); err != nil {
		return nil, err
	}
	return c, nil
}

func validatePolicy(scheduleCondition string, scheduleInterval int,
	repostEnabled bool, repostCondition string, repostInterval, repostMaxCount int) error {
	if !model.ValidCondition(scheduleCondition) {
		return &appErrors.ErrInvalidPolicy{Field: "schedule_condition", Reason: "unknown condition " + scheduleCondition}
	}
	if scheduleInterval < 1 {
		return &appErrors.ErrInvalidPolicy{Field: "schedule_interval", Reason: "must be >= 1"}
	}
	if !repostEnabled {
		return nil
	}
	if !model.ValidCondition(repostCondition) {
		return &appErrors.ErrInvalidPolicy{Field: "repost_condition", Reason: "unknown condition " + repostCondition}
	}
	if repostInterval < 1 {
		return &appErrors.ErrInvalidPolicy{Field: "repost_interval", Reason: "must be >= 1"}
	}
	if repostMaxCount < 1 {
		return &appErrors.ErrInvalidPolicy{Field: "repost_max_count", Reason: "must be >= 1"}
	}
	return nil
}

// UpdateCampaignInput carries the editable fields of an existing campaign.
// Source and ownership never change after creation.
type UpdateCampaignInput struct {
	Name              string `json:"name"`
	LogoURL           string `json:"logo_url"`
	ScheduleCondition string `json:"schedule_condition"`
	ScheduleInterval  int    `json:"schedule_interval"`
	RepostEnabled     bool   `json:"repost_enabled"`
	RepostCondition   string `json:"repost_condition"`
	RepostInterval    int    `json:"repost_interval"`
	RepostMaxCount    int    `json:"repost_max_count"`
}

// UpdateCampaign rewrites the editable settings under the same validation
// as creation; the new policy applies from the next scheduler tick.
func (s *CampaignService) UpdateCampaign(campaignID int, in UpdateCampaignInput) (*model.Campaign, error) {
	if err := validatePolicy(in.ScheduleCondition, in.ScheduleInterval,
		in.RepostEnabled, in.RepostCondition, in.RepostInterval, in.RepostMaxCount); err != nil {
		return nil, err
	}

	c, err := s.CampaignRepo.GetByID(campaignID)
	if err != nil {
		return nil, err
	}
	c.Name = in.Name
	c.LogoURL = in.LogoURL
	c.ScheduleCondition = in.ScheduleCondition
	c.ScheduleInterval = in.ScheduleInterval
	c.RepostEnabled = in.RepostEnabled
	c.RepostCondition = in.RepostCondition
	c.RepostInterval = in.RepostInterval
	c.RepostMaxCount = in.RepostMaxCount

	if err := s.CampaignRepo.Update(c); err != nil {
		return nil, err
	}
	return c, nil
}

// ====================== Lifecycle ======================

// transitions maps each status to the statuses it may move to. Stopped is
// terminal.
var transitions = map[string][]string{
	model.CampaignStatusDraft:  {model.CampaignStatusActive},
	model.CampaignStatusActive: {model.CampaignStatusPaused, model.CampaignStatusStopped},
	model.CampaignStatusPaused: {model.CampaignStatusActive, model.CampaignStatusStopped},
}

func canTransition(from, to string) bool {
	for _, t := range transitions[from] {
		if t == to {
			return true
		}
	}
	return false
}

func (s *CampaignService) transition(campaignID int, to string) (*model.Campaign, error) {
	c, err := s.CampaignRepo.GetByID(campaignID)
	if err != nil {
		return nil, err
	}
	if !canTransition(c.Status, to) {
		return nil, &appErrors.ErrInvalidTransition{From: c.Status, To: to}
	}
	if err := s.CampaignRepo.UpdateStatus(campaignID, to); err != nil {
		return nil, err
	}
	s.Log.Info("campaign status changed",
		zap.Int("campaign", campaignID),
		zap.String("from", c.Status),
		zap.String("to", to))
	c.Status = to
	return c, nil
}

func (s *CampaignService) ActivateCampaign(campaignID int) (*model.Campaign, error) {
	return s.transition(campaignID, model.CampaignStatusActive)
}

func (s *CampaignService) PauseCampaign(campaignID int) (*model.Campaign, error) {
	return s.transition(campaignID, model.CampaignStatusPaused)
}

func (s *CampaignService) StopCampaign(campaignID int) (*model.Campaign, error) {
	return s.transition(campaignID, model.CampaignStatusStopped)
}

// ResumeCampaign reactivates a paused campaign and surfaces the error that
// paused it, if any, so the caller can show what was (hopefully) fixed.
func (s *CampaignService) ResumeCampaign(campaignID int) (*model.Campaign, *model.CampaignLog, error) {
	c, err := s.transition(campaignID, model.CampaignStatusActive)
	if err != nil {
		return nil, nil, err
	}
	lastErr, err := s.LogRepo.LastByEvent(campaignID, model.EventCampaignError)
	if err != nil {
		// The resume itself succeeded; don't fail it over a log lookup.
		s.Log.Warn("fetch last campaign error", zap.Int("campaign", campaignID), zap.Error(err))
		return c, nil, nil
	}
	return c, lastErr, nil
}

// ====================== Read side ======================

// ListCampaigns fetches campaigns with pagination
func (s *CampaignService) ListCampaigns(page, pageSize int, status string) ([]model.Campaign, map[string]int, error) {
	if page < 1 {
		page = 1
	}
	if pageSize < 1 {
		pageSize = 20
	}
	if pageSize > 100 {
		pageSize = 100
	}
	offset := (page - 1) * pageSize

	ptrs, total, err := s.CampaignRepo.ListCampaigns(offset, pageSize, status)
	if err != nil {
		return nil, nil, err
	}

	campaigns := make([]model.Campaign, len(ptrs))
	for i, c := range ptrs {
		campaigns[i] = *c
	}

	totalPages := (total + pageSize - 1) / pageSize
	pagination := map[string]int{
		"page":        page,
		"page_size":   pageSize,
		"total_count": total,
		"total_pages": totalPages,
	}

	return campaigns, pagination, nil
}

func (s *CampaignService) GetCampaignDetailsWithStats(campaignID int) (*CampaignDetails, error) {
	c, err := s.CampaignRepo.GetByID(campaignID)
	if err != nil {
		return nil, err
	}

	stats, err := s.ItemRepo.StatsByStatus(campaignID)
	if err != nil {
		return nil, err
	}
	total := 0
	for _, n := range stats {
		total += n
	}
	stats["total"] = total

	details := &CampaignDetails{Campaign: c, Stats: stats}
	if c.Status == model.CampaignStatusPaused {
		if last, err := s.LogRepo.LastByEvent(campaignID, model.EventCampaignError); err == nil && last != nil {
			details.LastError = last.Message
		}
	}
	return details, nil
}

func (s *CampaignService) ListLogs(campaignID, page, pageSize int) ([]*model.CampaignLog, map[string]int, error) {
	if page < 1 {
		page = 1
	}
	if pageSize < 1 {
		pageSize = 50
	}
	if pageSize > 200 {
		pageSize = 200
	}
	offset := (page - 1) * pageSize

	logs, total, err := s.LogRepo.ListByCampaign(campaignID, offset, pageSize)
	if err != nil {
		return nil, nil, err
	}
	pagination := map[string]int{
		"page":        page,
		"page_size":   pageSize,
		"total_count": total,
		"total_pages": (total + pageSize - 1) / pageSize,
	}
	return logs, pagination, nil
}

// ====================== Content and connections ======================

// AddContentItemInput carries one content item to ingest into a campaign.
type AddContentItemInput struct {
	Source    string `json:"source"`
	Caption   string `json:"caption"`
	MediaURL  string `json:"media_url"`
	MediaType string `json:"media_type"`
	MediaSize int64  `json:"media_size"`
}

func (s *CampaignService) AddContentItem(campaignID int, in AddContentItemInput) (*model.ContentItem, error) {
	// Ensure the campaign exists so orphaned items never enter the pool.
	if _, err := s.CampaignRepo.GetByID(campaignID); err != nil {
		return nil, err
	}
	item := &model.ContentItem{
		CampaignID: campaignID,
		Source:     in.Source,
		Caption:    in.Caption,
		MediaURL:   in.MediaURL,
		MediaType:  in.MediaType,
		MediaSize:  in.MediaSize,
		Status:     model.ItemStatusPending,
	}
	if err := s.ItemRepo.Create(item); err != nil {
		return nil, err
	}
	return item, nil
}

func (s *CampaignService) ListContentItems(campaignID, page, pageSize int) ([]*model.ContentItem, map[string]int, error) {
	if page < 1 {
		page = 1
	}
	if pageSize < 1 {
		pageSize = 20
	}
	if pageSize > 100 {
		pageSize = 100
	}
	offset := (page - 1) * pageSize

	items, total, err := s.ItemRepo.ListByCampaign(campaignID, offset, pageSize)
	if err != nil {
		return nil, nil, err
	}
	pagination := map[string]int{
		"page":        page,
		"page_size":   pageSize,
		"total_count": total,
		"total_pages": (total + pageSize - 1) / pageSize,
	}
	return items, pagination, nil
}

func (s *CampaignService) AddConnection(campaignID int, targetType string, targetID int) (*model.Connection, error) {
	if targetType != model.TargetChannel && targetType != model.TargetGroup {
		return nil, &appErrors.ErrInvalidPolicy{Field: "target_type", Reason: "must be channel or group"}
	}
	if _, err := s.CampaignRepo.GetByID(campaignID); err != nil {
		return nil, err
	}
	conn := &model.Connection{
		CampaignID: campaignID,
		TargetType: targetType,
		TargetID:   targetID,
		Status:     "active",
	}
	if err := s.ConnectionRepo.Create(conn); err != nil {
		return nil, err
	}
	return conn, nil
}
