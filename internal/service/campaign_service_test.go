package service

import (
	"sort"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	appErrors "github.com/postpilot/postpilot-backend/internal/errors"
	"github.com/postpilot/postpilot-backend/internal/model"
)

// ====================== in-memory repos ======================

type mockCampaignRepo struct {
	campaigns map[int]*model.Campaign
	nextID    int
}

func newMockCampaignRepo() *mockCampaignRepo {
	return &mockCampaignRepo{campaigns: map[int]*model.Campaign{}, nextID: 1}
}

func (m *mockCampaignRepo) Create(c *model.Campaign) error {
	c.ID = m.nextID
	m.nextID++
	c.CreatedAt = time.Now()
	m.campaigns[c.ID] = c
	return nil
}

func (m *mockCampaignRepo) GetByID(id int) (*model.Campaign, error) {
	c, ok := m.campaigns[id]
	if !ok {
		return nil, appErrors.NewCampaignNotFound(id)
	}
	cp := *c
	return &cp, nil
}

func (m *mockCampaignRepo) ListCampaigns(offset, limit int, status string) ([]*model.Campaign, int, error) {
	var all []*model.Campaign
	for _, c := range m.campaigns {
		if status == "" || c.Status == status {
			all = append(all, c)
		}
	}
	sort.Slice(all, func(i, j int) bool { return all[i].ID > all[j].ID })
	total := len(all)
	if offset > len(all) {
		offset = len(all)
	}
	end := offset + limit
	if end > len(all) {
		end = len(all)
	}
	return all[offset:end], total, nil
}

func (m *mockCampaignRepo) UpdateStatus(id int, status string) error {
	m.campaigns[id].Status = status
	return nil
}

func (m *mockCampaignRepo) Update(c *model.Campaign) error {
	m.campaigns[c.ID] = c
	return nil
}

func (m *mockCampaignRepo) ListRunnable() ([]*model.Campaign, error) { return nil, nil }

func (m *mockCampaignRepo) SetLastPostAt(id int, t time.Time) error {
	m.campaigns[id].LastPostAt = &t
	return nil
}

func (m *mockCampaignRepo) SetLastRepostAt(id int, t time.Time) error {
	m.campaigns[id].LastRepostAt = &t
	return nil
}

type mockItemRepo struct {
	items  map[int]*model.ContentItem
	stats  map[string]int
	nextID int
}

func newMockItemRepo() *mockItemRepo {
	return &mockItemRepo{items: map[int]*model.ContentItem{}, nextID: 1}
}

func (m *mockItemRepo) Create(item *model.ContentItem) error {
	item.ID = m.nextID
	m.nextID++
	item.CreatedAt = time.Now()
	m.items[item.ID] = item
	return nil
}

func (m *mockItemRepo) GetByID(id int) (*model.ContentItem, error) { return m.items[id], nil }

func (m *mockItemRepo) ListByCampaign(campaignID, offset, limit int) ([]*model.ContentItem, int, error) {
	var all []*model.ContentItem
	for _, it := range m.items {
		if it.CampaignID == campaignID {
			all = append(all, it)
		}
	}
	sort.Slice(all, func(i, j int) bool { return all[i].ID < all[j].ID })
	total := len(all)
	if offset > len(all) {
		offset = len(all)
	}
	end := offset + limit
	if end > len(all) {
		end = len(all)
	}
	return all[offset:end], total, nil
}

func (m *mockItemRepo) NextFresh(int) (*model.ContentItem, error)           { return nil, nil }
func (m *mockItemRepo) NextRepostable(int, int) (*model.ContentItem, error) { return nil, nil }
func (m *mockItemRepo) ListPartial(int) ([]*model.ContentItem, error)       { return nil, nil }
func (m *mockItemRepo) UpdateStatus(int, string, bool, string) error        { return nil }
func (m *mockItemRepo) MarkPublished(int, time.Time, bool) error            { return nil }
func (m *mockItemRepo) SetRepublishCount(int, int) error                    { return nil }
func (m *mockItemRepo) AppendExternalPost(int, int, int, string) error      { return nil }
func (m *mockItemRepo) ListExternalPosts(int) ([]model.ExternalPost, error) { return nil, nil }

func (m *mockItemRepo) StatsByStatus(campaignID int) (map[string]int, error) {
	if m.stats != nil {
		return m.stats, nil
	}
	return map[string]int{}, nil
}

type mockConnectionRepo struct {
	conns  []*model.Connection
	nextID int
}

func (m *mockConnectionRepo) Create(conn *model.Connection) error {
	m.nextID++
	conn.ID = m.nextID
	conn.CreatedAt = time.Now()
	m.conns = append(m.conns, conn)
	return nil
}

func (m *mockConnectionRepo) ListActiveByCampaign(int) ([]*model.Connection, error) {
	return m.conns, nil
}
func (m *mockConnectionRepo) GetChannel(int) (*model.Channel, error)            { return nil, nil }
func (m *mockConnectionRepo) ListChannelsByGroup(int) ([]*model.Channel, error) { return nil, nil }

type mockLogRepo struct {
	entries []*model.CampaignLog
}

func (m *mockLogRepo) Append(entry *model.CampaignLog) error {
	entry.ID = len(m.entries) + 1
	m.entries = append(m.entries, entry)
	return nil
}

func (m *mockLogRepo) ListByCampaign(campaignID, offset, limit int) ([]*model.CampaignLog, int, error) {
	var all []*model.CampaignLog
	for _, e := range m.entries {
		if e.CampaignID == campaignID {
			all = append(all, e)
		}
	}
	return all, len(all), nil
}

func (m *mockLogRepo) LastByEvent(campaignID int, event string) (*model.CampaignLog, error) {
	for i := len(m.entries) - 1; i >= 0; i-- {
		if m.entries[i].CampaignID == campaignID && m.entries[i].Event == event {
			return m.entries[i], nil
		}
	}
	return nil, nil
}

func newTestService() (*CampaignService, *mockCampaignRepo, *mockItemRepo, *mockLogRepo) {
	campaigns := newMockCampaignRepo()
	items := newMockItemRepo()
	logs := &mockLogRepo{}
	svc := &CampaignService{
		CampaignRepo:   campaigns,
		ItemRepo:       items,
		ConnectionRepo: &mockConnectionRepo{},
		LogRepo:        logs,
		Log:            zap.NewNop(),
	}
	return svc, campaigns, items, logs
}

func validInput() CreateCampaignInput {
	return CreateCampaignInput{
		UserID:            7,
		Name:              "spring launch",
		ScheduleCondition: model.ConditionDaily,
		ScheduleInterval:  1,
		RepostEnabled:     true,
		RepostCondition:   model.ConditionWeekly,
		RepostInterval:    2,
		RepostMaxCount:    3,
	}
}

// ====================== tests ======================

func TestCreateCampaignStartsAsDraft(t *testing.T) {
	svc, _, _, _ := newTestService()

	c, err := svc.CreateCampaign(validInput())
	require.NoError(t, err)
	assert.Equal(t, model.CampaignStatusDraft, c.Status)
	assert.NotZero(t, c.ID)
}

func TestCreateCampaignRejectsBadPolicy(t *testing.T) {
	svc, _, _, _ := newTestService()

	cases := []struct {
		name   string
		mutate func(*CreateCampaignInput)
		field  string
	}{
		{"unknown schedule condition", func(in *CreateCampaignInput) { in.ScheduleCondition = "fortnightly" }, "schedule_condition"},
		{"zero schedule interval", func(in *CreateCampaignInput) { in.ScheduleInterval = 0 }, "schedule_interval"},
		{"unknown repost condition", func(in *CreateCampaignInput) { in.RepostCondition = "sometimes" }, "repost_condition"},
		{"zero repost interval", func(in *CreateCampaignInput) { in.RepostInterval = 0 }, "repost_interval"},
		{"zero repost max count", func(in *CreateCampaignInput) { in.RepostMaxCount = 0 }, "repost_max_count"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			in := validInput()
			tc.mutate(&in)
			_, err := svc.CreateCampaign(in)
			var invalid *appErrors.ErrInvalidPolicy
			require.ErrorAs(t, err, &invalid)
			assert.Equal(t, tc.field, invalid.Field)
		})
	}
}

func TestCreateCampaignIgnoresRepostFieldsWhenDisabled(t *testing.T) {
	svc, _, _, _ := newTestService()

	in := validInput()
	in.RepostEnabled = false
	in.RepostCondition = ""
	in.RepostInterval = 0
	in.RepostMaxCount = 0

	_, err := svc.CreateCampaign(in)
	assert.NoError(t, err)
}

func TestUpdateCampaignRewritesPolicy(t *testing.T) {
	svc, repo, _, _ := newTestService()
	c, err := svc.CreateCampaign(validInput())
	require.NoError(t, err)

	updated, err := svc.UpdateCampaign(c.ID, UpdateCampaignInput{
		Name:              "summer launch",
		ScheduleCondition: model.ConditionHourly,
		ScheduleInterval:  6,
		RepostEnabled:     false,
	})
	require.NoError(t, err)
	assert.Equal(t, "summer launch", updated.Name)
	assert.Equal(t, model.ConditionHourly, repo.campaigns[c.ID].ScheduleCondition)
	assert.False(t, repo.campaigns[c.ID].RepostEnabled)
}

func TestUpdateCampaignValidatesLikeCreate(t *testing.T) {
	svc, repo, _, _ := newTestService()
	c, err := svc.CreateCampaign(validInput())
	require.NoError(t, err)

	_, err = svc.UpdateCampaign(c.ID, UpdateCampaignInput{
		Name:              "broken",
		ScheduleCondition: "fortnightly",
		ScheduleInterval:  1,
	})
	var invalid *appErrors.ErrInvalidPolicy
	require.ErrorAs(t, err, &invalid)
	assert.Equal(t, "schedule_condition", invalid.Field)
	assert.Equal(t, "spring launch", repo.campaigns[c.ID].Name, "rejected update leaves the campaign untouched")

	_, err = svc.UpdateCampaign(404, UpdateCampaignInput{
		ScheduleCondition: model.ConditionDaily,
		ScheduleInterval:  1,
	})
	var notFound *appErrors.ErrCampaignNotFound
	assert.ErrorAs(t, err, &notFound)
}

func TestLifecycleTransitions(t *testing.T) {
	svc, repo, _, _ := newTestService()
	c, err := svc.CreateCampaign(validInput())
	require.NoError(t, err)

	_, err = svc.PauseCampaign(c.ID)
	var invalid *appErrors.ErrInvalidTransition
	require.ErrorAs(t, err, &invalid, "draft cannot pause")

	_, err = svc.ActivateCampaign(c.ID)
	require.NoError(t, err)
	assert.Equal(t, model.CampaignStatusActive, repo.campaigns[c.ID].Status)

	_, err = svc.PauseCampaign(c.ID)
	require.NoError(t, err)

	_, err = svc.StopCampaign(c.ID)
	require.NoError(t, err)

	// Stopped is terminal.
	_, err = svc.ActivateCampaign(c.ID)
	assert.ErrorAs(t, err, &invalid)
	_, err = svc.PauseCampaign(c.ID)
	assert.ErrorAs(t, err, &invalid)
}

func TestResumeSurfacesLastError(t *testing.T) {
	svc, _, _, logs := newTestService()
	c, err := svc.CreateCampaign(validInput())
	require.NoError(t, err)
	_, err = svc.ActivateCampaign(c.ID)
	require.NoError(t, err)
	_, err = svc.PauseCampaign(c.ID)
	require.NoError(t, err)

	require.NoError(t, logs.Append(&model.CampaignLog{
		CampaignID: c.ID, Event: model.EventCampaignError, Message: "invalid policy: schedule_interval must be >= 1",
	}))

	resumed, lastErr, err := svc.ResumeCampaign(c.ID)
	require.NoError(t, err)
	assert.Equal(t, model.CampaignStatusActive, resumed.Status)
	require.NotNil(t, lastErr)
	assert.Contains(t, lastErr.Message, "invalid policy")
}

func TestListCampaignsClampsPagination(t *testing.T) {
	svc, _, _, _ := newTestService()
	for i := 0; i < 5; i++ {
		_, err := svc.CreateCampaign(validInput())
		require.NoError(t, err)
	}

	campaigns, pagination, err := svc.ListCampaigns(0, 0, "")
	require.NoError(t, err)
	assert.Len(t, campaigns, 5)
	assert.Equal(t, 1, pagination["page"])
	assert.Equal(t, 20, pagination["page_size"])
	assert.Equal(t, 5, pagination["total_count"])
	assert.Equal(t, 1, pagination["total_pages"])

	campaigns, pagination, err = svc.ListCampaigns(2, 2, "")
	require.NoError(t, err)
	assert.Len(t, campaigns, 2)
	assert.Equal(t, 3, pagination["total_pages"])
}

func TestGetCampaignDetailsWithStats(t *testing.T) {
	svc, repo, items, logs := newTestService()
	c, err := svc.CreateCampaign(validInput())
	require.NoError(t, err)

	items.stats = map[string]int{"pending": 3, "published": 2, "failed": 1}
	repo.campaigns[c.ID].Status = model.CampaignStatusPaused
	require.NoError(t, logs.Append(&model.CampaignLog{
		CampaignID: c.ID, Event: model.EventCampaignError, Message: "panic: storage exploded",
	}))

	details, err := svc.GetCampaignDetailsWithStats(c.ID)
	require.NoError(t, err)
	assert.Equal(t, 6, details.Stats["total"])
	assert.Equal(t, 3, details.Stats["pending"])
	assert.Contains(t, details.LastError, "panic")
}

func TestAddContentItemRequiresCampaign(t *testing.T) {
	svc, _, _, _ := newTestService()

	_, err := svc.AddContentItem(404, AddContentItemInput{Caption: "hello"})
	var notFound *appErrors.ErrCampaignNotFound
	assert.ErrorAs(t, err, &notFound)

	c, err := svc.CreateCampaign(validInput())
	require.NoError(t, err)
	item, err := svc.AddContentItem(c.ID, AddContentItemInput{Caption: "hello", MediaURL: "https://cdn/x.jpg"})
	require.NoError(t, err)
	assert.Equal(t, model.ItemStatusPending, item.Status)
}

func TestAddConnectionValidatesTargetType(t *testing.T) {
	svc, _, _, _ := newTestService()
	c, err := svc.CreateCampaign(validInput())
	require.NoError(t, err)

	_, err = svc.AddConnection(c.ID, "audience", 1)
	var invalid *appErrors.ErrInvalidPolicy
	assert.ErrorAs(t, err, &invalid)

	conn, err := svc.AddConnection(c.ID, model.TargetGroup, 9)
	require.NoError(t, err)
	assert.Equal(t, "active", conn.Status)
}
