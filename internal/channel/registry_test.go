package channel

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/postpilot/postpilot-backend/internal/model"
)

var resolveNow = time.Date(2024, 6, 15, 12, 0, 0, 0, time.UTC)

type fakeStore struct {
	channels map[int]*model.Channel
	groups   map[int][]*model.Channel
}

func (f *fakeStore) GetChannel(id int) (*model.Channel, error) {
	return f.channels[id], nil
}

func (f *fakeStore) ListChannelsByGroup(groupID int) ([]*model.Channel, error) {
	return f.groups[groupID], nil
}

func validChannel(id int) *model.Channel {
	return &model.Channel{
		ID: id, Platform: "instagram", Name: "main",
		DestinationID: "dest-1", AccessToken: "tok",
	}
}

func TestResolveDirectChannel(t *testing.T) {
	reg := NewRegistry(&fakeStore{channels: map[int]*model.Channel{5: validChannel(5)}})

	channels, skips, err := reg.Resolve(&model.Connection{ID: 1, TargetType: model.TargetChannel, TargetID: 5}, resolveNow)
	require.NoError(t, err)
	assert.Empty(t, skips)
	require.Len(t, channels, 1)
	assert.Equal(t, 5, channels[0].ID)
}

func TestResolveMissingChannelIsSkipNotError(t *testing.T) {
	reg := NewRegistry(&fakeStore{channels: map[int]*model.Channel{}})

	channels, skips, err := reg.Resolve(&model.Connection{ID: 1, TargetType: model.TargetChannel, TargetID: 9}, resolveNow)
	require.NoError(t, err)
	assert.Empty(t, channels)
	require.Len(t, skips, 1)
	assert.Zero(t, skips[0].ChannelID, "connection-level skip carries no channel id")
	assert.Contains(t, skips[0].Reason, "not found")
}

func TestResolveGroupFiltersBadCredentials(t *testing.T) {
	expired := resolveNow.Add(-time.Hour)
	group := []*model.Channel{
		validChannel(1),
		{ID: 2, Platform: "instagram", AccessToken: ""},
		{ID: 3, Platform: "instagram", AccessToken: "tok", TokenExpiresAt: &expired},
		validChannel(4),
	}
	reg := NewRegistry(&fakeStore{groups: map[int][]*model.Channel{7: group}})

	channels, skips, err := reg.Resolve(&model.Connection{ID: 1, TargetType: model.TargetGroup, TargetID: 7}, resolveNow)
	require.NoError(t, err)

	require.Len(t, channels, 2)
	assert.Equal(t, 1, channels[0].ID)
	assert.Equal(t, 4, channels[1].ID)

	require.Len(t, skips, 2)
	for _, s := range skips {
		assert.Contains(t, []int{2, 3}, s.ChannelID)
		assert.Contains(t, s.Reason, "credential")
	}
}

func TestResolveEmptyGroupIsSkip(t *testing.T) {
	reg := NewRegistry(&fakeStore{groups: map[int][]*model.Channel{}})

	channels, skips, err := reg.Resolve(&model.Connection{ID: 1, TargetType: model.TargetGroup, TargetID: 7}, resolveNow)
	require.NoError(t, err)
	assert.Empty(t, channels)
	require.Len(t, skips, 1)
	assert.Contains(t, skips[0].Reason, "no channels")
}

func TestResolveUnknownTargetTypeIsSkip(t *testing.T) {
	reg := NewRegistry(&fakeStore{})

	channels, skips, err := reg.Resolve(&model.Connection{ID: 1, TargetType: "audience", TargetID: 7}, resolveNow)
	require.NoError(t, err)
	assert.Empty(t, channels)
	require.Len(t, skips, 1)
	assert.Contains(t, skips[0].Reason, "unknown target type")
}

func TestCredentialValid(t *testing.T) {
	future := resolveNow.Add(time.Hour)
	past := resolveNow.Add(-time.Hour)

	cases := []struct {
		name    string
		channel model.Channel
		want    bool
	}{
		{"token without expiry", model.Channel{AccessToken: "tok"}, true},
		{"token with future expiry", model.Channel{AccessToken: "tok", TokenExpiresAt: &future}, true},
		{"empty token", model.Channel{}, false},
		{"expired token", model.Channel{AccessToken: "tok", TokenExpiresAt: &past}, false},
		{"expiring right now", model.Channel{AccessToken: "tok", TokenExpiresAt: &resolveNow}, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, tc.channel.CredentialValid(resolveNow))
		})
	}
}
